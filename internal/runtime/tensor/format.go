package tensor

import (
	"fmt"
	"strconv"
	"strings"
)

// FormatValue renders v with three significant digits unless the plain
// shortest form is no longer.
func FormatValue(v float32) string {
	short := strconv.FormatFloat(float64(v), 'g', 3, 32)
	short = strings.Replace(short, "e+0", "e+", 1)
	short = strings.Replace(short, "e-0", "e-", 1)

	plain := strconv.FormatFloat(float64(v), 'g', -1, 32)
	if len(short) < len(plain) {
		return short
	}

	return plain
}

// FormatValues renders a vector compactly: one value bare, up to four in
// full, longer vectors as [first, second, ..., last].
func FormatValues(values []float32) string {
	switch {
	case len(values) == 0:
		return "[]"
	case len(values) == 1:
		return FormatValue(values[0])
	case len(values) <= 4:
		parts := make([]string, len(values))
		for i, v := range values {
			parts[i] = FormatValue(v)
		}

		return "[" + strings.Join(parts, ", ") + "]"
	default:
		return fmt.Sprintf("[%s, %s, ..., %s]",
			FormatValue(values[0]), FormatValue(values[1]), FormatValue(values[len(values)-1]))
	}
}

// Summary describes the tensor as its shape followed by its flattened values.
func (t *Tensor) Summary() string {
	if t == nil {
		return "<nil>"
	}

	return fmt.Sprintf("%v %s", t.shape, FormatValues(t.data))
}
