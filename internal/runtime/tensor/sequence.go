package tensor

import (
	"errors"
	"fmt"
)

// SequenceMask builds a [batch, maxLen, 1] mask holding 1 at positions
// t < seqLen[b] and 0 elsewhere. maxLen <= 0 uses the longest length.
func SequenceMask(seqLen []int64, maxLen int64) (*Tensor, error) {
	longest := int64(0)

	for b, n := range seqLen {
		if n < 0 {
			return nil, fmt.Errorf("tensor: sequence mask length %d (%d) is negative", b, n)
		}

		longest = max(longest, n)
	}

	if maxLen <= 0 {
		maxLen = longest
	}

	out, err := Zeros([]int64{int64(len(seqLen)), maxLen, 1})
	if err != nil {
		return nil, err
	}

	for b, n := range seqLen {
		row := out.data[int64(b)*maxLen : int64(b+1)*maxLen]
		for t := range min(n, maxLen) {
			row[t] = 1
		}
	}

	return out, nil
}

// BothVoicedMask returns 1 where every feature is non-zero at the same
// position and 0 elsewhere. All features must share one shape.
func BothVoicedMask(features ...*Tensor) (*Tensor, error) {
	if len(features) == 0 {
		return nil, errors.New("tensor: voiced mask requires at least one feature")
	}

	var mask *Tensor

	for i, f := range features {
		if f == nil {
			return nil, fmt.Errorf("tensor: voiced mask feature %d is nil", i)
		}

		if mask != nil && !SameShape(mask.shape, f.shape) {
			return nil, fmt.Errorf("tensor: voiced mask feature %d shape %v does not match %v", i, f.shape, mask.shape)
		}

		voiced := f.Map(func(v float32) float32 {
			if v != 0 {
				return 1
			}

			return 0
		})

		if mask == nil {
			mask = voiced
			continue
		}

		var err error

		mask, err = BroadcastMul(mask, voiced)
		if err != nil {
			return nil, err
		}
	}

	return mask, nil
}

// Int64s returns the tensor values as integers. Every value must be integral.
func (t *Tensor) Int64s() ([]int64, error) {
	if t == nil {
		return nil, errors.New("tensor: int64s on nil tensor")
	}

	out := make([]int64, len(t.data))
	for i, v := range t.data {
		if !isIntegral(v) {
			return nil, fmt.Errorf("tensor: value %d (%v) is not integral", i, v)
		}

		out[i] = int64(v)
	}

	return out, nil
}

// FromInt64s builds a float32 tensor holding integer values.
func FromInt64s(values []int64, shape []int64) (*Tensor, error) {
	data := make([]float32, len(values))
	for i, v := range values {
		data[i] = float32(v)
	}

	total, err := shapeElemCount(shape)
	if err != nil {
		return nil, err
	}

	if total != len(data) {
		return nil, fmt.Errorf("tensor: %d values do not match shape %v (%d elements)", len(data), shape, total)
	}

	return newOwned(data, append([]int64(nil), shape...)), nil
}
