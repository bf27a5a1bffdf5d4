package params

import (
	"errors"
	"fmt"

	"github.com/example/go-ttstrain/internal/runtime/tensor"
)

// View is a prefixed window onto a Set, used by layers to look up their own
// weights by short names.
type View struct {
	set    *Set
	prefix string
}

func (v View) Path(parts ...string) View {
	prefix := v.prefix
	for _, part := range parts {
		prefix = join(prefix, part)
	}

	return View{set: v.set, prefix: prefix}
}

func (v View) Prefix() string {
	return v.prefix
}

func (v View) Has(name string) bool {
	if v.set == nil {
		return false
	}

	return v.set.Has(join(v.prefix, name))
}

// Tensor returns the parameter name under the view's prefix, optionally
// checking its shape.
func (v View) Tensor(name string, wantShape ...int64) (*tensor.Tensor, error) {
	if v.set == nil {
		return nil, errors.New("params: view has no backing set")
	}

	full := join(v.prefix, name)

	t, ok := v.set.Get(full)
	if !ok {
		return nil, fmt.Errorf("params: parameter %q not found", full)
	}

	if len(wantShape) > 0 && !tensor.SameShape(t.Shape(), wantShape) {
		return nil, fmt.Errorf("params: parameter %q shape %v does not match expected %v", full, t.Shape(), wantShape)
	}

	return t, nil
}

// TensorMaybe is Tensor for optional parameters such as biases.
func (v View) TensorMaybe(name string, wantShape ...int64) (*tensor.Tensor, bool, error) {
	if !v.Has(name) {
		return nil, false, nil
	}

	t, err := v.Tensor(name, wantShape...)
	if err != nil {
		return nil, true, err
	}

	return t, true, nil
}
