package safetensors

import (
	"fmt"

	"github.com/example/go-ttstrain/internal/runtime/tensor"
)

// Tensor holds a single named float32 tensor read from or written to a
// safetensors file.
type Tensor struct {
	Name  string
	Shape []int64
	Data  []float32
}

// FromRuntime wraps a runtime tensor under name. Data is copied.
func FromRuntime(name string, t *tensor.Tensor) Tensor {
	return Tensor{Name: name, Shape: t.Shape(), Data: t.Data()}
}

// LoadTensors reads every tensor of a safetensors file as runtime tensors,
// keyed by name.
func LoadTensors(path string, opts StoreOptions) (map[string]*tensor.Tensor, error) {
	store, err := OpenStore(path, opts)
	if err != nil {
		return nil, err
	}
	defer store.Close()

	return runtimeTensors(store, store.Names())
}

// LoadNamed reads only the listed tensors. A missing name is an error that
// lists what the file holds.
func LoadNamed(path string, names ...string) (map[string]*tensor.Tensor, error) {
	store, err := OpenStore(path, StoreOptions{})
	if err != nil {
		return nil, err
	}
	defer store.Close()

	return runtimeTensors(store, names)
}

func runtimeTensors(store *Store, names []string) (map[string]*tensor.Tensor, error) {
	out := make(map[string]*tensor.Tensor, len(names))

	for _, name := range names {
		t, err := store.Tensor(name)
		if err != nil {
			return nil, err
		}

		out[name] = t
	}

	return out, nil
}

// SaveTensors writes runtime tensors keyed by name into a safetensors file.
func SaveTensors(path string, tensors map[string]*tensor.Tensor) error {
	list := make([]Tensor, 0, len(tensors))
	for name, t := range tensors {
		if t == nil {
			return fmt.Errorf("safetensors: tensor %q is nil", name)
		}

		list = append(list, FromRuntime(name, t))
	}

	return WriteFile(path, list)
}
