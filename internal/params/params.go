// Package params holds named model parameters: an ordered set of tensors
// addressed by dotted names ("encoder.rnn.weight_ih_l0"), with hierarchical
// views and safetensors persistence.
package params

import (
	"errors"
	"fmt"
	"strings"

	"github.com/example/go-ttstrain/internal/runtime/tensor"
	"github.com/example/go-ttstrain/internal/safetensors"
)

// Param is one named parameter. Value is shared, not copied.
type Param struct {
	Name      string
	Value     *tensor.Tensor
	Trainable bool
}

// Named is implemented by models that expose their parameters by name.
type Named interface {
	NamedParameters() []Param
}

// Set is an insertion-ordered collection of named parameters.
type Set struct {
	names   []string
	entries map[string]Param
}

func NewSet() *Set {
	return &Set{entries: make(map[string]Param)}
}

// Add registers t under name. Names must be unique and non-empty.
func (s *Set) Add(name string, t *tensor.Tensor, trainable bool) error {
	name = strings.TrimSpace(name)
	if name == "" {
		return errors.New("params: parameter name must not be empty")
	}

	if t == nil {
		return fmt.Errorf("params: parameter %q is nil", name)
	}

	if _, exists := s.entries[name]; exists {
		return fmt.Errorf("params: duplicate parameter %q", name)
	}

	s.entries[name] = Param{Name: name, Value: t, Trainable: trainable}
	s.names = append(s.names, name)

	return nil
}

// AddAll registers every parameter of m under prefix.
func (s *Set) AddAll(prefix string, m Named) error {
	for _, p := range m.NamedParameters() {
		if err := s.Add(join(prefix, p.Name), p.Value, p.Trainable); err != nil {
			return err
		}
	}

	return nil
}

func (s *Set) Has(name string) bool {
	_, ok := s.entries[name]
	return ok
}

// Get returns the parameter tensor stored under name.
func (s *Set) Get(name string) (*tensor.Tensor, bool) {
	p, ok := s.entries[name]
	return p.Value, ok
}

func (s *Set) Names() []string {
	return append([]string(nil), s.names...)
}

func (s *Set) Len() int {
	return len(s.names)
}

// NamedParameters implements Named in insertion order.
func (s *Set) NamedParameters() []Param {
	out := make([]Param, 0, len(s.names))
	for _, name := range s.names {
		out = append(out, s.entries[name])
	}

	return out
}

// Tensors returns the parameters keyed by name, sharing storage.
func (s *Set) Tensors() map[string]*tensor.Tensor {
	out := make(map[string]*tensor.Tensor, len(s.names))
	for _, name := range s.names {
		out[name] = s.entries[name].Value
	}

	return out
}

// Clone deep-copies every parameter tensor.
func (s *Set) Clone() *Set {
	out := NewSet()
	for _, name := range s.names {
		p := s.entries[name]
		out.names = append(out.names, name)
		out.entries[name] = Param{Name: name, Value: p.Value.Clone(), Trainable: p.Trainable}
	}

	return out
}

// Path returns a view rooted at the dotted prefix formed by parts.
func (s *Set) Path(parts ...string) View {
	return View{set: s}.Path(parts...)
}

// Load reads every tensor of a safetensors file into a new Set. All loaded
// parameters are trainable.
func Load(path string, opts safetensors.StoreOptions) (*Set, error) {
	st, err := safetensors.OpenStore(path, opts)
	if err != nil {
		return nil, err
	}
	defer st.Close()

	set := NewSet()

	for _, name := range st.Names() {
		t, err := st.Tensor(name)
		if err != nil {
			return nil, err
		}

		if err := set.Add(name, t, true); err != nil {
			return nil, err
		}
	}

	return set, nil
}

// Save writes every parameter of m into a safetensors file.
func Save(path string, m Named) error {
	tensors := make(map[string]*tensor.Tensor)
	for _, p := range m.NamedParameters() {
		if _, dup := tensors[p.Name]; dup {
			return fmt.Errorf("params: save %s: duplicate parameter %q", path, p.Name)
		}

		tensors[p.Name] = p.Value
	}

	if err := safetensors.SaveTensors(path, tensors); err != nil {
		return fmt.Errorf("params: save %s: %w", path, err)
	}

	return nil
}

func join(prefix, name string) string {
	prefix = strings.TrimSpace(prefix)
	name = strings.TrimSpace(name)

	switch {
	case prefix == "":
		return name
	case name == "":
		return prefix
	default:
		return prefix + "." + name
	}
}
