// Package train holds training-time helpers that operate on named model
// parameters.
package train

import (
	"errors"
	"fmt"
	"log/slog"

	"github.com/example/go-ttstrain/internal/params"
	"github.com/example/go-ttstrain/internal/runtime/tensor"
	"github.com/example/go-ttstrain/internal/safetensors"
)

// ErrSameModel is returned when UpdateParams is given the averaged model
// itself.
var ErrSameModel = errors.New("ema: cannot update from the averaged model itself")

// EMA maintains an exponential moving average of a model's parameters.
// The shadow tensors alias the averaged model's trainable parameters, so
// updates are visible through that model. The averaged model must be a
// separate copy from the one being trained.
//
// EMA is not safe for concurrent use.
type EMA struct {
	decay   float32
	names   []string
	shadow  map[string]*tensor.Tensor
	updates int
	scratch []float32
}

// NewEMA links every trainable parameter of model. Decay must lie in [0, 1].
func NewEMA(model params.Named, decay float32) (*EMA, error) {
	if model == nil {
		return nil, errors.New("ema: nil model")
	}

	if decay < 0 || decay > 1 {
		return nil, fmt.Errorf("ema: decay %v out of range [0, 1]", decay)
	}

	e := &EMA{decay: decay, shadow: make(map[string]*tensor.Tensor)}

	for _, p := range model.NamedParameters() {
		if !p.Trainable {
			continue
		}

		if _, dup := e.shadow[p.Name]; dup {
			return nil, fmt.Errorf("ema: duplicate parameter %q", p.Name)
		}

		e.shadow[p.Name] = p.Value
		e.names = append(e.names, p.Name)
	}

	return e, nil
}

// LoadEMA restores averaged parameters from a safetensors file written by
// Save. The returned EMA owns the loaded tensors.
func LoadEMA(path string, decay float32) (*EMA, error) {
	set, err := params.Load(path, safetensors.StoreOptions{})
	if err != nil {
		return nil, fmt.Errorf("ema: load %s: %w", path, err)
	}

	return NewEMA(set, decay)
}

// Decay is the weight kept by the shadow on each update.
func (e *EMA) Decay() float32 { return e.decay }

// Updates reports how many UpdateParams calls have been applied.
func (e *EMA) Updates() int { return e.updates }

// Names lists the shadowed parameters in model order.
func (e *EMA) Names() []string {
	return append([]string(nil), e.names...)
}

// UpdateParams moves every shadowed parameter toward the parameter of the
// same name in other:
//
//	shadow -= (1 - decay) * (shadow - x)
//
// Names missing from the shadow are ignored. Shapes are checked for every
// matched name before any tensor is modified.
func (e *EMA) UpdateParams(other params.Named) error {
	if other == nil {
		return errors.New("ema: nil model")
	}

	type pair struct {
		shadow *tensor.Tensor
		x      *tensor.Tensor
	}

	var matched []pair

	for _, p := range other.NamedParameters() {
		s, ok := e.shadow[p.Name]
		if !ok {
			continue
		}

		if p.Value == s {
			return ErrSameModel
		}

		if p.Value == nil {
			return fmt.Errorf("ema: parameter %q is nil", p.Name)
		}

		if !tensor.SameShape(s.Shape(), p.Value.Shape()) {
			return fmt.Errorf("ema: parameter %q shape %v does not match shadow shape %v", p.Name, p.Value.Shape(), s.Shape())
		}

		matched = append(matched, pair{shadow: s, x: p.Value})
	}

	rate := 1 - e.decay

	for _, m := range matched {
		dst := m.shadow.RawData()
		if cap(e.scratch) < len(dst) {
			e.scratch = make([]float32, len(dst))
		}

		delta := e.scratch[:len(dst)]
		copy(delta, dst)
		tensor.Axpy(delta, -1, m.x.RawData())
		tensor.Axpy(dst, -rate, delta)
	}

	e.updates++
	slog.Debug("ema update", "params", len(matched), "updates", e.updates, "decay", e.decay)

	return nil
}

// Shadow returns a deep copy of the averaged parameters.
func (e *EMA) Shadow() *params.Set {
	set := params.NewSet()
	for _, name := range e.names {
		_ = set.Add(name, e.shadow[name].Clone(), true)
	}

	return set
}

// Save writes the averaged parameters to a safetensors file.
func (e *EMA) Save(path string) error {
	if err := params.Save(path, e.Shadow()); err != nil {
		return fmt.Errorf("ema: %w", err)
	}

	slog.Debug("ema saved", "path", path, "params", len(e.names))

	return nil
}
