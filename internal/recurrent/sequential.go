package recurrent

import (
	"errors"
	"fmt"

	"github.com/example/go-ttstrain/internal/runtime/tensor"
)

// Module is a stateless stage applied to the whole padded batch.
type Module interface {
	Forward(x *tensor.Tensor) (*tensor.Tensor, error)
}

// ModuleFunc adapts a plain function to Module.
type ModuleFunc func(x *tensor.Tensor) (*tensor.Tensor, error)

func (f ModuleFunc) Forward(x *tensor.Tensor) (*tensor.Tensor, error) { return f(x) }

// Projection is a linear Module over the last dimension.
type Projection struct {
	Weight *tensor.Tensor
	Bias   *tensor.Tensor
}

func (p *Projection) Forward(x *tensor.Tensor) (*tensor.Tensor, error) {
	return tensor.Linear(x, p.Weight, p.Bias)
}

// Sequential chains Modules, Wrappers and bare Layers. Wrappers receive the
// sequence lengths; bare Layers run every row for the full padded length.
// Each recurrent stage receives the same initial state.
type Sequential struct {
	stages []any
}

// NewSequential accepts Module, *Wrapper or Layer stages.
func NewSequential(stages ...any) (*Sequential, error) {
	for i, s := range stages {
		switch s.(type) {
		case *Wrapper, Layer, Module:
		default:
			return nil, fmt.Errorf("recurrent: stage %d has unsupported type %T", i, s)
		}
	}

	return &Sequential{stages: stages}, nil
}

// Forward runs every stage in order. The returned state is the last
// stage's state when that stage is recurrent, nil otherwise.
func (s *Sequential) Forward(input *tensor.Tensor, hx *State, seqLen []int64) (*tensor.Tensor, *State, error) {
	if len(s.stages) == 0 {
		return nil, nil, errors.New("recurrent: empty sequential")
	}

	out := input

	var state *State

	for i, stage := range s.stages {
		var err error

		state = nil

		switch m := stage.(type) {
		case *Wrapper:
			out, state, err = m.Forward(out, hx, seqLen)
		case Layer:
			out, state, err = runPadded(m, out, hx)
		case Module:
			out, err = m.Forward(out)
		}

		if err != nil {
			return nil, nil, fmt.Errorf("recurrent: stage %d: %w", i, err)
		}
	}

	return out, state, nil
}

// runPadded runs a layer over [batch, steps, feat] treating every row as
// full length.
func runPadded(layer Layer, input *tensor.Tensor, hx *State) (*tensor.Tensor, *State, error) {
	shape := input.Shape()
	if len(shape) != 3 {
		return nil, nil, fmt.Errorf("recurrent: expected [batch, steps, feat] input, got shape %v", shape)
	}

	lengths := make([]int64, shape[0])
	for i := range lengths {
		lengths[i] = shape[1]
	}

	packed, err := Pack(input, lengths)
	if err != nil {
		return nil, nil, err
	}

	out, state, err := layer.Forward(packed, hx)
	if err != nil {
		return nil, nil, err
	}

	padded, err := out.Unpack()
	if err != nil {
		return nil, nil, err
	}

	return padded, state, nil
}
