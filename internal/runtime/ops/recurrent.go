package ops

import (
	"errors"
	"fmt"

	"github.com/example/go-ttstrain/internal/runtime/tensor"
)

// Gate counts of the stacked weight layouts.
const (
	RNNGates  = 1
	GRUGates  = 3 // r, z, n
	LSTMGates = 4 // i, f, g, o
)

// CellWeights holds one recurrent layer's weights with gates stacked along
// the output dimension: WeightIH [gates*hidden, in], WeightHH
// [gates*hidden, hidden]. Biases are [gates*hidden] and may be nil.
type CellWeights struct {
	WeightIH *tensor.Tensor
	WeightHH *tensor.Tensor
	BiasIH   *tensor.Tensor
	BiasHH   *tensor.Tensor
}

// HiddenSize validates the weight layout for the given gate count and
// returns the hidden size.
func (w CellWeights) HiddenSize(gates int) (int64, error) {
	if w.WeightIH == nil || w.WeightHH == nil {
		return 0, errors.New("ops: recurrent cell requires input and hidden weights")
	}

	hh := w.WeightHH.Shape()
	if len(hh) != 2 {
		return 0, fmt.Errorf("ops: hidden weight must be rank 2, got shape %v", hh)
	}

	hidden := hh[1]
	if hh[0] != int64(gates)*hidden {
		return 0, fmt.Errorf("ops: hidden weight shape %v does not hold %d gates of size %d", hh, gates, hidden)
	}

	ih := w.WeightIH.Shape()
	if len(ih) != 2 || ih[0] != hh[0] {
		return 0, fmt.Errorf("ops: input weight shape %v does not match hidden weight rows %d", ih, hh[0])
	}

	return hidden, nil
}

// InputSize returns the input feature size expected by the weights.
func (w CellWeights) InputSize() int64 {
	return w.WeightIH.Shape()[1]
}

// project computes x*W_ih^T + b_ih and h*W_hh^T + b_hh.
func (w CellWeights) project(x, h *tensor.Tensor, gates int) (gi, gh *tensor.Tensor, hidden int64, err error) {
	hidden, err = w.HiddenSize(gates)
	if err != nil {
		return nil, nil, 0, err
	}

	if x == nil || h == nil {
		return nil, nil, 0, errors.New("ops: recurrent cell requires non-nil input and state")
	}

	xs, hs := x.Shape(), h.Shape()
	if len(xs) != 2 || len(hs) != 2 || xs[0] != hs[0] || hs[1] != hidden {
		return nil, nil, 0, fmt.Errorf("ops: recurrent cell input %v / state %v do not form [N, in] / [N, %d]", xs, hs, hidden)
	}

	gi, err = tensor.Linear(x, w.WeightIH, w.BiasIH)
	if err != nil {
		return nil, nil, 0, fmt.Errorf("ops: input projection: %w", err)
	}

	gh, err = tensor.Linear(h, w.WeightHH, w.BiasHH)
	if err != nil {
		return nil, nil, 0, fmt.Errorf("ops: hidden projection: %w", err)
	}

	return gi, gh, hidden, nil
}

// RNNCell computes h' = act(x*W_ih^T + b_ih + h*W_hh^T + b_hh).
func RNNCell(x, h *tensor.Tensor, w CellWeights, act Activation) (*tensor.Tensor, error) {
	fn, err := act.fn()
	if err != nil {
		return nil, err
	}

	gi, gh, _, err := w.project(x, h, RNNGates)
	if err != nil {
		return nil, err
	}

	sum, err := tensor.BroadcastAdd(gi, gh)
	if err != nil {
		return nil, fmt.Errorf("ops: rnn cell: %w", err)
	}

	return sum.Map(fn), nil
}

// GRUCell computes one GRU step:
//
//	r = sigmoid(x_r + h_r)
//	z = sigmoid(x_z + h_z)
//	n = tanh(x_n + r*h_n)
//	h' = (1-z)*n + z*h
func GRUCell(x, h *tensor.Tensor, w CellWeights) (*tensor.Tensor, error) {
	gi, gh, hidden, err := w.project(x, h, GRUGates)
	if err != nil {
		return nil, err
	}

	rows := int(h.Shape()[0])
	hid := int(hidden)
	giData, ghData, hData := gi.RawData(), gh.RawData(), h.RawData()
	out := make([]float32, rows*hid)

	for n := range rows {
		base := n * GRUGates * hid

		for j := range hid {
			r := sigmoid(giData[base+j] + ghData[base+j])
			z := sigmoid(giData[base+hid+j] + ghData[base+hid+j])
			cand := tanh(giData[base+2*hid+j] + r*ghData[base+2*hid+j])
			prev := hData[n*hid+j]
			out[n*hid+j] = (1-z)*cand + z*prev
		}
	}

	return tensor.New(out, []int64{int64(rows), hidden})
}

// LSTMCell computes one LSTM step and returns the next hidden and cell state:
//
//	i, f, o = sigmoid(...), g = tanh(...)
//	c' = f*c + i*g
//	h' = o*tanh(c')
func LSTMCell(x, h, c *tensor.Tensor, w CellWeights) (*tensor.Tensor, *tensor.Tensor, error) {
	gi, gh, hidden, err := w.project(x, h, LSTMGates)
	if err != nil {
		return nil, nil, err
	}

	if c == nil {
		return nil, nil, errors.New("ops: lstm cell requires a cell state")
	}

	hShape := h.Shape()
	if cs := c.Shape(); len(cs) != 2 || cs[0] != hShape[0] || cs[1] != hidden {
		return nil, nil, fmt.Errorf("ops: lstm cell state shape %v does not match hidden shape %v", cs, hShape)
	}

	gates, err := tensor.BroadcastAdd(gi, gh)
	if err != nil {
		return nil, nil, fmt.Errorf("ops: lstm cell: %w", err)
	}

	rows := int(hShape[0])
	hid := int(hidden)
	g, cData := gates.RawData(), c.RawData()
	hOut := make([]float32, rows*hid)
	cOut := make([]float32, rows*hid)

	for n := range rows {
		base := n * LSTMGates * hid

		for j := range hid {
			in := sigmoid(g[base+j])
			forget := sigmoid(g[base+hid+j])
			cand := tanh(g[base+2*hid+j])
			outGate := sigmoid(g[base+3*hid+j])

			cell := forget*cData[n*hid+j] + in*cand
			cOut[n*hid+j] = cell
			hOut[n*hid+j] = outGate * tanh(cell)
		}
	}

	shape := []int64{int64(rows), hidden}

	hNext, err := tensor.New(hOut, shape)
	if err != nil {
		return nil, nil, err
	}

	cNext, err := tensor.New(cOut, shape)
	if err != nil {
		return nil, nil, err
	}

	return hNext, cNext, nil
}
