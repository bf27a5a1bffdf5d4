package recurrent

import (
	"errors"
	"fmt"
	"math"
	"math/rand/v2"
	"strconv"

	"github.com/example/go-ttstrain/internal/params"
	"github.com/example/go-ttstrain/internal/runtime/ops"
	"github.com/example/go-ttstrain/internal/runtime/tensor"
)

// Mode selects the recurrent cell.
type Mode string

const (
	ModeRNNTanh Mode = "RNN_TANH"
	ModeRNNReLU Mode = "RNN_RELU"
	ModeGRU     Mode = "GRU"
	ModeLSTM    Mode = "LSTM"
)

// ParseMode accepts the canonical names plus the lowercase short forms
// "rnn", "rnn_relu", "gru" and "lstm".
func ParseMode(s string) (Mode, error) {
	switch s {
	case "RNN_TANH", "rnn", "rnn_tanh", "tanh":
		return ModeRNNTanh, nil
	case "RNN_RELU", "rnn_relu", "relu":
		return ModeRNNReLU, nil
	case "GRU", "gru":
		return ModeGRU, nil
	case "LSTM", "lstm":
		return ModeLSTM, nil
	default:
		return "", fmt.Errorf("recurrent: unknown mode %q", s)
	}
}

func (m Mode) gates() (int, error) {
	switch m {
	case ModeRNNTanh, ModeRNNReLU:
		return ops.RNNGates, nil
	case ModeGRU:
		return ops.GRUGates, nil
	case ModeLSTM:
		return ops.LSTMGates, nil
	default:
		return 0, fmt.Errorf("recurrent: unknown mode %q", m)
	}
}

// State is the recurrent state carried between calls. H (and C for LSTM)
// are [numLayers, batch, hidden]; C is nil for other modes.
type State struct {
	H *tensor.Tensor
	C *tensor.Tensor
}

// Layer is a stack of recurrent cells run over a packed batch.
type Layer interface {
	Mode() Mode
	Forward(packed *PackedSequence, hx *State) (*PackedSequence, *State, error)
}

// Config describes a recurrent layer stack.
type Config struct {
	Mode       Mode
	InputSize  int64
	HiddenSize int64
	NumLayers  int
	Bias       bool
}

func (c Config) validate() error {
	if _, err := c.Mode.gates(); err != nil {
		return err
	}

	if c.InputSize <= 0 || c.HiddenSize <= 0 {
		return fmt.Errorf("recurrent: input size %d and hidden size %d must be positive", c.InputSize, c.HiddenSize)
	}

	if c.NumLayers < 1 {
		return fmt.Errorf("recurrent: num layers must be at least 1, got %d", c.NumLayers)
	}

	return nil
}

// Recurrent is the Layer implementation for every Mode. Weights follow the
// weight_ih_l{k} / weight_hh_l{k} / bias_ih_l{k} / bias_hh_l{k} naming.
type Recurrent struct {
	cfg    Config
	layers []ops.CellWeights
	params *params.Set
}

// New builds a layer stack with weights drawn from U(-1/sqrt(hidden),
// 1/sqrt(hidden)).
func New(cfg Config, rng *rand.Rand) (*Recurrent, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}

	if rng == nil {
		return nil, errors.New("recurrent: nil random source")
	}

	gates, _ := cfg.Mode.gates()
	bound := 1 / math.Sqrt(float64(cfg.HiddenSize))
	rows := int64(gates) * cfg.HiddenSize

	uniform := func(shape ...int64) *tensor.Tensor {
		n := int64(1)
		for _, d := range shape {
			n *= d
		}

		data := make([]float32, n)
		for i := range data {
			data[i] = float32((rng.Float64()*2 - 1) * bound)
		}

		t, _ := tensor.New(data, shape)

		return t
	}

	set := params.NewSet()

	for k := range cfg.NumLayers {
		in := cfg.InputSize
		if k > 0 {
			in = cfg.HiddenSize
		}

		suffix := "_l" + strconv.Itoa(k)
		if err := set.Add("weight_ih"+suffix, uniform(rows, in), true); err != nil {
			return nil, err
		}

		if err := set.Add("weight_hh"+suffix, uniform(rows, cfg.HiddenSize), true); err != nil {
			return nil, err
		}

		if !cfg.Bias {
			continue
		}

		if err := set.Add("bias_ih"+suffix, uniform(rows), true); err != nil {
			return nil, err
		}

		if err := set.Add("bias_hh"+suffix, uniform(rows), true); err != nil {
			return nil, err
		}
	}

	return Load(set.Path(), cfg)
}

// Load binds a layer stack to weights already present under v. Bias tensors
// must be present exactly when cfg.Bias is set.
func Load(v params.View, cfg Config) (*Recurrent, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}

	gates, _ := cfg.Mode.gates()
	rows := int64(gates) * cfg.HiddenSize
	r := &Recurrent{cfg: cfg, params: params.NewSet()}

	for k := range cfg.NumLayers {
		in := cfg.InputSize
		if k > 0 {
			in = cfg.HiddenSize
		}

		suffix := "_l" + strconv.Itoa(k)

		var (
			w   ops.CellWeights
			err error
		)

		if w.WeightIH, err = v.Tensor("weight_ih"+suffix, rows, in); err != nil {
			return nil, fmt.Errorf("recurrent: layer %d: %w", k, err)
		}

		if w.WeightHH, err = v.Tensor("weight_hh"+suffix, rows, cfg.HiddenSize); err != nil {
			return nil, fmt.Errorf("recurrent: layer %d: %w", k, err)
		}

		for _, b := range []struct {
			name string
			dst  **tensor.Tensor
		}{
			{"bias_ih" + suffix, &w.BiasIH},
			{"bias_hh" + suffix, &w.BiasHH},
		} {
			t, ok, err := v.TensorMaybe(b.name, rows)
			if err != nil {
				return nil, fmt.Errorf("recurrent: layer %d: %w", k, err)
			}

			switch {
			case ok && !cfg.Bias:
				return nil, fmt.Errorf("recurrent: layer %d: found %s but bias is disabled", k, b.name)
			case !ok && cfg.Bias:
				return nil, fmt.Errorf("recurrent: layer %d: bias enabled but %s is missing", k, b.name)
			}

			*b.dst = t
		}

		named := []params.Param{
			{Name: "weight_ih" + suffix, Value: w.WeightIH},
			{Name: "weight_hh" + suffix, Value: w.WeightHH},
			{Name: "bias_ih" + suffix, Value: w.BiasIH},
			{Name: "bias_hh" + suffix, Value: w.BiasHH},
		}
		for _, p := range named {
			if p.Value == nil {
				continue
			}

			if err := r.params.Add(p.Name, p.Value, true); err != nil {
				return nil, err
			}
		}

		r.layers = append(r.layers, w)
	}

	return r, nil
}

// Mode reports the cell type of every layer in the stack.
func (r *Recurrent) Mode() Mode { return r.cfg.Mode }

// Config returns the configuration the stack was built or loaded with.
func (r *Recurrent) Config() Config { return r.cfg }

// NamedParameters exposes the layer weights, sharing storage.
func (r *Recurrent) NamedParameters() []params.Param {
	return r.params.NamedParameters()
}

// Forward runs every layer over the packed batch. A nil hx starts from zero
// state. The returned state holds, per sequence, the state after its last
// valid step.
func (r *Recurrent) Forward(packed *PackedSequence, hx *State) (*PackedSequence, *State, error) {
	if packed == nil || packed.Data == nil || len(packed.BatchSizes) == 0 {
		return nil, nil, errors.New("recurrent: forward on empty packed sequence")
	}

	if feat, _ := packed.Data.Dim(1); feat != r.cfg.InputSize {
		return nil, nil, fmt.Errorf("recurrent: input feature size %d, want %d", feat, r.cfg.InputSize)
	}

	batch := packed.Batch()
	hidden := r.cfg.HiddenSize
	lstm := r.cfg.Mode == ModeLSTM

	h0, err := r.initialState(hx, batch, false)
	if err != nil {
		return nil, nil, err
	}

	var c0 *tensor.Tensor
	if lstm {
		if c0, err = r.initialState(hx, batch, true); err != nil {
			return nil, nil, err
		}
	}

	hFinal := make([]float32, 0, int64(len(r.layers))*batch*hidden)

	var cFinal []float32

	input := packed

	for k, w := range r.layers {
		h := layerSlice(h0, k, batch, hidden)

		var c []float32
		if lstm {
			c = layerSlice(c0, k, batch, hidden)
		}

		out, err := r.runLayer(input, w, h, c)
		if err != nil {
			return nil, nil, fmt.Errorf("recurrent: layer %d: %w", k, err)
		}

		hFinal = append(hFinal, h...)
		cFinal = append(cFinal, c...)
		input = out
	}

	stateShape := []int64{int64(len(r.layers)), batch, hidden}

	state := &State{}
	if state.H, err = tensor.New(hFinal, stateShape); err != nil {
		return nil, nil, err
	}

	if lstm {
		if state.C, err = tensor.New(cFinal, stateShape); err != nil {
			return nil, nil, err
		}
	}

	return input, state, nil
}

// runLayer steps one layer through time, updating h (and c) in place.
// Rows past BatchSizes[t] keep the state of their final step.
func (r *Recurrent) runLayer(in *PackedSequence, w ops.CellWeights, h, c []float32) (*PackedSequence, error) {
	hidden := r.cfg.HiddenSize
	rows, _ := in.Data.Dim(0)
	out := make([]float32, 0, rows*hidden)

	for t, n := range in.BatchSizes {
		x, err := in.Step(t)
		if err != nil {
			return nil, err
		}

		hPrev, err := tensor.New(h[:n*hidden], []int64{n, hidden})
		if err != nil {
			return nil, err
		}

		var hNext, cNext *tensor.Tensor

		switch r.cfg.Mode {
		case ModeRNNTanh:
			hNext, err = ops.RNNCell(x, hPrev, w, ops.ActivationTanh)
		case ModeRNNReLU:
			hNext, err = ops.RNNCell(x, hPrev, w, ops.ActivationReLU)
		case ModeGRU:
			hNext, err = ops.GRUCell(x, hPrev, w)
		case ModeLSTM:
			var cPrev *tensor.Tensor

			cPrev, err = tensor.New(c[:n*hidden], []int64{n, hidden})
			if err == nil {
				hNext, cNext, err = ops.LSTMCell(x, hPrev, cPrev, w)
			}
		}

		if err != nil {
			return nil, fmt.Errorf("step %d: %w", t, err)
		}

		copy(h, hNext.RawData())

		if cNext != nil {
			copy(c, cNext.RawData())
		}

		out = append(out, hNext.RawData()...)
	}

	data, err := tensor.New(out, []int64{rows, hidden})
	if err != nil {
		return nil, err
	}

	return &PackedSequence{Data: data, BatchSizes: in.BatchSizes}, nil
}

func (r *Recurrent) initialState(hx *State, batch int64, cell bool) (*tensor.Tensor, error) {
	want := []int64{int64(len(r.layers)), batch, r.cfg.HiddenSize}

	var src *tensor.Tensor
	if hx != nil {
		src = hx.H
		if cell {
			src = hx.C
		}
	}

	if src == nil {
		if hx != nil && hx.H != nil && cell {
			return nil, errors.New("recurrent: lstm initial state requires both h and c")
		}

		return tensor.Zeros(want)
	}

	if got := src.Shape(); !tensor.SameShape(got, want) {
		return nil, fmt.Errorf("recurrent: initial state shape %v, want %v", got, want)
	}

	return src.Clone(), nil
}

func layerSlice(state *tensor.Tensor, k int, batch, hidden int64) []float32 {
	size := batch * hidden
	off := int64(k) * size

	return state.RawData()[off : off+size]
}
