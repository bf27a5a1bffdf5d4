package recurrent

import (
	"errors"
	"fmt"
	"slices"
	"sort"

	"github.com/example/go-ttstrain/internal/runtime/tensor"
)

// Wrapper runs a Layer over a padded batch in arbitrary order: it sorts by
// length, packs, runs the layer and restores the caller's row order on both
// the outputs and the returned state.
type Wrapper struct {
	Layer Layer
}

// NewWrapper wraps layer for padded, unsorted batches.
func NewWrapper(layer Layer) *Wrapper {
	return &Wrapper{Layer: layer}
}

// Forward takes inputs [batch, steps, feat] with per-row lengths and an
// optional initial state in caller order. Outputs are
// [batch, max(seqLen), hidden], zero past each row's length.
func (w *Wrapper) Forward(inputs *tensor.Tensor, hx *State, seqLen []int64) (*tensor.Tensor, *State, error) {
	if w == nil || w.Layer == nil {
		return nil, nil, errors.New("recurrent: wrapper has no layer")
	}

	if inputs == nil {
		return nil, nil, errors.New("recurrent: wrapper on nil inputs")
	}

	batch, err := inputs.Dim(0)
	if err != nil {
		return nil, nil, fmt.Errorf("recurrent: wrapper: %w", err)
	}

	if int64(len(seqLen)) != batch {
		return nil, nil, fmt.Errorf("recurrent: got %d lengths for batch size %d", len(seqLen), batch)
	}

	for b, n := range seqLen {
		if n <= 0 {
			return nil, nil, fmt.Errorf("recurrent: sequence %d has non-positive length %d", b, n)
		}
	}

	order := sortDescending(seqLen)
	restore := invert(order)

	sortedInputs, err := inputs.Gather(0, order)
	if err != nil {
		return nil, nil, fmt.Errorf("recurrent: wrapper: %w", err)
	}

	sortedLens := make([]int64, len(order))
	for i, b := range order {
		sortedLens[i] = seqLen[b]
	}

	packed, err := Pack(sortedInputs, sortedLens)
	if err != nil {
		return nil, nil, err
	}

	sortedHx, err := w.permuteState(hx, order)
	if err != nil {
		return nil, nil, err
	}

	out, state, err := w.Layer.Forward(packed, sortedHx)
	if err != nil {
		return nil, nil, err
	}

	if got := out.Lengths(); !slices.Equal(got, sortedLens) {
		return nil, nil, fmt.Errorf("recurrent: layer returned sequence lengths %v, want %v", got, sortedLens)
	}

	padded, err := out.Unpack()
	if err != nil {
		return nil, nil, err
	}

	outputs, err := padded.Gather(0, restore)
	if err != nil {
		return nil, nil, fmt.Errorf("recurrent: wrapper: %w", err)
	}

	state, err = w.permuteState(state, restore)
	if err != nil {
		return nil, nil, err
	}

	return outputs, state, nil
}

// permuteState reorders the batch dimension (dim 1) of H and, for LSTM, C.
func (w *Wrapper) permuteState(s *State, order []int64) (*State, error) {
	if s == nil || s.H == nil {
		return s, nil
	}

	if w.Layer.Mode() == ModeLSTM && s.C == nil {
		return nil, errors.New("recurrent: lstm state requires both h and c")
	}

	h, err := s.H.Gather(1, order)
	if err != nil {
		return nil, fmt.Errorf("recurrent: permute hidden state: %w", err)
	}

	out := &State{H: h}

	if w.Layer.Mode() == ModeLSTM {
		if out.C, err = s.C.Gather(1, order); err != nil {
			return nil, fmt.Errorf("recurrent: permute cell state: %w", err)
		}
	}

	return out, nil
}

// sortDescending returns the indices that order lengths from longest to
// shortest. Ties keep their original order.
func sortDescending(lengths []int64) []int64 {
	order := make([]int64, len(lengths))
	for i := range order {
		order[i] = int64(i)
	}

	sort.SliceStable(order, func(a, b int) bool {
		return lengths[order[a]] > lengths[order[b]]
	})

	return order
}

func invert(order []int64) []int64 {
	inv := make([]int64, len(order))
	for i, j := range order {
		inv[j] = int64(i)
	}

	return inv
}
