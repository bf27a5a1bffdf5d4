// Package recurrent runs recurrent layers over batches of variable-length
// sequences. Batches are sorted by length, packed time-major so each step
// only touches rows that are still active, and restored to the caller's
// order afterwards.
package recurrent

import (
	"errors"
	"fmt"

	"github.com/example/go-ttstrain/internal/runtime/tensor"
)

// PackedSequence is a time-major packing of a batch sorted by descending
// length. Data is [sum(lengths), feat]; step t occupies BatchSizes[t]
// consecutive rows holding the first BatchSizes[t] sequences.
type PackedSequence struct {
	Data       *tensor.Tensor
	BatchSizes []int64
}

// Pack packs inputs [batch, steps, feat] whose rows have the given lengths.
// Lengths must be in descending order, at least 1 and at most steps.
func Pack(inputs *tensor.Tensor, lengths []int64) (*PackedSequence, error) {
	if inputs == nil {
		return nil, errors.New("recurrent: pack on nil inputs")
	}

	shape := inputs.Shape()
	if len(shape) != 3 {
		return nil, fmt.Errorf("recurrent: pack requires [batch, steps, feat] inputs, got shape %v", shape)
	}

	batch, steps, feat := shape[0], shape[1], shape[2]
	if int64(len(lengths)) != batch {
		return nil, fmt.Errorf("recurrent: got %d lengths for batch size %d", len(lengths), batch)
	}

	if batch == 0 {
		return nil, errors.New("recurrent: pack requires a non-empty batch")
	}

	for b, n := range lengths {
		if n < 1 || n > steps {
			return nil, fmt.Errorf("recurrent: length %d (%d) out of range [1, %d]", b, n, steps)
		}

		if b > 0 && n > lengths[b-1] {
			return nil, fmt.Errorf("recurrent: lengths must be sorted in descending order, got %v", lengths)
		}
	}

	maxLen := lengths[0]
	batchSizes := make([]int64, maxLen)

	var total int64

	for t := range maxLen {
		var n int64
		for n < batch && lengths[n] > t {
			n++
		}

		batchSizes[t] = n
		total += n
	}

	timeMajor, err := inputs.Transpose(0, 1)
	if err != nil {
		return nil, fmt.Errorf("recurrent: pack: %w", err)
	}

	src := timeMajor.RawData()
	data := make([]float32, 0, total*feat)

	for t, n := range batchSizes {
		base := int64(t) * batch * feat
		data = append(data, src[base:base+n*feat]...)
	}

	packed, err := tensor.New(data, []int64{total, feat})
	if err != nil {
		return nil, fmt.Errorf("recurrent: pack: %w", err)
	}

	return &PackedSequence{Data: packed, BatchSizes: batchSizes}, nil
}

// Batch returns the number of sequences in the pack.
func (p *PackedSequence) Batch() int64 {
	if p == nil || len(p.BatchSizes) == 0 {
		return 0
	}

	return p.BatchSizes[0]
}

// Lengths recovers the per-sequence lengths, in packed (descending) order.
func (p *PackedSequence) Lengths() []int64 {
	if p == nil {
		return nil
	}

	lengths := make([]int64, p.Batch())
	for _, n := range p.BatchSizes {
		for b := range n {
			lengths[b]++
		}
	}

	return lengths
}

// Step returns the rows of step t: [BatchSizes[t], feat].
func (p *PackedSequence) Step(t int) (*tensor.Tensor, error) {
	if t < 0 || t >= len(p.BatchSizes) {
		return nil, fmt.Errorf("recurrent: step %d out of range for %d steps", t, len(p.BatchSizes))
	}

	var offset int64
	for _, n := range p.BatchSizes[:t] {
		offset += n
	}

	return p.Data.Narrow(0, offset, p.BatchSizes[t])
}

// Unpack restores a zero-padded [batch, maxLen, feat] tensor.
func (p *PackedSequence) Unpack() (*tensor.Tensor, error) {
	if p == nil || p.Data == nil {
		return nil, errors.New("recurrent: unpack on empty packed sequence")
	}

	feat, err := p.Data.Dim(1)
	if err != nil {
		return nil, fmt.Errorf("recurrent: unpack: %w", err)
	}

	batch := p.Batch()
	steps := int64(len(p.BatchSizes))

	out, err := tensor.Zeros([]int64{batch, steps, feat})
	if err != nil {
		return nil, err
	}

	dst := out.RawData()
	src := p.Data.RawData()

	var row int64

	for t, n := range p.BatchSizes {
		for b := range n {
			off := (b*steps + int64(t)) * feat
			copy(dst[off:off+feat], src[row*feat:(row+1)*feat])
			row++
		}
	}

	return out, nil
}
