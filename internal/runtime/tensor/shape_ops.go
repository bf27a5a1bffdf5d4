package tensor

import (
	"errors"
	"fmt"
)

// Narrow slices the tensor along a single dimension.
func (t *Tensor) Narrow(dim int, start, length int64) (*Tensor, error) {
	if t == nil {
		return nil, errors.New("tensor: narrow on nil tensor")
	}

	dim, err := normalizeDim(dim, len(t.shape))
	if err != nil {
		return nil, fmt.Errorf("tensor: narrow: %w", err)
	}

	if start < 0 || length < 0 || start+length > t.shape[dim] {
		return nil, fmt.Errorf("tensor: narrow: range [%d:%d] out of bounds for dim %d size %d", start, start+length, dim, t.shape[dim])
	}

	outShape := append([]int64(nil), t.shape...)
	outShape[dim] = length

	out, err := Zeros(outShape)
	if err != nil {
		return nil, err
	}

	inner := innerSize(t.shape, dim)
	outer := outerSize(t.shape, dim)
	span := length * inner

	for o := range outer {
		src := o*t.shape[dim]*inner + start*inner
		copy(out.data[o*span:(o+1)*span], t.data[src:src+span])
	}

	return out, nil
}

// Gather selects indices along dim. The same index list applies to every
// position of the other dimensions.
func (t *Tensor) Gather(dim int, indices []int64) (*Tensor, error) {
	if t == nil {
		return nil, errors.New("tensor: gather on nil tensor")
	}

	if len(indices) == 0 {
		return nil, errors.New("tensor: gather requires at least one index")
	}

	dim, err := normalizeDim(dim, len(t.shape))
	if err != nil {
		return nil, fmt.Errorf("tensor: gather: %w", err)
	}

	for i, idx := range indices {
		if idx < 0 || idx >= t.shape[dim] {
			return nil, fmt.Errorf("tensor: gather index %d (%d) out of range for dim %d size %d", i, idx, dim, t.shape[dim])
		}
	}

	outShape := append([]int64(nil), t.shape...)
	outShape[dim] = int64(len(indices))

	out, err := Zeros(outShape)
	if err != nil {
		return nil, err
	}

	inner := innerSize(t.shape, dim)
	outer := outerSize(t.shape, dim)
	n := int64(len(indices))

	for o := range outer {
		for k, idx := range indices {
			src := (o*t.shape[dim] + idx) * inner
			dst := (o*n + int64(k)) * inner
			copy(out.data[dst:dst+inner], t.data[src:src+inner])
		}
	}

	return out, nil
}

// GatherBatch gathers along dim 1 of a rank >= 2 tensor using a separate
// index list per batch row: out[b, k, ...] = t[b, indices[b][k], ...].
// Every row must carry the same number of indices.
func (t *Tensor) GatherBatch(indices [][]int64) (*Tensor, error) {
	if t == nil {
		return nil, errors.New("tensor: gather batch on nil tensor")
	}

	if len(t.shape) < 2 {
		return nil, fmt.Errorf("tensor: gather batch requires rank >= 2, got %d", len(t.shape))
	}

	batch := t.shape[0]
	if int64(len(indices)) != batch {
		return nil, fmt.Errorf("tensor: gather batch got %d index rows for batch size %d", len(indices), batch)
	}

	width := 0
	if len(indices) > 0 {
		width = len(indices[0])
	}

	steps := t.shape[1]

	for b, row := range indices {
		if len(row) != width {
			return nil, fmt.Errorf("tensor: gather batch row %d has %d indices, want %d", b, len(row), width)
		}

		for k, idx := range row {
			if idx < 0 || idx >= steps {
				return nil, fmt.Errorf("tensor: gather batch index [%d][%d] (%d) out of range for dim 1 size %d", b, k, idx, steps)
			}
		}
	}

	outShape := append([]int64(nil), t.shape...)
	outShape[1] = int64(width)

	out, err := Zeros(outShape)
	if err != nil {
		return nil, err
	}

	inner := innerSize(t.shape, 1)
	w := int64(width)

	parallelFor(int(batch), getWorkers(), func(lo, hi int) {
		for b := lo; b < hi; b++ {
			srcBase := int64(b) * steps * inner
			dstBase := int64(b) * w * inner

			for k, idx := range indices[b] {
				src := srcBase + idx*inner
				dst := dstBase + int64(k)*inner
				copy(out.data[dst:dst+inner], t.data[src:src+inner])
			}
		}
	})

	return out, nil
}

// Transpose swaps dim1 and dim2.
func (t *Tensor) Transpose(dim1, dim2 int) (*Tensor, error) {
	if t == nil {
		return nil, errors.New("tensor: transpose on nil tensor")
	}

	rank := len(t.shape)

	d1, err := normalizeDim(dim1, rank)
	if err != nil {
		return nil, fmt.Errorf("tensor: transpose dim1: %w", err)
	}

	d2, err := normalizeDim(dim2, rank)
	if err != nil {
		return nil, fmt.Errorf("tensor: transpose dim2: %w", err)
	}

	if d1 == d2 {
		return t.Clone(), nil
	}

	outShape := append([]int64(nil), t.shape...)
	outShape[d1], outShape[d2] = outShape[d2], outShape[d1]

	out, err := Zeros(outShape)
	if err != nil {
		return nil, err
	}

	srcStrides := computeStrides(t.shape)
	outStrides := computeStrides(outShape)
	outCoord := make([]int64, rank)
	srcCoord := make([]int64, rank)

	for i := range out.data {
		linearToCoord(int64(i), outShape, outStrides, outCoord)
		copy(srcCoord, outCoord)
		srcCoord[d1], srcCoord[d2] = outCoord[d2], outCoord[d1]
		out.data[i] = t.data[coordToLinear(srcCoord, srcStrides)]
	}

	return out, nil
}

// Concat concatenates tensors along dim.
func Concat(tensors []*Tensor, dim int) (*Tensor, error) {
	if len(tensors) == 0 {
		return nil, errors.New("tensor: concat requires at least one tensor")
	}

	first := tensors[0]
	if first == nil {
		return nil, errors.New("tensor: concat tensor 0 is nil")
	}

	rank := len(first.shape)

	dim, err := normalizeDim(dim, rank)
	if err != nil {
		return nil, fmt.Errorf("tensor: concat: %w", err)
	}

	outShape := append([]int64(nil), first.shape...)
	outShape[dim] = 0

	for i, t := range tensors {
		if t == nil {
			return nil, fmt.Errorf("tensor: concat tensor %d is nil", i)
		}

		if len(t.shape) != rank {
			return nil, fmt.Errorf("tensor: concat tensor %d rank %d does not match rank %d", i, len(t.shape), rank)
		}

		for d := range rank {
			if d != dim && t.shape[d] != first.shape[d] {
				return nil, fmt.Errorf("tensor: concat tensor %d shape %v does not match base shape %v on dim %d", i, t.shape, first.shape, d)
			}
		}

		outShape[dim] += t.shape[dim]
	}

	out, err := Zeros(outShape)
	if err != nil {
		return nil, err
	}

	inner := innerSize(outShape, dim)
	outer := outerSize(outShape, dim)
	outDim := outShape[dim]

	for o := range outer {
		writePos := int64(0)

		for _, t := range tensors {
			span := t.shape[dim] * inner
			srcBase := o * span
			dstBase := o*outDim*inner + writePos
			copy(out.data[dstBase:dstBase+span], t.data[srcBase:srcBase+span])
			writePos += span
		}
	}

	return out, nil
}
