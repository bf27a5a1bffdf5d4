package tensor

import (
	"errors"
	"fmt"
)

// RepeatIndices expands per-step repetition counts into gather indices.
// Row b repeats step index t exactly repeats[b][t] times, in order, and is
// then padded with sentinel up to the longest expanded row. It returns the
// padded index rows and the expanded length of every row.
func RepeatIndices(repeats [][]int64, sentinel int64) ([][]int64, []int64, error) {
	lengths := make([]int64, len(repeats))
	longest := int64(0)

	for b, row := range repeats {
		var n int64

		for t, r := range row {
			if r < 0 {
				return nil, nil, fmt.Errorf("tensor: repeat count [%d][%d] (%d) is negative", b, t, r)
			}

			n += r
		}

		lengths[b] = n
		longest = max(longest, n)
	}

	out := make([][]int64, len(repeats))

	parallelFor(len(repeats), getWorkers(), func(lo, hi int) {
		for b := lo; b < hi; b++ {
			idx := make([]int64, longest)
			pos := 0

			for t, r := range repeats[b] {
				for range r {
					idx[pos] = int64(t)
					pos++
				}
			}

			for ; pos < len(idx); pos++ {
				idx[pos] = sentinel
			}

			out[b] = idx
		}
	})

	return out, lengths, nil
}

// UpsampleToRepetitions copies every step of seq [batch, steps, feat]
// repeats[b, t] times, producing [batch, max_b sum_t repeats[b, t], feat].
// Rows shorter than the longest are zero-padded. repeats is [batch, steps]
// or [batch, steps, 1] and must hold non-negative integral counts.
//
// Padding is a regular gather: seq gets one zero step appended and padding
// positions index that step.
func UpsampleToRepetitions(seq, repeats *Tensor) (*Tensor, error) {
	if seq == nil || repeats == nil {
		return nil, errors.New("tensor: upsample requires non-nil sequence and repeats")
	}

	if seq.Rank() != 3 {
		return nil, fmt.Errorf("tensor: upsample sequence must be rank 3 [batch, steps, feat], got shape %v", seq.shape)
	}

	if repeats.Rank() == 3 {
		var err error

		repeats, err = repeats.Squeeze(2)
		if err != nil {
			return nil, fmt.Errorf("tensor: upsample repeats: %w", err)
		}
	}

	if repeats.Rank() != 2 {
		return nil, fmt.Errorf("tensor: upsample repeats must be [batch, steps] or [batch, steps, 1], got shape %v", repeats.shape)
	}

	batch, steps, feat := seq.shape[0], seq.shape[1], seq.shape[2]
	if repeats.shape[0] != batch || repeats.shape[1] != steps {
		return nil, fmt.Errorf("tensor: upsample repeats shape %v does not match sequence batch/steps [%d %d]", repeats.shape, batch, steps)
	}

	counts, err := repeats.Int64s()
	if err != nil {
		return nil, fmt.Errorf("tensor: upsample repeats: %w", err)
	}

	rows := make([][]int64, batch)
	for b := range rows {
		rows[b] = counts[int64(b)*steps : int64(b+1)*steps]
	}

	indices, _, err := RepeatIndices(rows, steps)
	if err != nil {
		return nil, err
	}

	width := int64(0)
	if len(indices) > 0 {
		width = int64(len(indices[0]))
	}

	if width == 0 {
		return Zeros([]int64{batch, 0, feat})
	}

	padder, err := Zeros([]int64{batch, 1, feat})
	if err != nil {
		return nil, err
	}

	padded, err := Concat([]*Tensor{seq, padder}, 1)
	if err != nil {
		return nil, fmt.Errorf("tensor: upsample: %w", err)
	}

	return padded.GatherBatch(indices)
}
