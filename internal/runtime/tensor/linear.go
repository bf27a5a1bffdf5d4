package tensor

import (
	"errors"
	"fmt"
)

// Linear applies y = x * W^T + b where weight shape is [out, in].
// bias may be nil.
func Linear(x, weight, bias *Tensor) (*Tensor, error) {
	if x == nil || weight == nil {
		return nil, errors.New("tensor: linear requires non-nil x and weight")
	}

	if x.Rank() < 1 {
		return nil, errors.New("tensor: linear requires x rank >= 1")
	}

	if weight.Rank() != 2 {
		return nil, fmt.Errorf("tensor: linear weight must be rank 2, got %d", weight.Rank())
	}

	in := x.shape[x.Rank()-1]
	out := weight.shape[0]

	if weight.shape[1] != in {
		return nil, fmt.Errorf("tensor: linear mismatch: x last dim %d, weight in dim %d", in, weight.shape[1])
	}

	if bias != nil && (bias.Rank() != 1 || bias.shape[0] != out) {
		return nil, fmt.Errorf("tensor: linear bias shape %v does not match out dim %d", bias.shape, out)
	}

	inI, outI := int(in), int(out)

	rows := 0
	if inI > 0 {
		rows = len(x.data) / inI
	}

	outData := make([]float32, rows*outI)
	wData := weight.data

	parallelFor(rows, getWorkers(), func(lo, hi int) {
		for r := lo; r < hi; r++ {
			xRow := x.data[r*inI : (r+1)*inI]
			yRow := outData[r*outI : (r+1)*outI]

			for o := range outI {
				sum := dotF32(xRow, wData[o*inI:(o+1)*inI])
				if bias != nil {
					sum += bias.data[o]
				}

				yRow[o] = sum
			}
		}
	})

	outShape := append([]int64(nil), x.shape...)
	outShape[len(outShape)-1] = out

	return newOwned(outData, outShape), nil
}
