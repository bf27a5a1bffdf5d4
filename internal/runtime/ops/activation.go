package ops

import (
	"fmt"
	"math"
)

// Activation is the nonlinearity applied by an Elman RNN cell.
type Activation string

const (
	ActivationTanh Activation = "tanh"
	ActivationReLU Activation = "relu"
)

func (a Activation) fn() (func(float32) float32, error) {
	switch a {
	case ActivationTanh, "":
		return tanh, nil
	case ActivationReLU:
		return relu, nil
	default:
		return nil, fmt.Errorf("ops: unknown activation %q", string(a))
	}
}

func sigmoid(x float32) float32 {
	return float32(1 / (1 + math.Exp(float64(-x))))
}

func tanh(x float32) float32 {
	return float32(math.Tanh(float64(x)))
}

func relu(x float32) float32 {
	if x < 0 {
		return 0
	}

	return x
}
