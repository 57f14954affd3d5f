package nn

import (
	"github.com/chewxy/math32"
)

// activateCPU applies the activation function on CPU
func activateCPU(v float32, activation ActivationType) float32 {
	switch activation {
	case ActivationScaledReLU:
		v = v * 1.1
		if v < 0 {
			v = 0
		}
		return v
	case ActivationSigmoid:
		return 1.0 / (1.0 + math32.Exp(-v))
	case ActivationTanh:
		return math32.Tanh(v)
	case ActivationSoftplus:
		return math32.Log(1.0 + math32.Exp(v))
	case ActivationLeakyReLU:
		if v < 0 {
			v = v * 0.1
		}
		return v
	case ActivationReLU:
		if v < 0 {
			return 0
		}
		return v
	default:
		return v
	}
}

// activateDerivativeCPU computes the derivative of the activation function
// with respect to the PRE-activation value
func activateDerivativeCPU(preActivation float32, activation ActivationType) float32 {
	switch activation {
	case ActivationScaledReLU:
		if preActivation > 0 {
			return 1.1
		}
		return 0
	case ActivationSigmoid:
		sig := 1.0 / (1.0 + math32.Exp(-preActivation))
		return sig * (1.0 - sig)
	case ActivationTanh:
		t := math32.Tanh(preActivation)
		return 1.0 - t*t
	case ActivationSoftplus:
		// d/dv log(1 + e^v) = sigmoid(v)
		return 1.0 / (1.0 + math32.Exp(-preActivation))
	case ActivationLeakyReLU:
		if preActivation >= 0 {
			return 1.0
		}
		return 0.1
	case ActivationReLU:
		if preActivation > 0 {
			return 1.0
		}
		return 0
	default:
		return 1.0
	}
}
