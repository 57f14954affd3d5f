package nn

import (
	"fmt"

	"github.com/chewxy/math32"
	"github.com/pkg/errors"
)

// Optimizer interface defines the contract for all optimizers
type Optimizer interface {
	// Step applies the network's stored gradients to its weights
	Step(network *Network, learningRate float32)

	// Reset clears optimizer state (momentum, moments, step count)
	Reset()

	// Name returns the optimizer name
	Name() string
}

// NewOptimizer builds an optimizer from its configuration name ("SGD" or "Adam").
func NewOptimizer(name string, momentum, weightDecay float32) (Optimizer, error) {
	switch name {
	case "SGD", "sgd":
		return NewSGDOptimizerWithMomentum(momentum, 0, false).WithWeightDecay(weightDecay), nil
	case "Adam", "adam":
		return NewAdamOptimizer(0.9, 0.999, 1e-8, weightDecay), nil
	}
	return nil, errors.Wrapf(ErrUnknownOptim, "%q", name)
}

// ============================================================================
// SGD Optimizer (Stochastic Gradient Descent with optional momentum)
// ============================================================================

type SGDOptimizer struct {
	momentum    float32
	dampening   float32
	nesterov    bool
	weightDecay float32
	velocities  map[string][]float32 // Momentum buffers
}

func NewSGDOptimizer() *SGDOptimizer {
	return NewSGDOptimizerWithMomentum(0, 0, false)
}

func NewSGDOptimizerWithMomentum(momentum, dampening float32, nesterov bool) *SGDOptimizer {
	return &SGDOptimizer{
		momentum:   momentum,
		dampening:  dampening,
		nesterov:   nesterov,
		velocities: make(map[string][]float32),
	}
}

// WithWeightDecay sets the L2 penalty added to every gradient before the update
func (opt *SGDOptimizer) WithWeightDecay(wd float32) *SGDOptimizer {
	opt.weightDecay = wd
	return opt
}

func (opt *SGDOptimizer) Step(network *Network, learningRate float32) {
	for i := range network.Layers {
		layer := &network.Layers[i]

		if len(layer.Kernel) > 0 && len(network.kernelGradients[i]) == len(layer.Kernel) {
			opt.update(fmt.Sprintf("kernel_%d", i), layer.Kernel, network.kernelGradients[i], learningRate)
		}
		if len(layer.Bias) > 0 && len(network.biasGradients[i]) == len(layer.Bias) {
			opt.update(fmt.Sprintf("bias_%d", i), layer.Bias, network.biasGradients[i], learningRate)
		}
	}
}

func (opt *SGDOptimizer) update(key string, weights, grads []float32, learningRate float32) {
	if opt.momentum == 0 {
		for j := range weights {
			weights[j] -= learningRate * (grads[j] + opt.weightDecay*weights[j])
		}
		return
	}

	if opt.velocities[key] == nil {
		opt.velocities[key] = make([]float32, len(weights))
	}
	v := opt.velocities[key]

	// v = momentum * v + (1 - dampening) * grad
	// w = w - lr * v (or w - lr * (grad + momentum * v) for Nesterov)
	for j := range weights {
		grad := grads[j] + opt.weightDecay*weights[j]
		v[j] = opt.momentum*v[j] + (1-opt.dampening)*grad

		if opt.nesterov {
			weights[j] -= learningRate * (grad + opt.momentum*v[j])
		} else {
			weights[j] -= learningRate * v[j]
		}
	}
}

func (opt *SGDOptimizer) Reset() {
	opt.velocities = make(map[string][]float32)
}

func (opt *SGDOptimizer) Name() string {
	if opt.momentum > 0 {
		if opt.nesterov {
			return "SGD (Nesterov momentum)"
		}
		return "SGD (momentum)"
	}
	return "SGD"
}

// ============================================================================
// Adam Optimizer (L2 weight decay folded into the gradient)
// ============================================================================

type AdamOptimizer struct {
	beta1       float32
	beta2       float32
	epsilon     float32
	weightDecay float32
	step        int

	// First moment estimates (momentum)
	m map[string][]float32

	// Second moment estimates (variance)
	v map[string][]float32
}

func NewAdamOptimizer(beta1, beta2, epsilon, weightDecay float32) *AdamOptimizer {
	return &AdamOptimizer{
		beta1:       beta1,
		beta2:       beta2,
		epsilon:     epsilon,
		weightDecay: weightDecay,
		m:           make(map[string][]float32),
		v:           make(map[string][]float32),
	}
}

func (opt *AdamOptimizer) Step(network *Network, learningRate float32) {
	opt.step++

	biasCorrection1 := 1.0 - math32.Pow(opt.beta1, float32(opt.step))
	biasCorrection2 := 1.0 - math32.Pow(opt.beta2, float32(opt.step))

	for i := range network.Layers {
		layer := &network.Layers[i]

		if len(layer.Kernel) > 0 && len(network.kernelGradients[i]) == len(layer.Kernel) {
			opt.update(fmt.Sprintf("kernel_%d", i), layer.Kernel, network.kernelGradients[i], learningRate, biasCorrection1, biasCorrection2)
		}
		if len(layer.Bias) > 0 && len(network.biasGradients[i]) == len(layer.Bias) {
			opt.update(fmt.Sprintf("bias_%d", i), layer.Bias, network.biasGradients[i], learningRate, biasCorrection1, biasCorrection2)
		}
	}
}

func (opt *AdamOptimizer) update(key string, weights, grads []float32, learningRate, bc1, bc2 float32) {
	if opt.m[key] == nil {
		opt.m[key] = make([]float32, len(weights))
		opt.v[key] = make([]float32, len(weights))
	}
	m, v := opt.m[key], opt.v[key]

	for j := range weights {
		grad := grads[j] + opt.weightDecay*weights[j]

		m[j] = opt.beta1*m[j] + (1-opt.beta1)*grad
		v[j] = opt.beta2*v[j] + (1-opt.beta2)*grad*grad

		mHat := m[j] / bc1
		vHat := v[j] / bc2

		weights[j] -= learningRate * mHat / (math32.Sqrt(vHat) + opt.epsilon)
	}
}

func (opt *AdamOptimizer) Reset() {
	opt.step = 0
	opt.m = make(map[string][]float32)
	opt.v = make(map[string][]float32)
}

func (opt *AdamOptimizer) Name() string {
	return "Adam"
}
