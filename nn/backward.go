package nn

import (
	"time"
)

// BackwardCPU computes gradients via backpropagation on CPU
// gradOutput: gradient flowing back from the loss (same size as network output)
// Returns: gradient with respect to the input
//
// Kernel and bias gradients are accumulated into the per-layer buffers, so
// ZeroGradients must run between independent batches.
func (n *Network) BackwardCPU(gradOutput []float32) ([]float32, time.Duration) {
	start := time.Now()

	if len(n.activations) == 0 || len(n.activations[0]) == 0 {
		// No forward pass has been done
		return make([]float32, len(gradOutput)), time.Since(start)
	}

	grad := make([]float32, len(gradOutput))
	copy(grad, gradOutput)

	for layerIdx := len(n.Layers) - 1; layerIdx >= 0; layerIdx-- {
		config := &n.Layers[layerIdx]
		input := n.activations[layerIdx]
		preAct := n.preActivations[layerIdx]

		var gradInput, gradKernel, gradBias []float32
		if config.Type == LayerConv2D {
			gradInput, gradKernel, gradBias = conv2DBackwardCPU(grad, input, preAct, config, n.BatchSize)
		} else {
			gradInput, gradKernel, gradBias = denseBackwardCPU(grad, input, preAct, config, n.BatchSize)
		}

		n.kernelGradients[layerIdx] = accumulate(n.kernelGradients[layerIdx], gradKernel)
		n.biasGradients[layerIdx] = accumulate(n.biasGradients[layerIdx], gradBias)

		grad = gradInput
	}

	return grad, time.Since(start)
}

func accumulate(dst, src []float32) []float32 {
	if len(dst) != len(src) {
		return src
	}
	for i := range src {
		dst[i] += src[i]
	}
	return dst
}
