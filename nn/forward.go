package nn

import (
	"time"
)

// Forward runs a batch through the network and returns the flattened outputs
// [batchSize * OutputSize()]. Activations are retained for BackwardCPU.
func (n *Network) Forward(input []float32, batchSize int) ([]float32, error) {
	if batchSize < 1 {
		return nil, ErrBatchSize
	}
	if len(input) != batchSize*n.InputSize {
		return nil, &ShapeError{Layer: -1, Expected: batchSize * n.InputSize, Got: len(input)}
	}
	n.BatchSize = batchSize
	output, _ := n.ForwardCPU(input)
	return output, nil
}

// ForwardCPU executes the network on CPU and stores intermediate activations for backprop
func (n *Network) ForwardCPU(input []float32) ([]float32, time.Duration) {
	start := time.Now()

	n.activations[0] = make([]float32, len(input))
	copy(n.activations[0], input)

	data := input
	for layerIdx := range n.Layers {
		config := &n.Layers[layerIdx]

		var preAct, postAct []float32
		if config.Type == LayerConv2D {
			preAct, postAct = conv2DForwardCPU(data, config, n.BatchSize)
		} else {
			preAct, postAct = denseForwardCPU(data, config, n.BatchSize)
		}

		n.preActivations[layerIdx] = preAct
		n.activations[layerIdx+1] = postAct
		data = postAct
	}

	return data, time.Since(start)
}
