package nn

import (
	"math"
	"math/rand"
)

// InitConv2DLayer initializes a Conv2D layer with He-normal kernels drawn from
// rng and zero biases. A nil rng uses the global source.
func InitConv2DLayer(
	inputHeight, inputWidth, inputChannels int,
	kernelSize, stride, padding, filters int,
	activation ActivationType,
	rng *rand.Rand,
) LayerConfig {
	outputHeight := (inputHeight+2*padding-kernelSize)/stride + 1
	outputWidth := (inputWidth+2*padding-kernelSize)/stride + 1

	kernelTotal := filters * inputChannels * kernelSize * kernelSize
	kernel := make([]float32, kernelTotal)
	stddev := float32(math.Sqrt(2.0 / float64(inputChannels*kernelSize*kernelSize)))

	for i := range kernel {
		kernel[i] = float32(normFloat64(rng)) * stddev
	}

	return LayerConfig{
		Type:          LayerConv2D,
		Activation:    activation,
		KernelSize:    kernelSize,
		Stride:        stride,
		Padding:       padding,
		Filters:       filters,
		Kernel:        kernel,
		Bias:          make([]float32, filters),
		InputHeight:   inputHeight,
		InputWidth:    inputWidth,
		InputChannels: inputChannels,
		OutputHeight:  outputHeight,
		OutputWidth:   outputWidth,
	}
}

// conv2DForwardCPU performs 2D convolution on CPU
// input shape: [batch][inChannels][height][width] (flattened)
// output shape: [batch][filters][outHeight][outWidth] (flattened)
// Returns: preActivation (before activation), postActivation (after activation)
func conv2DForwardCPU(input []float32, config *LayerConfig, batchSize int) ([]float32, []float32) {
	inH := config.InputHeight
	inW := config.InputWidth
	inC := config.InputChannels
	kSize := config.KernelSize
	stride := config.Stride
	padding := config.Padding
	filters := config.Filters
	outH := config.OutputHeight
	outW := config.OutputWidth

	outputSize := batchSize * filters * outH * outW
	preActivation := make([]float32, outputSize)
	postActivation := make([]float32, outputSize)

	for b := 0; b < batchSize; b++ {
		for f := 0; f < filters; f++ {
			for oh := 0; oh < outH; oh++ {
				for ow := 0; ow < outW; ow++ {
					sum := config.Bias[f]

					for ic := 0; ic < inC; ic++ {
						for kh := 0; kh < kSize; kh++ {
							for kw := 0; kw < kSize; kw++ {
								ih := oh*stride + kh - padding
								iw := ow*stride + kw - padding

								if ih >= 0 && ih < inH && iw >= 0 && iw < inW {
									inputIdx := b*inC*inH*inW + ic*inH*inW + ih*inW + iw
									kernelIdx := f*inC*kSize*kSize + ic*kSize*kSize + kh*kSize + kw
									sum += input[inputIdx] * config.Kernel[kernelIdx]
								}
							}
						}
					}

					outputIdx := b*filters*outH*outW + f*outH*outW + oh*outW + ow
					preActivation[outputIdx] = sum
					postActivation[outputIdx] = activateCPU(sum, config.Activation)
				}
			}
		}
	}

	return preActivation, postActivation
}

// conv2DBackwardCPU computes gradients for 2D convolution on CPU
// gradOutput: gradient flowing back from next layer
// input: input from forward pass
// Returns: gradInput (gradient w.r.t. input), gradKernel, gradBias
func conv2DBackwardCPU(
	gradOutput []float32,
	input []float32,
	preActivation []float32,
	config *LayerConfig,
	batchSize int,
) (gradInput []float32, gradKernel []float32, gradBias []float32) {
	inH := config.InputHeight
	inW := config.InputWidth
	inC := config.InputChannels
	kSize := config.KernelSize
	stride := config.Stride
	padding := config.Padding
	filters := config.Filters
	outH := config.OutputHeight
	outW := config.OutputWidth

	gradInput = make([]float32, batchSize*inC*inH*inW)
	gradKernel = make([]float32, filters*inC*kSize*kSize)
	gradBias = make([]float32, filters)

	for b := 0; b < batchSize; b++ {
		for f := 0; f < filters; f++ {
			for oh := 0; oh < outH; oh++ {
				for ow := 0; ow < outW; ow++ {
					outputIdx := b*filters*outH*outW + f*outH*outW + oh*outW + ow

					derivative := activateDerivativeCPU(preActivation[outputIdx], config.Activation)
					gradOut := gradOutput[outputIdx] * derivative

					gradBias[f] += gradOut

					for ic := 0; ic < inC; ic++ {
						for kh := 0; kh < kSize; kh++ {
							for kw := 0; kw < kSize; kw++ {
								ih := oh*stride + kh - padding
								iw := ow*stride + kw - padding

								if ih >= 0 && ih < inH && iw >= 0 && iw < inW {
									inputIdx := b*inC*inH*inW + ic*inH*inW + ih*inW + iw
									kernelIdx := f*inC*kSize*kSize + ic*kSize*kSize + kh*kSize + kw

									gradInput[inputIdx] += gradOut * config.Kernel[kernelIdx]
									gradKernel[kernelIdx] += gradOut * input[inputIdx]
								}
							}
						}
					}
				}
			}
		}
	}

	return gradInput, gradKernel, gradBias
}
