package nn

// ActivationType defines the activation function used in a layer
type ActivationType int

const (
	ActivationScaledReLU ActivationType = 0 // v * 1.1, then ReLU
	ActivationSigmoid    ActivationType = 1 // 1 / (1 + exp(-v))
	ActivationTanh       ActivationType = 2 // tanh(v)
	ActivationSoftplus   ActivationType = 3 // log(1 + exp(v))
	ActivationLeakyReLU  ActivationType = 4 // v if v >= 0, else v * 0.1
	ActivationReLU       ActivationType = 5 // max(0, v)
	ActivationLinear     ActivationType = 6 // identity, used for logits
)

// LayerType defines the type of neural network layer
type LayerType int

const (
	LayerDense  LayerType = 0 // Dense/Fully-connected layer
	LayerConv2D LayerType = 1 // 2D Convolutional layer
)

// Parameter kinds reported by ParamKind. They double as log key prefixes.
const (
	ParamLinear = "linear"
	ParamConv   = "conv"
)

// LayerConfig holds configuration and parameters for one layer of the network
type LayerConfig struct {
	Type       LayerType
	Activation ActivationType

	// Conv2D specific parameters
	KernelSize int // Size of convolution kernel (e.g., 3 for 3x3)
	Stride     int // Stride for convolution
	Padding    int // Padding for convolution
	Filters    int // Number of output filters/channels

	// Weights. Dense: [inputSize * outputSize] indexed i*outputSize+o.
	// Conv2D: [filters][inChannels][kernelH][kernelW].
	Kernel []float32
	Bias   []float32

	// Shape information. Dense layers reuse InputHeight/OutputHeight as
	// input and output sizes.
	InputHeight   int
	InputWidth    int
	InputChannels int
	OutputHeight  int
	OutputWidth   int
}

// ParamKind returns "linear" or "conv" for layers that own a weight tensor,
// and "" otherwise.
func (c *LayerConfig) ParamKind() string {
	if len(c.Kernel) == 0 {
		return ""
	}
	switch c.Type {
	case LayerDense:
		return ParamLinear
	case LayerConv2D:
		return ParamConv
	}
	return ""
}

// WeightShape returns the logical shape of Kernel in storage order.
// Dense: [in, out]. Conv2D: [filters, inChannels, k, k].
func (c *LayerConfig) WeightShape() []int {
	switch c.Type {
	case LayerDense:
		return []int{c.InputHeight, c.OutputHeight}
	case LayerConv2D:
		return []int{c.Filters, c.InputChannels, c.KernelSize, c.KernelSize}
	}
	return nil
}

// InputLen returns the number of input values the layer expects per sample
func (c *LayerConfig) InputLen() int {
	if c.Type == LayerConv2D {
		return c.InputChannels * c.InputHeight * c.InputWidth
	}
	return c.InputHeight
}

// OutputLen returns the number of output values the layer produces per sample
func (c *LayerConfig) OutputLen() int {
	if c.Type == LayerConv2D {
		return c.Filters * c.OutputHeight * c.OutputWidth
	}
	return c.OutputHeight
}

// Network is a feed-forward stack of layers. Data flows through Layers in order;
// conv outputs are consumed flattened by following dense layers.
type Network struct {
	InputSize int // Values per sample
	BatchSize int // Samples in the current batch

	Layers []LayerConfig

	device     Device
	deviceInfo *DeviceInfo

	// activations[0] = input, activations[i] = output of layer i-1
	activations [][]float32

	// Storage for pre-activation values (needed for derivatives)
	preActivations [][]float32

	kernelGradients [][]float32
	biasGradients   [][]float32
}

// NewNetwork creates a network from the given layers. Adjacent layer sizes are
// checked by Validate, not here.
func NewNetwork(inputSize int, layers ...LayerConfig) *Network {
	total := len(layers)
	return &Network{
		InputSize:       inputSize,
		BatchSize:       1,
		Layers:          layers,
		device:          DeviceCPU,
		activations:     make([][]float32, total+1),
		preActivations:  make([][]float32, total),
		kernelGradients: make([][]float32, total),
		biasGradients:   make([][]float32, total),
	}
}

// TotalLayers returns the number of layers in the network
func (n *Network) TotalLayers() int {
	return len(n.Layers)
}

// GetLayer returns the layer configuration at idx, or nil if out of range
func (n *Network) GetLayer(idx int) *LayerConfig {
	if idx >= 0 && idx < len(n.Layers) {
		return &n.Layers[idx]
	}
	return nil
}

// OutputSize returns the number of values produced per sample by the last layer
func (n *Network) OutputSize() int {
	if len(n.Layers) == 0 {
		return n.InputSize
	}
	return n.Layers[len(n.Layers)-1].OutputLen()
}

// Validate checks that every layer consumes what its predecessor produces
func (n *Network) Validate() error {
	if len(n.Layers) == 0 {
		return ErrEmptyNetwork
	}
	prev := n.InputSize
	for i := range n.Layers {
		l := &n.Layers[i]
		if l.InputLen() != prev {
			return &ShapeError{Layer: i, Expected: prev, Got: l.InputLen()}
		}
		if l.ParamKind() != "" && len(l.Kernel) != product(l.WeightShape()) {
			return &ShapeError{Layer: i, Expected: product(l.WeightShape()), Got: len(l.Kernel)}
		}
		prev = l.OutputLen()
	}
	return nil
}

// KernelGradients returns the kernel gradients for all layers
func (n *Network) KernelGradients() [][]float32 {
	return n.kernelGradients
}

// BiasGradients returns the bias gradients for all layers
func (n *Network) BiasGradients() [][]float32 {
	return n.biasGradients
}

// GetKernelGradients returns gradients for a specific layer index
func (n *Network) GetKernelGradients(layerIdx int) []float32 {
	if layerIdx < 0 || layerIdx >= len(n.kernelGradients) {
		return nil
	}
	return n.kernelGradients[layerIdx]
}

// ZeroGradients clears the gradient accumulators of every layer
func (n *Network) ZeroGradients() {
	for i := range n.Layers {
		n.kernelGradients[i] = nil
		n.biasGradients[i] = nil
	}
}

func product(shape []int) int {
	if len(shape) == 0 {
		return 0
	}
	p := 1
	for _, s := range shape {
		p *= s
	}
	return p
}
