// Package nn provides a small feed-forward network with explicit CPU forward and
// backward passes, the optimizers and learning-rate schedulers that drive it,
// and device placement for the masking kernels used by sparse training.
//
// A network is a stack of dense and 2D convolutional layers. Data flows through
// Layers in order; conv outputs are consumed flattened by following dense layers.
// Activations supported per layer:
//   - ScaledReLU: v * 1.1, then ReLU
//   - Sigmoid: 1 / (1 + exp(-v))
//   - Tanh: tanh(v)
//   - Softplus: log(1 + exp(v))
//   - LeakyReLU: v if v >= 0, else v * 0.1
//   - ReLU: max(0, v)
//   - Linear: identity
//
// Example usage:
//
//	rng := rand.New(rand.NewSource(1))
//	network := nn.NewNetwork(784,
//		nn.InitDenseLayer(784, 300, nn.ActivationReLU, rng),
//		nn.InitDenseLayer(300, 10, nn.ActivationLinear, rng),
//	)
//
//	logits, err := network.Forward(batch, batchSize)
//	res, err := nn.SoftmaxCrossEntropy(logits, labels, 10)
//	network.BackwardCPU(res.Grad)
//	opt.Step(network, lr)
package nn
