package sparse

import (
	"github.com/pkg/errors"
	"gonum.org/v1/gonum/stat"

	"github.com/openfluke/dynsparse/data"
	"github.com/openfluke/dynsparse/nn"
)

type passMode int

const (
	passTrain passMode = iota
	passValidate
	passNoise
)

func (m passMode) prefix() string {
	switch m {
	case passTrain:
		return "train"
	case passNoise:
		return "noise"
	}
	return "val"
}

// runPass sweeps loader once. In train mode every batch is backpropagated,
// the gradients of sparse layers are masked, and the optimizer steps.
// Mean loss and accuracy over the dataset go to the epoch log.
func (e *Engine) runPass(loader data.Loader, mode passMode, lr float32) error {
	total := loader.Len()
	if total == 0 {
		return errors.Wrap(ErrEmptyLoader, mode.prefix())
	}

	var epochLoss float64
	correct := 0

	loader.Reset()
	for {
		batch, ok := loader.Next()
		if !ok {
			break
		}

		e.Network.ZeroGradients()
		out, err := e.Network.Forward(batch.Inputs, batch.Size)
		if err != nil {
			return errors.Wrapf(err, "%s forward", mode.prefix())
		}
		res, err := nn.SoftmaxCrossEntropy(out, batch.Labels, e.numClasses)
		if err != nil {
			return errors.Wrapf(err, "%s loss", mode.prefix())
		}
		for i, p := range res.Preds {
			if p == batch.Labels[i] {
				correct++
			}
		}

		if mode == passTrain {
			e.Network.BackwardCPU(res.Grad)
			if err := e.maskGradients(); err != nil {
				return err
			}
			e.Optimizer.Step(e.Network, lr)
		}

		epochLoss += res.Loss * float64(batch.Size)
	}

	e.log[mode.prefix()+"_loss"] = epochLoss / float64(total)
	e.log[mode.prefix()+"_acc"] = float64(correct) / float64(total)

	if mode == passTrain {
		if e.Config.DebugWeights {
			e.logWeights()
		}
		if e.Config.DebugSparse && e.Masks != nil {
			e.logSparseLevels()
		}
	}
	return nil
}

// maskGradients zeroes gradient flow through inactive connections and, for
// policies that prune on gradients, keeps a copy of the masked gradient.
// Only the last batch's copy survives the pass.
func (e *Engine) maskGradients() error {
	if e.Masks == nil {
		return nil
	}
	for i := 0; i < e.Masks.Len(); i++ {
		li := e.Masks.LayerIndex(i)
		grad := e.Network.GetKernelGradients(li)
		if grad == nil {
			continue
		}
		if err := e.Network.ApplyMask(grad, e.Masks.Mask(i)); err != nil {
			return errors.Wrapf(err, "mask gradient of layer %d", li)
		}
		if e.lastGradients != nil {
			e.lastGradients[i] = append(e.lastGradients[i][:0], grad...)
		}
	}
	return nil
}

// logWeights records mean and standard deviation of every weighted layer,
// numbered per layer kind ("linear_0_mean", "conv_1_std", ...).
func (e *Engine) logWeights() {
	counts := map[string]int{}
	for i := range e.Network.Layers {
		layer := &e.Network.Layers[i]
		kind := layer.ParamKind()
		if kind == "" {
			continue
		}
		idx := counts[kind]
		counts[kind]++

		w := nn.ToFloat64(layer.Kernel)
		key := kind + "_" + itoa(idx)
		e.log[key+"_mean"] = stat.Mean(w, nil)
		e.log[key+"_std"] = stat.StdDev(w, nil)
	}
}

// logSparseLevels records the fraction of non-zero weights per sparse layer,
// plus a per-(filter, channel) heatmap for conv layers when images are on.
func (e *Engine) logSparseLevels() {
	for i := 0; i < e.Masks.Len(); i++ {
		layer := &e.Network.Layers[e.Masks.LayerIndex(i)]
		size := len(layer.Kernel)
		key := layerKey("sparse_level", i)
		e.log[key] = 1 - float64(nn.CountZeros(layer.Kernel))/float64(size)

		if e.Config.LogImages && layer.ParamKind() == nn.ParamConv {
			e.log["img_"+key] = heatmap(layer)
		}
	}
}

// heatmap sums each k x k kernel and scales it by 255/(k*k), truncated to int
func heatmap(layer *nn.LayerConfig) [][]int {
	shape := layer.WeightShape()
	filters, channels, area := shape[0], shape[1], shape[2]*shape[3]
	ratio := float32(255) / float32(area)

	out := make([][]int, filters)
	for f := 0; f < filters; f++ {
		out[f] = make([]int, channels)
		for c := 0; c < channels; c++ {
			base := (f*channels + c) * area
			var s float32
			for _, w := range layer.Kernel[base : base+area] {
				s += w
			}
			out[f][c] = int(s * ratio)
		}
	}
	return out
}
