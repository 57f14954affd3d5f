// Package sparse trains networks whose connectivity masks are pruned and
// regrown between epochs.
//
// An Engine runs each epoch as
//
//	train pass -> validation pass -> (noise pass) -> lr step -> prune step
//
// and hands the epoch's Log back to the caller. The prune step asks a Policy
// (SET or DSNN) for a new mask per sparse layer, zeroes the pruned weights,
// and stores the new mask for the next training pass.
//
// An Engine owns its network's parameters for the duration of RunEpoch and is
// not safe for concurrent use.
package sparse

import (
	"fmt"
	"math/rand"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"

	"github.com/openfluke/dynsparse/data"
	"github.com/openfluke/dynsparse/metrics"
	"github.com/openfluke/dynsparse/nn"
)

// Engine drives sparse training of one network
type Engine struct {
	Config  Config
	Network *nn.Network
	Policy  Policy     // nil: masks are never replaced
	Masks   *MaskStore // nil for ModelBase

	Optimizer nn.Optimizer
	Scheduler nn.LRScheduler
	Sink      metrics.Sink // optional, receives every epoch log

	RunID string

	rng        *rand.Rand
	numClasses int
	schedStep  int

	currentEpoch  int
	log           Log
	lastGradients [][]float32
	addedSynapses []Mask
}

// New builds an engine with the policy cfg.Model names
func New(net *nn.Network, cfg Config) (*Engine, error) {
	policy, err := NewPolicy(cfg)
	if err != nil {
		return nil, err
	}
	return NewEngine(net, cfg, policy)
}

// NewEngine validates cfg, places the network, builds the optimizer and
// scheduler, and draws the initial masks. policy may be nil.
func NewEngine(net *nn.Network, cfg Config, policy Policy) (*Engine, error) {
	if err := cfg.Validate(); err != nil {
		return nil, errors.Wrap(err, "config")
	}
	if err := net.Validate(); err != nil {
		return nil, errors.Wrap(err, "network")
	}
	if policy != nil && !cfg.Sparse() {
		return nil, errors.Errorf("policy %s requires a sparse model, got %s", policy.Name(), cfg.Model)
	}
	if err := net.To(cfg.Device); err != nil {
		return nil, err
	}

	opt, err := nn.NewOptimizer(cfg.OptimAlg, float32(cfg.Momentum), float32(cfg.WeightDecay))
	if err != nil {
		return nil, err
	}
	sched, err := nn.NewScheduler(cfg.schedulerConfig())
	if err != nil {
		return nil, err
	}

	e := &Engine{
		Config:     cfg,
		Network:    net,
		Policy:     policy,
		Optimizer:  opt,
		Scheduler:  sched,
		RunID:      uuid.NewString(),
		rng:        rand.New(rand.NewSource(cfg.Seed)),
		numClasses: net.OutputSize(),
	}

	if cfg.Sparse() {
		e.Masks, err = NewMaskStore(net, cfg.StartSparse, cfg.EndSparse, cfg.Epsilon, e.rng)
		if err != nil {
			return nil, err
		}
		e.addedSynapses = make([]Mask, e.Masks.Len())
		if policy != nil && policy.NeedsGradient() {
			e.lastGradients = make([][]float32, e.Masks.Len())
		}
	}

	if cfg.Verbose {
		fmt.Printf("Run %s: %s, %s, device %s", e.RunID, cfg.Model, opt.Name(), net.Device())
		if info := net.DeviceInfo(); info != nil {
			fmt.Printf(" [%s]", info)
		}
		fmt.Println()
		if e.Masks != nil {
			for i := 0; i < e.Masks.Len(); i++ {
				fmt.Printf("  sparse layer %d (network layer %d): %d / %d connections\n",
					i, e.Masks.LayerIndex(i), e.Masks.NumParams(i), len(e.Masks.Mask(i)))
			}
		}
	}
	return e, nil
}

// CurrentEpoch returns the 1-based number of the epoch last run
func (e *Engine) CurrentEpoch() int {
	return e.currentEpoch
}

// LastGradients returns the masked gradient snapshot kept for sparse layer i.
// It is the gradient of the last training batch only.
func (e *Engine) LastGradients(i int) []float32 {
	if e.lastGradients == nil {
		return nil
	}
	return e.lastGradients[i]
}

// RunEpoch runs one epoch. epoch is 0-based; the log and the flip schedule
// count epochs from 1.
func (e *Engine) RunEpoch(ds data.Dataset, epoch int) (Log, error) {
	start := time.Now()
	e.currentEpoch = epoch + 1
	e.log = Log{}

	lr := e.Scheduler.GetLR(e.schedStep)

	if err := e.runPass(ds.TrainLoader(), passTrain, lr); err != nil {
		return nil, err
	}
	if err := e.runPass(ds.TestLoader(), passValidate, lr); err != nil {
		return nil, err
	}
	if e.Config.TestNoise {
		noise := ds.NoiseLoader()
		if noise == nil {
			return nil, ErrNoNoiseLoader
		}
		if err := e.runPass(noise, passNoise, lr); err != nil {
			return nil, err
		}
	}

	e.schedStep++

	if e.Policy != nil {
		if hook, ok := e.Policy.(EpochHook); ok {
			hook.BeginEpoch(e.currentEpoch)
		}
		if e.currentEpoch%e.Config.PruningInterval == 0 {
			if err := e.prune(); err != nil {
				return nil, err
			}
		}
	}

	if e.Config.Verbose {
		fmt.Printf("Epoch %d: train_loss=%.4f train_acc=%.4f val_loss=%.4f val_acc=%.4f lr=%.5f (%v)\n",
			e.currentEpoch, e.log["train_loss"], e.log["train_acc"], e.log["val_loss"], e.log["val_acc"],
			lr, time.Since(start).Round(time.Millisecond))
	}

	if e.Sink != nil {
		rec := metrics.Record{RunID: e.RunID, Epoch: e.currentEpoch, Time: time.Now(), Log: e.log}
		if err := e.Sink.Write(rec); err != nil {
			return e.log, errors.Wrap(err, "metrics sink")
		}
	}
	return e.log, nil
}

// prune replaces every sparse layer's mask. Pruned weights are zeroed by the
// keep mask before the new mask is stored, so grown connections start at zero.
func (e *Engine) prune() error {
	for i := 0; i < e.Masks.Len(); i++ {
		li := e.Masks.LayerIndex(i)
		layer := &e.Network.Layers[li]

		req := PruneRequest{
			Index:     i,
			Weight:    append([]float32(nil), layer.Kernel...),
			NumParams: e.Masks.NumParams(i),
			Rand:      e.rng,
			Log:       e.log,
		}
		if e.Policy.NeedsGradient() {
			req.Grad = e.lastGradients[i]
		}

		res, err := e.Policy.Prune(req)
		if err != nil {
			return errors.Wrapf(err, "%s prune layer %d", e.Policy.Name(), li)
		}
		if err := e.Masks.Replace(i, res.NewMask); err != nil {
			return err
		}
		if err := e.Network.ApplyMask(layer.Kernel, res.KeepMask); err != nil {
			return errors.Wrapf(err, "zero pruned weights of layer %d", li)
		}

		if e.Config.DebugSparse {
			e.log[layerKey("added_synapses", i)] = res.NewSynapses.Count()
			if rate, ok := survival(e.addedSynapses[i], res.KeepMask); ok {
				e.log[layerKey("surviving_synapses", i)] = rate
			}
		}
		e.addedSynapses[i] = res.NewSynapses
	}

	if e.Config.DebugSparse {
		for i, size := range e.Masks.Sizes() {
			e.log[layerKey("mask_sizes", i)] = size
		}
	}
	return nil
}

// survival returns the fraction of prevAdded still present in keep. It
// reports false when prevAdded is empty.
func survival(prevAdded, keep Mask) (float64, bool) {
	total := prevAdded.Count()
	if total == 0 {
		return 0, false
	}
	return float64(prevAdded.And(keep).Count()) / float64(total), true
}

// Save is a no-op; the engine does not persist state
func (e *Engine) Save() error { return nil }

// Restore is a no-op; the engine does not persist state
func (e *Engine) Restore() error { return nil }
