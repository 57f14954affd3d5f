package sparse

import (
	"math"
	"math/rand"
	"testing"

	"github.com/pkg/errors"

	"github.com/openfluke/dynsparse/data"
	"github.com/openfluke/dynsparse/metrics"
	"github.com/openfluke/dynsparse/nn"
)

// tinyDataset is 4 two-dimensional samples over 2 classes
func tinyDataset(t *testing.T) *data.Split {
	inputs := []float32{1, 0, 0, 1, 0.9, 0.1, 0.1, 0.9}
	labels := []int{0, 1, 0, 1}
	train, err := data.NewSliceLoader(inputs, labels, 2, 2)
	if err != nil {
		t.Fatal(err)
	}
	test, _ := data.NewSliceLoader(inputs, labels, 2, 4)
	noise, _ := data.NewSliceLoader(data.AddNoise(inputs, 0.1, rand.New(rand.NewSource(1))), labels, 2, 4)
	return &data.Split{Train: train, Test: test, Noise: noise}
}

func blobDataset(t *testing.T) *data.Split {
	cfg := data.DefaultBlobConfig()
	cfg.Classes, cfg.Dim, cfg.TrainPerCls, cfg.TestPerCls, cfg.BatchSize = 3, 40, 20, 5, 10
	ds, err := data.NewBlobs(cfg)
	if err != nil {
		t.Fatal(err)
	}
	return ds
}

// spyOptimizer checks the gradient masking invariant before every step
type spyOptimizer struct {
	nn.Optimizer
	t      *testing.T
	engine *Engine
	steps  int
}

func (s *spyOptimizer) Step(n *nn.Network, lr float32) {
	for i := 0; i < s.engine.Masks.Len(); i++ {
		grad := n.GetKernelGradients(s.engine.Masks.LayerIndex(i))
		for j, active := range s.engine.Masks.Mask(i) {
			if !active && grad[j] != 0 {
				s.t.Fatalf("step %d: layer %d gradient %d is %v outside the mask", s.steps, i, j, grad[j])
			}
		}
	}
	s.steps++
	s.Optimizer.Step(n, lr)
}

func finite(t *testing.T, log Log, key string) float64 {
	v, ok := log.Float(key)
	if !ok {
		t.Fatalf("Missing log key %s", key)
	}
	if math.IsNaN(v) || math.IsInf(v, 0) {
		t.Fatalf("%s is not finite: %v", key, v)
	}
	return v
}

func TestEngineEndToEndTinyDataset(t *testing.T) {
	rng := rand.New(rand.NewSource(1))
	net := nn.NewNetwork(2,
		nn.InitDenseLayer(2, 8, nn.ActivationReLU, rng),
		nn.InitDenseLayer(8, 2, nn.ActivationLinear, rng),
	)

	cfg := DefaultConfig()
	cfg.DebugSparse = true
	e, err := New(net, cfg)
	if err != nil {
		t.Fatal(err)
	}

	log, err := e.RunEpoch(tinyDataset(t), 0)
	if err != nil {
		t.Fatal(err)
	}
	for _, k := range []string{"train_loss", "train_acc", "val_loss", "val_acc"} {
		finite(t, log, k)
	}
	if lvl := finite(t, log, "sparse_level_l0"); lvl < 0 || lvl > 1 {
		t.Errorf("sparse_level_l0 out of [0, 1]: %v", lvl)
	}
	if acc := finite(t, log, "val_acc"); acc < 0 || acc > 1 {
		t.Errorf("val_acc out of [0, 1]: %v", acc)
	}
	if _, ok := log["mask_sizes_l1"]; !ok {
		t.Error("Expected mask_sizes_l1 under debug_sparse")
	}
	if e.CurrentEpoch() != 1 {
		t.Errorf("Expected epoch 1, got %d", e.CurrentEpoch())
	}
}

func TestEngineGradientMasking(t *testing.T) {
	for _, model := range []string{ModelSparse, ModelSET, ModelDSNN} {
		cfg := DefaultConfig()
		cfg.Model = model
		cfg.Epsilon = 2
		cfg.Zeta = 0.3
		cfg.WeightPrunePerc = 0.2
		cfg.GradPrunePerc = 0.2

		e, err := New(threeLayerNetwork(3), cfg)
		if err != nil {
			t.Fatal(err)
		}
		spy := &spyOptimizer{Optimizer: e.Optimizer, t: t, engine: e}
		e.Optimizer = spy

		ds := blobDataset(t)
		for epoch := 0; epoch < 3; epoch++ {
			if _, err := e.RunEpoch(ds, epoch); err != nil {
				t.Fatalf("%s epoch %d: %v", model, epoch, err)
			}
		}
		if spy.steps == 0 {
			t.Fatalf("%s: optimizer never stepped", model)
		}
	}
}

// With static masks and SGD, weights outside the mask stay exactly zero
func TestSparseModelKeepsMaskedWeightsZero(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Model = ModelSparse
	cfg.Epsilon = 2
	cfg.WeightDecay = 1e-4

	e, err := New(threeLayerNetwork(4), cfg)
	if err != nil {
		t.Fatal(err)
	}
	ds := blobDataset(t)
	for epoch := 0; epoch < 3; epoch++ {
		if _, err := e.RunEpoch(ds, epoch); err != nil {
			t.Fatal(err)
		}
	}

	for i := 0; i < e.Masks.Len(); i++ {
		kernel := e.Network.Layers[e.Masks.LayerIndex(i)].Kernel
		for j, active := range e.Masks.Mask(i) {
			if !active && kernel[j] != 0 {
				t.Fatalf("layer %d weight %d became %v", i, j, kernel[j])
			}
		}
	}
}

// After pruning every surviving weight lies inside the stored mask and the
// budget is unchanged
func TestEnginePruneKeepsWeightsInsideMask(t *testing.T) {
	for _, model := range []string{ModelSET, ModelDSNN} {
		cfg := DefaultConfig()
		cfg.Model = model
		cfg.Epsilon = 2
		cfg.WeightPrunePerc = 0.3
		cfg.GradPrunePerc = 0.3
		cfg.DebugSparse = true

		e, err := New(threeLayerNetwork(5), cfg)
		if err != nil {
			t.Fatal(err)
		}
		budgets := []int{e.Masks.NumParams(0), e.Masks.NumParams(1), e.Masks.NumParams(2)}

		ds := blobDataset(t)
		for epoch := 0; epoch < 2; epoch++ {
			if _, err := e.RunEpoch(ds, epoch); err != nil {
				t.Fatal(err)
			}
		}
		for i := 0; i < e.Masks.Len(); i++ {
			if e.Masks.NumParams(i) != budgets[i] {
				t.Errorf("%s: budget of layer %d changed", model, i)
			}
			kernel := e.Network.Layers[e.Masks.LayerIndex(i)].Kernel
			for j, w := range kernel {
				if w != 0 && !e.Masks.Mask(i)[j] {
					t.Fatalf("%s: layer %d weight %d is outside the mask", model, i, j)
				}
			}
		}
	}
}

func TestSurvival(t *testing.T) {
	if _, ok := survival(maskOf(0, 0, 0), maskOf(1, 1, 1)); ok {
		t.Error("Expected no survival rate without previous additions")
	}
	if _, ok := survival(nil, maskOf(1)); ok {
		t.Error("Expected no survival rate on the first round")
	}
	rate, ok := survival(maskOf(1, 1, 0, 1), maskOf(1, 0, 1, 1))
	if !ok || rate != 2.0/3.0 {
		t.Errorf("Expected 2/3, got %v (%v)", rate, ok)
	}
}

func TestEngineSurvivalLoggedAfterGrowth(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Model = ModelSET
	cfg.Epsilon = 2
	cfg.DebugSparse = true

	e, err := New(threeLayerNetwork(6), cfg)
	if err != nil {
		t.Fatal(err)
	}
	ds := blobDataset(t)

	first, err := e.RunEpoch(ds, 0)
	if err != nil {
		t.Fatal(err)
	}
	if _, ok := first["surviving_synapses_l0"]; ok {
		t.Error("Survival must not be logged on the first pruning round")
	}

	grown := e.addedSynapses[0].Count()
	second, err := e.RunEpoch(ds, 1)
	if err != nil {
		t.Fatal(err)
	}
	rate, ok := second["surviving_synapses_l0"]
	if (grown > 0) != ok {
		t.Fatalf("Expected survival logged iff %d > 0 synapses grew, got %v", grown, ok)
	}
	if ok {
		if r := rate.(float64); r < 0 || r > 1 {
			t.Errorf("Survival rate out of [0, 1]: %v", r)
		}
	}
}

func TestEngineDSNNLastGradientsAreMasked(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Epsilon = 2
	cfg.PruningInterval = 2 // epoch 1 does not prune, masks stay as trained

	e, err := New(threeLayerNetwork(7), cfg)
	if err != nil {
		t.Fatal(err)
	}
	log, err := e.RunEpoch(blobDataset(t), 0)
	if err != nil {
		t.Fatal(err)
	}
	if _, ok := log["weight_keep_mask_l0"]; ok {
		t.Error("Expected no pruning on epoch 1 with pruning_interval 2")
	}
	for i := 0; i < e.Masks.Len(); i++ {
		grad := e.LastGradients(i)
		if len(grad) != len(e.Masks.Mask(i)) {
			t.Fatalf("layer %d: no gradient snapshot", i)
		}
		for j, active := range e.Masks.Mask(i) {
			if !active && grad[j] != 0 {
				t.Fatalf("layer %d: snapshot not masked at %d", i, j)
			}
		}
	}

	log, err = e.RunEpoch(blobDataset(t), 1)
	if err != nil {
		t.Fatal(err)
	}
	for _, k := range []string{"weight_keep_mask_l0", "grad_keep_mask_l0", "missing_weights_l0", "zero_weights_l0", "added_synapses_l0"} {
		if _, ok := log[k]; !ok {
			t.Errorf("Missing DSNN counter %s", k)
		}
	}
}

func TestEngineDebugWeightsAndImages(t *testing.T) {
	rng := rand.New(rand.NewSource(8))
	conv := nn.InitConv2DLayer(4, 4, 1, 3, 1, 0, 2, nn.ActivationReLU, rng)
	net := nn.NewNetwork(16, conv, nn.InitDenseLayer(conv.OutputLen(), 2, nn.ActivationLinear, rng))

	cfg := DefaultConfig()
	cfg.Model = ModelSparse
	cfg.DebugWeights = true
	cfg.DebugSparse = true
	cfg.LogImages = true

	e, err := New(net, cfg)
	if err != nil {
		t.Fatal(err)
	}

	inputs := make([]float32, 4*16)
	for i := range inputs {
		inputs[i] = float32(i%7) / 7
	}
	loader, _ := data.NewSliceLoader(inputs, []int{0, 1, 0, 1}, 16, 2)
	log, err := e.RunEpoch(&data.Split{Train: loader, Test: loader}, 0)
	if err != nil {
		t.Fatal(err)
	}

	for _, k := range []string{"conv_0_mean", "conv_0_std", "linear_0_mean", "linear_0_std"} {
		finite(t, log, k)
	}
	img, ok := log["img_sparse_level_l0"].([][]int)
	if !ok || len(img) != 2 || len(img[0]) != 1 {
		t.Fatalf("Expected 2x1 heatmap, got %v", log["img_sparse_level_l0"])
	}
	if _, ok := log["img_sparse_level_l1"]; ok {
		t.Error("Dense layers have no heatmap")
	}
}

func TestHeatmap(t *testing.T) {
	layer := nn.LayerConfig{
		Type:          nn.LayerConv2D,
		KernelSize:    2,
		Filters:       1,
		InputChannels: 2,
		Kernel:        []float32{1, 1, 1, 1, -0.5, 0, 0, 0},
	}
	img := heatmap(&layer)
	// 4 * 255/4 = 255; -0.5 * 255/4 = -31.875 truncates to -31
	if img[0][0] != 255 || img[0][1] != -31 {
		t.Errorf("Expected [[255 -31]], got %v", img)
	}
}

func TestEngineNoisePass(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Model = ModelBase
	cfg.TestNoise = true

	rng := rand.New(rand.NewSource(9))
	net := nn.NewNetwork(2, nn.InitDenseLayer(2, 2, nn.ActivationLinear, rng))
	e, err := New(net, cfg)
	if err != nil {
		t.Fatal(err)
	}
	if e.Masks != nil {
		t.Error("BaseModel must not build masks")
	}

	ds := tinyDataset(t)
	log, err := e.RunEpoch(ds, 0)
	if err != nil {
		t.Fatal(err)
	}
	finite(t, log, "noise_loss")
	finite(t, log, "noise_acc")

	ds.Noise = nil
	if _, err := e.RunEpoch(ds, 1); err != ErrNoNoiseLoader {
		t.Errorf("Expected ErrNoNoiseLoader, got %v", err)
	}
}

func TestEngineSinkReceivesRecords(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Model = ModelSET
	e, err := New(threeLayerNetwork(10), cfg)
	if err != nil {
		t.Fatal(err)
	}
	sink := metrics.NewChannelSink(4)
	e.Sink = sink

	ds := blobDataset(t)
	for epoch := 0; epoch < 2; epoch++ {
		if _, err := e.RunEpoch(ds, epoch); err != nil {
			t.Fatal(err)
		}
	}
	if len(sink.Records) != 2 {
		t.Fatalf("Expected 2 records, got %d", len(sink.Records))
	}
	rec := <-sink.Records
	if rec.RunID != e.RunID || rec.Epoch != 1 {
		t.Errorf("Unexpected record %+v", rec)
	}
}

func TestEngineLRSchedule(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Model = ModelBase
	cfg.LRScheduler = "MultiStepLR"
	cfg.LRMilestones = []int{1}

	rng := rand.New(rand.NewSource(11))
	e, err := New(nn.NewNetwork(2, nn.InitDenseLayer(2, 2, nn.ActivationLinear, rng)), cfg)
	if err != nil {
		t.Fatal(err)
	}
	ds := tinyDataset(t)
	for epoch := 0; epoch < 2; epoch++ {
		if _, err := e.RunEpoch(ds, epoch); err != nil {
			t.Fatal(err)
		}
	}
	if lr := e.Scheduler.GetLR(e.schedStep); math.Abs(float64(lr)-0.01) > 1e-7 {
		t.Errorf("Expected lr 0.01 after the milestone, got %v", lr)
	}
}

func TestNewEngineFailsFast(t *testing.T) {
	cfg := DefaultConfig()
	cfg.OptimAlg = "Nadam"
	if _, err := New(threeLayerNetwork(1), cfg); errors.Cause(err) != nn.ErrUnknownOptim {
		t.Errorf("Expected ErrUnknownOptim, got %v", err)
	}

	cfg = DefaultConfig()
	cfg.StartSparse = intp(5)
	if _, err := New(threeLayerNetwork(1), cfg); errors.Cause(err) != ErrSparseRange {
		t.Errorf("Expected ErrSparseRange, got %v", err)
	}

	cfg = DefaultConfig()
	cfg.Model = ModelBase
	if _, err := NewEngine(threeLayerNetwork(1), cfg, NewSET(0.3)); err == nil {
		t.Error("Expected error for a pruning policy on a dense model")
	}

	cfg = DefaultConfig()
	cfg.LRScheduler = "Warmup"
	if _, err := New(threeLayerNetwork(1), cfg); errors.Cause(err) != nn.ErrUnknownScheduler {
		t.Errorf("Expected ErrUnknownScheduler, got %v", err)
	}
}

func TestSaveRestoreNoop(t *testing.T) {
	e, err := New(threeLayerNetwork(1), DefaultConfig())
	if err != nil {
		t.Fatal(err)
	}
	if e.Save() != nil || e.Restore() != nil {
		t.Error("Expected Save and Restore to be no-ops")
	}
}
