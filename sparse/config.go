package sparse

import (
	"encoding/json"
	"os"

	"github.com/pkg/errors"

	"github.com/openfluke/dynsparse/nn"
)

// Training modes
const (
	ModelBase   = "BaseModel"   // dense training, no masks
	ModelSparse = "SparseModel" // fixed random masks, no pruning
	ModelSET    = "SET"
	ModelDSNN   = "DSNN"
)

// Config enumerates every option the engine recognizes
type Config struct {
	Model string `json:"model"`

	// Optimizer
	OptimAlg     string  `json:"optim_alg"`
	LearningRate float64 `json:"learning_rate"`
	Momentum     float64 `json:"momentum"`
	WeightDecay  float64 `json:"weight_decay"`
	Device       string  `json:"device"`

	// Learning-rate schedule, stepped once per epoch
	LRScheduler  string  `json:"lr_scheduler"`
	LRMilestones []int   `json:"lr_milestones"`
	LRGamma      float64 `json:"lr_gamma"`
	LRStepSize   int     `json:"lr_step_size"`
	LRTMax       int     `json:"lr_t_max"`

	// Diagnostics
	DebugSparse  bool `json:"debug_sparse"`
	DebugWeights bool `json:"debug_weights"`
	LogImages    bool `json:"log_images"`

	// Sparse layers are Layers[StartSparse:EndSparse]; nil leaves the bound open
	// and negative values count from the end.
	StartSparse *int    `json:"start_sparse"`
	EndSparse   *int    `json:"end_sparse"`
	Epsilon     float64 `json:"epsilon"`

	// Pruning
	Zeta            float64 `json:"zeta"`
	WeightPrunePerc float64 `json:"weight_prune_perc"`
	GradPrunePerc   float64 `json:"grad_prune_perc"`
	Flip            bool    `json:"flip"`
	FlipEpoch       int     `json:"flip_epoch"`
	PruningInterval int     `json:"pruning_interval"`

	TestNoise bool  `json:"test_noise"`
	Seed      int64 `json:"seed"`
	Verbose   bool  `json:"verbose"`
}

// DefaultConfig returns the defaults of a DSNN run
func DefaultConfig() Config {
	return Config{
		Model:           ModelDSNN,
		OptimAlg:        "SGD",
		LearningRate:    0.1,
		Momentum:        0.9,
		Device:          string(nn.DeviceCPU),
		LRGamma:         0.1,
		LRStepSize:      30,
		LRTMax:          100,
		Epsilon:         20,
		Zeta:            0.3,
		FlipEpoch:       30,
		PruningInterval: 1,
		Seed:            32,
	}
}

// LoadConfig reads a JSON file over DefaultConfig and validates the result
func LoadConfig(path string) (Config, error) {
	cfg := DefaultConfig()
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, errors.Wrapf(err, "read config %s", path)
	}
	if err := json.Unmarshal(data, &cfg); err != nil {
		return cfg, errors.Wrapf(err, "parse config %s", path)
	}
	return cfg, cfg.Validate()
}

// Sparse reports whether the model keeps connectivity masks
func (c *Config) Sparse() bool {
	return c.Model != ModelBase
}

// Validate checks option values. The sparse range is checked against the
// network when masks are built.
func (c *Config) Validate() error {
	switch c.Model {
	case ModelBase, ModelSparse, ModelSET, ModelDSNN:
	default:
		return errors.Wrapf(ErrUnknownModel, "%q", c.Model)
	}
	switch c.OptimAlg {
	case "SGD", "Adam":
	default:
		return errors.Wrapf(nn.ErrUnknownOptim, "%q", c.OptimAlg)
	}
	switch nn.Device(c.Device) {
	case nn.DeviceCPU, nn.DeviceGPU:
	default:
		return errors.Wrapf(nn.ErrUnknownDevice, "%q", c.Device)
	}

	if c.LearningRate <= 0 {
		return errors.Errorf("learning_rate must be > 0, got %v", c.LearningRate)
	}
	if c.Momentum < 0 || c.WeightDecay < 0 {
		return errors.Errorf("momentum and weight_decay must be >= 0")
	}
	if c.Sparse() && c.Epsilon <= 0 {
		return errors.Errorf("epsilon must be > 0, got %v", c.Epsilon)
	}
	for name, v := range map[string]float64{
		"zeta":              c.Zeta,
		"weight_prune_perc": c.WeightPrunePerc,
		"grad_prune_perc":   c.GradPrunePerc,
	} {
		if v < 0 || v > 1 {
			return errors.Errorf("%s must be in [0, 1], got %v", name, v)
		}
	}
	if c.PruningInterval < 1 {
		return errors.Errorf("pruning_interval must be >= 1, got %d", c.PruningInterval)
	}
	if c.Flip && c.FlipEpoch < 1 {
		return errors.Errorf("flip_epoch must be >= 1, got %d", c.FlipEpoch)
	}
	return nil
}

func (c *Config) schedulerConfig() nn.SchedulerConfig {
	return nn.SchedulerConfig{
		Name:       c.LRScheduler,
		BaseLR:     float32(c.LearningRate),
		Milestones: c.LRMilestones,
		Gamma:      float32(c.LRGamma),
		StepSize:   c.LRStepSize,
		TMax:       c.LRTMax,
	}
}
