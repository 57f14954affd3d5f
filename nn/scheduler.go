package nn

import (
	"fmt"
	"sort"

	"github.com/chewxy/math32"
	"github.com/pkg/errors"
)

// LRScheduler interface defines learning rate scheduling strategies
type LRScheduler interface {
	// GetLR returns the learning rate for the given step (epoch)
	GetLR(step int) float32

	// Reset resets the scheduler state
	Reset()

	// Name returns the scheduler name
	Name() string
}

// SchedulerConfig carries the knobs of every named scheduler. Unused fields are ignored.
type SchedulerConfig struct {
	Name       string
	BaseLR     float32
	Milestones []int
	Gamma      float32
	StepSize   int
	TMax       int
}

// NewScheduler builds a scheduler by name. An empty name gives a constant rate.
func NewScheduler(cfg SchedulerConfig) (LRScheduler, error) {
	switch cfg.Name {
	case "", "Constant":
		return NewConstantScheduler(cfg.BaseLR), nil
	case "MultiStepLR":
		return NewMultiStepScheduler(cfg.BaseLR, cfg.Gamma, cfg.Milestones), nil
	case "StepLR":
		if cfg.StepSize < 1 {
			return nil, errors.Errorf("StepLR: step size must be >= 1, got %d", cfg.StepSize)
		}
		return NewStepDecayScheduler(cfg.BaseLR, cfg.Gamma, cfg.StepSize), nil
	case "ExponentialLR":
		return NewExponentialDecayScheduler(cfg.BaseLR, cfg.Gamma, 1), nil
	case "CosineAnnealingLR":
		if cfg.TMax < 1 {
			return nil, errors.Errorf("CosineAnnealingLR: t_max must be >= 1, got %d", cfg.TMax)
		}
		return NewCosineAnnealingScheduler(cfg.BaseLR, 0, cfg.TMax), nil
	}
	return nil, errors.Wrapf(ErrUnknownScheduler, "%q", cfg.Name)
}

// ============================================================================
// Constant Scheduler - Fixed learning rate
// ============================================================================

type ConstantScheduler struct {
	baseLR float32
}

func NewConstantScheduler(baseLR float32) *ConstantScheduler {
	return &ConstantScheduler{baseLR: baseLR}
}

func (s *ConstantScheduler) GetLR(step int) float32 {
	return s.baseLR
}

func (s *ConstantScheduler) Reset() {}

func (s *ConstantScheduler) Name() string {
	return "Constant"
}

// ============================================================================
// Multi-Step Scheduler - decay by gamma at every milestone passed
// ============================================================================

type MultiStepScheduler struct {
	baseLR     float32
	gamma      float32
	milestones []int
}

func NewMultiStepScheduler(baseLR, gamma float32, milestones []int) *MultiStepScheduler {
	ms := append([]int(nil), milestones...)
	sort.Ints(ms)
	return &MultiStepScheduler{baseLR: baseLR, gamma: gamma, milestones: ms}
}

func (s *MultiStepScheduler) GetLR(step int) float32 {
	// lr = baseLR * gamma^(number of milestones <= step)
	passed := sort.SearchInts(s.milestones, step+1)
	return s.baseLR * math32.Pow(s.gamma, float32(passed))
}

func (s *MultiStepScheduler) Reset() {}

func (s *MultiStepScheduler) Name() string {
	return fmt.Sprintf("MultiStep%v", s.milestones)
}

// ============================================================================
// Cosine Annealing Scheduler
// ============================================================================

type CosineAnnealingScheduler struct {
	initialLR  float32
	minLR      float32
	totalSteps int
}

func NewCosineAnnealingScheduler(initialLR, minLR float32, totalSteps int) *CosineAnnealingScheduler {
	return &CosineAnnealingScheduler{
		initialLR:  initialLR,
		minLR:      minLR,
		totalSteps: totalSteps,
	}
}

func (s *CosineAnnealingScheduler) GetLR(step int) float32 {
	if step >= s.totalSteps {
		return s.minLR
	}
	progress := float32(step) / float32(s.totalSteps)

	// lr = minLR + (initialLR - minLR) * (1 + cos(pi * progress)) / 2
	cosineDecay := (1.0 + math32.Cos(math32.Pi*progress)) / 2.0
	return s.minLR + (s.initialLR-s.minLR)*cosineDecay
}

func (s *CosineAnnealingScheduler) Reset() {}

func (s *CosineAnnealingScheduler) Name() string {
	return "CosineAnnealing"
}

// ============================================================================
// Exponential Decay Scheduler
// ============================================================================

type ExponentialDecayScheduler struct {
	initialLR  float32
	decayRate  float32
	decaySteps int
}

func NewExponentialDecayScheduler(initialLR, decayRate float32, decaySteps int) *ExponentialDecayScheduler {
	return &ExponentialDecayScheduler{
		initialLR:  initialLR,
		decayRate:  decayRate,
		decaySteps: decaySteps,
	}
}

func (s *ExponentialDecayScheduler) GetLR(step int) float32 {
	// lr = initialLR * decayRate^(step / decaySteps)
	exponent := float32(step) / float32(s.decaySteps)
	return s.initialLR * math32.Pow(s.decayRate, exponent)
}

func (s *ExponentialDecayScheduler) Reset() {}

func (s *ExponentialDecayScheduler) Name() string {
	return "ExponentialDecay"
}

// ============================================================================
// Step Decay Scheduler - decay by a fixed factor every stepSize steps
// ============================================================================

type StepDecayScheduler struct {
	initialLR   float32
	decayFactor float32
	stepSize    int
}

func NewStepDecayScheduler(initialLR, decayFactor float32, stepSize int) *StepDecayScheduler {
	return &StepDecayScheduler{
		initialLR:   initialLR,
		decayFactor: decayFactor,
		stepSize:    stepSize,
	}
}

func (s *StepDecayScheduler) GetLR(step int) float32 {
	numDecays := step / s.stepSize
	return s.initialLR * math32.Pow(s.decayFactor, float32(numDecays))
}

func (s *StepDecayScheduler) Reset() {}

func (s *StepDecayScheduler) Name() string {
	return "StepDecay"
}
