package scheduler

import (
	"fmt"
	"math"

	"github.com/inference-sim/pipeline-sim/sim"
)

// ExecutionModel prices one batch stage.
// Implementations must return a finite, non-negative duration in seconds.
type ExecutionModel interface {
	StageTime(bs *sim.BatchStage, numStages int) float64
}

// LinearModel estimates a full forward pass as
// Alpha + BetaPrefill*prefillTokens + BetaDecode*decodeTokens
// and splits it evenly across the pipeline stages.
type LinearModel struct {
	Alpha       float64 `yaml:"alpha"`        // fixed per-pass overhead (seconds)
	BetaPrefill float64 `yaml:"beta_prefill"` // seconds per prefill token
	BetaDecode  float64 `yaml:"beta_decode"`  // seconds per decode token
}

// StageTime implements ExecutionModel.
func (m LinearModel) StageTime(bs *sim.BatchStage, numStages int) float64 {
	if numStages <= 0 {
		numStages = 1
	}
	pass := m.Alpha +
		m.BetaPrefill*float64(bs.NumPrefillTokens) +
		m.BetaDecode*float64(bs.NumDecodeTokens)
	return pass / float64(numStages)
}

// Validate rejects negative or non-finite coefficients.
func (m LinearModel) Validate() error {
	coefs := []struct {
		name string
		v    float64
	}{{"alpha", m.Alpha}, {"beta_prefill", m.BetaPrefill}, {"beta_decode", m.BetaDecode}}
	for _, c := range coefs {
		if c.v < 0 || math.IsNaN(c.v) || math.IsInf(c.v, 0) {
			return fmt.Errorf("execution.%s must be a finite non-negative number, got %v", c.name, c.v)
		}
	}
	return nil
}

// ConstantModel gives every stage the same duration. Used in tests and for
// calibration runs that isolate scheduling effects.
type ConstantModel float64

// StageTime implements ExecutionModel.
func (m ConstantModel) StageTime(*sim.BatchStage, int) float64 { return float64(m) }

// Validate rejects negative or non-finite durations.
func (m ConstantModel) Validate() error {
	v := float64(m)
	if v < 0 || math.IsNaN(v) || math.IsInf(v, 0) {
		return fmt.Errorf("constant stage time must be a finite non-negative number, got %v", v)
	}
	return nil
}
