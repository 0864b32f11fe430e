package workload

import (
	"fmt"
	"math"
)

// Spec describes a synthetic request stream.
type Spec struct {
	NumRequests int         `yaml:"num_requests"`
	Rate        float64     `yaml:"rate"` // requests per second
	StartTime   float64     `yaml:"start_time,omitempty"`
	Arrival     ArrivalSpec `yaml:"arrival"`
	Prefill     DistSpec    `yaml:"prefill"`
	Decode      DistSpec    `yaml:"decode"`
}

// ArrivalSpec selects the inter-arrival process.
type ArrivalSpec struct {
	Process string   `yaml:"process"`
	CV      *float64 `yaml:"cv,omitempty"`
}

// DistSpec parameterizes a token length distribution.
type DistSpec struct {
	Type   string             `yaml:"type"`
	Params map[string]float64 `yaml:"params,omitempty"`
}

var (
	validArrivalProcesses = map[string]bool{
		"": true, "poisson": true, "gamma": true, "constant": true,
	}
	validDistTypes = map[string]bool{
		"uniform": true, "gaussian": true, "exponential": true, "constant": true,
	}
)

// Validate checks that all fields in the spec are valid.
func (s *Spec) Validate() error {
	if s.NumRequests < 0 {
		return fmt.Errorf("num_requests must be non-negative, got %d", s.NumRequests)
	}
	if err := validateFinitePositive("rate", s.Rate); err != nil {
		return err
	}
	if s.StartTime < 0 || math.IsNaN(s.StartTime) || math.IsInf(s.StartTime, 0) {
		return fmt.Errorf("start_time must be a finite non-negative number, got %f", s.StartTime)
	}
	if !validArrivalProcesses[s.Arrival.Process] {
		return fmt.Errorf("unknown arrival process %q; valid: poisson, gamma, constant", s.Arrival.Process)
	}
	if s.Arrival.CV != nil {
		if err := validateFinitePositive("arrival.cv", *s.Arrival.CV); err != nil {
			return err
		}
	}
	if err := validateDistSpec("prefill", &s.Prefill); err != nil {
		return err
	}
	return validateDistSpec("decode", &s.Decode)
}

func validateDistSpec(prefix string, d *DistSpec) error {
	if !validDistTypes[d.Type] {
		return fmt.Errorf("%s: unknown distribution type %q; valid: uniform, gaussian, exponential, constant", prefix, d.Type)
	}
	for name, val := range d.Params {
		if math.IsNaN(val) || math.IsInf(val, 0) {
			return fmt.Errorf("%s.params.%s must be a finite number, got %f", prefix, name, val)
		}
	}
	if _, err := NewLengthSampler(*d); err != nil {
		return fmt.Errorf("%s: %w", prefix, err)
	}
	return nil
}

func validateFinitePositive(name string, val float64) error {
	if math.IsNaN(val) || math.IsInf(val, 0) {
		return fmt.Errorf("%s must be a finite number, got %f", name, val)
	}
	if val <= 0 {
		return fmt.Errorf("%s must be positive, got %f", name, val)
	}
	return nil
}
