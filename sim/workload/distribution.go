package workload

import (
	"fmt"
	"math"
	"math/rand"
)

// LengthSampler generates token count samples.
type LengthSampler interface {
	// Sample returns a non-negative token count.
	Sample(rng *rand.Rand) int
}

// UniformSampler draws integers uniformly from [min, max].
type UniformSampler struct {
	min, max int
}

func (s *UniformSampler) Sample(rng *rand.Rand) int {
	if s.max <= s.min {
		return s.min
	}
	return s.min + rng.Intn(s.max-s.min+1)
}

// GaussianSampler produces clamped Gaussian token lengths.
type GaussianSampler struct {
	mean, stdDev float64
	min, max     int
}

func (s *GaussianSampler) Sample(rng *rand.Rand) int {
	if s.min == s.max {
		return s.min
	}
	val := rng.NormFloat64()*s.stdDev + s.mean
	clamped := math.Min(float64(s.max), math.Max(float64(s.min), val))
	return int(math.Round(clamped))
}

// ExponentialSampler produces exponentially-distributed token lengths, at least 1.
type ExponentialSampler struct {
	mean float64
}

func (s *ExponentialSampler) Sample(rng *rand.Rand) int {
	result := int(math.Round(rng.ExpFloat64() * s.mean))
	if result < 1 {
		return 1
	}
	return result
}

// ConstantSampler always returns the same value.
type ConstantSampler struct {
	value int
}

func (s *ConstantSampler) Sample(*rand.Rand) int { return s.value }

// requireParam returns an error naming the first missing parameter.
func requireParam(params map[string]float64, names ...string) error {
	for _, name := range names {
		if _, ok := params[name]; !ok {
			return fmt.Errorf("missing required parameter %q", name)
		}
	}
	return nil
}

// NewLengthSampler creates a LengthSampler from a DistSpec.
func NewLengthSampler(spec DistSpec) (LengthSampler, error) {
	switch spec.Type {
	case "uniform":
		if err := requireParam(spec.Params, "min", "max"); err != nil {
			return nil, err
		}
		lo, hi := int(spec.Params["min"]), int(spec.Params["max"])
		if lo < 0 || hi < lo {
			return nil, fmt.Errorf("uniform distribution needs 0 <= min <= max, got [%d, %d]", lo, hi)
		}
		return &UniformSampler{min: lo, max: hi}, nil

	case "gaussian":
		if err := requireParam(spec.Params, "mean", "std_dev", "min", "max"); err != nil {
			return nil, err
		}
		lo, hi := int(spec.Params["min"]), int(spec.Params["max"])
		if lo < 0 || hi < lo {
			return nil, fmt.Errorf("gaussian distribution needs 0 <= min <= max, got [%d, %d]", lo, hi)
		}
		return &GaussianSampler{
			mean:   spec.Params["mean"],
			stdDev: spec.Params["std_dev"],
			min:    lo,
			max:    hi,
		}, nil

	case "exponential":
		if err := requireParam(spec.Params, "mean"); err != nil {
			return nil, err
		}
		return &ExponentialSampler{mean: spec.Params["mean"]}, nil

	case "constant":
		if err := requireParam(spec.Params, "value"); err != nil {
			return nil, err
		}
		val := int(spec.Params["value"])
		if val < 0 {
			return nil, fmt.Errorf("constant distribution value must be non-negative, got %d", val)
		}
		return &ConstantSampler{value: val}, nil

	default:
		return nil, fmt.Errorf("unknown distribution type %q", spec.Type)
	}
}
