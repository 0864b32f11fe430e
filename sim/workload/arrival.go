package workload

import (
	"math"
	"math/rand"

	"github.com/sirupsen/logrus"
)

// ArrivalSampler generates inter-arrival times.
type ArrivalSampler interface {
	// SampleIAT returns the next inter-arrival time in seconds. Never negative.
	SampleIAT(rng *rand.Rand) float64
}

// PoissonSampler generates exponentially-distributed inter-arrival times (CV=1).
type PoissonSampler struct {
	rate float64 // requests per second
}

func (s *PoissonSampler) SampleIAT(rng *rand.Rand) float64 {
	return rng.ExpFloat64() / s.rate
}

// GammaSampler generates Gamma-distributed inter-arrival times.
// CV > 1 produces bursty arrivals. Uses Marsaglia-Tsang for shape >= 1,
// with a transformation for shape < 1.
type GammaSampler struct {
	shape float64 // 1/CV²
	scale float64 // CV²/rate in seconds
}

func (s *GammaSampler) SampleIAT(rng *rand.Rand) float64 {
	return gammaRand(rng, s.shape, s.scale)
}

// ConstantArrivalSampler spaces arrivals exactly 1/rate apart.
type ConstantArrivalSampler struct {
	interval float64
}

func (s *ConstantArrivalSampler) SampleIAT(*rand.Rand) float64 { return s.interval }

// gammaRand samples from Gamma(shape, scale) using Marsaglia-Tsang's method.
// For shape < 1: Gamma(shape) = Gamma(shape+1) * U^(1/shape).
func gammaRand(rng *rand.Rand, shape, scale float64) float64 {
	if shape < 1.0 {
		u := rng.Float64()
		return gammaRand(rng, shape+1.0, scale) * math.Pow(u, 1.0/shape)
	}

	d := shape - 1.0/3.0
	c := 1.0 / math.Sqrt(9.0*d)

	for {
		var x, v float64
		for {
			x = rng.NormFloat64()
			v = 1.0 + c*x
			if v > 0 {
				break
			}
		}
		v = v * v * v
		u := rng.Float64()

		// Squeeze test
		if u < 1.0-0.0331*(x*x)*(x*x) {
			return d * v * scale
		}
		if math.Log(u) < 0.5*x*x+d*(1.0-v+math.Log(v)) {
			return d * v * scale
		}
	}
}

// NewArrivalSampler creates an ArrivalSampler for the given rate in requests/second.
// The ArrivalSpec is assumed validated.
func NewArrivalSampler(spec ArrivalSpec, rate float64) ArrivalSampler {
	if rate < 1e-12 {
		rate = 1e-12
	}
	switch spec.Process {
	case "constant":
		return &ConstantArrivalSampler{interval: 1.0 / rate}

	case "gamma":
		cv := 1.0
		if spec.CV != nil && *spec.CV > 0 {
			cv = *spec.CV
		}
		shape := 1.0 / (cv * cv)
		scale := cv * cv / rate
		if shape < 0.01 {
			logrus.Warnf("Gamma shape %.4f (CV=%.1f) is very small; falling back to Poisson", shape, cv)
			return &PoissonSampler{rate: rate}
		}
		return &GammaSampler{shape: shape, scale: scale}

	default:
		return &PoissonSampler{rate: rate}
	}
}
