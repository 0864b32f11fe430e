package workload

import (
	"fmt"

	"github.com/inference-sim/pipeline-sim/sim"
)

// GenerateRequests creates a request sequence from a Spec.
// Arrivals draw from the arrivals subsystem and token lengths from the tokens
// subsystem, so changing a length distribution leaves arrival times intact.
// Returns requests in non-decreasing arrival order; ids are assigned on injection.
func GenerateRequests(spec *Spec, rng *sim.PartitionedRNG) ([]*sim.Request, error) {
	if err := spec.Validate(); err != nil {
		return nil, fmt.Errorf("invalid workload spec: %w", err)
	}
	if spec.NumRequests == 0 {
		return nil, nil
	}
	arrivalRNG := rng.ForSubsystem(sim.SubsystemArrivals)
	tokenRNG := rng.ForSubsystem(sim.SubsystemTokens)

	arrivals := NewArrivalSampler(spec.Arrival, spec.Rate)
	prefill, err := NewLengthSampler(spec.Prefill)
	if err != nil {
		return nil, fmt.Errorf("prefill distribution: %w", err)
	}
	decode, err := NewLengthSampler(spec.Decode)
	if err != nil {
		return nil, fmt.Errorf("decode distribution: %w", err)
	}

	reqs := make([]*sim.Request, 0, spec.NumRequests)
	now := spec.StartTime
	for i := 0; i < spec.NumRequests; i++ {
		if i > 0 {
			now += arrivals.SampleIAT(arrivalRNG)
		}
		p := prefill.Sample(tokenRNG)
		if p < 1 {
			p = 1 // a request always carries a prompt
		}
		reqs = append(reqs, sim.NewRequest(now, p, decode.Sample(tokenRNG)))
	}
	return reqs, nil
}
