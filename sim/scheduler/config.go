package scheduler

import "fmt"

// Default values applied by New for zero-valued Config fields.
const (
	DefaultMaxBatchSize     = 128
	DefaultStageConcurrency = 1
)

// Config describes the cluster topology and the reference policies.
type Config struct {
	NumReplicas int
	NumStages   int
	// StageConcurrency bounds concurrent batch stages per (replica, stage).
	// 0 means DefaultStageConcurrency.
	StageConcurrency int

	GlobalPolicy string // see ValidGlobalPolicies

	MaxBatchSize      int // 0 means DefaultMaxBatchSize
	MaxTokensPerBatch int // 0 disables the token budget
	// MaxInFlight bounds the batches a replica keeps in its pipeline.
	// 0 means NumStages, which keeps every stage busy.
	MaxInFlight int

	Execution ExecutionModel
}

// Validate checks topology, policy names and parameter ranges.
func (c Config) Validate() error {
	if c.NumReplicas <= 0 {
		return fmt.Errorf("replicas must be positive, got %d", c.NumReplicas)
	}
	if c.NumStages <= 0 {
		return fmt.Errorf("stages must be positive, got %d", c.NumStages)
	}
	if c.StageConcurrency < 0 {
		return fmt.Errorf("stage concurrency must be non-negative, got %d", c.StageConcurrency)
	}
	if !ValidGlobalPolicies[c.GlobalPolicy] {
		return fmt.Errorf("unknown global scheduler policy %q; valid options: round-robin, least-outstanding", c.GlobalPolicy)
	}
	if c.MaxBatchSize < 0 {
		return fmt.Errorf("max batch size must be non-negative, got %d", c.MaxBatchSize)
	}
	if c.MaxTokensPerBatch < 0 {
		return fmt.Errorf("max tokens per batch must be non-negative, got %d", c.MaxTokensPerBatch)
	}
	if c.MaxInFlight < 0 {
		return fmt.Errorf("max in-flight batches must be non-negative, got %d", c.MaxInFlight)
	}
	if c.Execution == nil {
		return fmt.Errorf("execution model must be set")
	}
	if v, ok := c.Execution.(interface{ Validate() error }); ok {
		if err := v.Validate(); err != nil {
			return err
		}
	}
	return nil
}

func (c Config) withDefaults() Config {
	if c.StageConcurrency == 0 {
		c.StageConcurrency = DefaultStageConcurrency
	}
	if c.MaxBatchSize == 0 {
		c.MaxBatchSize = DefaultMaxBatchSize
	}
	if c.MaxInFlight == 0 {
		c.MaxInFlight = c.NumStages
	}
	return c
}
