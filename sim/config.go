package sim

import (
	"fmt"
	"math"
)

// Config groups driver parameters. The zero value is a valid unbounded run.
type Config struct {
	// Horizon stops the run before the first event later than it. <= 0 disables it.
	Horizon float64
	// MaxEventsPerInstant bounds how many events may fire at one timestamp before
	// the run aborts with ErrLivelock. 0 disables the bound.
	MaxEventsPerInstant int
}

// HasHorizon reports whether a horizon is configured.
func (c Config) HasHorizon() bool {
	return c.Horizon > 0
}

// Validate checks parameter ranges.
func (c Config) Validate() error {
	if math.IsNaN(c.Horizon) || math.IsInf(c.Horizon, -1) {
		return fmt.Errorf("horizon must be a number, got %v", c.Horizon)
	}
	if c.MaxEventsPerInstant < 0 {
		return fmt.Errorf("max events per instant must be non-negative, got %d", c.MaxEventsPerInstant)
	}
	return nil
}
