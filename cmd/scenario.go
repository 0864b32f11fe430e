package cmd

import (
	"bytes"
	"fmt"
	"math"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/inference-sim/pipeline-sim/sim"
	"github.com/inference-sim/pipeline-sim/sim/scheduler"
	"github.com/inference-sim/pipeline-sim/sim/workload"
)

// Scenario is the top-level structure of a scenario YAML file.
// All top-level sections must be listed to satisfy KnownFields(true) strict parsing.
type Scenario struct {
	Name                string          `yaml:"name"`
	Seed                int64           `yaml:"seed"`
	Horizon             float64         `yaml:"horizon"` // seconds; <= 0 runs to completion
	MaxEventsPerInstant int             `yaml:"max_events_per_instant"`
	Cluster             ClusterConfig   `yaml:"cluster"`
	Scheduler           SchedulerConfig `yaml:"scheduler"`
	Execution           ExecutionConfig `yaml:"execution"`
	Workload            workload.Spec   `yaml:"workload"`
}

// ClusterConfig is the topology section.
type ClusterConfig struct {
	Replicas         int `yaml:"replicas"`
	Stages           int `yaml:"stages"`
	StageConcurrency int `yaml:"stage_concurrency"`
}

// SchedulerConfig is the policy section.
type SchedulerConfig struct {
	Global            string `yaml:"global"`
	MaxBatchSize      int    `yaml:"max_batch_size"`
	MaxTokensPerBatch int    `yaml:"max_tokens_per_batch"`
	MaxInFlight       int    `yaml:"max_in_flight"`
}

// ExecutionConfig prices batch stages. A set StageTime selects a constant
// per-stage duration; otherwise the linear coefficients apply.
type ExecutionConfig struct {
	scheduler.LinearModel `yaml:",inline"`
	StageTime             *float64 `yaml:"stage_time,omitempty"`
}

// Model returns the execution model described by the section.
func (e ExecutionConfig) Model() scheduler.ExecutionModel {
	if e.StageTime != nil {
		return scheduler.ConstantModel(*e.StageTime)
	}
	return e.LinearModel
}

// DefaultScenario is used when no --config is given: a 2x4 pipeline under a
// light Poisson load.
func DefaultScenario() *Scenario {
	return &Scenario{
		Name: "default",
		Seed: 42,
		Cluster: ClusterConfig{
			Replicas: 2,
			Stages:   4,
		},
		Scheduler: SchedulerConfig{
			Global:            "round-robin",
			MaxBatchSize:      32,
			MaxTokensPerBatch: 4096,
		},
		Execution: ExecutionConfig{
			LinearModel: scheduler.LinearModel{Alpha: 0.005, BetaPrefill: 0.0001, BetaDecode: 0.0005},
		},
		Workload: workload.Spec{
			NumRequests: 200,
			Rate:        20,
			Arrival:     workload.ArrivalSpec{Process: "poisson"},
			Prefill:     workload.DistSpec{Type: "uniform", Params: map[string]float64{"min": 64, "max": 1024}},
			Decode:      workload.DistSpec{Type: "uniform", Params: map[string]float64{"min": 16, "max": 256}},
		},
	}
}

// LoadScenario reads and parses a YAML scenario file.
// Uses strict parsing: unrecognized keys (typos) are rejected.
func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading scenario: %w", err)
	}
	var sc Scenario
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&sc); err != nil {
		return nil, fmt.Errorf("parsing scenario: %w", err)
	}
	return &sc, nil
}

// Validate checks every section of the scenario.
func (s *Scenario) Validate() error {
	if math.IsNaN(s.Horizon) || math.IsInf(s.Horizon, 0) {
		return fmt.Errorf("horizon must be a finite number, got %f", s.Horizon)
	}
	if err := s.SimConfig().Validate(); err != nil {
		return err
	}
	if s.Execution.StageTime != nil {
		if err := scheduler.ConstantModel(*s.Execution.StageTime).Validate(); err != nil {
			return fmt.Errorf("execution: %w", err)
		}
	}
	if err := s.SchedulerConfig().Validate(); err != nil {
		return fmt.Errorf("scenario: %w", err)
	}
	if err := s.Workload.Validate(); err != nil {
		return fmt.Errorf("workload: %w", err)
	}
	return nil
}

// SimConfig returns the driver parameters.
func (s *Scenario) SimConfig() sim.Config {
	return sim.Config{Horizon: s.Horizon, MaxEventsPerInstant: s.MaxEventsPerInstant}
}

// SchedulerConfig returns the configuration of the reference schedulers.
func (s *Scenario) SchedulerConfig() scheduler.Config {
	return scheduler.Config{
		NumReplicas:       s.Cluster.Replicas,
		NumStages:         s.Cluster.Stages,
		StageConcurrency:  s.Cluster.StageConcurrency,
		GlobalPolicy:      s.Scheduler.Global,
		MaxBatchSize:      s.Scheduler.MaxBatchSize,
		MaxTokensPerBatch: s.Scheduler.MaxTokensPerBatch,
		MaxInFlight:       s.Scheduler.MaxInFlight,
		Execution:         s.Execution.Model(),
	}
}
