package scheduler

import (
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/inference-sim/pipeline-sim/sim"
)

// ReplicaLoad is a lightweight view of one replica for placement decisions.
type ReplicaLoad struct {
	ID          sim.ReplicaID
	Outstanding int // assigned, not yet completed, including placements earlier in the same pass
}

// PlacementPolicy decides which replica receives a request.
type PlacementPolicy interface {
	Place(req *sim.Request, loads []ReplicaLoad) sim.ReplicaID
}

// RoundRobin places requests on replicas in turn.
type RoundRobin struct {
	counter int
}

// Place implements PlacementPolicy for RoundRobin.
func (rr *RoundRobin) Place(_ *sim.Request, loads []ReplicaLoad) sim.ReplicaID {
	if len(loads) == 0 {
		panic("RoundRobin.Place: empty loads")
	}
	target := loads[rr.counter%len(loads)]
	rr.counter++
	return target.ID
}

// LeastOutstanding places each request on the replica with the fewest
// outstanding requests. Ties are broken by lowest replica index.
type LeastOutstanding struct{}

// Place implements PlacementPolicy for LeastOutstanding.
func (LeastOutstanding) Place(_ *sim.Request, loads []ReplicaLoad) sim.ReplicaID {
	if len(loads) == 0 {
		panic("LeastOutstanding.Place: empty loads")
	}
	best := loads[0]
	for _, l := range loads[1:] {
		if l.Outstanding < best.Outstanding {
			best = l
		}
	}
	return best.ID
}

// ValidGlobalPolicies is the set of recognized placement policy names.
var ValidGlobalPolicies = map[string]bool{"": true, "round-robin": true, "least-outstanding": true}

// NewPlacementPolicy creates a placement policy by name.
// Empty string defaults to round-robin. Panics on unrecognized names.
func NewPlacementPolicy(name string) PlacementPolicy {
	switch name {
	case "", "round-robin":
		return &RoundRobin{}
	case "least-outstanding":
		return LeastOutstanding{}
	default:
		panic(fmt.Sprintf("unknown global scheduler policy %q", name))
	}
}

// Cluster is the reference sim.GlobalScheduler. It owns one Replica and one
// Stage per (replica, stage) pair and places arriving requests with its
// PlacementPolicy.
type Cluster struct {
	cfg      Config
	policy   PlacementPolicy
	replicas []*Replica
	stages   [][]*Stage
	pending  []*sim.Request
	log      logrus.FieldLogger
}

// New builds a Cluster from cfg. Panics if cfg is invalid; callers that load
// configuration from files should run cfg.Validate() first.
func New(cfg Config) *Cluster {
	if err := cfg.Validate(); err != nil {
		panic(fmt.Sprintf("scheduler.New: %v", err))
	}
	cfg = cfg.withDefaults()
	c := &Cluster{
		cfg:    cfg,
		policy: NewPlacementPolicy(cfg.GlobalPolicy),
		log:    logrus.WithField("component", "scheduler"),
	}
	for r := 0; r < cfg.NumReplicas; r++ {
		id := sim.ReplicaID(r)
		c.replicas = append(c.replicas, newReplica(id, cfg.MaxBatchSize, cfg.MaxTokensPerBatch, cfg.MaxInFlight))
		row := make([]*Stage, cfg.NumStages)
		for s := range row {
			row[s] = newStage(id, sim.StageID(s), cfg.NumStages, cfg.StageConcurrency, cfg.Execution)
		}
		c.stages = append(c.stages, row)
	}
	return c
}

// NumReplicas implements sim.GlobalScheduler.
func (c *Cluster) NumReplicas() int { return c.cfg.NumReplicas }

// NumStages implements sim.GlobalScheduler.
func (c *Cluster) NumStages() int { return c.cfg.NumStages }

// AddRequest implements sim.GlobalScheduler.
func (c *Cluster) AddRequest(req *sim.Request) {
	c.pending = append(c.pending, req)
}

// Schedule implements sim.GlobalScheduler. Every pending request is placed in
// arrival order; loads account for placements made earlier in the same pass.
func (c *Cluster) Schedule(now float64) []sim.Assignment {
	if len(c.pending) == 0 {
		return nil
	}
	loads := make([]ReplicaLoad, len(c.replicas))
	for i, r := range c.replicas {
		loads[i] = ReplicaLoad{ID: r.ID(), Outstanding: r.Outstanding()}
	}
	out := make([]sim.Assignment, 0, len(c.pending))
	for _, req := range c.pending {
		target := c.policy.Place(req, loads)
		if int(target) < 0 || int(target) >= len(loads) {
			panic(fmt.Sprintf("placement policy returned replica %d outside [0, %d)", target, len(loads)))
		}
		loads[target].Outstanding++
		out = append(out, sim.Assignment{Replica: target, Request: req.ID})
	}
	c.log.WithFields(logrus.Fields{"time": now, "placed": len(out)}).Debug("global schedule")
	c.pending = c.pending[:0]
	return out
}

// ReplicaScheduler implements sim.GlobalScheduler.
func (c *Cluster) ReplicaScheduler(r sim.ReplicaID) (sim.ReplicaScheduler, error) {
	rs, err := c.Replica(r)
	if err != nil {
		return nil, err
	}
	return rs, nil
}

// ReplicaStageScheduler implements sim.GlobalScheduler.
func (c *Cluster) ReplicaStageScheduler(r sim.ReplicaID, s sim.StageID) (sim.ReplicaStageScheduler, error) {
	st, err := c.Stage(r, s)
	if err != nil {
		return nil, err
	}
	return st, nil
}

// Replica returns the concrete replica scheduler for inspection.
func (c *Cluster) Replica(r sim.ReplicaID) (*Replica, error) {
	if int(r) < 0 || int(r) >= len(c.replicas) {
		return nil, fmt.Errorf("unknown %s", r)
	}
	return c.replicas[r], nil
}

// Stage returns the concrete stage scheduler for inspection.
func (c *Cluster) Stage(r sim.ReplicaID, s sim.StageID) (*Stage, error) {
	if int(r) < 0 || int(r) >= len(c.stages) {
		return nil, fmt.Errorf("unknown %s", r)
	}
	if int(s) < 0 || int(s) >= len(c.stages[r]) {
		return nil, fmt.Errorf("unknown %s on %s", s, r)
	}
	return c.stages[r][s], nil
}

// Replicas returns every replica scheduler in id order.
func (c *Cluster) Replicas() []*Replica { return c.replicas }
