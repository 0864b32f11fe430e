package scheduler

import (
	"github.com/inference-sim/pipeline-sim/sim"
)

// Stage is a FIFO replica-stage scheduler. At most Capacity batch stages run
// at once; the rest wait in admission order.
type Stage struct {
	replica   sim.ReplicaID
	stage     sim.StageID
	numStages int
	capacity  int
	model     ExecutionModel

	queue   []*sim.BatchStage
	running int
	peak    int
	started int
}

func newStage(replica sim.ReplicaID, stage sim.StageID, numStages, capacity int, model ExecutionModel) *Stage {
	if capacity <= 0 {
		panic("newStage: capacity must be positive")
	}
	if model == nil {
		panic("newStage: execution model must not be nil")
	}
	return &Stage{replica: replica, stage: stage, numStages: numStages, capacity: capacity, model: model}
}

// Enqueue implements sim.ReplicaStageScheduler.
func (s *Stage) Enqueue(bs *sim.BatchStage) {
	s.queue = append(s.queue, bs)
}

// Next implements sim.ReplicaStageScheduler. It grants the oldest queued batch
// stage when a slot is free.
func (s *Stage) Next(float64) (sim.Grant, bool) {
	if len(s.queue) == 0 || s.running >= s.capacity {
		return sim.Grant{}, false
	}
	bs := s.queue[0]
	s.queue[0] = nil
	s.queue = s.queue[1:]
	s.running++
	s.started++
	if s.running > s.peak {
		s.peak = s.running
	}
	return sim.Grant{BatchStage: bs.ID, ExecutionTime: s.model.StageTime(bs, s.numStages)}, true
}

// OnStageEnd implements sim.ReplicaStageScheduler.
func (s *Stage) OnStageEnd() {
	if s.running == 0 {
		panic("Stage.OnStageEnd: no running batch stage on " + s.replica.String() + "/" + s.stage.String())
	}
	s.running--
}

// Running returns the number of batch stages currently executing.
func (s *Stage) Running() int { return s.running }

// QueueLen returns the number of admitted batch stages waiting for a slot.
func (s *Stage) QueueLen() int { return len(s.queue) }

// Peak returns the highest concurrency observed.
func (s *Stage) Peak() int { return s.peak }

// Started returns the number of grants issued.
func (s *Stage) Started() int { return s.started }

// Capacity returns the concurrency limit.
func (s *Stage) Capacity() int { return s.capacity }
