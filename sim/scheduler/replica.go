package scheduler

import (
	"github.com/inference-sim/pipeline-sim/sim"
)

// Replica is an FCFS batching replica scheduler.
//
// Each Schedule call forms batches from the front of the wait queue until
// MaxInFlight batches are in the pipeline. A batch takes up to MaxBatchSize
// requests and, when MaxTokensPerBatch is positive, at most that many tokens;
// a prompt that does not fit the remaining budget is split (chunked prefill).
// Requests that still have work after a batch ends resume ahead of newer ones.
type Replica struct {
	id                sim.ReplicaID
	maxBatchSize      int
	maxTokensPerBatch int
	maxInFlight       int

	queue     waitQueue
	inFlight  int
	inBatches int // requests currently inside an in-flight batch
	completed int
	batches   int
}

func newReplica(id sim.ReplicaID, maxBatchSize, maxTokensPerBatch, maxInFlight int) *Replica {
	if maxBatchSize <= 0 || maxInFlight <= 0 {
		panic("newReplica: batch size and in-flight limit must be positive")
	}
	return &Replica{
		id:                id,
		maxBatchSize:      maxBatchSize,
		maxTokensPerBatch: maxTokensPerBatch,
		maxInFlight:       maxInFlight,
	}
}

// AddRequest implements sim.ReplicaScheduler.
func (r *Replica) AddRequest(req *sim.Request) {
	r.queue.Enqueue(req)
}

// Schedule implements sim.ReplicaScheduler.
func (r *Replica) Schedule(float64) []sim.BatchPlan {
	var plans []sim.BatchPlan
	for r.inFlight < r.maxInFlight && r.queue.Len() > 0 {
		plan := r.formBatch()
		if len(plan.Requests) == 0 {
			break
		}
		r.inFlight++
		r.inBatches += len(plan.Requests)
		r.batches++
		plans = append(plans, plan)
	}
	return plans
}

func (r *Replica) formBatch() sim.BatchPlan {
	var plan sim.BatchPlan
	tokens := 0
	for r.queue.Len() > 0 && len(plan.Requests) < r.maxBatchSize {
		n := r.queue.Peek().NextPassTokens()
		if r.maxTokensPerBatch > 0 {
			left := r.maxTokensPerBatch - tokens
			if left <= 0 {
				break
			}
			if n > left {
				n = left
			}
		}
		req := r.queue.Dequeue()
		plan.Requests = append(plan.Requests, req.ID)
		plan.NumTokens = append(plan.NumTokens, n)
		tokens += n
	}
	return plan
}

// OnBatchEnd implements sim.ReplicaScheduler.
func (r *Replica) OnBatchEnd(batch *sim.Batch, reqs []*sim.Request) {
	r.inFlight--
	r.inBatches -= len(reqs)
	var resume []*sim.Request
	for _, req := range reqs {
		if req.Completed() {
			r.completed++
			continue
		}
		resume = append(resume, req)
	}
	r.queue.PrependFront(resume)
}

// ID returns the replica id.
func (r *Replica) ID() sim.ReplicaID { return r.id }

// Outstanding returns the number of assigned requests that have not completed.
func (r *Replica) Outstanding() int { return r.queue.Len() + r.inBatches }

// InFlight returns the number of batches currently in the pipeline.
func (r *Replica) InFlight() int { return r.inFlight }

// Waiting returns the number of requests waiting for a batch.
func (r *Replica) Waiting() int { return r.queue.Len() }

// Completed returns the number of requests that finished on this replica.
func (r *Replica) Completed() int { return r.completed }

// BatchesFormed returns the number of batches this replica has planned.
func (r *Replica) BatchesFormed() int { return r.batches }
