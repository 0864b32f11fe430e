package sim

import "fmt"

// Store is the arena that owns every Request, Batch and BatchStage of a run.
// Entities are addressed by dense integer ids; events carry ids, never pointers,
// so every mutation site goes through a lookup here.
//
// Thread-safety: NOT thread-safe. Owned by the single-goroutine driver.
type Store struct {
	requests []*Request
	batches  []*Batch
	stages   []*BatchStage
}

// NewStore creates an empty arena.
func NewStore() *Store {
	return &Store{}
}

// AddRequest takes ownership of req, assigns its id and returns it.
func (s *Store) AddRequest(req *Request) RequestID {
	if req == nil {
		panic("Store.AddRequest: req must not be nil")
	}
	req.ID = RequestID(len(s.requests))
	if req.State == "" {
		req.State = RequestPending
	}
	s.requests = append(s.requests, req)
	return req.ID
}

// Request looks up a request by id.
func (s *Store) Request(id RequestID) (*Request, error) {
	if id < 0 || int(id) >= len(s.requests) {
		return nil, unknownEntity("request", int(id))
	}
	return s.requests[id], nil
}

// NewBatch creates an in-flight batch on replica from plan, scheduled at now.
func (s *Store) NewBatch(replica ReplicaID, plan BatchPlan, now float64) (*Batch, error) {
	if len(plan.Requests) == 0 {
		return nil, &ContractViolationError{Event: EventTypeReplicaSchedule, Time: now, Replica: replica, Stage: -1, Detail: "empty batch plan"}
	}
	if len(plan.NumTokens) != len(plan.Requests) {
		return nil, &ContractViolationError{Event: EventTypeReplicaSchedule, Time: now, Replica: replica, Stage: -1,
			Detail: "batch plan token counts do not match request count"}
	}
	b := &Batch{
		ID:          BatchID(len(s.batches)),
		ReplicaID:   replica,
		RequestIDs:  append([]RequestID(nil), plan.Requests...),
		NumTokens:   append([]int(nil), plan.NumTokens...),
		State:       BatchInFlight,
		ScheduledAt: now,
	}
	seen := make(map[RequestID]bool, len(b.RequestIDs))
	for i, id := range b.RequestIDs {
		req, err := s.Request(id)
		if err != nil {
			return nil, err
		}
		if b.NumTokens[i] < 0 {
			return nil, &ContractViolationError{Event: EventTypeReplicaSchedule, Time: now, Replica: replica, Stage: -1,
				Detail: fmt.Sprintf("request %d planned with negative token count %d", id, b.NumTokens[i])}
		}
		if seen[id] {
			return nil, &ContractViolationError{Event: EventTypeReplicaSchedule, Time: now, Replica: replica, Stage: -1,
				Detail: fmt.Sprintf("request %d appears twice in batch plan", id)}
		}
		seen[id] = true
		if req.State != RequestPending {
			return nil, &ContractViolationError{Event: EventTypeReplicaSchedule, Time: now, Replica: replica, Stage: -1,
				Detail: fmt.Sprintf("request %d is %s, not pending", id, req.State)}
		}
		if req.PrefillComplete {
			b.NumDecodeTokens += b.NumTokens[i]
		} else {
			b.NumPrefillTokens += b.NumTokens[i]
		}
	}
	s.batches = append(s.batches, b)
	return b, nil
}

// Batch looks up a batch by id.
func (s *Store) Batch(id BatchID) (*Batch, error) {
	if id < 0 || int(id) >= len(s.batches) {
		return nil, unknownEntity("batch", int(id))
	}
	return s.batches[id], nil
}

// NewBatchStage creates a pending BatchStage for batch at (replica, stage) and
// links it to the batch.
func (s *Store) NewBatchStage(b *Batch, stage StageID) *BatchStage {
	bs := &BatchStage{
		ID:        BatchStageID(len(s.stages)),
		BatchID:   b.ID,
		ReplicaID: b.ReplicaID,
		StageID:   stage,

		BatchSize:        b.Size(),
		NumPrefillTokens: b.NumPrefillTokens,
		NumDecodeTokens:  b.NumDecodeTokens,

		State: StagePending,
	}
	s.stages = append(s.stages, bs)
	b.Stages = append(b.Stages, bs.ID)
	return bs
}

// BatchStage looks up a batch stage by id.
func (s *Store) BatchStage(id BatchStageID) (*BatchStage, error) {
	if id < 0 || int(id) >= len(s.stages) {
		return nil, unknownEntity("batch_stage", int(id))
	}
	return s.stages[id], nil
}

// Requests returns all requests in id order. Callers MUST NOT modify the slice.
func (s *Store) Requests() []*Request { return s.requests }

// Batches returns all batches in id order. Callers MUST NOT modify the slice.
func (s *Store) Batches() []*Batch { return s.batches }

// BatchStages returns all batch stages in id order. Callers MUST NOT modify the slice.
func (s *Store) BatchStages() []*BatchStage { return s.stages }
