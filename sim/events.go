package sim

import "fmt"

// This file owns the closed set of event kinds. Follow-up construction happens
// here only, so kinds can reference each other without import indirection.
//
// Path of a batch through one replica with N stages:
//
//	RequestArrival -> GlobalSchedule -> ReplicaSchedule -> BatchStageArrival(0)
//	  -> ReplicaStageSchedule(0) -> BatchStageEnd(0) -> BatchStageArrival(1) ...
//	  -> BatchStageEnd(N-1) -> BatchEnd -> ReplicaSchedule

// === RequestArrivalEvent ===

// RequestArrivalEvent represents the arrival of a request into the system.
type RequestArrivalEvent struct {
	baseEvent
	noSpan
	RequestID RequestID
}

// NewRequestArrivalEvent creates an arrival for a request already in the Store.
func NewRequestArrivalEvent(time float64, id RequestID) *RequestArrivalEvent {
	return &RequestArrivalEvent{baseEvent: baseEvent{time}, RequestID: id}
}

func (e *RequestArrivalEvent) Type() EventType { return EventTypeRequestArrival }

// Handle hands the request to the global scheduler and triggers a placement pass.
func (e *RequestArrivalEvent) Handle(env *Env) ([]Event, error) {
	req, err := env.Store.Request(e.RequestID)
	if err != nil {
		return nil, err
	}
	env.Scheduler.AddRequest(req)
	env.Metrics.OnRequestArrival(e.time, req)
	return []Event{NewGlobalScheduleEvent(e.time)}, nil
}

func (e *RequestArrivalEvent) Fields(*Store) (Fields, error) {
	f := e.fields(e.Type())
	f[FieldRequestID] = int(e.RequestID)
	return f, nil
}

// === GlobalScheduleEvent ===

// GlobalScheduleEvent asks the global scheduler to place pending requests.
type GlobalScheduleEvent struct {
	baseEvent
	noSpan
	// Replicas lists the replicas that received requests, filled by Handle.
	Replicas []ReplicaID
}

func NewGlobalScheduleEvent(time float64) *GlobalScheduleEvent {
	return &GlobalScheduleEvent{baseEvent: baseEvent{time}}
}

func (e *GlobalScheduleEvent) Type() EventType { return EventTypeGlobalSchedule }

// Handle forwards each assignment to its replica scheduler and emits one
// ReplicaScheduleEvent per distinct replica, in order of first appearance.
func (e *GlobalScheduleEvent) Handle(env *Env) ([]Event, error) {
	assignments := env.Scheduler.Schedule(e.time)
	seen := make(map[ReplicaID]bool)
	var next []Event
	for _, a := range assignments {
		rs, err := env.replicaScheduler(e.Type(), e.time, a.Replica)
		if err != nil {
			return nil, err
		}
		req, err := env.Store.Request(a.Request)
		if err != nil {
			return nil, err
		}
		rs.AddRequest(req)
		if !seen[a.Replica] {
			seen[a.Replica] = true
			e.Replicas = append(e.Replicas, a.Replica)
			next = append(next, NewReplicaScheduleEvent(e.time, a.Replica))
		}
	}
	return next, nil
}

func (e *GlobalScheduleEvent) Fields(*Store) (Fields, error) {
	f := e.fields(e.Type())
	ids := make([]int, len(e.Replicas))
	for i, r := range e.Replicas {
		ids[i] = int(r)
	}
	f["replica_ids"] = ids
	return f, nil
}

// === ReplicaScheduleEvent ===

// ReplicaScheduleEvent asks one replica's scheduler to form new batches.
type ReplicaScheduleEvent struct {
	baseEvent
	noSpan
	ReplicaID ReplicaID
	// Batches lists the batches formed, filled by Handle.
	Batches []BatchID
}

func NewReplicaScheduleEvent(time float64, replica ReplicaID) *ReplicaScheduleEvent {
	return &ReplicaScheduleEvent{baseEvent: baseEvent{time}, ReplicaID: replica}
}

func (e *ReplicaScheduleEvent) Type() EventType { return EventTypeReplicaSchedule }

// Handle creates a Batch for every plan and sends each to stage 0.
func (e *ReplicaScheduleEvent) Handle(env *Env) ([]Event, error) {
	rs, err := env.replicaScheduler(e.Type(), e.time, e.ReplicaID)
	if err != nil {
		return nil, err
	}
	plans := rs.Schedule(e.time)
	next := make([]Event, 0, len(plans))
	for _, plan := range plans {
		batch, err := env.Store.NewBatch(e.ReplicaID, plan, e.time)
		if err != nil {
			return nil, err
		}
		for _, id := range batch.RequestIDs {
			req, err := env.Store.Request(id)
			if err != nil {
				return nil, err
			}
			if err := req.OnSchedule(e.time); err != nil {
				return nil, err
			}
		}
		e.Batches = append(e.Batches, batch.ID)
		next = append(next, NewBatchStageArrivalEvent(e.time, e.ReplicaID, 0, batch.ID))
	}
	return next, nil
}

func (e *ReplicaScheduleEvent) Fields(*Store) (Fields, error) {
	f := e.fields(e.Type())
	f[FieldReplicaID] = int(e.ReplicaID)
	ids := make([]int, len(e.Batches))
	for i, b := range e.Batches {
		ids[i] = int(b)
	}
	f["batch_ids"] = ids
	return f, nil
}

// === BatchStageArrivalEvent ===

// BatchStageArrivalEvent represents a batch reaching a pipeline stage.
type BatchStageArrivalEvent struct {
	baseEvent
	noSpan
	ReplicaID ReplicaID
	StageID   StageID
	BatchID   BatchID
	// BatchStageID is the stage record created by Handle.
	BatchStageID BatchStageID
	handled      bool
}

func NewBatchStageArrivalEvent(time float64, replica ReplicaID, stage StageID, batch BatchID) *BatchStageArrivalEvent {
	return &BatchStageArrivalEvent{baseEvent: baseEvent{time}, ReplicaID: replica, StageID: stage, BatchID: batch}
}

func (e *BatchStageArrivalEvent) Type() EventType { return EventTypeBatchStageArrival }

// Handle creates the BatchStage, admits it into the stage's queue and lets the
// stage try to start work.
func (e *BatchStageArrivalEvent) Handle(env *Env) ([]Event, error) {
	ss, err := env.stageScheduler(e.Type(), e.time, e.ReplicaID, e.StageID)
	if err != nil {
		return nil, err
	}
	batch, err := env.Store.Batch(e.BatchID)
	if err != nil {
		return nil, err
	}
	if batch.ReplicaID != e.ReplicaID {
		return nil, &ContractViolationError{Event: e.Type(), Time: e.time, Replica: e.ReplicaID, Stage: e.StageID,
			Detail: fmt.Sprintf("batch %d belongs to replica %d", batch.ID, batch.ReplicaID)}
	}
	if batch.State != BatchInFlight || len(batch.Stages) != int(e.StageID) {
		return nil, &OrderingViolationError{Event: e.Type(), Time: e.time, Entity: batch.describe(),
			From: fmt.Sprintf("%s with %d stage(s)", batch.State, len(batch.Stages)), To: e.StageID.String()}
	}
	bs := env.Store.NewBatchStage(batch, e.StageID)
	if err := bs.onAdmit(e.time); err != nil {
		return nil, err
	}
	ss.Enqueue(bs)
	e.BatchStageID = bs.ID
	e.handled = true
	return []Event{NewReplicaStageScheduleEvent(e.time, e.ReplicaID, e.StageID)}, nil
}

func (e *BatchStageArrivalEvent) Fields(*Store) (Fields, error) {
	f := e.fields(e.Type())
	f[FieldReplicaID] = int(e.ReplicaID)
	f[FieldStageID] = int(e.StageID)
	f[FieldBatchID] = int(e.BatchID)
	if e.handled {
		f[FieldBatchStageID] = int(e.BatchStageID)
	}
	return f, nil
}

// === ReplicaStageScheduleEvent ===

// ReplicaStageScheduleEvent lets a (replica, stage) slot admit queued work.
type ReplicaStageScheduleEvent struct {
	baseEvent
	noSpan
	ReplicaID ReplicaID
	StageID   StageID
	// Started reports whether Handle started a batch stage; BatchID and
	// BatchStageID identify it when true.
	Started      bool
	BatchID      BatchID
	BatchStageID BatchStageID
}

func NewReplicaStageScheduleEvent(time float64, replica ReplicaID, stage StageID) *ReplicaStageScheduleEvent {
	return &ReplicaStageScheduleEvent{baseEvent: baseEvent{time}, ReplicaID: replica, StageID: stage}
}

func (e *ReplicaStageScheduleEvent) Type() EventType { return EventTypeReplicaStageSchedule }

// Handle starts the granted batch stage, if any, and schedules its end.
func (e *ReplicaStageScheduleEvent) Handle(env *Env) ([]Event, error) {
	ss, err := env.stageScheduler(e.Type(), e.time, e.ReplicaID, e.StageID)
	if err != nil {
		return nil, err
	}
	grant, ok := ss.Next(e.time)
	if !ok {
		return nil, nil
	}
	bs, err := env.Store.BatchStage(grant.BatchStage)
	if err != nil {
		return nil, err
	}
	if bs.ReplicaID != e.ReplicaID || bs.StageID != e.StageID {
		return nil, &ContractViolationError{Event: e.Type(), Time: e.time, Replica: e.ReplicaID, Stage: e.StageID,
			Detail: fmt.Sprintf("granted %s", bs.describe())}
	}
	if !validDuration(grant.ExecutionTime) {
		return nil, &ContractViolationError{Event: e.Type(), Time: e.time, Replica: e.ReplicaID, Stage: e.StageID,
			Detail: fmt.Sprintf("invalid execution time %v", grant.ExecutionTime)}
	}
	if err := bs.onStart(e.time, grant.ExecutionTime); err != nil {
		return nil, err
	}
	env.Metrics.OnBatchStageStart(e.time, e.ReplicaID, e.StageID, bs)
	e.Started = true
	e.BatchID = bs.BatchID
	e.BatchStageID = bs.ID
	return []Event{
		NewBatchStageEndEvent(e.time+grant.ExecutionTime, e.ReplicaID, e.StageID, env.isLastStage(e.StageID), bs.BatchID, bs.ID),
	}, nil
}

func (e *ReplicaStageScheduleEvent) Fields(*Store) (Fields, error) {
	f := e.fields(e.Type())
	f[FieldReplicaID] = int(e.ReplicaID)
	f[FieldStageID] = int(e.StageID)
	if e.Started {
		f[FieldBatchID] = int(e.BatchID)
		f[FieldBatchStageID] = int(e.BatchStageID)
	}
	return f, nil
}

// === BatchStageEndEvent ===

// BatchStageEndEvent represents one batch stage finishing execution.
type BatchStageEndEvent struct {
	baseEvent
	ReplicaID    ReplicaID
	StageID      StageID
	IsLastStage  bool
	BatchID      BatchID
	BatchStageID BatchStageID
}

func NewBatchStageEndEvent(time float64, replica ReplicaID, stage StageID, isLastStage bool, batch BatchID, bs BatchStageID) *BatchStageEndEvent {
	return &BatchStageEndEvent{
		baseEvent:    baseEvent{time},
		ReplicaID:    replica,
		StageID:      stage,
		IsLastStage:  isLastStage,
		BatchID:      batch,
		BatchStageID: bs,
	}
}

func (e *BatchStageEndEvent) Type() EventType { return EventTypeBatchStageEnd }

// Handle frees the slot, records completion and moves the batch on: to the next
// stage, or to BatchEnd after the last one. A ReplicaStageScheduleEvent at the
// same time lets the freed slot admit new work.
func (e *BatchStageEndEvent) Handle(env *Env) ([]Event, error) {
	ss, err := env.stageScheduler(e.Type(), e.time, e.ReplicaID, e.StageID)
	if err != nil {
		return nil, err
	}
	bs, err := env.Store.BatchStage(e.BatchStageID)
	if err != nil {
		return nil, err
	}
	if bs.BatchID != e.BatchID || bs.ReplicaID != e.ReplicaID || bs.StageID != e.StageID {
		return nil, &ContractViolationError{Event: e.Type(), Time: e.time, Replica: e.ReplicaID, Stage: e.StageID,
			Detail: fmt.Sprintf("event addresses batch %d but carries %s", e.BatchID, bs.describe())}
	}

	if err := bs.onEnd(e.time); err != nil {
		return nil, err
	}
	ss.OnStageEnd()
	env.Metrics.OnBatchStageEnd(e.time, e.ReplicaID, e.StageID)

	next := []Event{NewReplicaStageScheduleEvent(e.time, e.ReplicaID, e.StageID)}
	if e.IsLastStage {
		return append(next, NewBatchEndEvent(e.time, e.ReplicaID, e.BatchID)), nil
	}
	return append(next, NewBatchStageArrivalEvent(e.time, e.ReplicaID, e.StageID+1, e.BatchID)), nil
}

func (e *BatchStageEndEvent) Fields(*Store) (Fields, error) {
	f := e.fields(e.Type())
	f[FieldReplicaID] = int(e.ReplicaID)
	f[FieldStageID] = int(e.StageID)
	f[FieldBatchID] = int(e.BatchID)
	f[FieldBatchStageID] = int(e.BatchStageID)
	f[FieldIsLastStage] = e.IsLastStage
	return f, nil
}

// Span returns the timeline span of the completed batch stage.
func (e *BatchStageEndEvent) Span(store *Store) (*TimelineSpan, error) {
	bs, err := store.BatchStage(e.BatchStageID)
	if err != nil {
		return nil, err
	}
	batch, err := store.Batch(bs.BatchID)
	if err != nil {
		return nil, err
	}
	span, err := bs.Span(batch)
	if err != nil {
		return nil, err
	}
	return &span, nil
}

// === BatchEndEvent ===

// BatchEndEvent represents a batch leaving the last pipeline stage.
type BatchEndEvent struct {
	baseEvent
	noSpan
	ReplicaID ReplicaID
	BatchID   BatchID
}

func NewBatchEndEvent(time float64, replica ReplicaID, batch BatchID) *BatchEndEvent {
	return &BatchEndEvent{baseEvent: baseEvent{time}, ReplicaID: replica, BatchID: batch}
}

func (e *BatchEndEvent) Type() EventType { return EventTypeBatchEnd }

// Handle completes the batch, advances its requests, returns them to the
// replica scheduler and lets the replica form new batches.
func (e *BatchEndEvent) Handle(env *Env) ([]Event, error) {
	rs, err := env.replicaScheduler(e.Type(), e.time, e.ReplicaID)
	if err != nil {
		return nil, err
	}
	batch, err := env.Store.Batch(e.BatchID)
	if err != nil {
		return nil, err
	}
	if batch.ReplicaID != e.ReplicaID {
		return nil, &ContractViolationError{Event: e.Type(), Time: e.time, Replica: e.ReplicaID, Stage: -1,
			Detail: fmt.Sprintf("batch %d belongs to replica %d", batch.ID, batch.ReplicaID)}
	}
	if err := e.checkStagesCompleted(env, batch); err != nil {
		return nil, err
	}
	if err := batch.onComplete(e.time); err != nil {
		return nil, err
	}

	reqs := make([]*Request, len(batch.RequestIDs))
	for i, id := range batch.RequestIDs {
		req, err := env.Store.Request(id)
		if err != nil {
			return nil, err
		}
		if err := req.OnBatchEnd(e.time, batch.NumTokens[i]); err != nil {
			return nil, err
		}
		reqs[i] = req
	}
	rs.OnBatchEnd(batch, reqs)
	env.Metrics.OnBatchEnd(e.time, batch)
	return []Event{NewReplicaScheduleEvent(e.time, e.ReplicaID)}, nil
}

// checkStagesCompleted enforces that a batch ends only after its final stage.
func (e *BatchEndEvent) checkStagesCompleted(env *Env, batch *Batch) error {
	if len(batch.Stages) != env.Scheduler.NumStages() {
		return &OrderingViolationError{Event: e.Type(), Time: e.time, Entity: batch.describe(),
			From: fmt.Sprintf("%d of %d stages", len(batch.Stages), env.Scheduler.NumStages()), To: string(BatchCompleted)}
	}
	for _, id := range batch.Stages {
		bs, err := env.Store.BatchStage(id)
		if err != nil {
			return err
		}
		if bs.State != StageCompleted {
			return &OrderingViolationError{Event: e.Type(), Time: e.time, Entity: batch.describe(),
				From: fmt.Sprintf("stage %d %s", bs.StageID, bs.State), To: string(BatchCompleted)}
		}
	}
	return nil
}

func (e *BatchEndEvent) Fields(*Store) (Fields, error) {
	f := e.fields(e.Type())
	f[FieldReplicaID] = int(e.ReplicaID)
	f[FieldBatchID] = int(e.BatchID)
	return f, nil
}
