// batch_stage.go
//
// Defines BatchStage: the execution of one Batch at one pipeline stage on one
// replica, and the Pending -> Scheduled -> Running -> Completed state machine.

package sim

import "fmt"

// BatchStageState is the lifecycle state of a BatchStage.
type BatchStageState string

const (
	StagePending   BatchStageState = "pending"
	StageScheduled BatchStageState = "scheduled"
	StageRunning   BatchStageState = "running"
	StageCompleted BatchStageState = "completed"
)

// BatchStage records one batch's pass through one (replica, stage) slot.
// BatchID is a lookup back-reference; the Store owns both entities.
type BatchStage struct {
	ID        BatchStageID
	BatchID   BatchID
	ReplicaID ReplicaID
	StageID   StageID

	// Work description copied from the batch at creation, so stage schedulers
	// can price the stage without a Store lookup.
	BatchSize        int
	NumPrefillTokens int
	NumDecodeTokens  int

	State         BatchStageState
	ExecutionTime float64 // granted by the stage scheduler at start

	AdmittedAt float64
	StartTime  float64
	EndTime    float64

	hasStart bool
	hasEnd   bool
}

// onAdmit moves Pending -> Scheduled.
func (s *BatchStage) onAdmit(now float64) error {
	if s.State != StagePending {
		return s.violation(EventTypeBatchStageArrival, now, StageScheduled)
	}
	s.State = StageScheduled
	s.AdmittedAt = now
	return nil
}

// onStart moves Scheduled -> Running and records the start time exactly once.
func (s *BatchStage) onStart(now, executionTime float64) error {
	if s.State != StageScheduled || s.hasStart {
		return s.violation(EventTypeReplicaStageSchedule, now, StageRunning)
	}
	if now < s.AdmittedAt {
		v := s.violation(EventTypeReplicaStageSchedule, now, StageRunning)
		v.Last = s.AdmittedAt
		return v
	}
	s.State = StageRunning
	s.ExecutionTime = executionTime
	s.StartTime = now
	s.hasStart = true
	return nil
}

// onEnd moves Running -> Completed and records the end time exactly once.
func (s *BatchStage) onEnd(now float64) error {
	if s.State != StageRunning || s.hasEnd {
		return s.violation(EventTypeBatchStageEnd, now, StageCompleted)
	}
	if now < s.StartTime {
		v := s.violation(EventTypeBatchStageEnd, now, StageCompleted)
		v.Last = s.StartTime
		return v
	}
	s.State = StageCompleted
	s.EndTime = now
	s.hasEnd = true
	return nil
}

// HasStarted reports whether the start time has been recorded.
func (s *BatchStage) HasStarted() bool { return s.hasStart }

// HasEnded reports whether the end time has been recorded.
func (s *BatchStage) HasEnded() bool { return s.hasEnd }

// Duration returns EndTime - StartTime, or an IncompleteStateError if either is unset.
func (s *BatchStage) Duration() (float64, error) {
	if err := s.requireBounds(); err != nil {
		return 0, err
	}
	return s.EndTime - s.StartTime, nil
}

// Fields exports the stage's identifiers and recorded bounds.
func (s *BatchStage) Fields() (Fields, error) {
	if err := s.requireBounds(); err != nil {
		return nil, err
	}
	return Fields{
		FieldBatchStageID: int(s.ID),
		FieldBatchID:      int(s.BatchID),
		FieldReplicaID:    int(s.ReplicaID),
		FieldStageID:      int(s.StageID),
		FieldStartTime:    s.StartTime,
		FieldEndTime:      s.EndTime,
		"execution_time":  s.ExecutionTime,
	}, nil
}

// Span returns the timeline span of the stage. The batch supplies the label and
// size arguments. Fails with IncompleteStateError until the end time is set.
func (s *BatchStage) Span(b *Batch) (TimelineSpan, error) {
	if err := s.requireBounds(); err != nil {
		return TimelineSpan{}, err
	}
	ids := make([]int, len(b.RequestIDs))
	for i, id := range b.RequestIDs {
		ids[i] = int(id)
	}
	return TimelineSpan{
		Label:   fmt.Sprintf("batch %d stage %d", b.ID, s.StageID),
		Start:   s.StartTime,
		End:     s.EndTime,
		Replica: s.ReplicaID,
		Stage:   s.StageID,
		Args: map[string]any{
			FieldBatchID:         int(b.ID),
			FieldBatchStageID:    int(s.ID),
			"batch_size":         b.Size(),
			"request_ids":        ids,
			"num_tokens":         b.TotalTokens(),
			"num_prefill_tokens": b.NumPrefillTokens,
			"num_decode_tokens":  b.NumDecodeTokens,
		},
	}, nil
}

func (s *BatchStage) requireBounds() error {
	if !s.hasStart {
		return &IncompleteStateError{Entity: s.describe(), Missing: "start time"}
	}
	if !s.hasEnd {
		return &IncompleteStateError{Entity: s.describe(), Missing: "end time"}
	}
	return nil
}

func (s *BatchStage) violation(ev EventType, now float64, to BatchStageState) *OrderingViolationError {
	return &OrderingViolationError{
		Event: ev, Time: now,
		Entity: s.describe(), From: string(s.State), To: string(to),
	}
}

func (s *BatchStage) describe() string {
	return fmt.Sprintf("batch_stage %d (batch %d, replica %d, stage %d)", s.ID, s.BatchID, s.ReplicaID, s.StageID)
}
