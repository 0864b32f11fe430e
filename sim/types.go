package sim

import "fmt"

// Identity types. Distinct named types (not aliases) so a stage index cannot be
// passed where a replica index is expected.
type (
	ReplicaID    int
	StageID      int
	RequestID    int
	BatchID      int
	BatchStageID int
)

// EventType discriminates the closed set of event kinds handled by the kernel.
type EventType string

const (
	EventTypeRequestArrival       EventType = "request_arrival"
	EventTypeGlobalSchedule       EventType = "global_schedule"
	EventTypeReplicaSchedule      EventType = "replica_schedule"
	EventTypeBatchStageArrival    EventType = "batch_stage_arrival"
	EventTypeReplicaStageSchedule EventType = "replica_stage_schedule"
	EventTypeBatchStageEnd        EventType = "batch_stage_end"
	EventTypeBatchEnd             EventType = "batch_end"
)

// eventTypes lists every kind in the order they are introduced along a batch's path.
var eventTypes = []EventType{
	EventTypeRequestArrival,
	EventTypeGlobalSchedule,
	EventTypeReplicaSchedule,
	EventTypeBatchStageArrival,
	EventTypeReplicaStageSchedule,
	EventTypeBatchStageEnd,
	EventTypeBatchEnd,
}

var validEventTypes = func() map[EventType]bool {
	m := make(map[EventType]bool, len(eventTypes))
	for _, t := range eventTypes {
		m[t] = true
	}
	return m
}()

// IsValidEventType reports whether t belongs to the closed set of event kinds.
func IsValidEventType(t EventType) bool {
	return validEventTypes[t]
}

// EventTypes returns all event kinds. The returned slice is a copy.
func EventTypes() []EventType {
	out := make([]EventType, len(eventTypes))
	copy(out, eventTypes)
	return out
}

func (r ReplicaID) String() string { return fmt.Sprintf("replica_%d", int(r)) }
func (s StageID) String() string   { return fmt.Sprintf("stage_%d", int(s)) }
