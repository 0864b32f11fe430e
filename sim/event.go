package sim

import "fmt"

// Event defines the interface for all simulation events.
// Each event has an immutable Time (simulated seconds) and a Handle method that
// advances entity state and returns the follow-up events. Handlers never touch
// the queue: the driver inserts whatever they return.
type Event interface {
	Time() float64
	Type() EventType
	Handle(env *Env) ([]Event, error)
	// Fields exports the event's identifiers as a flat mapping.
	Fields(store *Store) (Fields, error)
	// Span exports the timeline span of the work the event represents, or nil
	// for kinds that represent no work.
	Span(store *Store) (*TimelineSpan, error)
}

// Env is everything a handler may read or mutate.
type Env struct {
	Store     *Store
	Scheduler GlobalScheduler
	Metrics   MetricsStore
}

// baseEvent carries the fields shared by every kind.
type baseEvent struct {
	time float64
}

func (e baseEvent) Time() float64 { return e.time }

func (e baseEvent) fields(t EventType) Fields {
	return Fields{FieldTime: e.time, FieldEventType: string(t)}
}

// noSpan is embedded by kinds that do not represent timed work.
type noSpan struct{}

func (noSpan) Span(*Store) (*TimelineSpan, error) { return nil, nil }

// replicaScheduler resolves the scheduling context of one replica, turning
// lookup failures into contract violations.
func (env *Env) replicaScheduler(ev EventType, now float64, replica ReplicaID) (ReplicaScheduler, error) {
	if int(replica) < 0 || int(replica) >= env.Scheduler.NumReplicas() {
		return nil, &ContractViolationError{Event: ev, Time: now, Replica: replica, Stage: -1,
			Detail: fmt.Sprintf("replica out of range [0, %d)", env.Scheduler.NumReplicas())}
	}
	rs, err := env.Scheduler.ReplicaScheduler(replica)
	if err != nil {
		return nil, &ContractViolationError{Event: ev, Time: now, Replica: replica, Stage: -1, Detail: err.Error()}
	}
	if rs == nil {
		return nil, &ContractViolationError{Event: ev, Time: now, Replica: replica, Stage: -1, Detail: "nil replica scheduler"}
	}
	return rs, nil
}

// stageScheduler resolves the scheduling context of one (replica, stage) pair.
func (env *Env) stageScheduler(ev EventType, now float64, replica ReplicaID, stage StageID) (ReplicaStageScheduler, error) {
	if int(replica) < 0 || int(replica) >= env.Scheduler.NumReplicas() {
		return nil, &ContractViolationError{Event: ev, Time: now, Replica: replica, Stage: stage,
			Detail: fmt.Sprintf("replica out of range [0, %d)", env.Scheduler.NumReplicas())}
	}
	if int(stage) < 0 || int(stage) >= env.Scheduler.NumStages() {
		return nil, &ContractViolationError{Event: ev, Time: now, Replica: replica, Stage: stage,
			Detail: fmt.Sprintf("stage out of range [0, %d)", env.Scheduler.NumStages())}
	}
	ss, err := env.Scheduler.ReplicaStageScheduler(replica, stage)
	if err != nil {
		return nil, &ContractViolationError{Event: ev, Time: now, Replica: replica, Stage: stage, Detail: err.Error()}
	}
	if ss == nil {
		return nil, &ContractViolationError{Event: ev, Time: now, Replica: replica, Stage: stage, Detail: "nil stage scheduler"}
	}
	return ss, nil
}

func (env *Env) isLastStage(stage StageID) bool {
	return int(stage) == env.Scheduler.NumStages()-1
}
