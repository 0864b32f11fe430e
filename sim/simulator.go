// sim/simulator.go
package sim

import (
	"errors"
	"fmt"
	"math"

	"github.com/sirupsen/logrus"
)

// Observer is notified after every handled event, once the entity state the
// event concerns has been updated. Trace exporters hook in here.
type Observer interface {
	OnEvent(ev Event, store *Store)
}

// Option configures a Simulator.
type Option func(*Simulator)

// WithObserver registers an observer. Observers run in registration order.
func WithObserver(o Observer) Option {
	return func(s *Simulator) {
		if o != nil {
			s.observers = append(s.observers, o)
		}
	}
}

// WithLogger sets the run-scoped logger. Defaults to the standard logrus logger
// with component=sim.
func WithLogger(l logrus.FieldLogger) Option {
	return func(s *Simulator) {
		if l != nil {
			s.log = l
		}
	}
}

// IncompleteStage describes a batch stage left unfinished when a run stopped.
type IncompleteStage struct {
	ID      BatchStageID
	BatchID BatchID
	Replica ReplicaID
	Stage   StageID
	State   BatchStageState
}

// Result summarizes a run.
type Result struct {
	EndTime         float64 // time of the last handled event
	EventsProcessed int
	EventsByType    map[EventType]int
	// Partial is true when the horizon stopped the run with events still queued,
	// or when a fatal error aborted it.
	Partial       bool
	PendingEvents int

	TotalRequests     int
	CompletedRequests int
	TotalBatches      int
	CompletedBatches  int

	IncompleteBatches []BatchID
	IncompleteStages  []IncompleteStage
}

// Simulator is the driver: it owns the event queue and the entity arena, pops
// events in causal order, dispatches them and re-inserts their follow-ups.
//
// Thread-safety: NOT thread-safe. Every method must be called from one goroutine.
type Simulator struct {
	cfg       Config
	queue     *EventQueue
	store     *Store
	env       *Env
	clock     float64
	observers []Observer
	log       logrus.FieldLogger

	hasRun       bool
	processed    int
	byType       map[EventType]int
	instantTime  float64
	instantCount int
}

// NewSimulator creates a driver around the given collaborators.
// Panics if scheduler is nil or reports an empty topology, or if cfg is invalid.
// A nil metrics store is replaced with NopMetrics.
func NewSimulator(cfg Config, scheduler GlobalScheduler, metrics MetricsStore, opts ...Option) *Simulator {
	if scheduler == nil {
		panic("NewSimulator: scheduler must not be nil")
	}
	if scheduler.NumReplicas() <= 0 || scheduler.NumStages() <= 0 {
		panic(fmt.Sprintf("NewSimulator: invalid topology %d replicas x %d stages", scheduler.NumReplicas(), scheduler.NumStages()))
	}
	if err := cfg.Validate(); err != nil {
		panic(fmt.Sprintf("NewSimulator: %v", err))
	}
	if metrics == nil {
		metrics = NopMetrics{}
	}
	store := NewStore()
	s := &Simulator{
		cfg:    cfg,
		queue:  NewEventQueue(),
		store:  store,
		env:    &Env{Store: store, Scheduler: scheduler, Metrics: metrics},
		log:    logrus.WithField("component", "sim"),
		byType: make(map[EventType]int),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Store returns the entity arena of the run.
func (s *Simulator) Store() *Store { return s.store }

// Clock returns the current simulated time.
func (s *Simulator) Clock() float64 { return s.clock }

// PendingEvents returns the number of queued events.
func (s *Simulator) PendingEvents() int { return s.queue.Len() }

// Inject queues a seed event. Panics if called after Run().
func (s *Simulator) Inject(ev Event) error {
	if s.hasRun {
		panic("Simulator.Inject() called after Run()")
	}
	if !IsValidEventType(ev.Type()) {
		return &ContractViolationError{Event: ev.Type(), Time: ev.Time(), Replica: -1, Stage: -1, Detail: "unknown event kind"}
	}
	return s.queue.Push(ev)
}

// InjectRequests adds reqs to the arena and queues one RequestArrivalEvent per
// request at its arrival time. Returns the assigned ids in input order. A
// request with a NaN arrival time is rejected before it reaches the arena.
func (s *Simulator) InjectRequests(reqs []*Request) ([]RequestID, error) {
	ids := make([]RequestID, 0, len(reqs))
	for _, req := range reqs {
		if math.IsNaN(req.ArrivalTime) {
			return ids, &OrderingViolationError{Event: EventTypeRequestArrival, Time: req.ArrivalTime, Last: s.queue.last}
		}
		id := s.store.AddRequest(req)
		if err := s.Inject(NewRequestArrivalEvent(req.ArrivalTime, id)); err != nil {
			return ids, err
		}
		ids = append(ids, id)
	}
	return ids, nil
}

// Run drains the queue until it is empty or the next event lies beyond the
// horizon. A fatal handler error stops the loop and is returned together with
// the partial result. Panics if called more than once (run-once semantics).
func (s *Simulator) Run() (*Result, error) {
	if s.hasRun {
		panic("Simulator.Run() called more than once")
	}
	s.hasRun = true
	s.log.WithField("horizon", s.cfg.Horizon).Info("simulation started")

	partial := false
	for {
		next := s.queue.Peek()
		if next == nil {
			break
		}
		if s.cfg.HasHorizon() && next.Time() > s.cfg.Horizon {
			partial = true
			s.log.WithFields(logrus.Fields{"time": next.Time(), "horizon": s.cfg.Horizon}).Info("horizon reached")
			break
		}
		ev, err := s.queue.PopNext()
		if errors.Is(err, ErrEmptyQueue) {
			break
		}
		if err := s.step(ev); err != nil {
			s.log.WithError(err).WithField("time", ev.Time()).Error("simulation aborted")
			return s.result(true), err
		}
	}

	res := s.result(partial)
	s.log.WithFields(logrus.Fields{
		"end_time":  res.EndTime,
		"events":    res.EventsProcessed,
		"completed": res.CompletedRequests,
		"requests":  res.TotalRequests,
		"partial":   res.Partial,
	}).Info("simulation ended")
	return res, nil
}

// step dispatches one popped event and queues its follow-ups.
func (s *Simulator) step(ev Event) error {
	if !IsValidEventType(ev.Type()) {
		return &ContractViolationError{Event: ev.Type(), Time: ev.Time(), Replica: -1, Stage: -1, Detail: "unknown event kind"}
	}
	if err := s.countInstant(ev); err != nil {
		return err
	}
	s.clock = ev.Time()
	s.log.WithFields(logrus.Fields{"time": s.clock, "event": ev.Type()}).Debug("executing event")

	follow, err := ev.Handle(s.env)
	if err != nil {
		return fmt.Errorf("handling %s at t=%v: %w", ev.Type(), ev.Time(), err)
	}
	s.processed++
	s.byType[ev.Type()]++

	for _, o := range s.observers {
		o.OnEvent(ev, s.store)
	}
	for _, f := range follow {
		if f == nil {
			return &ContractViolationError{Event: ev.Type(), Time: ev.Time(), Replica: -1, Stage: -1, Detail: "handler returned nil event"}
		}
		if err := s.queue.Push(f); err != nil {
			return fmt.Errorf("queueing follow-up of %s at t=%v: %w", ev.Type(), ev.Time(), err)
		}
	}
	return nil
}

// countInstant enforces Config.MaxEventsPerInstant.
func (s *Simulator) countInstant(ev Event) error {
	if s.processed == 0 || ev.Time() != s.instantTime {
		s.instantTime = ev.Time()
		s.instantCount = 0
	}
	s.instantCount++
	if s.cfg.MaxEventsPerInstant > 0 && s.instantCount > s.cfg.MaxEventsPerInstant {
		return fmt.Errorf("%w: %d events at t=%v (limit %d), last kind %s",
			ErrLivelock, s.instantCount, ev.Time(), s.cfg.MaxEventsPerInstant, ev.Type())
	}
	return nil
}

func (s *Simulator) result(partial bool) *Result {
	res := &Result{
		EndTime:         s.clock,
		EventsProcessed: s.processed,
		EventsByType:    make(map[EventType]int, len(s.byType)),
		Partial:         partial,
		PendingEvents:   s.queue.Len(),
		TotalRequests:   len(s.store.Requests()),
		TotalBatches:    len(s.store.Batches()),
	}
	for k, v := range s.byType {
		res.EventsByType[k] = v
	}
	for _, req := range s.store.Requests() {
		if req.Completed() {
			res.CompletedRequests++
		}
	}
	for _, b := range s.store.Batches() {
		if b.State == BatchCompleted {
			res.CompletedBatches++
		} else {
			res.IncompleteBatches = append(res.IncompleteBatches, b.ID)
		}
	}
	for _, bs := range s.store.BatchStages() {
		if bs.State != StageCompleted {
			res.IncompleteStages = append(res.IncompleteStages, IncompleteStage{
				ID: bs.ID, BatchID: bs.BatchID, Replica: bs.ReplicaID, Stage: bs.StageID, State: bs.State,
			})
		}
	}
	return res
}
