// Package trace records what a simulation did: one flat record per handled
// event and one timeline span per completed batch stage. Recordings are
// written as JSON lines or as Chrome trace JSON, and record streams can be
// validated against an embedded JSON schema.
package trace

import (
	"fmt"

	"github.com/inference-sim/pipeline-sim/sim"
)

// TraceLevel controls what a Recorder keeps.
type TraceLevel string

const (
	// TraceLevelNone disables recording.
	TraceLevelNone TraceLevel = "none"
	// TraceLevelSpans keeps timeline spans only.
	TraceLevelSpans TraceLevel = "spans"
	// TraceLevelEvents keeps event records and timeline spans.
	TraceLevelEvents TraceLevel = "events"
)

// validTraceLevels maps accepted trace level strings.
var validTraceLevels = map[TraceLevel]bool{
	TraceLevelNone:   true,
	TraceLevelSpans:  true,
	TraceLevelEvents: true,
	"":               true, // empty defaults to none
}

// IsValidTraceLevel returns true if the given level string is a recognized trace level.
func IsValidTraceLevel(level string) bool {
	return validTraceLevels[TraceLevel(level)]
}

// TraceConfig controls trace collection behavior.
type TraceConfig struct {
	Level TraceLevel
}

// Recorder is a sim.Observer that collects records and spans in handling order.
// Export failures do not stop the run; the first one is kept and reported by Err.
type Recorder struct {
	Config  TraceConfig
	Records []sim.Fields
	Spans   []sim.TimelineSpan

	err error
}

// NewRecorder creates a Recorder ready for recording.
func NewRecorder(config TraceConfig) *Recorder {
	return &Recorder{
		Config:  config,
		Records: make([]sim.Fields, 0),
		Spans:   make([]sim.TimelineSpan, 0),
	}
}

// OnEvent implements sim.Observer.
func (r *Recorder) OnEvent(ev sim.Event, store *sim.Store) {
	switch r.Config.Level {
	case TraceLevelEvents:
		r.recordFields(ev, store)
		r.recordSpan(ev, store)
	case TraceLevelSpans:
		r.recordSpan(ev, store)
	}
}

func (r *Recorder) recordFields(ev sim.Event, store *sim.Store) {
	f, err := ev.Fields(store)
	if err != nil {
		r.fail(ev, err)
		return
	}
	// stage ends also carry the bounds of the stage they close
	if end, ok := ev.(*sim.BatchStageEndEvent); ok {
		bs, err := store.BatchStage(end.BatchStageID)
		if err != nil {
			r.fail(ev, err)
			return
		}
		sf, err := bs.Fields()
		if err != nil {
			r.fail(ev, err)
			return
		}
		for _, k := range []string{sim.FieldStartTime, sim.FieldEndTime, "execution_time"} {
			f[k] = sf[k]
		}
	}
	r.Records = append(r.Records, f)
}

func (r *Recorder) recordSpan(ev sim.Event, store *sim.Store) {
	span, err := ev.Span(store)
	if err != nil {
		r.fail(ev, err)
		return
	}
	if span != nil {
		r.Spans = append(r.Spans, *span)
	}
}

func (r *Recorder) fail(ev sim.Event, err error) {
	if r.err == nil {
		r.err = fmt.Errorf("recording %s at t=%v: %w", ev.Type(), ev.Time(), err)
	}
}

// Err returns the first export failure, if any.
func (r *Recorder) Err() error { return r.err }
