package trace

import (
	"sort"

	"github.com/inference-sim/pipeline-sim/sim"
)

// TraceSummary aggregates statistics from a Recorder.
type TraceSummary struct {
	TotalRecords  int
	TotalSpans    int
	RecordsByType map[sim.EventType]int
	// SpansPerLane counts completed batch stages per (replica, stage).
	SpansPerLane map[sim.ReplicaID]map[sim.StageID]int
	// FirstStart and LastEnd bound all spans; zero when there are none.
	FirstStart float64
	LastEnd    float64
	// BusyTime sums span durations per replica.
	BusyTime map[sim.ReplicaID]float64
}

// Summarize computes aggregate statistics from a Recorder.
// Safe for nil or empty recorders.
func Summarize(r *Recorder) *TraceSummary {
	summary := &TraceSummary{
		RecordsByType: make(map[sim.EventType]int),
		SpansPerLane:  make(map[sim.ReplicaID]map[sim.StageID]int),
		BusyTime:      make(map[sim.ReplicaID]float64),
	}
	if r == nil {
		return summary
	}
	summary.TotalRecords = len(r.Records)
	summary.TotalSpans = len(r.Spans)

	for _, rec := range r.Records {
		if t, ok := rec[sim.FieldEventType].(string); ok {
			summary.RecordsByType[sim.EventType(t)]++
		}
	}
	for i, s := range r.Spans {
		if summary.SpansPerLane[s.Replica] == nil {
			summary.SpansPerLane[s.Replica] = make(map[sim.StageID]int)
		}
		summary.SpansPerLane[s.Replica][s.Stage]++
		summary.BusyTime[s.Replica] += s.Duration()
		if i == 0 || s.Start < summary.FirstStart {
			summary.FirstStart = s.Start
		}
		if s.End > summary.LastEnd {
			summary.LastEnd = s.End
		}
	}
	return summary
}

// Replicas returns the replicas that appear in spans, ascending.
func (s *TraceSummary) Replicas() []sim.ReplicaID {
	out := make([]sim.ReplicaID, 0, len(s.SpansPerLane))
	for r := range s.SpansPerLane {
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}
