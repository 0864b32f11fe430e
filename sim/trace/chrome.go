package trace

import (
	"encoding/json"
	"fmt"
	"io"
	"sort"

	"github.com/inference-sim/pipeline-sim/sim"
)

// chromeEvent is one entry of the Chrome trace event format.
// Complete events ("X") carry ts/dur in microseconds; metadata events ("M")
// name the process (replica) and thread (stage) lanes.
type chromeEvent struct {
	Name string         `json:"name"`
	Cat  string         `json:"cat,omitempty"`
	Ph   string         `json:"ph"`
	Ts   float64        `json:"ts"`
	Dur  *float64       `json:"dur,omitempty"`
	Pid  int            `json:"pid"`
	Tid  int            `json:"tid"`
	Args map[string]any `json:"args,omitempty"`
}

type chromeTrace struct {
	TraceEvents     []chromeEvent `json:"traceEvents"`
	DisplayTimeUnit string        `json:"displayTimeUnit"`
}

const secondsToMicros = 1e6

// WriteChromeTrace writes spans as a Chrome trace (chrome://tracing, Perfetto).
// Replicas map to processes and stages to threads.
func WriteChromeTrace(w io.Writer, spans []sim.TimelineSpan) error {
	out := chromeTrace{TraceEvents: make([]chromeEvent, 0, len(spans)), DisplayTimeUnit: "ms"}

	type lane struct{ replica, stage int }
	replicas := map[int]bool{}
	lanes := map[lane]bool{}
	for _, s := range spans {
		replicas[int(s.Replica)] = true
		lanes[lane{int(s.Replica), int(s.Stage)}] = true
	}
	rs := make([]int, 0, len(replicas))
	for r := range replicas {
		rs = append(rs, r)
	}
	sort.Ints(rs)
	for _, r := range rs {
		out.TraceEvents = append(out.TraceEvents, chromeEvent{
			Name: "process_name", Ph: "M", Pid: r,
			Args: map[string]any{"name": sim.ReplicaID(r).String()},
		})
	}
	ls := make([]lane, 0, len(lanes))
	for l := range lanes {
		ls = append(ls, l)
	}
	sort.Slice(ls, func(i, j int) bool {
		if ls[i].replica != ls[j].replica {
			return ls[i].replica < ls[j].replica
		}
		return ls[i].stage < ls[j].stage
	})
	for _, l := range ls {
		out.TraceEvents = append(out.TraceEvents, chromeEvent{
			Name: "thread_name", Ph: "M", Pid: l.replica, Tid: l.stage,
			Args: map[string]any{"name": sim.StageID(l.stage).String()},
		})
	}

	for _, s := range spans {
		dur := s.Duration() * secondsToMicros
		out.TraceEvents = append(out.TraceEvents, chromeEvent{
			Name: s.Label,
			Cat:  "batch_stage",
			Ph:   "X",
			Ts:   s.Start * secondsToMicros,
			Dur:  &dur,
			Pid:  int(s.Replica),
			Tid:  int(s.Stage),
			Args: s.Args,
		})
	}

	enc := json.NewEncoder(w)
	if err := enc.Encode(out); err != nil {
		return fmt.Errorf("encoding chrome trace: %w", err)
	}
	return nil
}
