package sim

import (
	"encoding/json"
	"fmt"
	"math"
)

// Fields is the structured field mapping exported by events and entities for
// generic trace/log formats. Values are JSON-friendly scalars or slices of them.
type Fields map[string]any

// Field keys shared by exporters and readers.
const (
	FieldTime         = "time"
	FieldEventType    = "event_type"
	FieldReplicaID    = "replica_id"
	FieldStageID      = "stage_id"
	FieldBatchID      = "batch_id"
	FieldBatchStageID = "batch_stage_id"
	FieldRequestID    = "request_id"
	FieldIsLastStage  = "is_last_stage"
	FieldStartTime    = "start_time"
	FieldEndTime      = "end_time"
)

// TimelineSpan describes the (start, end, label) of a unit of work, positioned by
// replica (process lane) and stage (thread lane) for timeline viewers.
type TimelineSpan struct {
	Label   string
	Start   float64
	End     float64
	Replica ReplicaID
	Stage   StageID
	Args    map[string]any
}

// Duration returns End - Start.
func (s TimelineSpan) Duration() float64 {
	return s.End - s.Start
}

// TimeBoundsFromFields reconstructs the start and end times recorded in a
// BatchStage field mapping. It accepts values as produced by BatchStage.Fields
// and as decoded from JSON (float64 or json.Number).
func TimeBoundsFromFields(f Fields) (start, end float64, err error) {
	start, err = floatField(f, FieldStartTime)
	if err != nil {
		return 0, 0, err
	}
	end, err = floatField(f, FieldEndTime)
	if err != nil {
		return 0, 0, err
	}
	if end < start {
		return 0, 0, fmt.Errorf("%w: end_time %v before start_time %v", ErrOrderingViolation, end, start)
	}
	return start, end, nil
}

func floatField(f Fields, key string) (float64, error) {
	raw, ok := f[key]
	if !ok || raw == nil {
		return 0, &IncompleteStateError{Entity: "field mapping", Missing: key}
	}
	switch v := raw.(type) {
	case float64:
		return v, nil
	case json.Number:
		x, err := v.Float64()
		if err != nil {
			return 0, fmt.Errorf("field %s: %w", key, err)
		}
		return x, nil
	case int:
		return float64(v), nil
	default:
		return 0, fmt.Errorf("field %s: unexpected type %T", key, raw)
	}
}

// validDuration reports whether d can be used as an execution time.
func validDuration(d float64) bool {
	return d >= 0 && !math.IsNaN(d) && !math.IsInf(d, 0)
}
