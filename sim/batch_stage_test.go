package sim

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newStageForTest(t *testing.T) (*Store, *Batch, *BatchStage) {
	t.Helper()
	store := NewStore()
	id := store.AddRequest(NewRequest(0, 4, 1))
	b, err := store.NewBatch(0, BatchPlan{Requests: []RequestID{id}, NumTokens: []int{4}}, 0)
	require.NoError(t, err)
	return store, b, store.NewBatchStage(b, 0)
}

func TestBatchStage_FullLifecycle_ObservesEveryState(t *testing.T) {
	_, _, bs := newStageForTest(t)
	states := []BatchStageState{bs.State}

	require.NoError(t, bs.onAdmit(1))
	states = append(states, bs.State)
	require.NoError(t, bs.onStart(2, 3))
	states = append(states, bs.State)
	require.NoError(t, bs.onEnd(5))
	states = append(states, bs.State)

	assert.Equal(t, []BatchStageState{StagePending, StageScheduled, StageRunning, StageCompleted}, states)
	d, err := bs.Duration()
	require.NoError(t, err)
	assert.Equal(t, 3.0, d)
	assert.Equal(t, 3.0, bs.ExecutionTime)
}

func TestBatchStage_OutOfOrderTransitions_OrderingViolation(t *testing.T) {
	tests := []struct {
		name  string
		setup func(bs *BatchStage)
		act   func(bs *BatchStage) error
	}{
		{"start while pending", func(*BatchStage) {}, func(bs *BatchStage) error { return bs.onStart(1, 1) }},
		{"end while pending", func(*BatchStage) {}, func(bs *BatchStage) error { return bs.onEnd(1) }},
		{"end while scheduled", func(bs *BatchStage) { _ = bs.onAdmit(0) }, func(bs *BatchStage) error { return bs.onEnd(1) }},
		{"admit twice", func(bs *BatchStage) { _ = bs.onAdmit(0) }, func(bs *BatchStage) error { return bs.onAdmit(1) }},
		{"start twice", func(bs *BatchStage) { _ = bs.onAdmit(0); _ = bs.onStart(1, 1) }, func(bs *BatchStage) error { return bs.onStart(2, 1) }},
		{"complete twice", func(bs *BatchStage) { _ = bs.onAdmit(0); _ = bs.onStart(1, 1); _ = bs.onEnd(2) }, func(bs *BatchStage) error { return bs.onEnd(3) }},
		{"end before start", func(bs *BatchStage) { _ = bs.onAdmit(0); _ = bs.onStart(5, 1) }, func(bs *BatchStage) error { return bs.onEnd(4) }},
		{"start before admit", func(bs *BatchStage) { _ = bs.onAdmit(5) }, func(bs *BatchStage) error { return bs.onStart(4, 1) }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, _, bs := newStageForTest(t)
			tt.setup(bs)
			before := bs.State

			err := tt.act(bs)

			require.Error(t, err)
			assert.True(t, errors.Is(err, ErrOrderingViolation), "got %v", err)
			assert.Equal(t, before, bs.State, "failed transition must not change state")
		})
	}
}

func TestBatchStage_Span_EndUnset_IncompleteState(t *testing.T) {
	// GIVEN a running stage whose end time is unset
	_, b, bs := newStageForTest(t)
	require.NoError(t, bs.onAdmit(0))
	require.NoError(t, bs.onStart(1, 2))

	// WHEN the timeline export is requested
	span, err := bs.Span(b)

	// THEN it fails with IncompleteState and no partial span
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrIncompleteState))
	assert.Equal(t, TimelineSpan{}, span)

	_, err = bs.Fields()
	assert.True(t, errors.Is(err, ErrIncompleteState))
	_, err = bs.Duration()
	assert.True(t, errors.Is(err, ErrIncompleteState))
}

func TestBatchStage_Span_Completed_DescribesWork(t *testing.T) {
	_, b, bs := newStageForTest(t)
	require.NoError(t, bs.onAdmit(0))
	require.NoError(t, bs.onStart(1.5, 2))
	require.NoError(t, bs.onEnd(3.5))

	span, err := bs.Span(b)

	require.NoError(t, err)
	assert.Equal(t, 1.5, span.Start)
	assert.Equal(t, 3.5, span.End)
	assert.Equal(t, 2.0, span.Duration())
	assert.Equal(t, ReplicaID(0), span.Replica)
	assert.Equal(t, StageID(0), span.Stage)
	assert.Equal(t, 1, span.Args["batch_size"])
	assert.Equal(t, 4, span.Args["num_tokens"])
	assert.NotEmpty(t, span.Label)
}

func TestBatchStage_Fields_RoundTripTimeBounds(t *testing.T) {
	// GIVEN a completed stage with times that are not exactly representable in decimal
	_, _, bs := newStageForTest(t)
	start, end := 0.1+0.2, 1.0/3.0+7
	require.NoError(t, bs.onAdmit(0))
	require.NoError(t, bs.onStart(start, end-start))
	require.NoError(t, bs.onEnd(end))

	fields, err := bs.Fields()
	require.NoError(t, err)

	// WHEN bounds are reconstructed directly
	gotStart, gotEnd, err := TimeBoundsFromFields(fields)
	require.NoError(t, err)
	assert.Equal(t, start, gotStart)
	assert.Equal(t, end, gotEnd)

	// AND after a JSON round trip
	raw, err := json.Marshal(fields)
	require.NoError(t, err)
	var decoded Fields
	require.NoError(t, json.Unmarshal(raw, &decoded))
	gotStart, gotEnd, err = TimeBoundsFromFields(decoded)
	require.NoError(t, err)

	// THEN start and end reproduce exactly
	assert.Equal(t, start, gotStart)
	assert.Equal(t, end, gotEnd)
}

func TestTimeBoundsFromFields_MissingEnd_IncompleteState(t *testing.T) {
	_, _, err := TimeBoundsFromFields(Fields{FieldStartTime: 1.0})
	assert.True(t, errors.Is(err, ErrIncompleteState))
}

func TestTimeBoundsFromFields_JSONNumber(t *testing.T) {
	start, end, err := TimeBoundsFromFields(Fields{FieldStartTime: json.Number("1.25"), FieldEndTime: json.Number("2.5")})
	require.NoError(t, err)
	assert.Equal(t, 1.25, start)
	assert.Equal(t, 2.5, end)
}
