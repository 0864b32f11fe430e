package sim

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewRequest_StartsPending(t *testing.T) {
	req := NewRequest(1.5, 10, 4)
	assert.Equal(t, RequestPending, req.State)
	assert.Equal(t, 14, req.TotalTokens())
	assert.Equal(t, 10, req.NextPassTokens())
	assert.Zero(t, req.E2ELatency())
	assert.Contains(t, req.String(), "pending")
}

func TestRequest_PrefillThenDecode_CountsFirstOutputToken(t *testing.T) {
	// GIVEN a request with 10 prompt and 3 output tokens
	req := NewRequest(0, 10, 3)

	// WHEN the prefill pass ends
	require.NoError(t, req.OnSchedule(1))
	require.NoError(t, req.OnBatchEnd(2, req.NumPrefillTokens))

	// THEN the prompt and the first output token are processed
	assert.True(t, req.PrefillComplete)
	assert.Equal(t, 2.0, req.PrefillCompletedAt)
	assert.Equal(t, 11, req.NumProcessedTokens)
	assert.Equal(t, RequestPending, req.State)
	assert.Equal(t, 1, req.NextPassTokens())

	// WHEN two decode passes end
	for i, now := range []float64{3, 4} {
		require.NoError(t, req.OnSchedule(now-0.5), "pass %d", i)
		require.NoError(t, req.OnBatchEnd(now, req.NextPassTokens()), "pass %d", i)
	}

	// THEN the request is complete
	assert.True(t, req.Completed())
	assert.Equal(t, 13, req.NumProcessedTokens)
	assert.Equal(t, 4.0, req.CompletedAt)
	assert.Equal(t, 4.0, req.E2ELatency())
	assert.Equal(t, 1.0, req.ScheduledAt)
	assert.Equal(t, 2, req.NumRestarts)
}

func TestRequest_PrefillOnly_CompletesAfterOnePass(t *testing.T) {
	req := NewRequest(0, 5, 0)
	require.NoError(t, req.OnSchedule(0))
	require.NoError(t, req.OnBatchEnd(1, 5))
	assert.True(t, req.Completed())
	assert.Equal(t, 5, req.NumProcessedTokens)
}

func TestRequest_ChunkedPrefill_CompletesOnLastChunk(t *testing.T) {
	req := NewRequest(0, 8, 2)
	require.NoError(t, req.OnSchedule(0))
	require.NoError(t, req.OnBatchEnd(1, 4))
	assert.False(t, req.PrefillComplete)
	require.NoError(t, req.OnSchedule(1))
	require.NoError(t, req.OnBatchEnd(2, 4))
	assert.True(t, req.PrefillComplete)
	assert.Equal(t, 9, req.NumProcessedTokens)
}

func TestRequest_InvalidTransitions_OrderingViolation(t *testing.T) {
	req := NewRequest(0, 1, 0)
	assert.True(t, errors.Is(req.OnBatchEnd(0, 1), ErrOrderingViolation))

	require.NoError(t, req.OnSchedule(0))
	assert.True(t, errors.Is(req.OnSchedule(0), ErrOrderingViolation))

	require.NoError(t, req.OnBatchEnd(1, 1))
	assert.True(t, errors.Is(req.OnSchedule(2), ErrOrderingViolation), "completed request rescheduled")
}
