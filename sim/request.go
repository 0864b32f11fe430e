// Defines the Request entity: one unit of work carried through the pipeline by
// one or more batches. Tracks arrival, prefill/decode progress and completion.

package sim

import (
	"fmt"
)

// RequestState represents the lifecycle state of a request.
type RequestState string

const (
	RequestPending   RequestState = "pending"   // waiting at a scheduler, not in any batch
	RequestScheduled RequestState = "scheduled" // part of an in-flight batch
	RequestCompleted RequestState = "completed"
)

// Request models a single request's lifecycle in the simulation.
// The prefill pass processes every prompt token and emits the first output token;
// each later pass (decode) emits one output token.
type Request struct {
	ID RequestID

	ArrivalTime      float64
	NumPrefillTokens int
	NumDecodeTokens  int

	State              RequestState
	NumProcessedTokens int  // prompt tokens processed + output tokens generated
	PrefillComplete    bool // set once the prefill pass has ended

	ScheduledAt        float64 // time the request first entered a batch
	PrefillCompletedAt float64
	CompletedAt        float64
	NumRestarts        int // times the request went back to a scheduler queue between passes

	everScheduled bool
}

// NewRequest creates a pending request with the given token counts.
// The ID is assigned when the request is added to a Store.
func NewRequest(arrival float64, prefillTokens, decodeTokens int) *Request {
	return &Request{
		ArrivalTime:      arrival,
		NumPrefillTokens: prefillTokens,
		NumDecodeTokens:  decodeTokens,
		State:            RequestPending,
	}
}

// TotalTokens is the number of tokens the request needs processed to finish.
func (r *Request) TotalTokens() int {
	return r.NumPrefillTokens + r.NumDecodeTokens
}

// NextPassTokens returns the number of tokens the next pass over this request
// processes: the unprocessed part of the prompt before prefill completes, one
// token afterwards.
func (r *Request) NextPassTokens() int {
	if !r.PrefillComplete {
		return r.NumPrefillTokens - r.NumProcessedTokens
	}
	return 1
}

// OnSchedule marks the request as part of an in-flight batch.
func (r *Request) OnSchedule(now float64) error {
	if r.State != RequestPending {
		return &OrderingViolationError{
			Event: EventTypeReplicaSchedule, Time: now,
			Entity: fmt.Sprintf("request %d", r.ID), From: string(r.State), To: string(RequestScheduled),
		}
	}
	if !r.everScheduled {
		r.everScheduled = true
		r.ScheduledAt = now
	} else {
		r.NumRestarts++
	}
	r.State = RequestScheduled
	return nil
}

// OnBatchEnd advances the request by the tokens its batch processed.
// The request returns to pending unless it has now processed all tokens.
func (r *Request) OnBatchEnd(now float64, numTokens int) error {
	if r.State != RequestScheduled {
		return &OrderingViolationError{
			Event: EventTypeBatchEnd, Time: now,
			Entity: fmt.Sprintf("request %d", r.ID), From: string(r.State), To: "batch end",
		}
	}
	r.NumProcessedTokens += numTokens
	if !r.PrefillComplete && r.NumProcessedTokens >= r.NumPrefillTokens {
		r.PrefillComplete = true
		r.PrefillCompletedAt = now
		if r.NumDecodeTokens > 0 {
			// the prefill pass also yields the first output token
			r.NumProcessedTokens++
		}
	}
	if r.NumProcessedTokens >= r.TotalTokens() {
		r.State = RequestCompleted
		r.CompletedAt = now
		return nil
	}
	r.State = RequestPending
	return nil
}

// Completed reports whether every token of the request has been processed.
func (r *Request) Completed() bool {
	return r.State == RequestCompleted
}

// E2ELatency is completion minus arrival; zero until completed.
func (r *Request) E2ELatency() float64 {
	if !r.Completed() {
		return 0
	}
	return r.CompletedAt - r.ArrivalTime
}

// This method returns a human-readable string representation of a Request.
func (r Request) String() string {
	return fmt.Sprintf("Request: (ID: %d, State: %s, Processed: %d/%d, ArrivalTime: %v)",
		r.ID, r.State, r.NumProcessedTokens, r.TotalTokens(), r.ArrivalTime)
}
