// batch.go
//
// Defines the Batch entity: a group of requests that traverses every pipeline
// stage of one replica together.

package sim

import "fmt"

// BatchState is the lifecycle state of a Batch.
type BatchState string

const (
	BatchInFlight  BatchState = "in_flight"
	BatchCompleted BatchState = "completed"
)

// Batch represents a group of requests processed together in one pipeline pass.
// Membership is fixed at creation; only the completion state changes.
type Batch struct {
	ID        BatchID
	ReplicaID ReplicaID

	RequestIDs []RequestID // ordered membership
	NumTokens  []int       // tokens processed per request in this pass, parallel to RequestIDs

	NumPrefillTokens int // tokens belonging to requests in their prefill pass
	NumDecodeTokens  int // tokens belonging to requests in a decode pass

	State       BatchState
	ScheduledAt float64
	CompletedAt float64

	// Stages holds the BatchStage ids created for this batch, in stage order.
	Stages []BatchStageID
}

// Size returns the number of requests in the batch.
func (b *Batch) Size() int {
	return len(b.RequestIDs)
}

// TotalTokens returns the number of tokens processed by the batch in this pass.
func (b *Batch) TotalTokens() int {
	return b.NumPrefillTokens + b.NumDecodeTokens
}

// onComplete moves the batch to Completed. Completing twice is an ordering violation.
func (b *Batch) onComplete(now float64) error {
	if b.State != BatchInFlight {
		return &OrderingViolationError{
			Event: EventTypeBatchEnd, Time: now,
			Entity: b.describe(), From: string(b.State), To: string(BatchCompleted),
		}
	}
	if now < b.ScheduledAt {
		return &OrderingViolationError{
			Event: EventTypeBatchEnd, Time: now, Last: b.ScheduledAt,
			Entity: b.describe(), From: string(b.State), To: string(BatchCompleted),
		}
	}
	b.State = BatchCompleted
	b.CompletedAt = now
	return nil
}

// Latency is the time from scheduling to completion; zero while in flight.
func (b *Batch) Latency() float64 {
	if b.State != BatchCompleted {
		return 0
	}
	return b.CompletedAt - b.ScheduledAt
}

func (b *Batch) describe() string {
	return fmt.Sprintf("batch %d (replica %d)", b.ID, b.ReplicaID)
}
