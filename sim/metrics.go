// Notification contract between the kernel and metric collectors.

package sim

// MetricsStore receives lifecycle notifications from event handlers. Calls are
// fire-and-forget: at most once per transition, in non-decreasing time order.
// Implementations must not mutate simulation state.
type MetricsStore interface {
	OnRequestArrival(now float64, req *Request)
	OnBatchStageStart(now float64, replica ReplicaID, stage StageID, bs *BatchStage)
	OnBatchStageEnd(now float64, replica ReplicaID, stage StageID)
	OnBatchEnd(now float64, batch *Batch)
}

// NopMetrics discards every notification.
type NopMetrics struct{}

func (NopMetrics) OnRequestArrival(float64, *Request) {}
func (NopMetrics) OnBatchStageStart(float64, ReplicaID, StageID, *BatchStage) {}
func (NopMetrics) OnBatchStageEnd(float64, ReplicaID, StageID) {}
func (NopMetrics) OnBatchEnd(float64, *Batch) {}
