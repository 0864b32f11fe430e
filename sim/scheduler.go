package sim

// Assignment routes one request to one replica. Returned by GlobalScheduler.Schedule.
type Assignment struct {
	Replica ReplicaID
	Request RequestID
}

// BatchPlan is a replica scheduler's proposal for a new batch. The kernel turns
// it into a Batch owned by the Store.
type BatchPlan struct {
	Requests  []RequestID
	NumTokens []int // tokens processed per request in this pass, parallel to Requests
}

// Grant is a stage scheduler's answer to an admission query: the BatchStage that
// may start now and how long it will run.
type Grant struct {
	BatchStage    BatchStageID
	ExecutionTime float64
}

// GlobalScheduler places requests on replicas and hands out the per-replica and
// per-(replica, stage) scheduling contexts. The kernel only calls these methods
// and consumes their results; it never inspects policy state.
type GlobalScheduler interface {
	NumReplicas() int
	// NumStages returns the pipeline depth of every replica.
	NumStages() int
	AddRequest(req *Request)
	// Schedule drains whatever requests the policy wants to place now.
	Schedule(now float64) []Assignment
	ReplicaScheduler(replica ReplicaID) (ReplicaScheduler, error)
	ReplicaStageScheduler(replica ReplicaID, stage StageID) (ReplicaStageScheduler, error)
}

// ReplicaScheduler forms batches from the requests placed on one replica.
type ReplicaScheduler interface {
	AddRequest(req *Request)
	Schedule(now float64) []BatchPlan
	// OnBatchEnd is called after the batch's requests have advanced their progress.
	OnBatchEnd(batch *Batch, requests []*Request)
}

// ReplicaStageScheduler owns the execution slots of one (replica, stage) pair.
// At most its concurrency limit of BatchStages may be running at once.
type ReplicaStageScheduler interface {
	// Enqueue adds an admitted (Scheduled) batch stage to the pending queue.
	Enqueue(stage *BatchStage)
	// Next returns the batch stage that may start now, if a slot is free.
	Next(now float64) (Grant, bool)
	// OnStageEnd releases one execution slot.
	OnStageEnd()
}
