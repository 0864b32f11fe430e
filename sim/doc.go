// Package sim provides the discrete-event simulation kernel for pipeline-sim.
//
// # Reading Guide
//
// Start with these files to understand the kernel:
//   - batch_stage.go: BatchStage lifecycle (pending → scheduled → running → completed)
//   - events.go: the closed set of event kinds and their handlers
//   - event_queue.go: (time, insertion order) priority queue with monotonicity checks
//   - simulator.go: the driver loop, horizon handling and run result
//
// # Architecture
//
// The kernel owns the event queue and an arena (Store) of requests, batches and
// batch stages. Events carry entity ids, never pointers. Handlers return their
// follow-up events; the driver is the only writer to the queue.
//
// Policies and aggregation live outside the kernel behind interfaces:
//   - GlobalScheduler / ReplicaScheduler / ReplicaStageScheduler: placement,
//     batching and per-(replica, stage) admission (reference: sim/scheduler/)
//   - MetricsStore: lifecycle notifications (reference: sim/metrics/)
//   - Observer: per-event export hook (reference: sim/trace/)
//
// Request generation lives in sim/workload/.
package sim
