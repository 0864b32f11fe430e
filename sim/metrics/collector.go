// Package metrics provides the reference sim.MetricsStore: in-memory
// aggregation for end-of-run summaries plus Prometheus collectors on a
// private registry that the CLI writes out in text exposition format.
package metrics

import (
	"fmt"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/inference-sim/pipeline-sim/sim"
)

const namespace = "pipelinesim"

// slot tracks occupancy of one (replica, stage) pair.
type slot struct {
	running   int
	busySince float64
	busy      float64 // time with at least one batch stage running
	work      float64 // sum of granted execution times
	starts    int
}

// Collector implements sim.MetricsStore.
//
// Thread-safety: NOT thread-safe. Called only from the simulator goroutine.
type Collector struct {
	numReplicas int
	numStages   int
	slots       [][]slot

	requests   map[sim.RequestID]*sim.Request
	recorded   map[sim.RequestID]bool
	e2e        []float64
	ttft       []float64
	batchLat   []float64
	batchSizes []float64
	firstTime  float64
	lastTime   float64
	seenAny    bool

	reg               *prometheus.Registry
	requestsArrived   prometheus.Counter
	requestsCompleted prometheus.Counter
	batchesCompleted  *prometheus.CounterVec
	stageStarts       *prometheus.CounterVec
	stageWork         *prometheus.CounterVec
	batchLatency      prometheus.Histogram
	batchSize         prometheus.Histogram
	requestE2E        prometheus.Histogram
	requestTTFT       prometheus.Histogram
}

// NewCollector creates a collector for a numReplicas x numStages topology.
// Panics on an empty topology.
func NewCollector(numReplicas, numStages int) *Collector {
	if numReplicas <= 0 || numStages <= 0 {
		panic(fmt.Sprintf("NewCollector: invalid topology %d replicas x %d stages", numReplicas, numStages))
	}
	c := &Collector{
		numReplicas: numReplicas,
		numStages:   numStages,
		slots:       make([][]slot, numReplicas),
		requests:    make(map[sim.RequestID]*sim.Request),
		recorded:    make(map[sim.RequestID]bool),
		reg:         prometheus.NewRegistry(),
	}
	for r := range c.slots {
		c.slots[r] = make([]slot, numStages)
	}

	latencyBuckets := prometheus.ExponentialBuckets(0.001, 2, 16)
	c.requestsArrived = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace, Name: "requests_arrived_total", Help: "Requests that entered the system.",
	})
	c.requestsCompleted = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace, Name: "requests_completed_total", Help: "Requests whose every token was processed.",
	})
	c.batchesCompleted = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace, Name: "batches_completed_total", Help: "Batches that left the last stage.",
	}, []string{"replica"})
	c.stageStarts = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace, Name: "batch_stage_starts_total", Help: "Batch stages started per replica and stage.",
	}, []string{"replica", "stage"})
	c.stageWork = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace, Name: "batch_stage_execution_seconds_total", Help: "Granted execution time per replica and stage.",
	}, []string{"replica", "stage"})
	c.batchLatency = prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: namespace, Name: "batch_latency_seconds", Help: "Time from batch formation to batch end.", Buckets: latencyBuckets,
	})
	c.batchSize = prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: namespace, Name: "batch_size_requests", Help: "Requests per completed batch.", Buckets: prometheus.LinearBuckets(1, 1, 16),
	})
	c.requestE2E = prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: namespace, Name: "request_e2e_seconds", Help: "Time from arrival to completion.", Buckets: latencyBuckets,
	})
	c.requestTTFT = prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: namespace, Name: "request_ttft_seconds", Help: "Time from arrival to the end of the prefill pass.", Buckets: latencyBuckets,
	})
	c.reg.MustRegister(
		c.requestsArrived, c.requestsCompleted, c.batchesCompleted,
		c.stageStarts, c.stageWork,
		c.batchLatency, c.batchSize, c.requestE2E, c.requestTTFT,
	)
	return c
}

// Registry exposes the private Prometheus registry.
func (c *Collector) Registry() *prometheus.Registry { return c.reg }

// WriteTextfile writes every collected series to path in the Prometheus text format.
func (c *Collector) WriteTextfile(path string) error {
	if err := prometheus.WriteToTextfile(path, c.reg); err != nil {
		return fmt.Errorf("writing metrics to %s: %w", path, err)
	}
	return nil
}

func (c *Collector) touch(now float64) {
	if !c.seenAny {
		c.firstTime = now
		c.seenAny = true
	}
	c.lastTime = now
}

func (c *Collector) slotFor(r sim.ReplicaID, s sim.StageID) *slot {
	if int(r) < 0 || int(r) >= c.numReplicas || int(s) < 0 || int(s) >= c.numStages {
		panic(fmt.Sprintf("Collector: %s/%s outside %dx%d topology", r, s, c.numReplicas, c.numStages))
	}
	return &c.slots[r][s]
}

// OnRequestArrival implements sim.MetricsStore.
func (c *Collector) OnRequestArrival(now float64, req *sim.Request) {
	c.touch(now)
	c.requests[req.ID] = req
	c.requestsArrived.Inc()
}

// OnBatchStageStart implements sim.MetricsStore.
func (c *Collector) OnBatchStageStart(now float64, r sim.ReplicaID, s sim.StageID, bs *sim.BatchStage) {
	c.touch(now)
	sl := c.slotFor(r, s)
	if sl.running == 0 {
		sl.busySince = now
	}
	sl.running++
	sl.starts++
	sl.work += bs.ExecutionTime
	labels := prometheus.Labels{"replica": fmt.Sprint(int(r)), "stage": fmt.Sprint(int(s))}
	c.stageStarts.With(labels).Inc()
	c.stageWork.With(labels).Add(bs.ExecutionTime)
}

// OnBatchStageEnd implements sim.MetricsStore.
func (c *Collector) OnBatchStageEnd(now float64, r sim.ReplicaID, s sim.StageID) {
	c.touch(now)
	sl := c.slotFor(r, s)
	if sl.running == 0 {
		return
	}
	sl.running--
	if sl.running == 0 {
		sl.busy += now - sl.busySince
	}
}

// OnBatchEnd implements sim.MetricsStore. Requests the batch completed are
// recorded once, when their final batch ends.
func (c *Collector) OnBatchEnd(now float64, b *sim.Batch) {
	c.touch(now)
	c.batchLat = append(c.batchLat, b.Latency())
	c.batchSizes = append(c.batchSizes, float64(b.Size()))
	c.batchLatency.Observe(b.Latency())
	c.batchSize.Observe(float64(b.Size()))
	c.batchesCompleted.WithLabelValues(fmt.Sprint(int(b.ReplicaID))).Inc()

	for _, id := range b.RequestIDs {
		req, ok := c.requests[id]
		if !ok || !req.Completed() || c.recorded[id] {
			continue
		}
		c.recorded[id] = true
		e2e := req.E2ELatency()
		ttft := req.PrefillCompletedAt - req.ArrivalTime
		c.e2e = append(c.e2e, e2e)
		c.ttft = append(c.ttft, ttft)
		c.requestE2E.Observe(e2e)
		c.requestTTFT.Observe(ttft)
		c.requestsCompleted.Inc()
	}
}
