package metrics

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/sirupsen/logrus"
)

// StageUtilization is the occupancy of one (replica, stage) slot.
type StageUtilization struct {
	Replica int `json:"replica"`
	Stage   int `json:"stage"`
	Starts  int `json:"starts"`
	// BusyTime is the time with at least one batch stage running.
	BusyTime float64 `json:"busy_time"`
	// WorkTime sums granted execution times; exceeds BusyTime under concurrency.
	WorkTime float64 `json:"work_time"`
	// Utilization is BusyTime over the observed makespan.
	Utilization float64 `json:"utilization"`
}

// Summary aggregates a run. Latencies are in seconds.
type Summary struct {
	RequestsArrived   int     `json:"requests_arrived"`
	RequestsCompleted int     `json:"requests_completed"`
	BatchesCompleted  int     `json:"batches_completed"`
	MeanBatchSize     float64 `json:"mean_batch_size"`
	Makespan          float64 `json:"makespan"`
	Throughput        float64 `json:"throughput_rps"`

	E2E          LatencyStats `json:"e2e_latency"`
	TTFT         LatencyStats `json:"ttft"`
	BatchLatency LatencyStats `json:"batch_latency"`

	Stages []StageUtilization `json:"stages"`
}

// Summary computes the aggregate view of everything collected so far.
func (c *Collector) Summary() Summary {
	s := Summary{
		RequestsArrived:   len(c.requests),
		RequestsCompleted: len(c.e2e),
		BatchesCompleted:  len(c.batchLat),
		MeanBatchSize:     Mean(c.batchSizes),
		E2E:               NewLatencyStats(c.e2e),
		TTFT:              NewLatencyStats(c.ttft),
		BatchLatency:      NewLatencyStats(c.batchLat),
	}
	if c.seenAny {
		s.Makespan = c.lastTime - c.firstTime
	}
	if s.Makespan > 0 {
		s.Throughput = float64(s.RequestsCompleted) / s.Makespan
	}
	for r := range c.slots {
		for st := range c.slots[r] {
			sl := c.slots[r][st]
			busy := sl.busy
			if sl.running > 0 {
				// still occupied when the run stopped
				busy += c.lastTime - sl.busySince
			}
			u := StageUtilization{Replica: r, Stage: st, Starts: sl.starts, BusyTime: busy, WorkTime: sl.work}
			if s.Makespan > 0 {
				u.Utilization = busy / s.Makespan
			}
			s.Stages = append(s.Stages, u)
		}
	}
	return s
}

// WriteJSON writes the summary as indented JSON.
func (s Summary) WriteJSON(w io.Writer) error {
	data, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return fmt.Errorf("marshaling summary: %w", err)
	}
	if _, err := fmt.Fprintln(w, string(data)); err != nil {
		return fmt.Errorf("writing summary: %w", err)
	}
	return nil
}

// Log emits the headline numbers at Info level.
func (s Summary) Log(log logrus.FieldLogger) {
	log.WithFields(logrus.Fields{
		"requests_completed": s.RequestsCompleted,
		"requests_arrived":   s.RequestsArrived,
		"batches":            s.BatchesCompleted,
		"makespan":           s.Makespan,
		"throughput_rps":     s.Throughput,
		"e2e_p50":            s.E2E.P50,
		"e2e_p99":            s.E2E.P99,
		"ttft_p50":           s.TTFT.P50,
	}).Info("run summary")
}
