package cmd

import (
	"fmt"
	"io"
	"os"

	"github.com/sirupsen/logrus"

	"github.com/inference-sim/pipeline-sim/sim"
	"github.com/inference-sim/pipeline-sim/sim/metrics"
	"github.com/inference-sim/pipeline-sim/sim/scheduler"
	"github.com/inference-sim/pipeline-sim/sim/trace"
	"github.com/inference-sim/pipeline-sim/sim/workload"
)

// outputOptions names the files a run writes. Empty paths are skipped, except
// SummaryOut, where empty means stdout.
type outputOptions struct {
	TraceLevel     string
	TraceOut       string // JSON-lines event records
	ChromeTraceOut string // Chrome trace of batch stage spans
	MetricsOut     string // Prometheus text exposition
	SummaryOut     string // JSON run summary
}

// traceLevel picks the recorder level: an explicit level wins, otherwise the
// requested outputs decide.
func (o outputOptions) traceLevel() trace.TraceLevel {
	if o.TraceLevel != "" {
		return trace.TraceLevel(o.TraceLevel)
	}
	switch {
	case o.TraceOut != "":
		return trace.TraceLevelEvents
	case o.ChromeTraceOut != "":
		return trace.TraceLevelSpans
	default:
		return trace.TraceLevelNone
	}
}

// runScenario generates the workload, runs the simulation and writes outputs.
// The result is returned even when the run aborts, together with the error.
func runScenario(sc *Scenario, opts outputOptions, stdout io.Writer, log logrus.FieldLogger) (*sim.Result, error) {
	if err := sc.Validate(); err != nil {
		return nil, fmt.Errorf("invalid scenario: %w", err)
	}
	if !trace.IsValidTraceLevel(opts.TraceLevel) {
		return nil, fmt.Errorf("unknown trace level %q; valid: none, spans, events", opts.TraceLevel)
	}
	runLog := log.WithField("run", sc.Name)

	rng := sim.NewPartitionedRNG(sim.NewSimulationKey(sc.Seed))
	reqs, err := workload.GenerateRequests(&sc.Workload, rng)
	if err != nil {
		return nil, err
	}

	cluster := scheduler.New(sc.SchedulerConfig())
	collector := metrics.NewCollector(sc.Cluster.Replicas, sc.Cluster.Stages)
	recorder := trace.NewRecorder(trace.TraceConfig{Level: opts.traceLevel()})

	s := sim.NewSimulator(sc.SimConfig(), cluster, collector,
		sim.WithObserver(recorder), sim.WithLogger(runLog))
	if _, err := s.InjectRequests(reqs); err != nil {
		return nil, fmt.Errorf("injecting workload: %w", err)
	}
	runLog.WithFields(logrus.Fields{
		"requests": len(reqs),
		"replicas": sc.Cluster.Replicas,
		"stages":   sc.Cluster.Stages,
		"seed":     sc.Seed,
	}).Info("workload generated")

	res, runErr := s.Run()
	if err := recorder.Err(); err != nil {
		runLog.WithError(err).Warn("trace recording incomplete")
	}
	if err := writeOutputs(opts, collector, recorder, stdout); err != nil {
		return res, err
	}
	summary := collector.Summary()
	summary.Log(runLog)
	if res.Partial && runErr == nil {
		runLog.WithFields(logrus.Fields{
			"pending_events":     res.PendingEvents,
			"incomplete_batches": len(res.IncompleteBatches),
			"incomplete_stages":  len(res.IncompleteStages),
		}).Warn("run stopped at horizon")
	}
	return res, runErr
}

func writeOutputs(opts outputOptions, c *metrics.Collector, rec *trace.Recorder, stdout io.Writer) error {
	if opts.TraceOut != "" {
		if err := writeFile(opts.TraceOut, func(w io.Writer) error { return trace.WriteRecords(w, rec.Records) }); err != nil {
			return err
		}
	}
	if opts.ChromeTraceOut != "" {
		if err := writeFile(opts.ChromeTraceOut, func(w io.Writer) error { return trace.WriteChromeTrace(w, rec.Spans) }); err != nil {
			return err
		}
	}
	if opts.MetricsOut != "" {
		if err := c.WriteTextfile(opts.MetricsOut); err != nil {
			return err
		}
	}
	summary := c.Summary()
	if opts.SummaryOut == "" {
		return summary.WriteJSON(stdout)
	}
	return writeFile(opts.SummaryOut, summary.WriteJSON)
}

func writeFile(path string, write func(io.Writer) error) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("creating %s: %w", path, err)
	}
	if err := write(f); err != nil {
		_ = f.Close()
		return fmt.Errorf("writing %s: %w", path, err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("closing %s: %w", path, err)
	}
	return nil
}

// validateTraceFile checks a JSON-lines record file against the record schema.
func validateTraceFile(path string, stdout io.Writer) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("opening trace: %w", err)
	}
	defer f.Close()
	records, err := trace.ReadRecords(f)
	if err != nil {
		return err
	}
	if err := trace.ValidateRecords(records); err != nil {
		return err
	}
	_, err = fmt.Fprintf(stdout, "%d records valid\n", len(records))
	return err
}
