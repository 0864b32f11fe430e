package scheduler_test

import (
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/inference-sim/pipeline-sim/sim"
	"github.com/inference-sim/pipeline-sim/sim/scheduler"
)

// stageTimeline records every handled BatchStageEnd span.
type stageTimeline struct {
	spans []sim.TimelineSpan
}

func (s *stageTimeline) OnEvent(ev sim.Event, store *sim.Store) {
	span, err := ev.Span(store)
	Expect(err).NotTo(HaveOccurred())
	if span != nil {
		s.spans = append(s.spans, *span)
	}
}

func requests(n int, gap float64, prefill, decode int) []*sim.Request {
	out := make([]*sim.Request, n)
	for i := range out {
		out[i] = sim.NewRequest(float64(i)*gap, prefill, decode)
	}
	return out
}

var _ = Describe("Pipeline with reference schedulers", func() {
	var (
		cfg      scheduler.Config
		cluster  *scheduler.Cluster
		timeline *stageTimeline
		simu     *sim.Simulator
	)

	build := func(simCfg sim.Config) {
		cluster = scheduler.New(cfg)
		timeline = &stageTimeline{}
		simu = sim.NewSimulator(simCfg, cluster, nil, sim.WithObserver(timeline))
	}

	BeforeEach(func() {
		cfg = scheduler.Config{
			NumReplicas:       2,
			NumStages:         4,
			GlobalPolicy:      "round-robin",
			MaxBatchSize:      4,
			MaxTokensPerBatch: 256,
			Execution:         scheduler.LinearModel{Alpha: 0.004, BetaPrefill: 0.0002, BetaDecode: 0.001},
		}
	})

	Context("when run to completion", func() {
		It("should complete every request and batch", func() {
			build(sim.Config{})
			_, err := simu.InjectRequests(requests(40, 0.01, 100, 8))
			Expect(err).NotTo(HaveOccurred())

			res, err := simu.Run()

			Expect(err).NotTo(HaveOccurred())
			Expect(res.Partial).To(BeFalse())
			Expect(res.CompletedRequests).To(Equal(40))
			Expect(res.CompletedBatches).To(Equal(res.TotalBatches))
			Expect(res.EventsByType[sim.EventTypeBatchEnd]).To(Equal(res.TotalBatches))
			Expect(res.IncompleteStages).To(BeEmpty())
		})

		It("should never exceed stage concurrency", func() {
			cfg.StageConcurrency = 2
			build(sim.Config{})
			_, err := simu.InjectRequests(requests(60, 0.001, 64, 4))
			Expect(err).NotTo(HaveOccurred())

			_, err = simu.Run()
			Expect(err).NotTo(HaveOccurred())

			for _, rs := range cluster.Replicas() {
				for s := 0; s < cfg.NumStages; s++ {
					st, err := cluster.Stage(rs.ID(), sim.StageID(s))
					Expect(err).NotTo(HaveOccurred())
					Expect(st.Peak()).To(BeNumerically("<=", 2))
					Expect(st.Running()).To(BeZero())
				}
			}
		})

		It("should run a batch's stages back to back in stage order", func() {
			build(sim.Config{})
			_, err := simu.InjectRequests(requests(6, 0.05, 32, 2))
			Expect(err).NotTo(HaveOccurred())

			_, err = simu.Run()
			Expect(err).NotTo(HaveOccurred())

			for _, b := range simu.Store().Batches() {
				Expect(b.Stages).To(HaveLen(cfg.NumStages))
				prev := b.ScheduledAt
				for i, id := range b.Stages {
					bs, err := simu.Store().BatchStage(id)
					Expect(err).NotTo(HaveOccurred())
					Expect(bs.StageID).To(Equal(sim.StageID(i)))
					Expect(bs.StartTime).To(BeNumerically(">=", prev))
					prev = bs.EndTime
				}
			}
			Expect(timeline.spans).To(HaveLen(len(simu.Store().BatchStages())))
		})

		It("should balance load with least-outstanding placement", func() {
			cfg.GlobalPolicy = "least-outstanding"
			build(sim.Config{})
			_, err := simu.InjectRequests(requests(20, 0, 16, 1))
			Expect(err).NotTo(HaveOccurred())

			_, err = simu.Run()
			Expect(err).NotTo(HaveOccurred())

			Expect(cluster.Replicas()[0].Completed()).To(Equal(10))
			Expect(cluster.Replicas()[1].Completed()).To(Equal(10))
		})
	})

	Context("when the horizon cuts the run", func() {
		It("should report a partial result with unfinished work", func() {
			build(sim.Config{Horizon: 0.05})
			_, err := simu.InjectRequests(requests(50, 0.002, 200, 16))
			Expect(err).NotTo(HaveOccurred())

			res, err := simu.Run()

			Expect(err).NotTo(HaveOccurred())
			Expect(res.Partial).To(BeTrue())
			Expect(res.PendingEvents).To(BeNumerically(">", 0))
			Expect(res.IncompleteBatches).NotTo(BeEmpty())
			Expect(res.EndTime).To(BeNumerically("<=", 0.05))
		})
	})

	Context("with identical inputs", func() {
		It("should produce identical timelines", func() {
			run := func() []sim.TimelineSpan {
				build(sim.Config{})
				_, err := simu.InjectRequests(requests(25, 0.003, 48, 6))
				Expect(err).NotTo(HaveOccurred())
				_, err = simu.Run()
				Expect(err).NotTo(HaveOccurred())
				return timeline.spans
			}
			Expect(run()).To(Equal(run()))
		})
	})
})
