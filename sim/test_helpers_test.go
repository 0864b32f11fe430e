package sim

import (
	"fmt"
	"testing"
)

// fakeGlobal places every request on replica (request id % replicas) and hands
// out fakeReplica / fakeStage contexts.
type fakeGlobal struct {
	replicas int
	stages   int
	pending  []*Request
	rs       []*fakeReplica
	ss       [][]*fakeStage
}

func newFakeGlobal(replicas, stages int, execTime float64) *fakeGlobal {
	g := &fakeGlobal{replicas: replicas, stages: stages}
	for r := 0; r < replicas; r++ {
		g.rs = append(g.rs, &fakeReplica{maxInFlight: stages})
		row := make([]*fakeStage, stages)
		for s := 0; s < stages; s++ {
			row[s] = &fakeStage{capacity: 1, execTime: execTime}
		}
		g.ss = append(g.ss, row)
	}
	return g
}

func (g *fakeGlobal) NumReplicas() int        { return g.replicas }
func (g *fakeGlobal) NumStages() int          { return g.stages }
func (g *fakeGlobal) AddRequest(req *Request) { g.pending = append(g.pending, req) }

func (g *fakeGlobal) Schedule(float64) []Assignment {
	out := make([]Assignment, 0, len(g.pending))
	for _, req := range g.pending {
		out = append(out, Assignment{Replica: ReplicaID(int(req.ID) % g.replicas), Request: req.ID})
	}
	g.pending = nil
	return out
}

func (g *fakeGlobal) ReplicaScheduler(r ReplicaID) (ReplicaScheduler, error) {
	if int(r) >= len(g.rs) {
		return nil, fmt.Errorf("no replica %d", r)
	}
	return g.rs[r], nil
}

func (g *fakeGlobal) ReplicaStageScheduler(r ReplicaID, s StageID) (ReplicaStageScheduler, error) {
	if int(r) >= len(g.ss) || int(s) >= len(g.ss[r]) {
		return nil, fmt.Errorf("no stage %d on replica %d", s, r)
	}
	return g.ss[r][s], nil
}

// fakeReplica batches all waiting requests into one batch per free pipeline slot.
type fakeReplica struct {
	waiting     []*Request
	inFlight    int
	maxInFlight int
	ended       []BatchID
}

func (f *fakeReplica) AddRequest(req *Request) { f.waiting = append(f.waiting, req) }

func (f *fakeReplica) Schedule(float64) []BatchPlan {
	if len(f.waiting) == 0 || f.inFlight >= f.maxInFlight {
		return nil
	}
	plan := BatchPlan{}
	for _, req := range f.waiting {
		plan.Requests = append(plan.Requests, req.ID)
		plan.NumTokens = append(plan.NumTokens, req.NextPassTokens())
	}
	f.waiting = nil
	f.inFlight++
	return []BatchPlan{plan}
}

func (f *fakeReplica) OnBatchEnd(b *Batch, reqs []*Request) {
	f.inFlight--
	f.ended = append(f.ended, b.ID)
	for _, req := range reqs {
		if !req.Completed() {
			f.waiting = append(f.waiting, req)
		}
	}
}

// fakeStage is a FIFO slot pool with a fixed execution time.
type fakeStage struct {
	queue      []*BatchStage
	running    int
	capacity   int
	execTime   float64
	peak       int
	stageEnds  int
	forceGrant *Grant // when set, Next returns it unconditionally
}

func (f *fakeStage) Enqueue(bs *BatchStage) { f.queue = append(f.queue, bs) }

func (f *fakeStage) Next(float64) (Grant, bool) {
	if f.forceGrant != nil {
		return *f.forceGrant, true
	}
	if len(f.queue) == 0 || f.running >= f.capacity {
		return Grant{}, false
	}
	bs := f.queue[0]
	f.queue = f.queue[1:]
	f.running++
	if f.running > f.peak {
		f.peak = f.running
	}
	return Grant{BatchStage: bs.ID, ExecutionTime: f.execTime}, true
}

func (f *fakeStage) OnStageEnd() {
	f.running--
	f.stageEnds++
}

// recordingMetrics keeps every notification in call order.
type recordingMetrics struct {
	calls []string
	times []float64
}

func (m *recordingMetrics) record(name string, now float64) {
	m.calls = append(m.calls, name)
	m.times = append(m.times, now)
}

func (m *recordingMetrics) OnRequestArrival(now float64, _ *Request) { m.record("request_arrival", now) }
func (m *recordingMetrics) OnBatchStageStart(now float64, r ReplicaID, s StageID, _ *BatchStage) {
	m.record(fmt.Sprintf("stage_start r%d s%d", r, s), now)
}
func (m *recordingMetrics) OnBatchStageEnd(now float64, r ReplicaID, s StageID) {
	m.record(fmt.Sprintf("stage_end r%d s%d", r, s), now)
}
func (m *recordingMetrics) OnBatchEnd(now float64, b *Batch) {
	m.record(fmt.Sprintf("batch_end b%d", b.ID), now)
}

// newTestEnv builds an Env over a fresh store.
func newTestEnv(g *fakeGlobal, m MetricsStore) *Env {
	if m == nil {
		m = NopMetrics{}
	}
	return &Env{Store: NewStore(), Scheduler: g, Metrics: m}
}

// runningBatch creates a one-request batch on replica whose stages before
// `stage` are completed at t=0 and whose stage `stage` has been Running since start.
func runningBatch(t testing.TB, env *Env, replica ReplicaID, stage StageID, start float64) (*Batch, *BatchStage) {
	t.Helper()
	id := env.Store.AddRequest(NewRequest(0, 8, 2))
	req, _ := env.Store.Request(id)
	b, err := env.Store.NewBatch(replica, BatchPlan{Requests: []RequestID{id}, NumTokens: []int{8}}, 0)
	if err != nil {
		t.Fatalf("NewBatch: %v", err)
	}
	if err := req.OnSchedule(0); err != nil {
		t.Fatalf("OnSchedule: %v", err)
	}
	for s := StageID(0); s < stage; s++ {
		done := env.Store.NewBatchStage(b, s)
		if err := done.onAdmit(0); err != nil {
			t.Fatalf("onAdmit: %v", err)
		}
		if err := done.onStart(0, 0); err != nil {
			t.Fatalf("onStart: %v", err)
		}
		if err := done.onEnd(0); err != nil {
			t.Fatalf("onEnd: %v", err)
		}
	}
	bs := env.Store.NewBatchStage(b, stage)
	if err := bs.onAdmit(0); err != nil {
		t.Fatalf("onAdmit: %v", err)
	}
	if err := bs.onStart(start, 1); err != nil {
		t.Fatalf("onStart: %v", err)
	}
	return b, bs
}
