package scheduler

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/inference-sim/pipeline-sim/sim"
)

func testConfig() Config {
	return Config{NumReplicas: 2, NumStages: 2, Execution: ConstantModel(1)}
}

// addRequests registers n requests with the given token counts in store.
func addRequests(store *sim.Store, n, prefill, decode int) []*sim.Request {
	out := make([]*sim.Request, n)
	for i := range out {
		req := sim.NewRequest(0, prefill, decode)
		store.AddRequest(req)
		out[i] = req
	}
	return out
}

func TestRoundRobin_CyclesReplicas(t *testing.T) {
	rr := &RoundRobin{}
	loads := []ReplicaLoad{{ID: 0}, {ID: 1}, {ID: 2}}
	var got []sim.ReplicaID
	for i := 0; i < 5; i++ {
		got = append(got, rr.Place(nil, loads))
	}
	assert.Equal(t, []sim.ReplicaID{0, 1, 2, 0, 1}, got)
}

func TestLeastOutstanding_PicksMinimum_TiesLowestIndex(t *testing.T) {
	lo := LeastOutstanding{}
	assert.Equal(t, sim.ReplicaID(1), lo.Place(nil, []ReplicaLoad{{ID: 0, Outstanding: 3}, {ID: 1, Outstanding: 1}, {ID: 2, Outstanding: 2}}))
	assert.Equal(t, sim.ReplicaID(0), lo.Place(nil, []ReplicaLoad{{ID: 0, Outstanding: 2}, {ID: 1, Outstanding: 2}}))
}

func TestNewPlacementPolicy_UnknownName_Panics(t *testing.T) {
	assert.Panics(t, func() { NewPlacementPolicy("random") })
	assert.IsType(t, &RoundRobin{}, NewPlacementPolicy(""))
	assert.IsType(t, LeastOutstanding{}, NewPlacementPolicy("least-outstanding"))
}

func TestCluster_Schedule_LeastOutstanding_CountsSamePassPlacements(t *testing.T) {
	// GIVEN four requests arriving in the same pass with no prior load
	cfg := testConfig()
	cfg.GlobalPolicy = "least-outstanding"
	c := New(cfg)
	store := sim.NewStore()
	for _, req := range addRequests(store, 4, 4, 0) {
		c.AddRequest(req)
	}

	// WHEN scheduled
	got := c.Schedule(0)

	// THEN they alternate instead of piling onto replica 0
	require.Len(t, got, 4)
	var replicas []sim.ReplicaID
	for _, a := range got {
		replicas = append(replicas, a.Replica)
	}
	assert.Equal(t, []sim.ReplicaID{0, 1, 0, 1}, replicas)
	assert.Empty(t, c.Schedule(1), "pending list is drained")
}

func TestCluster_Lookups(t *testing.T) {
	c := New(testConfig())
	assert.Equal(t, 2, c.NumReplicas())
	assert.Equal(t, 2, c.NumStages())

	_, err := c.ReplicaScheduler(2)
	assert.Error(t, err)
	_, err = c.ReplicaStageScheduler(0, 2)
	assert.Error(t, err)
	rs, err := c.ReplicaScheduler(1)
	require.NoError(t, err)
	assert.NotNil(t, rs)
	st, err := c.Stage(1, 1)
	require.NoError(t, err)
	assert.Equal(t, DefaultStageConcurrency, st.Capacity())
}

func TestNew_InvalidConfig_Panics(t *testing.T) {
	cfg := testConfig()
	cfg.GlobalPolicy = "nope"
	assert.Panics(t, func() { New(cfg) })
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"no replicas", func(c *Config) { c.NumReplicas = 0 }},
		{"no stages", func(c *Config) { c.NumStages = 0 }},
		{"negative concurrency", func(c *Config) { c.StageConcurrency = -1 }},
		{"unknown policy", func(c *Config) { c.GlobalPolicy = "sjf" }},
		{"negative batch size", func(c *Config) { c.MaxBatchSize = -1 }},
		{"negative token budget", func(c *Config) { c.MaxTokensPerBatch = -1 }},
		{"negative in-flight", func(c *Config) { c.MaxInFlight = -1 }},
		{"nil model", func(c *Config) { c.Execution = nil }},
		{"negative constant", func(c *Config) { c.Execution = ConstantModel(-1) }},
		{"negative alpha", func(c *Config) { c.Execution = LinearModel{Alpha: -0.1} }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := testConfig()
			tt.mutate(&cfg)
			assert.Error(t, cfg.Validate())
		})
	}
	assert.NoError(t, testConfig().Validate())
}

func TestReplica_Schedule_RespectsBatchSizeAndInFlight(t *testing.T) {
	// GIVEN a replica with batch size 2 and room for 2 in-flight batches
	r := newReplica(0, 2, 0, 2)
	store := sim.NewStore()
	for _, req := range addRequests(store, 5, 4, 1) {
		r.AddRequest(req)
	}

	// WHEN scheduled
	plans := r.Schedule(0)

	// THEN two full batches are formed and one request keeps waiting
	require.Len(t, plans, 2)
	assert.Equal(t, []sim.RequestID{0, 1}, plans[0].Requests)
	assert.Equal(t, []sim.RequestID{2, 3}, plans[1].Requests)
	assert.Equal(t, []int{4, 4}, plans[0].NumTokens)
	assert.Equal(t, 1, r.Waiting())
	assert.Equal(t, 2, r.InFlight())
	assert.Equal(t, 5, r.Outstanding())
	assert.Empty(t, r.Schedule(0), "pipeline full")
}

func TestReplica_Schedule_TokenBudgetChunksPrefill(t *testing.T) {
	// GIVEN a 10-token budget and prompts of 6 and 8 tokens
	r := newReplica(0, 8, 10, 1)
	store := sim.NewStore()
	a := sim.NewRequest(0, 6, 0)
	b := sim.NewRequest(0, 8, 0)
	store.AddRequest(a)
	store.AddRequest(b)
	r.AddRequest(a)
	r.AddRequest(b)

	plans := r.Schedule(0)

	// THEN the second prompt is split to fill the budget
	require.Len(t, plans, 1)
	assert.Equal(t, []int{6, 4}, plans[0].NumTokens)
}

func TestReplica_OnBatchEnd_ResumesUnfinishedFirst(t *testing.T) {
	// GIVEN a batch of one decoding request and a newer arrival waiting
	r := newReplica(0, 1, 0, 1)
	store := sim.NewStore()
	reqs := addRequests(store, 2, 4, 2)
	r.AddRequest(reqs[0])
	plans := r.Schedule(0)
	require.Len(t, plans, 1)
	r.AddRequest(reqs[1])

	batch, err := store.NewBatch(0, plans[0], 0)
	require.NoError(t, err)
	require.NoError(t, reqs[0].OnSchedule(0))
	require.NoError(t, reqs[0].OnBatchEnd(1, 4))

	// WHEN the batch ends
	r.OnBatchEnd(batch, []*sim.Request{reqs[0]})

	// THEN the unfinished request is scheduled before the newer one
	next := r.Schedule(1)
	require.Len(t, next, 1)
	assert.Equal(t, []sim.RequestID{reqs[0].ID}, next[0].Requests)
	assert.Equal(t, []int{1}, next[0].NumTokens)
}

func TestStage_Next_FIFOWithCapacity(t *testing.T) {
	st := newStage(0, 0, 2, 2, LinearModel{Alpha: 1, BetaPrefill: 0.5})
	bss := []*sim.BatchStage{
		{ID: 0, NumPrefillTokens: 2},
		{ID: 1, NumPrefillTokens: 4},
		{ID: 2},
	}
	for _, bs := range bss {
		st.Enqueue(bs)
	}

	g1, ok := st.Next(0)
	require.True(t, ok)
	g2, ok := st.Next(0)
	require.True(t, ok)
	_, ok = st.Next(0)
	assert.False(t, ok, "capacity reached")

	assert.Equal(t, sim.BatchStageID(0), g1.BatchStage)
	assert.Equal(t, 1.0, g1.ExecutionTime) // (1 + 0.5*2) / 2
	assert.Equal(t, sim.BatchStageID(1), g2.BatchStage)
	assert.Equal(t, 2, st.Peak())

	st.OnStageEnd()
	g3, ok := st.Next(1)
	require.True(t, ok)
	assert.Equal(t, sim.BatchStageID(2), g3.BatchStage)
	assert.Equal(t, 0, st.QueueLen())
	assert.Equal(t, 3, st.Started())
}

func TestStage_OnStageEnd_WithoutRunning_Panics(t *testing.T) {
	st := newStage(0, 0, 1, 1, ConstantModel(1))
	assert.Panics(t, func() { st.OnStageEnd() })
}

func TestLinearModel_StageTime(t *testing.T) {
	m := LinearModel{Alpha: 0.01, BetaPrefill: 0.001, BetaDecode: 0.004}
	bs := &sim.BatchStage{NumPrefillTokens: 100, NumDecodeTokens: 5}
	assert.InDelta(t, (0.01+0.1+0.02)/4, m.StageTime(bs, 4), 1e-12)
	assert.InDelta(t, 0.13, m.StageTime(bs, 0), 1e-12)
}

func TestWaitQueue_PrependFrontKeepsOrder(t *testing.T) {
	var wq waitQueue
	store := sim.NewStore()
	reqs := addRequests(store, 4, 1, 0)
	wq.Enqueue(reqs[2])
	wq.Enqueue(reqs[3])
	wq.PrependFront([]*sim.Request{reqs[0], reqs[1]})
	assert.Equal(t, "[0 1 2 3]", wq.String())
	assert.Same(t, reqs[0], wq.Dequeue())
	assert.Equal(t, 3, wq.Len())
}
