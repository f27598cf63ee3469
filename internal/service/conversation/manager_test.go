package conversation

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/sandevgo/recomate/internal/core"
	"github.com/sandevgo/recomate/internal/service/fusion"
	"github.com/sandevgo/recomate/internal/service/memory"
	"github.com/sandevgo/recomate/internal/storage/memstore"
	"github.com/sandevgo/recomate/pkg/retry"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type mockUnderstander struct {
	understandFunc func(ctx context.Context, text string, sess *core.Session) core.Intent
}

func (m *mockUnderstander) Understand(ctx context.Context, text string, sess *core.Session) core.Intent {
	if m.understandFunc != nil {
		return m.understandFunc(ctx, text, sess)
	}
	return core.Intent{Kind: core.IntentGeneral, Query: text, Category: "Shoes"}
}

type mockRetriever struct {
	name         string
	retrieveFunc func(ctx context.Context, intent core.Intent) core.RetrievalResult
}

func (m *mockRetriever) Name() string { return m.name }

func (m *mockRetriever) Retrieve(ctx context.Context, intent core.Intent) core.RetrievalResult {
	return m.retrieveFunc(ctx, intent)
}

type failingStore struct {
	*memstore.Store
	err error
}

func (s *failingStore) AppendTurn(context.Context, string, core.Turn, core.PreferenceProfile, int64) (int64, error) {
	return 0, s.err
}

func graphRetriever() *mockRetriever {
	return &mockRetriever{name: "graph", retrieveFunc: func(ctx context.Context, intent core.Intent) core.RetrievalResult {
		return core.RetrievalResult{Agent: "graph", Status: core.AgentOK, Candidates: []core.Candidate{
			{ProductID: "p1", Scores: map[string]float64{core.SignalGraph: 0.8}, Evidence: core.Evidence{Category: "Shoes", Tags: []string{"running"}}},
			{ProductID: "p2", Scores: map[string]float64{core.SignalGraph: 0.4}, Evidence: core.Evidence{Category: "Shoes"}},
		}}
	}}
}

func semanticRetriever() *mockRetriever {
	return &mockRetriever{name: "semantic", retrieveFunc: func(ctx context.Context, intent core.Intent) core.RetrievalResult {
		return core.RetrievalResult{Agent: "semantic", Status: core.AgentOK, Candidates: []core.Candidate{
			{ProductID: "p2", Scores: map[string]float64{core.SignalSemantic: 0.9}},
			{ProductID: "p3", Scores: map[string]float64{core.SignalSemantic: 0.7}},
		}}
	}}
}

func testConfig() Config {
	return Config{
		TurnTimeout:    time.Second,
		RetrievalBound: 500 * time.Millisecond,
		Profile:        ProfileUpdate{Decay: 0.9, LearningRate: 0.3, ImplicitRate: 0.1, ImplicitTop: 3},
	}
}

type fixture struct {
	store   core.SessionStore
	mem     *memory.Memory
	manager *Manager
	states  []State
	mu      sync.Mutex
}

func newFixture(t *testing.T, store core.SessionStore, u core.Understander, retrievers []core.Retriever, cfg Config, opts ...Option) *fixture {
	t.Helper()
	engine, err := fusion.NewEngine([]float64{0.4, 0.4, 0.2}, 5)
	require.NoError(t, err)

	f := &fixture{store: store}
	f.mem = memory.New(store, retry.Policy{MaxRetries: 3, InitialDelay: time.Millisecond})
	opts = append(opts, WithStateHook(func(s State) {
		f.mu.Lock()
		f.states = append(f.states, s)
		f.mu.Unlock()
	}))
	f.manager = NewManager("s1", u, retrievers, engine, f.mem, cfg, opts...)
	return f
}

func (f *fixture) transitions() []State {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]State(nil), f.states...)
}

func TestManager_HandleTurn_Responded(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, memstore.New(), &mockUnderstander{}, []core.Retriever{graphRetriever(), semanticRetriever()}, testConfig())

	res, err := f.manager.HandleTurn(ctx, "running shoes")
	require.NoError(t, err)

	assert.Equal(t, core.TurnResponded, res.Status)
	assert.Equal(t, 1, res.Seq)
	assert.Equal(t, []string{"p2", "p1", "p3"}, res.Recommendations.ProductIDs())
	assert.Empty(t, res.Message)
	assert.Empty(t, res.Degraded)
	assert.Equal(t, []State{
		StateUnderstanding, StateRetrieving, StateFusing, StatePersisting, StateResponded, StateIdle,
	}, f.transitions())

	sess, err := f.store.LoadSession(ctx, "s1")
	require.NoError(t, err)
	require.Len(t, sess.Turns, 1)
	assert.Equal(t, "running shoes", sess.Title)
	assert.InDelta(t, 0.3+0.1+0.1, sess.Profile[core.CategoryTag("Shoes")], 1e-9, "explicit category plus implicit from p2 and p1")
	assert.InDelta(t, 0.1, sess.Profile["running"], 1e-9)

	res, err = f.manager.HandleTurn(ctx, "cheaper")
	require.NoError(t, err)
	assert.Equal(t, 2, res.Seq)
}

func TestManager_HandleTurn_Degraded(t *testing.T) {
	down := &mockRetriever{name: "semantic", retrieveFunc: func(ctx context.Context, intent core.Intent) core.RetrievalResult {
		return core.RetrievalResult{Agent: "semantic", Status: core.AgentUnavailable, Err: core.ErrAgentUnavailable}
	}}
	u := &mockUnderstander{understandFunc: func(ctx context.Context, text string, sess *core.Session) core.Intent {
		return core.DegradedIntent(text, "timeout")
	}}
	f := newFixture(t, memstore.New(), u, []core.Retriever{graphRetriever(), down}, testConfig())

	res, err := f.manager.HandleTurn(context.Background(), "something")
	require.NoError(t, err)
	assert.Equal(t, core.TurnResponded, res.Status)
	assert.Equal(t, []string{"p1", "p2"}, res.Recommendations.ProductIDs())
	assert.Equal(t, []string{StageUnderstanding, "semantic"}, res.Degraded)
}

func TestManager_HandleTurn_NoAgents(t *testing.T) {
	down := func(name string) *mockRetriever {
		return &mockRetriever{name: name, retrieveFunc: func(ctx context.Context, intent core.Intent) core.RetrievalResult {
			return core.RetrievalResult{Agent: name, Status: core.AgentTimeout}
		}}
	}
	f := newFixture(t, memstore.New(), &mockUnderstander{}, []core.Retriever{down("graph"), down("semantic")}, testConfig())

	res, err := f.manager.HandleTurn(context.Background(), "anything")
	require.NoError(t, err)
	assert.Equal(t, core.TurnResponded, res.Status, "empty set is not a failure")
	assert.Empty(t, res.Recommendations)
}

func TestManager_RetrievalBound(t *testing.T) {
	stuck := &mockRetriever{name: "semantic", retrieveFunc: func(ctx context.Context, intent core.Intent) core.RetrievalResult {
		time.Sleep(300 * time.Millisecond) // ignores ctx
		return core.RetrievalResult{Agent: "semantic", Status: core.AgentOK}
	}}
	cfg := testConfig()
	cfg.RetrievalBound = 30 * time.Millisecond
	f := newFixture(t, memstore.New(), &mockUnderstander{}, []core.Retriever{graphRetriever(), stuck}, cfg)

	start := time.Now()
	res, err := f.manager.HandleTurn(context.Background(), "running shoes")
	require.NoError(t, err)
	assert.Less(t, time.Since(start), 250*time.Millisecond)
	assert.Equal(t, core.TurnResponded, res.Status)
	assert.Equal(t, []string{"semantic"}, res.Degraded)
}

func TestManager_HandleTurn_Failed(t *testing.T) {
	tests := []struct {
		name        string
		store       func() core.SessionStore
		understand  func(ctx context.Context, text string, sess *core.Session) core.Intent
		wantFailure string
		wantStored  bool
	}{
		{
			name:  "turn timeout",
			store: func() core.SessionStore { return memstore.New() },
			understand: func(ctx context.Context, text string, sess *core.Session) core.Intent {
				<-ctx.Done()
				return core.DegradedIntent(text, "timeout")
			},
			wantFailure: FailureTimeout,
			wantStored:  true,
		},
		{
			name: "persistence exhausted",
			store: func() core.SessionStore {
				return &failingStore{Store: memstore.New(), err: errors.New("disk full")}
			},
			wantFailure: FailurePersistence,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := testConfig()
			cfg.TurnTimeout = 50 * time.Millisecond
			store := tt.store()
			f := newFixture(t, store, &mockUnderstander{understandFunc: tt.understand}, []core.Retriever{graphRetriever()}, cfg)

			res, err := f.manager.HandleTurn(context.Background(), "running shoes")
			require.NoError(t, err)
			assert.Equal(t, core.TurnFailed, res.Status)
			assert.Equal(t, core.FailureMessage, res.Message)
			assert.Empty(t, res.Recommendations)
			assert.Contains(t, f.transitions(), StateFailed)
			assert.Equal(t, StateIdle, f.manager.State())

			sess, err := store.LoadSession(context.Background(), "s1")
			if !tt.wantStored {
				assert.ErrorIs(t, err, core.ErrSessionNotFound)
				return
			}
			require.NoError(t, err)
			require.Len(t, sess.Turns, 1)
			assert.Equal(t, core.TurnFailed, sess.Turns[0].Status)
			assert.Equal(t, tt.wantFailure, sess.Turns[0].Failure)
			assert.Empty(t, sess.Profile, "failed turns do not learn")
		})
	}
}

func TestManager_InvalidInput(t *testing.T) {
	f := newFixture(t, memstore.New(), &mockUnderstander{}, nil, testConfig())
	_, err := f.manager.HandleTurn(context.Background(), "   ")
	assert.ErrorIs(t, err, core.ErrInvalidInput)
	assert.Empty(t, f.transitions())
}

func TestManager_SequentialFIFO(t *testing.T) {
	var active, maxActive atomic.Int32
	var mu sync.Mutex
	var order []string
	release := make(chan struct{})

	u := &mockUnderstander{understandFunc: func(ctx context.Context, text string, sess *core.Session) core.Intent {
		n := active.Add(1)
		defer active.Add(-1)
		for {
			cur := maxActive.Load()
			if n <= cur || maxActive.CompareAndSwap(cur, n) {
				break
			}
		}
		mu.Lock()
		order = append(order, text)
		mu.Unlock()
		if text == "t0" {
			<-release
		}
		return core.Intent{Query: text}
	}}
	f := newFixture(t, memstore.New(), u, []core.Retriever{graphRetriever()}, testConfig())

	const turns = 5
	var wg sync.WaitGroup
	results := make([]core.TurnResult, turns)
	for i := 0; i < turns; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			res, err := f.manager.HandleTurn(context.Background(), fmt.Sprintf("t%d", i))
			assert.NoError(t, err)
			results[i] = res
		}()
		// wait until turn i is running or queued before submitting the next
		require.Eventually(t, func() bool {
			f.manager.mu.Lock()
			defer f.manager.mu.Unlock()
			return f.manager.busy && len(f.manager.queue) == i
		}, time.Second, time.Millisecond)
	}
	close(release)
	wg.Wait()

	assert.Equal(t, []string{"t0", "t1", "t2", "t3", "t4"}, order)
	assert.Equal(t, int32(1), maxActive.Load())
	for i, res := range results {
		assert.Equal(t, i+1, res.Seq)
	}
	assert.True(t, f.manager.Idle())
}

func TestManager_CancelledWhileQueued(t *testing.T) {
	release := make(chan struct{})
	u := &mockUnderstander{understandFunc: func(ctx context.Context, text string, sess *core.Session) core.Intent {
		<-release
		return core.Intent{Query: text}
	}}
	f := newFixture(t, memstore.New(), u, []core.Retriever{graphRetriever()}, testConfig())

	done := make(chan struct{})
	go func() {
		defer close(done)
		_, _ = f.manager.HandleTurn(context.Background(), "first")
	}()
	require.Eventually(t, func() bool { return !f.manager.Idle() }, time.Second, time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err := f.manager.HandleTurn(ctx, "second")
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	close(release)
	<-done
	assert.True(t, f.manager.Idle())
}

func TestManager_VersionConflictAcrossProcesses(t *testing.T) {
	ctx := context.Background()
	store := memstore.New()

	// two managers over one store stand in for two processes
	a := newFixture(t, store, &mockUnderstander{}, []core.Retriever{graphRetriever()}, testConfig())
	b := newFixture(t, store, &mockUnderstander{}, []core.Retriever{graphRetriever()}, testConfig())

	_, err := a.manager.HandleTurn(ctx, "first")
	require.NoError(t, err)
	_, err = b.manager.HandleTurn(ctx, "second")
	require.NoError(t, err)
	res, err := a.manager.HandleTurn(ctx, "third")
	require.NoError(t, err)
	assert.Equal(t, 3, res.Seq, "stale cache reloaded after conflict")

	sess, err := store.LoadSession(ctx, "s1")
	require.NoError(t, err)
	require.Len(t, sess.Turns, 3)
	for i, turn := range sess.Turns {
		assert.Equal(t, i+1, turn.Seq)
	}
	assert.Equal(t, int64(3), sess.Version)
}

func TestManager_SessionCacheExpires(t *testing.T) {
	ctx := context.Background()
	store := memstore.New()

	cfg := testConfig()
	cfg.SessionMaxAge = time.Minute

	clock := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	var seen []int
	u := &mockUnderstander{understandFunc: func(ctx context.Context, text string, sess *core.Session) core.Intent {
		seen = append(seen, len(sess.Turns))
		return core.Intent{Kind: core.IntentGeneral, Query: text}
	}}
	a := newFixture(t, store, u, []core.Retriever{graphRetriever()}, cfg, WithClock(func() time.Time { return clock }))
	b := newFixture(t, store, &mockUnderstander{}, []core.Retriever{graphRetriever()}, cfg)

	_, err := a.manager.HandleTurn(ctx, "first")
	require.NoError(t, err)
	_, err = b.manager.HandleTurn(ctx, "second")
	require.NoError(t, err)

	clock = clock.Add(30 * time.Second)
	res, err := a.manager.HandleTurn(ctx, "third")
	require.NoError(t, err)
	assert.Equal(t, 3, res.Seq)

	_, err = b.manager.HandleTurn(ctx, "fourth")
	require.NoError(t, err)

	clock = clock.Add(2 * time.Minute)
	res, err = a.manager.HandleTurn(ctx, "fifth")
	require.NoError(t, err)
	assert.Equal(t, 5, res.Seq)

	assert.Equal(t, []int{0, 1, 4}, seen, "a fresh cache is reused, an old one is reloaded")
}
