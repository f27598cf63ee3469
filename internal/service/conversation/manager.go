package conversation

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/sandevgo/recomate/internal/config"
	"github.com/sandevgo/recomate/internal/core"
	"github.com/sandevgo/recomate/internal/service/memory"
	"github.com/sandevgo/recomate/pkg/log"
	"github.com/sandevgo/recomate/pkg/metrics"
	"github.com/sandevgo/recomate/pkg/tracing"
	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/sync/errgroup"
)

type State string

const (
	StateIdle          State = "idle"
	StateUnderstanding State = "understanding"
	StateRetrieving    State = "retrieving"
	StateFusing        State = "fusing"
	StatePersisting    State = "persisting"
	StateResponded     State = "responded"
	StateFailed        State = "failed"
)

const (
	FailureTimeout     = "turn_timeout"
	FailurePersistence = "persistence_failure"
	FailureLoad        = "session_unavailable"

	StageUnderstanding = "understanding"
)

// recordTimeout bounds the best-effort write of a failed turn, which runs
// after the turn's own deadline may already have passed.
const recordTimeout = 2 * time.Second

type Config struct {
	TurnTimeout    time.Duration
	RetrievalBound time.Duration
	// SessionMaxAge bounds how long a cached session is trusted before it
	// is reloaded from memory. 0 trusts it until a write fails.
	SessionMaxAge time.Duration
	Profile       ProfileUpdate
}

func NewConfig(turn *config.TurnConfig) Config {
	return Config{
		TurnTimeout:    turn.TurnTimeout(),
		RetrievalBound: turn.RetrievalBound(),
		SessionMaxAge:  turn.SessionCacheTTL,
		Profile: ProfileUpdate{
			Decay:        turn.ProfileDecay,
			LearningRate: turn.ProfileLearningRate,
			ImplicitRate: turn.ProfileImplicitRate,
			ImplicitTop:  3,
		},
	}
}

type Option func(*Manager)

// WithStateHook is called on every state transition, under no lock.
func WithStateHook(fn func(State)) Option {
	return func(m *Manager) {
		m.onState = fn
	}
}

// WithClock replaces time.Now for turn timestamps and session cache age.
func WithClock(now func() time.Time) Option {
	return func(m *Manager) {
		m.now = now
	}
}

// Manager runs the turns of one session, one at a time, in arrival order.
type Manager struct {
	sessionID    string
	understander core.Understander
	retrievers   []core.Retriever
	fuser        core.Fuser
	memory       *memory.Memory
	cfg          Config
	onState      func(State)
	now          func() time.Time

	mu       sync.Mutex
	busy     bool
	queue    []chan struct{}
	state    State
	session  *core.Session
	loadedAt time.Time
}

func NewManager(
	sessionID string,
	understander core.Understander,
	retrievers []core.Retriever,
	fuser core.Fuser,
	mem *memory.Memory,
	cfg Config,
	opts ...Option,
) *Manager {
	m := &Manager{
		sessionID:    sessionID,
		understander: understander,
		retrievers:   retrievers,
		fuser:        fuser,
		memory:       mem,
		cfg:          cfg,
		now:          time.Now,
		state:        StateIdle,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

func (m *Manager) SessionID() string {
	return m.sessionID
}

func (m *Manager) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// Idle reports whether no turn is running or waiting.
func (m *Manager) Idle() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return !m.busy && len(m.queue) == 0
}

// HandleTurn runs one turn. A turn that times out or cannot be persisted is
// not an error: it comes back with status failed and core.FailureMessage.
// Errors are returned only when the turn never started.
func (m *Manager) HandleTurn(ctx context.Context, text string) (core.TurnResult, error) {
	if strings.TrimSpace(text) == "" {
		return core.TurnResult{}, fmt.Errorf("%w: empty input", core.ErrInvalidInput)
	}
	if err := m.acquire(ctx); err != nil {
		return core.TurnResult{}, fmt.Errorf("turn cancelled while queued: %w", err)
	}
	defer m.release()

	logger := log.FromCtx(ctx).With().Str("session_id", m.sessionID).Logger()
	ctx = logger.WithContext(ctx)

	ctx, span := tracing.StartTurnSpan(ctx, m.sessionID)
	defer span.End()

	start := m.now()
	turnCtx, cancel := context.WithTimeout(ctx, m.cfg.TurnTimeout)
	defer cancel()

	res, cause := m.run(turnCtx, text)

	metrics.TurnsTotal.WithLabelValues(string(res.Status)).Inc()
	metrics.TurnDuration.Observe(m.now().Sub(start).Seconds())
	span.SetAttributes(
		attribute.String("turn.status", string(res.Status)),
		attribute.Int("turn.recommendations", len(res.Recommendations)),
	)
	tracing.Fail(span, cause)

	if cause != nil {
		logger.Error().Err(cause).Dur("elapsed", m.now().Sub(start)).Msg("turn failed")
	} else {
		logger.Info().
			Int("seq", res.Seq).
			Int("recommendations", len(res.Recommendations)).
			Strs("degraded", res.Degraded).
			Dur("elapsed", m.now().Sub(start)).
			Msg("turn responded")
	}

	m.setState(StateIdle)
	return res, nil
}

func (m *Manager) run(ctx context.Context, text string) (core.TurnResult, error) {
	m.setState(StateUnderstanding)

	sess, err := m.loadSession(ctx)
	if err != nil {
		err = fmt.Errorf("%w: %w", core.ErrPersistence, err)
		return m.fail(ctx, nil, text, core.Intent{}, FailureLoad, err), err
	}

	intent := m.understander.Understand(ctx, text, sess)
	if err := m.expired(ctx); err != nil {
		return m.fail(ctx, sess, text, intent, FailureTimeout, err), err
	}

	m.setState(StateRetrieving)
	results := m.retrieve(ctx, intent)
	if err := m.expired(ctx); err != nil {
		return m.fail(ctx, sess, text, intent, FailureTimeout, err), err
	}

	m.setState(StateFusing)
	recs := m.fuser.Fuse(results, intent, sess.Profile.Clone())

	m.setState(StatePersisting)
	tags := tagSets(results)
	created := m.now().UTC()
	next, turn, err := m.memory.Commit(ctx, sess, func(s *core.Session) (core.Turn, core.PreferenceProfile) {
		t := core.Turn{
			Seq:             s.NextSeq(),
			Input:           text,
			Intent:          intent,
			Recommendations: recs,
			Status:          core.TurnResponded,
			CreatedAt:       created,
		}
		return t, m.cfg.Profile.Apply(s.Profile, intent, recs, tags)
	})
	if err != nil {
		reason := FailurePersistence
		if ctx.Err() != nil {
			reason = FailureTimeout
			err = fmt.Errorf("%w: %w", core.ErrTurnTimeout, err)
		}
		m.forget()
		return m.fail(ctx, sess, text, intent, reason, err), err
	}

	m.cache(next)
	m.setState(StateResponded)

	return core.TurnResult{
		SessionID:       m.sessionID,
		Seq:             turn.Seq,
		Status:          core.TurnResponded,
		Recommendations: recs,
		Intent:          intent,
		Degraded:        degradedStages(intent, results),
	}, nil
}

// retrieve runs every agent concurrently and waits at most RetrievalBound.
// An agent that has not answered by then counts as timed out.
func (m *Manager) retrieve(ctx context.Context, intent core.Intent) []core.RetrievalResult {
	ctx, cancel := context.WithTimeout(ctx, m.cfg.RetrievalBound)
	defer cancel()

	var mu sync.Mutex
	results := make([]core.RetrievalResult, len(m.retrievers))
	done := make([]bool, len(m.retrievers))

	g, gctx := errgroup.WithContext(ctx)
	for i, r := range m.retrievers {
		g.Go(func() error {
			res := r.Retrieve(gctx, intent)
			mu.Lock()
			results[i], done[i] = res, true
			mu.Unlock()
			return nil
		})
	}

	waited := make(chan struct{})
	go func() {
		_ = g.Wait()
		close(waited)
	}()
	select {
	case <-waited:
	case <-ctx.Done():
	}

	mu.Lock()
	defer mu.Unlock()
	out := make([]core.RetrievalResult, len(results))
	for i, r := range m.retrievers {
		if !done[i] {
			out[i] = core.RetrievalResult{
				Agent:  r.Name(),
				Status: core.AgentTimeout,
				Err:    fmt.Errorf("%w: %s: retrieval bound exceeded", core.ErrAgentUnavailable, r.Name()),
			}
			continue
		}
		out[i] = results[i]
	}
	return out
}

// fail records the failed turn best effort and builds the caller's result.
func (m *Manager) fail(ctx context.Context, sess *core.Session, text string, intent core.Intent, reason string, cause error) core.TurnResult {
	m.setState(StateFailed)
	logger := log.FromCtx(ctx)

	if sess != nil {
		recCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), recordTimeout)
		defer cancel()

		created := m.now().UTC()
		next, _, err := m.memory.Commit(recCtx, sess, func(s *core.Session) (core.Turn, core.PreferenceProfile) {
			return core.Turn{
				Seq:       s.NextSeq(),
				Input:     text,
				Intent:    intent,
				Status:    core.TurnFailed,
				Failure:   reason,
				CreatedAt: created,
			}, s.Profile
		})
		if err != nil {
			logger.Warn().Err(err).Str("reason", reason).Msg("failed to record failed turn")
			m.forget()
		} else {
			m.cache(next)
		}
	}

	logger.Debug().Err(cause).Str("reason", reason).Msg("turn marked failed")
	return core.TurnResult{
		SessionID:       m.sessionID,
		Status:          core.TurnFailed,
		Recommendations: core.RecommendationSet{},
		Message:         core.FailureMessage,
		Intent:          intent,
	}
}

// loadSession returns the cached session while it is younger than
// SessionMaxAge and reloads it from memory otherwise.
func (m *Manager) loadSession(ctx context.Context) (*core.Session, error) {
	m.mu.Lock()
	cached, loadedAt := m.session, m.loadedAt
	m.mu.Unlock()
	if cached != nil && (m.cfg.SessionMaxAge <= 0 || m.now().Sub(loadedAt) < m.cfg.SessionMaxAge) {
		return cached, nil
	}

	sess, err := m.memory.Load(ctx, m.sessionID)
	if err != nil {
		return nil, err
	}
	m.cache(sess)
	return sess, nil
}

func (m *Manager) cache(sess *core.Session) {
	m.mu.Lock()
	m.session = sess
	m.loadedAt = m.now()
	m.mu.Unlock()
}

// forget drops the cached session so the next turn reloads it.
func (m *Manager) forget() {
	m.mu.Lock()
	m.session = nil
	m.mu.Unlock()
}

func (m *Manager) expired(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("%w: %w", core.ErrTurnTimeout, err)
	}
	return nil
}

func (m *Manager) setState(s State) {
	m.mu.Lock()
	m.state = s
	m.mu.Unlock()
	if m.onState != nil {
		m.onState(s)
	}
}

// acquire waits for the session's turn lock. Waiters are served strictly in
// arrival order; ownership is handed from release to the next waiter.
func (m *Manager) acquire(ctx context.Context) error {
	m.mu.Lock()
	if !m.busy {
		m.busy = true
		m.mu.Unlock()
		return nil
	}
	ch := make(chan struct{})
	m.queue = append(m.queue, ch)
	m.mu.Unlock()

	select {
	case <-ch:
		return nil
	case <-ctx.Done():
		m.mu.Lock()
		if i := slices.Index(m.queue, ch); i >= 0 {
			m.queue = slices.Delete(m.queue, i, i+1)
			m.mu.Unlock()
			return ctx.Err()
		}
		m.mu.Unlock()
		// handed the lock while giving up
		m.release()
		return ctx.Err()
	}
}

func (m *Manager) release() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.queue) == 0 {
		m.busy = false
		return
	}
	next := m.queue[0]
	m.queue = m.queue[1:]
	close(next)
}

func degradedStages(intent core.Intent, results []core.RetrievalResult) []string {
	var out []string
	if intent.Degraded {
		out = append(out, StageUnderstanding)
	}
	for _, r := range results {
		if !r.Available() {
			out = append(out, r.Agent)
		}
	}
	return out
}
