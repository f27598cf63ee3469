package memory

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/sandevgo/recomate/internal/core"
	"github.com/sandevgo/recomate/pkg/log"
	"github.com/sandevgo/recomate/pkg/metrics"
	"github.com/sandevgo/recomate/pkg/retry"
)

// BuildFunc produces the turn and profile to append on top of sess. It is
// called again with a fresh copy after every version conflict, so it must
// derive everything from sess.
type BuildFunc func(sess *core.Session) (core.Turn, core.PreferenceProfile)

// Memory adapts a SessionStore for the conversation manager: unknown
// sessions load as empty ones and appends retry through version conflicts.
type Memory struct {
	store  core.SessionStore
	policy retry.Policy
	now    func() time.Time
}

func New(store core.SessionStore, policy retry.Policy) *Memory {
	return &Memory{
		store:  store,
		policy: policy,
		now:    time.Now,
	}
}

// Load returns the stored session, or a new empty one at version 0.
func (m *Memory) Load(ctx context.Context, sessionID string) (*core.Session, error) {
	sess, err := m.store.LoadSession(ctx, sessionID)
	if errors.Is(err, core.ErrSessionNotFound) {
		return core.NewSession(sessionID), nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load session %s: %w", sessionID, err)
	}
	if sess.Profile == nil {
		sess.Profile = core.PreferenceProfile{}
	}
	return sess, nil
}

// Get is Load without the empty fallback.
func (m *Memory) Get(ctx context.Context, sessionID string) (*core.Session, error) {
	return m.store.LoadSession(ctx, sessionID)
}

func (m *Memory) List(ctx context.Context, limit int) ([]core.SessionSummary, error) {
	return m.store.ListSessions(ctx, limit)
}

// Commit appends the turn built from sess and returns the session as it is
// after the append together with the turn actually stored. Failures that
// outlive the retry policy are reported as core.ErrPersistence.
func (m *Memory) Commit(ctx context.Context, sess *core.Session, build BuildFunc) (*core.Session, core.Turn, error) {
	logger := log.FromCtx(ctx)

	policy := m.policy
	policy.OnRetry = func(attempt int, err error) {
		metrics.PersistRetries.Inc()
		logger.Warn().Err(err).Int("attempt", attempt).Str("session_id", sess.ID).Msg("retrying session append")
	}

	current := sess
	var stored core.Turn

	err := retry.NewRetrier(policy).Do(ctx, func() error {
		turn, profile := build(current)

		version, err := m.store.AppendTurn(ctx, current.ID, turn, profile, current.Version)
		if err == nil {
			current = m.applied(current, turn, profile, version)
			stored = turn
			return nil
		}

		if errors.Is(err, core.ErrVersionConflict) {
			metrics.VersionConflicts.Inc()
			logger.Warn().Str("session_id", current.ID).Int64("version", current.Version).Msg("session version conflict, reloading")

			fresh, lerr := m.Load(ctx, current.ID)
			if lerr != nil {
				return lerr
			}
			current = fresh
		}
		return err
	})
	if err != nil {
		return nil, core.Turn{}, fmt.Errorf("%w: %w", core.ErrPersistence, err)
	}
	return current, stored, nil
}

// applied mirrors a successful append locally without another round trip.
func (m *Memory) applied(sess *core.Session, turn core.Turn, profile core.PreferenceProfile, version int64) *core.Session {
	next := *sess
	next.Turns = append(slices.Clone(sess.Turns), turn)
	next.Profile = profile.Clone()
	next.Version = version
	next.UpdatedAt = m.now().UTC()
	if next.Title == "" {
		next.Title = core.SessionTitle(turn.Input)
	}
	if next.CreatedAt.IsZero() {
		next.CreatedAt = next.UpdatedAt
	}
	return &next
}
