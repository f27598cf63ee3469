package memstore

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/sandevgo/recomate/internal/core"
)

// Store keeps sessions in process memory. Sessions are copied on the way in
// and out so callers never share state with the store.
type Store struct {
	mu       sync.RWMutex
	sessions map[string]*core.Session
	now      func() time.Time
}

func New() *Store {
	return &Store{
		sessions: make(map[string]*core.Session),
		now:      time.Now,
	}
}

func (s *Store) LoadSession(ctx context.Context, sessionID string) (*core.Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sess, ok := s.sessions[sessionID]
	if !ok {
		return nil, core.ErrSessionNotFound
	}
	return clone(sess)
}

func (s *Store) AppendTurn(
	ctx context.Context,
	sessionID string,
	turn core.Turn,
	profile core.PreferenceProfile,
	expectedVersion int64,
) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now().UTC()
	if turn.CreatedAt.IsZero() {
		turn.CreatedAt = now
	}

	sess, ok := s.sessions[sessionID]
	var current int64
	if ok {
		current = sess.Version
	}
	if current != expectedVersion {
		return 0, core.ErrVersionConflict
	}

	if !ok {
		sess = core.NewSession(sessionID)
		sess.Title = core.SessionTitle(turn.Input)
		sess.CreatedAt = now
		s.sessions[sessionID] = sess
	}

	copied, err := cloneTurn(turn)
	if err != nil {
		return 0, err
	}
	sess.Turns = append(sess.Turns, copied)
	sess.Profile = profile.Clone()
	sess.Version++
	sess.UpdatedAt = now
	return sess.Version, nil
}

func (s *Store) ListSessions(ctx context.Context, limit int) ([]core.SessionSummary, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]core.SessionSummary, 0, len(s.sessions))
	for _, sess := range s.sessions {
		out = append(out, core.SessionSummary{
			ID:        sess.ID,
			Title:     sess.Title,
			Turns:     len(sess.Turns),
			Version:   sess.Version,
			UpdatedAt: sess.UpdatedAt,
		})
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].UpdatedAt.Equal(out[j].UpdatedAt) {
			return out[i].UpdatedAt.After(out[j].UpdatedAt)
		}
		return out[i].ID < out[j].ID
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// clone deep-copies through JSON, the same shape the durable stores persist.
func clone(sess *core.Session) (*core.Session, error) {
	data, err := json.Marshal(sess)
	if err != nil {
		return nil, fmt.Errorf("failed to copy session: %w", err)
	}
	out := &core.Session{}
	if err := json.Unmarshal(data, out); err != nil {
		return nil, fmt.Errorf("failed to copy session: %w", err)
	}
	if out.Profile == nil {
		out.Profile = core.PreferenceProfile{}
	}
	return out, nil
}

func cloneTurn(t core.Turn) (core.Turn, error) {
	data, err := json.Marshal(t)
	if err != nil {
		return core.Turn{}, fmt.Errorf("failed to copy turn: %w", err)
	}
	var out core.Turn
	if err := json.Unmarshal(data, &out); err != nil {
		return core.Turn{}, fmt.Errorf("failed to copy turn: %w", err)
	}
	return out, nil
}
