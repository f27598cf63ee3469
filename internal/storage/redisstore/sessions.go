package redisstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/sandevgo/recomate/internal/core"
)

const (
	fieldTitle     = "title"
	fieldProfile   = "profile"
	fieldVersion   = "version"
	fieldCreatedAt = "created_at"
	fieldUpdatedAt = "updated_at"
)

// SessionStore keeps a session as a hash plus a list of turns. Appends run
// in a WATCH/MULTI transaction on the session hash, which gives the
// compare-and-set on version across processes.
type SessionStore struct {
	client redis.UniversalClient
	prefix string
	now    func() time.Time
}

func NewSessionStore(client redis.UniversalClient, prefix string) *SessionStore {
	if prefix == "" {
		prefix = "recomate"
	}
	return &SessionStore{client: client, prefix: prefix, now: time.Now}
}

func (s *SessionStore) sessionKey(id string) string {
	return fmt.Sprintf("%s:session:%s", s.prefix, id)
}

func (s *SessionStore) turnsKey(id string) string {
	return fmt.Sprintf("%s:session:%s:turns", s.prefix, id)
}

func (s *SessionStore) indexKey() string {
	return s.prefix + ":sessions"
}

func (s *SessionStore) LoadSession(ctx context.Context, sessionID string) (*core.Session, error) {
	var hash *redis.MapStringStringCmd
	var turns *redis.StringSliceCmd
	_, err := s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		hash = pipe.HGetAll(ctx, s.sessionKey(sessionID))
		turns = pipe.LRange(ctx, s.turnsKey(sessionID), 0, -1)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to load session: %w", err)
	}
	if len(hash.Val()) == 0 {
		return nil, core.ErrSessionNotFound
	}

	sess, err := decodeSession(sessionID, hash.Val())
	if err != nil {
		return nil, err
	}

	for _, item := range turns.Val() {
		var t core.Turn
		if err := json.Unmarshal([]byte(item), &t); err != nil {
			return nil, fmt.Errorf("failed to unmarshal turn: %w", err)
		}
		sess.Turns = append(sess.Turns, t)
	}
	return sess, nil
}

func (s *SessionStore) AppendTurn(
	ctx context.Context,
	sessionID string,
	turn core.Turn,
	profile core.PreferenceProfile,
	expectedVersion int64,
) (int64, error) {
	now := s.now().UTC()
	if turn.CreatedAt.IsZero() {
		turn.CreatedAt = now
	}
	if profile == nil {
		profile = core.PreferenceProfile{}
	}

	turnJSON, err := json.Marshal(turn)
	if err != nil {
		return 0, fmt.Errorf("failed to marshal turn: %w", err)
	}
	profileJSON, err := json.Marshal(profile)
	if err != nil {
		return 0, fmt.Errorf("failed to marshal profile: %w", err)
	}

	key := s.sessionKey(sessionID)
	next := expectedVersion + 1

	txf := func(tx *redis.Tx) error {
		current, err := tx.HGet(ctx, key, fieldVersion).Int64()
		if errors.Is(err, redis.Nil) {
			current = 0
		} else if err != nil {
			return err
		}
		if current != expectedVersion {
			return core.ErrVersionConflict
		}

		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			values := map[string]any{
				fieldProfile:   string(profileJSON),
				fieldVersion:   next,
				fieldUpdatedAt: now.Format(time.RFC3339Nano),
			}
			if expectedVersion == 0 {
				values[fieldTitle] = core.SessionTitle(turn.Input)
				values[fieldCreatedAt] = now.Format(time.RFC3339Nano)
			}
			pipe.HSet(ctx, key, values)
			pipe.RPush(ctx, s.turnsKey(sessionID), string(turnJSON))
			pipe.ZAdd(ctx, s.indexKey(), redis.Z{Score: float64(now.UnixNano()), Member: sessionID})
			return nil
		})
		return err
	}

	err = s.client.Watch(ctx, txf, key)
	if errors.Is(err, redis.TxFailedErr) {
		return 0, core.ErrVersionConflict
	}
	if err != nil {
		if errors.Is(err, core.ErrVersionConflict) {
			return 0, err
		}
		return 0, fmt.Errorf("failed to append turn: %w", err)
	}
	return next, nil
}

func (s *SessionStore) ListSessions(ctx context.Context, limit int) ([]core.SessionSummary, error) {
	if limit <= 0 {
		limit = 20
	}

	ids, err := s.client.ZRevRange(ctx, s.indexKey(), 0, int64(limit-1)).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to list sessions: %w", err)
	}

	pipe := s.client.Pipeline()
	hashes := make([]*redis.MapStringStringCmd, len(ids))
	counts := make([]*redis.IntCmd, len(ids))
	for i, id := range ids {
		hashes[i] = pipe.HGetAll(ctx, s.sessionKey(id))
		counts[i] = pipe.LLen(ctx, s.turnsKey(id))
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return nil, fmt.Errorf("failed to read sessions: %w", err)
	}

	out := make([]core.SessionSummary, 0, len(ids))
	for i, id := range ids {
		sess, err := decodeSession(id, hashes[i].Val())
		if err != nil {
			return nil, err
		}
		out = append(out, core.SessionSummary{
			ID:        id,
			Title:     sess.Title,
			Turns:     int(counts[i].Val()),
			Version:   sess.Version,
			UpdatedAt: sess.UpdatedAt,
		})
	}
	return out, nil
}

func decodeSession(id string, fields map[string]string) (*core.Session, error) {
	sess := core.NewSession(id)
	sess.Title = fields[fieldTitle]

	if v := fields[fieldVersion]; v != "" {
		version, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid session version %q: %w", v, err)
		}
		sess.Version = version
	}
	if p := fields[fieldProfile]; p != "" {
		if err := json.Unmarshal([]byte(p), &sess.Profile); err != nil {
			return nil, fmt.Errorf("failed to unmarshal profile: %w", err)
		}
	}
	if sess.Profile == nil {
		sess.Profile = core.PreferenceProfile{}
	}
	sess.CreatedAt, _ = time.Parse(time.RFC3339Nano, fields[fieldCreatedAt])
	sess.UpdatedAt, _ = time.Parse(time.RFC3339Nano, fields[fieldUpdatedAt])
	return sess, nil
}
