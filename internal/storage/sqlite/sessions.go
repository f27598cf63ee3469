package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/sandevgo/recomate/internal/core"
	"github.com/sandevgo/recomate/pkg/log"
)

// SessionRepo is the default durable session store.
type SessionRepo struct {
	db  *sql.DB
	now func() time.Time
}

func NewSessionRepo(db *sql.DB) *SessionRepo {
	return &SessionRepo{db: db, now: time.Now}
}

func (r *SessionRepo) LoadSession(ctx context.Context, sessionID string) (*core.Session, error) {
	s := core.NewSession(sessionID)
	var profile string

	query := `SELECT title, profile, version, created_at, updated_at FROM sessions WHERE id = ?`
	err := r.db.QueryRowContext(ctx, query, sessionID).
		Scan(&s.Title, &profile, &s.Version, &s.CreatedAt, &s.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, core.ErrSessionNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load session: %w", err)
	}

	if err := json.Unmarshal([]byte(profile), &s.Profile); err != nil {
		return nil, fmt.Errorf("failed to unmarshal profile: %w", err)
	}
	if s.Profile == nil {
		s.Profile = core.PreferenceProfile{}
	}

	turns, err := r.loadTurns(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	s.Turns = turns

	log.FromCtx(ctx).Debug().
		Str("session_id", sessionID).
		Int64("version", s.Version).
		Int("turns", len(turns)).
		Msg("loaded session")
	return s, nil
}

func (r *SessionRepo) loadTurns(ctx context.Context, sessionID string) ([]core.Turn, error) {
	query := `SELECT seq, input, intent, recommendations, status, failure, created_at
		FROM turns WHERE session_id = ? ORDER BY seq`

	rows, err := r.db.QueryContext(ctx, query, sessionID)
	if err != nil {
		return nil, fmt.Errorf("failed to query turns: %w", err)
	}
	defer rows.Close()

	var turns []core.Turn
	for rows.Next() {
		var t core.Turn
		var intent, recs, status string
		if err := rows.Scan(&t.Seq, &t.Input, &intent, &recs, &status, &t.Failure, &t.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan turn: %w", err)
		}
		t.Status = core.TurnStatus(status)
		if err := json.Unmarshal([]byte(intent), &t.Intent); err != nil {
			return nil, fmt.Errorf("failed to unmarshal intent of turn %d: %w", t.Seq, err)
		}
		if err := json.Unmarshal([]byte(recs), &t.Recommendations); err != nil {
			return nil, fmt.Errorf("failed to unmarshal recommendations of turn %d: %w", t.Seq, err)
		}
		turns = append(turns, t)
	}

	return turns, rows.Err()
}

// AppendTurn stores turn and profile if the session is still at
// expectedVersion. Version 0 means the session must not exist yet.
func (r *SessionRepo) AppendTurn(
	ctx context.Context,
	sessionID string,
	turn core.Turn,
	profile core.PreferenceProfile,
	expectedVersion int64,
) (int64, error) {
	profileJSON, err := json.Marshal(profile)
	if err != nil {
		return 0, fmt.Errorf("failed to marshal profile: %w", err)
	}
	intentJSON, err := json.Marshal(turn.Intent)
	if err != nil {
		return 0, fmt.Errorf("failed to marshal intent: %w", err)
	}
	recs := turn.Recommendations
	if recs == nil {
		recs = core.RecommendationSet{}
	}
	recsJSON, err := json.Marshal(recs)
	if err != nil {
		return 0, fmt.Errorf("failed to marshal recommendations: %w", err)
	}

	now := r.now().UTC()
	if turn.CreatedAt.IsZero() {
		turn.CreatedAt = now
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to begin tx: %w", err)
	}
	defer tx.Rollback()

	var res sql.Result
	if expectedVersion == 0 {
		res, err = tx.ExecContext(ctx,
			`INSERT INTO sessions (id, title, profile, version, created_at, updated_at)
			VALUES (?, ?, ?, 1, ?, ?) ON CONFLICT (id) DO NOTHING`,
			sessionID, core.SessionTitle(turn.Input), string(profileJSON), now, now)
	} else {
		res, err = tx.ExecContext(ctx,
			`UPDATE sessions SET profile = ?, version = version + 1, updated_at = ?
			WHERE id = ? AND version = ?`,
			string(profileJSON), now, sessionID, expectedVersion)
	}
	if err != nil {
		return 0, fmt.Errorf("failed to write session: %w", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return 0, err
	}
	if affected == 0 {
		return 0, core.ErrVersionConflict
	}

	_, err = tx.ExecContext(ctx,
		`INSERT INTO turns (session_id, seq, input, intent, recommendations, status, failure, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		sessionID, turn.Seq, turn.Input, string(intentJSON), string(recsJSON), string(turn.Status), turn.Failure, turn.CreatedAt)
	if err != nil {
		if isConstraintViolation(err) {
			return 0, core.ErrVersionConflict
		}
		return 0, fmt.Errorf("failed to insert turn: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("failed to commit turn: %w", err)
	}

	return expectedVersion + 1, nil
}

func (r *SessionRepo) ListSessions(ctx context.Context, limit int) ([]core.SessionSummary, error) {
	if limit <= 0 {
		limit = 20
	}

	query := `SELECT s.id, s.title, s.version, s.updated_at,
		(SELECT COUNT(*) FROM turns t WHERE t.session_id = s.id)
		FROM sessions s ORDER BY s.updated_at DESC, s.id LIMIT ?`

	rows, err := r.db.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list sessions: %w", err)
	}
	defer rows.Close()

	var out []core.SessionSummary
	for rows.Next() {
		var s core.SessionSummary
		if err := rows.Scan(&s.ID, &s.Title, &s.Version, &s.UpdatedAt, &s.Turns); err != nil {
			return nil, fmt.Errorf("failed to scan session: %w", err)
		}
		out = append(out, s)
	}
	return out, rows.Err()
}
