package redisstore

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/sandevgo/recomate/internal/config"
	"github.com/sandevgo/recomate/internal/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupStore(t *testing.T) *SessionStore {
	t.Helper()

	mr := miniredis.RunT(t)
	client, err := NewClient(context.Background(), &config.RedisConfig{
		URL:          fmt.Sprintf("redis://%s", mr.Addr()),
		DialTimeout:  5 * time.Second,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 5 * time.Second,
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = client.Close() })

	return NewSessionStore(client, "test")
}

func TestSessionStore_AppendAndLoad(t *testing.T) {
	ctx := context.Background()
	store := setupStore(t)

	_, err := store.LoadSession(ctx, "s1")
	assert.ErrorIs(t, err, core.ErrSessionNotFound)

	turn := core.Turn{
		Seq:    1,
		Input:  "wireless headphones",
		Intent: core.Intent{Kind: core.IntentGeneral, Category: "headphones"},
		Recommendations: core.RecommendationSet{
			{ProductID: "h1", Score: 0.7, Rationale: []string{core.SignalSemantic}},
		},
		Status: core.TurnResponded,
	}
	v, err := store.AppendTurn(ctx, "s1", turn, core.PreferenceProfile{"category:headphones": 0.3}, 0)
	require.NoError(t, err)
	assert.Equal(t, int64(1), v)

	sess, err := store.LoadSession(ctx, "s1")
	require.NoError(t, err)
	assert.Equal(t, int64(1), sess.Version)
	assert.Equal(t, "wireless headphones", sess.Title)
	assert.Equal(t, 0.3, sess.Profile["category:headphones"])
	require.Len(t, sess.Turns, 1)
	assert.Equal(t, "h1", sess.Turns[0].Recommendations[0].ProductID)

	_, err = store.AppendTurn(ctx, "s1", core.Turn{Seq: 2, Input: "stale"}, nil, 0)
	assert.ErrorIs(t, err, core.ErrVersionConflict)
}

func TestSessionStore_ConcurrentAppendExactlyOneWins(t *testing.T) {
	ctx := context.Background()
	store := setupStore(t)

	const writers = 8
	var wg sync.WaitGroup
	errs := make([]error, writers)
	for i := 0; i < writers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = store.AppendTurn(ctx, "s1", core.Turn{Seq: 1, Input: "race"}, nil, 0)
		}(i)
	}
	wg.Wait()

	wins := 0
	for _, err := range errs {
		if err == nil {
			wins++
		} else if !errors.Is(err, core.ErrVersionConflict) {
			t.Fatalf("unexpected error: %v", err)
		}
	}
	assert.Equal(t, 1, wins)

	sess, err := store.LoadSession(ctx, "s1")
	require.NoError(t, err)
	assert.Len(t, sess.Turns, 1)
}

func TestSessionStore_ListSessions(t *testing.T) {
	ctx := context.Background()
	store := setupStore(t)

	_, err := store.AppendTurn(ctx, "a", core.Turn{Seq: 1, Input: "first"}, nil, 0)
	require.NoError(t, err)
	_, err = store.AppendTurn(ctx, "b", core.Turn{Seq: 1, Input: "second"}, nil, 0)
	require.NoError(t, err)
	_, err = store.AppendTurn(ctx, "b", core.Turn{Seq: 2, Input: "more"}, nil, 1)
	require.NoError(t, err)

	list, err := store.ListSessions(ctx, 10)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, "b", list[0].ID)
	assert.Equal(t, 2, list[0].Turns)
	assert.Equal(t, "second", list[0].Title)
}
