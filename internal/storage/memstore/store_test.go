package memstore

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/sandevgo/recomate/internal/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStore_CompareAndSet(t *testing.T) {
	ctx := context.Background()
	s := New()

	_, err := s.LoadSession(ctx, "s1")
	assert.ErrorIs(t, err, core.ErrSessionNotFound)

	v, err := s.AppendTurn(ctx, "s1", core.Turn{Seq: 1, Input: "hi", Status: core.TurnResponded}, core.PreferenceProfile{"a": 1}, 0)
	require.NoError(t, err)
	assert.Equal(t, int64(1), v)

	_, err = s.AppendTurn(ctx, "s1", core.Turn{Seq: 2, Input: "stale"}, nil, 0)
	assert.ErrorIs(t, err, core.ErrVersionConflict)

	sess, err := s.LoadSession(ctx, "s1")
	require.NoError(t, err)
	assert.Equal(t, "hi", sess.Title)
	assert.Len(t, sess.Turns, 1)

	// Mutating a loaded copy does not touch the store.
	sess.Profile["a"] = 0
	sess.Turns[0].Input = "changed"
	again, err := s.LoadSession(ctx, "s1")
	require.NoError(t, err)
	assert.Equal(t, 1.0, again.Profile["a"])
	assert.Equal(t, "hi", again.Turns[0].Input)
}

func TestStore_ConcurrentAppendExactlyOneWins(t *testing.T) {
	ctx := context.Background()
	s := New()

	const writers = 16
	var wg sync.WaitGroup
	results := make([]error, writers)
	for i := 0; i < writers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, results[i] = s.AppendTurn(ctx, "s1", core.Turn{Seq: 1, Input: "race"}, nil, 0)
		}(i)
	}
	wg.Wait()

	wins := 0
	for _, err := range results {
		if err == nil {
			wins++
		} else if !errors.Is(err, core.ErrVersionConflict) {
			t.Fatalf("unexpected error: %v", err)
		}
	}
	assert.Equal(t, 1, wins)
}

func TestStore_ListSessions(t *testing.T) {
	ctx := context.Background()
	s := New()
	for _, id := range []string{"a", "b", "c"} {
		_, err := s.AppendTurn(ctx, id, core.Turn{Seq: 1, Input: id}, nil, 0)
		require.NoError(t, err)
	}

	list, err := s.ListSessions(ctx, 2)
	require.NoError(t, err)
	assert.Len(t, list, 2)
}
