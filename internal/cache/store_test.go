package cache

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/matheus3301/smartcart/internal/model"
	"github.com/matheus3301/smartcart/internal/mutation"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "cache.db"))
	require.NoError(t, err)
	_, err = s.Migrate(context.Background())
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestMigrateIsIdempotent(t *testing.T) {
	s := testStore(t)

	sc, err := s.Migrate(context.Background())
	require.NoError(t, err)
	assert.False(t, sc.Upgraded, "second Migrate() should not upgrade")
	assert.Equal(t, uint(1), sc.Version)
	assert.False(t, sc.Dirty)
}

func TestMigrateReportsCacheContents(t *testing.T) {
	ctx := context.Background()
	s, err := Open(filepath.Join(t.TempDir(), "cache.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })

	sc, err := s.Migrate(ctx)
	require.NoError(t, err)
	assert.True(t, sc.Upgraded)
	assert.Zero(t, sc.Entries)
	assert.Zero(t, sc.Pending)

	_, err = s.Apply(ctx,
		[]Write{Set(KeyRetailers, CollectionRetailers, []model.Retailer{{ID: "r-1", Name: "Aldi"}})},
		mutation.DeleteTrip{ID: "t-1"})
	require.NoError(t, err)

	sc, err = s.Migrate(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, sc.Entries)
	assert.Equal(t, 1, sc.Pending)
}

func TestMigrateRefusesDirtySchema(t *testing.T) {
	ctx := context.Background()
	s := testStore(t)
	_, err := s.db.ExecContext(ctx, `UPDATE schema_migrations SET dirty = 1`)
	require.NoError(t, err)

	sc, err := s.Migrate(ctx)
	require.ErrorIs(t, err, ErrDirtySchema)
	assert.True(t, sc.Dirty)
	assert.Equal(t, uint(1), sc.Version)
}

func TestPutGetReturnsLastWrite(t *testing.T) {
	ctx := context.Background()
	s := testStore(t)

	require.NoError(t, s.Put(ctx, KeyRetailers, CollectionRetailers, []model.Retailer{{ID: "r1", Name: "A"}}))
	require.NoError(t, s.Put(ctx, KeyRetailers, CollectionRetailers, []model.Retailer{{ID: "r2", Name: "B"}}))

	var got []model.Retailer
	found, err := s.Get(ctx, KeyRetailers, &got)
	require.NoError(t, err)
	require.True(t, found)
	require.Len(t, got, 1)
	assert.Equal(t, "r2", got[0].ID)
}

func TestGetAbsentKey(t *testing.T) {
	s := testStore(t)

	var v []model.Trip
	found, err := s.Get(context.Background(), "nope", &v)
	require.NoError(t, err)
	assert.False(t, found)
}

func TestRemoveIsIdempotent(t *testing.T) {
	ctx := context.Background()
	s := testStore(t)

	require.NoError(t, s.Put(ctx, KeyActiveTrip, CollectionActiveTrip, model.Trip{ID: "t1"}))
	require.NoError(t, s.Remove(ctx, KeyActiveTrip))
	require.NoError(t, s.Remove(ctx, KeyActiveTrip))

	var trip model.Trip
	found, err := s.Get(ctx, KeyActiveTrip, &trip)
	require.NoError(t, err)
	assert.False(t, found)
}

func TestKeysAndClear(t *testing.T) {
	ctx := context.Background()
	s := testStore(t)

	require.NoError(t, s.Put(ctx, ItemsKey("t1"), CollectionTripItems, []model.TripItem{}))
	require.NoError(t, s.Put(ctx, ItemsKey("t2"), CollectionTripItems, []model.TripItem{}))
	require.NoError(t, s.Put(ctx, KeyTrips, CollectionTrips, []model.Trip{}))

	keys, err := s.Keys(ctx, CollectionTripItems)
	require.NoError(t, err)
	assert.Equal(t, []string{"trip_items_t1", "trip_items_t2"}, keys)

	require.NoError(t, s.Clear(ctx, CollectionTripItems))
	keys, err = s.Keys(ctx, CollectionTripItems)
	require.NoError(t, err)
	assert.Empty(t, keys)

	var trips []model.Trip
	found, err := s.Get(ctx, KeyTrips, &trips)
	require.NoError(t, err)
	assert.True(t, found, "other collections survive a targeted clear")

	require.NoError(t, s.Clear(ctx))
	found, err = s.Get(ctx, KeyTrips, &trips)
	require.NoError(t, err)
	assert.False(t, found)
}

func TestQueuePreservesEnqueueOrder(t *testing.T) {
	ctx := context.Background()
	clock := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	s, err := Open(filepath.Join(t.TempDir(), "cache.db"), WithClock(func() time.Time { return clock }))
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	_, err = s.Migrate(context.Background())
	require.NoError(t, err)

	// Same timestamp for every entry; order must come from the sequence.
	var ids []string
	for _, a := range []mutation.Action{
		mutation.CreateRetailer{TempID: "temp_1_a", Input: model.RetailerInput{Name: "A"}},
		mutation.DeleteTrip{ID: "t9"},
		mutation.ToggleItem{ID: "i1", Trip: "t1", Completed: true},
	} {
		id, err := s.EnqueueMutation(ctx, a)
		require.NoError(t, err)
		ids = append(ids, id)
	}

	queued, err := s.ListQueuedMutations(ctx)
	require.NoError(t, err)
	require.Len(t, queued, 3)
	for i, q := range queued {
		assert.Equal(t, ids[i], q.ID)
		assert.Equal(t, 0, q.RetryCount)
		assert.True(t, q.EnqueuedAt.Equal(clock))
	}
	assert.Equal(t, mutation.KindCreateRetailer, queued[0].Action.Kind())
	assert.Equal(t, mutation.KindDeleteTrip, queued[1].Action.Kind())
	assert.Equal(t, mutation.ToggleItem{ID: "i1", Trip: "t1", Completed: true}, queued[2].Action)
}

func TestUndecodableMutationIsFlagged(t *testing.T) {
	ctx := context.Background()
	s := testStore(t)

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO mutation_queue (id, kind, payload, enqueued_at) VALUES ('bad', 'rename_planet', '{}', 0)`)
	require.NoError(t, err)
	_, err = s.EnqueueMutation(ctx, mutation.DeleteTrip{ID: "t1"})
	require.NoError(t, err)

	queued, err := s.ListQueuedMutations(ctx)
	require.NoError(t, err)
	require.Len(t, queued, 2)
	assert.Nil(t, queued[0].Action)
	assert.ErrorContains(t, queued[0].Err, "rename_planet")
	assert.NoError(t, queued[1].Err)
	assert.Equal(t, mutation.DeleteTrip{ID: "t1"}, queued[1].Action)
}

func TestDequeueAndRetry(t *testing.T) {
	ctx := context.Background()
	s := testStore(t)

	id, err := s.EnqueueMutation(ctx, mutation.DeleteRetailer{ID: "r1"})
	require.NoError(t, err)

	for want := 1; want <= 3; want++ {
		n, err := s.IncrementRetry(ctx, id)
		require.NoError(t, err)
		assert.Equal(t, want, n)
	}

	size, err := s.QueueSize(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, size)

	require.NoError(t, s.DequeueMutation(ctx, id))
	require.NoError(t, s.DequeueMutation(ctx, id))

	size, err = s.QueueSize(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, size)

	_, err = s.IncrementRetry(ctx, id)
	assert.True(t, errors.Is(err, model.ErrNotFound))
}

func TestApplyWritesCacheAndQueueTogether(t *testing.T) {
	ctx := context.Background()
	s := testStore(t)

	require.NoError(t, s.Put(ctx, KeyActiveTrip, CollectionActiveTrip, model.Trip{ID: "old"}))

	id, err := s.Apply(ctx, []Write{
		Set(KeyTrips, CollectionTrips, []model.Trip{{ID: "t1"}}),
		Del(KeyActiveTrip),
	}, mutation.DeleteTrip{ID: "old"})
	require.NoError(t, err)
	require.NotEmpty(t, id)

	var trips []model.Trip
	found, err := s.Get(ctx, KeyTrips, &trips)
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, "t1", trips[0].ID)

	var active model.Trip
	found, err = s.Get(ctx, KeyActiveTrip, &active)
	require.NoError(t, err)
	assert.False(t, found)

	queued, err := s.ListQueuedMutations(ctx)
	require.NoError(t, err)
	require.Len(t, queued, 1)
	assert.Equal(t, id, queued[0].ID)
}

func TestApplyRollsBackOnFailure(t *testing.T) {
	ctx := context.Background()
	s := testStore(t)

	// A channel cannot be JSON-encoded, so the second write fails.
	_, err := s.Apply(ctx, []Write{
		Set(KeyTrips, CollectionTrips, []model.Trip{{ID: "t1"}}),
		Set(KeyRetailers, CollectionRetailers, make(chan int)),
	}, mutation.DeleteTrip{ID: "t1"})
	require.Error(t, err)

	var trips []model.Trip
	found, err := s.Get(ctx, KeyTrips, &trips)
	require.NoError(t, err)
	assert.False(t, found, "cache write must roll back")

	size, err := s.QueueSize(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, size, "queue entry must roll back")
}

func TestConcurrentEnqueue(t *testing.T) {
	ctx := context.Background()
	s := testStore(t)

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := s.EnqueueMutation(ctx, mutation.DeleteItem{ID: "i", Trip: "t"})
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	size, err := s.QueueSize(ctx)
	require.NoError(t, err)
	assert.Equal(t, 20, size)
}

func TestTokenLifecycle(t *testing.T) {
	ctx := context.Background()
	s := testStore(t)

	tok, err := s.Token(ctx)
	require.NoError(t, err)
	assert.Empty(t, tok)

	require.NoError(t, s.SetToken(ctx, "abc"))
	tok, err = s.Token(ctx)
	require.NoError(t, err)
	assert.Equal(t, "abc", tok)

	require.NoError(t, s.Clear(ctx, CollectionRetailers, CollectionTrips))
	tok, err = s.Token(ctx)
	require.NoError(t, err)
	assert.Equal(t, "abc", tok, "clearing data collections keeps the session")

	require.NoError(t, s.ClearToken(ctx))
	tok, err = s.Token(ctx)
	require.NoError(t, err)
	assert.Empty(t, tok)
}
