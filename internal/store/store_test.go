package store

import (
	"context"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"activityhub/pkg/types"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "test.db"), zerolog.Nop())
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func saveTestActivity(t *testing.T, s *Store, id, typ, actorID string, age time.Duration) {
	t.Helper()
	err := s.SaveActivity(context.Background(), &types.Activity{
		ID:          id,
		Type:        typ,
		Description: "test activity " + id,
		Actor:       types.Actor{ID: actorID, Name: "Actor " + actorID, Role: types.RoleCustomer},
		Status:      types.StatusSuccess,
		CreatedAt:   time.Now().Add(-age).UTC(),
	})
	require.NoError(t, err)
}

func TestStore_SaveAndListRecent(t *testing.T) {
	s := openTestStore(t)

	saveTestActivity(t, s, "a1", types.TypeOrder, "u1", 3*time.Hour)
	saveTestActivity(t, s, "a2", types.TypeUser, "u2", 2*time.Hour)
	saveTestActivity(t, s, "a3", types.TypeOrder, "u1", time.Hour)

	list, err := s.ListRecent(context.Background(), 10)
	require.NoError(t, err)
	require.Len(t, list, 3)
	assert.Equal(t, "a3", list[0].ID)
	assert.Equal(t, "a1", list[2].ID)

	list, err = s.ListRecent(context.Background(), 2)
	require.NoError(t, err)
	assert.Len(t, list, 2)
}

func TestStore_SaveRoundTripsOptionalFields(t *testing.T) {
	s := openTestStore(t)

	amount := 129.99
	updated := time.Now().UTC().Truncate(time.Second)
	err := s.SaveActivity(context.Background(), &types.Activity{
		ID:          "a1",
		Type:        types.TypeOrder,
		Description: "order placed",
		Actor:       types.Actor{ID: "u1", Name: "Ada", Role: types.RoleCustomer},
		Status:      types.StatusPending,
		Amount:      &amount,
		Entity:      &types.EntityRef{ID: "ord-42", Type: "order"},
		Metadata:    map[string]any{"items": float64(3)},
		CreatedAt:   time.Now().UTC(),
		UpdatedAt:   &updated,
	})
	require.NoError(t, err)

	list, err := s.ListRecent(context.Background(), 1)
	require.NoError(t, err)
	require.Len(t, list, 1)

	got := list[0]
	require.NotNil(t, got.Amount)
	assert.Equal(t, amount, *got.Amount)
	require.NotNil(t, got.Entity)
	assert.Equal(t, "ord-42", got.Entity.ID)
	assert.Equal(t, map[string]any{"items": float64(3)}, got.Metadata)
	require.NotNil(t, got.UpdatedAt)
	assert.Equal(t, types.StatusPending, got.Status)
	assert.Equal(t, "Ada", got.Actor.Name)
}

func TestStore_ListFilteredByType(t *testing.T) {
	s := openTestStore(t)

	saveTestActivity(t, s, "a1", types.TypeOrder, "u1", time.Hour)
	saveTestActivity(t, s, "a2", types.TypeUser, "u2", time.Hour)
	saveTestActivity(t, s, "a3", types.TypeOrder, "u3", time.Hour)

	list, err := s.ListFiltered(context.Background(), types.FilterRequest{Type: types.TypeOrder}, 10)
	require.NoError(t, err)
	require.Len(t, list, 2)
	for _, a := range list {
		assert.Equal(t, types.TypeOrder, a.Type)
	}
}

func TestStore_ListFilteredByTimeframe(t *testing.T) {
	s := openTestStore(t)

	saveTestActivity(t, s, "recent", types.TypeOrder, "u1", time.Hour)
	saveTestActivity(t, s, "old", types.TypeOrder, "u1", 48*time.Hour)

	list, err := s.ListFiltered(context.Background(), types.FilterRequest{Timeframe: types.Timeframe24h}, 10)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, "recent", list[0].ID)

	// Default timeframe is seven days, which includes both.
	list, err = s.ListFiltered(context.Background(), types.FilterRequest{}, 10)
	require.NoError(t, err)
	assert.Len(t, list, 2)
}

func TestStore_ListFilteredRejectsBadTimeframe(t *testing.T) {
	s := openTestStore(t)
	_, err := s.ListFiltered(context.Background(), types.FilterRequest{Timeframe: "1y"}, 10)
	assert.ErrorIs(t, err, types.ErrInvalidTimeframe)
}

func TestStore_ListByActor(t *testing.T) {
	s := openTestStore(t)

	saveTestActivity(t, s, "a1", types.TypeOrder, "u1", 2*time.Hour)
	saveTestActivity(t, s, "a2", types.TypeOrder, "u2", time.Hour)
	saveTestActivity(t, s, "a3", types.TypeAuth, "u1", 30*time.Minute)

	list, err := s.ListByActor(context.Background(), "u1", 10)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, "a3", list[0].ID)
	assert.Equal(t, "a1", list[1].ID)
}

func TestStore_Stats(t *testing.T) {
	s := openTestStore(t)

	saveTestActivity(t, s, "a1", types.TypeOrder, "u1", time.Hour)
	saveTestActivity(t, s, "a2", types.TypeOrder, "u2", time.Hour)
	saveTestActivity(t, s, "a3", types.TypeUser, "u3", 2*time.Hour)
	saveTestActivity(t, s, "outside", types.TypeOrder, "u4", 10*24*time.Hour)

	snap, err := s.Stats(context.Background(), types.Timeframe7d)
	require.NoError(t, err)

	assert.Equal(t, int64(3), snap.TotalActivities)
	assert.Equal(t, types.Timeframe7d, snap.Timeframe)
	require.Len(t, snap.TypeStats, 2)
	assert.Equal(t, types.TypeCount{Type: types.TypeOrder, Count: 2}, snap.TypeStats[0])
	assert.Equal(t, types.TypeCount{Type: types.TypeUser, Count: 1}, snap.TypeStats[1])
	require.NotEmpty(t, snap.DailyStats)

	var dayTotal int64
	for _, dc := range snap.DailyStats {
		dayTotal += dc.Count
	}
	assert.Equal(t, int64(3), dayTotal)
}

func TestStore_StatsEmptyDatabase(t *testing.T) {
	s := openTestStore(t)

	snap, err := s.Stats(context.Background(), "")
	require.NoError(t, err)
	assert.Equal(t, int64(0), snap.TotalActivities)
	assert.Equal(t, types.Timeframe7d, snap.Timeframe)
	assert.Empty(t, snap.TypeStats)
	assert.Empty(t, snap.DailyStats)
}

func TestStore_StatsRejectsBadTimeframe(t *testing.T) {
	s := openTestStore(t)
	_, err := s.Stats(context.Background(), "forever")
	assert.ErrorIs(t, err, types.ErrInvalidTimeframe)
}

func TestStore_CloseRefusesFurtherWrites(t *testing.T) {
	s, err := Open(filepath.Join(t.TempDir(), "test.db"), zerolog.Nop())
	require.NoError(t, err)

	saveTestActivity(t, s, "a1", types.TypeOrder, "u1", 0)
	require.NoError(t, s.Close())
	require.NoError(t, s.Close()) // idempotent

	err = s.SaveActivity(context.Background(), &types.Activity{
		ID: "a2", Type: types.TypeOrder, Actor: types.Actor{ID: "u1"},
		Status: types.StatusSuccess, CreatedAt: time.Now(),
	})
	assert.ErrorIs(t, err, ErrClosed)
}

func TestStore_ConcurrentWrites(t *testing.T) {
	s := openTestStore(t)

	done := make(chan error, 20)
	for i := 0; i < 20; i++ {
		go func(i int) {
			done <- s.SaveActivity(context.Background(), &types.Activity{
				ID:        fmt.Sprintf("c%d", i),
				Type:      types.TypeSystem,
				Actor:     types.Actor{ID: "svc"},
				Status:    types.StatusSuccess,
				CreatedAt: time.Now().UTC(),
			})
		}(i)
	}
	for i := 0; i < 20; i++ {
		require.NoError(t, <-done)
	}

	list, err := s.ListRecent(context.Background(), 50)
	require.NoError(t, err)
	assert.Len(t, list, 20)
}

func TestStore_GetActivity(t *testing.T) {
	s := openTestStore(t)
	saveTestActivity(t, s, "a1", types.TypeOrder, "u1", time.Hour)

	a, err := s.GetActivity(context.Background(), "a1")
	require.NoError(t, err)
	assert.Equal(t, "a1", a.ID)
	assert.Equal(t, types.TypeOrder, a.Type)

	_, err = s.GetActivity(context.Background(), "missing")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestStore_UpdateStatus(t *testing.T) {
	s := openTestStore(t)
	saveTestActivity(t, s, "a1", types.TypePayment, "u1", time.Hour)

	now := time.Now().UTC().Truncate(time.Second)
	require.NoError(t, s.UpdateStatus(context.Background(), "a1", types.StatusFailed, now))

	a, err := s.GetActivity(context.Background(), "a1")
	require.NoError(t, err)
	assert.Equal(t, types.StatusFailed, a.Status)
	require.NotNil(t, a.UpdatedAt)
	assert.True(t, a.UpdatedAt.Equal(now))

	err = s.UpdateStatus(context.Background(), "missing", types.StatusFailed, now)
	assert.ErrorIs(t, err, ErrNotFound)

	err = s.UpdateStatus(context.Background(), "a1", "exploded", now)
	assert.ErrorIs(t, err, types.ErrInvalidStatus)
}
