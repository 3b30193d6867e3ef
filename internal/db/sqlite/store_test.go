package sqlite

import (
	"context"
	"database/sql"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/reliefline/reliefline/pkg/models"
)

// testStore opens a fresh database in a temp directory.
func testStore(t *testing.T) (*Store, func()) {
	t.Helper()

	dir, err := os.MkdirTemp("", "reliefline-test-*")
	require.NoError(t, err)

	store, err := NewStore(StoreConfig{Path: filepath.Join(dir, "test.db")})
	require.NoError(t, err)

	return store, func() {
		_ = store.Close()
		_ = os.RemoveAll(dir)
	}
}

// seedResource inserts a resource with sensible defaults, returning its ID.
func seedResource(t *testing.T, store *Store, mutate func(*models.Resource)) int64 {
	t.Helper()

	r := &models.Resource{
		ProviderName:      "Red Cross Kogi",
		Name:              "Lokoja Relief Camp",
		Type:              models.ResourceTypeShelter,
		Location:          "Lokoja",
		TotalCapacity:     10,
		AvailableCapacity: 10,
		Currency:          "NGN",
		IsActive:          true,
	}
	if mutate != nil {
		mutate(r)
	}

	id, err := NewResourceStore(store).Create(context.Background(), r)
	require.NoError(t, err)
	return id
}

// seedCaller creates a caller and returns its ID.
func seedCaller(t *testing.T, store *Store, phoneHash string) int64 {
	t.Helper()

	c, err := NewCallerStore(store).GetOrCreate(context.Background(), phoneHash)
	require.NoError(t, err)
	return c.ID
}

func TestStore_MigrateIdempotent(t *testing.T) {
	store, cleanup := testStore(t)
	defer cleanup()

	// Running migration twice must not error.
	require.NoError(t, store.Migrate())
	require.NoError(t, store.Ping())
}

func TestCallerStore_GetOrCreate(t *testing.T) {
	store, cleanup := testStore(t)
	defer cleanup()
	ctx := context.Background()
	callers := NewCallerStore(store)

	first, err := callers.GetOrCreate(ctx, "hash-abc")
	require.NoError(t, err)
	require.NotNil(t, first)
	require.Equal(t, models.RoleCaller, first.Role)
	require.True(t, first.IsActive)

	// Second contact reuses the account and bumps last-seen.
	time.Sleep(5 * time.Millisecond)
	second, err := callers.GetOrCreate(ctx, "hash-abc")
	require.NoError(t, err)
	require.Equal(t, first.ID, second.ID)
	require.False(t, second.LastSeen.Before(first.LastSeen))

	missing, err := callers.GetByHash(ctx, "never-seen")
	require.NoError(t, err)
	require.Nil(t, missing)
}

func TestActivityStore_Queries(t *testing.T) {
	store, cleanup := testStore(t)
	defer cleanup()
	ctx := context.Background()

	callerID := seedCaller(t, store, "hash-activity")
	activity := NewActivityStore(store)

	for i := 0; i < 4; i++ {
		require.NoError(t, activity.Record(ctx, callerID, ActionSessionStart, ""))
	}
	require.NoError(t, activity.Record(ctx, callerID, ActionUSSDInput, "Lokoja"))
	require.NoError(t, activity.Record(ctx, callerID, ActionUSSDInput, "Ganaja"))
	require.NoError(t, activity.Record(ctx, callerID, ActionUSSDInput, "Lokoja"))

	cutoff := time.Now().Add(-time.Hour)

	starts, err := activity.CountSince(ctx, callerID, ActionSessionStart, cutoff)
	require.NoError(t, err)
	require.Equal(t, 4, starts)

	locations, err := activity.DistinctLocationsSince(ctx, callerID, cutoff)
	require.NoError(t, err)
	require.Equal(t, 2, locations)

	// A future cutoff sees nothing.
	none, err := activity.CountSince(ctx, callerID, ActionSessionStart, time.Now().Add(time.Hour))
	require.NoError(t, err)
	require.Zero(t, none)
}

func TestRequestStore_Lifecycle(t *testing.T) {
	store, cleanup := testStore(t)
	defer cleanup()
	ctx := context.Background()

	callerID := seedCaller(t, store, "hash-req")
	resourceID := seedResource(t, store, nil)
	requests := NewRequestStore(store)

	now := time.Now()
	id, err := requests.Create(ctx, &models.EmergencyRequest{
		ReferenceNumber: models.NewReferenceNumber(now),
		CallerID:        callerID,
		Type:            models.ResourceTypeShelter,
		Location:        "Lokoja",
		Quantity:        1,
		Status:          models.RequestStatusPending,
		Priority:        2,
		CreatedAt:       now,
	})
	require.NoError(t, err)

	require.NoError(t, requests.MarkMatched(ctx, id, resourceID, 500, now))

	got, err := requests.GetByID(ctx, id)
	require.NoError(t, err)
	require.Equal(t, models.RequestStatusMatched, got.Status)
	require.Equal(t, resourceID, got.ResourceID.Int64)
	require.Equal(t, 500.0, got.TotalCost)
	require.True(t, got.MatchedAt.Valid)

	// Double-match must fail: the request is no longer pending.
	require.Error(t, requests.MarkMatched(ctx, id, resourceID, 500, now))

	require.NoError(t, requests.Confirm(ctx, id, now))
	require.NoError(t, requests.Complete(ctx, id, now))

	got, err = requests.GetByID(ctx, id)
	require.NoError(t, err)
	require.Equal(t, models.RequestStatusCompleted, got.Status)

	// Terminal requests cannot be cancelled.
	_, err = requests.Cancel(ctx, id, now)
	require.Error(t, err)
}

func TestRequestStore_CancelKeepsResourceID(t *testing.T) {
	store, cleanup := testStore(t)
	defer cleanup()
	ctx := context.Background()

	callerID := seedCaller(t, store, "hash-cancel")
	resourceID := seedResource(t, store, nil)
	requests := NewRequestStore(store)

	now := time.Now()
	id, err := requests.Create(ctx, &models.EmergencyRequest{
		ReferenceNumber: models.NewReferenceNumber(now),
		CallerID:        callerID,
		ResourceID:      sql.NullInt64{Int64: resourceID, Valid: true},
		Type:            models.ResourceTypeFood,
		Location:        "Ganaja",
		Quantity:        1,
		Status:          models.RequestStatusMatched,
		Priority:        1,
		CreatedAt:       now,
		MatchedAt:       sql.NullTime{Time: now, Valid: true},
	})
	require.NoError(t, err)

	prior, err := requests.Cancel(ctx, id, now)
	require.NoError(t, err)
	require.Equal(t, models.RequestStatusMatched, prior.Status)

	got, err := requests.GetByID(ctx, id)
	require.NoError(t, err)
	require.Equal(t, models.RequestStatusCancelled, got.Status)
	// Resource id survives cancellation for audit.
	require.True(t, got.ResourceID.Valid)
	require.Equal(t, resourceID, got.ResourceID.Int64)
}

func TestRequestStore_HasRecentDuplicate(t *testing.T) {
	store, cleanup := testStore(t)
	defer cleanup()
	ctx := context.Background()

	callerID := seedCaller(t, store, "hash-dup")
	requests := NewRequestStore(store)

	now := time.Now()
	_, err := requests.Create(ctx, &models.EmergencyRequest{
		ReferenceNumber: models.NewReferenceNumber(now),
		CallerID:        callerID,
		Type:            models.ResourceTypeShelter,
		Location:        "Lokoja",
		Quantity:        1,
		Status:          models.RequestStatusMatched,
		CreatedAt:       now.Add(-10 * time.Minute),
	})
	require.NoError(t, err)

	cutoff := now.Add(-30 * time.Minute)

	dup, err := requests.HasRecentDuplicate(ctx, callerID, models.ResourceTypeShelter, "Lokoja", cutoff)
	require.NoError(t, err)
	require.True(t, dup)

	// Location matching is case-insensitive.
	dup, err = requests.HasRecentDuplicate(ctx, callerID, models.ResourceTypeShelter, "lokoja", cutoff)
	require.NoError(t, err)
	require.True(t, dup)

	// Different type, different location, or an older window: no duplicate.
	dup, err = requests.HasRecentDuplicate(ctx, callerID, models.ResourceTypeFood, "Lokoja", cutoff)
	require.NoError(t, err)
	require.False(t, dup)

	dup, err = requests.HasRecentDuplicate(ctx, callerID, models.ResourceTypeShelter, "Ganaja", cutoff)
	require.NoError(t, err)
	require.False(t, dup)

	dup, err = requests.HasRecentDuplicate(ctx, callerID, models.ResourceTypeShelter, "Lokoja", now.Add(-5*time.Minute))
	require.NoError(t, err)
	require.False(t, dup)
}

func TestRequestStore_PendingBacklogOrder(t *testing.T) {
	store, cleanup := testStore(t)
	defer cleanup()
	ctx := context.Background()

	callerID := seedCaller(t, store, "hash-backlog")
	requests := NewRequestStore(store)

	now := time.Now()
	mk := func(priority int, age time.Duration) int64 {
		id, err := requests.Create(ctx, &models.EmergencyRequest{
			ReferenceNumber: models.NewReferenceNumber(now),
			CallerID:        callerID,
			Type:            models.ResourceTypeTransport,
			Location:        "Lokoja",
			Quantity:        1,
			Status:          models.RequestStatusPending,
			Priority:        priority,
			CreatedAt:       now.Add(-age),
		})
		require.NoError(t, err)
		return id
	}

	lowOld := mk(1, 30*time.Minute)
	highNew := mk(5, 10*time.Minute)
	highOld := mk(5, 20*time.Minute)
	tooFresh := mk(5, time.Minute) // inside the grace period

	backlog, err := requests.ListPendingBefore(ctx, now.Add(-5*time.Minute))
	require.NoError(t, err)
	require.Len(t, backlog, 3)
	require.Equal(t, highOld, backlog[0].ID)
	require.Equal(t, highNew, backlog[1].ID)
	require.Equal(t, lowOld, backlog[2].ID)

	for _, r := range backlog {
		require.NotEqual(t, tooFresh, r.ID)
	}
}
