package automatch

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/reliefline/reliefline/internal/db/sqlite"
	"github.com/reliefline/reliefline/internal/matching"
	"github.com/reliefline/reliefline/pkg/models"
)

func newScheduler(t *testing.T, grace time.Duration) (*Scheduler, *sqlite.Store, func()) {
	t.Helper()

	dir, err := os.MkdirTemp("", "reliefline-automatch-*")
	require.NoError(t, err)

	store, err := sqlite.NewStore(sqlite.StoreConfig{Path: filepath.Join(dir, "test.db")})
	require.NoError(t, err)

	requests := sqlite.NewRequestStore(store)
	resources := sqlite.NewResourceStore(store)
	engine := matching.NewEngine(resources, 50)

	sched := NewScheduler(requests, resources, engine, nil, grace, time.Minute, zerolog.Nop())

	return sched, store, func() {
		_ = store.Close()
		_ = os.RemoveAll(dir)
	}
}

func seedPending(t *testing.T, store *sqlite.Store, rt models.ResourceType, location string, age time.Duration) int64 {
	t.Helper()

	caller, err := sqlite.NewCallerStore(store).GetOrCreate(context.Background(), "hash-"+location)
	require.NoError(t, err)

	now := time.Now()
	id, err := sqlite.NewRequestStore(store).Create(context.Background(), &models.EmergencyRequest{
		ReferenceNumber: models.NewReferenceNumber(now),
		CallerID:        caller.ID,
		Type:            rt,
		Location:        location,
		Quantity:        1,
		Status:          models.RequestStatusPending,
		Priority:        3,
		CreatedAt:       now.Add(-age),
	})
	require.NoError(t, err)
	return id
}

func seedResource(t *testing.T, store *sqlite.Store, mutate func(*models.Resource)) int64 {
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
	id, err := sqlite.NewResourceStore(store).Create(context.Background(), r)
	require.NoError(t, err)
	return id
}

func TestRunOnce_MatchesStalePending(t *testing.T) {
	sched, store, cleanup := newScheduler(t, 5*time.Minute)
	defer cleanup()

	resourceID := seedResource(t, store, nil)
	requestID := seedPending(t, store, models.ResourceTypeShelter, "Lokoja", 10*time.Minute)

	sum, err := sched.RunOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, Summary{Processed: 1, Matched: 1, Failed: 0}, sum)

	ctx := context.Background()
	req, err := sqlite.NewRequestStore(store).GetByID(ctx, requestID)
	require.NoError(t, err)
	assert.Equal(t, models.RequestStatusMatched, req.Status)
	assert.Equal(t, resourceID, req.ResourceID.Int64)
	assert.True(t, req.MatchedAt.Valid)

	resource, err := sqlite.NewResourceStore(store).GetByID(ctx, resourceID)
	require.NoError(t, err)
	assert.Equal(t, 9, resource.AvailableCapacity)
}

func TestRunOnce_RespectsGracePeriod(t *testing.T) {
	sched, store, cleanup := newScheduler(t, 5*time.Minute)
	defer cleanup()

	seedResource(t, store, nil)
	requestID := seedPending(t, store, models.ResourceTypeShelter, "Lokoja", time.Minute)

	sum, err := sched.RunOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, Summary{}, sum)

	req, err := sqlite.NewRequestStore(store).GetByID(context.Background(), requestID)
	require.NoError(t, err)
	assert.Equal(t, models.RequestStatusPending, req.Status)
}

func TestRunOnce_NoCandidateStaysPending(t *testing.T) {
	sched, store, cleanup := newScheduler(t, 5*time.Minute)
	defer cleanup()

	requestID := seedPending(t, store, models.ResourceTypeTransport, "Ganaja", 10*time.Minute)

	sum, err := sched.RunOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, Summary{Processed: 1, Matched: 0, Failed: 1}, sum)

	req, err := sqlite.NewRequestStore(store).GetByID(context.Background(), requestID)
	require.NoError(t, err)
	assert.Equal(t, models.RequestStatusPending, req.Status)
}

func TestRunOnce_BacklogDrainsByCapacity(t *testing.T) {
	sched, store, cleanup := newScheduler(t, 5*time.Minute)
	defer cleanup()

	seedResource(t, store, func(r *models.Resource) {
		r.TotalCapacity = 1
		r.AvailableCapacity = 1
	})
	seedPending(t, store, models.ResourceTypeShelter, "Lokoja", 10*time.Minute)
	seedPending(t, store, models.ResourceTypeShelter, "Lokoja", 10*time.Minute)

	sum, err := sched.RunOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, sum.Processed)
	assert.Equal(t, 1, sum.Matched)
	assert.Equal(t, 1, sum.Failed)
}
