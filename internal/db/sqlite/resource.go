// Package sqlite provides SQLite database operations for reliefline.
package sqlite

import (
	"context"
	"database/sql"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"

	"github.com/reliefline/reliefline/pkg/models"
)

// ResourceStore provides resource persistence and owns capacity mutation.
// TryReserve/Release are the only code paths that change available capacity.
type ResourceStore struct {
	store *Store

	reservations metric.Int64Counter
	releases     metric.Int64Counter
	lostRaces    metric.Int64Counter
}

// NewResourceStore creates a new resource store.
func NewResourceStore(store *Store) *ResourceStore {
	meter := otel.Meter("reliefline/allocator")
	reservations, _ := meter.Int64Counter("allocator.reservations")
	releases, _ := meter.Int64Counter("allocator.releases")
	lostRaces, _ := meter.Int64Counter("allocator.lost_races")

	return &ResourceStore{
		store:        store,
		reservations: reservations,
		releases:     releases,
		lostRaces:    lostRaces,
	}
}

// Create inserts a resource and returns its ID.
func (s *ResourceStore) Create(ctx context.Context, r *models.Resource) (int64, error) {
	now := time.Now()
	const query = `
		INSERT INTO resources
		(provider_name, name, description, resource_type, location, latitude, longitude,
		 total_capacity, available_capacity, contact_phone, price_per_unit, currency,
		 is_active, created_at_epoch, updated_at_epoch)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`
	result, err := s.store.ExecContext(ctx, query,
		r.ProviderName, r.Name, r.Description, r.Type, r.Location, r.Latitude, r.Longitude,
		r.TotalCapacity, r.AvailableCapacity, r.ContactPhone, r.PricePerUnit, nonEmpty(r.Currency, "NGN"),
		boolInt(r.IsActive), epoch(now), epoch(now),
	)
	if err != nil {
		return 0, err
	}
	return result.LastInsertId()
}

// GetByID retrieves a resource. Returns (nil, nil) when absent.
func (s *ResourceStore) GetByID(ctx context.Context, id int64) (*models.Resource, error) {
	query := `SELECT ` + resourceColumns + ` FROM resources WHERE id = ? LIMIT 1`
	r, err := scanResource(s.store.QueryRowContext(ctx, query, id))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return r, nil
}

// ListFilter narrows ListActive results.
type ListFilter struct {
	Type          models.ResourceType // zero value matches all types
	Location      string              // case-insensitive substring on location label
	AvailableOnly bool
	Limit         int
}

// ListActive returns active resources matching the filter, newest first.
func (s *ResourceStore) ListActive(ctx context.Context, f ListFilter) ([]*models.Resource, error) {
	query := `SELECT ` + resourceColumns + ` FROM resources WHERE is_active = 1`
	var args []interface{}

	if f.Type != "" {
		query += ` AND resource_type = ?`
		args = append(args, f.Type)
	}
	if f.Location != "" {
		query += ` AND location LIKE ? COLLATE NOCASE`
		args = append(args, "%"+f.Location+"%")
	}
	if f.AvailableOnly {
		query += ` AND available_capacity > 0`
	}
	query += ` ORDER BY created_at_epoch DESC`
	if f.Limit > 0 {
		query += ` LIMIT ?`
		args = append(args, f.Limit)
	}

	rows, err := s.store.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanResourceRows(rows)
}

// FindCandidates returns active resources of the given type with spare
// capacity. Ranking is the Matching Engine's job; this is the raw pool.
func (s *ResourceStore) FindCandidates(ctx context.Context, resourceType models.ResourceType) ([]*models.Resource, error) {
	query := `SELECT ` + resourceColumns + ` FROM resources
		WHERE is_active = 1 AND resource_type = ? AND available_capacity > 0`

	rows, err := s.store.QueryContext(ctx, query, resourceType)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanResourceRows(rows)
}

// TryReserve atomically decrements available capacity by quantity if enough
// remains. The guarded UPDATE is a single statement, so concurrent callers
// racing for the last unit see exactly one winner.
func (s *ResourceStore) TryReserve(ctx context.Context, resourceID int64, quantity int) (bool, error) {
	if quantity <= 0 {
		return false, nil
	}

	const query = `
		UPDATE resources
		SET available_capacity = available_capacity - ?, updated_at_epoch = ?
		WHERE id = ? AND is_active = 1 AND available_capacity >= ?
	`
	result, err := s.store.ExecContext(ctx, query, quantity, epoch(time.Now()), resourceID, quantity)
	if err != nil {
		return false, err
	}
	n, err := result.RowsAffected()
	if err != nil {
		return false, err
	}
	if n == 0 {
		s.lostRaces.Add(ctx, 1)
		return false, nil
	}
	s.reservations.Add(ctx, int64(quantity))
	return true, nil
}

// Release returns reserved capacity, capped at the resource's total. Used
// when a matched request is cancelled.
func (s *ResourceStore) Release(ctx context.Context, resourceID int64, quantity int) error {
	if quantity <= 0 {
		return nil
	}

	const query = `
		UPDATE resources
		SET available_capacity = MIN(total_capacity, available_capacity + ?), updated_at_epoch = ?
		WHERE id = ?
	`
	if _, err := s.store.ExecContext(ctx, query, quantity, epoch(time.Now()), resourceID); err != nil {
		return err
	}
	s.releases.Add(ctx, int64(quantity))
	return nil
}

// TypeUtilization summarizes capacity usage for one resource type.
type TypeUtilization struct {
	Resources         int     `json:"total_resources"`
	TotalCapacity     int     `json:"total_capacity"`
	AvailableCapacity int     `json:"available_capacity"`
	UtilizationRate   float64 `json:"utilization_rate"`
}

// UtilizationStats aggregates capacity usage per resource type across active
// resources.
func (s *ResourceStore) UtilizationStats(ctx context.Context) (map[models.ResourceType]TypeUtilization, error) {
	const query = `
		SELECT resource_type, COUNT(*), COALESCE(SUM(total_capacity), 0), COALESCE(SUM(available_capacity), 0)
		FROM resources
		WHERE is_active = 1
		GROUP BY resource_type
	`
	rows, err := s.store.QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	stats := map[models.ResourceType]TypeUtilization{
		models.ResourceTypeShelter:   {},
		models.ResourceTypeFood:      {},
		models.ResourceTypeTransport: {},
	}
	for rows.Next() {
		var (
			t models.ResourceType
			u TypeUtilization
		)
		if err := rows.Scan(&t, &u.Resources, &u.TotalCapacity, &u.AvailableCapacity); err != nil {
			return nil, err
		}
		if u.TotalCapacity > 0 {
			used := u.TotalCapacity - u.AvailableCapacity
			u.UtilizationRate = float64(used) / float64(u.TotalCapacity) * 100
		}
		stats[t] = u
	}
	return stats, rows.Err()
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func nonEmpty(s, fallback string) string {
	if s == "" {
		return fallback
	}
	return s
}
