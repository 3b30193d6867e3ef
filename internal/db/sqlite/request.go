// Package sqlite provides SQLite database operations for reliefline.
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/reliefline/reliefline/pkg/models"
)

// RequestStore provides emergency request persistence.
type RequestStore struct {
	store *Store
}

// NewRequestStore creates a new request store.
func NewRequestStore(store *Store) *RequestStore {
	return &RequestStore{store: store}
}

// Create inserts a request and returns its ID. The caller is expected to
// have set ReferenceNumber, Status, and CreatedAt.
func (s *RequestStore) Create(ctx context.Context, r *models.EmergencyRequest) (int64, error) {
	const query = `
		INSERT INTO emergency_requests
		(reference_number, caller_id, resource_id, resource_type, location, latitude, longitude,
		 quantity, status, priority, total_cost,
		 created_at_epoch, matched_at_epoch, confirmed_at_epoch, completed_at_epoch)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`
	result, err := s.store.ExecContext(ctx, query,
		r.ReferenceNumber, r.CallerID, r.ResourceID, r.Type, r.Location, r.Latitude, r.Longitude,
		r.Quantity, r.Status, r.Priority, r.TotalCost,
		epoch(r.CreatedAt), nullEpoch(r.MatchedAt), nullEpoch(r.ConfirmedAt), nullEpoch(r.CompletedAt),
	)
	if err != nil {
		return 0, err
	}
	return result.LastInsertId()
}

// GetByReference retrieves a request by its reference number.
// Returns (nil, nil) when absent.
func (s *RequestStore) GetByReference(ctx context.Context, ref string) (*models.EmergencyRequest, error) {
	query := `SELECT ` + requestColumns + ` FROM emergency_requests WHERE reference_number = ? LIMIT 1`
	r, err := scanRequest(s.store.QueryRowContext(ctx, query, ref))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return r, nil
}

// GetByID retrieves a request by database ID. Returns (nil, nil) when absent.
func (s *RequestStore) GetByID(ctx context.Context, id int64) (*models.EmergencyRequest, error) {
	query := `SELECT ` + requestColumns + ` FROM emergency_requests WHERE id = ? LIMIT 1`
	r, err := scanRequest(s.store.QueryRowContext(ctx, query, id))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return r, nil
}

// HasRecentDuplicate reports whether the caller already has a non-cancelled
// request for the same type and location created after the cutoff. This is
// the Fraud Guard's duplicate rule.
func (s *RequestStore) HasRecentDuplicate(ctx context.Context, callerID int64, resourceType models.ResourceType, location string, cutoff time.Time) (bool, error) {
	const query = `
		SELECT COUNT(*)
		FROM emergency_requests
		WHERE caller_id = ?
		  AND resource_type = ?
		  AND location = ? COLLATE NOCASE
		  AND status != 'cancelled'
		  AND created_at_epoch > ?
	`
	var count int
	err := s.store.QueryRowContext(ctx, query, callerID, resourceType, location, epoch(cutoff)).Scan(&count)
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

// ListPendingBefore returns pending requests created at or before the cutoff,
// highest priority first, oldest first within a priority. This is the
// auto-match backlog.
func (s *RequestStore) ListPendingBefore(ctx context.Context, cutoff time.Time) ([]*models.EmergencyRequest, error) {
	query := `SELECT ` + requestColumns + ` FROM emergency_requests
		WHERE status = 'pending' AND created_at_epoch <= ?
		ORDER BY priority DESC, created_at_epoch ASC`

	rows, err := s.store.QueryContext(ctx, query, epoch(cutoff))
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanRequestRows(rows)
}

// MarkMatched transitions a pending request to matched with its resource and
// cost snapshot. The status guard keeps a concurrent live-session
// confirmation from being overwritten.
func (s *RequestStore) MarkMatched(ctx context.Context, id, resourceID int64, cost float64, at time.Time) error {
	const query = `
		UPDATE emergency_requests
		SET status = 'matched', resource_id = ?, total_cost = ?, matched_at_epoch = ?
		WHERE id = ? AND status = 'pending'
	`
	result, err := s.store.ExecContext(ctx, query, resourceID, cost, epoch(at), id)
	if err != nil {
		return err
	}
	n, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("request %d is not pending", id)
	}
	return nil
}

// Confirm transitions matched -> confirmed.
func (s *RequestStore) Confirm(ctx context.Context, id int64, at time.Time) error {
	return s.transition(ctx, id, "matched", "confirmed", "confirmed_at_epoch", at)
}

// Complete transitions confirmed -> completed.
func (s *RequestStore) Complete(ctx context.Context, id int64, at time.Time) error {
	return s.transition(ctx, id, "confirmed", "completed", "completed_at_epoch", at)
}

func (s *RequestStore) transition(ctx context.Context, id int64, from, to, stampColumn string, at time.Time) error {
	// stampColumn comes from the two call sites above, never from input.
	query := `UPDATE emergency_requests SET status = ?, ` + stampColumn + ` = ? WHERE id = ? AND status = ?`
	result, err := s.store.ExecContext(ctx, query, to, epoch(at), id, from)
	if err != nil {
		return err
	}
	n, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("request %d is not %s", id, from)
	}
	return nil
}

// Cancel transitions any non-terminal request to cancelled and returns the
// prior state so the caller can release reserved capacity. The resource id
// is kept on the record for audit.
func (s *RequestStore) Cancel(ctx context.Context, id int64, at time.Time) (*models.EmergencyRequest, error) {
	prior, err := s.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if prior == nil {
		return nil, fmt.Errorf("request %d not found", id)
	}
	if prior.Status.Terminal() {
		return nil, fmt.Errorf("request %d is already %s", id, prior.Status)
	}

	const query = `
		UPDATE emergency_requests
		SET status = 'cancelled', completed_at_epoch = ?
		WHERE id = ? AND status = ?
	`
	result, err := s.store.ExecContext(ctx, query, epoch(at), id, prior.Status)
	if err != nil {
		return nil, err
	}
	n, err := result.RowsAffected()
	if err != nil {
		return nil, err
	}
	if n == 0 {
		// Status moved underneath us; report a conflict instead of guessing.
		return nil, fmt.Errorf("request %d changed state during cancel", id)
	}
	return prior, nil
}

// CountByStatus returns request counts grouped by lifecycle status.
// Statuses with no rows are present with a zero count.
func (s *RequestStore) CountByStatus(ctx context.Context) (map[models.RequestStatus]int, error) {
	counts := map[models.RequestStatus]int{
		models.RequestStatusPending:   0,
		models.RequestStatusMatched:   0,
		models.RequestStatusConfirmed: 0,
		models.RequestStatusCompleted: 0,
		models.RequestStatusCancelled: 0,
	}

	rows, err := s.store.QueryContext(ctx,
		`SELECT status, COUNT(*) FROM emergency_requests GROUP BY status`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		var status models.RequestStatus
		var n int
		if err := rows.Scan(&status, &n); err != nil {
			return nil, err
		}
		counts[status] = n
	}
	return counts, rows.Err()
}

// RequestFilter narrows List results.
type RequestFilter struct {
	Status   models.RequestStatus
	CallerID int64
	Limit    int
}

// List returns requests matching the filter, newest first.
func (s *RequestStore) List(ctx context.Context, f RequestFilter) ([]*models.EmergencyRequest, error) {
	query := `SELECT ` + requestColumns + ` FROM emergency_requests WHERE 1=1`
	var args []interface{}

	if f.Status != "" {
		query += ` AND status = ?`
		args = append(args, f.Status)
	}
	if f.CallerID > 0 {
		query += ` AND caller_id = ?`
		args = append(args, f.CallerID)
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
	return scanRequestRows(rows)
}
