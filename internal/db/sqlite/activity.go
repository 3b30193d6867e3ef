// Package sqlite provides SQLite database operations for reliefline.
package sqlite

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Activity actions recorded against callers. The fraud guard's rate and
// anomaly rules run over this history.
const (
	ActionSessionStart = "ussd_session_start"
	ActionUSSDInput    = "ussd_input"
	ActionAPICall      = "api_call"
)

// ActivityStore records caller activity and answers the fraud guard's
// history queries.
type ActivityStore struct {
	store *Store
}

// NewActivityStore creates a new activity store.
func NewActivityStore(store *Store) *ActivityStore {
	return &ActivityStore{store: store}
}

// Record appends one activity row.
func (s *ActivityStore) Record(ctx context.Context, callerID int64, action, location string) error {
	const query = `
		INSERT INTO activity_log (id, caller_id, action, location, created_at_epoch)
		VALUES (?, ?, ?, ?, ?)
	`
	_, err := s.store.ExecContext(ctx, query,
		uuid.NewString(), callerID, action, nullString(location), epoch(time.Now()),
	)
	return err
}

// CountSince returns how many actions of one kind the caller performed after
// the cutoff.
func (s *ActivityStore) CountSince(ctx context.Context, callerID int64, action string, cutoff time.Time) (int, error) {
	const query = `
		SELECT COUNT(*)
		FROM activity_log
		WHERE caller_id = ? AND action = ? AND created_at_epoch > ?
	`
	var count int
	err := s.store.QueryRowContext(ctx, query, callerID, action, epoch(cutoff)).Scan(&count)
	return count, err
}

// DistinctLocationsSince returns how many distinct non-empty locations appear
// in the caller's activity after the cutoff.
func (s *ActivityStore) DistinctLocationsSince(ctx context.Context, callerID int64, cutoff time.Time) (int, error) {
	const query = `
		SELECT COUNT(DISTINCT location)
		FROM activity_log
		WHERE caller_id = ? AND location IS NOT NULL AND created_at_epoch > ?
	`
	var count int
	err := s.store.QueryRowContext(ctx, query, callerID, epoch(cutoff)).Scan(&count)
	return count, err
}
