// Package sqlite provides SQLite database operations for reliefline.
package sqlite

import (
	"context"
	"database/sql"
	"time"

	"github.com/reliefline/reliefline/pkg/models"
)

// CallerStore provides caller-related database operations. Callers are
// keyed by the one-way hash of their phone number.
type CallerStore struct {
	store *Store
}

// NewCallerStore creates a new caller store.
func NewCallerStore(store *Store) *CallerStore {
	return &CallerStore{store: store}
}

// GetOrCreate returns the caller for a phone hash, creating the account on
// first contact. Existing callers get their last-seen bumped.
func (s *CallerStore) GetOrCreate(ctx context.Context, phoneHash string) (*models.Caller, error) {
	now := time.Now()

	// INSERT OR IGNORE makes first-contact creation idempotent under
	// concurrent calls from the same phone.
	const insertQuery = `
		INSERT OR IGNORE INTO callers (phone_hash, role, is_active, created_at_epoch, last_seen_epoch)
		VALUES (?, 'caller', 1, ?, ?)
	`
	if _, err := s.store.ExecContext(ctx, insertQuery, phoneHash, epoch(now), epoch(now)); err != nil {
		return nil, err
	}

	const touchQuery = `UPDATE callers SET last_seen_epoch = ? WHERE phone_hash = ?`
	if _, err := s.store.ExecContext(ctx, touchQuery, epoch(now), phoneHash); err != nil {
		return nil, err
	}

	return s.GetByHash(ctx, phoneHash)
}

// GetByHash retrieves a caller by phone hash. Returns (nil, nil) when absent.
func (s *CallerStore) GetByHash(ctx context.Context, phoneHash string) (*models.Caller, error) {
	const query = `
		SELECT id, phone_hash, role, is_active, created_at_epoch, last_seen_epoch
		FROM callers
		WHERE phone_hash = ?
		LIMIT 1
	`
	return s.scanOne(s.store.QueryRowContext(ctx, query, phoneHash))
}

// GetByID retrieves a caller by database ID. Returns (nil, nil) when absent.
func (s *CallerStore) GetByID(ctx context.Context, id int64) (*models.Caller, error) {
	const query = `
		SELECT id, phone_hash, role, is_active, created_at_epoch, last_seen_epoch
		FROM callers
		WHERE id = ?
		LIMIT 1
	`
	return s.scanOne(s.store.QueryRowContext(ctx, query, id))
}

func (s *CallerStore) scanOne(row *sql.Row) (*models.Caller, error) {
	var (
		c               models.Caller
		active          int
		createdMS, seen int64
	)
	err := row.Scan(&c.ID, &c.PhoneHash, &c.Role, &active, &createdMS, &seen)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	c.IsActive = active == 1
	c.CreatedAt = fromEpoch(createdMS)
	c.LastSeen = fromEpoch(seen)
	return &c, nil
}
