// Package sqlite provides SQLite database operations for reliefline.
package sqlite

import (
	"context"
	"database/sql"
	"time"

	"github.com/reliefline/reliefline/pkg/models"
)

// SessionStore persists USSD sessions in SQLite. Expiry is enforced at read
// time; DeleteExpired exists for the opportunistic background sweep, and the
// two share the expires_at_epoch definition.
type SessionStore struct {
	store *Store
}

// NewSessionStore creates a new session store.
func NewSessionStore(store *Store) *SessionStore {
	return &SessionStore{store: store}
}

// Get retrieves a live session. An expired or missing session returns
// (nil, nil): callers must treat both the same.
func (s *SessionStore) Get(ctx context.Context, sessionID string) (*models.Session, error) {
	const query = `
		SELECT session_id, caller_id, current_step, selections,
		       created_at_epoch, last_activity_epoch, expires_at_epoch
		FROM ussd_sessions
		WHERE session_id = ?
		LIMIT 1
	`

	var (
		sess                      models.Session
		selections                sql.NullString
		createdMS, activeMS, expMS int64
	)
	err := s.store.QueryRowContext(ctx, query, sessionID).Scan(
		&sess.ID, &sess.CallerID, &sess.Step, &selections,
		&createdMS, &activeMS, &expMS,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	sess.CreatedAt = fromEpoch(createdMS)
	sess.LastActivity = fromEpoch(activeMS)
	sess.ExpiresAt = fromEpoch(expMS)

	if sess.Expired(time.Now()) {
		// Dead session: clean it up and report absence.
		_ = s.Delete(ctx, sessionID)
		return nil, nil
	}

	sess.Selections, err = models.DecodeSelections([]byte(selections.String))
	if err != nil {
		return nil, err
	}
	return &sess, nil
}

// Put upserts a session, replacing step, selections, and expiry.
func (s *SessionStore) Put(ctx context.Context, sess *models.Session) error {
	blob, err := sess.Selections.Encode()
	if err != nil {
		return err
	}

	const query = `
		INSERT INTO ussd_sessions
		(session_id, caller_id, current_step, selections,
		 created_at_epoch, last_activity_epoch, expires_at_epoch)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (session_id) DO UPDATE SET
			current_step = excluded.current_step,
			selections = excluded.selections,
			last_activity_epoch = excluded.last_activity_epoch,
			expires_at_epoch = excluded.expires_at_epoch
	`
	_, err = s.store.ExecContext(ctx, query,
		sess.ID, sess.CallerID, sess.Step, string(blob),
		epoch(sess.CreatedAt), epoch(sess.LastActivity), epoch(sess.ExpiresAt),
	)
	return err
}

// Delete removes a session. Deleting an absent session is not an error.
func (s *SessionStore) Delete(ctx context.Context, sessionID string) error {
	const query = `DELETE FROM ussd_sessions WHERE session_id = ?`
	_, err := s.store.ExecContext(ctx, query, sessionID)
	return err
}

// DeleteExpired removes all sessions whose expiry has passed and returns how
// many were swept.
func (s *SessionStore) DeleteExpired(ctx context.Context, now time.Time) (int64, error) {
	const query = `DELETE FROM ussd_sessions WHERE expires_at_epoch <= ?`
	result, err := s.store.ExecContext(ctx, query, epoch(now))
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}
