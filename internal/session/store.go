// Package session defines the session persistence contract for the USSD
// state machine and provides the Redis-backed implementation. The SQLite
// implementation lives with the other SQLite stores.
package session

import (
	"context"

	"github.com/reliefline/reliefline/pkg/models"
)

// Store is the persistence boundary for USSD sessions. Implementations must
// treat an expired session exactly like a missing one: Get returns
// (nil, nil) for both.
type Store interface {
	// Get returns the live session or (nil, nil).
	Get(ctx context.Context, sessionID string) (*models.Session, error)
	// Put upserts the session with its current step, selections, and expiry.
	Put(ctx context.Context, sess *models.Session) error
	// Delete removes the session; deleting an absent session is not an error.
	Delete(ctx context.Context, sessionID string) error
}
