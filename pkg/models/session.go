// Package models contains domain models for reliefline.
package models

import (
	"time"

	"github.com/goccy/go-json"
)

// Step enumerates the states of the USSD menu flow.
type Step string

const (
	StepStart             Step = "start"
	StepMainMenu          Step = "main_menu"
	StepLocationInput     Step = "location_input"
	StepResourceSelection Step = "resource_selection"
	StepConfirmation      Step = "confirmation"
)

// Selections is the small bag of choices a caller accumulates across one
// USSD interaction. Persisted as a JSON blob on the session record.
type Selections struct {
	ResourceType ResourceType `json:"resource_type,omitempty"`
	Location     string       `json:"location,omitempty"`
	// Candidates holds the resource IDs presented to the caller, in ranked
	// order; menu option N maps to Candidates[N-1].
	Candidates []int64 `json:"candidates,omitempty"`
	ResourceID int64   `json:"resource_id,omitempty"`
}

// Encode serializes the selections for storage.
func (s Selections) Encode() ([]byte, error) {
	return json.Marshal(s)
}

// DecodeSelections parses a stored selections blob. Empty input yields the
// zero value.
func DecodeSelections(data []byte) (Selections, error) {
	var s Selections
	if len(data) == 0 {
		return s, nil
	}
	err := json.Unmarshal(data, &s)
	return s, err
}

// Session is the ephemeral per-interaction state for one USSD conversation.
// The session ID is supplied by the gateway and treated as opaque.
type Session struct {
	ID           string     `db:"session_id" json:"session_id"`
	CallerID     int64      `db:"caller_id" json:"caller_id"`
	Step         Step       `db:"current_step" json:"current_step"`
	Selections   Selections `db:"-" json:"selections"`
	CreatedAt    time.Time  `db:"created_at" json:"created_at"`
	LastActivity time.Time  `db:"last_activity" json:"last_activity"`
	ExpiresAt    time.Time  `db:"expires_at" json:"expires_at"`
}

// NewSession creates a session at step start, expiring ttl from now.
func NewSession(id string, callerID int64, now time.Time, ttl time.Duration) *Session {
	return &Session{
		ID:           id,
		CallerID:     callerID,
		Step:         StepStart,
		CreatedAt:    now,
		LastActivity: now,
		ExpiresAt:    now.Add(ttl),
	}
}

// Expired reports whether the session must be treated as non-existent.
func (s *Session) Expired(now time.Time) bool {
	return !now.Before(s.ExpiresAt)
}

// Touch extends the session: expiry is always last activity + TTL.
func (s *Session) Touch(now time.Time, ttl time.Duration) {
	s.LastActivity = now
	s.ExpiresAt = now.Add(ttl)
}
