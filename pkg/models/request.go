// Package models contains domain models for reliefline.
package models

import (
	"crypto/rand"
	"database/sql"
	"encoding/hex"
	"strings"
	"time"
)

// RequestStatus tracks an emergency request through its lifecycle.
type RequestStatus string

const (
	RequestStatusPending   RequestStatus = "pending"
	RequestStatusMatched   RequestStatus = "matched"
	RequestStatusConfirmed RequestStatus = "confirmed"
	RequestStatusCompleted RequestStatus = "completed"
	RequestStatusCancelled RequestStatus = "cancelled"
)

// Terminal reports whether no further transition is legal from s.
func (s RequestStatus) Terminal() bool {
	return s == RequestStatusCompleted || s == RequestStatusCancelled
}

// EmergencyRequest is the durable record of one caller's resource ask.
type EmergencyRequest struct {
	ID              int64           `db:"id" json:"id"`
	ReferenceNumber string          `db:"reference_number" json:"reference_number"`
	CallerID        int64           `db:"caller_id" json:"caller_id"`
	ResourceID      sql.NullInt64   `db:"resource_id" json:"resource_id,omitempty"`
	Type            ResourceType    `db:"resource_type" json:"type"`
	Location        string          `db:"location" json:"location"`
	Latitude        sql.NullFloat64 `db:"latitude" json:"latitude,omitempty"`
	Longitude       sql.NullFloat64 `db:"longitude" json:"longitude,omitempty"`
	Quantity        int             `db:"quantity" json:"quantity"`
	Status          RequestStatus   `db:"status" json:"status"`
	Priority        int             `db:"priority" json:"priority"` // 1=low .. 5=critical
	TotalCost       float64         `db:"total_cost" json:"total_cost"`
	CreatedAt       time.Time       `db:"created_at" json:"created_at"`
	MatchedAt       sql.NullTime    `db:"matched_at" json:"matched_at,omitempty"`
	ConfirmedAt     sql.NullTime    `db:"confirmed_at" json:"confirmed_at,omitempty"`
	CompletedAt     sql.NullTime    `db:"completed_at" json:"completed_at,omitempty"`
}

// HighPriority reports whether the request should receive urgency bonuses
// during scoring.
func (r *EmergencyRequest) HighPriority() bool {
	return r.Priority >= 4
}

// NewReferenceNumber generates a caller-facing tracking reference:
// "ER" + yymmdd + 6 uppercase hex characters (3 random bytes).
func NewReferenceNumber(now time.Time) string {
	buf := make([]byte, 3)
	_, _ = rand.Read(buf)
	return "ER" + now.UTC().Format("060102") + strings.ToUpper(hex.EncodeToString(buf))
}
