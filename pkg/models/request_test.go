package models

import (
	"regexp"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestNewReferenceNumber verifies the caller-facing reference format:
// ER + 6 date digits + 6 uppercase hex characters.
func TestNewReferenceNumber(t *testing.T) {
	now := time.Date(2026, 3, 14, 9, 26, 0, 0, time.UTC)

	ref := NewReferenceNumber(now)
	require.Regexp(t, regexp.MustCompile(`^ER\d{6}[0-9A-F]{6}$`), ref)
	assert.Equal(t, "ER260314", ref[:8])
}

func TestNewReferenceNumber_Unique(t *testing.T) {
	now := time.Now()
	seen := make(map[string]bool)
	for i := 0; i < 100; i++ {
		ref := NewReferenceNumber(now)
		assert.False(t, seen[ref], "duplicate reference %s", ref)
		seen[ref] = true
	}
}

func TestRequestStatus_Terminal(t *testing.T) {
	tests := []struct {
		status   RequestStatus
		terminal bool
	}{
		{RequestStatusPending, false},
		{RequestStatusMatched, false},
		{RequestStatusConfirmed, false},
		{RequestStatusCompleted, true},
		{RequestStatusCancelled, true},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.terminal, tt.status.Terminal(), "status %s", tt.status)
	}
}

func TestEmergencyRequest_HighPriority(t *testing.T) {
	assert.False(t, (&EmergencyRequest{Priority: 1}).HighPriority())
	assert.False(t, (&EmergencyRequest{Priority: 3}).HighPriority())
	assert.True(t, (&EmergencyRequest{Priority: 4}).HighPriority())
	assert.True(t, (&EmergencyRequest{Priority: 5}).HighPriority())
}
