package models

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSession_Expiry(t *testing.T) {
	now := time.Now()
	ttl := 10 * time.Minute

	sess := NewSession("ATUid_1", 42, now, ttl)
	require.Equal(t, StepStart, sess.Step)
	assert.False(t, sess.Expired(now))
	assert.False(t, sess.Expired(now.Add(ttl-time.Second)))
	assert.True(t, sess.Expired(now.Add(ttl)), "expiry instant counts as expired")
	assert.True(t, sess.Expired(now.Add(ttl+time.Hour)))
}

// TestSession_Touch verifies the invariant that expiry always equals last
// activity plus the TTL.
func TestSession_Touch(t *testing.T) {
	start := time.Now()
	ttl := 10 * time.Minute

	sess := NewSession("ATUid_2", 7, start, ttl)

	later := start.Add(9 * time.Minute)
	sess.Touch(later, ttl)

	assert.Equal(t, later, sess.LastActivity)
	assert.Equal(t, later.Add(ttl), sess.ExpiresAt)
	assert.False(t, sess.Expired(start.Add(ttl)), "touch must push expiry past the original TTL")
}

func TestSelections_EncodeDecode(t *testing.T) {
	sel := Selections{
		ResourceType: ResourceTypeShelter,
		Location:     "Lokoja",
		Candidates:   []int64{5, 3, 9},
		ResourceID:   3,
	}

	data, err := sel.Encode()
	require.NoError(t, err)

	got, err := DecodeSelections(data)
	require.NoError(t, err)
	assert.Equal(t, sel, got)

	empty, err := DecodeSelections(nil)
	require.NoError(t, err)
	assert.Equal(t, Selections{}, empty)
}
