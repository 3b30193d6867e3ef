// Package fraud implements the stateless abuse rules consulted before any
// request is created: duplicate detection, rate gating, and a lightweight
// anomaly check over recent caller activity.
package fraud

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/reliefline/reliefline/pkg/models"
)

// Anomaly thresholds. More than maxBurstActions same-typed actions inside
// burstWindow, or more than maxDistinctLocations distinct locations inside
// locationWindow, flags the caller.
const (
	maxBurstActions      = 5
	burstWindow          = 5 * time.Minute
	maxDistinctLocations = 3
	locationWindow       = time.Hour
)

// History answers queries over the caller activity log.
type History interface {
	CountSince(ctx context.Context, callerID int64, action string, cutoff time.Time) (int, error)
	DistinctLocationsSince(ctx context.Context, callerID int64, cutoff time.Time) (int, error)
}

// Requests answers duplicate lookups over existing emergency requests.
type Requests interface {
	HasRecentDuplicate(ctx context.Context, callerID int64, resourceType models.ResourceType, location string, cutoff time.Time) (bool, error)
}

// Guard evaluates the abuse rules. It holds no mutable state; every answer
// comes from the stores.
type Guard struct {
	history  History
	requests Requests

	duplicateWindow time.Duration
	startsPerHour   int
}

// NewGuard creates a guard with the configured duplicate window and
// session-start budget.
func NewGuard(history History, requests Requests, duplicateWindow time.Duration, startsPerHour int) *Guard {
	return &Guard{
		history:         history,
		requests:        requests,
		duplicateWindow: duplicateWindow,
		startsPerHour:   startsPerHour,
	}
}

// IsDuplicate reports whether the caller already has a live request for the
// same type and location inside the recency window.
func (g *Guard) IsDuplicate(ctx context.Context, callerID int64, resourceType models.ResourceType, location string) (bool, error) {
	cutoff := time.Now().Add(-g.duplicateWindow)
	dup, err := g.requests.HasRecentDuplicate(ctx, callerID, resourceType, location, cutoff)
	if err != nil {
		return false, err
	}
	if dup {
		log.Warn().
			Int64("callerId", callerID).
			Str("type", string(resourceType)).
			Str("location", location).
			Msg("Duplicate request blocked")
	}
	return dup, nil
}

// RateLimited reports whether the caller has exhausted their session-start
// budget for the trailing hour.
func (g *Guard) RateLimited(ctx context.Context, callerID int64, action string) (bool, error) {
	count, err := g.history.CountSince(ctx, callerID, action, time.Now().Add(-time.Hour))
	if err != nil {
		return false, err
	}
	return count >= g.startsPerHour, nil
}

// IsSuspicious applies the anomaly rules against the caller's recent
// activity: a burst of same-typed actions, or too many distinct locations.
func (g *Guard) IsSuspicious(ctx context.Context, callerID int64, action string) (bool, error) {
	now := time.Now()

	recent, err := g.history.CountSince(ctx, callerID, action, now.Add(-burstWindow))
	if err != nil {
		return false, err
	}
	if recent > maxBurstActions {
		log.Warn().Int64("callerId", callerID).Int("recentActions", recent).Msg("Suspicious activity: action burst")
		return true, nil
	}

	locations, err := g.history.DistinctLocationsSince(ctx, callerID, now.Add(-locationWindow))
	if err != nil {
		return false, err
	}
	if locations > maxDistinctLocations {
		log.Warn().Int64("callerId", callerID).Int("locations", locations).Msg("Suspicious activity: location churn")
		return true, nil
	}

	return false, nil
}
