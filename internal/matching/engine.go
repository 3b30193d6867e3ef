// Package matching ranks available resources against a caller's need.
// Everything here is deterministic: identical resource state and request
// attributes always produce the same ranking.
package matching

import (
	"context"
	"math"
	"sort"
	"strings"

	"github.com/rs/zerolog/log"

	"github.com/reliefline/reliefline/pkg/models"
)

// earthRadiusKm is the mean Earth radius used by the haversine formula.
const earthRadiusKm = 6371

// CandidateSource supplies the raw pool of active resources with spare
// capacity for one type. The SQLite ResourceStore satisfies this.
type CandidateSource interface {
	FindCandidates(ctx context.Context, resourceType models.ResourceType) ([]*models.Resource, error)
}

// Engine selects and ranks resources for requests.
type Engine struct {
	source      CandidateSource
	maxRadiusKm float64
}

// NewEngine creates a matching engine with the given default search radius.
func NewEngine(source CandidateSource, maxRadiusKm float64) *Engine {
	return &Engine{source: source, maxRadiusKm: maxRadiusKm}
}

// Candidate is one ranked resource. Distance is only meaningful when
// HasDistance is true (both sides had coordinates).
type Candidate struct {
	Resource    *models.Resource
	Distance    float64
	HasDistance bool
}

// Query describes what the caller needs and where.
type Query struct {
	Type         models.ResourceType
	LocationText string
	// Latitude/Longitude switch the engine to distance ranking when set.
	Latitude  *float64
	Longitude *float64
	RadiusKm  float64 // 0 means the engine default
	Limit     int     // 0 means unlimited
}

// Haversine returns the great-circle distance in kilometers between two
// points given in degrees.
func Haversine(lat1, lon1, lat2, lon2 float64) float64 {
	rLat1 := lat1 * math.Pi / 180
	rLat2 := lat2 * math.Pi / 180
	dLat := (lat2 - lat1) * math.Pi / 180
	dLon := (lon2 - lon1) * math.Pi / 180

	a := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(rLat1)*math.Cos(rLat2)*math.Sin(dLon/2)*math.Sin(dLon/2)
	c := 2 * math.Asin(math.Sqrt(a))

	return earthRadiusKm * c
}

// FindCandidates filters and ranks resources for a query.
//
// With coordinates: candidates lacking coordinates are skipped, anything
// beyond the radius is discarded, and ranking is distance ascending with
// available capacity descending as tie-break. Without coordinates: the
// location text is matched case-insensitively against each resource's
// location label and ranking is available capacity descending. Resource ID
// ascending is the final tie-break in both modes, which keeps the ranking
// reproducible.
func (e *Engine) FindCandidates(ctx context.Context, q Query) ([]Candidate, error) {
	pool, err := e.source.FindCandidates(ctx, q.Type)
	if err != nil {
		return nil, err
	}

	radius := q.RadiusKm
	if radius <= 0 {
		radius = e.maxRadiusKm
	}

	var candidates []Candidate
	if q.Latitude != nil && q.Longitude != nil {
		for _, r := range pool {
			if !r.HasCoordinates() {
				continue
			}
			d := Haversine(*q.Latitude, *q.Longitude, r.Latitude.Float64, r.Longitude.Float64)
			if d > radius {
				continue
			}
			candidates = append(candidates, Candidate{Resource: r, Distance: d, HasDistance: true})
		}
		sort.Slice(candidates, func(i, j int) bool {
			a, b := candidates[i], candidates[j]
			if a.Distance != b.Distance {
				return a.Distance < b.Distance
			}
			if a.Resource.AvailableCapacity != b.Resource.AvailableCapacity {
				return a.Resource.AvailableCapacity > b.Resource.AvailableCapacity
			}
			return a.Resource.ID < b.Resource.ID
		})
	} else {
		needle := strings.ToLower(strings.TrimSpace(q.LocationText))
		for _, r := range pool {
			if needle != "" && !strings.Contains(strings.ToLower(r.Location), needle) {
				continue
			}
			candidates = append(candidates, Candidate{Resource: r})
		}
		sort.Slice(candidates, func(i, j int) bool {
			a, b := candidates[i], candidates[j]
			if a.Resource.AvailableCapacity != b.Resource.AvailableCapacity {
				return a.Resource.AvailableCapacity > b.Resource.AvailableCapacity
			}
			return a.Resource.ID < b.Resource.ID
		})
	}

	if q.Limit > 0 && len(candidates) > q.Limit {
		candidates = candidates[:q.Limit]
	}

	log.Debug().
		Str("type", string(q.Type)).
		Str("location", q.LocationText).
		Int("candidates", len(candidates)).
		Msg("Candidate search completed")

	return candidates, nil
}

// Score rates one candidate for a request. Weights:
//
//	proximity:        100 - 2*distanceKm, floored at 0; flat 50 without distance
//	capacity headroom: available/total * 50
//	urgency bonus:    +30 transport, +20 shelter, high-priority requests only
//	free service:     +25 when the unit price is 0
//	tie-break:        resource ID % 10 (deterministic, replaces the old
//	                  hash-of-name jitter)
func Score(req *models.EmergencyRequest, c Candidate) float64 {
	score := 50.0
	if c.HasDistance {
		score = math.Max(0, 100-2*c.Distance)
	}

	r := c.Resource
	if r.TotalCapacity > 0 {
		score += float64(r.AvailableCapacity) / float64(r.TotalCapacity) * 50
	}

	if req.HighPriority() {
		switch r.Type {
		case models.ResourceTypeTransport:
			score += 30
		case models.ResourceTypeShelter:
			score += 20
		}
	}

	if r.Free() {
		score += 25
	}

	score += float64(r.ID % 10)
	return score
}

// BestMatch returns the highest-scoring candidate for a request, or nil when
// nothing qualifies. Used by the auto-match reconciler.
func (e *Engine) BestMatch(ctx context.Context, req *models.EmergencyRequest) (*Candidate, error) {
	q := Query{
		Type:         req.Type,
		LocationText: req.Location,
	}
	if req.Latitude.Valid && req.Longitude.Valid {
		q.Latitude = &req.Latitude.Float64
		q.Longitude = &req.Longitude.Float64
	}

	candidates, err := e.FindCandidates(ctx, q)
	if err != nil {
		return nil, err
	}
	if len(candidates) == 0 {
		return nil, nil
	}

	best := candidates[0]
	bestScore := Score(req, best)
	for _, c := range candidates[1:] {
		if s := Score(req, c); s > bestScore {
			best, bestScore = c, s
		}
	}

	log.Debug().
		Str("reference", req.ReferenceNumber).
		Int64("resourceId", best.Resource.ID).
		Float64("score", bestScore).
		Msg("Best match selected")

	return &best, nil
}
