// Package sqlite provides SQLite database operations for reliefline.
package sqlite

import (
	"database/sql"
	"time"

	"github.com/reliefline/reliefline/pkg/models"
)

// nullString converts a string to sql.NullString.
func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

// epoch converts a time to the millisecond epoch used in the schema.
func epoch(t time.Time) int64 {
	return t.UnixMilli()
}

// fromEpoch converts a stored millisecond epoch back to a time.
func fromEpoch(ms int64) time.Time {
	return time.UnixMilli(ms)
}

// nullTime converts a nullable epoch column to sql.NullTime.
func nullTime(ms sql.NullInt64) sql.NullTime {
	if !ms.Valid {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: fromEpoch(ms.Int64), Valid: true}
}

// nullEpoch converts sql.NullTime to a nullable epoch value for writes.
func nullEpoch(t sql.NullTime) sql.NullInt64 {
	if !t.Valid {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: epoch(t.Time), Valid: true}
}

// scanResource scans one resource row.
func scanResource(scanner interface{ Scan(...interface{}) error }) (*models.Resource, error) {
	var (
		r                  models.Resource
		active             int
		createdMS, updated int64
	)
	if err := scanner.Scan(
		&r.ID, &r.ProviderName, &r.Name, &r.Description, &r.Type, &r.Location,
		&r.Latitude, &r.Longitude, &r.TotalCapacity, &r.AvailableCapacity,
		&r.ContactPhone, &r.PricePerUnit, &r.Currency, &active,
		&createdMS, &updated,
	); err != nil {
		return nil, err
	}
	r.IsActive = active == 1
	r.CreatedAt = fromEpoch(createdMS)
	r.UpdatedAt = fromEpoch(updated)
	return &r, nil
}

// scanResourceRows scans multiple resource rows.
func scanResourceRows(rows *sql.Rows) ([]*models.Resource, error) {
	var resources []*models.Resource
	for rows.Next() {
		r, err := scanResource(rows)
		if err != nil {
			return nil, err
		}
		resources = append(resources, r)
	}
	return resources, rows.Err()
}

// scanRequest scans one emergency request row.
func scanRequest(scanner interface{ Scan(...interface{}) error }) (*models.EmergencyRequest, error) {
	var (
		r                             models.EmergencyRequest
		createdMS                     int64
		matchedMS, confirmMS, doneMS  sql.NullInt64
	)
	if err := scanner.Scan(
		&r.ID, &r.ReferenceNumber, &r.CallerID, &r.ResourceID, &r.Type,
		&r.Location, &r.Latitude, &r.Longitude, &r.Quantity, &r.Status,
		&r.Priority, &r.TotalCost, &createdMS, &matchedMS, &confirmMS, &doneMS,
	); err != nil {
		return nil, err
	}
	r.CreatedAt = fromEpoch(createdMS)
	r.MatchedAt = nullTime(matchedMS)
	r.ConfirmedAt = nullTime(confirmMS)
	r.CompletedAt = nullTime(doneMS)
	return &r, nil
}

// scanRequestRows scans multiple request rows.
func scanRequestRows(rows *sql.Rows) ([]*models.EmergencyRequest, error) {
	var requests []*models.EmergencyRequest
	for rows.Next() {
		r, err := scanRequest(rows)
		if err != nil {
			return nil, err
		}
		requests = append(requests, r)
	}
	return requests, rows.Err()
}

const requestColumns = `id, reference_number, caller_id, resource_id, resource_type,
	location, latitude, longitude, quantity, status,
	priority, total_cost, created_at_epoch, matched_at_epoch, confirmed_at_epoch, completed_at_epoch`

const resourceColumns = `id, provider_name, name, description, resource_type, location,
	latitude, longitude, total_capacity, available_capacity,
	contact_phone, price_per_unit, currency, is_active,
	created_at_epoch, updated_at_epoch`
