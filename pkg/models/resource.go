// Package models contains domain models for reliefline.
package models

import (
	"database/sql"
	"strconv"
	"time"
)

// ResourceType identifies the kind of emergency resource a provider offers.
type ResourceType string

const (
	ResourceTypeShelter   ResourceType = "shelter"
	ResourceTypeFood      ResourceType = "food"
	ResourceTypeTransport ResourceType = "transport"
)

// Valid reports whether t is one of the known resource types.
func (t ResourceType) Valid() bool {
	switch t {
	case ResourceTypeShelter, ResourceTypeFood, ResourceTypeTransport:
		return true
	}
	return false
}

// Title returns the display form of the type ("shelter" -> "Shelter").
func (t ResourceType) Title() string {
	s := string(t)
	if s == "" {
		return ""
	}
	return string(s[0]-'a'+'A') + s[1:]
}

// Resource is one provider-owned unit of emergency capacity.
type Resource struct {
	ID                int64           `db:"id" json:"id"`
	ProviderName      string          `db:"provider_name" json:"provider_name"`
	Name              string          `db:"name" json:"name"`
	Description       sql.NullString  `db:"description" json:"description,omitempty"`
	Type              ResourceType    `db:"resource_type" json:"type"`
	Location          string          `db:"location" json:"location"`
	Latitude          sql.NullFloat64 `db:"latitude" json:"latitude,omitempty"`
	Longitude         sql.NullFloat64 `db:"longitude" json:"longitude,omitempty"`
	TotalCapacity     int             `db:"total_capacity" json:"total_capacity"`
	AvailableCapacity int             `db:"available_capacity" json:"available_capacity"`
	ContactPhone      sql.NullString  `db:"contact_phone" json:"contact_phone,omitempty"`
	PricePerUnit      float64         `db:"price_per_unit" json:"price_per_unit"`
	Currency          string          `db:"currency" json:"currency"`
	IsActive          bool            `db:"is_active" json:"is_active"`
	CreatedAt         time.Time       `db:"created_at" json:"created_at"`
	UpdatedAt         time.Time       `db:"updated_at" json:"updated_at"`
}

// HasCoordinates reports whether the resource carries a geo position.
func (r *Resource) HasCoordinates() bool {
	return r.Latitude.Valid && r.Longitude.Valid
}

// Free reports whether the resource costs nothing per unit.
func (r *Resource) Free() bool {
	return r.PricePerUnit == 0
}

// PriceLabel renders the price the way USSD menus show it: "Free" or "NGN 500".
func (r *Resource) PriceLabel() string {
	if r.Free() {
		return "Free"
	}
	return r.Currency + " " + strconv.FormatFloat(r.PricePerUnit, 'f', -1, 64)
}
