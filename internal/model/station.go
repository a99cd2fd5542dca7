package model

import "time"

// Station is a bookable physical position on the range (a firing lane).
// Stations are never hard-deleted while referenced; IsActive is the soft
// delete flag.  Names are unique across all stations, active or not.
//
// Fields:
//  ID           – primary key identifier.
//  Name         – unique display name.
//  DisplayOrder – position in listings, ascending.
//  IsActive     – false once an administrator deactivates the station.
//  CreatedAt    – creation timestamp.
//  UpdatedAt    – last update timestamp.
type Station struct {
	ID           uint64    `json:"id"`            // stations.id
	Name         string    `json:"name"`          // stations.name
	DisplayOrder int       `json:"display_order"` // stations.display_order
	IsActive     bool      `json:"is_active"`     // stations.is_active
	CreatedAt    time.Time `json:"created_at"`    // stations.created_at
	UpdatedAt    time.Time `json:"updated_at"`    // stations.updated_at
}
