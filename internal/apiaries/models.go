package apiaries

import (
	"time"

	"github.com/google/uuid"
)

// Apiary is the root record of a beekeeper's holdings. Everything beneath
// it (hives, inspections, treatments) inherits its ownership and sharing.
type Apiary struct {
	ID              uuid.UUID     `json:"id"`
	Name            string        `json:"name"`
	Location        string        `json:"location"`
	Notes           string        `json:"notes,omitempty"`
	Latitude        *float64      `json:"latitude,omitempty"`
	Longitude       *float64      `json:"longitude,omitempty"`
	OwnerUserID     uuid.UUID     `json:"owner_user_id"`
	GroupID         uuid.NullUUID `json:"-"`
	SharedWithGroup bool          `json:"shared_with_group"`
	CreatedAt       time.Time     `json:"created_at"`
	UpdatedAt       time.Time     `json:"updated_at"`
}

type Hive struct {
	ID        uuid.UUID `json:"id"`
	ApiaryID  uuid.UUID `json:"apiary_id"`
	Label     string    `json:"label"`
	CreatedAt time.Time `json:"created_at"`
}

type Inspection struct {
	ID              uuid.UUID `json:"id"`
	HiveID          uuid.UUID `json:"hive_id"`
	InspectedOn     time.Time `json:"inspected_on"`
	QueenSeen       bool      `json:"queen_seen"`
	Notes           string    `json:"notes,omitempty"`
	CreatedByUserID uuid.UUID `json:"created_by_user_id"`
	CreatedAt       time.Time `json:"created_at"`
}
