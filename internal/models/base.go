package models

import "time"

// Base contains the fields shared by stored records. ID mirrors the record's
// key in the store.
type Base struct {
	ID        string     `json:"id"`
	CreatedAt time.Time  `json:"createdAt"`
	UpdatedAt *time.Time `json:"updatedAt,omitempty"`
}
