// Package uuid hands out store keys and token ids.
package uuid

import (
	googleuuid "github.com/google/uuid"
)

// New returns a UUIDv7 string. Keys from one process sort in creation
// order, which is what the store relies on for push ids.
func New() string {
	return googleuuid.Must(googleuuid.NewV7()).String()
}
