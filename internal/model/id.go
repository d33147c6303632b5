package model

import (
	"github.com/google/uuid"
	"github.com/oklog/ulid/v2"
)

// NewID generates a new ULID string for use as a job identifier.
func NewID() string {
	return ulid.Make().String()
}

// NewModelID generates the identifier under which a fitted model is persisted.
func NewModelID() string {
	return uuid.NewString()
}
