package idgen

import (
	"github.com/google/uuid"
)

// ID prefixes for different models
const (
	PrefixEvent = "evt_"
)

// NewEvent generates a new privacy change event ID with evt_ prefix
func NewEvent() string {
	return PrefixEvent + uuid.New().String()
}

// New generates a generic UUID without prefix (for internal use only)
func New() string {
	return uuid.New().String()
}
