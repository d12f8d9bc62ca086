package utils

import "github.com/google/uuid"

// NewID returns a time-ordered unique identifier (UUIDv7).
// Lexicographic order of the returned strings follows creation order.
func NewID() string {
	id, err := uuid.NewV7()
	if err == nil {
		return id.String()
	}

	// Fallback to a random v4 if the clock source fails.
	return uuid.NewString()
}
