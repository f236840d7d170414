package util

import (
	"github.com/google/uuid"
)

// GenerateUUID returns a time-ordered v7 id, falling back to v4 if the clock source fails.
func GenerateUUID() string {
	newUUID, err := uuid.NewV7()
	if err != nil {
		return uuid.NewString()
	}
	return newUUID.String()
}
