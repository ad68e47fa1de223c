// Package uuid mints identifiers for note events and HTTP requests.
package uuid

import (
	"fmt"

	"github.com/google/uuid"
)

// Generator creates UUID strings.
type Generator struct{}

// New creates a Generator.
func New() *Generator {
	return &Generator{}
}

// NewID returns a time-ordered UUIDv7 string, used for note event ids.
func (Generator) NewID() (string, error) {
	id, err := uuid.NewV7()
	if err != nil {
		return "", fmt.Errorf("generate uuid7: %w", err)
	}
	return id.String(), nil
}

// NewRequestID returns a random UUIDv4 string for request correlation.
func (Generator) NewRequestID() string {
	return uuid.NewString()
}
