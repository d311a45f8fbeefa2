// Package ids supplies identifiers for vitals records, notifications and audit
// log entries.
package ids

import "github.com/google/uuid"

// Generator produces unique string identifiers.
type Generator interface {
	Generate() string
}

// UUIDGenerator issues random (v4) UUIDs.
type UUIDGenerator struct{}

func (UUIDGenerator) Generate() string {
	return uuid.NewString()
}

// IsValid reports whether id parses as a UUID.
func IsValid(id string) bool {
	_, err := uuid.Parse(id)
	return err == nil
}
