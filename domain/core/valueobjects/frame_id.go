package valueobjects

import (
	"errors"

	"github.com/google/uuid"
)

// FrameID is a value object representing a unique frame identifier
// Value objects are immutable and have no identity beyond their value
type FrameID struct {
	value string
}

// NewFrameID creates a new random FrameID
func NewFrameID() FrameID {
	return FrameID{value: uuid.New().String()}
}

// NewFrameIDFromString creates a FrameID from an existing string
func NewFrameIDFromString(id string) (FrameID, error) {
	if id == "" {
		return FrameID{}, errors.New("frame ID cannot be empty")
	}
	if !isValidUUID(id) {
		return FrameID{}, errors.New("frame ID must be a valid UUID")
	}
	return FrameID{value: id}, nil
}

// String returns the string representation of the FrameID
func (id FrameID) String() string {
	return id.value
}

// Equals checks if two FrameIDs are equal
func (id FrameID) Equals(other FrameID) bool {
	return id.value == other.value
}

// IsZero checks if the FrameID is the zero value
func (id FrameID) IsZero() bool {
	return id.value == ""
}

// MarshalJSON implements json.Marshaler
func (id FrameID) MarshalJSON() ([]byte, error) {
	return []byte(`"` + id.value + `"`), nil
}

// UnmarshalJSON implements json.Unmarshaler
func (id *FrameID) UnmarshalJSON(data []byte) error {
	if string(data) == "null" {
		return nil
	}
	if len(data) < 2 || data[0] != '"' || data[len(data)-1] != '"' {
		return errors.New("FrameID must be a string")
	}
	id.value = string(data[1 : len(data)-1])
	return nil
}

// isValidUUID validates if a string is a valid UUID
func isValidUUID(s string) bool {
	_, err := uuid.Parse(s)
	return err == nil
}
