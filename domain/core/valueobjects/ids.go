package valueobjects

import "github.com/google/uuid"

// BoardID identifies one shared collaborative board
type BoardID string

// NewBoardID creates a new random BoardID
func NewBoardID() BoardID {
	return BoardID(uuid.New().String())
}

// String returns the string representation
func (id BoardID) String() string {
	return string(id)
}

// IsZero checks if the BoardID is unset
func (id BoardID) IsZero() bool {
	return id == ""
}

// ConnectionID identifies a directed connection between two frames
type ConnectionID string

// NewConnectionID creates a new random ConnectionID
func NewConnectionID() ConnectionID {
	return ConnectionID(uuid.New().String())
}

// String returns the string representation
func (id ConnectionID) String() string {
	return string(id)
}

// IsZero checks if the ConnectionID is unset
func (id ConnectionID) IsZero() bool {
	return id == ""
}

// ParticipantID identifies an ephemeral session participant. It lives only
// as long as the participant's realtime subscription and is never persisted.
type ParticipantID string

// NewParticipantID creates a new random ParticipantID
func NewParticipantID() ParticipantID {
	return ParticipantID(uuid.New().String())
}

// String returns the string representation
func (id ParticipantID) String() string {
	return string(id)
}

// IsZero checks if the ParticipantID is unset
func (id ParticipantID) IsZero() bool {
	return id == ""
}
