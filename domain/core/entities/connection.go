package entities

import (
	"time"

	"storyboard/domain/core/valueobjects"
	pkgerrors "storyboard/pkg/errors"
)

// Connection is a directed link between two frames defining sequence.
// Self-loops and cycles are legal; the sequence derivation engine is
// responsible for terminating on any topology.
type Connection struct {
	id        valueobjects.ConnectionID
	boardID   valueobjects.BoardID
	from      valueobjects.FrameID
	to        valueobjects.FrameID
	createdAt time.Time
}

// NewConnection creates a connection with validation
func NewConnection(boardID valueobjects.BoardID, from, to valueobjects.FrameID) (*Connection, error) {
	if boardID.IsZero() {
		return nil, pkgerrors.NewValidationError("boardID cannot be empty")
	}
	if from.IsZero() || to.IsZero() {
		return nil, pkgerrors.NewValidationError("connection endpoints cannot be empty")
	}

	return &Connection{
		id:        valueobjects.NewConnectionID(),
		boardID:   boardID,
		from:      from,
		to:        to,
		createdAt: time.Now(),
	}, nil
}

// ReconstructConnection recreates a connection from stored data
func ReconstructConnection(
	id valueobjects.ConnectionID,
	boardID valueobjects.BoardID,
	from, to valueobjects.FrameID,
	createdAt time.Time,
) (*Connection, error) {
	if id.IsZero() {
		return nil, pkgerrors.NewValidationError("connection ID required for reconstruction")
	}
	if from.IsZero() || to.IsZero() {
		return nil, pkgerrors.NewValidationError("connection endpoints cannot be empty")
	}

	return &Connection{
		id:        id,
		boardID:   boardID,
		from:      from,
		to:        to,
		createdAt: createdAt,
	}, nil
}

// ID returns the connection's unique identifier
func (c *Connection) ID() valueobjects.ConnectionID {
	return c.id
}

// BoardID returns the board this connection belongs to
func (c *Connection) BoardID() valueobjects.BoardID {
	return c.boardID
}

// From returns the source frame ID
func (c *Connection) From() valueobjects.FrameID {
	return c.from
}

// To returns the target frame ID
func (c *Connection) To() valueobjects.FrameID {
	return c.to
}

// CreatedAt returns when the connection was created
func (c *Connection) CreatedAt() time.Time {
	return c.createdAt
}

// IsSelfLoop checks whether both endpoints are the same frame
func (c *Connection) IsSelfLoop() bool {
	return c.from.Equals(c.to)
}

// Touches checks whether the given frame is an endpoint
func (c *Connection) Touches(frameID valueobjects.FrameID) bool {
	return c.from.Equals(frameID) || c.to.Equals(frameID)
}

// Clone returns a copy of the connection
func (c *Connection) Clone() *Connection {
	clone := *c
	return &clone
}
