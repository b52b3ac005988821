package events

import (
	"time"

	"storyboard/domain/core/valueobjects"
)

// DomainEvent is the base interface for all domain events
// Events represent something that has happened in the past
type DomainEvent interface {
	GetAggregateID() string
	GetEventType() string
	GetTimestamp() time.Time
	GetVersion() int
}

// BaseEvent provides common event fields
type BaseEvent struct {
	AggregateID string    `json:"aggregate_id"`
	EventType   string    `json:"event_type"`
	Timestamp   time.Time `json:"timestamp"`
	Version     int       `json:"version"`
}

func (e BaseEvent) GetAggregateID() string  { return e.AggregateID }
func (e BaseEvent) GetEventType() string    { return e.EventType }
func (e BaseEvent) GetTimestamp() time.Time { return e.Timestamp }
func (e BaseEvent) GetVersion() int         { return e.Version }

// Board Events

// BoardCreated is raised when a new board is created
type BoardCreated struct {
	BaseEvent
	BoardID valueobjects.BoardID `json:"board_id"`
	Name    string               `json:"name"`
}

// NewBoardCreated creates a BoardCreated event
func NewBoardCreated(boardID valueobjects.BoardID, name string, timestamp time.Time) BoardCreated {
	return BoardCreated{
		BaseEvent: BaseEvent{
			AggregateID: boardID.String(),
			EventType:   "board.created",
			Timestamp:   timestamp,
			Version:     1,
		},
		BoardID: boardID,
		Name:    name,
	}
}

// Frame Events

// FrameAdded is raised when a frame is placed on a board
type FrameAdded struct {
	BaseEvent
	BoardID valueobjects.BoardID `json:"board_id"`
	FrameID valueobjects.FrameID `json:"frame_id"`
}

// NewFrameAdded creates a FrameAdded event
func NewFrameAdded(boardID valueobjects.BoardID, frameID valueobjects.FrameID, timestamp time.Time) FrameAdded {
	return FrameAdded{
		BaseEvent: BaseEvent{
			AggregateID: boardID.String(),
			EventType:   "board.frame_added",
			Timestamp:   timestamp,
			Version:     1,
		},
		BoardID: boardID,
		FrameID: frameID,
	}
}

// FrameMoved is raised when a frame settles at a new persisted position
type FrameMoved struct {
	BaseEvent
	FrameID     valueobjects.FrameID  `json:"frame_id"`
	OldPosition valueobjects.Position `json:"old_position"`
	NewPosition valueobjects.Position `json:"new_position"`
}

// NewFrameMoved creates a FrameMoved event
func NewFrameMoved(frameID valueobjects.FrameID, oldPos, newPos valueobjects.Position, timestamp time.Time) FrameMoved {
	return FrameMoved{
		BaseEvent: BaseEvent{
			AggregateID: frameID.String(),
			EventType:   "frame.moved",
			Timestamp:   timestamp,
			Version:     1,
		},
		FrameID:     frameID,
		OldPosition: oldPos,
		NewPosition: newPos,
	}
}

// FrameFinalized is raised when a frame leaves the draft stage
type FrameFinalized struct {
	BaseEvent
	FrameID valueobjects.FrameID `json:"frame_id"`
}

// NewFrameFinalized creates a FrameFinalized event
func NewFrameFinalized(frameID valueobjects.FrameID, timestamp time.Time) FrameFinalized {
	return FrameFinalized{
		BaseEvent: BaseEvent{
			AggregateID: frameID.String(),
			EventType:   "frame.finalized",
			Timestamp:   timestamp,
			Version:     1,
		},
		FrameID: frameID,
	}
}

// FrameRemoved is raised when a frame is removed from a board, together with
// its incident connections
type FrameRemoved struct {
	BaseEvent
	BoardID            valueobjects.BoardID      `json:"board_id"`
	FrameID            valueobjects.FrameID      `json:"frame_id"`
	RemovedConnections []valueobjects.ConnectionID `json:"removed_connections"`
}

// NewFrameRemoved creates a FrameRemoved event
func NewFrameRemoved(boardID valueobjects.BoardID, frameID valueobjects.FrameID, removed []valueobjects.ConnectionID, timestamp time.Time) FrameRemoved {
	return FrameRemoved{
		BaseEvent: BaseEvent{
			AggregateID: boardID.String(),
			EventType:   "board.frame_removed",
			Timestamp:   timestamp,
			Version:     1,
		},
		BoardID:            boardID,
		FrameID:            frameID,
		RemovedConnections: removed,
	}
}

// Connection Events

// FramesConnected is raised when a directed connection is created
type FramesConnected struct {
	BaseEvent
	BoardID      valueobjects.BoardID      `json:"board_id"`
	ConnectionID valueobjects.ConnectionID `json:"connection_id"`
	FromFrameID  valueobjects.FrameID      `json:"from_frame_id"`
	ToFrameID    valueobjects.FrameID      `json:"to_frame_id"`
}

// NewFramesConnected creates a FramesConnected event
func NewFramesConnected(boardID valueobjects.BoardID, connID valueobjects.ConnectionID, from, to valueobjects.FrameID, timestamp time.Time) FramesConnected {
	return FramesConnected{
		BaseEvent: BaseEvent{
			AggregateID: boardID.String(),
			EventType:   "board.frames_connected",
			Timestamp:   timestamp,
			Version:     1,
		},
		BoardID:      boardID,
		ConnectionID: connID,
		FromFrameID:  from,
		ToFrameID:    to,
	}
}

// FramesDisconnected is raised when a connection is removed
type FramesDisconnected struct {
	BaseEvent
	BoardID      valueobjects.BoardID      `json:"board_id"`
	ConnectionID valueobjects.ConnectionID `json:"connection_id"`
}

// NewFramesDisconnected creates a FramesDisconnected event
func NewFramesDisconnected(boardID valueobjects.BoardID, connID valueobjects.ConnectionID, timestamp time.Time) FramesDisconnected {
	return FramesDisconnected{
		BaseEvent: BaseEvent{
			AggregateID: boardID.String(),
			EventType:   "board.frames_disconnected",
			Timestamp:   timestamp,
			Version:     1,
		},
		BoardID:      boardID,
		ConnectionID: connID,
	}
}
