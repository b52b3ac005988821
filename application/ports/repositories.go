package ports

import (
	"context"

	"storyboard/domain/core/aggregates"
	"storyboard/domain/core/entities"
	"storyboard/domain/core/valueobjects"
)

// BoardRepository defines the durable write API for boards, frames and
// connections. This is a port in hexagonal architecture - the engine never
// knows whether it is talking to DynamoDB, a relay server or a test double.
// All reads are scoped by board id.
type BoardRepository interface {
	// GetBoard retrieves a full board snapshot with frames and connections
	GetBoard(ctx context.Context, id valueobjects.BoardID) (*aggregates.Board, error)

	// SaveBoard persists board-level fields (name, share policy)
	SaveBoard(ctx context.Context, board *aggregates.Board) error

	// SaveFrame persists a frame (create or update)
	SaveFrame(ctx context.Context, frame *entities.Frame) error

	// UpdateFramePosition persists only a frame's position. Used by the
	// debounced write-back path; storage applies it last-writer-wins.
	UpdateFramePosition(ctx context.Context, boardID valueobjects.BoardID, frameID valueobjects.FrameID, position valueobjects.Position) error

	// DeleteFrame removes a frame; storage cascades to incident connections
	DeleteFrame(ctx context.Context, boardID valueobjects.BoardID, frameID valueobjects.FrameID) error

	// SaveConnection persists a connection
	SaveConnection(ctx context.Context, conn *entities.Connection) error

	// DeleteConnection removes a connection
	DeleteConnection(ctx context.Context, boardID valueobjects.BoardID, connID valueobjects.ConnectionID) error
}

// ChangeOp is the kind of durable mutation carried by the change feed
type ChangeOp string

const (
	OpInsert ChangeOp = "insert"
	OpUpdate ChangeOp = "update"
	OpDelete ChangeOp = "delete"
)

// EntityKind identifies what a change event refers to
type EntityKind string

const (
	EntityFrame      EntityKind = "frame"
	EntityConnection EntityKind = "connection"
)

// ChangeEvent is one committed mutation pushed by the durable change feed.
// Exactly one of Frame or Connection is set, matching Entity; deletes carry
// only the ids.
type ChangeEvent struct {
	Op           ChangeOp
	Entity       EntityKind
	BoardID      valueobjects.BoardID
	FrameID      valueobjects.FrameID
	ConnectionID valueobjects.ConnectionID
	Frame        *entities.Frame
	Connection   *entities.Connection
}

// ChangeFeed is the server-pushed stream of committed mutations for one
// board. Delivery is in commit order per entity id; no cross-entity order is
// guaranteed. A closed channel signals a dropped subscription, after which
// the consumer must resubscribe and fully resynchronize.
type ChangeFeed interface {
	Subscribe(ctx context.Context, boardID valueobjects.BoardID) (<-chan ChangeEvent, error)
}
