package ports

import (
	"context"

	"storyboard/domain/core/valueobjects"
	"storyboard/domain/events"
)

// EphemeralChannel is the low-latency, non-durable pub/sub for one board.
// Messages are best-effort: no delivery guarantee, no cross-sender ordering,
// and the transport must suppress echoing a sender's own messages back.
type EphemeralChannel interface {
	// Publish pushes a message to all other subscribers of the board
	Publish(ctx context.Context, msg events.EphemeralMessage) error

	// Messages returns the stream of messages from other participants.
	// The channel closes when the subscription drops.
	Messages() <-chan events.EphemeralMessage

	// Close tears down the subscription
	Close() error
}

// PresenceUpdate is one roster change pushed by the presence service
type PresenceUpdate struct {
	ParticipantID valueobjects.ParticipantID
	DisplayName   string
	AvatarRef     string
	Online        bool
}

// PresenceRoster is the external presence collaborator. The engine only
// consumes it to render the participant list.
type PresenceRoster interface {
	// Join announces this participant and returns the roster stream
	Join(ctx context.Context, boardID valueobjects.BoardID, self PresenceUpdate) (<-chan PresenceUpdate, error)

	// Leave withdraws this participant from the roster
	Leave(ctx context.Context) error
}
