package entities

import (
	"time"

	"storyboard/domain/core/valueobjects"
	"storyboard/domain/events"
	pkgerrors "storyboard/pkg/errors"
)

// FrameStatus represents the lifecycle stage of a frame
type FrameStatus string

const (
	StatusDraft FrameStatus = "draft"
	StatusFinal FrameStatus = "final"
)

// Frame is the main entity representing a positioned visual unit on a board.
// This is a rich domain model with encapsulated business logic; the position
// held here is the persisted position, not the live drag position.
type Frame struct {
	// Private fields ensure encapsulation
	id        valueobjects.FrameID
	boardID   valueobjects.BoardID
	position  valueobjects.Position
	assetRef  string // opaque URI owned by the external asset store
	duration  valueobjects.FrameDuration
	status    FrameStatus
	createdAt time.Time
	updatedAt time.Time
	version   int

	// Domain events that occurred during this entity's lifetime
	events []events.DomainEvent
}

// NewFrame creates a new frame with business rule validation
func NewFrame(boardID valueobjects.BoardID, position valueobjects.Position, assetRef string) (*Frame, error) {
	if boardID.IsZero() {
		return nil, pkgerrors.NewValidationError("boardID cannot be empty")
	}

	now := time.Now()
	frame := &Frame{
		id:        valueobjects.NewFrameID(),
		boardID:   boardID,
		position:  position,
		assetRef:  assetRef,
		duration:  valueobjects.DefaultFrameDuration(),
		status:    StatusDraft,
		createdAt: now,
		updatedAt: now,
		version:   1,
		events:    []events.DomainEvent{},
	}

	return frame, nil
}

// ReconstructFrame recreates a frame from stored data with preserved timestamps
func ReconstructFrame(
	id valueobjects.FrameID,
	boardID valueobjects.BoardID,
	position valueobjects.Position,
	assetRef string,
	duration valueobjects.FrameDuration,
	status FrameStatus,
	createdAt, updatedAt time.Time,
	version int,
) (*Frame, error) {
	if id.IsZero() {
		return nil, pkgerrors.NewValidationError("frame ID required for reconstruction")
	}
	if boardID.IsZero() {
		return nil, pkgerrors.NewValidationError("boardID required for reconstruction")
	}
	if version < 1 {
		version = 1
	}

	return &Frame{
		id:        id,
		boardID:   boardID,
		position:  position,
		assetRef:  assetRef,
		duration:  duration,
		status:    status,
		createdAt: createdAt,
		updatedAt: updatedAt,
		version:   version,
		events:    []events.DomainEvent{},
	}, nil
}

// ID returns the frame's unique identifier
func (f *Frame) ID() valueobjects.FrameID {
	return f.id
}

// BoardID returns the board this frame belongs to
func (f *Frame) BoardID() valueobjects.BoardID {
	return f.boardID
}

// Position returns the frame's persisted position
func (f *Frame) Position() valueobjects.Position {
	return f.position
}

// AssetRef returns the opaque payload reference
func (f *Frame) AssetRef() string {
	return f.assetRef
}

// Duration returns the frame's playback duration
func (f *Frame) Duration() valueobjects.FrameDuration {
	return f.duration
}

// Status returns the frame's lifecycle stage
func (f *Frame) Status() FrameStatus {
	return f.status
}

// Version returns the frame's version, used to deduplicate feed events
func (f *Frame) Version() int {
	return f.version
}

// CreatedAt returns when the frame was created
func (f *Frame) CreatedAt() time.Time {
	return f.createdAt
}

// UpdatedAt returns when the frame was last updated
func (f *Frame) UpdatedAt() time.Time {
	return f.updatedAt
}

// MoveTo sets a new persisted position
func (f *Frame) MoveTo(position valueobjects.Position) error {
	if position.Equals(f.position) {
		return nil // No movement needed
	}

	oldPosition := f.position
	f.position = position
	f.updatedAt = time.Now()
	f.version++

	f.addEvent(events.NewFrameMoved(f.id, oldPosition, position, f.updatedAt))

	return nil
}

// SetAssetRef replaces the visual payload reference
func (f *Frame) SetAssetRef(assetRef string) error {
	if assetRef == f.assetRef {
		return nil
	}

	f.assetRef = assetRef
	f.updatedAt = time.Now()
	f.version++

	return nil
}

// SetDuration updates the playback duration
func (f *Frame) SetDuration(duration valueobjects.FrameDuration) error {
	if duration.IsZero() {
		return pkgerrors.NewValidationError("duration cannot be zero")
	}
	if duration.Equals(f.duration) {
		return nil
	}

	f.duration = duration
	f.updatedAt = time.Now()
	f.version++

	return nil
}

// Finalize moves the frame out of the draft stage
func (f *Frame) Finalize() error {
	if f.status == StatusFinal {
		return nil // Already finalized
	}

	f.status = StatusFinal
	f.updatedAt = time.Now()
	f.version++

	f.addEvent(events.NewFrameFinalized(f.id, f.updatedAt))

	return nil
}

// ApplyRemote merges a newer remote copy of this frame. Position is skipped
// when the caller reports an in-flight local drag so the user never sees
// their own drag snapped away. Stale versions are ignored.
func (f *Frame) ApplyRemote(remote *Frame, skipPosition bool) bool {
	if remote == nil || !remote.id.Equals(f.id) {
		return false
	}
	if remote.version <= f.version {
		return false // already applied or stale
	}

	if !skipPosition {
		f.position = remote.position
	}
	f.assetRef = remote.assetRef
	f.duration = remote.duration
	f.status = remote.status
	f.updatedAt = remote.updatedAt
	f.version = remote.version

	return true
}

// Clone returns a deep copy with no pending events
func (f *Frame) Clone() *Frame {
	return &Frame{
		id:        f.id,
		boardID:   f.boardID,
		position:  f.position,
		assetRef:  f.assetRef,
		duration:  f.duration,
		status:    f.status,
		createdAt: f.createdAt,
		updatedAt: f.updatedAt,
		version:   f.version,
		events:    []events.DomainEvent{},
	}
}

// GetUncommittedEvents returns all uncommitted domain events
func (f *Frame) GetUncommittedEvents() []events.DomainEvent {
	return f.events
}

// MarkEventsAsCommitted clears the uncommitted events
func (f *Frame) MarkEventsAsCommitted() {
	f.events = []events.DomainEvent{}
}

// addEvent adds a domain event to the uncommitted list
func (f *Frame) addEvent(event events.DomainEvent) {
	f.events = append(f.events, event)
}
