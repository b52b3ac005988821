package events

import (
	"encoding/json"
	"fmt"

	"storyboard/domain/core/valueobjects"
)

// MessageKind discriminates the ephemeral message variants that share one
// realtime channel. The set is closed; receivers dispatch with a switch and
// drop kinds they do not recognize.
type MessageKind string

const (
	KindCursorMove      MessageKind = "cursor_move"
	KindFrameMove       MessageKind = "frame_move"
	KindSelectionChange MessageKind = "selection_change"
)

// EphemeralMessage is the envelope for best-effort realtime traffic. It is
// never persisted, carries no identity beyond last-write-wins per sender,
// and expires on the consumer side.
type EphemeralMessage struct {
	Kind     MessageKind                `json:"kind"`
	SenderID valueobjects.ParticipantID `json:"sender_id"`
	Payload  json.RawMessage            `json:"payload"`
}

// CursorMove is the payload for live cursor positions
type CursorMove struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// FrameMove is the payload for in-progress frame dragging. It is transient
// visual feedback, not authoritative state; the durable position arrives
// separately through the change feed.
type FrameMove struct {
	FrameID valueobjects.FrameID `json:"frame_id"`
	X       float64              `json:"x"`
	Y       float64              `json:"y"`
}

// SelectionChange is the payload for live selection sharing
type SelectionChange struct {
	FrameIDs []valueobjects.FrameID `json:"frame_ids"`
}

// NewCursorMoveMessage builds a cursor-move envelope
func NewCursorMoveMessage(sender valueobjects.ParticipantID, x, y float64) (EphemeralMessage, error) {
	return newMessage(KindCursorMove, sender, CursorMove{X: x, Y: y})
}

// NewFrameMoveMessage builds a frame-move envelope
func NewFrameMoveMessage(sender valueobjects.ParticipantID, frameID valueobjects.FrameID, x, y float64) (EphemeralMessage, error) {
	return newMessage(KindFrameMove, sender, FrameMove{FrameID: frameID, X: x, Y: y})
}

// NewSelectionChangeMessage builds a selection-change envelope
func NewSelectionChangeMessage(sender valueobjects.ParticipantID, frameIDs []valueobjects.FrameID) (EphemeralMessage, error) {
	return newMessage(KindSelectionChange, sender, SelectionChange{FrameIDs: frameIDs})
}

func newMessage(kind MessageKind, sender valueobjects.ParticipantID, payload interface{}) (EphemeralMessage, error) {
	if sender.IsZero() {
		return EphemeralMessage{}, fmt.Errorf("ephemeral message requires a sender")
	}

	raw, err := json.Marshal(payload)
	if err != nil {
		return EphemeralMessage{}, fmt.Errorf("failed to encode %s payload: %w", kind, err)
	}

	return EphemeralMessage{
		Kind:     kind,
		SenderID: sender,
		Payload:  raw,
	}, nil
}

// DecodeCursorMove extracts a cursor-move payload, guarding the kind
func (m EphemeralMessage) DecodeCursorMove() (CursorMove, error) {
	var p CursorMove
	if m.Kind != KindCursorMove {
		return p, fmt.Errorf("message kind is %s, not %s", m.Kind, KindCursorMove)
	}
	if err := json.Unmarshal(m.Payload, &p); err != nil {
		return p, fmt.Errorf("malformed cursor-move payload: %w", err)
	}
	return p, nil
}

// DecodeFrameMove extracts a frame-move payload, guarding the kind
func (m EphemeralMessage) DecodeFrameMove() (FrameMove, error) {
	var p FrameMove
	if m.Kind != KindFrameMove {
		return p, fmt.Errorf("message kind is %s, not %s", m.Kind, KindFrameMove)
	}
	if err := json.Unmarshal(m.Payload, &p); err != nil {
		return p, fmt.Errorf("malformed frame-move payload: %w", err)
	}
	return p, nil
}

// DecodeSelectionChange extracts a selection-change payload, guarding the kind
func (m EphemeralMessage) DecodeSelectionChange() (SelectionChange, error) {
	var p SelectionChange
	if m.Kind != KindSelectionChange {
		return p, fmt.Errorf("message kind is %s, not %s", m.Kind, KindSelectionChange)
	}
	if err := json.Unmarshal(m.Payload, &p); err != nil {
		return p, fmt.Errorf("malformed selection-change payload: %w", err)
	}
	return p, nil
}
