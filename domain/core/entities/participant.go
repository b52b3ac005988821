package entities

import (
	"fmt"
	"hash/fnv"
	"time"

	"storyboard/domain/core/valueobjects"
	pkgerrors "storyboard/pkg/errors"
)

// ActivityState represents a participant's liveness on the board
type ActivityState string

const (
	ActivityActive ActivityState = "active"
	ActivityIdle   ActivityState = "idle"
)

// participantPalette is the set of avatar colors assigned to participants.
// Assignment is deterministic per participant id so every client renders the
// same color without coordination.
var participantPalette = []string{
	"#e06c75", "#61afef", "#98c379", "#c678dd",
	"#d19a66", "#56b6c2", "#be5046", "#528bff",
}

// Participant is an ephemeral session identity. It exists only while the
// realtime subscription is live and is never persisted.
type Participant struct {
	id          valueobjects.ParticipantID
	displayName string
	avatarRef   string
	color       string
	activity    ActivityState
	joinedAt    time.Time
	lastSeenAt  time.Time
}

// NewParticipant creates a participant joining a board session
func NewParticipant(id valueobjects.ParticipantID, displayName, avatarRef string) (*Participant, error) {
	if id.IsZero() {
		return nil, pkgerrors.NewValidationError("participant ID cannot be empty")
	}
	if displayName == "" {
		displayName = fmt.Sprintf("Guest %s", id.String()[:4])
	}

	now := time.Now()
	return &Participant{
		id:          id,
		displayName: displayName,
		avatarRef:   avatarRef,
		color:       colorFor(id),
		activity:    ActivityActive,
		joinedAt:    now,
		lastSeenAt:  now,
	}, nil
}

// ID returns the participant's identifier
func (p *Participant) ID() valueobjects.ParticipantID {
	return p.id
}

// DisplayName returns the participant's display name
func (p *Participant) DisplayName() string {
	return p.displayName
}

// AvatarRef returns the opaque avatar reference
func (p *Participant) AvatarRef() string {
	return p.avatarRef
}

// Color returns the participant's assigned color
func (p *Participant) Color() string {
	return p.color
}

// Activity returns the participant's activity state
func (p *Participant) Activity() ActivityState {
	return p.activity
}

// JoinedAt returns when the participant joined
func (p *Participant) JoinedAt() time.Time {
	return p.joinedAt
}

// LastSeenAt returns the time of the participant's last observed activity
func (p *Participant) LastSeenAt() time.Time {
	return p.lastSeenAt
}

// Touch records activity and returns the participant to the active state
func (p *Participant) Touch() {
	p.lastSeenAt = time.Now()
	p.activity = ActivityActive
}

// MarkIdle transitions the participant to idle after the inactivity window
func (p *Participant) MarkIdle() {
	p.activity = ActivityIdle
}

// colorFor deterministically picks a palette color for a participant
func colorFor(id valueobjects.ParticipantID) string {
	h := fnv.New32a()
	h.Write([]byte(id.String()))
	return participantPalette[int(h.Sum32())%len(participantPalette)]
}
