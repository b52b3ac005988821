package websocket

import (
	"time"

	"storyboard/application/ports"
	"storyboard/domain/core/entities"
	"storyboard/domain/core/valueobjects"
	"storyboard/domain/events"
	pkgerrors "storyboard/pkg/errors"
)

// wireKind discriminates the envelope variants multiplexed over one socket
type wireKind string

const (
	wireEphemeral wireKind = "ephemeral"
	wireChange    wireKind = "change"
	wirePresence  wireKind = "presence"
)

// wireEnvelope is the single frame format on the relay socket. Ephemeral
// traffic flows both ways; change and presence frames are server to client
// only.
type wireEnvelope struct {
	Kind      wireKind                 `json:"kind"`
	Ephemeral *events.EphemeralMessage `json:"ephemeral,omitempty"`
	Change    *changeDTO               `json:"change,omitempty"`
	Presence  *presenceDTO             `json:"presence,omitempty"`
}

// frameDTO is the wire shape of a frame
type frameDTO struct {
	FrameID    string  `json:"frame_id"`
	BoardID    string  `json:"board_id"`
	X          float64 `json:"x"`
	Y          float64 `json:"y"`
	AssetRef   string  `json:"asset_ref,omitempty"`
	DurationMs int     `json:"duration_ms"`
	Status     string  `json:"status"`
	CreatedAt  string  `json:"created_at"`
	UpdatedAt  string  `json:"updated_at"`
	Version    int     `json:"version"`
}

// connectionDTO is the wire shape of a connection
type connectionDTO struct {
	ConnectionID string `json:"connection_id"`
	BoardID      string `json:"board_id"`
	FromFrameID  string `json:"from_frame_id"`
	ToFrameID    string `json:"to_frame_id"`
	CreatedAt    string `json:"created_at"`
}

// changeDTO is the wire shape of one committed mutation
type changeDTO struct {
	Op           string         `json:"op"`
	Entity       string         `json:"entity"`
	BoardID      string         `json:"board_id"`
	FrameID      string         `json:"frame_id,omitempty"`
	ConnectionID string         `json:"connection_id,omitempty"`
	Frame        *frameDTO      `json:"frame,omitempty"`
	Connection   *connectionDTO `json:"connection,omitempty"`
}

// presenceDTO is the wire shape of a roster update
type presenceDTO struct {
	ParticipantID string `json:"participant_id"`
	DisplayName   string `json:"display_name,omitempty"`
	AvatarRef     string `json:"avatar_ref,omitempty"`
	Online        bool   `json:"online"`
}

func encodeChange(ev ports.ChangeEvent) *changeDTO {
	dto := &changeDTO{
		Op:           string(ev.Op),
		Entity:       string(ev.Entity),
		BoardID:      ev.BoardID.String(),
		FrameID:      ev.FrameID.String(),
		ConnectionID: ev.ConnectionID.String(),
	}
	if ev.Frame != nil {
		dto.Frame = encodeFrame(ev.Frame)
	}
	if ev.Connection != nil {
		dto.Connection = encodeConnection(ev.Connection)
	}
	return dto
}

func encodeFrame(frame *entities.Frame) *frameDTO {
	return &frameDTO{
		FrameID:    frame.ID().String(),
		BoardID:    frame.BoardID().String(),
		X:          frame.Position().X(),
		Y:          frame.Position().Y(),
		AssetRef:   frame.AssetRef(),
		DurationMs: frame.Duration().Milliseconds(),
		Status:     string(frame.Status()),
		CreatedAt:  frame.CreatedAt().Format(time.RFC3339Nano),
		UpdatedAt:  frame.UpdatedAt().Format(time.RFC3339Nano),
		Version:    frame.Version(),
	}
}

func encodeConnection(conn *entities.Connection) *connectionDTO {
	return &connectionDTO{
		ConnectionID: conn.ID().String(),
		BoardID:      conn.BoardID().String(),
		FromFrameID:  conn.From().String(),
		ToFrameID:    conn.To().String(),
		CreatedAt:    conn.CreatedAt().Format(time.RFC3339Nano),
	}
}

func decodeChange(dto *changeDTO) (ports.ChangeEvent, error) {
	ev := ports.ChangeEvent{
		Op:           ports.ChangeOp(dto.Op),
		Entity:       ports.EntityKind(dto.Entity),
		BoardID:      valueobjects.BoardID(dto.BoardID),
		ConnectionID: valueobjects.ConnectionID(dto.ConnectionID),
	}
	if dto.FrameID != "" {
		frameID, err := valueobjects.NewFrameIDFromString(dto.FrameID)
		if err != nil {
			return ev, err
		}
		ev.FrameID = frameID
	}

	if dto.Frame != nil {
		frame, err := decodeFrame(dto.Frame)
		if err != nil {
			return ev, err
		}
		ev.Frame = frame
	}
	if dto.Connection != nil {
		conn, err := decodeConnection(dto.Connection)
		if err != nil {
			return ev, err
		}
		ev.Connection = conn
	}
	return ev, nil
}

func decodeFrame(dto *frameDTO) (*entities.Frame, error) {
	frameID, err := valueobjects.NewFrameIDFromString(dto.FrameID)
	if err != nil {
		return nil, err
	}
	position, err := valueobjects.NewPosition(dto.X, dto.Y)
	if err != nil {
		return nil, err
	}
	duration, err := valueobjects.NewFrameDuration(dto.DurationMs)
	if err != nil {
		return nil, err
	}
	createdAt, err := time.Parse(time.RFC3339Nano, dto.CreatedAt)
	if err != nil {
		return nil, pkgerrors.Wrap(err, "invalid frame created_at")
	}
	updatedAt, err := time.Parse(time.RFC3339Nano, dto.UpdatedAt)
	if err != nil {
		return nil, pkgerrors.Wrap(err, "invalid frame updated_at")
	}
	return entities.ReconstructFrame(
		frameID,
		valueobjects.BoardID(dto.BoardID),
		position,
		dto.AssetRef,
		duration,
		entities.FrameStatus(dto.Status),
		createdAt,
		updatedAt,
		dto.Version,
	)
}

func decodeConnection(dto *connectionDTO) (*entities.Connection, error) {
	from, err := valueobjects.NewFrameIDFromString(dto.FromFrameID)
	if err != nil {
		return nil, err
	}
	to, err := valueobjects.NewFrameIDFromString(dto.ToFrameID)
	if err != nil {
		return nil, err
	}
	createdAt, err := time.Parse(time.RFC3339Nano, dto.CreatedAt)
	if err != nil {
		return nil, pkgerrors.Wrap(err, "invalid connection created_at")
	}
	return entities.ReconstructConnection(
		valueobjects.ConnectionID(dto.ConnectionID),
		valueobjects.BoardID(dto.BoardID),
		from,
		to,
		createdAt,
	)
}
