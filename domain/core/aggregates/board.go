package aggregates

import (
	"time"

	"storyboard/domain/config"
	"storyboard/domain/core/entities"
	"storyboard/domain/core/valueobjects"
	"storyboard/domain/events"
	pkgerrors "storyboard/pkg/errors"
)

// SharePolicy controls what collaborators may do with a board
type SharePolicy string

const (
	ShareNone SharePolicy = "none"
	ShareView SharePolicy = "view"
	ShareEdit SharePolicy = "edit"
)

// Board is the aggregate root for one collaborative storyboard. It is the
// single consistency boundary for frames and connections: every connection's
// endpoints must reference frames currently on the board, and removing a
// frame cascades to its incident connections in the same mutation.
//
// Connections are kept in insertion order; sequence derivation depends on
// that order for deterministic tie-breaking.
type Board struct {
	id          valueobjects.BoardID
	name        string
	sharePolicy SharePolicy
	frames      map[valueobjects.FrameID]*entities.Frame
	frameOrder  []valueobjects.FrameID
	connections []*entities.Connection
	connsByID   map[valueobjects.ConnectionID]*entities.Connection
	cfg         *config.DomainConfig
	createdAt   time.Time
	updatedAt   time.Time
	version     int

	// Bumped on every connection-set change; sessions recompute the derived
	// sequence when this moves.
	topologyVersion int

	events []events.DomainEvent
}

// NewBoard creates a new board aggregate
func NewBoard(name string) (*Board, error) {
	return NewBoardWithConfig(name, config.DefaultDomainConfig())
}

// NewBoardWithConfig creates a new board aggregate with configuration
func NewBoardWithConfig(name string, cfg *config.DomainConfig) (*Board, error) {
	if cfg == nil {
		cfg = config.DefaultDomainConfig()
	}
	if name == "" {
		name = cfg.DefaultBoardName
	}

	now := time.Now()
	board := &Board{
		id:          valueobjects.NewBoardID(),
		name:        name,
		sharePolicy: ShareNone,
		frames:      make(map[valueobjects.FrameID]*entities.Frame),
		frameOrder:  []valueobjects.FrameID{},
		connections: []*entities.Connection{},
		connsByID:   make(map[valueobjects.ConnectionID]*entities.Connection),
		cfg:         cfg,
		createdAt:   now,
		updatedAt:   now,
		version:     1,
		events:      []events.DomainEvent{},
	}

	board.addEvent(events.NewBoardCreated(board.id, name, now))

	return board, nil
}

// ReconstructBoard recreates a board from stored data
func ReconstructBoard(
	id valueobjects.BoardID,
	name string,
	sharePolicy SharePolicy,
	createdAt, updatedAt time.Time,
) (*Board, error) {
	if id.IsZero() {
		return nil, pkgerrors.NewValidationError("board ID required for reconstruction")
	}
	if name == "" {
		return nil, pkgerrors.NewValidationError("board name required for reconstruction")
	}

	return &Board{
		id:          id,
		name:        name,
		sharePolicy: sharePolicy,
		frames:      make(map[valueobjects.FrameID]*entities.Frame),
		frameOrder:  []valueobjects.FrameID{},
		connections: []*entities.Connection{},
		connsByID:   make(map[valueobjects.ConnectionID]*entities.Connection),
		cfg:         config.DefaultDomainConfig(),
		createdAt:   createdAt,
		updatedAt:   updatedAt,
		version:     1,
		events:      []events.DomainEvent{},
	}, nil
}

// ID returns the board's unique identifier
func (b *Board) ID() valueobjects.BoardID {
	return b.id
}

// Name returns the board's display name
func (b *Board) Name() string {
	return b.name
}

// Rename changes the board's display name
func (b *Board) Rename(name string) error {
	if name == "" {
		return pkgerrors.NewValidationError("board name cannot be empty")
	}
	b.name = name
	b.touch()
	return nil
}

// SharePolicy returns the board's sharing policy
func (b *Board) SharePolicy() SharePolicy {
	return b.sharePolicy
}

// SetSharePolicy changes the sharing policy
func (b *Board) SetSharePolicy(policy SharePolicy) error {
	switch policy {
	case ShareNone, ShareView, ShareEdit:
		b.sharePolicy = policy
		b.touch()
		return nil
	default:
		return pkgerrors.NewValidationError("unknown share policy")
	}
}

// CreatedAt returns when the board was created
func (b *Board) CreatedAt() time.Time {
	return b.createdAt
}

// UpdatedAt returns when the board was last updated
func (b *Board) UpdatedAt() time.Time {
	return b.updatedAt
}

// Version returns the aggregate version
func (b *Board) Version() int {
	return b.version
}

// TopologyVersion returns a counter that moves on every connection-set
// change. Sequence derivation is recomputed when it does.
func (b *Board) TopologyVersion() int {
	return b.topologyVersion
}

// Frame returns the frame with the given id
func (b *Board) Frame(id valueobjects.FrameID) (*entities.Frame, bool) {
	f, ok := b.frames[id]
	return f, ok
}

// HasFrame checks whether a frame exists on the board
func (b *Board) HasFrame(id valueobjects.FrameID) bool {
	_, ok := b.frames[id]
	return ok
}

// Frames returns all frames in insertion order
func (b *Board) Frames() []*entities.Frame {
	out := make([]*entities.Frame, 0, len(b.frameOrder))
	for _, id := range b.frameOrder {
		if f, ok := b.frames[id]; ok {
			out = append(out, f)
		}
	}
	return out
}

// FrameCount returns the number of frames on the board
func (b *Board) FrameCount() int {
	return len(b.frames)
}

// AddFrame places a frame on the board
func (b *Board) AddFrame(frame *entities.Frame) error {
	if frame == nil {
		return pkgerrors.NewValidationError("frame cannot be nil")
	}
	if _, exists := b.frames[frame.ID()]; exists {
		return pkgerrors.NewConflictError("frame already exists on board")
	}
	if len(b.frames) >= b.cfg.MaxFramesPerBoard {
		return pkgerrors.NewValidationError("maximum frames reached")
	}

	b.frames[frame.ID()] = frame
	b.frameOrder = append(b.frameOrder, frame.ID())
	b.touch()

	b.addEvent(events.NewFrameAdded(b.id, frame.ID(), b.updatedAt))

	return nil
}

// RemoveFrame removes a frame and cascades to its incident connections.
// It returns the ids of the connections removed by the cascade.
func (b *Board) RemoveFrame(id valueobjects.FrameID) ([]valueobjects.ConnectionID, error) {
	if _, exists := b.frames[id]; !exists {
		return nil, pkgerrors.NewNotFoundError("frame")
	}

	var removed []valueobjects.ConnectionID
	kept := b.connections[:0]
	for _, conn := range b.connections {
		if conn.Touches(id) {
			removed = append(removed, conn.ID())
			delete(b.connsByID, conn.ID())
		} else {
			kept = append(kept, conn)
		}
	}
	b.connections = kept

	delete(b.frames, id)
	for i, fid := range b.frameOrder {
		if fid.Equals(id) {
			b.frameOrder = append(b.frameOrder[:i], b.frameOrder[i+1:]...)
			break
		}
	}

	if len(removed) > 0 {
		b.topologyVersion++
	}
	b.touch()

	b.addEvent(events.NewFrameRemoved(b.id, id, removed, b.updatedAt))

	return removed, nil
}

// MoveFrame sets a frame's persisted position
func (b *Board) MoveFrame(id valueobjects.FrameID, position valueobjects.Position) error {
	frame, exists := b.frames[id]
	if !exists {
		return pkgerrors.NewNotFoundError("frame")
	}

	if err := frame.MoveTo(position); err != nil {
		return err
	}
	b.touch()

	return nil
}

// Connection returns the connection with the given id
func (b *Board) Connection(id valueobjects.ConnectionID) (*entities.Connection, bool) {
	c, ok := b.connsByID[id]
	return c, ok
}

// Connections returns all connections in insertion order
func (b *Board) Connections() []*entities.Connection {
	out := make([]*entities.Connection, len(b.connections))
	copy(out, b.connections)
	return out
}

// ConnectionCount returns the number of connections on the board
func (b *Board) ConnectionCount() int {
	return len(b.connections)
}

// Connect creates a directed connection between two frames. Branching is
// allowed; so are self-loops and cycles when the configuration permits them.
func (b *Board) Connect(from, to valueobjects.FrameID) (*entities.Connection, error) {
	if !b.HasFrame(from) || !b.HasFrame(to) {
		return nil, pkgerrors.NewValidationError("both endpoints must exist on the board")
	}
	if from.Equals(to) && !b.cfg.AllowSelfConnections {
		return nil, pkgerrors.NewValidationError("self-connections are disabled")
	}
	if !b.cfg.AllowDuplicateConnections && b.HasConnectionBetween(from, to) {
		return nil, pkgerrors.NewConflictError("connection already exists")
	}
	if len(b.connections) >= b.cfg.MaxConnectionsPerBoard {
		return nil, pkgerrors.NewValidationError("maximum connections reached")
	}

	conn, err := entities.NewConnection(b.id, from, to)
	if err != nil {
		return nil, err
	}

	b.connections = append(b.connections, conn)
	b.connsByID[conn.ID()] = conn
	b.topologyVersion++
	b.touch()

	b.addEvent(events.NewFramesConnected(b.id, conn.ID(), from, to, b.updatedAt))

	return conn, nil
}

// AddConnection attaches an already-constructed connection, used when
// merging remote feed events. Duplicate ids are a conflict for the caller
// to treat as already-applied.
func (b *Board) AddConnection(conn *entities.Connection) error {
	if conn == nil {
		return pkgerrors.NewValidationError("connection cannot be nil")
	}
	if _, exists := b.connsByID[conn.ID()]; exists {
		return pkgerrors.NewConflictError("connection already exists")
	}
	if !b.HasFrame(conn.From()) || !b.HasFrame(conn.To()) {
		return pkgerrors.NewValidationError("both endpoints must exist on the board")
	}

	b.connections = append(b.connections, conn)
	b.connsByID[conn.ID()] = conn
	b.topologyVersion++
	b.touch()

	return nil
}

// RemoveConnection deletes a connection by id
func (b *Board) RemoveConnection(id valueobjects.ConnectionID) error {
	if _, exists := b.connsByID[id]; !exists {
		return pkgerrors.NewNotFoundError("connection")
	}

	delete(b.connsByID, id)
	for i, conn := range b.connections {
		if conn.ID() == id {
			b.connections = append(b.connections[:i], b.connections[i+1:]...)
			break
		}
	}
	b.topologyVersion++
	b.touch()

	b.addEvent(events.NewFramesDisconnected(b.id, id, b.updatedAt))

	return nil
}

// HasConnectionBetween checks for an existing connection from one frame to
// another in that direction
func (b *Board) HasConnectionBetween(from, to valueobjects.FrameID) bool {
	for _, conn := range b.connections {
		if conn.From().Equals(from) && conn.To().Equals(to) {
			return true
		}
	}
	return false
}

// Snapshot returns a deep copy of the board with no pending events, safe to
// hand to the cache or across goroutines.
func (b *Board) Snapshot() *Board {
	snap := &Board{
		id:              b.id,
		name:            b.name,
		sharePolicy:     b.sharePolicy,
		frames:          make(map[valueobjects.FrameID]*entities.Frame, len(b.frames)),
		frameOrder:      append([]valueobjects.FrameID{}, b.frameOrder...),
		connections:     make([]*entities.Connection, 0, len(b.connections)),
		connsByID:       make(map[valueobjects.ConnectionID]*entities.Connection, len(b.connsByID)),
		cfg:             b.cfg,
		createdAt:       b.createdAt,
		updatedAt:       b.updatedAt,
		version:         b.version,
		topologyVersion: b.topologyVersion,
		events:          []events.DomainEvent{},
	}

	for id, frame := range b.frames {
		snap.frames[id] = frame.Clone()
	}
	for _, conn := range b.connections {
		clone := conn.Clone()
		snap.connections = append(snap.connections, clone)
		snap.connsByID[clone.ID()] = clone
	}

	return snap
}

// GetUncommittedEvents returns all uncommitted domain events
func (b *Board) GetUncommittedEvents() []events.DomainEvent {
	return b.events
}

// MarkEventsAsCommitted clears the uncommitted events
func (b *Board) MarkEventsAsCommitted() {
	b.events = []events.DomainEvent{}
}

func (b *Board) touch() {
	b.updatedAt = time.Now()
	b.version++
}

// addEvent adds a domain event to the uncommitted list
func (b *Board) addEvent(event events.DomainEvent) {
	b.events = append(b.events, event)
}
