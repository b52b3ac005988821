// Package persistence carries adapters shared by the storage backends.
package persistence

import (
	"context"
	"sync"

	"go.uber.org/zap"

	"storyboard/application/ports"
	"storyboard/domain/core/aggregates"
	"storyboard/domain/core/entities"
	"storyboard/domain/core/valueobjects"
)

// feedBuffer is the per-subscriber event backlog before the subscriber is
// dropped into the resynchronization path
const feedBuffer = 64

// FeedHub is an in-process change feed. Repositories publish committed
// writes into it; sessions and the websocket hub subscribe per board.
type FeedHub struct {
	mu      sync.Mutex
	subs    map[valueobjects.BoardID]map[int]chan ports.ChangeEvent
	nextSub int
	logger  *zap.Logger
}

// NewFeedHub creates an empty feed hub
func NewFeedHub(logger *zap.Logger) *FeedHub {
	return &FeedHub{
		subs:   make(map[valueobjects.BoardID]map[int]chan ports.ChangeEvent),
		logger: logger,
	}
}

// Subscribe implements ports.ChangeFeed
func (h *FeedHub) Subscribe(ctx context.Context, boardID valueobjects.BoardID) (<-chan ports.ChangeEvent, error) {
	h.mu.Lock()
	id := h.nextSub
	h.nextSub++
	ch := make(chan ports.ChangeEvent, feedBuffer)
	if h.subs[boardID] == nil {
		h.subs[boardID] = make(map[int]chan ports.ChangeEvent)
	}
	h.subs[boardID][id] = ch
	h.mu.Unlock()

	go func() {
		<-ctx.Done()
		h.drop(boardID, id)
	}()

	return ch, nil
}

// Publish fans a committed change out to the board's subscribers. Slow
// subscribers are dropped, not waited on.
func (h *FeedHub) Publish(ev ports.ChangeEvent) {
	h.mu.Lock()
	defer h.mu.Unlock()

	for id, ch := range h.subs[ev.BoardID] {
		select {
		case ch <- ev:
		default:
			h.logger.Warn("dropping slow change feed subscriber",
				zap.String("boardID", ev.BoardID.String()),
				zap.Int("subscriber", id),
			)
			close(ch)
			delete(h.subs[ev.BoardID], id)
		}
	}
}

func (h *FeedHub) drop(boardID valueobjects.BoardID, id int) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if ch, ok := h.subs[boardID][id]; ok {
		close(ch)
		delete(h.subs[boardID], id)
	}
}

// PublishingRepository decorates a board repository so every successful
// write is announced on the feed hub. The DynamoDB backend has no native
// push, so this is where its change feed comes from.
type PublishingRepository struct {
	inner ports.BoardRepository
	hub   *FeedHub
}

// NewPublishingRepository wraps inner with feed publication
func NewPublishingRepository(inner ports.BoardRepository, hub *FeedHub) *PublishingRepository {
	return &PublishingRepository{inner: inner, hub: hub}
}

// GetBoard implements ports.BoardRepository
func (r *PublishingRepository) GetBoard(ctx context.Context, id valueobjects.BoardID) (*aggregates.Board, error) {
	return r.inner.GetBoard(ctx, id)
}

// SaveBoard implements ports.BoardRepository. Board-level fields are not
// part of the change feed; sessions pick them up on resync.
func (r *PublishingRepository) SaveBoard(ctx context.Context, board *aggregates.Board) error {
	return r.inner.SaveBoard(ctx, board)
}

// SaveFrame implements ports.BoardRepository
func (r *PublishingRepository) SaveFrame(ctx context.Context, frame *entities.Frame) error {
	if err := r.inner.SaveFrame(ctx, frame); err != nil {
		return err
	}
	// Fresh frames are saved at version 1; anything above that has been
	// mutated since creation.
	op := ports.OpUpdate
	if frame.Version() <= 1 {
		op = ports.OpInsert
	}
	r.hub.Publish(ports.ChangeEvent{
		Op:      op,
		Entity:  ports.EntityFrame,
		BoardID: frame.BoardID(),
		FrameID: frame.ID(),
		Frame:   frame.Clone(),
	})
	return nil
}

// UpdateFramePosition implements ports.BoardRepository
func (r *PublishingRepository) UpdateFramePosition(ctx context.Context, boardID valueobjects.BoardID, frameID valueobjects.FrameID, position valueobjects.Position) error {
	if err := r.inner.UpdateFramePosition(ctx, boardID, frameID, position); err != nil {
		return err
	}
	frame, err := r.frameSnapshot(ctx, boardID, frameID)
	if err != nil || frame == nil {
		return nil
	}
	r.hub.Publish(ports.ChangeEvent{
		Op:      ports.OpUpdate,
		Entity:  ports.EntityFrame,
		BoardID: boardID,
		FrameID: frameID,
		Frame:   frame,
	})
	return nil
}

// DeleteFrame implements ports.BoardRepository. The cascade happens inside
// the backend; the feed carries the connection deletes first so consumers
// never hold a dangling connection.
func (r *PublishingRepository) DeleteFrame(ctx context.Context, boardID valueobjects.BoardID, frameID valueobjects.FrameID) error {
	incident := r.incidentConnections(ctx, boardID, frameID)

	if err := r.inner.DeleteFrame(ctx, boardID, frameID); err != nil {
		return err
	}
	for _, connID := range incident {
		r.hub.Publish(ports.ChangeEvent{
			Op:           ports.OpDelete,
			Entity:       ports.EntityConnection,
			BoardID:      boardID,
			ConnectionID: connID,
		})
	}
	r.hub.Publish(ports.ChangeEvent{
		Op:      ports.OpDelete,
		Entity:  ports.EntityFrame,
		BoardID: boardID,
		FrameID: frameID,
	})
	return nil
}

// SaveConnection implements ports.BoardRepository
func (r *PublishingRepository) SaveConnection(ctx context.Context, conn *entities.Connection) error {
	if err := r.inner.SaveConnection(ctx, conn); err != nil {
		return err
	}
	r.hub.Publish(ports.ChangeEvent{
		Op:           ports.OpInsert,
		Entity:       ports.EntityConnection,
		BoardID:      conn.BoardID(),
		ConnectionID: conn.ID(),
		Connection:   conn.Clone(),
	})
	return nil
}

// DeleteConnection implements ports.BoardRepository
func (r *PublishingRepository) DeleteConnection(ctx context.Context, boardID valueobjects.BoardID, connID valueobjects.ConnectionID) error {
	if err := r.inner.DeleteConnection(ctx, boardID, connID); err != nil {
		return err
	}
	r.hub.Publish(ports.ChangeEvent{
		Op:           ports.OpDelete,
		Entity:       ports.EntityConnection,
		BoardID:      boardID,
		ConnectionID: connID,
	})
	return nil
}

// frameSnapshot reads back a frame for feed payloads
func (r *PublishingRepository) frameSnapshot(ctx context.Context, boardID valueobjects.BoardID, frameID valueobjects.FrameID) (*entities.Frame, error) {
	board, err := r.inner.GetBoard(ctx, boardID)
	if err != nil {
		return nil, err
	}
	frame, ok := board.Frame(frameID)
	if !ok {
		return nil, nil
	}
	return frame.Clone(), nil
}

// incidentConnections lists connections touching a frame before a cascade
func (r *PublishingRepository) incidentConnections(ctx context.Context, boardID valueobjects.BoardID, frameID valueobjects.FrameID) []valueobjects.ConnectionID {
	board, err := r.inner.GetBoard(ctx, boardID)
	if err != nil {
		return nil
	}
	var ids []valueobjects.ConnectionID
	for _, conn := range board.Connections() {
		if conn.Touches(frameID) {
			ids = append(ids, conn.ID())
		}
	}
	return ids
}

var _ ports.BoardRepository = (*PublishingRepository)(nil)
var _ ports.ChangeFeed = (*FeedHub)(nil)
