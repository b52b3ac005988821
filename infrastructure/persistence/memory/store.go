// Package memory implements board storage and the change feed in process.
// It backs local development and tests, and the relay server's hub publishes
// through it so every subscribed session sees committed writes.
package memory

import (
	"context"
	"sync"

	"go.uber.org/zap"

	"storyboard/application/ports"
	"storyboard/domain/core/aggregates"
	"storyboard/domain/core/entities"
	"storyboard/domain/core/valueobjects"
	pkgerrors "storyboard/pkg/errors"
)

// subscriberBuffer is the per-subscriber event backlog. A subscriber that
// falls this far behind is dropped, which forces it through the full
// resynchronization path.
const subscriberBuffer = 64

// Store holds boards in memory and fans committed writes out to change feed
// subscribers. It implements both ports.BoardRepository and ports.ChangeFeed.
type Store struct {
	mu      sync.RWMutex
	boards  map[valueobjects.BoardID]*aggregates.Board
	subs    map[valueobjects.BoardID]map[int]chan ports.ChangeEvent
	nextSub int
	logger  *zap.Logger
}

// NewStore creates an empty in-memory store
func NewStore(logger *zap.Logger) *Store {
	return &Store{
		boards: make(map[valueobjects.BoardID]*aggregates.Board),
		subs:   make(map[valueobjects.BoardID]map[int]chan ports.ChangeEvent),
		logger: logger,
	}
}

// GetBoard implements ports.BoardRepository
func (s *Store) GetBoard(ctx context.Context, id valueobjects.BoardID) (*aggregates.Board, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	board, ok := s.boards[id]
	if !ok {
		return nil, pkgerrors.NewNotFoundError("board")
	}
	return board.Snapshot(), nil
}

// SaveBoard implements ports.BoardRepository. Creates the board when absent.
func (s *Store) SaveBoard(ctx context.Context, board *aggregates.Board) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	existing, ok := s.boards[board.ID()]
	if !ok {
		snap := board.Snapshot()
		snap.MarkEventsAsCommitted()
		s.boards[board.ID()] = snap
		return nil
	}

	if existing.Name() != board.Name() {
		if err := existing.Rename(board.Name()); err != nil {
			return err
		}
	}
	if existing.SharePolicy() != board.SharePolicy() {
		if err := existing.SetSharePolicy(board.SharePolicy()); err != nil {
			return err
		}
	}
	existing.MarkEventsAsCommitted()
	return nil
}

// SaveFrame implements ports.BoardRepository
func (s *Store) SaveFrame(ctx context.Context, frame *entities.Frame) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	board, ok := s.boards[frame.BoardID()]
	if !ok {
		return pkgerrors.NewNotFoundError("board")
	}

	op := ports.OpUpdate
	existing, has := board.Frame(frame.ID())
	if !has {
		if err := board.AddFrame(frame.Clone()); err != nil {
			return err
		}
		op = ports.OpInsert
	} else {
		existing.ApplyRemote(frame, false)
	}
	board.MarkEventsAsCommitted()

	s.publishLocked(frame.BoardID(), ports.ChangeEvent{
		Op:      op,
		Entity:  ports.EntityFrame,
		BoardID: frame.BoardID(),
		FrameID: frame.ID(),
		Frame:   frame.Clone(),
	})
	return nil
}

// UpdateFramePosition implements ports.BoardRepository, last-writer-wins
func (s *Store) UpdateFramePosition(ctx context.Context, boardID valueobjects.BoardID, frameID valueobjects.FrameID, position valueobjects.Position) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	board, ok := s.boards[boardID]
	if !ok {
		return pkgerrors.NewNotFoundError("board")
	}
	if err := board.MoveFrame(frameID, position); err != nil {
		return err
	}
	board.MarkEventsAsCommitted()

	frame, _ := board.Frame(frameID)
	s.publishLocked(boardID, ports.ChangeEvent{
		Op:      ports.OpUpdate,
		Entity:  ports.EntityFrame,
		BoardID: boardID,
		FrameID: frameID,
		Frame:   frame.Clone(),
	})
	return nil
}

// DeleteFrame implements ports.BoardRepository. Incident connections cascade
// and each removal goes out as its own feed event.
func (s *Store) DeleteFrame(ctx context.Context, boardID valueobjects.BoardID, frameID valueobjects.FrameID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	board, ok := s.boards[boardID]
	if !ok {
		return pkgerrors.NewNotFoundError("board")
	}
	removed, err := board.RemoveFrame(frameID)
	if err != nil {
		return err
	}
	board.MarkEventsAsCommitted()

	for _, connID := range removed {
		s.publishLocked(boardID, ports.ChangeEvent{
			Op:           ports.OpDelete,
			Entity:       ports.EntityConnection,
			BoardID:      boardID,
			ConnectionID: connID,
		})
	}
	s.publishLocked(boardID, ports.ChangeEvent{
		Op:      ports.OpDelete,
		Entity:  ports.EntityFrame,
		BoardID: boardID,
		FrameID: frameID,
	})
	return nil
}

// SaveConnection implements ports.BoardRepository
func (s *Store) SaveConnection(ctx context.Context, conn *entities.Connection) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	board, ok := s.boards[conn.BoardID()]
	if !ok {
		return pkgerrors.NewNotFoundError("board")
	}
	if _, has := board.Connection(conn.ID()); !has {
		if err := board.AddConnection(conn.Clone()); err != nil {
			return err
		}
	}
	board.MarkEventsAsCommitted()

	s.publishLocked(conn.BoardID(), ports.ChangeEvent{
		Op:           ports.OpInsert,
		Entity:       ports.EntityConnection,
		BoardID:      conn.BoardID(),
		ConnectionID: conn.ID(),
		Connection:   conn.Clone(),
	})
	return nil
}

// DeleteConnection implements ports.BoardRepository
func (s *Store) DeleteConnection(ctx context.Context, boardID valueobjects.BoardID, connID valueobjects.ConnectionID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	board, ok := s.boards[boardID]
	if !ok {
		return pkgerrors.NewNotFoundError("board")
	}
	if err := board.RemoveConnection(connID); err != nil {
		if pkgerrors.IsNotFound(err) {
			return nil
		}
		return err
	}
	board.MarkEventsAsCommitted()

	s.publishLocked(boardID, ports.ChangeEvent{
		Op:           ports.OpDelete,
		Entity:       ports.EntityConnection,
		BoardID:      boardID,
		ConnectionID: connID,
	})
	return nil
}

// Subscribe implements ports.ChangeFeed
func (s *Store) Subscribe(ctx context.Context, boardID valueobjects.BoardID) (<-chan ports.ChangeEvent, error) {
	s.mu.Lock()
	id := s.nextSub
	s.nextSub++
	ch := make(chan ports.ChangeEvent, subscriberBuffer)
	if s.subs[boardID] == nil {
		s.subs[boardID] = make(map[int]chan ports.ChangeEvent)
	}
	s.subs[boardID][id] = ch
	s.mu.Unlock()

	go func() {
		<-ctx.Done()
		s.dropSubscriber(boardID, id)
	}()

	return ch, nil
}

// DropSubscriptions closes every feed channel for a board. Used by tests and
// by the relay hub when a transport connection dies.
func (s *Store) DropSubscriptions(boardID valueobjects.BoardID) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for id, ch := range s.subs[boardID] {
		close(ch)
		delete(s.subs[boardID], id)
	}
}

// publishLocked fans an event out to the board's subscribers. A subscriber
// whose buffer is full is dropped rather than blocking the writer.
func (s *Store) publishLocked(boardID valueobjects.BoardID, ev ports.ChangeEvent) {
	for id, ch := range s.subs[boardID] {
		select {
		case ch <- ev:
		default:
			s.logger.Warn("dropping slow change feed subscriber",
				zap.String("boardID", boardID.String()),
				zap.Int("subscriber", id),
			)
			close(ch)
			delete(s.subs[boardID], id)
		}
	}
}

func (s *Store) dropSubscriber(boardID valueobjects.BoardID, id int) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if ch, ok := s.subs[boardID][id]; ok {
		close(ch)
		delete(s.subs[boardID], id)
	}
}
