// Package cache provides the in-memory stale-while-revalidate cache for
// board snapshots.
package cache

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"storyboard/application/ports"
	"storyboard/domain/core/aggregates"
	"storyboard/domain/core/valueobjects"
	pkgerrors "storyboard/pkg/errors"
)

// entry is one cached snapshot with its fetch timestamp and the outcome of
// the most recent background revalidation
type entry struct {
	board         *aggregates.Board
	fetchedAt     time.Time
	revalidateErr error
}

// BoardCache caches board snapshots with stale-while-revalidate semantics.
// A hit is always answered from memory; past the TTL the caller still gets
// the held snapshot, flagged stale, while a background fetch refreshes the
// entry. Concurrent fetches for the same board collapse into one request,
// and a failed refresh keeps the stale entry so the board stays usable
// through storage outages.
type BoardCache struct {
	repo ports.BoardRepository
	ttl  time.Duration

	mu      sync.RWMutex
	entries map[valueobjects.BoardID]*entry

	group  singleflight.Group
	logger *zap.Logger

	// now is swappable for tests
	now func() time.Time
}

// NewBoardCache creates a cache that loads through the given repository
func NewBoardCache(repo ports.BoardRepository, ttl time.Duration, logger *zap.Logger) *BoardCache {
	return &BoardCache{
		repo:    repo,
		ttl:     ttl,
		entries: make(map[valueobjects.BoardID]*entry),
		logger:  logger,
		now:     time.Now,
	}
}

// Get implements ports.SnapshotCache. The bool result reports staleness.
// The returned board is a snapshot detached from the cached entry, so
// callers may mutate it freely. A stale entry whose last background
// revalidation failed is still returned, together with that revalidation
// error.
func (c *BoardCache) Get(ctx context.Context, boardID valueobjects.BoardID) (*aggregates.Board, bool, error) {
	c.mu.RLock()
	e, ok := c.entries[boardID]
	var (
		board   *aggregates.Board
		stale   bool
		lastErr error
	)
	if ok {
		board = e.board.Snapshot()
		stale = c.now().Sub(e.fetchedAt) > c.ttl
		lastErr = e.revalidateErr
	}
	c.mu.RUnlock()

	if !ok {
		board, err := c.fetch(ctx, boardID)
		if err != nil {
			return nil, false, err
		}
		return board, false, nil
	}

	if stale {
		go c.revalidate(boardID)
	}
	return board, stale, lastErr
}

// Put implements ports.SnapshotCache. The entry keeps its own snapshot, so
// later mutations of the given board never reach cache readers.
func (c *BoardCache) Put(boardID valueobjects.BoardID, board *aggregates.Board) {
	snapshot := board.Snapshot()
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[boardID] = &entry{board: snapshot, fetchedAt: c.now()}
}

// Invalidate implements ports.SnapshotCache. The entry is kept but
// backdated past the TTL, so the next Get serves it stale and revalidates.
func (c *BoardCache) Invalidate(boardID valueobjects.BoardID) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if e, ok := c.entries[boardID]; ok {
		e.fetchedAt = time.Time{}
	}
}

// fetch loads a board through singleflight and stores the result. Callers
// that shared one flight each get their own snapshot of it.
func (c *BoardCache) fetch(ctx context.Context, boardID valueobjects.BoardID) (*aggregates.Board, error) {
	v, err, _ := c.group.Do(boardID.String(), func() (interface{}, error) {
		board, err := c.repo.GetBoard(ctx, boardID)
		if err != nil {
			return nil, err
		}
		c.Put(boardID, board)
		return board, nil
	})
	if err != nil {
		return nil, pkgerrors.Wrap(err, "failed to fetch board snapshot")
	}
	return v.(*aggregates.Board).Snapshot(), nil
}

// revalidate refreshes an entry in the background. Failure keeps the stale
// entry in place and is recorded on it, so the next Get carries the error
// alongside the stale snapshot. A later successful refresh replaces the
// entry and clears it.
func (c *BoardCache) revalidate(boardID valueobjects.BoardID) {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if _, err := c.fetch(ctx, boardID); err != nil {
		appErr := pkgerrors.NewRevalidationError(boardID.String(), err)
		c.mu.Lock()
		if e, ok := c.entries[boardID]; ok {
			e.revalidateErr = appErr
		}
		c.mu.Unlock()
		c.logger.Warn("board snapshot revalidation failed, serving stale entry",
			zap.String("boardID", boardID.String()),
			zap.Error(appErr),
		)
	}
}
