package cache

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"storyboard/application/services"
	"storyboard/domain/core/aggregates"
	"storyboard/domain/core/entities"
	"storyboard/domain/core/valueobjects"
	pkgerrors "storyboard/pkg/errors"
)

// countingRepo serves a board and counts GetBoard calls; err, when set,
// fails every fetch.
type countingRepo struct {
	mu    sync.Mutex
	board *aggregates.Board
	calls int
	err   error

	// block, when non-nil, holds every fetch until it is closed
	block chan struct{}
}

func (r *countingRepo) GetBoard(_ context.Context, _ valueobjects.BoardID) (*aggregates.Board, error) {
	r.mu.Lock()
	r.calls++
	block := r.block
	err := r.err
	board := r.board
	r.mu.Unlock()

	if block != nil {
		<-block
	}
	if err != nil {
		return nil, err
	}
	return board.Snapshot(), nil
}

func (r *countingRepo) callCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.calls
}

func (r *countingRepo) setErr(err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.err = err
}

func (r *countingRepo) SaveBoard(context.Context, *aggregates.Board) error { return nil }
func (r *countingRepo) SaveFrame(context.Context, *entities.Frame) error   { return nil }
func (r *countingRepo) UpdateFramePosition(context.Context, valueobjects.BoardID, valueobjects.FrameID, valueobjects.Position) error {
	return nil
}
func (r *countingRepo) DeleteFrame(context.Context, valueobjects.BoardID, valueobjects.FrameID) error {
	return nil
}
func (r *countingRepo) SaveConnection(context.Context, *entities.Connection) error { return nil }
func (r *countingRepo) DeleteConnection(context.Context, valueobjects.BoardID, valueobjects.ConnectionID) error {
	return nil
}

func newTestBoard(t *testing.T) *aggregates.Board {
	t.Helper()
	board, err := aggregates.NewBoard("cached")
	require.NoError(t, err)
	return board
}

func TestBoardCache_MissLoadsOnce(t *testing.T) {
	board := newTestBoard(t)
	repo := &countingRepo{board: board}
	c := NewBoardCache(repo, 5*time.Minute, zap.NewNop())

	got, stale, err := c.Get(context.Background(), board.ID())
	require.NoError(t, err)
	assert.False(t, stale)
	assert.Equal(t, board.ID(), got.ID())
	assert.Equal(t, 1, repo.callCount())

	// Fresh hit: answered from memory, no second load.
	_, stale, err = c.Get(context.Background(), board.ID())
	require.NoError(t, err)
	assert.False(t, stale)
	assert.Equal(t, 1, repo.callCount())
}

func TestBoardCache_StaleHitServesEntryAndRevalidates(t *testing.T) {
	board := newTestBoard(t)
	repo := &countingRepo{board: board}
	c := NewBoardCache(repo, 5*time.Minute, zap.NewNop())

	base := time.Now()
	c.now = func() time.Time { return base }
	_, _, err := c.Get(context.Background(), board.ID())
	require.NoError(t, err)

	// Jump past the TTL; the hit is answered immediately and flagged.
	c.now = func() time.Time { return base.Add(6 * time.Minute) }
	got, stale, err := c.Get(context.Background(), board.ID())
	require.NoError(t, err)
	assert.True(t, stale)
	assert.Equal(t, board.ID(), got.ID())

	// The background revalidation lands and the next hit is fresh again.
	require.Eventually(t, func() bool {
		return repo.callCount() == 2
	}, time.Second, 5*time.Millisecond)

	require.Eventually(t, func() bool {
		_, stale, err := c.Get(context.Background(), board.ID())
		return err == nil && !stale
	}, time.Second, 5*time.Millisecond)
}

func TestBoardCache_FailedRevalidationKeepsEntry(t *testing.T) {
	board := newTestBoard(t)
	repo := &countingRepo{board: board}
	c := NewBoardCache(repo, 5*time.Minute, zap.NewNop())

	base := time.Now()
	c.now = func() time.Time { return base }
	_, _, err := c.Get(context.Background(), board.ID())
	require.NoError(t, err)

	repo.setErr(pkgerrors.NewUnavailableError("storage"))
	c.now = func() time.Time { return base.Add(10 * time.Minute) }

	got, stale, err := c.Get(context.Background(), board.ID())
	require.NoError(t, err)
	assert.True(t, stale)
	require.NotNil(t, got)

	// Give the failed revalidation time to run; the entry survives it and
	// the next stale read carries the failure.
	require.Eventually(t, func() bool {
		return repo.callCount() >= 2
	}, time.Second, 5*time.Millisecond)

	require.Eventually(t, func() bool {
		got, stale, err := c.Get(context.Background(), board.ID())
		return got != nil && stale && pkgerrors.IsRevalidation(err)
	}, time.Second, 5*time.Millisecond)

	got, _, _ = c.Get(context.Background(), board.ID())
	assert.Equal(t, board.ID(), got.ID())

	// Storage recovers: a revalidation lands, the entry is fresh and the
	// recorded failure is gone.
	repo.setErr(nil)
	require.Eventually(t, func() bool {
		_, stale, err := c.Get(context.Background(), board.ID())
		return err == nil && !stale
	}, time.Second, 5*time.Millisecond)
}

func TestBoardCache_MissFailurePropagates(t *testing.T) {
	repo := &countingRepo{err: pkgerrors.NewUnavailableError("storage")}
	c := NewBoardCache(repo, 5*time.Minute, zap.NewNop())

	_, _, err := c.Get(context.Background(), valueobjects.NewBoardID())
	require.Error(t, err)
}

func TestBoardCache_ConcurrentMissesCollapse(t *testing.T) {
	board := newTestBoard(t)
	repo := &countingRepo{board: board, block: make(chan struct{})}
	c := NewBoardCache(repo, 5*time.Minute, zap.NewNop())

	const callers = 8
	var wg sync.WaitGroup
	errs := make([]error, callers)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, _, errs[i] = c.Get(context.Background(), board.ID())
		}(i)
	}

	// Wait until the first fetch is in flight and the rest have had time
	// to join it, then release.
	require.Eventually(t, func() bool {
		return repo.callCount() >= 1
	}, time.Second, time.Millisecond)
	time.Sleep(20 * time.Millisecond)
	close(repo.block)
	wg.Wait()

	for _, err := range errs {
		require.NoError(t, err)
	}
	assert.Equal(t, 1, repo.callCount(), "concurrent misses share one load")
}

func TestBoardCache_InvalidateForcesRevalidation(t *testing.T) {
	board := newTestBoard(t)
	repo := &countingRepo{board: board}
	c := NewBoardCache(repo, 5*time.Minute, zap.NewNop())

	_, _, err := c.Get(context.Background(), board.ID())
	require.NoError(t, err)

	c.Invalidate(board.ID())

	// The entry is still served, just stale.
	got, stale, err := c.Get(context.Background(), board.ID())
	require.NoError(t, err)
	assert.True(t, stale)
	assert.Equal(t, board.ID(), got.ID())

	require.Eventually(t, func() bool {
		return repo.callCount() == 2
	}, time.Second, 5*time.Millisecond)
}

func TestBoardCache_PutReplacesEntry(t *testing.T) {
	board := newTestBoard(t)
	repo := &countingRepo{board: board}
	c := NewBoardCache(repo, 5*time.Minute, zap.NewNop())

	replacement := board.Snapshot()
	require.NoError(t, replacement.Rename("renamed"))
	c.Put(board.ID(), replacement)

	got, stale, err := c.Get(context.Background(), board.ID())
	require.NoError(t, err)
	assert.False(t, stale)
	assert.Equal(t, "renamed", got.Name())
	assert.Zero(t, repo.callCount(), "a Put entry needs no load")
}

func TestBoardCache_GetReturnsDetachedSnapshot(t *testing.T) {
	board := newTestBoard(t)
	repo := &countingRepo{board: board}
	c := NewBoardCache(repo, 5*time.Minute, zap.NewNop())

	first, _, err := c.Get(context.Background(), board.ID())
	require.NoError(t, err)

	// Scribble over the returned board; the entry must not see it.
	pos, err := valueobjects.NewPosition(10, 20)
	require.NoError(t, err)
	frame, err := entities.NewFrame(board.ID(), pos, "asset://scribble")
	require.NoError(t, err)
	require.NoError(t, first.AddFrame(frame))
	require.NoError(t, first.Rename("scribbled"))

	second, stale, err := c.Get(context.Background(), board.ID())
	require.NoError(t, err)
	assert.False(t, stale)
	assert.Zero(t, second.FrameCount())
	assert.Equal(t, "cached", second.Name())
	assert.Equal(t, 1, repo.callCount(), "both reads come from the one load")
}

func TestBoardCache_PutKeepsOwnCopy(t *testing.T) {
	board := newTestBoard(t)
	repo := &countingRepo{board: board}
	c := NewBoardCache(repo, 5*time.Minute, zap.NewNop())

	live := board.Snapshot()
	c.Put(board.ID(), live)
	require.NoError(t, live.Rename("mutated after put"))

	got, _, err := c.Get(context.Background(), board.ID())
	require.NoError(t, err)
	assert.Equal(t, "cached", got.Name())
}

// A session builds its live store from a cache read. Mutations flowing
// through the store must never reach the cached entry, even while other
// readers pull the same board out of the cache.
func TestBoardCache_LiveStoreMutationsStayOutOfCache(t *testing.T) {
	board := newTestBoard(t)
	repo := &countingRepo{board: board}
	c := NewBoardCache(repo, 5*time.Minute, zap.NewNop())

	loaded, _, err := c.Get(context.Background(), board.ID())
	require.NoError(t, err)
	store := services.NewBoardStore(loaded, zap.NewNop())

	const mutations = 50
	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := 0; i < mutations; i++ {
			_ = store.Update(func(b *aggregates.Board) error {
				pos, err := valueobjects.NewPosition(float64(i), 0)
				if err != nil {
					return err
				}
				frame, err := entities.NewFrame(b.ID(), pos, "")
				if err != nil {
					return err
				}
				return b.AddFrame(frame)
			})
		}
	}()

	for i := 0; i < mutations; i++ {
		got, _, err := c.Get(context.Background(), board.ID())
		require.NoError(t, err)
		require.Zero(t, got.FrameCount())
	}
	<-done

	got, _, err := c.Get(context.Background(), board.ID())
	require.NoError(t, err)
	assert.Zero(t, got.FrameCount())
	assert.Equal(t, mutations, store.Snapshot().FrameCount())
}
