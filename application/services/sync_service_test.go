package services

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"storyboard/application/ports"
	"storyboard/domain/core/aggregates"
	"storyboard/domain/core/entities"
	"storyboard/domain/core/valueobjects"
	pkgerrors "storyboard/pkg/errors"
)

// fakeFeed hands out channels under test control and counts subscriptions.
type fakeFeed struct {
	mu       sync.Mutex
	channels []chan ports.ChangeEvent
}

func (f *fakeFeed) Subscribe(_ context.Context, _ valueobjects.BoardID) (<-chan ports.ChangeEvent, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	ch := make(chan ports.ChangeEvent, 16)
	f.channels = append(f.channels, ch)
	return ch, nil
}

func (f *fakeFeed) current() chan ports.ChangeEvent {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.channels[len(f.channels)-1]
}

func (f *fakeFeed) subscribeCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.channels)
}

// fakeBoardRepo serves a swappable board snapshot for resync.
type fakeBoardRepo struct {
	mu       sync.Mutex
	board    *aggregates.Board
	getCalls int
	err      error
}

func (r *fakeBoardRepo) GetBoard(_ context.Context, _ valueobjects.BoardID) (*aggregates.Board, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.getCalls++
	if r.err != nil {
		return nil, r.err
	}
	return r.board.Snapshot(), nil
}

func (r *fakeBoardRepo) SaveBoard(context.Context, *aggregates.Board) error { return nil }
func (r *fakeBoardRepo) SaveFrame(context.Context, *entities.Frame) error   { return nil }
func (r *fakeBoardRepo) UpdateFramePosition(context.Context, valueobjects.BoardID, valueobjects.FrameID, valueobjects.Position) error {
	return nil
}
func (r *fakeBoardRepo) DeleteFrame(context.Context, valueobjects.BoardID, valueobjects.FrameID) error {
	return nil
}
func (r *fakeBoardRepo) SaveConnection(context.Context, *entities.Connection) error { return nil }
func (r *fakeBoardRepo) DeleteConnection(context.Context, valueobjects.BoardID, valueobjects.ConnectionID) error {
	return nil
}

// fakeSnapshotCache records invalidations and puts.
type fakeSnapshotCache struct {
	mu          sync.Mutex
	invalidated int
	puts        int
}

func (c *fakeSnapshotCache) Get(context.Context, valueobjects.BoardID) (*aggregates.Board, bool, error) {
	return nil, false, pkgerrors.NewNotFoundError("board")
}

func (c *fakeSnapshotCache) Put(valueobjects.BoardID, *aggregates.Board) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.puts++
}

func (c *fakeSnapshotCache) Invalidate(valueobjects.BoardID) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.invalidated++
}

func (c *fakeSnapshotCache) counts() (int, int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.puts, c.invalidated
}

// staticGuard reports a fixed drag set.
type staticGuard struct {
	dragging map[valueobjects.FrameID]bool
}

func (g *staticGuard) IsDragging(frameID valueobjects.FrameID) bool {
	return g.dragging[frameID]
}

func seedBoard(t *testing.T) (*aggregates.Board, *entities.Frame) {
	t.Helper()
	board, err := aggregates.NewBoard("sync")
	require.NoError(t, err)
	pos, err := valueobjects.NewPosition(100, 100)
	require.NoError(t, err)
	frame, err := entities.NewFrame(board.ID(), pos, "asset://one")
	require.NoError(t, err)
	require.NoError(t, board.AddFrame(frame))
	return board, frame
}

// remoteCopy builds the same frame as the feed would carry it, at the given
// version with the given position and asset.
func remoteCopy(t *testing.T, frame *entities.Frame, version int, x, y float64, assetRef string) *entities.Frame {
	t.Helper()
	pos, err := valueobjects.NewPosition(x, y)
	require.NoError(t, err)
	remote, err := entities.ReconstructFrame(
		frame.ID(), frame.BoardID(), pos, assetRef,
		frame.Duration(), frame.Status(),
		frame.CreatedAt(), time.Now(), version,
	)
	require.NoError(t, err)
	return remote
}

func TestSyncService_ApplyInsertsNewFrame(t *testing.T) {
	board, _ := seedBoard(t)
	store := NewBoardStore(board, zap.NewNop())
	cache := &fakeSnapshotCache{}
	svc := NewSyncService(board.ID(), store, &fakeBoardRepo{}, &fakeFeed{}, nil, cache, zap.NewNop())

	pos, err := valueobjects.NewPosition(5, 5)
	require.NoError(t, err)
	incoming, err := entities.NewFrame(board.ID(), pos, "asset://two")
	require.NoError(t, err)

	svc.Apply(ports.ChangeEvent{
		Op:      ports.OpInsert,
		Entity:  ports.EntityFrame,
		BoardID: board.ID(),
		FrameID: incoming.ID(),
		Frame:   incoming,
	})

	store.View(func(b *aggregates.Board) {
		assert.True(t, b.HasFrame(incoming.ID()))
		assert.Equal(t, 2, b.FrameCount())
	})
	_, invalidated := cache.counts()
	assert.Equal(t, 1, invalidated)
}

func TestSyncService_ApplySkipsStaleUpdate(t *testing.T) {
	board, frame := seedBoard(t)
	store := NewBoardStore(board, zap.NewNop())
	svc := NewSyncService(board.ID(), store, &fakeBoardRepo{}, &fakeFeed{}, nil, nil, zap.NewNop())

	// Same version as local: the feed echoed our own optimistic apply.
	stale := remoteCopy(t, frame, frame.Version(), 999, 999, "asset://stale")
	svc.Apply(ports.ChangeEvent{
		Op:      ports.OpUpdate,
		Entity:  ports.EntityFrame,
		BoardID: board.ID(),
		FrameID: frame.ID(),
		Frame:   stale,
	})

	store.View(func(b *aggregates.Board) {
		got, ok := b.Frame(frame.ID())
		require.True(t, ok)
		assert.Equal(t, 100.0, got.Position().X())
		assert.Equal(t, "asset://one", got.AssetRef())
	})
}

func TestSyncService_ApplyMergesNewerUpdate(t *testing.T) {
	board, frame := seedBoard(t)
	store := NewBoardStore(board, zap.NewNop())
	svc := NewSyncService(board.ID(), store, &fakeBoardRepo{}, &fakeFeed{}, nil, nil, zap.NewNop())

	newer := remoteCopy(t, frame, frame.Version()+1, 250, 300, "asset://newer")
	svc.Apply(ports.ChangeEvent{
		Op:      ports.OpUpdate,
		Entity:  ports.EntityFrame,
		BoardID: board.ID(),
		FrameID: frame.ID(),
		Frame:   newer,
	})

	store.View(func(b *aggregates.Board) {
		got, ok := b.Frame(frame.ID())
		require.True(t, ok)
		assert.Equal(t, 250.0, got.Position().X())
		assert.Equal(t, "asset://newer", got.AssetRef())
	})
}

func TestSyncService_DragProtectsPositionNotContent(t *testing.T) {
	board, frame := seedBoard(t)
	store := NewBoardStore(board, zap.NewNop())
	guard := &staticGuard{dragging: map[valueobjects.FrameID]bool{frame.ID(): true}}
	svc := NewSyncService(board.ID(), store, &fakeBoardRepo{}, &fakeFeed{}, guard, nil, zap.NewNop())

	newer := remoteCopy(t, frame, frame.Version()+1, 777, 777, "asset://edited")
	svc.Apply(ports.ChangeEvent{
		Op:      ports.OpUpdate,
		Entity:  ports.EntityFrame,
		BoardID: board.ID(),
		FrameID: frame.ID(),
		Frame:   newer,
	})

	store.View(func(b *aggregates.Board) {
		got, ok := b.Frame(frame.ID())
		require.True(t, ok)
		// The remote position would snap the frame out from under the
		// user's drag; everything else still merges.
		assert.Equal(t, 100.0, got.Position().X())
		assert.Equal(t, "asset://edited", got.AssetRef())
	})
}

func TestSyncService_ApplyDeleteCascades(t *testing.T) {
	board, frame := seedBoard(t)
	pos, err := valueobjects.NewPosition(0, 0)
	require.NoError(t, err)
	other, err := entities.NewFrame(board.ID(), pos, "asset://other")
	require.NoError(t, err)
	require.NoError(t, board.AddFrame(other))
	conn, err := board.Connect(frame.ID(), other.ID())
	require.NoError(t, err)

	store := NewBoardStore(board, zap.NewNop())
	svc := NewSyncService(board.ID(), store, &fakeBoardRepo{}, &fakeFeed{}, nil, nil, zap.NewNop())

	svc.Apply(ports.ChangeEvent{
		Op:      ports.OpDelete,
		Entity:  ports.EntityFrame,
		BoardID: board.ID(),
		FrameID: frame.ID(),
	})

	store.View(func(b *aggregates.Board) {
		assert.False(t, b.HasFrame(frame.ID()))
		_, ok := b.Connection(conn.ID())
		assert.False(t, ok)
	})

	// Deleting an already-absent frame is a no-op, not an error.
	svc.Apply(ports.ChangeEvent{
		Op:      ports.OpDelete,
		Entity:  ports.EntityFrame,
		BoardID: board.ID(),
		FrameID: frame.ID(),
	})
}

func TestSyncService_ApplyConnectionInsertIsIdempotent(t *testing.T) {
	board, frame := seedBoard(t)
	pos, err := valueobjects.NewPosition(0, 0)
	require.NoError(t, err)
	other, err := entities.NewFrame(board.ID(), pos, "asset://other")
	require.NoError(t, err)
	require.NoError(t, board.AddFrame(other))

	store := NewBoardStore(board, zap.NewNop())
	svc := NewSyncService(board.ID(), store, &fakeBoardRepo{}, &fakeFeed{}, nil, nil, zap.NewNop())

	conn, err := entities.NewConnection(board.ID(), frame.ID(), other.ID())
	require.NoError(t, err)
	ev := ports.ChangeEvent{
		Op:           ports.OpInsert,
		Entity:       ports.EntityConnection,
		BoardID:      board.ID(),
		ConnectionID: conn.ID(),
		Connection:   conn,
	}

	svc.Apply(ev)
	svc.Apply(ev)

	store.View(func(b *aggregates.Board) {
		assert.Equal(t, 1, b.ConnectionCount())
	})
}

func TestSyncService_ResyncReplacesStore(t *testing.T) {
	board, _ := seedBoard(t)
	store := NewBoardStore(board, zap.NewNop())

	// Authoritative copy has diverged: an extra frame exists upstream.
	authoritative := board.Snapshot()
	pos, err := valueobjects.NewPosition(50, 50)
	require.NoError(t, err)
	upstream, err := entities.NewFrame(authoritative.ID(), pos, "asset://upstream")
	require.NoError(t, err)
	require.NoError(t, authoritative.AddFrame(upstream))

	repo := &fakeBoardRepo{board: authoritative}
	cache := &fakeSnapshotCache{}
	svc := NewSyncService(board.ID(), store, repo, &fakeFeed{}, nil, cache, zap.NewNop())

	require.NoError(t, svc.Resync(context.Background()))

	store.View(func(b *aggregates.Board) {
		assert.True(t, b.HasFrame(upstream.ID()))
	})
	puts, _ := cache.counts()
	assert.Equal(t, 1, puts)
}

func TestSyncService_ResubscribesAndResyncsAfterFeedDrop(t *testing.T) {
	board, _ := seedBoard(t)
	store := NewBoardStore(board, zap.NewNop())
	repo := &fakeBoardRepo{board: board.Snapshot()}
	feed := &fakeFeed{}
	svc := NewSyncService(board.ID(), store, repo, feed, nil, nil, zap.NewNop())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = svc.Run(ctx)
	}()

	require.Eventually(t, func() bool {
		return feed.subscribeCount() == 1
	}, time.Second, 5*time.Millisecond)

	// Dropping the channel forces a resubscribe plus a full resync; the
	// first subscription never resyncs because the board was just loaded.
	close(feed.current())

	require.Eventually(t, func() bool {
		return feed.subscribeCount() == 2
	}, 5*time.Second, 5*time.Millisecond)

	require.Eventually(t, func() bool {
		repo.mu.Lock()
		defer repo.mu.Unlock()
		return repo.getCalls == 1
	}, time.Second, 5*time.Millisecond)

	// The fresh subscription still delivers events.
	pos, err := valueobjects.NewPosition(1, 2)
	require.NoError(t, err)
	late, err := entities.NewFrame(board.ID(), pos, "asset://late")
	require.NoError(t, err)
	feed.current() <- ports.ChangeEvent{
		Op:      ports.OpInsert,
		Entity:  ports.EntityFrame,
		BoardID: board.ID(),
		FrameID: late.ID(),
		Frame:   late,
	}

	require.Eventually(t, func() bool {
		found := false
		store.View(func(b *aggregates.Board) {
			found = b.HasFrame(late.ID())
		})
		return found
	}, time.Second, 5*time.Millisecond)

	cancel()
	<-done
}
