package services

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"storyboard/domain/config"
	"storyboard/domain/core/valueobjects"
)

type writeRecorder struct {
	mu     sync.Mutex
	writes []struct {
		frameID  valueobjects.FrameID
		position valueobjects.Position
	}
	err error
}

func (w *writeRecorder) write(_ context.Context, frameID valueobjects.FrameID, position valueobjects.Position) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.writes = append(w.writes, struct {
		frameID  valueobjects.FrameID
		position valueobjects.Position
	}{frameID, position})
	return w.err
}

func (w *writeRecorder) count() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return len(w.writes)
}

func (w *writeRecorder) last() (valueobjects.FrameID, valueobjects.Position) {
	w.mu.Lock()
	defer w.mu.Unlock()
	entry := w.writes[len(w.writes)-1]
	return entry.frameID, entry.position
}

func testReconciler(t *testing.T, writer *writeRecorder, broadcast MoveBroadcaster) *Reconciler {
	t.Helper()
	cfg := config.DefaultDomainConfig()
	cfg.PositionDebounce = 30 * time.Millisecond
	cfg.MovementExpiry = 40 * time.Millisecond
	return NewReconciler(cfg, writer.write, broadcast, zap.NewNop())
}

func mustPosition(t *testing.T, x, y float64) valueobjects.Position {
	t.Helper()
	pos, err := valueobjects.NewPosition(x, y)
	require.NoError(t, err)
	return pos
}

func TestReconciler_PersistedByDefault(t *testing.T) {
	r := testReconciler(t, &writeRecorder{}, nil)
	frameID := valueobjects.NewFrameID()
	persisted := mustPosition(t, 10, 10)

	assert.Equal(t, persisted, r.RenderPosition(frameID, persisted))
	assert.False(t, r.IsDragging(frameID))
}

func TestReconciler_LocalDragWinsOverRemote(t *testing.T) {
	r := testReconciler(t, &writeRecorder{}, nil)
	frameID := valueobjects.NewFrameID()
	persisted := mustPosition(t, 0, 0)
	local := mustPosition(t, 50, 60)
	remote := mustPosition(t, 900, 900)

	r.BeginDrag(frameID, local)
	r.ObserveRemoteMove(frameID, remote)

	assert.Equal(t, local, r.RenderPosition(frameID, persisted))
	assert.True(t, r.IsDragging(frameID))
}

func TestReconciler_RemoteMoveRendersThenExpires(t *testing.T) {
	r := testReconciler(t, &writeRecorder{}, nil)
	frameID := valueobjects.NewFrameID()
	persisted := mustPosition(t, 0, 0)
	remote := mustPosition(t, 120, 80)

	r.ObserveRemoteMove(frameID, remote)
	assert.Equal(t, remote, r.RenderPosition(frameID, persisted))

	// The window lapses with no durable update; rendering falls back to
	// the persisted position rather than freezing on the last broadcast.
	assert.Eventually(t, func() bool {
		return r.RenderPosition(frameID, persisted) == persisted
	}, time.Second, 5*time.Millisecond)
}

func TestReconciler_RemoteExpiryResetsPerMessage(t *testing.T) {
	r := testReconciler(t, &writeRecorder{}, nil)
	frameID := valueobjects.NewFrameID()
	persisted := mustPosition(t, 0, 0)

	first := mustPosition(t, 10, 0)
	second := mustPosition(t, 20, 0)

	r.ObserveRemoteMove(frameID, first)
	time.Sleep(25 * time.Millisecond)
	r.ObserveRemoteMove(frameID, second)
	time.Sleep(25 * time.Millisecond)

	// 50ms after the first message but only 25ms after the second, the
	// stream is still live.
	assert.Equal(t, second, r.RenderPosition(frameID, persisted))
}

func TestReconciler_DebouncedWriteCoalescesTicks(t *testing.T) {
	writer := &writeRecorder{}
	r := testReconciler(t, writer, nil)
	frameID := valueobjects.NewFrameID()

	r.BeginDrag(frameID, mustPosition(t, 0, 0))
	r.DragTo(frameID, mustPosition(t, 10, 10))
	r.DragTo(frameID, mustPosition(t, 20, 20))
	final := mustPosition(t, 30, 30)
	r.DragTo(frameID, final)
	r.EndDrag(frameID)

	require.Eventually(t, func() bool {
		return writer.count() == 1
	}, time.Second, 5*time.Millisecond)

	gotFrame, gotPos := writer.last()
	assert.Equal(t, frameID, gotFrame)
	assert.Equal(t, final, gotPos)

	// Only the settled position reaches the writer, never the ticks.
	time.Sleep(60 * time.Millisecond)
	assert.Equal(t, 1, writer.count())
}

func TestReconciler_DragProtectionHoldsUntilFlush(t *testing.T) {
	writer := &writeRecorder{}
	r := testReconciler(t, writer, nil)
	frameID := valueobjects.NewFrameID()

	r.BeginDrag(frameID, mustPosition(t, 0, 0))
	r.DragTo(frameID, mustPosition(t, 40, 40))
	r.EndDrag(frameID)

	// The gesture is over but the debounced write has not fired yet;
	// remote merges must still be held off.
	assert.True(t, r.IsDragging(frameID))

	require.Eventually(t, func() bool {
		return !r.IsDragging(frameID)
	}, time.Second, 5*time.Millisecond)
	assert.Equal(t, 1, writer.count())
}

func TestReconciler_EndDragWithoutMovementGoesIdle(t *testing.T) {
	r := testReconciler(t, &writeRecorder{}, nil)
	frameID := valueobjects.NewFrameID()
	start := mustPosition(t, 5, 5)

	r.BeginDrag(frameID, start)
	r.EndDrag(frameID)

	assert.False(t, r.IsDragging(frameID))
	persisted := mustPosition(t, 1, 1)
	assert.Equal(t, persisted, r.RenderPosition(frameID, persisted))
}

func TestReconciler_RemoteIgnoredDuringLocalDrag(t *testing.T) {
	writer := &writeRecorder{}
	r := testReconciler(t, writer, nil)
	frameID := valueobjects.NewFrameID()
	persisted := mustPosition(t, 0, 0)
	local := mustPosition(t, 70, 70)

	r.BeginDrag(frameID, local)
	r.DragTo(frameID, local)
	r.ObserveRemoteMove(frameID, mustPosition(t, 500, 500))
	r.EndDrag(frameID)

	require.Eventually(t, func() bool {
		return !r.IsDragging(frameID)
	}, time.Second, 5*time.Millisecond)

	// The stale remote position never took over; the frame settled on the
	// local result.
	assert.Equal(t, persisted, r.RenderPosition(frameID, persisted))

	// After the flush, fresh remote movement is merged again.
	remote := mustPosition(t, 300, 300)
	r.ObserveRemoteMove(frameID, remote)
	assert.Equal(t, remote, r.RenderPosition(frameID, persisted))
}

func TestReconciler_BroadcastsEveryTick(t *testing.T) {
	var mu sync.Mutex
	var sent []valueobjects.Position
	broadcast := func(_ valueobjects.FrameID, position valueobjects.Position) {
		mu.Lock()
		defer mu.Unlock()
		sent = append(sent, position)
	}

	r := testReconciler(t, &writeRecorder{}, broadcast)
	frameID := valueobjects.NewFrameID()

	r.BeginDrag(frameID, mustPosition(t, 0, 0))
	r.DragTo(frameID, mustPosition(t, 1, 1))
	r.DragTo(frameID, mustPosition(t, 2, 2))

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, sent, 2)
	assert.Equal(t, mustPosition(t, 2, 2), sent[1])
}

func TestReconciler_CloseFlushesPendingWrites(t *testing.T) {
	writer := &writeRecorder{}
	r := testReconciler(t, writer, nil)
	a := valueobjects.NewFrameID()
	b := valueobjects.NewFrameID()

	r.BeginDrag(a, mustPosition(t, 0, 0))
	r.DragTo(a, mustPosition(t, 11, 11))
	r.BeginDrag(b, mustPosition(t, 0, 0))
	r.DragTo(b, mustPosition(t, 22, 22))

	require.NoError(t, r.Close(context.Background()))
	assert.Equal(t, 2, writer.count())

	// Closed reconcilers drop further input instead of arming new timers.
	r.DragTo(a, mustPosition(t, 99, 99))
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, 2, writer.count())
}

func TestReconciler_CloseIsIdempotent(t *testing.T) {
	writer := &writeRecorder{}
	r := testReconciler(t, writer, nil)
	frameID := valueobjects.NewFrameID()

	r.DragTo(frameID, mustPosition(t, 7, 7))
	require.NoError(t, r.Close(context.Background()))
	require.NoError(t, r.Close(context.Background()))
	assert.Equal(t, 1, writer.count())
}
