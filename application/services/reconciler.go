package services

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"storyboard/domain/config"
	"storyboard/domain/core/valueobjects"
)

// frameMode is the reconciliation state for one frame. Exactly one mode is
// active at a time and the rendered position comes from exactly one source,
// never a blend.
type frameMode int

const (
	// modeIdle renders the persisted position
	modeIdle frameMode = iota
	// modeLocalDrag renders the live local drag position
	modeLocalDrag
	// modeRemoteMove renders a peer's broadcast position
	modeRemoteMove
)

// PositionWriter issues the durable write for a settled position
type PositionWriter func(ctx context.Context, frameID valueobjects.FrameID, position valueobjects.Position) error

// MoveBroadcaster publishes an in-progress drag tick to peers; it is
// fire-and-forget and throttled downstream
type MoveBroadcaster func(frameID valueobjects.FrameID, position valueobjects.Position)

// frameMotion is the per-frame state machine
type frameMotion struct {
	mode      frameMode
	localPos  valueobjects.Position
	remotePos valueobjects.Position

	// pending is the position awaiting its debounced durable write
	pending  *valueobjects.Position
	debounce *time.Timer
	expiry   *time.Timer

	// dragging covers BeginDrag..EndDrag; the mode can outlive it while the
	// debounced write is still pending
	dragging bool
}

// Reconciler merges the three position sources for every frame - in-flight
// local drag, most recent peer broadcast, last persisted value - under a
// strict priority: local drag wins over peer movement wins over persisted.
// A user never sees their own drag overridden by a peer.
//
// Peer movement is transient visual feedback; it expires back to the
// persisted position a fixed window after the last message whether or not a
// durable update ever arrives.
type Reconciler struct {
	mu     sync.Mutex
	frames map[valueobjects.FrameID]*frameMotion

	debounceWindow time.Duration
	remoteExpiry   time.Duration

	write     PositionWriter
	broadcast MoveBroadcaster
	logger    *zap.Logger
	closed    bool
}

// NewReconciler creates a reconciler with the configured timing windows
func NewReconciler(cfg *config.DomainConfig, write PositionWriter, broadcast MoveBroadcaster, logger *zap.Logger) *Reconciler {
	if cfg == nil {
		cfg = config.DefaultDomainConfig()
	}

	return &Reconciler{
		frames:         make(map[valueobjects.FrameID]*frameMotion),
		debounceWindow: cfg.PositionDebounce,
		remoteExpiry:   cfg.MovementExpiry,
		write:          write,
		broadcast:      broadcast,
		logger:         logger,
	}
}

// RenderPosition resolves the authoritative rendered position for a frame.
// The caller supplies the persisted position as the lowest-priority source.
func (r *Reconciler) RenderPosition(frameID valueobjects.FrameID, persisted valueobjects.Position) valueobjects.Position {
	r.mu.Lock()
	defer r.mu.Unlock()

	motion, ok := r.frames[frameID]
	if !ok {
		return persisted
	}

	switch motion.mode {
	case modeLocalDrag:
		return motion.localPos
	case modeRemoteMove:
		return motion.remotePos
	default:
		return persisted
	}
}

// IsDragging reports whether a local drag is in flight for the frame; it
// stays true until the debounced durable write has been handed off, which
// is the window during which remote position updates must not be merged.
func (r *Reconciler) IsDragging(frameID valueobjects.FrameID) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	motion, ok := r.frames[frameID]
	return ok && motion.mode == modeLocalDrag
}

// BeginDrag enters the local drag state for a frame
func (r *Reconciler) BeginDrag(frameID valueobjects.FrameID, from valueobjects.Position) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return
	}

	motion := r.motionLocked(frameID)
	motion.mode = modeLocalDrag
	motion.dragging = true
	motion.localPos = from
	if motion.expiry != nil {
		motion.expiry.Stop()
		motion.expiry = nil
	}
}

// DragTo records a drag tick: render locally, broadcast to peers, and reset
// the debounce timer for the durable write-back.
func (r *Reconciler) DragTo(frameID valueobjects.FrameID, position valueobjects.Position) {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return
	}

	motion := r.motionLocked(frameID)
	motion.mode = modeLocalDrag
	motion.dragging = true
	motion.localPos = position

	pos := position
	motion.pending = &pos
	if motion.debounce != nil {
		motion.debounce.Stop()
	}
	motion.debounce = time.AfterFunc(r.debounceWindow, func() {
		r.flush(frameID)
	})
	r.mu.Unlock()

	if r.broadcast != nil {
		r.broadcast(frameID, position)
	}
}

// EndDrag leaves the dragging gesture. The local position keeps rendering
// until the pending debounced write flushes; if nothing moved, the frame
// returns to idle immediately.
func (r *Reconciler) EndDrag(frameID valueobjects.FrameID) {
	r.mu.Lock()
	defer r.mu.Unlock()

	motion, ok := r.frames[frameID]
	if !ok {
		return
	}

	motion.dragging = false
	if motion.pending == nil && motion.mode == modeLocalDrag {
		motion.mode = modeIdle
	}
}

// ObserveRemoteMove records a peer's broadcast position for a frame. It is
// ignored outright while a local drag is in flight; otherwise it renders
// until it expires or another message arrives.
func (r *Reconciler) ObserveRemoteMove(frameID valueobjects.FrameID, position valueobjects.Position) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return
	}

	motion := r.motionLocked(frameID)
	if motion.mode == modeLocalDrag {
		return
	}

	motion.mode = modeRemoteMove
	motion.remotePos = position

	if motion.expiry != nil {
		motion.expiry.Stop()
	}
	motion.expiry = time.AfterFunc(r.remoteExpiry, func() {
		r.expireRemote(frameID)
	})
}

// Close flushes every pending debounced write synchronously and stops all
// timers. It must run before session teardown so no settled position is
// silently lost.
func (r *Reconciler) Close(ctx context.Context) error {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return nil
	}
	r.closed = true

	type pendingWrite struct {
		frameID  valueobjects.FrameID
		position valueobjects.Position
	}
	var writes []pendingWrite

	for frameID, motion := range r.frames {
		if motion.debounce != nil {
			motion.debounce.Stop()
			motion.debounce = nil
		}
		if motion.expiry != nil {
			motion.expiry.Stop()
			motion.expiry = nil
		}
		if motion.pending != nil {
			writes = append(writes, pendingWrite{frameID: frameID, position: *motion.pending})
			motion.pending = nil
		}
		motion.mode = modeIdle
		motion.dragging = false
	}
	r.mu.Unlock()

	var lastErr error
	for _, w := range writes {
		if err := r.write(ctx, w.frameID, w.position); err != nil {
			r.logger.Error("failed to flush pending position on close",
				zap.String("frameID", w.frameID.String()),
				zap.Error(err),
			)
			lastErr = err
		}
	}
	return lastErr
}

// flush runs when a debounce timer fires: hand the pending position to the
// durable writer and settle back to idle unless a new drag started.
func (r *Reconciler) flush(frameID valueobjects.FrameID) {
	r.mu.Lock()
	motion, ok := r.frames[frameID]
	if !ok || motion.pending == nil || r.closed {
		r.mu.Unlock()
		return
	}

	position := *motion.pending
	motion.pending = nil
	if !motion.dragging && motion.mode == modeLocalDrag {
		motion.mode = modeIdle
	}
	r.mu.Unlock()

	if err := r.write(context.Background(), frameID, position); err != nil {
		r.logger.Warn("debounced position write failed",
			zap.String("frameID", frameID.String()),
			zap.Error(err),
		)
	}
}

// expireRemote runs when a remote movement window lapses with no further
// messages for the frame.
func (r *Reconciler) expireRemote(frameID valueobjects.FrameID) {
	r.mu.Lock()
	defer r.mu.Unlock()

	motion, ok := r.frames[frameID]
	if !ok {
		return
	}
	if motion.mode == modeRemoteMove {
		motion.mode = modeIdle
	}
	motion.expiry = nil
}

// motionLocked returns the state machine for a frame, creating it on first
// touch. Caller holds the lock.
func (r *Reconciler) motionLocked(frameID valueobjects.FrameID) *frameMotion {
	motion, ok := r.frames[frameID]
	if !ok {
		motion = &frameMotion{mode: modeIdle}
		r.frames[frameID] = motion
	}
	return motion
}
