package services

import (
	"context"
	"sync"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"storyboard/application/ports"
	"storyboard/domain/config"
	"storyboard/domain/core/valueobjects"
	"storyboard/domain/events"
	pkgerrors "storyboard/pkg/errors"
)

// MessageHandler consumes a decoded inbound ephemeral message
type MessageHandler func(msg events.EphemeralMessage)

// BroadcastService publishes and dispatches the fire-and-forget realtime
// traffic for a board session: cursor movement, in-progress frame drags, and
// selection changes. None of it is persisted or replayed.
//
// High-frequency kinds are throttled on the leading edge: the first message
// in a window goes out immediately and later ones inside the window are
// dropped, never queued. A stale cursor position is worthless by the time a
// trailing send would deliver it. Selection changes are discrete user
// actions and are never throttled.
type BroadcastService struct {
	channel ports.EphemeralChannel
	self    valueobjects.ParticipantID

	cursorLimiter *rate.Limiter
	moveLimiter   *rate.Limiter

	mu       sync.RWMutex
	handlers map[events.MessageKind][]MessageHandler

	logger *zap.Logger
}

// NewBroadcastService creates a broadcast service for one participant's
// session over the given ephemeral channel
func NewBroadcastService(channel ports.EphemeralChannel, self valueobjects.ParticipantID, cfg *config.DomainConfig, logger *zap.Logger) *BroadcastService {
	if cfg == nil {
		cfg = config.DefaultDomainConfig()
	}

	return &BroadcastService{
		channel:       channel,
		self:          self,
		cursorLimiter: rate.NewLimiter(rate.Every(cfg.CursorThrottle), 1),
		moveLimiter:   rate.NewLimiter(rate.Every(cfg.MovementThrottle), 1),
		handlers:      make(map[events.MessageKind][]MessageHandler),
		logger:        logger,
	}
}

// SendCursor publishes this participant's cursor position. Calls inside the
// throttle window are dropped silently.
func (s *BroadcastService) SendCursor(ctx context.Context, x, y float64) error {
	if !s.cursorLimiter.Allow() {
		return nil
	}

	msg, err := events.NewCursorMoveMessage(s.self, x, y)
	if err != nil {
		return pkgerrors.Wrap(err, "failed to encode cursor message")
	}
	return s.channel.Publish(ctx, msg)
}

// SendFrameMove publishes an in-progress drag position for a frame. Calls
// inside the throttle window are dropped silently.
func (s *BroadcastService) SendFrameMove(ctx context.Context, frameID valueobjects.FrameID, x, y float64) error {
	if !s.moveLimiter.Allow() {
		return nil
	}

	msg, err := events.NewFrameMoveMessage(s.self, frameID, x, y)
	if err != nil {
		return pkgerrors.Wrap(err, "failed to encode frame move message")
	}
	return s.channel.Publish(ctx, msg)
}

// SendSelection publishes the participant's current selection. Selection is
// a discrete action and always goes out.
func (s *BroadcastService) SendSelection(ctx context.Context, frameIDs []valueobjects.FrameID) error {
	msg, err := events.NewSelectionChangeMessage(s.self, frameIDs)
	if err != nil {
		return pkgerrors.Wrap(err, "failed to encode selection message")
	}
	return s.channel.Publish(ctx, msg)
}

// OnMessage registers a handler for an inbound message kind. Registration
// must happen before Run starts.
func (s *BroadcastService) OnMessage(kind events.MessageKind, handler MessageHandler) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.handlers[kind] = append(s.handlers[kind], handler)
}

// Run consumes inbound messages until the context is cancelled or the
// channel closes. The transport already excludes the sender's own messages;
// the self check here guards against transports that echo.
func (s *BroadcastService) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case msg, ok := <-s.channel.Messages():
			if !ok {
				return nil
			}
			if msg.SenderID == s.self {
				continue
			}
			s.dispatch(msg)
		}
	}
}

func (s *BroadcastService) dispatch(msg events.EphemeralMessage) {
	s.mu.RLock()
	handlers := s.handlers[msg.Kind]
	s.mu.RUnlock()

	if len(handlers) == 0 {
		s.logger.Debug("no handler for ephemeral message kind",
			zap.String("kind", string(msg.Kind)),
		)
		return
	}
	for _, handler := range handlers {
		handler(msg)
	}
}
