package websocket

import (
	"context"
	"encoding/json"
	"net/url"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"storyboard/application/ports"
	"storyboard/domain/core/valueobjects"
	"storyboard/domain/events"
	pkgerrors "storyboard/pkg/errors"
)

// linkChannelBuffer sizes the per-stream channels handed to the engine
const linkChannelBuffer = 64

// Link is the engine-side end of a relay socket. One Link serves all three
// transport ports of a session: the change feed, the ephemeral channel and
// the presence roster, demultiplexed from the tagged envelopes the relay
// sends.
//
// The ephemeral and presence channels live for the Link's whole lifetime;
// the feed channel closes when the socket drops, which is the signal the
// sync adapter uses to resubscribe. Subscribe redials a dead socket.
type Link struct {
	baseURL string
	boardID valueobjects.BoardID
	self    ports.PresenceUpdate
	logger  *zap.Logger

	mu     sync.Mutex
	conn   *websocket.Conn
	feedCh chan ports.ChangeEvent
	closed bool

	ephemeralCh chan events.EphemeralMessage
	presenceCh  chan ports.PresenceUpdate
}

// NewLink creates a link to the relay at baseURL (ws:// or wss://) for one
// participant on one board. No connection is made until Subscribe or Join.
func NewLink(baseURL string, boardID valueobjects.BoardID, self ports.PresenceUpdate, logger *zap.Logger) *Link {
	return &Link{
		baseURL:     baseURL,
		boardID:     boardID,
		self:        self,
		logger:      logger,
		ephemeralCh: make(chan events.EphemeralMessage, linkChannelBuffer),
		presenceCh:  make(chan ports.PresenceUpdate, linkChannelBuffer),
	}
}

// Subscribe implements ports.ChangeFeed. It dials the relay if the socket is
// down and returns a channel that closes when the subscription drops.
func (l *Link) Subscribe(ctx context.Context, boardID valueobjects.BoardID) (<-chan ports.ChangeEvent, error) {
	if boardID != l.boardID {
		return nil, pkgerrors.NewValidationError("link is bound to a different board")
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if l.closed {
		return nil, pkgerrors.NewTransportError("link is closed", nil)
	}
	if l.conn == nil {
		if err := l.dialLocked(ctx); err != nil {
			return nil, err
		}
	}
	return l.feedCh, nil
}

// Publish implements ports.EphemeralChannel
func (l *Link) Publish(ctx context.Context, msg events.EphemeralMessage) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.conn == nil {
		return pkgerrors.NewTransportError("relay socket is not connected", nil)
	}

	raw, err := json.Marshal(wireEnvelope{Kind: wireEphemeral, Ephemeral: &msg})
	if err != nil {
		return pkgerrors.Wrap(err, "failed to encode ephemeral envelope")
	}

	l.conn.SetWriteDeadline(time.Now().Add(writeWait))
	if err := l.conn.WriteMessage(websocket.TextMessage, raw); err != nil {
		return pkgerrors.NewTransportError("failed to publish ephemeral message", err)
	}
	return nil
}

// Messages implements ports.EphemeralChannel
func (l *Link) Messages() <-chan events.EphemeralMessage {
	return l.ephemeralCh
}

// Join implements ports.PresenceRoster. Identity travels in the dial query,
// so joining only ensures the socket is up and hands back the roster stream.
func (l *Link) Join(ctx context.Context, boardID valueobjects.BoardID, self ports.PresenceUpdate) (<-chan ports.PresenceUpdate, error) {
	if boardID != l.boardID {
		return nil, pkgerrors.NewValidationError("link is bound to a different board")
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if l.closed {
		return nil, pkgerrors.NewTransportError("link is closed", nil)
	}
	if l.conn == nil {
		if err := l.dialLocked(ctx); err != nil {
			return nil, err
		}
	}
	return l.presenceCh, nil
}

// Leave implements ports.PresenceRoster. The relay announces the departure
// when the socket closes, so there is nothing to send.
func (l *Link) Leave(ctx context.Context) error {
	return nil
}

// Close implements ports.EphemeralChannel and tears the whole link down.
// The ephemeral and presence channels are left open; consumers exit through
// their own context cancellation, and closing here would race the read loop.
func (l *Link) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.closed {
		return nil
	}
	l.closed = true
	if l.conn != nil {
		return l.conn.Close()
	}
	return nil
}

// dialLocked opens the socket and starts the demultiplexing read loop.
// Caller holds l.mu.
func (l *Link) dialLocked(ctx context.Context) error {
	u, err := url.Parse(l.baseURL)
	if err != nil {
		return pkgerrors.Wrap(err, "invalid relay URL")
	}
	q := u.Query()
	q.Set("board", l.boardID.String())
	q.Set("participant", l.self.ParticipantID.String())
	q.Set("name", l.self.DisplayName)
	q.Set("avatar", l.self.AvatarRef)
	u.RawQuery = q.Encode()

	conn, _, err := websocket.DefaultDialer.DialContext(ctx, u.String(), nil)
	if err != nil {
		return pkgerrors.NewTransportError("failed to dial relay", err)
	}

	l.conn = conn
	l.feedCh = make(chan ports.ChangeEvent, linkChannelBuffer)
	go l.readLoop(conn, l.feedCh)

	l.logger.Info("relay link established",
		zap.String("boardID", l.boardID.String()),
	)
	return nil
}

// readLoop routes inbound envelopes to their port channels until the socket
// dies, then closes the feed channel to trigger resubscription.
func (l *Link) readLoop(conn *websocket.Conn, feedCh chan ports.ChangeEvent) {
	defer func() {
		conn.Close()

		l.mu.Lock()
		if l.conn == conn {
			l.conn = nil
		}
		l.mu.Unlock()

		close(feedCh)
	}()

	conn.SetReadLimit(maxMessageSize)
	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				l.logger.Warn("relay link read error", zap.Error(err))
			}
			return
		}

		var env wireEnvelope
		if err := json.Unmarshal(raw, &env); err != nil {
			l.logger.Debug("dropping malformed relay envelope", zap.Error(err))
			continue
		}

		switch env.Kind {
		case wireChange:
			if env.Change == nil {
				continue
			}
			ev, err := decodeChange(env.Change)
			if err != nil {
				l.logger.Warn("dropping undecodable change event", zap.Error(err))
				continue
			}
			select {
			case feedCh <- ev:
			default:
				// Losing a committed change means the board may diverge;
				// drop the feed so the sync adapter resynchronizes.
				l.logger.Warn("feed backlog full, forcing resync")
				return
			}

		case wireEphemeral:
			if env.Ephemeral == nil {
				continue
			}
			select {
			case l.ephemeralCh <- *env.Ephemeral:
			default:
				// Ephemeral traffic is best-effort; drop on backpressure
			}

		case wirePresence:
			if env.Presence == nil {
				continue
			}
			update := ports.PresenceUpdate{
				ParticipantID: valueobjects.ParticipantID(env.Presence.ParticipantID),
				DisplayName:   env.Presence.DisplayName,
				AvatarRef:     env.Presence.AvatarRef,
				Online:        env.Presence.Online,
			}
			select {
			case l.presenceCh <- update:
			default:
			}

		default:
			l.logger.Debug("dropping unknown envelope kind",
				zap.String("kind", string(env.Kind)),
			)
		}
	}
}
