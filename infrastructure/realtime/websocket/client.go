package websocket

import (
	"encoding/json"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"storyboard/domain/core/valueobjects"
)

const (
	// Time allowed to write a message to the peer
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer
	pongWait = 60 * time.Second

	// Send pings to peer with this period (must be less than pongWait)
	pingPeriod = (pongWait * 9) / 10

	// Maximum message size allowed from peer
	maxMessageSize = 64 * 1024

	// Send buffer size
	sendBufferSize = 256
)

// Client is one participant's connection in a board room
type Client struct {
	participantID valueobjects.ParticipantID
	boardID       valueobjects.BoardID
	displayName   string
	avatarRef     string

	hub    *Hub
	conn   *websocket.Conn
	send   chan []byte
	logger *zap.Logger
}

// NewClient wraps an upgraded connection for one participant on one board
func NewClient(participantID valueobjects.ParticipantID, boardID valueobjects.BoardID, displayName, avatarRef string, hub *Hub, conn *websocket.Conn, logger *zap.Logger) *Client {
	return &Client{
		participantID: participantID,
		boardID:       boardID,
		displayName:   displayName,
		avatarRef:     avatarRef,
		hub:           hub,
		conn:          conn,
		send:          make(chan []byte, sendBufferSize),
		logger: logger.With(
			zap.String("participantID", participantID.String()),
			zap.String("boardID", boardID.String()),
		),
	}
}

// Start registers with the hub and begins the read and write pumps
func (c *Client) Start() {
	c.hub.register(c)
	go c.writePump()
	go c.readPump()
}

// enqueue marshals and queues an envelope for this client
func (c *Client) enqueue(env wireEnvelope) {
	raw, err := json.Marshal(env)
	if err != nil {
		c.logger.Warn("failed to encode envelope", zap.Error(err))
		return
	}
	c.enqueueRaw(raw)
}

// enqueueRaw queues pre-encoded bytes; a client with a full backlog drops
// the message rather than stalling the room
func (c *Client) enqueueRaw(raw []byte) {
	select {
	case c.send <- raw:
	default:
		c.logger.Debug("dropping message for slow client")
	}
}

// readPump pumps inbound envelopes from the socket to the hub
func (c *Client) readPump() {
	defer func() {
		c.hub.unregister(c)
		c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, raw, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseAbnormalClosure) {
				c.logger.Warn("websocket read error", zap.Error(err))
			}
			return
		}

		var env wireEnvelope
		if err := json.Unmarshal(raw, &env); err != nil {
			c.logger.Debug("dropping malformed envelope", zap.Error(err))
			continue
		}
		if env.Kind != wireEphemeral || env.Ephemeral == nil {
			c.logger.Debug("dropping non-ephemeral inbound envelope",
				zap.String("kind", string(env.Kind)),
			)
			continue
		}

		// Stamp the authenticated sender; clients do not get to spoof it
		env.Ephemeral.SenderID = c.participantID
		c.hub.relayEphemeral(c, env)
	}
}

// writePump pumps queued messages from the hub to the socket
func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case raw, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, raw); err != nil {
				return
			}
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
