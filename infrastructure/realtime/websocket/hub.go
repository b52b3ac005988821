// Package websocket hosts the relay's realtime transport: one socket per
// participant carrying the committed change feed, the ephemeral broadcast
// channel and presence, multiplexed as tagged envelopes.
package websocket

import (
	"context"
	"encoding/json"
	"sync"

	"go.uber.org/zap"

	"storyboard/application/ports"
	"storyboard/domain/core/valueobjects"
)

// Hub routes traffic between the clients editing each board. Ephemeral
// frames relay to everyone in the room except the sender; change feed events
// fan out to the whole room; presence updates go out on join and leave.
type Hub struct {
	feed   ports.ChangeFeed
	logger *zap.Logger

	mu    sync.RWMutex
	rooms map[valueobjects.BoardID]*room
}

// room is the set of clients on one board plus its feed pump
type room struct {
	clients map[*Client]struct{}
	cancel  context.CancelFunc
}

// NewHub creates a hub that pushes the given change feed to connected
// clients
func NewHub(feed ports.ChangeFeed, logger *zap.Logger) *Hub {
	return &Hub{
		feed:   feed,
		logger: logger,
		rooms:  make(map[valueobjects.BoardID]*room),
	}
}

// register adds a client to its board's room, starting the feed pump when
// the room is new, and announces the roster.
func (h *Hub) register(c *Client) {
	h.mu.Lock()
	rm, ok := h.rooms[c.boardID]
	if !ok {
		ctx, cancel := context.WithCancel(context.Background())
		rm = &room{
			clients: make(map[*Client]struct{}),
			cancel:  cancel,
		}
		h.rooms[c.boardID] = rm
		go h.pumpFeed(ctx, c.boardID)
	}

	// The joiner sees everyone already present, then everyone sees the
	// joiner.
	var existing []*Client
	for peer := range rm.clients {
		existing = append(existing, peer)
	}
	rm.clients[c] = struct{}{}
	h.mu.Unlock()

	for _, peer := range existing {
		c.enqueue(presenceEnvelope(peer, true))
	}
	h.broadcast(c.boardID, presenceEnvelope(c, true), c)

	h.logger.Info("client joined board room",
		zap.String("boardID", c.boardID.String()),
		zap.String("participantID", c.participantID.String()),
	)
}

// unregister removes a client, announces the departure, and tears the room
// down when it empties
func (h *Hub) unregister(c *Client) {
	h.mu.Lock()
	rm, ok := h.rooms[c.boardID]
	if !ok {
		h.mu.Unlock()
		return
	}
	if _, member := rm.clients[c]; !member {
		h.mu.Unlock()
		return
	}
	delete(rm.clients, c)
	empty := len(rm.clients) == 0
	if empty {
		rm.cancel()
		delete(h.rooms, c.boardID)
	}
	h.mu.Unlock()

	close(c.send)
	if !empty {
		h.broadcast(c.boardID, presenceEnvelope(c, false), nil)
	}

	h.logger.Info("client left board room",
		zap.String("boardID", c.boardID.String()),
		zap.String("participantID", c.participantID.String()),
	)
}

// relayEphemeral forwards an ephemeral envelope to every room member except
// the sender. The exclusion lives here so no transport ever echoes a message
// back at its origin.
func (h *Hub) relayEphemeral(sender *Client, env wireEnvelope) {
	raw, err := json.Marshal(env)
	if err != nil {
		h.logger.Warn("failed to encode ephemeral relay", zap.Error(err))
		return
	}

	h.mu.RLock()
	rm, ok := h.rooms[sender.boardID]
	if !ok {
		h.mu.RUnlock()
		return
	}
	peers := make([]*Client, 0, len(rm.clients))
	for peer := range rm.clients {
		if peer != sender {
			peers = append(peers, peer)
		}
	}
	h.mu.RUnlock()

	for _, peer := range peers {
		peer.enqueueRaw(raw)
	}
}

// pumpFeed pushes committed changes for one board to its room. If the feed
// drops, every client in the room is disconnected so each session runs its
// resynchronization path against a fresh subscription.
func (h *Hub) pumpFeed(ctx context.Context, boardID valueobjects.BoardID) {
	ch, err := h.feed.Subscribe(ctx, boardID)
	if err != nil {
		h.logger.Error("hub feed subscribe failed",
			zap.String("boardID", boardID.String()),
			zap.Error(err),
		)
		h.closeRoom(boardID)
		return
	}

	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-ch:
			if !ok {
				h.logger.Warn("hub feed dropped, disconnecting room",
					zap.String("boardID", boardID.String()),
				)
				h.closeRoom(boardID)
				return
			}
			h.broadcast(boardID, wireEnvelope{Kind: wireChange, Change: encodeChange(ev)}, nil)
		}
	}
}

// broadcast sends an envelope to every client in a board's room, optionally
// excluding one
func (h *Hub) broadcast(boardID valueobjects.BoardID, env wireEnvelope, exclude *Client) {
	raw, err := json.Marshal(env)
	if err != nil {
		h.logger.Warn("failed to encode broadcast", zap.Error(err))
		return
	}

	h.mu.RLock()
	rm, ok := h.rooms[boardID]
	if !ok {
		h.mu.RUnlock()
		return
	}
	peers := make([]*Client, 0, len(rm.clients))
	for peer := range rm.clients {
		if peer != exclude {
			peers = append(peers, peer)
		}
	}
	h.mu.RUnlock()

	for _, peer := range peers {
		peer.enqueueRaw(raw)
	}
}

// closeRoom force-disconnects every client on a board
func (h *Hub) closeRoom(boardID valueobjects.BoardID) {
	h.mu.Lock()
	rm, ok := h.rooms[boardID]
	if !ok {
		h.mu.Unlock()
		return
	}
	clients := make([]*Client, 0, len(rm.clients))
	for c := range rm.clients {
		clients = append(clients, c)
	}
	rm.cancel()
	delete(h.rooms, boardID)
	h.mu.Unlock()

	for _, c := range clients {
		close(c.send)
	}
}

// RoomSize reports the number of clients on a board, for health endpoints
func (h *Hub) RoomSize(boardID valueobjects.BoardID) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if rm, ok := h.rooms[boardID]; ok {
		return len(rm.clients)
	}
	return 0
}

func presenceEnvelope(c *Client, online bool) wireEnvelope {
	return wireEnvelope{
		Kind: wirePresence,
		Presence: &presenceDTO{
			ParticipantID: c.participantID.String(),
			DisplayName:   c.displayName,
			AvatarRef:     c.avatarRef,
			Online:        online,
		},
	}
}
