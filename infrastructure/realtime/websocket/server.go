package websocket

import (
	"net/http"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"storyboard/domain/core/valueobjects"
)

// Server upgrades HTTP requests into board-room connections
type Server struct {
	hub      *Hub
	upgrader websocket.Upgrader
	logger   *zap.Logger
}

// ServerConfig holds websocket server configuration
type ServerConfig struct {
	ReadBufferSize  int
	WriteBufferSize int
	CheckOrigin     func(r *http.Request) bool
}

// DefaultServerConfig returns default websocket server configuration
func DefaultServerConfig() *ServerConfig {
	return &ServerConfig{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin: func(r *http.Request) bool {
			// In production, implement proper origin checking
			return true
		},
	}
}

// NewServer creates a websocket server over the given hub
func NewServer(hub *Hub, config *ServerConfig, logger *zap.Logger) *Server {
	if config == nil {
		config = DefaultServerConfig()
	}

	return &Server{
		hub: hub,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  config.ReadBufferSize,
			WriteBufferSize: config.WriteBufferSize,
			CheckOrigin:     config.CheckOrigin,
		},
		logger: logger,
	}
}

// HandleWebSocket handles upgrade requests. The board id is required; the
// participant id is minted server-side when absent so anonymous viewers can
// join.
func (s *Server) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	boardID := valueobjects.BoardID(r.URL.Query().Get("board"))
	if boardID.IsZero() {
		http.Error(w, "board query parameter required", http.StatusBadRequest)
		return
	}

	participantID := valueobjects.ParticipantID(r.URL.Query().Get("participant"))
	if participantID.IsZero() {
		participantID = valueobjects.ParticipantID(uuid.New().String())
	}
	displayName := r.URL.Query().Get("name")
	avatarRef := r.URL.Query().Get("avatar")

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Error("failed to upgrade connection",
			zap.Error(err),
			zap.String("remoteAddr", r.RemoteAddr),
		)
		return
	}

	client := NewClient(participantID, boardID, displayName, avatarRef, s.hub, conn, s.logger)
	client.Start()
}
