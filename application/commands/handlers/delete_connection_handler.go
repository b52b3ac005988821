package handlers

import (
	"context"

	"go.uber.org/zap"

	"storyboard/application/commands"
	"storyboard/application/commands/bus"
	"storyboard/application/ports"
	"storyboard/application/services"
	"storyboard/domain/core/aggregates"
	"storyboard/domain/core/entities"
	"storyboard/domain/core/valueobjects"
	pkgerrors "storyboard/pkg/errors"
)

// DeleteConnectionHandler removes a connection optimistically and restores
// it if the durable delete fails.
type DeleteConnectionHandler struct {
	store  *services.BoardStore
	repo   ports.BoardRepository
	logger *zap.Logger
}

// NewDeleteConnectionHandler creates the handler
func NewDeleteConnectionHandler(store *services.BoardStore, repo ports.BoardRepository, logger *zap.Logger) *DeleteConnectionHandler {
	return &DeleteConnectionHandler{store: store, repo: repo, logger: logger}
}

// Handle implements bus.CommandHandler
func (h *DeleteConnectionHandler) Handle(ctx context.Context, cmd bus.Command) error {
	c, ok := cmd.(commands.DeleteConnectionCommand)
	if !ok {
		return pkgerrors.NewValidationError("invalid command type for DeleteConnectionHandler")
	}

	connID := valueobjects.ConnectionID(c.ConnectionID)

	var removed *entities.Connection

	err := h.store.Update(func(board *aggregates.Board) error {
		conn, exists := board.Connection(connID)
		if !exists {
			return pkgerrors.NewNotFoundError("connection")
		}
		removed = conn.Clone()
		return board.RemoveConnection(connID)
	})
	if err != nil {
		return err
	}

	boardID := valueobjects.BoardID(c.BoardID)
	if err := h.repo.DeleteConnection(ctx, boardID, connID); err != nil {
		rollbackErr := h.store.Update(func(board *aggregates.Board) error {
			return board.AddConnection(removed)
		})
		if rollbackErr != nil {
			h.logger.Error("rollback after failed connection delete also failed",
				zap.String("connectionID", c.ConnectionID),
				zap.Error(rollbackErr),
			)
		}
		return pkgerrors.NewWriteConflictError("connection", err)
	}

	return nil
}
