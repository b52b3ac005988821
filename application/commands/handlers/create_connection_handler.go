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

// CreateConnectionHandler links two frames optimistically and writes the
// connection through to durable storage.
type CreateConnectionHandler struct {
	store  *services.BoardStore
	repo   ports.BoardRepository
	logger *zap.Logger
}

// NewCreateConnectionHandler creates the handler
func NewCreateConnectionHandler(store *services.BoardStore, repo ports.BoardRepository, logger *zap.Logger) *CreateConnectionHandler {
	return &CreateConnectionHandler{store: store, repo: repo, logger: logger}
}

// Handle implements bus.CommandHandler
func (h *CreateConnectionHandler) Handle(ctx context.Context, cmd bus.Command) error {
	c, ok := cmd.(commands.CreateConnectionCommand)
	if !ok {
		return pkgerrors.NewValidationError("invalid command type for CreateConnectionHandler")
	}

	from, err := valueobjects.NewFrameIDFromString(c.FromFrameID)
	if err != nil {
		return pkgerrors.NewValidationError(err.Error())
	}
	to, err := valueobjects.NewFrameIDFromString(c.ToFrameID)
	if err != nil {
		return pkgerrors.NewValidationError(err.Error())
	}

	var conn *entities.Connection

	err = h.store.Update(func(board *aggregates.Board) error {
		var cerr error
		conn, cerr = board.Connect(from, to)
		return cerr
	})
	if err != nil {
		return err
	}

	if err := h.repo.SaveConnection(ctx, conn); err != nil {
		rollbackErr := h.store.Update(func(board *aggregates.Board) error {
			return board.RemoveConnection(conn.ID())
		})
		if rollbackErr != nil {
			h.logger.Error("rollback after failed connection write also failed",
				zap.String("connectionID", conn.ID().String()),
				zap.Error(rollbackErr),
			)
		}
		return pkgerrors.NewWriteConflictError("connection", err)
	}

	return nil
}
