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

// DeleteFrameHandler removes a frame optimistically, cascading to its
// incident connections, and restores everything if the durable delete fails.
type DeleteFrameHandler struct {
	store  *services.BoardStore
	repo   ports.BoardRepository
	logger *zap.Logger
}

// NewDeleteFrameHandler creates the handler
func NewDeleteFrameHandler(store *services.BoardStore, repo ports.BoardRepository, logger *zap.Logger) *DeleteFrameHandler {
	return &DeleteFrameHandler{store: store, repo: repo, logger: logger}
}

// Handle implements bus.CommandHandler
func (h *DeleteFrameHandler) Handle(ctx context.Context, cmd bus.Command) error {
	c, ok := cmd.(commands.DeleteFrameCommand)
	if !ok {
		return pkgerrors.NewValidationError("invalid command type for DeleteFrameHandler")
	}

	frameID, err := valueobjects.NewFrameIDFromString(c.FrameID)
	if err != nil {
		return pkgerrors.NewValidationError(err.Error())
	}

	var (
		removedFrame *entities.Frame
		removedConns []*entities.Connection
	)

	// Optimistic local apply; keep copies of everything the cascade removes
	err = h.store.Update(func(board *aggregates.Board) error {
		frame, exists := board.Frame(frameID)
		if !exists {
			return pkgerrors.NewNotFoundError("frame")
		}
		removedFrame = frame.Clone()

		for _, conn := range board.Connections() {
			if conn.Touches(frameID) {
				removedConns = append(removedConns, conn.Clone())
			}
		}

		_, rerr := board.RemoveFrame(frameID)
		return rerr
	})
	if err != nil {
		return err
	}

	boardID := valueobjects.BoardID(c.BoardID)
	if err := h.repo.DeleteFrame(ctx, boardID, frameID); err != nil {
		rollbackErr := h.store.Update(func(board *aggregates.Board) error {
			if rerr := board.AddFrame(removedFrame); rerr != nil {
				return rerr
			}
			for _, conn := range removedConns {
				if rerr := board.AddConnection(conn); rerr != nil {
					return rerr
				}
			}
			return nil
		})
		if rollbackErr != nil {
			h.logger.Error("rollback after failed frame delete also failed",
				zap.String("frameID", c.FrameID),
				zap.Error(rollbackErr),
			)
		}
		return pkgerrors.NewWriteConflictError("frame", err)
	}

	h.logger.Debug("frame deleted with cascade",
		zap.String("frameID", c.FrameID),
		zap.Int("cascadedConnections", len(removedConns)),
	)

	return nil
}
