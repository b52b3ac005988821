package handlers

import (
	"context"

	"go.uber.org/zap"

	"storyboard/application/commands"
	"storyboard/application/commands/bus"
	"storyboard/application/ports"
	"storyboard/application/services"
	"storyboard/domain/core/aggregates"
	"storyboard/domain/core/valueobjects"
	pkgerrors "storyboard/pkg/errors"
)

// MoveFrameHandler persists a settled frame position. There is no
// compare-and-swap guard at the storage layer, so a superseded debounced
// write landing late resolves last-writer-wins.
type MoveFrameHandler struct {
	store  *services.BoardStore
	repo   ports.BoardRepository
	logger *zap.Logger
}

// NewMoveFrameHandler creates the handler
func NewMoveFrameHandler(store *services.BoardStore, repo ports.BoardRepository, logger *zap.Logger) *MoveFrameHandler {
	return &MoveFrameHandler{store: store, repo: repo, logger: logger}
}

// Handle implements bus.CommandHandler
func (h *MoveFrameHandler) Handle(ctx context.Context, cmd bus.Command) error {
	c, ok := cmd.(commands.MoveFrameCommand)
	if !ok {
		return pkgerrors.NewValidationError("invalid command type for MoveFrameHandler")
	}

	frameID, err := valueobjects.NewFrameIDFromString(c.FrameID)
	if err != nil {
		return pkgerrors.NewValidationError(err.Error())
	}
	position, err := valueobjects.NewPosition(c.X, c.Y)
	if err != nil {
		return err
	}

	var oldPosition valueobjects.Position

	// Optimistic local apply, remembering the prior position for rollback
	err = h.store.Update(func(board *aggregates.Board) error {
		frame, exists := board.Frame(frameID)
		if !exists {
			return pkgerrors.NewNotFoundError("frame")
		}
		oldPosition = frame.Position()
		return board.MoveFrame(frameID, position)
	})
	if err != nil {
		return err
	}

	boardID := valueobjects.BoardID(c.BoardID)
	if err := h.repo.UpdateFramePosition(ctx, boardID, frameID, position); err != nil {
		rollbackErr := h.store.Update(func(board *aggregates.Board) error {
			return board.MoveFrame(frameID, oldPosition)
		})
		if rollbackErr != nil {
			h.logger.Error("rollback after failed position write also failed",
				zap.String("frameID", c.FrameID),
				zap.Error(rollbackErr),
			)
		}
		return pkgerrors.NewWriteConflictError("frame position", err)
	}

	return nil
}
