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

// UpdateFrameHandler changes a frame's payload reference, duration or
// lifecycle stage with the same optimistic-apply-then-write-through shape
// as the other mutations.
type UpdateFrameHandler struct {
	store  *services.BoardStore
	repo   ports.BoardRepository
	logger *zap.Logger
}

// NewUpdateFrameHandler creates the handler
func NewUpdateFrameHandler(store *services.BoardStore, repo ports.BoardRepository, logger *zap.Logger) *UpdateFrameHandler {
	return &UpdateFrameHandler{store: store, repo: repo, logger: logger}
}

// Handle implements bus.CommandHandler
func (h *UpdateFrameHandler) Handle(ctx context.Context, cmd bus.Command) error {
	c, ok := cmd.(commands.UpdateFrameCommand)
	if !ok {
		return pkgerrors.NewValidationError("invalid command type for UpdateFrameHandler")
	}

	frameID, err := valueobjects.NewFrameIDFromString(c.FrameID)
	if err != nil {
		return pkgerrors.NewValidationError(err.Error())
	}

	var (
		frame    *entities.Frame
		previous *entities.Frame
	)

	err = h.store.Update(func(board *aggregates.Board) error {
		var exists bool
		frame, exists = board.Frame(frameID)
		if !exists {
			return pkgerrors.NewNotFoundError("frame")
		}
		previous = frame.Clone()

		if c.AssetRef != nil {
			if err := frame.SetAssetRef(*c.AssetRef); err != nil {
				return err
			}
		}
		if c.DurationMs != nil {
			duration, derr := valueobjects.NewFrameDuration(*c.DurationMs)
			if derr != nil {
				return derr
			}
			if derr := frame.SetDuration(duration); derr != nil {
				return derr
			}
		}
		if c.Finalize {
			if err := frame.Finalize(); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return err
	}

	if err := h.repo.SaveFrame(ctx, frame); err != nil {
		rollbackErr := h.store.Update(func(board *aggregates.Board) error {
			current, exists := board.Frame(frameID)
			if !exists {
				return pkgerrors.NewNotFoundError("frame")
			}
			// Restore the pre-update copy field by field so the stored
			// pointer stays the same.
			if rerr := current.SetAssetRef(previous.AssetRef()); rerr != nil {
				return rerr
			}
			if !previous.Duration().IsZero() {
				if rerr := current.SetDuration(previous.Duration()); rerr != nil {
					return rerr
				}
			}
			return nil
		})
		if rollbackErr != nil {
			h.logger.Error("rollback after failed frame update also failed",
				zap.String("frameID", c.FrameID),
				zap.Error(rollbackErr),
			)
		}
		return pkgerrors.NewWriteConflictError("frame", err)
	}

	return nil
}
