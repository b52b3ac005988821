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

// CreateFrameHandler applies a new frame optimistically to the local board,
// writes it through to durable storage, and rolls the local change back if
// the write fails.
type CreateFrameHandler struct {
	store  *services.BoardStore
	repo   ports.BoardRepository
	logger *zap.Logger
}

// NewCreateFrameHandler creates the handler
func NewCreateFrameHandler(store *services.BoardStore, repo ports.BoardRepository, logger *zap.Logger) *CreateFrameHandler {
	return &CreateFrameHandler{store: store, repo: repo, logger: logger}
}

// Handle implements bus.CommandHandler
func (h *CreateFrameHandler) Handle(ctx context.Context, cmd bus.Command) error {
	c, ok := cmd.(commands.CreateFrameCommand)
	if !ok {
		return pkgerrors.NewValidationError("invalid command type for CreateFrameHandler")
	}

	position, err := valueobjects.NewPosition(c.X, c.Y)
	if err != nil {
		return err
	}

	var frame *entities.Frame

	// Optimistic local apply
	err = h.store.Update(func(board *aggregates.Board) error {
		frame, err = entities.NewFrame(board.ID(), position, c.AssetRef)
		if err != nil {
			return err
		}
		if c.DurationMs > 0 {
			duration, derr := valueobjects.NewFrameDuration(c.DurationMs)
			if derr != nil {
				return derr
			}
			if derr := frame.SetDuration(duration); derr != nil {
				return derr
			}
		}
		return board.AddFrame(frame)
	})
	if err != nil {
		return err
	}

	// Write through; roll back the optimistic apply on failure
	if err := h.repo.SaveFrame(ctx, frame); err != nil {
		rollbackErr := h.store.Update(func(board *aggregates.Board) error {
			_, rerr := board.RemoveFrame(frame.ID())
			return rerr
		})
		if rollbackErr != nil {
			h.logger.Error("rollback after failed frame write also failed",
				zap.String("frameID", frame.ID().String()),
				zap.Error(rollbackErr),
			)
		}
		return pkgerrors.NewWriteConflictError("frame", err)
	}

	h.logger.Debug("frame created",
		zap.String("boardID", c.BoardID),
		zap.String("frameID", frame.ID().String()),
	)

	return nil
}
