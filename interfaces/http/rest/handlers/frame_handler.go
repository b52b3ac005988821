package handlers

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"storyboard/application/ports"
	"storyboard/domain/core/entities"
	"storyboard/domain/core/valueobjects"
	"storyboard/pkg/common"
	pkgerrors "storyboard/pkg/errors"
	"storyboard/pkg/utils"
)

// FrameHandler handles frame-related HTTP requests
type FrameHandler struct {
	repo   ports.BoardRepository
	logger *zap.Logger
}

// NewFrameHandler creates a new frame handler
func NewFrameHandler(repo ports.BoardRepository, logger *zap.Logger) *FrameHandler {
	return &FrameHandler{repo: repo, logger: logger}
}

// CreateFrameRequest represents the request body for creating a frame.
// ID is optional; session clients supply the id of their optimistically
// applied frame so the committed copy matches it.
type CreateFrameRequest struct {
	ID         string  `json:"id,omitempty" validate:"omitempty,uuid"`
	X          float64 `json:"x"`
	Y          float64 `json:"y"`
	AssetRef   string  `json:"asset_ref,omitempty" validate:"omitempty,max=2048"`
	DurationMs int     `json:"duration_ms,omitempty" validate:"omitempty,min=0"`
}

// UpdateFrameRequest represents the request body for updating a frame
type UpdateFrameRequest struct {
	AssetRef   *string `json:"asset_ref,omitempty" validate:"omitempty,max=2048"`
	DurationMs *int    `json:"duration_ms,omitempty" validate:"omitempty,min=0"`
	Finalize   bool    `json:"finalize,omitempty"`
}

// MoveFrameRequest represents the request body for moving a frame
type MoveFrameRequest struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// CreateFrame handles POST /boards/{boardID}/frames
func (h *FrameHandler) CreateFrame(w http.ResponseWriter, r *http.Request) {
	boardID := valueobjects.BoardID(chi.URLParam(r, "boardID"))

	var req CreateFrameRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		common.RespondError(w, http.StatusBadRequest, "VALIDATION", "invalid request body")
		return
	}
	if err := utils.ValidateStruct(req); err != nil {
		common.RespondAppError(w, err)
		return
	}

	board, err := h.repo.GetBoard(r.Context(), boardID)
	if err != nil {
		common.RespondAppError(w, err)
		return
	}
	if !writeAllowed(r, board.SharePolicy()) {
		common.RespondAppError(w, pkgerrors.NewForbiddenError("board is shared view-only"))
		return
	}

	position, err := valueobjects.NewPosition(req.X, req.Y)
	if err != nil {
		common.RespondAppError(w, err)
		return
	}
	frame, err := newFrameFromRequest(boardID, position, req)
	if err != nil {
		common.RespondAppError(w, err)
		return
	}
	if req.DurationMs > 0 {
		duration, err := valueobjects.NewFrameDuration(req.DurationMs)
		if err != nil {
			common.RespondAppError(w, err)
			return
		}
		if err := frame.SetDuration(duration); err != nil {
			common.RespondAppError(w, err)
			return
		}
	}

	if err := h.repo.SaveFrame(r.Context(), frame); err != nil {
		common.RespondAppError(w, err)
		return
	}

	h.logger.Info("frame created",
		zap.String("boardID", boardID.String()),
		zap.String("frameID", frame.ID().String()),
	)
	common.RespondJSON(w, http.StatusCreated, map[string]interface{}{
		"id":          frame.ID().String(),
		"x":           frame.Position().X(),
		"y":           frame.Position().Y(),
		"asset_ref":   frame.AssetRef(),
		"duration_ms": frame.Duration().Milliseconds(),
		"status":      string(frame.Status()),
		"version":     frame.Version(),
	})
}

// UpdateFrame handles PUT /boards/{boardID}/frames/{frameID}
func (h *FrameHandler) UpdateFrame(w http.ResponseWriter, r *http.Request) {
	boardID := valueobjects.BoardID(chi.URLParam(r, "boardID"))
	frameID, err := valueobjects.NewFrameIDFromString(chi.URLParam(r, "frameID"))
	if err != nil {
		common.RespondAppError(w, err)
		return
	}

	var req UpdateFrameRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		common.RespondError(w, http.StatusBadRequest, "VALIDATION", "invalid request body")
		return
	}
	if err := utils.ValidateStruct(req); err != nil {
		common.RespondAppError(w, err)
		return
	}

	board, err := h.repo.GetBoard(r.Context(), boardID)
	if err != nil {
		common.RespondAppError(w, err)
		return
	}
	if !writeAllowed(r, board.SharePolicy()) {
		common.RespondAppError(w, pkgerrors.NewForbiddenError("board is shared view-only"))
		return
	}

	frame, ok := board.Frame(frameID)
	if !ok {
		common.RespondAppError(w, pkgerrors.NewNotFoundError("frame"))
		return
	}

	if req.AssetRef != nil {
		if err := frame.SetAssetRef(*req.AssetRef); err != nil {
			common.RespondAppError(w, err)
			return
		}
	}
	if req.DurationMs != nil {
		duration, err := valueobjects.NewFrameDuration(*req.DurationMs)
		if err != nil {
			common.RespondAppError(w, err)
			return
		}
		if err := frame.SetDuration(duration); err != nil {
			common.RespondAppError(w, err)
			return
		}
	}
	if req.Finalize {
		if err := frame.Finalize(); err != nil {
			common.RespondAppError(w, err)
			return
		}
	}

	if err := h.repo.SaveFrame(r.Context(), frame); err != nil {
		common.RespondAppError(w, err)
		return
	}
	common.RespondJSON(w, http.StatusOK, map[string]interface{}{
		"id":      frame.ID().String(),
		"version": frame.Version(),
	})
}

// MoveFrame handles PUT /boards/{boardID}/frames/{frameID}/position
func (h *FrameHandler) MoveFrame(w http.ResponseWriter, r *http.Request) {
	boardID := valueobjects.BoardID(chi.URLParam(r, "boardID"))
	frameID, err := valueobjects.NewFrameIDFromString(chi.URLParam(r, "frameID"))
	if err != nil {
		common.RespondAppError(w, err)
		return
	}

	var req MoveFrameRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		common.RespondError(w, http.StatusBadRequest, "VALIDATION", "invalid request body")
		return
	}
	position, err := valueobjects.NewPosition(req.X, req.Y)
	if err != nil {
		common.RespondAppError(w, err)
		return
	}

	board, err := h.repo.GetBoard(r.Context(), boardID)
	if err != nil {
		common.RespondAppError(w, err)
		return
	}
	if !writeAllowed(r, board.SharePolicy()) {
		common.RespondAppError(w, pkgerrors.NewForbiddenError("board is shared view-only"))
		return
	}

	if err := h.repo.UpdateFramePosition(r.Context(), boardID, frameID, position); err != nil {
		common.RespondAppError(w, err)
		return
	}
	common.RespondJSON(w, http.StatusOK, map[string]interface{}{
		"id": frameID.String(),
		"x":  position.X(),
		"y":  position.Y(),
	})
}

// DeleteFrame handles DELETE /boards/{boardID}/frames/{frameID}
func (h *FrameHandler) DeleteFrame(w http.ResponseWriter, r *http.Request) {
	boardID := valueobjects.BoardID(chi.URLParam(r, "boardID"))
	frameID, err := valueobjects.NewFrameIDFromString(chi.URLParam(r, "frameID"))
	if err != nil {
		common.RespondAppError(w, err)
		return
	}

	board, err := h.repo.GetBoard(r.Context(), boardID)
	if err != nil {
		common.RespondAppError(w, err)
		return
	}
	if !writeAllowed(r, board.SharePolicy()) {
		common.RespondAppError(w, pkgerrors.NewForbiddenError("board is shared view-only"))
		return
	}

	if err := h.repo.DeleteFrame(r.Context(), boardID, frameID); err != nil {
		common.RespondAppError(w, err)
		return
	}

	h.logger.Info("frame deleted",
		zap.String("boardID", boardID.String()),
		zap.String("frameID", frameID.String()),
	)
	common.RespondJSON(w, http.StatusOK, map[string]interface{}{
		"id": frameID.String(),
	})
}

// newFrameFromRequest builds the frame to persist. When the request carries
// an id the frame is reconstructed under it, so a session's optimistically
// applied frame and the committed copy stay the same entity.
func newFrameFromRequest(boardID valueobjects.BoardID, position valueobjects.Position, req CreateFrameRequest) (*entities.Frame, error) {
	if req.ID == "" {
		return entities.NewFrame(boardID, position, req.AssetRef)
	}

	frameID, err := valueobjects.NewFrameIDFromString(req.ID)
	if err != nil {
		return nil, pkgerrors.NewValidationError(err.Error())
	}
	now := time.Now()
	return entities.ReconstructFrame(
		frameID, boardID, position, req.AssetRef,
		valueobjects.DefaultFrameDuration(), entities.StatusDraft,
		now, now, 1,
	)
}
