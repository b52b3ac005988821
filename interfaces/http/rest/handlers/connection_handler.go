package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"storyboard/application/ports"
	"storyboard/domain/core/entities"
	"storyboard/domain/core/valueobjects"
	"storyboard/pkg/common"
	pkgerrors "storyboard/pkg/errors"
	"storyboard/pkg/utils"
)

// ConnectionHandler handles connection-related HTTP requests
type ConnectionHandler struct {
	repo   ports.BoardRepository
	logger *zap.Logger
}

// NewConnectionHandler creates a new connection handler
func NewConnectionHandler(repo ports.BoardRepository, logger *zap.Logger) *ConnectionHandler {
	return &ConnectionHandler{repo: repo, logger: logger}
}

// CreateConnectionRequest represents the request body for linking two
// frames. ID is optional; session clients supply the id of their
// optimistically applied connection so the committed copy matches it.
type CreateConnectionRequest struct {
	ID          string `json:"id,omitempty" validate:"omitempty,uuid"`
	FromFrameID string `json:"from_frame_id" validate:"required,uuid"`
	ToFrameID   string `json:"to_frame_id" validate:"required,uuid"`
}

// CreateConnection handles POST /boards/{boardID}/connections
func (h *ConnectionHandler) CreateConnection(w http.ResponseWriter, r *http.Request) {
	boardID := valueobjects.BoardID(chi.URLParam(r, "boardID"))

	var req CreateConnectionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		common.RespondError(w, http.StatusBadRequest, "VALIDATION", "invalid request body")
		return
	}
	if err := utils.ValidateStruct(req); err != nil {
		common.RespondAppError(w, err)
		return
	}

	from, err := valueobjects.NewFrameIDFromString(req.FromFrameID)
	if err != nil {
		common.RespondAppError(w, err)
		return
	}
	to, err := valueobjects.NewFrameIDFromString(req.ToFrameID)
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

	// Connect validates endpoints, duplicates and limits against the
	// loaded snapshot before anything is persisted
	conn, err := board.Connect(from, to)
	if err != nil {
		common.RespondAppError(w, err)
		return
	}
	if req.ID != "" {
		conn, err = entities.ReconstructConnection(
			valueobjects.ConnectionID(req.ID), boardID, from, to, conn.CreatedAt(),
		)
		if err != nil {
			common.RespondAppError(w, err)
			return
		}
	}
	if err := h.repo.SaveConnection(r.Context(), conn); err != nil {
		common.RespondAppError(w, err)
		return
	}

	h.logger.Info("connection created",
		zap.String("boardID", boardID.String()),
		zap.String("connectionID", conn.ID().String()),
	)
	common.RespondJSON(w, http.StatusCreated, map[string]interface{}{
		"id":            conn.ID().String(),
		"from_frame_id": conn.From().String(),
		"to_frame_id":   conn.To().String(),
	})
}

// DeleteConnection handles DELETE /boards/{boardID}/connections/{connectionID}
func (h *ConnectionHandler) DeleteConnection(w http.ResponseWriter, r *http.Request) {
	boardID := valueobjects.BoardID(chi.URLParam(r, "boardID"))
	connID := valueobjects.ConnectionID(chi.URLParam(r, "connectionID"))
	if connID.IsZero() {
		common.RespondAppError(w, pkgerrors.NewValidationError("connection ID required"))
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

	if err := h.repo.DeleteConnection(r.Context(), boardID, connID); err != nil {
		common.RespondAppError(w, err)
		return
	}
	common.RespondJSON(w, http.StatusOK, map[string]interface{}{
		"id": connID.String(),
	})
}
