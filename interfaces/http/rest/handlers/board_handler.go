package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"storyboard/application/ports"
	"storyboard/domain/core/aggregates"
	"storyboard/domain/core/valueobjects"
	"storyboard/domain/sequence"
	"storyboard/pkg/common"
	pkgerrors "storyboard/pkg/errors"
	"storyboard/pkg/utils"
)

// BoardHandler handles board-level HTTP requests
type BoardHandler struct {
	repo   ports.BoardRepository
	logger *zap.Logger
}

// NewBoardHandler creates a new board handler
func NewBoardHandler(repo ports.BoardRepository, logger *zap.Logger) *BoardHandler {
	return &BoardHandler{repo: repo, logger: logger}
}

// CreateBoardRequest represents the request body for creating a board
type CreateBoardRequest struct {
	Name string `json:"name" validate:"omitempty,max=200"`
}

// UpdateBoardRequest represents the request body for updating a board
type UpdateBoardRequest struct {
	Name        *string `json:"name,omitempty" validate:"omitempty,min=1,max=200"`
	SharePolicy *string `json:"share_policy,omitempty" validate:"omitempty,oneof=none view edit"`
}

// CreateBoard handles POST /boards
func (h *BoardHandler) CreateBoard(w http.ResponseWriter, r *http.Request) {
	var req CreateBoardRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		common.RespondError(w, http.StatusBadRequest, "VALIDATION", "invalid request body")
		return
	}
	if err := utils.ValidateStruct(req); err != nil {
		common.RespondAppError(w, err)
		return
	}

	board, err := aggregates.NewBoard(req.Name)
	if err != nil {
		common.RespondAppError(w, err)
		return
	}
	if err := h.repo.SaveBoard(r.Context(), board); err != nil {
		common.RespondAppError(w, err)
		return
	}

	h.logger.Info("board created", zap.String("boardID", board.ID().String()))
	common.RespondJSON(w, http.StatusCreated, toBoardView(board))
}

// GetBoard handles GET /boards/{boardID}
func (h *BoardHandler) GetBoard(w http.ResponseWriter, r *http.Request) {
	boardID := valueobjects.BoardID(chi.URLParam(r, "boardID"))

	board, err := h.repo.GetBoard(r.Context(), boardID)
	if err != nil {
		common.RespondAppError(w, err)
		return
	}
	common.RespondJSON(w, http.StatusOK, toBoardView(board))
}

// UpdateBoard handles PUT /boards/{boardID}
func (h *BoardHandler) UpdateBoard(w http.ResponseWriter, r *http.Request) {
	boardID := valueobjects.BoardID(chi.URLParam(r, "boardID"))

	var req UpdateBoardRequest
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

	if req.Name != nil {
		if err := board.Rename(*req.Name); err != nil {
			common.RespondAppError(w, err)
			return
		}
	}
	if req.SharePolicy != nil {
		if err := board.SetSharePolicy(aggregates.SharePolicy(*req.SharePolicy)); err != nil {
			common.RespondAppError(w, err)
			return
		}
	}
	if err := h.repo.SaveBoard(r.Context(), board); err != nil {
		common.RespondAppError(w, err)
		return
	}
	common.RespondJSON(w, http.StatusOK, toBoardView(board))
}

// PlaybackResponse is the derived sequence read model
type PlaybackResponse struct {
	Ordinals map[string]int `json:"ordinals"`
	Order    []string       `json:"order"`
	Chains   [][]string     `json:"chains"`
}

// GetPlayback handles GET /boards/{boardID}/playback
func (h *BoardHandler) GetPlayback(w http.ResponseWriter, r *http.Request) {
	boardID := valueobjects.BoardID(chi.URLParam(r, "boardID"))

	board, err := h.repo.GetBoard(r.Context(), boardID)
	if err != nil {
		common.RespondAppError(w, err)
		return
	}

	result := sequence.Derive(board.Frames(), board.Connections())
	resp := PlaybackResponse{
		Ordinals: make(map[string]int, len(result.Ordinals)),
		Order:    make([]string, 0, len(result.Playback)),
		Chains:   make([][]string, 0, len(result.Chains)),
	}
	for connID, ordinal := range result.Ordinals {
		resp.Ordinals[connID.String()] = ordinal
	}
	for _, frameID := range result.Playback {
		resp.Order = append(resp.Order, frameID.String())
	}
	for _, chain := range result.Chains {
		ids := make([]string, 0, len(chain))
		for _, frameID := range chain {
			ids = append(ids, frameID.String())
		}
		resp.Chains = append(resp.Chains, ids)
	}
	common.RespondJSON(w, http.StatusOK, resp)
}
