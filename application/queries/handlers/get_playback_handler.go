package handlers

import (
	"context"

	"go.uber.org/zap"

	"storyboard/application/queries"
	"storyboard/application/queries/bus"
	"storyboard/application/services"
	pkgerrors "storyboard/pkg/errors"
)

// GetPlaybackHandler reads the derived sequence out of the board store.
// Derivation itself is pure and owned by the domain; this handler only
// reshapes it for callers.
type GetPlaybackHandler struct {
	store  *services.BoardStore
	logger *zap.Logger
}

// NewGetPlaybackHandler creates the handler
func NewGetPlaybackHandler(store *services.BoardStore, logger *zap.Logger) *GetPlaybackHandler {
	return &GetPlaybackHandler{store: store, logger: logger}
}

// Handle implements bus.QueryHandler
func (h *GetPlaybackHandler) Handle(ctx context.Context, query bus.Query) (interface{}, error) {
	_, ok := query.(queries.GetPlaybackQuery)
	if !ok {
		return nil, pkgerrors.NewValidationError("invalid query type for GetPlaybackHandler")
	}

	seq := h.store.Sequence()

	result := queries.PlaybackResult{
		Ordinals: make(map[string]int, len(seq.Ordinals)),
		Order:    make([]string, 0, len(seq.Playback)),
		Chains:   make([][]string, 0, len(seq.Chains)),
	}

	for connID, ordinal := range seq.Ordinals {
		result.Ordinals[connID.String()] = ordinal
	}
	for _, frameID := range seq.Playback {
		result.Order = append(result.Order, frameID.String())
	}
	for _, chain := range seq.Chains {
		ids := make([]string, 0, len(chain))
		for _, frameID := range chain {
			ids = append(ids, frameID.String())
		}
		result.Chains = append(result.Chains, ids)
	}

	return result, nil
}
