package queries

import (
	"storyboard/pkg/utils"
)

// GetPlaybackQuery derives the linear playback sequence for a board
type GetPlaybackQuery struct {
	BoardID string `validate:"required,uuid"`
}

// Validate checks the query's invariants
func (q GetPlaybackQuery) Validate() error {
	return utils.ValidateStruct(q)
}

// PlaybackResult is the derived sequence read model
type PlaybackResult struct {
	// Ordinals maps connection id to its 1-based sequence label
	Ordinals map[string]int `json:"ordinals"`

	// Order is the flattened frame playback order
	Order []string `json:"order"`

	// Chains groups frames into disjoint walks for layout
	Chains [][]string `json:"chains"`
}
