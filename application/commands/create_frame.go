package commands

import (
	"storyboard/pkg/utils"
)

// CreateFrameCommand places a new frame on a board
type CreateFrameCommand struct {
	BoardID    string  `validate:"required,uuid"`
	X          float64 `validate:""`
	Y          float64 `validate:""`
	AssetRef   string  `validate:"omitempty,max=2048"`
	DurationMs int     `validate:"omitempty,min=0"`
}

// Validate checks the command's invariants
func (c CreateFrameCommand) Validate() error {
	return utils.ValidateStruct(c)
}
