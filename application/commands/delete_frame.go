package commands

import (
	"storyboard/pkg/utils"
)

// DeleteFrameCommand removes a frame and, by cascade, its incident connections
type DeleteFrameCommand struct {
	BoardID string `validate:"required,uuid"`
	FrameID string `validate:"required,uuid"`
}

// Validate checks the command's invariants
func (c DeleteFrameCommand) Validate() error {
	return utils.ValidateStruct(c)
}
