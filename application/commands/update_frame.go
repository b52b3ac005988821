package commands

import (
	"storyboard/pkg/utils"
)

// UpdateFrameCommand changes a frame's payload, duration or lifecycle stage.
// Nil pointer fields are left untouched.
type UpdateFrameCommand struct {
	BoardID    string  `validate:"required,uuid"`
	FrameID    string  `validate:"required,uuid"`
	AssetRef   *string `validate:"omitempty,max=2048"`
	DurationMs *int    `validate:"omitempty,min=0"`
	Finalize   bool
}

// Validate checks the command's invariants
func (c UpdateFrameCommand) Validate() error {
	return utils.ValidateStruct(c)
}
