package commands

import (
	"storyboard/pkg/utils"
)

// MoveFrameCommand persists a frame's settled position. It is issued by the
// reconciler's debounced write-back, not by every drag tick.
type MoveFrameCommand struct {
	BoardID string  `validate:"required,uuid"`
	FrameID string  `validate:"required,uuid"`
	X       float64 `validate:""`
	Y       float64 `validate:""`
}

// Validate checks the command's invariants
func (c MoveFrameCommand) Validate() error {
	return utils.ValidateStruct(c)
}
