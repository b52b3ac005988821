package commands

import (
	"storyboard/pkg/utils"
)

// DeleteConnectionCommand removes a connection between two frames
type DeleteConnectionCommand struct {
	BoardID      string `validate:"required,uuid"`
	ConnectionID string `validate:"required,uuid"`
}

// Validate checks the command's invariants
func (c DeleteConnectionCommand) Validate() error {
	return utils.ValidateStruct(c)
}
