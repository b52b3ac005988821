package commands

import (
	"storyboard/pkg/utils"
)

// CreateConnectionCommand links two frames in sequence order. From and To
// may be the same frame; the topology is allowed to contain loops.
type CreateConnectionCommand struct {
	BoardID     string `validate:"required,uuid"`
	FromFrameID string `validate:"required,uuid"`
	ToFrameID   string `validate:"required,uuid"`
}

// Validate checks the command's invariants
func (c CreateConnectionCommand) Validate() error {
	return utils.ValidateStruct(c)
}
