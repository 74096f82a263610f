package gateway

import (
	"github.com/medirover/controller/pkg/catalog"
)

// CommandOutcome is the result of one gateway command.
//
// Sent=false means the command was rejected before anything reached the
// transport. Sent=true with Accepted=false means a send was attempted and
// the robot link failed. Accepted=true only says the transport took the
// message; completion is reported on the status channels.
type CommandOutcome struct {
	CommandID string       `json:"command_id"`
	Kind      catalog.Kind `json:"kind"`
	Channel   string       `json:"channel"`
	Sent      bool         `json:"sent"`
	Accepted  bool         `json:"accepted"`
	Error     ErrorKind    `json:"error,omitempty"`
	Message   string       `json:"message,omitempty"`
}

// Rejected reports whether the command never reached the transport
func (o CommandOutcome) Rejected() bool {
	return !o.Sent
}
