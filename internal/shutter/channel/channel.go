// Package channel talks to the actuator link that carries motor commands.
// The link only understands open, close and stop for a hardware name; it
// gives no position feedback.
package channel

import (
	"github.com/sirupsen/logrus"
)

const (
	CmdOpen  = "open"
	CmdClose = "close"
	CmdStop  = "stop"
)

// Channel sends a single command to a shutter motor and blocks until the
// link accepted it.
type Channel interface {
	Send(hardwareName string, command string) error
}

// Dumb is a no-hardware channel that only logs. Useful for dry runs and as
// a stand-in while wiring up a new installation.
type Dumb struct{}

func (d *Dumb) Send(hardwareName string, command string) error {
	logrus.Warnf("%s: dumb channel, %s command dropped", hardwareName, command)
	return nil
}
