package channel

import (
	"sync"
	"time"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/orelio/shutterctl/internal/shutter"
)

var stateToCommand = map[shutter.State]string{
	shutter.StateOpen:  CmdOpen,
	shutter.StateClose: CmdClose,
	shutter.StateStop:  CmdStop,
}

// Dispatcher serializes commands to the actuator link across all shutters.
// The underlying link carries one command at a time, so a single lock and a
// fixed spacing delay bound the system-wide command rate.
type Dispatcher struct {
	mu      sync.Mutex
	ch      Channel
	spacing time.Duration
}

func NewDispatcher(ch Channel, spacing time.Duration) *Dispatcher {
	return &Dispatcher{ch: ch, spacing: spacing}
}

// Spacing is the minimum delay enforced between two consecutive commands.
func (d *Dispatcher) Spacing() time.Duration {
	return d.spacing
}

// Send translates a state to the link command vocabulary and sends it.
// Half has no hardware command; it must be resolved to timed motion before
// reaching the dispatcher. A failed send leaves no trace on the link side
// and the caller's position state must stay as it was.
func (d *Dispatcher) Send(hardwareName string, state shutter.State) error {
	cmd, ok := stateToCommand[state]
	if !ok {
		return errors.Errorf("%s: no link command for state %q", hardwareName, state)
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	logrus.Debugf("%s: sending %s", hardwareName, cmd)
	if err := d.ch.Send(hardwareName, cmd); err != nil {
		return errors.Wrapf(err, "%s: %s command failed", hardwareName, cmd)
	}

	// Avoid overloading the link with too many commands in a row.
	time.Sleep(d.spacing)

	return nil
}
