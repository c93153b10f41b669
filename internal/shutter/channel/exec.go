package channel

import (
	"fmt"
	"os/exec"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

// DefaultExecCommand is the shuttercmd tool shipped alongside the service.
// It connects to the Yokis-Hack microcontroller over serial and forwards a
// single command.
const DefaultExecCommand = "shuttercmd"

// The microcontroller console speaks the Yokis vocabulary, not ours.
var yokisCommands = map[string]string{
	CmdOpen:  "on",
	CmdClose: "off",
	CmdStop:  "pause",
}

// Exec invokes an external command-line tool for every shutter command.
type Exec struct {
	command string
}

func NewExec(command string) *Exec {
	if command == "" {
		command = DefaultExecCommand
	}
	return &Exec{command: command}
}

func (e *Exec) Send(hardwareName string, command string) error {
	word, ok := yokisCommands[command]
	if !ok {
		return errors.Errorf("%s: unknown command %q", hardwareName, command)
	}

	// shuttercmd expects "<state> <shutter>" as a single argument.
	arg := fmt.Sprintf("%s %s", word, hardwareName)
	out, err := exec.Command(e.command, arg).CombinedOutput()
	if err != nil {
		return errors.Wrapf(err, "%s %q failed: %s", e.command, arg, out)
	}

	logrus.Debugf("%s: %s %q done", hardwareName, e.command, arg)

	return nil
}
