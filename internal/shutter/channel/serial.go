package channel

import (
	"fmt"

	"github.com/pkg/errors"
	"github.com/tarm/serial"
)

// DefaultBaud matches the Yokis-Hack firmware console.
const DefaultBaud = 115200

// Serial writes commands straight to the microcontroller console, skipping
// the external shuttercmd tool. One line per command: "<state> <shutter>".
type Serial struct {
	port   *serial.Port
	device string
}

func NewSerial(device string, baud int) (*Serial, error) {
	if baud == 0 {
		baud = DefaultBaud
	}

	port, err := serial.OpenPort(&serial.Config{
		Name: device,
		Baud: baud,
	})
	if err != nil {
		return nil, errors.Wrapf(err, "open serial %s", device)
	}

	return &Serial{port: port, device: device}, nil
}

func (s *Serial) Send(hardwareName string, command string) error {
	word, ok := yokisCommands[command]
	if !ok {
		return errors.Errorf("%s: unknown command %q", hardwareName, command)
	}

	if _, err := fmt.Fprintf(s.port, "%s %s\n", word, hardwareName); err != nil {
		return errors.Wrapf(err, "%s: write to %s failed", hardwareName, s.device)
	}

	return nil
}

func (s *Serial) Close() error {
	return s.port.Close()
}
