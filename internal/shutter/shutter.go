package shutter

import (
	"strings"

	"github.com/pkg/errors"
)

// State is a commanded shutter state. The motor hardware itself only
// understands open, close and stop; half is resolved into timed motion
// by the engine and never reaches the command channel.
type State string

const (
	StateOpen  State = "open"
	StateClose State = "close"
	StateStop  State = "stop"
	StateHalf  State = "half"
)

const (
	// FullOpenPercent and FullClosedPercent bound the simulated position.
	// 0 is fully open, 100 is fully closed with the blades shut.
	FullOpenPercent   = 0
	FullClosedPercent = 100

	// PercentUnknown marks a shutter whose position was never established,
	// e.g. after a restart or before the first full travel.
	PercentUnknown = -1
)

var (
	ErrUnknownShutter     = errors.New("unknown shutter")
	ErrNotCalibrated      = errors.New("no close/offset/open delays in config")
	ErrPartialCalibration = errors.New("define close, offset and open delays together, or none of them")
)

// ParseState converts a command payload to a State.
func ParseState(s string) (State, error) {
	switch State(strings.ToLower(strings.TrimSpace(s))) {
	case StateOpen:
		return StateOpen, nil
	case StateClose:
		return StateClose, nil
	case StateStop:
		return StateStop, nil
	case StateHalf:
		return StateHalf, nil
	}

	return "", errors.Errorf("%q is not a valid shutter state", s)
}

// ClampPercent forces a position into the [0,100] range. PercentUnknown is
// passed through untouched.
func ClampPercent(percent int) int {
	if percent == PercentUnknown {
		return PercentUnknown
	}
	if percent < FullOpenPercent {
		return FullOpenPercent
	}
	if percent > FullClosedPercent {
		return FullClosedPercent
	}
	return percent
}
