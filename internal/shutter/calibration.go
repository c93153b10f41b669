package shutter

import (
	"time"
)

const travelSteps = 99 // percent marks between fully open and closed-with-blades-open

// Calibration holds the measured travel delays of a fine-tunable shutter.
// OpenDelay and CloseDelay cover the 0%..99% travel in each direction;
// ClosedOffset covers the extra 99%..100% segment where the blades shut.
type Calibration struct {
	OpenDelay    time.Duration
	CloseDelay   time.Duration
	ClosedOffset time.Duration

	// Halfway is the default target percent for the half state, 0..99.
	Halfway int
}

// CalibrationFromSeconds builds a Calibration from config values expressed
// in seconds. All three delays must be given together; with none given the
// shutter is a basic one and a nil Calibration is returned.
func CalibrationFromSeconds(open, close, offset *float64, halfway int) (*Calibration, error) {
	if open == nil && close == nil && offset == nil {
		return nil, nil
	}
	if open == nil || close == nil || offset == nil {
		return nil, ErrPartialCalibration
	}

	c := &Calibration{
		OpenDelay:    secondsToDuration(*open),
		CloseDelay:   secondsToDuration(*close),
		ClosedOffset: secondsToDuration(*offset),
		Halfway:      halfway,
	}
	c.Normalize()

	return c, nil
}

// Normalize clamps negative delays to zero and Halfway into [0,99].
func (c *Calibration) Normalize() {
	if c.OpenDelay < 0 {
		c.OpenDelay = 0
	}
	if c.CloseDelay < 0 {
		c.CloseDelay = 0
	}
	if c.ClosedOffset < 0 {
		c.ClosedOffset = 0
	}
	if c.Halfway < 0 {
		c.Halfway = 0
	}
	if c.Halfway > travelSteps {
		c.Halfway = travelSteps
	}
}

// FullLengthDelay is the travel time between 0% and 99% when moving towards
// the given direction.
func (c *Calibration) FullLengthDelay(direction State) time.Duration {
	if direction == StateOpen {
		return c.OpenDelay
	}
	return c.CloseDelay
}

// StepDelay is the nominal per-percent-point delay between the 0% and 99%
// marks when moving towards the given direction.
func (c *Calibration) StepDelay(direction State) time.Duration {
	return c.FullLengthDelay(direction) / travelSteps
}

func secondsToDuration(s float64) time.Duration {
	return time.Duration(s * float64(time.Second))
}
