package engine

import (
	"time"

	"github.com/sirupsen/logrus"

	"github.com/orelio/shutterctl/internal/shutter"
)

// motionTask is the handle of one asynchronous move. done is closed when
// the task returns, whether it reached the target or was superseded.
type motionTask struct {
	done chan struct{}
}

func newMotionTask() *motionTask {
	return &motionTask{done: make(chan struct{})}
}

// moveToPercent runs as the shutter's single motion goroutine. It walks the
// estimated position one percent at a time, sleeping the calibrated delay
// between marks, and re-validates the generation token before every hardware
// command and state write. It runs outside the shutter lock so a stop or a
// new operate call is never blocked behind a multi-second move.
func (e *Engine) moveToPercent(rec *record, target int, tok uint64, task *motionTask) {
	defer close(task.done)

	cal := rec.cal

	rec.mu.Lock()
	current := rec.percent
	rec.mu.Unlock()

	logrus.Infof("%s: adjusting from %s to %d%%", rec.name, percentLabel(current), target)

	// Unknown position: drive to the nearest endpoint first so incremental
	// motion starts from a known reference point.
	if current == shutter.PercentUnknown {
		direction := shutter.StateClose
		endpoint := shutter.FullClosedPercent
		if target <= 50 {
			direction = shutter.StateOpen
			endpoint = shutter.FullOpenPercent
		}
		logrus.Debugf("%s: position unknown, adjusting to %s (%d%%)", rec.name, direction, endpoint)

		e.sendIfCurrent(rec, direction, tok)

		delay := cal.FullLengthDelay(direction) + cal.ClosedOffset + e.opts.BootstrapMargin
		e.logSleep(rec, tok, delay, shutter.PercentUnknown, endpoint)
		if !e.sleep(delay) {
			return
		}

		e.setPercentIfCurrent(rec, endpoint, tok)
		current = endpoint
	}

	if current == target {
		if rec.isCurrent(tok) {
			logrus.Debugf("%s: already at desired position: %d%%", rec.name, current)
		}
		// Does not hurt to re-assert fully open/closed states; the motor's
		// end-of-travel limit switch makes them idempotent.
		if target == shutter.FullOpenPercent {
			e.sendIfCurrent(rec, shutter.StateOpen, tok)
		}
		if target == shutter.FullClosedPercent {
			e.sendIfCurrent(rec, shutter.StateClose, tok)
		}
		return
	}

	direction := shutter.StateClose
	increment := 1
	if target < current {
		direction = shutter.StateOpen
		increment = -1
	}
	stepDelay := cal.StepDelay(direction)

	// The first sleep starts counting right after the direction command, so
	// the command spacing the dispatcher already slept is deducted. The
	// start-moving settle delay absorbs motor spin-up lag.
	var first time.Duration
	if bladeStep(current, increment) {
		first = cal.ClosedOffset - e.opts.CommandSpacing
	} else {
		first = stepDelay - e.opts.CommandSpacing
	}
	if first < 0 {
		first = 0
	}
	first += e.opts.StartMovingDelay

	e.sendIfCurrent(rec, direction, tok)
	e.logSleep(rec, tok, first, current, current+increment)
	if !e.sleep(first) {
		return
	}

	for {
		current += increment
		e.setPercentIfCurrent(rec, current, tok)
		if current == target {
			break
		}

		delay := stepDelay
		if bladeStep(current, increment) {
			// The 99..100 segment is the blades shutting, which moves on
			// its own clock.
			delay = cal.ClosedOffset
		}
		e.logSleep(rec, tok, delay, current, current+increment)
		if !e.sleep(delay) {
			return
		}
	}

	if rec.isCurrent(tok) {
		logrus.Debugf("%s: reached target position: %d%%", rec.name, target)
	}

	// Strictly inside the range the motor does not stop itself; at the
	// endpoints the limit switch is trusted instead.
	if target > shutter.FullOpenPercent && target < shutter.FullClosedPercent {
		e.sendIfCurrent(rec, shutter.StateStop, tok)
	}
}

// bladeStep reports whether the next step crosses the 99..100 boundary.
func bladeStep(current, increment int) bool {
	return (current == shutter.FullClosedPercent && increment == -1) ||
		(current == shutter.FullClosedPercent-1 && increment == 1)
}

// sendIfCurrent issues a hardware command under the shutter lock, unless the
// task was superseded. Dispatch failures are logged and skipped: with no
// position feedback to re-synchronize from, aborting the move would strand
// the estimate just as badly as an inaccurate step.
func (e *Engine) sendIfCurrent(rec *record, state shutter.State, tok uint64) {
	if !rec.isCurrent(tok) {
		return
	}

	rec.mu.Lock()
	defer rec.mu.Unlock()

	if err := e.dispatcher.Send(rec.hardware, state); err != nil {
		logrus.Errorf("%s: %s", rec.name, err)
	}
}

// setPercentIfCurrent records a new estimated position and the matching
// state label, unless the task was superseded.
func (e *Engine) setPercentIfCurrent(rec *record, percent int, tok uint64) {
	percent = shutter.ClampPercent(percent)

	if !rec.isCurrent(tok) {
		return
	}

	rec.mu.Lock()
	rec.percent = percent
	switch {
	case percent <= shutter.FullOpenPercent:
		rec.state = shutter.StateOpen
	case percent >= shutter.FullClosedPercent:
		rec.state = shutter.StateClose
	case percent == rec.cal.Halfway:
		rec.state = shutter.StateHalf
	default:
		rec.state = shutter.StateStop
	}
	state := rec.state
	rec.mu.Unlock()

	e.notify(rec.name, state, percent)
}

// sleep waits out one motion step. Returns false when the engine is shutting
// down. A superseding operate call does not interrupt the sleep; the token
// check after it is what silences the task.
func (e *Engine) sleep(d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()

	select {
	case <-t.C:
		return true
	case <-e.done:
		return false
	}
}

func (e *Engine) logSleep(rec *record, tok uint64, d time.Duration, from, to int) {
	if rec.isCurrent(tok) {
		logrus.Debugf("%s: sleep %s (%s -> %d%%)", rec.name, d, percentLabel(from), to)
	}
}
