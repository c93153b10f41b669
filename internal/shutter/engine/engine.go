// Package engine estimates shutter positions from motor-run time and drives
// shutters to arbitrary heights. There is no position feedback: the engine
// trusts wall-clock timing and a linear motion model, so positions reset to
// unknown on restart and drift if a shutter is moved by other means.
package engine

import (
	"context"
	"sort"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/orelio/shutterctl/internal/shutter"
	"github.com/orelio/shutterctl/internal/shutter/channel"
)

// Options carry the timing constants of the motion model.
type Options struct {
	// CommandSpacing is the minimum delay between two link commands.
	CommandSpacing time.Duration

	// StartMovingDelay absorbs motor start-up lag: blades take a moment to
	// actually move after a command, so the first step sleeps longer.
	StartMovingDelay time.Duration

	// BootstrapMargin is the overshoot added on top of the full travel
	// delay when driving a shutter of unknown position to an endpoint.
	BootstrapMargin time.Duration
}

func DefaultOptions() Options {
	return Options{
		CommandSpacing:   100 * time.Millisecond,
		StartMovingDelay: 500 * time.Millisecond,
		BootstrapMargin:  time.Second,
	}
}

// Definition declares one shutter at engine construction time.
type Definition struct {
	// Name is the lowercase alias used by all callers.
	Name string

	// HardwareName is what the command channel knows the shutter as.
	// Defaults to Name.
	HardwareName string

	// Calibration is nil for basic shutters, which then only support
	// open/close/stop.
	Calibration *shutter.Calibration
}

// UpdateHandler is notified after every state or position change.
type UpdateHandler func(name string, state shutter.State, percent int)

// record is the per-shutter mutable state, owned exclusively by the engine.
type record struct {
	name     string
	hardware string
	cal      *shutter.Calibration

	// mu guards token issuance, synchronous commands and field writes for
	// this shutter only. Distinct shutters operate fully independently.
	mu      sync.Mutex
	token   atomic.Uint64
	state   shutter.State
	percent int
	task    *motionTask
}

// newToken mints the next generation token, superseding any motion task
// still running under an older one. Called with rec.mu held.
func (r *record) newToken() uint64 {
	return r.token.Add(1)
}

// isCurrent reports whether tok still authorizes hardware commands and
// state writes. Cancellation is cooperative: a superseded task checks this
// before every side effect and goes silent on mismatch.
func (r *record) isCurrent(tok uint64) bool {
	return r.token.Load() == tok
}

type Engine struct {
	dispatcher *channel.Dispatcher
	opts       Options

	shutters map[string]*record
	handlers []UpdateHandler

	done      chan struct{}
	closeOnce sync.Once
}

// New builds an engine from static shutter definitions. Definitions are
// read-only afterwards.
func New(ch channel.Channel, defs []Definition, opts Options) (*Engine, error) {
	e := &Engine{
		dispatcher: channel.NewDispatcher(ch, opts.CommandSpacing),
		opts:       opts,
		shutters:   make(map[string]*record, len(defs)),
		done:       make(chan struct{}),
	}

	for _, def := range defs {
		name := strings.ToLower(def.Name)
		if name == "" {
			return nil, errors.New("shutter with empty name")
		}
		if _, exists := e.shutters[name]; exists {
			return nil, errors.Errorf("duplicate shutter alias: %s", name)
		}

		hardware := def.HardwareName
		if hardware == "" {
			hardware = name
		}

		cal := def.Calibration
		if cal != nil {
			c := *cal
			c.Normalize()
			cal = &c
		}

		e.shutters[name] = &record{
			name:     name,
			hardware: hardware,
			cal:      cal,
			state:    shutter.StateStop,
			percent:  shutter.PercentUnknown,
		}

		logrus.Debugf("%s: loaded (hardware=%s, calibrated=%t)", name, hardware, cal != nil)
	}

	logrus.Debugf("loaded %d shutter definitions", len(e.shutters))

	return e, nil
}

// OnUpdate registers a handler for state and position changes. Register
// before the first Operate call; not safe to call concurrently with motion.
func (e *Engine) OnUpdate(h UpdateHandler) {
	e.handlers = append(e.handlers, h)
}

// Names lists all configured shutter aliases, sorted.
func (e *Engine) Names() []string {
	names := make([]string, 0, len(e.shutters))
	for name := range e.shutters {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Calibration returns the shutter's calibration, if it has one.
func (e *Engine) Calibration(name string) (shutter.Calibration, bool) {
	rec, ok := e.shutters[strings.ToLower(name)]
	if !ok || rec.cal == nil {
		return shutter.Calibration{}, false
	}
	return *rec.cal, true
}

// CurrentState returns the last operated state, StateStop if never operated.
// The shutter may not physically match if it was moved manually.
func (e *Engine) CurrentState(name string) shutter.State {
	rec, ok := e.shutters[strings.ToLower(name)]
	if !ok {
		return shutter.StateStop
	}

	rec.mu.Lock()
	defer rec.mu.Unlock()
	return rec.state
}

// CurrentPercent returns the estimated position between 0 (open) and 100
// (fully closed). ok is false while the position is unknown.
func (e *Engine) CurrentPercent(name string) (percent int, ok bool) {
	rec, found := e.shutters[strings.ToLower(name)]
	if !found {
		return shutter.PercentUnknown, false
	}

	rec.mu.Lock()
	defer rec.mu.Unlock()
	if rec.percent == shutter.PercentUnknown {
		return shutter.PercentUnknown, false
	}
	return shutter.ClampPercent(rec.percent), true
}

type operateOptions struct {
	targetPercent *int
}

type OperateOption func(*operateOptions)

// WithTargetPercent overrides the configured halfway percent for a half
// state operation.
func WithTargetPercent(percent int) OperateOption {
	return func(o *operateOptions) {
		o.targetPercent = &percent
	}
}

// Operate drives a shutter towards the target state. Stop and commands on
// basic shutters run synchronously; anything else resolves to a target
// percent and runs as an asynchronous motion task, superseding whatever
// motion was in flight. A nil return means the request was accepted, not
// that motion finished.
func (e *Engine) Operate(name string, state shutter.State, opts ...OperateOption) error {
	var o operateOptions
	for _, opt := range opts {
		opt(&o)
	}

	name = strings.ToLower(name)
	rec, ok := e.shutters[name]
	if !ok {
		return errors.Wrap(shutter.ErrUnknownShutter, name)
	}

	rec.mu.Lock()
	tok := rec.newToken()

	// Basic shutter: only open/close/stop, dispatched synchronously.
	if rec.cal == nil {
		if state == shutter.StateHalf {
			rec.mu.Unlock()
			logrus.Errorf("%s: cannot set half: no close/offset/open delays in config", name)
			return errors.Wrap(shutter.ErrNotCalibrated, name)
		}
		return e.commandLocked(rec, state)
	}

	if state == shutter.StateStop {
		logrus.Infof("%s: stopping (%s)", name, percentLabel(rec.percent))
		return e.commandLocked(rec, shutter.StateStop)
	}

	target := rec.cal.Halfway
	switch state {
	case shutter.StateOpen:
		target = shutter.FullOpenPercent
	case shutter.StateClose:
		target = shutter.FullClosedPercent
	case shutter.StateHalf:
		if o.targetPercent != nil {
			target = *o.targetPercent
		}
	}

	task := newMotionTask()
	rec.task = task
	rec.mu.Unlock()

	go e.moveToPercent(rec, shutter.ClampPercent(target), tok, task)

	return nil
}

// commandLocked sends a state synchronously and records it on success.
// Takes rec.mu held and releases it.
func (e *Engine) commandLocked(rec *record, state shutter.State) error {
	if err := e.dispatcher.Send(rec.hardware, state); err != nil {
		rec.mu.Unlock()
		logrus.Errorf("%s: %s", rec.name, err)
		return err
	}

	rec.state = state
	percent := rec.percent
	rec.mu.Unlock()

	e.notify(rec.name, state, percent)

	return nil
}

// Wait blocks until the shutter's current motion task, if any, finishes.
func (e *Engine) Wait(ctx context.Context, name string) error {
	rec, ok := e.shutters[strings.ToLower(name)]
	if !ok {
		return errors.Wrap(shutter.ErrUnknownShutter, name)
	}

	rec.mu.Lock()
	task := rec.task
	rec.mu.Unlock()

	if task == nil {
		return nil
	}

	select {
	case <-task.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Shutdown makes in-flight motion tasks exit at their next suspension point
// without further hardware commands.
func (e *Engine) Shutdown() {
	e.closeOnce.Do(func() {
		close(e.done)
	})
}

func (e *Engine) notify(name string, state shutter.State, percent int) {
	for _, h := range e.handlers {
		h(name, state, percent)
	}
}

func percentLabel(percent int) string {
	if percent == shutter.PercentUnknown {
		return "???"
	}
	return strconv.Itoa(shutter.ClampPercent(percent)) + "%"
}
