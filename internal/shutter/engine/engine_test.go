package engine

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/orelio/shutterctl/internal/shutter"
)

type fakeChannel struct {
	mu   sync.Mutex
	sent []string
	fail bool
}

func (c *fakeChannel) Send(hardwareName string, command string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.fail {
		return errors.New("link down")
	}
	c.sent = append(c.sent, command)
	return nil
}

func (c *fakeChannel) commands() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.sent...)
}

// Test timings are scaled down so a full travel takes a fraction of a
// second: 1ms per step opening, 2ms per step closing, 30ms blade offset.
func testCalibration() *shutter.Calibration {
	return &shutter.Calibration{
		OpenDelay:    99 * time.Millisecond,
		CloseDelay:   198 * time.Millisecond,
		ClosedOffset: 30 * time.Millisecond,
		Halfway:      50,
	}
}

func testOptions() Options {
	return Options{
		CommandSpacing:   0,
		StartMovingDelay: 0,
		BootstrapMargin:  5 * time.Millisecond,
	}
}

func newTestEngine(t *testing.T, ch *fakeChannel, cal *shutter.Calibration) *Engine {
	t.Helper()

	e, err := New(ch, []Definition{{Name: "salon", Calibration: cal}}, testOptions())
	require.NoError(t, err)
	t.Cleanup(e.Shutdown)

	return e
}

func waitFor(t *testing.T, e *Engine, name string) {
	t.Helper()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, e.Wait(ctx, name))
}

func TestNewRejectsDuplicateAlias(t *testing.T) {
	_, err := New(&fakeChannel{}, []Definition{{Name: "Salon"}, {Name: "salon"}}, testOptions())
	assert.Error(t, err)
}

func TestOperateUnknownShutter(t *testing.T) {
	ch := &fakeChannel{}
	e := newTestEngine(t, ch, testCalibration())

	err := e.Operate("nope", shutter.StateOpen)
	assert.ErrorIs(t, err, shutter.ErrUnknownShutter)
	assert.Empty(t, ch.commands())
}

func TestBasicShutterHalfUnsupported(t *testing.T) {
	ch := &fakeChannel{}
	e := newTestEngine(t, ch, nil)

	err := e.Operate("salon", shutter.StateHalf)
	assert.ErrorIs(t, err, shutter.ErrNotCalibrated)
	assert.Empty(t, ch.commands())

	require.NoError(t, e.Operate("salon", shutter.StateOpen))
	assert.Equal(t, []string{"open"}, ch.commands())
	assert.Equal(t, shutter.StateOpen, e.CurrentState("salon"))

	_, known := e.CurrentPercent("salon")
	assert.False(t, known, "basic shutters never learn a position")
}

func TestMoveToOverridePercent(t *testing.T) {
	ch := &fakeChannel{}
	e := newTestEngine(t, ch, testCalibration())

	require.NoError(t, e.Operate("salon", shutter.StateHalf, WithTargetPercent(25)))
	waitFor(t, e, "salon")

	percent, known := e.CurrentPercent("salon")
	require.True(t, known)
	assert.Equal(t, 25, percent)
	assert.Equal(t, shutter.StateStop, e.CurrentState("salon"))

	// Position was unknown: bootstrap to fully open, close down to 25%,
	// stop mid-travel.
	assert.Equal(t, []string{"open", "close", "stop"}, ch.commands())
}

func TestHalfDefaultsToConfiguredHalfway(t *testing.T) {
	ch := &fakeChannel{}
	e := newTestEngine(t, ch, testCalibration())

	require.NoError(t, e.Operate("salon", shutter.StateOpen))
	waitFor(t, e, "salon")

	require.NoError(t, e.Operate("salon", shutter.StateHalf))
	waitFor(t, e, "salon")

	percent, known := e.CurrentPercent("salon")
	require.True(t, known)
	assert.Equal(t, 50, percent)
	assert.Equal(t, shutter.StateHalf, e.CurrentState("salon"))
}

func TestOpenIsIdempotentAtEndpoint(t *testing.T) {
	ch := &fakeChannel{}
	e := newTestEngine(t, ch, testCalibration())

	require.NoError(t, e.Operate("salon", shutter.StateOpen))
	waitFor(t, e, "salon")

	// Bootstrap open plus the idempotent re-assert.
	assert.Equal(t, []string{"open", "open"}, ch.commands())

	require.NoError(t, e.Operate("salon", shutter.StateOpen))
	waitFor(t, e, "salon")

	// Already at 0%: one more open, no incremental motion, no stop.
	assert.Equal(t, []string{"open", "open", "open"}, ch.commands())

	percent, known := e.CurrentPercent("salon")
	require.True(t, known)
	assert.Equal(t, 0, percent)
}

func TestNewerOperateSupersedesOlder(t *testing.T) {
	ch := &fakeChannel{}
	e := newTestEngine(t, ch, testCalibration())

	var mu sync.Mutex
	maxPercent := 0
	e.OnUpdate(func(name string, state shutter.State, percent int) {
		mu.Lock()
		defer mu.Unlock()
		if percent > maxPercent {
			maxPercent = percent
		}
	})

	require.NoError(t, e.Operate("salon", shutter.StateOpen))
	waitFor(t, e, "salon")

	require.NoError(t, e.Operate("salon", shutter.StateClose))
	time.Sleep(20 * time.Millisecond)
	require.NoError(t, e.Operate("salon", shutter.StateOpen))
	waitFor(t, e, "salon")

	percent, known := e.CurrentPercent("salon")
	require.True(t, known)
	assert.Equal(t, 0, percent, "most recent operate wins")
	assert.Equal(t, shutter.StateOpen, e.CurrentState("salon"))

	mu.Lock()
	defer mu.Unlock()
	assert.Less(t, maxPercent, 100, "superseded close must never complete")
}

func TestBladeBoundaryUsesClosedOffset(t *testing.T) {
	cal := testCalibration()
	ch := &fakeChannel{}
	e := newTestEngine(t, ch, cal)

	require.NoError(t, e.Operate("salon", shutter.StateClose))
	waitFor(t, e, "salon")

	// 100% -> 99%: a single step covering the blade segment.
	start := time.Now()
	require.NoError(t, e.Operate("salon", shutter.StateHalf, WithTargetPercent(99)))
	waitFor(t, e, "salon")
	assert.GreaterOrEqual(t, time.Since(start), cal.ClosedOffset)

	percent, known := e.CurrentPercent("salon")
	require.True(t, known)
	assert.Equal(t, 99, percent)
	cmds := ch.commands()
	assert.Equal(t, "stop", cmds[len(cmds)-1], "99% is mid-travel, motor must be stopped")

	// 99% -> 100%: same segment in reverse, no stop at the endpoint.
	start = time.Now()
	require.NoError(t, e.Operate("salon", shutter.StateClose))
	waitFor(t, e, "salon")
	assert.GreaterOrEqual(t, time.Since(start), cal.ClosedOffset)

	percent, known = e.CurrentPercent("salon")
	require.True(t, known)
	assert.Equal(t, 100, percent)
	cmds = ch.commands()
	assert.Equal(t, "close", cmds[len(cmds)-1], "limit switch stops the motor at 100%")
}

func TestStopInterruptsMotion(t *testing.T) {
	ch := &fakeChannel{}
	e := newTestEngine(t, ch, testCalibration())

	require.NoError(t, e.Operate("salon", shutter.StateOpen))
	waitFor(t, e, "salon")

	require.NoError(t, e.Operate("salon", shutter.StateClose))
	time.Sleep(20 * time.Millisecond)
	require.NoError(t, e.Operate("salon", shutter.StateStop))

	// The superseded task may finish one unguarded step; after that the
	// estimate must freeze.
	time.Sleep(30 * time.Millisecond)
	frozen, known := e.CurrentPercent("salon")
	require.True(t, known)
	assert.Equal(t, shutter.StateStop, e.CurrentState("salon"))
	assert.Contains(t, ch.commands(), "stop")

	time.Sleep(50 * time.Millisecond)
	percent, _ := e.CurrentPercent("salon")
	assert.Equal(t, frozen, percent)
}

func TestDispatchFailurePropagatesOnSynchronousCommand(t *testing.T) {
	ch := &fakeChannel{fail: true}
	e := newTestEngine(t, ch, nil)

	err := e.Operate("salon", shutter.StateOpen)
	assert.Error(t, err)
	assert.Equal(t, shutter.StateStop, e.CurrentState("salon"), "a failed send leaves state untouched")
}

func TestDispatchFailureDoesNotAbortMotion(t *testing.T) {
	ch := &fakeChannel{fail: true}
	e := newTestEngine(t, ch, testCalibration())

	require.NoError(t, e.Operate("salon", shutter.StateHalf, WithTargetPercent(25)))
	waitFor(t, e, "salon")

	// Every send failed, but the estimate kept walking: best effort, there
	// is no feedback to re-synchronize from anyway.
	percent, known := e.CurrentPercent("salon")
	require.True(t, known)
	assert.Equal(t, 25, percent)
}
