package shutter

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func floatPtr(f float64) *float64 { return &f }

func TestCalibrationFromSeconds(t *testing.T) {
	t.Run("all delays absent means basic shutter", func(t *testing.T) {
		c, err := CalibrationFromSeconds(nil, nil, nil, 50)
		require.NoError(t, err)
		assert.Nil(t, c)
	})

	t.Run("partial delay set is rejected", func(t *testing.T) {
		_, err := CalibrationFromSeconds(floatPtr(10), nil, floatPtr(2), 50)
		assert.ErrorIs(t, err, ErrPartialCalibration)
	})

	t.Run("full delay set", func(t *testing.T) {
		c, err := CalibrationFromSeconds(floatPtr(10), floatPtr(12.5), floatPtr(2), 50)
		require.NoError(t, err)
		require.NotNil(t, c)
		assert.Equal(t, 10*time.Second, c.OpenDelay)
		assert.Equal(t, 12500*time.Millisecond, c.CloseDelay)
		assert.Equal(t, 2*time.Second, c.ClosedOffset)
		assert.Equal(t, 50, c.Halfway)
	})

	t.Run("negative delays and halfway clamp", func(t *testing.T) {
		c, err := CalibrationFromSeconds(floatPtr(-1), floatPtr(12), floatPtr(-3), 120)
		require.NoError(t, err)
		assert.Equal(t, time.Duration(0), c.OpenDelay)
		assert.Equal(t, time.Duration(0), c.ClosedOffset)
		assert.Equal(t, 99, c.Halfway)
	})
}

func TestStepDelay(t *testing.T) {
	c := Calibration{OpenDelay: 99 * time.Second, CloseDelay: 198 * time.Second}

	assert.Equal(t, time.Second, c.StepDelay(StateOpen))
	assert.Equal(t, 2*time.Second, c.StepDelay(StateClose))
}

func TestParseState(t *testing.T) {
	for payload, want := range map[string]State{
		"open":  StateOpen,
		"CLOSE": StateClose,
		" stop": StateStop,
		"half":  StateHalf,
	} {
		got, err := ParseState(payload)
		require.NoError(t, err)
		assert.Equal(t, want, got)
	}

	_, err := ParseState("ajar")
	assert.Error(t, err)
}

func TestClampPercent(t *testing.T) {
	assert.Equal(t, 0, ClampPercent(-5))
	assert.Equal(t, 100, ClampPercent(140))
	assert.Equal(t, 42, ClampPercent(42))
	assert.Equal(t, PercentUnknown, ClampPercent(PercentUnknown))
}
