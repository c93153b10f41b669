package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/orelio/shutterctl/internal/shutter"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), "shutterctl.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func TestLoad(t *testing.T) {
	cfg, err := Load(writeConfig(t, `
log_level: debug
channel:
  kind: dumb
shutters:
  - name: salon
    hardware_name: ch1
    close: 12.5
    offset: 2
    open: 10
    halfway: 33
  - name: kitchen
`))
	require.NoError(t, err)

	assert.Equal(t, "debug", cfg.LogLevel)
	assert.Equal(t, "dumb", cfg.Channel.Kind)
	assert.Equal(t, "shuttercmd", cfg.Channel.Command, "aconfig default survives yaml decode")

	defs, err := cfg.Definitions()
	require.NoError(t, err)
	require.Len(t, defs, 2)

	require.NotNil(t, defs[0].Calibration)
	assert.Equal(t, "ch1", defs[0].HardwareName)
	assert.Equal(t, 12500*time.Millisecond, defs[0].Calibration.CloseDelay)
	assert.Equal(t, 2*time.Second, defs[0].Calibration.ClosedOffset)
	assert.Equal(t, 10*time.Second, defs[0].Calibration.OpenDelay)
	assert.Equal(t, 33, defs[0].Calibration.Halfway)

	assert.Nil(t, defs[1].Calibration, "no delays means basic shutter")
}

func TestDefinitionsRejectPartialCalibration(t *testing.T) {
	cfg, err := Load(writeConfig(t, `
shutters:
  - name: salon
    close: 12.5
    open: 10
`))
	require.NoError(t, err)

	_, err = cfg.Definitions()
	assert.ErrorIs(t, err, shutter.ErrPartialCalibration)
}

func TestBuildChannelRejectsUnknownKind(t *testing.T) {
	cfg := &Config{}
	cfg.Channel.Kind = "pigeon"

	_, err := cfg.BuildChannel()
	assert.Error(t, err)
}
