// Package config loads and validates the service configuration from a YAML
// file plus SHUTTERCTL_* environment overrides.
package config

import (
	"os"
	"time"

	"github.com/cristalhq/aconfig"
	"github.com/pkg/errors"
	"gopkg.in/yaml.v2"

	"github.com/orelio/shutterctl/internal/shutter"
	"github.com/orelio/shutterctl/internal/shutter/channel"
	"github.com/orelio/shutterctl/internal/shutter/engine"
)

type MQTT struct {
	Enabled  bool   `yaml:"enabled" default:"false" env:"ENABLED"`
	ClientID string `yaml:"client_id" default:"shutterctl" env:"CLIENT_ID"`
	Broker   string `yaml:"broker" default:"127.0.0.1:1883" env:"BROKER"`
	Username string `yaml:"username" env:"USERNAME"`
	Password string `yaml:"password" env:"PASSWORD"`
}

type HASS struct {
	Enabled     bool   `yaml:"enabled" default:"true" env:"ENABLED"`
	TopicPrefix string `yaml:"topic_prefix" default:"homeassistant" env:"TOPIC_PREFIX"`
}

type Channel struct {
	// Kind selects the actuator link: exec, serial or dumb.
	Kind string `yaml:"kind" default:"exec" env:"KIND"`

	// Command is the external tool for the exec kind.
	Command string `yaml:"command" default:"shuttercmd"`

	// Device and Baud configure the serial kind.
	Device string `yaml:"device"`
	Baud   int    `yaml:"baud"`
}

type Engine struct {
	CommandSpacing   time.Duration `yaml:"command_spacing"`
	StartMovingDelay time.Duration `yaml:"start_moving_delay"`
	BootstrapMargin  time.Duration `yaml:"bootstrap_margin"`
}

type Shutter struct {
	Name         string `yaml:"name"`
	HardwareName string `yaml:"hardware_name"`

	// Calibration delays in seconds; define close, offset and open
	// together, or none of them for a basic shutter.
	Close  *float64 `yaml:"close"`
	Offset *float64 `yaml:"offset"`
	Open   *float64 `yaml:"open"`

	// Halfway defaults to 50 when omitted.
	Halfway *int `yaml:"halfway"`
}

type Config struct {
	LogLevel string `yaml:"log_level" default:"info" env:"LOG_LEVEL"`

	MQTT MQTT `yaml:"mqtt" env:"MQTT"`
	HASS HASS `yaml:"hass" env:"HASS"`

	Channel Channel `yaml:"channel" env:"CHANNEL"`
	Engine  Engine  `yaml:"engine"`

	Shutters []Shutter `yaml:"shutters"`
}

// Load fills defaults and environment overrides, then decodes the YAML file.
func Load(filename string) (*Config, error) {
	cfg := &Config{}

	loader := aconfig.LoaderFor(cfg, aconfig.Config{
		EnvPrefix: "SHUTTERCTL",
		SkipFlags: true,
		SkipFiles: true,
	})
	if err := loader.Load(); err != nil {
		return nil, errors.Wrap(err, "load config defaults")
	}

	f, err := os.Open(filename)
	if err != nil {
		return nil, errors.Wrapf(err, "open config %s", filename)
	}
	defer f.Close()

	if err := yaml.NewDecoder(f).Decode(cfg); err != nil {
		return nil, errors.Wrapf(err, "decode config %s", filename)
	}

	return cfg, nil
}

// Definitions converts shutter entries to engine definitions, rejecting
// malformed calibrations before the engine starts serving requests.
func (c *Config) Definitions() ([]engine.Definition, error) {
	defs := make([]engine.Definition, 0, len(c.Shutters))

	for _, s := range c.Shutters {
		halfway := 50
		if s.Halfway != nil {
			halfway = *s.Halfway
		}

		cal, err := shutter.CalibrationFromSeconds(s.Open, s.Close, s.Offset, halfway)
		if err != nil {
			return nil, errors.Wrapf(err, "shutter %s", s.Name)
		}

		defs = append(defs, engine.Definition{
			Name:         s.Name,
			HardwareName: s.HardwareName,
			Calibration:  cal,
		})
	}

	return defs, nil
}

// EngineOptions returns the configured timing constants, falling back to
// the defaults for anything unset.
func (c *Config) EngineOptions() engine.Options {
	opts := engine.DefaultOptions()
	if c.Engine.CommandSpacing > 0 {
		opts.CommandSpacing = c.Engine.CommandSpacing
	}
	if c.Engine.StartMovingDelay > 0 {
		opts.StartMovingDelay = c.Engine.StartMovingDelay
	}
	if c.Engine.BootstrapMargin > 0 {
		opts.BootstrapMargin = c.Engine.BootstrapMargin
	}
	return opts
}

// BuildChannel constructs the configured actuator link.
func (c *Config) BuildChannel() (channel.Channel, error) {
	switch c.Channel.Kind {
	case "exec":
		return channel.NewExec(c.Channel.Command), nil
	case "serial":
		if c.Channel.Device == "" {
			return nil, errors.New("channel: serial kind needs a device")
		}
		return channel.NewSerial(c.Channel.Device, c.Channel.Baud)
	case "dumb":
		return &channel.Dumb{}, nil
	}

	return nil, errors.Errorf("%s is not a supported channel kind", c.Channel.Kind)
}
