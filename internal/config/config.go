// Package config loads the matrix description shared by the frame pipeline
// and the controller firmware.
package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/coreman2200/ledmatrix/internal/layout"
	"github.com/coreman2200/ledmatrix/internal/sink"
)

// ErrInvalid is wrapped by every validation failure.
var ErrInvalid = errors.New("invalid config")

type Matrix struct {
	Width  int `yaml:"width"`
	Height int `yaml:"height"`
}

type Health struct {
	MaxAge time.Duration `yaml:"max_age"`
}

type Serial struct {
	Enabled bool   `yaml:"enabled"`
	Path    string `yaml:"path"`

	sink.PortOptions `yaml:",inline"`
}

type VirtualPort struct {
	Enabled bool   `yaml:"enabled"`
	Path    string `yaml:"path"`
}

type Simulator struct {
	Enabled     bool        `yaml:"enabled"`
	Addr        string      `yaml:"addr"`
	VirtualPort VirtualPort `yaml:"virtual_port"`
}

type SPI struct {
	Enabled bool   `yaml:"enabled"`
	Dev     string `yaml:"dev"` // "" picks the first registered port
	FreqKHz int    `yaml:"freq_khz"`
}

type Console struct {
	Enabled bool `yaml:"enabled"`
}

type Sinks struct {
	Simulator Simulator `yaml:"simulator"`
	SPI       SPI       `yaml:"spi"`
	Console   Console   `yaml:"console"`
}

type Log struct {
	Level  string `yaml:"level"` // trace|debug|info|warn|error
	Pretty bool   `yaml:"pretty"`
}

type Config struct {
	Matrix       Matrix         `yaml:"matrix"`
	FPS          int            `yaml:"fps"`
	LEDsPerStrip int            `yaml:"leds_per_strip"`
	Groups       []layout.Group `yaml:"groups"`
	Health       Health         `yaml:"health"`
	Brightness   float64        `yaml:"brightness"`
	WhiteCap     float64        `yaml:"white_cap"`

	Serial Serial `yaml:"serial"`
	Sinks  Sinks  `yaml:"sinks"`
	Log    Log    `yaml:"log"`
}

// Default describes the 49x39 matrix: seven pins, seven strips each.
func Default() *Config {
	groups := make([]layout.Group, 7)
	for i := range groups {
		groups[i] = layout.Group{ID: i, Pin: 2 + i, Strips: 7}
	}
	return &Config{
		Matrix:       Matrix{Width: 49, Height: 39},
		FPS:          30,
		LEDsPerStrip: 39,
		Groups:       groups,
		Health:       Health{MaxAge: sink.DefaultMaxAge},
		Brightness:   1,
		Serial: Serial{
			Enabled:     true,
			Path:        "/dev/ttyACM0",
			PortOptions: sink.PortOptions{BaudRate: sink.DefaultBaudRate},
		},
		Sinks: Sinks{
			Simulator: Simulator{Addr: ":8080", VirtualPort: VirtualPort{Path: "/dev/ttys032"}},
			SPI:       SPI{FreqKHz: 2500},
		},
		Log: Log{Level: "info", Pretty: true},
	}
}

// Load reads path over the defaults and validates the result.
func Load(path string) (*Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	c := Default()
	if err := yaml.Unmarshal(b, c); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return c, nil
}

func Save(path string, c *Config) error {
	b, err := yaml.Marshal(c)
	if err != nil {
		return err
	}
	return os.WriteFile(path, b, 0644)
}

func invalid(field, format string, args ...any) error {
	return fmt.Errorf("%w: %s: %s", ErrInvalid, field, fmt.Sprintf(format, args...))
}

// Validate checks the config against itself and the wiring invariants.
func (c *Config) Validate() error {
	if c.FPS < 1 || c.FPS > 240 {
		return invalid("fps", "must be in 1..240, got %d", c.FPS)
	}
	if c.Brightness < 0 || c.Brightness > 1 {
		return invalid("brightness", "must be in 0..1, got %g", c.Brightness)
	}
	if c.WhiteCap < 0 || c.WhiteCap > 1 {
		return invalid("white_cap", "must be in 0..1, got %g", c.WhiteCap)
	}
	if c.Health.MaxAge < 0 {
		return invalid("health.max_age", "must not be negative, got %s", c.Health.MaxAge)
	}
	topo := c.Topology()
	if err := topo.Validate(); err != nil {
		return fmt.Errorf("%w: groups: %w", ErrInvalid, err)
	}
	if c.Matrix.Width != topo.TotalStrips() {
		return invalid("matrix.width", "%d does not match %d strips across groups", c.Matrix.Width, topo.TotalStrips())
	}
	if c.Matrix.Height != c.LEDsPerStrip {
		return invalid("matrix.height", "%d does not match leds_per_strip %d", c.Matrix.Height, c.LEDsPerStrip)
	}
	if payload := topo.PhysicalCount() * 3; payload > 0xFFFF {
		return invalid("groups", "frame of %d bytes exceeds a single packet", payload)
	}
	if c.Serial.Enabled {
		if c.Serial.Path == "" {
			return invalid("serial.path", "required when serial is enabled")
		}
		if _, err := c.Serial.PortOptions.Normalize(); err != nil {
			return invalid("serial", "%v", err)
		}
	}
	if c.Sinks.Simulator.Enabled && c.Sinks.Simulator.Addr == "" {
		return invalid("sinks.simulator.addr", "required when the simulator is enabled")
	}
	if c.Sinks.SPI.FreqKHz < 0 {
		return invalid("sinks.spi.freq_khz", "must not be negative, got %d", c.Sinks.SPI.FreqKHz)
	}
	return nil
}

// Topology returns the wiring described by the config.
func (c *Config) Topology() layout.Topology {
	return layout.Topology{
		Groups:       append([]layout.Group(nil), c.Groups...),
		LEDsPerStrip: c.LEDsPerStrip,
	}
}

// FrameInterval is the tick period for the configured frame rate.
func (c *Config) FrameInterval() time.Duration {
	if c.FPS <= 0 {
		return time.Second / 30
	}
	return time.Second / time.Duration(c.FPS)
}
