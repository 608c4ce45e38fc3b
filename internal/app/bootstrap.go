package app

import (
	"errors"
	"fmt"

	"periph.io/x/conn/v3/physic"

	"github.com/coreman2200/ledmatrix/internal/config"
	"github.com/coreman2200/ledmatrix/internal/render"
	"github.com/coreman2200/ledmatrix/internal/sink"
	"github.com/coreman2200/ledmatrix/internal/transport"
)

// Hello is sent to simulator clients when they attach.
type Hello struct {
	Type         string `json:"type"`
	Width        int    `json:"width"`
	Height       int    `json:"height"`
	LEDsPerStrip int    `json:"leds_per_strip"`
	NumLEDs      int    `json:"num_leds"`
	FPS          int    `json:"fps"`
}

// Sinks builds every sink the config enables, in a fixed order: serial,
// simulator, virtual port, spi, console. Each sink judges its own state
// against the configured health max age.
func Sinks(cfg *config.Config, opts ...sink.Option) []sink.Sink {
	topo := cfg.Topology()
	opts = append([]sink.Option{sink.WithMaxAge(cfg.Health.MaxAge)}, opts...)
	var out []sink.Sink
	if cfg.Serial.Enabled {
		out = append(out, sink.NewSerial("serial", sink.SerialConfig{
			Path:    cfg.Serial.Path,
			Options: cfg.Serial.PortOptions,
		}, opts...))
	}
	if sim := cfg.Sinks.Simulator; sim.Enabled {
		out = append(out, sink.NewSimulator("simulator", sink.SimulatorConfig{
			Addr: sim.Addr,
			Hello: Hello{
				Type:         "hello",
				Width:        cfg.Matrix.Width,
				Height:       cfg.Matrix.Height,
				LEDsPerStrip: cfg.LEDsPerStrip,
				NumLEDs:      topo.PhysicalCount(),
				FPS:          cfg.FPS,
			},
		}, opts...))
		if sim.VirtualPort.Enabled {
			out = append(out, sink.NewSerial("virtual-port", sink.SerialConfig{
				Path:    sim.VirtualPort.Path,
				Options: cfg.Serial.PortOptions,
			}, opts...))
		}
	}
	if spi := cfg.Sinks.SPI; spi.Enabled {
		freq := physic.Frequency(spi.FreqKHz) * physic.KiloHertz
		out = append(out, sink.NewSPI("spi", spi.Dev, freq, topo.PhysicalCount(), opts...))
	}
	if cfg.Sinks.Console.Enabled {
		out = append(out, sink.NewConsole("console", topo.PhysicalCount(), opts...))
	}
	return out
}

// Build wires a conductor from cfg around renderer r.
func Build(cfg *config.Config, r render.Renderer) (*Conductor, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if r == nil {
		return nil, errors.New("no renderer")
	}
	sinks := Sinks(cfg)
	if len(sinks) == 0 {
		return nil, fmt.Errorf("%w: no sinks enabled", config.ErrInvalid)
	}
	tr := transport.New(cfg.Health.MaxAge, sinks...)
	c := NewConductor(tr, cfg.Topology(), r, cfg.FPS)
	c.Limit = Limit{Brightness: cfg.Brightness, WhiteCap: cfg.WhiteCap}
	return c, nil
}
