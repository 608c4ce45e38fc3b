package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"image/color"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/coreman2200/ledmatrix/internal/app"
	"github.com/coreman2200/ledmatrix/internal/config"
	"github.com/coreman2200/ledmatrix/internal/pixel"
	"github.com/coreman2200/ledmatrix/internal/render"
	"github.com/coreman2200/ledmatrix/internal/render/pattern"
	"github.com/coreman2200/ledmatrix/internal/render/still"
	"github.com/coreman2200/ledmatrix/internal/sink"
)

func main() {
	// ---- Flags (override config.yaml when set) ----
	var (
		configPath = flag.String("config", "config.yaml", "path to config.yaml")
		fps        = flag.Int("fps", 0, "target frames per second")
		brightness = flag.Float64("brightness", -1, "global brightness 0..1")
		serialPath = flag.String("serial", "", "controller serial port")
		noSerial   = flag.Bool("no-serial", false, "disable the serial sink")
		sim        = flag.Bool("sim", false, "enable the websocket simulator sink")
		addr       = flag.String("addr", "", "simulator listen address")
		console    = flag.Bool("console", false, "draw frames on the terminal")
		patternArg = flag.String("pattern", "rainbow", "pattern to render ("+strings.Join(patternNames(), ", ")+")")
		colorName  = flag.String("color", "", "solid pattern color preset ("+strings.Join(new(pattern.Solid).Presets(), ", ")+")")
		pulse      = flag.Float64("pulse", 0, "solid pattern pulse rate in Hz")
		imagePath  = flag.String("image", "", "render a still PNG/JPEG/GIF instead of a pattern")
		marker     = flag.Int("marker", -1, "send one raw frame with only this physical LED lit, then exit")
		once       = flag.Bool("once", false, "send a single frame and exit")
		logLevel   = flag.String("log-level", "", "trace|debug|info|warn|error")
	)
	flag.Parse()

	// ---- Load config.yaml (optional) ----
	cfg := config.Default()
	loaded, err := config.Load(*configPath)
	switch {
	case err == nil:
		cfg = loaded
	case errors.Is(err, os.ErrNotExist):
	default:
		app.SetupLogging(cfg.Log.Level, cfg.Log.Pretty)
		log.Fatal().Err(err).Str("path", *configPath).Msg("config load failed")
	}

	// ---- Effective params ----
	if *fps > 0 {
		cfg.FPS = *fps
	}
	if *brightness >= 0 {
		cfg.Brightness = *brightness
	}
	if *serialPath != "" {
		cfg.Serial.Enabled, cfg.Serial.Path = true, *serialPath
	}
	if *noSerial {
		cfg.Serial.Enabled = false
	}
	if *sim {
		cfg.Sinks.Simulator.Enabled = true
	}
	if *addr != "" {
		cfg.Sinks.Simulator.Addr = *addr
	}
	if *console {
		cfg.Sinks.Console.Enabled = true
	}
	if *logLevel != "" {
		cfg.Log.Level = *logLevel
	}

	// ---- Logging ----
	app.SetupLogging(cfg.Log.Level, cfg.Log.Pretty)
	if err != nil {
		log.Info().Str("path", *configPath).Msg("no config file; using defaults")
	}

	r, err := selectRenderer(*patternArg, *imagePath)
	if err != nil {
		log.Fatal().Err(err).Msg("renderer")
	}
	if err := pattern.Tune(r, *colorName, *pulse); err != nil {
		log.Fatal().Err(err).Msg("renderer")
	}
	c, err := app.Build(cfg, r)
	if err != nil {
		log.Fatal().Err(err).Msg("setup")
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	switch {
	case *marker >= 0:
		err = sendMarker(ctx, c, *marker)
	case *once:
		err = sendOnce(ctx, c)
	default:
		log.Info().Str("config", *configPath).Int("sinks", len(c.Transport.Sinks())).Msg("starting")
		err = c.Run(ctx)
	}
	if err != nil {
		log.Fatal().Err(err).Msg("stopped")
	}
}

func patternNames() []string {
	reg := render.NewRegistry()
	pattern.Register(reg)
	return reg.List()
}

func selectRenderer(name, imagePath string) (render.Renderer, error) {
	if imagePath != "" {
		return still.Load(imagePath)
	}
	reg := render.NewRegistry()
	pattern.Register(reg)
	r, ok := reg.Get(name)
	if !ok {
		return nil, fmt.Errorf("unknown pattern %q (have %s)", name, strings.Join(reg.List(), ", "))
	}
	return r, nil
}

// sendMarker lights one LED in physical order, bypassing the remap, to find
// where a given index lands on the wiring.
func sendMarker(ctx context.Context, c *app.Conductor, index int) error {
	rgb, err := pixel.Marker(c.Topology.PhysicalCount(), index, color.RGBA{G: 255, A: 255})
	if err != nil {
		return err
	}
	if err := c.Transport.Connect(ctx); err != nil {
		return err
	}
	defer c.Transport.Disconnect()
	log.Info().Int("index", index).Int("leds", c.Topology.PhysicalCount()).Msg("sending marker frame")
	if err := c.SendRaw(rgb); err != nil {
		return err
	}
	return drain(ctx, c)
}

func sendOnce(ctx context.Context, c *app.Conductor) error {
	if err := c.Transport.Connect(ctx); err != nil {
		return err
	}
	defer c.Transport.Disconnect()
	if err := c.Tick(ctx); err != nil {
		return err
	}
	return drain(ctx, c)
}

// drain waits until every sink has written or failed the queued frame.
func drain(ctx context.Context, c *app.Conductor) error {
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	t := time.NewTicker(10 * time.Millisecond)
	defer t.Stop()
	for {
		done := true
		for _, s := range c.Transport.Sinks() {
			if r, ok := s.(sink.StatsReporter); ok {
				st := r.Stats()
				if st.Sent+st.Failed+st.Dropped == 0 {
					done = false
				}
			}
		}
		if done {
			return nil
		}
		select {
		case <-ctx.Done():
			return fmt.Errorf("frame not delivered: %w", ctx.Err())
		case <-t.C:
		}
	}
}
