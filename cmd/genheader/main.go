// Command genheader writes the controller firmware's config.h from
// config.yaml, so both ends of the link agree on size and wiring.
package main

import (
	"bytes"
	"flag"
	"os"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/coreman2200/ledmatrix/internal/app"
	"github.com/coreman2200/ledmatrix/internal/config"
)

func main() {
	var (
		configPath = flag.String("config", "config.yaml", "path to config.yaml")
		out        = flag.String("out", "config.h", "header to write; - for stdout")
	)
	flag.Parse()
	app.SetupLogging("info", true)

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatal().Err(err).Str("path", *configPath).Msg("config load failed")
	}

	var buf bytes.Buffer
	if err := cfg.WriteHeader(&buf, time.Now()); err != nil {
		log.Fatal().Err(err).Msg("render header")
	}
	if *out == "-" {
		_, _ = os.Stdout.Write(buf.Bytes())
		return
	}
	if err := os.WriteFile(*out, buf.Bytes(), 0644); err != nil {
		log.Fatal().Err(err).Str("path", *out).Msg("write header")
	}

	leds := cfg.Topology().PhysicalCount()
	log.Info().Str("path", *out).
		Int("width", cfg.Matrix.Width).Int("height", cfg.Matrix.Height).
		Int("leds", leds).Int("frame_bytes", leds*3).
		Msg("header generated")
}
