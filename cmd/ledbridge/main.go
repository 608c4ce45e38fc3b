// Command ledbridge reads packets from a (virtual) serial port, the way the
// controller would, and republishes them to simulator websocket clients.
package main

import (
	"context"
	"errors"
	"flag"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog/log"

	"github.com/coreman2200/ledmatrix/internal/app"
	"github.com/coreman2200/ledmatrix/internal/config"
	"github.com/coreman2200/ledmatrix/internal/packet"
	"github.com/coreman2200/ledmatrix/internal/sink"
)

func main() {
	var (
		configPath = flag.String("config", "config.yaml", "path to config.yaml")
		portPath   = flag.String("port", "", "serial port to read (default: sinks.simulator.virtual_port.path)")
		addr       = flag.String("addr", "", "websocket listen address (default: sinks.simulator.addr)")
		baud       = flag.Int("baud", 0, "baud rate (default: serial.baud_rate)")
		logLevel   = flag.String("log-level", "", "trace|debug|info|warn|error")
	)
	flag.Parse()

	cfg := config.Default()
	loaded, err := config.Load(*configPath)
	if err == nil {
		cfg = loaded
	}
	if *logLevel != "" {
		cfg.Log.Level = *logLevel
	}
	app.SetupLogging(cfg.Log.Level, cfg.Log.Pretty)
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		log.Fatal().Err(err).Str("path", *configPath).Msg("config load failed")
	}

	path := cfg.Sinks.Simulator.VirtualPort.Path
	if *portPath != "" {
		path = *portPath
	}
	listen := cfg.Sinks.Simulator.Addr
	if *addr != "" {
		listen = *addr
	}
	opts := cfg.Serial.PortOptions
	if *baud > 0 {
		opts.BaudRate = *baud
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	topo := cfg.Topology()
	sim := sink.NewSimulator("simulator", sink.SimulatorConfig{
		Addr: listen,
		Hello: app.Hello{
			Type:         "hello",
			Width:        cfg.Matrix.Width,
			Height:       cfg.Matrix.Height,
			LEDsPerStrip: cfg.LEDsPerStrip,
			NumLEDs:      topo.PhysicalCount(),
			FPS:          cfg.FPS,
		},
	})
	if err := sim.Connect(ctx); err != nil {
		log.Fatal().Err(err).Msg("simulator")
	}
	defer sim.Disconnect()

	port, err := sink.OpenPort(ctx, nil, path, opts)
	if err != nil {
		log.Fatal().Err(err).Str("port", path).Msg("open serial port")
	}
	go func() {
		<-ctx.Done()
		_ = port.Close()
	}()
	log.Info().Str("port", path).Str("addr", sim.Addr()).Msg("bridge running")

	if err := bridge(ctx, packet.NewReader(port), sim, topo.PhysicalCount()*3); err != nil {
		log.Error().Err(err).Msg("bridge stopped")
	}
}

// bridge forwards every valid packet from r to s until the stream ends.
func bridge(ctx context.Context, r *packet.Reader, s sink.Sink, frameSize int) error {
	var frames uint64
	for {
		p, err := r.Next()
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, io.EOF) {
				log.Info().Uint64("frames", frames).Int("skipped", r.Skipped).Int("corrupt", r.Corrupt).Msg("bridge done")
				return nil
			}
			return err
		}
		frames++
		if int(p.Length) != frameSize {
			log.Warn().Int("bytes", int(p.Length)).Int("want", frameSize).Msg("unexpected frame size")
		}
		raw, err := packet.Frame(p.Payload)
		if err != nil {
			return err
		}
		log.Debug().Uint64("frame", frames).Int("bytes", int(p.Length)).Uint8("checksum", p.Checksum).Msg("packet")
		s.Send(raw)
	}
}
