package app

import (
	"context"
	"errors"
	"fmt"
	"image"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/coreman2200/ledmatrix/internal/layout"
	"github.com/coreman2200/ledmatrix/internal/packet"
	"github.com/coreman2200/ledmatrix/internal/pixel"
	"github.com/coreman2200/ledmatrix/internal/render"
	"github.com/coreman2200/ledmatrix/internal/timeutil"
	"github.com/coreman2200/ledmatrix/internal/transport"
)

// ErrFrameSkipped is returned by Tick when no packet went out for the tick.
var ErrFrameSkipped = errors.New("frame skipped")

// Limit is the power limiting applied to every rendered frame.
type Limit struct {
	Brightness float64
	WhiteCap   float64
}

// Conductor drives one renderer at a fixed rate through the pipeline:
// render, strip alpha, limit, remap, frame, send.
type Conductor struct {
	Transport *transport.Transport
	Topology  layout.Topology
	Renderer  render.Renderer
	FPS       int
	Limit     Limit
	Clock     timeutil.Clock

	canvas  *image.NRGBA
	start   time.Time
	sent    uint64
	skipped uint64
}

func NewConductor(tr *transport.Transport, topo layout.Topology, r render.Renderer, fps int) *Conductor {
	return &Conductor{
		Transport: tr,
		Topology:  topo,
		Renderer:  r,
		FPS:       fps,
		Limit:     Limit{Brightness: 1},
		Clock:     timeutil.RealClock{},
	}
}

// Counters reports frames sent and skipped so far.
func (c *Conductor) Counters() (sent, skipped uint64) { return c.sent, c.skipped }

func (c *Conductor) clock() timeutil.Clock {
	if c.Clock == nil {
		c.Clock = timeutil.RealClock{}
	}
	return c.Clock
}

// Tick produces and dispatches one frame. An unhealthy transport skips the
// frame and gets one recovery attempt instead.
func (c *Conductor) Tick(ctx context.Context) error {
	if !c.Transport.IsHealthy() {
		c.skipped++
		log.Warn().Uint64("skipped", c.skipped).Msg("transport unhealthy, skipping frame")
		if err := c.Transport.Recover(ctx); err != nil {
			log.Warn().Err(err).Msg("recover")
		}
		return ErrFrameSkipped
	}

	w, h := c.Topology.TotalStrips(), c.Topology.LEDsPerStrip
	if c.canvas == nil || c.canvas.Rect.Dx() != w || c.canvas.Rect.Dy() != h {
		c.canvas = image.NewNRGBA(image.Rect(0, 0, w, h))
	}
	if c.start.IsZero() {
		c.start = c.clock().Now()
	}
	c.Renderer.Render(c.canvas, c.clock().Since(c.start))
	return c.SendBuffer(pixel.FromImage(c.canvas))
}

// SendBuffer maps an RGB raster to wiring order and dispatches it. buf.Pix
// is limited in place. A raster that does not match the topology is dropped.
func (c *Conductor) SendBuffer(buf pixel.Buffer) error {
	pixel.Limit(buf.Pix, c.Limit.Brightness, c.Limit.WhiteCap)
	mapped, err := c.Topology.Map(buf)
	if err != nil {
		c.skipped++
		log.Error().Err(err).Msg("frame dropped")
		return fmt.Errorf("%w: %w", ErrFrameSkipped, err)
	}
	return c.SendRaw(mapped)
}

// SendRaw frames an LED-order payload as is, bypassing remapping. Used for
// bring-up frames such as the marker.
func (c *Conductor) SendRaw(payload []byte) error {
	pkt, err := packet.Frame(payload)
	if err != nil {
		c.skipped++
		return fmt.Errorf("%w: %w", ErrFrameSkipped, err)
	}
	c.Transport.Send(pkt)
	c.sent++
	return nil
}

// Run connects the transport, ticks at FPS on Clock until ctx ends, then
// disconnects. Connect failures are logged; unhealthy sinks are retried from
// Tick.
func (c *Conductor) Run(ctx context.Context) error {
	if err := c.Transport.Connect(ctx); err != nil {
		log.Warn().Err(err).Msg("initial connect incomplete")
	}
	defer c.Transport.Disconnect()

	fps := c.FPS
	if fps <= 0 {
		fps = 30
	}
	ticker := c.clock().NewTicker(time.Second / time.Duration(fps))
	defer ticker.Stop()

	log.Info().Int("fps", fps).Str("renderer", c.Renderer.Name()).
		Int("leds", c.Topology.PhysicalCount()).Msg("conductor running")
	for {
		select {
		case <-ctx.Done():
			log.Info().Uint64("sent", c.sent).Uint64("skipped", c.skipped).Msg("conductor stopped")
			return nil
		case <-ticker.C():
			if err := c.Tick(ctx); err != nil && !errors.Is(err, ErrFrameSkipped) {
				return err
			}
		}
	}
}
