package sink

import (
	"context"
	"fmt"
	"image"
	"io"
	"sync"
	"time"

	"periph.io/x/conn/v3/display"
	"periph.io/x/conn/v3/physic"
	"periph.io/x/conn/v3/spi"
	"periph.io/x/conn/v3/spi/spireg"
	"periph.io/x/devices/v3/nrzled"
	"periph.io/x/extra/devices/screen"
	"periph.io/x/host/v3"

	"github.com/coreman2200/ledmatrix/internal/packet"
)

// DefaultFreq is the SPI clock for the NRZ strip encoder.
const DefaultFreq = 2500 * physic.KiloHertz

// DrawerOpener produces the device a Drawer paints on.
type DrawerOpener func(ctx context.Context) (display.Drawer, error)

// Drawer decodes each packet and paints its payload as a one-row image on a
// periph display. It drives a strip chain directly from the host, bypassing
// the controller, or renders to the terminal.
type Drawer struct {
	name string
	open DrawerOpener
	link *link

	mu  sync.Mutex
	dev display.Drawer
}

func NewDrawer(name string, open DrawerOpener, opts ...Option) *Drawer {
	return &Drawer{name: name, open: open, link: newLink(name, newSettings(opts))}
}

// NewSPI drives numPixels NRZ LEDs on the SPI port dev ("" picks the first
// registered port).
func NewSPI(name, dev string, freq physic.Frequency, numPixels int, opts ...Option) *Drawer {
	if name == "" {
		name = "spi"
	}
	return NewDrawer(name, func(ctx context.Context) (display.Drawer, error) {
		if _, err := host.Init(); err != nil {
			return nil, fmt.Errorf("host init: %w", err)
		}
		p, err := spireg.Open(dev)
		if err != nil {
			return nil, fmt.Errorf("open spi %q: %w", dev, err)
		}
		d, err := NewNRZ(p, freq, numPixels)
		if err != nil {
			_ = p.Close()
			return nil, err
		}
		return &spiStrip{Dev: d, port: p}, nil
	}, opts...)
}

// NewNRZ wraps an SPI port in an nrzled strip driver and blanks the strip.
func NewNRZ(p spi.Port, freq physic.Frequency, numPixels int) (*nrzled.Dev, error) {
	if freq <= 0 {
		freq = DefaultFreq
	}
	d, err := nrzled.NewSPI(p, &nrzled.Opts{NumPixels: numPixels, Channels: 3, Freq: freq})
	if err != nil {
		return nil, fmt.Errorf("nrzled: %w", err)
	}
	if err := d.Halt(); err != nil {
		return nil, fmt.Errorf("nrzled halt: %w", err)
	}
	return d, nil
}

// spiStrip releases the SPI port along with the strip.
type spiStrip struct {
	*nrzled.Dev
	port spi.PortCloser
}

func (s *spiStrip) Close() error { return s.port.Close() }

// NewConsole paints numPixels LEDs as ANSI blocks on stdout.
func NewConsole(name string, numPixels int, opts ...Option) *Drawer {
	if name == "" {
		name = "console"
	}
	return NewDrawer(name, func(context.Context) (display.Drawer, error) {
		return screen.New(numPixels), nil
	}, opts...)
}

func (d *Drawer) Name() string { return d.name }

func (d *Drawer) Connect(ctx context.Context) error {
	if !d.link.begin() {
		return nil
	}
	if err := ctx.Err(); err != nil {
		d.link.fail()
		return &ConnectionError{Sink: d.name, Err: err}
	}
	dev, err := d.open(ctx)
	if err != nil {
		d.link.fail()
		return &ConnectionError{Sink: d.name, Err: err}
	}
	d.mu.Lock()
	d.dev = dev
	d.mu.Unlock()

	if !d.link.up(func(b []byte) error { return draw(dev, b) }) {
		d.release()
		return &ConnectionError{Sink: d.name, Err: ErrAborted}
	}
	return nil
}

func (d *Drawer) Send(packet []byte) { d.link.send(packet) }

func (d *Drawer) Disconnect() {
	d.link.down(nil)
	d.release()
}

func (d *Drawer) IsHealthy(maxAge time.Duration) bool { return d.link.healthy(maxAge) }

func (d *Drawer) State() State { return d.link.current() }

func (d *Drawer) Stats() Stats { return d.link.stats() }

func (d *Drawer) release() {
	d.mu.Lock()
	dev := d.dev
	d.dev = nil
	d.mu.Unlock()
	if dev == nil {
		return
	}
	if err := dev.Halt(); err != nil {
		d.link.log.Debug().Err(err).Msg("halt")
	}
	if c, ok := dev.(io.Closer); ok {
		if err := c.Close(); err != nil {
			d.link.log.Debug().Err(err).Msg("close")
		}
	}
}

// draw checks the packet the way the controller would, then paints the
// payload. A corrupt packet is a write failure.
func draw(dev display.Drawer, raw []byte) error {
	p, err := packet.Decode(raw)
	if err != nil {
		return err
	}
	img := RowImage(p.Payload)
	return dev.Draw(dev.Bounds(), img, image.Point{})
}

// RowImage lays an RGB payload out as a single-row image.
func RowImage(rgb []byte) *image.NRGBA {
	n := len(rgb) / 3
	img := image.NewNRGBA(image.Rect(0, 0, n, 1))
	for i := 0; i < n; i++ {
		img.Pix[i*4+0] = rgb[i*3+0]
		img.Pix[i*4+1] = rgb[i*3+1]
		img.Pix[i*4+2] = rgb[i*3+2]
		img.Pix[i*4+3] = 0xFF
	}
	return img
}
