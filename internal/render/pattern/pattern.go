// Package pattern holds the built-in test and demo renderers.
package pattern

import (
	"fmt"
	"image"
	"image/color"
	"math"
	"slices"
	"strings"
	"time"

	"github.com/coreman2200/ledmatrix/internal/render"
)

// Register adds every built-in pattern under its default name.
func Register(reg *render.Registry) {
	reg.Register(NewSolid("solid", color.NRGBA{R: 255, G: 255, B: 255, A: 255}))
	reg.Register(NewGradient("gradient"))
	reg.Register(NewRainbow("rainbow"))
	reg.Register(NewSweep("sweep"))
	reg.Register(NewChannels("channels"))
	reg.Register(NewColumns("columns"))
}

// Solid fills the raster with one color. PulseHz > 0 modulates brightness.
type Solid struct {
	name    string
	c       color.NRGBA
	PulseHz float64
}

func NewSolid(name string, c color.NRGBA) *Solid { return &Solid{name: name, c: c} }

func (s *Solid) Name() string { return s.name }

func (s *Solid) Presets() []string { return []string{"Red", "Green", "Blue", "White", "Black"} }

// ApplyPreset switches to a named color; unknown names are ignored.
func (s *Solid) ApplyPreset(name string) {
	switch name {
	case "Red":
		s.c = color.NRGBA{R: 255, A: 255}
	case "Green":
		s.c = color.NRGBA{G: 255, A: 255}
	case "Blue":
		s.c = color.NRGBA{B: 255, A: 255}
	case "White":
		s.c = color.NRGBA{R: 255, G: 255, B: 255, A: 255}
	case "Black":
		s.c = color.NRGBA{A: 255}
	}
}

// Tune applies a color preset and pulse rate to r, which must be a *Solid
// when either is set. An empty preset keeps the current color.
func Tune(r render.Renderer, preset string, pulseHz float64) error {
	if preset == "" && pulseHz == 0 {
		return nil
	}
	s, ok := r.(*Solid)
	if !ok {
		return fmt.Errorf("%s takes no color or pulse", r.Name())
	}
	if pulseHz < 0 {
		return fmt.Errorf("pulse must be >= 0, got %g", pulseHz)
	}
	if preset != "" {
		if !slices.Contains(s.Presets(), preset) {
			return fmt.Errorf("unknown color %q (have %s)", preset, strings.Join(s.Presets(), ", "))
		}
		s.ApplyPreset(preset)
	}
	s.PulseHz = pulseHz
	return nil
}

func (s *Solid) Render(dst *image.NRGBA, t time.Duration) {
	scale := 1.0
	if s.PulseHz > 0 {
		scale = 0.5 + 0.5*math.Sin(2*math.Pi*s.PulseHz*t.Seconds())
	}
	render.Fill(dst, mul(s.c.R, scale), mul(s.c.G, scale), mul(s.c.B, scale))
}

func mul(c uint8, k float64) uint8 { return uint8(math.Round(float64(c) * k)) }

// Gradient runs phase-shifted sines across one axis.
// Axis 0 varies along strips (X), 1 along each strip (Y). Speed is in
// cycles per second.
type Gradient struct {
	name  string
	Axis  int
	Speed float64
}

func NewGradient(name string) *Gradient { return &Gradient{name: name} }

func (g *Gradient) Name() string { return g.name }

func (g *Gradient) Render(dst *image.NRGBA, t time.Duration) {
	b := dst.Bounds()
	w, h := b.Dx(), b.Dy()
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			v := norm(x, w)
			if g.Axis == 1 {
				v = norm(y, h)
			}
			phase := v*2*math.Pi + t.Seconds()*2*math.Pi*g.Speed
			render.SetRGB(dst, b.Min.X+x, b.Min.Y+y,
				wave(phase), wave(phase+2*math.Pi/3), wave(phase+4*math.Pi/3))
		}
	}
}

func wave(phase float64) uint8 { return uint8(math.Round(255 * (0.5 + 0.5*math.Sin(phase)))) }

// norm maps i in [0,n) onto [0,1].
func norm(i, n int) float64 {
	if n <= 1 {
		return 0
	}
	return float64(i) / float64(n-1)
}

// Rainbow is a diagonal hue wheel that rotates over time.
type Rainbow struct {
	name       string
	Speed      float64 // hue turns per second
	Brightness float64
}

func NewRainbow(name string) *Rainbow { return &Rainbow{name: name, Speed: 0.3, Brightness: 1} }

func (r *Rainbow) Name() string { return r.name }

func (r *Rainbow) Render(dst *image.NRGBA, t time.Duration) {
	b := dst.Bounds()
	w, h := b.Dx(), b.Dy()
	phase := t.Seconds() * r.Speed
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			hue := math.Mod(norm(x, w)+norm(y, h)+phase, 1.0)
			cr, cg, cb := render.HSV(hue, 1.0, r.Brightness)
			render.SetRGB(dst, b.Min.X+x, b.Min.Y+y, cr, cg, cb)
		}
	}
}

// Sweep lights one white pixel that walks the raster strip by strip, top to
// bottom within each strip. It shows the wiring order at a glance.
type Sweep struct {
	name string
	Step time.Duration
}

func NewSweep(name string) *Sweep { return &Sweep{name: name, Step: time.Second / 30} }

func (s *Sweep) Name() string { return s.name }

// Index is the logical pixel lit at t, counted strip-major.
func (s *Sweep) Index(t time.Duration, w, h int) (x, y int) {
	n := w * h
	if n == 0 {
		return 0, 0
	}
	i := step(t, s.Step) % n
	return i / h, i % h
}

func (s *Sweep) Render(dst *image.NRGBA, t time.Duration) {
	b := dst.Bounds()
	render.Fill(dst, 0, 0, 0)
	x, y := s.Index(t, b.Dx(), b.Dy())
	render.SetRGB(dst, b.Min.X+x, b.Min.Y+y, 255, 255, 255)
}

// Channels cycles the whole raster through red, green and blue.
type Channels struct {
	name   string
	Period time.Duration
}

func NewChannels(name string) *Channels { return &Channels{name: name, Period: time.Second} }

func (c *Channels) Name() string { return c.name }

func (c *Channels) Render(dst *image.NRGBA, t time.Duration) {
	switch step(t, c.Period) % 3 {
	case 0:
		render.Fill(dst, 255, 0, 0)
	case 1:
		render.Fill(dst, 0, 255, 0)
	default:
		render.Fill(dst, 0, 0, 255)
	}
}

// Columns lights one logical column at a time in cyan, left to right.
type Columns struct {
	name   string
	Period time.Duration
}

func NewColumns(name string) *Columns { return &Columns{name: name, Period: 500 * time.Millisecond} }

func (c *Columns) Name() string { return c.name }

func (c *Columns) Render(dst *image.NRGBA, t time.Duration) {
	b := dst.Bounds()
	render.Fill(dst, 0, 0, 0)
	if b.Dx() == 0 {
		return
	}
	col := step(t, c.Period) % b.Dx()
	for y := b.Min.Y; y < b.Max.Y; y++ {
		render.SetRGB(dst, b.Min.X+col, y, 0, 255, 255)
	}
}

func step(t, every time.Duration) int {
	if every <= 0 || t < 0 {
		return 0
	}
	return int(t / every)
}
