// Package render defines the frame producers the conductor draws from.
//
// A Renderer paints the logical raster: one column per strip, one row per
// LED along the strip, top row first.
package render

import (
	"image"
	"math"
	"sort"
	"time"
)

type Renderer interface {
	Name() string
	// Render paints dst for time t since the start of the run. dst is
	// reused between frames and must be fully overwritten.
	Render(dst *image.NRGBA, t time.Duration)
}

type Registry struct{ m map[string]Renderer }

func NewRegistry() *Registry { return &Registry{m: map[string]Renderer{}} }

func (r *Registry) Register(rr Renderer) {
	if rr == nil {
		return
	}
	r.m[rr.Name()] = rr
}

func (r *Registry) Get(name string) (Renderer, bool) {
	rr, ok := r.m[name]
	return rr, ok
}

// List returns the registered names in sorted order.
func (r *Registry) List() []string {
	out := make([]string, 0, len(r.m))
	for k := range r.m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// Fill paints every pixel of dst with (r, g, b), fully opaque.
func Fill(dst *image.NRGBA, r, g, b uint8) {
	b0 := dst.Bounds()
	for y := b0.Min.Y; y < b0.Max.Y; y++ {
		i := dst.PixOffset(b0.Min.X, y)
		for x := b0.Min.X; x < b0.Max.X; x++ {
			dst.Pix[i+0], dst.Pix[i+1], dst.Pix[i+2], dst.Pix[i+3] = r, g, b, 0xFF
			i += 4
		}
	}
}

// SetRGB writes one opaque pixel.
func SetRGB(dst *image.NRGBA, x, y int, r, g, b uint8) {
	if !(image.Point{X: x, Y: y}.In(dst.Rect)) {
		return
	}
	i := dst.PixOffset(x, y)
	dst.Pix[i+0], dst.Pix[i+1], dst.Pix[i+2], dst.Pix[i+3] = r, g, b, 0xFF
}

// HSV converts hue, saturation and value in [0,1] to 8-bit RGB.
func HSV(h, s, v float64) (uint8, uint8, uint8) {
	h = h - math.Floor(h)
	i := int(h * 6.0)
	f := h*6.0 - float64(i)
	p := v * (1.0 - s)
	q := v * (1.0 - f*s)
	t := v * (1.0 - (1.0-f)*s)
	var r, g, b float64
	switch i % 6 {
	case 0:
		r, g, b = v, t, p
	case 1:
		r, g, b = q, v, p
	case 2:
		r, g, b = p, v, t
	case 3:
		r, g, b = p, q, v
	case 4:
		r, g, b = t, p, v
	default:
		r, g, b = v, p, q
	}
	return to8(r), to8(g), to8(b)
}

func to8(x float64) uint8 {
	switch {
	case x <= 0:
		return 0
	case x >= 1:
		return 255
	}
	return uint8(math.Round(x * 255))
}
