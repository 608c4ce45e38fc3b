package pattern

import (
	"image"
	"image/color"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/coreman2200/ledmatrix/internal/render"
)

func canvas(w, h int) *image.NRGBA { return image.NewNRGBA(image.Rect(0, 0, w, h)) }

func lit(img *image.NRGBA) []image.Point {
	var out []image.Point
	b := img.Bounds()
	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			c := img.NRGBAAt(x, y)
			if c.R|c.G|c.B != 0 {
				out = append(out, image.Pt(x, y))
			}
		}
	}
	return out
}

func TestRegister(t *testing.T) {
	reg := render.NewRegistry()
	Register(reg)
	assert.Equal(t, []string{"channels", "columns", "gradient", "rainbow", "solid", "sweep"}, reg.List())
}

func TestSolid(t *testing.T) {
	s := NewSolid("solid", color.NRGBA{R: 10, G: 20, B: 30, A: 255})
	img := canvas(3, 2)
	s.Render(img, 0)
	assert.Equal(t, color.NRGBA{R: 10, G: 20, B: 30, A: 255}, img.NRGBAAt(2, 1))

	s.ApplyPreset("Blue")
	s.Render(img, 0)
	assert.Equal(t, color.NRGBA{B: 255, A: 255}, img.NRGBAAt(0, 0))

	s.ApplyPreset("Chartreuse")
	s.Render(img, 0)
	assert.Equal(t, color.NRGBA{B: 255, A: 255}, img.NRGBAAt(0, 0), "unknown preset is ignored")

	s.PulseHz = 1
	s.Render(img, 750*time.Millisecond)
	assert.Equal(t, color.NRGBA{A: 255}, img.NRGBAAt(0, 0), "pulse trough is dark")
}

func TestTune(t *testing.T) {
	s := NewSolid("solid", color.NRGBA{R: 255, G: 255, B: 255, A: 255})
	require.NoError(t, Tune(s, "", 0))
	assert.Zero(t, s.PulseHz)

	require.NoError(t, Tune(s, "Green", 2))
	assert.Equal(t, 2.0, s.PulseHz)
	img := canvas(1, 1)
	s.Render(img, 125*time.Millisecond)
	assert.Equal(t, color.NRGBA{G: 255, A: 255}, img.NRGBAAt(0, 0), "pulse crest is full green")

	assert.ErrorContains(t, Tune(s, "Chartreuse", 0), "Red, Green, Blue, White, Black")
	assert.Error(t, Tune(s, "", -1))
	assert.ErrorContains(t, Tune(NewRainbow("rainbow"), "Red", 0), "rainbow")
	assert.NoError(t, Tune(NewRainbow("rainbow"), "", 0))
}

func TestSweep_WalksStripMajor(t *testing.T) {
	s := NewSweep("sweep")
	s.Step = time.Second
	img := canvas(2, 3)

	want := []image.Point{{0, 0}, {0, 1}, {0, 2}, {1, 0}, {1, 1}, {1, 2}, {0, 0}}
	for i, p := range want {
		s.Render(img, time.Duration(i)*time.Second)
		assert.Equal(t, []image.Point{p}, lit(img), "step %d", i)
	}
}

func TestChannels(t *testing.T) {
	c := NewChannels("channels")
	img := canvas(1, 1)
	for i, want := range []color.NRGBA{
		{R: 255, A: 255}, {G: 255, A: 255}, {B: 255, A: 255}, {R: 255, A: 255},
	} {
		c.Render(img, time.Duration(i)*c.Period)
		assert.Equal(t, want, img.NRGBAAt(0, 0), "phase %d", i)
	}
}

func TestColumns(t *testing.T) {
	c := NewColumns("columns")
	img := canvas(3, 2)
	c.Render(img, 4*c.Period)
	assert.Equal(t, []image.Point{{1, 0}, {1, 1}}, lit(img))
}

func TestRainbowAndGradientFillEveryPixel(t *testing.T) {
	for _, r := range []render.Renderer{NewRainbow("rainbow"), NewGradient("gradient")} {
		img := canvas(4, 3)
		r.Render(img, 123*time.Millisecond)
		b := img.Bounds()
		for y := b.Min.Y; y < b.Max.Y; y++ {
			for x := b.Min.X; x < b.Max.X; x++ {
				require.Equal(t, uint8(255), img.NRGBAAt(x, y).A, "%s (%d,%d)", r.Name(), x, y)
			}
		}
	}
}

func TestRainbow_StartsRed(t *testing.T) {
	img := canvas(2, 2)
	NewRainbow("rainbow").Render(img, 0)
	assert.Equal(t, color.NRGBA{R: 255, A: 255}, img.NRGBAAt(0, 0))
}
