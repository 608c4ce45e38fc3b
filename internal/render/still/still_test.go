package still

import (
	"image"
	"image/color"
	"image/png"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/image/draw"
)

// quadrants is a 4x4 image with a solid color in each 2x2 corner.
func quadrants() *image.NRGBA {
	img := image.NewNRGBA(image.Rect(0, 0, 4, 4))
	colors := []color.NRGBA{
		{R: 255, A: 255}, {G: 255, A: 255},
		{B: 255, A: 255}, {R: 255, G: 255, B: 255, A: 255},
	}
	for y := 0; y < 4; y++ {
		for x := 0; x < 4; x++ {
			img.SetNRGBA(x, y, colors[(y/2)*2+x/2])
		}
	}
	return img
}

func TestStill_NearestDownscale(t *testing.T) {
	s := New("q", quadrants())
	s.Scaler = draw.NearestNeighbor
	dst := image.NewNRGBA(image.Rect(0, 0, 2, 2))
	s.Render(dst, 0)

	assert.Equal(t, color.NRGBA{R: 255, A: 255}, dst.NRGBAAt(0, 0))
	assert.Equal(t, color.NRGBA{G: 255, A: 255}, dst.NRGBAAt(1, 0))
	assert.Equal(t, color.NRGBA{B: 255, A: 255}, dst.NRGBAAt(0, 1))
	assert.Equal(t, color.NRGBA{R: 255, G: 255, B: 255, A: 255}, dst.NRGBAAt(1, 1))
}

func TestStill_UpscaleFillsRaster(t *testing.T) {
	s := New("q", quadrants())
	dst := image.NewNRGBA(image.Rect(0, 0, 7, 9))
	s.Render(dst, 0)
	assert.Equal(t, uint8(255), dst.NRGBAAt(6, 8).A)
	c := dst.NRGBAAt(0, 0)
	assert.Greater(t, c.R, c.B, "top-left stays red dominated")

	// a second render reuses the scaled copy and paints the same pixels
	again := image.NewNRGBA(dst.Rect)
	s.Render(again, 0)
	assert.Equal(t, dst.Pix, again.Pix)
}

func TestLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "q.png")
	f, err := os.Create(path)
	require.NoError(t, err)
	require.NoError(t, png.Encode(f, quadrants()))
	require.NoError(t, f.Close())

	s, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "still:png", s.Name())
	assert.Equal(t, image.Rect(0, 0, 4, 4), s.Source().Bounds())

	_, err = Load(filepath.Join(t.TempDir(), "none.png"))
	assert.ErrorIs(t, err, os.ErrNotExist)

	bad := filepath.Join(t.TempDir(), "bad.png")
	require.NoError(t, os.WriteFile(bad, []byte("not an image"), 0644))
	_, err = Load(bad)
	assert.ErrorIs(t, err, image.ErrFormat)
}
