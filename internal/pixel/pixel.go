// Package pixel converts rendered RGBA images into the packed RGB buffers
// consumed by the layout mapper.
package pixel

import (
	"fmt"
	"image"
	"image/color"
	"math"
)

// Buffer is a row-major RGB raster, 3 bytes per pixel.
type Buffer struct {
	Width  int
	Height int
	Pix    []byte
}

// NewBuffer allocates a zeroed w x h buffer.
func NewBuffer(w, h int) Buffer {
	return Buffer{Width: w, Height: h, Pix: make([]byte, w*h*3)}
}

// At returns the RGB triple at (x, y).
func (b Buffer) At(x, y int) (r, g, bl byte) {
	i := (y*b.Width + x) * 3
	return b.Pix[i], b.Pix[i+1], b.Pix[i+2]
}

// Set stores an RGB triple at (x, y).
func (b Buffer) Set(x, y int, r, g, bl byte) {
	i := (y*b.Width + x) * 3
	b.Pix[i], b.Pix[i+1], b.Pix[i+2] = r, g, bl
}

// ToRGB drops the alpha byte of every RGBA quad. Pixel order is preserved;
// a trailing partial quad is ignored.
func ToRGB(rgba []byte) []byte {
	n := len(rgba) / 4
	rgb := make([]byte, n*3)
	for i, j := 0, 0; i < n*4; i, j = i+4, j+3 {
		rgb[j] = rgba[i]
		rgb[j+1] = rgba[i+1]
		rgb[j+2] = rgba[i+2]
	}
	return rgb
}

// FromImage converts the visible rectangle of img into an RGB buffer.
func FromImage(img *image.NRGBA) Buffer {
	r := img.Bounds()
	w, h := r.Dx(), r.Dy()
	if img.Stride == w*4 && img.Rect.Min == (image.Point{}) {
		return Buffer{Width: w, Height: h, Pix: ToRGB(img.Pix[:w*h*4])}
	}
	out := NewBuffer(w, h)
	for y := 0; y < h; y++ {
		row := img.Pix[img.PixOffset(r.Min.X, r.Min.Y+y):]
		copy(out.Pix[y*w*3:(y+1)*w*3], ToRGB(row[:w*4]))
	}
	return out
}

// Limit scales every channel by brightness and then clamps each LED so that
// r+g+b <= whiteCap*3*255. brightness >= 1 and whiteCap outside (0,1) are
// no-ops for their respective stage.
func Limit(rgb []byte, brightness, whiteCap float64) {
	if brightness >= 0 && brightness < 1 {
		for i := range rgb {
			rgb[i] = byte(math.Round(float64(rgb[i]) * brightness))
		}
	}
	if whiteCap <= 0 || whiteCap >= 1 {
		return
	}
	limit := whiteCap * 3.0 * 255.0
	for i := 0; i+2 < len(rgb); i += 3 {
		s := float64(rgb[i]) + float64(rgb[i+1]) + float64(rgb[i+2])
		if s > limit {
			scale := limit / s
			rgb[i] = byte(float64(rgb[i]) * scale)
			rgb[i+1] = byte(float64(rgb[i+1]) * scale)
			rgb[i+2] = byte(float64(rgb[i+2]) * scale)
		}
	}
}

// Marker builds a physical-order frame of count pixels where only the pixel
// at index is lit with c. Used to locate LEDs while wiring.
func Marker(count, index int, c color.RGBA) ([]byte, error) {
	if count <= 0 {
		return nil, fmt.Errorf("invalid pixel count %d", count)
	}
	if index < 0 || index >= count {
		return nil, fmt.Errorf("marker index %d out of range [0,%d)", index, count)
	}
	rgb := make([]byte, count*3)
	rgb[index*3], rgb[index*3+1], rgb[index*3+2] = c.R, c.G, c.B
	return rgb, nil
}
