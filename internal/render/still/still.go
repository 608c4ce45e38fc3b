// Package still renders a fixed image scaled to the matrix.
package still

import (
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"os"
	"time"

	"golang.org/x/image/draw"
)

// Still draws one source image stretched over the whole raster.
type Still struct {
	name string
	src  image.Image
	// Scaler defaults to draw.CatmullRom; draw.NearestNeighbor keeps hard
	// pixel edges.
	Scaler draw.Scaler

	scaled *image.NRGBA
}

func New(name string, src image.Image) *Still {
	return &Still{name: name, src: src, Scaler: draw.CatmullRom}
}

// Load decodes a PNG, JPEG or GIF file.
func Load(path string) (*Still, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	img, format, err := image.Decode(f)
	if err != nil {
		return nil, fmt.Errorf("decode %s: %w", path, err)
	}
	s := New("still", img)
	s.name = fmt.Sprintf("still:%s", format)
	return s, nil
}

func (s *Still) Name() string { return s.name }

// Source is the unscaled image.
func (s *Still) Source() image.Image { return s.src }

func (s *Still) Render(dst *image.NRGBA, _ time.Duration) {
	b := dst.Bounds()
	if s.scaled == nil || s.scaled.Rect.Dx() != b.Dx() || s.scaled.Rect.Dy() != b.Dy() {
		s.scaled = image.NewNRGBA(image.Rect(0, 0, b.Dx(), b.Dy()))
		scaler := s.Scaler
		if scaler == nil {
			scaler = draw.CatmullRom
		}
		scaler.Scale(s.scaled, s.scaled.Rect, s.src, s.src.Bounds(), draw.Src, nil)
	}
	draw.Copy(dst, b.Min, s.scaled, s.scaled.Rect, draw.Src, nil)
}
