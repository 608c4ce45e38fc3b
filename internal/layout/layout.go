// Package layout maps a logical raster image onto the physical LED wiring
// order of the matrix.
//
// The raster has one column per strip (left to right in controller order)
// and one row per LED position along a strip. Strips are grouped by the
// controller pin driving them. Inside a group the strips were soldered in
// reverse, so physical position p reads logical column groupStart+(n-1-p),
// and alternating strips run a serpentine, so odd positions read their
// column bottom-up.
package layout

import (
	"errors"
	"fmt"

	"github.com/coreman2200/ledmatrix/internal/pixel"
)

// ErrInvalidTopology is wrapped by every Validate failure.
var ErrInvalidTopology = errors.New("invalid topology")

// Group is a set of strips wired to one controller pin.
type Group struct {
	ID     int `yaml:"id" json:"id"`
	Pin    int `yaml:"pin" json:"pin"`
	Strips int `yaml:"strips" json:"strips"`
	// Offset > 0 inserts dark placeholder pixels ahead of the group's data,
	// Offset < 0 drops that many leading pixels of the group.
	Offset int `yaml:"offset" json:"offset"`
}

// Len is the number of LEDs the group feeds before offset correction.
func (g Group) Len(ledsPerStrip int) int {
	return g.Strips * ledsPerStrip
}

// Topology is the immutable description of the wiring, loaded once.
type Topology struct {
	Groups       []Group
	LEDsPerStrip int
}

// Validate checks the structural invariants of the topology.
func (t Topology) Validate() error {
	if t.LEDsPerStrip < 1 {
		return fmt.Errorf("%w: leds per strip must be >= 1, got %d", ErrInvalidTopology, t.LEDsPerStrip)
	}
	if len(t.Groups) == 0 {
		return fmt.Errorf("%w: no groups", ErrInvalidTopology)
	}
	for i, g := range t.Groups {
		if g.Strips < 1 {
			return fmt.Errorf("%w: group %d (id %d) has %d strips", ErrInvalidTopology, i, g.ID, g.Strips)
		}
		if g.Offset < 0 && -g.Offset > g.Len(t.LEDsPerStrip) {
			return fmt.Errorf("%w: group %d (id %d) offset %d exceeds %d leds",
				ErrInvalidTopology, i, g.ID, g.Offset, g.Len(t.LEDsPerStrip))
		}
	}
	return nil
}

// TotalStrips is the logical raster width.
func (t Topology) TotalStrips() int {
	n := 0
	for _, g := range t.Groups {
		n += g.Strips
	}
	return n
}

// LogicalCount is the number of pixels in the logical raster.
func (t Topology) LogicalCount() int {
	return t.TotalStrips() * t.LEDsPerStrip
}

// PhysicalCount is the number of pixels emitted after offset correction.
func (t Topology) PhysicalCount() int {
	n := 0
	for _, g := range t.Groups {
		n += g.Len(t.LEDsPerStrip) + g.Offset
	}
	return n
}

// GroupStart returns the first logical column owned by group gi.
func (t Topology) GroupStart(gi int) int {
	start := 0
	for _, g := range t.Groups[:gi] {
		start += g.Strips
	}
	return start
}

// SourceColumn returns the logical column read by physical position p of
// group gi.
func (t Topology) SourceColumn(gi, p int) int {
	return t.GroupStart(gi) + (t.Groups[gi].Strips - 1 - p)
}

// Reversed reports whether physical position p runs bottom-up.
func Reversed(p int) bool {
	return p%2 == 1
}

// Remap reorders a logical RGB raster (TotalStrips wide, LEDsPerStrip tall)
// into LED order, strip by strip.
func (t Topology) Remap(src []byte) ([]byte, error) {
	if err := t.Validate(); err != nil {
		return nil, err
	}
	w, h := t.TotalStrips(), t.LEDsPerStrip
	if len(src) != w*h*3 {
		return nil, &ShapeMismatchError{WantWidth: w, WantHeight: h, GotBytes: len(src), WantBytes: w * h * 3}
	}
	out := make([]byte, 0, len(src))
	start := 0
	for _, g := range t.Groups {
		n := g.Strips
		for p := 0; p < n; p++ {
			col := start + (n - 1 - p)
			for r := 0; r < h; r++ {
				row := r
				if Reversed(p) {
					row = h - 1 - r
				}
				i := (row*w + col) * 3
				out = append(out, src[i], src[i+1], src[i+2])
			}
		}
		start += n
	}
	return out, nil
}

// FixOffsets applies each group's signed offset to remapped LED-order data.
func (t Topology) FixOffsets(remapped []byte) ([]byte, error) {
	if err := t.Validate(); err != nil {
		return nil, err
	}
	want := t.LogicalCount() * 3
	if len(remapped) != want {
		return nil, &ShapeMismatchError{
			WantWidth: t.TotalStrips(), WantHeight: t.LEDsPerStrip,
			GotBytes: len(remapped), WantBytes: want,
		}
	}
	out := make([]byte, 0, t.PhysicalCount()*3)
	pos := 0
	for _, g := range t.Groups {
		chunk := remapped[pos : pos+g.Len(t.LEDsPerStrip)*3]
		pos += len(chunk)
		switch {
		case g.Offset > 0:
			out = append(out, make([]byte, g.Offset*3)...)
			out = append(out, chunk...)
		case g.Offset < 0:
			out = append(out, chunk[-g.Offset*3:]...)
		default:
			out = append(out, chunk...)
		}
	}
	return out, nil
}

// Map runs both stages over buf. buf must be exactly TotalStrips x
// LEDsPerStrip pixels.
func (t Topology) Map(buf pixel.Buffer) ([]byte, error) {
	if err := t.Validate(); err != nil {
		return nil, err
	}
	w, h := t.TotalStrips(), t.LEDsPerStrip
	if buf.Width != w || buf.Height != h || len(buf.Pix) != w*h*3 {
		return nil, &ShapeMismatchError{
			WantWidth: w, WantHeight: h,
			GotWidth: buf.Width, GotHeight: buf.Height,
			GotBytes: len(buf.Pix), WantBytes: w * h * 3,
		}
	}
	remapped, err := t.Remap(buf.Pix)
	if err != nil {
		return nil, err
	}
	return t.FixOffsets(remapped)
}
