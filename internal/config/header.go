package config

import (
	"io"
	"strconv"
	"strings"
	"text/template"
	"time"

	"github.com/coreman2200/ledmatrix/internal/packet"
)

var headerTmpl = template.Must(template.New("config.h").Parse(`// Auto-generated by genheader - DO NOT EDIT
// Generated: {{.Generated}}

#ifndef CONFIG_H
#define CONFIG_H

#include <stdint.h>

#define MATRIX_WIDTH {{.Width}}
#define MATRIX_HEIGHT {{.Height}}
#define LEDS_PER_STRIP {{.LEDsPerStrip}}
#define NUM_GROUPS {{.Groups}}
#define NUM_LEDS {{.NumLEDs}}
#define FRAME_SIZE (NUM_LEDS * 3)
#define SERIAL_BAUD {{.Baud}}
#define PACKET_MAGIC_0 0x{{printf "%02X" .Magic0}}
#define PACKET_MAGIC_1 0x{{printf "%02X" .Magic1}}

static const uint8_t GROUP_PINS[NUM_GROUPS] = { {{.Pins}} };
static const uint16_t GROUP_STRIPS[NUM_GROUPS] = { {{.Strips}} };
static const int16_t GROUP_OFFSETS[NUM_GROUPS] = { {{.Offsets}} };

#endif
`))

type headerData struct {
	Generated            string
	Width, Height        int
	LEDsPerStrip, Groups int
	NumLEDs, Baud        int
	Magic0, Magic1       byte
	Pins, Strips         string
	Offsets              string
}

// WriteHeader renders the C header the controller firmware is built with.
// NUM_LEDS is the physical count after offset correction.
func (c *Config) WriteHeader(w io.Writer, generated time.Time) error {
	topo := c.Topology()
	baud := c.Serial.BaudRate
	if opts, err := c.Serial.PortOptions.Normalize(); err == nil {
		baud = opts.BaudRate
	}
	var pins, strips, offsets []string
	for _, g := range c.Groups {
		pins = append(pins, strconv.Itoa(g.Pin))
		strips = append(strips, strconv.Itoa(g.Strips))
		offsets = append(offsets, strconv.Itoa(g.Offset))
	}
	return headerTmpl.Execute(w, headerData{
		Generated:    generated.UTC().Format(time.RFC3339),
		Width:        c.Matrix.Width,
		Height:       c.Matrix.Height,
		LEDsPerStrip: c.LEDsPerStrip,
		Groups:       len(c.Groups),
		NumLEDs:      topo.PhysicalCount(),
		Baud:         baud,
		Magic0:       packet.Magic0,
		Magic1:       packet.Magic1,
		Pins:         strings.Join(pins, ", "),
		Strips:       strings.Join(strips, ", "),
		Offsets:      strings.Join(offsets, ", "),
	})
}
