// Package color provides the tag palette and hex color parsing.
package color

import (
	"fmt"
	"strconv"
	"strings"
)

// Starred is the fixed color of the reserved starred tag.
const Starred = "#F5B700"

// paletteSize hues are spread around the wheel; stepping by a stride coprime with
// the size keeps consecutive tag ids visually far apart.
const (
	paletteSize   = 12
	paletteStride = 5
)

// Palette is the fixed set of colors handed to tags created without one.
var Palette = buildPalette()

func buildPalette() []string {
	out := make([]string, paletteSize)
	for i := range paletteSize {
		hue := float64((i*paletteStride)%paletteSize) * (360.0 / paletteSize)
		r, g, b := hslToRGB(hue, 0.55, 0.55)
		out[i] = fmt.Sprintf("#%02X%02X%02X", r, g, b)
	}
	return out
}

// ForTag returns the palette color for a numeric tag id.
// The same id always maps to the same color.
func ForTag(n int) string {
	if n < 1 {
		n = 1
	}
	return Palette[(n-1)%len(Palette)]
}

// ParseHex validates a 6-digit hex color ("#1a2b3c" or "1A2B3C") and returns it
// in canonical "#RRGGBB" form.
func ParseHex(s string) (string, error) {
	s = strings.TrimPrefix(strings.TrimSpace(s), "#")
	if len(s) != 6 {
		return "", fmt.Errorf("color %q must have 6 hex digits", s)
	}
	if _, err := strconv.ParseUint(s, 16, 32); err != nil {
		return "", fmt.Errorf("color %q is not hexadecimal", s)
	}
	return "#" + strings.ToUpper(s), nil
}

// hslToRGB converts HSL color space to RGB.
// h: hue (0-360), s: saturation (0-1), l: lightness (0-1).
func hslToRGB(h, s, l float64) (r, g, b uint8) {
	h /= 360.0

	var r1, g1, b1 float64

	if s == 0 {
		r1, g1, b1 = l, l, l
	} else {
		var q float64
		if l < 0.5 {
			q = l * (1 + s)
		} else {
			q = l + s - l*s
		}
		p := 2*l - q

		r1 = hueToRGB(p, q, h+1.0/3.0)
		g1 = hueToRGB(p, q, h)
		b1 = hueToRGB(p, q, h-1.0/3.0)
	}

	r = uint8(r1 * 255)
	g = uint8(g1 * 255)
	b = uint8(b1 * 255)
	return
}

func hueToRGB(p, q, t float64) float64 {
	if t < 0 {
		t++
	}
	if t > 1 {
		t--
	}
	if t < 1.0/6.0 {
		return p + (q-p)*6*t
	}
	if t < 1.0/2.0 {
		return q
	}
	if t < 2.0/3.0 {
		return p + (q-p)*(2.0/3.0-t)*6
	}
	return p
}
