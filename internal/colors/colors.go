// internal/colors/colors.go
package colors

import (
	"errors"
	"fmt"
	"image/color"
	"regexp"
	"strconv"
	"strings"
)

var (
	// ErrInvalidColor is returned by ParseStrict for malformed hex strings
	ErrInvalidColor = errors.New("invalid color")

	// ErrInvalidArgument is returned when a color is built from the wrong number of components
	ErrInvalidArgument = errors.New("invalid argument")
)

var hexPattern = regexp.MustCompile(`^[0-9a-fA-F]{6}(?:[0-9a-fA-F]{2})?$`)

// Color is an RGB or RGBA tuple. When HasAlpha is false the color has three
// components and A is ignored.
type Color struct {
	R, G, B, A uint8
	HasAlpha   bool
}

// RGBA returns a four component color.
func RGBA(r, g, b, a uint8) Color {
	return Color{R: r, G: g, B: b, A: a, HasAlpha: true}
}

// RGB returns a three component color.
func RGB(r, g, b uint8) Color {
	return Color{R: r, G: g, B: b, A: 255}
}

// FromComponents builds a color from 3 or 4 components.
func FromComponents(c ...uint8) (Color, error) {
	switch len(c) {
	case 3:
		return RGB(c[0], c[1], c[2]), nil
	case 4:
		return RGBA(c[0], c[1], c[2], c[3]), nil
	default:
		return Color{}, fmt.Errorf("%w: color must have 3 or 4 components, got %d", ErrInvalidArgument, len(c))
	}
}

// Components returns the color as a 3 or 4 element slice.
func (c Color) Components() []uint8 {
	if c.HasAlpha {
		return []uint8{c.R, c.G, c.B, c.A}
	}
	return []uint8{c.R, c.G, c.B}
}

// NRGBA converts the color for use with image/draw. Three component colors are opaque.
func (c Color) NRGBA() color.NRGBA {
	a := c.A
	if !c.HasAlpha {
		a = 255
	}
	return color.NRGBA{R: c.R, G: c.G, B: c.B, A: a}
}

// Parse parses "#RGB", "#RGBA", "#RRGGBB" or "#RRGGBBAA" (the '#' is optional).
// With wantAlpha the result always has four components and six digit input gets
// alpha 255; without it the alpha byte is dropped. ok is false for empty or
// malformed input, which callers treat as a transparent background.
func Parse(s string, wantAlpha bool) (Color, bool) {
	if s == "" {
		return Color{}, false
	}
	s = strings.TrimPrefix(s, "#")

	if len(s) == 3 || len(s) == 4 {
		var b strings.Builder
		for _, ch := range s {
			b.WriteRune(ch)
			b.WriteRune(ch)
		}
		s = b.String()
	}

	if !hexPattern.MatchString(s) {
		return Color{}, false
	}

	r := hexByte(s[0:2])
	g := hexByte(s[2:4])
	bl := hexByte(s[4:6])
	a := uint8(255)
	if len(s) == 8 {
		a = hexByte(s[6:8])
	}

	if !wantAlpha {
		return RGB(r, g, bl), true
	}
	return RGBA(r, g, bl, a), true
}

// ParseStrict is Parse with alpha that reports malformed input as ErrInvalidColor.
func ParseStrict(s string) (Color, error) {
	c, ok := Parse(s, true)
	if !ok {
		return Color{}, fmt.Errorf("%w: %q", ErrInvalidColor, s)
	}
	return c, nil
}

func hexByte(s string) uint8 {
	// input already matched hexPattern
	v, _ := strconv.ParseUint(s, 16, 8)
	return uint8(v)
}

// ToHex formats the color as "#rrggbb" or "#rrggbbaa" in lower case.
func ToHex(c Color) string {
	if c.HasAlpha {
		return fmt.Sprintf("#%02x%02x%02x%02x", c.R, c.G, c.B, c.A)
	}
	return fmt.Sprintf("#%02x%02x%02x", c.R, c.G, c.B)
}

// Describe returns a human readable description of a background color.
// A nil color is "transparent".
func Describe(c *Color) string {
	if c == nil {
		return "transparent"
	}

	a := c.A
	if !c.HasAlpha {
		a = 255
	}
	opacity := float64(a) / 255

	switch {
	case opacity < 0.01:
		return "transparent"
	case opacity < 1.0:
		return fmt.Sprintf("RGB(%d, %d, %d), opacity: %.2f", c.R, c.G, c.B, opacity)
	default:
		return fmt.Sprintf("RGB(%d, %d, %d)", c.R, c.G, c.B)
	}
}
