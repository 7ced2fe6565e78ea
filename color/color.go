// Package color implements the device color spaces used by page content:
// DeviceGray, DeviceRGB and DeviceCMYK, plus HTML-style named colors that
// resolve to RGB.
package color

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"golang.org/x/image/colornames"
)

var (
	ErrOutOfRange       = errors.New("color: component outside [0,1]")
	ErrUnknownColorName = errors.New("color: unknown color name")
)

// Space identifies the device color space a color is expressed in.
type Space int

const (
	DeviceGray Space = iota
	DeviceRGB
	DeviceCMYK
)

func (s Space) String() string {
	switch s {
	case DeviceGray:
		return "DeviceGray"
	case DeviceRGB:
		return "DeviceRGB"
	case DeviceCMYK:
		return "DeviceCMYK"
	default:
		return "Unknown"
	}
}

// Color is a value in one of the device spaces.
type Color interface {
	Space() Space
	Components() []float64
}

type Gray struct{ Level float64 }

type RGB struct{ R, G, B float64 }

type CMYK struct{ C, M, Y, K float64 }

func (Gray) Space() Space { return DeviceGray }
func (RGB) Space() Space  { return DeviceRGB }
func (CMYK) Space() Space { return DeviceCMYK }

func (c Gray) Components() []float64 { return []float64{c.Level} }
func (c RGB) Components() []float64  { return []float64{c.R, c.G, c.B} }
func (c CMYK) Components() []float64 { return []float64{c.C, c.M, c.Y, c.K} }

var Black Color = Gray{Level: 0}

func NewGray(level float64) (Gray, error) {
	if err := check(level); err != nil {
		return Gray{}, err
	}
	return Gray{Level: level}, nil
}

func NewRGB(r, g, b float64) (RGB, error) {
	if err := check(r, g, b); err != nil {
		return RGB{}, err
	}
	return RGB{R: r, G: g, B: b}, nil
}

func NewCMYK(c, m, y, k float64) (CMYK, error) {
	if err := check(c, m, y, k); err != nil {
		return CMYK{}, err
	}
	return CMYK{C: c, M: m, Y: y, K: k}, nil
}

// Validate rejects colors built as struct literals with components outside
// [0,1].
func Validate(c Color) error {
	if c == nil {
		return fmt.Errorf("%w: nil color", ErrOutOfRange)
	}
	return check(c.Components()...)
}

func check(components ...float64) error {
	for _, v := range components {
		// NaN fails both comparisons.
		if !(v >= 0 && v <= 1) {
			return fmt.Errorf("%w: %v", ErrOutOfRange, v)
		}
	}
	return nil
}

// Named resolves an HTML color: "#rrggbb", "#rgb", or a CSS/SVG keyword
// such as "navy". Matching is case-insensitive.
func Named(name string) (RGB, error) {
	key := strings.ToLower(strings.TrimSpace(name))
	if strings.HasPrefix(key, "#") {
		return parseHex(name, key[1:])
	}
	c, ok := colornames.Map[key]
	if !ok {
		return RGB{}, fmt.Errorf("%w: %q", ErrUnknownColorName, name)
	}
	return RGB{R: float64(c.R) / 255, G: float64(c.G) / 255, B: float64(c.B) / 255}, nil
}

func parseHex(name, digits string) (RGB, error) {
	if len(digits) == 3 {
		digits = string([]byte{digits[0], digits[0], digits[1], digits[1], digits[2], digits[2]})
	}
	if len(digits) != 6 {
		return RGB{}, fmt.Errorf("%w: %q", ErrUnknownColorName, name)
	}
	v, err := strconv.ParseUint(digits, 16, 32)
	if err != nil {
		return RGB{}, fmt.Errorf("%w: %q", ErrUnknownColorName, name)
	}
	return RGB{
		R: float64(v>>16&0xff) / 255,
		G: float64(v>>8&0xff) / 255,
		B: float64(v&0xff) / 255,
	}, nil
}

// FillOperator returns the content-stream operator that sets c as the
// nonstroking color.
func FillOperator(c Color) string {
	switch c.Space() {
	case DeviceRGB:
		return "rg"
	case DeviceCMYK:
		return "k"
	default:
		return "g"
	}
}

// StrokeOperator returns the operator that sets c as the stroking color.
func StrokeOperator(c Color) string {
	return strings.ToUpper(FillOperator(c))
}

// Equal reports whether a and b are the same space and components.
func Equal(a, b Color) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	if a.Space() != b.Space() {
		return false
	}
	ac, bc := a.Components(), b.Components()
	for i := range ac {
		if ac[i] != bc[i] {
			return false
		}
	}
	return true
}
