// Package fonts provides the standard 14 Type 1 fonts every PDF reader
// ships with: their resource dictionaries, AFM metrics and text encoding.
package fonts

import (
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"

	"golang.org/x/text/encoding/charmap"

	"github.com/wudi/pdfengine/ir/raw"
)

// ErrUnknownFont is returned for names outside the standard 14 set.
var ErrUnknownFont = errors.New("fonts: unknown font")

// Standard font names.
const (
	Helvetica            = "Helvetica"
	HelveticaBold        = "Helvetica-Bold"
	HelveticaOblique     = "Helvetica-Oblique"
	HelveticaBoldOblique = "Helvetica-BoldOblique"
	TimesRoman           = "Times-Roman"
	TimesBold            = "Times-Bold"
	TimesItalic          = "Times-Italic"
	TimesBoldItalic      = "Times-BoldItalic"
	Courier              = "Courier"
	CourierBold          = "Courier-Bold"
	CourierOblique       = "Courier-Oblique"
	CourierBoldOblique   = "Courier-BoldOblique"
	Symbol               = "Symbol"
	ZapfDingbats         = "ZapfDingbats"
)

// Font flags from the font descriptor.
const (
	FlagFixedPitch  = 1 << 0
	FlagSerif       = 1 << 1
	FlagSymbolic    = 1 << 2
	FlagNonsymbolic = 1 << 5
	FlagItalic      = 1 << 6
	FlagForceBold   = 1 << 18
)

// Metrics holds the AFM header values of a font in glyph space units.
type Metrics struct {
	Ascent       float64
	Descent      float64
	CapHeight    float64
	XHeight      float64
	StemV        float64
	ItalicAngle  float64
	BBox         [4]float64
	Flags        int
	MissingWidth float64
}

// Font is one of the standard 14 fonts. Values are shared and immutable.
type Font struct {
	name     string
	resource string
	metrics  Metrics
	widths   *[95]float64
	symbolic bool
}

func (f *Font) Name() string { return f.name }

// ResourceName is the key the font is registered under in a page's /Font
// resources, for example Helv for Helvetica.
func (f *Font) ResourceName() string { return f.resource }

func (f *Font) Metrics() Metrics { return f.metrics }

func (f *Font) IsSymbolic() bool { return f.symbolic }

// Dictionary returns a new font dictionary referencing the built-in
// program. Symbolic fonts keep their own encoding.
func (f *Font) Dictionary() *raw.DictObj {
	d := raw.Dict()
	d.Put("Type", raw.NameLiteral("Font"))
	d.Put("Subtype", raw.NameLiteral("Type1"))
	d.Put("BaseFont", raw.NameLiteral(f.name))
	if !f.symbolic {
		d.Put("Encoding", raw.NameLiteral("WinAnsiEncoding"))
	}
	return d
}

// Encode converts UTF-8 text to the single-byte codes shown by the font.
// Runes without a WinAnsi code become '?'. Symbolic fonts take Latin-1
// code points as-is.
func (f *Font) Encode(text string) []byte {
	out := make([]byte, 0, len(text))
	for _, r := range text {
		if r == utf8.RuneError {
			out = append(out, '?')
			continue
		}
		if f.symbolic {
			if r < 0x100 {
				out = append(out, byte(r))
			} else {
				out = append(out, '?')
			}
			continue
		}
		b, ok := charmap.Windows1252.EncodeRune(r)
		if !ok {
			b = '?'
		}
		out = append(out, b)
	}
	return out
}

// CodeWidth returns the advance of one encoded byte in glyph space units.
func (f *Font) CodeWidth(c byte) float64 {
	if f.widths != nil && c >= 32 && c <= 126 {
		return f.widths[c-32]
	}
	return f.metrics.MissingWidth
}

// WidthOf returns the advance width of text set at size points.
func (f *Font) WidthOf(text string, size float64) float64 {
	total := 0.0
	for _, c := range f.Encode(text) {
		total += f.CodeWidth(c)
	}
	return total * size / 1000
}

var aliases = map[string]string{
	"times":           TimesRoman,
	"times new roman": TimesRoman,
	"arial":           Helvetica,
	"arial-bold":      HelveticaBold,
	"courier new":     Courier,
	"zapf-dingbats":   ZapfDingbats,
}

var registry = buildRegistry()

func buildRegistry() map[string]*Font {
	helv := Metrics{Ascent: 718, Descent: -207, CapHeight: 718, XHeight: 523, StemV: 88,
		BBox: [4]float64{-166, -225, 1000, 931}, Flags: FlagNonsymbolic, MissingWidth: 556}
	helvBold := helv
	helvBold.StemV = 140
	helvBold.BBox = [4]float64{-170, -228, 1003, 962}
	helvBold.Flags |= FlagForceBold
	times := Metrics{Ascent: 683, Descent: -217, CapHeight: 662, XHeight: 450, StemV: 84,
		BBox: [4]float64{-168, -218, 1000, 898}, Flags: FlagNonsymbolic | FlagSerif, MissingWidth: 500}
	timesBold := times
	timesBold.StemV = 139
	timesBold.CapHeight = 676
	timesBold.BBox = [4]float64{-168, -218, 1000, 935}
	timesBold.Flags |= FlagForceBold
	courier := Metrics{Ascent: 629, Descent: -157, CapHeight: 562, XHeight: 426, StemV: 51,
		BBox: [4]float64{-23, -250, 715, 805}, Flags: FlagNonsymbolic | FlagFixedPitch | FlagSerif, MissingWidth: 600}
	courierBold := courier
	courierBold.StemV = 106
	courierBold.BBox = [4]float64{-113, -250, 749, 801}
	courierBold.Flags |= FlagForceBold
	symbol := Metrics{Ascent: 1010, Descent: -293, CapHeight: 1010, StemV: 85,
		BBox: [4]float64{-180, -293, 1090, 1010}, Flags: FlagSymbolic, MissingWidth: 500}
	dingbats := Metrics{Ascent: 820, Descent: -143, CapHeight: 820, StemV: 90,
		BBox: [4]float64{-1, -143, 981, 820}, Flags: FlagSymbolic, MissingWidth: 788}

	courierWidths := new([95]float64)
	for i := range courierWidths {
		courierWidths[i] = 600
	}

	fonts := []*Font{
		{name: Helvetica, resource: "Helv", metrics: helv, widths: &helveticaWidths},
		{name: HelveticaBold, resource: "HeBo", metrics: helvBold, widths: &helveticaBoldWidths},
		{name: HelveticaOblique, resource: "HeOb", metrics: italic(helv, -12), widths: &helveticaWidths},
		{name: HelveticaBoldOblique, resource: "HeBO", metrics: italic(helvBold, -12), widths: &helveticaBoldWidths},
		{name: TimesRoman, resource: "TiRo", metrics: times, widths: &timesRomanWidths},
		{name: TimesBold, resource: "TiBo", metrics: timesBold, widths: &timesBoldWidths},
		{name: TimesItalic, resource: "TiIt", metrics: italic(times, -15.5), widths: &timesItalicWidths},
		{name: TimesBoldItalic, resource: "TiBI", metrics: italic(timesBold, -15), widths: &timesBoldItalicWidths},
		{name: Courier, resource: "Cour", metrics: courier, widths: courierWidths},
		{name: CourierBold, resource: "CoBo", metrics: courierBold, widths: courierWidths},
		{name: CourierOblique, resource: "CoOb", metrics: italic(courier, -12), widths: courierWidths},
		{name: CourierBoldOblique, resource: "CoBO", metrics: italic(courierBold, -12), widths: courierWidths},
		{name: Symbol, resource: "Symb", metrics: symbol, symbolic: true},
		{name: ZapfDingbats, resource: "ZaDb", metrics: dingbats, symbolic: true},
	}
	out := make(map[string]*Font, len(fonts))
	for _, f := range fonts {
		out[strings.ToLower(f.name)] = f
	}
	return out
}

func italic(m Metrics, angle float64) Metrics {
	m.ItalicAngle = angle
	m.Flags |= FlagItalic
	return m
}

// FontWithName returns the shared Font for a standard font name. Lookup is
// case-insensitive and accepts common aliases such as Times and Arial.
func FontWithName(name string) (*Font, error) {
	key := strings.ToLower(strings.TrimSpace(name))
	if alias, ok := aliases[key]; ok {
		key = strings.ToLower(alias)
	}
	if f, ok := registry[key]; ok {
		return f, nil
	}
	return nil, fmt.Errorf("%w: %q", ErrUnknownFont, name)
}

// MustFont is FontWithName for names known at compile time.
func MustFont(name string) *Font {
	f, err := FontWithName(name)
	if err != nil {
		panic(err)
	}
	return f
}

// Names lists the standard font names in registry order.
func Names() []string {
	return []string{
		Helvetica, HelveticaBold, HelveticaOblique, HelveticaBoldOblique,
		TimesRoman, TimesBold, TimesItalic, TimesBoldItalic,
		Courier, CourierBold, CourierOblique, CourierBoldOblique,
		Symbol, ZapfDingbats,
	}
}

// ByBaseFont finds the standard font a loaded /BaseFont name refers to.
// Subset prefixes (ABCDEF+) are ignored.
func ByBaseFont(base string) (*Font, bool) {
	if i := strings.IndexByte(base, '+'); i == 6 {
		base = base[i+1:]
	}
	f, err := FontWithName(base)
	return f, err == nil
}
