package document

import (
	"bytes"
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/wudi/pdfengine/color"
	"github.com/wudi/pdfengine/contentstream"
	"github.com/wudi/pdfengine/coords"
	"github.com/wudi/pdfengine/fonts"
	"github.com/wudi/pdfengine/ir/raw"
)

// ErrUnknownPageSize is kept by pages created from an unknown preset name.
var ErrUnknownPageSize = fmt.Errorf("%w: unknown page size", ErrUnsupportedOperation)

// PageSize is either a Preset or an explicit Size.
type PageSize interface {
	dimensions() (Size, error)
}

// Size is a page size in points.
type Size struct {
	Width, Height float64
}

func (s Size) dimensions() (Size, error) {
	if s.Width <= 0 || s.Height <= 0 {
		return Size{}, fmt.Errorf("%w: %vx%v", contentstream.ErrInvalidOperand, s.Width, s.Height)
	}
	return s, nil
}

// Preset names a standard page size.
type Preset string

const (
	A4              Preset = "A4"
	A4Landscape     Preset = "A4-Landscape"
	Letter          Preset = "Letter"
	LetterLandscape Preset = "Letter-Landscape"
)

var presets = map[Preset]Size{
	A4:              {595, 842},
	A4Landscape:     {842, 595},
	Letter:          {612, 792},
	LetterLandscape: {792, 612},
}

func (p Preset) dimensions() (Size, error) {
	for name, s := range presets {
		if strings.EqualFold(string(name), string(p)) {
			return s, nil
		}
	}
	return Size{}, fmt.Errorf("%w %q", ErrUnknownPageSize, string(p))
}

// Page is one page of a document. Drawing methods return the page so that
// calls chain; the first failure is kept and later calls do nothing.
// Copying a Page value is not supported: every method on a copy fails with
// ErrUnsupportedOperation.
type Page struct {
	addr *Page
	doc  *Document
	err  error

	ref     raw.ObjectRef
	box     coords.Rect
	cropBox *coords.Rect
	rotate  int
	b       *contentstream.Builder
	fonts   map[string]*fonts.Font

	// Set for pages read from a file.
	src       *raw.DictObj
	parent    raw.ObjectRef
	resources *raw.DictObj
	contents  []raw.Object
	// changed forces a rewrite of a loaded page's dictionary.
	changed bool
	// streams caches the refs of the content streams written for this page:
	// the opening q and the new content.
	streams [2]raw.ObjectRef
}

// NewPage returns a standalone page. It joins a document when it is placed
// into the document's page sequence.
func NewPage(size PageSize) *Page {
	p := &Page{b: contentstream.NewBuilder(), fonts: make(map[string]*fonts.Font)}
	p.addr = p
	if size == nil {
		size = Letter
	}
	s, err := size.dimensions()
	if err != nil {
		p.err = &Error{Op: "new page", Err: err}
		return p
	}
	p.box = coords.Rect{URX: s.Width, URY: s.Height}
	return p
}

// ClonePage returns an independent copy of src: operators and graphics
// state are copied, font and original content objects are shared. The
// clone belongs to the same document as src but is not in its page
// sequence.
func ClonePage(src *Page) (*Page, error) {
	if err := src.usable(); err != nil {
		return nil, &Error{Op: "clone page", Err: err}
	}
	if src.err != nil {
		return nil, src.err
	}
	p := &Page{
		doc:       src.doc,
		box:       src.box,
		rotate:    src.rotate,
		b:         src.b.Clone(),
		fonts:     make(map[string]*fonts.Font, len(src.fonts)),
		src:       src.src,
		resources: src.resources,
		contents:  append([]raw.Object(nil), src.contents...),
		changed:   true,
	}
	p.addr = p
	if src.cropBox != nil {
		cb := *src.cropBox
		p.cropBox = &cb
	}
	for name, f := range src.fonts {
		p.fonts[name] = f
	}
	return p, nil
}

func (p *Page) usable() error {
	if p == nil || p.addr != p {
		return fmt.Errorf("%w: page was copied by value; use ClonePage", ErrUnsupportedOperation)
	}
	return nil
}

// ok reports whether a drawing call may proceed.
func (p *Page) ok() bool {
	if err := p.usable(); err != nil {
		if p != nil && p.err == nil {
			p.err = &Error{Op: "page", Err: err}
		}
		return false
	}
	return p.err == nil
}

func (p *Page) fail(op string, err error) *Page {
	if err != nil && p.err == nil {
		p.err = &Error{Op: op, Err: err}
	}
	return p
}

// Err returns the first error recorded on the page.
func (p *Page) Err() error {
	if err := p.usable(); err != nil {
		return err
	}
	return p.err
}

func (p *Page) Width() float64   { return p.box.Width() }
func (p *Page) Height() float64  { return p.box.Height() }
func (p *Page) Box() coords.Rect { return p.box }

// Rotation is the page's /Rotate value in degrees.
func (p *Page) Rotation() int { return p.rotate }

// Loaded reports whether the page was read from a file.
func (p *Page) Loaded() bool { return p.src != nil }

// Operations returns the operators added since the page was created or
// loaded.
func (p *Page) Operations() []contentstream.Operation { return p.b.Operations() }

// Fonts lists the resource names of fonts selected on the page.
func (p *Page) Fonts() []string {
	names := make([]string, 0, len(p.fonts))
	for name := range p.fonts {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// SetRotation sets the page's /Rotate value. Only multiples of 90 are
// accepted.
func (p *Page) SetRotation(degrees int) *Page {
	if !p.ok() {
		return p
	}
	if degrees%90 != 0 {
		return p.fail("set rotation", fmt.Errorf("%w: rotation %d is not a multiple of 90", contentstream.ErrInvalidOperand, degrees))
	}
	p.rotate = ((degrees % 360) + 360) % 360
	p.changed = true
	return p
}

func (p *Page) SaveGS() *Page {
	if p.ok() {
		p.b.Save()
	}
	return p
}

func (p *Page) RestoreGS() *Page {
	if !p.ok() {
		return p
	}
	return p.fail("restore graphics state", p.b.Restore())
}

func (p *Page) SetFillColor(c color.Color) *Page {
	if !p.ok() {
		return p
	}
	return p.fail("set fill color", p.b.SetFillColor(c))
}

func (p *Page) SetLineColor(c color.Color) *Page {
	if !p.ok() {
		return p
	}
	return p.fail("set line color", p.b.SetStrokeColor(c))
}

func (p *Page) SetLineWidth(w float64) *Page {
	if !p.ok() {
		return p
	}
	return p.fail("set line width", p.b.SetLineWidth(w))
}

// SetLineDashingPattern sets the dash pattern; contentstream.DashSolid
// clears it.
func (p *Page) SetLineDashingPattern(d contentstream.DashPattern) *Page {
	if !p.ok() {
		return p
	}
	return p.fail("set dash pattern", p.b.SetDash(d))
}

func (p *Page) SetFont(f *fonts.Font, size float64) *Page {
	if !p.ok() {
		return p
	}
	if f == nil {
		return p.fail("set font", contentstream.ErrNoFontSelected)
	}
	name, known := p.fontName(f)
	if err := p.b.SetFont(pageFont{Font: f, name: name}, size); err != nil {
		return p.fail("set font", err)
	}
	if !known {
		p.fonts[name] = f
		p.changed = true
	}
	return p
}

// SetStyle applies every attribute set on s.
func (p *Page) SetStyle(s *Style) *Page {
	if !p.ok() || s == nil {
		return p
	}
	if s.fill != nil {
		p.SetFillColor(s.fill)
	}
	if s.line != nil {
		p.SetLineColor(s.line)
	}
	if s.width != nil {
		p.SetLineWidth(*s.width)
	}
	if s.dash != nil {
		p.SetLineDashingPattern(*s.dash)
	}
	if s.font != nil {
		p.SetFont(s.font, s.fontSize)
	}
	return p
}

// Transform concatenates m to the current transformation matrix.
func (p *Page) Transform(m coords.Matrix) *Page {
	if p.ok() {
		p.b.Transform(m)
	}
	return p
}

// Rotate turns the coordinate system by angle radians around (x, y).
func (p *Page) Rotate(x, y, angle float64) *Page {
	if p.ok() {
		p.b.Rotate(x, y, angle)
	}
	return p
}

func (p *Page) DrawText(text string, x, y float64) *Page {
	if !p.ok() {
		return p
	}
	return p.fail("draw text", p.b.ShowText(text, x, y))
}

func (p *Page) DrawLine(x1, y1, x2, y2 float64) *Page {
	if p.ok() {
		p.b.DrawLine(x1, y1, x2, y2)
	}
	return p
}

func (p *Page) DrawRectangle(x1, y1, x2, y2 float64, mode contentstream.DrawMode) *Page {
	if p.ok() {
		p.b.DrawRectangle(x1, y1, x2, y2, mode)
	}
	return p
}

func (p *Page) DrawRoundedRectangle(x1, y1, x2, y2, radius float64, mode contentstream.DrawMode) *Page {
	if p.ok() {
		p.b.DrawRoundedRectangle(x1, y1, x2, y2, radius, mode)
	}
	return p
}

func (p *Page) DrawCircle(cx, cy, r float64, mode contentstream.DrawMode) *Page {
	if p.ok() {
		p.b.DrawCircle(cx, cy, r, mode)
	}
	return p
}

// DrawSector draws the counter-clockwise arc from startAngle to endAngle
// (radians) closed through the center.
func (p *Page) DrawSector(cx, cy, r, startAngle, endAngle float64, mode contentstream.DrawMode) *Page {
	if p.ok() {
		p.b.DrawSector(cx, cy, r, startAngle, endAngle, mode)
	}
	return p
}

// DrawEllipse draws the ellipse inscribed in the box (x1, y1)-(x2, y2).
func (p *Page) DrawEllipse(x1, y1, x2, y2 float64, mode contentstream.DrawMode) *Page {
	if p.ok() {
		p.b.DrawEllipse(x1, y1, x2, y2, mode)
	}
	return p
}

func (p *Page) DrawEllipseSector(x1, y1, x2, y2, startAngle, endAngle float64, mode contentstream.DrawMode) *Page {
	if p.ok() {
		p.b.DrawEllipseSector(x1, y1, x2, y2, startAngle, endAngle, mode)
	}
	return p
}

func (p *Page) DrawPolygon(xs, ys []float64, mode contentstream.DrawMode, rule contentstream.FillRule) *Page {
	if !p.ok() {
		return p
	}
	return p.fail("draw polygon", p.b.DrawPolygon(xs, ys, mode, rule))
}

// ContentOperations returns every operator of the page as it will be
// saved: original content streams, wrapped in q/Q when new operators follow
// them, and the new operators.
func (p *Page) ContentOperations(ctx context.Context) ([]contentstream.Operation, error) {
	if err := p.usable(); err != nil {
		return nil, err
	}
	if len(p.contents) == 0 {
		return p.b.Operations(), nil
	}
	var buf bytes.Buffer
	wrap := p.b.Len() > 0
	if wrap {
		buf.WriteString("q\n")
	}
	for _, c := range p.contents {
		data, err := p.doc.streamData(ctx, c)
		if err != nil {
			return nil, &Error{Op: "read content", Err: err}
		}
		buf.Write(data)
		buf.WriteByte('\n')
	}
	if wrap {
		buf.WriteString("Q\n")
		buf.Write(p.b.Bytes())
	}
	ops, err := contentstream.Parse(buf.Bytes())
	if err != nil {
		return nil, &Error{Op: "read content", Err: err}
	}
	return ops, nil
}

// pageFont is a standard font under the resource name it has on one page.
type pageFont struct {
	*fonts.Font
	name string
}

func (f pageFont) ResourceName() string { return f.name }

// fontName returns the resource name f is registered under on the page,
// or the name it would get and false. Names already used by the page's
// original resources get a numeric suffix.
func (p *Page) fontName(f *fonts.Font) (string, bool) {
	for name, have := range p.fonts {
		if have == f {
			return name, true
		}
	}
	base := f.ResourceName()
	name := base
	for i := 1; p.fontNameTaken(name); i++ {
		name = fmt.Sprintf("%s%d", base, i)
	}
	return name, false
}

func (p *Page) fontNameTaken(name string) bool {
	if _, ok := p.fonts[name]; ok {
		return true
	}
	if p.resources == nil {
		return false
	}
	existing, ok := p.resources.KV["Font"].(*raw.DictObj)
	if !ok {
		return false
	}
	_, ok = existing.KV[name]
	return ok
}

// Style groups drawing attributes applied together with Page.SetStyle.
type Style struct {
	fill, line color.Color
	width      *float64
	dash       *contentstream.DashPattern
	font       *fonts.Font
	fontSize   float64
}

func NewStyle() *Style { return &Style{} }

func (s *Style) SetFillColor(c color.Color) *Style { s.fill = c; return s }
func (s *Style) SetLineColor(c color.Color) *Style { s.line = c; return s }
func (s *Style) SetLineWidth(w float64) *Style     { s.width = &w; return s }

func (s *Style) SetLineDashingPattern(d contentstream.DashPattern) *Style {
	s.dash = &d
	return s
}

func (s *Style) SetFont(f *fonts.Font, size float64) *Style {
	s.font, s.fontSize = f, size
	return s
}
