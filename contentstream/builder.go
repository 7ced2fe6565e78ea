package contentstream

import (
	"errors"
	"fmt"
	"math"

	"github.com/wudi/pdfengine/color"
	"github.com/wudi/pdfengine/coords"
	"github.com/wudi/pdfengine/ir/raw"
)

var (
	// ErrNoFontSelected is returned by ShowText before any SetFont.
	ErrNoFontSelected = errors.New("contentstream: no font selected")
	// ErrInvalidOperand reports a negative width, size or dash length.
	ErrInvalidOperand = errors.New("contentstream: invalid operand")
)

// Builder accumulates the operators of one content stream. State setters
// only change the graphics state; the matching operators are written right
// before the next drawing call, and only for attributes that differ from
// what the stream already has in effect at the current save level.
// Transformations are written immediately because they compose.
type Builder struct {
	ops []Operation
	gs  *GraphicsState
	// emitted mirrors gs level by level and holds the attributes the stream
	// itself has set.
	emitted []Frame
}

func NewBuilder() *Builder {
	return &Builder{gs: NewGraphicsState(), emitted: []Frame{baseFrame()}}
}

// State exposes the graphics state for inspection.
func (b *Builder) State() *GraphicsState { return b.gs }

// Operations returns a copy of the accumulated operators.
func (b *Builder) Operations() []Operation {
	out := make([]Operation, len(b.ops))
	for i, op := range b.ops {
		out[i] = op.clone()
	}
	return out
}

func (b *Builder) Len() int { return len(b.ops) }

// Bytes serializes the accumulated operators.
func (b *Builder) Bytes() []byte { return Serialize(b.ops) }

// Clone returns a builder with copied operators and an independent state
// stack.
func (b *Builder) Clone() *Builder {
	out := &Builder{
		ops:     b.Operations(),
		gs:      b.gs.Clone(),
		emitted: make([]Frame, len(b.emitted)),
	}
	for i, f := range b.emitted {
		out.emitted[i] = f.clone()
	}
	return out
}

func (b *Builder) emit(ops ...Operation) { b.ops = append(b.ops, ops...) }

// Save writes q and pushes the graphics state.
func (b *Builder) Save() *Builder {
	b.emit(Op("q"))
	b.gs.Save()
	b.emitted = append(b.emitted, b.emitted[len(b.emitted)-1].clone())
	return b
}

// Restore writes Q and pops the graphics state.
func (b *Builder) Restore() error {
	if err := b.gs.Restore(); err != nil {
		return err
	}
	b.emitted = b.emitted[:len(b.emitted)-1]
	b.emit(Op("Q"))
	return nil
}

func (b *Builder) SetFillColor(c color.Color) error {
	if err := color.Validate(c); err != nil {
		return err
	}
	b.gs.SetFillColor(c)
	return nil
}

func (b *Builder) SetStrokeColor(c color.Color) error {
	if err := color.Validate(c); err != nil {
		return err
	}
	b.gs.SetStrokeColor(c)
	return nil
}

func (b *Builder) SetLineWidth(w float64) error {
	if w < 0 || math.IsNaN(w) {
		return fmt.Errorf("%w: line width %v", ErrInvalidOperand, w)
	}
	b.gs.SetLineWidth(w)
	return nil
}

func (b *Builder) SetDash(d DashPattern) error {
	for _, v := range d.Array {
		if v < 0 {
			return fmt.Errorf("%w: dash length %v", ErrInvalidOperand, v)
		}
	}
	b.gs.SetDash(d)
	return nil
}

func (b *Builder) SetFont(f Font, size float64) error {
	if f == nil {
		return ErrNoFontSelected
	}
	if size <= 0 {
		return fmt.Errorf("%w: font size %v", ErrInvalidOperand, size)
	}
	b.gs.SetFont(f, size)
	return nil
}

// Transform writes cm and concatenates m to the current matrix.
func (b *Builder) Transform(m coords.Matrix) *Builder {
	b.emit(Op("cm", num(m[0]), num(m[1]), num(m[2]), num(m[3]), num(m[4]), num(m[5])))
	b.gs.Transform(m)
	b.emitted[len(b.emitted)-1].CTM = b.gs.top().CTM
	return b
}

// Rotate turns the coordinate system by angle radians around (x, y).
func (b *Builder) Rotate(x, y, angle float64) *Builder {
	return b.Transform(coords.RotateAbout(x, y, angle))
}

// flush writes the operators for every attribute that differs from what the
// stream has in effect.
func (b *Builder) flush() {
	want := b.gs.top()
	have := &b.emitted[len(b.emitted)-1]
	if !color.Equal(want.StrokeColor, have.StrokeColor) {
		b.emit(colorOp(color.StrokeOperator(want.StrokeColor), want.StrokeColor))
		have.StrokeColor = want.StrokeColor
	}
	if !color.Equal(want.FillColor, have.FillColor) {
		b.emit(colorOp(color.FillOperator(want.FillColor), want.FillColor))
		have.FillColor = want.FillColor
	}
	if want.LineWidth != have.LineWidth {
		b.emit(Op("w", num(want.LineWidth)))
		have.LineWidth = want.LineWidth
	}
	if !want.Dash.Equal(have.Dash) {
		arr := raw.NewArray()
		for _, v := range want.Dash.Array {
			arr.Append(num(v))
		}
		b.emit(Op("d", arr, num(want.Dash.Phase)))
		have.Dash = want.Dash.clone()
	}
}

func colorOp(operator string, c color.Color) Operation {
	op := Operation{Operator: operator}
	for _, v := range c.Components() {
		op.Operands = append(op.Operands, num(v))
	}
	return op
}

// Draw writes path followed by the painting operator for mode and rule.
func (b *Builder) Draw(path Path, mode DrawMode, rule FillRule) *Builder {
	b.flush()
	b.emit(path.Operations()...)
	b.emit(Op(PaintOperator(mode, rule)))
	return b
}

func (b *Builder) DrawRectangle(x1, y1, x2, y2 float64, mode DrawMode) *Builder {
	return b.Draw(Rectangle(x1, y1, x2, y2), mode, FillNonZero)
}

func (b *Builder) DrawRoundedRectangle(x1, y1, x2, y2, radius float64, mode DrawMode) *Builder {
	return b.Draw(RoundedRectangle(x1, y1, x2, y2, radius), mode, FillNonZero)
}

func (b *Builder) DrawCircle(cx, cy, r float64, mode DrawMode) *Builder {
	return b.Draw(Circle(cx, cy, r), mode, FillNonZero)
}

func (b *Builder) DrawSector(cx, cy, r, startAngle, endAngle float64, mode DrawMode) *Builder {
	return b.Draw(Sector(cx, cy, r, startAngle, endAngle), mode, FillNonZero)
}

func (b *Builder) DrawEllipse(x1, y1, x2, y2 float64, mode DrawMode) *Builder {
	return b.Draw(Ellipse(x1, y1, x2, y2), mode, FillNonZero)
}

func (b *Builder) DrawEllipseSector(x1, y1, x2, y2, startAngle, endAngle float64, mode DrawMode) *Builder {
	return b.Draw(EllipseSector(x1, y1, x2, y2, startAngle, endAngle), mode, FillNonZero)
}

func (b *Builder) DrawPolygon(xs, ys []float64, mode DrawMode, rule FillRule) error {
	p, err := Polygon(xs, ys)
	if err != nil {
		return err
	}
	b.Draw(p, mode, rule)
	return nil
}

// DrawLine strokes a single segment.
func (b *Builder) DrawLine(x1, y1, x2, y2 float64) *Builder {
	return b.Draw(Line(x1, y1, x2, y2), DrawStroke, FillNonZero)
}

// ShowText writes text with its baseline starting at (x, y) using the
// current font.
func (b *Builder) ShowText(text string, x, y float64) error {
	top := b.gs.top()
	if top.Font == nil {
		return ErrNoFontSelected
	}
	b.flush()
	have := &b.emitted[len(b.emitted)-1]
	b.emit(Op("BT"))
	if have.Font == nil || have.Font.ResourceName() != top.Font.ResourceName() || have.FontSize != top.FontSize {
		b.emit(Op("Tf", raw.NameLiteral(top.Font.ResourceName()), num(top.FontSize)))
		have.Font = top.Font
		have.FontSize = top.FontSize
	}
	b.emit(
		Op("Td", num(x), num(y)),
		Op("Tj", raw.Str(top.Font.Encode(text))),
		Op("ET"),
	)
	return nil
}

// Append adds already-built operations, for example a parsed stream. Their
// effect on the state is unknown, so the next drawing call writes every
// attribute again.
func (b *Builder) Append(ops ...Operation) *Builder {
	for _, op := range ops {
		b.ops = append(b.ops, op.clone())
	}
	b.emitted[len(b.emitted)-1] = Frame{LineWidth: -1, Dash: DashPattern{Phase: math.NaN()}, CTM: b.gs.top().CTM}
	return b
}
