package contentstream

import (
	"errors"

	"github.com/wudi/pdfengine/color"
	"github.com/wudi/pdfengine/coords"
)

// ErrStateUnderflow is returned when restoring past the base frame.
var ErrStateUnderflow = errors.New("contentstream: graphics state stack underflow")

// Font is what the graphics state needs from a font resource: the name it is
// selected by in the page resources and the byte encoding of text.
type Font interface {
	ResourceName() string
	Encode(text string) []byte
}

// DashPattern is the d operator's array and phase. The zero value is the
// solid line.
type DashPattern struct {
	Array []float64
	Phase float64
}

// DashSolid clears any dash pattern.
var DashSolid = DashPattern{}

func (d DashPattern) IsSolid() bool { return len(d.Array) == 0 }

func (d DashPattern) Equal(o DashPattern) bool {
	if d.Phase != o.Phase || len(d.Array) != len(o.Array) {
		return false
	}
	for i := range d.Array {
		if d.Array[i] != o.Array[i] {
			return false
		}
	}
	return true
}

func (d DashPattern) clone() DashPattern {
	return DashPattern{Array: append([]float64(nil), d.Array...), Phase: d.Phase}
}

// Frame is one level of the graphics state stack.
type Frame struct {
	FillColor   color.Color
	StrokeColor color.Color
	LineWidth   float64
	Dash        DashPattern
	Font        Font
	FontSize    float64
	CTM         coords.Matrix
}

func baseFrame() Frame {
	return Frame{
		FillColor:   color.Black,
		StrokeColor: color.Black,
		LineWidth:   1,
		CTM:         coords.Identity(),
	}
}

func (f Frame) clone() Frame {
	f.Dash = f.Dash.clone()
	return f
}

// GraphicsState is a stack of frames. The base frame can never be popped.
type GraphicsState struct {
	frames []Frame
}

func NewGraphicsState() *GraphicsState {
	return &GraphicsState{frames: []Frame{baseFrame()}}
}

// Current returns a copy of the top frame.
func (gs *GraphicsState) Current() Frame { return gs.top().clone() }

// Depth is the number of saved frames above the base frame.
func (gs *GraphicsState) Depth() int { return len(gs.frames) - 1 }

func (gs *GraphicsState) top() *Frame { return &gs.frames[len(gs.frames)-1] }

// Save pushes a copy of the top frame.
func (gs *GraphicsState) Save() *GraphicsState {
	gs.frames = append(gs.frames, gs.top().clone())
	return gs
}

// Restore pops the top frame, discarding its changes.
func (gs *GraphicsState) Restore() error {
	if len(gs.frames) <= 1 {
		return ErrStateUnderflow
	}
	gs.frames = gs.frames[:len(gs.frames)-1]
	return nil
}

func (gs *GraphicsState) SetFillColor(c color.Color) *GraphicsState {
	gs.top().FillColor = c
	return gs
}

func (gs *GraphicsState) SetStrokeColor(c color.Color) *GraphicsState {
	gs.top().StrokeColor = c
	return gs
}

func (gs *GraphicsState) SetLineWidth(w float64) *GraphicsState {
	gs.top().LineWidth = w
	return gs
}

func (gs *GraphicsState) SetDash(d DashPattern) *GraphicsState {
	gs.top().Dash = d.clone()
	return gs
}

func (gs *GraphicsState) SetFont(f Font, size float64) *GraphicsState {
	top := gs.top()
	top.Font = f
	top.FontSize = size
	return gs
}

// Transform concatenates m to the current transformation matrix.
func (gs *GraphicsState) Transform(m coords.Matrix) *GraphicsState {
	top := gs.top()
	top.CTM = m.Multiply(top.CTM)
	return gs
}

// Clone returns an independent copy of the whole stack.
func (gs *GraphicsState) Clone() *GraphicsState {
	out := &GraphicsState{frames: make([]Frame, len(gs.frames))}
	for i, f := range gs.frames {
		out.frames[i] = f.clone()
	}
	return out
}
