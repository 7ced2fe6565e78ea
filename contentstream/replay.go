package contentstream

import (
	"fmt"

	"github.com/wudi/pdfengine/color"
	"github.com/wudi/pdfengine/coords"
	"github.com/wudi/pdfengine/ir/raw"
)

// OpBBox is the area painted by one operation, in default user space.
type OpBBox struct {
	OpIndex int
	Rect    coords.Rect
}

// resourceFont stands in for a font selected by name in a parsed stream.
type resourceFont string

func (f resourceFont) ResourceName() string      { return string(f) }
func (f resourceFont) Encode(text string) []byte { return []byte(text) }

// Replay executes the state operators of ops and returns the resulting
// graphics state. Unbalanced Q fails with ErrStateUnderflow.
func Replay(ops []Operation) (*GraphicsState, error) {
	gs := NewGraphicsState()
	for i, op := range ops {
		if err := applyState(gs, op); err != nil {
			return nil, fmt.Errorf("operation %d (%s): %w", i, op.Operator, err)
		}
	}
	return gs, nil
}

func applyState(gs *GraphicsState, op Operation) error {
	n := operandFloats(op.Operands)
	switch op.Operator {
	case "q":
		gs.Save()
	case "Q":
		return gs.Restore()
	case "cm":
		if len(n) == 6 {
			gs.Transform(coords.Matrix{n[0], n[1], n[2], n[3], n[4], n[5]})
		}
	case "w":
		if len(n) == 1 {
			gs.SetLineWidth(n[0])
		}
	case "d":
		if len(op.Operands) == 2 {
			var d DashPattern
			if arr, ok := op.Operands[0].(*raw.ArrayObj); ok {
				d.Array = operandFloats(arr.Items)
			}
			d.Phase, _ = raw.FloatOf(op.Operands[1])
			gs.SetDash(d)
		}
	case "g", "G", "rg", "RG", "k", "K":
		c := colorFromOperands(op.Operator, n)
		if c == nil {
			return nil
		}
		if op.Operator[len(op.Operator)-1] >= 'a' {
			gs.SetFillColor(c)
		} else {
			gs.SetStrokeColor(c)
		}
	case "Tf":
		if len(op.Operands) == 2 {
			size, _ := raw.FloatOf(op.Operands[1])
			gs.SetFont(resourceFont(raw.NameOf(op.Operands[0])), size)
		}
	}
	return nil
}

func colorFromOperands(operator string, n []float64) color.Color {
	switch {
	case (operator == "g" || operator == "G") && len(n) == 1:
		return color.Gray{Level: n[0]}
	case (operator == "rg" || operator == "RG") && len(n) == 3:
		return color.RGB{R: n[0], G: n[1], B: n[2]}
	case (operator == "k" || operator == "K") && len(n) == 4:
		return color.CMYK{C: n[0], M: n[1], Y: n[2], K: n[3]}
	}
	return nil
}

func operandFloats(objs []raw.Object) []float64 {
	out := make([]float64, 0, len(objs))
	for _, o := range objs {
		if f, ok := raw.FloatOf(o); ok {
			out = append(out, f)
		}
	}
	return out
}

// Trace replays ops and returns the bounds of every path painting
// operation. Control points are included, so curves get a conservative
// box. Text is not traced.
func Trace(ops []Operation) ([]OpBBox, error) {
	gs := NewGraphicsState()
	var bboxes []OpBBox
	var pts []coords.Point
	add := func(x, y float64) {
		pts = append(pts, gs.top().CTM.Transform(coords.Point{X: x, Y: y}))
	}
	for i, op := range ops {
		if err := applyState(gs, op); err != nil {
			return nil, fmt.Errorf("operation %d (%s): %w", i, op.Operator, err)
		}
		n := operandFloats(op.Operands)
		switch op.Operator {
		case "m", "l":
			if len(n) == 2 {
				add(n[0], n[1])
			}
		case "c":
			if len(n) == 6 {
				add(n[0], n[1])
				add(n[2], n[3])
				add(n[4], n[5])
			}
		case "v", "y":
			if len(n) == 4 {
				add(n[0], n[1])
				add(n[2], n[3])
			}
		case "re":
			if len(n) == 4 {
				add(n[0], n[1])
				add(n[0]+n[2], n[1])
				add(n[0], n[1]+n[3])
				add(n[0]+n[2], n[1]+n[3])
			}
		case "S", "s", "f", "F", "f*", "B", "B*", "b", "b*":
			if len(pts) > 0 {
				bboxes = append(bboxes, OpBBox{OpIndex: i, Rect: coords.Bounds(pts...)})
			}
			pts = pts[:0]
		case "n":
			pts = pts[:0]
		}
	}
	return bboxes, nil
}
