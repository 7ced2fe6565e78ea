package contentstream

import "github.com/wudi/pdfengine/ir/raw"

// Path describes a graphics path made of subpaths.
type Path struct {
	Subpaths []Subpath
}

// Subpath describes a portion of a path.
type Subpath struct {
	Points []PathPoint
	Closed bool
}

// PathPoint identifies a path segment and its coordinates. The first point
// of every subpath is a PathMoveTo.
type PathPoint struct {
	X, Y                 float64
	Type                 PathPointType
	Control1X, Control1Y float64
	Control2X, Control2Y float64
}

// PathPointType enumerates path segment types.
type PathPointType int

const (
	PathMoveTo PathPointType = iota
	PathLineTo
	PathCurveTo
)

func (p *Path) moveTo(x, y float64) {
	p.Subpaths = append(p.Subpaths, Subpath{Points: []PathPoint{{X: x, Y: y, Type: PathMoveTo}}})
}

func (p *Path) current() *Subpath {
	if len(p.Subpaths) == 0 {
		p.moveTo(0, 0)
	}
	return &p.Subpaths[len(p.Subpaths)-1]
}

func (p *Path) lineTo(x, y float64) {
	sp := p.current()
	sp.Points = append(sp.Points, PathPoint{X: x, Y: y, Type: PathLineTo})
}

func (p *Path) curveTo(c1x, c1y, c2x, c2y, x, y float64) {
	sp := p.current()
	sp.Points = append(sp.Points, PathPoint{
		X: x, Y: y, Type: PathCurveTo,
		Control1X: c1x, Control1Y: c1y,
		Control2X: c2x, Control2Y: c2y,
	})
}

func (p *Path) close() { p.current().Closed = true }

// Operations converts the path to m, l, c and h operators.
func (p Path) Operations() []Operation {
	var ops []Operation
	for _, sp := range p.Subpaths {
		for _, pt := range sp.Points {
			switch pt.Type {
			case PathMoveTo:
				ops = append(ops, Op("m", num(pt.X), num(pt.Y)))
			case PathLineTo:
				ops = append(ops, Op("l", num(pt.X), num(pt.Y)))
			case PathCurveTo:
				ops = append(ops, Op("c",
					num(pt.Control1X), num(pt.Control1Y),
					num(pt.Control2X), num(pt.Control2Y),
					num(pt.X), num(pt.Y)))
			}
		}
		if sp.Closed {
			ops = append(ops, Op("h"))
		}
	}
	return ops
}

// DrawMode selects how a closed shape is painted.
type DrawMode int

const (
	DrawFillAndStroke DrawMode = iota
	DrawStroke
	DrawFill
)

// FillRule selects the winding rule used when filling.
type FillRule int

const (
	FillNonZero FillRule = iota
	FillEvenOdd
)

// PaintOperator returns the painting operator for mode and rule. The rule
// only matters when the shape is filled.
func PaintOperator(mode DrawMode, rule FillRule) string {
	switch mode {
	case DrawStroke:
		return "S"
	case DrawFill:
		if rule == FillEvenOdd {
			return "f*"
		}
		return "f"
	default:
		if rule == FillEvenOdd {
			return "B*"
		}
		return "B"
	}
}

func num(f float64) raw.Object { return raw.Number(f) }
