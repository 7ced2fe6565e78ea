package contentstream

import (
	"errors"
	"fmt"
	"math"
)

// ErrInvalidShape reports shape input that cannot describe a path.
var ErrInvalidShape = errors.New("contentstream: invalid shape")

// Kappa is the control-point distance, as a fraction of the radius, that
// approximates a quarter circle with one cubic Bézier curve.
const Kappa = 0.5522847498

// maxArcStep is the largest angle covered by one Bézier segment.
const maxArcStep = math.Pi / 2

// Rectangle is the closed outline through the corners (x1,y1) and (x2,y2).
func Rectangle(x1, y1, x2, y2 float64) Path {
	var p Path
	p.moveTo(x1, y1)
	p.lineTo(x2, y1)
	p.lineTo(x2, y2)
	p.lineTo(x1, y2)
	p.close()
	return p
}

// RoundedRectangle is a rectangle whose corners are quarter circles of the
// given radius. The radius is clamped to half the shorter side.
func RoundedRectangle(x1, y1, x2, y2, radius float64) Path {
	if x1 > x2 {
		x1, x2 = x2, x1
	}
	if y1 > y2 {
		y1, y2 = y2, y1
	}
	r := math.Max(0, math.Min(radius, math.Min(x2-x1, y2-y1)/2))
	if r == 0 {
		return Rectangle(x1, y1, x2, y2)
	}
	k := r * Kappa

	var p Path
	p.moveTo(x1+r, y1)
	p.lineTo(x2-r, y1)
	p.curveTo(x2-r+k, y1, x2, y1+r-k, x2, y1+r)
	p.lineTo(x2, y2-r)
	p.curveTo(x2, y2-r+k, x2-r+k, y2, x2-r, y2)
	p.lineTo(x1+r, y2)
	p.curveTo(x1+r-k, y2, x1, y2-r+k, x1, y2-r)
	p.lineTo(x1, y1+r)
	p.curveTo(x1, y1+r-k, x1+r-k, y1, x1+r, y1)
	p.close()
	return p
}

// Circle is a full circle made of four quarter arcs.
func Circle(cx, cy, r float64) Path {
	return fullEllipse(cx, cy, r, r)
}

// Sector is the pie slice from startAngle to endAngle, counter-clockwise.
// The sweep is (endAngle-startAngle) normalized into (0, 2π], so an end
// angle below the start wraps around: 2π/3 to -π/6 sweeps 7π/6.
func Sector(cx, cy, r, startAngle, endAngle float64) Path {
	return ellipseSector(cx, cy, r, r, startAngle, endAngle)
}

// Ellipse is the ellipse inscribed in the box (x1,y1)-(x2,y2).
func Ellipse(x1, y1, x2, y2 float64) Path {
	cx, cy, rx, ry := boxToEllipse(x1, y1, x2, y2)
	return fullEllipse(cx, cy, rx, ry)
}

// EllipseSector is the slice of the ellipse inscribed in the box between two
// parametric angles, with the same sweep rule as Sector.
func EllipseSector(x1, y1, x2, y2, startAngle, endAngle float64) Path {
	cx, cy, rx, ry := boxToEllipse(x1, y1, x2, y2)
	return ellipseSector(cx, cy, rx, ry, startAngle, endAngle)
}

// Polygon is the closed outline through the points (xs[i], ys[i]).
func Polygon(xs, ys []float64) (Path, error) {
	if len(xs) != len(ys) {
		return Path{}, fmt.Errorf("%w: %d x values and %d y values", ErrInvalidShape, len(xs), len(ys))
	}
	if len(xs) < 2 {
		return Path{}, fmt.Errorf("%w: polygon needs at least two points", ErrInvalidShape)
	}
	var p Path
	p.moveTo(xs[0], ys[0])
	for i := 1; i < len(xs); i++ {
		p.lineTo(xs[i], ys[i])
	}
	p.close()
	return p, nil
}

// Line is one open segment.
func Line(x1, y1, x2, y2 float64) Path {
	var p Path
	p.moveTo(x1, y1)
	p.lineTo(x2, y2)
	return p
}

// Sweep returns endAngle-startAngle normalized into (0, 2π].
func Sweep(startAngle, endAngle float64) float64 {
	s := math.Mod(endAngle-startAngle, 2*math.Pi)
	if s <= 1e-12 {
		s += 2 * math.Pi
	}
	return s
}

func boxToEllipse(x1, y1, x2, y2 float64) (cx, cy, rx, ry float64) {
	return (x1 + x2) / 2, (y1 + y2) / 2, math.Abs(x2-x1) / 2, math.Abs(y2-y1) / 2
}

func fullEllipse(cx, cy, rx, ry float64) Path {
	var p Path
	p.moveTo(cx+rx, cy)
	appendArc(&p, cx, cy, rx, ry, 0, 2*math.Pi)
	p.close()
	return p
}

func ellipseSector(cx, cy, rx, ry, startAngle, endAngle float64) Path {
	sweep := Sweep(startAngle, endAngle)
	var p Path
	p.moveTo(cx, cy)
	p.lineTo(cx+rx*math.Cos(startAngle), cy+ry*math.Sin(startAngle))
	appendArc(&p, cx, cy, rx, ry, startAngle, sweep)
	p.close()
	return p
}

// appendArc adds curves from angle start through start+sweep, each covering
// at most a quarter turn. The current point must already be the arc start.
func appendArc(p *Path, cx, cy, rx, ry, start, sweep float64) {
	n := int(math.Ceil(sweep/maxArcStep - 1e-9))
	if n < 1 {
		n = 1
	}
	step := sweep / float64(n)
	k := 4.0 / 3.0 * math.Tan(step/4)
	a := start
	for i := 0; i < n; i++ {
		b := a + step
		cosA, sinA := math.Cos(a), math.Sin(a)
		cosB, sinB := math.Cos(b), math.Sin(b)
		p.curveTo(
			cx+rx*(cosA-k*sinA), cy+ry*(sinA+k*cosA),
			cx+rx*(cosB+k*sinB), cy+ry*(sinB-k*cosB),
			cx+rx*cosB, cy+ry*sinB,
		)
		a = b
	}
}
