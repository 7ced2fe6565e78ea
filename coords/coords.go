// Package coords provides the affine matrices used by content-stream
// transformations. A Matrix [a b c d e f] maps (x, y) to
// (a*x + c*y + e, b*x + d*y + f), the same layout as the cm operator.
package coords

import (
	"errors"
	"math"
)

// ErrSingular is returned by Inverse for a matrix with no inverse.
var ErrSingular = errors.New("coords: matrix singular")

type Matrix [6]float64

func Identity() Matrix { return Matrix{1, 0, 0, 1, 0, 0} }

// Multiply returns m followed by o: applying the result to a point equals
// applying m first and then o.
func (m Matrix) Multiply(o Matrix) Matrix {
	return Matrix{
		m[0]*o[0] + m[1]*o[2],
		m[0]*o[1] + m[1]*o[3],
		m[2]*o[0] + m[3]*o[2],
		m[2]*o[1] + m[3]*o[3],
		m[4]*o[0] + m[5]*o[2] + o[4],
		m[4]*o[1] + m[5]*o[3] + o[5],
	}
}

func (m Matrix) IsIdentity() bool { return m == Identity() }

type Point struct{ X, Y float64 }

func (m Matrix) Transform(p Point) Point {
	return Point{X: m[0]*p.X + m[2]*p.Y + m[4], Y: m[1]*p.X + m[3]*p.Y + m[5]}
}

func (m Matrix) Inverse() (Matrix, error) {
	det := m[0]*m[3] - m[1]*m[2]
	if math.Abs(det) < 1e-10 {
		return Matrix{}, ErrSingular
	}
	return Matrix{
		m[3] / det, -m[1] / det,
		-m[2] / det, m[0] / det,
		(m[2]*m[5] - m[3]*m[4]) / det, (m[1]*m[4] - m[0]*m[5]) / det,
	}, nil
}

func Translate(tx, ty float64) Matrix { return Matrix{1, 0, 0, 1, tx, ty} }

func Scale(sx, sy float64) Matrix { return Matrix{sx, 0, 0, sy, 0, 0} }

// Rotate is a counter-clockwise rotation by angle radians.
func Rotate(angle float64) Matrix {
	c, s := math.Cos(angle), math.Sin(angle)
	return Matrix{c, s, -s, c, 0, 0}
}

// RotateAbout rotates by angle around (x, y): translate the pivot to the
// origin, rotate, translate back.
func RotateAbout(x, y, angle float64) Matrix {
	return Translate(-x, -y).Multiply(Rotate(angle)).Multiply(Translate(x, y))
}

// Rect is an axis-aligned rectangle given by its lower-left and upper-right
// corners.
type Rect struct{ LLX, LLY, URX, URY float64 }

func (r Rect) Width() float64  { return r.URX - r.LLX }
func (r Rect) Height() float64 { return r.URY - r.LLY }
func (r Rect) IsEmpty() bool   { return r.URX <= r.LLX || r.URY <= r.LLY }

// Union returns the smallest rectangle covering r and o. An empty operand
// is ignored.
func (r Rect) Union(o Rect) Rect {
	if r.IsEmpty() {
		return o
	}
	if o.IsEmpty() {
		return r
	}
	return Rect{
		LLX: math.Min(r.LLX, o.LLX), LLY: math.Min(r.LLY, o.LLY),
		URX: math.Max(r.URX, o.URX), URY: math.Max(r.URY, o.URY),
	}
}

// Bounds returns the rectangle covering points.
func Bounds(points ...Point) Rect {
	if len(points) == 0 {
		return Rect{}
	}
	r := Rect{LLX: points[0].X, LLY: points[0].Y, URX: points[0].X, URY: points[0].Y}
	for _, p := range points[1:] {
		r.LLX = math.Min(r.LLX, p.X)
		r.LLY = math.Min(r.LLY, p.Y)
		r.URX = math.Max(r.URX, p.X)
		r.URY = math.Max(r.URY, p.Y)
	}
	return r
}
