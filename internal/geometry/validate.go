package geometry

import (
	"fmt"
	"math"

	"github.com/storefront-admin/backend/internal/models"
)

// ValidateShape checks the shape invariants: rects need positive width and
// height, polygons need at least three points, a non-zero area and no self
// intersections. Offending shapes are rejected, never corrected.
func ValidateShape(shape models.Shape) error {
	switch shape.Kind {
	case models.ShapeRect:
		return validateRect(shape.Rect)
	case models.ShapePolygon:
		return validatePolygon(shape.Points)
	default:
		return fmt.Errorf("%w: unknown shape kind %q", models.ErrInvalidGeometry, shape.Kind)
	}
}

func validateRect(r *models.Rect) error {
	if r == nil {
		return fmt.Errorf("%w: rect shape without bounds", models.ErrInvalidGeometry)
	}
	if !finite(r.X) || !finite(r.Y) || !finite(r.Width) || !finite(r.Height) {
		return fmt.Errorf("%w: rect has non-finite coordinates", models.ErrInvalidGeometry)
	}
	if r.Width <= 0 || r.Height <= 0 {
		return fmt.Errorf("%w: rect must have positive width and height (got %gx%g)", models.ErrInvalidGeometry, r.Width, r.Height)
	}
	return nil
}

func validatePolygon(pts []models.Point) error {
	n := len(pts)
	if n < 3 {
		return fmt.Errorf("%w: polygon needs at least 3 points (got %d)", models.ErrInvalidGeometry, n)
	}
	for i, p := range pts {
		if !finite(p.X) || !finite(p.Y) {
			return fmt.Errorf("%w: polygon point %d is not finite", models.ErrInvalidGeometry, i)
		}
		next := pts[(i+1)%n]
		if p == next {
			return fmt.Errorf("%w: polygon has a zero-length edge at point %d", models.ErrInvalidGeometry, i)
		}
	}
	if math.Abs(signedArea(pts)) < 1e-12 {
		return fmt.Errorf("%w: polygon has zero area", models.ErrInvalidGeometry)
	}

	for i := 0; i < n; i++ {
		a1, a2 := pts[i], pts[(i+1)%n]
		for j := i + 1; j < n; j++ {
			b1, b2 := pts[j], pts[(j+1)%n]
			adjacent := j == i+1 || (i == 0 && j == n-1)
			if adjacent {
				if edgesFoldBack(a1, a2, b1, b2) {
					return fmt.Errorf("%w: polygon edges %d and %d overlap", models.ErrInvalidGeometry, i, j)
				}
				continue
			}
			if segmentsIntersect(a1, a2, b1, b2) {
				return fmt.Errorf("%w: polygon is self-intersecting (edges %d and %d)", models.ErrInvalidGeometry, i, j)
			}
		}
	}
	return nil
}

// IsSimplePolygon reports whether pts form a valid simple polygon.
func IsSimplePolygon(pts []models.Point) bool {
	return validatePolygon(pts) == nil
}

func finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}

func signedArea(pts []models.Point) float64 {
	var sum float64
	for i := range pts {
		a, b := pts[i], pts[(i+1)%len(pts)]
		sum += a.X*b.Y - b.X*a.Y
	}
	return sum / 2
}

func cross(o, a, b models.Point) float64 {
	return (a.X-o.X)*(b.Y-o.Y) - (a.Y-o.Y)*(b.X-o.X)
}

const collinearEps = 1e-12

func orientation(o, a, b models.Point) int {
	c := cross(o, a, b)
	switch {
	case c > collinearEps:
		return 1
	case c < -collinearEps:
		return -1
	default:
		return 0
	}
}

func onSegment(a, b, p models.Point) bool {
	return math.Min(a.X, b.X)-collinearEps <= p.X && p.X <= math.Max(a.X, b.X)+collinearEps &&
		math.Min(a.Y, b.Y)-collinearEps <= p.Y && p.Y <= math.Max(a.Y, b.Y)+collinearEps
}

func segmentsIntersect(p1, p2, q1, q2 models.Point) bool {
	o1 := orientation(p1, p2, q1)
	o2 := orientation(p1, p2, q2)
	o3 := orientation(q1, q2, p1)
	o4 := orientation(q1, q2, p2)

	if o1 != o2 && o3 != o4 {
		return true
	}
	if o1 == 0 && onSegment(p1, p2, q1) {
		return true
	}
	if o2 == 0 && onSegment(p1, p2, q2) {
		return true
	}
	if o3 == 0 && onSegment(q1, q2, p1) {
		return true
	}
	if o4 == 0 && onSegment(q1, q2, p2) {
		return true
	}
	return false
}

// edgesFoldBack reports whether two edges sharing a vertex are collinear
// and point back over each other.
func edgesFoldBack(a1, a2, b1, b2 models.Point) bool {
	var shared, endA, endB models.Point
	switch {
	case a2 == b1:
		shared, endA, endB = a2, a1, b2
	case b2 == a1:
		shared, endA, endB = a1, a2, b1
	default:
		return segmentsIntersect(a1, a2, b1, b2)
	}
	if orientation(shared, endA, endB) != 0 {
		return false
	}
	da := models.Point{X: endA.X - shared.X, Y: endA.Y - shared.Y}
	db := models.Point{X: endB.X - shared.X, Y: endB.Y - shared.Y}
	return da.X*db.X+da.Y*db.Y > 0
}
