// Package geometry implements the pure functions behind the hotspot editor:
// hit-testing, snapping, bounding boxes and coordinate transforms between
// normalized image space and on-screen render space.
package geometry

import (
	"math"

	"github.com/storefront-admin/backend/internal/models"
)

// HitTest reports whether p falls inside the area's shape. Rect edges count
// as inside; polygons use the even-odd rule.
func HitTest(p models.Point, area models.Area) bool {
	return ShapeContains(area.Shape, p)
}

// ShapeContains reports whether p falls inside shape.
func ShapeContains(shape models.Shape, p models.Point) bool {
	switch shape.Kind {
	case models.ShapeRect:
		if shape.Rect == nil {
			return false
		}
		return shape.Rect.Contains(p)
	case models.ShapePolygon:
		return pointInPolygon(p, shape.Points)
	default:
		return false
	}
}

// pointInPolygon casts a ray towards +X and counts edge crossings.
func pointInPolygon(p models.Point, pts []models.Point) bool {
	n := len(pts)
	if n < 3 {
		return false
	}
	inside := false
	for i, j := 0, n-1; i < n; j, i = i, i+1 {
		a, b := pts[i], pts[j]
		if (a.Y > p.Y) != (b.Y > p.Y) {
			xCross := (b.X-a.X)*(p.Y-a.Y)/(b.Y-a.Y) + a.X
			if p.X < xCross {
				inside = !inside
			}
		}
	}
	return inside
}

// TopmostHit returns the area under p with the highest ZOrder. Equal ZOrder
// ties go to the most recently created area, which is the later one in the
// ordered slice.
func TopmostHit(p models.Point, areas []models.Area) (models.Area, bool) {
	return topmost(p, areas, false)
}

// TopmostActiveHit is TopmostHit restricted to areas with IsActive set. The
// public storefront uses this; the editor still hits disabled areas.
func TopmostActiveHit(p models.Point, areas []models.Area) (models.Area, bool) {
	return topmost(p, areas, true)
}

func topmost(p models.Point, areas []models.Area, activeOnly bool) (models.Area, bool) {
	best := -1
	for i := range areas {
		if activeOnly && !areas[i].IsActive {
			continue
		}
		if !HitTest(p, areas[i]) {
			continue
		}
		if best < 0 || areas[i].ZOrder >= areas[best].ZOrder {
			best = i
		}
	}
	if best < 0 {
		return models.Area{}, false
	}
	return areas[best], true
}

// Snap rounds each coordinate to the nearest multiple of snapSize. A
// non-positive snapSize disables snapping.
func Snap(p models.Point, snapSize float64) models.Point {
	if snapSize <= 0 || math.IsNaN(snapSize) || math.IsInf(snapSize, 0) {
		return p
	}
	return models.Point{
		X: snapValue(p.X, snapSize),
		Y: snapValue(p.Y, snapSize),
	}
}

func snapValue(v, s float64) float64 {
	return math.Round(v/s) * s
}

// ShapeBounds returns the axis-aligned envelope of a shape.
func ShapeBounds(shape models.Shape) models.Rect {
	switch shape.Kind {
	case models.ShapeRect:
		if shape.Rect == nil {
			return models.Rect{}
		}
		return *shape.Rect
	case models.ShapePolygon:
		if len(shape.Points) == 0 {
			return models.Rect{}
		}
		minX, minY := shape.Points[0].X, shape.Points[0].Y
		maxX, maxY := minX, minY
		for _, pt := range shape.Points[1:] {
			minX = math.Min(minX, pt.X)
			minY = math.Min(minY, pt.Y)
			maxX = math.Max(maxX, pt.X)
			maxY = math.Max(maxY, pt.Y)
		}
		return models.Rect{X: minX, Y: minY, Width: maxX - minX, Height: maxY - minY}
	default:
		return models.Rect{}
	}
}

// BoundingBox returns the min/max envelope of all areas. The second result
// is false when areas is empty.
func BoundingBox(areas []models.Area) (models.Rect, bool) {
	if len(areas) == 0 {
		return models.Rect{}, false
	}
	box := ShapeBounds(areas[0].Shape)
	minX, minY := box.X, box.Y
	maxX, maxY := box.X+box.Width, box.Y+box.Height
	for _, a := range areas[1:] {
		b := ShapeBounds(a.Shape)
		minX = math.Min(minX, b.X)
		minY = math.Min(minY, b.Y)
		maxX = math.Max(maxX, b.X+b.Width)
		maxY = math.Max(maxY, b.Y+b.Height)
	}
	return models.Rect{X: minX, Y: minY, Width: maxX - minX, Height: maxY - minY}, true
}

// Translate returns a copy of shape moved by (dx, dy).
func Translate(shape models.Shape, dx, dy float64) models.Shape {
	out := shape.Clone()
	switch out.Kind {
	case models.ShapeRect:
		if out.Rect != nil {
			out.Rect.X += dx
			out.Rect.Y += dy
		}
	case models.ShapePolygon:
		for i := range out.Points {
			out.Points[i].X += dx
			out.Points[i].Y += dy
		}
	}
	return out
}
