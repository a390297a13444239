package models

// ShapeKind tags the Shape variant.
type ShapeKind string

const (
	ShapeRect    ShapeKind = "rect"
	ShapePolygon ShapeKind = "polygon"
)

// Shape is a tagged variant: Rect is set for ShapeRect, Points for
// ShapePolygon. All coordinates are normalized image space (0..1).
type Shape struct {
	Kind   ShapeKind `json:"kind" yaml:"kind" msgpack:"kind"`
	Rect   *Rect     `json:"rect,omitempty" yaml:"rect,omitempty" msgpack:"rect,omitempty"`
	Points []Point   `json:"points,omitempty" yaml:"points,omitempty" msgpack:"points,omitempty"`
}

// RectShape builds a rect shape.
func RectShape(x, y, width, height float64) Shape {
	return Shape{Kind: ShapeRect, Rect: &Rect{X: x, Y: y, Width: width, Height: height}}
}

// PolygonShape builds a polygon shape from its vertices in order.
func PolygonShape(points ...Point) Shape {
	pts := make([]Point, len(points))
	copy(pts, points)
	return Shape{Kind: ShapePolygon, Points: pts}
}

// Clone returns a deep copy.
func (s Shape) Clone() Shape {
	out := Shape{Kind: s.Kind}
	if s.Rect != nil {
		r := *s.Rect
		out.Rect = &r
	}
	if s.Points != nil {
		out.Points = make([]Point, len(s.Points))
		copy(out.Points, s.Points)
	}
	return out
}

// Area is a single clickable region over a room background.
//
// IDs below zero are temporary (assigned by the editor before the area is
// persisted); positive IDs are assigned by the map repository.
type Area struct {
	ID          int64  `json:"id" yaml:"id" msgpack:"id"`
	Shape       Shape  `json:"shape" yaml:"shape" msgpack:"shape"`
	Label       string `json:"label" yaml:"label" msgpack:"label"`
	Destination string `json:"destination" yaml:"destination" msgpack:"destination"`
	ZOrder      int    `json:"zOrder" yaml:"z_order" msgpack:"z_order"`
	IsActive    bool   `json:"isActive" yaml:"is_active" msgpack:"is_active"`
}

// IsTemporary reports whether the area has not been persisted yet.
func (a Area) IsTemporary() bool {
	return a.ID <= 0
}

// Clone returns a deep copy.
func (a Area) Clone() Area {
	a.Shape = a.Shape.Clone()
	return a
}

// AreaMeta carries the non-geometric fields of a new area.
type AreaMeta struct {
	Label       string `json:"label"`
	Destination string `json:"destination"`
	ZOrder      int    `json:"zOrder"`
	IsActive    bool   `json:"isActive"`
}

// AreaPatch is a partial update; nil fields are left untouched.
type AreaPatch struct {
	Shape       *Shape  `json:"shape,omitempty"`
	Label       *string `json:"label,omitempty"`
	Destination *string `json:"destination,omitempty"`
	ZOrder      *int    `json:"zOrder,omitempty"`
	IsActive    *bool   `json:"isActive,omitempty"`
}

// Apply returns a copy of a with the patch applied.
func (p AreaPatch) Apply(a Area) Area {
	out := a.Clone()
	if p.Shape != nil {
		out.Shape = p.Shape.Clone()
	}
	if p.Label != nil {
		out.Label = *p.Label
	}
	if p.Destination != nil {
		out.Destination = *p.Destination
	}
	if p.ZOrder != nil {
		out.ZOrder = *p.ZOrder
	}
	if p.IsActive != nil {
		out.IsActive = *p.IsActive
	}
	return out
}

// CloneAreas deep-copies a slice of areas. Always returns a non-nil slice.
func CloneAreas(areas []Area) []Area {
	out := make([]Area, len(areas))
	for i, a := range areas {
		out[i] = a.Clone()
	}
	return out
}
