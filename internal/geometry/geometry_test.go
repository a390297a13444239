package geometry

import (
	"math"
	"testing"

	"github.com/storefront-admin/backend/internal/models"
)

func TestHitTest_Rect(t *testing.T) {
	rects := []models.Rect{
		{X: 0.1, Y: 0.1, Width: 0.3, Height: 0.2},
		{X: 0, Y: 0, Width: 1, Height: 1},
		{X: 0.5, Y: 0.25, Width: 0.001, Height: 0.4},
	}

	for _, r := range rects {
		area := models.Area{Shape: models.RectShape(r.X, r.Y, r.Width, r.Height)}
		center := models.Point{X: r.X + r.Width/2, Y: r.Y + r.Height/2}
		if !HitTest(center, area) {
			t.Errorf("expected center %v inside %v", center, r)
		}

		outside := []models.Point{
			{X: r.X - 0.01, Y: center.Y},
			{X: r.X + r.Width + 0.01, Y: center.Y},
			{X: center.X, Y: r.Y - 0.01},
			{X: center.X, Y: r.Y + r.Height + 0.01},
		}
		for _, p := range outside {
			if HitTest(p, area) {
				t.Errorf("expected %v outside %v", p, r)
			}
		}
	}
}

// windingNumber is an independent reference for point-in-polygon. For simple
// polygons a non-zero winding number matches the even-odd rule.
func windingNumber(p models.Point, pts []models.Point) int {
	wn := 0
	for i := range pts {
		a, b := pts[i], pts[(i+1)%len(pts)]
		isLeft := (b.X-a.X)*(p.Y-a.Y) - (p.X-a.X)*(b.Y-a.Y)
		if a.Y <= p.Y {
			if b.Y > p.Y && isLeft > 0 {
				wn++
			}
		} else if b.Y <= p.Y && isLeft < 0 {
			wn--
		}
	}
	return wn
}

func TestHitTest_PolygonMatchesReference(t *testing.T) {
	polygons := map[string][]models.Point{
		"triangle": {{X: 0.1, Y: 0.1}, {X: 0.9, Y: 0.2}, {X: 0.4, Y: 0.8}},
		"concave": {
			{X: 0.1, Y: 0.1}, {X: 0.9, Y: 0.1}, {X: 0.9, Y: 0.9},
			{X: 0.5, Y: 0.4}, {X: 0.1, Y: 0.9},
		},
		"comb": {
			{X: 0.05, Y: 0.95}, {X: 0.05, Y: 0.05}, {X: 0.25, Y: 0.05}, {X: 0.25, Y: 0.7},
			{X: 0.45, Y: 0.7}, {X: 0.45, Y: 0.05}, {X: 0.65, Y: 0.05}, {X: 0.65, Y: 0.7},
			{X: 0.85, Y: 0.7}, {X: 0.85, Y: 0.05}, {X: 0.95, Y: 0.05}, {X: 0.95, Y: 0.95},
		},
		"clockwise square": {{X: 0.2, Y: 0.2}, {X: 0.2, Y: 0.6}, {X: 0.6, Y: 0.6}, {X: 0.6, Y: 0.2}},
	}

	for name, pts := range polygons {
		t.Run(name, func(t *testing.T) {
			if !IsSimplePolygon(pts) {
				t.Fatalf("fixture polygon %s is not simple", name)
			}
			area := models.Area{Shape: models.PolygonShape(pts...)}

			// offset keeps samples off polygon edges and vertices
			const steps = 200
			offset := 0.0013 * math.Sqrt2
			for i := 0; i < steps; i++ {
				for j := 0; j < steps; j++ {
					p := models.Point{X: float64(i)/steps + offset, Y: float64(j)/steps + offset}
					want := windingNumber(p, pts) != 0
					if got := HitTest(p, area); got != want {
						t.Fatalf("point %v: got %v, reference %v", p, got, want)
					}
				}
			}
		})
	}
}

func TestTopmostHit(t *testing.T) {
	low := models.Area{ID: 1, Shape: models.RectShape(0, 0, 0.5, 0.5), ZOrder: 1}
	high := models.Area{ID: 2, Shape: models.RectShape(0.2, 0.2, 0.5, 0.5), ZOrder: 5}
	tieOld := models.Area{ID: 3, Shape: models.RectShape(0.6, 0.6, 0.3, 0.3), ZOrder: 2}
	tieNew := models.Area{ID: 4, Shape: models.RectShape(0.65, 0.65, 0.3, 0.3), ZOrder: 2}
	areas := []models.Area{low, high, tieOld, tieNew}

	tests := []struct {
		name   string
		point  models.Point
		wantID int64
		wantOK bool
	}{
		{name: "only low", point: models.Point{X: 0.1, Y: 0.1}, wantID: 1, wantOK: true},
		{name: "higher z wins", point: models.Point{X: 0.3, Y: 0.3}, wantID: 2, wantOK: true},
		{name: "equal z goes to newest", point: models.Point{X: 0.8, Y: 0.8}, wantID: 4, wantOK: true},
		{name: "miss", point: models.Point{X: 0.99, Y: 0.01}, wantOK: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := TopmostHit(tt.point, areas)
			if ok != tt.wantOK {
				t.Fatalf("expected ok=%v, got %v", tt.wantOK, ok)
			}
			if ok && got.ID != tt.wantID {
				t.Errorf("expected area %d, got %d", tt.wantID, got.ID)
			}
		})
	}
}

func TestTopmostActiveHit_SkipsDisabled(t *testing.T) {
	areas := []models.Area{
		{ID: 1, Shape: models.RectShape(0, 0, 1, 1), ZOrder: 0, IsActive: true},
		{ID: 2, Shape: models.RectShape(0, 0, 1, 1), ZOrder: 9, IsActive: false},
	}
	got, ok := TopmostActiveHit(models.Point{X: 0.5, Y: 0.5}, areas)
	if !ok || got.ID != 1 {
		t.Errorf("expected active area 1, got %v (ok=%v)", got.ID, ok)
	}
	got, _ = TopmostHit(models.Point{X: 0.5, Y: 0.5}, areas)
	if got.ID != 2 {
		t.Errorf("expected editor hit to include disabled area 2, got %d", got.ID)
	}
}

func TestSnap(t *testing.T) {
	sizes := []float64{0.05, 0.1, 0.025, 1.0 / 3, 0.0625}
	for _, s := range sizes {
		for i := 0; i < 500; i++ {
			p := models.Point{X: float64(i) * 0.00731, Y: 1 - float64(i)*0.00419}
			once := Snap(p, s)
			twice := Snap(once, s)
			if once != twice {
				t.Fatalf("snap not idempotent for %v at %g: %v vs %v", p, s, once, twice)
			}
			if math.Abs(once.X-p.X) > s/2+1e-12 || math.Abs(once.Y-p.Y) > s/2+1e-12 {
				t.Fatalf("snap moved %v too far to %v at %g", p, once, s)
			}
		}
	}

	p := models.Point{X: 0.1234, Y: 0.9876}
	if got := Snap(p, 0); got != p {
		t.Errorf("snap with size 0 should be identity, got %v", got)
	}
	if got := Snap(models.Point{X: 0.12, Y: 0.38}, 0.05); math.Abs(got.X-0.1) > 1e-12 || math.Abs(got.Y-0.4) > 1e-12 {
		t.Errorf("unexpected snap result %v", got)
	}
}

func TestBoundingBox(t *testing.T) {
	if _, ok := BoundingBox(nil); ok {
		t.Error("expected no bounding box for empty input")
	}

	areas := []models.Area{
		{Shape: models.RectShape(0.1, 0.2, 0.1, 0.1)},
		{Shape: models.PolygonShape(models.Point{X: 0.5, Y: 0.05}, models.Point{X: 0.7, Y: 0.5}, models.Point{X: 0.4, Y: 0.6})},
	}
	box, ok := BoundingBox(areas)
	if !ok {
		t.Fatal("expected bounding box")
	}
	want := models.Rect{X: 0.1, Y: 0.05, Width: 0.6, Height: 0.55}
	if math.Abs(box.X-want.X) > 1e-12 || math.Abs(box.Y-want.Y) > 1e-12 ||
		math.Abs(box.Width-want.Width) > 1e-12 || math.Abs(box.Height-want.Height) > 1e-12 {
		t.Errorf("expected %v, got %v", want, box)
	}
}

func TestTranslate(t *testing.T) {
	poly := models.PolygonShape(models.Point{X: 0, Y: 0}, models.Point{X: 1, Y: 0}, models.Point{X: 0, Y: 1})
	moved := Translate(poly, 0.5, 0.25)
	if moved.Points[1] != (models.Point{X: 1.5, Y: 0.25}) {
		t.Errorf("unexpected translated point %v", moved.Points[1])
	}
	if poly.Points[1] != (models.Point{X: 1, Y: 0}) {
		t.Error("translate mutated its input")
	}
}
