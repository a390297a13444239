package geometry

import (
	"math"
	"testing"

	"github.com/storefront-admin/backend/internal/models"
)

func TestDrawnRect(t *testing.T) {
	tests := []struct {
		name      string
		container models.Size
		intrinsic models.Size
		aspect    float64
		want      models.Rect
	}{
		{
			name:      "exact fit",
			container: models.Size{Width: 800, Height: 400},
			intrinsic: models.Size{Width: 1600, Height: 800},
			want:      models.Rect{Width: 800, Height: 400},
		},
		{
			name:      "pillarbox from target aspect",
			container: models.Size{Width: 800, Height: 400},
			intrinsic: models.Size{Width: 1600, Height: 800},
			aspect:    1,
			want:      models.Rect{X: 200, Width: 400, Height: 400},
		},
		{
			name:      "letterbox from intrinsic aspect",
			container: models.Size{Width: 400, Height: 400},
			intrinsic: models.Size{Width: 1600, Height: 800},
			want:      models.Rect{Y: 100, Width: 400, Height: 200},
		},
		{
			name:      "empty container",
			container: models.Size{},
			intrinsic: models.Size{Width: 10, Height: 10},
			want:      models.Rect{},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := DrawnRect(tt.container, tt.intrinsic, tt.aspect)
			if got != tt.want {
				t.Errorf("expected %v, got %v", tt.want, got)
			}
		})
	}
}

func TestRenderSpaceRoundTrip(t *testing.T) {
	intrinsics := []models.Size{{Width: 1920, Height: 1080}, {Width: 1000, Height: 3000}, {Width: 512, Height: 512}}
	rendered := []models.Size{{Width: 1280, Height: 720}, {Width: 375, Height: 812}, {Width: 1024, Height: 300}, {Width: 1, Height: 1}}
	aspects := []float64{0, 16.0 / 9, 4.0 / 3, 1, 0.5, 21.0 / 9}

	for _, in := range intrinsics {
		for _, r := range rendered {
			for _, a := range aspects {
				for i := 0; i <= 10; i++ {
					for j := 0; j <= 10; j++ {
						p := models.Point{X: float64(i) / 10, Y: float64(j) / 10}
						back := FromRenderSpace(ToRenderSpace(p, in, r, a), in, r, a)
						if math.Abs(back.X-p.X) > 1e-9 || math.Abs(back.Y-p.Y) > 1e-9 {
							t.Fatalf("round trip %v -> %v (intrinsic %v, rendered %v, aspect %g)", p, back, in, r, a)
						}
					}
				}
			}
		}
	}
}

func TestToRenderSpace_AccountsForLetterbox(t *testing.T) {
	got := ToRenderSpace(models.Point{X: 0, Y: 0}, models.Size{Width: 100, Height: 100}, models.Size{Width: 800, Height: 400}, 0)
	if got != (models.Point{X: 200, Y: 0}) {
		t.Errorf("expected origin at drawn rect corner (200,0), got %v", got)
	}
	got = ToRenderSpace(models.Point{X: 1, Y: 1}, models.Size{Width: 100, Height: 100}, models.Size{Width: 800, Height: 400}, 0)
	if got != (models.Point{X: 600, Y: 400}) {
		t.Errorf("expected far corner at (600,400), got %v", got)
	}
}
