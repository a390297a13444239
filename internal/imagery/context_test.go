package imagery_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/storefront-admin/backend/internal/imagery"
	"github.com/storefront-admin/backend/internal/models"
)

func TestContext_Frame(t *testing.T) {
	c := imagery.NewContext(models.Image{Ref: "bg", Width: 200, Height: 100}, models.Size{Width: 400, Height: 400}, 0)

	f := c.Frame()
	p := f.ToRender(models.Point{X: 0, Y: 0})
	assert.InDelta(t, 0, p.X, 1e-9)
	assert.InDelta(t, 100, p.Y, 1e-9)

	c.SetTargetAspect(1)
	p = c.Frame().ToRender(models.Point{X: 1, Y: 1})
	assert.InDelta(t, 400, p.X, 1e-9)
	assert.InDelta(t, 400, p.Y, 1e-9)
}

func TestContext_Apply(t *testing.T) {
	original := models.Image{Ref: "day", Width: 10, Height: 10}
	edited := models.Image{Ref: "night", Width: 10, Height: 10}

	tests := []struct {
		name    string
		job     imagery.Job
		applied bool
	}{
		{"complete background", imagery.Job{Status: imagery.StatusComplete, Target: imagery.TargetBackground, Result: &edited}, true},
		{"complete sign", imagery.Job{Status: imagery.StatusComplete, Target: imagery.TargetShortcutSign, Result: &edited}, false},
		{"canceled", imagery.Job{Status: imagery.StatusCanceled, Target: imagery.TargetBackground}, false},
		{"failed", imagery.Job{Status: imagery.StatusError, Target: imagery.TargetBackground}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := imagery.NewContext(original, models.Size{}, 0)
			assert.Equal(t, tt.applied, c.Apply(tt.job))
			if tt.applied {
				assert.Equal(t, edited, c.Background())
			} else {
				assert.Equal(t, original, c.Background())
			}
		})
	}
}
