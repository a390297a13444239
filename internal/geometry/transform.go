package geometry

import "github.com/storefront-admin/backend/internal/models"

// Frame describes where a background image is actually drawn inside its
// on-screen container. When a target aspect ratio is set (or the intrinsic
// aspect differs from the container) the image is letterboxed and centred.
type Frame struct {
	Drawn models.Rect
}

// NewFrame computes the drawn rectangle for an image of the given intrinsic
// size shown in a container, honouring targetAspect (width/height) when it
// is positive.
func NewFrame(intrinsic, container models.Size, targetAspect float64) Frame {
	return Frame{Drawn: DrawnRect(container, intrinsic, targetAspect)}
}

// DrawnRect returns the rectangle the image occupies inside the container
// using a contain fit.
func DrawnRect(container, intrinsic models.Size, targetAspect float64) models.Rect {
	if container.Width <= 0 || container.Height <= 0 {
		return models.Rect{}
	}
	aspect := targetAspect
	if aspect <= 0 {
		if intrinsic.Width <= 0 || intrinsic.Height <= 0 {
			return models.Rect{Width: container.Width, Height: container.Height}
		}
		aspect = intrinsic.Width / intrinsic.Height
	}

	containerAspect := container.Width / container.Height
	if containerAspect > aspect {
		// pillarbox
		w := container.Height * aspect
		return models.Rect{X: (container.Width - w) / 2, Y: 0, Width: w, Height: container.Height}
	}
	// letterbox
	h := container.Width / aspect
	return models.Rect{X: 0, Y: (container.Height - h) / 2, Width: container.Width, Height: h}
}

// ToRender maps a normalized point to container pixels.
func (f Frame) ToRender(p models.Point) models.Point {
	return models.Point{
		X: f.Drawn.X + p.X*f.Drawn.Width,
		Y: f.Drawn.Y + p.Y*f.Drawn.Height,
	}
}

// FromRender maps container pixels to a normalized point. A degenerate
// frame maps everything to the origin.
func (f Frame) FromRender(p models.Point) models.Point {
	if f.Drawn.Width <= 0 || f.Drawn.Height <= 0 {
		return models.Point{}
	}
	return models.Point{
		X: (p.X - f.Drawn.X) / f.Drawn.Width,
		Y: (p.Y - f.Drawn.Y) / f.Drawn.Height,
	}
}

// ToRenderSpace maps a normalized point into rendered container pixels.
func ToRenderSpace(p models.Point, intrinsic, rendered models.Size, targetAspect float64) models.Point {
	return NewFrame(intrinsic, rendered, targetAspect).ToRender(p)
}

// FromRenderSpace is the inverse of ToRenderSpace.
func FromRenderSpace(p models.Point, intrinsic, rendered models.Size, targetAspect float64) models.Point {
	return NewFrame(intrinsic, rendered, targetAspect).FromRender(p)
}
