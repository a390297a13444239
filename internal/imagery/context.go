package imagery

import (
	"sync"

	"github.com/storefront-admin/backend/internal/geometry"
	"github.com/storefront-admin/backend/internal/models"
)

// Context is the image context one editing session renders against: the
// background image, the container it is drawn into and the target aspect
// ratio forcing letterboxing.
type Context struct {
	mu           sync.RWMutex
	background   models.Image
	container    models.Size
	targetAspect float64
}

// NewContext creates a context. A zero targetAspect uses the image's own.
func NewContext(background models.Image, container models.Size, targetAspect float64) *Context {
	return &Context{background: background, container: container, targetAspect: targetAspect}
}

// Background returns the current background image.
func (c *Context) Background() models.Image {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.background
}

// Swap replaces the background reference and returns the previous one.
// Area geometry is normalized, so nothing else has to change.
func (c *Context) Swap(img models.Image) models.Image {
	c.mu.Lock()
	defer c.mu.Unlock()
	prev := c.background
	c.background = img
	return prev
}

// SetContainer records a new rendered container size.
func (c *Context) SetContainer(size models.Size) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.container = size
}

// SetTargetAspect changes the forced aspect ratio; 0 clears it.
func (c *Context) SetTargetAspect(aspect float64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.targetAspect = aspect
}

// Container returns the rendered container size.
func (c *Context) Container() models.Size {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.container
}

// TargetAspect returns the forced aspect ratio, 0 when unset.
func (c *Context) TargetAspect() float64 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.targetAspect
}

// Frame returns the drawn-rectangle transform for the current state.
func (c *Context) Frame() geometry.Frame {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return geometry.NewFrame(c.background.IntrinsicSize(), c.container, c.targetAspect)
}

// Apply swaps in the result of a completed background edit. It reports
// whether the background changed.
func (c *Context) Apply(job Job) bool {
	if job.Status != StatusComplete || job.Target != TargetBackground || job.Result == nil {
		return false
	}
	c.Swap(*job.Result)
	return true
}
