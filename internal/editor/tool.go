package editor

import (
	"math"

	"github.com/storefront-admin/backend/internal/geometry"
	"github.com/storefront-admin/backend/internal/models"
)

// Tool is the closed set of pointer tools. The unexported method keeps the
// set closed to this package so Machine can switch over it exhaustively.
type Tool interface {
	Name() string
	isTool()
}

// SelectTool selects, marquee-selects and drag-moves areas.
type SelectTool struct{}

// CreateTool draws new shapes of the given kind.
type CreateTool struct {
	Kind models.ShapeKind
}

// PanTool moves the viewport without touching area geometry.
type PanTool struct{}

func (SelectTool) Name() string { return "select" }
func (CreateTool) Name() string { return "create" }
func (PanTool) Name() string    { return "pan" }

func (SelectTool) isTool() {}
func (CreateTool) isTool() {}
func (PanTool) isTool()    {}

// PointerKind identifies a pointer event.
type PointerKind int

const (
	PointerDown PointerKind = iota
	PointerMove
	PointerUp
	PointerDoubleClick
)

// Modifiers are the keyboard modifiers held during a pointer event. Shift
// starts a marquee; Toggle (ctrl/cmd) toggles single areas in the selection.
type Modifiers struct {
	Shift  bool
	Toggle bool
}

// PointerEvent is a pointer input. Point is in normalized image space;
// Screen is in container pixels and only matters to the pan tool.
type PointerEvent struct {
	Kind      PointerKind
	Point     models.Point
	Screen    models.Point
	Modifiers Modifiers
}

// Key is a keyboard key the machine reacts to.
type Key string

const (
	KeyEscape Key = "Escape"
	KeyDelete Key = "Delete"
)

// KeyEvent is a keyboard input.
type KeyEvent struct {
	Key Key
}

// Outcome reports what an input did. Err carries a local, absorbed error
// (invalid geometry, missing id); it is informational and never fatal.
type Outcome struct {
	Changed  bool
	Created  *models.Area
	Canceled bool
	Err      error
}

// Viewport is the pan offset applied to the canvas, in container pixels.
type Viewport struct {
	OffsetX float64 `json:"offsetX"`
	OffsetY float64 `json:"offsetY"`
}

// Preview describes an in-progress gesture for rendering.
type Preview struct {
	Rect    *models.Rect
	Points  []models.Point
	Marquee *models.Rect
}

type dragMove struct {
	anchor    models.Point
	originals map[int64]models.Shape
	delta     models.Point
}

type marquee struct {
	start, current models.Point
}

type shapeDraft struct {
	kind   models.ShapeKind
	anchor models.Point
	end    models.Point
	points []models.Point
	hover  models.Point
}

type panGesture struct {
	last models.Point
}

// DefaultCloseTolerance is how close (normalized units) a click must be to
// the first polygon vertex to close the polygon.
const DefaultCloseTolerance = 0.01

// Machine interprets pointer and keyboard input according to the active
// tool and applies the resulting mutations to an AreaStore.
type Machine struct {
	store          *AreaStore
	tool           Tool
	snapSize       float64
	closeTolerance float64
	defaults       models.AreaMeta
	viewport       Viewport

	drag    *dragMove
	marquee *marquee
	draft   *shapeDraft
	pan     *panGesture
}

// NewMachine creates a machine in the select state.
func NewMachine(store *AreaStore) *Machine {
	return &Machine{
		store:          store,
		tool:           SelectTool{},
		closeTolerance: DefaultCloseTolerance,
		defaults:       models.AreaMeta{IsActive: true},
	}
}

// Tool returns the active tool.
func (m *Machine) Tool() Tool { return m.tool }

// SetTool switches tools, abandoning any gesture in progress.
func (m *Machine) SetTool(t Tool) {
	if t == nil {
		t = SelectTool{}
	}
	m.resetGestures()
	m.tool = t
}

// SnapSize returns the grid quantum applied to drawn and moved geometry.
func (m *Machine) SnapSize() float64 { return m.snapSize }

// SetSnapSize changes the grid quantum; 0 disables snapping.
func (m *Machine) SetSnapSize(s float64) {
	if s < 0 || math.IsNaN(s) || math.IsInf(s, 0) {
		s = 0
	}
	m.snapSize = s
}

// SetCloseTolerance sets the polygon closing distance.
func (m *Machine) SetCloseTolerance(tol float64) {
	if tol > 0 {
		m.closeTolerance = tol
	}
}

// SetDefaults sets the metadata given to newly drawn areas.
func (m *Machine) SetDefaults(meta models.AreaMeta) {
	m.defaults = meta
}

// Viewport returns the current pan offset.
func (m *Machine) Viewport() Viewport { return m.viewport }

// Busy reports whether a gesture is in progress.
func (m *Machine) Busy() bool {
	return m.drag != nil || m.marquee != nil || m.draft != nil || m.pan != nil
}

// Reset returns to the select tool with no gesture in progress.
func (m *Machine) Reset() {
	m.resetGestures()
	m.tool = SelectTool{}
}

func (m *Machine) resetGestures() {
	m.drag = nil
	m.marquee = nil
	m.draft = nil
	m.pan = nil
}

// Preview returns the in-progress shape or marquee, or nil.
func (m *Machine) Preview() *Preview {
	switch {
	case m.draft != nil && m.draft.kind == models.ShapeRect:
		r := models.RectFromCorners(m.draft.anchor, m.draft.end)
		return &Preview{Rect: &r}
	case m.draft != nil:
		pts := append(append([]models.Point(nil), m.draft.points...), m.draft.hover)
		return &Preview{Points: pts}
	case m.marquee != nil:
		r := models.RectFromCorners(m.marquee.start, m.marquee.current)
		return &Preview{Marquee: &r}
	}
	return nil
}

// HandlePointer dispatches a pointer event to the active tool.
func (m *Machine) HandlePointer(ev PointerEvent) Outcome {
	switch t := m.tool.(type) {
	case SelectTool:
		return m.handleSelect(ev)
	case CreateTool:
		return m.handleCreate(t, ev)
	case PanTool:
		return m.handlePan(ev)
	default:
		return Outcome{}
	}
}

// HandleKey handles keyboard input. Escape aborts an in-progress create
// without committing anything; Delete removes the selection.
func (m *Machine) HandleKey(ev KeyEvent) Outcome {
	switch ev.Key {
	case KeyEscape:
		canceled := m.draft != nil
		m.draft = nil
		m.marquee = nil
		return Outcome{Canceled: canceled}
	case KeyDelete:
		if _, ok := m.tool.(SelectTool); !ok || m.Busy() {
			return Outcome{}
		}
		ids := m.store.Selection()
		for _, id := range ids {
			m.store.RemoveArea(id)
		}
		return Outcome{Changed: len(ids) > 0}
	}
	return Outcome{}
}

func (m *Machine) handleSelect(ev PointerEvent) Outcome {
	switch ev.Kind {
	case PointerDown:
		if ev.Modifiers.Shift {
			m.marquee = &marquee{start: ev.Point, current: ev.Point}
			return Outcome{}
		}
		hit, ok := geometry.TopmostHit(ev.Point, m.store.Areas())
		if !ok {
			if !ev.Modifiers.Toggle {
				m.store.ClearSelection()
			}
			return Outcome{}
		}
		if ev.Modifiers.Toggle {
			m.store.ToggleSelection(hit.ID)
			return Outcome{}
		}
		if !m.store.IsSelected(hit.ID) {
			m.store.SetSelection(hit.ID)
		}
		m.startDrag(ev.Point)
		return Outcome{}

	case PointerMove:
		if m.marquee != nil {
			m.marquee.current = ev.Point
			return Outcome{}
		}
		if m.drag != nil {
			return m.continueDrag(ev.Point)
		}
		return Outcome{}

	case PointerUp:
		if m.marquee != nil {
			m.marquee.current = ev.Point
			m.finishMarquee()
			return Outcome{}
		}
		if m.drag != nil {
			out := m.continueDrag(ev.Point)
			m.drag = nil
			return out
		}
	}
	return Outcome{}
}

func (m *Machine) startDrag(at models.Point) {
	originals := make(map[int64]models.Shape)
	for _, a := range m.store.SelectedAreas() {
		originals[a.ID] = a.Shape
	}
	m.drag = &dragMove{
		anchor:    at,
		originals: originals,
	}
}

// continueDrag moves the selection by the pointer offset rounded to whole
// grid steps. Off-grid geometry keeps its offset; a click moves nothing.
func (m *Machine) continueDrag(at models.Point) Outcome {
	d := m.drag
	delta := geometry.Snap(models.Point{X: at.X - d.anchor.X, Y: at.Y - d.anchor.Y}, m.snapSize)
	if delta == d.delta {
		return Outcome{}
	}
	d.delta = delta

	var out Outcome
	for id, shape := range d.originals {
		moved := geometry.Translate(shape, delta.X, delta.Y)
		if _, err := m.store.UpdateArea(id, models.AreaPatch{Shape: &moved}); err != nil {
			out.Err = err
			continue
		}
		out.Changed = true
	}
	return out
}

func (m *Machine) finishMarquee() {
	box := models.RectFromCorners(m.marquee.start, m.marquee.current)
	m.marquee = nil

	var ids []int64
	for _, a := range m.store.Areas() {
		if geometry.ShapeBounds(a.Shape).Intersects(box) {
			ids = append(ids, a.ID)
		}
	}
	m.store.SetSelection(ids...)
}

func (m *Machine) handleCreate(t CreateTool, ev PointerEvent) Outcome {
	p := geometry.Snap(ev.Point, m.snapSize)
	if t.Kind == models.ShapePolygon {
		return m.handlePolygon(ev.Kind, p)
	}

	switch ev.Kind {
	case PointerDown:
		m.draft = &shapeDraft{kind: models.ShapeRect, anchor: p, end: p}
	case PointerMove:
		if m.draft != nil {
			m.draft.end = p
		}
	case PointerUp:
		if m.draft == nil {
			return Outcome{}
		}
		m.draft.end = p
		r := models.RectFromCorners(m.draft.anchor, m.draft.end)
		m.draft = nil
		return m.commit(models.RectShape(r.X, r.Y, r.Width, r.Height))
	}
	return Outcome{}
}

func (m *Machine) handlePolygon(kind PointerKind, p models.Point) Outcome {
	switch kind {
	case PointerDown:
		if m.draft == nil {
			m.draft = &shapeDraft{kind: models.ShapePolygon, points: []models.Point{p}, hover: p}
			return Outcome{}
		}
		pts := m.draft.points
		if len(pts) >= 3 && distance(p, pts[0]) <= m.closeTolerance {
			return m.closePolygon()
		}
		if p == pts[len(pts)-1] {
			return Outcome{}
		}
		m.draft.points = append(pts, p)
		m.draft.hover = p
	case PointerMove:
		if m.draft != nil {
			m.draft.hover = p
		}
	case PointerDoubleClick:
		if m.draft != nil && len(m.draft.points) >= 3 {
			return m.closePolygon()
		}
	}
	return Outcome{}
}

func (m *Machine) closePolygon() Outcome {
	pts := m.draft.points
	m.draft = nil
	return m.commit(models.PolygonShape(pts...))
}

// commit adds the finished shape, selects it and returns to the select
// tool. Rejected shapes leave the machine in create with nothing committed.
func (m *Machine) commit(shape models.Shape) Outcome {
	area, err := m.store.AddArea(shape, m.defaults)
	if err != nil {
		return Outcome{Err: err}
	}
	m.store.SetSelection(area.ID)
	m.tool = SelectTool{}
	return Outcome{Changed: true, Created: &area}
}

func (m *Machine) handlePan(ev PointerEvent) Outcome {
	switch ev.Kind {
	case PointerDown:
		m.pan = &panGesture{last: ev.Screen}
	case PointerMove, PointerUp:
		if m.pan == nil {
			return Outcome{}
		}
		m.viewport.OffsetX += ev.Screen.X - m.pan.last.X
		m.viewport.OffsetY += ev.Screen.Y - m.pan.last.Y
		m.pan.last = ev.Screen
		if ev.Kind == PointerUp {
			m.pan = nil
		}
	}
	return Outcome{}
}

func distance(a, b models.Point) float64 {
	return math.Hypot(a.X-b.X, a.Y-b.Y)
}
