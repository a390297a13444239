package editor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/storefront-admin/backend/internal/dirty"
	"github.com/storefront-admin/backend/internal/imagery"
	"github.com/storefront-admin/backend/internal/models"
	"github.com/storefront-admin/backend/internal/notify"
)

// MapRepository is the slice of the boundary map repository a session needs.
type MapRepository interface {
	LoadMap(ctx context.Context, roomID, mapID string) (*models.BoundaryMap, error)
	SaveMap(ctx context.Context, draft *models.BoundaryMap) (*models.BoundaryMap, error)
	ActivateMap(ctx context.Context, roomID, mapID string) error
	RenameMap(ctx context.Context, mapID, name string) (*models.BoundaryMap, error)
}

// BoundaryState is the part of a session compared against the baseline.
// The map name is not included; renames are persisted immediately.
type BoundaryState struct {
	SnapSize      float64       `msgpack:"snap_size"`
	RenderContext string        `msgpack:"render_context"`
	Areas         []models.Area `msgpack:"areas"`
}

// StateOf projects a map onto its comparable state.
func StateOf(m *models.BoundaryMap) BoundaryState {
	return BoundaryState{
		SnapSize:      m.SnapSize,
		RenderContext: m.RenderContext,
		Areas:         models.CloneAreas(m.Areas),
	}
}

// SaveResult is delivered once per SaveAsync call.
type SaveResult struct {
	Map *models.BoundaryMap
	Err error
}

// ErrNoMap is returned by operations that need a saved map when the session
// is still editing a draft.
var ErrNoMap = errors.New("boundary map has not been saved yet")

// SessionOption configures a Session.
type SessionOption func(*Session)

// WithNotifier routes outcome notices to sink.
func WithNotifier(sink notify.Sink) SessionOption {
	return func(s *Session) { s.notifier = sink }
}

// WithImageContext sets the background the session renders against.
func WithImageContext(ic *imagery.Context) SessionOption {
	return func(s *Session) { s.image = ic }
}

// WithTab sets the tab id the session registers under in the guard.
func WithTab(tab dirty.TabID) SessionOption {
	return func(s *Session) { s.tab = tab }
}

// WithCloseTolerance sets the polygon closing distance.
func WithCloseTolerance(tol float64) SessionOption {
	return func(s *Session) { s.machine.SetCloseTolerance(tol) }
}

// Session is the editing session for one room's boundary editor tab. Input
// handling never waits on persistence: saves run in the background, one at
// a time and in the order they were issued.
type Session struct {
	mu       sync.Mutex
	roomID   string
	repo     MapRepository
	guard    *dirty.Guard
	tab      dirty.TabID
	notifier notify.Sink
	image    *imagery.Context
	log      *slog.Logger

	store   *AreaStore
	machine *Machine

	// current carries the map metadata (areas live in store); saved is the
	// last loaded-or-saved map the baseline was taken from.
	current    models.BoundaryMap
	saved      *models.BoundaryMap
	generation uint64
	aliases    map[int64]int64

	qmu  sync.Mutex
	tail chan struct{}
}

// NewSession creates a session for roomID editing an empty draft and
// registers it with guard.
func NewSession(roomID string, repo MapRepository, guard *dirty.Guard, opts ...SessionOption) *Session {
	store := NewAreaStore()
	s := &Session{
		roomID:   roomID,
		repo:     repo,
		guard:    guard,
		tab:      dirty.TabBoundaries,
		notifier: notify.Discard,
		store:    store,
		machine:  NewMachine(store),
		aliases:  make(map[int64]int64),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.image == nil {
		s.image = imagery.NewContext(models.Image{}, models.Size{}, 0)
	}
	s.log = slog.With("component", "editor-session", "room", roomID)

	draft := models.NewDraftMap(roomID)
	s.current = *draft
	s.saved = draft
	store.OnChange(s.observeLocked)

	guard.Register(s.tab, dirty.Handlers{
		Save: func(ctx context.Context) error {
			_, err := s.Save(ctx)
			return err
		},
		Discard: s.Discard,
	})
	s.setBaselineLocked(draft)
	return s
}

// RoomID returns the room being edited.
func (s *Session) RoomID() string { return s.roomID }

// Tab returns the guard tab id.
func (s *Session) Tab() dirty.TabID { return s.tab }

// Image returns the session's image context.
func (s *Session) Image() *imagery.Context { return s.image }

func (s *Session) stateLocked() BoundaryState {
	return BoundaryState{
		SnapSize:      s.machine.SnapSize(),
		RenderContext: s.current.RenderContext,
		Areas:         s.store.Areas(),
	}
}

func (s *Session) observeLocked() {
	if err := s.guard.Observe(s.tab, s.stateLocked()); err != nil {
		s.log.Warn("observing state failed", "error", err)
	}
}

func (s *Session) setBaselineLocked(m *models.BoundaryMap) {
	if err := s.guard.SetBaseline(s.tab, StateOf(m)); err != nil {
		s.log.Warn("setting baseline failed", "error", err)
	}
}

// enqueue runs fn after every previously enqueued operation has finished.
func (s *Session) enqueue(fn func()) {
	s.qmu.Lock()
	prev := s.tail
	done := make(chan struct{})
	s.tail = done
	s.qmu.Unlock()

	go func() {
		defer close(done)
		if prev != nil {
			<-prev
		}
		fn()
	}()
}

// Idle blocks until every queued operation has finished.
func (s *Session) Idle(ctx context.Context) error {
	done := make(chan struct{})
	s.enqueue(func() { close(done) })
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Load replaces the session contents with a persisted map (the active one
// when mapID is empty, or an empty draft if the room has none). The tool
// state, selection and baseline are reset.
func (s *Session) Load(ctx context.Context, mapID string) error {
	errc := make(chan error, 1)
	s.enqueue(func() {
		m, err := s.repo.LoadMap(ctx, s.roomID, mapID)
		if err != nil {
			s.notifier.Error("Could not load boundary map", err)
			errc <- err
			return
		}
		s.mu.Lock()
		s.applyLoadedLocked(m)
		s.mu.Unlock()
		errc <- nil
	})
	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *Session) applyLoadedLocked(m *models.BoundaryMap) {
	s.generation++
	s.aliases = make(map[int64]int64)
	s.saved = m.Clone()
	s.current = *m.Clone()
	s.current.Areas = nil
	s.store.Replace(m.Areas)
	s.machine.Reset()
	s.machine.SetSnapSize(m.SnapSize)
	s.setBaselineLocked(m)
}

// Discard restores the last loaded-or-saved state without contacting the
// repository.
func (s *Session) Discard(context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	m := s.saved.Clone()
	s.current.SnapSize = m.SnapSize
	s.current.RenderContext = m.RenderContext
	s.store.Replace(m.Areas)
	s.machine.Reset()
	s.machine.SetSnapSize(m.SnapSize)
	s.setBaselineLocked(m)
	return nil
}

// Map returns the map as currently edited.
func (s *Session) Map() *models.BoundaryMap {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.mapLocked()
}

func (s *Session) mapLocked() *models.BoundaryMap {
	m := s.current
	m.SnapSize = s.machine.SnapSize()
	m.Areas = s.store.Areas()
	return &m
}

// IsDirty reports whether the session differs from its baseline.
func (s *Session) IsDirty() bool {
	return s.guard.IsDirty(s.tab)
}

// Save persists the current state and waits for the result.
func (s *Session) Save(ctx context.Context) (*models.BoundaryMap, error) {
	select {
	case res := <-s.SaveAsync(ctx):
		return res.Map, res.Err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// SaveAsync snapshots the current state and queues it for persistence. The
// returned channel yields exactly one result.
func (s *Session) SaveAsync(ctx context.Context) <-chan SaveResult {
	s.mu.Lock()
	payload := s.mapLocked()
	gen := s.generation
	s.mu.Unlock()
	return s.queueSave(ctx, payload, gen, false)
}

// SaveAsNew persists the current areas as a new map named name. On success
// the session continues editing the new map; on failure it stays attached
// to the map it was editing.
func (s *Session) SaveAsNew(ctx context.Context, name string) (*models.BoundaryMap, error) {
	s.mu.Lock()
	s.generation++
	s.aliases = make(map[int64]int64)
	payload := s.mapLocked()
	payload.ID = ""
	payload.Name = name
	payload.Active = false
	payload.Version = 0
	gen := s.generation
	s.mu.Unlock()

	select {
	case res := <-s.queueSave(ctx, payload, gen, true):
		return res.Map, res.Err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// queueSave runs payload through the save queue. A fresh payload always
// creates a map.
func (s *Session) queueSave(ctx context.Context, payload *models.BoundaryMap, gen uint64, fresh bool) <-chan SaveResult {
	out := make(chan SaveResult, 1)
	s.enqueue(func() {
		s.mu.Lock()
		if gen == s.generation && !fresh {
			// An earlier save in this lineage may have created the map or
			// persisted some of the temporary areas in the payload.
			if payload.ID == "" {
				payload.ID = s.current.ID
			}
			payload.Version = s.current.Version
			for i := range payload.Areas {
				if id, ok := s.aliases[payload.Areas[i].ID]; ok {
					payload.Areas[i].ID = id
				}
			}
		}
		s.mu.Unlock()

		saved, err := s.repo.SaveMap(ctx, payload)
		if err != nil {
			s.log.Warn("save failed", "map", payload.ID, "error", err)
			s.notifier.Error("Could not save boundary map", err)
			out <- SaveResult{Err: err}
			return
		}

		s.mu.Lock()
		if gen == s.generation {
			s.applySavedLocked(payload, saved)
		}
		s.mu.Unlock()

		s.log.Debug("saved", "map", saved.ID, "version", saved.Version, "areas", len(saved.Areas))
		s.notifier.Success(fmt.Sprintf("Saved boundary map %q", saved.Name))
		out <- SaveResult{Map: saved.Clone()}
	})
	return out
}

// applySavedLocked swaps temporary ids for persisted ones, moves the
// baseline to the saved state and re-evaluates edits made while the save
// was in flight.
func (s *Session) applySavedLocked(sent, saved *models.BoundaryMap) {
	mapping := make(map[int64]int64)
	for i := range sent.Areas {
		if i >= len(saved.Areas) {
			break
		}
		from, to := sent.Areas[i].ID, saved.Areas[i].ID
		if from != to {
			mapping[from] = to
			s.aliases[from] = to
		}
	}
	for tmp, id := range s.aliases {
		if to, ok := mapping[id]; ok {
			s.aliases[tmp] = to
		}
	}
	s.store.RenameIDs(mapping)

	s.current.ID = saved.ID
	s.current.RoomID = saved.RoomID
	s.current.Name = saved.Name
	s.current.Active = saved.Active
	s.current.Version = saved.Version
	s.current.CreatedAt = saved.CreatedAt
	s.current.UpdatedAt = saved.UpdatedAt
	s.saved = saved.Clone()

	s.setBaselineLocked(saved)
	s.observeLocked()
}

// Activate makes the session's map the room's active map. It is queued
// behind pending saves so a freshly created map is activated by id.
func (s *Session) Activate(ctx context.Context) error {
	errc := make(chan error, 1)
	s.enqueue(func() {
		s.mu.Lock()
		mapID := s.current.ID
		s.mu.Unlock()
		if mapID == "" {
			errc <- ErrNoMap
			return
		}
		if err := s.repo.ActivateMap(ctx, s.roomID, mapID); err != nil {
			if errors.Is(err, models.ErrConflictingActivation) {
				s.notifier.Error("This map is no longer available for this room; reload the map list", err)
			} else {
				s.notifier.Error("Could not activate boundary map", err)
			}
			errc <- err
			return
		}
		s.mu.Lock()
		if s.current.ID == mapID {
			s.current.Active = true
			if s.saved != nil && s.saved.ID == mapID {
				s.saved.Active = true
			}
		}
		s.mu.Unlock()
		s.notifier.Success("Boundary map is now live")
		errc <- nil
	})
	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Rename renames the session's map. The rename is persisted immediately and
// does not affect the dirty state.
func (s *Session) Rename(ctx context.Context, name string) error {
	errc := make(chan error, 1)
	s.enqueue(func() {
		s.mu.Lock()
		mapID := s.current.ID
		if mapID == "" {
			s.current.Name = name
			s.mu.Unlock()
			errc <- nil
			return
		}
		s.mu.Unlock()

		m, err := s.repo.RenameMap(ctx, mapID, name)
		if err != nil {
			s.notifier.Error("Could not rename boundary map", err)
			errc <- err
			return
		}
		s.mu.Lock()
		if s.current.ID == m.ID {
			s.current.Name = m.Name
			if s.saved != nil {
				s.saved.Name = m.Name
			}
		}
		s.mu.Unlock()
		errc <- nil
	})
	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// SetRenderContext changes the free-form rendering hint.
func (s *Session) SetRenderContext(rc string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.current.RenderContext = rc
	s.observeLocked()
}

// SetSnapSize changes the grid quantum.
func (s *Session) SetSnapSize(size float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.machine.SetSnapSize(size)
	s.observeLocked()
}

// SnapSize returns the grid quantum.
func (s *Session) SnapSize() float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.machine.SnapSize()
}

// SetDefaults sets the metadata given to newly drawn areas.
func (s *Session) SetDefaults(meta models.AreaMeta) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.machine.SetDefaults(meta)
}

// SetTool switches the active tool.
func (s *Session) SetTool(t Tool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.machine.SetTool(t)
}

// Tool returns the active tool.
func (s *Session) Tool() Tool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.machine.Tool()
}

// Viewport returns the pan offset.
func (s *Session) Viewport() Viewport {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.machine.Viewport()
}

// Preview returns the in-progress gesture, if any.
func (s *Session) Preview() *Preview {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.machine.Preview()
}

// HandlePointer feeds a pointer event in normalized image space.
func (s *Session) HandlePointer(ev PointerEvent) Outcome {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := s.machine.HandlePointer(ev)
	if out.Err != nil {
		s.log.Debug("pointer input rejected", "tool", s.machine.Tool().Name(), "error", out.Err)
	}
	return out
}

// HandleScreenPointer converts a container-pixel event to normalized image
// space, accounting for letterboxing and pan, then handles it.
func (s *Session) HandleScreenPointer(kind PointerKind, screen models.Point, mods Modifiers) Outcome {
	return s.HandlePointer(PointerEvent{
		Kind:      kind,
		Point:     s.ScreenToImage(screen),
		Screen:    screen,
		Modifiers: mods,
	})
}

// HandleKey feeds a keyboard event.
func (s *Session) HandleKey(ev KeyEvent) Outcome {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.machine.HandleKey(ev)
}

// ScreenToImage maps a container pixel to normalized image space.
func (s *Session) ScreenToImage(p models.Point) models.Point {
	vp := s.Viewport()
	unpanned := models.Point{X: p.X - vp.OffsetX, Y: p.Y - vp.OffsetY}
	return s.image.Frame().FromRender(unpanned)
}

// ImageToScreen maps a normalized point to a container pixel.
func (s *Session) ImageToScreen(p models.Point) models.Point {
	vp := s.Viewport()
	r := s.image.Frame().ToRender(p)
	return models.Point{X: r.X + vp.OffsetX, Y: r.Y + vp.OffsetY}
}

// AddArea adds an area directly (outside a pointer gesture).
func (s *Session) AddArea(shape models.Shape, meta models.AreaMeta) (models.Area, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.store.AddArea(shape, meta)
}

// UpdateArea patches an area.
func (s *Session) UpdateArea(id int64, patch models.AreaPatch) (models.Area, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.store.UpdateArea(id, patch)
}

// RemoveArea deletes an area; absent ids are ignored.
func (s *Session) RemoveArea(id int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.store.RemoveArea(id)
}

// Areas returns the areas in creation order.
func (s *Session) Areas() []models.Area {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.store.Areas()
}

// SetSelection replaces the selection.
func (s *Session) SetSelection(ids ...int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.store.SetSelection(ids...)
}

// ToggleSelection flips one id in the selection.
func (s *Session) ToggleSelection(id int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.store.ToggleSelection(id)
}

// ClearSelection empties the selection.
func (s *Session) ClearSelection() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.store.ClearSelection()
}

// Selection returns the selected ids in store order.
func (s *Session) Selection() []int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.store.Selection()
}
