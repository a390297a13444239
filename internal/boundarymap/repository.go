package boundarymap

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/storefront-admin/backend/internal/geometry"
	"github.com/storefront-admin/backend/internal/models"
)

// DefaultMapName is used when a map is saved without a name.
const DefaultMapName = "Untitled map"

// Option configures a Repository.
type Option func(*Repository)

// WithOptimisticConcurrency makes SaveMap reject drafts whose Version does
// not match the stored map.
func WithOptimisticConcurrency(enabled bool) Option {
	return func(r *Repository) { r.optimistic = enabled }
}

// WithDefaultSnapSize sets the snap size given to new drafts.
func WithDefaultSnapSize(size float64) Option {
	return func(r *Repository) {
		if size >= 0 {
			r.defaultSnap = size
		}
	}
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(r *Repository) { r.now = now }
}

// WithIDGenerator overrides map id generation.
func WithIDGenerator(gen func() string) Option {
	return func(r *Repository) { r.newID = gen }
}

// Repository is the boundary map repository. Mutations for one room are
// serialized; different rooms proceed independently.
type Repository struct {
	store       Store
	locks       *roomLocks
	now         func() time.Time
	newID       func() string
	optimistic  bool
	defaultSnap float64
	log         *slog.Logger
}

// NewRepository creates a repository over store.
func NewRepository(store Store, opts ...Option) *Repository {
	r := &Repository{
		store: store,
		locks: newRoomLocks(),
		now:   time.Now,
		newID: func() string { return uuid.New().String() },
		log:   slog.With("component", "boundarymap"),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Store returns the underlying persistence collaborator.
func (r *Repository) Store() Store { return r.store }

func (r *Repository) timestamp() time.Time {
	return r.now().UTC().Truncate(time.Microsecond)
}

// persistence wraps store failures that are not domain errors.
func persistence(op string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, models.ErrNotFound) ||
		errors.Is(err, models.ErrActiveMapDeletion) ||
		errors.Is(err, models.ErrConflictingActivation) ||
		errors.Is(err, models.ErrStaleMap) ||
		errors.Is(err, context.Canceled) ||
		errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	return fmt.Errorf("%w: %s: %w", models.ErrPersistence, op, err)
}

// LoadMap returns mapID from roomID, or the room's active map when mapID is
// empty. A room without an active map yields an empty draft.
func (r *Repository) LoadMap(ctx context.Context, roomID, mapID string) (*models.BoundaryMap, error) {
	if mapID == "" {
		m, err := r.store.GetActive(ctx, roomID)
		if errors.Is(err, models.ErrNotFound) {
			draft := models.NewDraftMap(roomID)
			draft.SnapSize = r.defaultSnap
			return draft, nil
		}
		if err != nil {
			return nil, persistence("loading active map", err)
		}
		return m, nil
	}

	m, err := r.store.Get(ctx, mapID)
	if err != nil {
		return nil, persistence("loading map", err)
	}
	if m.RoomID != roomID {
		return nil, fmt.Errorf("map %s in room %s: %w", mapID, roomID, models.ErrNotFound)
	}
	return m, nil
}

// GetMap returns a map by id regardless of room.
func (r *Repository) GetMap(ctx context.Context, mapID string) (*models.BoundaryMap, error) {
	m, err := r.store.Get(ctx, mapID)
	if err != nil {
		return nil, persistence("loading map", err)
	}
	return m, nil
}

// ListMaps returns summaries of the room's maps ordered by creation time.
func (r *Repository) ListMaps(ctx context.Context, roomID string) ([]models.MapSummary, error) {
	list, err := r.store.List(ctx, roomID)
	if err != nil {
		return nil, persistence("listing maps", err)
	}
	return list, nil
}

// Validate checks a draft before it is persisted.
func Validate(m *models.BoundaryMap) error {
	if strings.TrimSpace(m.RoomID) == "" {
		return fmt.Errorf("%w: room id is required", models.ErrInvalidMap)
	}
	if m.SnapSize < 0 {
		return fmt.Errorf("%w: snap size must not be negative", models.ErrInvalidMap)
	}
	seen := make(map[int64]struct{}, len(m.Areas))
	for i, a := range m.Areas {
		if err := geometry.ValidateShape(a.Shape); err != nil {
			return fmt.Errorf("area %d (index %d): %w", a.ID, i, err)
		}
		if a.ID <= 0 {
			continue
		}
		if _, dup := seen[a.ID]; dup {
			return fmt.Errorf("%w: duplicate area id %d", models.ErrInvalidMap, a.ID)
		}
		seen[a.ID] = struct{}{}
	}
	return nil
}

// assignAreaIDs gives every temporary area a persisted id above both the
// draft's and the previously stored ids. Order is preserved.
func assignAreaIDs(areas []models.Area, previous []models.Area) []models.Area {
	var maxID int64
	for _, set := range [][]models.Area{areas, previous} {
		for _, a := range set {
			if a.ID > maxID {
				maxID = a.ID
			}
		}
	}
	out := models.CloneAreas(areas)
	for i := range out {
		if out[i].ID <= 0 {
			maxID++
			out[i].ID = maxID
		}
	}
	return out
}

// SaveMap persists draft. A draft without an id always creates a new map;
// one with an id overwrites that map's areas, snap size and render context.
// The first map saved for a room becomes its active map.
func (r *Repository) SaveMap(ctx context.Context, draft *models.BoundaryMap) (*models.BoundaryMap, error) {
	if draft == nil {
		return nil, fmt.Errorf("%w: nil map", models.ErrInvalidMap)
	}
	if err := Validate(draft); err != nil {
		return nil, err
	}

	release, err := r.locks.acquire(ctx, draft.RoomID)
	if err != nil {
		return nil, err
	}
	defer release()

	if draft.IsDraft() {
		return r.create(ctx, draft)
	}
	return r.update(ctx, draft)
}

func (r *Repository) create(ctx context.Context, draft *models.BoundaryMap) (*models.BoundaryMap, error) {
	now := r.timestamp()
	m := draft.Clone()
	m.ID = r.newID()
	if strings.TrimSpace(m.Name) == "" {
		m.Name = DefaultMapName
	}
	m.Areas = assignAreaIDs(draft.Areas, nil)
	m.Version = 1
	m.CreatedAt = now
	m.UpdatedAt = now

	// The first map of a room is inserted active.
	_, err := r.store.GetActive(ctx, m.RoomID)
	switch {
	case errors.Is(err, models.ErrNotFound):
		m.Active = true
	case err != nil:
		return nil, persistence("checking active map", err)
	default:
		m.Active = false
	}

	if err := r.store.Insert(ctx, m); err != nil {
		return nil, persistence("creating map", err)
	}

	r.log.Info("map created", "room", m.RoomID, "map", m.ID, "name", m.Name, "areas", len(m.Areas), "active", m.Active)
	return m, nil
}

func (r *Repository) update(ctx context.Context, draft *models.BoundaryMap) (*models.BoundaryMap, error) {
	existing, err := r.store.Get(ctx, draft.ID)
	if err != nil {
		return nil, persistence("loading map", err)
	}
	if existing.RoomID != draft.RoomID {
		return nil, fmt.Errorf("map %s in room %s: %w", draft.ID, draft.RoomID, models.ErrNotFound)
	}
	if r.optimistic && draft.Version != existing.Version {
		return nil, fmt.Errorf("map %s at version %d, saving version %d: %w",
			draft.ID, existing.Version, draft.Version, models.ErrStaleMap)
	}

	m := existing.Clone()
	m.Areas = assignAreaIDs(draft.Areas, existing.Areas)
	m.SnapSize = draft.SnapSize
	m.RenderContext = draft.RenderContext
	m.Version = existing.Version + 1
	m.UpdatedAt = r.timestamp()

	if err := r.store.Update(ctx, m); err != nil {
		return nil, persistence("updating map", err)
	}
	r.log.Debug("map updated", "room", m.RoomID, "map", m.ID, "version", m.Version, "areas", len(m.Areas))
	return m, nil
}

// ActivateMap makes mapID the room's only active map.
func (r *Repository) ActivateMap(ctx context.Context, roomID, mapID string) error {
	release, err := r.locks.acquire(ctx, roomID)
	if err != nil {
		return err
	}
	defer release()

	if err := r.store.SetActive(ctx, roomID, mapID); err != nil {
		if errors.Is(err, models.ErrNotFound) {
			return fmt.Errorf("%w: map %s is not a map of room %s", models.ErrConflictingActivation, mapID, roomID)
		}
		return persistence("activating map", err)
	}
	r.log.Info("map activated", "room", roomID, "map", mapID)
	return nil
}

// ClearActivation leaves the room without an active map, so that its last
// map can be deleted.
func (r *Repository) ClearActivation(ctx context.Context, roomID string) error {
	release, err := r.locks.acquire(ctx, roomID)
	if err != nil {
		return err
	}
	defer release()

	if err := r.store.ClearActive(ctx, roomID); err != nil {
		return persistence("clearing activation", err)
	}
	r.log.Info("activation cleared", "room", roomID)
	return nil
}

// RenameMap changes a map's name. Version is unchanged.
func (r *Repository) RenameMap(ctx context.Context, mapID, name string) (*models.BoundaryMap, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, fmt.Errorf("%w: name is required", models.ErrInvalidMap)
	}
	m, err := r.store.Get(ctx, mapID)
	if err != nil {
		return nil, persistence("loading map", err)
	}

	release, err := r.locks.acquire(ctx, m.RoomID)
	if err != nil {
		return nil, err
	}
	defer release()

	at := r.timestamp()
	if err := r.store.Rename(ctx, mapID, name, at); err != nil {
		return nil, persistence("renaming map", err)
	}
	m.Name = name
	m.UpdatedAt = at
	return m, nil
}

// DeleteMap removes a map. Deleting a room's active map is rejected and
// changes nothing.
func (r *Repository) DeleteMap(ctx context.Context, mapID string) error {
	m, err := r.store.Get(ctx, mapID)
	if err != nil {
		return persistence("loading map", err)
	}

	release, err := r.locks.acquire(ctx, m.RoomID)
	if err != nil {
		return err
	}
	defer release()

	if err := r.store.Delete(ctx, mapID); err != nil {
		return persistence("deleting map", err)
	}
	r.log.Info("map deleted", "room", m.RoomID, "map", mapID)
	return nil
}

// roomLocks hands out one context-aware mutex per room. Entries are dropped
// once no caller holds or waits on them.
type roomLocks struct {
	mu    sync.Mutex
	rooms map[string]*roomLock
}

type roomLock struct {
	ch   chan struct{}
	refs int
}

func newRoomLocks() *roomLocks {
	return &roomLocks{rooms: make(map[string]*roomLock)}
}

func (l *roomLocks) acquire(ctx context.Context, roomID string) (func(), error) {
	l.mu.Lock()
	rl, ok := l.rooms[roomID]
	if !ok {
		rl = &roomLock{ch: make(chan struct{}, 1)}
		l.rooms[roomID] = rl
	}
	rl.refs++
	l.mu.Unlock()

	select {
	case rl.ch <- struct{}{}:
		return func() {
			<-rl.ch
			l.done(roomID, rl)
		}, nil
	case <-ctx.Done():
		l.done(roomID, rl)
		return nil, ctx.Err()
	}
}

func (l *roomLocks) done(roomID string, rl *roomLock) {
	l.mu.Lock()
	defer l.mu.Unlock()
	rl.refs--
	if rl.refs == 0 {
		delete(l.rooms, roomID)
	}
}

