// Package editor holds the in-memory editing state for a room's hotspot
// areas: the area store with its selection, the pointer tool state machine,
// and the editing session that ties them to persistence and dirty tracking.
package editor

import (
	"fmt"

	"github.com/storefront-admin/backend/internal/geometry"
	"github.com/storefront-admin/backend/internal/models"
)

// AreaStore is the authoritative in-memory collection of areas being edited,
// kept in creation order, plus the current selection. It is not safe for
// concurrent use; Session serializes access.
type AreaStore struct {
	areas      []models.Area
	selection  map[int64]struct{}
	nextTempID int64
	revision   uint64
	onChange   func()
}

// NewAreaStore creates an empty store.
func NewAreaStore() *AreaStore {
	return &AreaStore{
		areas:      make([]models.Area, 0),
		selection:  make(map[int64]struct{}),
		nextTempID: -1,
	}
}

// OnChange registers a callback invoked after every area mutation.
func (s *AreaStore) OnChange(fn func()) {
	s.onChange = fn
}

func (s *AreaStore) changed() {
	s.revision++
	if s.onChange != nil {
		s.onChange()
	}
}

// Revision increments on every area mutation.
func (s *AreaStore) Revision() uint64 {
	return s.revision
}

// AddArea validates the shape and appends a new area with a temporary id.
func (s *AreaStore) AddArea(shape models.Shape, meta models.AreaMeta) (models.Area, error) {
	if err := geometry.ValidateShape(shape); err != nil {
		return models.Area{}, err
	}
	area := models.Area{
		ID:          s.nextTempID,
		Shape:       shape.Clone(),
		Label:       meta.Label,
		Destination: meta.Destination,
		ZOrder:      meta.ZOrder,
		IsActive:    meta.IsActive,
	}
	s.nextTempID--
	s.areas = append(s.areas, area)
	s.changed()
	return area.Clone(), nil
}

// UpdateArea applies patch to the area with the given id. The patched area
// must still satisfy the geometry invariants.
func (s *AreaStore) UpdateArea(id int64, patch models.AreaPatch) (models.Area, error) {
	idx := s.indexOf(id)
	if idx < 0 {
		return models.Area{}, fmt.Errorf("area %d: %w", id, models.ErrNotFound)
	}
	updated := patch.Apply(s.areas[idx])
	if err := geometry.ValidateShape(updated.Shape); err != nil {
		return models.Area{}, err
	}
	s.areas[idx] = updated
	s.changed()
	return updated.Clone(), nil
}

// RemoveArea deletes the area and drops it from the selection. Removing an
// absent id is a no-op.
func (s *AreaStore) RemoveArea(id int64) {
	idx := s.indexOf(id)
	if idx < 0 {
		return
	}
	s.areas = append(s.areas[:idx], s.areas[idx+1:]...)
	delete(s.selection, id)
	s.changed()
}

// Area returns a copy of the area with the given id.
func (s *AreaStore) Area(id int64) (models.Area, bool) {
	idx := s.indexOf(id)
	if idx < 0 {
		return models.Area{}, false
	}
	return s.areas[idx].Clone(), true
}

// Areas returns a copy of all areas in creation order.
func (s *AreaStore) Areas() []models.Area {
	return models.CloneAreas(s.areas)
}

// Len returns the number of areas.
func (s *AreaStore) Len() int {
	return len(s.areas)
}

// Replace swaps the store contents for a loaded map. The selection is
// cleared and no change is reported; loading establishes a new baseline.
func (s *AreaStore) Replace(areas []models.Area) {
	s.areas = models.CloneAreas(areas)
	s.selection = make(map[int64]struct{})
	s.nextTempID = -1
	for _, a := range s.areas {
		if a.ID <= s.nextTempID {
			s.nextTempID = a.ID - 1
		}
	}
	s.revision++
}

// RenameIDs replaces ids according to mapping (old -> new), carrying the
// selection along. Used after a save swaps temporary ids for persisted ones.
func (s *AreaStore) RenameIDs(mapping map[int64]int64) {
	if len(mapping) == 0 {
		return
	}
	for i := range s.areas {
		if newID, ok := mapping[s.areas[i].ID]; ok {
			s.areas[i].ID = newID
		}
	}
	selection := make(map[int64]struct{}, len(s.selection))
	for id := range s.selection {
		if newID, ok := mapping[id]; ok {
			id = newID
		}
		selection[id] = struct{}{}
	}
	s.selection = selection
}

func (s *AreaStore) indexOf(id int64) int {
	for i := range s.areas {
		if s.areas[i].ID == id {
			return i
		}
	}
	return -1
}

// SetSelection replaces the selection. Ids not present in the store are
// dropped silently.
func (s *AreaStore) SetSelection(ids ...int64) {
	s.selection = make(map[int64]struct{}, len(ids))
	for _, id := range ids {
		if s.indexOf(id) >= 0 {
			s.selection[id] = struct{}{}
		}
	}
}

// ToggleSelection flips membership of id, ignoring absent ids.
func (s *AreaStore) ToggleSelection(id int64) {
	if _, ok := s.selection[id]; ok {
		delete(s.selection, id)
		return
	}
	if s.indexOf(id) >= 0 {
		s.selection[id] = struct{}{}
	}
}

// ClearSelection empties the selection.
func (s *AreaStore) ClearSelection() {
	s.selection = make(map[int64]struct{})
}

// IsSelected reports whether id is selected.
func (s *AreaStore) IsSelected(id int64) bool {
	_, ok := s.selection[id]
	return ok
}

// Selection returns the selected ids in store order.
func (s *AreaStore) Selection() []int64 {
	ids := make([]int64, 0, len(s.selection))
	for _, a := range s.areas {
		if _, ok := s.selection[a.ID]; ok {
			ids = append(ids, a.ID)
		}
	}
	return ids
}

// SelectedAreas returns copies of the selected areas in store order.
func (s *AreaStore) SelectedAreas() []models.Area {
	out := make([]models.Area, 0, len(s.selection))
	for _, a := range s.areas {
		if _, ok := s.selection[a.ID]; ok {
			out = append(out, a.Clone())
		}
	}
	return out
}
