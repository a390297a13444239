package models

import "time"

// BoundaryMap is a named, persisted snapshot of a room's areas plus the
// editor settings they were drawn with. An empty ID marks an unsaved draft.
type BoundaryMap struct {
	ID            string    `json:"id,omitempty" yaml:"id,omitempty" msgpack:"id"`
	RoomID        string    `json:"roomId" yaml:"room_id" msgpack:"room_id"`
	Name          string    `json:"name" yaml:"name" msgpack:"name"`
	Areas         []Area    `json:"areas" yaml:"areas" msgpack:"areas"`
	SnapSize      float64   `json:"snapSize" yaml:"snap_size" msgpack:"snap_size"`
	RenderContext string    `json:"renderContext" yaml:"render_context" msgpack:"render_context"`
	Active        bool      `json:"active" yaml:"-" msgpack:"active"`
	Version       int       `json:"version" yaml:"-" msgpack:"version"`
	CreatedAt     time.Time `json:"createdAt" yaml:"-" msgpack:"created_at"`
	UpdatedAt     time.Time `json:"updatedAt" yaml:"-" msgpack:"updated_at"`
}

// IsDraft reports whether the map has never been saved.
func (m *BoundaryMap) IsDraft() bool {
	return m.ID == ""
}

// Clone returns a deep copy.
func (m *BoundaryMap) Clone() *BoundaryMap {
	if m == nil {
		return nil
	}
	out := *m
	out.Areas = CloneAreas(m.Areas)
	return &out
}

// Summary returns the list-view projection of the map.
func (m *BoundaryMap) Summary() MapSummary {
	return MapSummary{
		ID:        m.ID,
		RoomID:    m.RoomID,
		Name:      m.Name,
		Active:    m.Active,
		AreaCount: len(m.Areas),
		Version:   m.Version,
		CreatedAt: m.CreatedAt,
	}
}

// NewDraftMap creates an empty, unsaved map for a room.
func NewDraftMap(roomID string) *BoundaryMap {
	return &BoundaryMap{
		RoomID: roomID,
		Areas:  make([]Area, 0),
	}
}

// MapSummary is the cheap list-view representation of a BoundaryMap.
type MapSummary struct {
	ID        string    `json:"id"`
	RoomID    string    `json:"roomId"`
	Name      string    `json:"name"`
	Active    bool      `json:"active"`
	AreaCount int       `json:"areaCount"`
	Version   int       `json:"version"`
	CreatedAt time.Time `json:"createdAt"`
}
