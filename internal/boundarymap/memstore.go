package boundarymap

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/storefront-admin/backend/internal/models"
)

// MemoryStore is an in-process Store. It backs tests and the server when no
// database path is configured.
type MemoryStore struct {
	mu   sync.RWMutex
	maps map[string]*memEntry
	seq  int
}

type memEntry struct {
	m   *models.BoundaryMap
	seq int
}

// NewMemoryStore creates an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{maps: make(map[string]*memEntry)}
}

func (s *MemoryStore) Get(ctx context.Context, mapID string) (*models.BoundaryMap, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.maps[mapID]
	if !ok {
		return nil, fmt.Errorf("map %s: %w", mapID, models.ErrNotFound)
	}
	return e.m.Clone(), nil
}

func (s *MemoryStore) GetActive(ctx context.Context, roomID string) (*models.BoundaryMap, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, e := range s.maps {
		if e.m.RoomID == roomID && e.m.Active {
			return e.m.Clone(), nil
		}
	}
	return nil, fmt.Errorf("active map for room %s: %w", roomID, models.ErrNotFound)
}

func (s *MemoryStore) List(ctx context.Context, roomID string) ([]models.MapSummary, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	var entries []*memEntry
	for _, e := range s.maps {
		if e.m.RoomID == roomID {
			entries = append(entries, e)
		}
	}
	sort.Slice(entries, func(i, j int) bool {
		a, b := entries[i], entries[j]
		if !a.m.CreatedAt.Equal(b.m.CreatedAt) {
			return a.m.CreatedAt.Before(b.m.CreatedAt)
		}
		return a.seq < b.seq
	})
	out := make([]models.MapSummary, 0, len(entries))
	for _, e := range entries {
		out = append(out, e.m.Summary())
	}
	return out, nil
}

func (s *MemoryStore) Insert(ctx context.Context, m *models.BoundaryMap) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.maps[m.ID]; ok {
		return fmt.Errorf("map %s already exists", m.ID)
	}
	s.seq++
	s.maps[m.ID] = &memEntry{m: m.Clone(), seq: s.seq}
	return nil
}

func (s *MemoryStore) Update(ctx context.Context, m *models.BoundaryMap) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.maps[m.ID]
	if !ok {
		return fmt.Errorf("map %s: %w", m.ID, models.ErrNotFound)
	}
	stored := m.Clone()
	// Activation only changes through SetActive/ClearActive.
	stored.Active = e.m.Active
	e.m = stored
	return nil
}

func (s *MemoryStore) SetActive(ctx context.Context, roomID, mapID string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	target, ok := s.maps[mapID]
	if !ok || target.m.RoomID != roomID {
		return fmt.Errorf("map %s in room %s: %w", mapID, roomID, models.ErrNotFound)
	}
	for _, e := range s.maps {
		if e.m.RoomID == roomID {
			e.m.Active = e.m.ID == mapID
		}
	}
	return nil
}

func (s *MemoryStore) ClearActive(ctx context.Context, roomID string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, e := range s.maps {
		if e.m.RoomID == roomID {
			e.m.Active = false
		}
	}
	return nil
}

func (s *MemoryStore) Rename(ctx context.Context, mapID, name string, at time.Time) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.maps[mapID]
	if !ok {
		return fmt.Errorf("map %s: %w", mapID, models.ErrNotFound)
	}
	e.m.Name = name
	e.m.UpdatedAt = at
	return nil
}

func (s *MemoryStore) Delete(ctx context.Context, mapID string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.maps[mapID]
	if !ok {
		return fmt.Errorf("map %s: %w", mapID, models.ErrNotFound)
	}
	if e.m.Active {
		return fmt.Errorf("map %s: %w", mapID, models.ErrActiveMapDeletion)
	}
	delete(s.maps, mapID)
	return nil
}

func (s *MemoryStore) Close() error { return nil }
