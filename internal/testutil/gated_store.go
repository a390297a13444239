// gated_store.go - Boundary map store wrapper that can hold writes in flight
package testutil

import (
	"context"
	"sync"

	"github.com/storefront-admin/backend/internal/boundarymap"
	"github.com/storefront-admin/backend/internal/models"
)

// WriteRecord is one Insert or Update that reached the wrapped store.
type WriteRecord struct {
	Op    string
	MapID string
	Areas []models.Area
}

// GatedStore wraps a boundarymap.Store. While held, every Insert and Update
// announces itself on Entered and blocks until Release is called, which
// lets tests keep a save in flight deterministically.
type GatedStore struct {
	boundarymap.Store

	mu       sync.Mutex
	held     bool
	failures []error
	writes   []WriteRecord

	entered chan string
	release chan struct{}
}

// NewGatedStore wraps inner (a fresh memory store when nil).
func NewGatedStore(inner boundarymap.Store) *GatedStore {
	if inner == nil {
		inner = boundarymap.NewMemoryStore()
	}
	return &GatedStore{
		Store:   inner,
		entered: make(chan string, 16),
		release: make(chan struct{}),
	}
}

// Hold makes subsequent writes block until released.
func (g *GatedStore) Hold() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.held = true
}

// Open stops holding writes. Writes already blocked still need Release.
func (g *GatedStore) Open() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.held = false
}

// Entered yields the op name of each write that started blocking.
func (g *GatedStore) Entered() <-chan string {
	return g.entered
}

// Release unblocks one held write.
func (g *GatedStore) Release() {
	g.release <- struct{}{}
}

// FailNext makes the next write fail with err.
func (g *GatedStore) FailNext(err error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.failures = append(g.failures, err)
}

// Writes returns the writes that reached the wrapped store, in order.
func (g *GatedStore) Writes() []WriteRecord {
	g.mu.Lock()
	defer g.mu.Unlock()
	out := make([]WriteRecord, len(g.writes))
	copy(out, g.writes)
	return out
}

func (g *GatedStore) gate(ctx context.Context, op string, m *models.BoundaryMap) error {
	g.mu.Lock()
	held := g.held
	g.mu.Unlock()

	if held {
		g.entered <- op
		select {
		case <-g.release:
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	g.mu.Lock()
	defer g.mu.Unlock()
	if len(g.failures) > 0 {
		err := g.failures[0]
		g.failures = g.failures[1:]
		return err
	}
	g.writes = append(g.writes, WriteRecord{Op: op, MapID: m.ID, Areas: models.CloneAreas(m.Areas)})
	return nil
}

func (g *GatedStore) Insert(ctx context.Context, m *models.BoundaryMap) error {
	if err := g.gate(ctx, "insert", m); err != nil {
		return err
	}
	return g.Store.Insert(ctx, m)
}

func (g *GatedStore) Update(ctx context.Context, m *models.BoundaryMap) error {
	if err := g.gate(ctx, "update", m); err != nil {
		return err
	}
	return g.Store.Update(ctx, m)
}

var _ boundarymap.Store = (*GatedStore)(nil)
