// mock_storage.go - In-memory asset store for testing
package testutil

import (
	"bytes"
	"fmt"
	"image"
	"image/color"
	"image/png"
	"io"
	"sort"
	"sync"
	"time"

	"github.com/storefront-admin/backend/internal/models"
	"github.com/storefront-admin/backend/internal/storage"
)

// MockAssetStore implements storage.Store in memory.
type MockAssetStore struct {
	mu      sync.RWMutex
	assets  map[string]*models.Asset
	data    map[string][]byte
	saveErr error
}

// NewMockAssetStore creates an empty store.
func NewMockAssetStore() *MockAssetStore {
	return &MockAssetStore{
		assets: make(map[string]*models.Asset),
		data:   make(map[string][]byte),
	}
}

// Ensure MockAssetStore implements storage.Store
var _ storage.Store = (*MockAssetStore)(nil)

func (m *MockAssetStore) Save(meta models.Asset, r io.Reader) (*models.Asset, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.saveErr != nil {
		return nil, m.saveErr
	}
	asset := meta
	asset.ID = generateTestID()
	asset.Size = int64(len(data))
	asset.UploadedAt = time.Now()
	m.assets[asset.ID] = &asset
	m.data[asset.ID] = data

	out := asset
	return &out, nil
}

func (m *MockAssetStore) Get(id string) (*models.Asset, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	a, ok := m.assets[id]
	if !ok {
		return nil, fmt.Errorf("asset %s: %w", id, models.ErrNotFound)
	}
	out := *a
	return &out, nil
}

func (m *MockAssetStore) Open(id string) (io.ReadCloser, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	data, ok := m.data[id]
	if !ok {
		return nil, fmt.Errorf("asset %s: %w", id, models.ErrNotFound)
	}
	return io.NopCloser(bytes.NewReader(data)), nil
}

func (m *MockAssetStore) List(limit int) ([]*models.Asset, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	list := make([]*models.Asset, 0, len(m.assets))
	for _, a := range m.assets {
		out := *a
		list = append(list, &out)
	}
	sort.Slice(list, func(i, j int) bool { return list[i].ID < list[j].ID })
	if limit > 0 && len(list) > limit {
		list = list[:limit]
	}
	return list, nil
}

func (m *MockAssetStore) Delete(id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.assets[id]; !ok {
		return fmt.Errorf("asset %s: %w", id, models.ErrNotFound)
	}
	delete(m.assets, id)
	delete(m.data, id)
	return nil
}

func (m *MockAssetStore) GetFilePath(id string) (string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if _, ok := m.assets[id]; !ok {
		return "", fmt.Errorf("asset %s: %w", id, models.ErrNotFound)
	}
	return "/mock/assets/" + id, nil
}

// Test Helper Methods

// FailSaves makes every Save return err until called with nil.
func (m *MockAssetStore) FailSaves(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.saveErr = err
}

// Count returns the number of stored assets.
func (m *MockAssetStore) Count() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.assets)
}

// Data returns the stored content of an asset.
func (m *MockAssetStore) Data(id string) []byte {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.data[id]
}

// PNG encodes a solid w x h image.
func PNG(w, h int) []byte {
	img := image.NewNRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, color.NRGBA{R: 200, G: 120, B: 40, A: 255})
		}
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		panic(fmt.Sprintf("encoding test png: %v", err))
	}
	return buf.Bytes()
}

// generateTestID generates a simple test ID
var testIDCounter int
var testIDMutex sync.Mutex

func generateTestID() string {
	testIDMutex.Lock()
	defer testIDMutex.Unlock()
	testIDCounter++
	return fmt.Sprintf("test-id-%d", testIDCounter)
}
