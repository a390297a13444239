package storage

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/storefront-admin/backend/internal/models"
)

const indexFile = "assets.json"

// Store defines the interface for image asset storage.
type Store interface {
	Save(meta models.Asset, r io.Reader) (*models.Asset, error)
	Get(id string) (*models.Asset, error)
	Open(id string) (io.ReadCloser, error)
	List(limit int) ([]*models.Asset, error)
	Delete(id string) error
	GetFilePath(id string) (string, error)
}

// LocalStore implements Store on the local filesystem. Asset metadata is
// kept in an index file next to the assets so it survives restarts.
type LocalStore struct {
	mu       sync.RWMutex
	assetDir string
	assets   map[string]*models.Asset
	log      *slog.Logger
}

// NewLocalStore creates a LocalStore rooted at assetDir, loading any index
// left by a previous run.
func NewLocalStore(assetDir string) (*LocalStore, error) {
	if err := os.MkdirAll(assetDir, 0755); err != nil {
		return nil, fmt.Errorf("creating asset directory: %w", err)
	}

	s := &LocalStore{
		assetDir: assetDir,
		assets:   make(map[string]*models.Asset),
		log:      slog.With("component", "assets"),
	}
	if err := s.loadIndex(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *LocalStore) loadIndex() error {
	data, err := os.ReadFile(filepath.Join(s.assetDir, indexFile))
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("reading asset index: %w", err)
	}
	var list []*models.Asset
	if err := json.Unmarshal(data, &list); err != nil {
		return fmt.Errorf("parsing asset index: %w", err)
	}
	for _, a := range list {
		if _, err := os.Stat(filepath.Join(s.assetDir, a.ID)); err != nil {
			s.log.Warn("dropping asset with missing file", "asset", a.ID)
			continue
		}
		s.assets[a.ID] = a
	}
	return nil
}

// writeIndexLocked persists metadata. Caller holds s.mu.
func (s *LocalStore) writeIndexLocked() error {
	list := make([]*models.Asset, 0, len(s.assets))
	for _, a := range s.assets {
		list = append(list, a)
	}
	sort.Slice(list, func(i, j int) bool { return list[i].ID < list[j].ID })

	data, err := json.MarshalIndent(list, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding asset index: %w", err)
	}
	tmp := filepath.Join(s.assetDir, indexFile+".tmp")
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		return fmt.Errorf("writing asset index: %w", err)
	}
	return os.Rename(tmp, filepath.Join(s.assetDir, indexFile))
}

// Save writes the asset content. ID, Size and UploadedAt are assigned here;
// the remaining metadata is taken from meta.
func (s *LocalStore) Save(meta models.Asset, r io.Reader) (*models.Asset, error) {
	id := uuid.New().String()
	path := filepath.Join(s.assetDir, id)

	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("creating file: %w", err)
	}
	defer f.Close()

	size, err := io.Copy(f, r)
	if err != nil {
		os.Remove(path)
		return nil, fmt.Errorf("writing file: %w", err)
	}

	asset := meta
	asset.ID = id
	asset.Size = size
	asset.UploadedAt = time.Now()

	s.mu.Lock()
	defer s.mu.Unlock()
	s.assets[id] = &asset
	if err := s.writeIndexLocked(); err != nil {
		delete(s.assets, id)
		os.Remove(path)
		return nil, err
	}

	out := asset
	return &out, nil
}

// Get retrieves asset metadata by ID.
func (s *LocalStore) Get(id string) (*models.Asset, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	a, ok := s.assets[id]
	if !ok {
		return nil, fmt.Errorf("asset %s: %w", id, models.ErrNotFound)
	}
	out := *a
	return &out, nil
}

// Open returns the asset content.
func (s *LocalStore) Open(id string) (io.ReadCloser, error) {
	path, err := s.GetFilePath(id)
	if err != nil {
		return nil, err
	}
	return os.Open(path)
}

// List returns the most recent assets.
func (s *LocalStore) List(limit int) ([]*models.Asset, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	list := make([]*models.Asset, 0, len(s.assets))
	for _, a := range s.assets {
		out := *a
		list = append(list, &out)
	}
	sort.Slice(list, func(i, j int) bool {
		return list[i].UploadedAt.After(list[j].UploadedAt)
	})

	if limit > 0 && len(list) > limit {
		list = list[:limit]
	}
	return list, nil
}

// Delete removes an asset.
func (s *LocalStore) Delete(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.assets[id]; !ok {
		return fmt.Errorf("asset %s: %w", id, models.ErrNotFound)
	}

	path := filepath.Join(s.assetDir, id)
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("deleting file: %w", err)
	}
	delete(s.assets, id)
	return s.writeIndexLocked()
}

// GetFilePath returns the absolute path to an asset's content.
func (s *LocalStore) GetFilePath(id string) (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if _, ok := s.assets[id]; !ok {
		return "", fmt.Errorf("asset %s: %w", id, models.ErrNotFound)
	}
	return filepath.Join(s.assetDir, id), nil
}
