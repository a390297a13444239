// Package imagery resolves and replaces the background images areas are
// drawn over, and runs AI image-edit jobs against them.
package imagery

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	_ "golang.org/x/image/webp"

	"github.com/storefront-admin/backend/internal/models"
	"github.com/storefront-admin/backend/internal/storage"
)

// MaxImageBytes caps the size of an uploaded or generated image.
const MaxImageBytes = 32 << 20

const backgroundsFile = "backgrounds.json"

// ErrUnsupportedImage is returned for content that is not a decodable
// PNG, JPEG, GIF or WebP image.
var ErrUnsupportedImage = errors.New("unsupported image format")

// Provider resolves the background image of a room and stores new images.
type Provider interface {
	// Resolve returns the room's current background. ErrNotFound when the
	// room has none.
	Resolve(ctx context.Context, roomID string) (models.Image, error)
	// Upload stores an image without assigning it to any room.
	Upload(ctx context.Context, name, contentType string, r io.Reader) (models.Image, error)
	// Replace makes ref the room's background and returns the resolved image.
	Replace(ctx context.Context, roomID, ref string) (models.Image, error)
	// Open returns the content of a stored image.
	Open(ctx context.Context, ref string) (io.ReadCloser, error)
}

// AssetURL is the URL an asset is served from.
func AssetURL(id string) string {
	return "/api/assets/" + id
}

// ImageOf converts asset metadata into a resolved image.
func ImageOf(a *models.Asset) models.Image {
	return models.Image{Ref: a.ID, URL: AssetURL(a.ID), Width: a.Width, Height: a.Height}
}

// LocalProvider serves backgrounds from a storage.Store and keeps the
// room to background assignment in a JSON file.
type LocalProvider struct {
	mu     sync.RWMutex
	assets storage.Store
	path   string
	rooms  map[string]string
	log    *slog.Logger
}

// NewLocalProvider creates a provider whose assignments live under dir.
func NewLocalProvider(assets storage.Store, dir string) (*LocalProvider, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("creating background directory: %w", err)
	}
	p := &LocalProvider{
		assets: assets,
		path:   filepath.Join(dir, backgroundsFile),
		rooms:  make(map[string]string),
		log:    slog.With("component", "imagery"),
	}

	data, err := os.ReadFile(p.path)
	switch {
	case errors.Is(err, os.ErrNotExist):
	case err != nil:
		return nil, fmt.Errorf("reading background assignments: %w", err)
	default:
		if err := json.Unmarshal(data, &p.rooms); err != nil {
			return nil, fmt.Errorf("parsing background assignments: %w", err)
		}
	}
	return p, nil
}

func (p *LocalProvider) Resolve(ctx context.Context, roomID string) (models.Image, error) {
	if err := ctx.Err(); err != nil {
		return models.Image{}, err
	}
	p.mu.RLock()
	ref, ok := p.rooms[roomID]
	p.mu.RUnlock()
	if !ok {
		return models.Image{}, fmt.Errorf("background for room %s: %w", roomID, models.ErrNotFound)
	}
	asset, err := p.assets.Get(ref)
	if err != nil {
		return models.Image{}, err
	}
	return ImageOf(asset), nil
}

func (p *LocalProvider) Upload(ctx context.Context, name, contentType string, r io.Reader) (models.Image, error) {
	if err := ctx.Err(); err != nil {
		return models.Image{}, err
	}
	data, err := io.ReadAll(io.LimitReader(r, MaxImageBytes+1))
	if err != nil {
		return models.Image{}, fmt.Errorf("reading image: %w", err)
	}
	if len(data) > MaxImageBytes {
		return models.Image{}, fmt.Errorf("%w: image exceeds %d bytes", ErrUnsupportedImage, MaxImageBytes)
	}

	cfg, format, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return models.Image{}, fmt.Errorf("%w: %v", ErrUnsupportedImage, err)
	}
	if contentType == "" {
		contentType = "image/" + format
	}

	asset, err := p.assets.Save(models.Asset{
		Name:        name,
		ContentType: contentType,
		Width:       cfg.Width,
		Height:      cfg.Height,
	}, bytes.NewReader(data))
	if err != nil {
		return models.Image{}, fmt.Errorf("%w: storing image: %w", models.ErrPersistence, err)
	}
	p.log.Info("image stored", "asset", asset.ID, "name", name, "format", format, "width", cfg.Width, "height", cfg.Height)
	return ImageOf(asset), nil
}

func (p *LocalProvider) Replace(ctx context.Context, roomID, ref string) (models.Image, error) {
	if err := ctx.Err(); err != nil {
		return models.Image{}, err
	}
	asset, err := p.assets.Get(ref)
	if err != nil {
		return models.Image{}, err
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	prev, had := p.rooms[roomID]
	p.rooms[roomID] = ref
	if err := p.writeLocked(); err != nil {
		if had {
			p.rooms[roomID] = prev
		} else {
			delete(p.rooms, roomID)
		}
		return models.Image{}, err
	}
	p.log.Info("background replaced", "room", roomID, "asset", ref)
	return ImageOf(asset), nil
}

func (p *LocalProvider) Open(ctx context.Context, ref string) (io.ReadCloser, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return p.assets.Open(ref)
}

func (p *LocalProvider) writeLocked() error {
	data, err := json.MarshalIndent(p.rooms, "", "  ")
	if err != nil {
		return err
	}
	tmp := p.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		return fmt.Errorf("%w: writing background assignments: %w", models.ErrPersistence, err)
	}
	if err := os.Rename(tmp, p.path); err != nil {
		return fmt.Errorf("%w: writing background assignments: %w", models.ErrPersistence, err)
	}
	return nil
}
