// Package boundarymap is the versioned persistence layer for boundary maps:
// the repository enforcing activation exclusivity and per-room ordering, the
// Store collaborator it persists through, and document import/export.
package boundarymap

import (
	"context"
	"time"

	"github.com/storefront-admin/backend/internal/models"
)

// Store is the persistence collaborator behind the Repository. Implementations
// return models.ErrNotFound for unknown ids and models.ErrActiveMapDeletion
// when asked to delete an active map; any other error is a persistence
// failure. Maps passed in and returned are never shared with the caller.
type Store interface {
	Get(ctx context.Context, mapID string) (*models.BoundaryMap, error)
	// GetActive returns ErrNotFound when the room has no active map.
	GetActive(ctx context.Context, roomID string) (*models.BoundaryMap, error)
	// List returns summaries ordered by creation time.
	List(ctx context.Context, roomID string) ([]models.MapSummary, error)
	// Insert persists m as given, Active flag included.
	Insert(ctx context.Context, m *models.BoundaryMap) error
	Update(ctx context.Context, m *models.BoundaryMap) error
	// SetActive flags mapID active and every sibling in roomID inactive in
	// one step. ErrNotFound if mapID is not a map of roomID.
	SetActive(ctx context.Context, roomID, mapID string) error
	ClearActive(ctx context.Context, roomID string) error
	Rename(ctx context.Context, mapID, name string, at time.Time) error
	Delete(ctx context.Context, mapID string) error
	Close() error
}
