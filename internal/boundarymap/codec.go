package boundarymap

import (
	"fmt"

	"github.com/storefront-admin/backend/internal/models"
	"github.com/vmihailenco/msgpack/v5"
)

// EncodeAreas packs areas for BLOB storage.
func EncodeAreas(areas []models.Area) ([]byte, error) {
	if areas == nil {
		areas = []models.Area{}
	}
	b, err := msgpack.Marshal(areas)
	if err != nil {
		return nil, fmt.Errorf("encoding areas: %w", err)
	}
	return b, nil
}

// DecodeAreas is the inverse of EncodeAreas. An empty input decodes to an
// empty, non-nil slice.
func DecodeAreas(b []byte) ([]models.Area, error) {
	areas := make([]models.Area, 0)
	if len(b) == 0 {
		return areas, nil
	}
	if err := msgpack.Unmarshal(b, &areas); err != nil {
		return nil, fmt.Errorf("decoding areas: %w", err)
	}
	if areas == nil {
		areas = make([]models.Area, 0)
	}
	return areas, nil
}

// EncodeMap packs a full map, metadata included, for compact transfer.
func EncodeMap(m *models.BoundaryMap) ([]byte, error) {
	b, err := msgpack.Marshal(m)
	if err != nil {
		return nil, fmt.Errorf("encoding map %s: %w", m.ID, err)
	}
	return b, nil
}

// DecodeMap is the inverse of EncodeMap.
func DecodeMap(b []byte) (*models.BoundaryMap, error) {
	var m models.BoundaryMap
	if err := msgpack.Unmarshal(b, &m); err != nil {
		return nil, fmt.Errorf("decoding map: %w", err)
	}
	if m.Areas == nil {
		m.Areas = make([]models.Area, 0)
	}
	return &m, nil
}
