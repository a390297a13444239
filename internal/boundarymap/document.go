package boundarymap

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/storefront-admin/backend/internal/models"
	"gopkg.in/yaml.v3"
)

// Document is the YAML form of a boundary map, used for export/import and
// for seeding default maps.
type Document struct {
	RoomID        string        `yaml:"room_id,omitempty"`
	Name          string        `yaml:"name"`
	SnapSize      float64       `yaml:"snap_size"`
	RenderContext string        `yaml:"render_context,omitempty"`
	Activate      bool          `yaml:"activate,omitempty"`
	Areas         []models.Area `yaml:"areas"`
}

// ExportYAML writes m as a YAML document.
func ExportYAML(w io.Writer, m *models.BoundaryMap) error {
	doc := Document{
		RoomID:        m.RoomID,
		Name:          m.Name,
		SnapSize:      m.SnapSize,
		RenderContext: m.RenderContext,
		Activate:      m.Active,
		Areas:         models.CloneAreas(m.Areas),
	}
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(&doc); err != nil {
		return fmt.Errorf("encoding map %s: %w", m.ID, err)
	}
	return enc.Close()
}

// ParseDocument reads a YAML map document.
func ParseDocument(r io.Reader) (*Document, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, err
	}
	var doc Document
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("%w: %w", models.ErrInvalidMap, err)
	}
	return &doc, nil
}

// Draft turns the document into an unsaved map for roomID (the document's
// own room when roomID is empty). Area ids are replaced with temporary ones
// so the repository assigns fresh persisted ids.
func (d *Document) Draft(roomID string) (*models.BoundaryMap, error) {
	if roomID == "" {
		roomID = d.RoomID
	}
	m := models.NewDraftMap(roomID)
	m.Name = d.Name
	m.SnapSize = d.SnapSize
	m.RenderContext = d.RenderContext
	m.Areas = models.CloneAreas(d.Areas)
	for i := range m.Areas {
		m.Areas[i].ID = -int64(i + 1)
	}
	if err := Validate(m); err != nil {
		return nil, err
	}
	return m, nil
}

// ImportYAML parses a document into a validated draft for roomID.
func ImportYAML(r io.Reader, roomID string) (*models.BoundaryMap, error) {
	doc, err := ParseDocument(r)
	if err != nil {
		return nil, err
	}
	return doc.Draft(roomID)
}

// LoadDefaults seeds maps from every *.yaml / *.yml document in dir, in
// file name order. Documents are only applied to rooms that had no maps
// when seeding started, so restarting the server never duplicates them.
// Returns the number of maps created; a missing directory is not an error.
func (r *Repository) LoadDefaults(ctx context.Context, dir string) (int, error) {
	entries, err := os.ReadDir(dir)
	if errors.Is(err, os.ErrNotExist) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("reading default maps directory: %w", err)
	}

	var files []string
	for _, e := range entries {
		ext := strings.ToLower(filepath.Ext(e.Name()))
		if !e.IsDir() && (ext == ".yaml" || ext == ".yml") {
			files = append(files, filepath.Join(dir, e.Name()))
		}
	}
	sort.Strings(files)

	seeding := make(map[string]bool)
	created := 0
	for _, path := range files {
		ok, err := r.seedFile(ctx, path, seeding)
		if err != nil {
			return created, fmt.Errorf("%s: %w", filepath.Base(path), err)
		}
		if ok {
			created++
		}
	}
	return created, nil
}

// seedFile applies one document. seeding records, per room, whether the
// room was empty at first sight.
func (r *Repository) seedFile(ctx context.Context, path string, seeding map[string]bool) (bool, error) {
	f, err := os.Open(path)
	if err != nil {
		return false, err
	}
	defer f.Close()

	doc, err := ParseDocument(f)
	if err != nil {
		return false, err
	}
	draft, err := doc.Draft("")
	if err != nil {
		return false, err
	}

	empty, seen := seeding[draft.RoomID]
	if !seen {
		existing, err := r.ListMaps(ctx, draft.RoomID)
		if err != nil {
			return false, err
		}
		empty = len(existing) == 0
		seeding[draft.RoomID] = empty
	}
	if !empty {
		return false, nil
	}

	saved, err := r.SaveMap(ctx, draft)
	if err != nil {
		return false, err
	}
	if doc.Activate && !saved.Active {
		if err := r.ActivateMap(ctx, saved.RoomID, saved.ID); err != nil {
			return true, err
		}
	}
	r.log.Info("default map seeded", "room", saved.RoomID, "map", saved.ID, "file", filepath.Base(path))
	return true, nil
}
