package boundarymap

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/storefront-admin/backend/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const lobbyDoc = `
room_id: lobby
name: Default
snap_size: 0.05
activate: true
areas:
  - id: 10
    label: Front desk
    destination: /rooms/front-desk
    z_order: 1
    is_active: true
    shape:
      kind: rect
      rect: {x: 0.1, y: 0.1, width: 0.3, height: 0.2}
  - id: 11
    label: Window
    is_active: true
    shape:
      kind: polygon
      points:
        - {x: 0.5, y: 0.5}
        - {x: 0.9, y: 0.5}
        - {x: 0.7, y: 0.9}
`

func TestImportYAML(t *testing.T) {
	m, err := ImportYAML(strings.NewReader(lobbyDoc), "")
	require.NoError(t, err)

	assert.True(t, m.IsDraft())
	assert.Equal(t, "lobby", m.RoomID)
	assert.Equal(t, "Default", m.Name)
	assert.Equal(t, 0.05, m.SnapSize)
	require.Len(t, m.Areas, 2)
	assert.Equal(t, int64(-1), m.Areas[0].ID)
	assert.Equal(t, int64(-2), m.Areas[1].ID)
	assert.Equal(t, "Front desk", m.Areas[0].Label)
	assert.Equal(t, 1, m.Areas[0].ZOrder)
	require.NotNil(t, m.Areas[0].Shape.Rect)
	assert.Equal(t, 0.3, m.Areas[0].Shape.Rect.Width)
	assert.Equal(t, models.ShapePolygon, m.Areas[1].Shape.Kind)
	assert.Len(t, m.Areas[1].Shape.Points, 3)

	override, err := ImportYAML(strings.NewReader(lobbyDoc), "7")
	require.NoError(t, err)
	assert.Equal(t, "7", override.RoomID)
}

func TestImportYAML_Invalid(t *testing.T) {
	tests := []struct {
		name    string
		doc     string
		wantErr error
	}{
		{"malformed yaml", "name: [unterminated", models.ErrInvalidMap},
		{"no room", "name: x\nareas: []\n", models.ErrInvalidMap},
		{"degenerate rect", "room_id: r\nareas:\n  - shape: {kind: rect, rect: {x: 0, y: 0, width: 0, height: 1}}\n", models.ErrInvalidGeometry},
		{"two point polygon", "room_id: r\nareas:\n  - shape: {kind: polygon, points: [{x: 0, y: 0}, {x: 1, y: 1}]}\n", models.ErrInvalidGeometry},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ImportYAML(strings.NewReader(tt.doc), "")
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}
}

func TestExportImportYAML(t *testing.T) {
	ctx := context.Background()
	repo := newTestRepo()
	draft, err := ImportYAML(strings.NewReader(lobbyDoc), "")
	require.NoError(t, err)
	saved, err := repo.SaveMap(ctx, draft)
	require.NoError(t, err)

	var buf bytes.Buffer
	require.NoError(t, ExportYAML(&buf, saved))
	assert.Contains(t, buf.String(), "name: Default")
	assert.NotContains(t, buf.String(), saved.ID, "map ids are not exported")

	again, err := ImportYAML(&buf, "")
	require.NoError(t, err)
	require.Len(t, again.Areas, len(saved.Areas))
	for i := range saved.Areas {
		assert.Equal(t, saved.Areas[i].Shape, again.Areas[i].Shape)
		assert.Equal(t, saved.Areas[i].Label, again.Areas[i].Label)
	}
}

func TestLoadDefaults(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	seasonal := strings.Replace(lobbyDoc, "name: Default", "name: Seasonal", 1)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "a_lobby.yaml"), []byte(strings.Replace(lobbyDoc, "activate: true\n", "", 1)), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "b_lobby_seasonal.yml"), []byte(seasonal), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("ignored"), 0644))

	repo := newTestRepo()
	n, err := repo.LoadDefaults(ctx, dir)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	list, err := repo.ListMaps(ctx, "lobby")
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, "Default", list[0].Name)
	assert.False(t, list[0].Active)
	assert.Equal(t, "Seasonal", list[1].Name)
	assert.True(t, list[1].Active)

	// a second run finds the room populated and seeds nothing
	n, err = repo.LoadDefaults(ctx, dir)
	require.NoError(t, err)
	assert.Zero(t, n)

	n, err = repo.LoadDefaults(ctx, filepath.Join(dir, "missing"))
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestEncodeDecodeMap(t *testing.T) {
	ctx := context.Background()
	repo := newTestRepo()
	draft, err := ImportYAML(strings.NewReader(lobbyDoc), "")
	require.NoError(t, err)
	saved, err := repo.SaveMap(ctx, draft)
	require.NoError(t, err)

	b, err := EncodeMap(saved)
	require.NoError(t, err)
	decoded, err := DecodeMap(b)
	require.NoError(t, err)

	assert.Equal(t, saved.ID, decoded.ID)
	assert.Equal(t, saved.Areas, decoded.Areas)
	assert.True(t, saved.CreatedAt.Equal(decoded.CreatedAt))

	empty, err := DecodeAreas(nil)
	require.NoError(t, err)
	assert.NotNil(t, empty)
	assert.Empty(t, empty)
}
