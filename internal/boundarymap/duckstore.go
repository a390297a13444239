package boundarymap

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/marcboeker/go-duckdb"
	"github.com/storefront-admin/backend/internal/models"
)

// DuckOptions tune the DuckDB connection.
type DuckOptions struct {
	Threads     int
	MemoryLimit string
}

// DuckStore persists boundary maps in a DuckDB file. Map metadata lives in
// columns; the ordered area list is a msgpack BLOB.
type DuckStore struct {
	db     *sql.DB
	dbPath string
	log    *slog.Logger
}

const schema = `
	CREATE TABLE IF NOT EXISTS boundary_maps (
		id             VARCHAR PRIMARY KEY,
		room_id        VARCHAR NOT NULL,
		name           VARCHAR NOT NULL,
		snap_size      DOUBLE NOT NULL,
		render_context VARCHAR NOT NULL,
		active         BOOLEAN NOT NULL,
		version        INTEGER NOT NULL,
		area_count     INTEGER NOT NULL,
		areas          BLOB NOT NULL,
		created_at     TIMESTAMP NOT NULL,
		updated_at     TIMESTAMP NOT NULL
	)
`

const selectColumns = `id, room_id, name, snap_size, render_context, active, version, areas, created_at, updated_at`

// OpenDuckStore opens (creating if needed) the database at dbPath.
func OpenDuckStore(dbPath string, opts DuckOptions) (*DuckStore, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("creating database directory: %w", err)
	}
	log := slog.With("component", "duckstore", "path", dbPath)

	pragmas := []string{"PRAGMA enable_progress_bar=false"}
	if opts.Threads > 0 {
		pragmas = append(pragmas, fmt.Sprintf("PRAGMA threads=%d", opts.Threads))
	}
	if opts.MemoryLimit != "" {
		pragmas = append(pragmas, fmt.Sprintf("PRAGMA memory_limit='%s'", opts.MemoryLimit))
	}

	connector, err := duckdb.NewConnector(dbPath, func(execer driver.ExecerContext) error {
		for _, pragma := range pragmas {
			if _, err := execer.ExecContext(context.Background(), pragma, nil); err != nil {
				return fmt.Errorf("%s: %w", pragma, err)
			}
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create DuckDB connector: %w", err)
	}

	db := sql.OpenDB(connector)
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create table: %w", err)
	}
	log.Info("boundary map store ready")

	return &DuckStore{db: db, dbPath: dbPath, log: log}, nil
}

func scanMap(scan func(dest ...any) error) (*models.BoundaryMap, error) {
	var (
		m    models.BoundaryMap
		blob []byte
	)
	if err := scan(&m.ID, &m.RoomID, &m.Name, &m.SnapSize, &m.RenderContext,
		&m.Active, &m.Version, &blob, &m.CreatedAt, &m.UpdatedAt); err != nil {
		return nil, err
	}
	areas, err := DecodeAreas(blob)
	if err != nil {
		return nil, err
	}
	m.Areas = areas
	m.CreatedAt = m.CreatedAt.UTC()
	m.UpdatedAt = m.UpdatedAt.UTC()
	return &m, nil
}

func (ds *DuckStore) Get(ctx context.Context, mapID string) (*models.BoundaryMap, error) {
	row := ds.db.QueryRowContext(ctx, "SELECT "+selectColumns+" FROM boundary_maps WHERE id = ?", mapID)
	m, err := scanMap(row.Scan)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("map %s: %w", mapID, models.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("loading map %s: %w", mapID, err)
	}
	return m, nil
}

func (ds *DuckStore) GetActive(ctx context.Context, roomID string) (*models.BoundaryMap, error) {
	row := ds.db.QueryRowContext(ctx,
		"SELECT "+selectColumns+" FROM boundary_maps WHERE room_id = ? AND active LIMIT 1", roomID)
	m, err := scanMap(row.Scan)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("active map for room %s: %w", roomID, models.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("loading active map for room %s: %w", roomID, err)
	}
	return m, nil
}

func (ds *DuckStore) List(ctx context.Context, roomID string) ([]models.MapSummary, error) {
	rows, err := ds.db.QueryContext(ctx, `
		SELECT id, room_id, name, active, area_count, version, created_at
		FROM boundary_maps
		WHERE room_id = ?
		ORDER BY created_at, id
	`, roomID)
	if err != nil {
		return nil, fmt.Errorf("listing maps for room %s: %w", roomID, err)
	}
	defer rows.Close()

	out := make([]models.MapSummary, 0)
	for rows.Next() {
		var s models.MapSummary
		if err := rows.Scan(&s.ID, &s.RoomID, &s.Name, &s.Active, &s.AreaCount, &s.Version, &s.CreatedAt); err != nil {
			return nil, fmt.Errorf("scanning map summary: %w", err)
		}
		s.CreatedAt = s.CreatedAt.UTC()
		out = append(out, s)
	}
	return out, rows.Err()
}

func (ds *DuckStore) Insert(ctx context.Context, m *models.BoundaryMap) error {
	blob, err := EncodeAreas(m.Areas)
	if err != nil {
		return err
	}
	_, err = ds.db.ExecContext(ctx, `
		INSERT INTO boundary_maps
			(id, room_id, name, snap_size, render_context, active, version, area_count, areas, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, m.ID, m.RoomID, m.Name, m.SnapSize, m.RenderContext, m.Active, m.Version,
		len(m.Areas), blob, m.CreatedAt, m.UpdatedAt)
	if err != nil {
		return fmt.Errorf("inserting map %s: %w", m.ID, err)
	}
	return nil
}

func (ds *DuckStore) Update(ctx context.Context, m *models.BoundaryMap) error {
	blob, err := EncodeAreas(m.Areas)
	if err != nil {
		return err
	}
	res, err := ds.db.ExecContext(ctx, `
		UPDATE boundary_maps
		SET name = ?, snap_size = ?, render_context = ?, version = ?, area_count = ?, areas = ?, updated_at = ?
		WHERE id = ?
	`, m.Name, m.SnapSize, m.RenderContext, m.Version, len(m.Areas), blob, m.UpdatedAt, m.ID)
	if err != nil {
		return fmt.Errorf("updating map %s: %w", m.ID, err)
	}
	return requireRow(res, m.ID)
}

func requireRow(res sql.Result, mapID string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("map %s: %w", mapID, err)
	}
	if n == 0 {
		return fmt.Errorf("map %s: %w", mapID, models.ErrNotFound)
	}
	return nil
}

func (ds *DuckStore) SetActive(ctx context.Context, roomID, mapID string) error {
	tx, err := ds.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning activation: %w", err)
	}
	defer tx.Rollback()

	var n int
	err = tx.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM boundary_maps WHERE id = ? AND room_id = ?", mapID, roomID).Scan(&n)
	if err != nil {
		return fmt.Errorf("checking map %s: %w", mapID, err)
	}
	if n == 0 {
		return fmt.Errorf("map %s in room %s: %w", mapID, roomID, models.ErrNotFound)
	}
	if _, err := tx.ExecContext(ctx,
		"UPDATE boundary_maps SET active = (id = ?) WHERE room_id = ?", mapID, roomID); err != nil {
		return fmt.Errorf("activating map %s: %w", mapID, err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing activation: %w", err)
	}
	return nil
}

func (ds *DuckStore) ClearActive(ctx context.Context, roomID string) error {
	if _, err := ds.db.ExecContext(ctx,
		"UPDATE boundary_maps SET active = false WHERE room_id = ? AND active", roomID); err != nil {
		return fmt.Errorf("clearing activation for room %s: %w", roomID, err)
	}
	return nil
}

func (ds *DuckStore) Rename(ctx context.Context, mapID, name string, at time.Time) error {
	res, err := ds.db.ExecContext(ctx,
		"UPDATE boundary_maps SET name = ?, updated_at = ? WHERE id = ?", name, at, mapID)
	if err != nil {
		return fmt.Errorf("renaming map %s: %w", mapID, err)
	}
	return requireRow(res, mapID)
}

func (ds *DuckStore) Delete(ctx context.Context, mapID string) error {
	tx, err := ds.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning delete: %w", err)
	}
	defer tx.Rollback()

	var active bool
	err = tx.QueryRowContext(ctx, "SELECT active FROM boundary_maps WHERE id = ?", mapID).Scan(&active)
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("map %s: %w", mapID, models.ErrNotFound)
	}
	if err != nil {
		return fmt.Errorf("checking map %s: %w", mapID, err)
	}
	if active {
		return fmt.Errorf("map %s: %w", mapID, models.ErrActiveMapDeletion)
	}
	if _, err := tx.ExecContext(ctx, "DELETE FROM boundary_maps WHERE id = ?", mapID); err != nil {
		return fmt.Errorf("deleting map %s: %w", mapID, err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing delete: %w", err)
	}
	return nil
}

// Path returns the database file path.
func (ds *DuckStore) Path() string { return ds.dbPath }

// Close closes the database. The file is kept.
func (ds *DuckStore) Close() error {
	if ds.db == nil {
		return nil
	}
	return ds.db.Close()
}
