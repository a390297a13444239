package boundarymap

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/storefront-admin/backend/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// stepClock returns a clock advancing one second per call.
func stepClock() func() time.Time {
	t := time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)
	return func() time.Time {
		t = t.Add(time.Second)
		return t
	}
}

func newTestRepo(opts ...Option) *Repository {
	opts = append([]Option{WithClock(stepClock())}, opts...)
	return NewRepository(NewMemoryStore(), opts...)
}

func rectArea(id int64, x, y, w, h float64) models.Area {
	return models.Area{ID: id, Shape: models.RectShape(x, y, w, h), IsActive: true}
}

func draftWith(roomID, name string, areas ...models.Area) *models.BoundaryMap {
	m := models.NewDraftMap(roomID)
	m.Name = name
	m.Areas = append(m.Areas, areas...)
	return m
}

func activeIDs(t *testing.T, repo *Repository, roomID string) []string {
	t.Helper()
	list, err := repo.ListMaps(context.Background(), roomID)
	require.NoError(t, err)
	var ids []string
	for _, s := range list {
		if s.Active {
			ids = append(ids, s.ID)
		}
	}
	return ids
}

func TestLoadMap_EmptyRoomReturnsDraft(t *testing.T) {
	repo := newTestRepo(WithDefaultSnapSize(0.05))

	m, err := repo.LoadMap(context.Background(), "7", "")
	require.NoError(t, err)
	assert.True(t, m.IsDraft())
	assert.Equal(t, "7", m.RoomID)
	assert.Empty(t, m.Areas)
	assert.NotNil(t, m.Areas)
	assert.Equal(t, 0.05, m.SnapSize)
}

func TestLoadMap(t *testing.T) {
	ctx := context.Background()
	repo := newTestRepo()
	first, err := repo.SaveMap(ctx, draftWith("7", "Default", rectArea(-1, 0.1, 0.1, 0.2, 0.2)))
	require.NoError(t, err)
	second, err := repo.SaveMap(ctx, draftWith("7", "Seasonal"))
	require.NoError(t, err)

	tests := []struct {
		name    string
		roomID  string
		mapID   string
		wantID  string
		wantErr error
	}{
		{"active when id omitted", "7", "", first.ID, nil},
		{"specific map", "7", second.ID, second.ID, nil},
		{"unknown id", "7", "missing", "", models.ErrNotFound},
		{"map of another room", "8", first.ID, "", models.ErrNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m, err := repo.LoadMap(ctx, tt.roomID, tt.mapID)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantID, m.ID)
		})
	}
}

func TestSaveMap_CreateAssignsIDsAndActivatesFirst(t *testing.T) {
	ctx := context.Background()
	repo := newTestRepo()

	saved, err := repo.SaveMap(ctx, draftWith("7", "Default",
		rectArea(-1, 0.1, 0.1, 0.3, 0.2),
		rectArea(-2, 0.5, 0.5, 0.1, 0.1),
	))
	require.NoError(t, err)

	assert.NotEmpty(t, saved.ID)
	assert.Equal(t, 1, saved.Version)
	assert.True(t, saved.Active, "first map of a room becomes active")
	assert.False(t, saved.CreatedAt.IsZero())
	require.Len(t, saved.Areas, 2)
	assert.Equal(t, int64(1), saved.Areas[0].ID)
	assert.Equal(t, int64(2), saved.Areas[1].ID)
	assert.InDelta(t, 0.1, saved.Areas[0].Shape.Rect.X, 1e-12)

	second, err := repo.SaveMap(ctx, draftWith("7", "Other"))
	require.NoError(t, err)
	assert.False(t, second.Active, "later maps are not activated implicitly")
	assert.Equal(t, []string{saved.ID}, activeIDs(t, repo, "7"))
}

func TestSaveMap_DefaultName(t *testing.T) {
	repo := newTestRepo()
	saved, err := repo.SaveMap(context.Background(), draftWith("7", ""))
	require.NoError(t, err)
	assert.Equal(t, DefaultMapName, saved.Name)
}

func TestSaveMap_NeverMatchesByName(t *testing.T) {
	ctx := context.Background()
	repo := newTestRepo()

	a, err := repo.SaveMap(ctx, draftWith("7", "Default"))
	require.NoError(t, err)
	b, err := repo.SaveMap(ctx, draftWith("7", "Default"))
	require.NoError(t, err)

	assert.NotEqual(t, a.ID, b.ID)
	list, err := repo.ListMaps(ctx, "7")
	require.NoError(t, err)
	assert.Len(t, list, 2)
}

func TestSaveMap_UpdateOverwritesInPlace(t *testing.T) {
	ctx := context.Background()
	repo := newTestRepo()

	created, err := repo.SaveMap(ctx, draftWith("7", "Default",
		rectArea(-1, 0.1, 0.1, 0.2, 0.2),
		rectArea(-2, 0.4, 0.4, 0.2, 0.2),
	))
	require.NoError(t, err)

	draft := created.Clone()
	draft.Name = "ignored on save"
	draft.SnapSize = 0.1
	draft.RenderContext = "mobile"
	// drop area 2, add a new one
	draft.Areas = []models.Area{created.Areas[0], rectArea(-5, 0.7, 0.7, 0.1, 0.1)}

	updated, err := repo.SaveMap(ctx, draft)
	require.NoError(t, err)

	assert.Equal(t, created.ID, updated.ID)
	assert.Equal(t, 2, updated.Version)
	assert.Equal(t, "Default", updated.Name)
	assert.Equal(t, 0.1, updated.SnapSize)
	assert.Equal(t, "mobile", updated.RenderContext)
	assert.True(t, updated.Active)
	assert.Equal(t, created.CreatedAt, updated.CreatedAt)
	assert.True(t, updated.UpdatedAt.After(created.UpdatedAt))
	require.Len(t, updated.Areas, 2)
	assert.Equal(t, int64(1), updated.Areas[0].ID)
	assert.Equal(t, int64(3), updated.Areas[1].ID, "new ids never reuse previously stored ids")

	loaded, err := repo.LoadMap(ctx, "7", created.ID)
	require.NoError(t, err)
	assert.Equal(t, updated.Areas, loaded.Areas)
}

func TestSaveMap_Rejections(t *testing.T) {
	ctx := context.Background()
	repo := newTestRepo()
	other, err := repo.SaveMap(ctx, draftWith("8", "Eight"))
	require.NoError(t, err)

	unknown := draftWith("7", "Ghost")
	unknown.ID = "does-not-exist"

	wrongRoom := other.Clone()
	wrongRoom.RoomID = "7"

	tests := []struct {
		name    string
		draft   *models.BoundaryMap
		wantErr error
	}{
		{"nil", nil, models.ErrInvalidMap},
		{"missing room", draftWith("", "x"), models.ErrInvalidMap},
		{"zero width rect", draftWith("7", "x", rectArea(-1, 0.1, 0.1, 0, 0.2)), models.ErrInvalidGeometry},
		{"self-intersecting polygon", draftWith("7", "x", models.Area{ID: -1, Shape: models.PolygonShape(
			models.Point{X: 0, Y: 0}, models.Point{X: 1, Y: 1},
			models.Point{X: 1, Y: 0}, models.Point{X: 0, Y: 1},
		)}), models.ErrInvalidGeometry},
		{"duplicate area ids", draftWith("7", "x", rectArea(4, 0, 0, 0.1, 0.1), rectArea(4, 0.2, 0.2, 0.1, 0.1)), models.ErrInvalidMap},
		{"unknown map id", unknown, models.ErrNotFound},
		{"map of another room", wrongRoom, models.ErrNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := repo.SaveMap(ctx, tt.draft)
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}

	list, err := repo.ListMaps(ctx, "7")
	require.NoError(t, err)
	assert.Empty(t, list, "rejected drafts are never persisted")
}

func TestActivateMap_Exclusive(t *testing.T) {
	ctx := context.Background()
	repo := newTestRepo()

	var ids []string
	for i := 0; i < 4; i++ {
		m, err := repo.SaveMap(ctx, draftWith("7", fmt.Sprintf("map %d", i)))
		require.NoError(t, err)
		ids = append(ids, m.ID)
	}
	// a sibling room must be untouched
	eight, err := repo.SaveMap(ctx, draftWith("8", "eight"))
	require.NoError(t, err)

	for _, target := range []int{2, 0, 3, 3, 1} {
		require.NoError(t, repo.ActivateMap(ctx, "7", ids[target]))
		assert.Equal(t, []string{ids[target]}, activeIDs(t, repo, "7"))
		assert.Equal(t, []string{eight.ID}, activeIDs(t, repo, "8"))
	}
}

func TestActivateMap_Conflicting(t *testing.T) {
	ctx := context.Background()
	repo := newTestRepo()
	seven, err := repo.SaveMap(ctx, draftWith("7", "Default"))
	require.NoError(t, err)
	eight, err := repo.SaveMap(ctx, draftWith("8", "Default"))
	require.NoError(t, err)

	assert.ErrorIs(t, repo.ActivateMap(ctx, "7", "missing"), models.ErrConflictingActivation)
	assert.ErrorIs(t, repo.ActivateMap(ctx, "7", eight.ID), models.ErrConflictingActivation)

	assert.Equal(t, []string{seven.ID}, activeIDs(t, repo, "7"))
	assert.Equal(t, []string{eight.ID}, activeIDs(t, repo, "8"))
}

func TestDeleteMap_ActiveRejected(t *testing.T) {
	ctx := context.Background()
	repo := newTestRepo()
	active, err := repo.SaveMap(ctx, draftWith("7", "Default"))
	require.NoError(t, err)
	_, err = repo.SaveMap(ctx, draftWith("7", "Spare"))
	require.NoError(t, err)

	before, err := repo.ListMaps(ctx, "7")
	require.NoError(t, err)

	err = repo.DeleteMap(ctx, active.ID)
	assert.ErrorIs(t, err, models.ErrActiveMapDeletion)

	after, err := repo.ListMaps(ctx, "7")
	require.NoError(t, err)
	assert.Equal(t, before, after)

	assert.ErrorIs(t, repo.DeleteMap(ctx, "missing"), models.ErrNotFound)
}

func TestDefaultSeasonalScenario(t *testing.T) {
	ctx := context.Background()
	repo := newTestRepo()

	def, err := repo.SaveMap(ctx, draftWith("7", "Default", rectArea(-1, 0.1, 0.1, 0.3, 0.2)))
	require.NoError(t, err)
	seasonal, err := repo.SaveMap(ctx, draftWith("7", "Seasonal"))
	require.NoError(t, err)
	require.NoError(t, repo.ActivateMap(ctx, "7", seasonal.ID))

	list, err := repo.ListMaps(ctx, "7")
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, "Default", list[0].Name)
	assert.False(t, list[0].Active)
	assert.Equal(t, 1, list[0].AreaCount)
	assert.Equal(t, "Seasonal", list[1].Name)
	assert.True(t, list[1].Active)

	assert.ErrorIs(t, repo.DeleteMap(ctx, seasonal.ID), models.ErrActiveMapDeletion)
	require.NoError(t, repo.DeleteMap(ctx, def.ID))

	list, err = repo.ListMaps(ctx, "7")
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, seasonal.ID, list[0].ID)
	assert.True(t, list[0].Active)
}

func TestClearActivation_AllowsDeletingLastMap(t *testing.T) {
	ctx := context.Background()
	repo := newTestRepo()
	only, err := repo.SaveMap(ctx, draftWith("7", "Default"))
	require.NoError(t, err)

	require.NoError(t, repo.ClearActivation(ctx, "7"))
	assert.Empty(t, activeIDs(t, repo, "7"))
	require.NoError(t, repo.DeleteMap(ctx, only.ID))

	m, err := repo.LoadMap(ctx, "7", "")
	require.NoError(t, err)
	assert.True(t, m.IsDraft())
}

func TestRenameMap(t *testing.T) {
	ctx := context.Background()
	repo := newTestRepo()
	m, err := repo.SaveMap(ctx, draftWith("7", "Default"))
	require.NoError(t, err)

	renamed, err := repo.RenameMap(ctx, m.ID, "  Winter  ")
	require.NoError(t, err)
	assert.Equal(t, "Winter", renamed.Name)
	assert.Equal(t, m.Version, renamed.Version)

	_, err = repo.RenameMap(ctx, m.ID, "   ")
	assert.ErrorIs(t, err, models.ErrInvalidMap)
	_, err = repo.RenameMap(ctx, "missing", "x")
	assert.ErrorIs(t, err, models.ErrNotFound)

	loaded, err := repo.LoadMap(ctx, "7", m.ID)
	require.NoError(t, err)
	assert.Equal(t, "Winter", loaded.Name)
}

func TestSaveMap_OptimisticConcurrency(t *testing.T) {
	ctx := context.Background()

	tests := []struct {
		name       string
		optimistic bool
		wantErr    error
	}{
		{"disabled accepts stale version", false, nil},
		{"enabled rejects stale version", true, models.ErrStaleMap},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			repo := newTestRepo(WithOptimisticConcurrency(tt.optimistic))
			m, err := repo.SaveMap(ctx, draftWith("7", "Default"))
			require.NoError(t, err)

			stale := m.Clone()
			_, err = repo.SaveMap(ctx, m)
			require.NoError(t, err)

			_, err = repo.SaveMap(ctx, stale)
			if tt.wantErr == nil {
				assert.NoError(t, err)
			} else {
				assert.ErrorIs(t, err, tt.wantErr)
			}
		})
	}
}

type failingStore struct {
	*MemoryStore
	err error
}

func (s *failingStore) Insert(context.Context, *models.BoundaryMap) error { return s.err }
func (s *failingStore) Update(context.Context, *models.BoundaryMap) error { return s.err }

func TestSaveMap_WrapsStoreFailures(t *testing.T) {
	ctx := context.Background()
	netErr := errors.New("connection reset")
	repo := NewRepository(&failingStore{MemoryStore: NewMemoryStore(), err: netErr})

	_, err := repo.SaveMap(ctx, draftWith("7", "Default"))
	assert.ErrorIs(t, err, models.ErrPersistence)
	assert.ErrorIs(t, err, netErr)
}

// activationFailStore rejects every explicit activation and fails the
// first failInserts inserts.
type activationFailStore struct {
	*MemoryStore
	failInserts int
}

func (s *activationFailStore) SetActive(context.Context, string, string) error {
	return errors.New("activation unavailable")
}

func (s *activationFailStore) Insert(ctx context.Context, m *models.BoundaryMap) error {
	if s.failInserts > 0 {
		s.failInserts--
		return errors.New("write conflict")
	}
	return s.MemoryStore.Insert(ctx, m)
}

func TestSaveMap_FirstMapActivatedOnInsert(t *testing.T) {
	ctx := context.Background()
	store := &activationFailStore{MemoryStore: NewMemoryStore(), failInserts: 1}
	repo := NewRepository(store)
	draft := draftWith("7", "Default", rectArea(0, 0.1, 0.1, 0.2, 0.2))

	_, err := repo.SaveMap(ctx, draft)
	require.ErrorIs(t, err, models.ErrPersistence)
	list, err := repo.ListMaps(ctx, "7")
	require.NoError(t, err)
	assert.Empty(t, list, "failed save leaves nothing behind")

	saved, err := repo.SaveMap(ctx, draft)
	require.NoError(t, err)
	assert.True(t, saved.Active)
	assert.Equal(t, []string{saved.ID}, activeIDs(t, repo, "7"))

	second, err := repo.SaveMap(ctx, draftWith("7", "Holiday"))
	require.NoError(t, err)
	assert.False(t, second.Active)
	assert.Equal(t, []string{saved.ID}, activeIDs(t, repo, "7"))
}

func TestRoomLocks(t *testing.T) {
	locks := newRoomLocks()
	ctx := context.Background()

	release, err := locks.acquire(ctx, "7")
	require.NoError(t, err)

	// other rooms are independent
	releaseOther, err := locks.acquire(ctx, "8")
	require.NoError(t, err)
	releaseOther()

	blocked, cancel := context.WithTimeout(ctx, 20*time.Millisecond)
	defer cancel()
	_, err = locks.acquire(blocked, "7")
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	acquired := make(chan struct{})
	go func() {
		r, err := locks.acquire(ctx, "7")
		if err == nil {
			r()
		}
		close(acquired)
	}()

	select {
	case <-acquired:
		t.Fatal("second holder acquired the lock before release")
	case <-time.After(20 * time.Millisecond):
	}
	release()
	select {
	case <-acquired:
	case <-time.After(time.Second):
		t.Fatal("lock was not handed over after release")
	}
	locks.mu.Lock()
	defer locks.mu.Unlock()
	assert.Empty(t, locks.rooms, "idle rooms are forgotten")
}
