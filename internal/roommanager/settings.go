package roommanager

import (
	"context"
	"fmt"
	"log/slog"
	"maps"
	"sync"

	"github.com/storefront-admin/backend/internal/dirty"
)

// SettingsStore loads and saves the key/value settings behind the content
// and visuals tabs. The real implementation is an external settings API.
type SettingsStore interface {
	LoadSettings(ctx context.Context, roomID string, tab dirty.TabID) (map[string]string, error)
	SaveSettings(ctx context.Context, roomID string, tab dirty.TabID, values map[string]string) error
}

// MemorySettingsStore keeps settings in process memory.
type MemorySettingsStore struct {
	mu   sync.RWMutex
	data map[string]map[string]string
}

func NewMemorySettingsStore() *MemorySettingsStore {
	return &MemorySettingsStore{data: make(map[string]map[string]string)}
}

func settingsKey(roomID string, tab dirty.TabID) string {
	return roomID + "/" + string(tab)
}

func (m *MemorySettingsStore) LoadSettings(ctx context.Context, roomID string, tab dirty.TabID) (map[string]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make(map[string]string)
	maps.Copy(out, m.data[settingsKey(roomID, tab)])
	return out, nil
}

func (m *MemorySettingsStore) SaveSettings(ctx context.Context, roomID string, tab dirty.TabID, values map[string]string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data[settingsKey(roomID, tab)] = maps.Clone(values)
	return nil
}

// SettingsTab is the editing state of one settings tab. Its dirty flag
// lives in the shared guard next to the boundary editor's.
type SettingsTab struct {
	mu       sync.Mutex
	roomID   string
	tab      dirty.TabID
	store    SettingsStore
	guard    *dirty.Guard
	baseline map[string]string
	values   map[string]string
	log      *slog.Logger
}

func openSettingsTab(ctx context.Context, roomID string, tab dirty.TabID, store SettingsStore, guard *dirty.Guard) (*SettingsTab, error) {
	values, err := store.LoadSettings(ctx, roomID, tab)
	if err != nil {
		return nil, fmt.Errorf("loading %s settings: %w", tab, err)
	}
	if values == nil {
		values = make(map[string]string)
	}
	t := &SettingsTab{
		roomID:   roomID,
		tab:      tab,
		store:    store,
		guard:    guard,
		baseline: maps.Clone(values),
		values:   values,
		log:      slog.With("component", "settings-tab", "room", roomID, "tab", tab),
	}
	guard.Register(tab, dirty.Handlers{Save: t.Save, Discard: t.Discard})
	if err := guard.SetBaseline(tab, t.baseline); err != nil {
		return nil, err
	}
	return t, nil
}

// Tab returns the guard tab id.
func (t *SettingsTab) Tab() dirty.TabID { return t.tab }

func (t *SettingsTab) observeLocked() {
	if err := t.guard.Observe(t.tab, t.values); err != nil {
		t.log.Warn("observing settings failed", "error", err)
	}
}

// Set changes one value.
func (t *SettingsTab) Set(key, value string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.values[key] = value
	t.observeLocked()
}

// Delete removes one value.
func (t *SettingsTab) Delete(key string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.values, key)
	t.observeLocked()
}

// Values returns a copy of the live values.
func (t *SettingsTab) Values() map[string]string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return maps.Clone(t.values)
}

// Save persists the live values and makes them the new baseline.
func (t *SettingsTab) Save(ctx context.Context) error {
	t.mu.Lock()
	values := maps.Clone(t.values)
	t.mu.Unlock()

	if err := t.store.SaveSettings(ctx, t.roomID, t.tab, values); err != nil {
		return fmt.Errorf("saving %s settings: %w", t.tab, err)
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	t.baseline = values
	if err := t.guard.SetBaseline(t.tab, t.baseline); err != nil {
		return err
	}
	t.observeLocked()
	return nil
}

// Discard restores the last loaded-or-saved values.
func (t *SettingsTab) Discard(context.Context) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.values = maps.Clone(t.baseline)
	t.observeLocked()
	return nil
}
