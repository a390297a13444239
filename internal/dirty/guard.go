package dirty

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"

	"golang.org/x/sync/errgroup"
)

// TabID names an editor tab within a Room Manager session.
type TabID string

const (
	TabBoundaries TabID = "boundaries"
	TabContent    TabID = "content"
	TabVisuals    TabID = "visuals"
)

// Handlers are the tab callbacks the guard invokes on a close decision.
// Save must persist the tab and move its baseline (via SetBaseline) on
// success. Discard restores the tab's live state to its baseline.
type Handlers struct {
	Save    func(ctx context.Context) error
	Discard func(ctx context.Context) error
}

// Decision is the operator's answer to a blocked close.
type Decision int

const (
	DecisionCancel Decision = iota
	DecisionSave
	DecisionDiscard
)

func (d Decision) String() string {
	switch d {
	case DecisionSave:
		return "save"
	case DecisionDiscard:
		return "discard"
	default:
		return "cancel"
	}
}

// Decider surfaces the save-or-discard choice to the operator.
type Decider interface {
	Decide(ctx context.Context, dirtyTabs []TabID) Decision
}

// DeciderFunc adapts a function to Decider.
type DeciderFunc func(ctx context.Context, dirtyTabs []TabID) Decision

// Decide calls f.
func (f DeciderFunc) Decide(ctx context.Context, dirtyTabs []TabID) Decision {
	return f(ctx, dirtyTabs)
}

// CloseResult describes what AttemptClose did.
type CloseResult struct {
	Closed   bool
	Decision Decision
	Prompted bool
	Failed   map[TabID]error
}

// ErrNoSaveHandler is reported for a dirty tab registered without Save.
var ErrNoSaveHandler = errors.New("tab has no save handler")

type tabState struct {
	baseline []byte
	current  []byte
	dirty    bool
	handlers Handlers
}

// Guard holds a baseline per tab and derives dirty flags from structural
// comparison of current state against it.
type Guard struct {
	mu   sync.RWMutex
	tabs map[TabID]*tabState
	log  *slog.Logger
}

// NewGuard creates an empty guard.
func NewGuard() *Guard {
	return &Guard{
		tabs: make(map[TabID]*tabState),
		log:  slog.With("component", "dirty-guard"),
	}
}

// Register adds (or re-registers) a tab. Its state starts clean.
func (g *Guard) Register(id TabID, h Handlers) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if t, ok := g.tabs[id]; ok {
		t.handlers = h
		return
	}
	g.tabs[id] = &tabState{handlers: h}
}

// Unregister drops a tab.
func (g *Guard) Unregister(id TabID) {
	g.mu.Lock()
	defer g.mu.Unlock()
	delete(g.tabs, id)
}

func (g *Guard) tab(id TabID) *tabState {
	t, ok := g.tabs[id]
	if !ok {
		t = &tabState{}
		g.tabs[id] = t
	}
	return t
}

// SetBaseline records the last loaded-or-saved state for a tab. The live
// state becomes equal to it, so the tab is clean afterwards.
func (g *Guard) SetBaseline(id TabID, state any) error {
	snap, err := Snapshot(state)
	if err != nil {
		return err
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	t := g.tab(id)
	t.baseline = snap
	t.current = snap
	t.dirty = false
	return nil
}

// Observe records the live state of a tab and recomputes its dirty flag.
func (g *Guard) Observe(id TabID, state any) error {
	snap, err := Snapshot(state)
	if err != nil {
		return err
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	t := g.tab(id)
	t.current = snap
	t.dirty = !bytes.Equal(t.current, t.baseline)
	return nil
}

// IsDirty reports whether a tab differs from its baseline.
func (g *Guard) IsDirty(id TabID) bool {
	g.mu.RLock()
	defer g.mu.RUnlock()
	t, ok := g.tabs[id]
	return ok && t.dirty
}

// IsGlobalDirty folds all tab flags with OR.
func (g *Guard) IsGlobalDirty() bool {
	g.mu.RLock()
	defer g.mu.RUnlock()
	for _, t := range g.tabs {
		if t.dirty {
			return true
		}
	}
	return false
}

// DirtyTabs lists dirty tabs in name order.
func (g *Guard) DirtyTabs() []TabID {
	g.mu.RLock()
	defer g.mu.RUnlock()
	var ids []TabID
	for id, t := range g.tabs {
		if t.dirty {
			ids = append(ids, id)
		}
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

// markClean resets a tab's live state to its baseline.
func (g *Guard) markClean(id TabID) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if t, ok := g.tabs[id]; ok {
		t.current = t.baseline
		t.dirty = false
	}
}

func (g *Guard) handlers(id TabID) Handlers {
	g.mu.RLock()
	defer g.mu.RUnlock()
	if t, ok := g.tabs[id]; ok {
		return t.handlers
	}
	return Handlers{}
}

// AttemptClose closes immediately when nothing is dirty. Otherwise it asks
// the decider: Save runs every dirty tab's save handler and closes only if
// all succeed and nothing is dirty afterwards; Discard restores every dirty
// tab and closes; Cancel keeps the editor open. The returned error joins
// any save or discard failures.
func (g *Guard) AttemptClose(ctx context.Context, decider Decider) (CloseResult, error) {
	dirtyTabs := g.DirtyTabs()
	if len(dirtyTabs) == 0 {
		return CloseResult{Closed: true}, nil
	}
	if decider == nil {
		return CloseResult{Decision: DecisionCancel}, nil
	}

	decision := decider.Decide(ctx, dirtyTabs)
	result := CloseResult{Decision: decision, Prompted: true}
	g.log.Debug("close intercepted", "dirty_tabs", dirtyTabs, "decision", decision.String())

	switch decision {
	case DecisionSave:
		result.Failed = g.saveAll(ctx, dirtyTabs)
		result.Closed = len(result.Failed) == 0 && !g.IsGlobalDirty()
	case DecisionDiscard:
		result.Failed = g.discardAll(ctx, dirtyTabs)
		result.Closed = len(result.Failed) == 0
	default:
		return result, nil
	}

	if len(result.Failed) == 0 {
		return result, nil
	}
	errs := make([]error, 0, len(result.Failed))
	for _, id := range dirtyTabs {
		if err, ok := result.Failed[id]; ok {
			errs = append(errs, fmt.Errorf("tab %s: %w", id, err))
		}
	}
	return result, errors.Join(errs...)
}

func (g *Guard) saveAll(ctx context.Context, ids []TabID) map[TabID]error {
	var (
		mu     sync.Mutex
		failed = make(map[TabID]error)
	)
	// Tabs save independently; one failure does not cancel the others.
	var eg errgroup.Group
	for _, id := range ids {
		id := id
		h := g.handlers(id)
		eg.Go(func() error {
			var err error
			if h.Save == nil {
				err = ErrNoSaveHandler
			} else {
				err = h.Save(ctx)
			}
			if err != nil {
				mu.Lock()
				failed[id] = err
				mu.Unlock()
				g.log.Warn("save on close failed", "tab", id, "error", err)
			}
			return err
		})
	}
	_ = eg.Wait()
	if len(failed) == 0 {
		return nil
	}
	return failed
}

func (g *Guard) discardAll(ctx context.Context, ids []TabID) map[TabID]error {
	failed := make(map[TabID]error)
	for _, id := range ids {
		h := g.handlers(id)
		if h.Discard != nil {
			if err := h.Discard(ctx); err != nil {
				failed[id] = err
				continue
			}
		}
		g.markClean(id)
	}
	if len(failed) == 0 {
		return nil
	}
	return failed
}
