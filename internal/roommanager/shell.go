// Package roommanager is the room manager shell around the boundary editor:
// it picks the room, wires the background image and editing session, and
// refuses to navigate away while any tab holds unsaved changes.
package roommanager

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/storefront-admin/backend/internal/dirty"
	"github.com/storefront-admin/backend/internal/editor"
	"github.com/storefront-admin/backend/internal/imagery"
	"github.com/storefront-admin/backend/internal/models"
	"github.com/storefront-admin/backend/internal/notify"
)

var (
	// ErrNavigationBlocked is returned when leaving a room was not
	// confirmed or its changes could not be saved.
	ErrNavigationBlocked = errors.New("navigation blocked by unsaved changes")
	// ErrNoRoom is returned when no room is open.
	ErrNoRoom = errors.New("no room is open")
	// ErrUnknownTab is returned for tabs the shell does not host.
	ErrUnknownTab = errors.New("unknown tab")
)

// Options configures a Shell.
type Options struct {
	// Container is the on-screen size the background is drawn into.
	Container models.Size
	// TargetAspect forces letterboxing to this width/height ratio when > 0.
	TargetAspect float64
	// CloseTolerance is the polygon closing distance in normalized units.
	CloseTolerance float64
	Notifier       notify.Sink
}

// Shell is the room manager. One room is open at a time.
type Shell struct {
	mu       sync.Mutex
	repo     editor.MapRepository
	images   imagery.Provider
	settings SettingsStore
	guard    *dirty.Guard
	opts     Options
	log      *slog.Logger

	room    string
	session *editor.Session
	tabs    map[dirty.TabID]*SettingsTab
	active  dirty.TabID
}

// NewShell creates a shell with no room open.
func NewShell(repo editor.MapRepository, images imagery.Provider, settings SettingsStore, guard *dirty.Guard, opts Options) *Shell {
	if opts.Notifier == nil {
		opts.Notifier = notify.Discard
	}
	return &Shell{
		repo:     repo,
		images:   images,
		settings: settings,
		guard:    guard,
		opts:     opts,
		log:      slog.With("component", "room-manager"),
		tabs:     make(map[dirty.TabID]*SettingsTab),
	}
}

// OpenRoom switches to roomID. If another room is open the guard is asked
// first; a canceled or failed close leaves the current room open and
// returns ErrNavigationBlocked.
func (s *Shell) OpenRoom(ctx context.Context, roomID string, decider dirty.Decider) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.room == roomID && s.session != nil {
		return nil
	}
	if s.session != nil {
		if err := s.closeLocked(ctx, decider); err != nil {
			return err
		}
	}

	bg, err := s.images.Resolve(ctx, roomID)
	if err != nil && !errors.Is(err, models.ErrNotFound) {
		s.opts.Notifier.Error("Could not load the room background", err)
	}
	ic := imagery.NewContext(bg, s.opts.Container, s.opts.TargetAspect)

	sessionOpts := []editor.SessionOption{
		editor.WithNotifier(s.opts.Notifier),
		editor.WithImageContext(ic),
		editor.WithTab(dirty.TabBoundaries),
	}
	if s.opts.CloseTolerance > 0 {
		sessionOpts = append(sessionOpts, editor.WithCloseTolerance(s.opts.CloseTolerance))
	}
	session := editor.NewSession(roomID, s.repo, s.guard, sessionOpts...)
	if err := session.Load(ctx, ""); err != nil {
		s.guard.Unregister(dirty.TabBoundaries)
		return err
	}

	tabs := make(map[dirty.TabID]*SettingsTab, 2)
	for _, tab := range []dirty.TabID{dirty.TabContent, dirty.TabVisuals} {
		t, err := openSettingsTab(ctx, roomID, tab, s.settings, s.guard)
		if err != nil {
			for id := range tabs {
				s.guard.Unregister(id)
			}
			s.guard.Unregister(dirty.TabBoundaries)
			return err
		}
		tabs[tab] = t
	}

	s.room = roomID
	s.session = session
	s.tabs = tabs
	s.active = dirty.TabBoundaries
	s.log.Info("room opened", "room", roomID, "background", bg.Ref)
	return nil
}

func (s *Shell) closeLocked(ctx context.Context, decider dirty.Decider) error {
	res, err := s.guard.AttemptClose(ctx, decider)
	if !res.Closed {
		s.log.Info("navigation blocked", "room", s.room, "decision", res.Decision.String())
		if err != nil {
			return fmt.Errorf("%w: %w", ErrNavigationBlocked, err)
		}
		return ErrNavigationBlocked
	}

	s.guard.Unregister(dirty.TabBoundaries)
	for id := range s.tabs {
		s.guard.Unregister(id)
	}
	s.log.Info("room closed", "room", s.room)
	s.room = ""
	s.session = nil
	s.tabs = make(map[dirty.TabID]*SettingsTab)
	s.active = ""
	return nil
}

// Close leaves the current room, subject to the guard.
func (s *Shell) Close(ctx context.Context, decider dirty.Decider) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.session == nil {
		return nil
	}
	return s.closeLocked(ctx, decider)
}

// SwitchTab changes the visible tab. Tabs keep their state; only leaving
// the room goes through the guard.
func (s *Shell) SwitchTab(tab dirty.TabID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.session == nil {
		return ErrNoRoom
	}
	if _, ok := s.tabs[tab]; !ok && tab != dirty.TabBoundaries {
		return fmt.Errorf("%w: %s", ErrUnknownTab, tab)
	}
	s.active = tab
	return nil
}

// ApplyEdit swaps in a completed background edit for the open room. Areas
// are normalized, so they stay where they are.
func (s *Shell) ApplyEdit(job imagery.Job) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.session == nil || job.RoomID != s.room {
		return false
	}
	return s.session.Image().Apply(job)
}

// Room returns the open room id, empty when none.
func (s *Shell) Room() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.room
}

// Session returns the boundary editor session of the open room.
func (s *Shell) Session() *editor.Session {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.session
}

// Settings returns a settings tab of the open room.
func (s *Shell) Settings(tab dirty.TabID) (*SettingsTab, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.tabs[tab]
	return t, ok
}

// ActiveTab returns the visible tab.
func (s *Shell) ActiveTab() dirty.TabID {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.active
}

// IsGlobalDirty reports whether any tab of the open room is dirty.
func (s *Shell) IsGlobalDirty() bool {
	return s.guard.IsGlobalDirty()
}
