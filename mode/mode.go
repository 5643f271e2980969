// Package mode tracks which interaction mode the user is in.
//
// Three modes exist side by side: Selection (numeric keys pick an item),
// Navigation (a chat room is open and its message list is watched) and
// ContextMenu (a popup menu of the target application is open). Entering a
// chat room always abandons Selection; an open menu pauses the room's
// watcher instead of stopping it.
//
// Locks guard only the in-memory state. Calls into rooms and watchers run
// outside them, and a failed call leaves the state as it was.
package mode

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"go.aimuz.me/chatwatch/access"
	"go.aimuz.me/chatwatch/internal/types"
)

// Watcher watches one room's message list.
type Watcher interface {
	// Start begins watching and reports whether event subscription worked.
	Start(onMessage func(types.MessageEvent)) bool
	Stop()
	// Pause stops delivery; with wait set it blocks until no further
	// events are possible or a bound passes, and reports which.
	Pause(wait bool) bool
	Resume()
}

// Rooms acquires and releases chat rooms.
type Rooms interface {
	Open(ctx context.Context, hwnd access.WindowHandle) (Watcher, error)
	Release(hwnd access.WindowHandle)
}

// Options configures a Manager.
type Options struct {
	Rooms     Rooms
	OnMessage func(types.MessageEvent)
	// OnChange is called after every transition, outside any lock.
	OnChange func(types.ModeStatus)
	// Now overrides the clock, for tests.
	Now func() time.Time
}

// Manager holds the interaction mode. It is safe for concurrent use.
type Manager struct {
	rooms     Rooms
	onMessage func(types.MessageEvent)
	onChange  func(types.ModeStatus)
	now       func() time.Time

	mu          sync.Mutex
	selection   bool
	navigation  bool
	chat        access.WindowHandle
	watcher     Watcher
	contextMenu bool
	menuSeenAt  time.Time
}

// New creates a Manager.
func New(opts Options) (*Manager, error) {
	if opts.Rooms == nil {
		return nil, errors.New("mode: rooms required")
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Manager{
		rooms:     opts.Rooms,
		onMessage: opts.OnMessage,
		onChange:  opts.OnChange,
		now:       opts.Now,
	}, nil
}

// Status returns a snapshot of all modes.
func (m *Manager) Status() types.ModeStatus {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.statusLocked()
}

func (m *Manager) statusLocked() types.ModeStatus {
	s := types.ModeStatus{
		Selection:   m.selection,
		Navigation:  m.navigation,
		ContextMenu: m.contextMenu,
	}
	if m.navigation {
		s.ChatHandle = m.chat
	}
	return s
}

// SelectionActive reports whether Selection mode is on.
func (m *Manager) SelectionActive() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.selection
}

// NavigationActive returns the watched chat window and whether Navigation
// mode is on.
func (m *Manager) NavigationActive() (access.WindowHandle, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.chat, m.navigation
}

// ContextMenuActive reports whether ContextMenu mode is on.
func (m *Manager) ContextMenuActive() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.contextMenu
}

// ─────────────────────────────────────────────────────────────────────────────
// Selection
// ─────────────────────────────────────────────────────────────────────────────

// EnterSelection turns Selection mode on. The caller wires numeric keys.
func (m *Manager) EnterSelection() {
	m.mu.Lock()
	if m.selection {
		m.mu.Unlock()
		return
	}
	m.selection = true
	s := m.statusLocked()
	m.mu.Unlock()

	slog.Debug("selection mode entered")
	m.notify(s)
}

// ExitSelection turns Selection mode off.
func (m *Manager) ExitSelection() {
	m.mu.Lock()
	if !m.selection {
		m.mu.Unlock()
		return
	}
	m.selection = false
	s := m.statusLocked()
	m.mu.Unlock()

	slog.Debug("selection mode exited")
	m.notify(s)
}

// ─────────────────────────────────────────────────────────────────────────────
// Navigation
// ─────────────────────────────────────────────────────────────────────────────

// EnterNavigation starts watching the chat room in hwnd. It is a no-op when
// that room is already watched. Selection mode is abandoned first. If the
// room's message list cannot be acquired the navigation state, including a
// room already being watched, is unchanged and false is returned.
func (m *Manager) EnterNavigation(ctx context.Context, hwnd access.WindowHandle) bool {
	m.mu.Lock()
	if m.navigation && m.chat == hwnd {
		m.mu.Unlock()
		return true
	}
	selecting := m.selection
	m.mu.Unlock()

	if selecting {
		m.ExitSelection()
	}

	// The new room is acquired before the current one is let go, so a
	// failure leaves the current room watched.
	w, err := m.rooms.Open(ctx, hwnd)
	if err != nil {
		slog.Debug("open chat room", "hwnd", hwnd, "error", err)
		return false
	}

	if !w.Start(m.onMessage) {
		slog.Warn("message events unavailable, watching room without them", "hwnd", hwnd)
	}

	m.mu.Lock()
	if m.navigation && m.chat == hwnd {
		// Another EnterNavigation got here first with the same room.
		m.mu.Unlock()
		w.Stop()
		return true
	}
	prev, prevHwnd, switching := m.watcher, m.chat, m.navigation
	m.navigation = true
	m.chat = hwnd
	m.watcher = w
	inMenu := m.contextMenu
	s := m.statusLocked()
	m.mu.Unlock()

	if switching {
		if prev != nil {
			prev.Stop()
		}
		m.rooms.Release(prevHwnd)
		slog.Info("navigation mode exited", "hwnd", prevHwnd)
	}
	if inMenu {
		w.Pause(false)
	}

	slog.Info("navigation mode entered", "hwnd", hwnd)
	m.notify(s)
	return true
}

// ExitNavigation stops watching the current room and releases it.
func (m *Manager) ExitNavigation() {
	m.mu.Lock()
	if !m.navigation {
		m.mu.Unlock()
		return
	}
	w, hwnd := m.watcher, m.chat
	m.navigation = false
	m.chat = 0
	m.watcher = nil
	s := m.statusLocked()
	m.mu.Unlock()

	if w != nil {
		w.Stop()
	}
	m.rooms.Release(hwnd)

	slog.Info("navigation mode exited", "hwnd", hwnd)
	m.notify(s)
}

// ─────────────────────────────────────────────────────────────────────────────
// Context menu
// ─────────────────────────────────────────────────────────────────────────────

// EnterContextMenu turns ContextMenu mode on and pauses the room watcher so
// menu navigation is not mistaken for new messages.
func (m *Manager) EnterContextMenu() {
	m.mu.Lock()
	if m.contextMenu {
		m.mu.Unlock()
		return
	}
	m.contextMenu = true
	m.menuSeenAt = m.now()
	w := m.watcher
	s := m.statusLocked()
	m.mu.Unlock()

	if w != nil && !w.Pause(true) {
		slog.Warn("message watcher did not confirm pause")
	}

	slog.Debug("context menu mode entered")
	m.notify(s)
}

// ExitContextMenu turns ContextMenu mode off and resumes the room watcher.
func (m *Manager) ExitContextMenu() {
	m.mu.Lock()
	if !m.contextMenu {
		m.mu.Unlock()
		return
	}
	m.contextMenu = false
	m.menuSeenAt = m.now()
	w := m.watcher
	s := m.statusLocked()
	m.mu.Unlock()

	if w != nil {
		w.Resume()
	}

	slog.Debug("context menu mode exited")
	m.notify(s)
}

// UpdateMenuSeen records that the menu is still on screen.
func (m *Manager) UpdateMenuSeen() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.menuSeenAt = m.now()
}

// ShouldExitByGrace reports whether more than d has passed since the menu
// was last seen.
func (m *Manager) ShouldExitByGrace(d time.Duration) bool {
	m.mu.Lock()
	g := GracePeriod{Reference: m.menuSeenAt, Duration: d}
	m.mu.Unlock()
	return g.Elapsed(m.now())
}

// Close leaves every mode, stopping any watcher.
func (m *Manager) Close() {
	m.ExitContextMenu()
	m.ExitNavigation()
	m.ExitSelection()
}

func (m *Manager) notify(s types.ModeStatus) {
	if m.onChange != nil {
		m.onChange(s)
	}
}
