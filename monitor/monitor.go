// Package monitor runs the focus monitor loop.
//
// The loop polls the foreground window and the focused element of the
// target application, drives mode transitions and announces focus changes.
// Polling intervals depend on the current state: short while a menu is
// open, long while the user is in another application.
package monitor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel/metric"
	"golang.org/x/time/rate"

	"go.aimuz.me/chatwatch/access"
	"go.aimuz.me/chatwatch/cache"
	"go.aimuz.me/chatwatch/internal/telemetry"
	"go.aimuz.me/chatwatch/mode"
)

// Config holds monitor settings. Zero values are replaced with defaults.
type Config struct {
	MenuPoll     time.Duration // interval while a menu is visible
	GracePoll    time.Duration // interval while a vanished menu is in grace
	InactivePoll time.Duration // interval while another application is active
	NormalPoll   time.Duration // interval otherwise

	MenuGrace       time.Duration // how long a menu may be unseen before leaving menu mode
	NavigationGrace time.Duration // how long a non-chat foreground is tolerated in a room
	MenuCheckTTL    time.Duration // how long a menu visibility answer is reused

	WarmupTimeout time.Duration
	QueryTimeout  time.Duration
	JoinTimeout   time.Duration

	Filter access.Filter
}

// DefaultConfig returns the default monitor configuration.
func DefaultConfig() Config {
	return Config{
		MenuPoll:        50 * time.Millisecond,
		GracePoll:       50 * time.Millisecond,
		InactivePoll:    500 * time.Millisecond,
		NormalPoll:      100 * time.Millisecond,
		MenuGrace:       time.Second,
		NavigationGrace: 300 * time.Millisecond,
		MenuCheckTTL:    100 * time.Millisecond,
		WarmupTimeout:   3 * time.Second,
		QueryTimeout:    2 * time.Second,
		JoinTimeout:     2 * time.Second,
	}
}

func (c *Config) applyDefaults() {
	d := DefaultConfig()
	set := func(v *time.Duration, def time.Duration) {
		if *v <= 0 {
			*v = def
		}
	}
	set(&c.MenuPoll, d.MenuPoll)
	set(&c.GracePoll, d.GracePoll)
	set(&c.InactivePoll, d.InactivePoll)
	set(&c.NormalPoll, d.NormalPoll)
	set(&c.MenuGrace, d.MenuGrace)
	set(&c.NavigationGrace, d.NavigationGrace)
	set(&c.MenuCheckTTL, d.MenuCheckTTL)
	set(&c.WarmupTimeout, d.WarmupTimeout)
	set(&c.QueryTimeout, d.QueryTimeout)
	set(&c.JoinTimeout, d.JoinTimeout)
}

// Announcer receives focus announcements. Immediate announcements must be
// spoken without batching.
type Announcer interface {
	Announce(text string, category access.Category, immediate bool)
}

// Options are the collaborators of a Monitor.
type Options struct {
	Windows   access.WindowClassifier
	Focus     access.FocusReader
	Snapshots *access.SnapshotCache
	Modes     *mode.Manager
	Menus     *cache.Cache[bool]
	Announcer Announcer
	Config    Config
	// Now overrides the clock, for tests.
	Now func() time.Time
}

// Monitor is the focus monitor loop.
type Monitor struct {
	windows   access.WindowClassifier
	focus     access.FocusReader
	snapshots *access.SnapshotCache
	modes     *mode.Manager
	menus     *cache.Cache[bool]
	announcer Announcer
	cfg       Config
	now       func() time.Time

	mu        sync.Mutex
	last      string    // normalized name of the last announcement
	navLostAt time.Time // when a room's window first lost the foreground

	running atomic.Bool
	cancel  context.CancelFunc
	quit    chan struct{}
	done    chan struct{}

	failLog rate.Sometimes
	ticks   metric.Int64Counter
	fails   metric.Int64Counter
}

// New creates a Monitor.
func New(opts Options) (*Monitor, error) {
	switch {
	case opts.Windows == nil:
		return nil, errors.New("monitor: window classifier required")
	case opts.Focus == nil:
		return nil, errors.New("monitor: focus reader required")
	case opts.Modes == nil:
		return nil, errors.New("monitor: mode manager required")
	case opts.Announcer == nil:
		return nil, errors.New("monitor: announcer required")
	}
	cfg := opts.Config
	cfg.applyDefaults()
	if opts.Snapshots == nil {
		opts.Snapshots = access.NewSnapshotCache(opts.Focus, cfg.QueryTimeout)
	}
	if opts.Menus == nil {
		opts.Menus = cache.New[bool](cache.Config{TTL: cfg.MenuCheckTTL})
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Monitor{
		windows:   opts.Windows,
		focus:     opts.Focus,
		snapshots: opts.Snapshots,
		modes:     opts.Modes,
		menus:     opts.Menus,
		announcer: opts.Announcer,
		cfg:       cfg,
		now:       opts.Now,
		failLog:   rate.Sometimes{Interval: 5 * time.Second},
		ticks:     telemetry.Counter("chatwatch.monitor.ticks", "Focus monitor ticks"),
		fails:     telemetry.Counter("chatwatch.monitor.query_failures", "Failed accessibility queries"),
	}, nil
}

// ─────────────────────────────────────────────────────────────────────────────
// Lifecycle
// ─────────────────────────────────────────────────────────────────────────────

// Start launches the loop. It returns immediately; the first tick runs
// after warm-up.
func (m *Monitor) Start() error {
	if !m.running.CompareAndSwap(false, true) {
		return errors.New("monitor already running")
	}
	ctx, cancel := context.WithCancel(context.Background())
	m.cancel = cancel
	m.quit = make(chan struct{})
	m.done = make(chan struct{})

	go m.run(ctx, m.quit, m.done)
	slog.Info("focus monitor started")
	return nil
}

// Stop ends the loop and waits a bounded time for it. A loop stuck in a
// backend call is left to exit on its own.
func (m *Monitor) Stop() {
	if !m.running.CompareAndSwap(true, false) {
		return
	}
	m.cancel()
	close(m.quit)

	if m.join() {
		slog.Info("focus monitor stopped")
		return
	}
	m.running.Store(false)
	if m.join() {
		slog.Info("focus monitor stopped late")
		return
	}
	slog.Warn("focus monitor did not stop in time")
}

// Running reports whether the loop is running.
func (m *Monitor) Running() bool {
	return m.running.Load()
}

func (m *Monitor) join() bool {
	select {
	case <-m.done:
		return true
	case <-time.After(m.cfg.JoinTimeout):
		return false
	}
}

func (m *Monitor) run(ctx context.Context, quit, done chan struct{}) {
	defer close(done)

	if !m.warmup(ctx, quit) {
		return
	}

	timer := time.NewTimer(0)
	defer timer.Stop()
	for {
		select {
		case <-quit:
			return
		case <-timer.C:
		}
		if !m.running.Load() {
			return
		}
		timer.Reset(m.safeTick(ctx))
	}
}

// warmup waits for the first successful focus query or WarmupTimeout.
func (m *Monitor) warmup(ctx context.Context, quit chan struct{}) bool {
	start := time.Now()
	deadline := time.NewTimer(m.cfg.WarmupTimeout)
	defer deadline.Stop()

	for {
		if _, err := access.ReadFocus(ctx, m.snapshots, m.focus, m.cfg.QueryTimeout); err == nil {
			slog.Debug("accessibility warm-up done", "took", time.Since(start))
			return true
		}
		select {
		case <-quit:
			return false
		case <-deadline.C:
			slog.Debug("accessibility warm-up timed out", "timeout", m.cfg.WarmupTimeout)
			return true
		case <-time.After(m.cfg.NormalPoll):
		}
	}
}

func (m *Monitor) safeTick(ctx context.Context) (next time.Duration) {
	defer func() {
		if r := recover(); r != nil {
			slog.Error("focus monitor tick panicked", "panic", r)
			next = m.cfg.NormalPoll
		}
	}()
	return m.Tick(ctx)
}

// ─────────────────────────────────────────────────────────────────────────────
// Tick
// ─────────────────────────────────────────────────────────────────────────────

// Tick runs one monitor step and returns how long to sleep before the
// next one. Failed queries count as "no value".
func (m *Monitor) Tick(ctx context.Context) time.Duration {
	m.ticks.Add(ctx, 1)

	if m.menuVisible(ctx) {
		if m.modes.ContextMenuActive() {
			m.modes.UpdateMenuSeen()
		} else {
			m.modes.EnterContextMenu()
		}
		if snap, ok := m.readFocus(ctx); ok {
			m.announce(ctx, snap, true)
		}
		return m.cfg.MenuPoll
	}

	if m.modes.ContextMenuActive() {
		// Submenus briefly hide the menu window.
		if !m.modes.ShouldExitByGrace(m.cfg.MenuGrace) {
			return m.cfg.GracePoll
		}
		m.modes.ExitContextMenu()
		m.clearLast()
	}

	info, ok := m.foreground(ctx)
	if !ok || info.Kind == access.WindowNone {
		m.modes.ExitNavigation()
		if m.modes.ContextMenuActive() {
			m.modes.ExitContextMenu()
		}
		m.clearLast()
		return m.cfg.InactivePoll
	}

	m.checkRoom(ctx, info)

	if snap, ok := m.readFocus(ctx); ok {
		switch snap.Category {
		case access.CategoryListItem, access.CategoryTabItem:
			m.announce(ctx, snap, false)
		}
	}
	return m.cfg.NormalPoll
}

func (m *Monitor) checkRoom(ctx context.Context, info access.WindowInfo) {
	current, navigating := m.modes.NavigationActive()

	if info.Kind == access.WindowChat {
		m.setNavLost(time.Time{})
		if !navigating || current != info.Handle {
			m.modes.EnterNavigation(ctx, info.Handle)
		}
		return
	}
	if !navigating {
		m.setNavLost(time.Time{})
		return
	}

	// Closing a menu can flicker the foreground away from the room.
	now := m.now()
	m.mu.Lock()
	if m.navLostAt.IsZero() {
		m.navLostAt = now
	}
	g := mode.GracePeriod{Reference: m.navLostAt, Duration: m.cfg.NavigationGrace}
	m.mu.Unlock()

	if g.Elapsed(now) {
		m.setNavLost(time.Time{})
		m.modes.ExitNavigation()
	}
}

func (m *Monitor) announce(ctx context.Context, snap access.FocusSnapshot, immediate bool) {
	if !m.cfg.Filter.Allows(snap) {
		return
	}
	name := snap.DisplayName
	if snap.Category == access.CategoryMenuItem {
		name = access.StripAccelerator(name)
	}
	name = access.NormalizeName(name)

	m.mu.Lock()
	if name == m.last {
		m.mu.Unlock()
		return
	}
	m.last = name
	m.mu.Unlock()

	text := name
	if snap.Category == access.CategoryTabItem && m.selected(ctx) {
		text = fmt.Sprintf("%s, selected", name)
	}
	m.announcer.Announce(text, snap.Category, immediate)
}

func (m *Monitor) clearLast() {
	m.mu.Lock()
	m.last = ""
	m.mu.Unlock()
}

func (m *Monitor) setNavLost(t time.Time) {
	m.mu.Lock()
	m.navLostAt = t
	m.mu.Unlock()
}

// LastAnnounced returns the normalized name of the last focus announcement.
func (m *Monitor) LastAnnounced() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.last
}

// ─────────────────────────────────────────────────────────────────────────────
// Queries
// ─────────────────────────────────────────────────────────────────────────────

// menuVisible asks the classifier at most once per MenuCheckTTL. The key
// carries the time bucket because cache reads refresh their TTL.
func (m *Monitor) menuVisible(ctx context.Context) bool {
	bucket := m.now().UnixNano() / int64(m.cfg.MenuCheckTTL)
	v, err := m.menus.GetOrCompute(cache.Key("menu", bucket), func() (bool, error) {
		return access.Query(ctx, m.cfg.QueryTimeout, m.windows.MenuVisible)
	})
	if err != nil {
		m.failed("menu check", err)
		return false
	}
	return v
}

func (m *Monitor) foreground(ctx context.Context) (access.WindowInfo, bool) {
	info, err := access.Query(ctx, m.cfg.QueryTimeout, func(ctx context.Context) (access.WindowInfo, error) {
		hwnd, err := m.windows.Foreground(ctx)
		if err != nil {
			return access.WindowInfo{}, err
		}
		return m.windows.Classify(ctx, hwnd)
	})
	if err != nil {
		m.failed("foreground window", err)
		return access.WindowInfo{}, false
	}
	return info, true
}

func (m *Monitor) readFocus(ctx context.Context) (access.FocusSnapshot, bool) {
	snap, err := access.ReadFocus(ctx, m.snapshots, m.focus, m.cfg.QueryTimeout)
	if err != nil {
		m.failed("focused element", err)
		return access.FocusSnapshot{}, false
	}
	return snap, true
}

func (m *Monitor) selected(ctx context.Context) bool {
	ok, err := access.Query(ctx, m.cfg.QueryTimeout, m.focus.FocusedSelected)
	if err != nil {
		m.failed("selection state", err)
		return false
	}
	return ok
}

func (m *Monitor) failed(what string, err error) {
	m.fails.Add(context.Background(), 1)
	m.failLog.Do(func() {
		if access.IsTransient(err) || errors.Is(err, access.ErrUnsupported) {
			slog.Debug("query failed", "query", what, "error", err)
			return
		}
		slog.Warn("query failed", "query", what, "error", err)
	})
}
