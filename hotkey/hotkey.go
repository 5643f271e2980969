// Package hotkey provides global hotkeys: the numeric keys used in
// selection mode and a combination that repeats the last announcement.
//
// gohook registrations are process-wide and cannot be removed one by one,
// so every key is registered once at Start and gated by the manager.
package hotkey

import (
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"sync"

	hook "github.com/robotn/gohook"
)

// ErrRunning is returned by Start when the hook is already running.
var ErrRunning = errors.New("hotkey: already running")

// DefaultRepeat is the default repeat-last combination.
const DefaultRepeat = "ctrl+shift+r"

// Manager owns the global keyboard hook.
type Manager struct {
	repeat   []string
	onRepeat func()

	mu      sync.Mutex
	numeric func(digit int)
	running bool
	done    chan struct{}
}

// NewManager creates a manager. combo is a "+" separated key list such as
// "ctrl+shift+r"; onRepeat is called when it is pressed.
func NewManager(combo string, onRepeat func()) (*Manager, error) {
	if combo == "" {
		combo = DefaultRepeat
	}
	keys, err := ParseCombo(combo)
	if err != nil {
		return nil, err
	}
	return &Manager{repeat: keys, onRepeat: onRepeat}, nil
}

// ParseCombo splits a combination into gohook key names, main key first.
func ParseCombo(combo string) ([]string, error) {
	var mods []string
	var key string
	for _, p := range strings.Split(strings.ToLower(combo), "+") {
		p = strings.TrimSpace(p)
		switch p {
		case "":
			return nil, fmt.Errorf("invalid hotkey %q", combo)
		case "ctrl", "shift", "alt", "cmd":
			mods = append(mods, p)
		default:
			if key != "" {
				return nil, fmt.Errorf("hotkey %q has more than one key", combo)
			}
			key = p
		}
	}
	if key == "" {
		return nil, fmt.Errorf("hotkey %q has no key", combo)
	}
	return append([]string{key}, mods...), nil
}

// Start installs the hook and processes events in the background.
func (m *Manager) Start() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.running {
		return ErrRunning
	}

	for d := 1; d <= 9; d++ {
		key := strconv.Itoa(d)
		hook.Register(hook.KeyDown, []string{key}, func(hook.Event) { m.pressDigit(key) })
	}
	hook.Register(hook.KeyDown, m.repeat, func(hook.Event) { m.pressRepeat() })

	events := hook.Start()
	m.done = make(chan struct{})
	m.running = true
	go func(done chan struct{}) {
		defer close(done)
		<-hook.Process(events)
	}(m.done)

	slog.Info("hotkeys started", "repeat", strings.Join(m.repeat, "+"))
	return nil
}

// Stop removes the hook.
func (m *Manager) Stop() {
	m.mu.Lock()
	if !m.running {
		m.mu.Unlock()
		return
	}
	m.running = false
	done := m.done
	m.mu.Unlock()

	hook.End()
	<-done
	slog.Info("hotkeys stopped")
}

// EnableNumeric routes digits 1 to 9 to fn until DisableNumeric.
func (m *Manager) EnableNumeric(fn func(digit int)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.numeric = fn
}

// DisableNumeric stops routing digits. Keys pass through untouched.
func (m *Manager) DisableNumeric() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.numeric = nil
}

// NumericEnabled reports whether digits are routed.
func (m *Manager) NumericEnabled() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.numeric != nil
}

// Handlers run off the hook goroutine so a slow one cannot stall input.
func (m *Manager) pressDigit(key string) {
	d, err := strconv.Atoi(key)
	if err != nil || d < 1 || d > 9 {
		return
	}
	m.mu.Lock()
	fn := m.numeric
	m.mu.Unlock()
	if fn != nil {
		go fn(d)
	}
}

func (m *Manager) pressRepeat() {
	if m.onRepeat != nil {
		go m.onRepeat()
	}
}
