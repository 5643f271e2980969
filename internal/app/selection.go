package app

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"go.aimuz.me/chatwatch/internal/types"
)

// SelectionHandler acts on a digit chosen in selection mode, for example
// by clicking the matching emoji.
type SelectionHandler interface {
	Select(ctx context.Context, index int) error
}

// SelectionFunc adapts a function to SelectionHandler.
type SelectionFunc func(ctx context.Context, index int) error

func (f SelectionFunc) Select(ctx context.Context, index int) error { return f(ctx, index) }

// ErrNoSelectionHandler is returned when no handler is installed.
var ErrNoSelectionHandler = errors.New("no selection handler")

// SelectionAdapter runs one selection at a time.
type SelectionAdapter struct {
	mu      sync.Mutex
	handler SelectionHandler
	busy    bool
}

// NewSelectionAdapter wraps handler, which may be nil.
func NewSelectionAdapter(handler SelectionHandler) *SelectionAdapter {
	return &SelectionAdapter{handler: handler}
}

// Run calls the handler unless a selection is already running.
func (sa *SelectionAdapter) Run(ctx context.Context, index int) (bool, error) {
	sa.mu.Lock()
	if sa.busy {
		sa.mu.Unlock()
		return false, nil
	}
	if sa.handler == nil {
		sa.mu.Unlock()
		return true, ErrNoSelectionHandler
	}
	sa.busy = true
	h := sa.handler
	sa.mu.Unlock()

	defer func() {
		sa.mu.Lock()
		sa.busy = false
		sa.mu.Unlock()
	}()
	return true, h.Select(ctx, index)
}

// ─────────────────────────────────────────────────────────────────────────────
// Modes
// ─────────────────────────────────────────────────────────────────────────────

// EnterSelection turns selection mode on; digits 1 to 9 pick an item.
func (s *Service) EnterSelection() {
	if s.modes.SelectionActive() {
		return
	}
	s.modes.EnterSelection()
	s.speak("Selection mode", types.CategoryStatus)
}

// ExitSelection turns selection mode off.
func (s *Service) ExitSelection() {
	s.modes.ExitSelection()
}

func (s *Service) handleModeChange(st types.ModeStatus) {
	s.mu.Lock()
	prev := s.status
	s.status = st
	s.mu.Unlock()

	if s.hotkey != nil && st.Selection != prev.Selection {
		if st.Selection {
			s.hotkey.EnableNumeric(s.selectDigit)
		} else {
			s.hotkey.DisableNumeric()
		}
	}

	slog.Debug("mode changed", "mode", st.Label())
	s.emitEvent(EventModeChanged, st)
}

func (s *Service) selectDigit(digit int) {
	if !s.modes.SelectionActive() {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	ran, err := s.selection.Run(ctx, digit)
	if !ran {
		return
	}
	if err != nil {
		slog.Warn("select item", "index", digit, "error", err)
		s.speak("Selection failed", types.CategoryStatus)
	}
	s.modes.ExitSelection()
}
