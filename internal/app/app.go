// Package app wires the monitoring core into a running service.
package app

import (
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"sync"

	"go.aimuz.me/chatwatch/access"
	"go.aimuz.me/chatwatch/cache"
	"go.aimuz.me/chatwatch/coalesce"
	"go.aimuz.me/chatwatch/config"
	"go.aimuz.me/chatwatch/history"
	"go.aimuz.me/chatwatch/hotkey"
	"go.aimuz.me/chatwatch/internal/types"
	"go.aimuz.me/chatwatch/mode"
	"go.aimuz.me/chatwatch/monitor"
	"go.aimuz.me/chatwatch/msglist"
	"go.aimuz.me/chatwatch/speech"
)

// Hotkeys is the global keyboard hook.
type Hotkeys interface {
	Start() error
	Stop()
	EnableNumeric(fn func(digit int))
	DisableNumeric()
}

// Options configures a Service.
type Options struct {
	Config  *config.Config
	Backend access.Backend
	// Sink speaks announcements. Nil logs them.
	Sink speech.Sink
	// Hotkeys overrides the gohook manager built from Config.
	Hotkeys Hotkeys
	// Selection handles digits pressed in selection mode.
	Selection SelectionHandler
	// Emit forwards events to the UI. May be nil.
	Emit func(name string, data any)
	// HistoryDir overrides the history location from Config.
	HistoryDir string
}

// Service owns every component and their lifecycles.
// This struct focuses on orchestration; behaviour lives in the packages.
type Service struct {
	cfg  *config.Config
	emit func(name string, data any)

	announcer *speech.Announcer
	history   *history.Store
	focus     *coalesce.Coalescer[focusAnnouncement]
	modes     *mode.Manager
	monitor   *monitor.Monitor
	hotkey    Hotkeys
	selection *SelectionAdapter

	mu      sync.RWMutex
	status  types.ModeStatus
	last    types.Announcement
	started bool
}

// New builds a Service. Call Start to begin monitoring.
func New(opts Options) (*Service, error) {
	cfg := opts.Config
	if cfg == nil {
		cfg = config.DefaultConfig()
	}
	if err := opts.Backend.Validate(); err != nil {
		return nil, err
	}

	s := &Service{
		cfg:       cfg,
		emit:      opts.Emit,
		selection: NewSelectionAdapter(opts.Selection),
	}

	if err := s.setupSpeech(opts); err != nil {
		return nil, err
	}

	s.focus = coalesce.New(coalesce.Config{
		FlushInterval: cfg.Coalesce.FlushInterval,
		MaxWait:       cfg.Coalesce.MaxWait,
	}, s.speakFocus)

	lists := cache.New[access.ListHandle](cache.Config{TTL: cfg.Cache.TTL, Capacity: cfg.Cache.Capacity})
	rooms := msglist.NewRooms(opts.Backend.Tree, opts.Backend.Events, lists, roomsConfig(cfg))

	modes, err := mode.New(mode.Options{
		Rooms:     rooms,
		OnMessage: s.handleMessage,
		OnChange:  s.handleModeChange,
	})
	if err != nil {
		s.closeSpeech()
		return nil, fmt.Errorf("create mode manager: %w", err)
	}
	s.modes = modes

	mon, err := monitor.New(monitor.Options{
		Windows:   opts.Backend.Windows,
		Focus:     opts.Backend.Focus,
		Snapshots: access.NewSnapshotCache(opts.Backend.Focus, cfg.Timing.QueryTimeout),
		Modes:     modes,
		Menus:     cache.New[bool](cache.Config{TTL: cfg.Cache.MenuCheckTTL, Capacity: cfg.Cache.Capacity}),
		Announcer: s,
		Config:    monitorConfig(cfg),
	})
	if err != nil {
		s.closeSpeech()
		return nil, fmt.Errorf("create monitor: %w", err)
	}
	s.monitor = mon

	s.hotkey = opts.Hotkeys
	if s.hotkey == nil && cfg.Hotkeys.Enabled {
		hk, err := hotkey.NewManager(cfg.Hotkeys.Repeat, s.RepeatLast)
		if err != nil {
			slog.Warn("hotkeys disabled", "error", err)
		} else {
			s.hotkey = hk
		}
	}

	return s, nil
}

func (s *Service) setupSpeech(opts Options) error {
	sink := opts.Sink
	if sink == nil {
		sink = speech.LogSink{}
	}

	if s.cfg.History.Enabled {
		dir := opts.HistoryDir
		if dir == "" {
			dir = s.cfg.History.Dir
		}
		if dir == "" {
			base, err := config.Dir()
			if err != nil {
				return err
			}
			dir = filepath.Join(base, "history")
		}
		store, err := history.Open(dir, s.cfg.History.TTL)
		if err != nil {
			// History is optional.
			slog.Error("open history", "path", dir, "error", err)
		} else {
			s.history = store
			slog.Info("history initialized", "path", dir)
		}
	}

	var langs []string
	if s.cfg.Speech.DetectLanguage {
		langs = s.cfg.Speech.Languages
	}
	var rec speech.Recorder
	if s.history != nil {
		rec = s.history
	}
	s.announcer = speech.New(sink, rec, speech.Config{
		Languages: langs,
		Timeout:   s.cfg.Timing.QueryTimeout * 5,
	})
	return nil
}

// Start begins monitoring.
func (s *Service) Start() error {
	s.mu.Lock()
	if s.started {
		s.mu.Unlock()
		return errors.New("service already started")
	}
	s.started = true
	s.mu.Unlock()

	if s.hotkey != nil {
		if err := s.hotkey.Start(); err != nil {
			slog.Error("start hotkey", "error", err)
			s.emitEvent(EventHotkeyStatus, false)
		} else {
			s.emitEvent(EventHotkeyStatus, true)
		}
	}

	if err := s.monitor.Start(); err != nil {
		return fmt.Errorf("start monitor: %w", err)
	}
	return nil
}

// Shutdown stops every component. Pending announcements are spoken first.
func (s *Service) Shutdown() {
	s.monitor.Stop()
	s.modes.Close()
	if s.hotkey != nil {
		s.hotkey.Stop()
	}
	s.focus.Stop()
	s.closeSpeech()
}

func (s *Service) closeSpeech() {
	if s.announcer != nil {
		s.announcer.Close()
	}
	if s.history != nil {
		if err := s.history.Close(); err != nil {
			slog.Error("close history", "error", err)
		}
	}
}

// Status returns the current interaction mode.
func (s *Service) Status() types.ModeStatus {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.status
}

// emitEvent is a safe wrapper around the UI event emitter.
func (s *Service) emitEvent(name string, data any) {
	if s.emit != nil {
		s.emit(name, data)
	}
}
