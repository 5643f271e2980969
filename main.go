package main

import (
	"flag"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/lmittmann/tint"
	"github.com/wailsapp/wails/v3/pkg/application"

	"go.aimuz.me/chatwatch/config"
	"go.aimuz.me/chatwatch/internal/app"
	"go.aimuz.me/chatwatch/internal/types"
	"go.aimuz.me/chatwatch/platform"
	"go.aimuz.me/chatwatch/speech"
)

var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

func main() {
	configPath := flag.String("config", "", "path to config.yaml")
	showVersion := flag.Bool("version", false, "print version and exit")
	flag.Parse()

	if *showVersion {
		fmt.Printf("chatwatch %s (%s, %s)\n", version, commit, date)
		return
	}

	cfg, err := loadConfig(*configPath)
	if err != nil {
		// Fall back to defaults so the tray still comes up.
		slog.Error("load config", "error", err)
		cfg = config.DefaultConfig()
	}
	setupLogger(cfg.LogLevel)
	slog.Info("starting chatwatch", "version", version, "commit", commit, "date", date)

	if err := cfg.Validate(); err != nil {
		slog.Warn("invalid config, monitoring stays idle", "error", err)
	}

	var wapp *application.App
	svc, err := app.New(app.Options{
		Config:  cfg,
		Backend: platform.NewBackend(app.PlatformRules(cfg)),
		Sink:    newSink(cfg),
		Emit: func(name string, data any) {
			if wapp != nil {
				wapp.Event.Emit(name, data)
			}
		},
	})
	if err != nil {
		slog.Error("create service", "error", err)
		os.Exit(1)
	}

	wapp = application.New(application.Options{
		Name:        "Chatwatch",
		Description: "Speaks what happens in your chat app",
		Services: []application.Service{
			application.NewService(svc),
		},
		Mac: application.MacOptions{
			// Tray only, there are no windows to close.
			ApplicationShouldTerminateAfterLastWindowClosed: false,
		},
	})

	systemTray := wapp.SystemTray.New()
	systemTray.SetLabel("Chatwatch")

	trayMenu := wapp.NewMenu()
	statusItem := trayMenu.Add(types.ModeStatus{}.Label())
	statusItem.SetEnabled(false)
	trayMenu.AddSeparator()
	trayMenu.Add("Repeat last").OnClick(func(ctx *application.Context) {
		go svc.RepeatLast()
	})
	trayMenu.Add("Copy last").OnClick(func(ctx *application.Context) {
		if text := svc.LastAnnouncement(); text != "" {
			wapp.Clipboard.SetText(text)
		}
	})
	trayMenu.Add("Selection mode").OnClick(func(ctx *application.Context) {
		if svc.Status().Selection {
			svc.ExitSelection()
			return
		}
		svc.EnterSelection()
	})
	trayMenu.AddSeparator()
	trayMenu.Add("Quit").
		SetAccelerator("CmdOrCtrl+Q").
		OnClick(func(ctx *application.Context) {
			svc.Shutdown()
			wapp.Quit()
		})
	systemTray.SetMenu(trayMenu)

	wapp.Event.On(app.EventModeChanged, func(e *application.CustomEvent) {
		st, ok := e.Data.(types.ModeStatus)
		if !ok {
			return
		}
		statusItem.SetLabel(st.Label())
		trayMenu.Update()
	})

	if err := svc.Start(); err != nil {
		slog.Error("start service", "error", err)
	}

	if err := wapp.Run(); err != nil {
		slog.Error("run app", "error", err)
	}
}

func loadConfig(path string) (*config.Config, error) {
	if path != "" {
		return config.LoadFile(path)
	}
	return config.Load()
}

func setupLogger(level string) {
	lvl, err := config.ParseLevel(level)
	if err != nil {
		lvl = slog.LevelInfo
	}
	slog.SetDefault(slog.New(tint.NewHandler(os.Stderr, &tint.Options{
		Level:      lvl,
		TimeFormat: time.Kitchen,
	})))
}

func newSink(cfg *config.Config) speech.Sink {
	if cfg.Speech.Command == "" {
		return speech.LogSink{}
	}
	sink, err := speech.NewCommandSink(cfg.Speech.Command)
	if err != nil {
		slog.Warn("speech command unavailable, logging instead", "command", cfg.Speech.Command, "error", err)
		return speech.LogSink{}
	}
	return sink
}
