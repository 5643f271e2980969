// Package config handles application configuration.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	appName        = "chatwatch"
	configFileName = "config.yaml"
)

// Config represents the application configuration.
type Config struct {
	LogLevel string `yaml:"log_level"`

	Target   Target   `yaml:"target"`
	Poll     Poll     `yaml:"poll"`
	Timing   Timing   `yaml:"timing"`
	Cache    Cache    `yaml:"cache"`
	Coalesce Coalesce `yaml:"coalesce"`
	Speech   Speech   `yaml:"speech"`
	History  History  `yaml:"history"`
	Hotkeys  Hotkeys  `yaml:"hotkeys"`
	Filter   Filter   `yaml:"filter"`
}

// Target identifies the watched chat application.
type Target struct {
	Process     string   `yaml:"process"`
	MainClasses []string `yaml:"main_classes,omitempty"`
	ChatClasses []string `yaml:"chat_classes,omitempty"`
	MenuClasses []string `yaml:"menu_classes,omitempty"`
	ListName    string   `yaml:"list_name"`
	SearchDepth int      `yaml:"search_depth"`
}

// Poll holds focus monitor intervals.
type Poll struct {
	Menu     time.Duration `yaml:"menu"`
	Grace    time.Duration `yaml:"grace"`
	Inactive time.Duration `yaml:"inactive"`
	Normal   time.Duration `yaml:"normal"`
}

// Timing holds debounce, grace and timeout settings.
type Timing struct {
	Debounce        time.Duration `yaml:"debounce"`
	MenuGrace       time.Duration `yaml:"menu_grace"`
	NavigationGrace time.Duration `yaml:"navigation_grace"`
	ResumeCooldown  time.Duration `yaml:"resume_cooldown"`
	PauseWait       time.Duration `yaml:"pause_wait"`
	Warmup          time.Duration `yaml:"warmup"`
	QueryTimeout    time.Duration `yaml:"query_timeout"`
	JoinTimeout     time.Duration `yaml:"join_timeout"`
}

// Cache holds in-memory cache settings.
type Cache struct {
	TTL          time.Duration `yaml:"ttl"`
	Capacity     int           `yaml:"capacity"`
	MenuCheckTTL time.Duration `yaml:"menu_check_ttl"`
}

// Coalesce holds announcement batching settings.
type Coalesce struct {
	FlushInterval time.Duration `yaml:"flush_interval"`
	MaxWait       time.Duration `yaml:"max_wait"`
}

// Speech holds speech output settings.
type Speech struct {
	// Command is run per utterance with the text appended. Empty logs
	// utterances instead.
	Command        string   `yaml:"command,omitempty"`
	DetectLanguage bool     `yaml:"detect_language"`
	Languages      []string `yaml:"languages,omitempty"`
}

// History holds announcement history settings.
type History struct {
	Enabled bool          `yaml:"enabled"`
	TTL     time.Duration `yaml:"ttl"`
	// Dir overrides the store location. Empty uses the config directory.
	Dir string `yaml:"dir,omitempty"`
}

// Hotkeys holds global hotkey settings.
type Hotkeys struct {
	Enabled bool   `yaml:"enabled"`
	Repeat  string `yaml:"repeat"`
}

// Filter lists element classes whose names are not announced.
type Filter struct {
	IgnoreClasses       []string `yaml:"ignore_classes,omitempty"`
	IgnoreAutomationIDs []string `yaml:"ignore_automation_ids,omitempty"`
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return &Config{
		LogLevel: "info",
		Target: Target{
			ListName:    "messages",
			SearchDepth: 4,
		},
		Poll: Poll{
			Menu:     50 * time.Millisecond,
			Grace:    50 * time.Millisecond,
			Inactive: 500 * time.Millisecond,
			Normal:   100 * time.Millisecond,
		},
		Timing: Timing{
			Debounce:        200 * time.Millisecond,
			MenuGrace:       time.Second,
			NavigationGrace: 300 * time.Millisecond,
			ResumeCooldown:  150 * time.Millisecond,
			PauseWait:       500 * time.Millisecond,
			Warmup:          3 * time.Second,
			QueryTimeout:    2 * time.Second,
			JoinTimeout:     2 * time.Second,
		},
		Cache: Cache{
			TTL:          500 * time.Millisecond,
			Capacity:     50,
			MenuCheckTTL: 100 * time.Millisecond,
		},
		Coalesce: Coalesce{
			FlushInterval: 20 * time.Millisecond,
			MaxWait:       time.Second,
		},
		Speech: Speech{
			DetectLanguage: true,
			Languages:      []string{"ko", "en"},
		},
		History: History{
			Enabled: true,
			TTL:     24 * time.Hour,
		},
		Hotkeys: Hotkeys{
			Enabled: true,
			Repeat:  "ctrl+shift+r",
		},
	}
}

// applyDefaults fills zero values from DefaultConfig. Booleans are kept as
// written.
func (c *Config) applyDefaults() {
	d := DefaultConfig()
	setDur := func(v *time.Duration, def time.Duration) {
		if *v <= 0 {
			*v = def
		}
	}
	if c.LogLevel == "" {
		c.LogLevel = d.LogLevel
	}
	if c.Target.ListName == "" {
		c.Target.ListName = d.Target.ListName
	}
	if c.Target.SearchDepth <= 0 {
		c.Target.SearchDepth = d.Target.SearchDepth
	}

	setDur(&c.Poll.Menu, d.Poll.Menu)
	setDur(&c.Poll.Grace, d.Poll.Grace)
	setDur(&c.Poll.Inactive, d.Poll.Inactive)
	setDur(&c.Poll.Normal, d.Poll.Normal)

	setDur(&c.Timing.Debounce, d.Timing.Debounce)
	setDur(&c.Timing.MenuGrace, d.Timing.MenuGrace)
	setDur(&c.Timing.NavigationGrace, d.Timing.NavigationGrace)
	setDur(&c.Timing.ResumeCooldown, d.Timing.ResumeCooldown)
	setDur(&c.Timing.PauseWait, d.Timing.PauseWait)
	setDur(&c.Timing.Warmup, d.Timing.Warmup)
	setDur(&c.Timing.QueryTimeout, d.Timing.QueryTimeout)
	setDur(&c.Timing.JoinTimeout, d.Timing.JoinTimeout)

	setDur(&c.Cache.TTL, d.Cache.TTL)
	if c.Cache.Capacity <= 0 {
		c.Cache.Capacity = d.Cache.Capacity
	}
	setDur(&c.Cache.MenuCheckTTL, d.Cache.MenuCheckTTL)

	setDur(&c.Coalesce.FlushInterval, d.Coalesce.FlushInterval)
	setDur(&c.Coalesce.MaxWait, d.Coalesce.MaxWait)

	setDur(&c.History.TTL, d.History.TTL)
	if c.Hotkeys.Repeat == "" {
		c.Hotkeys.Repeat = d.Hotkeys.Repeat
	}
}

// Validate reports settings that cannot work.
func (c *Config) Validate() error {
	var errs []error
	if strings.TrimSpace(c.Target.Process) == "" {
		errs = append(errs, errors.New("target.process is required"))
	}
	if len(c.Target.ChatClasses) == 0 {
		errs = append(errs, errors.New("target.chat_classes is required"))
	}
	if c.Coalesce.MaxWait < c.Coalesce.FlushInterval {
		errs = append(errs, fmt.Errorf("coalesce.max_wait %v is below flush_interval %v", c.Coalesce.MaxWait, c.Coalesce.FlushInterval))
	}
	if _, err := ParseLevel(c.LogLevel); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

// ParseLevel maps a log level name to a slog.Level.
func ParseLevel(s string) (slog.Level, error) {
	var l slog.Level
	if err := l.UnmarshalText([]byte(s)); err != nil {
		return 0, fmt.Errorf("invalid log level %q", s)
	}
	return l, nil
}

// Dir returns the application's configuration directory.
func Dir() (string, error) {
	dir, err := os.UserConfigDir()
	if err != nil {
		return "", fmt.Errorf("get user config dir: %w", err)
	}
	return filepath.Join(dir, appName), nil
}

// Load loads configuration from the config file.
// Returns default config if file doesn't exist.
func Load() (*Config, error) {
	dir, err := Dir()
	if err != nil {
		return nil, err
	}
	return LoadFile(filepath.Join(dir, configFileName))
}

// LoadFile loads configuration from path.
func LoadFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return DefaultConfig(), nil
		}
		return nil, fmt.Errorf("read config: %w", err)
	}

	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	cfg.applyDefaults()
	return cfg, nil
}

// Save persists the configuration to the config file.
func (c *Config) Save() error {
	dir, err := Dir()
	if err != nil {
		return err
	}
	return c.SaveFile(filepath.Join(dir, configFileName))
}

// SaveFile persists the configuration to path.
func (c *Config) SaveFile(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("create config dir: %w", err)
	}

	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("write config: %w", err)
	}
	return nil
}
