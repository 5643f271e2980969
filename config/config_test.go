package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadFile_Missing(t *testing.T) {
	cfg, err := LoadFile(filepath.Join(t.TempDir(), "nope.yaml"))
	require.NoError(t, err)
	assert.Equal(t, DefaultConfig(), cfg)
}

func TestLoadFile_PartialKeepsDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	data := `
target:
  process: KakaoTalk.exe
  chat_classes: ["#32770"]
timing:
  debounce: 350ms
  menu_grace: 0s
cache:
  capacity: 10
speech:
  detect_language: false
`
	require.NoError(t, os.WriteFile(path, []byte(data), 0644))

	cfg, err := LoadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "KakaoTalk.exe", cfg.Target.Process)
	assert.Equal(t, 350*time.Millisecond, cfg.Timing.Debounce)
	assert.Equal(t, time.Second, cfg.Timing.MenuGrace, "zero falls back to default")
	assert.Equal(t, 10, cfg.Cache.Capacity)
	assert.Equal(t, 500*time.Millisecond, cfg.Cache.TTL)
	assert.False(t, cfg.Speech.DetectLanguage)
	assert.True(t, cfg.Hotkeys.Enabled)
	require.NoError(t, cfg.Validate())
}

func TestLoadFile_Invalid(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("poll: [1, 2"), 0644))
	_, err := LoadFile(path)
	require.Error(t, err)
}

func TestSaveFile_RoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sub", "config.yaml")
	cfg := DefaultConfig()
	cfg.Target.Process = "chat.exe"
	cfg.Filter.IgnoreClasses = []string{"Chrome_RenderWidget"}
	require.NoError(t, cfg.SaveFile(path))

	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(raw), "debounce: 200ms")

	got, err := LoadFile(path)
	require.NoError(t, err)
	assert.Equal(t, cfg, got)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{"ok", func(*Config) {}, ""},
		{"no process", func(c *Config) { c.Target.Process = " " }, "target.process"},
		{"no chat classes", func(c *Config) { c.Target.ChatClasses = nil }, "target.chat_classes"},
		{"max wait", func(c *Config) { c.Coalesce.MaxWait = time.Millisecond }, "max_wait"},
		{"log level", func(c *Config) { c.LogLevel = "loud" }, "log level"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			cfg.Target.Process = "chat.exe"
			cfg.Target.ChatClasses = []string{"Room"}
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				require.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestLoad_ReadsOnlyYAML(t *testing.T) {
	home := t.TempDir()
	t.Setenv("XDG_CONFIG_HOME", home)
	t.Setenv("HOME", home)
	t.Setenv("AppData", home)

	dir, err := Dir()
	require.NoError(t, err)
	require.NoError(t, os.MkdirAll(dir, 0755))
	jsonPath := filepath.Join(dir, "config.json")
	require.NoError(t, os.WriteFile(jsonPath, []byte(`{"log_level": "debug"}`), 0644))

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, DefaultConfig(), cfg, "other files in the config dir are ignored")
	_, err = os.Stat(jsonPath)
	assert.NoError(t, err)
	_, err = os.Stat(filepath.Join(dir, configFileName))
	assert.True(t, os.IsNotExist(err), "Load never writes")

	require.NoError(t, os.WriteFile(filepath.Join(dir, configFileName), []byte("log_level: warn\n"), 0644))
	cfg, err = Load()
	require.NoError(t, err)
	assert.Equal(t, "warn", cfg.LogLevel)
}

func TestParseLevel(t *testing.T) {
	l, err := ParseLevel("DEBUG")
	require.NoError(t, err)
	assert.Equal(t, "DEBUG", l.String())
}
