package speech

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"strings"
)

// Sink speaks text. lang is an ISO 639-1 code or empty.
type Sink interface {
	Speak(ctx context.Context, text, lang string) error
}

// LogSink writes utterances to the log instead of speaking them.
type LogSink struct{}

func (LogSink) Speak(_ context.Context, text, lang string) error {
	slog.Info("speak", "text", text, "lang", lang)
	return nil
}

// CommandSink runs an external program per utterance with the text as its
// last argument, e.g. "say" on macOS or an NVDA controller client wrapper.
// The language is passed in the CHATWATCH_LANG environment variable.
type CommandSink struct {
	Name string
	Args []string
}

// NewCommandSink parses a command line such as "say -r 220".
func NewCommandSink(command string) (*CommandSink, error) {
	fields := strings.Fields(command)
	if len(fields) == 0 {
		return nil, fmt.Errorf("empty speech command")
	}
	if _, err := exec.LookPath(fields[0]); err != nil {
		return nil, fmt.Errorf("find speech command: %w", err)
	}
	return &CommandSink{Name: fields[0], Args: fields[1:]}, nil
}

func (s *CommandSink) Speak(ctx context.Context, text, lang string) error {
	args := append(append([]string{}, s.Args...), text)
	cmd := exec.CommandContext(ctx, s.Name, args...)
	cmd.Env = append(os.Environ(), "CHATWATCH_LANG="+lang)
	if out, err := cmd.CombinedOutput(); err != nil {
		return fmt.Errorf("run %s: %w: %s", s.Name, err, strings.TrimSpace(string(out)))
	}
	return nil
}
