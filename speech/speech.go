// Package speech turns announcements into speech.
//
// An Announcer queues utterances for a single worker goroutine, so they are
// spoken in order and callers never wait on the speech sink. Every spoken
// announcement is tagged with its detected language and recorded.
package speech

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/pemistahl/lingua-go"
	"github.com/samber/lo"

	"go.aimuz.me/chatwatch/internal/types"
)

// ErrClosed is returned by Speak after Close.
var ErrClosed = errors.New("speech: announcer closed")

// Recorder stores spoken announcements.
type Recorder interface {
	Add(a types.Announcement) error
}

// Config holds announcer settings.
type Config struct {
	// Languages are ISO 639-1 codes to tell apart. Detection is off with
	// fewer than two.
	Languages []string
	Timeout   time.Duration // bound on one Speak call
	QueueSize int
}

// Announcer speaks announcements through a Sink.
type Announcer struct {
	sink     Sink
	recorder Recorder
	detector lingua.LanguageDetector
	timeout  time.Duration

	mu     sync.Mutex
	closed bool
	queue  chan types.Announcement
	done   chan struct{}
}

// New creates an Announcer and starts its worker. recorder may be nil.
func New(sink Sink, recorder Recorder, cfg Config) *Announcer {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = 64
	}
	a := &Announcer{
		sink:     sink,
		recorder: recorder,
		detector: buildDetector(cfg.Languages),
		timeout:  cfg.Timeout,
		queue:    make(chan types.Announcement, cfg.QueueSize),
		done:     make(chan struct{}),
	}
	go a.run()
	return a
}

// Speak queues text for speech and returns the announcement. Category is a
// free-form tag such as an element category or types.CategoryMessage.
// When the queue is full the announcement is dropped.
func (a *Announcer) Speak(text, category string) (types.Announcement, error) {
	ann := types.Announcement{
		ID:       uuid.NewString(),
		Text:     text,
		Category: category,
		Lang:     a.DetectLanguage(text),
		SpokenAt: time.Now(),
	}
	return ann, a.enqueue(ann)
}

// Repeat queues a previous announcement again without recording it twice.
func (a *Announcer) Repeat(ann types.Announcement) error {
	ann.ID = ""
	return a.enqueue(ann)
}

func (a *Announcer) enqueue(ann types.Announcement) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.closed {
		return ErrClosed
	}
	select {
	case a.queue <- ann:
	default:
		slog.Warn("speech queue full, dropping announcement", "text", ann.Text)
	}
	return nil
}

// Close stops the worker after the queued announcements are spoken.
func (a *Announcer) Close() {
	a.mu.Lock()
	if a.closed {
		a.mu.Unlock()
		return
	}
	a.closed = true
	close(a.queue)
	a.mu.Unlock()
	<-a.done
}

func (a *Announcer) run() {
	defer close(a.done)
	for ann := range a.queue {
		a.say(ann)
	}
}

func (a *Announcer) say(ann types.Announcement) {
	ctx, cancel := context.WithTimeout(context.Background(), a.timeout)
	defer cancel()

	if err := a.sink.Speak(ctx, ann.Text, ann.Lang); err != nil {
		slog.Warn("speak", "error", err)
		return
	}
	if a.recorder == nil || ann.ID == "" {
		return
	}
	if err := a.recorder.Add(ann); err != nil {
		slog.Debug("record announcement", "error", err)
	}
}

// DetectLanguage returns the ISO 639-1 code of text, or "" when detection
// is off or inconclusive.
func (a *Announcer) DetectLanguage(text string) string {
	if a.detector == nil || strings.TrimSpace(text) == "" {
		return ""
	}
	lang, ok := a.detector.DetectLanguageOf(text)
	if !ok {
		return ""
	}
	return strings.ToLower(lang.IsoCode639_1().String())
}

func buildDetector(codes []string) lingua.LanguageDetector {
	langs := lo.Uniq(languages(codes))
	if len(langs) < 2 {
		if len(codes) > 0 {
			slog.Warn("language detection needs two known languages", "languages", codes)
		}
		return nil
	}
	return lingua.NewLanguageDetectorBuilder().
		FromLanguages(langs...).
		WithMinimumRelativeDistance(0.1).
		Build()
}

func languages(codes []string) []lingua.Language {
	var out []lingua.Language
	for _, code := range codes {
		code = strings.ToLower(strings.TrimSpace(code))
		for _, l := range lingua.AllLanguages() {
			if strings.ToLower(l.IsoCode639_1().String()) == code {
				out = append(out, l)
				break
			}
		}
	}
	return out
}
