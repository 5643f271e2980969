package app

import (
	"log/slog"
	"strings"

	"github.com/samber/lo"

	"go.aimuz.me/chatwatch/access"
	"go.aimuz.me/chatwatch/internal/types"
	"go.aimuz.me/chatwatch/monitor"
)

// focusKey coalesces focus announcements: only the latest is spoken.
const focusKey = "focus"

type focusAnnouncement struct {
	Text     string
	Category access.Category
}

var _ monitor.Announcer = (*Service)(nil)

// Announce queues a focus announcement. Immediate ones bypass batching.
func (s *Service) Announce(text string, category access.Category, immediate bool) {
	s.focus.Add(focusKey, focusAnnouncement{Text: text, Category: category}, immediate)
}

func (s *Service) speakFocus(_ string, a focusAnnouncement) {
	s.speak(a.Text, a.Category.String())
}

// handleMessage speaks the names of newly arrived messages, oldest first.
func (s *Service) handleMessage(ev types.MessageEvent) {
	names := lo.FilterMap(ev.Recent(), func(e access.Element, _ int) (string, bool) {
		name := strings.TrimSpace(e.Name)
		return name, name != ""
	})
	slog.Debug("new messages", "count", ev.NewCount, "spoken", len(names))
	for _, name := range names {
		s.speak(name, types.CategoryMessage)
	}
}

func (s *Service) speak(text, category string) {
	ann, err := s.announcer.Speak(text, category)
	if err != nil {
		slog.Debug("speak", "error", err)
		return
	}
	if category != types.CategoryStatus {
		s.mu.Lock()
		s.last = ann
		s.mu.Unlock()
	}
	s.emitEvent(EventAnnouncement, ann)
}

// RepeatLast speaks the most recent announcement again.
func (s *Service) RepeatLast() {
	ann, ok := s.lastAnnouncement()
	if !ok {
		s.speak("Nothing to repeat", types.CategoryStatus)
		return
	}
	if err := s.announcer.Repeat(ann); err != nil {
		slog.Debug("repeat announcement", "error", err)
	}
}

// LastAnnouncement returns the text of the most recent announcement.
func (s *Service) LastAnnouncement() string {
	ann, _ := s.lastAnnouncement()
	return ann.Text
}

func (s *Service) lastAnnouncement() (types.Announcement, bool) {
	s.mu.RLock()
	last := s.last
	s.mu.RUnlock()
	if last.Text != "" {
		return last, true
	}
	// Survives restarts.
	if s.history != nil {
		return s.history.Last()
	}
	return types.Announcement{}, false
}

// RecentAnnouncements returns up to n announcements, newest first.
func (s *Service) RecentAnnouncements(n int) []types.Announcement {
	if s.history == nil {
		return nil
	}
	out, err := s.history.Recent(n)
	if err != nil {
		slog.Warn("read history", "error", err)
		return nil
	}
	return out
}
