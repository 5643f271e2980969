package speech

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"go.aimuz.me/chatwatch/internal/types"
)

type fakeSink struct {
	mu   sync.Mutex
	said []string
	fail bool
}

func (s *fakeSink) Speak(_ context.Context, text, _ string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.fail {
		return errors.New("no voice")
	}
	s.said = append(s.said, text)
	return nil
}

func (s *fakeSink) all() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.said...)
}

type memRecorder struct {
	mu  sync.Mutex
	got []types.Announcement
}

func (r *memRecorder) Add(a types.Announcement) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.got = append(r.got, a)
	return nil
}

func (r *memRecorder) len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.got)
}

func TestAnnouncer_SpeaksInOrder(t *testing.T) {
	sink := &fakeSink{}
	rec := &memRecorder{}
	a := New(sink, rec, Config{})

	for _, s := range []string{"one", "two", "three"} {
		_, err := a.Speak(s, types.CategoryMessage)
		require.NoError(t, err)
	}
	a.Close()

	assert.Equal(t, []string{"one", "two", "three"}, sink.all())
	assert.Equal(t, 3, rec.len())
}

func TestAnnouncer_RepeatIsNotRecorded(t *testing.T) {
	sink := &fakeSink{}
	rec := &memRecorder{}
	a := New(sink, rec, Config{})

	ann, err := a.Speak("hello", types.CategoryMessage)
	require.NoError(t, err)
	require.NotEmpty(t, ann.ID)
	require.NoError(t, a.Repeat(ann))
	a.Close()

	assert.Equal(t, []string{"hello", "hello"}, sink.all())
	assert.Equal(t, 1, rec.len())
}

func TestAnnouncer_SinkFailureIsNotRecorded(t *testing.T) {
	sink := &fakeSink{fail: true}
	rec := &memRecorder{}
	a := New(sink, rec, Config{})

	_, err := a.Speak("hello", types.CategoryStatus)
	require.NoError(t, err)
	a.Close()
	assert.Equal(t, 0, rec.len())
}

func TestAnnouncer_SpeakAfterClose(t *testing.T) {
	a := New(&fakeSink{}, nil, Config{})
	a.Close()
	a.Close()

	_, err := a.Speak("late", types.CategoryStatus)
	assert.ErrorIs(t, err, ErrClosed)
}

func TestAnnouncer_DetectLanguage(t *testing.T) {
	a := New(&fakeSink{}, nil, Config{Languages: []string{"en", "ZH", "en"}})
	defer a.Close()

	assert.Equal(t, "en", a.DetectLanguage("Hello everyone, the meeting starts in five minutes."))
	assert.Equal(t, "zh", a.DetectLanguage("大家好，会议五分钟后开始。"))
	assert.Empty(t, a.DetectLanguage("   "))
}

func TestAnnouncer_DetectionOff(t *testing.T) {
	tests := []struct {
		name  string
		langs []string
	}{
		{"none", nil},
		{"one", []string{"en"}},
		{"unknown", []string{"en", "xx"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a := New(&fakeSink{}, nil, Config{Languages: tt.langs, Timeout: time.Second})
			defer a.Close()
			assert.Empty(t, a.DetectLanguage("Hello everyone"))
		})
	}
}
