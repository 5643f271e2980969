package mode

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"go.aimuz.me/chatwatch/access"
	"go.aimuz.me/chatwatch/internal/types"
)

type fakeWatcher struct {
	mu       sync.Mutex
	started  bool
	stopped  bool
	pauses   int
	resumes  int
	startErr bool
}

func (w *fakeWatcher) Start(func(types.MessageEvent)) bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.started = true
	return !w.startErr
}

func (w *fakeWatcher) Stop() {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.stopped = true
}

func (w *fakeWatcher) Pause(bool) bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.pauses++
	return true
}

func (w *fakeWatcher) Resume() {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.resumes++
}

type fakeRooms struct {
	mu       sync.Mutex
	fail     map[access.WindowHandle]bool
	watchers map[access.WindowHandle]*fakeWatcher
	released []access.WindowHandle
}

func newFakeRooms() *fakeRooms {
	return &fakeRooms{
		fail:     make(map[access.WindowHandle]bool),
		watchers: make(map[access.WindowHandle]*fakeWatcher),
	}
}

func (r *fakeRooms) Open(_ context.Context, hwnd access.WindowHandle) (Watcher, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.fail[hwnd] {
		return nil, errors.New("no message list")
	}
	w := &fakeWatcher{}
	r.watchers[hwnd] = w
	return w, nil
}

func (r *fakeRooms) Release(hwnd access.WindowHandle) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.released = append(r.released, hwnd)
}

func (r *fakeRooms) watcher(hwnd access.WindowHandle) *fakeWatcher {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.watchers[hwnd]
}

func newManager(t *testing.T, rooms Rooms, now func() time.Time) (*Manager, *[]types.ModeStatus) {
	t.Helper()
	var changes []types.ModeStatus
	m, err := New(Options{
		Rooms:    rooms,
		OnChange: func(s types.ModeStatus) { changes = append(changes, s) },
		Now:      now,
	})
	require.NoError(t, err)
	return m, &changes
}

func TestNew_RequiresRooms(t *testing.T) {
	_, err := New(Options{})
	require.Error(t, err)
}

func TestManager_NavigationAbandonsSelection(t *testing.T) {
	rooms := newFakeRooms()
	m, _ := newManager(t, rooms, nil)

	m.EnterSelection()
	require.True(t, m.SelectionActive())

	ok := m.EnterNavigation(context.Background(), 0x10)
	require.True(t, ok)

	assert.False(t, m.SelectionActive())
	h, active := m.NavigationActive()
	assert.True(t, active)
	assert.Equal(t, access.WindowHandle(0x10), h)
	assert.True(t, rooms.watcher(0x10).started)
}

func TestManager_EnterNavigationSameHandleIsNoop(t *testing.T) {
	rooms := newFakeRooms()
	m, changes := newManager(t, rooms, nil)

	require.True(t, m.EnterNavigation(context.Background(), 0x10))
	first := rooms.watcher(0x10)
	require.True(t, m.EnterNavigation(context.Background(), 0x10))

	assert.Same(t, first, rooms.watcher(0x10), "room should not be reopened")
	assert.Len(t, *changes, 1)
}

func TestManager_EnterNavigationFailureLeavesState(t *testing.T) {
	rooms := newFakeRooms()
	rooms.fail[0x20] = true
	m, _ := newManager(t, rooms, nil)

	ok := m.EnterNavigation(context.Background(), 0x20)
	assert.False(t, ok)

	_, active := m.NavigationActive()
	assert.False(t, active)
	assert.Equal(t, types.ModeStatus{}, m.Status())
}

func TestManager_SubscriptionFailureStillNavigates(t *testing.T) {
	rooms := &startFailRooms{fakeRooms: newFakeRooms()}
	m, _ := newManager(t, rooms, nil)

	require.True(t, m.EnterNavigation(context.Background(), 0x30))
	_, active := m.NavigationActive()
	assert.True(t, active)
}

type startFailRooms struct{ *fakeRooms }

func (r *startFailRooms) Open(ctx context.Context, hwnd access.WindowHandle) (Watcher, error) {
	w, err := r.fakeRooms.Open(ctx, hwnd)
	if err == nil {
		w.(*fakeWatcher).startErr = true
	}
	return w, err
}

func TestManager_SwitchRoomReleasesPrevious(t *testing.T) {
	rooms := newFakeRooms()
	m, _ := newManager(t, rooms, nil)

	require.True(t, m.EnterNavigation(context.Background(), 0x10))
	require.True(t, m.EnterNavigation(context.Background(), 0x20))

	assert.True(t, rooms.watcher(0x10).stopped)
	assert.Equal(t, []access.WindowHandle{0x10}, rooms.released)
	h, _ := m.NavigationActive()
	assert.Equal(t, access.WindowHandle(0x20), h)
}

func TestManager_FailedSwitchKeepsCurrentRoom(t *testing.T) {
	rooms := newFakeRooms()
	rooms.fail[0x20] = true
	m, changes := newManager(t, rooms, nil)

	require.True(t, m.EnterNavigation(context.Background(), 0x10))
	assert.False(t, m.EnterNavigation(context.Background(), 0x20))

	h, active := m.NavigationActive()
	assert.True(t, active)
	assert.Equal(t, access.WindowHandle(0x10), h)
	assert.False(t, rooms.watcher(0x10).stopped)
	assert.Empty(t, rooms.released)
	assert.Len(t, *changes, 1)
}

func TestManager_ExitNavigation(t *testing.T) {
	rooms := newFakeRooms()
	m, _ := newManager(t, rooms, nil)

	m.ExitNavigation() // no-op when not navigating
	assert.Empty(t, rooms.released)

	require.True(t, m.EnterNavigation(context.Background(), 0x10))
	m.ExitNavigation()

	_, active := m.NavigationActive()
	assert.False(t, active)
	assert.True(t, rooms.watcher(0x10).stopped)
	assert.Equal(t, []access.WindowHandle{0x10}, rooms.released)
}

func TestManager_ContextMenuPausesAndResumes(t *testing.T) {
	rooms := newFakeRooms()
	m, _ := newManager(t, rooms, nil)
	require.True(t, m.EnterNavigation(context.Background(), 0x10))
	w := rooms.watcher(0x10)

	m.EnterContextMenu()
	m.EnterContextMenu()
	assert.True(t, m.ContextMenuActive())
	assert.Equal(t, 1, w.pauses)
	assert.False(t, w.stopped, "menu must pause, not stop")

	m.ExitContextMenu()
	m.ExitContextMenu()
	assert.False(t, m.ContextMenuActive())
	assert.Equal(t, 1, w.resumes)
}

func TestManager_ShouldExitByGrace(t *testing.T) {
	t0 := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
	now := t0
	m, _ := newManager(t, newFakeRooms(), func() time.Time { return now })

	m.EnterContextMenu()
	m.ExitContextMenu() // lastSeenAt = t0

	now = t0.Add(500 * time.Millisecond)
	assert.False(t, m.ShouldExitByGrace(time.Second))

	now = t0.Add(1500 * time.Millisecond)
	assert.True(t, m.ShouldExitByGrace(time.Second))
}

func TestManager_UpdateMenuSeenExtendsGrace(t *testing.T) {
	t0 := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
	now := t0
	m, _ := newManager(t, newFakeRooms(), func() time.Time { return now })

	m.EnterContextMenu()
	for i := 0; i < 5; i++ {
		now = now.Add(800 * time.Millisecond)
		m.UpdateMenuSeen()
	}

	now = now.Add(500 * time.Millisecond)
	assert.False(t, m.ShouldExitByGrace(time.Second), "grace measures time since last seen")
}

func TestManager_OnChangeReportsStatus(t *testing.T) {
	m, changes := newManager(t, newFakeRooms(), nil)

	m.EnterSelection()
	m.EnterSelection()
	m.ExitSelection()

	require.Len(t, *changes, 2)
	assert.True(t, (*changes)[0].Selection)
	assert.False(t, (*changes)[1].Selection)
}

func TestManager_Close(t *testing.T) {
	rooms := newFakeRooms()
	m, _ := newManager(t, rooms, nil)
	require.True(t, m.EnterNavigation(context.Background(), 0x10))
	m.EnterContextMenu()
	m.EnterSelection()

	m.Close()
	assert.Equal(t, types.ModeStatus{}, m.Status())
	assert.True(t, rooms.watcher(0x10).stopped)
}

func TestGracePeriod_Elapsed(t *testing.T) {
	ref := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	tests := []struct {
		name string
		g    GracePeriod
		now  time.Time
		want bool
	}{
		{"zero reference", GracePeriod{Duration: time.Second}, ref, false},
		{"before", GracePeriod{ref, time.Second}, ref.Add(999 * time.Millisecond), false},
		{"exactly", GracePeriod{ref, time.Second}, ref.Add(time.Second), false},
		{"after", GracePeriod{ref, time.Second}, ref.Add(1001 * time.Millisecond), true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.g.Elapsed(tt.now))
		})
	}
}
