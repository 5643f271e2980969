// Package fakeui is a scripted, in-memory accessibility backend for tests.
package fakeui

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/samber/lo"

	"go.aimuz.me/chatwatch/access"
)

// UI implements every access collaborator over mutable state.
type UI struct {
	mu sync.Mutex

	foreground    access.WindowHandle
	windows       map[access.WindowHandle]access.WindowKind
	menuVisible   bool
	focus         access.FocusSnapshot
	focusErr      error
	batchedErr    error
	selected      bool
	lists         map[string][]access.Element // by ListHandle.ID
	listByWindow  map[access.WindowHandle]access.ListHandle
	subscribeErr  error
	subs          map[string]*subscription
	subscribeLog  []string
	unsubscribeN  int
	selectedCalls int
	childrenCalls int
	focusCalls    int
	threads       map[int]struct{} // OS threads that touched subscriptions
	violations    []string
}

type subscription struct {
	id      string
	thread  int
	list    access.ListHandle
	handler func(access.ChangeKind)
}

func (s *subscription) List() access.ListHandle { return s.list }

// New returns an empty UI: nothing focused, no target windows.
func New() *UI {
	return &UI{
		windows:      make(map[access.WindowHandle]access.WindowKind),
		lists:        make(map[string][]access.Element),
		listByWindow: make(map[access.WindowHandle]access.ListHandle),
		subs:         make(map[string]*subscription),
		threads:      make(map[int]struct{}),
		batchedErr:   access.ErrUnsupported,
	}
}

// ─────────────────────────────────────────────────────────────────────────────
// Scripting
// ─────────────────────────────────────────────────────────────────────────────

// SetWindow registers hwnd with the given kind.
func (u *UI) SetWindow(hwnd access.WindowHandle, kind access.WindowKind) {
	u.mu.Lock()
	defer u.mu.Unlock()
	u.windows[hwnd] = kind
}

// SetForeground makes hwnd the foreground window. Unregistered handles
// classify as WindowNone.
func (u *UI) SetForeground(hwnd access.WindowHandle) {
	u.mu.Lock()
	defer u.mu.Unlock()
	u.foreground = hwnd
}

// SetMenuVisible shows or hides the target application's popup menu.
func (u *UI) SetMenuVisible(v bool) {
	u.mu.Lock()
	defer u.mu.Unlock()
	u.menuVisible = v
}

// SetFocus sets the focused element.
func (u *UI) SetFocus(snap access.FocusSnapshot) {
	u.mu.Lock()
	defer u.mu.Unlock()
	u.focus = snap
	u.focusErr = nil
}

// SetFocusError makes focus queries fail with err.
func (u *UI) SetFocusError(err error) {
	u.mu.Lock()
	defer u.mu.Unlock()
	u.focusErr = err
}

// SetBatchedSupported toggles the single round trip snapshot query.
func (u *UI) SetBatchedSupported(v bool) {
	u.mu.Lock()
	defer u.mu.Unlock()
	if v {
		u.batchedErr = nil
	} else {
		u.batchedErr = access.ErrUnsupported
	}
}

// SetSelected sets the selection state reported for the focused element.
func (u *UI) SetSelected(v bool) {
	u.mu.Lock()
	defer u.mu.Unlock()
	u.selected = v
}

// AddList creates a message list named "messages" in hwnd with n items.
func (u *UI) AddList(hwnd access.WindowHandle, n int) access.ListHandle {
	u.mu.Lock()
	defer u.mu.Unlock()
	h := access.ListHandle{Window: hwnd, ID: fmt.Sprintf("list-%x", uintptr(hwnd))}
	u.listByWindow[hwnd] = h
	u.lists[h.ID] = makeItems(0, n)
	return h
}

// RemoveList deletes the list of hwnd; later queries see a stale element.
func (u *UI) RemoveList(hwnd access.WindowHandle) {
	u.mu.Lock()
	defer u.mu.Unlock()
	if h, ok := u.listByWindow[hwnd]; ok {
		delete(u.lists, h.ID)
		delete(u.listByWindow, hwnd)
	}
}

// SetCount grows or shrinks list to n items, keeping existing names.
func (u *UI) SetCount(list access.ListHandle, n int) {
	u.mu.Lock()
	defer u.mu.Unlock()
	cur := u.lists[list.ID]
	if n <= len(cur) {
		u.lists[list.ID] = cur[:n]
		return
	}
	u.lists[list.ID] = append(cur, makeItems(len(cur), n)...)
}

// Append adds named items to list.
func (u *UI) Append(list access.ListHandle, names ...string) {
	u.mu.Lock()
	defer u.mu.Unlock()
	for _, n := range names {
		u.lists[list.ID] = append(u.lists[list.ID], access.Element{Name: n, Category: access.CategoryListItem})
	}
}

// SetSubscribeError makes subscriptions fail with err.
func (u *UI) SetSubscribeError(err error) {
	u.mu.Lock()
	defer u.mu.Unlock()
	u.subscribeErr = err
}

// Notify delivers a structural change to every subscriber of list, on the
// caller's goroutine.
func (u *UI) Notify(list access.ListHandle, kind access.ChangeKind) {
	u.mu.Lock()
	var handlers []func(access.ChangeKind)
	for _, s := range u.subs {
		if s.list == list {
			handlers = append(handlers, s.handler)
		}
	}
	u.mu.Unlock()

	for _, h := range handlers {
		h(kind)
	}
}

// Subscribed reports whether list has an active subscription.
func (u *UI) Subscribed(list access.ListHandle) bool {
	u.mu.Lock()
	defer u.mu.Unlock()
	return lo.SomeBy(lo.Values(u.subs), func(s *subscription) bool { return s.list == list })
}

// SubscribeCount returns how many subscriptions were ever made.
func (u *UI) SubscribeCount() int {
	u.mu.Lock()
	defer u.mu.Unlock()
	return len(u.subscribeLog)
}

// UnsubscribeCount returns how many unsubscriptions happened.
func (u *UI) UnsubscribeCount() int {
	u.mu.Lock()
	defer u.mu.Unlock()
	return u.unsubscribeN
}

// SelectedCalls returns how often FocusedSelected was asked.
func (u *UI) SelectedCalls() int {
	u.mu.Lock()
	defer u.mu.Unlock()
	return u.selectedCalls
}

// ThreadsTracked reports whether this platform exposes OS thread ids, so
// that Threads and AffinityViolations are meaningful.
func ThreadsTracked() bool { return threadsTracked }

// Threads returns how many distinct OS threads subscribed, unsubscribed
// or pumped.
func (u *UI) Threads() int {
	u.mu.Lock()
	defer u.mu.Unlock()
	return len(u.threads)
}

// AffinityViolations lists Unsubscribe and Pump calls made from a thread
// other than the one that created the subscription.
func (u *UI) AffinityViolations() []string {
	u.mu.Lock()
	defer u.mu.Unlock()
	return slices.Clone(u.violations)
}

// FocusCalls returns how often the per-property focus path ran.
func (u *UI) FocusCalls() int {
	u.mu.Lock()
	defer u.mu.Unlock()
	return u.focusCalls
}

// ─────────────────────────────────────────────────────────────────────────────
// access.FocusReader
// ─────────────────────────────────────────────────────────────────────────────

func (u *UI) FocusedSnapshot(context.Context) (access.FocusSnapshot, error) {
	u.mu.Lock()
	defer u.mu.Unlock()
	u.focusCalls++
	if u.focusErr != nil {
		return access.FocusSnapshot{}, u.focusErr
	}
	return u.focus, nil
}

func (u *UI) CachedFocusedSnapshot(context.Context) (access.FocusSnapshot, error) {
	u.mu.Lock()
	defer u.mu.Unlock()
	if u.batchedErr != nil {
		return access.FocusSnapshot{}, u.batchedErr
	}
	if u.focusErr != nil {
		return access.FocusSnapshot{}, u.focusErr
	}
	return u.focus, nil
}

func (u *UI) FocusedSelected(context.Context) (bool, error) {
	u.mu.Lock()
	defer u.mu.Unlock()
	u.selectedCalls++
	return u.selected, nil
}

// ─────────────────────────────────────────────────────────────────────────────
// access.TreeReader
// ─────────────────────────────────────────────────────────────────────────────

func (u *UI) FindNamedList(_ context.Context, parent access.WindowHandle, _ string, _ int) (access.ListHandle, error) {
	u.mu.Lock()
	defer u.mu.Unlock()
	h, ok := u.listByWindow[parent]
	if !ok {
		return access.ListHandle{}, access.ErrUnavailable
	}
	return h, nil
}

func (u *UI) ListExists(_ context.Context, list access.ListHandle, _ time.Duration) bool {
	u.mu.Lock()
	defer u.mu.Unlock()
	_, ok := u.lists[list.ID]
	return ok
}

func (u *UI) Children(_ context.Context, list access.ListHandle, _ int, filterEmpty bool) ([]access.Element, error) {
	u.mu.Lock()
	defer u.mu.Unlock()
	u.childrenCalls++
	items, ok := u.lists[list.ID]
	if !ok {
		return nil, access.ErrStaleElement
	}
	if filterEmpty {
		items = lo.Filter(items, func(e access.Element, _ int) bool { return e.Name != "" })
	}
	return slices.Clone(items), nil
}

// ─────────────────────────────────────────────────────────────────────────────
// access.Subscriber
// ─────────────────────────────────────────────────────────────────────────────

// SubscribeStructure binds the subscription to the calling OS thread.
// Unsubscribe and Pump from any other thread are recorded as violations.
func (u *UI) SubscribeStructure(list access.ListHandle, handler func(access.ChangeKind)) (access.Subscription, error) {
	tid := threadID()
	u.mu.Lock()
	defer u.mu.Unlock()
	u.threads[tid] = struct{}{}
	if u.subscribeErr != nil {
		return nil, u.subscribeErr
	}
	s := &subscription{id: uuid.NewString(), thread: tid, list: list, handler: handler}
	u.subs[s.id] = s
	u.subscribeLog = append(u.subscribeLog, s.id)
	return s, nil
}

func (u *UI) Unsubscribe(sub access.Subscription) error {
	s, ok := sub.(*subscription)
	if !ok {
		return errors.New("fakeui: foreign subscription")
	}
	tid := threadID()
	u.mu.Lock()
	defer u.mu.Unlock()
	u.threads[tid] = struct{}{}
	if _, ok := u.subs[s.id]; !ok {
		return errors.New("fakeui: not subscribed")
	}
	if threadsTracked && s.thread != tid {
		u.violations = append(u.violations, fmt.Sprintf("unsubscribe %s on thread %d, owner %d", s.list.ID, tid, s.thread))
		return errors.New("fakeui: unsubscribe from foreign thread")
	}
	delete(u.subs, s.id)
	u.unsubscribeN++
	return nil
}

// Pump must run on a thread that owns at least one live subscription.
func (u *UI) Pump() {
	tid := threadID()
	u.mu.Lock()
	defer u.mu.Unlock()
	u.threads[tid] = struct{}{}
	if !threadsTracked || len(u.subs) == 0 {
		return
	}
	if !lo.SomeBy(lo.Values(u.subs), func(s *subscription) bool { return s.thread == tid }) {
		u.violations = append(u.violations, fmt.Sprintf("pump on thread %d without a subscription", tid))
	}
}

// ─────────────────────────────────────────────────────────────────────────────
// access.WindowClassifier
// ─────────────────────────────────────────────────────────────────────────────

func (u *UI) Foreground(context.Context) (access.WindowHandle, error) {
	u.mu.Lock()
	defer u.mu.Unlock()
	return u.foreground, nil
}

func (u *UI) Classify(_ context.Context, hwnd access.WindowHandle) (access.WindowInfo, error) {
	u.mu.Lock()
	defer u.mu.Unlock()
	kind, ok := u.windows[hwnd]
	if !ok {
		return access.WindowInfo{Kind: access.WindowNone, Handle: hwnd}, nil
	}
	return access.WindowInfo{Kind: kind, Handle: hwnd}, nil
}

func (u *UI) MenuVisible(context.Context) (bool, error) {
	u.mu.Lock()
	defer u.mu.Unlock()
	return u.menuVisible, nil
}

// Backend returns u as an access.Backend.
func (u *UI) Backend() access.Backend {
	return access.Backend{Focus: u, Tree: u, Events: u, Windows: u}
}

func makeItems(from, to int) []access.Element {
	items := make([]access.Element, 0, to-from)
	for i := from; i < to; i++ {
		items = append(items, access.Element{
			Name:     fmt.Sprintf("message %d", i+1),
			Category: access.CategoryListItem,
		})
	}
	return items
}
