// Package platform connects the monitoring core to the operating system.
//
// Window classification is implemented natively on Windows. The UI tree,
// focus and structural events need an accessibility bridge (UI Automation)
// that is supplied by the host; without one the Unsupported backend answers
// every query with access.ErrUnsupported, which the core treats as "no
// value".
package platform

import (
	"context"
	"slices"
	"strings"
	"time"

	"go.aimuz.me/chatwatch/access"
)

// DefaultMenuClass is the window class of Win32 popup menus.
const DefaultMenuClass = "#32768"

// Rules identify the target application's windows.
type Rules struct {
	Process     string   // executable name, e.g. "KakaoTalk.exe"
	MainClasses []string // window classes of the main window
	ChatClasses []string // window classes of chat room windows
	MenuClasses []string // window classes of popup menus
}

// Kind classifies a window from its owning process and class name.
func (r Rules) Kind(process, class string) access.WindowKind {
	if !r.owns(process) {
		return access.WindowNone
	}
	switch {
	case slices.Contains(r.menuClasses(), class):
		return access.WindowMenu
	case slices.Contains(r.ChatClasses, class):
		return access.WindowChat
	case len(r.MainClasses) == 0 || slices.Contains(r.MainClasses, class):
		return access.WindowMain
	default:
		return access.WindowNone
	}
}

func (r Rules) owns(process string) bool {
	if r.Process == "" || process == "" {
		return false
	}
	if i := strings.LastIndexAny(process, `\/`); i >= 0 {
		process = process[i+1:]
	}
	return strings.EqualFold(process, r.Process)
}

func (r Rules) menuClasses() []string {
	if len(r.MenuClasses) == 0 {
		return []string{DefaultMenuClass}
	}
	return r.MenuClasses
}

// NewBackend returns the backend for this platform.
func NewBackend(rules Rules) access.Backend {
	return access.Backend{
		Focus:   Unsupported{},
		Tree:    Unsupported{},
		Events:  Unsupported{},
		Windows: NewClassifier(rules),
	}
}

// Unsupported answers every query with access.ErrUnsupported.
type Unsupported struct{}

func (Unsupported) FocusedSnapshot(context.Context) (access.FocusSnapshot, error) {
	return access.FocusSnapshot{}, access.ErrUnsupported
}

func (Unsupported) CachedFocusedSnapshot(context.Context) (access.FocusSnapshot, error) {
	return access.FocusSnapshot{}, access.ErrUnsupported
}

func (Unsupported) FocusedSelected(context.Context) (bool, error) {
	return false, access.ErrUnsupported
}

func (Unsupported) FindNamedList(context.Context, access.WindowHandle, string, int) (access.ListHandle, error) {
	return access.ListHandle{}, access.ErrUnsupported
}

func (Unsupported) ListExists(context.Context, access.ListHandle, time.Duration) bool {
	return false
}

func (Unsupported) Children(context.Context, access.ListHandle, int, bool) ([]access.Element, error) {
	return nil, access.ErrUnsupported
}

func (Unsupported) SubscribeStructure(access.ListHandle, func(access.ChangeKind)) (access.Subscription, error) {
	return nil, access.ErrUnsupported
}

func (Unsupported) Unsubscribe(access.Subscription) error {
	return access.ErrUnsupported
}

func (Unsupported) Pump() {}
