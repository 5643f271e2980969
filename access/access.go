// Package access defines the accessibility-interface boundary consumed by
// the monitoring core.
//
// The platform backend (UI Automation, AT-SPI, ...) lives outside this
// module. It is split per capability so tests can script each part
// independently. Every method that reaches the platform takes a context;
// callers bound it with Query.
package access

import (
	"context"
	"errors"
	"fmt"
	"time"
)

var (
	// ErrUnavailable reports that a query produced no value this time.
	ErrUnavailable = errors.New("access: value unavailable")

	// ErrStaleElement reports that a cached element reference no longer
	// exists in the live UI tree. Treat it like ErrUnavailable.
	ErrStaleElement = errors.New("access: stale element")

	// ErrUnsupported reports that the platform lacks the capability.
	ErrUnsupported = errors.New("access: unsupported")

	// ErrTimeout reports that a query did not finish within its bound.
	ErrTimeout = errors.New("access: query timed out")
)

// Category is the control type of a UI element.
type Category int

const (
	CategoryUnknown Category = iota
	CategoryListItem
	CategoryTabItem
	CategoryMenuItem
	CategoryButton
	CategoryEdit
	CategoryText
	CategoryOther
)

var categoryNames = map[Category]string{
	CategoryUnknown:  "unknown",
	CategoryListItem: "list-item",
	CategoryTabItem:  "tab-item",
	CategoryMenuItem: "menu-item",
	CategoryButton:   "button",
	CategoryEdit:     "edit",
	CategoryText:     "text",
	CategoryOther:    "other",
}

func (c Category) String() string {
	if s, ok := categoryNames[c]; ok {
		return s
	}
	return fmt.Sprintf("category(%d)", int(c))
}

// FocusSnapshot describes the element currently focused in the OS.
// It is read fresh on every poll tick and never stored.
type FocusSnapshot struct {
	Category     Category
	DisplayName  string
	ClassName    string
	AutomationID string
}

// Element is a child of a list control.
type Element struct {
	Name      string
	Category  Category
	ClassName string
}

// WindowHandle is an opaque top-level window identifier.
type WindowHandle uintptr

// ListHandle identifies a list control inside a window.
type ListHandle struct {
	Window WindowHandle
	ID     string
}

// WindowKind classifies the foreground window.
type WindowKind int

const (
	// WindowNone means the window does not belong to the target application.
	WindowNone WindowKind = iota
	WindowMain
	WindowChat
	WindowMenu
)

func (k WindowKind) String() string {
	switch k {
	case WindowMain:
		return "main"
	case WindowChat:
		return "chat"
	case WindowMenu:
		return "menu"
	default:
		return "none"
	}
}

// WindowInfo is the classification of one window.
type WindowInfo struct {
	Kind   WindowKind
	Handle WindowHandle
}

// ChangeKind is the kind of a structural change notification.
type ChangeKind int

const (
	ChangeChildAdded ChangeKind = iota
	ChangeChildRemoved
	ChangeChildrenInvalidated
	ChangeChildrenBulkAdded
	ChangeChildrenBulkRemoved
	ChangeChildrenReordered
)

// Significant reports whether the change can mean new items arrived.
func (k ChangeKind) Significant() bool {
	switch k {
	case ChangeChildAdded, ChangeChildrenInvalidated, ChangeChildrenBulkAdded:
		return true
	default:
		return false
	}
}

// FocusReader reads the focused element.
type FocusReader interface {
	// FocusedSnapshot reads the focused element with one call per property.
	FocusedSnapshot(ctx context.Context) (FocusSnapshot, error)

	// CachedFocusedSnapshot reads all properties in one round trip using a
	// pre-declared batched request. Returns ErrUnsupported when the
	// platform cannot do that.
	CachedFocusedSnapshot(ctx context.Context) (FocusSnapshot, error)

	// FocusedSelected reports the selection state of the focused element.
	// It is expensive and only asked for tab items.
	FocusedSelected(ctx context.Context) (bool, error)
}

// TreeReader queries the element tree.
type TreeReader interface {
	FindNamedList(ctx context.Context, parent WindowHandle, name string, depth int) (ListHandle, error)
	ListExists(ctx context.Context, list ListHandle, maxWait time.Duration) bool
	Children(ctx context.Context, list ListHandle, maxDepth int, filterEmpty bool) ([]Element, error)
}

// Subscription is an active structural change subscription.
type Subscription interface {
	List() ListHandle
}

// Subscriber manages structural change subscriptions.
//
// Subscribe, Unsubscribe and Pump are thread-affine: they must be called
// from the OS thread that created the subscription.
type Subscriber interface {
	SubscribeStructure(list ListHandle, handler func(ChangeKind)) (Subscription, error)
	Unsubscribe(sub Subscription) error
	// Pump dispatches queued platform notifications to handlers.
	Pump()
}

// WindowClassifier identifies windows of the target application.
type WindowClassifier interface {
	Foreground(ctx context.Context) (WindowHandle, error)
	Classify(ctx context.Context, hwnd WindowHandle) (WindowInfo, error)
	// MenuVisible reports whether a popup menu of the target application
	// is on screen.
	MenuVisible(ctx context.Context) (bool, error)
}

// Backend bundles the collaborators supplied by the platform.
type Backend struct {
	Focus   FocusReader
	Tree    TreeReader
	Events  Subscriber
	Windows WindowClassifier
}

// Validate reports whether every collaborator is set.
func (b Backend) Validate() error {
	switch {
	case b.Focus == nil:
		return errors.New("access: focus reader required")
	case b.Tree == nil:
		return errors.New("access: tree reader required")
	case b.Events == nil:
		return errors.New("access: subscriber required")
	case b.Windows == nil:
		return errors.New("access: window classifier required")
	}
	return nil
}

// IsTransient reports whether err means "no value this time" rather than a
// real failure worth surfacing.
func IsTransient(err error) bool {
	return errors.Is(err, ErrUnavailable) ||
		errors.Is(err, ErrStaleElement) ||
		errors.Is(err, ErrTimeout) ||
		errors.Is(err, context.DeadlineExceeded)
}
