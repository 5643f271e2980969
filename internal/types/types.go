// Package types provides shared type definitions for the application.
package types

import (
	"time"

	"go.aimuz.me/chatwatch/access"
)

// MessageEvent reports items appended to a chat room's message list.
// Children is the full list as read when the change was detected.
type MessageEvent struct {
	NewCount int
	Children []access.Element
}

// Recent returns the last NewCount children.
func (e MessageEvent) Recent() []access.Element {
	n := min(e.NewCount, len(e.Children))
	if n <= 0 {
		return nil
	}
	return e.Children[len(e.Children)-n:]
}

// ModeStatus is a snapshot of the interaction mode.
type ModeStatus struct {
	Selection   bool                `json:"selection"`
	Navigation  bool                `json:"navigation"`
	ChatHandle  access.WindowHandle `json:"chatHandle,omitempty"`
	ContextMenu bool                `json:"contextMenu"`
}

// Label returns a short human-readable description of the mode.
func (s ModeStatus) Label() string {
	switch {
	case s.ContextMenu:
		return "Context menu"
	case s.Selection:
		return "Selection"
	case s.Navigation:
		return "Chat room"
	default:
		return "Idle"
	}
}

// Announcement categories beyond element categories.
const (
	CategoryMessage = "message"
	CategoryStatus  = "status"
)

// Announcement is one spoken utterance.
type Announcement struct {
	ID       string    `json:"id"`
	Text     string    `json:"text"`
	Category string    `json:"category"`
	Lang     string    `json:"lang,omitempty"` // ISO 639-1, empty when unknown
	SpokenAt time.Time `json:"spokenAt"`
}
