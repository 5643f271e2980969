package app

// Event names for frontend communication.
const (
	EventModeChanged  = "mode-changed"
	EventAnnouncement = "announcement"
	EventHotkeyStatus = "hotkey-status"
)
