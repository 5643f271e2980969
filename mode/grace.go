package mode

import "time"

// GracePeriod damps flapping: a state change is acted on only once
// Duration has passed since Reference.
type GracePeriod struct {
	Reference time.Time
	Duration  time.Duration
}

// Elapsed reports whether more than Duration has passed since Reference.
// A zero Reference never elapses.
func (g GracePeriod) Elapsed(now time.Time) bool {
	if g.Reference.IsZero() {
		return false
	}
	return now.Sub(g.Reference) > g.Duration
}
