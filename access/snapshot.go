package access

import (
	"context"
	"errors"
	"log/slog"
	"time"
)

// SnapshotCache fetches the focused element's properties in a single
// backend round trip.
//
// It holds no values. A false result means "use the per-property path this
// tick", never "nothing is focused".
type SnapshotCache struct {
	reader  FocusReader
	timeout time.Duration
}

// NewSnapshotCache creates a snapshot adapter over reader.
func NewSnapshotCache(reader FocusReader, timeout time.Duration) *SnapshotCache {
	return &SnapshotCache{reader: reader, timeout: timeout}
}

// Focused returns the focused element snapshot if the batched query works.
func (s *SnapshotCache) Focused(ctx context.Context) (FocusSnapshot, bool) {
	snap, err := Query(ctx, s.timeout, s.reader.CachedFocusedSnapshot)
	if err != nil {
		if !errors.Is(err, ErrUnsupported) && !IsTransient(err) {
			slog.Debug("batched focus query", "error", err)
		}
		return FocusSnapshot{}, false
	}
	return snap, true
}

// ReadFocus returns the focused element snapshot, preferring the batched
// query and falling back to the per-property path.
func ReadFocus(ctx context.Context, s *SnapshotCache, reader FocusReader, timeout time.Duration) (FocusSnapshot, error) {
	if snap, ok := s.Focused(ctx); ok {
		return snap, nil
	}
	return Query(ctx, timeout, reader.FocusedSnapshot)
}
