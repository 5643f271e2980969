// Package history keeps recently spoken announcements in a badger store.
//
// Entries expire on their own after the configured TTL. Keys sort by time,
// so the newest entries are read with a reverse prefix scan.
package history

import (
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/dgraph-io/badger/v4"

	"go.aimuz.me/chatwatch/internal/types"
)

// DefaultTTL is how long announcements are kept when no TTL is given.
const DefaultTTL = 24 * time.Hour

var keyPrefix = []byte("h/")

// Store is a persistent announcement history.
type Store struct {
	db  *badger.DB
	ttl time.Duration
}

// Open opens the store in dir. An empty dir keeps history in memory only.
func Open(dir string, ttl time.Duration) (*Store, error) {
	if ttl <= 0 {
		ttl = DefaultTTL
	}

	opts := badger.DefaultOptions(dir).WithLogger(slogLogger{})
	if dir == "" {
		opts = opts.WithInMemory(true)
	}

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open history: %w", err)
	}
	return &Store{db: db, ttl: ttl}, nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

// Add records a.
func (s *Store) Add(a types.Announcement) error {
	if a.SpokenAt.IsZero() {
		a.SpokenAt = time.Now()
	}
	val, err := json.Marshal(a)
	if err != nil {
		return fmt.Errorf("marshal announcement: %w", err)
	}
	return s.db.Update(func(txn *badger.Txn) error {
		return txn.SetEntry(badger.NewEntry(key(a), val).WithTTL(s.ttl))
	})
}

// Recent returns up to n announcements, newest first.
func (s *Store) Recent(n int) ([]types.Announcement, error) {
	if n <= 0 {
		return nil, nil
	}

	var out []types.Announcement
	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Reverse = true
		opts.Prefix = keyPrefix
		opts.PrefetchSize = min(n, 100)

		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Seek(append(append([]byte{}, keyPrefix...), 0xff)); it.ValidForPrefix(keyPrefix) && len(out) < n; it.Next() {
			var a types.Announcement
			if err := it.Item().Value(func(v []byte) error {
				return json.Unmarshal(v, &a)
			}); err != nil {
				return fmt.Errorf("decode announcement: %w", err)
			}
			out = append(out, a)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// Last returns the newest announcement.
func (s *Store) Last() (types.Announcement, bool) {
	recent, err := s.Recent(1)
	if err != nil {
		slog.Debug("read last announcement", "error", err)
		return types.Announcement{}, false
	}
	if len(recent) == 0 {
		return types.Announcement{}, false
	}
	return recent[0], true
}

// Clear removes every announcement.
func (s *Store) Clear() error {
	if err := s.db.DropPrefix(keyPrefix); err != nil && !errors.Is(err, badger.ErrKeyNotFound) {
		return fmt.Errorf("clear history: %w", err)
	}
	return nil
}

func key(a types.Announcement) []byte {
	k := make([]byte, 0, len(keyPrefix)+8+len(a.ID))
	k = append(k, keyPrefix...)
	k = binary.BigEndian.AppendUint64(k, uint64(a.SpokenAt.UnixNano()))
	return append(k, a.ID...)
}

// slogLogger routes badger's logging to slog. Badger is chatty at info
// level, so that goes to debug.
type slogLogger struct{}

func (slogLogger) Errorf(f string, v ...any)   { slog.Error("badger: " + trim(fmt.Sprintf(f, v...))) }
func (slogLogger) Warningf(f string, v ...any) { slog.Warn("badger: " + trim(fmt.Sprintf(f, v...))) }
func (slogLogger) Infof(f string, v ...any)    { slog.Debug("badger: " + trim(fmt.Sprintf(f, v...))) }
func (slogLogger) Debugf(f string, v ...any)   { slog.Debug("badger: " + trim(fmt.Sprintf(f, v...))) }

func trim(s string) string {
	return strings.TrimRight(s, "\n")
}
