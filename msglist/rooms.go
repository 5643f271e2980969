package msglist

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"go.aimuz.me/chatwatch/access"
	"go.aimuz.me/chatwatch/cache"
	"go.aimuz.me/chatwatch/mode"
)

// RoomsConfig holds settings for locating a room's message list.
type RoomsConfig struct {
	ListName     string        // accessible name of the message list control
	SearchDepth  int           // tree depth searched for the list
	ExistsWait   time.Duration // how long to wait for the list to appear
	QueryTimeout time.Duration
	Detector     Config
}

// Rooms opens chat rooms by locating their message list and binding a
// Detector to it. List handles are cached per window and dropped on release.
type Rooms struct {
	tree  access.TreeReader
	subs  access.Subscriber
	lists *cache.Cache[access.ListHandle]
	cfg   RoomsConfig
}

var _ mode.Rooms = (*Rooms)(nil)

// NewRooms creates a room opener.
func NewRooms(tree access.TreeReader, subs access.Subscriber, lists *cache.Cache[access.ListHandle], cfg RoomsConfig) *Rooms {
	if cfg.SearchDepth <= 0 {
		cfg.SearchDepth = 4
	}
	if cfg.ExistsWait <= 0 {
		cfg.ExistsWait = 500 * time.Millisecond
	}
	if cfg.QueryTimeout <= 0 {
		cfg.QueryTimeout = 2 * time.Second
	}
	return &Rooms{tree: tree, subs: subs, lists: lists, cfg: cfg}
}

// Open finds the message list of the room in hwnd and returns an unstarted
// Detector for it.
func (r *Rooms) Open(ctx context.Context, hwnd access.WindowHandle) (mode.Watcher, error) {
	list, err := r.lists.GetOrCompute(cache.Key("room", hwnd, "list"), func() (access.ListHandle, error) {
		return access.Query(ctx, r.cfg.QueryTimeout, func(ctx context.Context) (access.ListHandle, error) {
			return r.tree.FindNamedList(ctx, hwnd, r.cfg.ListName, r.cfg.SearchDepth)
		})
	})
	if err != nil {
		return nil, fmt.Errorf("find message list: %w", err)
	}

	exists, _ := access.Query(ctx, r.cfg.QueryTimeout+r.cfg.ExistsWait, func(ctx context.Context) (bool, error) {
		return r.tree.ListExists(ctx, list, r.cfg.ExistsWait), nil
	})
	if !exists {
		r.Release(hwnd)
		return nil, fmt.Errorf("message list %q gone: %w", list.ID, access.ErrStaleElement)
	}

	return NewDetector(list, r.tree, r.subs, r.cfg.Detector), nil
}

// Release drops everything cached for the room in hwnd.
func (r *Rooms) Release(hwnd access.WindowHandle) {
	if n := r.lists.InvalidatePrefix(cache.Prefix("room", hwnd)); n > 0 {
		slog.Debug("released chat room", "hwnd", hwnd, "entries", n)
	}
}
