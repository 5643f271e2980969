// Package msglist detects new messages in a chat room's message list.
//
// A Detector subscribes to structural change notifications on one list
// control, debounces bursts of them and reports how many items were
// appended since the last reading. Subscription calls are thread-affine, so
// they are made only from the detector's own event-loop goroutine, which is
// locked to its OS thread. Other goroutines talk to it through request
// flags.
package msglist

import (
	"context"
	"errors"
	"log/slog"
	"runtime"
	"sync"
	"sync/atomic"
	"time"

	"github.com/bep/debounce"
	"go.opentelemetry.io/otel/metric"

	"go.aimuz.me/chatwatch/access"
	"go.aimuz.me/chatwatch/internal/telemetry"
	"go.aimuz.me/chatwatch/internal/types"
)

// Config holds detector settings. Zero values are replaced with defaults.
type Config struct {
	Debounce       time.Duration // quiet period before reading the list
	ResumeCooldown time.Duration // minimum paused time before re-subscribing
	PauseWait      time.Duration // bound on Pause(true)
	PumpInterval   time.Duration // sleep between event pumps
	QueryTimeout   time.Duration // bound on each children read
	StartTimeout   time.Duration // bound on the initial subscription
	JoinTimeout    time.Duration // bound on Stop waiting for the loop
	MaxDepth       int           // children search depth
}

// DefaultConfig returns the default detector configuration.
func DefaultConfig() Config {
	return Config{
		Debounce:       200 * time.Millisecond,
		ResumeCooldown: 150 * time.Millisecond,
		PauseWait:      500 * time.Millisecond,
		PumpInterval:   10 * time.Millisecond,
		QueryTimeout:   2 * time.Second,
		StartTimeout:   2 * time.Second,
		JoinTimeout:    2 * time.Second,
		MaxDepth:       1,
	}
}

func (c *Config) applyDefaults() {
	d := DefaultConfig()
	if c.Debounce <= 0 {
		c.Debounce = d.Debounce
	}
	if c.ResumeCooldown <= 0 {
		c.ResumeCooldown = d.ResumeCooldown
	}
	if c.PauseWait <= 0 {
		c.PauseWait = d.PauseWait
	}
	if c.PumpInterval <= 0 {
		c.PumpInterval = d.PumpInterval
	}
	if c.QueryTimeout <= 0 {
		c.QueryTimeout = d.QueryTimeout
	}
	if c.StartTimeout <= 0 {
		c.StartTimeout = d.StartTimeout
	}
	if c.JoinTimeout <= 0 {
		c.JoinTimeout = d.JoinTimeout
	}
	if c.MaxDepth <= 0 {
		c.MaxDepth = d.MaxDepth
	}
}

// State is what the detector knows about its list.
type State struct {
	Window         access.WindowHandle
	LastKnownCount int
	LastChildren   []access.Element
}

// Detector watches one list control. Create one with NewDetector; a
// detector can be started once.
type Detector struct {
	list access.ListHandle
	tree access.TreeReader
	subs access.Subscriber
	cfg  Config

	debounced func(func())

	mu          sync.Mutex
	state       State
	baselineSet bool
	callback    func(types.MessageEvent)
	running     bool
	generation  uint64
	pending     int

	// Request flags serviced by the event loop.
	paused      bool // requested pause, also gates notifications
	wantResume  bool
	pausedAt    time.Time
	pauseDone   chan struct{}
	inflight    atomic.Int32
	kick        chan struct{}
	quit        chan struct{}
	done        chan struct{}
	stopOnce    sync.Once
	startedOnce bool

	emitted metric.Int64Counter
	stale   metric.Int64Counter
}

// NewDetector creates a detector bound to list.
func NewDetector(list access.ListHandle, tree access.TreeReader, subs access.Subscriber, cfg Config) *Detector {
	cfg.applyDefaults()
	return &Detector{
		list:      list,
		tree:      tree,
		subs:      subs,
		cfg:       cfg,
		debounced: debounce.New(cfg.Debounce),
		state:     State{Window: list.Window},
		kick:      make(chan struct{}, 1),
		quit:      make(chan struct{}),
		done:      make(chan struct{}),
		emitted:   telemetry.Counter("chatwatch.msglist.events", "New-message events emitted"),
		stale:     telemetry.Counter("chatwatch.msglist.stale_flushes", "Debounced reads discarded as superseded"),
	}
}

// Start records the current item count, subscribes to changes and begins
// delivering events to callback. It reports whether the subscription was
// made; on false the detector is unusable.
func (d *Detector) Start(callback func(types.MessageEvent)) bool {
	d.mu.Lock()
	if d.running {
		d.mu.Unlock()
		return true
	}
	if d.startedOnce {
		d.mu.Unlock()
		slog.Warn("message detector cannot be restarted", "list", d.list.ID)
		return false
	}
	d.startedOnce = true
	d.running = true
	d.callback = callback
	d.mu.Unlock()

	// Existing items must not be reported as new.
	children, err := d.readChildren()
	d.mu.Lock()
	if err == nil {
		d.state.LastKnownCount = len(children)
		d.state.LastChildren = children
		d.baselineSet = true
	}
	d.mu.Unlock()
	if err != nil {
		slog.Debug("read initial message count", "list", d.list.ID, "error", err)
	}

	ready := make(chan error, 1)
	go d.loop(ready)

	select {
	case err = <-ready:
	case <-time.After(d.cfg.StartTimeout):
		err = errors.New("subscription timed out")
		d.shutdown()
	}
	if err != nil {
		d.mu.Lock()
		d.running = false
		d.mu.Unlock()
		slog.Warn("subscribe message list", "list", d.list.ID, "error", err)
		return false
	}

	slog.Debug("message detector started", "list", d.list.ID, "count", d.LastKnownCount())
	return true
}

// Stop unsubscribes and ends the event loop, waiting a bounded time.
func (d *Detector) Stop() {
	d.mu.Lock()
	if !d.running {
		d.mu.Unlock()
		return
	}
	d.running = false
	d.generation++
	d.mu.Unlock()

	d.shutdown()

	select {
	case <-d.done:
		slog.Debug("message detector stopped", "list", d.list.ID)
	case <-time.After(d.cfg.JoinTimeout):
		slog.Warn("message detector loop did not exit in time", "list", d.list.ID)
	}
}

func (d *Detector) shutdown() {
	d.stopOnce.Do(func() { close(d.quit) })
}

// Pause asks the event loop to unsubscribe. No notification is processed
// after Pause returns. With wait set it blocks until the loop confirms the
// unsubscription and any in-progress delivery has finished, or PauseWait
// passes; it reports whether confirmation arrived.
func (d *Detector) Pause(wait bool) bool {
	d.mu.Lock()
	if !d.running {
		d.mu.Unlock()
		return true
	}
	if d.paused {
		d.wantResume = false
		ch := d.pauseDone
		d.mu.Unlock()
		d.poke()
		return !wait || d.await(ch)
	}
	d.paused = true
	d.wantResume = false
	d.pausedAt = time.Now()
	d.generation++ // drop any pending debounced read
	d.pauseDone = make(chan struct{})
	ch := d.pauseDone
	d.mu.Unlock()

	d.poke()
	if !wait {
		return true
	}
	return d.await(ch)
}

func (d *Detector) await(ch chan struct{}) bool {
	deadline := time.Now().Add(d.cfg.PauseWait)
	select {
	case <-ch:
	case <-time.After(d.cfg.PauseWait):
		return false
	}
	for d.inflight.Load() > 0 {
		if time.Now().After(deadline) {
			return false
		}
		time.Sleep(time.Millisecond)
	}
	return true
}

// Resume asks the event loop to subscribe again. A resume arriving within
// ResumeCooldown of the pause is not ignored: it is held back until the
// cooldown has passed, and dropped only if another pause arrives first.
// Closing a menu shortly after opening it therefore still resumes.
func (d *Detector) Resume() {
	d.mu.Lock()
	if !d.running || !d.paused {
		d.mu.Unlock()
		return
	}
	d.wantResume = true
	d.mu.Unlock()
	d.poke()
}

// LastKnownCount returns the item count from the latest reading.
func (d *Detector) LastKnownCount() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.state.LastKnownCount
}

// State returns a copy of the detector's list state.
func (d *Detector) State() State {
	d.mu.Lock()
	defer d.mu.Unlock()
	s := d.state
	s.LastChildren = append([]access.Element(nil), d.state.LastChildren...)
	return s
}

// Paused reports whether a pause is in effect.
func (d *Detector) Paused() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.paused
}

func (d *Detector) poke() {
	select {
	case d.kick <- struct{}{}:
	default:
	}
}

// ─────────────────────────────────────────────────────────────────────────────
// Event loop (owns the subscription)
// ─────────────────────────────────────────────────────────────────────────────

func (d *Detector) loop(ready chan<- error) {
	defer close(d.done)

	runtime.LockOSThread()
	defer runtime.UnlockOSThread()

	sub, err := d.subs.SubscribeStructure(d.list, d.notify)
	ready <- err
	if err != nil {
		return
	}

	ticker := time.NewTicker(d.cfg.PumpInterval)
	defer ticker.Stop()

	for {
		select {
		case <-d.quit:
			if sub != nil {
				if err := d.subs.Unsubscribe(sub); err != nil {
					slog.Debug("unsubscribe message list", "list", d.list.ID, "error", err)
				}
			}
			return
		case <-d.kick:
		case <-ticker.C:
			if sub != nil {
				d.subs.Pump()
			}
		}
		sub = d.service(sub)
	}
}

// service applies pending pause and resume requests.
func (d *Detector) service(sub access.Subscription) access.Subscription {
	d.mu.Lock()
	paused, wantResume, pausedAt, done := d.paused, d.wantResume, d.pausedAt, d.pauseDone
	d.mu.Unlock()

	if paused && !wantResume && sub != nil {
		if err := d.subs.Unsubscribe(sub); err != nil {
			slog.Debug("unsubscribe message list", "list", d.list.ID, "error", err)
		}
		sub = nil
	}
	if paused && sub == nil && done != nil {
		d.mu.Lock()
		if d.pauseDone == done {
			select {
			case <-done:
			default:
				close(done)
			}
		}
		d.mu.Unlock()
	}

	if paused && wantResume {
		if wait := d.cfg.ResumeCooldown - time.Since(pausedAt); wait > 0 {
			// Re-check once the cooldown ends; the ticker keeps us awake.
			return sub
		}
		if sub == nil {
			s, err := d.subs.SubscribeStructure(d.list, d.notify)
			if err != nil {
				// No automatic retry: the detector stays paused.
				d.mu.Lock()
				d.wantResume = false
				d.mu.Unlock()
				slog.Warn("resubscribe message list", "list", d.list.ID, "error", err)
				return nil
			}
			sub = s
		}
		d.mu.Lock()
		if d.pausedAt.Equal(pausedAt) && d.wantResume {
			d.paused = false
			d.wantResume = false
		}
		d.mu.Unlock()
		slog.Debug("message detector resumed", "list", d.list.ID)
	}
	return sub
}

// notify handles one raw structural change notification.
func (d *Detector) notify(kind access.ChangeKind) {
	if !kind.Significant() {
		return
	}

	d.mu.Lock()
	if d.paused || !d.running {
		d.mu.Unlock()
		return
	}
	d.pending++
	d.generation++
	gen := d.generation
	d.mu.Unlock()

	d.debounced(func() { d.flush(gen) })
}

// flush reads the list once the burst tagged gen has gone quiet.
func (d *Detector) flush(gen uint64) {
	d.mu.Lock()
	if gen != d.generation || d.paused || !d.running {
		d.mu.Unlock()
		d.stale.Add(context.Background(), 1)
		return
	}
	d.inflight.Add(1)
	pending := d.pending
	d.pending = 0
	d.mu.Unlock()
	defer d.inflight.Add(-1)

	children, err := d.readChildren()
	if err != nil {
		if !access.IsTransient(err) {
			slog.Warn("read message list", "list", d.list.ID, "error", err)
		}
		return
	}

	d.mu.Lock()
	if gen != d.generation || d.paused || !d.running {
		d.mu.Unlock()
		d.stale.Add(context.Background(), 1)
		return
	}
	count := len(children)
	delta := count - d.state.LastKnownCount
	if !d.baselineSet {
		delta = 0
		d.baselineSet = true
	}
	d.state.LastKnownCount = count
	d.state.LastChildren = children
	cb := d.callback
	d.mu.Unlock()

	if delta <= 0 {
		slog.Debug("message list changed without new items", "list", d.list.ID, "count", count, "notifications", pending)
		return
	}

	d.emitted.Add(context.Background(), 1)
	slog.Debug("new messages", "list", d.list.ID, "new", delta, "notifications", pending)
	if cb != nil {
		cb(types.MessageEvent{NewCount: delta, Children: children})
	}
}

func (d *Detector) readChildren() ([]access.Element, error) {
	return access.Query(context.Background(), d.cfg.QueryTimeout,
		func(ctx context.Context) ([]access.Element, error) {
			return d.tree.Children(ctx, d.list, d.cfg.MaxDepth, true)
		})
}
