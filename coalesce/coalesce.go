// Package coalesce batches keyed events so bursts collapse into one delivery
// per key.
//
// A dedicated flusher goroutine sleeps until an event arrives, waits a short
// batching window, then hands each pending key's latest payload to the
// consumer. Nothing runs while no events are pending.
package coalesce

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/emirpasic/gods/maps/linkedhashmap"
	"go.opentelemetry.io/otel/metric"

	"go.aimuz.me/chatwatch/internal/telemetry"
)

const (
	// DefaultFlushInterval is the batching window after the first pending event.
	DefaultFlushInterval = 20 * time.Millisecond
	// DefaultMaxWait bounds how long the flusher sleeps between checks.
	DefaultMaxWait = time.Second
)

// Consumer receives one coalesced event. Calls never overlap. A consumer
// must not call Add with immediate set.
type Consumer[P any] func(key string, payload P)

// Config holds coalescer settings. Zero values are replaced with defaults.
type Config struct {
	FlushInterval time.Duration
	MaxWait       time.Duration
}

// Batch maps keys to their most recent payload. Re-adding a key moves it to
// the end, so iteration order is "least recently touched first".
// Not safe for concurrent use.
type Batch[P any] struct {
	m *linkedhashmap.Map
}

// NewBatch returns an empty batch.
func NewBatch[P any]() *Batch[P] {
	return &Batch[P]{m: linkedhashmap.New()}
}

// Put stores payload under key, replacing and repositioning any prior value.
func (b *Batch[P]) Put(key string, payload P) {
	b.m.Remove(key)
	b.m.Put(key, payload)
}

// Remove deletes key.
func (b *Batch[P]) Remove(key string) {
	b.m.Remove(key)
}

// Len returns the number of pending keys.
func (b *Batch[P]) Len() int {
	return b.m.Size()
}

// Each calls fn for every entry in recency order.
func (b *Batch[P]) Each(fn func(key string, payload P)) {
	b.m.Each(func(k, v any) {
		fn(k.(string), v.(P))
	})
}

type item[P any] struct {
	payload P
	seq     uint64
}

// Coalescer batches events by key and delivers them to a consumer.
type Coalescer[P any] struct {
	consume Consumer[P]
	cfg     Config

	mu      sync.Mutex
	pending *Batch[item[P]]
	seq     uint64
	stopped bool

	// deliverMu serializes consumer calls; delivered holds the newest
	// sequence number handed to the consumer per key.
	deliverMu sync.Mutex
	delivered map[string]uint64

	wake chan struct{}
	quit chan struct{}
	done chan struct{}

	flushes metric.Int64Counter
}

// New creates a coalescer and starts its flusher goroutine.
func New[P any](cfg Config, consume Consumer[P]) *Coalescer[P] {
	if cfg.FlushInterval <= 0 {
		cfg.FlushInterval = DefaultFlushInterval
	}
	if cfg.MaxWait <= 0 {
		cfg.MaxWait = DefaultMaxWait
	}

	c := &Coalescer[P]{
		consume: consume,
		cfg:     cfg,
		pending:   NewBatch[item[P]](),
		delivered: make(map[string]uint64),
		wake:    make(chan struct{}, 1),
		quit:    make(chan struct{}),
		done:    make(chan struct{}),
		flushes: telemetry.Counter("chatwatch.coalesce.flushes", "Coalesced events delivered to the consumer"),
	}
	go c.run()
	return c
}

// Add queues payload under key. When immediate is set the consumer is
// called synchronously and any queued payload for key is dropped.
func (c *Coalescer[P]) Add(key string, payload P, immediate bool) {
	c.mu.Lock()
	if c.stopped {
		c.mu.Unlock()
		slog.Debug("coalescer stopped, dropping event", "key", key)
		return
	}
	c.seq++
	it := item[P]{payload: payload, seq: c.seq}
	if immediate {
		c.pending.Remove(key)
		c.mu.Unlock()
		c.deliver(key, it)
		return
	}
	c.pending.Put(key, it)
	c.mu.Unlock()

	select {
	case c.wake <- struct{}{}:
	default:
	}
}

// Pending returns the number of queued keys.
func (c *Coalescer[P]) Pending() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.pending.Len()
}

// Flush delivers all queued events now, on the caller's goroutine.
func (c *Coalescer[P]) Flush() {
	batch := c.take()
	if batch == nil {
		return
	}
	batch.Each(c.deliver)
}

// Stop ends the flusher, delivers whatever is still queued and waits for
// the flusher to exit. Later Adds are dropped.
func (c *Coalescer[P]) Stop() {
	c.mu.Lock()
	if c.stopped {
		c.mu.Unlock()
		return
	}
	c.stopped = true
	c.mu.Unlock()

	close(c.quit)
	<-c.done
	c.Flush()
}

func (c *Coalescer[P]) run() {
	defer close(c.done)

	timer := time.NewTimer(c.cfg.MaxWait)
	defer timer.Stop()

	for {
		select {
		case <-c.quit:
			return
		case <-c.wake:
		case <-timer.C:
		}
		timer.Reset(c.cfg.MaxWait)

		if c.Pending() == 0 {
			continue
		}

		// Let a burst finish before delivering.
		select {
		case <-c.quit:
			return
		case <-time.After(c.cfg.FlushInterval):
		}
		c.Flush()
	}
}

// take swaps out the pending batch. Returns nil when nothing is queued.
func (c *Coalescer[P]) take() *Batch[item[P]] {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.pending.Len() == 0 {
		return nil
	}
	batch := c.pending
	c.pending = NewBatch[item[P]]()
	return batch
}

// deliver hands it to the consumer unless a newer payload for key has
// already been delivered, which happens when an immediate Add overtakes a
// batch the flusher has taken but not yet delivered.
func (c *Coalescer[P]) deliver(key string, it item[P]) {
	c.deliverMu.Lock()
	defer c.deliverMu.Unlock()
	if it.seq < c.delivered[key] {
		slog.Debug("coalescer dropping superseded event", "key", key)
		return
	}
	c.delivered[key] = it.seq

	defer func() {
		if r := recover(); r != nil {
			slog.Error("coalesce consumer panic", "key", key, "panic", r)
		}
	}()
	c.flushes.Add(context.Background(), 1)
	c.consume(key, it.payload)
}
