package tracker

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"
)

// Async defaults.
const (
	DefaultQueueSize     = 1000
	DefaultFlushInterval = 5 * time.Second
	DefaultBatchSize     = 100
	writeTimeout         = 10 * time.Second
)

// Async queues records and writes them in the background.
// It is safe for concurrent use.
type Async struct {
	w             Writer
	queue         chan Record
	flushInterval time.Duration
	batchSize     int
	logger        *slog.Logger

	mu      sync.RWMutex
	closed  bool
	done    chan struct{}
	dropped atomic.Int64
	written atomic.Int64
}

// AsyncOption configures an Async tracker.
type AsyncOption func(*asyncConfig)

type asyncConfig struct {
	queueSize     int
	flushInterval time.Duration
	batchSize     int
	logger        *slog.Logger
}

// WithQueueSize sets the queue capacity.
func WithQueueSize(n int) AsyncOption {
	return func(c *asyncConfig) {
		if n > 0 {
			c.queueSize = n
		}
	}
}

// WithFlushInterval sets how often queued records are written.
func WithFlushInterval(d time.Duration) AsyncOption {
	return func(c *asyncConfig) {
		if d > 0 {
			c.flushInterval = d
		}
	}
}

// WithBatchSize sets how many records trigger an early flush.
func WithBatchSize(n int) AsyncOption {
	return func(c *asyncConfig) {
		if n > 0 {
			c.batchSize = n
		}
	}
}

// WithLogger sets the logger for write failures.
func WithLogger(l *slog.Logger) AsyncOption {
	return func(c *asyncConfig) {
		if l != nil {
			c.logger = l
		}
	}
}

// NewAsync starts a background writer. Call Close to flush and stop it.
func NewAsync(w Writer, opts ...AsyncOption) *Async {
	cfg := asyncConfig{
		queueSize:     DefaultQueueSize,
		flushInterval: DefaultFlushInterval,
		batchSize:     DefaultBatchSize,
		logger:        slog.Default(),
	}
	for _, opt := range opts {
		opt(&cfg)
	}

	a := &Async{
		w:             w,
		queue:         make(chan Record, cfg.queueSize),
		flushInterval: cfg.flushInterval,
		batchSize:     cfg.batchSize,
		logger:        cfg.logger,
		done:          make(chan struct{}),
	}
	go a.run()
	return a
}

// Track implements Tracker. The record is dropped when the queue is full or
// the tracker is closed.
func (a *Async) Track(r Record) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	if a.closed {
		a.dropped.Add(1)
		return
	}
	if r.Timestamp.IsZero() {
		r.Timestamp = time.Now()
	}
	select {
	case a.queue <- r:
	default:
		a.dropped.Add(1)
	}
}

// Dropped returns how many records were discarded.
func (a *Async) Dropped() int64 { return a.dropped.Load() }

// Written returns how many records were written successfully.
func (a *Async) Written() int64 { return a.written.Load() }

// Close stops accepting records, flushes what is queued and waits for the
// writer, or for ctx to end.
func (a *Async) Close(ctx context.Context) error {
	a.mu.Lock()
	if !a.closed {
		a.closed = true
		close(a.queue)
	}
	a.mu.Unlock()

	select {
	case <-a.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (a *Async) run() {
	defer close(a.done)

	ticker := time.NewTicker(a.flushInterval)
	defer ticker.Stop()

	batch := make([]Record, 0, a.batchSize)
	flush := func() {
		if len(batch) == 0 {
			return
		}
		ctx, cancel := context.WithTimeout(context.Background(), writeTimeout)
		defer cancel()
		if err := a.w.Write(ctx, batch); err != nil {
			a.logger.Warn("failed to write call records",
				slog.Int("count", len(batch)),
				slog.Any("error", err))
		} else {
			a.written.Add(int64(len(batch)))
		}
		batch = make([]Record, 0, a.batchSize)
	}

	for {
		select {
		case r, ok := <-a.queue:
			if !ok {
				flush()
				return
			}
			batch = append(batch, r)
			if len(batch) >= a.batchSize {
				flush()
			}
		case <-ticker.C:
			flush()
		}
	}
}

var _ Tracker = (*Async)(nil)
