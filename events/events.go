// Package events broadcasts council events such as budget threshold
// breaches.
//
// Publishing is best effort. The council never waits on a subscriber and
// never fails because a publish failed.
package events

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/nats-io/nats.go"
)

// Type names an event.
type Type string

// Event types.
const (
	TypeBudgetThreshold Type = "budget.threshold"
	TypeBudgetRejected  Type = "budget.rejected"
	TypeSessionComplete Type = "session.complete"
)

// DefaultSubject is the NATS subject prefix.
const DefaultSubject = "council.events"

// Event is one broadcast message.
type Event struct {
	Type      Type           `json:"type"`
	Timestamp time.Time      `json:"timestamp"`
	SessionID string         `json:"session_id,omitempty"`
	Message   string         `json:"message"`
	Data      map[string]any `json:"data,omitempty"`
}

// Publisher sends events.
type Publisher interface {
	Publish(ctx context.Context, e Event) error
}

// Nop discards events.
type Nop struct{}

// Publish implements Publisher.
func (Nop) Publish(context.Context, Event) error { return nil }

// Recorder keeps published events in memory.
type Recorder struct {
	mu     sync.Mutex
	events []Event
}

// Publish implements Publisher.
func (r *Recorder) Publish(_ context.Context, e Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
	return nil
}

// Events returns a copy of the recorded events.
func (r *Recorder) Events() []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Event(nil), r.events...)
}

// Subject returns the full subject for an event type under prefix.
func Subject(prefix string, t Type) string {
	if prefix == "" {
		prefix = DefaultSubject
	}
	return fmt.Sprintf("%s.%s", prefix, t)
}

// Encode renders an event as its wire payload.
func Encode(e Event) ([]byte, error) {
	if e.Timestamp.IsZero() {
		e.Timestamp = time.Now().UTC()
	}
	return json.Marshal(e)
}

// NATS publishes events to a NATS server.
type NATS struct {
	conn   *nats.Conn
	prefix string
	logger *slog.Logger
}

// ConnectNATS connects to url and publishes under prefix.
func ConnectNATS(url, prefix string, logger *slog.Logger) (*NATS, error) {
	if url == "" {
		url = nats.DefaultURL
	}
	if logger == nil {
		logger = slog.Default()
	}
	nc, err := nats.Connect(url,
		nats.Name("council"),
		nats.Timeout(5*time.Second),
		nats.MaxReconnects(3),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				logger.Warn("nats disconnected", slog.Any("error", err))
			}
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("connect nats: %w", err)
	}
	return &NATS{conn: nc, prefix: prefix, logger: logger}, nil
}

// Publish implements Publisher.
func (p *NATS) Publish(ctx context.Context, e Event) error {
	if p == nil || p.conn == nil {
		return nats.ErrConnectionClosed
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	data, err := Encode(e)
	if err != nil {
		return err
	}
	return p.conn.Publish(Subject(p.prefix, e.Type), data)
}

// Close drains and closes the connection.
func (p *NATS) Close() error {
	if p == nil || p.conn == nil {
		return nil
	}
	if err := p.conn.Drain(); err != nil && !errors.Is(err, nats.ErrConnectionClosed) {
		p.conn.Close()
		return err
	}
	return nil
}

var (
	_ Publisher = Nop{}
	_ Publisher = (*Recorder)(nil)
	_ Publisher = (*NATS)(nil)
)
