package tracker

import (
	"context"
	"time"

	"github.com/randalmurphal/council/model"
)

// Status is the outcome of a tracked call.
type Status string

// Statuses.
const (
	StatusSuccess Status = "success"
	StatusError   Status = "error"
	StatusTimeout Status = "timeout"
)

// Record describes one model call.
type Record struct {
	Timestamp        time.Time       `json:"timestamp"`
	Model            model.ModelName `json:"model"`
	Tier             model.Tier      `json:"tier,omitempty"`
	TaskType         string          `json:"task_type"`
	PromptTokens     int             `json:"prompt_tokens"`
	CompletionTokens int             `json:"completion_tokens"`
	TotalTokens      int             `json:"total_tokens"`
	CostUSD          float64         `json:"cost_usd"`
	Duration         time.Duration   `json:"duration"`
	Status           Status          `json:"status"`
	ErrorMessage     string          `json:"error_message,omitempty"`
	SessionID        string          `json:"session_id,omitempty"`
	RequestID        string          `json:"request_id,omitempty"`
}

// Tracker receives call records. Implementations must not block.
type Tracker interface {
	Track(r Record)
}

// Writer persists batches of records.
type Writer interface {
	Write(ctx context.Context, records []Record) error
}

// Nop discards records.
type Nop struct{}

// Track implements Tracker.
func (Nop) Track(Record) {}

// Multi fans a record out to several trackers.
type Multi []Tracker

// Track implements Tracker.
func (m Multi) Track(r Record) {
	for _, t := range m {
		if t != nil {
			t.Track(r)
		}
	}
}

// Func adapts a function to a Tracker.
type Func func(Record)

// Track implements Tracker.
func (f Func) Track(r Record) { f(r) }

var (
	_ Tracker = Nop{}
	_ Tracker = Multi(nil)
	_ Tracker = Func(nil)
)
