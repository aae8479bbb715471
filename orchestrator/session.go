package orchestrator

import (
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/randalmurphal/council/budget"
	"github.com/randalmurphal/council/classify"
	"github.com/randalmurphal/council/model"
)

// SessionEnv names the environment variable that pins the session id.
const SessionEnv = "COUNCIL_SESSION_ID"

// Task types recorded with every tracked call.
const (
	TaskQuery      = "query"
	TaskResearch   = "research"
	TaskDiamond    = "diamond"
	TaskDebate     = "debate"
	TaskBrainstorm = "brainstorm"
	TaskRefine     = "refine"
	TaskReview     = "build_review"
)

// Session carries per-query state through a protocol run. Concurrent runs
// each get their own Session.
type Session struct {
	ID       string
	Tier     model.Tier
	Budget   budget.Snapshot
	TaskType string
	Metadata classify.Metadata
	Started  time.Time
}

// NewSession creates a session with a fresh id.
func NewSession(tier model.Tier, snap budget.Snapshot) Session {
	return Session{
		ID:      NewSessionID(),
		Tier:    tier,
		Budget:  snap,
		Started: time.Now(),
	}
}

// NewSessionID returns $COUNCIL_SESSION_ID or a random UUID.
func NewSessionID() string {
	if id := os.Getenv(SessionEnv); id != "" {
		return id
	}
	return uuid.NewString()
}

func (s Session) withTask(task string) Session {
	if s.ID == "" {
		s.ID = NewSessionID()
	}
	if s.Started.IsZero() {
		s.Started = time.Now()
	}
	if s.TaskType == "" {
		s.TaskType = task
	}
	return s
}
