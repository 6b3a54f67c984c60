package story

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

// Turn is one recorded action and its generated outcome. Player is the
// display name at the time of the turn, not a live reference.
type Turn struct {
	ID      string    `json:"id"`
	Player  string    `json:"player"`
	Action  string    `json:"action"`
	Outcome string    `json:"outcome"`
	At      time.Time `json:"at"`
}

// EventLog is an append-only, insertion-ordered list of turns kept for the
// lifetime of the process. It is safe for concurrent use.
type EventLog struct {
	mu    sync.RWMutex
	turns []Turn
	now   func() time.Time
}

// NewEventLog returns an empty EventLog.
func NewEventLog() *EventLog {
	return &EventLog{now: time.Now}
}

// Append records t, filling in ID and At when they are unset, and returns the
// stored turn.
func (l *EventLog) Append(t Turn) Turn {
	if t.ID == "" {
		t.ID = uuid.NewString()
	}
	if t.At.IsZero() {
		t.At = l.now().UTC()
	}

	l.mu.Lock()
	l.turns = append(l.turns, t)
	l.mu.Unlock()

	return t
}

// Last returns up to n of the most recent turns, oldest first. The returned
// slice is a copy.
func (l *EventLog) Last(n int) []Turn {
	if n <= 0 {
		return nil
	}

	l.mu.RLock()
	defer l.mu.RUnlock()

	start := max(len(l.turns)-n, 0)
	out := make([]Turn, len(l.turns)-start)
	copy(out, l.turns[start:])
	return out
}

// Len returns the number of recorded turns.
func (l *EventLog) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.turns)
}
