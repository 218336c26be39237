// Package store persists the operator's command history.
package store

import (
	"context"
	"errors"
	"time"
)

// OutcomeOK marks a successful operation. Failures record the error kind.
const OutcomeOK = "ok"

// DefaultListLimit caps List when no limit is given.
const DefaultListLimit = 50

// ErrMissingOperation is returned when an entry has no operation name.
var ErrMissingOperation = errors.New("history entry has no operation")

// Entry is one executed engine operation.
type Entry struct {
	ID         string        `json:"id" yaml:"id"`
	Operation  string        `json:"operation" yaml:"operation"`
	Target     string        `json:"target,omitempty" yaml:"target,omitempty"`
	Outcome    string        `json:"outcome" yaml:"outcome"`
	StatusCode int           `json:"status_code,omitempty" yaml:"status_code,omitempty"`
	Message    string        `json:"message,omitempty" yaml:"message,omitempty"`
	StartedAt  time.Time     `json:"started_at" yaml:"started_at"`
	Duration   time.Duration `json:"duration" yaml:"duration"`
}

// Succeeded reports whether the operation finished without error.
func (e Entry) Succeeded() bool {
	return e.Outcome == OutcomeOK
}

// Filter narrows a List call. Zero values match everything.
type Filter struct {
	Operation string
	Target    string
	Limit     int
}

func (f Filter) limit() int {
	if f.Limit <= 0 {
		return DefaultListLimit
	}
	return f.Limit
}

func (f Filter) match(e Entry) bool {
	if f.Operation != "" && e.Operation != f.Operation {
		return false
	}
	if f.Target != "" && e.Target != f.Target {
		return false
	}
	return true
}

// HistoryStore records entries and lists them newest first.
type HistoryStore interface {
	Record(ctx context.Context, e Entry) error
	List(ctx context.Context, f Filter) ([]Entry, error)
	Close() error
}
