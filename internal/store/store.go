package store

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"slices"
	"time"

	"github.com/mohammad-safakhou/wikiwriter/internal/article"
)

var (
	// ErrNotFound is returned for an unknown run id.
	ErrNotFound = errors.New("run not found")
	// ErrExists is returned when creating a run id that is already stored.
	ErrExists = errors.New("run already exists")
	// ErrInvalidTransition is returned when an update breaks the run state machine.
	ErrInvalidTransition = errors.New("invalid run status transition")
	// ErrImmutable is returned when an update rewrites a field that may only be set once.
	ErrImmutable = errors.New("immutable run field")
)

// Status is the lifecycle state of a run.
type Status string

const (
	StatusQueued   Status = "queued"
	StatusRunning  Status = "running"
	StatusFinished Status = "finished"
	StatusFailed   Status = "failed"
)

// Terminal reports whether no further transitions are allowed.
func (s Status) Terminal() bool {
	return s == StatusFinished || s == StatusFailed
}

// Valid reports whether s is a known status.
func (s Status) Valid() bool {
	switch s {
	case StatusQueued, StatusRunning, StatusFinished, StatusFailed:
		return true
	}
	return false
}

// CanTransition reports whether a run may move from s to next. Staying in a
// non-terminal state is allowed so the step label can advance.
func (s Status) CanTransition(next Status) bool {
	switch s {
	case StatusQueued:
		return next == StatusQueued || next == StatusRunning || next == StatusFailed
	case StatusRunning:
		return next == StatusRunning || next == StatusFinished || next == StatusFailed
	default:
		return false
	}
}

// Record is the state of one generation run.
type Record struct {
	ID        string          `json:"run_id"`
	Status    Status          `json:"status"`
	Step      string          `json:"step,omitempty"`
	Error     string          `json:"error,omitempty"`
	Article   *article.Record `json:"article,omitempty"`
	Topic     string          `json:"topic,omitempty"`
	Language  string          `json:"language,omitempty"`
	CreatedAt time.Time       `json:"created_at"`
	UpdatedAt time.Time       `json:"updated_at"`
}

// NewRecord returns a queued record for id.
func NewRecord(id, topic, language string) Record {
	return Record{ID: id, Status: StatusQueued, Topic: topic, Language: language}
}

// Snapshot returns a copy that shares no mutable state with r.
func (r Record) Snapshot() Record {
	out := r
	if r.Article != nil {
		a := *r.Article
		a.Tags = slices.Clone(r.Article.Tags)
		a.Sections = slices.Clone(r.Article.Sections)
		a.References = slices.Clone(r.Article.References)
		out.Article = &a
	}
	return out
}

// Mutator edits a record in place during Update. Returning an error aborts the
// update without persisting anything.
type Mutator func(*Record) error

// Store keeps run records keyed by run id. Only the executor handling a run
// writes to it; every other caller reads.
type Store interface {
	Create(ctx context.Context, rec Record) error
	Get(ctx context.Context, id string) (Record, error)
	Update(ctx context.Context, id string, mutate Mutator) (Record, error)
}

// Watcher is implemented by stores that can push changes. The channel yields
// the latest record after every successful update and is closed once the run is
// terminal or ctx is done.
type Watcher interface {
	Watch(ctx context.Context, id string) (<-chan Record, error)
}

// checkCreate validates a record about to be stored for the first time.
func checkCreate(rec Record) error {
	if rec.ID == "" {
		return errors.New("run id is required")
	}
	if rec.Status == "" {
		return errors.New("run status is required")
	}
	if !rec.Status.Valid() {
		return fmt.Errorf("%w: unknown status %q", ErrInvalidTransition, rec.Status)
	}
	return checkShape(rec)
}

// checkUpdate enforces the record invariants between prev and next.
func checkUpdate(prev, next Record) error {
	if next.ID != prev.ID {
		return fmt.Errorf("%w: run_id", ErrImmutable)
	}
	if !next.CreatedAt.Equal(prev.CreatedAt) {
		return fmt.Errorf("%w: created_at", ErrImmutable)
	}
	if prev.Status.Terminal() {
		if next.Status != prev.Status || next.Step != prev.Step || next.Error != prev.Error || articleChanged(prev.Article, next.Article) {
			return fmt.Errorf("%w: run is already %s", ErrInvalidTransition, prev.Status)
		}
		return nil
	}
	if !prev.Status.CanTransition(next.Status) {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, prev.Status, next.Status)
	}
	if prev.Error != "" && next.Error != prev.Error {
		return fmt.Errorf("%w: error", ErrImmutable)
	}
	if prev.Article != nil && articleChanged(prev.Article, next.Article) {
		return fmt.Errorf("%w: article", ErrImmutable)
	}
	return checkShape(next)
}

func articleChanged(a, b *article.Record) bool {
	if a == nil || b == nil {
		return a != b
	}
	return !reflect.DeepEqual(*a, *b)
}

func checkShape(rec Record) error {
	if rec.Article != nil && rec.Status != StatusFinished {
		return fmt.Errorf("%w: article may only be set on a finished run", ErrInvalidTransition)
	}
	if rec.Status == StatusFinished && rec.Article == nil {
		return fmt.Errorf("%w: finished run without article", ErrInvalidTransition)
	}
	if rec.Error != "" && rec.Status != StatusFailed {
		return fmt.Errorf("%w: error may only be set on a failed run", ErrInvalidTransition)
	}
	return nil
}
