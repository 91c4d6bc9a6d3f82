// Package jobs implements the background job queue and worker pool.
//
// Every expensive operation in Matric (embedding generation, semantic
// linking, AI revision, title generation, context updates, concept tagging,
// corpus-wide re-embedding) runs as a Job pulled from a shared priority
// queue by a fixed pool of workers. The queue is an injected component, not
// a process-wide singleton, so tests drive it deterministically.
//
// Lifecycle: pending -> processing -> completed | failed. Terminal jobs are
// never resurrected; retry is an explicit re-enqueue by the caller.
package jobs

import (
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/orneryd/matric/pkg/store"
)

// Queue errors.
var (
	ErrInvalidJobType    = errors.New("invalid job type")
	ErrNoteNotFound      = errors.New("note not found")
	ErrJobNotFound       = errors.New("job not found")
	ErrInvalidTransition = errors.New("invalid job state transition")
)

// Type identifies what a job does. The set is closed: dispatch is an
// exhaustive switch, so adding a type is a compile-time change.
type Type int

const (
	TypeEmbedding Type = iota
	TypeLinking
	TypeAIRevision
	TypeTitleGeneration
	TypeContextUpdate
	TypeConceptTagging
	TypeReEmbedAll
)

// AllTypes lists every job type, in priority order.
var AllTypes = []Type{
	TypeAIRevision,
	TypeEmbedding,
	TypeConceptTagging,
	TypeLinking,
	TypeTitleGeneration,
	TypeContextUpdate,
	TypeReEmbedAll,
}

// String returns the wire name of the job type.
func (t Type) String() string {
	switch t {
	case TypeEmbedding:
		return "embedding"
	case TypeLinking:
		return "linking"
	case TypeAIRevision:
		return "ai_revision"
	case TypeTitleGeneration:
		return "title_generation"
	case TypeContextUpdate:
		return "context_update"
	case TypeConceptTagging:
		return "concept_tagging"
	case TypeReEmbedAll:
		return "re_embed_all"
	}
	return "unknown"
}

// ParseType converts a wire name to a Type. Anything outside the closed set
// fails with ErrInvalidJobType.
func ParseType(s string) (Type, error) {
	switch s {
	case "embedding":
		return TypeEmbedding, nil
	case "linking":
		return TypeLinking, nil
	case "ai_revision":
		return TypeAIRevision, nil
	case "title_generation":
		return TypeTitleGeneration, nil
	case "context_update":
		return TypeContextUpdate, nil
	case "concept_tagging":
		return TypeConceptTagging, nil
	case "re_embed_all":
		return TypeReEmbedAll, nil
	}
	return 0, ErrInvalidJobType
}

// DefaultPriority returns the fixed scheduling priority for a type.
// Higher runs first.
func (t Type) DefaultPriority() int {
	switch t {
	case TypeAIRevision:
		return 8
	case TypeEmbedding:
		return 5
	case TypeConceptTagging:
		return 4
	case TypeLinking:
		return 3
	case TypeTitleGeneration:
		return 2
	case TypeContextUpdate:
		return 1
	case TypeReEmbedAll:
		return 1
	}
	return 0
}

// AllowsNilNote reports whether the type is corpus-wide and may be enqueued
// without a note.
func (t Type) AllowsNilNote() bool {
	return t == TypeReEmbedAll
}

// Valid reports whether t is inside the closed set.
func (t Type) Valid() bool {
	return t >= TypeEmbedding && t <= TypeReEmbedAll
}

// MarshalText implements encoding.TextMarshaler so Types render as their
// wire names in JSON.
func (t Type) MarshalText() ([]byte, error) {
	return []byte(t.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (t *Type) UnmarshalText(text []byte) error {
	parsed, err := ParseType(string(text))
	if err != nil {
		return err
	}
	*t = parsed
	return nil
}

// Status is the lifecycle state of a job.
type Status int

const (
	StatusPending Status = iota
	StatusProcessing
	StatusCompleted
	StatusFailed
)

// String returns the wire name of the status.
func (s Status) String() string {
	switch s {
	case StatusPending:
		return "pending"
	case StatusProcessing:
		return "processing"
	case StatusCompleted:
		return "completed"
	case StatusFailed:
		return "failed"
	}
	return "unknown"
}

// ParseStatus converts a wire name to a Status.
func ParseStatus(s string) (Status, error) {
	switch s {
	case "pending":
		return StatusPending, nil
	case "processing":
		return StatusProcessing, nil
	case "completed":
		return StatusCompleted, nil
	case "failed":
		return StatusFailed, nil
	}
	return 0, errors.New("invalid job status")
}

// Terminal reports whether the status is final.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

// MarshalText implements encoding.TextMarshaler.
func (s Status) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (s *Status) UnmarshalText(text []byte) error {
	parsed, err := ParseStatus(string(text))
	if err != nil {
		return err
	}
	*s = parsed
	return nil
}

// Job is a unit of deferred background work.
//
// NoteID is empty only for corpus-wide types (re_embed_all). Error is set
// only when Status is failed. StartedAt and CompletedAt are zero until the
// corresponding transition happens.
type Job struct {
	ID          uuid.UUID    `json:"id"`
	Type        Type         `json:"job_type"`
	NoteID      store.NoteID `json:"note_id,omitempty"`
	Priority    int          `json:"priority"`
	Status      Status       `json:"status"`
	Error       string       `json:"error,omitempty"`
	CreatedAt   time.Time    `json:"created_at"`
	StartedAt   time.Time    `json:"started_at,omitzero"`
	CompletedAt time.Time    `json:"completed_at,omitzero"`
}

// clone returns a copy so queue internals never escape to callers.
func (j *Job) clone() *Job {
	if j == nil {
		return nil
	}
	c := *j
	return &c
}
