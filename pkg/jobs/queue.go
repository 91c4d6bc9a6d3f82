package jobs

import (
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/orneryd/matric/pkg/store"
)

// NoteChecker is the slice of the note store the queue needs: existence
// checks at enqueue time. *store.MemoryStore and *store.BadgerStore both
// satisfy it.
type NoteChecker interface {
	NoteExists(id store.NoteID) bool
}

// Queue is the shared priority job queue.
//
// Duplicate policy: enqueueing a (note_id, job_type) pair that already has a
// pending or processing job returns the existing job instead of creating a
// second one. This is the only duplicate behavior the queue implements, so
// at most one live job exists per pair at any instant.
//
// ClaimNext is the single mutually-exclusive operation: the pending ->
// processing transition happens under the queue lock, so two concurrent
// workers can never claim the same job.
type Queue struct {
	mu    sync.Mutex
	jobs  map[uuid.UUID]*Job
	notes NoteChecker

	// trigger wakes idle workers when work arrives. Buffered so enqueue
	// never blocks.
	trigger chan struct{}

	// now is swappable for deterministic stats-window tests.
	now func() time.Time
}

// NewQueue creates an empty queue. Jobs referencing notes are validated
// against the given checker.
func NewQueue(notes NoteChecker) *Queue {
	return &Queue{
		jobs:    make(map[uuid.UUID]*Job),
		notes:   notes,
		trigger: make(chan struct{}, 1),
		now:     time.Now,
	}
}

// Enqueue creates a job with the type's default priority.
func (q *Queue) Enqueue(noteID store.NoteID, jobType Type) (*Job, error) {
	if !jobType.Valid() {
		return nil, ErrInvalidJobType
	}
	return q.EnqueueWithPriority(noteID, jobType, jobType.DefaultPriority())
}

// EnqueueWithPriority creates a job with an explicit priority.
//
// Fails with ErrInvalidJobType for types outside the closed set and
// ErrNoteNotFound when the note does not exist, unless the type is
// corpus-wide and noteID is empty. If a pending or processing job already
// exists for the same (note, type) pair, that job is returned unchanged;
// note-less corpus-wide jobs are never deduplicated.
func (q *Queue) EnqueueWithPriority(noteID store.NoteID, jobType Type, priority int) (*Job, error) {
	if !jobType.Valid() {
		return nil, ErrInvalidJobType
	}
	if noteID == "" {
		if !jobType.AllowsNilNote() {
			return nil, ErrNoteNotFound
		}
	} else if !q.notes.NoteExists(noteID) {
		return nil, ErrNoteNotFound
	}

	q.mu.Lock()
	defer q.mu.Unlock()

	// Duplicate suppression is keyed on the note; corpus-wide jobs without
	// one always insert.
	if noteID != "" {
		for _, j := range q.jobs {
			if j.NoteID == noteID && j.Type == jobType && !j.Status.Terminal() {
				return j.clone(), nil
			}
		}
	}

	job := &Job{
		ID:        uuid.New(),
		Type:      jobType,
		NoteID:    noteID,
		Priority:  priority,
		Status:    StatusPending,
		CreatedAt: q.now(),
	}
	q.jobs[job.ID] = job

	q.notify()
	return job.clone(), nil
}

// notify wakes one idle worker without blocking.
func (q *Queue) notify() {
	select {
	case q.trigger <- struct{}{}:
	default:
	}
}

// Trigger returns the wake channel workers select on.
func (q *Queue) Trigger() <-chan struct{} {
	return q.trigger
}

// ClaimNext atomically selects the pending job with the highest priority,
// ties broken by oldest CreatedAt, transitions it to processing, and returns
// it. Returns nil when nothing is pending.
func (q *Queue) ClaimNext() *Job {
	q.mu.Lock()
	defer q.mu.Unlock()

	var best *Job
	for _, j := range q.jobs {
		if j.Status != StatusPending {
			continue
		}
		if best == nil ||
			j.Priority > best.Priority ||
			(j.Priority == best.Priority && j.CreatedAt.Before(best.CreatedAt)) {
			best = j
		}
	}
	if best == nil {
		return nil
	}

	best.Status = StatusProcessing
	best.StartedAt = q.now()
	return best.clone()
}

// Complete transitions a processing job to completed.
func (q *Queue) Complete(id uuid.UUID) error {
	return q.finish(id, StatusCompleted, "")
}

// Fail transitions a processing job to failed and records the cause.
func (q *Queue) Fail(id uuid.UUID, errMsg string) error {
	return q.finish(id, StatusFailed, errMsg)
}

func (q *Queue) finish(id uuid.UUID, status Status, errMsg string) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	job, ok := q.jobs[id]
	if !ok {
		return ErrJobNotFound
	}
	if job.Status != StatusProcessing {
		return ErrInvalidTransition
	}

	job.Status = status
	job.Error = errMsg
	job.CompletedAt = q.now()
	return nil
}

// Get returns a job by ID.
func (q *Queue) Get(id uuid.UUID) (*Job, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	job, ok := q.jobs[id]
	if !ok {
		return nil, ErrJobNotFound
	}
	return job.clone(), nil
}

// Filter narrows List results. Nil fields match everything.
type Filter struct {
	Status *Status
	Type   *Type
	NoteID store.NoteID
	Limit  int
}

// List returns jobs matching the filter plus the total match count before
// the limit was applied.
//
// Ordering: pending views sort by priority desc then CreatedAt asc (the
// claim order); every other view sorts by CreatedAt desc, newest first, as
// a history view.
func (q *Queue) List(f Filter) ([]*Job, int) {
	q.mu.Lock()
	matched := make([]*Job, 0, len(q.jobs))
	for _, j := range q.jobs {
		if f.Status != nil && j.Status != *f.Status {
			continue
		}
		if f.Type != nil && j.Type != *f.Type {
			continue
		}
		if f.NoteID != "" && j.NoteID != f.NoteID {
			continue
		}
		matched = append(matched, j.clone())
	}
	q.mu.Unlock()

	pendingView := f.Status != nil && *f.Status == StatusPending
	sort.Slice(matched, func(i, k int) bool {
		a, b := matched[i], matched[k]
		if pendingView {
			if a.Priority != b.Priority {
				return a.Priority > b.Priority
			}
			return a.CreatedAt.Before(b.CreatedAt)
		}
		return a.CreatedAt.After(b.CreatedAt)
	})

	total := len(matched)
	if f.Limit > 0 && len(matched) > f.Limit {
		matched = matched[:f.Limit]
	}
	return matched, total
}

// Stats is the aggregate queue view.
type Stats struct {
	Pending           int            `json:"pending"`
	Processing        int            `json:"processing"`
	CompletedLastHour int            `json:"completed_last_hour"`
	FailedLastHour    int            `json:"failed_last_hour"`
	Total             int            `json:"total"`
	ByType            map[string]int `json:"by_type"`
}

// Stats computes aggregate counts. The completed/failed figures cover the
// trailing hour only; ByType breaks down pending jobs per type.
func (q *Queue) Stats() Stats {
	q.mu.Lock()
	defer q.mu.Unlock()

	cutoff := q.now().Add(-time.Hour)
	s := Stats{ByType: make(map[string]int)}
	for _, j := range q.jobs {
		s.Total++
		switch j.Status {
		case StatusPending:
			s.Pending++
			s.ByType[j.Type.String()]++
		case StatusProcessing:
			s.Processing++
		case StatusCompleted:
			if j.CompletedAt.After(cutoff) {
				s.CompletedLastHour++
			}
		case StatusFailed:
			if j.CompletedAt.After(cutoff) {
				s.FailedLastHour++
			}
		}
	}
	return s
}

// PendingCount is the cheap projection of Stats for polling callers.
type PendingCount struct {
	Pending int            `json:"pending"`
	ByType  map[string]int `json:"by_type"`
}

// PendingCount counts pending jobs, broken down per type.
func (q *Queue) PendingCount() PendingCount {
	q.mu.Lock()
	defer q.mu.Unlock()

	pc := PendingCount{ByType: make(map[string]int)}
	for _, j := range q.jobs {
		if j.Status == StatusPending {
			pc.Pending++
			pc.ByType[j.Type.String()]++
		}
	}
	return pc
}

// DeleteForNote removes every non-processing job referencing the note and
// returns how many were removed. Processing jobs are left in place: their
// worker observes the missing note and fails them cleanly.
func (q *Queue) DeleteForNote(noteID store.NoteID) int {
	if noteID == "" {
		return 0
	}

	q.mu.Lock()
	defer q.mu.Unlock()

	removed := 0
	for id, j := range q.jobs {
		if j.NoteID == noteID && j.Status != StatusProcessing {
			delete(q.jobs, id)
			removed++
		}
	}
	return removed
}
