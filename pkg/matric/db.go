// Package matric provides the embedded API for a matric knowledge base.
//
// A DB wires together the four core components: the note/link store, the
// priority job queue, the worker pool, and the semantic linking engine.
// Expensive work never happens on the caller's goroutine: creating or
// updating a note enqueues an embedding job, a completed embedding enqueues
// a linking job, and the linking handler rewrites that note's neighborhood
// in the similarity graph.
//
// Example:
//
//	config := matric.DefaultConfig()
//	config.Embedder = embed.NewOllama(embed.DefaultOllamaConfig())
//
//	db, err := matric.Open("./data", config)
//	if err != nil {
//		log.Fatal(err)
//	}
//	defer db.Close()
//
//	note, _ := db.CreateNote(ctx, &store.Note{
//		Title:   "HNSW neighbor selection",
//		Content: "Diversity pruning avoids hub notes...",
//	})
//
//	// Later, once the pipeline has run:
//	links, _ := db.NoteLinks(note.ID)
//	graph, _ := db.ExploreGraph(note.ID, 2, 50)
//
// All methods are safe for concurrent use.
package matric

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/orneryd/matric/pkg/embed"
	"github.com/orneryd/matric/pkg/jobs"
	"github.com/orneryd/matric/pkg/linking"
	"github.com/orneryd/matric/pkg/store"
)

// ErrClosed is returned by operations on a closed DB.
var ErrClosed = errors.New("database is closed")

// Config holds the tunables for an embedded matric instance. Zero values
// fall back to the package defaults of the component that consumes them.
type Config struct {
	// Embedder generates note vectors. When nil the embedding handler is
	// disabled and notes are only linked if vectors arrive some other way.
	Embedder embed.Embedder

	// AutoPipeline additionally enqueues title_generation and
	// concept_tagging alongside embedding on every note mutation.
	AutoPipeline bool

	// Worker pool.
	Workers      int
	PollInterval time.Duration
	JobTimeout   time.Duration

	// DisableBackgroundWorkers keeps the pool idle; queued jobs only run
	// through DrainJobs. Tests use this for deterministic pipelines.
	DisableBackgroundWorkers bool

	// Linking engine.
	MinLinks        int
	MaxLinks        int
	OverfetchFactor int
	MinSimilarity   float64
	KeepPruned      bool

	// SyncWrites forces badger to fsync each commit.
	SyncWrites bool

	Logger zerolog.Logger
}

// DefaultConfig returns the configuration used when Open receives nil.
func DefaultConfig() *Config {
	pool := jobs.DefaultPoolConfig()
	link := linking.DefaultConfig()
	return &Config{
		AutoPipeline:    false,
		Workers:         pool.Workers,
		PollInterval:    pool.PollInterval,
		JobTimeout:      pool.JobTimeout,
		MinLinks:        link.MinK,
		MaxLinks:        link.MaxK,
		OverfetchFactor: link.Overfetch,
		MinSimilarity:   link.MinSimilarity,
		KeepPruned:      link.KeepPruned,
		Logger:          zerolog.Nop(),
	}
}

// DB is an embedded matric instance.
type DB struct {
	config *Config

	store  store.Store
	queue  *jobs.Queue
	engine *linking.Engine
	pool   *jobs.Pool

	mu     sync.Mutex
	cancel context.CancelFunc
	closed bool
}

// Open opens or creates a database at dataDir and starts the worker pool.
// An empty dataDir selects in-memory storage, which is what the test
// suites use. A nil config means DefaultConfig.
func Open(dataDir string, config *Config) (*DB, error) {
	if config == nil {
		config = DefaultConfig()
	}

	var st store.Store
	var err error
	if dataDir == "" {
		st, err = store.NewBadgerStoreInMemory()
	} else {
		st, err = store.NewBadgerStoreWithOptions(store.BadgerStoreOptions{
			DataDir:    dataDir,
			SyncWrites: config.SyncWrites,
		})
	}
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}

	queue := jobs.NewQueue(st)

	linkConfig := linking.DefaultConfig()
	if config.MinLinks > 0 {
		linkConfig.MinK = config.MinLinks
	}
	if config.MaxLinks > 0 {
		linkConfig.MaxK = config.MaxLinks
	}
	if config.OverfetchFactor > 0 {
		linkConfig.Overfetch = config.OverfetchFactor
	}
	if config.MinSimilarity > 0 {
		linkConfig.MinSimilarity = config.MinSimilarity
	}
	linkConfig.KeepPruned = config.KeepPruned
	linkConfig.Logger = config.Logger
	engine := linking.NewEngine(st, linkConfig)

	db := &DB{
		config: config,
		store:  st,
		queue:  queue,
		engine: engine,
	}

	poolConfig := jobs.DefaultPoolConfig()
	if config.Workers > 0 {
		poolConfig.Workers = config.Workers
	}
	if config.PollInterval > 0 {
		poolConfig.PollInterval = config.PollInterval
	}
	if config.JobTimeout > 0 {
		poolConfig.JobTimeout = config.JobTimeout
	}
	poolConfig.Logger = config.Logger
	db.pool = jobs.NewPool(queue, db.handlers(), poolConfig)

	ctx, cancel := context.WithCancel(context.Background())
	db.cancel = cancel
	if !config.DisableBackgroundWorkers {
		db.pool.Start(ctx)
	}

	return db, nil
}

// Close stops the workers and releases the store. Safe to call twice.
func (db *DB) Close() error {
	db.mu.Lock()
	if db.closed {
		db.mu.Unlock()
		return nil
	}
	db.closed = true
	db.mu.Unlock()

	db.cancel()
	db.pool.Stop()
	return db.store.Close()
}

func (db *DB) checkOpen() error {
	db.mu.Lock()
	defer db.mu.Unlock()
	if db.closed {
		return ErrClosed
	}
	return nil
}

// Store exposes the underlying note/link store.
func (db *DB) Store() store.Store { return db.store }

// Queue exposes the job queue, mainly for tests and operators.
func (db *DB) Queue() *jobs.Queue { return db.queue }

// --- Notes ---

// CreateNote persists a note and enqueues its processing pipeline. A
// missing ID is generated.
func (db *DB) CreateNote(ctx context.Context, note *store.Note) (*store.Note, error) {
	if err := db.checkOpen(); err != nil {
		return nil, err
	}
	if note.ID == "" {
		note.ID = store.NoteID(uuid.NewString())
	}
	if err := db.store.CreateNote(note); err != nil {
		return nil, err
	}
	db.enqueuePipeline(note.ID)
	return db.store.GetNote(note.ID)
}

// GetNote returns a note by ID.
func (db *DB) GetNote(id store.NoteID) (*store.Note, error) {
	if err := db.checkOpen(); err != nil {
		return nil, err
	}
	return db.store.GetNote(id)
}

// UpdateNote rewrites a note and re-enqueues its processing pipeline: the
// stored embedding is cleared first since it no longer matches the text.
func (db *DB) UpdateNote(ctx context.Context, note *store.Note) (*store.Note, error) {
	if err := db.checkOpen(); err != nil {
		return nil, err
	}
	note.Embedding = nil
	if err := db.store.UpdateNote(note); err != nil {
		return nil, err
	}
	db.enqueuePipeline(note.ID)
	return db.store.GetNote(note.ID)
}

// DeleteNote removes a note, its links in both directions, and every
// queued job that references it. A currently-processing job is left to
// fail on its own when it finds the note gone.
func (db *DB) DeleteNote(id store.NoteID) error {
	if err := db.checkOpen(); err != nil {
		return err
	}
	if err := db.store.DeleteNote(id); err != nil {
		return err
	}
	removed := db.queue.DeleteForNote(id)
	if removed > 0 {
		db.config.Logger.Debug().
			Str("note_id", string(id)).
			Int("jobs_removed", removed).
			Msg("cascaded job removal")
	}
	return nil
}

// enqueuePipeline schedules the background work a note mutation triggers.
// The queue's duplicate policy makes this safe to call repeatedly.
func (db *DB) enqueuePipeline(id store.NoteID) {
	db.queue.Enqueue(id, jobs.TypeEmbedding)
	if db.config.AutoPipeline {
		db.queue.Enqueue(id, jobs.TypeTitleGeneration)
		db.queue.Enqueue(id, jobs.TypeConceptTagging)
	}
}

// --- Jobs ---

// CreateJob enqueues a job with the type's default priority. Use a
// negative priority to mean "default".
func (db *DB) CreateJob(noteID store.NoteID, jobType jobs.Type, priority int) (*jobs.Job, error) {
	if err := db.checkOpen(); err != nil {
		return nil, err
	}
	if priority < 0 {
		return db.queue.Enqueue(noteID, jobType)
	}
	return db.queue.EnqueueWithPriority(noteID, jobType, priority)
}

// GetJob returns the full job record, including any failure message.
func (db *DB) GetJob(id uuid.UUID) (*jobs.Job, error) {
	if err := db.checkOpen(); err != nil {
		return nil, err
	}
	return db.queue.Get(id)
}

// ListJobs returns jobs matching the filter plus the pre-limit total.
func (db *DB) ListJobs(f jobs.Filter) ([]*jobs.Job, int, error) {
	if err := db.checkOpen(); err != nil {
		return nil, 0, err
	}
	list, total := db.queue.List(f)
	return list, total, nil
}

// QueueStats returns the aggregate queue counters.
func (db *DB) QueueStats() (jobs.Stats, error) {
	if err := db.checkOpen(); err != nil {
		return jobs.Stats{}, err
	}
	return db.queue.Stats(), nil
}

// PendingJobsCount is the cheap projection of QueueStats for pollers.
func (db *DB) PendingJobsCount() (jobs.PendingCount, error) {
	if err := db.checkOpen(); err != nil {
		return jobs.PendingCount{}, err
	}
	return db.queue.PendingCount(), nil
}

// ReembedAll schedules embedding regeneration. With force it enqueues an
// embedding job for every note immediately; without, it enqueues a single
// corpus-wide job whose handler fans out to the notes that lack a vector.
func (db *DB) ReembedAll(force bool) ([]*jobs.Job, error) {
	if err := db.checkOpen(); err != nil {
		return nil, err
	}
	if !force {
		job, err := db.queue.Enqueue("", jobs.TypeReEmbedAll)
		if err != nil {
			return nil, err
		}
		return []*jobs.Job{job}, nil
	}

	notes, err := db.store.AllNotes()
	if err != nil {
		return nil, err
	}
	queued := make([]*jobs.Job, 0, len(notes))
	for _, n := range notes {
		job, err := db.queue.Enqueue(n.ID, jobs.TypeEmbedding)
		if err != nil {
			return nil, err
		}
		queued = append(queued, job)
	}
	return queued, nil
}

// ReprocessNote re-enqueues background work for one note. An empty
// operations slice means every per-note job type. Duplicate suppression
// applies, so jobs already pending are returned rather than re-created.
func (db *DB) ReprocessNote(noteID store.NoteID, operations []jobs.Type) ([]*jobs.Job, error) {
	if err := db.checkOpen(); err != nil {
		return nil, err
	}
	if len(operations) == 0 {
		for _, t := range jobs.AllTypes {
			if !t.AllowsNilNote() {
				operations = append(operations, t)
			}
		}
	}
	queued := make([]*jobs.Job, 0, len(operations))
	for _, t := range operations {
		if t.AllowsNilNote() {
			return nil, fmt.Errorf("%w: %s is corpus-wide, not per-note", jobs.ErrInvalidJobType, t)
		}
		job, err := db.queue.Enqueue(noteID, t)
		if err != nil {
			return nil, err
		}
		queued = append(queued, job)
	}
	return queued, nil
}

// DrainJobs processes queued jobs inline until the queue is empty. Tests
// use it to run the pipeline deterministically without the worker pool's
// timing.
func (db *DB) DrainJobs(ctx context.Context) error {
	if err := db.checkOpen(); err != nil {
		return err
	}
	return db.pool.Drain(ctx)
}

// --- Graph ---

// ExploreGraph walks the link graph breadth-first from a note. Zero depth
// or limit select the defaults.
func (db *DB) ExploreGraph(noteID store.NoteID, depth, limit int) (*linking.Exploration, error) {
	if err := db.checkOpen(); err != nil {
		return nil, err
	}
	return db.engine.Explore(noteID, depth, limit)
}

// NoteLinks returns a note's neighbors, outgoing and incoming merged,
// sorted by similarity. A note with no links yields an empty slice.
func (db *DB) NoteLinks(noteID store.NoteID) ([]linking.NoteLink, error) {
	if err := db.checkOpen(); err != nil {
		return nil, err
	}
	return db.engine.NoteLinks(noteID)
}

// TopologyStats computes a fresh snapshot of the link graph.
func (db *DB) TopologyStats() (*linking.Snapshot, error) {
	if err := db.checkOpen(); err != nil {
		return nil, err
	}
	return db.engine.TopologyStats()
}
