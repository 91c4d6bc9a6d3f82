package jobs

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// Handler executes one claimed job. A nil return marks the job completed;
// an error (or panic, or timeout) marks it failed with the cause recorded.
type Handler func(ctx context.Context, job *Job) error

// Handlers binds one handler per job type. Dispatch is an exhaustive switch
// over the closed type set, so a new job type will not compile until it gets
// a field here.
//
// Nil fields are treated as no-op success: collaborator job types (AI
// revision, title generation, tagging, context updates) are optional and a
// deployment without those services still drains its queue.
type Handlers struct {
	Embedding       Handler
	Linking         Handler
	AIRevision      Handler
	TitleGeneration Handler
	ContextUpdate   Handler
	ConceptTagging  Handler
	ReEmbedAll      Handler
}

// forType resolves the handler for a job type.
func (h Handlers) forType(t Type) (Handler, error) {
	switch t {
	case TypeEmbedding:
		return h.Embedding, nil
	case TypeLinking:
		return h.Linking, nil
	case TypeAIRevision:
		return h.AIRevision, nil
	case TypeTitleGeneration:
		return h.TitleGeneration, nil
	case TypeContextUpdate:
		return h.ContextUpdate, nil
	case TypeConceptTagging:
		return h.ConceptTagging, nil
	case TypeReEmbedAll:
		return h.ReEmbedAll, nil
	}
	return nil, ErrInvalidJobType
}

// PoolConfig configures the worker pool.
type PoolConfig struct {
	// Workers is the number of concurrent claim loops. Default 4.
	Workers int

	// PollInterval is the idle backoff between claim attempts when the
	// trigger channel is quiet. Default 500ms.
	PollInterval time.Duration

	// JobTimeout bounds a single handler execution. A handler that outlives
	// it fails the job instead of starving the worker. Default 2m.
	JobTimeout time.Duration

	// Logger for worker lifecycle and job outcomes.
	Logger zerolog.Logger
}

// DefaultPoolConfig returns the production defaults.
func DefaultPoolConfig() PoolConfig {
	return PoolConfig{
		Workers:      4,
		PollInterval: 500 * time.Millisecond,
		JobTimeout:   2 * time.Minute,
		Logger:       zerolog.Nop(),
	}
}

// Pool runs a fixed set of workers against a Queue.
//
// Each worker loops claim -> dispatch -> complete/fail. Idle workers block
// on the queue's trigger channel with a poll-interval backoff, so work
// starts immediately after enqueue but a missed wakeup only costs one poll.
type Pool struct {
	queue    *Queue
	handlers Handlers
	config   PoolConfig

	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu      sync.Mutex
	started bool
}

// NewPool creates a pool. Zero-valued config fields fall back to defaults.
func NewPool(queue *Queue, handlers Handlers, config PoolConfig) *Pool {
	def := DefaultPoolConfig()
	if config.Workers <= 0 {
		config.Workers = def.Workers
	}
	if config.PollInterval <= 0 {
		config.PollInterval = def.PollInterval
	}
	if config.JobTimeout <= 0 {
		config.JobTimeout = def.JobTimeout
	}
	return &Pool{
		queue:    queue,
		handlers: handlers,
		config:   config,
	}
}

// Start launches the workers. They run until Stop or ctx cancellation.
func (p *Pool) Start(ctx context.Context) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.started {
		return
	}
	p.started = true

	ctx, p.cancel = context.WithCancel(ctx)
	for i := 0; i < p.config.Workers; i++ {
		p.wg.Add(1)
		go p.worker(ctx, i)
	}
	p.config.Logger.Info().Int("workers", p.config.Workers).Msg("worker pool started")
}

// Stop cancels the workers and waits for in-flight jobs to finish.
func (p *Pool) Stop() {
	p.mu.Lock()
	if !p.started {
		p.mu.Unlock()
		return
	}
	p.started = false
	cancel := p.cancel
	p.mu.Unlock()

	cancel()
	p.wg.Wait()
	p.config.Logger.Info().Msg("worker pool stopped")
}

// worker is one claim loop.
func (p *Pool) worker(ctx context.Context, id int) {
	defer p.wg.Done()

	ticker := time.NewTicker(p.config.PollInterval)
	defer ticker.Stop()

	log := p.config.Logger.With().Int("worker", id).Logger()
	for {
		// Cancellation wins over a non-empty queue: unclaimed work stays
		// pending across a shutdown instead of being claimed and failed.
		select {
		case <-ctx.Done():
			return
		default:
		}

		if job := p.queue.ClaimNext(); job != nil {
			p.run(ctx, log, job)
			continue
		}

		select {
		case <-ctx.Done():
			return
		case <-p.queue.Trigger():
		case <-ticker.C:
		}
	}
}

// run executes one claimed job and reports the outcome back to the queue.
// Handler panics are recovered into job failures; they never take down a
// worker.
func (p *Pool) run(ctx context.Context, log zerolog.Logger, job *Job) {
	jobCtx, cancel := context.WithTimeout(ctx, p.config.JobTimeout)
	defer cancel()

	start := time.Now()
	err := p.execute(jobCtx, job)

	if err != nil {
		log.Warn().
			Str("job_id", job.ID.String()).
			Str("job_type", job.Type.String()).
			Str("note_id", string(job.NoteID)).
			Dur("elapsed", time.Since(start)).
			Err(err).
			Msg("job failed")
		if ferr := p.queue.Fail(job.ID, err.Error()); ferr != nil {
			log.Error().Err(ferr).Str("job_id", job.ID.String()).Msg("could not record job failure")
		}
		return
	}

	log.Debug().
		Str("job_id", job.ID.String()).
		Str("job_type", job.Type.String()).
		Dur("elapsed", time.Since(start)).
		Msg("job completed")
	if cerr := p.queue.Complete(job.ID); cerr != nil {
		log.Error().Err(cerr).Str("job_id", job.ID.String()).Msg("could not record job completion")
	}
}

func (p *Pool) execute(ctx context.Context, job *Job) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("handler panic: %v", r)
		}
	}()

	handler, herr := p.handlers.forType(job.Type)
	if herr != nil {
		return herr
	}
	if handler == nil {
		// Optional collaborator without a backend configured.
		return nil
	}

	done := make(chan error, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- fmt.Errorf("handler panic: %v", r)
			}
		}()
		done <- handler(ctx, job)
	}()

	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		return fmt.Errorf("handler timeout: %w", ctx.Err())
	}
}

// Drain synchronously claims and executes jobs in the calling goroutine
// until the queue has nothing pending. Jobs enqueued by handlers mid-drain
// (embedding chaining into linking) are picked up in the same pass.
//
// Intended for tests and batch tooling; does not require Start.
func (p *Pool) Drain(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		job := p.queue.ClaimNext()
		if job == nil {
			return nil
		}
		p.run(ctx, p.config.Logger, job)
	}
}
