package matric

import (
	"context"
	"errors"
	"fmt"

	"github.com/orneryd/matric/pkg/embed"
	"github.com/orneryd/matric/pkg/jobs"
	"github.com/orneryd/matric/pkg/linking"
	"github.com/orneryd/matric/pkg/store"
)

// handlers builds the job dispatch table. Collaborator types (AI revision,
// title generation, tagging, context updates) stay nil here: this process
// does not implement them, and a nil handler drains as a no-op success.
func (db *DB) handlers() jobs.Handlers {
	h := jobs.Handlers{
		Linking:    db.handleLinking,
		ReEmbedAll: db.handleReEmbedAll,
	}
	if db.config.Embedder != nil {
		h.Embedding = db.handleEmbedding
	}
	return h
}

// handleEmbedding generates and stores a note's vector, then chains the
// linking job. A note deleted mid-flight fails the job cleanly.
func (db *DB) handleEmbedding(ctx context.Context, job *jobs.Job) error {
	note, err := db.store.GetNote(job.NoteID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return fmt.Errorf("%w: %s", jobs.ErrNoteNotFound, job.NoteID)
		}
		return err
	}

	text := embed.BuildEmbeddingText(note.Title, note.Content, note.Tags)
	vector, err := db.config.Embedder.Embed(ctx, text)
	if err != nil {
		return fmt.Errorf("embed note %s: %w", note.ID, err)
	}

	note.Embedding = vector
	if err := db.store.UpdateNote(note); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return fmt.Errorf("%w: %s", jobs.ErrNoteNotFound, job.NoteID)
		}
		return err
	}

	// A fresh vector invalidates the note's neighborhood.
	if _, err := db.queue.Enqueue(note.ID, jobs.TypeLinking); err != nil {
		return fmt.Errorf("chain linking job: %w", err)
	}
	return nil
}

// handleLinking rewrites one note's neighborhood in the similarity graph.
func (db *DB) handleLinking(ctx context.Context, job *jobs.Job) error {
	_, err := db.engine.LinkNote(ctx, job.NoteID)
	if errors.Is(err, store.ErrNotFound) {
		return fmt.Errorf("%w: %s", jobs.ErrNoteNotFound, job.NoteID)
	}
	if errors.Is(err, linking.ErrNoEmbedding) {
		// Linking outran embedding. Fail this job; reprocessing re-orders.
		return err
	}
	return err
}

// handleReEmbedAll fans out an embedding job for every note that has no
// vector yet. Duplicate suppression skips notes already queued.
func (db *DB) handleReEmbedAll(ctx context.Context, job *jobs.Job) error {
	notes, err := db.store.AllNotes()
	if err != nil {
		return err
	}
	queued := 0
	for _, n := range notes {
		if err := ctx.Err(); err != nil {
			return err
		}
		if len(n.Embedding) > 0 {
			continue
		}
		if _, err := db.queue.Enqueue(n.ID, jobs.TypeEmbedding); err != nil {
			// The note may have been deleted since the scan.
			if errors.Is(err, jobs.ErrNoteNotFound) {
				continue
			}
			return err
		}
		queued++
	}
	db.config.Logger.Debug().Int("queued", queued).Msg("re-embed fan-out")
	return nil
}
