// Package store provides the storage layer for Matric notes and semantic links.
//
// The store keeps two record families:
//   - Notes: the content units of the knowledge base, each optionally carrying
//     a vector embedding used for semantic similarity.
//   - Links: directed (from, to) records representing semantic relationships.
//     Logical links are symmetric, so every logical link is stored as a
//     reciprocal pair of directed records.
//
// Link authorship drives idempotent re-linking: every directed record carries
// the AuthorID of the note whose linking pass created it. Re-linking a note
// atomically deletes everything it authored before writing the fresh set, so
// running the linker twice over unchanged content converges to the same graph.
//
// Implementations:
//   - MemoryStore: in-memory maps, for tests and small datasets
//   - BadgerStore: persistent BadgerDB storage
//
// Example Usage:
//
//	st := store.NewMemoryStore()
//	defer st.Close()
//
//	note := &store.Note{
//		ID:      store.NoteID("note-1"),
//		Title:   "Badger internals",
//		Content: "LSM trees and value logs...",
//	}
//	st.CreateNote(note)
package store

import (
	"errors"
	"time"
)

// Common errors returned by Store implementations.
var (
	ErrNotFound      = errors.New("not found")
	ErrAlreadyExists = errors.New("already exists")
	ErrInvalidID     = errors.New("invalid id")
	ErrInvalidData   = errors.New("invalid data")
	ErrSelfLink      = errors.New("invalid link: from and to are the same note")
	ErrStoreClosed   = errors.New("store closed")
)

// NoteID is a strongly-typed unique identifier for notes.
type NoteID string

// Note is a single unit of content in the knowledge base.
//
// Embedding holds the note's vector representation. A nil or empty embedding
// means the note has not been embedded yet and is invisible to the semantic
// linker until an embedding job completes.
//
// Note structs are not thread-safe; the store handles concurrency and hands
// out deep copies so callers can mutate results freely.
type Note struct {
	ID        NoteID    `json:"id"`
	Title     string    `json:"title"`
	Content   string    `json:"content"`
	Tags      []string  `json:"tags,omitempty"`
	Embedding []float32 `json:"-"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Link is one directed half of a symmetric semantic relationship.
//
// Every logical link between notes A and B exists as two directed records,
// (A, B) and (B, A), written atomically. Score is the cosine similarity that
// justified the link at creation time. AuthorID identifies the note whose
// linking pass produced the record; both halves of a pair share the same
// author.
type Link struct {
	FromNote  NoteID    `json:"from_note"`
	ToNote    NoteID    `json:"to_note"`
	Kind      string    `json:"kind"`
	Score     float64   `json:"score"`
	AuthorID  NoteID    `json:"-"`
	CreatedAt time.Time `json:"created_at"`
}

// LinkKindSemantic marks links produced by the diversity heuristic. The
// only kind written today; the field exists so other kinds can coexist.
const LinkKindSemantic = "semantic"

// Store defines the storage interface for notes and semantic links.
//
// All implementations must be safe for concurrent use. Operations are atomic
// within their scope: DeleteNote removes the note and every link touching it
// in one step, and ReplaceLinks swaps a note's authored link set without any
// window where a pair exists in only one direction.
type Store interface {
	// Note operations
	CreateNote(note *Note) error
	GetNote(id NoteID) (*Note, error)
	UpdateNote(note *Note) error
	DeleteNote(id NoteID) error
	NoteExists(id NoteID) bool
	AllNotes() ([]*Note, error)
	NoteCount() (int64, error)

	// Link operations. Directed records; a logical link is two of them.
	ReplaceLinks(author NoteID, links []*Link) error
	OutgoingLinks(id NoteID) ([]*Link, error)
	IncomingLinks(id NoteID) ([]*Link, error)
	AllLinks() ([]*Link, error)
	LinkCount() (int64, error)

	// LinkSnapshot returns every directed record from a single consistent
	// read, for whole-graph analysis (topology stats, exploration).
	LinkSnapshot() ([]*Link, error)

	// Lifecycle
	Close() error
}

// copyNote returns a deep copy of a note.
func copyNote(n *Note) *Note {
	if n == nil {
		return nil
	}
	c := *n
	if n.Tags != nil {
		c.Tags = make([]string, len(n.Tags))
		copy(c.Tags, n.Tags)
	}
	if n.Embedding != nil {
		c.Embedding = make([]float32, len(n.Embedding))
		copy(c.Embedding, n.Embedding)
	}
	return &c
}

// copyLink returns a copy of a link record.
func copyLink(l *Link) *Link {
	if l == nil {
		return nil
	}
	c := *l
	return &c
}

// Reciprocal returns the mirrored half of a directed record. Kind, Score,
// AuthorID and CreatedAt carry over unchanged.
func (l *Link) Reciprocal() *Link {
	r := *l
	r.FromNote, r.ToNote = l.ToNote, l.FromNote
	return &r
}
