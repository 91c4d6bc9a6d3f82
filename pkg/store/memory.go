package store

import (
	"sync"
	"time"
)

// MemoryStore is an in-memory Store implementation.
//
// All reads and writes go through deep copies, so callers can never mutate
// the store's internal state through a returned Note or Link.
//
// Thread-safe via sync.RWMutex. Intended for tests and small datasets; use
// BadgerStore for persistence.
type MemoryStore struct {
	mu     sync.RWMutex
	closed bool

	notes map[NoteID]*Note

	// Directed records keyed by pair key (from + 0x00 + to), plus adjacency
	// indexes for O(1) per-note lookups and an author index for idempotent
	// re-linking.
	links    map[string]*Link
	outgoing map[NoteID]map[NoteID]*Link
	incoming map[NoteID]map[NoteID]*Link
	byAuthor map[NoteID]map[string]struct{}
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		notes:    make(map[NoteID]*Note),
		links:    make(map[string]*Link),
		outgoing: make(map[NoteID]map[NoteID]*Link),
		incoming: make(map[NoteID]map[NoteID]*Link),
		byAuthor: make(map[NoteID]map[string]struct{}),
	}
}

func memPairKey(from, to NoteID) string {
	return string(from) + "\x00" + string(to)
}

// CreateNote adds a new note. Fails with ErrAlreadyExists if the ID is taken.
func (m *MemoryStore) CreateNote(note *Note) error {
	if note == nil {
		return ErrInvalidData
	}
	if note.ID == "" {
		return ErrInvalidID
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return ErrStoreClosed
	}
	if _, exists := m.notes[note.ID]; exists {
		return ErrAlreadyExists
	}

	c := copyNote(note)
	if c.CreatedAt.IsZero() {
		c.CreatedAt = time.Now()
	}
	if c.UpdatedAt.IsZero() {
		c.UpdatedAt = c.CreatedAt
	}
	m.notes[note.ID] = c
	return nil
}

// GetNote retrieves a note by ID.
func (m *MemoryStore) GetNote(id NoteID) (*Note, error) {
	if id == "" {
		return nil, ErrInvalidID
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.closed {
		return nil, ErrStoreClosed
	}
	note, ok := m.notes[id]
	if !ok {
		return nil, ErrNotFound
	}
	return copyNote(note), nil
}

// UpdateNote replaces an existing note. Fails with ErrNotFound if absent.
func (m *MemoryStore) UpdateNote(note *Note) error {
	if note == nil {
		return ErrInvalidData
	}
	if note.ID == "" {
		return ErrInvalidID
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return ErrStoreClosed
	}
	existing, ok := m.notes[note.ID]
	if !ok {
		return ErrNotFound
	}

	c := copyNote(note)
	if c.CreatedAt.IsZero() {
		c.CreatedAt = existing.CreatedAt
	}
	if c.UpdatedAt.IsZero() {
		c.UpdatedAt = time.Now()
	}
	m.notes[note.ID] = c
	return nil
}

// DeleteNote removes a note and cascades to every directed record touching
// it, in both directions.
func (m *MemoryStore) DeleteNote(id NoteID) error {
	if id == "" {
		return ErrInvalidID
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return ErrStoreClosed
	}
	if _, ok := m.notes[id]; !ok {
		return ErrNotFound
	}
	delete(m.notes, id)

	for to := range m.outgoing[id] {
		m.removeRecordLocked(id, to)
	}
	for from := range m.incoming[id] {
		m.removeRecordLocked(from, id)
	}
	delete(m.outgoing, id)
	delete(m.incoming, id)
	delete(m.byAuthor, id)
	return nil
}

// NoteExists reports whether a note with the given ID exists.
func (m *MemoryStore) NoteExists(id NoteID) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.notes[id]
	return ok
}

// AllNotes returns copies of every note.
func (m *MemoryStore) AllNotes() ([]*Note, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.closed {
		return nil, ErrStoreClosed
	}
	notes := make([]*Note, 0, len(m.notes))
	for _, n := range m.notes {
		notes = append(notes, copyNote(n))
	}
	return notes, nil
}

// NoteCount returns the number of notes.
func (m *MemoryStore) NoteCount() (int64, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.closed {
		return 0, ErrStoreClosed
	}
	return int64(len(m.notes)), nil
}

// ReplaceLinks atomically swaps the author's link set.
//
// Every directed record previously attributed to the author is deleted, then
// each new link and its reciprocal is written with AuthorID set. Writing a
// pair that another note authored earlier re-attributes the pair to this
// author. Self-links are rejected and both endpoints must exist.
func (m *MemoryStore) ReplaceLinks(author NoteID, links []*Link) error {
	if author == "" {
		return ErrInvalidID
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return ErrStoreClosed
	}

	// Validate the full batch before touching anything.
	for _, l := range links {
		if l == nil || l.FromNote == "" || l.ToNote == "" {
			return ErrInvalidData
		}
		if l.FromNote == l.ToNote {
			return ErrSelfLink
		}
		if _, ok := m.notes[l.FromNote]; !ok {
			return ErrNotFound
		}
		if _, ok := m.notes[l.ToNote]; !ok {
			return ErrNotFound
		}
	}

	for key := range m.byAuthor[author] {
		from, to := splitMemPairKey(key)
		m.removeRecordLocked(from, to)
	}
	delete(m.byAuthor, author)

	now := time.Now()
	for _, l := range links {
		c := copyLink(l)
		c.AuthorID = author
		if c.CreatedAt.IsZero() {
			c.CreatedAt = now
		}
		m.putRecordLocked(c)
		m.putRecordLocked(c.Reciprocal())
	}
	return nil
}

// putRecordLocked upserts one directed record and maintains the indexes.
// Caller holds the write lock.
func (m *MemoryStore) putRecordLocked(l *Link) {
	key := memPairKey(l.FromNote, l.ToNote)
	if prev, ok := m.links[key]; ok && prev.AuthorID != l.AuthorID {
		if set, ok := m.byAuthor[prev.AuthorID]; ok {
			delete(set, key)
			if len(set) == 0 {
				delete(m.byAuthor, prev.AuthorID)
			}
		}
	}
	m.links[key] = l

	if m.outgoing[l.FromNote] == nil {
		m.outgoing[l.FromNote] = make(map[NoteID]*Link)
	}
	m.outgoing[l.FromNote][l.ToNote] = l

	if m.incoming[l.ToNote] == nil {
		m.incoming[l.ToNote] = make(map[NoteID]*Link)
	}
	m.incoming[l.ToNote][l.FromNote] = l

	if m.byAuthor[l.AuthorID] == nil {
		m.byAuthor[l.AuthorID] = make(map[string]struct{})
	}
	m.byAuthor[l.AuthorID][key] = struct{}{}
}

// removeRecordLocked deletes one directed record and cleans the indexes.
// Caller holds the write lock.
func (m *MemoryStore) removeRecordLocked(from, to NoteID) {
	key := memPairKey(from, to)
	l, ok := m.links[key]
	if !ok {
		return
	}
	delete(m.links, key)

	if out := m.outgoing[from]; out != nil {
		delete(out, to)
		if len(out) == 0 {
			delete(m.outgoing, from)
		}
	}
	if in := m.incoming[to]; in != nil {
		delete(in, from)
		if len(in) == 0 {
			delete(m.incoming, to)
		}
	}
	if set := m.byAuthor[l.AuthorID]; set != nil {
		delete(set, key)
		if len(set) == 0 {
			delete(m.byAuthor, l.AuthorID)
		}
	}
}

func splitMemPairKey(key string) (NoteID, NoteID) {
	for i := 0; i < len(key); i++ {
		if key[i] == 0x00 {
			return NoteID(key[:i]), NoteID(key[i+1:])
		}
	}
	return NoteID(key), ""
}

// OutgoingLinks returns directed records originating at the note.
func (m *MemoryStore) OutgoingLinks(id NoteID) ([]*Link, error) {
	if id == "" {
		return nil, ErrInvalidID
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.closed {
		return nil, ErrStoreClosed
	}
	out := m.outgoing[id]
	links := make([]*Link, 0, len(out))
	for _, l := range out {
		links = append(links, copyLink(l))
	}
	return links, nil
}

// IncomingLinks returns directed records pointing at the note.
func (m *MemoryStore) IncomingLinks(id NoteID) ([]*Link, error) {
	if id == "" {
		return nil, ErrInvalidID
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.closed {
		return nil, ErrStoreClosed
	}
	in := m.incoming[id]
	links := make([]*Link, 0, len(in))
	for _, l := range in {
		links = append(links, copyLink(l))
	}
	return links, nil
}

// AllLinks returns copies of every directed record.
func (m *MemoryStore) AllLinks() ([]*Link, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.closed {
		return nil, ErrStoreClosed
	}
	links := make([]*Link, 0, len(m.links))
	for _, l := range m.links {
		links = append(links, copyLink(l))
	}
	return links, nil
}

// LinkCount returns the number of directed records. Logical links are half
// this number.
func (m *MemoryStore) LinkCount() (int64, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.closed {
		return 0, ErrStoreClosed
	}
	return int64(len(m.links)), nil
}

// LinkSnapshot returns all directed records under a single lock acquisition.
func (m *MemoryStore) LinkSnapshot() ([]*Link, error) {
	return m.AllLinks()
}

// Close marks the store closed. Subsequent operations fail with
// ErrStoreClosed.
func (m *MemoryStore) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	return nil
}
