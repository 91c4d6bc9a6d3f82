package store

import (
	"bytes"
	"encoding/gob"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/dgraph-io/badger/v4"
)

// Key prefixes for BadgerDB storage organization.
// Single-byte prefixes keep keys compact and scans cheap.
const (
	prefixNote     = byte(0x01) // note:noteID -> gob(Note)
	prefixLink     = byte(0x02) // link:from + 0x00 + to -> gob(Link)
	prefixIncoming = byte(0x03) // incoming:to + 0x00 + from -> empty
	prefixAuthor   = byte(0x04) // author:authorID + 0x00 + from + 0x00 + to -> empty
)

// BadgerStore is a persistent Store implementation backed by BadgerDB.
//
// Key Structure:
//   - Notes: 0x01 + noteID -> gob(Note)
//   - Links: 0x02 + from + 0x00 + to -> gob(Link)
//   - Incoming Index: 0x03 + to + 0x00 + from -> empty
//   - Author Index: 0x04 + author + 0x00 + from + 0x00 + to -> empty
//
// Outgoing links for a note are a prefix scan over its link keys; the
// incoming and author indexes exist so IncomingLinks and ReplaceLinks never
// scan the whole keyspace. Note and link counts are cached in atomic
// counters, initialized with one scan at open.
//
// Example:
//
//	st, err := store.NewBadgerStore("/path/to/data")
//	if err != nil {
//		log.Fatal(err)
//	}
//	defer st.Close()
type BadgerStore struct {
	db     *badger.DB
	mu     sync.RWMutex
	closed bool

	noteCount atomic.Int64
	linkCount atomic.Int64
}

// BadgerStoreOptions configures the BadgerStore.
type BadgerStoreOptions struct {
	// DataDir is the directory for data files. Ignored when InMemory is set.
	DataDir string

	// InMemory runs BadgerDB without a disk. Data is lost on close.
	// Useful for testing persistent-store semantics without I/O.
	InMemory bool

	// SyncWrites forces fsync after each write. Slower but more durable.
	SyncWrites bool

	// Logger for BadgerDB internal logging. Nil silences it.
	Logger badger.Logger
}

// NewBadgerStore opens a persistent store at dataDir with default settings.
func NewBadgerStore(dataDir string) (*BadgerStore, error) {
	return NewBadgerStoreWithOptions(BadgerStoreOptions{DataDir: dataDir})
}

// NewBadgerStoreInMemory creates an in-memory BadgerDB store for testing.
func NewBadgerStoreInMemory() (*BadgerStore, error) {
	return NewBadgerStoreWithOptions(BadgerStoreOptions{InMemory: true})
}

// NewBadgerStoreWithOptions opens a store with custom configuration.
func NewBadgerStoreWithOptions(opts BadgerStoreOptions) (*BadgerStore, error) {
	badgerOpts := badger.DefaultOptions(opts.DataDir)

	if opts.InMemory {
		badgerOpts = badgerOpts.WithInMemory(true)
	}
	if opts.SyncWrites {
		badgerOpts = badgerOpts.WithSyncWrites(true)
	}
	// Quiet by default; badger's own logger is chatty.
	badgerOpts = badgerOpts.WithLogger(opts.Logger)

	db, err := badger.Open(badgerOpts)
	if err != nil {
		return nil, fmt.Errorf("failed to open BadgerDB: %w", err)
	}

	st := &BadgerStore{db: db}
	if err := st.initializeCounts(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize counts: %w", err)
	}
	return st, nil
}

// ============================================================================
// Key encoding helpers
// ============================================================================

func noteKey(id NoteID) []byte {
	return append([]byte{prefixNote}, []byte(id)...)
}

// linkKey builds 0x02 + from + 0x00 + to.
func linkKey(from, to NoteID) []byte {
	key := make([]byte, 0, 1+len(from)+1+len(to))
	key = append(key, prefixLink)
	key = append(key, []byte(from)...)
	key = append(key, 0x00)
	key = append(key, []byte(to)...)
	return key
}

// linkPrefix returns the prefix scanning all links originating at a note.
func linkPrefix(from NoteID) []byte {
	key := make([]byte, 0, 1+len(from)+1)
	key = append(key, prefixLink)
	key = append(key, []byte(from)...)
	key = append(key, 0x00)
	return key
}

func incomingKey(to, from NoteID) []byte {
	key := make([]byte, 0, 1+len(to)+1+len(from))
	key = append(key, prefixIncoming)
	key = append(key, []byte(to)...)
	key = append(key, 0x00)
	key = append(key, []byte(from)...)
	return key
}

func incomingPrefix(to NoteID) []byte {
	key := make([]byte, 0, 1+len(to)+1)
	key = append(key, prefixIncoming)
	key = append(key, []byte(to)...)
	key = append(key, 0x00)
	return key
}

func authorKey(author NoteID, from, to NoteID) []byte {
	key := make([]byte, 0, 1+len(author)+1+len(from)+1+len(to))
	key = append(key, prefixAuthor)
	key = append(key, []byte(author)...)
	key = append(key, 0x00)
	key = append(key, []byte(from)...)
	key = append(key, 0x00)
	key = append(key, []byte(to)...)
	return key
}

func authorPrefix(author NoteID) []byte {
	key := make([]byte, 0, 1+len(author)+1)
	key = append(key, prefixAuthor)
	key = append(key, []byte(author)...)
	key = append(key, 0x00)
	return key
}

// splitPair extracts (from, to) from the tail of an index key.
// tail format: from + 0x00 + to
func splitPair(tail []byte) (NoteID, NoteID) {
	for i := 0; i < len(tail); i++ {
		if tail[i] == 0x00 {
			return NoteID(tail[:i]), NoteID(tail[i+1:])
		}
	}
	return NoteID(tail), ""
}

// ============================================================================
// Serialization helpers (gob preserves Go types like time.Time)
// ============================================================================

func encodeNote(n *Note) ([]byte, error) {
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(n); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func decodeNote(data []byte) (*Note, error) {
	var note Note
	if err := gob.NewDecoder(bytes.NewReader(data)).Decode(&note); err != nil {
		return nil, err
	}
	return &note, nil
}

func encodeLink(l *Link) ([]byte, error) {
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(l); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func decodeLink(data []byte) (*Link, error) {
	var link Link
	if err := gob.NewDecoder(bytes.NewReader(data)).Decode(&link); err != nil {
		return nil, err
	}
	return &link, nil
}

// ============================================================================
// Note Operations
// ============================================================================

// CreateNote creates a new note in persistent storage.
func (b *BadgerStore) CreateNote(note *Note) error {
	if note == nil {
		return ErrInvalidData
	}
	if note.ID == "" {
		return ErrInvalidID
	}
	if err := b.checkOpen(); err != nil {
		return err
	}

	err := b.db.Update(func(txn *badger.Txn) error {
		key := noteKey(note.ID)
		_, err := txn.Get(key)
		if err == nil {
			return ErrAlreadyExists
		}
		if err != badger.ErrKeyNotFound {
			return err
		}

		data, err := encodeNote(note)
		if err != nil {
			return fmt.Errorf("failed to encode note: %w", err)
		}
		return txn.Set(key, data)
	})

	if err == nil {
		b.noteCount.Add(1)
	}
	return err
}

// GetNote retrieves a note by ID.
func (b *BadgerStore) GetNote(id NoteID) (*Note, error) {
	if id == "" {
		return nil, ErrInvalidID
	}
	if err := b.checkOpen(); err != nil {
		return nil, err
	}

	var note *Note
	err := b.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(noteKey(id))
		if err == badger.ErrKeyNotFound {
			return ErrNotFound
		}
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			var decodeErr error
			note, decodeErr = decodeNote(val)
			return decodeErr
		})
	})
	return note, err
}

// UpdateNote replaces an existing note. Fails with ErrNotFound if absent.
func (b *BadgerStore) UpdateNote(note *Note) error {
	if note == nil {
		return ErrInvalidData
	}
	if note.ID == "" {
		return ErrInvalidID
	}
	if err := b.checkOpen(); err != nil {
		return err
	}

	return b.db.Update(func(txn *badger.Txn) error {
		key := noteKey(note.ID)
		_, err := txn.Get(key)
		if err == badger.ErrKeyNotFound {
			return ErrNotFound
		}
		if err != nil {
			return err
		}

		data, err := encodeNote(note)
		if err != nil {
			return fmt.Errorf("failed to encode note: %w", err)
		}
		return txn.Set(key, data)
	})
}

// DeleteNote removes a note and cascades to every directed record touching
// it. The note, its links in both directions, and all index entries go in a
// single transaction.
func (b *BadgerStore) DeleteNote(id NoteID) error {
	if id == "" {
		return ErrInvalidID
	}
	if err := b.checkOpen(); err != nil {
		return err
	}

	var removed int64
	err := b.db.Update(func(txn *badger.Txn) error {
		key := noteKey(id)
		_, err := txn.Get(key)
		if err == badger.ErrKeyNotFound {
			return ErrNotFound
		}
		if err != nil {
			return err
		}
		if err := txn.Delete(key); err != nil {
			return err
		}

		// Collect both directions first; deleting while iterating the same
		// prefix is unsafe.
		type pair struct{ from, to NoteID }
		var pairs []pair

		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		it := txn.NewIterator(opts)
		outPrefix := linkPrefix(id)
		for it.Seek(outPrefix); it.ValidForPrefix(outPrefix); it.Next() {
			_, to := splitPair(it.Item().Key()[1:])
			pairs = append(pairs, pair{id, to})
		}
		inPrefix := incomingPrefix(id)
		for it.Seek(inPrefix); it.ValidForPrefix(inPrefix); it.Next() {
			_, from := splitPair(it.Item().Key()[1:])
			pairs = append(pairs, pair{from, id})
		}
		it.Close()

		for _, p := range pairs {
			n, err := b.deleteRecordInTxn(txn, p.from, p.to)
			if err != nil {
				return err
			}
			removed += n
		}
		return nil
	})

	if err == nil {
		b.noteCount.Add(-1)
		b.linkCount.Add(-removed)
	}
	return err
}

// NoteExists reports whether a note with the given ID exists.
func (b *BadgerStore) NoteExists(id NoteID) bool {
	if id == "" {
		return false
	}
	if err := b.checkOpen(); err != nil {
		return false
	}

	err := b.db.View(func(txn *badger.Txn) error {
		_, err := txn.Get(noteKey(id))
		return err
	})
	return err == nil
}

// AllNotes returns every note.
func (b *BadgerStore) AllNotes() ([]*Note, error) {
	if err := b.checkOpen(); err != nil {
		return nil, err
	}

	var notes []*Note
	err := b.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		it := txn.NewIterator(opts)
		defer it.Close()

		prefix := []byte{prefixNote}
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			err := it.Item().Value(func(val []byte) error {
				note, decodeErr := decodeNote(val)
				if decodeErr != nil {
					return decodeErr
				}
				notes = append(notes, note)
				return nil
			})
			if err != nil {
				return err
			}
		}
		return nil
	})
	return notes, err
}

// NoteCount returns the cached note count.
func (b *BadgerStore) NoteCount() (int64, error) {
	if err := b.checkOpen(); err != nil {
		return 0, err
	}
	count := b.noteCount.Load()
	if count < 0 {
		return 0, nil
	}
	return count, nil
}

// ============================================================================
// Link Operations
// ============================================================================

// ReplaceLinks atomically swaps the author's link set.
//
// One transaction deletes every directed record attributed to the author,
// then writes each new link and its reciprocal with AuthorID set. A pair
// previously written by another note's pass is re-attributed to this author.
func (b *BadgerStore) ReplaceLinks(author NoteID, links []*Link) error {
	if author == "" {
		return ErrInvalidID
	}
	if err := b.checkOpen(); err != nil {
		return err
	}

	var delta int64
	err := b.db.Update(func(txn *badger.Txn) error {
		delta = 0

		for _, l := range links {
			if l == nil || l.FromNote == "" || l.ToNote == "" {
				return ErrInvalidData
			}
			if l.FromNote == l.ToNote {
				return ErrSelfLink
			}
			for _, id := range []NoteID{l.FromNote, l.ToNote} {
				_, err := txn.Get(noteKey(id))
				if err == badger.ErrKeyNotFound {
					return ErrNotFound
				}
				if err != nil {
					return err
				}
			}
		}

		// Drop the author's previous set.
		type pair struct{ from, to NoteID }
		var old []pair

		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		it := txn.NewIterator(opts)
		prefix := authorPrefix(author)
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			from, to := splitPair(it.Item().Key()[len(prefix):])
			old = append(old, pair{from, to})
		}
		it.Close()

		for _, p := range old {
			n, err := b.deleteRecordInTxn(txn, p.from, p.to)
			if err != nil {
				return err
			}
			delta -= n
		}

		for _, l := range links {
			rec := copyLink(l)
			rec.AuthorID = author
			for _, half := range []*Link{rec, rec.Reciprocal()} {
				n, err := b.putRecordInTxn(txn, half)
				if err != nil {
					return err
				}
				delta += n
			}
		}
		return nil
	})

	if err == nil {
		b.linkCount.Add(delta)
	}
	return err
}

// putRecordInTxn upserts one directed record and its indexes.
// Returns 1 if a new record was created, 0 on overwrite.
func (b *BadgerStore) putRecordInTxn(txn *badger.Txn, l *Link) (int64, error) {
	key := linkKey(l.FromNote, l.ToNote)

	var created int64 = 1
	item, err := txn.Get(key)
	if err == nil {
		created = 0
		// Re-attribution: drop the previous author's index entry.
		err = item.Value(func(val []byte) error {
			prev, decodeErr := decodeLink(val)
			if decodeErr != nil {
				return decodeErr
			}
			if prev.AuthorID != l.AuthorID {
				return txn.Delete(authorKey(prev.AuthorID, l.FromNote, l.ToNote))
			}
			return nil
		})
		if err != nil {
			return 0, err
		}
	} else if err != badger.ErrKeyNotFound {
		return 0, err
	}

	data, err := encodeLink(l)
	if err != nil {
		return 0, fmt.Errorf("failed to encode link: %w", err)
	}
	if err := txn.Set(key, data); err != nil {
		return 0, err
	}
	if err := txn.Set(incomingKey(l.ToNote, l.FromNote), []byte{}); err != nil {
		return 0, err
	}
	if err := txn.Set(authorKey(l.AuthorID, l.FromNote, l.ToNote), []byte{}); err != nil {
		return 0, err
	}
	return created, nil
}

// deleteRecordInTxn removes one directed record and its indexes.
// Returns 1 if a record was actually deleted.
func (b *BadgerStore) deleteRecordInTxn(txn *badger.Txn, from, to NoteID) (int64, error) {
	key := linkKey(from, to)
	item, err := txn.Get(key)
	if err == badger.ErrKeyNotFound {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}

	var author NoteID
	err = item.Value(func(val []byte) error {
		l, decodeErr := decodeLink(val)
		if decodeErr != nil {
			return decodeErr
		}
		author = l.AuthorID
		return nil
	})
	if err != nil {
		return 0, err
	}

	if err := txn.Delete(key); err != nil {
		return 0, err
	}
	if err := txn.Delete(incomingKey(to, from)); err != nil {
		return 0, err
	}
	if err := txn.Delete(authorKey(author, from, to)); err != nil {
		return 0, err
	}
	return 1, nil
}

// OutgoingLinks returns directed records originating at the note.
func (b *BadgerStore) OutgoingLinks(id NoteID) ([]*Link, error) {
	if id == "" {
		return nil, ErrInvalidID
	}
	if err := b.checkOpen(); err != nil {
		return nil, err
	}

	var links []*Link
	err := b.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		it := txn.NewIterator(opts)
		defer it.Close()

		prefix := linkPrefix(id)
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			err := it.Item().Value(func(val []byte) error {
				l, decodeErr := decodeLink(val)
				if decodeErr != nil {
					return decodeErr
				}
				links = append(links, l)
				return nil
			})
			if err != nil {
				return err
			}
		}
		return nil
	})
	return links, err
}

// IncomingLinks returns directed records pointing at the note.
func (b *BadgerStore) IncomingLinks(id NoteID) ([]*Link, error) {
	if id == "" {
		return nil, ErrInvalidID
	}
	if err := b.checkOpen(); err != nil {
		return nil, err
	}

	var links []*Link
	err := b.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		it := txn.NewIterator(opts)

		// Index keys only name the pair; fetch each record afterwards.
		var froms []NoteID
		prefix := incomingPrefix(id)
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			_, from := splitPair(it.Item().Key()[1:])
			froms = append(froms, from)
		}
		it.Close()

		for _, from := range froms {
			item, err := txn.Get(linkKey(from, id))
			if err == badger.ErrKeyNotFound {
				continue
			}
			if err != nil {
				return err
			}
			err = item.Value(func(val []byte) error {
				l, decodeErr := decodeLink(val)
				if decodeErr != nil {
					return decodeErr
				}
				links = append(links, l)
				return nil
			})
			if err != nil {
				return err
			}
		}
		return nil
	})
	return links, err
}

// AllLinks returns every directed record.
func (b *BadgerStore) AllLinks() ([]*Link, error) {
	return b.LinkSnapshot()
}

// LinkCount returns the cached count of directed records.
func (b *BadgerStore) LinkCount() (int64, error) {
	if err := b.checkOpen(); err != nil {
		return 0, err
	}
	count := b.linkCount.Load()
	if count < 0 {
		return 0, nil
	}
	return count, nil
}

// LinkSnapshot returns all directed records from one read transaction.
func (b *BadgerStore) LinkSnapshot() ([]*Link, error) {
	if err := b.checkOpen(); err != nil {
		return nil, err
	}

	var links []*Link
	err := b.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		it := txn.NewIterator(opts)
		defer it.Close()

		prefix := []byte{prefixLink}
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			err := it.Item().Value(func(val []byte) error {
				l, decodeErr := decodeLink(val)
				if decodeErr != nil {
					return decodeErr
				}
				links = append(links, l)
				return nil
			})
			if err != nil {
				return err
			}
		}
		return nil
	})
	return links, err
}

// ============================================================================
// Lifecycle
// ============================================================================

// initializeCounts scans existing data once so count lookups stay O(1).
func (b *BadgerStore) initializeCounts() error {
	var notes, links int64

	err := b.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		it := txn.NewIterator(opts)
		defer it.Close()

		notePrefix := []byte{prefixNote}
		for it.Seek(notePrefix); it.ValidForPrefix(notePrefix); it.Next() {
			notes++
		}
		recPrefix := []byte{prefixLink}
		for it.Seek(recPrefix); it.ValidForPrefix(recPrefix); it.Next() {
			links++
		}
		return nil
	})
	if err != nil {
		return err
	}

	b.noteCount.Store(notes)
	b.linkCount.Store(links)
	return nil
}

func (b *BadgerStore) checkOpen() error {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.closed {
		return ErrStoreClosed
	}
	return nil
}

// Close closes the BadgerDB database.
func (b *BadgerStore) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return nil
	}
	b.closed = true
	return b.db.Close()
}
