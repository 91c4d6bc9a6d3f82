package store

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// runStoreTests runs a shared conformance suite against every engine.
func runStoreTests(t *testing.T, open func(t *testing.T) Store) {
	t.Run("create and get note", func(t *testing.T) {
		st := open(t)
		defer st.Close()

		note := &Note{
			ID:        "note-1",
			Title:     "Badger internals",
			Content:   "LSM trees and value logs",
			Tags:      []string{"storage", "go"},
			Embedding: []float32{0.1, 0.2, 0.3},
		}
		require.NoError(t, st.CreateNote(note))

		stored, err := st.GetNote("note-1")
		require.NoError(t, err)
		assert.Equal(t, "Badger internals", stored.Title)
		assert.Equal(t, []string{"storage", "go"}, stored.Tags)
		assert.Equal(t, []float32{0.1, 0.2, 0.3}, stored.Embedding)
	})

	t.Run("create validation", func(t *testing.T) {
		st := open(t)
		defer st.Close()

		assert.ErrorIs(t, st.CreateNote(nil), ErrInvalidData)
		assert.ErrorIs(t, st.CreateNote(&Note{ID: ""}), ErrInvalidID)

		require.NoError(t, st.CreateNote(&Note{ID: "note-1"}))
		assert.ErrorIs(t, st.CreateNote(&Note{ID: "note-1"}), ErrAlreadyExists)
	})

	t.Run("get missing note", func(t *testing.T) {
		st := open(t)
		defer st.Close()

		_, err := st.GetNote("ghost")
		assert.ErrorIs(t, err, ErrNotFound)
	})

	t.Run("update note", func(t *testing.T) {
		st := open(t)
		defer st.Close()

		require.NoError(t, st.CreateNote(&Note{ID: "note-1", Title: "before"}))
		require.NoError(t, st.UpdateNote(&Note{ID: "note-1", Title: "after"}))

		stored, err := st.GetNote("note-1")
		require.NoError(t, err)
		assert.Equal(t, "after", stored.Title)

		assert.ErrorIs(t, st.UpdateNote(&Note{ID: "ghost"}), ErrNotFound)
	})

	t.Run("note exists and count", func(t *testing.T) {
		st := open(t)
		defer st.Close()

		assert.False(t, st.NoteExists("note-1"))
		require.NoError(t, st.CreateNote(&Note{ID: "note-1"}))
		require.NoError(t, st.CreateNote(&Note{ID: "note-2"}))
		assert.True(t, st.NoteExists("note-1"))

		count, err := st.NoteCount()
		require.NoError(t, err)
		assert.Equal(t, int64(2), count)
	})

	t.Run("replace links writes reciprocal pairs", func(t *testing.T) {
		st := open(t)
		defer st.Close()

		require.NoError(t, st.CreateNote(&Note{ID: "a"}))
		require.NoError(t, st.CreateNote(&Note{ID: "b"}))
		require.NoError(t, st.CreateNote(&Note{ID: "c"}))

		err := st.ReplaceLinks("a", []*Link{
			{FromNote: "a", ToNote: "b", Kind: LinkKindSemantic, Score: 0.92},
			{FromNote: "a", ToNote: "c", Kind: LinkKindSemantic, Score: 0.85},
		})
		require.NoError(t, err)

		out, err := st.OutgoingLinks("a")
		require.NoError(t, err)
		assert.Len(t, out, 2)

		// Each pair must exist in both directions.
		in, err := st.IncomingLinks("a")
		require.NoError(t, err)
		assert.Len(t, in, 2)

		bOut, err := st.OutgoingLinks("b")
		require.NoError(t, err)
		require.Len(t, bOut, 1)
		assert.Equal(t, NoteID("a"), bOut[0].ToNote)
		assert.Equal(t, 0.92, bOut[0].Score)

		count, err := st.LinkCount()
		require.NoError(t, err)
		assert.Equal(t, int64(4), count)
	})

	t.Run("replace links is idempotent", func(t *testing.T) {
		st := open(t)
		defer st.Close()

		require.NoError(t, st.CreateNote(&Note{ID: "a"}))
		require.NoError(t, st.CreateNote(&Note{ID: "b"}))
		require.NoError(t, st.CreateNote(&Note{ID: "c"}))

		links := []*Link{
			{FromNote: "a", ToNote: "b", Kind: LinkKindSemantic, Score: 0.9},
		}
		require.NoError(t, st.ReplaceLinks("a", links))
		require.NoError(t, st.ReplaceLinks("a", links))

		count, err := st.LinkCount()
		require.NoError(t, err)
		assert.Equal(t, int64(2), count)

		// A new pass replaces the old set entirely.
		require.NoError(t, st.ReplaceLinks("a", []*Link{
			{FromNote: "a", ToNote: "c", Kind: LinkKindSemantic, Score: 0.8},
		}))

		out, err := st.OutgoingLinks("a")
		require.NoError(t, err)
		require.Len(t, out, 1)
		assert.Equal(t, NoteID("c"), out[0].ToNote)

		bOut, err := st.OutgoingLinks("b")
		require.NoError(t, err)
		assert.Empty(t, bOut)
	})

	t.Run("replace links re-attributes shared pairs", func(t *testing.T) {
		st := open(t)
		defer st.Close()

		require.NoError(t, st.CreateNote(&Note{ID: "a"}))
		require.NoError(t, st.CreateNote(&Note{ID: "b"}))

		require.NoError(t, st.ReplaceLinks("a", []*Link{
			{FromNote: "a", ToNote: "b", Kind: LinkKindSemantic, Score: 0.9},
		}))
		// B's pass rediscovers the same pair from the other side.
		require.NoError(t, st.ReplaceLinks("b", []*Link{
			{FromNote: "b", ToNote: "a", Kind: LinkKindSemantic, Score: 0.9},
		}))

		count, err := st.LinkCount()
		require.NoError(t, err)
		assert.Equal(t, int64(2), count)

		// A re-linking with no results must not take the pair down: it now
		// belongs to B.
		require.NoError(t, st.ReplaceLinks("a", nil))

		count, err = st.LinkCount()
		require.NoError(t, err)
		assert.Equal(t, int64(2), count)
	})

	t.Run("replace links validation", func(t *testing.T) {
		st := open(t)
		defer st.Close()

		require.NoError(t, st.CreateNote(&Note{ID: "a"}))

		err := st.ReplaceLinks("a", []*Link{
			{FromNote: "a", ToNote: "a", Score: 1.0},
		})
		assert.ErrorIs(t, err, ErrSelfLink)

		err = st.ReplaceLinks("a", []*Link{
			{FromNote: "a", ToNote: "ghost", Score: 0.9},
		})
		assert.ErrorIs(t, err, ErrNotFound)

		// Failed batch must not leave partial state.
		count, err := st.LinkCount()
		require.NoError(t, err)
		assert.Equal(t, int64(0), count)
	})

	t.Run("delete note cascades links", func(t *testing.T) {
		st := open(t)
		defer st.Close()

		require.NoError(t, st.CreateNote(&Note{ID: "a"}))
		require.NoError(t, st.CreateNote(&Note{ID: "b"}))
		require.NoError(t, st.CreateNote(&Note{ID: "c"}))
		require.NoError(t, st.ReplaceLinks("a", []*Link{
			{FromNote: "a", ToNote: "b", Score: 0.9},
			{FromNote: "a", ToNote: "c", Score: 0.8},
		}))

		require.NoError(t, st.DeleteNote("a"))

		_, err := st.GetNote("a")
		assert.ErrorIs(t, err, ErrNotFound)

		count, err := st.LinkCount()
		require.NoError(t, err)
		assert.Equal(t, int64(0), count)

		bIn, err := st.IncomingLinks("b")
		require.NoError(t, err)
		assert.Empty(t, bIn)

		assert.ErrorIs(t, st.DeleteNote("a"), ErrNotFound)
	})

	t.Run("link snapshot", func(t *testing.T) {
		st := open(t)
		defer st.Close()

		require.NoError(t, st.CreateNote(&Note{ID: "a"}))
		require.NoError(t, st.CreateNote(&Note{ID: "b"}))
		require.NoError(t, st.ReplaceLinks("a", []*Link{
			{FromNote: "a", ToNote: "b", Score: 0.9},
		}))

		snap, err := st.LinkSnapshot()
		require.NoError(t, err)
		assert.Len(t, snap, 2)

		seen := map[NoteID]NoteID{}
		for _, l := range snap {
			seen[l.FromNote] = l.ToNote
			assert.Equal(t, NoteID("a"), l.AuthorID)
		}
		assert.Equal(t, NoteID("b"), seen["a"])
		assert.Equal(t, NoteID("a"), seen["b"])
	})

	t.Run("closed store", func(t *testing.T) {
		st := open(t)
		require.NoError(t, st.Close())

		assert.ErrorIs(t, st.CreateNote(&Note{ID: "x"}), ErrStoreClosed)
		_, err := st.AllNotes()
		assert.ErrorIs(t, err, ErrStoreClosed)
	})
}

func TestMemoryStore(t *testing.T) {
	runStoreTests(t, func(t *testing.T) Store {
		return NewMemoryStore()
	})
}

func TestBadgerStore(t *testing.T) {
	runStoreTests(t, func(t *testing.T) Store {
		st, err := NewBadgerStoreInMemory()
		require.NoError(t, err)
		return st
	})
}

func TestMemoryStore_DeepCopy(t *testing.T) {
	st := NewMemoryStore()
	defer st.Close()

	note := &Note{ID: "note-1", Tags: []string{"one"}, Embedding: []float32{1}}
	require.NoError(t, st.CreateNote(note))

	// Mutating the caller's struct must not reach the store.
	note.Tags[0] = "mutated"
	note.Embedding[0] = 99

	stored, err := st.GetNote("note-1")
	require.NoError(t, err)
	assert.Equal(t, "one", stored.Tags[0])
	assert.Equal(t, float32(1), stored.Embedding[0])

	// Mutating a returned copy must not reach the store either.
	stored.Tags[0] = "mutated"
	again, err := st.GetNote("note-1")
	require.NoError(t, err)
	assert.Equal(t, "one", again.Tags[0])
}

func TestBadgerStore_PersistsAcrossReopen(t *testing.T) {
	dir := t.TempDir()

	st, err := NewBadgerStore(dir)
	require.NoError(t, err)
	require.NoError(t, st.CreateNote(&Note{ID: "a", Title: "kept"}))
	require.NoError(t, st.CreateNote(&Note{ID: "b"}))
	require.NoError(t, st.ReplaceLinks("a", []*Link{
		{FromNote: "a", ToNote: "b", Score: 0.9},
	}))
	require.NoError(t, st.Close())

	st, err = NewBadgerStore(dir)
	require.NoError(t, err)
	defer st.Close()

	note, err := st.GetNote("a")
	require.NoError(t, err)
	assert.Equal(t, "kept", note.Title)

	// Counts are rebuilt from a scan at open.
	notes, err := st.NoteCount()
	require.NoError(t, err)
	assert.Equal(t, int64(2), notes)

	links, err := st.LinkCount()
	require.NoError(t, err)
	assert.Equal(t, int64(2), links)
}
