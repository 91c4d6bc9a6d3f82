package linking

import (
	"context"
	"errors"
	"testing"

	"github.com/orneryd/matric/pkg/store"
)

// bridgeCorpus builds three notes where b sits between a and c: a-b and
// b-c clear the similarity floor, a-c does not. Linking all three yields
// the path a - b - c.
func bridgeCorpus(t *testing.T) (*Engine, store.Store) {
	t.Helper()
	st := store.NewMemoryStore()
	t.Cleanup(func() { st.Close() })
	e := NewEngine(st, DefaultConfig())

	mustCreate(t, st, "a", "Transformer architectures", vecAt(0))
	mustCreate(t, st, "b", "ML accelerator design", vecAt(45))
	mustCreate(t, st, "c", "FPGA routing", vecAt(90))

	for _, id := range []store.NoteID{"a", "b", "c"} {
		if _, err := e.LinkNote(context.Background(), id); err != nil {
			t.Fatalf("LinkNote(%s): %v", id, err)
		}
	}
	return e, st
}

func nodeIDs(ex *Exploration) map[store.NoteID]int {
	ids := make(map[store.NoteID]int, len(ex.Nodes))
	for _, n := range ex.Nodes {
		ids[n.ID] = n.Depth
	}
	return ids
}

func TestExplore_DepthBounds(t *testing.T) {
	e, _ := bridgeCorpus(t)

	t.Run("depth 1 stops at direct neighbors", func(t *testing.T) {
		ex, err := e.Explore("a", 1, 0)
		if err != nil {
			t.Fatalf("Explore: %v", err)
		}
		ids := nodeIDs(ex)
		if len(ids) != 2 {
			t.Fatalf("expected nodes {a, b}, got %v", ids)
		}
		if ids["a"] != 0 || ids["b"] != 1 {
			t.Errorf("wrong depths: %v", ids)
		}
		if len(ex.Edges) != 1 {
			t.Errorf("expected 1 edge, got %d", len(ex.Edges))
		}
	})

	t.Run("depth 2 crosses the bridge", func(t *testing.T) {
		ex, err := e.Explore("a", 2, 0)
		if err != nil {
			t.Fatalf("Explore: %v", err)
		}
		ids := nodeIDs(ex)
		if len(ids) != 3 {
			t.Fatalf("expected nodes {a, b, c}, got %v", ids)
		}
		if ids["c"] != 2 {
			t.Errorf("c should be at depth 2, got %d", ids["c"])
		}
		if len(ex.Edges) != 2 {
			t.Errorf("expected 2 edges, got %d", len(ex.Edges))
		}
	})
}

func TestExplore_Limit(t *testing.T) {
	e, _ := bridgeCorpus(t)

	ex, err := e.Explore("a", 2, 2)
	if err != nil {
		t.Fatalf("Explore: %v", err)
	}
	if len(ex.Nodes) != 2 {
		t.Fatalf("limit 2, got %d nodes", len(ex.Nodes))
	}
	ids := nodeIDs(ex)
	if _, ok := ids["c"]; ok {
		t.Error("farthest node admitted before closer ones")
	}
}

func TestExplore_MissingOrigin(t *testing.T) {
	e, _ := bridgeCorpus(t)

	if _, err := e.Explore("ghost", 2, 0); !errors.Is(err, store.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestExplore_IsolatedOrigin(t *testing.T) {
	e, st := bridgeCorpus(t)
	mustCreate(t, st, "island", "Unrelated", vecAt(200))

	ex, err := e.Explore("island", 2, 0)
	if err != nil {
		t.Fatalf("Explore: %v", err)
	}
	if len(ex.Nodes) != 1 || len(ex.Edges) != 0 {
		t.Errorf("isolated origin should yield only itself, got %d nodes %d edges",
			len(ex.Nodes), len(ex.Edges))
	}
}

func TestNoteLinks(t *testing.T) {
	e, _ := bridgeCorpus(t)

	links, err := e.NoteLinks("b")
	if err != nil {
		t.Fatalf("NoteLinks: %v", err)
	}
	if len(links) != 2 {
		t.Fatalf("expected 2 neighbors for the bridge note, got %d", len(links))
	}
	seen := make(map[store.NoteID]NoteLink)
	for i, l := range links {
		seen[l.LinkedNoteID] = l
		if l.Title == "" {
			t.Errorf("link %d missing title", i)
		}
		if i > 0 && links[i-1].Similarity < l.Similarity {
			t.Errorf("links not sorted by similarity: %v before %v",
				links[i-1].Similarity, l.Similarity)
		}
	}
	if _, ok := seen["a"]; !ok {
		t.Error("missing neighbor a")
	}
	if _, ok := seen["c"]; !ok {
		t.Error("missing neighbor c")
	}

	if _, err := e.NoteLinks("ghost"); !errors.Is(err, store.ErrNotFound) {
		t.Errorf("expected ErrNotFound for missing note, got %v", err)
	}
}
