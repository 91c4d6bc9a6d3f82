package linking

import (
	"context"
	"testing"

	"github.com/orneryd/matric/pkg/store"
)

func TestTopologyStats_Empty(t *testing.T) {
	st := store.NewMemoryStore()
	defer st.Close()
	e := NewEngine(st, DefaultConfig())

	snap, err := e.TopologyStats()
	if err != nil {
		t.Fatalf("TopologyStats: %v", err)
	}
	if snap.TotalNotes != 0 || snap.TotalLinks != 0 {
		t.Errorf("empty graph reported %d notes %d links", snap.TotalNotes, snap.TotalLinks)
	}
	if snap.ConnectedComponents != 0 {
		t.Errorf("empty graph has %d components", snap.ConnectedComponents)
	}
	if snap.LinkingStrategy != StrategyHNSWHeuristic {
		t.Errorf("strategy = %q", snap.LinkingStrategy)
	}
}

func TestTopologyStats_TwoClustersAndAnIsland(t *testing.T) {
	st := store.NewMemoryStore()
	defer st.Close()
	e := NewEngine(st, DefaultConfig())

	// Two tight pairs on opposite sides of the circle, plus one note at 90
	// degrees that clears the floor with nothing.
	mustCreate(t, st, "a", "", vecAt(0))
	mustCreate(t, st, "b", "", vecAt(20))
	mustCreate(t, st, "c", "", vecAt(180))
	mustCreate(t, st, "d", "", vecAt(200))
	mustCreate(t, st, "e", "", vecAt(90))

	for _, id := range []store.NoteID{"a", "b", "c", "d", "e"} {
		if _, err := e.LinkNote(context.Background(), id); err != nil {
			t.Fatalf("LinkNote(%s): %v", id, err)
		}
	}

	snap, err := e.TopologyStats()
	if err != nil {
		t.Fatalf("TopologyStats: %v", err)
	}

	if snap.TotalNotes != 5 {
		t.Errorf("TotalNotes = %d, want 5", snap.TotalNotes)
	}
	if snap.TotalLinks != 2 {
		t.Errorf("TotalLinks = %d, want 2 (a-b and c-d)", snap.TotalLinks)
	}
	if snap.IsolatedNodes != 1 {
		t.Errorf("IsolatedNodes = %d, want 1", snap.IsolatedNodes)
	}
	if snap.ConnectedComponents != 2 {
		t.Errorf("ConnectedComponents = %d, want 2", snap.ConnectedComponents)
	}
	if snap.MaxDegree != 1 {
		t.Errorf("MaxDegree = %d, want 1", snap.MaxDegree)
	}
	if snap.MinDegreeLinked != 1 {
		t.Errorf("MinDegreeLinked = %d, want 1", snap.MinDegreeLinked)
	}
	if got, want := snap.AvgDegree, 0.8; got != want {
		t.Errorf("AvgDegree = %v, want %v", got, want)
	}
	if got, want := snap.MedianDegree, 1.0; got != want {
		t.Errorf("MedianDegree = %v, want %v", got, want)
	}
	if snap.EffectiveK != 5 {
		t.Errorf("EffectiveK = %d, want 5", snap.EffectiveK)
	}
}

func TestTopologyStats_MedianInterpolates(t *testing.T) {
	st := store.NewMemoryStore()
	defer st.Close()
	e := NewEngine(st, DefaultConfig())

	// One linked pair and one isolated note: degrees 1, 1, 0.
	// Adding a second isolated note makes the count even: 1, 1, 0, 0.
	mustCreate(t, st, "a", "", vecAt(0))
	mustCreate(t, st, "b", "", vecAt(20))
	mustCreate(t, st, "x", "", vecAt(90))
	mustCreate(t, st, "y", "", vecAt(270))

	if _, err := e.LinkNote(context.Background(), "a"); err != nil {
		t.Fatalf("LinkNote: %v", err)
	}

	snap, err := e.TopologyStats()
	if err != nil {
		t.Fatalf("TopologyStats: %v", err)
	}
	if got, want := snap.MedianDegree, 0.5; got != want {
		t.Errorf("MedianDegree = %v, want %v", got, want)
	}
}
