package linking

import (
	"sort"

	"github.com/orneryd/matric/pkg/store"
)

// Snapshot is a point-in-time summary of the link graph's connectivity.
//
// Derived, never persisted: every call recomputes from the current link
// set. Degree counts distinct neighbors in the undirected projection, so a
// logical link contributes one degree to each endpoint. TotalLinks counts
// logical links, not directed records. ConnectedComponents covers the
// linked subgraph; isolated notes are reported separately.
type Snapshot struct {
	TotalNotes          int     `json:"total_notes"`
	TotalLinks          int     `json:"total_links"`
	IsolatedNodes       int     `json:"isolated_nodes"`
	ConnectedComponents int     `json:"connected_components"`
	AvgDegree           float64 `json:"avg_degree"`
	MaxDegree           int     `json:"max_degree"`
	MinDegreeLinked     int     `json:"min_degree_linked"`
	MedianDegree        float64 `json:"median_degree"`
	LinkingStrategy     string  `json:"linking_strategy"`
	EffectiveK          int     `json:"effective_k"`
}

// unionFind is a weighted quick-union over note IDs.
type unionFind struct {
	parent map[store.NoteID]store.NoteID
	size   map[store.NoteID]int
	count  int
}

func newUnionFind() *unionFind {
	return &unionFind{
		parent: make(map[store.NoteID]store.NoteID),
		size:   make(map[store.NoteID]int),
	}
}

func (u *unionFind) add(id store.NoteID) {
	if _, ok := u.parent[id]; ok {
		return
	}
	u.parent[id] = id
	u.size[id] = 1
	u.count++
}

func (u *unionFind) find(id store.NoteID) store.NoteID {
	root := id
	for u.parent[root] != root {
		root = u.parent[root]
	}
	// Path compression.
	for u.parent[id] != root {
		id, u.parent[id] = u.parent[id], root
	}
	return root
}

func (u *unionFind) union(a, b store.NoteID) {
	ra, rb := u.find(a), u.find(b)
	if ra == rb {
		return
	}
	if u.size[ra] < u.size[rb] {
		ra, rb = rb, ra
	}
	u.parent[rb] = ra
	u.size[ra] += u.size[rb]
	u.count--
}

// TopologyStats computes the full graph summary from one consistent link
// snapshot. Correct under concurrent link mutation: it reads the link set
// once and never sees a half-written pair.
func (e *Engine) TopologyStats() (*Snapshot, error) {
	totalNotes, err := e.store.NoteCount()
	if err != nil {
		return nil, err
	}

	records, err := e.store.LinkSnapshot()
	if err != nil {
		return nil, err
	}

	// Undirected projection: distinct neighbor sets per note.
	neighbors := make(map[store.NoteID]map[store.NoteID]struct{})
	uf := newUnionFind()
	for _, l := range records {
		if neighbors[l.FromNote] == nil {
			neighbors[l.FromNote] = make(map[store.NoteID]struct{})
		}
		neighbors[l.FromNote][l.ToNote] = struct{}{}

		uf.add(l.FromNote)
		uf.add(l.ToNote)
		uf.union(l.FromNote, l.ToNote)
	}

	snap := &Snapshot{
		TotalNotes:          int(totalNotes),
		TotalLinks:          len(records) / 2,
		ConnectedComponents: uf.count,
		LinkingStrategy:     StrategyHNSWHeuristic,
		EffectiveK:          e.LastEffectiveK(),
	}

	// Degree distribution over every note, zeros included.
	degrees := make([]int, 0, totalNotes)
	sum := 0
	for _, set := range neighbors {
		d := len(set)
		degrees = append(degrees, d)
		sum += d
		if d > snap.MaxDegree {
			snap.MaxDegree = d
		}
		if snap.MinDegreeLinked == 0 || d < snap.MinDegreeLinked {
			snap.MinDegreeLinked = d
		}
	}
	snap.IsolatedNodes = snap.TotalNotes - len(neighbors)
	if snap.IsolatedNodes < 0 {
		// NoteCount and the snapshot are separate reads; a concurrent
		// delete can skew them by a note or two.
		snap.IsolatedNodes = 0
	}
	for i := 0; i < snap.IsolatedNodes; i++ {
		degrees = append(degrees, 0)
	}

	if len(degrees) > 0 {
		snap.AvgDegree = float64(sum) / float64(len(degrees))
		sort.Ints(degrees)
		mid := len(degrees) / 2
		if len(degrees)%2 == 1 {
			snap.MedianDegree = float64(degrees[mid])
		} else {
			snap.MedianDegree = float64(degrees[mid-1]+degrees[mid]) / 2
		}
	}
	return snap, nil
}
