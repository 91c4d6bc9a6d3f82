package linking

import (
	"sort"
	"time"

	"github.com/orneryd/matric/pkg/store"
)

// Exploration defaults.
const (
	DefaultExploreDepth = 2
	DefaultExploreLimit = 50
)

// GraphNode is one note reached during exploration.
type GraphNode struct {
	ID    store.NoteID `json:"id"`
	Title string       `json:"title"`
	Depth int          `json:"depth"`
}

// GraphEdge is one traversed link, annotated with its similarity.
type GraphEdge struct {
	From       store.NoteID `json:"from"`
	To         store.NoteID `json:"to"`
	Similarity float64      `json:"similarity"`
}

// Exploration is the result of a breadth-first graph walk.
type Exploration struct {
	Nodes []GraphNode `json:"nodes"`
	Edges []GraphEdge `json:"edges"`
}

// NoteLink is one entry of a note's link list: the neighbor plus the score
// that justified the connection.
type NoteLink struct {
	LinkedNoteID store.NoteID `json:"linked_note_id"`
	Title        string       `json:"title"`
	Similarity   float64      `json:"similarity"`
	CreatedAt    time.Time    `json:"created_at"`
}

// Explore walks the link graph breadth-first from a note.
//
// depth <= 0 and limit <= 0 fall back to the defaults. limit bounds the
// total node count; when a frontier does not fit, its highest-similarity
// edges win. Fails with store.ErrNotFound for an unknown note.
func (e *Engine) Explore(noteID store.NoteID, depth, limit int) (*Exploration, error) {
	if depth <= 0 {
		depth = DefaultExploreDepth
	}
	if limit <= 0 {
		limit = DefaultExploreLimit
	}

	origin, err := e.store.GetNote(noteID)
	if err != nil {
		return nil, err
	}

	snapshot, err := e.store.LinkSnapshot()
	if err != nil {
		return nil, err
	}

	// Undirected adjacency from the directed snapshot. Both halves of a
	// pair resolve to the same neighbor entry.
	adjacency := make(map[store.NoteID]map[store.NoteID]float64)
	for _, l := range snapshot {
		if adjacency[l.FromNote] == nil {
			adjacency[l.FromNote] = make(map[store.NoteID]float64)
		}
		adjacency[l.FromNote][l.ToNote] = l.Score
	}

	result := &Exploration{
		Nodes: []GraphNode{{ID: origin.ID, Title: origin.Title, Depth: 0}},
	}
	visited := map[store.NoteID]bool{origin.ID: true}
	frontier := []store.NoteID{origin.ID}

	for d := 1; d <= depth && len(frontier) > 0 && len(result.Nodes) < limit; d++ {
		// Collect the next ring, best edges first.
		type hop struct {
			from, to store.NoteID
			score    float64
		}
		var hops []hop
		for _, id := range frontier {
			for neighbor, score := range adjacency[id] {
				if !visited[neighbor] {
					hops = append(hops, hop{from: id, to: neighbor, score: score})
				}
			}
		}
		sort.Slice(hops, func(i, j int) bool {
			if hops[i].score != hops[j].score {
				return hops[i].score > hops[j].score
			}
			return hops[i].to < hops[j].to
		})

		var next []store.NoteID
		for _, h := range hops {
			if visited[h.to] {
				// Reached through a better edge already in this ring; still
				// record the extra edge for the caller.
				result.Edges = append(result.Edges, GraphEdge{From: h.from, To: h.to, Similarity: h.score})
				continue
			}
			if len(result.Nodes) >= limit {
				break
			}
			note, err := e.store.GetNote(h.to)
			if err != nil {
				// Snapshot raced a delete; skip the vanished note.
				continue
			}
			visited[h.to] = true
			next = append(next, h.to)
			result.Nodes = append(result.Nodes, GraphNode{ID: note.ID, Title: note.Title, Depth: d})
			result.Edges = append(result.Edges, GraphEdge{From: h.from, To: h.to, Similarity: h.score})
		}
		frontier = next
	}

	return result, nil
}

// NoteLinks returns the union of a note's outgoing and incoming links, one
// entry per neighbor. A note with no links yields an empty slice, not an
// error; an unknown note fails with store.ErrNotFound.
func (e *Engine) NoteLinks(noteID store.NoteID) ([]NoteLink, error) {
	if _, err := e.store.GetNote(noteID); err != nil {
		return nil, err
	}

	out, err := e.store.OutgoingLinks(noteID)
	if err != nil {
		return nil, err
	}
	in, err := e.store.IncomingLinks(noteID)
	if err != nil {
		return nil, err
	}

	// Both halves of a pair name the same neighbor; keep one.
	seen := make(map[store.NoteID]*store.Link)
	for _, l := range out {
		seen[l.ToNote] = l
	}
	for _, l := range in {
		if _, ok := seen[l.FromNote]; !ok {
			seen[l.FromNote] = l
		}
	}

	links := make([]NoteLink, 0, len(seen))
	for neighbor, l := range seen {
		title := ""
		if note, err := e.store.GetNote(neighbor); err == nil {
			title = note.Title
		}
		links = append(links, NoteLink{
			LinkedNoteID: neighbor,
			Title:        title,
			Similarity:   l.Score,
			CreatedAt:    l.CreatedAt,
		})
	}

	sort.Slice(links, func(i, j int) bool {
		if links[i].Similarity != links[j].Similarity {
			return links[i].Similarity > links[j].Similarity
		}
		return links[i].LinkedNoteID < links[j].LinkedNoteID
	})
	return links, nil
}
