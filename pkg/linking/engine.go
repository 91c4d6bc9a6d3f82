// Package linking implements the semantic linking engine.
//
// Given a note's embedding, the engine selects a bounded, diverse set of
// neighbor notes and persists symmetric similarity-scored links. Neighbor
// selection uses the SELECT-NEIGHBORS-HEURISTIC from HNSW construction
// (Malkov & Yashunin 2018, Algorithm 4) instead of naive top-k: a corpus
// with a few generic notes similar to everything would otherwise collapse
// into a star topology, making multi-hop exploration uninformative.
//
// Connectivity adapts to corpus size: the target degree is
// clamp(round(log2(total_notes)), MinK, MaxK), so small corpora still get a
// floor of links and large corpora stay bounded.
package linking

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sort"
	"sync"

	"github.com/rs/zerolog"

	"github.com/orneryd/matric/pkg/store"
	"github.com/orneryd/matric/pkg/vmath"
)

// ErrNoEmbedding means linking was requested for a note that has not been
// embedded yet. The linking job fails; it is re-enqueued after embedding.
var ErrNoEmbedding = errors.New("note has no embedding")

// StrategyHNSWHeuristic is the identifier reported in topology snapshots.
const StrategyHNSWHeuristic = "hnsw_heuristic"

// Config holds the linking tuning constants.
//
// The over-fetch factor and similarity floor are operational tuning knobs,
// not algorithm invariants, so they are configuration with defaults rather
// than constants.
type Config struct {
	// MinK and MaxK clamp the adaptive target degree. Defaults 5 and 15.
	MinK int
	MaxK int

	// Overfetch multiplies the target degree for the candidate query, so
	// the diversity filter has spare material. Candidate count is
	// max(Overfetch*k, 15). Default 3.
	Overfetch int

	// MinSimilarity is the score floor. Candidates below it are never
	// linked. Default 0.70.
	MinSimilarity float64

	// KeepPruned backfills remaining slots from diversity-rejected
	// candidates, in similarity order, after the diverse set is chosen.
	KeepPruned bool

	Logger zerolog.Logger
}

// DefaultConfig returns the production defaults.
func DefaultConfig() Config {
	return Config{
		MinK:          5,
		MaxK:          15,
		Overfetch:     3,
		MinSimilarity: 0.70,
		KeepPruned:    false,
		Logger:        zerolog.Nop(),
	}
}

// Engine selects and persists semantic links for notes.
//
// Safe for concurrent use; candidate buffers are local to a single LinkNote
// call and the store handles write atomicity.
type Engine struct {
	store  store.Store
	config Config

	mu             sync.Mutex
	lastEffectiveK int
}

// NewEngine creates a linking engine. Zero-valued config fields fall back
// to defaults.
func NewEngine(st store.Store, config Config) *Engine {
	def := DefaultConfig()
	if config.MinK <= 0 {
		config.MinK = def.MinK
	}
	if config.MaxK <= 0 {
		config.MaxK = def.MaxK
	}
	if config.Overfetch <= 0 {
		config.Overfetch = def.Overfetch
	}
	if config.MinSimilarity <= 0 {
		config.MinSimilarity = def.MinSimilarity
	}
	return &Engine{store: st, config: config}
}

// EffectiveK returns the adaptive target degree for a corpus of the given
// size: clamp(round(log2(totalNotes)), MinK, MaxK).
func (e *Engine) EffectiveK(totalNotes int) int {
	if totalNotes < 2 {
		return e.config.MinK
	}
	k := int(math.Round(math.Log2(float64(totalNotes))))
	if k < e.config.MinK {
		k = e.config.MinK
	}
	if k > e.config.MaxK {
		k = e.config.MaxK
	}
	return k
}

// LastEffectiveK returns the k used by the most recent linking run, or the
// value the current corpus size would produce when no run has happened yet.
func (e *Engine) LastEffectiveK() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.lastEffectiveK > 0 {
		return e.lastEffectiveK
	}
	count, err := e.store.NoteCount()
	if err != nil {
		return e.config.MinK
	}
	return e.EffectiveK(int(count))
}

// candidate is one similarity hit against the query note.
type candidate struct {
	id        store.NoteID
	embedding []float32
	score     float64
}

// LinkNote computes and persists the diverse neighbor set for a note.
//
// The previous links authored by this note are replaced, not appended to,
// so re-running with an unchanged embedding index converges to the same
// edge set. Returns the number of logical links written.
func (e *Engine) LinkNote(ctx context.Context, id store.NoteID) (int, error) {
	note, err := e.store.GetNote(id)
	if err != nil {
		return 0, err
	}
	if len(note.Embedding) == 0 {
		return 0, fmt.Errorf("%w: %s", ErrNoEmbedding, id)
	}

	notes, err := e.store.AllNotes()
	if err != nil {
		return 0, err
	}

	k := e.EffectiveK(len(notes))
	e.mu.Lock()
	e.lastEffectiveK = k
	e.mu.Unlock()

	// Over-fetch so the diversity filter has spare material.
	candidateLimit := k * e.config.Overfetch
	if candidateLimit < 15 {
		candidateLimit = 15
	}

	candidates := e.nearestCandidates(note, notes, candidateLimit)

	// Score floor: links below it are never created.
	filtered := candidates[:0]
	for _, c := range candidates {
		if c.score >= e.config.MinSimilarity {
			filtered = append(filtered, c)
		}
	}

	if err := ctx.Err(); err != nil {
		return 0, err
	}

	// The heuristic admits the most similar candidate unconditionally, so
	// any note with at least one candidate above the floor gets a link.
	selected := selectNeighborsHeuristic(note.Embedding, filtered, k, e.config.KeepPruned)

	links := make([]*store.Link, 0, len(selected))
	for _, c := range selected {
		links = append(links, &store.Link{
			FromNote: id,
			ToNote:   c.id,
			Kind:     store.LinkKindSemantic,
			Score:    c.score,
		})
	}

	if err := e.store.ReplaceLinks(id, links); err != nil {
		return 0, err
	}

	e.config.Logger.Debug().
		Str("note_id", string(id)).
		Int("k", k).
		Int("candidates", len(filtered)).
		Int("links", len(links)).
		Msg("note linked")
	return len(links), nil
}

// nearestCandidates returns up to limit notes sorted by descending cosine
// similarity to the query, excluding the query itself and notes without
// embeddings.
func (e *Engine) nearestCandidates(query *store.Note, notes []*store.Note, limit int) []candidate {
	candidates := make([]candidate, 0, len(notes))
	for _, n := range notes {
		if n.ID == query.ID || len(n.Embedding) == 0 {
			continue
		}
		candidates = append(candidates, candidate{
			id:        n.ID,
			embedding: n.Embedding,
			score:     vmath.CosineSimilarity(query.Embedding, n.Embedding),
		})
	}

	sort.Slice(candidates, func(i, j int) bool {
		if candidates[i].score != candidates[j].score {
			return candidates[i].score > candidates[j].score
		}
		// Stable order for equal scores keeps linking deterministic.
		return candidates[i].id < candidates[j].id
	})

	if len(candidates) > limit {
		candidates = candidates[:limit]
	}
	return candidates
}

// selectNeighborsHeuristic is HNSW Algorithm 4: SELECT-NEIGHBORS-HEURISTIC.
//
// Candidates must be sorted by descending similarity to the query. A
// candidate is admitted only if it is closer to the query than to every
// already-admitted neighbor; one that sits closer to an existing neighbor
// adds little new graph coverage and is pruned. This approximates the
// relative neighborhood graph and spreads connectivity in diverse
// directions.
//
// With keepPruned, remaining slots are backfilled from the pruned
// candidates in similarity order.
func selectNeighborsHeuristic(queryVec []float32, candidates []candidate, m int, keepPruned bool) []candidate {
	result := make([]candidate, 0, m)
	var discarded []candidate

	for _, c := range candidates {
		if len(result) >= m {
			break
		}

		diverse := true
		for _, accepted := range result {
			if vmath.CosineSimilarity(c.embedding, accepted.embedding) >= c.score {
				diverse = false
				break
			}
		}

		if diverse {
			result = append(result, c)
		} else {
			discarded = append(discarded, c)
		}
	}

	if keepPruned {
		for _, c := range discarded {
			if len(result) >= m {
				break
			}
			result = append(result, c)
		}
	}
	return result
}
