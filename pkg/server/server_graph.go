package server

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/orneryd/matric/pkg/linking"
	"github.com/orneryd/matric/pkg/store"
)

func (s *Server) handleExplore(w http.ResponseWriter, r *http.Request) {
	depth, err := queryInt(r, "depth", 0)
	if err != nil {
		s.writeError(w, err)
		return
	}
	limit, err := queryInt(r, "limit", 0)
	if err != nil {
		s.writeError(w, err)
		return
	}

	graph, err := s.db.ExploreGraph(store.NoteID(chi.URLParam(r, "id")), depth, limit)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, graph)
}

func (s *Server) handleNoteLinks(w http.ResponseWriter, r *http.Request) {
	links, err := s.db.NoteLinks(store.NoteID(chi.URLParam(r, "id")))
	if err != nil {
		s.writeError(w, err)
		return
	}
	if links == nil {
		links = []linking.NoteLink{}
	}
	s.writeJSON(w, http.StatusOK, links)
}

func (s *Server) handleTopology(w http.ResponseWriter, r *http.Request) {
	snapshot, err := s.db.TopologyStats()
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, snapshot)
}

func queryInt(r *http.Request, key string, defaultVal int) (int, error) {
	v := r.URL.Query().Get(key)
	if v == "" {
		return defaultVal, nil
	}
	i, err := strconv.Atoi(v)
	if err != nil || i < 0 {
		return 0, badRequestf("invalid %s %q", key, v)
	}
	return i, nil
}
