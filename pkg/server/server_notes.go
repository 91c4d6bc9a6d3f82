package server

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/orneryd/matric/pkg/jobs"
	"github.com/orneryd/matric/pkg/store"
)

type noteRequest struct {
	Title   string   `json:"title"`
	Content string   `json:"content"`
	Tags    []string `json:"tags"`
}

func (s *Server) handleCreateNote(w http.ResponseWriter, r *http.Request) {
	var req noteRequest
	if err := decodeJSON(r, &req); err != nil {
		s.writeError(w, err)
		return
	}

	note, err := s.db.CreateNote(r.Context(), &store.Note{
		Title:   req.Title,
		Content: req.Content,
		Tags:    req.Tags,
	})
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusCreated, note)
}

func (s *Server) handleGetNote(w http.ResponseWriter, r *http.Request) {
	note, err := s.db.GetNote(store.NoteID(chi.URLParam(r, "id")))
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, note)
}

func (s *Server) handleUpdateNote(w http.ResponseWriter, r *http.Request) {
	var req noteRequest
	if err := decodeJSON(r, &req); err != nil {
		s.writeError(w, err)
		return
	}

	note, err := s.db.UpdateNote(r.Context(), &store.Note{
		ID:      store.NoteID(chi.URLParam(r, "id")),
		Title:   req.Title,
		Content: req.Content,
		Tags:    req.Tags,
	})
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, note)
}

func (s *Server) handleDeleteNote(w http.ResponseWriter, r *http.Request) {
	if err := s.db.DeleteNote(store.NoteID(chi.URLParam(r, "id"))); err != nil {
		s.writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type reprocessRequest struct {
	Operations []string `json:"operations"`
}

type reprocessResponse struct {
	JobsCreated []*jobs.Job `json:"jobs_created"`
}

func (s *Server) handleReprocessNote(w http.ResponseWriter, r *http.Request) {
	var req reprocessRequest
	if r.ContentLength > 0 {
		if err := decodeJSON(r, &req); err != nil {
			s.writeError(w, err)
			return
		}
	}

	operations := make([]jobs.Type, 0, len(req.Operations))
	for _, op := range req.Operations {
		jobType, err := jobs.ParseType(op)
		if err != nil {
			s.writeError(w, err)
			return
		}
		operations = append(operations, jobType)
	}

	queued, err := s.db.ReprocessNote(store.NoteID(chi.URLParam(r, "id")), operations)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusAccepted, reprocessResponse{JobsCreated: queued})
}
