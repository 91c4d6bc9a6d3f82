package server

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/orneryd/matric/pkg/jobs"
	"github.com/orneryd/matric/pkg/store"
)

type createJobRequest struct {
	NoteID   string `json:"note_id"`
	JobType  string `json:"job_type"`
	Priority *int   `json:"priority"`
}

func (s *Server) handleCreateJob(w http.ResponseWriter, r *http.Request) {
	var req createJobRequest
	if err := decodeJSON(r, &req); err != nil {
		s.writeError(w, err)
		return
	}

	jobType, err := jobs.ParseType(req.JobType)
	if err != nil {
		s.writeError(w, err)
		return
	}

	priority := -1
	if req.Priority != nil {
		priority = *req.Priority
	}

	job, err := s.db.CreateJob(store.NoteID(req.NoteID), jobType, priority)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusCreated, job)
}

func (s *Server) handleGetJob(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		s.writeError(w, badRequestf("invalid job id: %v", err))
		return
	}
	job, err := s.db.GetJob(id)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, job)
}

type listJobsResponse struct {
	Jobs  []*jobs.Job `json:"jobs"`
	Total int         `json:"total"`
}

func (s *Server) handleListJobs(w http.ResponseWriter, r *http.Request) {
	var filter jobs.Filter

	if v := r.URL.Query().Get("status"); v != "" {
		status, err := jobs.ParseStatus(v)
		if err != nil {
			s.writeError(w, badRequestf("invalid status %q", v))
			return
		}
		filter.Status = &status
	}
	if v := r.URL.Query().Get("job_type"); v != "" {
		jobType, err := jobs.ParseType(v)
		if err != nil {
			s.writeError(w, err)
			return
		}
		filter.Type = &jobType
	}
	filter.NoteID = store.NoteID(r.URL.Query().Get("note_id"))
	if v := r.URL.Query().Get("limit"); v != "" {
		limit, err := strconv.Atoi(v)
		if err != nil || limit < 0 {
			s.writeError(w, badRequestf("invalid limit %q", v))
			return
		}
		filter.Limit = limit
	}

	list, total, err := s.db.ListJobs(filter)
	if err != nil {
		s.writeError(w, err)
		return
	}
	if list == nil {
		list = []*jobs.Job{}
	}
	s.writeJSON(w, http.StatusOK, listJobsResponse{Jobs: list, Total: total})
}

func (s *Server) handleQueueStats(w http.ResponseWriter, r *http.Request) {
	stats, err := s.db.QueueStats()
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, stats)
}

func (s *Server) handlePendingCount(w http.ResponseWriter, r *http.Request) {
	count, err := s.db.PendingJobsCount()
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, count)
}

type reembedAllResponse struct {
	Queued []*jobs.Job `json:"queued"`
}

func (s *Server) handleReembedAll(w http.ResponseWriter, r *http.Request) {
	force := r.URL.Query().Get("force") == "true"
	queued, err := s.db.ReembedAll(force)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusAccepted, reembedAllResponse{Queued: queued})
}
