// Package server exposes the matric job queue and link graph over HTTP.
//
// Routes:
//
//	GET  /health
//	POST /api/notes                      create note (starts the pipeline)
//	GET  /api/notes/{id}
//	PUT  /api/notes/{id}
//	DELETE /api/notes/{id}               cascades jobs and links
//	POST /api/notes/{id}/reprocess       re-enqueue background work
//	GET  /api/notes/{id}/links
//	POST /api/jobs                       create job
//	GET  /api/jobs                       list, ?status=&job_type=&note_id=&limit=
//	GET  /api/jobs/stats
//	GET  /api/jobs/pending-count
//	GET  /api/jobs/{id}
//	POST /api/jobs/reembed-all           ?force=true re-embeds everything
//	GET  /api/graph/explore/{id}         ?depth=&limit=
//	GET  /api/graph/topology
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"

	"github.com/orneryd/matric/pkg/jobs"
	"github.com/orneryd/matric/pkg/matric"
	"github.com/orneryd/matric/pkg/store"
)

// Server serves the matric HTTP API.
type Server struct {
	db     *matric.DB
	log    zerolog.Logger
	router *chi.Mux
	http   *http.Server
}

// New builds a server around an open DB.
func New(db *matric.DB, log zerolog.Logger) *Server {
	s := &Server{
		db:     db,
		log:    log,
		router: chi.NewRouter(),
	}

	s.router.Use(middleware.RequestID)
	s.router.Use(middleware.RealIP)
	s.router.Use(s.requestLogger)
	s.router.Use(middleware.Recoverer)

	s.router.Get("/health", s.handleHealth)
	s.router.Route("/api", func(r chi.Router) {
		r.Route("/notes", func(r chi.Router) {
			r.Post("/", s.handleCreateNote)
			r.Get("/{id}", s.handleGetNote)
			r.Put("/{id}", s.handleUpdateNote)
			r.Delete("/{id}", s.handleDeleteNote)
			r.Post("/{id}/reprocess", s.handleReprocessNote)
			r.Get("/{id}/links", s.handleNoteLinks)
		})
		r.Route("/jobs", func(r chi.Router) {
			r.Post("/", s.handleCreateJob)
			r.Get("/", s.handleListJobs)
			r.Get("/stats", s.handleQueueStats)
			r.Get("/pending-count", s.handlePendingCount)
			r.Post("/reembed-all", s.handleReembedAll)
			r.Get("/{id}", s.handleGetJob)
		})
		r.Route("/graph", func(r chi.Router) {
			r.Get("/explore/{id}", s.handleExplore)
			r.Get("/topology", s.handleTopology)
		})
	})

	return s
}

// Handler returns the router, mainly for httptest.
func (s *Server) Handler() http.Handler { return s.router }

// ListenAndServe blocks until ctx is cancelled, then shuts down gracefully.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	s.http = &http.Server{
		Addr:              addr,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.log.Info().Str("addr", addr).Msg("http server listening")
		errCh <- s.http.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return s.http.Shutdown(shutdownCtx)
}

func (s *Server) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		s.log.Info().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", ww.Status()).
			Dur("elapsed", time.Since(start)).
			Msg("request")
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.log.Error().Err(err).Msg("encode response")
	}
}

// writeError maps the domain error taxonomy onto HTTP status codes.
func (s *Server) writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, jobs.ErrNoteNotFound),
		errors.Is(err, jobs.ErrJobNotFound),
		errors.Is(err, store.ErrNotFound):
		status = http.StatusNotFound
	case errors.Is(err, jobs.ErrInvalidJobType),
		errors.Is(err, jobs.ErrInvalidTransition),
		errors.Is(err, store.ErrInvalidData),
		errors.Is(err, store.ErrSelfLink),
		errors.Is(err, errBadRequest):
		status = http.StatusBadRequest
	case errors.Is(err, store.ErrAlreadyExists):
		status = http.StatusConflict
	case errors.Is(err, matric.ErrClosed):
		status = http.StatusServiceUnavailable
	}
	s.writeJSON(w, status, map[string]string{"error": err.Error()})
}

// errBadRequest tags malformed client input (bad JSON, bad query params).
var errBadRequest = errors.New("bad request")

func badRequestf(format string, args ...any) error {
	return fmt.Errorf("%w: "+format, append([]any{errBadRequest}, args...)...)
}

func decodeJSON(r *http.Request, v any) error {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		return badRequestf("invalid JSON body: %v", err)
	}
	return nil
}
