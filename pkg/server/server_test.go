package server

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"math"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/orneryd/matric/pkg/jobs"
	"github.com/orneryd/matric/pkg/linking"
	"github.com/orneryd/matric/pkg/matric"
	"github.com/orneryd/matric/pkg/store"
)

type fixtureEmbedder struct {
	vectors map[string][]float32
}

func (f *fixtureEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	for title, vec := range f.vectors {
		if strings.Contains(text, title) {
			out := make([]float32, len(vec))
			copy(out, vec)
			return out, nil
		}
	}
	return nil, fmt.Errorf("no fixture vector for %q", text)
}

func (f *fixtureEmbedder) Dimensions() int { return 2 }
func (f *fixtureEmbedder) Model() string   { return "fixture" }

func angleVec(degrees float64) []float32 {
	rad := degrees * math.Pi / 180
	return []float32{float32(math.Cos(rad)), float32(math.Sin(rad))}
}

func newTestServer(t *testing.T) (*Server, *matric.DB) {
	t.Helper()
	config := matric.DefaultConfig()
	config.DisableBackgroundWorkers = true
	config.Embedder = &fixtureEmbedder{vectors: map[string][]float32{
		"Transformer architectures": angleVec(0),
		"ML accelerator design":     angleVec(45),
		"FPGA routing":              angleVec(90),
	}}
	db, err := matric.Open("", config)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return New(db, zerolog.Nop()), db
}

func doJSON(t *testing.T, s *Server, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(data)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	return rec
}

func decodeBody[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v), "body: %s", rec.Body.String())
	return v
}

// createNote posts a note and returns its decoded record.
func createNote(t *testing.T, s *Server, title, content string) *store.Note {
	t.Helper()
	rec := doJSON(t, s, http.MethodPost, "/api/notes", map[string]any{
		"title":   title,
		"content": content,
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	return decodeBody[*store.Note](t, rec)
}

func TestServer_Health(t *testing.T) {
	s, _ := newTestServer(t)
	rec := doJSON(t, s, http.MethodGet, "/health", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestServer_NoteLifecycle(t *testing.T) {
	s, db := newTestServer(t)

	a := createNote(t, s, "Transformer architectures", "attention")
	b := createNote(t, s, "ML accelerator design", "tensor cores")
	createNote(t, s, "FPGA routing", "placement")
	require.NoError(t, db.DrainJobs(context.Background()))

	t.Run("get", func(t *testing.T) {
		rec := doJSON(t, s, http.MethodGet, "/api/notes/"+string(a.ID), nil)
		require.Equal(t, http.StatusOK, rec.Code)
		got := decodeBody[*store.Note](t, rec)
		assert.Equal(t, "Transformer architectures", got.Title)
	})

	t.Run("get missing", func(t *testing.T) {
		rec := doJSON(t, s, http.MethodGet, "/api/notes/ghost", nil)
		assert.Equal(t, http.StatusNotFound, rec.Code)
	})

	t.Run("links", func(t *testing.T) {
		rec := doJSON(t, s, http.MethodGet, "/api/notes/"+string(a.ID)+"/links", nil)
		require.Equal(t, http.StatusOK, rec.Code)
		links := decodeBody[[]linking.NoteLink](t, rec)
		require.Len(t, links, 1)
		assert.Equal(t, b.ID, links[0].LinkedNoteID)
	})

	t.Run("links of missing note", func(t *testing.T) {
		rec := doJSON(t, s, http.MethodGet, "/api/notes/ghost/links", nil)
		assert.Equal(t, http.StatusNotFound, rec.Code)
	})

	t.Run("delete cascades", func(t *testing.T) {
		rec := doJSON(t, s, http.MethodDelete, "/api/notes/"+string(b.ID), nil)
		require.Equal(t, http.StatusNoContent, rec.Code)

		rec = doJSON(t, s, http.MethodGet, "/api/notes/"+string(b.ID), nil)
		assert.Equal(t, http.StatusNotFound, rec.Code)

		rec = doJSON(t, s, http.MethodGet, "/api/notes/"+string(a.ID)+"/links", nil)
		require.Equal(t, http.StatusOK, rec.Code)
		links := decodeBody[[]linking.NoteLink](t, rec)
		assert.Empty(t, links)
	})
}

func TestServer_Jobs(t *testing.T) {
	s, db := newTestServer(t)
	a := createNote(t, s, "Transformer architectures", "attention")
	require.NoError(t, db.DrainJobs(context.Background()))

	t.Run("create", func(t *testing.T) {
		rec := doJSON(t, s, http.MethodPost, "/api/jobs", map[string]any{
			"note_id":  a.ID,
			"job_type": "ai_revision",
		})
		require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
		job := decodeBody[*jobs.Job](t, rec)
		assert.Equal(t, jobs.TypeAIRevision, job.Type)
		assert.Equal(t, 8, job.Priority)

		got := doJSON(t, s, http.MethodGet, "/api/jobs/"+job.ID.String(), nil)
		require.Equal(t, http.StatusOK, got.Code)
	})

	t.Run("bogus type is 400", func(t *testing.T) {
		rec := doJSON(t, s, http.MethodPost, "/api/jobs", map[string]any{
			"note_id":  a.ID,
			"job_type": "bogus",
		})
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("missing note is 404", func(t *testing.T) {
		rec := doJSON(t, s, http.MethodPost, "/api/jobs", map[string]any{
			"note_id":  "deleted-uuid",
			"job_type": "embedding",
		})
		assert.Equal(t, http.StatusNotFound, rec.Code)
	})

	t.Run("get with bad id is 400", func(t *testing.T) {
		rec := doJSON(t, s, http.MethodGet, "/api/jobs/not-a-uuid", nil)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("get unknown job is 404", func(t *testing.T) {
		rec := doJSON(t, s, http.MethodGet, "/api/jobs/00000000-0000-0000-0000-000000000000", nil)
		assert.Equal(t, http.StatusNotFound, rec.Code)
	})

	t.Run("list filters", func(t *testing.T) {
		rec := doJSON(t, s, http.MethodGet, "/api/jobs?status=completed&note_id="+string(a.ID), nil)
		require.Equal(t, http.StatusOK, rec.Code)
		list := decodeBody[listJobsResponse](t, rec)
		assert.Equal(t, 2, list.Total, "embedding and linking both completed")

		rec = doJSON(t, s, http.MethodGet, "/api/jobs?status=nope", nil)
		assert.Equal(t, http.StatusBadRequest, rec.Code)

		rec = doJSON(t, s, http.MethodGet, "/api/jobs?limit=x", nil)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("stats and pending count", func(t *testing.T) {
		rec := doJSON(t, s, http.MethodGet, "/api/jobs/stats", nil)
		require.Equal(t, http.StatusOK, rec.Code)
		stats := decodeBody[jobs.Stats](t, rec)
		assert.GreaterOrEqual(t, stats.Total, 2)

		rec = doJSON(t, s, http.MethodGet, "/api/jobs/pending-count", nil)
		require.Equal(t, http.StatusOK, rec.Code)
	})

	t.Run("reembed all", func(t *testing.T) {
		rec := doJSON(t, s, http.MethodPost, "/api/jobs/reembed-all?force=true", nil)
		require.Equal(t, http.StatusAccepted, rec.Code)
		resp := decodeBody[reembedAllResponse](t, rec)
		assert.Len(t, resp.Queued, 1)
	})
}

func TestServer_Reprocess(t *testing.T) {
	s, db := newTestServer(t)
	a := createNote(t, s, "Transformer architectures", "attention")
	require.NoError(t, db.DrainJobs(context.Background()))

	t.Run("empty body means all operations", func(t *testing.T) {
		rec := doJSON(t, s, http.MethodPost, "/api/notes/"+string(a.ID)+"/reprocess", nil)
		require.Equal(t, http.StatusAccepted, rec.Code, rec.Body.String())
		resp := decodeBody[reprocessResponse](t, rec)
		assert.Len(t, resp.JobsCreated, 6)
	})

	t.Run("explicit operations", func(t *testing.T) {
		rec := doJSON(t, s, http.MethodPost, "/api/notes/"+string(a.ID)+"/reprocess", map[string]any{
			"operations": []string{"embedding"},
		})
		require.Equal(t, http.StatusAccepted, rec.Code)
		resp := decodeBody[reprocessResponse](t, rec)
		require.Len(t, resp.JobsCreated, 1)
		assert.Equal(t, jobs.TypeEmbedding, resp.JobsCreated[0].Type)
	})

	t.Run("bogus operation is 400", func(t *testing.T) {
		rec := doJSON(t, s, http.MethodPost, "/api/notes/"+string(a.ID)+"/reprocess", map[string]any{
			"operations": []string{"bogus"},
		})
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("missing note is 404", func(t *testing.T) {
		rec := doJSON(t, s, http.MethodPost, "/api/notes/ghost/reprocess", nil)
		assert.Equal(t, http.StatusNotFound, rec.Code)
	})
}

func TestServer_Graph(t *testing.T) {
	s, db := newTestServer(t)
	a := createNote(t, s, "Transformer architectures", "attention")
	createNote(t, s, "ML accelerator design", "tensor cores")
	createNote(t, s, "FPGA routing", "placement")
	require.NoError(t, db.DrainJobs(context.Background()))

	t.Run("explore depth bounds", func(t *testing.T) {
		rec := doJSON(t, s, http.MethodGet, "/api/graph/explore/"+string(a.ID)+"?depth=1", nil)
		require.Equal(t, http.StatusOK, rec.Code)
		graph := decodeBody[linking.Exploration](t, rec)
		assert.Len(t, graph.Nodes, 2)

		rec = doJSON(t, s, http.MethodGet, "/api/graph/explore/"+string(a.ID)+"?depth=2", nil)
		require.Equal(t, http.StatusOK, rec.Code)
		graph = decodeBody[linking.Exploration](t, rec)
		assert.Len(t, graph.Nodes, 3)
	})

	t.Run("explore missing note", func(t *testing.T) {
		rec := doJSON(t, s, http.MethodGet, "/api/graph/explore/ghost", nil)
		assert.Equal(t, http.StatusNotFound, rec.Code)
	})

	t.Run("explore bad depth", func(t *testing.T) {
		rec := doJSON(t, s, http.MethodGet, "/api/graph/explore/"+string(a.ID)+"?depth=x", nil)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("topology", func(t *testing.T) {
		rec := doJSON(t, s, http.MethodGet, "/api/graph/topology", nil)
		require.Equal(t, http.StatusOK, rec.Code)
		snap := decodeBody[linking.Snapshot](t, rec)
		assert.Equal(t, 3, snap.TotalNotes)
		assert.Equal(t, 2, snap.TotalLinks)
		assert.Equal(t, "hnsw_heuristic", snap.LinkingStrategy)
	})
}
