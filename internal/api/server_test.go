package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dgallion1/docmux/internal/config"
	"github.com/dgallion1/docmux/internal/document"
	"github.com/dgallion1/docmux/internal/engine"
	"github.com/dgallion1/docmux/internal/fallback"
	"github.com/dgallion1/docmux/internal/pipeline"
	"github.com/dgallion1/docmux/internal/stats"
)

const testKey = "test-key"

func readWhole(_ context.Context, path string) (*document.RawResult, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return &document.RawResult{Blocks: []document.ContentBlock{{Text: string(data), Confidence: 100}}}, nil
}

func alwaysFails(context.Context, string) (*document.RawResult, error) {
	return nil, errors.New("broken engine")
}

func newTestServer(t *testing.T) (*Server, *pipeline.Pool) {
	t.Helper()
	log := slog.New(slog.NewTextHandler(io.Discard, nil))

	table, err := engine.NewTable(map[engine.Category][]engine.Descriptor{
		engine.Word: {
			{Name: "broken", Mode: engine.Parallel, SuccessRateHint: 0.9, Speed: engine.Fast, Invoke: alwaysFails},
			{Name: "reader", Mode: engine.Sequential, SuccessRateHint: 0.5, Speed: engine.Fast, Invoke: readWhole},
		},
	})
	require.NoError(t, err)

	pool := pipeline.NewPool(log, pipeline.WithWorkers(2), pipeline.WithMaxRetries(0))
	pool.Start(context.Background())
	t.Cleanup(pool.Stop)

	st := stats.NewEngines(time.Hour)
	ctrl := fallback.New(table, pool, log, fallback.WithStats(st), fallback.WithTimeouts(map[engine.Category]time.Duration{
		engine.Word: 5 * time.Second,
	}))

	cfg := config.Config{DocmuxAPIKey: testKey, MaxUploadBytes: 1024, UploadDir: t.TempDir()}
	return NewServer(ctrl, pool, table, st, log, cfg), pool
}

func uploadRequest(t *testing.T, filename, content string, fields map[string]string) *http.Request {
	t.Helper()
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	for k, v := range fields {
		require.NoError(t, mw.WriteField(k, v))
	}
	fw, err := mw.CreateFormFile("file", filename)
	require.NoError(t, err)
	_, err = fw.Write([]byte(content))
	require.NoError(t, err)
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, "/api/extract", &body)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	req.Header.Set("Authorization", "Bearer "+testKey)
	return req
}

func authed(method, target string) *http.Request {
	req := httptest.NewRequest(method, target, nil)
	req.Header.Set("Authorization", "Bearer "+testKey)
	return req
}

func TestHealth_NoAuth(t *testing.T) {
	srv, _ := newTestServer(t)
	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String())
}

func TestAuth_Rejects(t *testing.T) {
	srv, _ := newTestServer(t)

	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/engines", nil))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	req := httptest.NewRequest(http.MethodGet, "/api/engines", nil)
	req.Header.Set("Authorization", "Bearer wrong")
	rec = httptest.NewRecorder()
	srv.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Contains(t, rec.Body.String(), "invalid api key")
}

func TestExtract_FallsBackAndReturnsDocument(t *testing.T) {
	srv, _ := newTestServer(t)
	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, uploadRequest(t, "notes.txt", "hello docmux", nil))

	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "reader", rec.Header().Get("X-Docmux-Engine"))

	var doc document.CanonicalDocument
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &doc))
	assert.Equal(t, "notes.txt", doc.FileName)
	assert.Equal(t, "hello docmux", doc.Text)
	require.Len(t, doc.Blocks, 1)
}

func TestExtract_DetailAndJobLookup(t *testing.T) {
	srv, _ := newTestServer(t)
	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, uploadRequest(t, "notes.txt", "hello", map[string]string{"category": "word", "detail": "true"}))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var out fallback.Outcome
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	assert.Equal(t, fallback.StatusAccepted, out.Status)
	require.Len(t, out.Attempts, 2)
	assert.Equal(t, stats.Failed, out.Attempts[0].Result)
	assert.Equal(t, "broken engine", out.Attempts[0].Error)
	assert.Equal(t, stats.Accepted, out.Attempts[1].Result)

	rec = httptest.NewRecorder()
	srv.ServeHTTP(rec, authed(http.MethodGet, "/api/jobs/"+string(out.Attempts[1].JobID)))
	require.Equal(t, http.StatusOK, rec.Code)
	var snap pipeline.JobSnapshot
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &snap))
	assert.Equal(t, "reader", snap.Engine)
	assert.Equal(t, pipeline.StateSucceeded, snap.State)
	assert.Equal(t, 1, snap.Blocks)
}

func TestExtract_BadCategory(t *testing.T) {
	srv, _ := newTestServer(t)

	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, uploadRequest(t, "a.txt", "x", map[string]string{"category": "spaceship"}))
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	// Valid category the table does not cover.
	rec = httptest.NewRecorder()
	srv.ServeHTTP(rec, uploadRequest(t, "a.txt", "x", map[string]string{"category": "pdf"}))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "unknown document category")
}

func TestExtract_TooLarge(t *testing.T) {
	srv, _ := newTestServer(t)
	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, uploadRequest(t, "big.txt", string(bytes.Repeat([]byte("a"), 2048)), nil))
	assert.Equal(t, http.StatusRequestEntityTooLarge, rec.Code)
}

func TestExtract_MissingFile(t *testing.T) {
	srv, _ := newTestServer(t)
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	require.NoError(t, mw.WriteField("category", "word"))
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, "/api/extract", &body)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	req.Header.Set("Authorization", "Bearer "+testKey)
	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestExtract_ShutdownIsUnavailable(t *testing.T) {
	srv, pool := newTestServer(t)
	pool.Stop()

	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, uploadRequest(t, "notes.txt", "hello", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Contains(t, rec.Body.String(), "service shutting down")
}

func TestEngines_ListsTable(t *testing.T) {
	srv, _ := newTestServer(t)
	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, authed(http.MethodGet, "/api/engines?category=docx"))
	require.Equal(t, http.StatusOK, rec.Code)

	var resp struct {
		Categories []struct {
			Category       string  `json:"category"`
			TimeoutSeconds float64 `json:"timeout_seconds"`
			Engines        []struct {
				Name string `json:"name"`
				Mode string `json:"mode"`
			} `json:"engines"`
		} `json:"categories"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Len(t, resp.Categories, 1)
	c := resp.Categories[0]
	assert.Equal(t, "word", c.Category)
	assert.Equal(t, 5.0, c.TimeoutSeconds)
	require.Len(t, c.Engines, 2)
	assert.Equal(t, "broken", c.Engines[0].Name)
	assert.Equal(t, "sequential", c.Engines[1].Mode)
}

func TestJob_NotFound(t *testing.T) {
	srv, _ := newTestServer(t)
	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, authed(http.MethodGet, "/api/jobs/nope"))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestEngineStats(t *testing.T) {
	srv, _ := newTestServer(t)
	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, uploadRequest(t, "notes.txt", "hello", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	rec = httptest.NewRecorder()
	srv.ServeHTTP(rec, authed(http.MethodGet, "/api/stats/engines"))
	require.Equal(t, http.StatusOK, rec.Code)

	var resp struct {
		Engines map[string]stats.EngineSnapshot `json:"engines"`
		Workers int                             `json:"workers"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, 2, resp.Workers)
	assert.Equal(t, 1, resp.Engines["reader"].Outcomes[stats.Accepted])
	assert.Equal(t, 1, resp.Engines["broken"].Outcomes[stats.Failed])
}

func TestSanitizeFilename(t *testing.T) {
	assert.Equal(t, "passwd", sanitizeFilename("../../etc/passwd"))
	assert.Equal(t, "a_b.txt", sanitizeFilename("a..b.txt"))
	assert.Equal(t, "unnamed", sanitizeFilename(""))
}
