package httpapi

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"trendmaker/internal/adapters/storage/localfs"
	"trendmaker/internal/archive"
	"trendmaker/internal/pkg/errors"
	"trendmaker/internal/pkg/logger"
	"trendmaker/internal/pkg/middleware"
	"trendmaker/internal/ports"
	"trendmaker/internal/render"
)

type fakeRenders struct {
	mu        sync.Mutex
	submitted []render.RenderRequest
	canceled  int
	err       error
	snap      render.Snapshot
}

func (f *fakeRenders) Submit(_ context.Context, req render.RenderRequest) (render.Job, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.submitted = append(f.submitted, req)
	if f.err != nil {
		f.snap = render.Snapshot{Job: render.Job{Phase: render.PhaseIdle}, Status: "Error: " + errors.UserMessage(f.err)}
		return render.Job{}, f.err
	}
	job := render.Job{ID: "abc123", Phase: render.PhaseQueued}
	f.snap = render.Snapshot{Job: job, Status: "Render queued (Job ID: abc123)", Polling: true, Generation: 1}
	return job, nil
}

func (f *fakeRenders) Cancel() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.canceled++
	f.snap.Polling = false
	f.snap.Job.Phase = render.PhaseIdle
	f.snap.Status = "Canceled"
}

func (f *fakeRenders) Snapshot() render.Snapshot {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.snap
}

type memJournal struct {
	entries []ports.JournalEntry
	pingErr error
}

func (m *memJournal) Driver() string { return "mem" }
func (m *memJournal) Append(_ context.Context, e ports.JournalEntry) error {
	m.entries = append(m.entries, e)
	return nil
}
func (m *memJournal) Recent(_ context.Context, limit int) ([]ports.JournalEntry, error) {
	out := []ports.JournalEntry{}
	for i := len(m.entries) - 1; i >= 0 && len(out) < limit; i-- {
		out = append(out, m.entries[i])
	}
	return out, nil
}
func (m *memJournal) Ping(context.Context) error { return m.pingErr }
func (m *memJournal) Close() error               { return nil }

func newServer(t *testing.T, d Deps) *httptest.Server {
	t.Helper()
	if d.Renders == nil {
		d.Renders = &fakeRenders{}
	}
	d.Log = logger.Discard()
	srv := httptest.NewServer(NewRouter(d))
	t.Cleanup(srv.Close)
	return srv
}

func do(t *testing.T, method, url, body string, header ...string) (*http.Response, map[string]any) {
	t.Helper()
	var rd io.Reader
	if body != "" {
		rd = strings.NewReader(body)
	}
	req, err := http.NewRequest(method, url, rd)
	require.NoError(t, err)
	for i := 0; i+1 < len(header); i += 2 {
		req.Header.Set(header[i], header[i+1])
	}
	res, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer res.Body.Close()

	var out map[string]any
	raw, err := io.ReadAll(res.Body)
	require.NoError(t, err)
	if len(raw) > 0 && strings.HasPrefix(res.Header.Get("Content-Type"), "application/json") {
		require.NoError(t, json.Unmarshal(raw, &out))
	}
	return res, out
}

func errorCode(body map[string]any) string {
	e, _ := body["error"].(map[string]any)
	code, _ := e["code"].(string)
	return code
}

func TestHealth(t *testing.T) {
	srv := newServer(t, Deps{Version: "1.2.3"})

	res, body := do(t, http.MethodGet, srv.URL+"/health", "")
	assert.Equal(t, http.StatusOK, res.StatusCode)
	assert.Equal(t, "ok", body["status"])
	assert.Equal(t, "1.2.3", body["version"])
	assert.NotEmpty(t, res.Header.Get("X-Request-ID"))
	assert.NotContains(t, body, "checks")
}

func TestHealth_Deep(t *testing.T) {
	t.Run("disabled backends", func(t *testing.T) {
		srv := newServer(t, Deps{})
		_, body := do(t, http.MethodGet, srv.URL+"/health?deep=true", "")

		assert.Equal(t, "ok", body["status"])
		checks := body["checks"].(map[string]any)
		assert.Equal(t, "disabled", checks["journal"].(map[string]any)["status"])
		assert.Equal(t, "disabled", checks["storage"].(map[string]any)["status"])
	})

	t.Run("failing journal degrades", func(t *testing.T) {
		srv := newServer(t, Deps{Journal: &memJournal{pingErr: errors.Unavailable("journal")}})
		res, body := do(t, http.MethodGet, srv.URL+"/health?deep=true", "")

		assert.Equal(t, http.StatusOK, res.StatusCode)
		assert.Equal(t, "degraded", body["status"])
		journal := body["checks"].(map[string]any)["journal"].(map[string]any)
		assert.Equal(t, "error", journal["status"])
		assert.Equal(t, "mem", journal["driver"])
	})
}

func TestPostRender(t *testing.T) {
	tests := []struct {
		name     string
		body     string
		duration int
	}{
		{"string duration", `{"title":"Hello","duration":"7"}`, 7},
		{"number duration", `{"title":"Hello","duration":12}`, 12},
		{"missing duration", `{"title":"Hello"}`, 5},
		{"garbage duration", `{"title":"Hello","duration":"abc"}`, 5},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fr := &fakeRenders{}
			srv := newServer(t, Deps{Renders: fr})

			res, body := do(t, http.MethodPost, srv.URL+"/renders", tt.body)
			require.Equal(t, http.StatusAccepted, res.StatusCode)
			assert.Equal(t, "Render queued (Job ID: abc123)", body["status"])
			assert.Equal(t, true, body["polling"])

			require.Len(t, fr.submitted, 1)
			assert.Equal(t, "Hello", fr.submitted[0].Title)
			assert.Equal(t, tt.duration, fr.submitted[0].DurationSeconds)
			assert.Equal(t, "mp4", fr.submitted[0].Format)
		})
	}
}

func TestPostRender_Errors(t *testing.T) {
	t.Run("rejected submission", func(t *testing.T) {
		fr := &fakeRenders{err: errors.Submission("Title is required")}
		srv := newServer(t, Deps{Renders: fr})

		res, body := do(t, http.MethodPost, srv.URL+"/renders", `{"title":""}`)
		assert.Equal(t, http.StatusBadGateway, res.StatusCode)
		assert.Equal(t, "SUBMISSION_ERROR", errorCode(body))
		assert.Equal(t, "Title is required", body["error"].(map[string]any)["message"])
	})

	t.Run("invalid body", func(t *testing.T) {
		fr := &fakeRenders{}
		srv := newServer(t, Deps{Renders: fr})

		for _, b := range []string{`{`, `{"title":"x","extra":1}`, `{"title":"x"}{}`} {
			res, body := do(t, http.MethodPost, srv.URL+"/renders", b)
			assert.Equal(t, http.StatusBadRequest, res.StatusCode, b)
			assert.Equal(t, "VALIDATION_ERROR", errorCode(body), b)
		}
		assert.Empty(t, fr.submitted)
	})
}

func TestCurrentAndCancel(t *testing.T) {
	fr := &fakeRenders{}
	srv := newServer(t, Deps{Renders: fr})

	do(t, http.MethodPost, srv.URL+"/renders", `{"title":"Hello"}`)

	_, body := do(t, http.MethodGet, srv.URL+"/renders/current", "")
	assert.Equal(t, "abc123", body["job"].(map[string]any)["id"])
	assert.Equal(t, "queued", body["job"].(map[string]any)["phase"])

	res, body := do(t, http.MethodDelete, srv.URL+"/renders/current", "")
	assert.Equal(t, http.StatusOK, res.StatusCode)
	assert.Equal(t, "Canceled", body["status"])
	assert.Equal(t, false, body["polling"])
	assert.Equal(t, 1, fr.canceled)
}

func TestHistory(t *testing.T) {
	t.Run("journal disabled", func(t *testing.T) {
		srv := newServer(t, Deps{})
		res, body := do(t, http.MethodGet, srv.URL+"/renders/history", "")

		assert.Equal(t, http.StatusOK, res.StatusCode)
		assert.Equal(t, "none", body["driver"])
		assert.Empty(t, body["entries"])
	})

	t.Run("newest first with limit", func(t *testing.T) {
		j := &memJournal{}
		for _, id := range []string{"a", "b", "c"} {
			require.NoError(t, j.Append(context.Background(), ports.JournalEntry{JobID: id, Phase: "queued"}))
		}
		srv := newServer(t, Deps{Journal: j})

		_, body := do(t, http.MethodGet, srv.URL+"/renders/history?limit=2", "")
		entries := body["entries"].([]any)
		require.Len(t, entries, 2)
		assert.Equal(t, "c", entries[0].(map[string]any)["job_id"])
		assert.Equal(t, "b", entries[1].(map[string]any)["job_id"])
	})

	t.Run("bad limit", func(t *testing.T) {
		srv := newServer(t, Deps{Journal: &memJournal{}})
		res, body := do(t, http.MethodGet, srv.URL+"/renders/history?limit=-4", "")

		assert.Equal(t, http.StatusBadRequest, res.StatusCode)
		assert.Equal(t, "VALIDATION_ERROR", errorCode(body))
	})
}

func TestArchiveRoutes(t *testing.T) {
	video := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "video/mp4")
		_, _ = w.Write([]byte("fake-mp4"))
	}))
	t.Cleanup(video.Close)

	a := archive.New(archive.Deps{Storage: localfs.New(t.TempDir()), Prefix: "renders", Log: logger.Discard()})
	t.Cleanup(func() { _ = a.Close(context.Background()) })
	_, err := a.Archive(context.Background(), "abc123", video.URL+"/files/abc123.mp4")
	require.NoError(t, err)

	srv := newServer(t, Deps{Archive: a})

	_, body := do(t, http.MethodGet, srv.URL+"/archive", "")
	assert.Equal(t, "localfs", body["provider"])
	assert.Len(t, body["entries"], 1)

	_, body = do(t, http.MethodGet, srv.URL+"/archive/abc123", "")
	assert.Equal(t, "renders/abc123.mp4", body["entry"].(map[string]any)["object_key"])

	_, body = do(t, http.MethodGet, srv.URL+"/archive/abc123/url", "")
	assert.Equal(t, "/archive/abc123/content", body["url"])

	res, err := http.Get(srv.URL + "/archive/abc123/content")
	require.NoError(t, err)
	raw, _ := io.ReadAll(res.Body)
	res.Body.Close()
	assert.Equal(t, http.StatusOK, res.StatusCode)
	assert.Equal(t, "fake-mp4", string(raw))

	res, _ = do(t, http.MethodDelete, srv.URL+"/archive/abc123", "")
	assert.Equal(t, http.StatusNoContent, res.StatusCode)

	res, body = do(t, http.MethodGet, srv.URL+"/archive/abc123", "")
	assert.Equal(t, http.StatusNotFound, res.StatusCode)
	assert.Equal(t, "NOT_FOUND", errorCode(body))
}

func TestArchiveRoutes_Disabled(t *testing.T) {
	srv := newServer(t, Deps{})

	res, body := do(t, http.MethodGet, srv.URL+"/archive/abc123", "")
	assert.Equal(t, http.StatusServiceUnavailable, res.StatusCode)
	assert.Equal(t, "UNAVAILABLE", errorCode(body))
}

func TestAuth(t *testing.T) {
	srv := newServer(t, Deps{AuthSecret: "s3cret"})

	res, _ := do(t, http.MethodGet, srv.URL+"/health", "")
	assert.Equal(t, http.StatusOK, res.StatusCode, "health stays open")

	res, body := do(t, http.MethodGet, srv.URL+"/renders/current", "")
	assert.Equal(t, http.StatusUnauthorized, res.StatusCode)
	assert.Equal(t, "UNAUTHORIZED", errorCode(body))

	token, err := middleware.IssueToken("s3cret", "ui", time.Minute)
	require.NoError(t, err)
	res, _ = do(t, http.MethodGet, srv.URL+"/renders/current", "", "Authorization", "Bearer "+token)
	assert.Equal(t, http.StatusOK, res.StatusCode)
}

func TestCORS(t *testing.T) {
	srv := newServer(t, Deps{AllowedOrigins: []string{"http://localhost:19006"}})

	res, _ := do(t, http.MethodOptions, srv.URL+"/renders", "",
		"Origin", "http://localhost:19006",
		"Access-Control-Request-Method", http.MethodPost,
	)
	assert.Equal(t, "http://localhost:19006", res.Header.Get("Access-Control-Allow-Origin"))

	res, _ = do(t, http.MethodGet, srv.URL+"/health", "", "Origin", "http://evil.example")
	assert.Empty(t, res.Header.Get("Access-Control-Allow-Origin"))
}
