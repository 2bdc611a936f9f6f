package server

import (
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/arbor"

	"github.com/ternarybob/reclaim/internal/app"
	"github.com/ternarybob/reclaim/internal/common"
)

func newTestServer(t *testing.T) (*Server, *common.Config) {
	t.Helper()
	cfg := common.NewDefaultConfig()
	cfg.Storage.Badger.Path = t.TempDir()
	cfg.Assets.UploadDir = t.TempDir()

	application, err := app.New(cfg, arbor.NewLogger())
	require.NoError(t, err)
	t.Cleanup(func() { application.Close() })

	return New(application), cfg
}

func serve(s *Server, method, target, body string) *httptest.ResponseRecorder {
	var r *http.Request
	if body == "" {
		r = httptest.NewRequest(method, target, nil)
	} else {
		r = httptest.NewRequest(method, target, strings.NewReader(body))
	}
	w := httptest.NewRecorder()
	s.Handler().ServeHTTP(w, r)
	return w
}

func TestRoutes(t *testing.T) {
	s, _ := newTestServer(t)

	cases := []struct {
		method string
		target string
		body   string
		want   int
	}{
		{http.MethodGet, "/health", "", http.StatusOK},
		{http.MethodGet, "/api/version", "", http.StatusOK},
		{http.MethodGet, "/api/references/status", "", http.StatusOK},
		{http.MethodGet, "/api/duplicates/status", "", http.StatusOK},
		{http.MethodGet, "/api/whitelist", "", http.StatusOK},
		{http.MethodPut, "/api/whitelist", "", http.StatusMethodNotAllowed},
		{http.MethodPost, "/api/whitelist", `{"url_pattern":"https://cdn.example.com/","match_mode":"prefix"}`, http.StatusCreated},
		{http.MethodGet, "/api/batch/status", "", http.StatusNotFound},
		{http.MethodPost, "/api/batch/tasks", `{"asset_ids":[]}`, http.StatusBadRequest},
		{http.MethodGet, "/api/batch/settings", "", http.StatusOK},
		{http.MethodGet, "/api/cleanup/logs/stats", "", http.StatusOK},
		{http.MethodDelete, "/api/cleanup/logs", "", http.StatusOK},
		{http.MethodGet, "/api/scheduler/jobs", "", http.StatusOK},
		{http.MethodPost, "/api/scheduler/jobs/missing", "", http.StatusNotFound},
		{http.MethodGet, "/api/unknown", "", http.StatusNotFound},
	}
	for _, tc := range cases {
		t.Run(tc.method+" "+tc.target, func(t *testing.T) {
			w := serve(s, tc.method, tc.target, tc.body)
			assert.Equal(t, tc.want, w.Code, w.Body.String())
		})
	}
}

func TestCORSPreflight(t *testing.T) {
	s, _ := newTestServer(t)

	w := serve(s, http.MethodOptions, "/api/whitelist", "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "*", w.Header().Get("Access-Control-Allow-Origin"))
}

func TestUploadsAreServed(t *testing.T) {
	s, cfg := newTestServer(t)
	require.NoError(t, os.MkdirAll(filepath.Join(cfg.Assets.UploadDir, "2024"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(cfg.Assets.UploadDir, "2024", "a.txt"), []byte("hello"), 0o644))

	w := serve(s, http.MethodGet, "/upload/2024/a.txt", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "hello", w.Body.String())
}

func TestRequestIDIsAssignedOrKept(t *testing.T) {
	s, _ := newTestServer(t)

	w := serve(s, http.MethodGet, "/health", "")
	assert.Len(t, w.Header().Get("X-Request-ID"), 8)

	r := httptest.NewRequest(http.MethodGet, "/api/version", nil)
	r.Header.Set("X-Request-ID", "caller-1")
	w = httptest.NewRecorder()
	s.Handler().ServeHTTP(w, r)
	assert.Equal(t, "caller-1", w.Header().Get("X-Request-ID"))
	assert.Contains(t, w.Body.String(), `"name":"reclaim"`)
}

func TestHealthListsEveryScan(t *testing.T) {
	s, _ := newTestServer(t)

	w := serve(s, http.MethodGet, "/health", "")
	require.Equal(t, http.StatusOK, w.Code)
	for _, name := range []string{`"reference"`, `"duplicate"`, `"status":"ok"`} {
		assert.Contains(t, w.Body.String(), name)
	}
}
