package httpserver

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"git.home.luguber.info/inful/ordserve/internal/cache"
	"git.home.luguber.info/inful/ordserve/internal/document"
	"git.home.luguber.info/inful/ordserve/internal/history"
	"git.home.luguber.info/inful/ordserve/internal/ord"
	"git.home.luguber.info/inful/ordserve/internal/state"
	"git.home.luguber.info/inful/ordserve/internal/status"
)

func newTestServer(t *testing.T, st *state.Manager) *Server {
	t.Helper()
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "orders.json"),
		[]byte(`{"openResourceDiscovery": "1.9"}`), 0o644))

	c := cache.New()
	loader := &cache.Loader{
		Cache: c,
		Processor: &ord.Processor{
			BaseURL:    "https://ord.example.com",
			Strategies: []ord.AccessStrategy{{Type: ord.StrategyOpen}},
		},
	}
	svc := document.NewService(&document.LocalSource{Dir: dir}, c, loader, nil)

	store, err := history.NewStore(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	opts := Options{
		Host:        "127.0.0.1",
		Port:        0,
		Service:     svc,
		GateTimeout: 100 * time.Millisecond,
		Status:      &status.Provider{Mode: "local", StartedAt: time.Now(), State: st, Cache: c},
		History:     store,
		Version:     "test",
	}
	if st != nil {
		opts.Waiter = st
	}
	return New(opts)
}

func TestServesWellKnownAndDocuments(t *testing.T) {
	srv := newTestServer(t, nil)

	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/.well-known/open-resource-discovery", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var cfg ord.ConfigurationPayload
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &cfg))
	require.Len(t, cfg.OpenResourceDiscovery.Documents, 1)
	assert.Equal(t, "/ord/v1/documents/orders", cfg.OpenResourceDiscovery.Documents[0].URL)

	rec = httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/ord/v1/documents/orders", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "describedSystemInstance")
}

func TestServesRawFiles(t *testing.T) {
	srv := newTestServer(t, nil)

	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/ord/v1/orders.json", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "openResourceDiscovery")
}

func TestStatusAndHealthEndpoints(t *testing.T) {
	srv := newTestServer(t, state.NewManager(nil))

	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/api/v1/status", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"phase":"idle"`)

	rec = httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/api/v1/updates", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"updates": []}`, rec.Body.String())

	rec = httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/healthz", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"ok"`)

	rec = httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/status", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Header().Get("Content-Type"), "text/html")
}

func TestGateReturns503WhileUpdating(t *testing.T) {
	st := state.NewManager(nil)
	srv := newTestServer(t, st)

	st.StartUpdate("webhook")

	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/ord/v1/documents/orders", nil))
	require.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Contains(t, rec.Body.String(), "TIMEOUT_ERROR")

	// Ungated endpoints keep answering.
	rec = httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/api/v1/status", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestUnknownPathIs404(t *testing.T) {
	srv := newTestServer(t, nil)

	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/nope", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}
