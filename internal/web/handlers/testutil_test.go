package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"github.com/kozaktomas/photo-batcher/internal/config"
	"github.com/kozaktomas/photo-batcher/internal/store"
)

// newTestStore opens a throwaway SQLite database.
func newTestStore(t *testing.T) *store.Store {
	t.Helper()
	cfg := &config.DatabaseConfig{Path: filepath.Join(t.TempDir(), "test.db")}
	st, err := store.Open(cfg, zerolog.Nop())
	if err != nil {
		t.Fatalf("could not open test database: %v", err)
	}
	t.Cleanup(func() { _ = st.Close() })
	return st
}

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	return &config.Config{
		Upload: config.UploadConfig{
			Dir:           t.TempDir(),
			MaxUploadSize: 32 << 20,
		},
		Drive: config.DriveConfig{FolderNameFormat: "FirstName_LastName"},
	}
}

// requestWithChiParams attaches chi URL parameters to a request.
func requestWithChiParams(r *http.Request, params map[string]string) *http.Request {
	rctx := chi.NewRouteContext()
	for key, value := range params {
		rctx.URLParams.Add(key, value)
	}
	return r.WithContext(context.WithValue(r.Context(), chi.RouteCtxKey, rctx))
}

func assertStatusCode(t *testing.T, rec *httptest.ResponseRecorder, want int) {
	t.Helper()
	if rec.Code != want {
		t.Errorf("expected status %d, got %d (%s)", want, rec.Code, rec.Body.String())
	}
}

func parseJSONResponse(t *testing.T, rec *httptest.ResponseRecorder, dest any) {
	t.Helper()
	if err := json.Unmarshal(rec.Body.Bytes(), dest); err != nil {
		t.Fatalf("could not parse response %q: %v", rec.Body.String(), err)
	}
}
