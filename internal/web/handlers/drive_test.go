package handlers

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/rs/zerolog"

	"github.com/kozaktomas/photo-batcher/internal/config"
	"github.com/kozaktomas/photo-batcher/internal/drive"
)

func newDriveHandler(t *testing.T) *DriveHandler {
	t.Helper()
	st := newTestStore(t)
	cfg := &config.DriveConfig{
		ClientID:    "client",
		RedirectURL: "http://localhost/callback",
	}
	return NewDriveHandler(drive.NewManager(cfg, st, zerolog.Nop()), zerolog.Nop())
}

func TestDriveStatusDisconnected(t *testing.T) {
	handler := newDriveHandler(t)

	req := httptest.NewRequest("GET", "/api/v1/drive/status", nil)
	rec := httptest.NewRecorder()
	handler.Status(rec, req)

	assertStatusCode(t, rec, http.StatusOK)

	var status struct {
		Connected bool `json:"connected"`
	}
	parseJSONResponse(t, rec, &status)
	if status.Connected {
		t.Error("expected disconnected status")
	}
}

func TestDriveAuthURL(t *testing.T) {
	handler := newDriveHandler(t)

	req := httptest.NewRequest("GET", "/api/v1/drive/auth-url", nil)
	rec := httptest.NewRecorder()
	handler.AuthURL(rec, req)

	assertStatusCode(t, rec, http.StatusOK)

	var resp struct {
		URL   string `json:"url"`
		State string `json:"state"`
	}
	parseJSONResponse(t, rec, &resp)
	if !strings.Contains(resp.URL, "client_id=client") {
		t.Errorf("expected client id in auth url, got %q", resp.URL)
	}
	if resp.State == "" {
		t.Error("expected a state value")
	}
	if !strings.Contains(resp.URL, "state="+resp.State) {
		t.Errorf("expected state in auth url, got %q", resp.URL)
	}
}

func TestDriveConnectRejectsEmptyCode(t *testing.T) {
	handler := newDriveHandler(t)

	req := httptest.NewRequest("POST", "/api/v1/drive/connect", strings.NewReader(`{"code": ""}`))
	rec := httptest.NewRecorder()
	handler.Connect(rec, req)

	assertStatusCode(t, rec, http.StatusBadRequest)
}
