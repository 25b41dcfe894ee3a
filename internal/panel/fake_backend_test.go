package panel

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/chxlky/trello-webhook-panel/internal/models"
	"github.com/stretchr/testify/require"
)

// fakeServer stands in for the panel backend. register decides the answer per board id; the
// default answers {"id":"wh-<board>"}.
type fakeServer struct {
	mu        sync.Mutex
	settings  []models.WebhookSetting
	nextID    uint
	requests  []models.WebhookRegistration
	register  func(w http.ResponseWriter, req models.WebhookRegistration)
	failSaves bool
}

func (f *fakeServer) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()

	switch {
	case r.Method == http.MethodPost && r.URL.Path == "/api/login":
		http.SetCookie(w, &http.Cookie{Name: "trello_panel_session", Value: "sess-1", Path: "/"})
		writeJSON(w, http.StatusOK, map[string]string{"message": "Login successful", "email": "ann@example.com"})

	case r.Method == http.MethodPost && r.URL.Path == "/api/trello/webhooks":
		var req models.WebhookRegistration
		_ = json.NewDecoder(r.Body).Decode(&req)
		f.requests = append(f.requests, req)
		if f.register != nil {
			f.register(w, req)
			return
		}
		writeJSON(w, http.StatusCreated, map[string]string{"id": "wh-" + req.IDModel})

	case r.Method == http.MethodPost && r.URL.Path == "/api/webhook-settings":
		if f.failSaves {
			writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "database is locked"})
			return
		}
		var s models.WebhookSetting
		_ = json.NewDecoder(r.Body).Decode(&s)
		f.nextID++
		s.ID = f.nextID
		f.settings = append(f.settings, s)
		writeJSON(w, http.StatusCreated, map[string]any{"message": "Webhook setting saved", "setting": s})

	case r.Method == http.MethodGet && r.URL.Path == "/api/webhook-settings":
		writeJSON(w, http.StatusOK, append([]models.WebhookSetting{}, f.settings...))

	case r.Method == http.MethodDelete && strings.HasPrefix(r.URL.Path, "/api/webhook-settings/"):
		key := strings.TrimPrefix(r.URL.Path, "/api/webhook-settings/")
		kept := f.settings[:0:0]
		for _, s := range f.settings {
			if strconv.FormatUint(uint64(s.ID), 10) != key && s.WebhookID != key {
				kept = append(kept, s)
			}
		}
		if len(kept) == len(f.settings) {
			writeJSON(w, http.StatusNotFound, map[string]string{"error": "Webhook setting not found"})
			return
		}
		f.settings = kept
		writeJSON(w, http.StatusOK, map[string]string{"message": "Webhook setting deleted"})

	default:
		http.NotFound(w, r)
	}
}

func (f *fakeServer) savedSettings() []models.WebhookSetting {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]models.WebhookSetting(nil), f.settings...)
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func newTestPanel(t *testing.T, fake *fakeServer) (*Panel, *HTTPBackend) {
	t.Helper()
	srv := httptest.NewServer(fake)
	t.Cleanup(srv.Close)

	backend, err := NewHTTPBackend(srv.URL, "trello_panel_session", 5*time.Second)
	require.NoError(t, err)
	return New(backend, "https://panel.example.com/api/trello-webhook"), backend
}
