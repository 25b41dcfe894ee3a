package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/chxlky/trello-webhook-panel/database"
	"github.com/chxlky/trello-webhook-panel/database/dbtest"
	"github.com/chxlky/trello-webhook-panel/integrations"
	"github.com/chxlky/trello-webhook-panel/integrations/trellotest"
	"github.com/chxlky/trello-webhook-panel/internal/config"
	"github.com/chxlky/trello-webhook-panel/internal/models"
	"github.com/chxlky/trello-webhook-panel/internal/queue"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

const testEmail = "ann@example.com"

type testEnv struct {
	t      *testing.T
	router *gin.Engine
	store  *database.Store
	trello *trellotest.Fake
	queue  *queue.MemoryQueue
	cookie *http.Cookie
}

func testConfig() config.Config {
	var cfg config.Config
	cfg.Server.PublicURL = "https://panel.example.com"
	cfg.Session.Secret = "test-secret"
	cfg.Session.CookieName = "trello_panel_session"
	cfg.Session.MaxAge = 3600
	cfg.Trello.BoardLists = []string{"Enquiry In", "Todo", "Doing", "Done"}
	return cfg
}

func newTestEnv(t *testing.T, mutate ...func(*Handler)) *testEnv {
	t.Helper()
	gin.SetMode(gin.TestMode)

	env := &testEnv{
		t:     t,
		store: dbtest.NewStore(t),
		trello: &trellotest.Fake{
			Username: "ann",
			Boards: []models.Board{
				{ID: "b1", Name: "Eng", Lists: []string{"Todo"}},
				{ID: "b2", Name: "Ops", Lists: []string{}},
			},
			Labels: map[string][]models.Label{"b1": {{ID: "lbl1", Name: "Urgent"}}},
		},
		queue: queue.NewMemoryQueue(16, 16, 10*time.Millisecond),
	}

	h := &Handler{
		Store:  env.store,
		Trello: env.trello.Factory(),
		Queue:  env.queue,
		Config: testConfig(),
	}
	for _, m := range mutate {
		m(h)
	}
	env.router = NewRouter(h, zap.NewNop())
	return env
}

func (e *testEnv) do(method, path string, body any) *httptest.ResponseRecorder {
	e.t.Helper()

	var reader *bytes.Reader
	switch b := body.(type) {
	case nil:
		reader = bytes.NewReader(nil)
	case []byte:
		reader = bytes.NewReader(b)
	default:
		data, err := json.Marshal(b)
		require.NoError(e.t, err)
		reader = bytes.NewReader(data)
	}

	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	if e.cookie != nil {
		req.AddCookie(e.cookie)
	}

	w := httptest.NewRecorder()
	e.router.ServeHTTP(w, req)
	for _, c := range w.Result().Cookies() {
		if c.Name == "trello_panel_session" {
			e.cookie = c
		}
	}
	return w
}

func (e *testEnv) login() {
	e.t.Helper()
	w := e.do(http.MethodPost, "/api/login", map[string]string{"email": testEmail})
	require.Equal(e.t, http.StatusOK, w.Code, w.Body.String())
}

func (e *testEnv) linkTrello() {
	e.t.Helper()
	e.login()
	w := e.do(http.MethodPost, "/api/users/trello", map[string]string{"apiKey": "key", "token": "tok"})
	require.Equal(e.t, http.StatusOK, w.Code, w.Body.String())
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &v), w.Body.String())
	return v
}

func TestLoginAndSession(t *testing.T) {
	env := newTestEnv(t)

	info := decode[models.SessionInfo](t, env.do(http.MethodGet, "/api/session", nil))
	assert.False(t, info.Authenticated)

	env.login()
	info = decode[models.SessionInfo](t, env.do(http.MethodGet, "/api/session", nil))
	assert.Equal(t, models.SessionInfo{Authenticated: true, Email: testEmail}, info)

	w := env.do(http.MethodPost, "/api/users/trello", map[string]string{"apiKey": "key"})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = env.do(http.MethodPost, "/api/users/trello", map[string]string{"apiKey": "key", "token": "tok"})
	assert.Equal(t, http.StatusOK, w.Code)
	info = decode[models.SessionInfo](t, env.do(http.MethodGet, "/api/session", nil))
	assert.True(t, info.TrelloLinked)

	assert.Equal(t, http.StatusOK, env.do(http.MethodPost, "/api/logout", nil).Code)
	assert.Equal(t, http.StatusUnauthorized, env.do(http.MethodGet, "/api/webhook-settings", nil).Code)
}

type fakeVerifier struct{}

func (fakeVerifier) VerifyEmail(_ context.Context, credential string) (string, error) {
	if credential != "good-token" {
		return "", errors.New("bad token")
	}
	return "Ann@Example.com", nil
}

var _ integrations.IdentityVerifier = fakeVerifier{}

func TestLoginWithGoogleCredential(t *testing.T) {
	env := newTestEnv(t, func(h *Handler) { h.Identity = fakeVerifier{} })

	w := env.do(http.MethodPost, "/api/login", map[string]string{"email": testEmail})
	assert.Equal(t, http.StatusUnauthorized, w.Code, "email-only login is off when google is configured")

	w = env.do(http.MethodPost, "/api/login", map[string]string{"credential": "good-token"})
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, testEmail, decode[map[string]string](t, w)["email"])
}

func TestRequiresAuthentication(t *testing.T) {
	env := newTestEnv(t)
	for _, path := range []string{"/trello/boards", "/api/trello/webhooks", "/api/webhook-settings"} {
		w := env.do(http.MethodPost, path, map[string]string{})
		assert.Equal(t, http.StatusUnauthorized, w.Code, path)
	}
}

func TestVerifyTrello(t *testing.T) {
	env := newTestEnv(t)
	env.login()
	assert.Equal(t, http.StatusBadRequest, env.do(http.MethodPost, "/trello/verify", nil).Code)

	env.linkTrello()
	assert.Equal(t, http.StatusOK, env.do(http.MethodPost, "/trello/verify", nil).Code)

	env.trello.ErrMe = errors.New("invalid token")
	assert.Equal(t, http.StatusUnauthorized, env.do(http.MethodPost, "/trello/verify", nil).Code)
}

func TestBoards(t *testing.T) {
	env := newTestEnv(t)
	env.linkTrello()

	w := env.do(http.MethodPost, "/trello/boards", nil)
	require.Equal(t, http.StatusOK, w.Code)
	body := decode[struct {
		Boards []models.Board `json:"boards"`
	}](t, w)
	assert.Equal(t, env.trello.Boards, body.Boards)
}

func registration(boardID string) models.WebhookRegistration {
	return models.WebhookRegistration{
		CallbackURL: "https://panel.example.com/api/trello-webhook",
		IDModel:     boardID,
		Description: "Webhook for Added to a card on Eng",
		EventSettings: []models.EventSetting{{
			EventType:   "Added to a card",
			Enabled:     true,
			ExtraConfig: map[string]any{"label": "Urgent", "list_name": "Todo"},
		}},
	}
}

func TestRegisterWebhookReusesExisting(t *testing.T) {
	env := newTestEnv(t)
	env.linkTrello()

	w := env.do(http.MethodPost, "/api/trello/webhooks", registration("b1"))
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	first := decode[models.RegistrationResult](t, w)
	require.NotEmpty(t, first.ID)

	w = env.do(http.MethodPost, "/api/trello/webhooks", registration("b1"))
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, first.ID, decode[models.RegistrationResult](t, w).ID)
	assert.Len(t, env.trello.Webhooks, 1)

	events, err := env.store.WebhookEvents(context.Background(), first.ID)
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, "Urgent", events[0].ExtraConfig["label"])
}

func TestRegisterWebhookValidation(t *testing.T) {
	env := newTestEnv(t)
	env.linkTrello()

	req := registration("")
	assert.Equal(t, http.StatusBadRequest, env.do(http.MethodPost, "/api/trello/webhooks", req).Code)

	req = registration("b1")
	req.EventSettings[0].EventType = "Moved a card"
	assert.Equal(t, http.StatusBadRequest, env.do(http.MethodPost, "/api/trello/webhooks", req).Code)

	env.trello.ErrRegister = map[string]error{"b2": errors.New("model not found")}
	w := env.do(http.MethodPost, "/api/trello/webhooks", registration("b2"))
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "model not found", decode[map[string]string](t, w)["error"])
}

func TestWebhookSettingsLifecycle(t *testing.T) {
	env := newTestEnv(t)
	env.linkTrello()

	for _, et := range []string{"Added to a card", "Mentioned in a card"} {
		w := env.do(http.MethodPost, "/api/webhook-settings", map[string]string{
			"webhook_id": "w1", "board_id": "b1", "board_name": "Eng", "event_type": et,
		})
		require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	}
	w := env.do(http.MethodPost, "/api/webhook-settings", map[string]string{"board_id": "b1", "event_type": "Added to a card"})
	assert.Equal(t, http.StatusBadRequest, w.Code, "webhook_id is required")

	rows := decode[[]models.WebhookSetting](t, env.do(http.MethodGet, "/api/webhook-settings", nil))
	require.Len(t, rows, 2)
	assert.Equal(t, testEmail, rows[0].UserEmail)

	assert.Equal(t, http.StatusNotFound, env.do(http.MethodDelete, "/api/webhook-settings/999", nil).Code)

	w = env.do(http.MethodDelete, "/api/webhook-settings/1", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Empty(t, env.trello.Deleted, "w1 is still referenced")

	w = env.do(http.MethodDelete, "/api/webhook-settings/w1", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, []string{"w1"}, env.trello.Deleted)

	rows = decode[[]models.WebhookSetting](t, env.do(http.MethodGet, "/api/webhook-settings", nil))
	assert.Empty(t, rows)
}

func TestCreateSettingChecksLabel(t *testing.T) {
	env := newTestEnv(t)
	env.linkTrello()

	setting := map[string]string{"webhook_id": "w1", "board_id": "b1", "event_type": "commentCard", "label_id": "nope"}
	assert.Equal(t, http.StatusBadRequest, env.do(http.MethodPost, "/api/webhook-settings", setting).Code)

	setting["label_id"] = "lbl1"
	w := env.do(http.MethodPost, "/api/webhook-settings", setting)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	saved := decode[struct {
		Setting models.WebhookSetting `json:"setting"`
	}](t, w).Setting
	assert.Equal(t, "Urgent", saved.LabelName)
	assert.Equal(t, "Mentioned in a card", saved.EventType)
}

func TestSetupBoardIsIdempotent(t *testing.T) {
	env := newTestEnv(t)
	env.linkTrello()

	w := env.do(http.MethodPost, "/trello/setup-board", nil)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	setup := decode[models.BoardSetup](t, w)
	assert.Equal(t, "ann", setup.Name)
	assert.Len(t, setup.Lists, 4)
	assert.NotEmpty(t, setup.Lists["Enquiry In"])

	w = env.do(http.MethodPost, "/trello/setup-board", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, setup.BoardID, decode[models.BoardSetup](t, w).BoardID)
	assert.Len(t, env.trello.Created, 5)

	user, err := env.store.GetUser(context.Background(), testEmail)
	require.NoError(t, err)
	assert.Equal(t, setup.BoardID, user.LinkedBoardID)

	w = env.do(http.MethodGet, "/trello/labels", nil)
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestHealth(t *testing.T) {
	env := newTestEnv(t)
	w := env.do(http.MethodGet, "/health", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "disabled", decode[map[string]string](t, w)["redis"])
}
