package panel

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"strings"
	"time"

	"github.com/chxlky/trello-webhook-panel/internal/models"
	"go.uber.org/zap"
)

// Backend is the panel server API the control panel drives. Every call is authenticated by the
// session cookie established at login.
type Backend interface {
	Login(ctx context.Context, req LoginRequest) (string, error)
	Logout(ctx context.Context) error
	Session(ctx context.Context) (models.SessionInfo, error)
	LinkTrello(ctx context.Context, apiKey, token string) error
	VerifyTrello(ctx context.Context) (bool, error)
	Boards(ctx context.Context) ([]models.Board, error)
	Labels(ctx context.Context) ([]models.Label, error)
	SetupBoard(ctx context.Context) (models.BoardSetup, error)
	RegisterWebhook(ctx context.Context, req models.WebhookRegistration) (models.RegistrationResult, error)
	SaveSetting(ctx context.Context, setting models.WebhookSetting) (models.WebhookSetting, error)
	ListSettings(ctx context.Context) ([]models.WebhookSetting, error)
	DeleteSetting(ctx context.Context, key string) error
}

// LoginRequest carries either a Google ID token or, against a server without a Google client id,
// a bare email.
type LoginRequest struct {
	Credential string `json:"credential,omitempty"`
	Email      string `json:"email,omitempty"`
}

const maxErrorBody = 64 << 10

type HTTPBackend struct {
	baseURL    *url.URL
	cookieName string
	client     *http.Client
}

var _ Backend = (*HTTPBackend)(nil)

func NewHTTPBackend(baseURL, cookieName string, timeout time.Duration) (*HTTPBackend, error) {
	u, err := url.Parse(strings.TrimRight(baseURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("parsing backend url: %w", err)
	}
	if u.Scheme == "" || u.Host == "" {
		return nil, &ValidationError{Field: "backend url", Reason: "must be absolute"}
	}
	jar, err := cookiejar.New(nil)
	if err != nil {
		return nil, err
	}

	return &HTTPBackend{
		baseURL:    u,
		cookieName: cookieName,
		client:     &http.Client{Jar: jar, Timeout: timeout},
	}, nil
}

// SessionCookie returns the value of the session cookie held by the client, if any.
func (b *HTTPBackend) SessionCookie() string {
	for _, c := range b.client.Jar.Cookies(b.baseURL) {
		if c.Name == b.cookieName {
			return c.Value
		}
	}
	return ""
}

// SetSessionCookie restores a session saved by an earlier run.
func (b *HTTPBackend) SetSessionCookie(value string) {
	if value == "" {
		return
	}
	b.client.Jar.SetCookies(b.baseURL, []*http.Cookie{{Name: b.cookieName, Value: value, Path: "/"}})
}

func (b *HTTPBackend) do(ctx context.Context, method, path string, body, out any, fallback string) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encoding request: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, b.baseURL.String()+path, reader)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := b.client.Do(req)
	if err != nil {
		return &UpstreamError{Message: err.Error()}
	}
	defer resp.Body.Close()

	zap.L().Debug("Backend call", zap.String("method", method), zap.String("path", path), zap.Int("status", resp.StatusCode))

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return upstreamError(resp, fallback)
	}
	if out == nil || resp.StatusCode == http.StatusNoContent {
		return nil
	}
	if !isJSON(resp) {
		text, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return &UpstreamError{StatusCode: resp.StatusCode, Message: "Unexpected response: " + strings.TrimSpace(string(text))}
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return &UpstreamError{StatusCode: resp.StatusCode, Message: "decoding response: " + err.Error()}
	}
	return nil
}

func isJSON(resp *http.Response) bool {
	return strings.Contains(resp.Header.Get("Content-Type"), "application/json")
}

// upstreamError pulls a message out of an error response: the "error" or "message" field of a JSON
// body, the raw text of any other body, or fallback when neither yields anything.
func upstreamError(resp *http.Response, fallback string) error {
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	msg := ""

	if isJSON(resp) {
		var body struct {
			Error   string `json:"error"`
			Message string `json:"message"`
		}
		if json.Unmarshal(raw, &body) == nil {
			msg = body.Error
			if msg == "" {
				msg = body.Message
			}
		}
	} else {
		msg = strings.TrimSpace(string(raw))
	}
	if msg == "" {
		msg = fallback
	}
	return &UpstreamError{StatusCode: resp.StatusCode, Message: msg}
}

func (b *HTTPBackend) Login(ctx context.Context, req LoginRequest) (string, error) {
	var out struct {
		Email string `json:"email"`
	}
	if err := b.do(ctx, http.MethodPost, "/api/login", req, &out, "Login failed"); err != nil {
		return "", err
	}
	return out.Email, nil
}

func (b *HTTPBackend) Logout(ctx context.Context) error {
	return b.do(ctx, http.MethodPost, "/api/logout", nil, nil, "Logout failed")
}

func (b *HTTPBackend) Session(ctx context.Context) (models.SessionInfo, error) {
	var out models.SessionInfo
	err := b.do(ctx, http.MethodGet, "/api/session", nil, &out, "Could not load session")
	return out, err
}

func (b *HTTPBackend) LinkTrello(ctx context.Context, apiKey, token string) error {
	body := map[string]string{"apiKey": apiKey, "token": token}
	return b.do(ctx, http.MethodPost, "/api/users/trello", body, nil, "Failed to save Trello credentials")
}

// VerifyTrello reports whether the user has linked Trello; the backend answers 400 when not.
func (b *HTTPBackend) VerifyTrello(ctx context.Context) (bool, error) {
	err := b.do(ctx, http.MethodPost, "/trello/verify", nil, nil, "Could not verify Trello credentials")
	if StatusCode(err) == http.StatusBadRequest {
		return false, nil
	}
	return err == nil, err
}

func (b *HTTPBackend) Boards(ctx context.Context) ([]models.Board, error) {
	var out struct {
		Boards []models.Board `json:"boards"`
	}
	if err := b.do(ctx, http.MethodPost, "/trello/boards", nil, &out, "Could not fetch Trello boards"); err != nil {
		return nil, err
	}
	return out.Boards, nil
}

func (b *HTTPBackend) Labels(ctx context.Context) ([]models.Label, error) {
	var out struct {
		Labels []models.Label `json:"labels"`
	}
	if err := b.do(ctx, http.MethodGet, "/trello/labels", nil, &out, "Could not fetch labels"); err != nil {
		return nil, err
	}
	return out.Labels, nil
}

func (b *HTTPBackend) SetupBoard(ctx context.Context) (models.BoardSetup, error) {
	var out models.BoardSetup
	err := b.do(ctx, http.MethodPost, "/trello/setup-board", nil, &out, "Could not setup Trello board")
	return out, err
}

func (b *HTTPBackend) RegisterWebhook(ctx context.Context, req models.WebhookRegistration) (models.RegistrationResult, error) {
	var out models.RegistrationResult
	err := b.do(ctx, http.MethodPost, "/api/trello/webhooks", req, &out, "Failed to register webhook")
	return out, err
}

func (b *HTTPBackend) SaveSetting(ctx context.Context, setting models.WebhookSetting) (models.WebhookSetting, error) {
	var out struct {
		Setting models.WebhookSetting `json:"setting"`
	}
	err := b.do(ctx, http.MethodPost, "/api/webhook-settings", setting, &out, "Failed to save webhook setting")
	return out.Setting, err
}

func (b *HTTPBackend) ListSettings(ctx context.Context) ([]models.WebhookSetting, error) {
	var out []models.WebhookSetting
	if err := b.do(ctx, http.MethodGet, "/api/webhook-settings", nil, &out, "Could not fetch webhooks"); err != nil {
		return nil, err
	}
	return out, nil
}

func (b *HTTPBackend) DeleteSetting(ctx context.Context, key string) error {
	return b.do(ctx, http.MethodDelete, "/api/webhook-settings/"+url.PathEscape(key), nil, nil, "Failed to delete webhook")
}
