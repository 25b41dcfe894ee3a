package integrations

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/chxlky/trello-webhook-panel/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/time/rate"
)

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func newTestClient(t *testing.T, handler http.HandlerFunc) *TrelloClient {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return NewTrelloClient("key", "token", TrelloOptions{
		BaseURL:       srv.URL,
		RetryAttempts: 3,
		RetryDelay:    time.Millisecond,
	})
}

func TestTrelloClientSendsCredentials(t *testing.T) {
	var gotKey, gotToken string
	tc := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		gotKey = r.URL.Query().Get("key")
		gotToken = r.URL.Query().Get("token")
		writeJSON(w, http.StatusOK, map[string]any{"id": "m1", "username": "ann", "fullName": "Ann"})
	})

	member, err := tc.Me(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "ann", member.Username)
	assert.Equal(t, "key", gotKey)
	assert.Equal(t, "token", gotToken)
}

func TestTrelloClientBoardsWithLists(t *testing.T) {
	tc := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		path := r.URL.Path
		switch {
		case strings.HasSuffix(path, "/members/me"):
			writeJSON(w, http.StatusOK, map[string]any{"id": "m1", "username": "ann"})
		case strings.HasSuffix(path, "/members/m1/boards"):
			writeJSON(w, http.StatusOK, []map[string]any{
				{"id": "b1", "name": "Eng"},
				{"id": "b2", "name": "Ops"},
			})
		case strings.HasSuffix(path, "/boards/b1/lists"):
			writeJSON(w, http.StatusOK, []map[string]any{
				{"id": "l1", "name": "Todo"},
				{"id": "l2", "name": "Done"},
			})
		case strings.HasSuffix(path, "/boards/b2/lists"):
			writeJSON(w, http.StatusInternalServerError, map[string]any{"message": "boom"})
		default:
			http.NotFound(w, r)
		}
	})

	boards, err := tc.BoardsWithLists(context.Background())
	require.NoError(t, err)
	require.Len(t, boards, 2)
	assert.Equal(t, "Eng", boards[0].Name)
	assert.Equal(t, []string{"Todo", "Done"}, boards[0].Lists)
	assert.Equal(t, "b2", boards[1].ID)
	assert.Empty(t, boards[1].Lists)
}

func TestTrelloClientBoardsWithListsTakesOneTokenPerRequest(t *testing.T) {
	var memberCalls, boardCalls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		path := r.URL.Path
		switch {
		case strings.HasSuffix(path, "/members/me"):
			memberCalls.Add(1)
			writeJSON(w, http.StatusOK, map[string]any{"id": "m1", "username": "ann"})
		case strings.HasSuffix(path, "/members/m1/boards"):
			if boardCalls.Add(1) == 1 {
				w.WriteHeader(http.StatusTooManyRequests)
				_, _ = w.Write([]byte("API_TOKEN_LIMIT_EXCEEDED"))
				return
			}
			writeJSON(w, http.StatusOK, []map[string]any{{"id": "b1", "name": "Eng"}})
		case strings.HasSuffix(path, "/boards/b1/lists"):
			writeJSON(w, http.StatusOK, []map[string]any{{"id": "l1", "name": "Todo"}})
		default:
			http.NotFound(w, r)
		}
	}))
	t.Cleanup(srv.Close)

	limiter := rate.NewLimiter(rate.Every(time.Hour), 4)
	tc := NewTrelloClient("key", "token", TrelloOptions{
		BaseURL:       srv.URL,
		Limiter:       limiter,
		RetryAttempts: 3,
		RetryDelay:    time.Millisecond,
	})

	boards, err := tc.BoardsWithLists(context.Background())
	require.NoError(t, err)
	require.Len(t, boards, 1)
	assert.Equal(t, []string{"Todo"}, boards[0].Lists)

	assert.Equal(t, int32(1), memberCalls.Load(), "a rate limited boards fetch must not refetch the member")
	assert.Equal(t, int32(2), boardCalls.Load())
	assert.InDelta(t, 0, limiter.Tokens(), 0.01, "member, two boards attempts and lists each take a token")
}

func TestTrelloClientRegisterWebhook(t *testing.T) {
	var query map[string]string
	tc := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.True(t, strings.HasSuffix(r.URL.Path, "/webhooks"))
		query = map[string]string{
			"idModel":     r.URL.Query().Get("idModel"),
			"callbackURL": r.URL.Query().Get("callbackURL"),
		}
		writeJSON(w, http.StatusOK, map[string]any{"id": "w1", "idModel": "b1", "active": true})
	})

	id, err := tc.RegisterWebhook(context.Background(), "b1", "https://cb", "desc")
	require.NoError(t, err)
	assert.Equal(t, "w1", id)
	assert.Equal(t, "b1", query["idModel"])
	assert.Equal(t, "https://cb", query["callbackURL"])
}

func TestTrelloClientRetriesRateLimit(t *testing.T) {
	var calls atomic.Int32
	tc := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusTooManyRequests)
			_, _ = w.Write([]byte("API_TOKEN_LIMIT_EXCEEDED"))
			return
		}
		writeJSON(w, http.StatusOK, []map[string]any{{"id": "lab1", "name": "Bug", "color": "red"}})
	})

	labels, err := tc.BoardLabels(context.Background(), "b1")
	require.NoError(t, err)
	require.Len(t, labels, 1)
	assert.Equal(t, "Bug", labels[0].Name)
	assert.Equal(t, int32(3), calls.Load())
}

func TestTrelloClientDoesNotRetryOtherErrors(t *testing.T) {
	var calls atomic.Int32
	tc := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte("invalid token"))
	})

	_, err := tc.Me(context.Background())
	require.Error(t, err)
	assert.Equal(t, int32(1), calls.Load())
}

func TestTrelloClientCopyCard(t *testing.T) {
	tc := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.True(t, strings.HasSuffix(r.URL.Path, "/cards"))
		assert.Equal(t, "src", r.URL.Query().Get("idCardSource"))
		assert.Equal(t, "list1", r.URL.Query().Get("idList"))
		writeJSON(w, http.StatusOK, map[string]any{"id": "copy1", "name": "Card", "url": "https://trello.com/c/x"})
	})

	card, err := tc.CopyCard(context.Background(), "src", "list1")
	require.NoError(t, err)
	assert.Equal(t, "copy1", card.ID)
	assert.Equal(t, "https://trello.com/c/x", card.URL)
}

func TestTrelloFactorySharesLimiter(t *testing.T) {
	factory := NewTrelloFactory(config.TrelloConfig{
		BaseURL:           "http://unused",
		RequestsPerWindow: 100,
		Window:            10 * time.Second,
		RetryAttempts:     3,
	})

	a := factory("k1", "t1").(*TrelloClient)
	b := factory("k2", "t2").(*TrelloClient)
	assert.Same(t, a.limiter, b.limiter)
	assert.Equal(t, "http://unused", a.client.BaseURL)
	assert.Equal(t, uint(3), a.attempts)
}
