package integrations

import (
	"context"
	"fmt"
	"time"

	"github.com/adlio/trello"
	"github.com/avast/retry-go"
	"github.com/chxlky/trello-webhook-panel/internal/config"
	"github.com/chxlky/trello-webhook-panel/internal/models"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// TrelloAPI is the subset of the Trello REST API the backend and the worker use.
type TrelloAPI interface {
	Me(ctx context.Context) (*models.Member, error)
	BoardsWithLists(ctx context.Context) ([]models.Board, error)
	BoardLabels(ctx context.Context, boardID string) ([]models.Label, error)
	RegisterWebhook(ctx context.Context, boardID, callbackURL, description string) (string, error)
	DeleteWebhook(ctx context.Context, webhookID string) error
	ListWebhooks(ctx context.Context) ([]models.RegisteredWebhook, error)
	CreateBoard(ctx context.Context, name string) (string, error)
	CreateList(ctx context.Context, boardID, name string) (string, error)
	CopyCard(ctx context.Context, sourceCardID, listID string) (*models.CardRef, error)
	AttachURL(ctx context.Context, cardID, url, name string) error
	AddLabel(ctx context.Context, cardID, labelID string) error
}

// TrelloFactory builds a client bound to one user's key and token.
type TrelloFactory func(apiKey, token string) TrelloAPI

type TrelloOptions struct {
	BaseURL       string
	Limiter       *rate.Limiter
	RetryAttempts uint
	RetryDelay    time.Duration
}

type TrelloClient struct {
	client   *trello.Client
	limiter  *rate.Limiter
	attempts uint
	delay    time.Duration
}

var _ TrelloAPI = (*TrelloClient)(nil)

func NewTrelloClient(apiKey, token string, opts TrelloOptions) *TrelloClient {
	client := trello.NewClient(apiKey, token)
	if opts.BaseURL != "" {
		client.BaseURL = opts.BaseURL
	}
	if opts.Limiter == nil {
		opts.Limiter = rate.NewLimiter(rate.Inf, 0)
	}
	if opts.RetryAttempts == 0 {
		opts.RetryAttempts = 1
	}

	return &TrelloClient{
		client:   client,
		limiter:  opts.Limiter,
		attempts: opts.RetryAttempts,
		delay:    opts.RetryDelay,
	}
}

// NewTrelloFactory shares one limiter between every client it builds, so the process as a whole
// stays under cfg.RequestsPerWindow requests per cfg.Window.
func NewTrelloFactory(cfg config.TrelloConfig) TrelloFactory {
	limiter := rate.NewLimiter(rate.Inf, 0)
	if cfg.RequestsPerWindow > 0 && cfg.Window > 0 {
		limiter = rate.NewLimiter(rate.Every(cfg.Window/time.Duration(cfg.RequestsPerWindow)), cfg.RequestsPerWindow)
	}

	return func(apiKey, token string) TrelloAPI {
		return NewTrelloClient(apiKey, token, TrelloOptions{
			BaseURL:       cfg.BaseURL,
			Limiter:       limiter,
			RetryAttempts: cfg.RetryAttempts,
			RetryDelay:    cfg.RetryDelay,
		})
	}
}

// call waits for the limiter and retries fn with exponential backoff while Trello answers 429.
func (tc *TrelloClient) call(ctx context.Context, op string, fn func(api *trello.Client) error) error {
	api := tc.client.WithContext(ctx)

	err := retry.Do(
		func() error {
			if err := tc.limiter.Wait(ctx); err != nil {
				return err
			}
			return fn(api)
		},
		retry.Context(ctx),
		retry.Attempts(tc.attempts),
		retry.Delay(tc.delay),
		retry.DelayType(retry.BackOffDelay),
		retry.LastErrorOnly(true),
		retry.RetryIf(trello.IsRateLimit),
		retry.OnRetry(func(n uint, err error) {
			zap.L().Info("Trello rate limited, backing off", zap.String("op", op), zap.Uint("attempt", n+1), zap.Error(err))
		}),
	)
	if err != nil {
		return fmt.Errorf("trello %s: %w", op, err)
	}
	return nil
}

func (tc *TrelloClient) Me(ctx context.Context) (*models.Member, error) {
	var member *trello.Member
	err := tc.call(ctx, "get member", func(api *trello.Client) error {
		var err error
		member, err = api.GetMember("me", trello.Defaults())
		return err
	})
	if err != nil {
		return nil, err
	}
	return &models.Member{ID: member.ID, Username: member.Username, FullName: member.FullName}, nil
}

// BoardsWithLists returns the member's boards with their list names. A board whose lists cannot be
// fetched is returned with no lists.
func (tc *TrelloClient) BoardsWithLists(ctx context.Context) ([]models.Board, error) {
	var member *trello.Member
	err := tc.call(ctx, "get member", func(api *trello.Client) (err error) {
		member, err = api.GetMember("me", trello.Defaults())
		return err
	})
	if err != nil {
		return nil, err
	}

	var boards []*trello.Board
	err = tc.call(ctx, "get boards", func(*trello.Client) (err error) {
		boards, err = member.GetBoards(trello.Defaults())
		return err
	})
	if err != nil {
		return nil, err
	}

	result := make([]models.Board, 0, len(boards))
	for _, board := range boards {
		entry := models.Board{ID: board.ID, Name: board.Name, Lists: []string{}}

		var lists []*trello.List
		err := tc.call(ctx, "get lists", func(api *trello.Client) error {
			var err error
			lists, err = board.GetLists(trello.Defaults())
			return err
		})
		if err != nil {
			zap.L().Warn("Failed to fetch lists for board", zap.String("boardID", board.ID), zap.Error(err))
		}
		for _, list := range lists {
			entry.Lists = append(entry.Lists, list.Name)
		}
		result = append(result, entry)
	}

	return result, nil
}

func (tc *TrelloClient) BoardLabels(ctx context.Context, boardID string) ([]models.Label, error) {
	var labels []*trello.Label
	err := tc.call(ctx, "get labels", func(api *trello.Client) error {
		return api.Get(fmt.Sprintf("boards/%s/labels", boardID), trello.Defaults(), &labels)
	})
	if err != nil {
		return nil, err
	}

	result := make([]models.Label, 0, len(labels))
	for _, l := range labels {
		result = append(result, models.Label{ID: l.ID, Name: l.Name, Color: l.Color})
	}
	return result, nil
}

func (tc *TrelloClient) RegisterWebhook(ctx context.Context, boardID, callbackURL, description string) (string, error) {
	webhook := &trello.Webhook{
		IDModel:     boardID,
		CallbackURL: callbackURL,
		Description: description,
	}
	if err := tc.call(ctx, "create webhook", func(api *trello.Client) error {
		return api.CreateWebhook(webhook)
	}); err != nil {
		return "", err
	}
	if webhook.ID == "" {
		return "", fmt.Errorf("trello returned no webhook id for board %s", boardID)
	}

	zap.L().Info("Registered Trello webhook", zap.String("webhookID", webhook.ID), zap.String("boardID", boardID))

	return webhook.ID, nil
}

func (tc *TrelloClient) DeleteWebhook(ctx context.Context, webhookID string) error {
	var discard map[string]any
	if err := tc.call(ctx, "delete webhook", func(api *trello.Client) error {
		return api.Delete(fmt.Sprintf("webhooks/%s", webhookID), trello.Defaults(), &discard)
	}); err != nil {
		return err
	}

	zap.L().Info("Deleted Trello webhook", zap.String("webhookID", webhookID))
	return nil
}

func (tc *TrelloClient) ListWebhooks(ctx context.Context) ([]models.RegisteredWebhook, error) {
	var hooks []*trello.Webhook
	err := tc.call(ctx, "list webhooks", func(api *trello.Client) error {
		return api.Get(fmt.Sprintf("tokens/%s/webhooks", tc.client.Token), trello.Defaults(), &hooks)
	})
	if err != nil {
		return nil, err
	}

	result := make([]models.RegisteredWebhook, 0, len(hooks))
	for _, h := range hooks {
		result = append(result, models.RegisteredWebhook{
			ID:          h.ID,
			IDModel:     h.IDModel,
			Description: h.Description,
			CallbackURL: h.CallbackURL,
			Active:      h.Active,
		})
	}
	return result, nil
}

func (tc *TrelloClient) CreateBoard(ctx context.Context, name string) (string, error) {
	var board trello.Board
	err := tc.call(ctx, "create board", func(api *trello.Client) error {
		return api.Post("boards", trello.Arguments{"name": name, "defaultLists": "false"}, &board)
	})
	if err != nil {
		return "", err
	}
	return board.ID, nil
}

func (tc *TrelloClient) CreateList(ctx context.Context, boardID, name string) (string, error) {
	var list trello.List
	err := tc.call(ctx, "create list", func(api *trello.Client) error {
		return api.Post("lists", trello.Arguments{"name": name, "idBoard": boardID, "pos": "bottom"}, &list)
	})
	if err != nil {
		return "", err
	}
	return list.ID, nil
}

func (tc *TrelloClient) CopyCard(ctx context.Context, sourceCardID, listID string) (*models.CardRef, error) {
	var card trello.Card
	err := tc.call(ctx, "copy card", func(api *trello.Client) error {
		return api.Post("cards", trello.Arguments{"idCardSource": sourceCardID, "idList": listID}, &card)
	})
	if err != nil {
		return nil, err
	}
	if card.ID == "" {
		return nil, fmt.Errorf("trello returned no id for copy of card %s", sourceCardID)
	}
	return &models.CardRef{ID: card.ID, Name: card.Name, URL: card.URL}, nil
}

func (tc *TrelloClient) AttachURL(ctx context.Context, cardID, url, name string) error {
	var attachment trello.Attachment
	return tc.call(ctx, "attach url", func(api *trello.Client) error {
		return api.Post(fmt.Sprintf("cards/%s/attachments", cardID), trello.Arguments{"url": url, "name": name}, &attachment)
	})
}

func (tc *TrelloClient) AddLabel(ctx context.Context, cardID, labelID string) error {
	var labelIDs []string
	return tc.call(ctx, "add label", func(api *trello.Client) error {
		return api.Post(fmt.Sprintf("cards/%s/idLabels", cardID), trello.Arguments{"value": labelID}, &labelIDs)
	})
}
