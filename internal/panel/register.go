package panel

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/chxlky/trello-webhook-panel/internal/models"
	"go.uber.org/zap"
)

// EventSelection is the registration form: which event, on which boards, filtered how.
type EventSelection struct {
	EventType string
	Scope     string // ScopeAll, a board id, or (deprecated) a board name
	List      string
	Label     string
}

type Registration struct {
	Board     models.Board
	WebhookID string
	// Setting is nil when the webhook was created but its setting could not be saved.
	Setting *models.WebhookSetting
}

type BoardFailure struct {
	Board models.Board
	Err   error
}

// Outcome aggregates a registration batch. AnySuccess tells the caller to reset the form.
type Outcome struct {
	Attempts   int
	Registered []Registration
	Failures   []BoardFailure
	Notices    []Notice
	AnySuccess bool
}

// RegisterWebhook registers sel on every board it targets, one board at a time. A failing board is
// reported and skipped; it never stops the rest of the batch. The only errors returned are the ones
// that stop the batch before any call is made: a missing event type or identity, or a scope that
// matches no board.
func (p *Panel) RegisterWebhook(ctx context.Context, sel EventSelection, boards []models.Board, identity string) (Outcome, error) {
	if strings.TrimSpace(sel.EventType) == "" {
		return Outcome{}, &ValidationError{Field: "event type", Reason: "Please select at least an event type."}
	}
	eventType, ok := models.ParseEventType(sel.EventType)
	if !ok {
		return Outcome{}, &ValidationError{Field: "event type", Reason: fmt.Sprintf("unknown event type %q", sel.EventType)}
	}
	if identity == "" {
		return Outcome{}, &ValidationError{Field: "identity", Reason: "Please log in to register webhooks."}
	}

	targets, err := NewCatalog(boards).Resolve(sel.Scope)
	if err != nil {
		return Outcome{}, err
	}

	var out Outcome
	for _, board := range targets {
		out.Attempts++

		webhookID, err := p.registerOne(ctx, eventType, sel, board)
		if err != nil {
			zap.L().Warn("Webhook registration failed",
				zap.String("boardID", board.ID), zap.String("board", board.Name), zap.Error(err))
			out.Failures = append(out.Failures, BoardFailure{Board: board, Err: err})
			out.Notices = append(out.Notices, ErrorNotice("Webhook registration failed for "+board.Name, err))
			continue
		}

		reg := Registration{Board: board, WebhookID: webhookID}
		saved, err := p.backend.SaveSetting(ctx, models.WebhookSetting{
			WebhookID: webhookID,
			BoardID:   board.ID,
			BoardName: board.Name,
			EventType: string(eventType),
			Label:     sel.Label,
			ListName:  sel.List,
		})
		if err != nil {
			// The external webhook stays registered; there is no rollback.
			out.Notices = append(out.Notices, Notice{
				Level:   LevelWarning,
				Title:   "Webhook setting not saved for " + board.Name,
				Message: err.Error(),
			})
		} else {
			reg.Setting = &saved
		}
		out.Registered = append(out.Registered, reg)
	}

	out.AnySuccess = len(out.Registered) > 0
	if out.AnySuccess {
		names := make([]string, len(out.Registered))
		for i, r := range out.Registered {
			names[i] = fmt.Sprintf("%q", r.Board.Name)
		}
		out.Notices = append(out.Notices, infoNotice("Webhook registered!",
			fmt.Sprintf("Webhook for %q on %s has been created", eventType, strings.Join(names, ", "))))
	}
	return out, nil
}

func (p *Panel) registerOne(ctx context.Context, eventType models.EventType, sel EventSelection, board models.Board) (string, error) {
	res, err := p.backend.RegisterWebhook(ctx, models.WebhookRegistration{
		CallbackURL: p.callbackURL,
		IDModel:     board.ID,
		Description: fmt.Sprintf("Webhook for %s on %s", eventType, board.Name),
		EventSettings: []models.EventSetting{{
			EventType: string(eventType),
			Enabled:   true,
			ExtraConfig: map[string]any{
				"label":     sel.Label,
				"list_name": sel.List,
			},
		}},
	})
	if err != nil {
		return "", err
	}
	if res.ID == "" {
		return "", &AnomalyError{Reason: "No webhook_id returned from backend. Please try again or contact support."}
	}
	return res.ID, nil
}

// IsAnomaly reports whether err is a well-formed response missing a required field.
func IsAnomaly(err error) bool {
	var anomaly *AnomalyError
	return errors.As(err, &anomaly)
}
