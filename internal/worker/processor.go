package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/chxlky/trello-webhook-panel/database"
	"github.com/chxlky/trello-webhook-panel/integrations"
	"github.com/chxlky/trello-webhook-panel/internal/models"
	"github.com/chxlky/trello-webhook-panel/internal/queue"
	"go.uber.org/zap"
)

// Store is the persistence the processor needs; *database.Store satisfies it.
type Store interface {
	GetUser(ctx context.Context, email string) (*models.User, error)
	GetUserBoard(ctx context.Context, email string) (*models.UserBoard, error)
	HasCopied(ctx context.Context, email, sourceCardID string, eventType models.EventType) (bool, error)
	RecordCopy(ctx context.Context, card *models.CopiedCard) error
}

// Outcome says what happened to a task that did not fail.
type Outcome struct {
	Copied bool
	CardID string
	Reason string // why the task was skipped
}

func skipped(reason string) Outcome {
	return Outcome{Reason: reason}
}

// CardProcessor copies cards a user was mentioned in or added to into the Enquiry list of the
// user's integration board. Only Trello and database failures are returned as errors; every other
// mismatch is a skip and is acknowledged.
type CardProcessor struct {
	store       Store
	trello      integrations.TrelloFactory
	enquiryList string
}

func NewCardProcessor(store Store, trello integrations.TrelloFactory, enquiryList string) *CardProcessor {
	return &CardProcessor{store: store, trello: trello, enquiryList: enquiryList}
}

func (p *CardProcessor) Process(ctx context.Context, task queue.Task) (Outcome, error) {
	var payload models.TrelloWebhookPayload
	if err := json.Unmarshal(task.TrelloEvent, &payload); err != nil {
		return skipped("undecodable trello event"), nil
	}

	action := payload.Action
	if action == nil || payload.Webhook.ID == "" || action.Data.Card.ID == "" || action.Type == "" || task.UserEmail == "" {
		return skipped("missing required fields"), nil
	}

	eventType, ok := models.ParseEventType(task.EventType)
	if !ok {
		return skipped("unknown event type " + task.EventType), nil
	}
	if action.Type != eventType.TrelloAction() {
		return skipped(fmt.Sprintf("action %s does not match %s", action.Type, eventType)), nil
	}

	user, err := p.store.GetUser(ctx, task.UserEmail)
	if errors.Is(err, database.ErrNotFound) {
		return skipped("no user " + task.UserEmail), nil
	}
	if err != nil {
		return Outcome{}, fmt.Errorf("loading user: %w", err)
	}
	if !user.TrelloLinked() {
		return skipped("trello not linked"), nil
	}

	api := p.trello(user.APIKey, user.Token)
	me, err := api.Me(ctx)
	if err != nil {
		return Outcome{}, fmt.Errorf("fetching trello username: %w", err)
	}

	switch eventType {
	case models.EventMentionedInCard:
		if !strings.Contains(action.Data.Text, "@"+me.Username) {
			return skipped("user not mentioned in comment"), nil
		}
	case models.EventAddedToCard:
		if action.Member == nil || action.Member.Username != me.Username {
			return skipped("user was not the member added"), nil
		}
	}

	sourceID := action.Data.Card.ID
	copied, err := p.store.HasCopied(ctx, user.Email, sourceID, eventType)
	if err != nil {
		return Outcome{}, err
	}
	if copied {
		return skipped("card already copied"), nil
	}

	board, err := p.store.GetUserBoard(ctx, user.Email)
	if errors.Is(err, database.ErrNotFound) {
		return skipped("no integration board"), nil
	}
	if err != nil {
		return Outcome{}, fmt.Errorf("loading integration board: %w", err)
	}
	listID, ok := board.ListID(p.enquiryList)
	if !ok {
		return skipped(fmt.Sprintf("no %q list on integration board", p.enquiryList)), nil
	}

	card, err := api.CopyCard(ctx, sourceID, listID)
	if err != nil {
		return Outcome{}, fmt.Errorf("copying card %s: %w", sourceID, err)
	}

	if err := p.store.RecordCopy(ctx, &models.CopiedCard{
		ID:           card.ID,
		SourceCardID: sourceID,
		UserEmail:    user.Email,
		EventType:    string(eventType),
		Name:         card.Name,
		URL:          card.URL,
		BoardID:      board.BoardID,
	}); err != nil {
		zap.L().Error("Failed to record copied card", zap.String("cardID", card.ID), zap.Error(err))
	}

	p.linkOriginal(ctx, api, card.ID, action.Data.Card)
	p.applyLabel(ctx, api, card.ID, board.BoardID, task)

	zap.L().Info("Copied card into enquiry list",
		zap.String("sourceCardID", sourceID),
		zap.String("cardID", card.ID),
		zap.String("listID", listID),
		zap.String("userEmail", user.Email))

	return Outcome{Copied: true, CardID: card.ID}, nil
}

func (p *CardProcessor) linkOriginal(ctx context.Context, api integrations.TrelloAPI, cardID string, source models.TrelloCardData) {
	link := source.ShortLink
	if link == "" {
		link = source.ID
	}
	name := source.Name
	if name == "" {
		name = "Main Card"
	}

	if err := api.AttachURL(ctx, cardID, "https://trello.com/c/"+link, "Original Card: "+name); err != nil {
		zap.L().Warn("Failed to attach original card link", zap.String("cardID", cardID), zap.Error(err))
	}
}

// applyLabel prefers the label id; a bare label name is looked up on the integration board.
func (p *CardProcessor) applyLabel(ctx context.Context, api integrations.TrelloAPI, cardID, boardID string, task queue.Task) {
	labelID := task.LabelID
	if labelID == "" {
		name := task.LabelName
		if name == "" {
			name = task.Label
		}
		if name == "" {
			return
		}

		labels, err := api.BoardLabels(ctx, boardID)
		if err != nil {
			zap.L().Error("Failed to fetch labels", zap.String("boardID", boardID), zap.Error(err))
			return
		}
		for _, l := range labels {
			if l.Name == name {
				labelID = l.ID
				break
			}
		}
		if labelID == "" {
			zap.L().Warn("Label not found on board", zap.String("label", name), zap.String("boardID", boardID))
			return
		}
	}

	if err := api.AddLabel(ctx, cardID, labelID); err != nil {
		zap.L().Warn("Failed to apply label", zap.String("labelID", labelID), zap.String("cardID", cardID), zap.Error(err))
	}
}
