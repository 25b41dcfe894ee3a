package api

import (
	"encoding/json"
	"io"
	"net/http"

	"github.com/chxlky/trello-webhook-panel/integrations"
	"github.com/chxlky/trello-webhook-panel/internal/models"
	"github.com/chxlky/trello-webhook-panel/internal/queue"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

const maxWebhookBody = 1 << 20

// TrelloWebhookHandler receives Trello deliveries. Trello probes the callback with HEAD (and some
// proxies with GET) before it starts posting events.
func (h *Handler) TrelloWebhookHandler(c *gin.Context) {
	switch c.Request.Method {
	case http.MethodHead:
		c.Status(http.StatusOK)
		return
	case http.MethodGet:
		if challenge := c.Query("challenge"); challenge != "" {
			c.String(http.StatusOK, challenge)
			return
		}
		c.Status(http.StatusOK)
		return
	}

	body, err := io.ReadAll(io.LimitReader(c.Request.Body, maxWebhookBody))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Could not read body"})
		return
	}

	if secret := h.Config.Trello.AppSecret; secret != "" {
		if !integrations.VerifyTrelloSignature(secret, h.Config.CallbackURL(), body, c.GetHeader("X-Trello-Webhook")) {
			zap.L().Warn("Rejected Trello webhook with bad signature", zap.String("ip", c.ClientIP()))
			c.JSON(http.StatusUnauthorized, gin.H{"error": "Invalid signature"})
			return
		}
	}

	var payload models.TrelloWebhookPayload
	if err := json.Unmarshal(body, &payload); err != nil {
		zap.L().Debug("Could not decode webhook payload", zap.Error(err))
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid JSON payload"})
		return
	}
	if payload.Action == nil {
		c.JSON(http.StatusOK, gin.H{"status": "ignored"})
		return
	}

	action := payload.Action
	eventType, ok := models.EventTypeForAction(action.Type)
	if !ok {
		c.JSON(http.StatusOK, gin.H{"status": "ignored", "action": action.Type})
		return
	}
	ctx := c.Request.Context()

	if !h.eventEnabled(c, payload.Webhook.ID, eventType) {
		c.JSON(http.StatusOK, gin.H{"status": "disabled", "event_type": eventType})
		return
	}

	boardID := action.Data.Board.ID
	if boardID == "" {
		boardID = payload.Model.ID
	}
	settings, err := h.Store.SettingsForBoardEvent(ctx, boardID, eventType)
	if err != nil {
		zap.L().Error("Failed to match webhook settings", zap.String("boardID", boardID), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to match webhook settings"})
		return
	}

	queued := 0
	for _, s := range settings {
		task := queue.Task{
			TrelloEvent: json.RawMessage(body),
			UserEmail:   s.UserEmail,
			BoardID:     s.BoardID,
			BoardName:   s.BoardName,
			EventType:   s.EventType,
			Label:       s.Label,
			LabelID:     s.LabelID,
			LabelName:   s.LabelName,
			ListName:    s.ListName,
		}
		if err := h.Queue.Enqueue(ctx, task); err != nil {
			zap.L().Error("Failed to enqueue event", zap.String("userEmail", s.UserEmail), zap.Error(err))
			continue
		}
		queued++
	}

	zap.L().Info("Received Trello webhook",
		zap.String("action", action.Type),
		zap.String("boardID", boardID),
		zap.String("cardID", action.Data.Card.ID),
		zap.Int("queued", queued))
	c.JSON(http.StatusOK, gin.H{"status": "queued", "event_type": eventType, "users_processed": queued})
}

// eventEnabled reports false only when the webhook has stored event configurations and none of
// them enables eventType.
func (h *Handler) eventEnabled(c *gin.Context, webhookID string, eventType models.EventType) bool {
	if webhookID == "" {
		return true
	}
	events, err := h.Store.WebhookEvents(c.Request.Context(), webhookID)
	if err != nil || len(events) == 0 {
		return true
	}
	for _, e := range events {
		if e.EventType == string(eventType) && e.Enabled {
			return true
		}
	}
	return false
}
