package api

import (
	"errors"
	"net/http"

	"github.com/chxlky/trello-webhook-panel/database"
	"github.com/chxlky/trello-webhook-panel/internal/models"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

func (h *Handler) ListSettingsHandler(c *gin.Context) {
	settings, err := h.Store.ListSettings(c.Request.Context(), userEmail(c))
	if err != nil {
		zap.L().Error("Failed to list webhook settings", zap.String("email", userEmail(c)), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Could not fetch webhook settings"})
		return
	}
	if settings == nil {
		settings = []models.WebhookSetting{}
	}
	c.JSON(http.StatusOK, settings)
}

func (h *Handler) CreateSettingHandler(c *gin.Context) {
	var setting models.WebhookSetting
	if err := c.ShouldBindJSON(&setting); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid JSON payload"})
		return
	}
	if setting.WebhookID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "webhook_id is required"})
		return
	}
	et, ok := models.ParseEventType(setting.EventType)
	if !ok {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Unknown event type: " + setting.EventType})
		return
	}

	setting.ID = 0
	setting.UserEmail = userEmail(c)
	setting.EventType = string(et)

	if setting.LabelID != "" {
		name, ok := h.labelOnBoard(c, setting)
		if !ok {
			return
		}
		setting.LabelName = name
	}

	if err := h.Store.CreateSetting(c.Request.Context(), &setting); err != nil {
		zap.L().Error("Failed to save webhook setting", zap.String("webhookID", setting.WebhookID), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to save webhook setting"})
		return
	}
	c.JSON(http.StatusCreated, gin.H{"message": "Webhook setting saved", "setting": setting})
}

// labelOnBoard checks that setting.LabelID belongs to the user's linked board, or to the setting's
// board when no board is linked, and returns the label name.
func (h *Handler) labelOnBoard(c *gin.Context, setting models.WebhookSetting) (string, bool) {
	user, api, ok := h.trelloUser(c)
	if !ok {
		return "", false
	}

	boardID := user.LinkedBoardID
	if boardID == "" {
		boardID = setting.BoardID
	}
	labels, err := api.BoardLabels(c.Request.Context(), boardID)
	if err != nil {
		zap.L().Error("Failed to fetch labels", zap.String("boardID", boardID), zap.Error(err))
		c.JSON(http.StatusBadRequest, gin.H{"error": "Could not verify label"})
		return "", false
	}
	for _, l := range labels {
		if l.ID == setting.LabelID {
			return l.Name, true
		}
	}
	c.JSON(http.StatusBadRequest, gin.H{"error": "Label does not belong to the board"})
	return "", false
}

// DeleteSettingHandler deletes by setting id, or by external webhook id for the whole group. The
// Trello webhook itself goes away once no setting references it.
func (h *Handler) DeleteSettingHandler(c *gin.Context) {
	ctx := c.Request.Context()
	email := userEmail(c)

	result, err := h.Store.DeleteSetting(ctx, email, c.Param("id"))
	if errors.Is(err, database.ErrNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "Webhook setting not found"})
		return
	}
	if err != nil {
		zap.L().Error("Failed to delete webhook setting", zap.String("key", c.Param("id")), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to delete webhook setting"})
		return
	}

	if result.Remaining == 0 {
		h.dropTrelloWebhook(c, email, result.WebhookID)
	}
	c.JSON(http.StatusOK, gin.H{"message": "Webhook setting deleted", "deleted": result.Deleted})
}

func (h *Handler) dropTrelloWebhook(c *gin.Context, email, webhookID string) {
	ctx := c.Request.Context()

	if user, err := h.Store.GetUser(ctx, email); err == nil && user.TrelloLinked() {
		if err := h.Trello(user.APIKey, user.Token).DeleteWebhook(ctx, webhookID); err != nil {
			zap.L().Warn("Failed to delete Trello webhook", zap.String("webhookID", webhookID), zap.Error(err))
		} else {
			zap.L().Info("Deleted Trello webhook", zap.String("webhookID", webhookID))
		}
	}
	if err := h.Store.ForgetTrelloWebhook(ctx, webhookID); err != nil {
		zap.L().Error("Failed to forget webhook", zap.String("webhookID", webhookID), zap.Error(err))
	}
}
