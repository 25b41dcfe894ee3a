package api

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/chxlky/trello-webhook-panel/database"
	"github.com/chxlky/trello-webhook-panel/internal/models"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

func (h *Handler) VerifyTrelloHandler(c *gin.Context) {
	_, api, ok := h.trelloUser(c)
	if !ok {
		return
	}

	me, err := api.Me(c.Request.Context())
	if err != nil {
		zap.L().Warn("Trello rejected stored credentials", zap.String("email", userEmail(c)), zap.Error(err))
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Invalid Trello credentials"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Trello credentials valid", "member": me})
}

func (h *Handler) BoardsHandler(c *gin.Context) {
	_, api, ok := h.trelloUser(c)
	if !ok {
		return
	}

	boards, err := api.BoardsWithLists(c.Request.Context())
	if err != nil {
		zap.L().Error("Failed to fetch boards", zap.String("email", userEmail(c)), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Could not fetch Trello boards"})
		return
	}
	if boards == nil {
		boards = []models.Board{}
	}
	c.JSON(http.StatusOK, gin.H{"boards": boards})
}

// LabelsHandler lists the labels of ?board_id, defaulting to the user's linked board.
func (h *Handler) LabelsHandler(c *gin.Context) {
	user, api, ok := h.trelloUser(c)
	if !ok {
		return
	}

	boardID := c.Query("board_id")
	if boardID == "" {
		boardID = user.LinkedBoardID
	}
	if boardID == "" {
		c.JSON(http.StatusNotFound, gin.H{"error": "No linked board"})
		return
	}

	labels, err := api.BoardLabels(c.Request.Context(), boardID)
	if err != nil {
		zap.L().Error("Failed to fetch labels", zap.String("boardID", boardID), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Could not fetch labels"})
		return
	}
	if labels == nil {
		labels = []models.Label{}
	}
	c.JSON(http.StatusOK, gin.H{"labels": labels})
}

// RegisterWebhookHandler creates the Trello webhook for (idModel, callbackURL) once and reuses it on
// later registrations, upserting the event configurations either way.
func (h *Handler) RegisterWebhookHandler(c *gin.Context) {
	var req models.WebhookRegistration
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid JSON payload"})
		return
	}
	if req.CallbackURL == "" || req.IDModel == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "callbackURL and idModel are required"})
		return
	}
	events, err := webhookEvents(req.EventSettings)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	_, api, ok := h.trelloUser(c)
	if !ok {
		return
	}
	ctx := c.Request.Context()

	existing, err := h.Store.FindTrelloWebhook(ctx, req.IDModel, req.CallbackURL)
	switch {
	case err == nil:
		if err := h.saveWebhookEvents(ctx, existing.WebhookID, events); err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to save event settings"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"message": "Webhook already exists, event settings updated", "id": existing.WebhookID})
		return
	case !errors.Is(err, database.ErrNotFound):
		zap.L().Error("Failed to look up webhook", zap.String("boardID", req.IDModel), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to look up webhook"})
		return
	}

	webhookID, err := api.RegisterWebhook(ctx, req.IDModel, req.CallbackURL, req.Description)
	if err != nil {
		zap.L().Error("Trello webhook registration failed", zap.String("boardID", req.IDModel), zap.Error(err))
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if err := h.Store.SaveTrelloWebhook(ctx, &models.TrelloWebhook{
		BoardID:     req.IDModel,
		CallbackURL: req.CallbackURL,
		WebhookID:   webhookID,
	}); err != nil {
		zap.L().Error("Failed to record webhook", zap.String("webhookID", webhookID), zap.Error(err))
	}
	if err := h.saveWebhookEvents(ctx, webhookID, events); err != nil {
		zap.L().Error("Failed to record event settings", zap.String("webhookID", webhookID), zap.Error(err))
	}

	zap.L().Info("Registered Trello webhook", zap.String("boardID", req.IDModel), zap.String("webhookID", webhookID))
	c.JSON(http.StatusCreated, gin.H{"message": "Webhook created", "id": webhookID})
}

func webhookEvents(settings []models.EventSetting) ([]models.TrelloWebhookEvent, error) {
	events := make([]models.TrelloWebhookEvent, 0, len(settings))
	for _, s := range settings {
		et, ok := models.ParseEventType(s.EventType)
		if !ok {
			return nil, errors.New("unknown event type: " + s.EventType)
		}
		events = append(events, models.TrelloWebhookEvent{
			EventType:   string(et),
			Enabled:     s.Enabled,
			ExtraConfig: models.JSONMap(s.ExtraConfig),
		})
	}
	return events, nil
}

func (h *Handler) saveWebhookEvents(ctx context.Context, webhookID string, events []models.TrelloWebhookEvent) error {
	for i := range events {
		events[i].WebhookID = webhookID
		if err := h.Store.UpsertWebhookEvent(ctx, &events[i]); err != nil {
			return err
		}
	}
	return nil
}

func (h *Handler) ListWebhooksHandler(c *gin.Context) {
	_, api, ok := h.trelloUser(c)
	if !ok {
		return
	}

	hooks, err := api.ListWebhooks(c.Request.Context())
	if err != nil {
		zap.L().Error("Failed to list webhooks", zap.String("email", userEmail(c)), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Could not fetch webhooks"})
		return
	}
	if hooks == nil {
		hooks = []models.RegisteredWebhook{}
	}
	c.JSON(http.StatusOK, gin.H{"webhooks": hooks})
}

// SetupBoardHandler creates the user's integration board with the configured lists. A user who
// already has one gets it back unchanged.
func (h *Handler) SetupBoardHandler(c *gin.Context) {
	user, api, ok := h.trelloUser(c)
	if !ok {
		return
	}
	ctx := c.Request.Context()

	if board, err := h.Store.GetUserBoard(ctx, user.Email); err == nil {
		c.JSON(http.StatusOK, boardSetup(board, false, "Board already exists"))
		return
	} else if !errors.Is(err, database.ErrNotFound) {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to load board"})
		return
	}

	name, _, _ := strings.Cut(user.Email, "@")
	boardID, err := api.CreateBoard(ctx, name)
	if err != nil {
		zap.L().Error("Failed to create board", zap.String("email", user.Email), zap.Error(err))
		c.JSON(http.StatusBadRequest, gin.H{"error": "Could not setup Trello board"})
		return
	}

	lists := models.JSONMap{}
	for _, listName := range h.Config.Trello.BoardLists {
		listID, err := api.CreateList(ctx, boardID, listName)
		if err != nil {
			zap.L().Error("Failed to create list", zap.String("boardID", boardID), zap.String("list", listName), zap.Error(err))
			c.JSON(http.StatusBadRequest, gin.H{"error": "Could not create list " + listName})
			return
		}
		lists[listName] = listID
	}

	board := &models.UserBoard{UserEmail: user.Email, BoardID: boardID, BoardName: name, Lists: lists}
	if err := h.Store.SaveUserBoard(ctx, board); err != nil {
		zap.L().Error("Failed to save board", zap.String("boardID", boardID), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to save board"})
		return
	}

	zap.L().Info("Created integration board", zap.String("email", user.Email), zap.String("boardID", boardID))
	c.JSON(http.StatusCreated, boardSetup(board, true, "Board created"))
}

func boardSetup(board *models.UserBoard, created bool, msg string) models.BoardSetup {
	lists := make(map[string]string, len(board.Lists))
	for name := range board.Lists {
		if id, ok := board.ListID(name); ok {
			lists[name] = id
		}
	}
	return models.BoardSetup{Message: msg, BoardID: board.BoardID, Name: board.BoardName, Lists: lists, Created: created}
}
