package api

import (
	"net/http"
	"time"

	"github.com/chxlky/trello-webhook-panel/database"
	"github.com/chxlky/trello-webhook-panel/integrations"
	"github.com/chxlky/trello-webhook-panel/internal/config"
	"github.com/chxlky/trello-webhook-panel/internal/models"
	"github.com/chxlky/trello-webhook-panel/internal/queue"
	"github.com/gin-contrib/cors"
	"github.com/gin-contrib/sessions"
	"github.com/gin-contrib/sessions/cookie"
	ginzap "github.com/gin-contrib/zap"
	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const (
	sessionUserKey = "user_email"
	ctxUserEmail   = "userEmail"
)

type Handler struct {
	Store    *database.Store
	Trello   integrations.TrelloFactory
	Identity integrations.IdentityVerifier // nil allows email-only login
	Queue    queue.Producer
	Redis    *redis.Client // only used by the health check
	Config   config.Config
}

// NewRouter builds the gin engine with logging, recovery, CORS and session middleware and every
// route of the panel backend.
func NewRouter(h *Handler, logger *zap.Logger) *gin.Engine {
	router := gin.New()
	router.Use(ginzap.Ginzap(logger, time.RFC3339, true))
	router.Use(ginzap.RecoveryWithZap(logger, true))

	if len(h.Config.Server.AllowedOrigins) > 0 {
		router.Use(cors.New(cors.Config{
			AllowOrigins:     h.Config.Server.AllowedOrigins,
			AllowMethods:     []string{"GET", "POST", "DELETE", "HEAD", "OPTIONS"},
			AllowHeaders:     []string{"Origin", "Content-Type", "Accept"},
			ExposeHeaders:    []string{"Content-Length"},
			AllowCredentials: true,
			MaxAge:           12 * time.Hour,
		}))
	}

	store := cookie.NewStore([]byte(h.Config.Session.Secret))
	store.Options(sessions.Options{
		Path:     "/",
		MaxAge:   h.Config.Session.MaxAge,
		HttpOnly: true,
		Secure:   h.Config.Session.Secure,
		SameSite: http.SameSiteLaxMode,
	})
	router.Use(sessions.Sessions(h.Config.Session.CookieName, store))

	h.RegisterRoutes(router)
	return router
}

func (h *Handler) RegisterRoutes(router *gin.Engine) {
	router.GET("/health", h.HealthCheckHandler)

	apiGroup := router.Group("/api")
	{
		apiGroup.POST("/login", h.LoginHandler)
		apiGroup.GET("/session", h.SessionHandler)
		apiGroup.POST("/logout", h.requireUser, h.LogoutHandler)
		apiGroup.POST("/users/trello", h.requireUser, h.LinkTrelloHandler)

		apiGroup.GET("/webhook-settings", h.requireUser, h.ListSettingsHandler)
		apiGroup.POST("/webhook-settings", h.requireUser, h.CreateSettingHandler)
		apiGroup.DELETE("/webhook-settings/:id", h.requireUser, h.DeleteSettingHandler)

		apiGroup.HEAD("/trello-webhook", h.TrelloWebhookHandler)
		apiGroup.GET("/trello-webhook", h.TrelloWebhookHandler)
		apiGroup.POST("/trello-webhook", h.TrelloWebhookHandler)
		apiGroup.GET("/health", h.HealthCheckHandler)
	}

	// The browser panel calls some Trello routes with the /api prefix and some without.
	for _, prefix := range []string{"/api/trello", "/trello"} {
		trelloGroup := router.Group(prefix, h.requireUser)
		trelloGroup.POST("/verify", h.VerifyTrelloHandler)
		trelloGroup.POST("/boards", h.BoardsHandler)
		trelloGroup.GET("/labels", h.LabelsHandler)
		trelloGroup.POST("/webhooks", h.RegisterWebhookHandler)
		trelloGroup.GET("/webhooks", h.ListWebhooksHandler)
		trelloGroup.POST("/setup-board", h.SetupBoardHandler)
	}

	if dir := h.Config.Server.StaticDir; dir != "" {
		router.NoRoute(staticHandler(dir))
	}
}

func (h *Handler) requireUser(c *gin.Context) {
	email, _ := sessions.Default(c).Get(sessionUserKey).(string)
	if email == "" {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Not authenticated"})
		return
	}
	c.Set(ctxUserEmail, email)
	c.Next()
}

func userEmail(c *gin.Context) string {
	return c.GetString(ctxUserEmail)
}

// trelloUser loads the signed-in user and a Trello client for them. It writes the error response and
// returns false when the user is missing or has not linked Trello.
func (h *Handler) trelloUser(c *gin.Context) (*models.User, integrations.TrelloAPI, bool) {
	user, err := h.Store.GetUser(c.Request.Context(), userEmail(c))
	if err != nil {
		zap.L().Warn("Session user not found", zap.String("email", userEmail(c)), zap.Error(err))
		c.JSON(http.StatusUnauthorized, gin.H{"error": "User not found"})
		return nil, nil, false
	}
	if !user.TrelloLinked() {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Trello not linked"})
		return nil, nil, false
	}
	return user, h.Trello(user.APIKey, user.Token), true
}
