package api

import (
	"net/http"
	"strings"

	"github.com/chxlky/trello-webhook-panel/internal/models"
	"github.com/gin-contrib/sessions"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

type loginRequest struct {
	Credential string `json:"credential"`
	Email      string `json:"email"`
}

func (h *Handler) LoginHandler(c *gin.Context) {
	var req loginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid JSON payload"})
		return
	}

	var email string
	if h.Identity != nil {
		verified, err := h.Identity.VerifyEmail(c.Request.Context(), req.Credential)
		if err != nil {
			zap.L().Warn("Google sign-in rejected", zap.Error(err))
			c.JSON(http.StatusUnauthorized, gin.H{"error": "Invalid Google credential"})
			return
		}
		email = verified
	} else {
		email = req.Email
	}
	email = strings.ToLower(strings.TrimSpace(email))
	if !strings.Contains(email, "@") {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Email is required"})
		return
	}

	if _, err := h.Store.EnsureUser(c.Request.Context(), email); err != nil {
		zap.L().Error("Failed to create user", zap.String("email", email), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to create user"})
		return
	}

	session := sessions.Default(c)
	session.Set(sessionUserKey, email)
	if err := session.Save(); err != nil {
		zap.L().Error("Failed to save session", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to save session"})
		return
	}

	zap.L().Info("User logged in", zap.String("email", email))
	c.JSON(http.StatusOK, gin.H{"message": "Login successful", "email": email})
}

func (h *Handler) LogoutHandler(c *gin.Context) {
	session := sessions.Default(c)
	session.Clear()
	session.Options(sessions.Options{Path: "/", MaxAge: -1})
	if err := session.Save(); err != nil {
		zap.L().Error("Failed to clear session", zap.Error(err))
	}
	c.JSON(http.StatusOK, gin.H{"message": "Logged out successfully"})
}

// SessionHandler reports the sign-in state the panel gates its surfaces on.
func (h *Handler) SessionHandler(c *gin.Context) {
	email, _ := sessions.Default(c).Get(sessionUserKey).(string)
	if email == "" {
		c.JSON(http.StatusOK, models.SessionInfo{})
		return
	}

	info := models.SessionInfo{Authenticated: true, Email: email}
	if user, err := h.Store.GetUser(c.Request.Context(), email); err == nil {
		info.TrelloLinked = user.TrelloLinked()
	}
	c.JSON(http.StatusOK, info)
}

type linkTrelloRequest struct {
	APIKey string `json:"apiKey"`
	Token  string `json:"token"`
}

func (h *Handler) LinkTrelloHandler(c *gin.Context) {
	var req linkTrelloRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.APIKey == "" || req.Token == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "apiKey and token are required"})
		return
	}

	if err := h.Store.LinkTrello(c.Request.Context(), userEmail(c), req.APIKey, req.Token); err != nil {
		zap.L().Error("Failed to link Trello", zap.String("email", userEmail(c)), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to save Trello credentials"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Trello credentials saved"})
}
