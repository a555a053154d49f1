package server

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/enpointe/notes/internal/auth"
	"github.com/enpointe/notes/internal/users"
)

type credentialsPayload struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type userPayload struct {
	UserID           string `json:"user_id"`
	Email            string `json:"email"`
	Role             string `json:"role"`
	CreatedAtSeconds int64  `json:"created_at_s"`
}

type authResponsePayload struct {
	User        userPayload `json:"user"`
	AccessToken string      `json:"access_token"`
	ExpiresIn   int64       `json:"expires_in"`
	TokenType   string      `json:"token_type"`
}

func (h *httpHandler) handleRegister(c *gin.Context) {
	var request credentialsPayload
	if err := c.ShouldBindJSON(&request); err != nil || strings.TrimSpace(request.Email) == "" || request.Password == "" {
		badRequest(c)
		return
	}
	user, err := h.users.Register(c.Request.Context(), request.Email, request.Password)
	if err != nil {
		h.respondError(c, err, "registration_failed")
		return
	}
	h.respondWithToken(c, http.StatusCreated, user)
}

func (h *httpHandler) handleLogin(c *gin.Context) {
	var request credentialsPayload
	if err := c.ShouldBindJSON(&request); err != nil || strings.TrimSpace(request.Email) == "" || request.Password == "" {
		badRequest(c)
		return
	}
	user, err := h.users.Authenticate(c.Request.Context(), request.Email, request.Password)
	if err != nil {
		h.respondError(c, err, "login_failed")
		return
	}
	h.respondWithToken(c, http.StatusOK, user)
}

func (h *httpHandler) handleLogout(c *gin.Context) {
	c.SetSameSite(http.SameSiteLaxMode)
	c.SetCookie(h.cookieName, "", -1, "/", "", h.secureCookies, true)
	c.Status(http.StatusNoContent)
}

func (h *httpHandler) respondWithToken(c *gin.Context, status int, user users.User) {
	token, expiresIn, err := h.tokens.IssueToken(c.Request.Context(), auth.Subject{
		UserID: user.UserID,
		Email:  user.Email,
		Role:   user.Role,
	})
	if err != nil {
		h.logger.Error("failed to issue access token", zap.String("user_id", user.UserID), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "token_issue_failed"})
		return
	}
	c.SetSameSite(http.SameSiteLaxMode)
	c.SetCookie(h.cookieName, token, int(expiresIn), "/", "", h.secureCookies, true)
	c.JSON(status, authResponsePayload{
		User:        newUserPayload(user),
		AccessToken: token,
		ExpiresIn:   expiresIn,
		TokenType:   "Bearer",
	})
}

func newUserPayload(user users.User) userPayload {
	return userPayload{
		UserID:           user.UserID,
		Email:            user.Email,
		Role:             user.Role,
		CreatedAtSeconds: user.CreatedAtSeconds,
	}
}
