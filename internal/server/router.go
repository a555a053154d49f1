package server

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/enpointe/notes/internal/auth"
	"github.com/enpointe/notes/internal/notes"
	"github.com/enpointe/notes/internal/users"
)

const (
	userIDContextKey    = "notes_user_id"
	userEmailContextKey = "notes_user_email"
)

var (
	errMissingSessionValidator = errors.New("session validator dependency required")
	errMissingTokenIssuer      = errors.New("token issuer dependency required")
	errMissingUsersService     = errors.New("users service dependency required")
	errMissingNotesService     = errors.New("notes service dependency required")
)

// SessionValidator authenticates requests from their bearer header or session cookie.
type SessionValidator interface {
	ValidateRequest(r *http.Request) (auth.SessionClaims, error)
}

// TokenIssuer signs access tokens for authenticated users.
type TokenIssuer interface {
	IssueToken(ctx context.Context, subject auth.Subject) (string, int64, error)
}

// AccountService registers and authenticates users and resolves their emails.
type AccountService interface {
	Register(ctx context.Context, email, password string) (users.User, error)
	Authenticate(ctx context.Context, email, password string) (users.User, error)
	FindByEmail(ctx context.Context, email string) (users.User, error)
	EmailsByID(ctx context.Context, userIDs []string) (map[string]string, error)
}

type Dependencies struct {
	SessionValidator SessionValidator
	TokenIssuer      TokenIssuer
	UsersService     AccountService
	NotesService     *notes.Service
	Realtime         http.Handler
	CookieName       string
	SecureCookies    bool
	AllowedOrigins   []string
	ShareBaseURL     string
	Logger           *zap.Logger
}

func NewHTTPHandler(deps Dependencies) (http.Handler, error) {
	if deps.SessionValidator == nil {
		return nil, errMissingSessionValidator
	}
	if deps.TokenIssuer == nil {
		return nil, errMissingTokenIssuer
	}
	if deps.UsersService == nil {
		return nil, errMissingUsersService
	}
	if deps.NotesService == nil {
		return nil, errMissingNotesService
	}

	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	cookieName := deps.CookieName
	if cookieName == "" {
		cookieName = "token"
	}

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(corsMiddleware(deps.AllowedOrigins))

	handler := &httpHandler{
		sessions:      deps.SessionValidator,
		tokens:        deps.TokenIssuer,
		users:         deps.UsersService,
		notesService:  deps.NotesService,
		cookieName:    cookieName,
		secureCookies: deps.SecureCookies,
		shareBaseURL:  deps.ShareBaseURL,
		logger:        logger,
	}

	router.GET("/healthz", handler.handleHealth)
	if deps.Realtime != nil {
		router.GET("/ws", gin.WrapH(deps.Realtime))
	}

	api := router.Group("/api")
	api.POST("/auth/register", handler.handleRegister)
	api.POST("/auth/login", handler.handleLogin)
	api.POST("/auth/logout", handler.handleLogout)
	api.GET("/share/:token", handler.handleOpenShareLink)

	protected := api.Group("/")
	protected.Use(handler.authorizeRequest)
	protected.POST("/notes", handler.handleCreateNote)
	protected.GET("/notes", handler.handleListNotes)
	protected.GET("/notes/:id", handler.handleGetNote)
	protected.PUT("/notes/:id", handler.handleUpdateNote)
	protected.DELETE("/notes/:id", handler.handleDeleteNote)
	protected.GET("/notes/:id/collaborators", handler.handleListCollaborators)
	protected.GET("/notes/:id/activity", handler.handleListActivity)
	protected.POST("/collaborators", handler.handleAddCollaborator)
	protected.PUT("/collaborators/:id", handler.handleUpdateCollaborator)
	protected.DELETE("/collaborators/:id", handler.handleRemoveCollaborator)
	protected.POST("/share", handler.handleCreateShareLink)

	return router, nil
}

type httpHandler struct {
	sessions      SessionValidator
	tokens        TokenIssuer
	users         AccountService
	notesService  *notes.Service
	cookieName    string
	secureCookies bool
	shareBaseURL  string
	logger        *zap.Logger
}

func (h *httpHandler) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func corsMiddleware(allowedOrigins []string) gin.HandlerFunc {
	config := cors.Config{
		AllowMethods:     []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete, http.MethodOptions},
		AllowHeaders:     []string{"Authorization", "Content-Type"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}
	if len(allowedOrigins) == 0 {
		config.AllowOriginFunc = func(string) bool { return true }
	} else {
		config.AllowOrigins = allowedOrigins
	}
	return cors.New(config)
}

func (h *httpHandler) authorizeRequest(c *gin.Context) {
	claims, err := h.sessions.ValidateRequest(c.Request)
	if err != nil {
		switch {
		case errors.Is(err, auth.ErrMissingSessionToken):
			// no token presented
		case errors.Is(err, auth.ErrExpiredSessionToken):
			h.logger.Info("token validation failed", zap.Error(err))
		default:
			h.logger.Warn("token validation failed", zap.Error(err))
		}
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}
	c.Set(userIDContextKey, claims.UserID)
	c.Set(userEmailContextKey, claims.UserEmail)
	c.Next()
}

func (h *httpHandler) currentUserID(c *gin.Context) (notes.UserID, bool) {
	userID, err := notes.NewUserID(c.GetString(userIDContextKey))
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return "", false
	}
	return userID, true
}
