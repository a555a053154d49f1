package realtime

import (
	"errors"
	"net/http"
	"strings"

	"go.uber.org/zap"

	"github.com/enpointe/notes/internal/auth"
	"github.com/enpointe/notes/internal/notes"
)

// ErrUnauthenticated indicates a connection attempt without a valid identity token.
var ErrUnauthenticated = errors.New("realtime: unauthenticated")

var queryTokenParameters = []string{"token", "access_token"}

// TokenValidator verifies identity tokens.
type TokenValidator interface {
	ValidateToken(token string) (auth.SessionClaims, error)
}

type GatekeeperConfig struct {
	Validator  TokenValidator
	CookieName string
	Logger     *zap.Logger
}

// Gatekeeper authenticates connection attempts before a session exists.
type Gatekeeper struct {
	validator  TokenValidator
	cookieName string
	logger     *zap.Logger
}

func NewGatekeeper(cfg GatekeeperConfig) (*Gatekeeper, error) {
	if cfg.Validator == nil {
		return nil, errors.New("realtime: token validator is required")
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Gatekeeper{
		validator:  cfg.Validator,
		cookieName: strings.TrimSpace(cfg.CookieName),
		logger:     logger,
	}, nil
}

// Admit returns the identity carried by the request's token. The token is read from the token or
// access_token query parameter, then the Authorization header, then the session cookie.
func (g *Gatekeeper) Admit(r *http.Request) (Identity, error) {
	token := g.extractToken(r)
	if token == "" {
		g.logger.Debug("realtime connection without token")
		return Identity{}, ErrUnauthenticated
	}
	claims, err := g.validator.ValidateToken(token)
	if err != nil {
		if errors.Is(err, auth.ErrExpiredSessionToken) {
			g.logger.Info("realtime token expired", zap.Error(err))
		} else {
			g.logger.Warn("realtime token rejected", zap.Error(err))
		}
		return Identity{}, ErrUnauthenticated
	}
	userID, err := notes.NewUserID(claims.UserID)
	if err != nil {
		g.logger.Warn("realtime token subject invalid", zap.Error(err))
		return Identity{}, ErrUnauthenticated
	}
	return Identity{UserID: userID, Email: claims.UserEmail}, nil
}

func (g *Gatekeeper) extractToken(r *http.Request) string {
	if r == nil {
		return ""
	}
	query := r.URL.Query()
	for _, name := range queryTokenParameters {
		if token := strings.TrimSpace(query.Get(name)); token != "" {
			return token
		}
	}
	if token := auth.BearerToken(r.Header.Get("Authorization")); token != "" {
		return token
	}
	if g.cookieName == "" {
		return ""
	}
	cookie, err := r.Cookie(g.cookieName)
	if err != nil || cookie == nil {
		return ""
	}
	return strings.TrimSpace(cookie.Value)
}
