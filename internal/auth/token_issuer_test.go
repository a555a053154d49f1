package auth

import (
	"context"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

func TestTokenIssuerIssuesAccessTokens(t *testing.T) {
	issuer, err := NewTokenIssuer(TokenIssuerConfig{
		SigningSecret: []byte("super-secret"),
		Issuer:        "notes-auth",
		Audience:      "notes-api",
		TokenTTL:      30 * time.Minute,
	})
	if err != nil {
		t.Fatalf("unexpected constructor error: %v", err)
	}

	tokenString, expiresIn, err := issuer.IssueToken(context.Background(), Subject{
		UserID: "user-123",
		Email:  "user@example.com",
		Role:   "USER",
	})
	if err != nil {
		t.Fatalf("expected successful issuance: %v", err)
	}

	if expiresIn != int64((30 * time.Minute).Seconds()) {
		t.Fatalf("unexpected expiry seconds %d", expiresIn)
	}

	parser := jwt.Parser{}
	claims := &SessionClaims{}

	_, err = parser.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (interface{}, error) {
		return []byte("super-secret"), nil
	})
	if err != nil {
		t.Fatalf("failed to parse generated token: %v", err)
	}

	if claims.Subject != "user-123" || claims.UserID != "user-123" {
		t.Fatalf("unexpected subject %s / %s", claims.Subject, claims.UserID)
	}
	if claims.UserEmail != "user@example.com" {
		t.Fatalf("unexpected email %s", claims.UserEmail)
	}
	if claims.Issuer != "notes-auth" {
		t.Fatalf("unexpected issuer %s", claims.Issuer)
	}
	if len(claims.Audience) == 0 || claims.Audience[0] != "notes-api" {
		t.Fatalf("unexpected audience %#v", claims.Audience)
	}
}

func TestTokenIssuerRejectsMissingSubject(t *testing.T) {
	issuer, err := NewTokenIssuer(TokenIssuerConfig{
		SigningSecret: []byte("secret"),
		Issuer:        "notes-auth",
		Audience:      "notes-api",
		TokenTTL:      time.Minute,
	})
	if err != nil {
		t.Fatalf("unexpected constructor error: %v", err)
	}
	if _, _, err := issuer.IssueToken(context.Background(), Subject{UserID: "  "}); err == nil {
		t.Fatalf("expected error for missing subject")
	}
}

func TestNewTokenIssuerValidatesConfig(t *testing.T) {
	testCases := []struct {
		name   string
		config TokenIssuerConfig
	}{
		{name: "missing-secret", config: TokenIssuerConfig{Issuer: "notes-auth", Audience: "notes-api", TokenTTL: time.Minute}},
		{name: "missing-issuer", config: TokenIssuerConfig{SigningSecret: []byte("secret"), Audience: "notes-api", TokenTTL: time.Minute}},
		{name: "blank-audience", config: TokenIssuerConfig{SigningSecret: []byte("secret"), Issuer: "notes-auth", Audience: " ", TokenTTL: time.Minute}},
		{name: "zero-ttl", config: TokenIssuerConfig{SigningSecret: []byte("secret"), Issuer: "notes-auth", Audience: "notes-api"}},
	}
	for _, testCase := range testCases {
		t.Run(testCase.name, func(t *testing.T) {
			if _, err := NewTokenIssuer(testCase.config); err == nil {
				t.Fatalf("expected constructor error")
			}
		})
	}
}
