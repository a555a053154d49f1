package config

import (
	"testing"
	"time"
)

func TestLoadAppliesDefaults(t *testing.T) {
	configViper := NewViper()
	configViper.Set("auth.signing_secret", "secret")

	cfg, err := Load(configViper)
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}
	if cfg.HTTPAddress != defaultHTTPAddress || cfg.DatabasePath != defaultDatabasePath {
		t.Fatalf("unexpected defaults %+v", cfg)
	}
	if cfg.AuthIssuer != "notes-auth" || cfg.AuthAudience != "notes-api" || cfg.AuthCookieName != "token" {
		t.Fatalf("unexpected auth defaults %+v", cfg)
	}
	if cfg.AuthTokenTTL != 24*time.Hour {
		t.Fatalf("unexpected ttl %s", cfg.AuthTokenTTL)
	}
	if len(cfg.CORSAllowedOrigins) != 2 || cfg.CORSAllowedOrigins[0] != "http://localhost:5173" {
		t.Fatalf("unexpected origins %v", cfg.CORSAllowedOrigins)
	}
	if cfg.RealtimeSendBuffer != defaultSendBuffer {
		t.Fatalf("unexpected send buffer %d", cfg.RealtimeSendBuffer)
	}
}

func TestLoadReadsEnvironment(t *testing.T) {
	t.Setenv("NOTES_AUTH_SIGNING_SECRET", "env-secret")
	t.Setenv("NOTES_HTTP_ADDRESS", "127.0.0.1:9000")
	t.Setenv("NOTES_CORS_ALLOWED_ORIGINS", "https://a.example.com, https://b.example.com")
	t.Setenv("NOTES_SHARE_BASE_URL", "https://notes.example.com/")

	cfg, err := Load(NewViper())
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}
	if cfg.AuthSigningSecret != "env-secret" || cfg.HTTPAddress != "127.0.0.1:9000" {
		t.Fatalf("unexpected config %+v", cfg)
	}
	if len(cfg.CORSAllowedOrigins) != 2 || cfg.CORSAllowedOrigins[1] != "https://b.example.com" {
		t.Fatalf("unexpected origins %v", cfg.CORSAllowedOrigins)
	}
	if cfg.ShareBaseURL != "https://notes.example.com" {
		t.Fatalf("unexpected share base url %q", cfg.ShareBaseURL)
	}
}

func TestLoadValidates(t *testing.T) {
	testCases := map[string]map[string]any{
		"missing-secret": {},
		"blank-cookie":   {"auth.signing_secret": "s", "auth.cookie_name": " "},
		"zero-ttl":       {"auth.signing_secret": "s", "auth.token_ttl_minutes": 0},
		"zero-buffer":    {"auth.signing_secret": "s", "realtime.send_buffer": 0},
		"blank-database": {"auth.signing_secret": "s", "database.path": ""},
	}
	for name, overrides := range testCases {
		t.Run(name, func(t *testing.T) {
			configViper := NewViper()
			for key, value := range overrides {
				configViper.Set(key, value)
			}
			if _, err := Load(configViper); err == nil {
				t.Fatalf("expected validation error")
			}
		})
	}
}
