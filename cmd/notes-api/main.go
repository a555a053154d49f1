package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/enpointe/notes/internal/auth"
	"github.com/enpointe/notes/internal/config"
	"github.com/enpointe/notes/internal/database"
	"github.com/enpointe/notes/internal/logging"
	"github.com/enpointe/notes/internal/notes"
	"github.com/enpointe/notes/internal/realtime"
	"github.com/enpointe/notes/internal/server"
	"github.com/enpointe/notes/internal/users"
)

const shutdownTimeout = 10 * time.Second

var (
	cfgFile string
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "notes-api",
		Short: "Collaborative notes backend service",
		PreRunE: func(cmd *cobra.Command, args []string) error {
			return initConfig()
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer(cmd.Context())
		},
	}

	setupFlags(rootCmd)

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func setupFlags(cmd *cobra.Command) {
	config.ApplyDefaults(viper.GetViper())
	defaults := config.NewViper()
	flags := cmd.PersistentFlags()
	flags.StringVar(&cfgFile, "config", "", "Path to configuration file")
	flags.String("http-address", defaults.GetString("http.address"), "HTTP listen address")
	flags.String("database-path", defaults.GetString("database.path"), "SQLite database path")
	flags.String("log-level", defaults.GetString("log.level"), "Log level (debug, info, warn, error)")
	flags.String("signing-secret", "", "Access token signing secret (overrides env)")
	flags.String("auth-issuer", defaults.GetString("auth.issuer"), "Access token issuer")
	flags.String("auth-audience", defaults.GetString("auth.audience"), "Access token audience")
	flags.String("cookie-name", defaults.GetString("auth.cookie_name"), "Session cookie name")
	flags.Int("token-ttl-minutes", defaults.GetInt("auth.token_ttl_minutes"), "Access token TTL in minutes")
	flags.String("share-base-url", defaults.GetString("share.base_url"), "Base URL used to build share links")
	flags.StringSlice("allowed-origins", defaults.GetStringSlice("cors.allowed_origins"), "Allowed CORS and websocket origins")
	flags.Int("send-buffer", defaults.GetInt("realtime.send_buffer"), "Outbound event queue size per realtime session")

	bindFlag(cmd, "http.address", "http-address")
	bindFlag(cmd, "database.path", "database-path")
	bindFlag(cmd, "log.level", "log-level")
	bindFlag(cmd, "auth.signing_secret", "signing-secret")
	bindFlag(cmd, "auth.issuer", "auth-issuer")
	bindFlag(cmd, "auth.audience", "auth-audience")
	bindFlag(cmd, "auth.cookie_name", "cookie-name")
	bindFlag(cmd, "auth.token_ttl_minutes", "token-ttl-minutes")
	bindFlag(cmd, "share.base_url", "share-base-url")
	bindFlag(cmd, "cors.allowed_origins", "allowed-origins")
	bindFlag(cmd, "realtime.send_buffer", "send-buffer")
}

func bindFlag(cmd *cobra.Command, key, flag string) {
	if err := viper.BindPFlag(key, cmd.PersistentFlags().Lookup(flag)); err != nil {
		panic(err)
	}
}

func initConfig() error {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	}

	if err := viper.ReadInConfig(); err != nil {
		var configNotFound viper.ConfigFileNotFoundError
		if cfgFile != "" && errors.As(err, &configNotFound) {
			return err
		}
	}

	return nil
}

func runServer(ctx context.Context) error {
	appConfig, err := config.Load(viper.GetViper())
	if err != nil {
		return err
	}

	logger, err := logging.NewLogger(appConfig.LogLevel)
	if err != nil {
		return err
	}
	defer logger.Sync() //nolint:errcheck

	db, err := database.OpenSQLite(appConfig.DatabasePath, logger)
	if err != nil {
		return err
	}
	sqlDB, err := db.DB()
	if err != nil {
		return err
	}
	defer sqlDB.Close()

	tokenIssuer, err := auth.NewTokenIssuer(auth.TokenIssuerConfig{
		SigningSecret: []byte(appConfig.AuthSigningSecret),
		Issuer:        appConfig.AuthIssuer,
		Audience:      appConfig.AuthAudience,
		TokenTTL:      appConfig.AuthTokenTTL,
	})
	if err != nil {
		return err
	}

	sessionValidator, err := auth.NewSessionValidator(auth.SessionValidatorConfig{
		SigningSecret: []byte(appConfig.AuthSigningSecret),
		Issuer:        appConfig.AuthIssuer,
		Audience:      appConfig.AuthAudience,
		CookieName:    appConfig.AuthCookieName,
	})
	if err != nil {
		return err
	}

	usersService, err := users.NewService(users.ServiceConfig{
		Database: db,
		Hasher:   auth.NewPasswordHasher(0),
		Clock:    time.Now,
		Logger:   logger,
	})
	if err != nil {
		return err
	}

	notesService, err := notes.NewService(notes.ServiceConfig{
		Database:    db,
		Clock:       time.Now,
		IDProvider:  notes.NewUUIDProvider(),
		TokenSource: notes.NewRandomTokenSource(),
		Logger:      logger,
	})
	if err != nil {
		return err
	}

	realtimeHandler, err := newRealtimeTransport(appConfig, sessionValidator, notesService, logger)
	if err != nil {
		return err
	}

	handler, err := server.NewHTTPHandler(server.Dependencies{
		SessionValidator: sessionValidator,
		TokenIssuer:      tokenIssuer,
		UsersService:     usersService,
		NotesService:     notesService,
		Realtime:         realtimeHandler,
		CookieName:       appConfig.AuthCookieName,
		SecureCookies:    strings.HasPrefix(appConfig.ShareBaseURL, "https://"),
		AllowedOrigins:   appConfig.CORSAllowedOrigins,
		ShareBaseURL:     appConfig.ShareBaseURL,
		Logger:           logger,
	})
	if err != nil {
		return err
	}

	httpServer := &http.Server{
		Addr:              appConfig.HTTPAddress,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	signalCtx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		logger.Info("server starting", zap.String("address", appConfig.HTTPAddress))
		err := httpServer.ListenAndServe()
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-signalCtx.Done():
		logger.Info("server shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return httpServer.Shutdown(shutdownCtx)
	case err := <-errCh:
		return err
	}
}

func newRealtimeTransport(appConfig config.AppConfig, validator *auth.SessionValidator, store realtime.NoteStore, logger *zap.Logger) (*realtime.Transport, error) {
	gatekeeper, err := realtime.NewGatekeeper(realtime.GatekeeperConfig{
		Validator:  validator,
		CookieName: appConfig.AuthCookieName,
		Logger:     logger,
	})
	if err != nil {
		return nil, err
	}
	coordinator, err := realtime.NewCoordinator(realtime.CoordinatorConfig{
		Store:    store,
		Registry: realtime.NewRegistry(),
		Logger:   logger,
	})
	if err != nil {
		return nil, err
	}
	return realtime.NewTransport(realtime.TransportConfig{
		Gatekeeper:     gatekeeper,
		Coordinator:    coordinator,
		AllowedOrigins: appConfig.CORSAllowedOrigins,
		SendBuffer:     appConfig.RealtimeSendBuffer,
		Logger:         logger,
	})
}
