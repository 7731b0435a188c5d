package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"github.com/xevora/storefront/internal/identity"
	"github.com/xevora/storefront/internal/profile"
	"github.com/xevora/storefront/internal/web"
	"go.uber.org/zap"
)

var serveHTTP = func(server *http.Server) error {
	return server.ListenAndServe()
}

var buildGoogleTokenValidator = func(ctx context.Context) (identity.GoogleTokenValidator, error) {
	return identity.NewGoogleTokenValidator(ctx)
}

var buildAppleVerifier = func(ctx context.Context, servicesID string) (identity.IDTokenVerifier, error) {
	return identity.NewAppleVerifier(ctx, servicesID)
}

func main() {
	if err := newRootCommand().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:     "xevora",
		Short:   "Xevora storefront with email, Google and Apple sign-in",
		PreRunE: prepareServerConfig,
		RunE:    runServer,
	}

	rootCmd.Flags().String("listen_addr", ":8080", "HTTP listen address")
	rootCmd.Flags().String("base_url", "", "Public base URL; derived from the request when empty")
	rootCmd.Flags().String("cookie_domain", "", "Cookie domain; empty for host-only")
	rootCmd.Flags().String("jwt_signing_key", "", "HS256 signing secret for the session cookie")
	rootCmd.Flags().Duration("session_ttl", 7*24*time.Hour, "Session cookie lifetime")
	rootCmd.Flags().Duration("nonce_ttl", 5*time.Minute, "Nonce lifetime for social sign-in exchanges")
	rootCmd.Flags().Bool("dev_insecure_http", false, "Allow insecure HTTP for local dev")
	rootCmd.Flags().Bool("enable_cors", false, "Enable CORS for cross-origin storefront clients")
	rootCmd.Flags().StringSlice("cors_allowed_origins", []string{}, "Allowed origins when CORS is enabled (required if enable_cors is true)")
	rootCmd.Flags().String("identity_backend", identityBackendLocal, "Identity platform: local or firebase")
	rootCmd.Flags().String("firebase_api_key", "", "Firebase Web API key (identity_backend=firebase)")
	rootCmd.Flags().String("google_web_client_id", "", "Google Web OAuth Client ID; empty disables Google sign-in")
	rootCmd.Flags().String("apple_services_id", "", "Sign in with Apple services ID; empty disables Apple sign-in")
	rootCmd.Flags().String("database_url", "", "Database URL for accounts and credential tokens (postgres:// or sqlite://; empty for in-memory sqlite)")
	rootCmd.Flags().String("redis_url", "", "Redis URL for nonces, attempt limits and the redis profile store")
	rootCmd.Flags().String("profile_store", profileStoreMemory, "Profile mirror store: memory, gorm, redis or postgres")
	rootCmd.Flags().Duration("profile_mirror_timeout", profile.DefaultMirrorTimeout, "Upper bound for a background profile write")
	rootCmd.Flags().Bool("enumeration_protection", true, "Report unknown accounts and wrong passwords alike (local backend)")
	rootCmd.Flags().String("reset_url", "", "Password reset link base (local backend); defaults to <base_url>/auth/reset")
	rootCmd.Flags().String("smtp_host", "", "SMTP host for password reset email (local backend)")
	rootCmd.Flags().Int("smtp_port", 587, "SMTP port")
	rootCmd.Flags().String("smtp_username", "", "SMTP username")
	rootCmd.Flags().String("smtp_password", "", "SMTP password")
	rootCmd.Flags().String("smtp_from", "", "Sender address for password reset email")

	rootCmd.Flags().VisitAll(func(flag *pflag.Flag) {
		_ = viper.BindPFlag(flag.Name, flag)
	})

	viper.SetEnvPrefix("APP")
	viper.AutomaticEnv()

	return rootCmd
}

const (
	identityBackendLocal    = "local"
	identityBackendFirebase = "firebase"

	profileStoreMemory   = "memory"
	profileStoreGorm     = "gorm"
	profileStoreRedis    = "redis"
	profileStorePostgres = "postgres"

	sessionIssuer      = "xevora"
	inMemoryDatabase   = "sqlite:file:xevora?mode=memory&cache=shared"
	shutdownGrace      = 10 * time.Second
	readHeaderTimeout  = 10 * time.Second
	defaultResetSuffix = "/auth/reset"

	configCodeMissingJWTSigningKey    = "config.missing_jwt_signing_key"
	configCodeInvalidSessionTTL       = "config.invalid_session_ttl"
	configCodeInvalidMirrorTimeout    = "config.invalid_profile_mirror_timeout"
	configCodeInvalidIdentityBackend  = "config.invalid_identity_backend"
	configCodeMissingFirebaseAPIKey   = "config.missing_firebase_api_key"
	configCodeInvalidProfileStore     = "config.invalid_profile_store"
	configCodeMissingRedisURL         = "config.missing_redis_url"
	configCodeMissingPostgresURL      = "config.missing_postgres_url"
	configCodeMissingCORSOrigins      = "config.missing_cors_allowed_origins"
	configCodeInvalidSMTPPort         = "config.invalid_smtp_port"
	configCodeUninitializedServerConf = "config.uninitialized_server_config"
	configCodeGoogleValidatorInit     = "config.google_validator_init"
	configCodeAppleVerifierInit       = "config.apple_verifier_init"
)

// ServerConfig is the validated process configuration.
type ServerConfig struct {
	ListenAddr            string
	BaseURL               string
	CookieDomain          string
	SigningKey            []byte
	SessionTTL            time.Duration
	NonceTTL              time.Duration
	AllowInsecureHTTP     bool
	EnableCORS            bool
	CORSAllowedOrigins    []string
	IdentityBackend       string
	FirebaseAPIKey        string
	GoogleWebClientID     string
	AppleServicesID       string
	DatabaseURL           string
	RedisURL              string
	ProfileStore          string
	MirrorTimeout         time.Duration
	EnumerationProtection bool
	ResetURL              string
	SMTP                  identity.SMTPConfig
}

type contextKey string

const serverConfigContextKey contextKey = "serverConfig"

func prepareServerConfig(command *cobra.Command, arguments []string) error {
	serverConfig, loadErr := LoadServerConfig()
	if loadErr != nil {
		return loadErr
	}
	existingContext := command.Context()
	if existingContext == nil {
		existingContext = context.Background()
	}
	command.SetContext(context.WithValue(existingContext, serverConfigContextKey, serverConfig))
	return nil
}

func configError(code, message string) error {
	return fmt.Errorf("%s: %s", code, message)
}

// LoadServerConfig reads and validates the viper-bound settings.
func LoadServerConfig() (ServerConfig, error) {
	jwtSigningKey := viper.GetString("jwt_signing_key")
	if jwtSigningKey == "" {
		return ServerConfig{}, configError(configCodeMissingJWTSigningKey, "jwt_signing_key must be provided")
	}

	sessionTTL := viper.GetDuration("session_ttl")
	if sessionTTL <= 0 {
		return ServerConfig{}, configError(configCodeInvalidSessionTTL, "session_ttl must be greater than zero")
	}

	nonceTTL := 5 * time.Minute
	if configuredNonceTTL := viper.GetDuration("nonce_ttl"); configuredNonceTTL > 0 {
		nonceTTL = configuredNonceTTL
	}

	mirrorTimeout := profile.DefaultMirrorTimeout
	if viper.IsSet("profile_mirror_timeout") {
		mirrorTimeout = viper.GetDuration("profile_mirror_timeout")
		if mirrorTimeout <= 0 {
			return ServerConfig{}, configError(configCodeInvalidMirrorTimeout, "profile_mirror_timeout must be greater than zero")
		}
	}

	identityBackend := strings.ToLower(strings.TrimSpace(viper.GetString("identity_backend")))
	if identityBackend == "" {
		identityBackend = identityBackendLocal
	}
	firebaseAPIKey := viper.GetString("firebase_api_key")
	switch identityBackend {
	case identityBackendLocal:
	case identityBackendFirebase:
		if firebaseAPIKey == "" {
			return ServerConfig{}, configError(configCodeMissingFirebaseAPIKey, "firebase_api_key must be provided when identity_backend is firebase")
		}
	default:
		return ServerConfig{}, configError(configCodeInvalidIdentityBackend, fmt.Sprintf("identity_backend %q is not one of local, firebase", identityBackend))
	}

	databaseURL := viper.GetString("database_url")
	redisURL := viper.GetString("redis_url")
	profileStore := strings.ToLower(strings.TrimSpace(viper.GetString("profile_store")))
	if profileStore == "" {
		profileStore = profileStoreMemory
	}
	switch profileStore {
	case profileStoreMemory, profileStoreGorm:
	case profileStoreRedis:
		if redisURL == "" {
			return ServerConfig{}, configError(configCodeMissingRedisURL, "redis_url must be provided when profile_store is redis")
		}
	case profileStorePostgres:
		if !strings.HasPrefix(databaseURL, "postgres://") && !strings.HasPrefix(databaseURL, "postgresql://") {
			return ServerConfig{}, configError(configCodeMissingPostgresURL, "database_url must be a postgres:// URL when profile_store is postgres")
		}
	default:
		return ServerConfig{}, configError(configCodeInvalidProfileStore, fmt.Sprintf("profile_store %q is not one of memory, gorm, redis, postgres", profileStore))
	}

	enableCORS := viper.GetBool("enable_cors")
	corsAllowedOrigins := viper.GetStringSlice("cors_allowed_origins")
	if enableCORS && len(corsAllowedOrigins) == 0 {
		return ServerConfig{}, configError(configCodeMissingCORSOrigins, "cors_allowed_origins must be provided when enable_cors is true")
	}

	smtpConfig := identity.SMTPConfig{
		Host:     viper.GetString("smtp_host"),
		Port:     viper.GetInt("smtp_port"),
		Username: viper.GetString("smtp_username"),
		Password: viper.GetString("smtp_password"),
		From:     viper.GetString("smtp_from"),
	}
	if smtpConfig.Host != "" && smtpConfig.Port <= 0 {
		return ServerConfig{}, configError(configCodeInvalidSMTPPort, "smtp_port must be greater than zero")
	}

	baseURL := strings.TrimRight(viper.GetString("base_url"), "/")
	resetURL := viper.GetString("reset_url")
	if resetURL == "" && baseURL != "" {
		resetURL = baseURL + defaultResetSuffix
	}

	return ServerConfig{
		ListenAddr:            viper.GetString("listen_addr"),
		BaseURL:               baseURL,
		CookieDomain:          viper.GetString("cookie_domain"),
		SigningKey:            []byte(jwtSigningKey),
		SessionTTL:            sessionTTL,
		NonceTTL:              nonceTTL,
		AllowInsecureHTTP:     viper.GetBool("dev_insecure_http"),
		EnableCORS:            enableCORS,
		CORSAllowedOrigins:    corsAllowedOrigins,
		IdentityBackend:       identityBackend,
		FirebaseAPIKey:        firebaseAPIKey,
		GoogleWebClientID:     viper.GetString("google_web_client_id"),
		AppleServicesID:       viper.GetString("apple_services_id"),
		DatabaseURL:           databaseURL,
		RedisURL:              redisURL,
		ProfileStore:          profileStore,
		MirrorTimeout:         mirrorTimeout,
		EnumerationProtection: viper.GetBool("enumeration_protection"),
		ResetURL:              resetURL,
		SMTP:                  smtpConfig,
	}, nil
}

func runServer(command *cobra.Command, arguments []string) error {
	commandContext := command.Context()
	var contextValue any
	if commandContext != nil {
		contextValue = commandContext.Value(serverConfigContextKey)
	}
	serverConfig, ok := contextValue.(ServerConfig)
	if !ok {
		return configError(configCodeUninitializedServerConf, "server configuration not prepared; PreRunE must execute before RunE")
	}
	if commandContext == nil {
		commandContext = context.Background()
	}

	logger, loggerErr := zap.NewProduction()
	if loggerErr != nil {
		return loggerErr
	}
	defer func() { _ = logger.Sync() }()

	app, buildErr := buildApplication(commandContext, serverConfig, logger)
	if buildErr != nil {
		return buildErr
	}
	defer app.Close()

	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(zapLoggerMiddleware(logger))

	if serverConfig.EnableCORS {
		corsMiddleware, corsErr := web.ConfigureCORS(logger, serverConfig.CORSAllowedOrigins)
		if corsErr != nil {
			return corsErr
		}
		router.Use(corsMiddleware)
	}
	app.handlers.Mount(router)

	server := &http.Server{
		Addr:              serverConfig.ListenAddr,
		Handler:           router,
		ReadHeaderTimeout: readHeaderTimeout,
	}

	shutdownCtx, shutdownCancel := context.WithCancel(context.Background())
	defer shutdownCancel()

	go func() {
		stopSignals := make(chan os.Signal, 1)
		signal.Notify(stopSignals, syscall.SIGINT, syscall.SIGTERM)
		defer signal.Stop(stopSignals)
		select {
		case <-stopSignals:
		case <-shutdownCtx.Done():
			return
		}
		graceCtx, graceCancel := context.WithTimeout(shutdownCtx, shutdownGrace)
		defer graceCancel()
		if err := server.Shutdown(graceCtx); err != nil {
			logger.Error("server shutdown error", zap.Error(err))
		}
	}()

	logger.Info("listening",
		zap.String("addr", serverConfig.ListenAddr),
		zap.String("identity_backend", serverConfig.IdentityBackend),
		zap.String("profile_store", serverConfig.ProfileStore))
	if err := serveHTTP(server); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("listen error: %w", err)
	}
	return nil
}

func zapLoggerMiddleware(logger *zap.Logger) gin.HandlerFunc {
	return func(contextGin *gin.Context) {
		startTime := time.Now()
		contextGin.Next()
		duration := time.Since(startTime)
		logger.Info("http",
			zap.String("method", contextGin.Request.Method),
			zap.String("path", contextGin.Request.URL.Path),
			zap.Int("status", contextGin.Writer.Status()),
			zap.String("ip", contextGin.ClientIP()),
			zap.Duration("elapsed", duration),
		)
	}
}
