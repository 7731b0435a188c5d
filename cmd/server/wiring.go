package main

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/redis/go-redis/v9"
	"github.com/xevora/storefront/internal/database"
	"github.com/xevora/storefront/internal/gateway"
	"github.com/xevora/storefront/internal/identity"
	"github.com/xevora/storefront/internal/identity/firebase"
	"github.com/xevora/storefront/internal/profile"
	"github.com/xevora/storefront/internal/profilepg"
	"github.com/xevora/storefront/internal/session"
	"github.com/xevora/storefront/internal/web"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// application holds the wired collaborators of a running server.
type application struct {
	handlers *web.Handlers
	metrics  *gateway.CounterMetrics
	mirror   *profile.Mirror
	database *sharedDatabase
	logger   *zap.Logger
	closers  []func()
}

// Close waits for in-flight profile writes, reports the gateway counters
// and releases connections.
func (app *application) Close() {
	if app.mirror != nil {
		app.mirror.Wait()
	}
	if app.metrics != nil {
		fields := []zap.Field{zap.String("code", "server.gateway_counters")}
		for event, count := range app.metrics.Snapshot() {
			fields = append(fields, zap.Int64(event, count))
		}
		app.logger.Info("gateway counters", fields...)
	}
	for index := len(app.closers) - 1; index >= 0; index-- {
		app.closers[index]()
	}
}

// sharedDatabase opens the gorm connection once for every consumer and
// registers its close with the application.
type sharedDatabase struct {
	url         string
	app         *application
	gormDB      *gorm.DB
	driverLabel string
}

func (shared *sharedDatabase) open(ctx context.Context) (*gorm.DB, string, error) {
	if shared.gormDB != nil {
		return shared.gormDB, shared.driverLabel, nil
	}
	databaseURL := shared.url
	if strings.TrimSpace(databaseURL) == "" {
		databaseURL = inMemoryDatabase
	}
	gormDB, driverLabel, err := database.Open(ctx, databaseURL)
	if err != nil {
		return nil, "", err
	}
	sqlDB, err := gormDB.DB()
	if err != nil {
		return nil, "", fmt.Errorf("database.sql_handle: %w", err)
	}
	shared.app.closers = append(shared.app.closers, func() { _ = sqlDB.Close() })
	shared.gormDB = gormDB
	shared.driverLabel = driverLabel
	return gormDB, driverLabel, nil
}

func buildApplication(ctx context.Context, serverConfig ServerConfig, logger *zap.Logger) (*application, error) {
	app := &application{logger: logger}
	shared := &sharedDatabase{url: serverConfig.DatabaseURL, app: app}
	app.database = shared

	var redisClient redis.UniversalClient
	if serverConfig.RedisURL != "" {
		redisOptions, parseErr := redis.ParseURL(serverConfig.RedisURL)
		if parseErr != nil {
			return nil, fmt.Errorf("config.invalid_redis_url: %w", parseErr)
		}
		client := redis.NewClient(redisOptions)
		redisClient = client
		app.closers = append(app.closers, func() { _ = client.Close() })
	}

	provider, resets, providerErr := buildIdentityProvider(ctx, serverConfig, shared, redisClient, logger)
	if providerErr != nil {
		app.Close()
		return nil, providerErr
	}

	profileStore, storeErr := buildProfileStore(ctx, serverConfig, shared, redisClient, app, logger)
	if storeErr != nil {
		app.Close()
		return nil, storeErr
	}
	app.mirror = profile.NewMirror(profileStore, logger, profile.WithTimeout(serverConfig.MirrorTimeout))
	app.metrics = gateway.NewCounterMetrics()

	credentialGateway := gateway.New(provider,
		gateway.WithProfileMirror(app.mirror),
		gateway.WithMetrics(app.metrics),
		gateway.WithLogger(logger))

	sameSite := http.SameSiteLaxMode
	if serverConfig.EnableCORS {
		sameSite = http.SameSiteNoneMode
	}
	sessions, sessionErr := session.NewManager(session.Config{
		SigningKey:        serverConfig.SigningKey,
		Issuer:            sessionIssuer,
		CookieDomain:      serverConfig.CookieDomain,
		TTL:               serverConfig.SessionTTL,
		SameSite:          sameSite,
		AllowInsecureHTTP: serverConfig.AllowInsecureHTTP,
	}, session.WithPrincipalVerifier(credentialGateway))
	if sessionErr != nil {
		app.Close()
		return nil, sessionErr
	}

	var nonces session.NonceStore = session.NewMemoryNonceStore(serverConfig.NonceTTL)
	if redisClient != nil {
		nonces = session.NewRedisNonceStore(redisClient, serverConfig.NonceTTL)
	}

	dependencies := web.Dependencies{
		Authenticator: credentialGateway,
		Sessions:      sessions,
		Nonces:        nonces,
		Profiles:      profileStore,
		Resets:        resets,
		Logger:        logger,
	}
	handlers, handlersErr := web.NewHandlers(dependencies, web.Config{
		Client: web.ClientConfig{
			GoogleClientID:  serverConfig.GoogleWebClientID,
			AppleServicesID: serverConfig.AppleServicesID,
			BaseURL:         serverConfig.BaseURL,
		},
		AllowInsecureHTTP: serverConfig.AllowInsecureHTTP,
		FormKey:           serverConfig.SigningKey,
	})
	if handlersErr != nil {
		app.Close()
		return nil, handlersErr
	}
	app.handlers = handlers
	return app, nil
}

// buildIdentityProvider returns the configured platform and, for the local
// backend, the reset confirmer behind /auth/reset.
func buildIdentityProvider(ctx context.Context, serverConfig ServerConfig, shared *sharedDatabase, redisClient redis.UniversalClient, logger *zap.Logger) (identity.Provider, web.ResetConfirmer, error) {
	if serverConfig.IdentityBackend == identityBackendFirebase {
		firebaseProvider, firebaseErr := firebase.New(ctx, firebase.Config{
			APIKey:     serverConfig.FirebaseAPIKey,
			RequestURI: serverConfig.BaseURL,
		})
		if firebaseErr != nil {
			return nil, nil, fmt.Errorf("config.firebase_init: %w", firebaseErr)
		}
		logger.Info("using firebase identity platform")
		return firebaseProvider, nil, nil
	}

	gormDB, driverLabel, openErr := shared.open(ctx)
	if openErr != nil {
		return nil, nil, openErr
	}
	accounts, accountsErr := identity.NewAccountStore(ctx, gormDB, driverLabel)
	if accountsErr != nil {
		return nil, nil, accountsErr
	}
	tokens, tokensErr := identity.NewDatabaseCredentialTokenStore(ctx, gormDB, driverLabel)
	if tokensErr != nil {
		return nil, nil, tokensErr
	}

	var options []identity.LocalOption
	if redisClient != nil {
		options = append(options, identity.WithAttemptLimiter(identity.NewRedisAttemptLimiter(redisClient, identity.DefaultLimiterConfig)))
	}
	if serverConfig.SMTP.Host != "" {
		mailer, mailerErr := identity.NewSMTPMailer(serverConfig.SMTP)
		if mailerErr != nil {
			return nil, nil, fmt.Errorf("config.smtp: %w", mailerErr)
		}
		options = append(options, identity.WithMailer(mailer))
	}
	if serverConfig.GoogleWebClientID != "" {
		validator, validatorErr := buildGoogleTokenValidator(ctx)
		if validatorErr != nil {
			return nil, nil, fmt.Errorf("%s: %w", configCodeGoogleValidatorInit, validatorErr)
		}
		options = append(options, identity.WithIDTokenVerifier(identity.NewGoogleVerifier(validator, serverConfig.GoogleWebClientID)))
	}
	if serverConfig.AppleServicesID != "" {
		verifier, verifierErr := buildAppleVerifier(ctx, serverConfig.AppleServicesID)
		if verifierErr != nil {
			return nil, nil, fmt.Errorf("%s: %w", configCodeAppleVerifierInit, verifierErr)
		}
		options = append(options, identity.WithIDTokenVerifier(verifier))
	}

	localConfig := identity.DefaultLocalConfig
	localConfig.EnumerationProtection = serverConfig.EnumerationProtection
	if serverConfig.ResetURL != "" {
		localConfig.ResetURL = serverConfig.ResetURL
	}
	localProvider := identity.NewLocalProvider(accounts, tokens, localConfig, options...)
	logger.Info("using local identity platform", zap.String("driver", driverLabel))
	return localProvider, localProvider, nil
}

func buildProfileStore(ctx context.Context, serverConfig ServerConfig, shared *sharedDatabase, redisClient redis.UniversalClient, app *application, logger *zap.Logger) (profile.Store, error) {
	switch serverConfig.ProfileStore {
	case profileStoreGorm:
		gormDB, driverLabel, openErr := shared.open(ctx)
		if openErr != nil {
			return nil, openErr
		}
		logger.Info("using gorm profile store", zap.String("driver", driverLabel))
		return profile.NewGormStore(ctx, gormDB, driverLabel)
	case profileStoreRedis:
		logger.Info("using redis profile store")
		return profile.NewRedisStore(redisClient), nil
	case profileStorePostgres:
		pool, poolErr := profilepg.BuildPool(ctx, serverConfig.DatabaseURL)
		if poolErr != nil {
			return nil, poolErr
		}
		app.closers = append(app.closers, pool.Close)
		if schemaErr := profilepg.EnsureSchema(ctx, pool); schemaErr != nil {
			return nil, schemaErr
		}
		logger.Info("using postgres profile store")
		return profilepg.NewStore(pool), nil
	default:
		logger.Info("using in-memory profile store")
		return profile.NewMemoryStore(), nil
	}
}
