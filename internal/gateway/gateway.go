// Package gateway wraps identity provider operations and normalizes their
// failures into user-facing messages.
package gateway

import (
	"context"

	"github.com/xevora/storefront/internal/identity"
	"go.uber.org/zap"
)

// ProfileMirror receives every authenticated principal. Implementations
// must return without waiting on storage.
type ProfileMirror interface {
	Upsert(principal identity.Principal)
}

// Option customizes a Gateway.
type Option func(*Gateway)

// WithProfileMirror starts a background profile upsert after each sign-in or sign-up.
func WithProfileMirror(mirror ProfileMirror) Option {
	return func(gateway *Gateway) {
		gateway.mirror = mirror
	}
}

// WithMetrics records success and failure counters.
func WithMetrics(metrics MetricsRecorder) Option {
	return func(gateway *Gateway) {
		if metrics != nil {
			gateway.metrics = metrics
		}
	}
}

// WithLogger sets the logger used for failure reporting.
func WithLogger(logger *zap.Logger) Option {
	return func(gateway *Gateway) {
		if logger != nil {
			gateway.logger = logger
		}
	}
}

// Gateway exposes one operation per authentication action.
type Gateway struct {
	provider identity.Provider
	mirror   ProfileMirror
	metrics  MetricsRecorder
	logger   *zap.Logger
}

// New constructs a Gateway over provider.
func New(provider identity.Provider, options ...Option) *Gateway {
	gateway := &Gateway{
		provider: provider,
		metrics:  discardMetrics{},
		logger:   zap.NewNop(),
	}
	for _, option := range options {
		option(gateway)
	}
	return gateway
}

// SignInWithGoogle exchanges a Google ID token for a principal.
func (gateway *Gateway) SignInWithGoogle(ctx context.Context, idToken string, nonce string) (identity.Principal, error) {
	return gateway.signInWithSocial(ctx, identity.SocialGoogle, idToken, nonce)
}

// SignInWithApple exchanges an Apple ID token for a principal.
func (gateway *Gateway) SignInWithApple(ctx context.Context, idToken string, nonce string) (identity.Principal, error) {
	return gateway.signInWithSocial(ctx, identity.SocialApple, idToken, nonce)
}

// SignInWithSocial dispatches to the provider-specific social sign-in.
func (gateway *Gateway) SignInWithSocial(ctx context.Context, provider identity.SocialProvider, idToken string, nonce string) (identity.Principal, error) {
	return gateway.signInWithSocial(ctx, provider, idToken, nonce)
}

func (gateway *Gateway) signInWithSocial(ctx context.Context, provider identity.SocialProvider, idToken string, nonce string) (identity.Principal, error) {
	event := "gateway.social." + string(provider)
	principal, err := gateway.provider.SignInWithIDToken(ctx, provider, idToken, nonce)
	if err != nil {
		return identity.Principal{}, gateway.fail(event+".failure", socialMessages(provider), err)
	}
	return gateway.succeed(event+".success", principal), nil
}

// SignInWithEmail authenticates an existing email/password account.
func (gateway *Gateway) SignInWithEmail(ctx context.Context, email string, password string) (identity.Principal, error) {
	principal, err := gateway.provider.SignInWithPassword(ctx, email, password)
	if err != nil {
		return identity.Principal{}, gateway.fail(metricSignInFailure, signInMessages, err)
	}
	return gateway.succeed(metricSignInSuccess, principal), nil
}

// SignUpWithEmail creates an email/password account and signs it in.
func (gateway *Gateway) SignUpWithEmail(ctx context.Context, email string, password string) (identity.Principal, error) {
	principal, err := gateway.provider.CreateUser(ctx, email, password)
	if err != nil {
		return identity.Principal{}, gateway.fail(metricSignUpFailure, signUpMessages, err)
	}
	return gateway.succeed(metricSignUpSuccess, principal), nil
}

// ResetPassword asks the provider to send a password reset message.
func (gateway *Gateway) ResetPassword(ctx context.Context, email string) error {
	if err := gateway.provider.SendPasswordReset(ctx, email); err != nil {
		return gateway.fail(metricResetFailure, resetMessages, err)
	}
	gateway.metrics.Increment(metricResetSuccess)
	return nil
}

// SignOut ends the provider session behind principal.
func (gateway *Gateway) SignOut(ctx context.Context, principal identity.Principal) error {
	if err := gateway.provider.SignOut(ctx, principal.CredentialToken); err != nil {
		return gateway.fail(metricSignOutFailure, signOutMessages, err)
	}
	gateway.metrics.Increment(metricSignOutSuccess)
	return nil
}

// VerifySession confirms the provider still honors the credential behind principal.
func (gateway *Gateway) VerifySession(ctx context.Context, principal identity.Principal) error {
	if err := gateway.provider.VerifySession(ctx, principal.UserID, principal.CredentialToken); err != nil {
		return gateway.fail(metricSessionExpired, sessionMessages, err)
	}
	return nil
}

func (gateway *Gateway) succeed(event string, principal identity.Principal) identity.Principal {
	gateway.metrics.Increment(event)
	if gateway.mirror != nil {
		gateway.mirror.Upsert(principal)
	}
	return principal
}

func (gateway *Gateway) fail(event string, table messageTable, err error) *Error {
	normalized := table.normalize(err)
	gateway.metrics.Increment(event)
	gateway.logger.Info("identity provider rejected request",
		zap.String("code", event),
		zap.String("kind", normalized.Kind.String()),
		zap.Error(err))
	return normalized
}
