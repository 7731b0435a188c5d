// Package session owns the session principal for the lifetime of a browser
// session. The principal lives in a signed cookie; the Manager is the only
// component that writes, reads or clears it.
package session

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/xevora/storefront/internal/identity"
	"github.com/xevora/storefront/pkg/sessioncookie"
)

var (
	// ErrNoSession is returned by Lookup when the request carries no valid session.
	ErrNoSession = errors.New("session.lookup.no_session")
	// ErrSessionRevoked is wrapped by ErrNoSession when the cookie is intact
	// but the provider no longer honors its credential.
	ErrSessionRevoked = errors.New("session.lookup.revoked")
	// ErrAnonymousPrincipal is returned when establishing a principal without a user id.
	ErrAnonymousPrincipal = errors.New("session.establish.anonymous_principal")
)

// Config configures cookie and token parameters.
type Config struct {
	SigningKey   []byte
	Issuer       string
	CookieName   string
	CookieDomain string
	TTL          time.Duration
	SameSite     http.SameSite
	// AllowInsecureHTTP drops the Secure attribute for local development.
	AllowInsecureHTTP bool
}

// PrincipalVerifier confirms that the provider still honors a principal
// read back from the cookie.
type PrincipalVerifier interface {
	VerifySession(ctx context.Context, principal identity.Principal) error
}

// ManagerOption customizes a Manager.
type ManagerOption func(*Manager)

// WithPrincipalVerifier makes Lookup reject sessions the verifier refuses,
// such as ones whose credential was revoked by sign-out.
func WithPrincipalVerifier(verifier PrincipalVerifier) ManagerOption {
	return func(manager *Manager) {
		manager.verifier = verifier
	}
}

// Manager establishes, looks up and clears the session principal.
type Manager struct {
	config   Config
	codec    *sessioncookie.Codec
	verifier PrincipalVerifier
}

// NewManager validates config and builds a Manager.
func NewManager(config Config, options ...ManagerOption) (*Manager, error) {
	if config.TTL <= 0 {
		return nil, fmt.Errorf("session.manager.new: ttl must be positive")
	}
	codec, err := sessioncookie.New(sessioncookie.Config{
		SigningKey: config.SigningKey,
		Issuer:     config.Issuer,
		CookieName: config.CookieName,
	})
	if err != nil {
		return nil, fmt.Errorf("session.manager.new: %w", err)
	}
	config.CookieName = codec.CookieName()
	if config.SameSite == 0 {
		config.SameSite = http.SameSiteLaxMode
	}
	manager := &Manager{config: config, codec: codec}
	for _, option := range options {
		option(manager)
	}
	return manager, nil
}

// Establish replaces the session principal with principal.
func (manager *Manager) Establish(writer http.ResponseWriter, principal identity.Principal) error {
	if strings.TrimSpace(principal.UserID) == "" {
		return ErrAnonymousPrincipal
	}
	token, expiresAt, err := manager.codec.Encode(sessioncookie.Claims{
		UserID:          principal.UserID,
		UserEmail:       principal.Email,
		UserDisplayName: principal.DisplayName,
		UserAvatarURL:   principal.AvatarURL,
		ProviderID:      principal.ProviderID,
		CredentialToken: principal.CredentialToken,
	}, manager.config.TTL)
	if err != nil {
		return fmt.Errorf("session.establish: %w", err)
	}
	http.SetCookie(writer, &http.Cookie{
		Name:     manager.config.CookieName,
		Value:    token,
		Path:     "/",
		Domain:   manager.config.CookieDomain,
		Expires:  expiresAt,
		Secure:   !manager.config.AllowInsecureHTTP,
		HttpOnly: true,
		SameSite: manager.config.SameSite,
	})
	return nil
}

// Lookup returns the session principal carried by request. With a
// PrincipalVerifier configured the principal must also pass verification.
func (manager *Manager) Lookup(request *http.Request) (identity.Principal, error) {
	claims, err := manager.codec.Read(request)
	if err != nil {
		return identity.Principal{}, fmt.Errorf("%w: %w", ErrNoSession, err)
	}
	principal := identity.Principal{
		UserID:          claims.UserID,
		Email:           claims.UserEmail,
		DisplayName:     claims.UserDisplayName,
		AvatarURL:       claims.UserAvatarURL,
		ProviderID:      claims.ProviderID,
		CredentialToken: claims.CredentialToken,
	}
	if manager.verifier != nil {
		if verifyErr := manager.verifier.VerifySession(request.Context(), principal); verifyErr != nil {
			return identity.Principal{}, fmt.Errorf("%w: %w: %w", ErrNoSession, ErrSessionRevoked, verifyErr)
		}
	}
	return principal, nil
}

// Clear expires the session cookie.
func (manager *Manager) Clear(writer http.ResponseWriter) {
	http.SetCookie(writer, &http.Cookie{
		Name:     manager.config.CookieName,
		Value:    "",
		Path:     "/",
		Domain:   manager.config.CookieDomain,
		MaxAge:   -1,
		Secure:   !manager.config.AllowInsecureHTTP,
		HttpOnly: true,
		SameSite: manager.config.SameSite,
	})
}

// CookieName returns the session cookie name.
func (manager *Manager) CookieName() string {
	return manager.config.CookieName
}
