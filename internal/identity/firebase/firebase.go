// Package firebase implements identity.Provider against the Firebase Auth
// Identity Toolkit REST API.
package firebase

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/xevora/storefront/internal/identity"
	"google.golang.org/api/googleapi"
	identitytoolkit "google.golang.org/api/identitytoolkit/v3"
	"google.golang.org/api/option"
)

var errMissingAPIKey = errors.New("firebase.missing_api_key")

var providerErrorKinds = map[string]identity.ErrorKind{
	"EMAIL_NOT_FOUND":             identity.KindUserNotFound,
	"INVALID_PASSWORD":            identity.KindWrongPassword,
	"INVALID_LOGIN_CREDENTIALS":   identity.KindInvalidCredential,
	"INVALID_IDP_RESPONSE":        identity.KindInvalidCredential,
	"USER_DISABLED":               identity.KindUserDisabled,
	"TOO_MANY_ATTEMPTS_TRY_LATER": identity.KindTooManyRequests,
	"EMAIL_EXISTS":                identity.KindEmailAlreadyInUse,
	"WEAK_PASSWORD":               identity.KindWeakPassword,
	"INVALID_EMAIL":               identity.KindInvalidEmail,
	"MISSING_EMAIL":               identity.KindInvalidEmail,
}

// Config identifies the Firebase project.
type Config struct {
	APIKey string
	// RequestURI is the continue URI reported for social assertions.
	RequestURI string
}

// Provider talks to the Identity Toolkit relying party endpoints.
type Provider struct {
	relyingParty *identitytoolkit.RelyingpartyService
	requestURI   string
	now          func() time.Time
}

// New builds a Provider. Extra client options are appended after the API key.
func New(ctx context.Context, config Config, options ...option.ClientOption) (*Provider, error) {
	if strings.TrimSpace(config.APIKey) == "" {
		return nil, errMissingAPIKey
	}
	clientOptions := append([]option.ClientOption{option.WithAPIKey(config.APIKey)}, options...)
	service, err := identitytoolkit.NewService(ctx, clientOptions...)
	if err != nil {
		return nil, fmt.Errorf("firebase.new_service: %w", err)
	}
	requestURI := config.RequestURI
	if requestURI == "" {
		requestURI = "http://localhost"
	}
	return &Provider{relyingParty: service.Relyingparty, requestURI: requestURI, now: time.Now}, nil
}

func (provider *Provider) SignInWithPassword(ctx context.Context, email string, password string) (identity.Principal, error) {
	response, err := provider.relyingParty.VerifyPassword(&identitytoolkit.IdentitytoolkitRelyingpartyVerifyPasswordRequest{
		Email:             email,
		Password:          password,
		ReturnSecureToken: true,
	}).Context(ctx).Do()
	if err != nil {
		return identity.Principal{}, classify(err)
	}
	return identity.Principal{
		UserID:          response.LocalId,
		Email:           response.Email,
		DisplayName:     response.DisplayName,
		AvatarURL:       response.PhotoUrl,
		ProviderID:      "password",
		CredentialToken: response.IdToken,
	}, nil
}

func (provider *Provider) CreateUser(ctx context.Context, email string, password string) (identity.Principal, error) {
	response, err := provider.relyingParty.SignupNewUser(&identitytoolkit.IdentitytoolkitRelyingpartySignupNewUserRequest{
		Email:    email,
		Password: password,
	}).Context(ctx).Do()
	if err != nil {
		return identity.Principal{}, classify(err)
	}
	return identity.Principal{
		UserID:          response.LocalId,
		Email:           response.Email,
		DisplayName:     response.DisplayName,
		ProviderID:      "password",
		CredentialToken: response.IdToken,
	}, nil
}

func (provider *Provider) SendPasswordReset(ctx context.Context, email string) error {
	_, err := provider.relyingParty.GetOobConfirmationCode(&identitytoolkit.Relyingparty{
		RequestType: "PASSWORD_RESET",
		Email:       email,
	}).Context(ctx).Do()
	if err != nil {
		return classify(err)
	}
	return nil
}

func (provider *Provider) SignInWithIDToken(ctx context.Context, social identity.SocialProvider, idToken string, nonce string) (identity.Principal, error) {
	postBody := url.Values{}
	postBody.Set("id_token", idToken)
	postBody.Set("providerId", string(social)+".com")
	if nonce != "" {
		postBody.Set("nonce", nonce)
	}
	response, err := provider.relyingParty.VerifyAssertion(&identitytoolkit.IdentitytoolkitRelyingpartyVerifyAssertionRequest{
		PostBody:          postBody.Encode(),
		RequestUri:        provider.requestURI,
		ReturnSecureToken: true,
	}).Context(ctx).Do()
	if err != nil {
		return identity.Principal{}, classify(err)
	}
	if response.ErrorMessage != "" {
		return identity.Principal{}, classify(errors.New(response.ErrorMessage))
	}
	return identity.Principal{
		UserID:          response.LocalId,
		Email:           response.Email,
		DisplayName:     response.DisplayName,
		AvatarURL:       response.PhotoUrl,
		ProviderID:      response.ProviderId,
		CredentialToken: response.IdToken,
	}, nil
}

// SignOut has nothing to revoke: Firebase ID tokens expire on their own
// and the session cookie holding them is cleared by the caller.
func (provider *Provider) SignOut(ctx context.Context, credentialToken string) error {
	return ctx.Err()
}

// VerifySession checks the expiry and subject of the Firebase ID token held
// by the session. The signature is not rechecked: the token only reaches
// here from inside a session cookie this server signed.
func (provider *Provider) VerifySession(ctx context.Context, userID string, credentialToken string) error {
	if err := ctx.Err(); err != nil {
		return identity.Unclassified(err)
	}
	claims := &jwt.RegisteredClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(credentialToken, claims); err != nil {
		return &identity.Error{Kind: identity.KindInvalidCredential, Code: identity.KindInvalidCredential.Code(), Message: "The session credential is malformed.", Err: err}
	}
	if claims.ExpiresAt == nil || !claims.ExpiresAt.After(provider.now()) {
		return identity.NewError(identity.KindInvalidCredential, "The session credential has expired.")
	}
	if claims.Subject != userID {
		return identity.NewError(identity.KindInvalidCredential, "The session credential belongs to another user.")
	}
	return nil
}

func classify(err error) error {
	message := err.Error()
	var apiErr *googleapi.Error
	if errors.As(err, &apiErr) {
		message = apiErr.Message
	}
	code := strings.TrimSpace(strings.SplitN(message, ":", 2)[0])
	kind, known := providerErrorKinds[code]
	if !known {
		return &identity.Error{Kind: identity.KindUnclassified, Code: identity.KindUnclassified.Code(), Message: message, Err: err}
	}
	return &identity.Error{Kind: kind, Code: kind.Code(), Message: message, Err: err}
}
