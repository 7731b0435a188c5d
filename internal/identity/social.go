package identity

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/coreos/go-oidc/v3/oidc"
	"google.golang.org/api/idtoken"
)

const appleIssuer = "https://appleid.apple.com"

var (
	errInvalidIssuer      = errors.New("social.invalid_issuer")
	errMissingSubject     = errors.New("social.missing_subject")
	errNonceMismatch      = errors.New("social.nonce_mismatch")
	errUnconfiguredSocial = errors.New("social.provider_not_configured")
)

// SocialIdentity holds the verified facts of a social ID token.
type SocialIdentity struct {
	Provider      SocialProvider
	Subject       string
	Email         string
	EmailVerified bool
	DisplayName   string
	AvatarURL     string
}

// IDTokenVerifier verifies an ID token issued by one social provider.
type IDTokenVerifier interface {
	Provider() SocialProvider
	Verify(ctx context.Context, rawToken string, nonce string) (SocialIdentity, error)
}

// GoogleTokenValidator matches *idtoken.Validator.
type GoogleTokenValidator interface {
	Validate(ctx context.Context, idToken string, audience string) (*idtoken.Payload, error)
}

// NewGoogleTokenValidator constructs the default Google validator.
func NewGoogleTokenValidator(ctx context.Context) (GoogleTokenValidator, error) {
	return idtoken.NewValidator(ctx)
}

// GoogleVerifier verifies Google Sign-In ID tokens.
type GoogleVerifier struct {
	validator GoogleTokenValidator
	clientID  string
}

// NewGoogleVerifier binds validator to the web client ID.
func NewGoogleVerifier(validator GoogleTokenValidator, clientID string) *GoogleVerifier {
	return &GoogleVerifier{validator: validator, clientID: clientID}
}

func (verifier *GoogleVerifier) Provider() SocialProvider {
	return SocialGoogle
}

func (verifier *GoogleVerifier) Verify(ctx context.Context, rawToken string, nonce string) (SocialIdentity, error) {
	payload, validateErr := verifier.validator.Validate(ctx, rawToken, verifier.clientID)
	if validateErr != nil {
		return SocialIdentity{}, fmt.Errorf("social.google.validate: %w", validateErr)
	}
	issuerValue, _ := payload.Claims["iss"].(string)
	if issuerValue != "https://accounts.google.com" && issuerValue != "accounts.google.com" {
		return SocialIdentity{}, fmt.Errorf("social.google: %w", errInvalidIssuer)
	}
	if nonce != "" {
		tokenNonce, _ := payload.Claims["nonce"].(string)
		if tokenNonce != nonce {
			return SocialIdentity{}, fmt.Errorf("social.google: %w", errNonceMismatch)
		}
	}
	subject, _ := payload.Claims["sub"].(string)
	if subject == "" {
		return SocialIdentity{}, fmt.Errorf("social.google: %w", errMissingSubject)
	}
	email, _ := payload.Claims["email"].(string)
	emailVerified, _ := payload.Claims["email_verified"].(bool)
	displayName, _ := payload.Claims["name"].(string)
	avatarURL, _ := payload.Claims["picture"].(string)
	return SocialIdentity{
		Provider:      SocialGoogle,
		Subject:       subject,
		Email:         email,
		EmailVerified: emailVerified,
		DisplayName:   displayName,
		AvatarURL:     avatarURL,
	}, nil
}

// AppleVerifier verifies Sign in with Apple ID tokens through OIDC discovery.
type AppleVerifier struct {
	verifier *oidc.IDTokenVerifier
}

// NewAppleVerifier discovers Apple's signing keys for the services ID.
func NewAppleVerifier(ctx context.Context, servicesID string) (*AppleVerifier, error) {
	provider, err := oidc.NewProvider(ctx, appleIssuer)
	if err != nil {
		return nil, fmt.Errorf("social.apple.discovery: %w", err)
	}
	return &AppleVerifier{verifier: provider.Verifier(&oidc.Config{ClientID: servicesID})}, nil
}

func (verifier *AppleVerifier) Provider() SocialProvider {
	return SocialApple
}

func (verifier *AppleVerifier) Verify(ctx context.Context, rawToken string, nonce string) (SocialIdentity, error) {
	idToken, err := verifier.verifier.Verify(ctx, rawToken)
	if err != nil {
		return SocialIdentity{}, fmt.Errorf("social.apple.verify: %w", err)
	}
	if nonce != "" && idToken.Nonce != nonce {
		return SocialIdentity{}, fmt.Errorf("social.apple: %w", errNonceMismatch)
	}
	if idToken.Subject == "" {
		return SocialIdentity{}, fmt.Errorf("social.apple: %w", errMissingSubject)
	}
	var claims struct {
		Email         string `json:"email"`
		EmailVerified any    `json:"email_verified"`
	}
	if claimsErr := idToken.Claims(&claims); claimsErr != nil {
		return SocialIdentity{}, fmt.Errorf("social.apple.claims: %w", claimsErr)
	}
	return SocialIdentity{
		Provider:      SocialApple,
		Subject:       idToken.Subject,
		Email:         claims.Email,
		EmailVerified: appleBool(claims.EmailVerified),
	}, nil
}

// Apple sends boolean claims either as JSON booleans or as "true"/"false" strings.
func appleBool(value any) bool {
	switch typed := value.(type) {
	case bool:
		return typed
	case string:
		return strings.EqualFold(typed, "true")
	default:
		return false
	}
}
