package identity

import "context"

// SocialProvider names a hosted interactive sign-in provider.
type SocialProvider string

const (
	SocialGoogle SocialProvider = "google"
	SocialApple  SocialProvider = "apple"
)

// DisplayName returns the human readable provider name.
func (provider SocialProvider) DisplayName() string {
	switch provider {
	case SocialGoogle:
		return "Google"
	case SocialApple:
		return "Apple"
	default:
		return string(provider)
	}
}

// Principal is the authenticated identity for the current session.
type Principal struct {
	UserID          string
	Email           string
	DisplayName     string
	AvatarURL       string
	ProviderID      string
	CredentialToken string
}

// Provider is the identity platform consumed by the credential gateway.
// Every failure is an *Error.
type Provider interface {
	SignInWithIDToken(ctx context.Context, provider SocialProvider, idToken string, nonce string) (Principal, error)
	SignInWithPassword(ctx context.Context, email string, password string) (Principal, error)
	CreateUser(ctx context.Context, email string, password string) (Principal, error)
	SendPasswordReset(ctx context.Context, email string) error
	SignOut(ctx context.Context, credentialToken string) error
	// VerifySession reports whether credentialToken still authenticates
	// userID. A signed-out or expired credential is KindInvalidCredential.
	VerifySession(ctx context.Context, userID string, credentialToken string) error
}
