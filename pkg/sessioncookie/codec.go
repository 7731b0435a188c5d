// Package sessioncookie encodes and decodes the signed storefront session
// cookie. Services sharing the signing key can import it to read the
// signed-in customer without calling the storefront.
package sessioncookie

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// DefaultCookieName is used when Config.CookieName is empty.
const DefaultCookieName = "xevora_session"

// issueSkew backdates NotBefore so that slightly slow clocks accept a fresh cookie.
const issueSkew = 30 * time.Second

var (
	ErrMissingSigningKey = errors.New("session.cookie.missing_signing_key")
	ErrMissingIssuer     = errors.New("session.cookie.missing_issuer")
	ErrMissingToken      = errors.New("session.cookie.missing_token")
	ErrMissingCookie     = errors.New("session.cookie.missing_cookie")
	ErrInvalidToken      = errors.New("session.cookie.invalid_token")
	ErrInvalidIssuer     = errors.New("session.cookie.invalid_issuer")
	ErrTokenExpired      = errors.New("session.cookie.expired")
)

// Config configures a Codec. Now defaults to time.Now.
type Config struct {
	SigningKey []byte
	Issuer     string
	CookieName string
	Now        func() time.Time
}

// Claims is the session principal carried inside the cookie.
type Claims struct {
	UserID          string `json:"user_id"`
	UserEmail       string `json:"user_email"`
	UserDisplayName string `json:"user_display_name"`
	UserAvatarURL   string `json:"user_avatar_url,omitempty"`
	ProviderID      string `json:"provider_id,omitempty"`
	CredentialToken string `json:"credential_token,omitempty"`
	jwt.RegisteredClaims
}

// Codec signs and verifies HS256 session tokens.
type Codec struct {
	signingKey []byte
	issuer     string
	cookieName string
	now        func() time.Time
}

// New validates config and builds a Codec.
func New(config Config) (*Codec, error) {
	if len(config.SigningKey) == 0 {
		return nil, fmt.Errorf("session.cookie.new: %w", ErrMissingSigningKey)
	}
	if strings.TrimSpace(config.Issuer) == "" {
		return nil, fmt.Errorf("session.cookie.new: %w", ErrMissingIssuer)
	}
	cookieName := strings.TrimSpace(config.CookieName)
	if cookieName == "" {
		cookieName = DefaultCookieName
	}
	now := config.Now
	if now == nil {
		now = time.Now
	}
	return &Codec{signingKey: config.SigningKey, issuer: config.Issuer, cookieName: cookieName, now: now}, nil
}

// CookieName returns the cookie the codec reads.
func (codec *Codec) CookieName() string {
	return codec.cookieName
}

// Encode signs claims for ttl and returns the token with its expiry. The
// registered claims are overwritten; Subject follows UserID.
func (codec *Codec) Encode(claims Claims, ttl time.Duration) (string, time.Time, error) {
	issuedAt := codec.now().UTC()
	expiresAt := issuedAt.Add(ttl)
	claims.RegisteredClaims = jwt.RegisteredClaims{
		Issuer:    codec.issuer,
		Subject:   claims.UserID,
		IssuedAt:  jwt.NewNumericDate(issuedAt),
		NotBefore: jwt.NewNumericDate(issuedAt.Add(-issueSkew)),
		ExpiresAt: jwt.NewNumericDate(expiresAt),
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(codec.signingKey)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("session.cookie.encode: %w", err)
	}
	return signed, expiresAt, nil
}

// Decode verifies token and returns its claims.
func (codec *Codec) Decode(token string) (*Claims, error) {
	if strings.TrimSpace(token) == "" {
		return nil, fmt.Errorf("session.cookie.decode: %w", ErrMissingToken)
	}
	claims := &Claims{}
	parsed, parseErr := jwt.ParseWithClaims(token, claims, func(*jwt.Token) (interface{}, error) {
		return codec.signingKey, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuedAt(),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(codec.now))
	if parseErr != nil {
		if errors.Is(parseErr, jwt.ErrTokenExpired) {
			return nil, fmt.Errorf("session.cookie.decode: %w", ErrTokenExpired)
		}
		return nil, fmt.Errorf("session.cookie.decode: %w: %w", ErrInvalidToken, parseErr)
	}
	if !parsed.Valid {
		return nil, fmt.Errorf("session.cookie.decode: %w", ErrInvalidToken)
	}
	if claims.Issuer != codec.issuer {
		return nil, fmt.Errorf("session.cookie.decode: %w", ErrInvalidIssuer)
	}
	return claims, nil
}

// Read decodes the session cookie carried by request.
func (codec *Codec) Read(request *http.Request) (*Claims, error) {
	cookie, err := request.Cookie(codec.cookieName)
	if err != nil || strings.TrimSpace(cookie.Value) == "" {
		return nil, fmt.Errorf("session.cookie.read: %w", ErrMissingCookie)
	}
	return codec.Decode(cookie.Value)
}
