package identity

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"regexp"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
)

var emailPattern = regexp.MustCompile(`^[^\s@]+@[^\s@]+\.[^\s@]+$`)

// LocalConfig tunes the in-process identity platform.
type LocalConfig struct {
	MinPasswordLength int
	CredentialTTL     time.Duration
	ResetTTL          time.Duration
	// ResetURL receives the reset token as its "token" query parameter.
	ResetURL string
	// EnumerationProtection reports unknown accounts and wrong passwords
	// alike as invalid-credential, and makes reset silent for unknown emails.
	EnumerationProtection bool
}

// DefaultLocalConfig mirrors the hosted platform's defaults.
var DefaultLocalConfig = LocalConfig{
	MinPasswordLength: 6,
	CredentialTTL:     14 * 24 * time.Hour,
	ResetTTL:          time.Hour,
	ResetURL:          "http://localhost:8080/auth/reset",
}

// LocalOption customizes a LocalProvider.
type LocalOption func(*LocalProvider)

// WithHasher replaces the bcrypt hasher.
func WithHasher(hasher Hasher) LocalOption {
	return func(provider *LocalProvider) {
		provider.hasher = hasher
	}
}

// WithAttemptLimiter replaces the in-memory failure limiter.
func WithAttemptLimiter(limiter AttemptLimiter) LocalOption {
	return func(provider *LocalProvider) {
		provider.limiter = limiter
	}
}

// WithMailer configures reset email delivery.
func WithMailer(mailer Mailer) LocalOption {
	return func(provider *LocalProvider) {
		provider.mailer = mailer
	}
}

// WithIDTokenVerifier enables social sign-in for the verifier's provider.
func WithIDTokenVerifier(verifier IDTokenVerifier) LocalOption {
	return func(provider *LocalProvider) {
		provider.verifiers[verifier.Provider()] = verifier
	}
}

// LocalProvider implements Provider on top of local account storage.
type LocalProvider struct {
	accounts  *AccountStore
	tokens    CredentialTokenStore
	limiter   AttemptLimiter
	mailer    Mailer
	hasher    Hasher
	verifiers map[SocialProvider]IDTokenVerifier
	config    LocalConfig
	now       func() time.Time
}

// NewLocalProvider constructs the provider.
func NewLocalProvider(accounts *AccountStore, tokens CredentialTokenStore, config LocalConfig, options ...LocalOption) *LocalProvider {
	if config.MinPasswordLength <= 0 {
		config.MinPasswordLength = DefaultLocalConfig.MinPasswordLength
	}
	if config.CredentialTTL <= 0 {
		config.CredentialTTL = DefaultLocalConfig.CredentialTTL
	}
	if config.ResetTTL <= 0 {
		config.ResetTTL = DefaultLocalConfig.ResetTTL
	}
	provider := &LocalProvider{
		accounts:  accounts,
		tokens:    tokens,
		limiter:   NewMemoryAttemptLimiter(DefaultLimiterConfig),
		hasher:    DefaultHasher,
		verifiers: make(map[SocialProvider]IDTokenVerifier),
		config:    config,
		now:       time.Now,
	}
	for _, option := range options {
		option(provider)
	}
	return provider
}

func (provider *LocalProvider) SignInWithPassword(ctx context.Context, email string, password string) (Principal, error) {
	if !emailPattern.MatchString(strings.TrimSpace(email)) {
		return Principal{}, NewError(KindInvalidEmail, "The email address is badly formatted.")
	}
	if limitErr := provider.limiter.Check(ctx, email); limitErr != nil {
		if errors.Is(limitErr, ErrTooManyAttempts) {
			return Principal{}, NewError(KindTooManyRequests, "Access to this account has been temporarily disabled due to many failed login attempts.")
		}
		return Principal{}, Unclassified(limitErr)
	}
	account, findErr := provider.accounts.FindByEmail(ctx, email)
	if findErr != nil {
		if !errors.Is(findErr, errAccountNotFound) {
			return Principal{}, Unclassified(findErr)
		}
		provider.recordFailure(ctx, email)
		if provider.config.EnumerationProtection {
			return Principal{}, NewError(KindInvalidCredential, "The supplied auth credential is incorrect, malformed or has expired.")
		}
		return Principal{}, NewError(KindUserNotFound, "There is no user record corresponding to this identifier.")
	}
	if account.Disabled {
		return Principal{}, NewError(KindUserDisabled, "The user account has been disabled by an administrator.")
	}
	if account.PasswordHash == "" || provider.hasher.Compare([]byte(account.PasswordHash), []byte(password)) != nil {
		provider.recordFailure(ctx, email)
		if provider.config.EnumerationProtection {
			return Principal{}, NewError(KindInvalidCredential, "The supplied auth credential is incorrect, malformed or has expired.")
		}
		return Principal{}, NewError(KindWrongPassword, "The password is invalid or the user does not have a password.")
	}
	_ = provider.limiter.Reset(ctx, email)
	return provider.issuePrincipal(ctx, account, "password")
}

func (provider *LocalProvider) CreateUser(ctx context.Context, email string, password string) (Principal, error) {
	if !emailPattern.MatchString(strings.TrimSpace(email)) {
		return Principal{}, NewError(KindInvalidEmail, "The email address is badly formatted.")
	}
	if utf8.RuneCountInString(password) < provider.config.MinPasswordLength {
		return Principal{}, NewError(KindWeakPassword, fmt.Sprintf("Password should be at least %d characters", provider.config.MinPasswordLength))
	}
	_, findErr := provider.accounts.FindByEmail(ctx, email)
	if findErr == nil {
		return Principal{}, NewError(KindEmailAlreadyInUse, "The email address is already in use by another account.")
	}
	if !errors.Is(findErr, errAccountNotFound) {
		return Principal{}, Unclassified(findErr)
	}
	passwordHash, hashErr := provider.hasher.Generate([]byte(password))
	if hashErr != nil {
		return Principal{}, Unclassified(hashErr)
	}
	account := Account{
		UserID:        uuid.NewString(),
		Email:         normalizeEmail(email),
		PasswordHash:  string(passwordHash),
		CreatedAtUnix: provider.now().UTC().Unix(),
	}
	if createErr := provider.accounts.Create(ctx, account); createErr != nil {
		return Principal{}, Unclassified(createErr)
	}
	return provider.issuePrincipal(ctx, account, "password")
}

func (provider *LocalProvider) SendPasswordReset(ctx context.Context, email string) error {
	if !emailPattern.MatchString(strings.TrimSpace(email)) {
		return NewError(KindInvalidEmail, "The email address is badly formatted.")
	}
	account, findErr := provider.accounts.FindByEmail(ctx, email)
	if findErr != nil {
		if !errors.Is(findErr, errAccountNotFound) {
			return Unclassified(findErr)
		}
		if provider.config.EnumerationProtection {
			return nil
		}
		return NewError(KindUserNotFound, "There is no user record corresponding to this identifier.")
	}
	if provider.mailer == nil {
		return Unclassified(errors.New("password reset email is not configured"))
	}
	resetToken, resetHash, tokenErr := generateCredentialOpaque()
	if tokenErr != nil {
		return Unclassified(tokenErr)
	}
	account.ResetTokenHash = resetHash
	account.ResetExpiresUnix = provider.now().UTC().Add(provider.config.ResetTTL).Unix()
	if saveErr := provider.accounts.Save(ctx, account); saveErr != nil {
		return Unclassified(saveErr)
	}
	resetLink, linkErr := buildResetLink(provider.config.ResetURL, resetToken)
	if linkErr != nil {
		return Unclassified(linkErr)
	}
	if mailErr := provider.mailer.SendPasswordReset(ctx, account.Email, resetLink); mailErr != nil {
		return Unclassified(mailErr)
	}
	return nil
}

// ConfirmPasswordReset sets a new password for the holder of a reset token.
func (provider *LocalProvider) ConfirmPasswordReset(ctx context.Context, resetToken string, newPassword string) error {
	account, findErr := provider.accounts.FindByResetHash(ctx, hashOpaque(resetToken))
	if findErr != nil || provider.now().UTC().Unix() > account.ResetExpiresUnix {
		if findErr != nil && !errors.Is(findErr, errAccountNotFound) {
			return Unclassified(findErr)
		}
		return NewError(KindInvalidCredential, "The password reset link is invalid or has expired.")
	}
	if utf8.RuneCountInString(newPassword) < provider.config.MinPasswordLength {
		return NewError(KindWeakPassword, fmt.Sprintf("Password should be at least %d characters", provider.config.MinPasswordLength))
	}
	passwordHash, hashErr := provider.hasher.Generate([]byte(newPassword))
	if hashErr != nil {
		return Unclassified(hashErr)
	}
	account.PasswordHash = string(passwordHash)
	account.ResetTokenHash = ""
	account.ResetExpiresUnix = 0
	if saveErr := provider.accounts.Save(ctx, account); saveErr != nil {
		return Unclassified(saveErr)
	}
	_ = provider.limiter.Reset(ctx, account.Email)
	return nil
}

func (provider *LocalProvider) SignInWithIDToken(ctx context.Context, social SocialProvider, idToken string, nonce string) (Principal, error) {
	verifier, ok := provider.verifiers[social]
	if !ok {
		return Principal{}, Unclassified(fmt.Errorf("%w: %s", errUnconfiguredSocial, social))
	}
	verified, verifyErr := verifier.Verify(ctx, idToken, nonce)
	if verifyErr != nil {
		return Principal{}, &Error{Kind: KindInvalidCredential, Code: KindInvalidCredential.Code(), Message: verifyErr.Error(), Err: verifyErr}
	}
	account, linkErr := provider.linkSocialAccount(ctx, verified)
	if linkErr != nil {
		return Principal{}, linkErr
	}
	if account.Disabled {
		return Principal{}, NewError(KindUserDisabled, "The user account has been disabled by an administrator.")
	}
	return provider.issuePrincipal(ctx, account, string(social)+".com")
}

func (provider *LocalProvider) SignOut(ctx context.Context, credentialToken string) error {
	if strings.TrimSpace(credentialToken) == "" {
		return nil
	}
	_, tokenID, validateErr := provider.tokens.Validate(ctx, credentialToken)
	if validateErr != nil {
		if errors.Is(validateErr, ErrCredentialTokenNotFound) || errors.Is(validateErr, ErrCredentialTokenRevoked) || errors.Is(validateErr, ErrCredentialTokenExpired) {
			return nil
		}
		return Unclassified(validateErr)
	}
	if revokeErr := provider.tokens.Revoke(ctx, tokenID); revokeErr != nil {
		return Unclassified(revokeErr)
	}
	return nil
}

func (provider *LocalProvider) VerifySession(ctx context.Context, userID string, credentialToken string) error {
	if strings.TrimSpace(credentialToken) == "" {
		return NewError(KindInvalidCredential, "The session has no credential.")
	}
	tokenUserID, _, validateErr := provider.tokens.Validate(ctx, credentialToken)
	if validateErr != nil {
		if errors.Is(validateErr, ErrCredentialTokenNotFound) || errors.Is(validateErr, ErrCredentialTokenRevoked) || errors.Is(validateErr, ErrCredentialTokenExpired) || errors.Is(validateErr, ErrCredentialTokenEmpty) {
			return &Error{Kind: KindInvalidCredential, Code: KindInvalidCredential.Code(), Message: "The session credential is no longer valid.", Err: validateErr}
		}
		return Unclassified(validateErr)
	}
	if tokenUserID != userID {
		return NewError(KindInvalidCredential, "The session credential belongs to another user.")
	}
	return nil
}

func (provider *LocalProvider) linkSocialAccount(ctx context.Context, verified SocialIdentity) (Account, error) {
	account, findErr := provider.accounts.FindBySubject(ctx, verified.Provider, verified.Subject)
	if findErr == nil {
		return provider.refreshSocialAttributes(ctx, account, verified)
	}
	if !errors.Is(findErr, errAccountNotFound) {
		return Account{}, Unclassified(findErr)
	}
	if verified.Email != "" && verified.EmailVerified {
		existing, emailErr := provider.accounts.FindByEmail(ctx, verified.Email)
		if emailErr == nil {
			setSubject(&existing, verified)
			return provider.refreshSocialAttributes(ctx, existing, verified)
		}
		if !errors.Is(emailErr, errAccountNotFound) {
			return Account{}, Unclassified(emailErr)
		}
	}
	email := verified.Email
	if email == "" {
		email = string(verified.Provider) + ":" + verified.Subject
	}
	account = Account{
		UserID:        uuid.NewString(),
		Email:         normalizeEmail(email),
		DisplayName:   verified.DisplayName,
		AvatarURL:     verified.AvatarURL,
		CreatedAtUnix: provider.now().UTC().Unix(),
	}
	setSubject(&account, verified)
	if createErr := provider.accounts.Create(ctx, account); createErr != nil {
		return Account{}, Unclassified(createErr)
	}
	return account, nil
}

func (provider *LocalProvider) refreshSocialAttributes(ctx context.Context, account Account, verified SocialIdentity) (Account, error) {
	if verified.DisplayName != "" {
		account.DisplayName = verified.DisplayName
	}
	if verified.AvatarURL != "" {
		account.AvatarURL = verified.AvatarURL
	}
	if saveErr := provider.accounts.Save(ctx, account); saveErr != nil {
		return Account{}, Unclassified(saveErr)
	}
	return account, nil
}

func (provider *LocalProvider) issuePrincipal(ctx context.Context, account Account, providerID string) (Principal, error) {
	expiresUnix := provider.now().UTC().Add(provider.config.CredentialTTL).Unix()
	_, opaque, issueErr := provider.tokens.Issue(ctx, account.UserID, expiresUnix)
	if issueErr != nil {
		return Principal{}, Unclassified(issueErr)
	}
	return Principal{
		UserID:          account.UserID,
		Email:           account.Email,
		DisplayName:     account.DisplayName,
		AvatarURL:       account.AvatarURL,
		ProviderID:      providerID,
		CredentialToken: opaque,
	}, nil
}

func (provider *LocalProvider) recordFailure(ctx context.Context, email string) {
	_ = provider.limiter.RecordFailure(ctx, email)
}

func setSubject(account *Account, verified SocialIdentity) {
	switch verified.Provider {
	case SocialGoogle:
		account.GoogleSubject = verified.Subject
	case SocialApple:
		account.AppleSubject = verified.Subject
	}
}

func buildResetLink(baseURL string, resetToken string) (string, error) {
	parsed, err := url.Parse(baseURL)
	if err != nil {
		return "", fmt.Errorf("reset_link.parse: %w", err)
	}
	query := parsed.Query()
	query.Set("token", resetToken)
	parsed.RawQuery = query.Encode()
	return parsed.String(), nil
}
