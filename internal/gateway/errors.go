package gateway

import (
	"errors"

	"github.com/xevora/storefront/internal/identity"
)

// Error is the normalized failure returned by every Gateway operation.
// Message is safe to show to the user; Kind is what callers branch on.
type Error struct {
	Kind    identity.ErrorKind
	Message string
	Cause   error
}

func (gatewayErr *Error) Error() string {
	return gatewayErr.Message
}

func (gatewayErr *Error) Unwrap() error {
	return gatewayErr.Cause
}

// KindOf returns the kind carried by err, or identity.KindUnclassified.
func KindOf(err error) identity.ErrorKind {
	var gatewayErr *Error
	if errors.As(err, &gatewayErr) {
		return gatewayErr.Kind
	}
	return identity.KindOf(err)
}

// MessageOf returns the user-facing text for err.
func MessageOf(err error) string {
	if err == nil {
		return ""
	}
	var gatewayErr *Error
	if errors.As(err, &gatewayErr) {
		return gatewayErr.Message
	}
	return err.Error()
}

// messageTable maps provider kinds onto fixed user-facing text for one operation.
type messageTable struct {
	fixed    map[identity.ErrorKind]string
	fallback string
}

var (
	signInMessages = messageTable{
		fixed: map[identity.ErrorKind]string{
			identity.KindInvalidCredential: "Invalid email or password. Please check your credentials and try again.",
			identity.KindUserNotFound:      "No account found with this email. Please sign up.",
			identity.KindWrongPassword:     "Incorrect password. Please try again.",
			identity.KindInvalidEmail:      "Invalid email address.",
			identity.KindUserDisabled:      "This account has been disabled.",
			identity.KindTooManyRequests:   "Too many failed attempts. Please try again later.",
		},
		fallback: "Failed to sign in",
	}
	signUpMessages = messageTable{
		fixed: map[identity.ErrorKind]string{
			identity.KindEmailAlreadyInUse: "An account with this email already exists. Please sign in.",
			identity.KindInvalidEmail:      "Invalid email address.",
			identity.KindWeakPassword:      "Password should be at least 6 characters.",
		},
		fallback: "Failed to create account",
	}
	resetMessages = messageTable{
		fixed: map[identity.ErrorKind]string{
			identity.KindUserNotFound: "No account found with this email.",
			identity.KindInvalidEmail: "Invalid email address.",
		},
		fallback: "Failed to send reset email",
	}
	signOutMessages = messageTable{fallback: "Failed to sign out"}
	sessionMessages = messageTable{
		fixed: map[identity.ErrorKind]string{
			identity.KindInvalidCredential: "Your session has ended. Please sign in again.",
		},
		fallback: "Failed to verify session",
	}
)

// normalize wraps a provider failure. Kinds without fixed text keep the
// provider's own message, falling back to the table default.
func (table messageTable) normalize(err error) *Error {
	kind := identity.KindOf(err)
	if message, ok := table.fixed[kind]; ok {
		return &Error{Kind: kind, Message: message, Cause: err}
	}
	message := identity.MessageOf(err)
	if message == "" {
		message = table.fallback
	}
	return &Error{Kind: kind, Message: message, Cause: err}
}

func socialMessages(provider identity.SocialProvider) messageTable {
	return messageTable{fallback: "Failed to sign in with " + provider.DisplayName()}
}
