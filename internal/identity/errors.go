package identity

import (
	"errors"
	"strings"
)

// ErrorKind classifies identity provider failures.
type ErrorKind int

const (
	// KindUnclassified covers transport failures and codes outside the known set.
	KindUnclassified ErrorKind = iota
	KindInvalidCredential
	KindUserNotFound
	KindWrongPassword
	KindInvalidEmail
	KindUserDisabled
	KindTooManyRequests
	KindEmailAlreadyInUse
	KindWeakPassword
)

var kindCodes = map[ErrorKind]string{
	KindUnclassified:      "auth/unclassified",
	KindInvalidCredential: "auth/invalid-credential",
	KindUserNotFound:      "auth/user-not-found",
	KindWrongPassword:     "auth/wrong-password",
	KindInvalidEmail:      "auth/invalid-email",
	KindUserDisabled:      "auth/user-disabled",
	KindTooManyRequests:   "auth/too-many-requests",
	KindEmailAlreadyInUse: "auth/email-already-in-use",
	KindWeakPassword:      "auth/weak-password",
}

// Code returns the provider code string for the kind.
func (kind ErrorKind) Code() string {
	if code, ok := kindCodes[kind]; ok {
		return code
	}
	return kindCodes[KindUnclassified]
}

func (kind ErrorKind) String() string {
	return strings.TrimPrefix(kind.Code(), "auth/")
}

// ParseCode maps a provider code such as "auth/user-not-found" to its kind.
// The "auth/" prefix is optional.
func ParseCode(code string) ErrorKind {
	normalized := strings.ToLower(strings.TrimSpace(code))
	if !strings.HasPrefix(normalized, "auth/") {
		normalized = "auth/" + normalized
	}
	for kind, knownCode := range kindCodes {
		if knownCode == normalized {
			return kind
		}
	}
	return KindUnclassified
}

// Error is returned by every Provider operation that fails.
type Error struct {
	Kind    ErrorKind
	Code    string
	Message string
	Err     error
}

// NewError builds an Error for kind with the provider's message.
func NewError(kind ErrorKind, message string) *Error {
	return &Error{Kind: kind, Code: kind.Code(), Message: message}
}

// Unclassified wraps a transport or unknown failure.
func Unclassified(err error) *Error {
	if err == nil {
		return nil
	}
	return &Error{Kind: KindUnclassified, Code: KindUnclassified.Code(), Message: err.Error(), Err: err}
}

func (providerErr *Error) Error() string {
	if providerErr.Message != "" {
		return providerErr.Code + ": " + providerErr.Message
	}
	return providerErr.Code
}

func (providerErr *Error) Unwrap() error {
	return providerErr.Err
}

// KindOf reports the kind carried by err, or KindUnclassified.
func KindOf(err error) ErrorKind {
	var providerErr *Error
	if errors.As(err, &providerErr) {
		return providerErr.Kind
	}
	return KindUnclassified
}

// MessageOf returns the provider message carried by err.
func MessageOf(err error) string {
	if err == nil {
		return ""
	}
	var providerErr *Error
	if errors.As(err, &providerErr) {
		return providerErr.Message
	}
	return err.Error()
}
