package flow

import (
	"regexp"
	"strings"
	"time"
	"unicode/utf8"
)

// Mode selects which form the auth screen shows.
type Mode string

const (
	ModeSignIn Mode = "signin"
	ModeSignUp Mode = "signup"
	ModeReset  Mode = "reset"
)

// ParseMode returns the mode named by value, defaulting to ModeSignIn.
func ParseMode(value string) Mode {
	switch Mode(strings.ToLower(strings.TrimSpace(value))) {
	case ModeSignUp:
		return ModeSignUp
	case ModeReset:
		return ModeReset
	default:
		return ModeSignIn
	}
}

// State is the controller's position in the sign-in sequence.
type State string

const (
	StateCollectingEmail    State = "collecting-email"
	StateCollectingPassword State = "collecting-password"
	StateSigningIn          State = "signing-in"
	StateSigningUp          State = "signing-up"
	StateResetting          State = "resetting"
	StateRedirected         State = "redirected"
	StateErrorShown         State = "error-shown"
	StateMessageShown       State = "message-shown"
)

// LandingRoute is where successful authentication navigates.
const LandingRoute = "/"

// RedirectDelay is how long the account-created message stays up before navigating.
const RedirectDelay = time.Second

// MinPasswordLength mirrors the provider's password policy for local checks.
const MinPasswordLength = 6

const (
	messageInvalidEmail      = "Please enter a valid email address"
	messageShortPassword     = "Password must be at least 6 characters"
	messageIncorrectPassword = "Incorrect password. Please try again or reset your password."
	messageAccountExists     = "Account already exists. Please sign in."
	messageResetSent         = "Password reset email sent! Check your inbox."
	messageAccountCreated    = "Account created successfully! Redirecting..."
)

var emailPattern = regexp.MustCompile(`^[^\s@]+@[^\s@]+\.[^\s@]+$`)

// ValidEmail reports whether email has a plausible address shape.
func ValidEmail(email string) bool {
	return emailPattern.MatchString(email)
}

// ValidPassword reports whether password has at least MinPasswordLength characters.
func ValidPassword(password string) bool {
	return utf8.RuneCountInString(password) >= MinPasswordLength
}

// Redirect is a pending navigation.
type Redirect struct {
	Target string
	Delay  time.Duration
}

// FormState is the part of the controller carried by the HTML form between requests.
type FormState struct {
	Email            string `form:"email"`
	Password         string `form:"password"`
	Mode             string `form:"mode"`
	PasswordRevealed bool   `form:"password_revealed"`
}
