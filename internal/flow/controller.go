// Package flow sequences the email, password and social sign-in steps of the
// auth screen and turns gateway outcomes into what the form shows next.
package flow

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/xevora/storefront/internal/gateway"
	"github.com/xevora/storefront/internal/identity"
)

// ErrSubmissionInFlight is returned when a submit arrives while another is loading.
var ErrSubmissionInFlight = errors.New("flow.submit.in_flight")

// Authenticator is the credential gateway as seen by the controller.
type Authenticator interface {
	SignInWithEmail(ctx context.Context, email string, password string) (identity.Principal, error)
	SignUpWithEmail(ctx context.Context, email string, password string) (identity.Principal, error)
	ResetPassword(ctx context.Context, email string) error
	SignInWithSocial(ctx context.Context, provider identity.SocialProvider, idToken string, nonce string) (identity.Principal, error)
}

// Outcome is returned by a submission. Authenticated is set when Principal
// should become the session principal.
type Outcome struct {
	Principal     identity.Principal
	Authenticated bool
}

// Controller is the per-screen state machine. It is safe for concurrent use;
// only one submission runs at a time.
type Controller struct {
	authenticator Authenticator

	mutex            sync.Mutex
	email            string
	password         string
	mode             Mode
	passwordRevealed bool
	loading          bool
	state            State
	errorText        string
	successText      string
	redirect         *Redirect
}

// NewController starts a fresh sign-in screen.
func NewController(authenticator Authenticator) *Controller {
	return &Controller{
		authenticator: authenticator,
		mode:          ModeSignIn,
		state:         StateCollectingEmail,
	}
}

// Restore rebuilds a controller from the fields a browser posted back.
func Restore(authenticator Authenticator, form FormState) *Controller {
	controller := NewController(authenticator)
	controller.email = form.Email
	controller.password = form.Password
	controller.mode = ParseMode(form.Mode)
	controller.passwordRevealed = form.PasswordRevealed && controller.mode != ModeReset
	if controller.mode == ModeReset {
		controller.password = ""
	}
	controller.state = controller.collectingState()
	return controller
}

// SetEmail updates the email field. Ignored while a submission is loading.
func (controller *Controller) SetEmail(email string) {
	controller.mutex.Lock()
	defer controller.mutex.Unlock()
	if !controller.loading {
		controller.email = email
	}
}

// SetPassword updates the password field. Ignored while a submission is loading.
func (controller *Controller) SetPassword(password string) {
	controller.mutex.Lock()
	defer controller.mutex.Unlock()
	if !controller.loading {
		controller.password = password
	}
}

// SwitchMode changes the form mode. Entering reset mode clears and hides the
// password; leaving reset for sign-in hides the password field.
func (controller *Controller) SwitchMode(mode Mode) {
	controller.mutex.Lock()
	defer controller.mutex.Unlock()
	if controller.loading {
		return
	}
	switch {
	case mode == ModeReset:
		controller.password = ""
		controller.passwordRevealed = false
	case controller.mode == ModeReset && mode == ModeSignIn:
		controller.passwordRevealed = false
	}
	controller.mode = mode
	controller.errorText = ""
	controller.successText = ""
	controller.redirect = nil
	controller.state = controller.collectingState()
}

// View returns the current render snapshot.
func (controller *Controller) View() View {
	controller.mutex.Lock()
	defer controller.mutex.Unlock()
	var redirect *Redirect
	if controller.redirect != nil {
		copied := *controller.redirect
		redirect = &copied
	}
	return View{
		Mode:             controller.mode,
		State:            controller.state,
		Email:            controller.email,
		Password:         controller.password,
		PasswordRevealed: controller.passwordRevealed,
		Loading:          controller.loading,
		Error:            controller.errorText,
		Success:          controller.successText,
		Redirect:         redirect,
	}
}

// Submit handles the form's submit button for the current step and mode.
// Failures are reported through View; the only error is ErrSubmissionInFlight.
func (controller *Controller) Submit(ctx context.Context) (Outcome, error) {
	controller.mutex.Lock()
	if controller.loading {
		controller.mutex.Unlock()
		return Outcome{}, ErrSubmissionInFlight
	}
	controller.errorText = ""
	controller.successText = ""
	email := controller.email
	password := controller.password
	mode := controller.mode

	if !ValidEmail(email) {
		controller.showErrorLocked(messageInvalidEmail)
		controller.mutex.Unlock()
		return Outcome{}, nil
	}
	if mode == ModeReset {
		controller.beginLocked(StateResetting)
		controller.mutex.Unlock()
		return controller.reset(ctx, email), nil
	}
	if !controller.passwordRevealed {
		controller.passwordRevealed = true
		controller.state = StateCollectingPassword
		controller.mutex.Unlock()
		return Outcome{}, nil
	}
	if !ValidPassword(password) {
		controller.showErrorLocked(messageShortPassword)
		controller.mutex.Unlock()
		return Outcome{}, nil
	}
	if mode == ModeSignUp {
		controller.beginLocked(StateSigningUp)
		controller.mutex.Unlock()
		return controller.signUp(ctx, email, password), nil
	}
	controller.beginLocked(StateSigningIn)
	controller.mutex.Unlock()
	return controller.signIn(ctx, email, password), nil
}

// SignInWithSocial completes a Google or Apple sign-in with an ID token
// obtained by the browser.
func (controller *Controller) SignInWithSocial(ctx context.Context, provider identity.SocialProvider, idToken string, nonce string) (Outcome, error) {
	controller.mutex.Lock()
	if controller.loading {
		controller.mutex.Unlock()
		return Outcome{}, ErrSubmissionInFlight
	}
	controller.errorText = ""
	controller.successText = ""
	controller.beginLocked(StateSigningIn)
	controller.mutex.Unlock()

	principal, err := controller.authenticator.SignInWithSocial(ctx, provider, idToken, nonce)
	if err != nil {
		controller.finishWithError(gateway.MessageOf(err))
		return Outcome{}, nil
	}
	return controller.finishAuthenticated(principal, "", 0), nil
}

// signIn tries the account first and registers it when the provider says the
// credential does not exist.
func (controller *Controller) signIn(ctx context.Context, email string, password string) Outcome {
	principal, signInErr := controller.authenticator.SignInWithEmail(ctx, email, password)
	if signInErr == nil {
		return controller.finishAuthenticated(principal, "", 0)
	}
	if kind := gateway.KindOf(signInErr); kind != identity.KindUserNotFound && kind != identity.KindInvalidCredential {
		controller.finishWithError(gateway.MessageOf(signInErr))
		return Outcome{}
	}

	controller.setState(StateSigningUp)
	principal, signUpErr := controller.authenticator.SignUpWithEmail(ctx, email, password)
	if signUpErr == nil {
		return controller.finishAuthenticated(principal, messageAccountCreated, RedirectDelay)
	}
	// An existing account here means the first failure was a password
	// mismatch. This is a guess; the provider never says so directly.
	if gateway.KindOf(signUpErr) == identity.KindEmailAlreadyInUse {
		controller.finishWithError(messageIncorrectPassword)
		return Outcome{}
	}
	controller.finishWithError(gateway.MessageOf(signUpErr))
	return Outcome{}
}

func (controller *Controller) signUp(ctx context.Context, email string, password string) Outcome {
	principal, err := controller.authenticator.SignUpWithEmail(ctx, email, password)
	if err == nil {
		return controller.finishAuthenticated(principal, "", 0)
	}
	if gateway.KindOf(err) == identity.KindEmailAlreadyInUse {
		controller.mutex.Lock()
		controller.mode = ModeSignIn
		controller.mutex.Unlock()
		controller.finishWithError(messageAccountExists)
		return Outcome{}
	}
	controller.finishWithError(gateway.MessageOf(err))
	return Outcome{}
}

func (controller *Controller) reset(ctx context.Context, email string) Outcome {
	if err := controller.authenticator.ResetPassword(ctx, email); err != nil {
		controller.finishWithError(gateway.MessageOf(err))
		return Outcome{}
	}
	controller.mutex.Lock()
	defer controller.mutex.Unlock()
	controller.loading = false
	controller.successText = messageResetSent
	controller.state = StateMessageShown
	return Outcome{}
}

func (controller *Controller) finishAuthenticated(principal identity.Principal, message string, delay time.Duration) Outcome {
	controller.mutex.Lock()
	defer controller.mutex.Unlock()
	controller.loading = false
	controller.successText = message
	controller.redirect = &Redirect{Target: LandingRoute, Delay: delay}
	controller.state = StateRedirected
	return Outcome{Principal: principal, Authenticated: true}
}

func (controller *Controller) finishWithError(message string) {
	controller.mutex.Lock()
	defer controller.mutex.Unlock()
	controller.loading = false
	controller.showErrorLocked(message)
}

func (controller *Controller) setState(state State) {
	controller.mutex.Lock()
	defer controller.mutex.Unlock()
	controller.state = state
}

func (controller *Controller) beginLocked(state State) {
	controller.loading = true
	controller.redirect = nil
	controller.state = state
}

func (controller *Controller) showErrorLocked(message string) {
	controller.errorText = message
	controller.state = StateErrorShown
}

func (controller *Controller) collectingState() State {
	if controller.passwordRevealed && controller.mode != ModeReset {
		return StateCollectingPassword
	}
	return StateCollectingEmail
}
