package flow

// View is the render snapshot of a Controller.
type View struct {
	Mode             Mode
	State            State
	Email            string
	Password         string
	PasswordRevealed bool
	Loading          bool
	Error            string
	Success          string
	Redirect         *Redirect
}

func (view View) Heading() string {
	switch view.Mode {
	case ModeReset:
		return "Reset Password"
	case ModeSignUp:
		return "Create Account"
	default:
		return "Sign In or Join Now!"
	}
}

func (view View) Subheading() string {
	switch view.Mode {
	case ModeReset:
		return "Enter your email to receive a password reset link"
	case ModeSignUp:
		return "Create your Xevora account"
	default:
		return "Login or create your Xevora account"
	}
}

func (view View) Prompt() string {
	if view.Mode == ModeReset {
		return "Enter your email address"
	}
	return "Enter your email address to sign in or create an account"
}

func (view View) SubmitLabel() string {
	switch {
	case view.Loading:
		return "Please wait..."
	case view.Mode == ModeReset:
		return "Send Reset Link"
	case !view.PasswordRevealed:
		return "Continue With Email"
	case view.Mode == ModeSignUp:
		return "Create Account"
	default:
		return "Sign In"
	}
}

// ShowSocial reports whether the Google and Apple buttons are offered.
func (view View) ShowSocial() bool {
	return view.Mode != ModeReset
}

// ShowPassword reports whether the password input is rendered.
func (view View) ShowPassword() bool {
	return view.PasswordRevealed && view.Mode != ModeReset
}

// Form returns the state to embed in the next form post.
func (view View) Form() FormState {
	return FormState{
		Email:            view.Email,
		Password:         view.Password,
		Mode:             string(view.Mode),
		PasswordRevealed: view.PasswordRevealed,
	}
}
