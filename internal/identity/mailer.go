package identity

import (
	"context"
	"errors"
	"fmt"

	"gopkg.in/gomail.v2"
)

var errMailerMissingFrom = errors.New("mailer.missing_from")

// Mailer delivers password reset links.
type Mailer interface {
	SendPasswordReset(ctx context.Context, recipient string, resetLink string) error
}

// Sender abstracts gomail delivery so tests can capture messages.
type Sender interface {
	DialAndSend(messages ...*gomail.Message) error
}

// SMTPConfig configures outbound reset email.
type SMTPConfig struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string
}

// SMTPMailer sends reset messages through gomail.
type SMTPMailer struct {
	from   string
	sender Sender
}

// NewSMTPMailer builds a mailer dialing the configured SMTP server.
func NewSMTPMailer(config SMTPConfig) (*SMTPMailer, error) {
	if config.From == "" {
		return nil, errMailerMissingFrom
	}
	return &SMTPMailer{
		from:   config.From,
		sender: gomail.NewDialer(config.Host, config.Port, config.Username, config.Password),
	}, nil
}

// NewMailerWithSender builds a mailer on a custom Sender.
func NewMailerWithSender(from string, sender Sender) *SMTPMailer {
	return &SMTPMailer{from: from, sender: sender}
}

func (mailer *SMTPMailer) SendPasswordReset(ctx context.Context, recipient string, resetLink string) error {
	message := gomail.NewMessage()
	message.SetHeader("From", mailer.from)
	message.SetHeader("To", recipient)
	message.SetHeader("Subject", "Reset your Xevora password")
	message.SetBody("text/plain", fmt.Sprintf("Follow this link to reset your Xevora password:\n\n%s\n\nIf you didn't ask to reset your password, you can ignore this email.\n", resetLink))
	message.AddAlternative("text/html", fmt.Sprintf(`<p>Follow this link to reset your Xevora password:</p><p><a href="%s">Reset password</a></p><p>If you didn't ask to reset your password, you can ignore this email.</p>`, resetLink))
	if err := mailer.sender.DialAndSend(message); err != nil {
		return fmt.Errorf("mailer.send: %w", err)
	}
	return nil
}
