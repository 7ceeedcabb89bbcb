package mailer

import (
	"context"
	"fmt"
	"net/http"

	"github.com/sendgrid/sendgrid-go"
	"github.com/sendgrid/sendgrid-go/helpers/mail"
	"go.uber.org/zap"
)

// Message is a single outbound email
type Message struct {
	ToName    string
	ToAddress string
	Subject   string
	PlainText string
	HTML      string
}

// Mailer delivers outbound email
type Mailer interface {
	Send(ctx context.Context, msg Message) error
}

// SendGrid delivers mail through the SendGrid v3 API
type SendGrid struct {
	client *sendgrid.Client
	from   *mail.Email
}

// NewSendGrid returns a SendGrid mailer sending as fromName <fromAddress>
func NewSendGrid(apiKey, fromName, fromAddress string) *SendGrid {
	return &SendGrid{
		client: sendgrid.NewSendClient(apiKey),
		from:   mail.NewEmail(fromName, fromAddress),
	}
}

// Send implements Mailer
func (s *SendGrid) Send(ctx context.Context, msg Message) error {
	to := mail.NewEmail(msg.ToName, msg.ToAddress)
	message := mail.NewSingleEmail(s.from, msg.Subject, to, msg.PlainText, msg.HTML)

	response, err := s.client.SendWithContext(ctx, message)
	if err != nil {
		return fmt.Errorf("failed to send email: %w", err)
	}
	if response.StatusCode >= http.StatusMultipleChoices {
		zap.S().Errorw("sendgrid returned error status", "status", response.StatusCode, "body", response.Body)
		return fmt.Errorf("sendgrid error: status %d", response.StatusCode)
	}
	zap.S().Infow("email sent successfully", "subject", msg.Subject)
	return nil
}

// LogMailer only logs outgoing mail. It is used when no SendGrid key is
// configured.
type LogMailer struct{}

// Send implements Mailer
func (LogMailer) Send(_ context.Context, msg Message) error {
	zap.S().Infow("email delivery disabled, dropping message", "subject", msg.Subject)
	return nil
}
