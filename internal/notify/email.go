// Package notify delivers applicant-facing status messages over SMTP.
package notify

import (
	"context"
	"crypto/tls"
	"fmt"

	mail "github.com/go-mail/mail/v2"

	"github.com/instavisa/instavisa/internal/application"
)

type EmailSink struct {
	dialer *mail.Dialer
	from   string
}

func NewEmailSink(host string, port int, username, password, from string) *EmailSink {
	d := mail.NewDialer(host, port, username, password)
	d.StartTLSPolicy = mail.MandatoryStartTLS
	d.TLSConfig = &tls.Config{ServerName: host}

	return &EmailSink{
		dialer: d,
		from:   from,
	}
}

// Notify sends one message for one state change. The engine treats failures
// as best-effort; this method just reports them.
func (s *EmailSink) Notify(ctx context.Context, recipient *application.User, kind application.NotificationKind, app *application.Application, remarks string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	if recipient.Email == "" {
		return fmt.Errorf("recipient %s has no email address", recipient.ID)
	}

	subject, body := compose(recipient, kind, app, remarks)

	m := mail.NewMessage()
	m.SetHeader("From", s.from)
	m.SetHeader("To", recipient.Email)
	m.SetHeader("Subject", subject)
	m.SetBody("text/html", body)

	if err := s.dialer.DialAndSend(m); err != nil {
		return fmt.Errorf("sending mail: %w", err)
	}

	return nil
}

var statusLines = map[application.Status]string{
	application.StatusPending:           "We have received your application and payment. It is now queued for review.",
	application.StatusUnderReview:       "Your application is being reviewed by our team.",
	application.StatusDocumentsRequired: "We need additional documents from you. Please log in and upload them.",
	application.StatusDocumentsApproved: "Your documents have been approved.",
	application.StatusSentToEmbassy:     "Your application has been forwarded to the embassy.",
	application.StatusEmbassyApproved:   "The embassy has approved your application.",
	application.StatusEmbassyRejected:   "The embassy was unable to approve your application.",
	application.StatusApproved:          "Congratulations! Your visa has been approved.",
	application.StatusRejected:          "Unfortunately your application could not be approved.",
}

func compose(recipient *application.User, kind application.NotificationKind, app *application.Application, remarks string) (string, string) {
	var subject, line string

	switch kind {
	case application.NotifyPaymentReceived:
		subject = fmt.Sprintf("Payment received for application %s", app.Number)
		line = "Your payment was received and your application has been submitted."
	case application.NotifyESIMUpdated:
		subject = fmt.Sprintf("eSIM update for application %s", app.Number)
		line = fmt.Sprintf("Your eSIM order is now %s.", app.ESIM.Status)
	default:
		subject = fmt.Sprintf("Update on your visa application %s", app.Number)
		line = statusLines[app.Status]
		if line == "" {
			line = fmt.Sprintf("Your application status is now %s.", app.Status)
		}
	}

	body := fmt.Sprintf("<p>Dear %s,</p><p>%s</p>", recipient.Name, line)
	if remarks != "" {
		body += fmt.Sprintf("<p>Remarks: %s</p>", remarks)
	}

	body += fmt.Sprintf("<p>Application number: <b>%s</b></p>", app.Number)

	return subject, body
}
