package notify

import (
	"context"
	"errors"
	"fmt"
	"html"
	"strings"

	"github.com/sendgrid/rest"
	"github.com/sendgrid/sendgrid-go"
	"github.com/sendgrid/sendgrid-go/helpers/mail"
	"github.com/sirupsen/logrus"
)

type sender interface {
	SendWithContext(ctx context.Context, email *mail.SGMailV3) (*rest.Response, error)
}

type EmailConfig struct {
	APIKey      string
	FromName    string
	FromAddress string
	To          []string
}

type EmailNotifier struct {
	client sender
	from   *mail.Email
	to     []string
	logger logrus.FieldLogger
}

func NewEmailNotifier(cfg EmailConfig, logger logrus.FieldLogger) (*EmailNotifier, error) {
	if cfg.APIKey == "" {
		return nil, errors.New("sendgrid API key is required")
	}
	if cfg.FromAddress == "" || len(cfg.To) == 0 {
		return nil, errors.New("sender address and at least one recipient are required")
	}
	if logger == nil {
		logger = logrus.StandardLogger()
	}

	return &EmailNotifier{
		client: sendgrid.NewSendClient(cfg.APIKey),
		from:   mail.NewEmail(cfg.FromName, cfg.FromAddress),
		to:     cfg.To,
		logger: logger,
	}, nil
}

func (n *EmailNotifier) NotifyRegressions(ctx context.Context, regressions []Regression) error {
	if len(regressions) == 0 {
		return nil
	}

	subject := fmt.Sprintf("Nightly E2E: %d guide(s) failing", len(regressions))
	plain, rich := renderRegressions(regressions)

	p := mail.NewPersonalization()
	for _, addr := range n.to {
		p.AddTos(mail.NewEmail("", addr))
	}

	email := mail.NewV3Mail()
	email.SetFrom(n.from)
	email.Subject = subject
	email.AddPersonalizations(p)
	email.AddContent(mail.NewContent("text/plain", plain), mail.NewContent("text/html", rich))

	response, err := n.client.SendWithContext(ctx, email)
	if err != nil {
		return fmt.Errorf("failed to send email: %w", err)
	}
	if response.StatusCode >= 400 {
		return fmt.Errorf("sendgrid error: status %d", response.StatusCode)
	}

	n.logger.WithFields(logrus.Fields{
		"recipients":  len(n.to),
		"regressions": len(regressions),
		"status":      response.StatusCode,
	}).Info("Regression alert sent")
	return nil
}

func renderRegressions(regressions []Regression) (string, string) {
	var plain, body strings.Builder
	body.WriteString("<ul>")
	for _, r := range regressions {
		fmt.Fprintf(&plain, "- %s (%s): run #%d failed %s\n", r.Guide, r.Platform, r.RunNumber, r.HTMLURL)
		fmt.Fprintf(&body, `<li>%s (%s): <a href="%s">run #%d</a> failed</li>`,
			html.EscapeString(r.Guide), html.EscapeString(r.Platform), html.EscapeString(r.HTMLURL), r.RunNumber)
	}
	body.WriteString("</ul>")
	return plain.String(), body.String()
}
