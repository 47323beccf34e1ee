package notify

import (
	"bytes"
	"context"
	"fmt"
	"html/template"
	"log/slog"
	"net/url"
	"strings"

	"github.com/joshua-takyi/reviewtrust/internal/models"
	"github.com/wneessen/go-mail"
)

type SMTPConfig struct {
	Host      string
	Port      int
	Username  string
	Password  string
	From      string
	BaseURL   string
	TLSPolicy mail.TLSPolicy
}

// SMTPNotifier sends the pipeline's e-mails over SMTP.
type SMTPNotifier struct {
	cfg    SMTPConfig
	logger *slog.Logger
}

func NewSMTPNotifier(cfg SMTPConfig, logger *slog.Logger) (*SMTPNotifier, error) {
	if cfg.Host == "" {
		return nil, fmt.Errorf("smtp host is required")
	}
	if cfg.From == "" {
		return nil, fmt.Errorf("sender address is required")
	}
	if cfg.Port == 0 {
		cfg.Port = 587
	}
	return &SMTPNotifier{cfg: cfg, logger: logger}, nil
}

var (
	verificationTmpl = template.Must(template.New("verify").Parse(`<!DOCTYPE html>
<html>
<body style="font-family: Arial, sans-serif; background-color: #f9f9f9; padding: 20px;">
	<div style="max-width: 600px; margin: auto; background-color: white; padding: 20px; border-radius: 10px;">
		<h2 style="color: #333;">Confirm your review</h2>
		<p>Hi {{.Name}},</p>
		<p>Thanks for reviewing {{if .BusinessName}}{{.BusinessName}}{{else}}this business{{end}}. Your review goes live once you confirm this address.</p>
		<p><a href="{{.Link}}" style="background-color: #222; color: white; padding: 10px 16px; border-radius: 6px; text-decoration: none;">Confirm review</a></p>
		<p style="color: #777; font-size: 12px;">The link expires in 24 hours. If you did not write this review you can ignore this e-mail.</p>
	</div>
</body>
</html>`))

	publishedTmpl = template.Must(template.New("published").Parse(`<!DOCTYPE html>
<html>
<body style="font-family: Arial, sans-serif; background-color: #f9f9f9; padding: 20px;">
	<div style="max-width: 600px; margin: auto; background-color: white; padding: 20px; border-radius: 10px;">
		<h2 style="color: #333;">Your review is live</h2>
		<p>Your review of {{if .BusinessName}}{{.BusinessName}}{{else}}the business{{end}} has been published. Thank you for sharing your experience.</p>
	</div>
</body>
</html>`))

	lowRatingTmpl = template.Must(template.New("alert").Parse(`<!DOCTYPE html>
<html>
<body style="font-family: Arial, sans-serif; background-color: #f9f9f9; padding: 20px;">
	<div style="max-width: 600px; margin: auto; background-color: white; padding: 20px; border-radius: 10px;">
		<h2 style="color: #b00020;">Rating alert for {{.BusinessName}}</h2>
		<p>Your average rating is now <strong>{{printf "%.1f" .Average}}</strong>.</p>
		<p>The latest review ({{.Summary.Rating}}/5) from {{.Summary.ReviewerName}}:</p>
		{{if .Summary.Title}}<h4>{{.Summary.Title}}</h4>{{end}}
		<blockquote style="border-left: 3px solid #ddd; padding-left: 10px; color: #555;">{{.Summary.Snippet}}</blockquote>
	</div>
</body>
</html>`))
)

func (n *SMTPNotifier) VerificationLink(token string) string {
	base := strings.TrimRight(n.cfg.BaseURL, "/")
	return base + "/api/v1/reviews/verify?token=" + url.QueryEscape(token)
}

func (n *SMTPNotifier) SendVerificationEmail(ctx context.Context, email, name, token, businessName string) error {
	body, err := render(verificationTmpl, map[string]any{
		"Name":         name,
		"BusinessName": businessName,
		"Link":         n.VerificationLink(token),
	})
	if err != nil {
		return err
	}
	return n.send(ctx, email, "Confirm your review", body)
}

func (n *SMTPNotifier) SendPublishedConfirmation(ctx context.Context, email, businessName string) error {
	body, err := render(publishedTmpl, map[string]any{"BusinessName": businessName})
	if err != nil {
		return err
	}
	return n.send(ctx, email, "Your review has been published", body)
}

func (n *SMTPNotifier) SendLowRatingAlert(ctx context.Context, ownerEmail, businessName string, averageRating float64, summary models.SubmissionSummary) error {
	body, err := render(lowRatingTmpl, map[string]any{
		"BusinessName": businessName,
		"Average":      averageRating,
		"Summary":      summary,
	})
	if err != nil {
		return err
	}
	subject := fmt.Sprintf("%s: average rating dropped to %.1f", businessName, averageRating)
	return n.send(ctx, ownerEmail, subject, body)
}

func (n *SMTPNotifier) send(ctx context.Context, to, subject, htmlBody string) error {
	msg := mail.NewMsg()
	if err := msg.From(n.cfg.From); err != nil {
		return fmt.Errorf("invalid sender: %w", err)
	}
	if err := msg.To(to); err != nil {
		return fmt.Errorf("invalid recipient: %w", err)
	}
	msg.Subject(subject)
	msg.SetBodyString(mail.TypeTextHTML, htmlBody)

	opts := []mail.Option{
		mail.WithPort(n.cfg.Port),
		mail.WithTLSPolicy(n.cfg.TLSPolicy),
	}
	if n.cfg.Username != "" {
		opts = append(opts,
			mail.WithSMTPAuth(mail.SMTPAuthLogin),
			mail.WithUsername(n.cfg.Username),
			mail.WithPassword(n.cfg.Password),
		)
	}
	client, err := mail.NewClient(n.cfg.Host, opts...)
	if err != nil {
		return fmt.Errorf("creating smtp client: %w", err)
	}

	if err := client.DialAndSendWithContext(ctx, msg); err != nil {
		return fmt.Errorf("sending mail: %w", err)
	}
	n.logger.Debug("Mail sent", "subject", subject)
	return nil
}

func render(t *template.Template, data any) (string, error) {
	var buf bytes.Buffer
	if err := t.Execute(&buf, data); err != nil {
		return "", fmt.Errorf("rendering %s template: %w", t.Name(), err)
	}
	return buf.String(), nil
}
