package sender

import (
	"context"
	"log/slog"
	"strings"

	"github.com/wneessen/go-mail"

	"github.com/smartcare/schedd/internal/schedule"
)

// EmailConfig holds SMTP relay settings.
type EmailConfig struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string
	TLS      bool
}

// EmailSender delivers job payloads as mail through one SMTP relay. The job
// name becomes the subject; content_type selects a plain-text or HTML body.
type EmailSender struct {
	cfg    EmailConfig
	logger *slog.Logger
}

// NewEmail creates the SMTP transport. The relay is dialed per send, so a
// relay outage surfaces as a failed dispatch, not a startup error.
func NewEmail(cfg EmailConfig, logger *slog.Logger) *EmailSender {
	if cfg.Port <= 0 {
		cfg.Port = 587
	}
	return &EmailSender{cfg: cfg, logger: logger}
}

// Send composes and delivers one message to the csv of recipients.
func (e *EmailSender) Send(ctx context.Context, job *schedule.Job) schedule.SendResult {
	to := splitRecipients(deref(job.EmailTo))
	if len(to) == 0 {
		return schedule.SendResult{Detail: "Missing email_to"}
	}

	msg := mail.NewMsg()
	if err := msg.From(e.cfg.From); err != nil {
		return schedule.SendResult{Detail: truncateDetail("invalid from address: " + err.Error())}
	}
	if err := msg.To(to...); err != nil {
		return schedule.SendResult{Detail: truncateDetail("invalid recipient: " + err.Error())}
	}
	msg.Subject(job.Name)

	body := mail.TypeTextPlain
	if strings.Contains(strings.ToLower(job.ContentTypeOrDefault()), "html") {
		body = mail.TypeTextHTML
	}
	msg.SetBodyString(body, job.PayloadString())

	opts := []mail.Option{
		mail.WithPort(e.cfg.Port),
		mail.WithTimeout(job.Timeout()),
	}
	if e.cfg.Username != "" {
		opts = append(opts,
			mail.WithSMTPAuth(mail.SMTPAuthPlain),
			mail.WithUsername(e.cfg.Username),
			mail.WithPassword(e.cfg.Password),
		)
	}
	if e.cfg.TLS {
		opts = append(opts, mail.WithTLSPolicy(mail.TLSMandatory))
	} else {
		opts = append(opts, mail.WithTLSPolicy(mail.TLSOpportunistic))
	}

	client, err := mail.NewClient(e.cfg.Host, opts...)
	if err != nil {
		return schedule.SendResult{Detail: truncateDetail(err.Error())}
	}
	if err := client.DialAndSendWithContext(ctx, msg); err != nil {
		return schedule.SendResult{Detail: truncateDetail(err.Error())}
	}
	return schedule.SendResult{OK: true, Detail: "sent to " + strings.Join(to, ",")}
}

func splitRecipients(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if addr := strings.TrimSpace(part); addr != "" {
			out = append(out, addr)
		}
	}
	return out
}
