package notify

import (
	"log/slog"
	"net"
	"net/url"
	"strconv"
	"strings"

	"github.com/nicholas-fedor/shoutrrr"

	"github.com/maximevalette/backups-reporter/internal/config"
	apperrors "github.com/maximevalette/backups-reporter/internal/errors"
)

type sendMailFunc func(serviceURL, message string) error

var sendMail sendMailFunc = shoutrrr.Send

// SetSendMailForTest allows tests to stub out SMTP delivery.
func SetSendMailForTest(fn sendMailFunc) func() {
	prev := sendMail
	sendMail = fn
	return func() { sendMail = prev }
}

// Mailer delivers the rendered report over SMTP. A delivery failure is
// fatal for the run, unlike webhook notification failures.
type Mailer struct {
	cfg    config.EmailConfig
	logger *slog.Logger
}

// NewMailer creates a mailer from the email configuration
func NewMailer(cfg config.EmailConfig, logger *slog.Logger) *Mailer {
	return &Mailer{cfg: cfg, logger: logger}
}

// Send delivers the HTML document to all configured recipients
func (m *Mailer) Send(subject string, htmlBody []byte) error {
	if err := sendMail(m.serviceURL(subject), string(htmlBody)); err != nil {
		return apperrors.NewDeliveryError("send email report", err)
	}
	m.logger.Info("report sent", "recipients", len(m.cfg.ToEmails), "subject", subject)
	return nil
}

// serviceURL builds the shoutrrr smtp service URL from the SMTP
// settings
func (m *Mailer) serviceURL(subject string) string {
	query := url.Values{}
	query.Set("from", m.cfg.FromEmail)
	query.Set("to", strings.Join(m.cfg.ToEmails, ","))
	query.Set("subject", subject)
	query.Set("UseHTML", "yes")
	if m.cfg.StartTLS() {
		query.Set("UseStartTLS", "yes")
	} else {
		query.Set("UseStartTLS", "no")
	}

	serviceURL := url.URL{
		Scheme:   "smtp",
		Host:     net.JoinHostPort(m.cfg.SMTPServer, strconv.Itoa(m.cfg.SMTPPort)),
		Path:     "/",
		RawQuery: query.Encode(),
	}
	if m.cfg.Username != "" {
		serviceURL.User = url.UserPassword(m.cfg.Username, m.cfg.Password)
	}
	return serviceURL.String()
}
