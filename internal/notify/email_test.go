package notify

import (
	"errors"
	"net/url"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/maximevalette/backups-reporter/internal/config"
	apperrors "github.com/maximevalette/backups-reporter/internal/errors"
)

func boolPtr(v bool) *bool { return &v }

func emailConfig() config.EmailConfig {
	return config.EmailConfig{
		SMTPServer: "mail.example.com",
		SMTPPort:   587,
		Username:   "reporter",
		Password:   "hunter2",
		FromEmail:  "backups@example.com",
		ToEmails:   []string{"ops@example.com", "admin@example.com"},
	}
}

func TestMailerServiceURL(t *testing.T) {
	m := NewMailer(emailConfig(), testLogger())

	parsed, err := url.Parse(m.serviceURL("Backups Report - 2026-08-31 12:00"))
	require.NoError(t, err)

	assert.Equal(t, "smtp", parsed.Scheme)
	assert.Equal(t, "mail.example.com:587", parsed.Host)
	assert.Equal(t, "reporter", parsed.User.Username())
	password, _ := parsed.User.Password()
	assert.Equal(t, "hunter2", password)

	query := parsed.Query()
	assert.Equal(t, "backups@example.com", query.Get("from"))
	assert.Equal(t, "ops@example.com,admin@example.com", query.Get("to"))
	assert.Equal(t, "Backups Report - 2026-08-31 12:00", query.Get("subject"))
	assert.Equal(t, "yes", query.Get("UseHTML"))
	assert.Equal(t, "yes", query.Get("UseStartTLS"))
}

func TestMailerServiceURLWithoutTLSAndAuth(t *testing.T) {
	cfg := emailConfig()
	cfg.Username = ""
	cfg.Password = ""
	cfg.UseTLS = boolPtr(false)
	m := NewMailer(cfg, testLogger())

	parsed, err := url.Parse(m.serviceURL("subject"))
	require.NoError(t, err)

	assert.Nil(t, parsed.User)
	assert.Equal(t, "no", parsed.Query().Get("UseStartTLS"))
}

func TestMailerSend(t *testing.T) {
	var gotURL, gotBody string
	reset := SetSendMailForTest(func(serviceURL, message string) error {
		gotURL = serviceURL
		gotBody = message
		return nil
	})
	defer reset()

	m := NewMailer(emailConfig(), testLogger())
	err := m.Send("subject", []byte("<html>report</html>"))

	require.NoError(t, err)
	assert.Contains(t, gotURL, "smtp://")
	assert.Equal(t, "<html>report</html>", gotBody)
}

func TestMailerSendFailureIsDeliveryFailure(t *testing.T) {
	reset := SetSendMailForTest(func(string, string) error {
		return errors.New("dial tcp: i/o timeout")
	})
	defer reset()

	m := NewMailer(emailConfig(), testLogger())
	err := m.Send("subject", []byte("body"))

	require.Error(t, err)
	assert.True(t, apperrors.IsDeliveryFailure(err))
	assert.Contains(t, err.Error(), "i/o timeout")
}
