package lifecycle

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/maximevalette/backups-reporter/internal/collector"
	"github.com/maximevalette/backups-reporter/internal/config"
	"github.com/maximevalette/backups-reporter/internal/domain"
	"github.com/maximevalette/backups-reporter/internal/notify"
	"github.com/maximevalette/backups-reporter/internal/source"
)

type fakeProvider struct {
	name    string
	entries []domain.Entry
	err     error
}

func (f *fakeProvider) Name() string { return f.name }

func (f *fakeProvider) Fetch(ctx context.Context, limit int) ([]domain.Entry, error) {
	if f.err != nil {
		return nil, f.err
	}
	if len(f.entries) > limit {
		return f.entries[:limit], nil
	}
	return f.entries, nil
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// webhookRecorder records the status field of every JSON webhook call
type webhookRecorder struct {
	mu       sync.Mutex
	statuses []string
	server   *httptest.Server
}

func newWebhookRecorder() *webhookRecorder {
	rec := &webhookRecorder{}
	rec.server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var payload struct {
			Status string `json:"status"`
		}
		_ = json.NewDecoder(r.Body).Decode(&payload)
		rec.mu.Lock()
		rec.statuses = append(rec.statuses, payload.Status)
		rec.mu.Unlock()
	}))
	return rec
}

func (r *webhookRecorder) Statuses() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.statuses...)
}

func (r *webhookRecorder) Count(status string) int {
	count := 0
	for _, s := range r.Statuses() {
		if s == status {
			count++
		}
	}
	return count
}

func goodProvider(name string) source.Provider {
	return &fakeProvider{name: name, entries: []domain.Entry{{
		Source:    name,
		Name:      "daily",
		Timestamp: time.Date(2026, 8, 31, 6, 0, 0, 0, time.UTC),
		Kind:      domain.EntryKindBorgArchive,
	}}}
}

func mailConfig() config.EmailConfig {
	return config.EmailConfig{
		SMTPServer: "mail.example.com",
		SMTPPort:   587,
		FromEmail:  "backups@example.com",
		ToEmails:   []string{"ops@example.com"},
	}
}

func newRunner(providers []source.Provider, mailer *notify.Mailer, webhooks []string, failWhenAllFail bool) *Runner {
	logger := testLogger()
	coll := collector.New(providers, 10, 100, logger)
	notifier := notify.NewNotifier(webhooks, logger)
	return NewRunner(coll, mailer, notifier, failWhenAllFail, logger)
}

func TestRunSucceedsWithoutEmail(t *testing.T) {
	rec := newWebhookRecorder()
	defer rec.server.Close()

	r := newRunner([]source.Provider{goodProvider("borg:nas")}, nil, []string{rec.server.URL + "/hook"}, false)
	err := r.Run(context.Background())

	require.NoError(t, err)
	assert.Equal(t, StateSucceeded, r.State())
	assert.Equal(t, []string{"start", "success"}, rec.Statuses())
}

func TestRunSendsRenderedReport(t *testing.T) {
	var sent string
	reset := notify.SetSendMailForTest(func(_, message string) error {
		sent = message
		return nil
	})
	defer reset()

	rec := newWebhookRecorder()
	defer rec.server.Close()

	mailer := notify.NewMailer(mailConfig(), testLogger())
	r := newRunner([]source.Provider{goodProvider("borg:nas")}, mailer, []string{rec.server.URL + "/hook"}, false)
	err := r.Run(context.Background())

	require.NoError(t, err)
	assert.Equal(t, StateSucceeded, r.State())
	assert.True(t, strings.Contains(sent, "<html>"))
	assert.True(t, strings.Contains(sent, "daily"))
}

func TestRunEmailFailureIsFatal(t *testing.T) {
	reset := notify.SetSendMailForTest(func(string, string) error {
		return errors.New("dial tcp: i/o timeout")
	})
	defer reset()

	first := newWebhookRecorder()
	defer first.server.Close()
	second := newWebhookRecorder()
	defer second.server.Close()

	mailer := notify.NewMailer(mailConfig(), testLogger())
	webhooks := []string{first.server.URL + "/hook", second.server.URL + "/hook"}
	r := newRunner([]source.Provider{goodProvider("borg:nas")}, mailer, webhooks, false)
	err := r.Run(context.Background())

	require.Error(t, err)
	assert.Equal(t, StateFailed, r.State())
	// Failure pinged exactly once per webhook, success never.
	for _, rec := range []*webhookRecorder{first, second} {
		assert.Equal(t, 1, rec.Count("fail"))
		assert.Equal(t, 0, rec.Count("success"))
		assert.Equal(t, 1, rec.Count("start"))
	}
}

func TestRunSourceFailureIsNotFatal(t *testing.T) {
	rec := newWebhookRecorder()
	defer rec.server.Close()

	providers := []source.Provider{
		&fakeProvider{name: "borg:broken", err: errors.New("mount failed")},
		goodProvider("borg:nas"),
	}
	r := newRunner(providers, nil, []string{rec.server.URL + "/hook"}, false)
	err := r.Run(context.Background())

	require.NoError(t, err)
	assert.Equal(t, StateSucceeded, r.State())
	assert.Equal(t, []string{"start", "success"}, rec.Statuses())
}

func TestRunAllSourcesFailedPolicy(t *testing.T) {
	providers := []source.Provider{
		&fakeProvider{name: "borg:a", err: errors.New("boom")},
		&fakeProvider{name: "s3:b", err: errors.New("denied")},
	}

	t.Run("default keeps the run successful", func(t *testing.T) {
		rec := newWebhookRecorder()
		defer rec.server.Close()

		r := newRunner(providers, nil, []string{rec.server.URL + "/hook"}, false)
		require.NoError(t, r.Run(context.Background()))
		assert.Equal(t, StateSucceeded, r.State())
	})

	t.Run("flag promotes it to a failure", func(t *testing.T) {
		rec := newWebhookRecorder()
		defer rec.server.Close()

		r := newRunner(providers, nil, []string{rec.server.URL + "/hook"}, true)
		err := r.Run(context.Background())
		require.Error(t, err)
		assert.Equal(t, StateFailed, r.State())
		assert.Equal(t, 1, rec.Count("fail"))
		assert.Equal(t, 0, rec.Count("success"))
	})
}

func TestRunCleanupRunsOnceOnEveryPath(t *testing.T) {
	reset := notify.SetSendMailForTest(func(string, string) error {
		return errors.New("smtp down")
	})
	defer reset()

	rec := newWebhookRecorder()
	defer rec.server.Close()

	t.Run("failure path", func(t *testing.T) {
		mailer := notify.NewMailer(mailConfig(), testLogger())
		r := newRunner([]source.Provider{goodProvider("borg:nas")}, mailer, []string{rec.server.URL + "/hook"}, false)
		released := 0
		r.RegisterCleanup(func() { released++ })

		require.Error(t, r.Run(context.Background()))
		assert.Equal(t, 1, released)
	})

	t.Run("success path", func(t *testing.T) {
		r := newRunner([]source.Provider{goodProvider("borg:nas")}, nil, []string{rec.server.URL + "/hook"}, false)
		released := 0
		r.RegisterCleanup(func() { released++ })

		require.NoError(t, r.Run(context.Background()))
		assert.Equal(t, 1, released)
	})
}

func TestRunnerInitialState(t *testing.T) {
	r := newRunner(nil, nil, nil, false)
	assert.Equal(t, StateNotStarted, r.State())
}
