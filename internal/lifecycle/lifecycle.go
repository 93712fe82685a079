package lifecycle

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/maximevalette/backups-reporter/internal/collector"
	"github.com/maximevalette/backups-reporter/internal/domain"
	apperrors "github.com/maximevalette/backups-reporter/internal/errors"
	"github.com/maximevalette/backups-reporter/internal/notify"
	"github.com/maximevalette/backups-reporter/internal/report"
)

// State represents where a run is in its lifecycle
type State string

const (
	StateNotStarted State = "not_started"
	StateRunning    State = "running"
	StateSucceeded  State = "succeeded"
	StateFailed     State = "failed"
)

// Runner drives one full report run: start signal, collection,
// rendering, email delivery, terminal signal and cleanup. A webhook
// failure never fails the run; an email failure always does.
type Runner struct {
	collector              *collector.Collector
	mailer                 *notify.Mailer // nil when email is not configured
	notifier               *notify.Notifier
	failWhenAllSourcesFail bool
	logger                 *slog.Logger

	mu       sync.Mutex
	state    State
	cleanups []func()
}

// NewRunner wires a runner from its collaborators
func NewRunner(c *collector.Collector, mailer *notify.Mailer, notifier *notify.Notifier, failWhenAllSourcesFail bool, logger *slog.Logger) *Runner {
	return &Runner{
		collector:              c,
		mailer:                 mailer,
		notifier:               notifier,
		failWhenAllSourcesFail: failWhenAllSourcesFail,
		logger:                 logger,
		state:                  StateNotStarted,
	}
}

// State returns the current lifecycle state
func (r *Runner) State() State {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state
}

func (r *Runner) setState(s State) {
	r.mu.Lock()
	r.state = s
	r.mu.Unlock()
}

// RegisterCleanup records a finalizer that must run exactly once when
// the run reaches a terminal state, whichever one it is
func (r *Runner) RegisterCleanup(fn func()) {
	r.mu.Lock()
	r.cleanups = append(r.cleanups, fn)
	r.mu.Unlock()
}

// Run executes the full lifecycle and returns the fatal error, if any.
// The caller maps nil to exit code 0 and anything else to non-zero.
func (r *Runner) Run(ctx context.Context) error {
	r.setState(StateRunning)
	r.notifier.Ping(ctx, domain.LifecycleEvent{
		Status:  domain.StatusStart,
		Message: "backups report generation started",
	})

	defer r.finalize()

	summary, err := r.execute(ctx)
	if err != nil {
		r.setState(StateFailed)
		r.logger.Error("backups report generation failed", "err", err)
		r.notifier.Ping(ctx, domain.LifecycleEvent{
			Status:  domain.StatusFail,
			Message: fmt.Sprintf("backups report generation failed: %v", err),
		})
		return err
	}

	r.setState(StateSucceeded)
	r.logger.Info("backups report generation completed", "summary", summary)
	r.notifier.Ping(ctx, domain.LifecycleEvent{
		Status:  domain.StatusSuccess,
		Message: summary,
	})
	return nil
}

func (r *Runner) execute(ctx context.Context) (string, error) {
	rep := r.collector.Collect(ctx)

	if r.failWhenAllSourcesFail && rep.AllSourcesFailed() {
		return "", fmt.Errorf("all %d sources failed", len(rep.Statuses))
	}

	if r.mailer != nil {
		doc, err := report.RenderHTML(rep)
		if err != nil {
			return "", apperrors.NewDeliveryError("render report", err)
		}
		if err := r.mailer.Send(report.Subject(rep), doc); err != nil {
			return "", err
		}
	}

	return rep.Summary(), nil
}

// finalize releases everything registered during the running phase,
// exactly once, on every exit path
func (r *Runner) finalize() {
	r.mu.Lock()
	cleanups := r.cleanups
	r.cleanups = nil
	r.mu.Unlock()

	for i := len(cleanups) - 1; i >= 0; i-- {
		cleanups[i]()
	}
}
