package source

import (
	"context"

	"github.com/maximevalette/backups-reporter/internal/domain"
)

// Provider fetches a bounded, time-ordered list of backup entries from
// one configured source. Implementations must release any resource they
// acquire (such as a repository mount) before Fetch returns, on every
// path, and must never return more than limit entries.
type Provider interface {
	// Name returns the source label, e.g. "borg:nas" or "s3:offsite"
	Name() string

	// Fetch returns the limit most recent entries, newest first
	Fetch(ctx context.Context, limit int) ([]domain.Entry, error)
}
