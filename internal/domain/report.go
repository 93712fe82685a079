package domain

import (
	"fmt"
	"sort"
	"time"
)

// Report represents the aggregated result of one collection run
type Report struct {
	RunID       string
	GeneratedAt time.Time

	// Entries is sorted by timestamp descending across all sources,
	// truncated to the configured global maximum.
	Entries []Entry

	// Statuses maps every configured source label to nil (ok) or the
	// error that made it fail.
	Statuses map[string]error

	// TotalBeforeTruncation counts all collected entries, including
	// those dropped by the global cap.
	TotalBeforeTruncation int
}

// FailedSources returns the labels of all failed sources in sorted order
func (r *Report) FailedSources() []string {
	var failed []string
	for source, err := range r.Statuses {
		if err != nil {
			failed = append(failed, source)
		}
	}
	sort.Strings(failed)
	return failed
}

// AllSourcesFailed reports whether every configured source failed.
// It is false when no sources are configured at all.
func (r *Report) AllSourcesFailed() bool {
	if len(r.Statuses) == 0 {
		return false
	}
	for _, err := range r.Statuses {
		if err == nil {
			return false
		}
	}
	return true
}

// Summary returns a short human-readable description of the run outcome
func (r *Report) Summary() string {
	failed := r.FailedSources()
	if len(failed) == 0 {
		return fmt.Sprintf("backups report generated successfully with %d entries", len(r.Entries))
	}
	return fmt.Sprintf("backups report generated with %d entries, %d of %d sources failed", len(r.Entries), len(failed), len(r.Statuses))
}
