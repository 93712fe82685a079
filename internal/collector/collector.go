package collector

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/maximevalette/backups-reporter/internal/domain"
	"github.com/maximevalette/backups-reporter/internal/source"
)

// maxConcurrentFetches bounds how many sources are polled at once
const maxConcurrentFetches = 4

// Collector queries every configured source and aggregates the results
// into a single bounded report. One failed source never aborts the
// collection of the others.
type Collector struct {
	providers        []source.Provider
	entriesPerSource int
	maxTotalEntries  int
	logger           *slog.Logger
}

// New creates a collector over the given providers
func New(providers []source.Provider, entriesPerSource, maxTotalEntries int, logger *slog.Logger) *Collector {
	return &Collector{
		providers:        providers,
		entriesPerSource: entriesPerSource,
		maxTotalEntries:  maxTotalEntries,
		logger:           logger,
	}
}

// Collect fetches all sources concurrently and merges the results.
// The returned report records a status for every configured source and
// its entries are ordered deterministically regardless of fetch order.
func (c *Collector) Collect(ctx context.Context) *domain.Report {
	statuses := make(map[string]error, len(c.providers))
	var all []domain.Entry

	var mu sync.Mutex
	var wg sync.WaitGroup
	semaphore := make(chan struct{}, maxConcurrentFetches)

	for _, provider := range c.providers {
		wg.Add(1)
		go func(p source.Provider) {
			defer wg.Done()

			semaphore <- struct{}{}
			defer func() { <-semaphore }()

			entries, err := c.fetchOne(ctx, p)

			mu.Lock()
			defer mu.Unlock()
			statuses[p.Name()] = err
			if err != nil {
				c.logger.Error("source collection failed", "source", p.Name(), "err", err)
				return
			}
			c.logger.Info("source collected", "source", p.Name(), "entries", len(entries))
			all = append(all, entries...)
		}(provider)
	}
	wg.Wait()

	sortEntries(all)
	total := len(all)
	if len(all) > c.maxTotalEntries {
		all = all[:c.maxTotalEntries]
	}

	return &domain.Report{
		RunID:                 uuid.NewString(),
		GeneratedAt:           time.Now().UTC(),
		Entries:               all,
		Statuses:              statuses,
		TotalBeforeTruncation: total,
	}
}

// fetchOne isolates a single provider call: any error or panic is
// converted into a failed status for that source only.
func (c *Collector) fetchOne(ctx context.Context, p source.Provider) (entries []domain.Entry, err error) {
	defer func() {
		if r := recover(); r != nil {
			entries = nil
			err = fmt.Errorf("provider panic: %v", r)
		}
	}()

	entries, err = p.Fetch(ctx, c.entriesPerSource)
	if err != nil {
		return nil, err
	}
	// Providers are contractually bounded by the limit; enforce it
	// anyway so a misbehaving provider cannot flood the report.
	if len(entries) > c.entriesPerSource {
		entries = entries[:c.entriesPerSource]
	}
	return entries, nil
}

// sortEntries orders entries newest first; equal timestamps fall back
// to (source, name) so the final report is deterministic
func sortEntries(entries []domain.Entry) {
	sort.Slice(entries, func(i, j int) bool {
		a, b := entries[i], entries[j]
		if !a.Timestamp.Equal(b.Timestamp) {
			return a.Timestamp.After(b.Timestamp)
		}
		if a.Source != b.Source {
			return a.Source < b.Source
		}
		return a.Name < b.Name
	})
}
