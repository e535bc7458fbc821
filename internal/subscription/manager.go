// Package subscription keeps the events of subscribed iCal feeds fresh.
package subscription

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"daycal/internal/ics"
	appLog "daycal/internal/log"
	"daycal/internal/model"
)

// Fetcher retrieves one feed body. *ics.Fetcher satisfies it.
type Fetcher interface {
	FetchOne(ctx context.Context, src ics.Source) (ics.FetchResult, error)
}

// WindowFunc returns the range feed recurrences are expanded over.
type WindowFunc func(now time.Time) (start, end time.Time)

// Manager holds the latest imported events per source. A source that fails
// to refresh keeps serving what it had before.
type Manager struct {
	fetcher Fetcher
	sources []ics.Source
	loc     *time.Location

	mu          sync.RWMutex
	cache       map[string][]model.Event
	lastRefresh time.Time
}

// NewManager creates a manager for sources. Events are converted to loc;
// nil means time.Local.
func NewManager(f Fetcher, sources []ics.Source, loc *time.Location) *Manager {
	if loc == nil {
		loc = time.Local
	}
	return &Manager{
		fetcher: f,
		sources: slices.Clone(sources),
		loc:     loc,
		cache:   make(map[string][]model.Event),
	}
}

// Refresh fetches, parses and expands every source over [rangeStart,
// rangeEnd] concurrently. Per-source failures are joined into the returned
// error.
func (m *Manager) Refresh(ctx context.Context, rangeStart, rangeEnd time.Time) error {
	var wg sync.WaitGroup
	errCh := make(chan error, len(m.sources))

	for _, src := range m.sources {
		wg.Add(1)
		go func(src ics.Source) {
			defer wg.Done()

			events, err := m.load(ctx, src, rangeStart, rangeEnd)
			if err != nil {
				errCh <- fmt.Errorf("source %s: %w", src.ID, err)
				return
			}

			m.mu.Lock()
			m.cache[src.ID] = events
			m.mu.Unlock()
		}(src)
	}

	wg.Wait()
	close(errCh)

	var errs []error
	for err := range errCh {
		appLog.Error("subscription refresh failed", err)
		errs = append(errs, err)
	}

	m.mu.Lock()
	m.lastRefresh = time.Now()
	m.mu.Unlock()

	appLog.Info("subscription refresh done", "sources", len(m.sources), "failed", len(errs))
	return errors.Join(errs...)
}

func (m *Manager) load(ctx context.Context, src ics.Source, rangeStart, rangeEnd time.Time) ([]model.Event, error) {
	res, err := m.fetcher.FetchOne(ctx, src)
	if err != nil {
		return nil, err
	}
	parsed, err := ics.ParseICS(src, res.Body)
	if err != nil {
		return nil, err
	}
	expanded, err := ics.ExpandOccurrences(parsed, ics.ExpandConfig{
		DisplayLocation: m.loc,
		RangeStart:      rangeStart,
		RangeEnd:        rangeEnd,
	})
	if err != nil {
		return nil, err
	}
	return expanded.Events, nil
}

// Events returns a copy of all imported events in source order.
func (m *Manager) Events() []model.Event {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]model.Event, 0)
	for _, src := range m.sources {
		out = append(out, m.cache[src.ID]...)
	}
	return out
}

// LastRefresh reports when Refresh last completed. Zero means never.
func (m *Manager) LastRefresh() time.Time {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.lastRefresh
}

// Start runs Refresh on a standard cron schedule until ctx is cancelled.
// The window is recomputed on every run.
func (m *Manager) Start(ctx context.Context, schedule string, window WindowFunc) error {
	c := cron.New(cron.WithLocation(m.loc))
	_, err := c.AddFunc(schedule, func() {
		start, end := window(time.Now())
		_ = m.Refresh(ctx, start, end)
	})
	if err != nil {
		return fmt.Errorf("subscription: invalid schedule %q: %w", schedule, err)
	}

	c.Start()
	appLog.Info("subscription scheduler started", "schedule", schedule, "sources", len(m.sources))

	go func() {
		<-ctx.Done()
		<-c.Stop().Done()
		appLog.Info("subscription scheduler stopped")
	}()
	return nil
}
