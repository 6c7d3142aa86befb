// Package ledger maintains the append-only report ledger.
package ledger

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/opensource-finance/explorer/internal/domain"
)

// TimestampLayout is the report timestamp format: UTC, second precision.
const TimestampLayout = "2006-01-02T15:04:05Z"

// GroupResolver looks up an enriched group by id.
type GroupResolver func(ctx context.Context, groupID string) (*domain.EnrichedGroup, error)

// Ledger serves the report list from memory and persists every append
// through a ReportStore. Appends are serialized.
type Ledger struct {
	store domain.ReportStore
	now   func() time.Time

	mu      sync.Mutex
	reports []domain.Report
	loaded  bool
}

// Option configures a Ledger.
type Option func(*Ledger)

// WithClock overrides the submission clock.
func WithClock(now func() time.Time) Option {
	return func(l *Ledger) {
		l.now = now
	}
}

// New creates a ledger backed by store.
func New(store domain.ReportStore, opts ...Option) *Ledger {
	l := &Ledger{
		store: store,
		now:   time.Now,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// List returns a copy of the ledger in chronological order.
func (l *Ledger) List(ctx context.Context) ([]domain.Report, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if err := l.load(ctx); err != nil {
		return nil, err
	}
	out := make([]domain.Report, len(l.reports))
	copy(out, l.reports)
	return out, nil
}

// ReportedIDs projects the group id of every entry. A group reported
// twice appears twice; entries without a group id are skipped.
func (l *Ledger) ReportedIDs(ctx context.Context) ([]string, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if err := l.load(ctx); err != nil {
		return nil, err
	}
	ids := make([]string, 0, len(l.reports))
	for _, r := range l.reports {
		if r.GroupID != "" {
			ids = append(ids, r.GroupID)
		}
	}
	return ids, nil
}

// Submit validates a report and appends it to the store. Stored entries
// are never rewritten.
// It fails with domain.ErrInvalidInput on a blank reason and with
// domain.ErrNotFound when resolve does not know the group.
func (l *Ledger) Submit(ctx context.Context, req domain.ReportRequest, resolve GroupResolver) (domain.ReportCreated, error) {
	reason := strings.TrimSpace(req.Reason)
	if reason == "" {
		return domain.ReportCreated{}, fmt.Errorf("%w: reason is required", domain.ErrInvalidInput)
	}

	group, err := resolve(ctx, req.GroupID)
	if err != nil {
		return domain.ReportCreated{}, err
	}
	if group == nil {
		return domain.ReportCreated{}, fmt.Errorf("%w: group %s", domain.ErrNotFound, req.GroupID)
	}

	checks := make([]string, len(req.Checks))
	copy(checks, req.Checks)

	record := domain.Report{
		Timestamp: l.now().UTC().Truncate(time.Second).Format(TimestampLayout),
		GroupID:   req.GroupID,
		Reason:    reason,
		Checks:    checks,
		Snapshot: domain.ReportSnapshot{
			NumMembers:  group.Metrics.MemberCount,
			TotalAmount: group.Metrics.TotalAmount,
			RiskScore:   group.Metrics.RiskScore,
		},
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if err := l.load(ctx); err != nil {
		return domain.ReportCreated{}, err
	}

	total, err := l.store.AppendReport(ctx, record)
	if err != nil {
		return domain.ReportCreated{}, fmt.Errorf("failed to persist report: %w", err)
	}
	if total == len(l.reports)+1 {
		l.reports = append(l.reports, record)
	} else {
		// The store moved on without this instance; reload on next read.
		l.reports = nil
		l.loaded = false
	}

	return domain.ReportCreated{Record: record, TotalReports: total}, nil
}

// Invalidate drops the in-memory view; the next read reloads the store.
func (l *Ledger) Invalidate() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.reports = nil
	l.loaded = false
}

// Ping checks the backing store.
func (l *Ledger) Ping(ctx context.Context) error {
	return l.store.Ping(ctx)
}

// Close closes the backing store.
func (l *Ledger) Close() error {
	return l.store.Close()
}

func (l *Ledger) load(ctx context.Context) error {
	if l.loaded {
		return nil
	}
	reports, err := l.store.LoadReports(ctx)
	if err != nil {
		return fmt.Errorf("failed to load reports: %w", err)
	}
	if reports == nil {
		reports = []domain.Report{}
	}
	l.reports = reports
	l.loaded = true
	return nil
}
