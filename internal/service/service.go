// Package service is the explorer facade: it memoizes the loaded artifacts
// and answers every query the transport exposes.
package service

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"log/slog"
	"math"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/opensource-finance/explorer/internal/analytics"
	"github.com/opensource-finance/explorer/internal/cache"
	"github.com/opensource-finance/explorer/internal/domain"
	"github.com/opensource-finance/explorer/internal/enrich"
	"github.com/opensource-finance/explorer/internal/ledger"
	"github.com/opensource-finance/explorer/internal/metrics"
	"github.com/opensource-finance/explorer/internal/network"
	"github.com/opensource-finance/explorer/internal/rules"
	"github.com/opensource-finance/explorer/internal/snapshot"
)

// DefaultSnapshotLimit is the page size of the snapshot listing.
const DefaultSnapshotLimit = 100

// networkNamespace holds memoized network payloads in the shared cache.
const networkNamespace = "network"

var tracer = otel.Tracer("explorer-service")

// Service loads artifacts lazily and keeps them until the next refresh.
// It is safe for concurrent use: cached datasets are swapped whole under
// mu and ledger appends are serialized by the ledger itself.
type Service struct {
	artifacts domain.ArtifactStore
	ledger    *ledger.Ledger
	engine    *rules.Engine
	cache     domain.Cache
	bus       domain.EventBus
	settings  domain.Settings

	payloadTTL time.Duration

	// epoch scopes cache keys to this process; generation is bumped
	// whenever a cached payload may have gone stale.
	epoch      string
	generation atomic.Uint64

	mu        sync.RWMutex
	groups    []domain.EnrichedGroup
	summary   map[string]any
	snapshots []domain.Snapshot
}

// Options carries the optional collaborators of a Service.
type Options struct {
	// Engine compiles expression filters. Without it, expression filters
	// are rejected.
	Engine *rules.Engine

	// Cache memoizes network payloads. Nil disables memoization.
	Cache domain.Cache

	// Bus receives refresh and report events. Nil disables publishing.
	Bus domain.EventBus

	Settings   domain.Settings
	PayloadTTL time.Duration
}

// New creates a service over an artifact store and a report ledger.
func New(artifacts domain.ArtifactStore, reports *ledger.Ledger, opts Options) *Service {
	if opts.Settings.Title == "" {
		opts.Settings = domain.DefaultSettings()
	}
	return &Service{
		artifacts:  artifacts,
		ledger:     reports,
		engine:     opts.Engine,
		cache:      opts.Cache,
		bus:        opts.Bus,
		settings:   opts.Settings,
		payloadTTL: opts.PayloadTTL,
		epoch:      uuid.NewString(),
	}
}

// Settings returns the runtime UI settings.
func (s *Service) Settings() domain.Settings {
	out := s.settings
	out.ReportChecks = append([]string{}, s.settings.ReportChecks...)
	return out
}

// ListGroups returns the groups passing filters with the aggregate bounds
// of that filtered set.
func (s *Service) ListGroups(ctx context.Context, filters domain.GroupFilters) (domain.GroupList, error) {
	ctx, span := tracer.Start(ctx, "service.ListGroups")
	defer span.End()

	groups, reportedIDs, err := s.filtered(ctx, filters)
	if err != nil {
		return domain.GroupList{}, err
	}

	reported := analytics.ReportedSet(reportedIDs)
	items := make([]domain.GroupSummary, len(groups))
	for i := range groups {
		items[i] = domain.NewGroupSummary(&groups[i], reported[groups[i].ID()])
	}
	span.SetAttributes(attribute.Int("groups.matched", len(items)))

	return domain.GroupList{
		Items:       items,
		Total:       len(items),
		Aggregated:  analytics.Summarize(groups),
		ReportedIDs: reportedIDs,
	}, nil
}

// GroupDetail returns one group with its filtered transactions and the
// snapshots correlated to it.
func (s *Service) GroupDetail(ctx context.Context, groupID string, filters domain.TransactionFilters) (domain.GroupDetailResponse, error) {
	ctx, span := tracer.Start(ctx, "service.GroupDetail")
	defer span.End()
	span.SetAttributes(attribute.String("group.id", groupID))

	group, err := s.findGroup(ctx, groupID)
	if err != nil {
		return domain.GroupDetailResponse{}, err
	}
	if group == nil {
		return domain.GroupDetailResponse{}, fmt.Errorf("%w: group %s", domain.ErrNotFound, groupID)
	}

	reportedIDs, err := s.ledger.ReportedIDs(ctx)
	if err != nil {
		return domain.GroupDetailResponse{}, err
	}
	snapshots, err := s.loadSnapshots(ctx)
	if err != nil {
		return domain.GroupDetailResponse{}, err
	}

	detail := domain.GroupDetail{
		GroupSummary:        domain.NewGroupSummary(group, analytics.ReportedSet(reportedIDs)[groupID]),
		CanonicalAttributes: group.Group.CanonicalAttributes,
		Members:             enrich.MemberViews(group.Group.Members),
		Transactions:        enrich.TransactionViews(analytics.FilterTransactions(group.Transactions, filters)),
	}
	if detail.CanonicalAttributes == nil {
		detail.CanonicalAttributes = map[string]any{}
	}

	related := snapshot.Correlate(&group.Group, snapshots, snapshot.DefaultLimit)
	return domain.GroupDetailResponse{
		Group:         detail,
		Snapshots:     related,
		SnapshotCount: len(related),
	}, nil
}

// Network builds the counterparty graph of the filtered groups. Payloads
// are memoized until the next refresh or report submission.
func (s *Service) Network(ctx context.Context, filters domain.GroupFilters, highlight bool) (domain.Network, error) {
	ctx, span := tracer.Start(ctx, "service.Network")
	defer span.End()

	key := s.networkKey(filters, highlight)
	if s.cache != nil {
		var cached domain.Network
		hit, err := cache.GetJSON(ctx, s.cache, networkNamespace, key, &cached)
		if err != nil {
			slog.Warn("network cache read failed", "error", err)
		}
		if hit {
			metrics.NetworkCacheLookups.WithLabelValues("hit").Inc()
			span.SetAttributes(attribute.Bool("cache.hit", true))
			return cached, nil
		}
		metrics.NetworkCacheLookups.WithLabelValues("miss").Inc()
	}

	groups, reportedIDs, err := s.filtered(ctx, filters)
	if err != nil {
		return domain.Network{}, err
	}
	graph := network.Build(groups, reportedIDs, highlight)
	span.SetAttributes(
		attribute.Int("network.nodes", len(graph.Nodes)),
		attribute.Int("network.edges", len(graph.Edges)),
	)

	if s.cache != nil {
		if err := cache.SetJSON(ctx, s.cache, networkNamespace, key, graph, s.payloadTTL); err != nil {
			slog.Warn("network cache write failed", "error", err)
		}
	}
	return graph, nil
}

// ListReports returns the report ledger in chronological order.
func (s *Service) ListReports(ctx context.Context) ([]domain.Report, error) {
	return s.ledger.List(ctx)
}

// SubmitReport appends a report for a known group.
func (s *Service) SubmitReport(ctx context.Context, req domain.ReportRequest) (domain.ReportCreated, error) {
	ctx, span := tracer.Start(ctx, "service.SubmitReport")
	defer span.End()
	span.SetAttributes(attribute.String("group.id", req.GroupID))

	created, err := s.ledger.Submit(ctx, req, s.findGroup)
	if err != nil {
		return domain.ReportCreated{}, err
	}
	s.generation.Add(1)
	metrics.ReportsSubmitted.Inc()

	slog.Info("report submitted",
		"group_id", created.Record.GroupID,
		"total_reports", created.TotalReports,
	)
	s.publish(ctx, domain.TopicReportSubmitted, domain.ReportSubmitted{
		GroupID:      created.Record.GroupID,
		TotalReports: created.TotalReports,
	})
	return created, nil
}

// ListSnapshots returns the first limit snapshots. A non-positive limit
// uses DefaultSnapshotLimit.
func (s *Service) ListSnapshots(ctx context.Context, limit int) (domain.SnapshotList, error) {
	if limit <= 0 {
		limit = DefaultSnapshotLimit
	}
	snapshots, err := s.loadSnapshots(ctx)
	if err != nil {
		return domain.SnapshotList{}, err
	}
	items := snapshots
	if len(items) > limit {
		items = items[:limit]
	}
	return domain.SnapshotList{
		Items: append([]domain.Snapshot{}, items...),
		Total: len(snapshots),
		Limit: limit,
	}, nil
}

// DatasetSummary describes the runs, bounds and totals of the dataset.
func (s *Service) DatasetSummary(ctx context.Context) (domain.DatasetSummary, error) {
	ctx, span := tracer.Start(ctx, "service.DatasetSummary")
	defer span.End()

	groups, err := s.loadGroups(ctx)
	if err != nil {
		return domain.DatasetSummary{}, err
	}
	summary, err := s.loadSummary(ctx)
	if err != nil {
		return domain.DatasetSummary{}, err
	}

	return domain.DatasetSummary{
		Runs:            runOptions(summary),
		Aggregated:      analytics.Summarize(groups),
		TotalGroups:     len(groups),
		TotalRecords:    totalRecords(summary["total_records"]),
		SummaryMetadata: summary,
	}, nil
}

// Refresh drops every cached dataset and stale payload. Peers are told
// about the refresh through the event bus.
func (s *Service) Refresh(ctx context.Context, trigger string) error {
	s.mu.Lock()
	s.groups = nil
	s.summary = nil
	s.snapshots = nil
	s.mu.Unlock()

	s.ledger.Invalidate()
	s.generation.Add(1)

	metrics.CacheRefreshes.WithLabelValues(trigger).Inc()
	metrics.GroupsLoaded.Set(0)
	slog.Info("caches refreshed", "trigger", trigger)

	s.publish(ctx, domain.TopicCacheRefreshed, domain.CacheRefreshed{Trigger: trigger})
	return nil
}

// InvalidateReports drops the cached ledger so reports appended by another
// instance become visible.
func (s *Service) InvalidateReports(ctx context.Context) {
	s.ledger.Invalidate()
	s.generation.Add(1)
	slog.Debug("report ledger invalidated")
}

// Ping checks the artifact store, the ledger and the payload cache.
func (s *Service) Ping(ctx context.Context) error {
	if err := s.artifacts.Ping(ctx); err != nil {
		return fmt.Errorf("artifact store: %w", err)
	}
	if err := s.ledger.Ping(ctx); err != nil {
		return fmt.Errorf("report ledger: %w", err)
	}
	if s.cache != nil {
		if err := s.cache.Ping(ctx); err != nil {
			return fmt.Errorf("cache: %w", err)
		}
	}
	return nil
}

// filtered applies the group filters, including an optional expression.
func (s *Service) filtered(ctx context.Context, filters domain.GroupFilters) ([]domain.EnrichedGroup, []string, error) {
	var extra []analytics.Predicate
	if filters.Expression != "" {
		if s.engine == nil {
			return nil, nil, fmt.Errorf("%w: expression filters are disabled", domain.ErrInvalidInput)
		}
		pred, err := s.engine.Compile(filters.Expression)
		if err != nil {
			return nil, nil, err
		}
		extra = append(extra, pred)
	}

	groups, err := s.loadGroups(ctx)
	if err != nil {
		return nil, nil, err
	}
	reportedIDs, err := s.ledger.ReportedIDs(ctx)
	if err != nil {
		return nil, nil, err
	}
	return analytics.Filter(groups, filters, reportedIDs, extra...), reportedIDs, nil
}

// findGroup returns the first group with the id, or nil.
func (s *Service) findGroup(ctx context.Context, groupID string) (*domain.EnrichedGroup, error) {
	groups, err := s.loadGroups(ctx)
	if err != nil {
		return nil, err
	}
	for i := range groups {
		if groups[i].ID() == groupID {
			return &groups[i], nil
		}
	}
	return nil, nil
}

func (s *Service) loadGroups(ctx context.Context) ([]domain.EnrichedGroup, error) {
	s.mu.RLock()
	groups := s.groups
	s.mu.RUnlock()
	if groups != nil {
		return groups, nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.groups != nil {
		return s.groups, nil
	}

	start := time.Now()
	raws, err := s.artifacts.LoadGroups(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load groups: %w", err)
	}
	s.groups = enrich.All(raws)

	elapsed := float64(time.Since(start).Microseconds()) / 1000
	metrics.GroupLoadDuration.Observe(elapsed)
	metrics.GroupsLoaded.Set(float64(len(s.groups)))
	slog.Debug("groups loaded", "count", len(s.groups), "duration_ms", elapsed)
	return s.groups, nil
}

func (s *Service) loadSummary(ctx context.Context) (map[string]any, error) {
	s.mu.RLock()
	summary := s.summary
	s.mu.RUnlock()
	if summary != nil {
		return summary, nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.summary != nil {
		return s.summary, nil
	}
	summary, err := s.artifacts.LoadSummary(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load summary: %w", err)
	}
	if summary == nil {
		summary = map[string]any{}
	}
	s.summary = summary
	return s.summary, nil
}

func (s *Service) loadSnapshots(ctx context.Context) ([]domain.Snapshot, error) {
	s.mu.RLock()
	snapshots := s.snapshots
	s.mu.RUnlock()
	if snapshots != nil {
		return snapshots, nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.snapshots != nil {
		return s.snapshots, nil
	}
	snapshots, err := s.artifacts.LoadSnapshots(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load snapshots: %w", err)
	}
	if snapshots == nil {
		snapshots = []domain.Snapshot{}
	}
	s.snapshots = snapshots
	return s.snapshots, nil
}

func (s *Service) publish(ctx context.Context, topic string, payload any) {
	if s.bus == nil {
		return
	}
	data, err := json.Marshal(payload)
	if err != nil {
		slog.Error("failed to encode event", "topic", topic, "error", err)
		return
	}
	if err := s.bus.Publish(ctx, topic, data); err != nil {
		slog.Warn("failed to publish event", "topic", topic, "error", err)
	}
}

// networkKey identifies a network payload for the current generation.
func (s *Service) networkKey(f domain.GroupFilters, highlight bool) string {
	h := sha256.New()
	fmt.Fprintf(h, "%d|%s|%s|%s|%s|%t|%t|%s",
		f.MinRisk,
		strconv.FormatFloat(f.MinTotal, 'g', -1, 64),
		strconv.FormatFloat(f.MaxTotal, 'g', -1, 64),
		formatBound(f.StartDate),
		formatBound(f.EndDate),
		f.ReportedOnly,
		highlight,
		f.Expression,
	)
	return s.epoch + ":" + strconv.FormatUint(s.generation.Load(), 10) + ":" + hex.EncodeToString(h.Sum(nil))
}

func formatBound(t *time.Time) string {
	if t == nil {
		return ""
	}
	return t.UTC().Format(time.RFC3339Nano)
}

// runOptions lists the selectable runs of a summary blob: its "runs"
// entries, else the blob itself, else a single default run.
func runOptions(summary map[string]any) []domain.RunOption {
	runs := make([]domain.RunOption, 0)
	if entries, ok := summary["runs"].([]any); ok {
		for _, entry := range entries {
			meta, ok := entry.(map[string]any)
			if !ok {
				continue
			}
			runs = append(runs, runOption(meta, "run"))
		}
	} else if len(summary) > 0 {
		runs = append(runs, runOption(summary, "current_run"))
	}
	if len(runs) == 0 {
		runs = append(runs, domain.RunOption{
			Label: "Current dataset",
			Value: "current_run",
			Meta:  map[string]any{},
		})
	}
	return runs
}

func runOption(meta map[string]any, fallback string) domain.RunOption {
	value := fallback
	if id, ok := present(meta["run_id"]); ok {
		value = id
	}
	label := value
	if l, ok := present(meta["label"]); ok {
		label = l
	}
	return domain.RunOption{Label: label, Value: value, Meta: meta}
}

// present renders a scalar, treating zero and false as absent.
func present(v any) (string, bool) {
	switch t := v.(type) {
	case bool:
		if !t {
			return "", false
		}
	case float64:
		if t == 0 {
			return "", false
		}
	}
	return domain.AttrString(v)
}

// totalRecords reports the record count only when it is an integer.
func totalRecords(v any) *int {
	n, ok := v.(float64)
	if !ok || n != math.Trunc(n) || math.IsInf(n, 0) {
		return nil
	}
	total := int(n)
	return &total
}
