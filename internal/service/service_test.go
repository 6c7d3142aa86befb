package service

import (
	"context"
	"encoding/json"
	"errors"
	"reflect"
	"sync"
	"testing"
	"time"

	"github.com/opensource-finance/explorer/internal/bus"
	"github.com/opensource-finance/explorer/internal/cache"
	"github.com/opensource-finance/explorer/internal/domain"
	"github.com/opensource-finance/explorer/internal/ledger"
	"github.com/opensource-finance/explorer/internal/rules"
)

// memoryArtifacts is an in-memory ArtifactStore that counts loads.
type memoryArtifacts struct {
	mu         sync.Mutex
	groups     []domain.RawGroup
	summary    map[string]any
	snapshots  []domain.Snapshot
	groupLoads int
}

func (m *memoryArtifacts) LoadGroups(ctx context.Context) ([]domain.RawGroup, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.groupLoads++
	return append([]domain.RawGroup(nil), m.groups...), nil
}

func (m *memoryArtifacts) LoadSummary(ctx context.Context) (map[string]any, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.summary, nil
}

func (m *memoryArtifacts) LoadSnapshots(ctx context.Context) ([]domain.Snapshot, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.snapshots, nil
}

func (m *memoryArtifacts) Ping(ctx context.Context) error { return nil }

func (m *memoryArtifacts) setGroups(groups ...domain.RawGroup) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.groups = groups
}

func (m *memoryArtifacts) loads() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.groupLoads
}

// memoryReports is an in-memory ReportStore.
type memoryReports struct {
	mu      sync.Mutex
	reports []domain.Report
}

func (m *memoryReports) LoadReports(ctx context.Context) ([]domain.Report, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]domain.Report(nil), m.reports...), nil
}

func (m *memoryReports) AppendReport(ctx context.Context, report domain.Report) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.reports = append(m.reports, report)
	return len(m.reports), nil
}

func (m *memoryReports) Ping(ctx context.Context) error { return nil }
func (m *memoryReports) Close() error                   { return nil }

func amount(v float64) *float64 {
	return &v
}

// workedExample has two members, 100 out without a counterparty and 50 in
// from C1.
func workedExample() domain.RawGroup {
	return domain.RawGroup{
		GroupID: "G1",
		Members: []domain.Member{
			{RecordID: "r1", SignatureHistory: []string{"sig-a"}},
			{RecordID: "r2"},
		},
		Transactions: []domain.Transaction{
			{Amount: amount(100), Direction: "out", Timestamp: "2024-01-01T00:00:00Z"},
			{Amount: amount(50), Direction: "in", CounterpartyID: "C1", Timestamp: "2024-01-05T00:00:00Z"},
		},
		CanonicalAttributes: map[string]any{"tax_id": "T-1"},
		SourcePath:          "entities/G1.json",
	}
}

func smallGroup() domain.RawGroup {
	return domain.RawGroup{
		GroupID: "G2",
		Members: []domain.Member{{RecordID: "r3"}},
		Transactions: []domain.Transaction{
			{Amount: amount(10), Direction: "out", CounterpartyID: "C2"},
		},
	}
}

type fixture struct {
	svc       *Service
	artifacts *memoryArtifacts
	reports   *memoryReports
	bus       *bus.ChannelBus
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	engine, err := rules.NewEngine(rules.DefaultMaxPrograms)
	if err != nil {
		t.Fatalf("failed to create engine: %v", err)
	}
	t.Cleanup(func() { engine.Close() })

	eventBus := bus.NewChannelBus(100)
	t.Cleanup(func() { eventBus.Close() })

	artifacts := &memoryArtifacts{
		groups:  []domain.RawGroup{workedExample(), smallGroup()},
		summary: map[string]any{},
		snapshots: []domain.Snapshot{
			domain.NewSnapshot(map[string]any{"record_id": "r1"}),
			domain.NewSnapshot(map[string]any{"record_id": "other", "signature": "sig-a"}),
			domain.NewSnapshot(map[string]any{"record_id": "x", "normalized_attributes": map[string]any{"tax_id": "T-1"}}),
			domain.NewSnapshot(map[string]any{"record_id": "unrelated"}),
		},
	}
	reports := &memoryReports{}
	clock := ledger.WithClock(func() time.Time {
		return time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	})

	svc := New(artifacts, ledger.New(reports, clock), Options{
		Engine:     engine,
		Cache:      cache.NewLRUCache(100),
		Bus:        eventBus,
		PayloadTTL: time.Minute,
	})
	return &fixture{svc: svc, artifacts: artifacts, reports: reports, bus: eventBus}
}

func TestListGroupsWorkedExample(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	list, err := f.svc.ListGroups(ctx, domain.DefaultGroupFilters())
	if err != nil {
		t.Fatalf("ListGroups failed: %v", err)
	}
	if list.Total != 2 || len(list.Items) != 2 {
		t.Fatalf("expected 2 groups, got %d", list.Total)
	}

	g1 := list.Items[0]
	if g1.GroupID != "G1" {
		t.Fatalf("expected source order, got %s first", g1.GroupID)
	}
	if g1.Metrics.RiskScore != 46 || g1.Metrics.TotalAmount != 150 || g1.Metrics.MemberCount != 2 {
		t.Errorf("unexpected metrics: %+v", g1.Metrics)
	}
	if g1.SourcePath == nil || *g1.SourcePath != "entities/G1.json" {
		t.Errorf("expected source path, got %v", g1.SourcePath)
	}
	if g1.Reported {
		t.Error("no report submitted yet")
	}
	if list.Items[1].SourcePath != nil {
		t.Error("group without a source path must report null")
	}
	if list.ReportedIDs == nil || len(list.ReportedIDs) != 0 {
		t.Errorf("expected empty reported ids, got %v", list.ReportedIDs)
	}
	if *list.Aggregated.MaxTotalAmount != 150 || *list.Aggregated.MinTotalAmount != 10 {
		t.Errorf("unexpected aggregated totals: %v..%v",
			*list.Aggregated.MinTotalAmount, *list.Aggregated.MaxTotalAmount)
	}
}

func TestListGroupsFilters(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	tests := []struct {
		name    string
		filters func() domain.GroupFilters
		want    []string
	}{
		{"min risk", func() domain.GroupFilters {
			fl := domain.DefaultGroupFilters()
			fl.MinRisk = 40
			return fl
		}, []string{"G1"}},
		{"max total", func() domain.GroupFilters {
			fl := domain.DefaultGroupFilters()
			fl.MaxTotal = 100
			return fl
		}, []string{"G2"}},
		{"date range drops groups without timestamps", func() domain.GroupFilters {
			fl := domain.DefaultGroupFilters()
			start := time.Date(2024, 1, 3, 0, 0, 0, 0, time.UTC)
			fl.StartDate = &start
			return fl
		}, []string{"G1"}},
		{"expression", func() domain.GroupFilters {
			fl := domain.DefaultGroupFilters()
			fl.Expression = `unique_counterparties == 1 && member_count == 1`
			return fl
		}, []string{"G2"}},
		{"reported only", func() domain.GroupFilters {
			fl := domain.DefaultGroupFilters()
			fl.ReportedOnly = true
			return fl
		}, []string{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			list, err := f.svc.ListGroups(ctx, tt.filters())
			if err != nil {
				t.Fatalf("ListGroups failed: %v", err)
			}
			got := make([]string, 0, len(list.Items))
			for _, item := range list.Items {
				got = append(got, item.GroupID)
			}
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("expected %v, got %v", tt.want, got)
			}
			if list.Total != len(tt.want) {
				t.Errorf("expected total %d, got %d", len(tt.want), list.Total)
			}
		})
	}

	t.Run("empty result has null aggregates", func(t *testing.T) {
		fl := domain.DefaultGroupFilters()
		fl.MinRisk = 100
		list, err := f.svc.ListGroups(ctx, fl)
		if err != nil {
			t.Fatalf("ListGroups failed: %v", err)
		}
		if list.Aggregated != (domain.SummaryStats{}) {
			t.Errorf("expected empty stats, got %+v", list.Aggregated)
		}
	})
}

func TestExpressionErrors(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	fl := domain.DefaultGroupFilters()
	fl.Expression = "risk_score >"
	if _, err := f.svc.ListGroups(ctx, fl); !errors.Is(err, domain.ErrInvalidInput) {
		t.Errorf("expected invalid input for a broken expression, got %v", err)
	}
	if _, err := f.svc.Network(ctx, fl, false); !errors.Is(err, domain.ErrInvalidInput) {
		t.Errorf("expected invalid input from the network view, got %v", err)
	}

	noEngine := New(f.artifacts, ledger.New(f.reports), Options{})
	fl.Expression = "risk_score > 1"
	if _, err := noEngine.ListGroups(ctx, fl); !errors.Is(err, domain.ErrInvalidInput) {
		t.Errorf("expected expressions to be rejected without an engine, got %v", err)
	}
}

func TestGroupDetail(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	t.Run("unknown group", func(t *testing.T) {
		_, err := f.svc.GroupDetail(ctx, "missing", domain.DefaultTransactionFilters())
		if !errors.Is(err, domain.ErrNotFound) {
			t.Errorf("expected not found, got %v", err)
		}
	})

	t.Run("correlated snapshots", func(t *testing.T) {
		detail, err := f.svc.GroupDetail(ctx, "G1", domain.DefaultTransactionFilters())
		if err != nil {
			t.Fatalf("GroupDetail failed: %v", err)
		}
		if detail.SnapshotCount != 3 || len(detail.Snapshots) != 3 {
			t.Errorf("expected 3 correlated snapshots, got %d", detail.SnapshotCount)
		}
		if len(detail.Group.Members) != 2 || len(detail.Group.Transactions) != 2 {
			t.Errorf("unexpected detail shape: %d members, %d transactions",
				len(detail.Group.Members), len(detail.Group.Transactions))
		}
		if detail.Group.CanonicalAttributes["tax_id"] != "T-1" {
			t.Errorf("expected canonical attributes, got %v", detail.Group.CanonicalAttributes)
		}
	})

	t.Run("transaction filters", func(t *testing.T) {
		filters := domain.DefaultTransactionFilters()
		filters.MinAmount = 60
		detail, err := f.svc.GroupDetail(ctx, "G1", filters)
		if err != nil {
			t.Fatalf("GroupDetail failed: %v", err)
		}
		if len(detail.Group.Transactions) != 1 {
			t.Fatalf("expected 1 transaction, got %d", len(detail.Group.Transactions))
		}
		if detail.Group.Metrics.TransactionCount != 2 {
			t.Error("detail filters must not change group metrics")
		}
	})

	t.Run("missing canonical attributes", func(t *testing.T) {
		detail, err := f.svc.GroupDetail(ctx, "G2", domain.DefaultTransactionFilters())
		if err != nil {
			t.Fatalf("GroupDetail failed: %v", err)
		}
		if detail.Group.CanonicalAttributes == nil {
			t.Error("expected an empty attribute map")
		}
		if detail.SnapshotCount != 0 || detail.Snapshots == nil {
			t.Errorf("expected an empty snapshot list, got %v", detail.Snapshots)
		}
	})
}

func TestSubmitReport(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	events := make(chan domain.ReportSubmitted, 1)
	if _, err := f.bus.Subscribe(ctx, domain.TopicReportSubmitted, func(ctx context.Context, msg *domain.Message) error {
		var ev domain.ReportSubmitted
		if err := json.Unmarshal(msg.Payload, &ev); err != nil {
			return err
		}
		events <- ev
		return nil
	}); err != nil {
		t.Fatalf("subscribe failed: %v", err)
	}

	t.Run("blank reason", func(t *testing.T) {
		_, err := f.svc.SubmitReport(ctx, domain.ReportRequest{GroupID: "G1", Reason: "   "})
		if !errors.Is(err, domain.ErrInvalidInput) {
			t.Errorf("expected invalid input, got %v", err)
		}
	})

	t.Run("unknown group", func(t *testing.T) {
		_, err := f.svc.SubmitReport(ctx, domain.ReportRequest{GroupID: "nope", Reason: "x"})
		if !errors.Is(err, domain.ErrNotFound) {
			t.Errorf("expected not found, got %v", err)
		}
	})

	created, err := f.svc.SubmitReport(ctx, domain.ReportRequest{
		GroupID: "G1",
		Reason:  "  shared tax id  ",
		Checks:  []string{"shared tax id"},
	})
	if err != nil {
		t.Fatalf("SubmitReport failed: %v", err)
	}
	if created.TotalReports != 1 {
		t.Errorf("expected 1 report, got %d", created.TotalReports)
	}
	if created.Record.Reason != "shared tax id" || created.Record.Timestamp != "2024-03-01T12:00:00Z" {
		t.Errorf("unexpected record: %+v", created.Record)
	}
	if created.Record.Snapshot.RiskScore != 46 || created.Record.Snapshot.NumMembers != 2 {
		t.Errorf("unexpected metric snapshot: %+v", created.Record.Snapshot)
	}

	list, err := f.svc.ListGroups(ctx, domain.DefaultGroupFilters())
	if err != nil {
		t.Fatalf("ListGroups failed: %v", err)
	}
	if !reflect.DeepEqual(list.ReportedIDs, []string{"G1"}) {
		t.Errorf("expected reported ids [G1], got %v", list.ReportedIDs)
	}
	if !list.Items[0].Reported || list.Items[1].Reported {
		t.Error("only G1 should be flagged as reported")
	}

	select {
	case ev := <-events:
		if ev.GroupID != "G1" || ev.TotalReports != 1 {
			t.Errorf("unexpected event: %+v", ev)
		}
	case <-time.After(time.Second):
		t.Error("expected a report event")
	}

	reports, err := f.svc.ListReports(ctx)
	if err != nil {
		t.Fatalf("ListReports failed: %v", err)
	}
	if len(reports) != 1 || len(f.reports.reports) != 1 {
		t.Errorf("expected the report to be persisted, got %d", len(reports))
	}
}

func TestNetwork(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	fl := domain.DefaultGroupFilters()
	fl.MinRisk = 40

	graph, err := f.svc.Network(ctx, fl, true)
	if err != nil {
		t.Fatalf("Network failed: %v", err)
	}
	want := []domain.NetworkEdge{{Source: "C1", Target: "G1", Amount: 50, Count: 1, Directions: []string{"in"}}}
	if !reflect.DeepEqual(graph.Edges, want) {
		t.Errorf("expected %+v, got %+v", want, graph.Edges)
	}
	if len(graph.Nodes) != 2 || graph.Nodes[0].Highlight {
		t.Errorf("unexpected nodes: %+v", graph.Nodes)
	}

	again, err := f.svc.Network(ctx, fl, true)
	if err != nil {
		t.Fatalf("Network failed: %v", err)
	}
	if !reflect.DeepEqual(graph, again) {
		t.Errorf("memoized payload differs: %+v vs %+v", graph, again)
	}

	if _, err := f.svc.SubmitReport(ctx, domain.ReportRequest{GroupID: "G1", Reason: "flag"}); err != nil {
		t.Fatalf("SubmitReport failed: %v", err)
	}
	highlighted, err := f.svc.Network(ctx, fl, true)
	if err != nil {
		t.Fatalf("Network failed: %v", err)
	}
	if !highlighted.Nodes[0].Highlight {
		t.Error("a report must invalidate the memoized network payload")
	}

	plain, err := f.svc.Network(ctx, fl, false)
	if err != nil {
		t.Fatalf("Network failed: %v", err)
	}
	if plain.Nodes[0].Highlight {
		t.Error("highlight disabled must not flag reported groups")
	}
}

func TestRefreshInvalidatesCaches(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	refreshed := make(chan domain.CacheRefreshed, 1)
	if _, err := f.bus.Subscribe(ctx, domain.TopicCacheRefreshed, func(ctx context.Context, msg *domain.Message) error {
		var ev domain.CacheRefreshed
		if err := json.Unmarshal(msg.Payload, &ev); err != nil {
			return err
		}
		refreshed <- ev
		return nil
	}); err != nil {
		t.Fatalf("subscribe failed: %v", err)
	}

	if _, err := f.svc.ListGroups(ctx, domain.DefaultGroupFilters()); err != nil {
		t.Fatalf("ListGroups failed: %v", err)
	}
	if _, err := f.svc.Network(ctx, domain.DefaultGroupFilters(), false); err != nil {
		t.Fatalf("Network failed: %v", err)
	}
	if f.artifacts.loads() != 1 {
		t.Fatalf("expected groups to be loaded once, got %d", f.artifacts.loads())
	}

	f.artifacts.setGroups(smallGroup())

	stale, err := f.svc.ListGroups(ctx, domain.DefaultGroupFilters())
	if err != nil {
		t.Fatalf("ListGroups failed: %v", err)
	}
	if stale.Total != 2 {
		t.Errorf("expected the cached dataset before refresh, got %d groups", stale.Total)
	}

	if err := f.svc.Refresh(ctx, domain.TriggerManual); err != nil {
		t.Fatalf("Refresh failed: %v", err)
	}

	fresh, err := f.svc.ListGroups(ctx, domain.DefaultGroupFilters())
	if err != nil {
		t.Fatalf("ListGroups failed: %v", err)
	}
	if fresh.Total != 1 || fresh.Items[0].GroupID != "G2" {
		t.Errorf("expected the reloaded dataset, got %+v", fresh.Items)
	}
	graph, err := f.svc.Network(ctx, domain.DefaultGroupFilters(), false)
	if err != nil {
		t.Fatalf("Network failed: %v", err)
	}
	if len(graph.Nodes) != 2 || graph.Nodes[0].ID != "G2" {
		t.Errorf("expected a rebuilt network, got %+v", graph.Nodes)
	}
	if f.artifacts.loads() != 2 {
		t.Errorf("expected exactly one reload, got %d loads", f.artifacts.loads())
	}

	select {
	case ev := <-refreshed:
		if ev.Trigger != domain.TriggerManual {
			t.Errorf("expected manual trigger, got %s", ev.Trigger)
		}
	case <-time.After(time.Second):
		t.Error("expected a refresh event")
	}
}

func TestInvalidateReports(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	if _, err := f.svc.ListReports(ctx); err != nil {
		t.Fatalf("ListReports failed: %v", err)
	}

	// Another instance appends to the shared ledger.
	f.reports.AppendReport(ctx, domain.Report{GroupID: "G2", Reason: "peer"})

	before, _ := f.svc.ListReports(ctx)
	if len(before) != 0 {
		t.Fatalf("expected the cached ledger, got %d reports", len(before))
	}

	f.svc.InvalidateReports(ctx)

	after, err := f.svc.ListReports(ctx)
	if err != nil {
		t.Fatalf("ListReports failed: %v", err)
	}
	if len(after) != 1 || after[0].GroupID != "G2" {
		t.Errorf("expected the peer report, got %+v", after)
	}
}

func TestListSnapshots(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	tests := []struct {
		limit     int
		wantItems int
		wantLimit int
	}{
		{limit: 2, wantItems: 2, wantLimit: 2},
		{limit: 10, wantItems: 4, wantLimit: 10},
		{limit: 0, wantItems: 4, wantLimit: DefaultSnapshotLimit},
	}
	for _, tt := range tests {
		list, err := f.svc.ListSnapshots(ctx, tt.limit)
		if err != nil {
			t.Fatalf("ListSnapshots failed: %v", err)
		}
		if len(list.Items) != tt.wantItems || list.Total != 4 || list.Limit != tt.wantLimit {
			t.Errorf("limit %d: got %d items, total %d, limit %d",
				tt.limit, len(list.Items), list.Total, list.Limit)
		}
	}
}

func TestDatasetSummary(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	f.artifacts.summary = map[string]any{"run_id": "2024-03", "total_records": float64(12)}

	summary, err := f.svc.DatasetSummary(ctx)
	if err != nil {
		t.Fatalf("DatasetSummary failed: %v", err)
	}
	if summary.TotalGroups != 2 {
		t.Errorf("expected 2 groups, got %d", summary.TotalGroups)
	}
	if summary.TotalRecords == nil || *summary.TotalRecords != 12 {
		t.Errorf("expected 12 records, got %v", summary.TotalRecords)
	}
	if len(summary.Runs) != 1 || summary.Runs[0].Value != "2024-03" || summary.Runs[0].Label != "2024-03" {
		t.Errorf("unexpected runs: %+v", summary.Runs)
	}
	if *summary.Aggregated.MaxRisk != 46 {
		t.Errorf("expected max risk 46, got %d", *summary.Aggregated.MaxRisk)
	}
}

func TestRunOptions(t *testing.T) {
	tests := []struct {
		name    string
		summary map[string]any
		want    []string
	}{
		{"empty summary", map[string]any{}, []string{"Current dataset:current_run"}},
		{"summary as run", map[string]any{"generated_at": "2024"}, []string{"current_run:current_run"}},
		{"labelled summary", map[string]any{"run_id": "r7", "label": "March"}, []string{"March:r7"}},
		{"runs list", map[string]any{"runs": []any{
			map[string]any{"run_id": "a"},
			"skip me",
			map[string]any{"label": "Second"},
			map[string]any{"run_id": float64(0)},
		}}, []string{"a:a", "Second:run", "run:run"}},
		{"empty runs list", map[string]any{"runs": []any{}}, []string{"Current dataset:current_run"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			runs := runOptions(tt.summary)
			got := make([]string, len(runs))
			for i, r := range runs {
				got[i] = r.Label + ":" + r.Value
				if r.Meta == nil {
					t.Errorf("run %d has nil meta", i)
				}
			}
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("expected %v, got %v", tt.want, got)
			}
		})
	}
}

func TestTotalRecords(t *testing.T) {
	tests := []struct {
		in   any
		want *int
	}{
		{float64(7), func() *int { n := 7; return &n }()},
		{7.5, nil},
		{"7", nil},
		{nil, nil},
	}
	for _, tt := range tests {
		got := totalRecords(tt.in)
		if (got == nil) != (tt.want == nil) || (got != nil && *got != *tt.want) {
			t.Errorf("totalRecords(%v) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestConcurrentReadsDuringRefresh(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	var wg sync.WaitGroup
	errs := make(chan error, 40)
	for i := 0; i < 20; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			if _, err := f.svc.ListGroups(ctx, domain.DefaultGroupFilters()); err != nil {
				errs <- err
			}
		}()
		go func() {
			defer wg.Done()
			if err := f.svc.Refresh(ctx, domain.TriggerArtifacts); err != nil {
				errs <- err
			}
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		t.Errorf("unexpected error: %v", err)
	}
}
