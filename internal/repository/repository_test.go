package repository

import (
	"context"
	"path/filepath"
	"reflect"
	"testing"

	"github.com/opensource-finance/explorer/internal/domain"
	"github.com/opensource-finance/explorer/internal/ledger"
)

func newTestRepository(t *testing.T) *SQLRepository {
	t.Helper()
	cfg := domain.RepositoryConfig{
		Driver:     "sqlite",
		SQLitePath: filepath.Join(t.TempDir(), "explorer-test.db"),
	}

	repo, err := New(cfg)
	if err != nil {
		t.Fatalf("failed to create repository: %v", err)
	}
	t.Cleanup(func() { repo.Close() })
	return repo
}

func report(groupID, reason string, checks ...string) domain.Report {
	return domain.Report{
		Timestamp: "2024-05-01T10:00:00Z",
		GroupID:   groupID,
		Reason:    reason,
		Checks:    checks,
		Snapshot:  domain.ReportSnapshot{NumMembers: 2, TotalAmount: 150.25, RiskScore: 46},
	}
}

func TestSQLiteRepository(t *testing.T) {
	repo := newTestRepository(t)
	ctx := context.Background()

	t.Run("Ping", func(t *testing.T) {
		if err := repo.Ping(ctx); err != nil {
			t.Errorf("Ping failed: %v", err)
		}
	})

	t.Run("EmptyLedger", func(t *testing.T) {
		reports, err := repo.LoadReports(ctx)
		if err != nil {
			t.Fatalf("LoadReports failed: %v", err)
		}
		if reports == nil || len(reports) != 0 {
			t.Errorf("expected empty ledger, got %v", reports)
		}
	})

	t.Run("AppendAndLoad", func(t *testing.T) {
		want := []domain.Report{
			report("G1", "first", "circular flow"),
			report("G2", "second"),
		}
		for i, rep := range want {
			total, err := repo.AppendReport(ctx, rep)
			if err != nil {
				t.Fatalf("AppendReport failed: %v", err)
			}
			if total != i+1 {
				t.Errorf("expected total %d, got %d", i+1, total)
			}
		}

		got, err := repo.LoadReports(ctx)
		if err != nil {
			t.Fatalf("LoadReports failed: %v", err)
		}
		want[1].Checks = []string{}
		if !reflect.DeepEqual(got, want) {
			t.Errorf("expected %+v, got %+v", want, got)
		}
	})

	t.Run("AppendKeepsOrder", func(t *testing.T) {
		if _, err := repo.AppendReport(ctx, report("G1", "third")); err != nil {
			t.Fatalf("AppendReport failed: %v", err)
		}

		got, _ := repo.LoadReports(ctx)
		var reasons []string
		for _, r := range got {
			reasons = append(reasons, r.Reason)
		}
		if !reflect.DeepEqual(reasons, []string{"first", "second", "third"}) {
			t.Errorf("unexpected order %v", reasons)
		}
	})
}

func TestSharedLedgerAppends(t *testing.T) {
	path := filepath.Join(t.TempDir(), "shared.db")
	ctx := context.Background()

	open := func() *SQLRepository {
		repo, err := New(domain.RepositoryConfig{Driver: "sqlite", SQLitePath: path})
		if err != nil {
			t.Fatalf("failed to create repository: %v", err)
		}
		t.Cleanup(func() { repo.Close() })
		return repo
	}
	var resolve ledger.GroupResolver = func(ctx context.Context, groupID string) (*domain.EnrichedGroup, error) {
		return &domain.EnrichedGroup{Group: domain.RawGroup{GroupID: groupID}}, nil
	}

	a := ledger.New(open())
	b := ledger.New(open())

	if reports, _ := a.List(ctx); len(reports) != 0 {
		t.Fatalf("expected empty ledger, got %+v", reports)
	}
	if _, err := b.Submit(ctx, domain.ReportRequest{GroupID: "GB", Reason: "from b"}, resolve); err != nil {
		t.Fatalf("submit on b failed: %v", err)
	}

	// a still holds the empty view loaded before b appended.
	created, err := a.Submit(ctx, domain.ReportRequest{GroupID: "GA", Reason: "from a"}, resolve)
	if err != nil {
		t.Fatalf("submit on a failed: %v", err)
	}
	if created.TotalReports != 2 {
		t.Errorf("expected total 2, got %d", created.TotalReports)
	}

	ids, err := a.ReportedIDs(ctx)
	if err != nil {
		t.Fatalf("reported ids failed: %v", err)
	}
	if !reflect.DeepEqual(ids, []string{"GB", "GA"}) {
		t.Errorf("expected both appends stored in order, got %v", ids)
	}
}

func TestPersistsAcrossReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ledger.db")
	ctx := context.Background()

	repo, err := New(domain.RepositoryConfig{Driver: "sqlite", SQLitePath: path})
	if err != nil {
		t.Fatalf("failed to create repository: %v", err)
	}
	if _, err := repo.AppendReport(ctx, report("G1", "kept")); err != nil {
		t.Fatalf("AppendReport failed: %v", err)
	}
	repo.Close()

	reopened, err := New(domain.RepositoryConfig{Driver: "sqlite", SQLitePath: path})
	if err != nil {
		t.Fatalf("failed to reopen repository: %v", err)
	}
	defer reopened.Close()

	got, _ := reopened.LoadReports(ctx)
	if len(got) != 1 || got[0].Reason != "kept" {
		t.Errorf("expected persisted report, got %+v", got)
	}
}

func TestUnsupportedDriver(t *testing.T) {
	if _, err := New(domain.RepositoryConfig{Driver: "mysql"}); err == nil {
		t.Error("expected error for unsupported driver")
	}
}

func TestRebind(t *testing.T) {
	pg := &SQLRepository{driver: "postgres"}
	if got := pg.rebind("VALUES (?, ?, ?)"); got != "VALUES ($1, $2, $3)" {
		t.Errorf("unexpected postgres rebind %q", got)
	}

	lite := &SQLRepository{driver: "sqlite"}
	if got := lite.rebind("VALUES (?, ?)"); got != "VALUES (?, ?)" {
		t.Errorf("sqlite query must be unchanged, got %q", got)
	}
}
