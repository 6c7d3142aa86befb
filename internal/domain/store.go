// Package domain defines the core interfaces and types for the explorer.
package domain

import (
	"context"
	"time"
)

// ArtifactStore gives read-only access to the exported resolution artifacts.
// Missing or malformed sources degrade to empty containers; an error is
// returned only when the store itself is unusable.
type ArtifactStore interface {
	// LoadGroups returns every group in stable source order.
	LoadGroups(ctx context.Context) ([]RawGroup, error)

	// LoadSummary returns the dataset summary blob.
	LoadSummary(ctx context.Context) (map[string]any, error)

	// LoadSnapshots returns the historical record snapshots.
	LoadSnapshots(ctx context.Context) ([]Snapshot, error)

	// Health check
	Ping(ctx context.Context) error
}

// ReportStore persists the append-only report ledger.
type ReportStore interface {
	// LoadReports returns the ledger in chronological order.
	LoadReports(ctx context.Context) ([]Report, error)

	// AppendReport adds one entry after every stored entry and returns
	// the number of stored entries. Existing entries are never rewritten.
	AppendReport(ctx context.Context, report Report) (int, error)

	// Health check
	Ping(ctx context.Context) error

	// Lifecycle
	Close() error
}

// RepositoryConfig holds configuration for the report ledger backend.
type RepositoryConfig struct {
	// Driver is the ledger backend: "file", "sqlite" or "postgres"
	Driver string

	// SQLite specific
	SQLitePath string

	// PostgreSQL specific
	PostgresHost     string
	PostgresPort     int
	PostgresUser     string
	PostgresPassword string
	PostgresDB       string
	PostgresSSLMode  string

	// Connection pool settings
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}
