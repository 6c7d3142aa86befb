// Package repository persists the report ledger in SQLite or PostgreSQL.
package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/opensource-finance/explorer/internal/domain"
)

// SQLRepository implements domain.ReportStore using database/sql.
// Works with both SQLite and PostgreSQL drivers.
type SQLRepository struct {
	db     *sql.DB
	driver string
}

// New creates a new repository based on configuration.
func New(cfg domain.RepositoryConfig) (*SQLRepository, error) {
	var db *sql.DB
	var err error

	switch cfg.Driver {
	case "sqlite":
		db, err = openSQLite(cfg)
	case "postgres":
		db, err = openPostgres(cfg)
	default:
		return nil, fmt.Errorf("unsupported driver: %s", cfg.Driver)
	}

	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Configure connection pool
	if cfg.MaxOpenConns > 0 {
		db.SetMaxOpenConns(cfg.MaxOpenConns)
	}
	if cfg.MaxIdleConns > 0 {
		db.SetMaxIdleConns(cfg.MaxIdleConns)
	}
	if cfg.ConnMaxLifetime > 0 {
		db.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	}

	repo := &SQLRepository{
		db:     db,
		driver: cfg.Driver,
	}

	// Run migrations
	if err := repo.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	return repo, nil
}

func (r *SQLRepository) migrate() error {
	for _, schema := range AllSchemas() {
		if _, err := r.db.Exec(schema); err != nil {
			return err
		}
	}
	return nil
}

// LoadReports returns the ledger ordered by position.
func (r *SQLRepository) LoadReports(ctx context.Context) ([]domain.Report, error) {
	query := `
		SELECT timestamp, group_id, reason, checks, num_members, total_amount, risk_score
		FROM reports
		ORDER BY position
	`

	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	reports := make([]domain.Report, 0)
	for rows.Next() {
		var rep domain.Report
		var checks string

		if err := rows.Scan(
			&rep.Timestamp, &rep.GroupID, &rep.Reason, &checks,
			&rep.Snapshot.NumMembers, &rep.Snapshot.TotalAmount, &rep.Snapshot.RiskScore,
		); err != nil {
			return nil, err
		}

		if err := json.Unmarshal([]byte(checks), &rep.Checks); err != nil || rep.Checks == nil {
			rep.Checks = []string{}
		}
		reports = append(reports, rep)
	}

	return reports, rows.Err()
}

// AppendReport inserts one entry after the stored rows in a single
// transaction and returns the stored row count. Two writers racing for the
// same position fail on the primary key instead of overwriting each other.
func (r *SQLRepository) AppendReport(ctx context.Context, rep domain.Report) (int, error) {
	checks := rep.Checks
	if checks == nil {
		checks = []string{}
	}
	encoded, err := json.Marshal(checks)
	if err != nil {
		return 0, fmt.Errorf("failed to encode checks: %w", err)
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	var position int
	if err := tx.QueryRowContext(ctx, `SELECT COALESCE(MAX(position) + 1, 0) FROM reports`).Scan(&position); err != nil {
		return 0, fmt.Errorf("failed to find ledger tail: %w", err)
	}

	insert := r.rebind(`
		INSERT INTO reports (
			position, timestamp, group_id, reason, checks, num_members, total_amount, risk_score
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`)
	if _, err := tx.ExecContext(ctx, insert,
		position, rep.Timestamp, rep.GroupID, rep.Reason, string(encoded),
		rep.Snapshot.NumMembers, rep.Snapshot.TotalAmount, rep.Snapshot.RiskScore,
	); err != nil {
		return 0, fmt.Errorf("failed to insert report %d: %w", position, err)
	}

	var total int
	if err := tx.QueryRowContext(ctx, `SELECT COUNT(*) FROM reports`).Scan(&total); err != nil {
		return 0, fmt.Errorf("failed to count reports: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("failed to commit report: %w", err)
	}
	return total, nil
}

// Ping checks database connectivity.
func (r *SQLRepository) Ping(ctx context.Context) error {
	return r.db.PingContext(ctx)
}

// Close closes the database connection.
func (r *SQLRepository) Close() error {
	return r.db.Close()
}

// rebind converts ? placeholders to $1, $2, etc. for PostgreSQL.
func (r *SQLRepository) rebind(query string) string {
	if r.driver != "postgres" {
		return query
	}

	// Convert ? to $1, $2, etc.
	var result []byte
	n := 1
	for i := 0; i < len(query); i++ {
		if query[i] == '?' {
			result = append(result, '$')
			result = strconv.AppendInt(result, int64(n), 10)
			n++
		} else {
			result = append(result, query[i])
		}
	}
	return string(result)
}
