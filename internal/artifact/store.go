// Package artifact reads the exported resolution artifacts from disk and
// persists the JSON report ledger next to them.
package artifact

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sort"

	"github.com/opensource-finance/explorer/internal/domain"
)

// FileStore implements domain.ArtifactStore and domain.ReportStore on the
// local filesystem. Missing, empty or malformed files read as empty.
type FileStore struct {
	paths domain.ArtifactsConfig
}

// NewFileStore creates a store over the resolved artifact paths.
func NewFileStore(paths domain.ArtifactsConfig) *FileStore {
	return &FileStore{paths: paths}
}

// Paths returns the resolved artifact locations.
func (s *FileStore) Paths() domain.ArtifactsConfig {
	return s.paths
}

// LoadGroups reads every *.json file in the entities directory in lexical
// order. Files that are not a JSON object are skipped.
func (s *FileStore) LoadGroups(ctx context.Context) ([]domain.RawGroup, error) {
	groups := make([]domain.RawGroup, 0)

	matches, err := filepath.Glob(filepath.Join(s.paths.EntitiesDir, "*.json"))
	if err != nil {
		return nil, fmt.Errorf("failed to list group artifacts: %w", err)
	}
	if len(matches) == 0 {
		if _, err := os.Stat(s.paths.EntitiesDir); errors.Is(err, fs.ErrNotExist) {
			slog.Warn("group directory does not exist", "path", s.paths.EntitiesDir)
		}
		return groups, nil
	}
	sort.Strings(matches)

	for _, path := range matches {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		data := readFile(path)
		if data == nil {
			continue
		}
		group, ok := domain.DecodeGroup(data)
		if !ok {
			slog.Warn("skipping malformed group artifact", "path", path)
			continue
		}
		group.SourcePath = path
		groups = append(groups, group)
	}
	return groups, nil
}

// LoadSummary reads the dataset summary object.
func (s *FileStore) LoadSummary(ctx context.Context) (map[string]any, error) {
	summary := map[string]any{}
	data := readFile(s.paths.SummaryFile)
	if data == nil {
		return summary, nil
	}
	if err := json.Unmarshal(data, &summary); err != nil || summary == nil {
		slog.Warn("unable to parse summary artifact", "path", s.paths.SummaryFile)
		return map[string]any{}, nil
	}
	return summary, nil
}

// LoadSnapshots reads the snapshot list.
func (s *FileStore) LoadSnapshots(ctx context.Context) ([]domain.Snapshot, error) {
	data := readFile(s.paths.SnapshotsFile)
	if data == nil {
		return []domain.Snapshot{}, nil
	}
	snapshots := domain.DecodeSnapshots(data)
	if snapshots == nil {
		slog.Warn("unable to parse snapshot artifact", "path", s.paths.SnapshotsFile)
		return []domain.Snapshot{}, nil
	}
	return snapshots, nil
}

// LoadReports reads the JSON report ledger.
func (s *FileStore) LoadReports(ctx context.Context) ([]domain.Report, error) {
	data := readFile(s.paths.ReportsFile)
	if data == nil {
		return []domain.Report{}, nil
	}
	reports := domain.DecodeReports(data)
	if reports == nil {
		slog.Warn("unable to parse report ledger", "path", s.paths.ReportsFile)
		return []domain.Report{}, nil
	}
	return reports, nil
}

// AppendReport adds one entry to the ledger file. Stored entries are
// carried over from the file as raw JSON, so entries the typed view cannot
// read survive untouched. The file is rewritten through a temporary file
// in the same directory.
func (s *FileStore) AppendReport(ctx context.Context, report domain.Report) (int, error) {
	entries := []json.RawMessage{}
	if data := readFile(s.paths.ReportsFile); data != nil {
		if err := json.Unmarshal(data, &entries); err != nil || entries == nil {
			slog.Warn("replacing unparseable report ledger", "path", s.paths.ReportsFile)
			entries = []json.RawMessage{}
		}
	}

	entry, err := json.Marshal(report)
	if err != nil {
		return 0, fmt.Errorf("failed to encode report: %w", err)
	}
	entries = append(entries, entry)

	data, err := json.MarshalIndent(entries, "", "  ")
	if err != nil {
		return 0, fmt.Errorf("failed to encode reports: %w", err)
	}
	if err := writeAtomic(s.paths.ReportsFile, append(data, '\n')); err != nil {
		return 0, err
	}
	return len(entries), nil
}

// EnsureReportsFile creates an empty ledger when none exists.
func (s *FileStore) EnsureReportsFile() error {
	if _, err := os.Stat(s.paths.ReportsFile); err == nil {
		return nil
	} else if !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("failed to stat report ledger: %w", err)
	}
	return writeAtomic(s.paths.ReportsFile, []byte("[]\n"))
}

// Ping checks that the base directory is reachable.
func (s *FileStore) Ping(ctx context.Context) error {
	info, err := os.Stat(s.paths.BaseDir)
	if err != nil {
		return fmt.Errorf("artifact base directory unavailable: %w", err)
	}
	if !info.IsDir() {
		return fmt.Errorf("artifact base %s is not a directory", s.paths.BaseDir)
	}
	return nil
}

// Close is a no-op.
func (s *FileStore) Close() error {
	return nil
}

// readFile returns nil for missing, unreadable or empty files.
func readFile(path string) []byte {
	data, err := os.ReadFile(path)
	if err != nil {
		if !errors.Is(err, fs.ErrNotExist) {
			slog.Warn("unable to read artifact", "path", path, "error", err)
		}
		return nil
	}
	if len(data) == 0 {
		return nil
	}
	return data
}

func writeAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("failed to create %s: %w", dir, err)
	}

	tmp, err := os.CreateTemp(dir, filepath.Base(path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("failed to write %s: %w", tmpName, err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("failed to close %s: %w", tmpName, err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("failed to replace %s: %w", path, err)
	}
	return nil
}
