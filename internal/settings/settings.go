// Package settings loads the runtime UI settings file.
package settings

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/opensource-finance/explorer/internal/domain"
)

// Load reads the settings file at path. The file may be JSON or YAML.
// A missing or empty file yields the defaults; a file that does not parse
// is logged and also yields the defaults.
func Load(path string) domain.Settings {
	data, err := os.ReadFile(path)
	if err != nil {
		if !errors.Is(err, fs.ErrNotExist) {
			slog.Warn("unable to read settings file", "path", path, "error", err)
		}
		return domain.DefaultSettings()
	}
	s, err := Parse(data)
	if err != nil {
		slog.Warn("unable to parse settings file", "path", path, "error", err)
		return domain.DefaultSettings()
	}
	return s
}

// Parse decodes a settings payload of the form
//
//	ui:
//	  title: ...
//	  defaultHighlightReported: true
//	  defaultShowSummaries: true
//	reporting:
//	  checks: [...]
//
// Unknown keys are ignored and missing ones take their defaults.
func Parse(data []byte) (domain.Settings, error) {
	var payload map[string]any
	if len(strings.TrimSpace(string(data))) > 0 {
		if err := yaml.Unmarshal(data, &payload); err != nil {
			return domain.Settings{}, fmt.Errorf("parse settings: %w", err)
		}
	}
	return FromPayload(payload), nil
}

// FromPayload builds settings from a decoded payload.
func FromPayload(payload map[string]any) domain.Settings {
	s := domain.DefaultSettings()

	ui, _ := payload["ui"].(map[string]any)
	reporting, _ := payload["reporting"].(map[string]any)

	if title, ok := ui["title"]; ok && truthy(title) {
		s.Title = fmt.Sprint(title)
	}
	if v, ok := ui["defaultHighlightReported"]; ok {
		s.DefaultHighlightReported = truthy(v)
	}
	if v, ok := ui["defaultShowSummaries"]; ok {
		s.DefaultShowSummaries = truthy(v)
	}
	if checks, ok := reportChecks(reporting["checks"]); ok {
		s.ReportChecks = checks
	}
	return s
}

// reportChecks accepts only a list made entirely of strings. Blank entries
// are dropped; a list with nothing left is rejected.
func reportChecks(v any) ([]string, bool) {
	items, ok := v.([]any)
	if !ok {
		return nil, false
	}
	checks := make([]string, 0, len(items))
	for _, item := range items {
		s, ok := item.(string)
		if !ok {
			return nil, false
		}
		if s = strings.TrimSpace(s); s != "" {
			checks = append(checks, s)
		}
	}
	if len(checks) == 0 {
		return nil, false
	}
	return checks, true
}

func truthy(v any) bool {
	switch t := v.(type) {
	case nil:
		return false
	case bool:
		return t
	case string:
		return t != ""
	case int:
		return t != 0
	case int64:
		return t != 0
	case float64:
		return t != 0
	case []any:
		return len(t) > 0
	case map[string]any:
		return len(t) > 0
	default:
		return true
	}
}
