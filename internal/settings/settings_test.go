package settings

import (
	"os"
	"path/filepath"
	"reflect"
	"testing"

	"github.com/opensource-finance/explorer/internal/domain"
)

func TestParse(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  domain.Settings
	}{
		{
			name:  "Empty",
			input: "",
			want:  domain.DefaultSettings(),
		},
		{
			name:  "JSON",
			input: `{"ui": {"title": "AML Desk", "defaultHighlightReported": false, "defaultShowSummaries": true}, "reporting": {"checks": [" circular flow ", "", "shell company"]}}`,
			want: domain.Settings{
				Title:                    "AML Desk",
				ReportChecks:             []string{"circular flow", "shell company"},
				DefaultHighlightReported: false,
				DefaultShowSummaries:     true,
			},
		},
		{
			name: "YAML",
			input: `
ui:
  title: Explorer
  defaultShowSummaries: false
reporting:
  checks:
    - one
`,
			want: domain.Settings{
				Title:                    "Explorer",
				ReportChecks:             []string{"one"},
				DefaultHighlightReported: true,
				DefaultShowSummaries:     false,
			},
		},
		{
			name:  "BlankTitleAndChecks",
			input: `{"ui": {"title": ""}, "reporting": {"checks": ["  ", ""]}}`,
			want:  domain.DefaultSettings(),
		},
		{
			name:  "MixedChecksRejected",
			input: `{"reporting": {"checks": ["a", 1]}}`,
			want:  domain.DefaultSettings(),
		},
		{
			name:  "WrongSectionTypes",
			input: `{"ui": "nope", "reporting": []}`,
			want:  domain.DefaultSettings(),
		},
		{
			name:  "NonStringTitle",
			input: `{"ui": {"title": 42, "defaultHighlightReported": 0}}`,
			want: domain.Settings{
				Title:                    "42",
				ReportChecks:             domain.DefaultReportChecks,
				DefaultHighlightReported: false,
				DefaultShowSummaries:     true,
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Parse([]byte(tt.input))
			if err != nil {
				t.Fatalf("parse failed: %v", err)
			}
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("expected %+v, got %+v", tt.want, got)
			}
		})
	}
}

func TestParseInvalid(t *testing.T) {
	if _, err := Parse([]byte("ui: [unterminated")); err == nil {
		t.Error("expected parse error")
	}
}

func TestLoad(t *testing.T) {
	dir := t.TempDir()

	t.Run("Missing", func(t *testing.T) {
		got := Load(filepath.Join(dir, "missing.json"))
		if !reflect.DeepEqual(got, domain.DefaultSettings()) {
			t.Errorf("expected defaults, got %+v", got)
		}
	})

	t.Run("Malformed", func(t *testing.T) {
		path := filepath.Join(dir, "bad.json")
		os.WriteFile(path, []byte(`{"ui": [`), 0o644)
		got := Load(path)
		if !reflect.DeepEqual(got, domain.DefaultSettings()) {
			t.Errorf("expected defaults, got %+v", got)
		}
	})

	t.Run("Valid", func(t *testing.T) {
		path := filepath.Join(dir, "app_settings.json")
		os.WriteFile(path, []byte(`{"ui": {"title": "Custom"}}`), 0o644)
		if got := Load(path); got.Title != "Custom" {
			t.Errorf("expected Custom title, got %q", got.Title)
		}
	})
}

func TestDefaultsNotShared(t *testing.T) {
	s := FromPayload(nil)
	s.ReportChecks[0] = "changed"
	if domain.DefaultReportChecks[0] == "changed" {
		t.Error("defaults must not be shared")
	}
}
