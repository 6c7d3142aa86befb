package domain

// DefaultReportChecks are offered when the settings file lists none.
var DefaultReportChecks = []string{
	"shared tax id",
	"rapid transfer chain",
	"circular flow",
	"high velocity counterparties",
	"mismatched jurisdiction",
}

// DefaultTitle is the UI title used when none is configured.
const DefaultTitle = "Entity Resolution Explorer"

// Settings are the runtime UI settings.
type Settings struct {
	Title                    string   `json:"title"`
	ReportChecks             []string `json:"report_checks"`
	DefaultHighlightReported bool     `json:"default_highlight_reported"`
	DefaultShowSummaries     bool     `json:"default_show_summaries"`
}

// DefaultSettings returns the settings used without a settings file.
func DefaultSettings() Settings {
	return Settings{
		Title:                    DefaultTitle,
		ReportChecks:             append([]string(nil), DefaultReportChecks...),
		DefaultHighlightReported: true,
		DefaultShowSummaries:     true,
	}
}
