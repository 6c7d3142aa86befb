package domain

import (
	"math"
	"time"
)

// GroupFilters select groups for listings and the network view.
type GroupFilters struct {
	MinRisk      int
	MinTotal     float64
	MaxTotal     float64
	StartDate    *time.Time
	EndDate      *time.Time
	ReportedOnly bool

	// Expression is an optional boolean CEL expression over group metrics.
	Expression string
}

// DefaultGroupFilters returns filters that accept every group.
func DefaultGroupFilters() GroupFilters {
	return GroupFilters{MaxTotal: math.Inf(1)}
}

// HasDateRange reports whether either date bound is set.
func (f GroupFilters) HasDateRange() bool {
	return f.StartDate != nil || f.EndDate != nil
}

// TransactionFilters select transactions in the group detail view.
type TransactionFilters struct {
	MinAmount float64
	MaxAmount float64
	StartDate *time.Time
	EndDate   *time.Time
}

// DefaultTransactionFilters returns the detail view defaults.
func DefaultTransactionFilters() TransactionFilters {
	return TransactionFilters{MaxAmount: math.Inf(1)}
}

// SummaryStats are cross-group bounds. Every field is nil for an empty set.
type SummaryStats struct {
	MinTotalAmount *float64   `json:"min_total_amount"`
	MaxTotalAmount *float64   `json:"max_total_amount"`
	MinRisk        *int       `json:"min_risk"`
	MaxRisk        *int       `json:"max_risk"`
	MinDate        *time.Time `json:"min_date"`
	MaxDate        *time.Time `json:"max_date"`
	MinTxAmount    *float64   `json:"min_tx_amount"`
	MaxTxAmount    *float64   `json:"max_tx_amount"`
}

// GroupList is the response of the group listing.
type GroupList struct {
	Items       []GroupSummary `json:"items"`
	Total       int            `json:"total"`
	Aggregated  SummaryStats   `json:"aggregated"`
	ReportedIDs []string       `json:"reported_ids"`
}

// GroupDetailResponse bundles a group with its correlated snapshots.
type GroupDetailResponse struct {
	Group         GroupDetail `json:"group"`
	Snapshots     []Snapshot  `json:"snapshots"`
	SnapshotCount int         `json:"snapshot_count"`
}

// RunOption is one selectable run in the dataset summary.
type RunOption struct {
	Label string         `json:"label"`
	Value string         `json:"value"`
	Meta  map[string]any `json:"meta"`
}

// DatasetSummary describes the loaded dataset as a whole.
type DatasetSummary struct {
	Runs            []RunOption    `json:"runs"`
	Aggregated      SummaryStats   `json:"aggregated"`
	TotalGroups     int            `json:"total_groups"`
	TotalRecords    *int           `json:"total_records"`
	SummaryMetadata map[string]any `json:"summary_metadata"`
}
