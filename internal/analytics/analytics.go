// Package analytics aggregates and filters enriched groups.
package analytics

import (
	"time"

	"github.com/opensource-finance/explorer/internal/domain"
)

// Predicate is an additional group test applied after the built-in filters.
type Predicate func(g *domain.EnrichedGroup, reported bool) bool

// ReportedSet builds a lookup set from reported group ids.
func ReportedSet(ids []string) map[string]bool {
	set := make(map[string]bool, len(ids))
	for _, id := range ids {
		set[id] = true
	}
	return set
}

// Summarize computes cross-group bounds. Every field stays nil for an
// empty input.
func Summarize(groups []domain.EnrichedGroup) domain.SummaryStats {
	var stats domain.SummaryStats
	for i := range groups {
		m := groups[i].Metrics

		stats.MinTotalAmount = minFloat(stats.MinTotalAmount, m.TotalAmount)
		stats.MaxTotalAmount = maxFloat(stats.MaxTotalAmount, m.TotalAmount)
		stats.MinRisk = minInt(stats.MinRisk, m.RiskScore)
		stats.MaxRisk = maxInt(stats.MaxRisk, m.RiskScore)

		if m.MinTransactionAmount != nil {
			stats.MinTxAmount = minFloat(stats.MinTxAmount, *m.MinTransactionAmount)
		}
		if m.MaxTransactionAmount != nil {
			stats.MaxTxAmount = maxFloat(stats.MaxTxAmount, *m.MaxTransactionAmount)
		}
		for _, ts := range []*time.Time{m.FirstSeen, m.LastSeen} {
			if ts == nil {
				continue
			}
			if stats.MinDate == nil || ts.Before(*stats.MinDate) {
				v := *ts
				stats.MinDate = &v
			}
			if stats.MaxDate == nil || ts.After(*stats.MaxDate) {
				v := *ts
				stats.MaxDate = &v
			}
		}
	}
	return stats
}

// Filter returns the groups that pass every filter, in input order.
func Filter(groups []domain.EnrichedGroup, filters domain.GroupFilters, reportedIDs []string, extra ...Predicate) []domain.EnrichedGroup {
	reported := ReportedSet(reportedIDs)
	out := make([]domain.EnrichedGroup, 0, len(groups))
	for i := range groups {
		g := &groups[i]
		isReported := reported[g.ID()]
		if !Matches(g, filters, isReported) {
			continue
		}
		if !all(extra, g, isReported) {
			continue
		}
		out = append(out, *g)
	}
	return out
}

// Matches applies the built-in group filters.
func Matches(g *domain.EnrichedGroup, filters domain.GroupFilters, reported bool) bool {
	m := g.Metrics
	if m.RiskScore < filters.MinRisk {
		return false
	}
	if m.TotalAmount < filters.MinTotal || m.TotalAmount > filters.MaxTotal {
		return false
	}
	if filters.ReportedOnly && !reported {
		return false
	}
	if filters.StartDate != nil && (m.LastSeen == nil || m.LastSeen.Before(*filters.StartDate)) {
		return false
	}
	if filters.EndDate != nil && (m.FirstSeen == nil || m.FirstSeen.After(*filters.EndDate)) {
		return false
	}
	return true
}

// FilterTransactions applies the detail view filters. Absent amounts count
// as zero and transactions without a parsed timestamp fail any date bound.
func FilterTransactions(txs []domain.ParsedTransaction, filters domain.TransactionFilters) []domain.ParsedTransaction {
	out := make([]domain.ParsedTransaction, 0, len(txs))
	for _, tx := range txs {
		amount := tx.AmountOrZero()
		if amount < filters.MinAmount || amount > filters.MaxAmount {
			continue
		}
		ts := tx.ParsedTimestamp
		if filters.StartDate != nil && (ts == nil || ts.Before(*filters.StartDate)) {
			continue
		}
		if filters.EndDate != nil && (ts == nil || ts.After(*filters.EndDate)) {
			continue
		}
		out = append(out, tx)
	}
	return out
}

func all(preds []Predicate, g *domain.EnrichedGroup, reported bool) bool {
	for _, p := range preds {
		if p != nil && !p(g, reported) {
			return false
		}
	}
	return true
}

func minFloat(cur *float64, v float64) *float64 {
	if cur == nil || v < *cur {
		return &v
	}
	return cur
}

func maxFloat(cur *float64, v float64) *float64 {
	if cur == nil || v > *cur {
		return &v
	}
	return cur
}

func minInt(cur *int, v int) *int {
	if cur == nil || v < *cur {
		return &v
	}
	return cur
}

func maxInt(cur *int, v int) *int {
	if cur == nil || v > *cur {
		return &v
	}
	return cur
}
