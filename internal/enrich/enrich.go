// Package enrich derives per-group metrics from raw resolution groups.
package enrich

import (
	"time"

	"github.com/opensource-finance/explorer/internal/domain"
	"github.com/opensource-finance/explorer/internal/risk"
)

// Group enriches one raw group. It never fails: unparsable amounts and
// timestamps are skipped. The input is deep-copied so the loaded artifact
// is never shared with the result.
func Group(raw domain.RawGroup) domain.EnrichedGroup {
	group := raw.Clone()

	var (
		totalAmount   float64
		minAmount     *float64
		maxAmount     *float64
		outgoingCount int
		timestamps    []time.Time
	)
	counterparties := make(map[string]struct{})
	parsed := make([]domain.ParsedTransaction, 0, len(group.Transactions))

	for _, tx := range group.Transactions {
		if tx.Amount != nil {
			amount := *tx.Amount
			totalAmount += amount
			if minAmount == nil || amount < *minAmount {
				minAmount = &amount
			}
			if maxAmount == nil || amount > *maxAmount {
				v := amount
				maxAmount = &v
			}
		}
		if tx.CounterpartyID != "" {
			counterparties[tx.CounterpartyID] = struct{}{}
		}
		if domain.IsOutgoing(tx.Direction) {
			outgoingCount++
		}
		ts := ParseTimestamp(tx.Timestamp)
		if ts != nil {
			timestamps = append(timestamps, *ts)
		}
		parsed = append(parsed, domain.ParsedTransaction{Transaction: tx, ParsedTimestamp: ts})
	}

	transactionCount := len(group.Transactions)
	outgoingRatio := 0.0
	if transactionCount > 0 {
		outgoingRatio = float64(outgoingCount) / float64(transactionCount)
	}

	metrics := domain.GroupMetrics{
		MemberCount:          len(group.Members),
		TransactionCount:     transactionCount,
		TotalAmount:          RoundAmount(totalAmount),
		UniqueCounterparties: len(counterparties),
		OutgoingRatio:        outgoingRatio,
		MinTransactionAmount: minAmount,
		MaxTransactionAmount: maxAmount,
	}
	metrics.FirstSeen, metrics.LastSeen = bounds(timestamps)
	metrics.RiskScore = risk.Score(
		metrics.MemberCount,
		metrics.TransactionCount,
		totalAmount,
		metrics.UniqueCounterparties,
		metrics.OutgoingRatio,
	)

	return domain.EnrichedGroup{
		Group:        group,
		DisplayName:  displayName(group),
		Metrics:      metrics,
		Transactions: parsed,
	}
}

// All enriches every group, preserving order.
func All(raws []domain.RawGroup) []domain.EnrichedGroup {
	out := make([]domain.EnrichedGroup, len(raws))
	for i, raw := range raws {
		out[i] = Group(raw)
	}
	return out
}

func bounds(timestamps []time.Time) (first, last *time.Time) {
	for i := range timestamps {
		ts := timestamps[i]
		if first == nil || ts.Before(*first) {
			first = &ts
		}
		if last == nil || ts.After(*last) {
			v := ts
			last = &v
		}
	}
	return first, last
}

func displayName(g domain.RawGroup) string {
	if name, ok := g.CanonicalAttributes["name"].(string); ok && name != "" {
		return name
	}
	return g.GroupID
}

// Transactions parses the timestamps of a transaction list.
func Transactions(txs []domain.Transaction) []domain.ParsedTransaction {
	out := make([]domain.ParsedTransaction, len(txs))
	for i, tx := range txs {
		out[i] = domain.ParsedTransaction{Transaction: tx, ParsedTimestamp: ParseTimestamp(tx.Timestamp)}
	}
	return out
}

// TransactionViews converts parsed transactions to their response shape.
func TransactionViews(txs []domain.ParsedTransaction) []domain.TransactionView {
	out := make([]domain.TransactionView, len(txs))
	for i, tx := range txs {
		out[i] = tx.View()
	}
	return out
}

// MemberViews converts members to their response shape.
func MemberViews(members []domain.Member) []domain.MemberView {
	out := make([]domain.MemberView, len(members))
	for i, m := range members {
		m = m.Clone()
		view := domain.MemberView{
			Attributes:           m.Attributes,
			NormalizedAttributes: m.NormalizedAttributes,
			Transactions:         TransactionViews(Transactions(m.Transactions)),
			SignatureHistory:     m.SignatureHistory,
		}
		if m.RecordID != "" {
			view.RecordID = &m.RecordID
		}
		if m.EntityType != "" {
			view.EntityType = &m.EntityType
		}
		if view.SignatureHistory == nil {
			view.SignatureHistory = []string{}
		}
		out[i] = view
	}
	return out
}
