package enrich

import (
	"math"
	"testing"
	"time"

	"github.com/opensource-finance/explorer/internal/domain"
)

func amount(v float64) *float64 {
	return &v
}

func TestParseTimestamp(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		want time.Time
		ok   bool
	}{
		{"UTCMarker", "2024-03-01T10:00:00Z", time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC), true},
		{"Offset", "2024-03-01T12:00:00+02:00", time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC), true},
		{"NaiveIsUTC", "2024-03-01T10:00:00", time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC), true},
		{"Fractional", "2024-03-01T10:00:00.250Z", time.Date(2024, 3, 1, 10, 0, 0, 250000000, time.UTC), true},
		{"SpaceSeparator", "2024-03-01 10:00:00", time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC), true},
		{"DateOnly", "2024-03-01", time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC), true},
		{"Empty", "", time.Time{}, false},
		{"Garbage", "yesterday", time.Time{}, false},
		{"OutOfRange", "2024-13-45T10:00:00Z", time.Time{}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ParseTimestamp(tt.raw)
			if !tt.ok {
				if got != nil {
					t.Errorf("expected nil, got %v", got)
				}
				return
			}
			if got == nil {
				t.Fatalf("expected %v, got nil", tt.want)
			}
			if !got.Equal(tt.want) {
				t.Errorf("expected %v, got %v", tt.want, got)
			}
		})
	}
}

func TestRoundAmount(t *testing.T) {
	tests := []struct {
		in   float64
		want float64
	}{
		{150.004, 150.0},
		{10.126, 10.13},
		{-3.333, -3.33},
		// exact ties go to the even digit
		{1.125, 1.12},
		{0.375, 0.38},
		{-0.625, -0.62},
		// 2.675 is stored just below the tie
		{2.675, 2.67},
	}
	for _, tt := range tests {
		if got := RoundAmount(tt.in); got != tt.want {
			t.Errorf("RoundAmount(%v) = %v, want %v", tt.in, got, tt.want)
		}
	}
	if got := RoundAmount(math.Inf(1)); !math.IsInf(got, 1) {
		t.Errorf("expected +Inf unchanged, got %v", got)
	}
}

func TestGroupTotalRoundsTiesToEven(t *testing.T) {
	g := Group(domain.RawGroup{
		GroupID: "G1",
		Transactions: []domain.Transaction{
			{Amount: amount(0.625), Direction: "out", CounterpartyID: "C1"},
			{Amount: amount(0.5), Direction: "out", CounterpartyID: "C1"},
		},
	})
	if g.Metrics.TotalAmount != 1.12 {
		t.Errorf("expected total 1.12, got %v", g.Metrics.TotalAmount)
	}
}

func TestGroup(t *testing.T) {
	t.Run("WorkedExample", func(t *testing.T) {
		raw := domain.RawGroup{
			GroupID: "G1",
			Members: []domain.Member{{RecordID: "R1"}, {RecordID: "R2"}},
			Transactions: []domain.Transaction{
				{Amount: amount(100), Direction: "out"},
				{Amount: amount(50), Direction: "in", CounterpartyID: "C1"},
			},
		}

		g := Group(raw)
		m := g.Metrics

		if m.MemberCount != 2 {
			t.Errorf("expected 2 members, got %d", m.MemberCount)
		}
		if m.TransactionCount != 2 {
			t.Errorf("expected 2 transactions, got %d", m.TransactionCount)
		}
		if m.OutgoingRatio != 0.5 {
			t.Errorf("expected outgoing ratio 0.5, got %v", m.OutgoingRatio)
		}
		if m.TotalAmount != 150.0 {
			t.Errorf("expected total 150, got %v", m.TotalAmount)
		}
		if m.UniqueCounterparties != 1 {
			t.Errorf("expected 1 counterparty, got %d", m.UniqueCounterparties)
		}
		if *m.MinTransactionAmount != 50 || *m.MaxTransactionAmount != 100 {
			t.Errorf("unexpected min/max: %v/%v", *m.MinTransactionAmount, *m.MaxTransactionAmount)
		}
		if m.FirstSeen != nil || m.LastSeen != nil {
			t.Error("expected no first/last seen without timestamps")
		}
		if m.RiskScore != 46 {
			t.Errorf("expected risk 46, got %d", m.RiskScore)
		}
		if g.DisplayName != "G1" {
			t.Errorf("expected display name to fall back to id, got %s", g.DisplayName)
		}
	})

	t.Run("EmptyGroup", func(t *testing.T) {
		g := Group(domain.RawGroup{GroupID: "empty"})
		if g.Metrics.OutgoingRatio != 0 {
			t.Errorf("expected ratio 0, got %v", g.Metrics.OutgoingRatio)
		}
		if g.Metrics.RiskScore != 1 {
			t.Errorf("expected risk 1, got %d", g.Metrics.RiskScore)
		}
		if g.Metrics.MinTransactionAmount != nil || g.Metrics.MaxTransactionAmount != nil {
			t.Error("expected absent min/max amounts")
		}
	})

	t.Run("DirtyData", func(t *testing.T) {
		raw := domain.RawGroup{
			GroupID:             "G2",
			CanonicalAttributes: map[string]any{"name": "Acme Holdings"},
			Transactions: []domain.Transaction{
				{Amount: nil, Direction: "DEBIT", Timestamp: "not a date"},
				{Amount: amount(-20), Direction: "sideways", Timestamp: "2024-01-05T00:00:00Z"},
				{Amount: amount(10.5), Direction: "Credit", Timestamp: "2024-01-02T00:00:00"},
			},
		}

		g := Group(raw)
		m := g.Metrics

		if m.TransactionCount != 3 {
			t.Errorf("expected 3 transactions, got %d", m.TransactionCount)
		}
		if m.TotalAmount != -9.5 {
			t.Errorf("expected total -9.5, got %v", m.TotalAmount)
		}
		if *m.MinTransactionAmount != -20 {
			t.Errorf("expected min -20, got %v", *m.MinTransactionAmount)
		}
		if m.OutgoingRatio != 1.0/3.0 {
			t.Errorf("expected ratio 1/3, got %v", m.OutgoingRatio)
		}
		if m.FirstSeen == nil || !m.FirstSeen.Equal(time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC)) {
			t.Errorf("unexpected first seen: %v", m.FirstSeen)
		}
		if m.LastSeen == nil || !m.LastSeen.Equal(time.Date(2024, 1, 5, 0, 0, 0, 0, time.UTC)) {
			t.Errorf("unexpected last seen: %v", m.LastSeen)
		}
		if g.Transactions[0].ParsedTimestamp != nil {
			t.Error("expected unparsable timestamp to be absent")
		}
		if g.DisplayName != "Acme Holdings" {
			t.Errorf("expected canonical name, got %s", g.DisplayName)
		}
	})

	t.Run("DoesNotShareInput", func(t *testing.T) {
		raw := domain.RawGroup{
			GroupID:             "G3",
			CanonicalAttributes: map[string]any{"name": "Original"},
			Members:             []domain.Member{{RecordID: "R1", SignatureHistory: []string{"s1"}}},
		}
		g := Group(raw)
		g.Group.CanonicalAttributes["name"] = "Mutated"
		g.Group.Members[0].SignatureHistory[0] = "mutated"

		if raw.CanonicalAttributes["name"] != "Original" {
			t.Error("enrichment result shares attributes with the input")
		}
		if raw.Members[0].SignatureHistory[0] != "s1" {
			t.Error("enrichment result shares members with the input")
		}
	})
}

func TestOutgoingRatioBounds(t *testing.T) {
	directions := []string{"out", "OUT", "outgoing", "debit", "in", "credit", "", "wire"}
	for n := 0; n <= len(directions); n++ {
		txs := make([]domain.Transaction, 0, n)
		for _, d := range directions[:n] {
			txs = append(txs, domain.Transaction{Direction: d, Amount: amount(1)})
		}
		ratio := Group(domain.RawGroup{GroupID: "G", Transactions: txs}).Metrics.OutgoingRatio
		if ratio < 0 || ratio > 1 {
			t.Fatalf("ratio %v out of bounds for %d transactions", ratio, n)
		}
	}
}

func TestMemberViews(t *testing.T) {
	members := []domain.Member{
		{
			RecordID:     "R1",
			Transactions: []domain.Transaction{{Timestamp: "2024-01-01T00:00:00Z"}},
		},
		{},
	}

	views := MemberViews(members)
	if len(views) != 2 {
		t.Fatalf("expected 2 views, got %d", len(views))
	}
	if views[0].RecordID == nil || *views[0].RecordID != "R1" {
		t.Errorf("unexpected record id: %v", views[0].RecordID)
	}
	if views[0].Transactions[0].Timestamp == nil {
		t.Error("expected member transaction timestamp to be parsed")
	}
	if views[1].RecordID != nil || views[1].EntityType != nil {
		t.Error("expected absent identifiers to be nil")
	}
	if views[1].SignatureHistory == nil {
		t.Error("expected empty signature history, got nil")
	}
}
