package domain

import (
	"time"
)

// RawGroup is one entity-resolution cluster as loaded from the artifact store.
type RawGroup struct {
	GroupID             string         `json:"group_id"`
	Members             []Member       `json:"members"`
	Transactions        []Transaction  `json:"transactions"`
	CanonicalAttributes map[string]any `json:"canonical_attributes"`

	// SourcePath is the artifact the group was read from, if any.
	SourcePath string `json:"source_path,omitempty"`
}

// UnmarshalJSON decodes a group leniently. Missing or mistyped
// collections become empty instead of rejecting the group.
func (g *RawGroup) UnmarshalJSON(data []byte) error {
	raw, err := decodeObject(data)
	if err != nil {
		return err
	}
	*g = groupFromMap(raw)
	return nil
}

// DecodeGroup decodes one group artifact. It reports false when the
// payload is not a JSON object.
func DecodeGroup(data []byte) (RawGroup, bool) {
	raw, err := decodeObject(data)
	if err != nil || raw == nil {
		return RawGroup{}, false
	}
	return groupFromMap(raw), true
}

func groupFromMap(raw map[string]any) RawGroup {
	members := asSlice(raw["members"])
	g := RawGroup{
		GroupID:             asString(raw["group_id"]),
		Members:             make([]Member, 0, len(members)),
		Transactions:        transactionsFromSlice(raw["transactions"]),
		CanonicalAttributes: copyMap(asMap(raw["canonical_attributes"])),
		SourcePath:          asString(raw["source_path"]),
	}
	for _, item := range members {
		if m := asMap(item); m != nil {
			g.Members = append(g.Members, memberFromMap(m))
		}
	}
	return g
}

// Clone returns a deep copy of the group. Attribute values are shared
// because they are never mutated after decoding.
func (g RawGroup) Clone() RawGroup {
	out := g
	out.Members = make([]Member, len(g.Members))
	for i, m := range g.Members {
		out.Members[i] = m.Clone()
	}
	out.Transactions = append([]Transaction(nil), g.Transactions...)
	out.CanonicalAttributes = copyMap(g.CanonicalAttributes)
	return out
}

// Member is one raw entity record inside a group.
type Member struct {
	RecordID             string         `json:"record_id,omitempty"`
	EntityType           string         `json:"entity_type,omitempty"`
	Attributes           map[string]any `json:"attributes"`
	NormalizedAttributes map[string]any `json:"normalized_attributes"`
	Transactions         []Transaction  `json:"transactions"`
	SignatureHistory     []string       `json:"signature_history"`
}

// UnmarshalJSON decodes a member leniently.
func (m *Member) UnmarshalJSON(data []byte) error {
	raw, err := decodeObject(data)
	if err != nil {
		return err
	}
	*m = memberFromMap(raw)
	return nil
}

func memberFromMap(raw map[string]any) Member {
	return Member{
		RecordID:             asString(raw["record_id"]),
		EntityType:           asString(raw["entity_type"]),
		Attributes:           copyMap(asMap(raw["attributes"])),
		NormalizedAttributes: copyMap(asMap(raw["normalized_attributes"])),
		Transactions:         transactionsFromSlice(raw["transactions"]),
		SignatureHistory:     asStrings(raw["signature_history"]),
	}
}

// Clone returns a deep copy of the member.
func (m Member) Clone() Member {
	out := m
	out.Attributes = copyMap(m.Attributes)
	out.NormalizedAttributes = copyMap(m.NormalizedAttributes)
	out.Transactions = append([]Transaction(nil), m.Transactions...)
	out.SignatureHistory = append([]string(nil), m.SignatureHistory...)
	return out
}

// GroupMetrics are the aggregates derived from a group's transactions.
type GroupMetrics struct {
	MemberCount          int        `json:"member_count"`
	TransactionCount     int        `json:"transaction_count"`
	TotalAmount          float64    `json:"total_amount"`
	UniqueCounterparties int        `json:"unique_counterparties"`
	OutgoingRatio        float64    `json:"outgoing_ratio"`
	FirstSeen            *time.Time `json:"first_seen"`
	LastSeen             *time.Time `json:"last_seen"`
	MinTransactionAmount *float64   `json:"min_transaction_amount"`
	MaxTransactionAmount *float64   `json:"max_transaction_amount"`
	RiskScore            int        `json:"risk_score"`
}

// EnrichedGroup is a raw group decorated with derived metrics. It is built
// once per load cycle and must not be mutated afterwards.
type EnrichedGroup struct {
	Group        RawGroup
	DisplayName  string
	Metrics      GroupMetrics
	Transactions []ParsedTransaction
}

// ID returns the group identifier.
func (g *EnrichedGroup) ID() string {
	return g.Group.GroupID
}

// GroupSummary is the list-view projection of an enriched group.
type GroupSummary struct {
	GroupID     string       `json:"group_id"`
	DisplayName string       `json:"display_name"`
	Metrics     GroupMetrics `json:"metrics"`
	SourcePath  *string      `json:"source_path"`
	Reported    bool         `json:"reported"`
}

// GroupDetail extends the summary with attributes, members, and the
// transactions that passed the detail filters.
type GroupDetail struct {
	GroupSummary
	CanonicalAttributes map[string]any    `json:"canonical_attributes"`
	Members             []MemberView      `json:"members"`
	Transactions        []TransactionView `json:"transactions"`
}

// MemberView is the response shape of a member.
type MemberView struct {
	RecordID             *string           `json:"record_id"`
	EntityType           *string           `json:"entity_type"`
	Attributes           map[string]any    `json:"attributes"`
	NormalizedAttributes map[string]any    `json:"normalized_attributes"`
	Transactions         []TransactionView `json:"transactions"`
	SignatureHistory     []string          `json:"signature_history"`
}

// NewGroupSummary projects an enriched group for list responses.
func NewGroupSummary(g *EnrichedGroup, reported bool) GroupSummary {
	return GroupSummary{
		GroupID:     g.ID(),
		DisplayName: g.DisplayName,
		Metrics:     g.Metrics,
		SourcePath:  optional(g.Group.SourcePath),
		Reported:    reported,
	}
}
