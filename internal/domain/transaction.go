package domain

import (
	"strings"
	"time"
)

// Direction synonyms. Anything else is an unknown direction: it is still
// counted as a transaction but is neither outgoing nor incoming.
var (
	outgoingDirections = map[string]bool{"out": true, "outgoing": true, "debit": true}
	incomingDirections = map[string]bool{"in": true, "incoming": true, "credit": true}
)

// NormalizeDirection lower-cases a direction tag.
func NormalizeDirection(direction string) string {
	return strings.ToLower(direction)
}

// IsOutgoing reports whether the direction is an outgoing synonym.
func IsOutgoing(direction string) bool {
	return outgoingDirections[NormalizeDirection(direction)]
}

// IsIncoming reports whether the direction is an incoming synonym.
func IsIncoming(direction string) bool {
	return incomingDirections[NormalizeDirection(direction)]
}

// Transaction is one money movement attached to a group or member.
// Amount is nil when the source value is missing or not a number.
// Timestamp holds the raw source string; parsing happens during enrichment.
type Transaction struct {
	TransactionID  string   `json:"transaction_id,omitempty"`
	Direction      string   `json:"direction,omitempty"`
	CounterpartyID string   `json:"counterparty_id,omitempty"`
	Amount         *float64 `json:"amount"`
	Currency       string   `json:"currency,omitempty"`
	Timestamp      string   `json:"timestamp,omitempty"`
}

// AmountOrZero returns the amount, or 0 when it is absent.
func (t Transaction) AmountOrZero() float64 {
	if t.Amount == nil {
		return 0
	}
	return *t.Amount
}

// UnmarshalJSON decodes a transaction leniently: fields of the wrong type
// are treated as absent instead of failing the whole record.
func (t *Transaction) UnmarshalJSON(data []byte) error {
	raw, err := decodeObject(data)
	if err != nil {
		return err
	}
	*t = transactionFromMap(raw)
	return nil
}

func transactionFromMap(raw map[string]any) Transaction {
	return Transaction{
		TransactionID:  asString(raw["transaction_id"]),
		Direction:      asString(raw["direction"]),
		CounterpartyID: asString(raw["counterparty_id"]),
		Amount:         asNumber(raw["amount"]),
		Currency:       asString(raw["currency"]),
		Timestamp:      asString(raw["timestamp"]),
	}
}

func transactionsFromSlice(v any) []Transaction {
	items := asSlice(v)
	out := make([]Transaction, 0, len(items))
	for _, item := range items {
		if m := asMap(item); m != nil {
			out = append(out, transactionFromMap(m))
		}
	}
	return out
}

// ParsedTransaction pairs a transaction with its parsed timestamp.
type ParsedTransaction struct {
	Transaction
	ParsedTimestamp *time.Time
}

// TransactionView is the response shape of a transaction: the timestamp
// is the parsed value, or null when it could not be parsed.
type TransactionView struct {
	TransactionID  *string    `json:"transaction_id"`
	Direction      *string    `json:"direction"`
	CounterpartyID *string    `json:"counterparty_id"`
	Amount         *float64   `json:"amount"`
	Currency       *string    `json:"currency"`
	Timestamp      *time.Time `json:"timestamp"`
}

// View converts a parsed transaction to its response shape.
func (p ParsedTransaction) View() TransactionView {
	return TransactionView{
		TransactionID:  optional(p.TransactionID),
		Direction:      optional(p.Direction),
		CounterpartyID: optional(p.CounterpartyID),
		Amount:         p.Amount,
		Currency:       optional(p.Currency),
		Timestamp:      p.ParsedTimestamp,
	}
}

func optional(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
