// Package snapshot links historical record snapshots to resolution groups.
package snapshot

import (
	"reflect"

	"github.com/opensource-finance/explorer/internal/domain"
)

// DefaultLimit caps the snapshots returned for a group detail.
const DefaultLimit = 25

// Correlate returns the snapshots that share an identifier with the group,
// in snapshot order, at most limit of them. A snapshot matches when its
// record id belongs to a member, its signature appears in any member's
// signature history, or its normalized tax id equals the group's canonical
// tax id. A non-positive limit uses DefaultLimit.
func Correlate(group *domain.RawGroup, snapshots []domain.Snapshot, limit int) []domain.Snapshot {
	if limit <= 0 {
		limit = DefaultLimit
	}
	matched := make([]domain.Snapshot, 0)
	if len(snapshots) == 0 {
		return matched
	}

	memberIDs := make(map[string]struct{})
	signatures := make(map[string]struct{})
	for _, m := range group.Members {
		if m.RecordID != "" {
			memberIDs[m.RecordID] = struct{}{}
		}
		for _, sig := range m.SignatureHistory {
			if sig != "" {
				signatures[sig] = struct{}{}
			}
		}
	}
	taxID := group.CanonicalAttributes["tax_id"]
	hasTaxID := usableTaxID(taxID)

	for _, s := range snapshots {
		if len(matched) == limit {
			break
		}
		if _, ok := memberIDs[s.RecordID]; ok && s.RecordID != "" {
			matched = append(matched, s)
			continue
		}
		if _, ok := signatures[s.Signature]; ok && s.Signature != "" {
			matched = append(matched, s)
			continue
		}
		if hasTaxID && sameTaxID(taxID, s.TaxID) {
			matched = append(matched, s)
		}
	}
	return matched
}

// usableTaxID reports whether a canonical tax id identifies anything.
// Empty values, zero and booleans do not.
func usableTaxID(v any) bool {
	switch t := v.(type) {
	case nil, bool:
		return false
	case string:
		return t != ""
	case float64:
		return t != 0
	case map[string]any:
		return len(t) > 0
	case []any:
		return len(t) > 0
	default:
		return true
	}
}

// sameTaxID compares tax ids by type and value: the number 123 does not
// equal the string "123".
func sameTaxID(a, b any) bool {
	switch t := a.(type) {
	case string:
		other, ok := b.(string)
		return ok && other == t
	case float64:
		other, ok := b.(float64)
		return ok && other == t
	default:
		return reflect.DeepEqual(a, b)
	}
}
