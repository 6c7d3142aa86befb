package domain

import "encoding/json"

// Snapshot is a historical record-state capture. Only the identifiers used
// for correlation are lifted out; the full object is kept for responses.
type Snapshot struct {
	RecordID  string
	Signature string
	TaxID     any

	Raw map[string]any
}

// NewSnapshot lifts the correlation identifiers out of a raw object.
func NewSnapshot(raw map[string]any) Snapshot {
	return Snapshot{
		RecordID:  asString(raw["record_id"]),
		Signature: asString(raw["signature"]),
		TaxID:     asMap(raw["normalized_attributes"])["tax_id"],
		Raw:       raw,
	}
}

// MarshalJSON echoes the original snapshot object.
func (s Snapshot) MarshalJSON() ([]byte, error) {
	if s.Raw == nil {
		return []byte("{}"), nil
	}
	return json.Marshal(s.Raw)
}

// UnmarshalJSON keeps the whole object and lifts the identifiers.
func (s *Snapshot) UnmarshalJSON(data []byte) error {
	raw, err := decodeObject(data)
	if err != nil {
		return err
	}
	*s = NewSnapshot(raw)
	return nil
}

// DecodeSnapshots decodes a snapshot list, dropping non-object entries.
// Anything other than an array yields nil.
func DecodeSnapshots(data []byte) []Snapshot {
	var entries []any
	if err := json.Unmarshal(data, &entries); err != nil {
		return nil
	}
	out := make([]Snapshot, 0, len(entries))
	for _, entry := range entries {
		if m := asMap(entry); m != nil {
			out = append(out, NewSnapshot(m))
		}
	}
	return out
}

// SnapshotList is the response of the snapshot listing.
type SnapshotList struct {
	Items []Snapshot `json:"items"`
	Total int        `json:"total"`
	Limit int        `json:"limit"`
}
