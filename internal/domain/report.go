package domain

import "encoding/json"

// Report is one immutable ledger entry. Entries are identified by their
// position in the ledger, which is also their chronological order.
type Report struct {
	Timestamp string         `json:"timestamp"`
	GroupID   string         `json:"group_id"`
	Reason    string         `json:"reason"`
	Checks    []string       `json:"checks"`
	Snapshot  ReportSnapshot `json:"snapshot"`
}

// ReportSnapshot captures group metrics at submission time so later data
// changes do not alter the context of a past report.
type ReportSnapshot struct {
	NumMembers  int     `json:"num_members"`
	TotalAmount float64 `json:"total_amount"`
	RiskScore   int     `json:"risk_score"`
}

// ReportRequest is the payload of a report submission.
type ReportRequest struct {
	GroupID string   `json:"group_id"`
	Reason  string   `json:"reason"`
	Checks  []string `json:"checks"`
}

// UnmarshalJSON decodes a submission leniently. Scalar checks are coerced
// to strings and anything else in the list is dropped.
func (r *ReportRequest) UnmarshalJSON(data []byte) error {
	raw, err := decodeObject(data)
	if err != nil {
		return err
	}
	*r = ReportRequest{
		GroupID: asString(raw["group_id"]),
		Reason:  asString(raw["reason"]),
		Checks:  coerceChecks(raw["checks"]),
	}
	return nil
}

// UnmarshalJSON decodes a stored entry leniently. Mistyped fields read as
// their zero value and unknown fields are ignored.
func (r *Report) UnmarshalJSON(data []byte) error {
	raw, err := decodeObject(data)
	if err != nil {
		return err
	}
	*r = reportFromObject(raw)
	return nil
}

func reportFromObject(raw map[string]any) Report {
	r := Report{
		Timestamp: asString(raw["timestamp"]),
		GroupID:   asString(raw["group_id"]),
		Reason:    asString(raw["reason"]),
		Checks:    coerceChecks(raw["checks"]),
	}
	snap := asMap(raw["snapshot"])
	if n := asNumber(snap["num_members"]); n != nil {
		r.Snapshot.NumMembers = int(*n)
	}
	if n := asNumber(snap["total_amount"]); n != nil {
		r.Snapshot.TotalAmount = *n
	}
	if n := asNumber(snap["risk_score"]); n != nil {
		r.Snapshot.RiskScore = int(*n)
	}
	return r
}

// coerceChecks keeps string checks, renders other scalars as strings and
// drops everything else.
func coerceChecks(v any) []string {
	checks := []string{}
	for _, check := range asSlice(v) {
		if s, ok := check.(string); ok {
			checks = append(checks, s)
			continue
		}
		if s, ok := AttrString(check); ok {
			checks = append(checks, s)
		}
	}
	return checks
}

// ReportCreated is returned after a successful submission.
type ReportCreated struct {
	Record       Report `json:"record"`
	TotalReports int    `json:"total_reports"`
}

// DecodeReports decodes the readable view of a ledger payload. Object
// entries decode leniently and anything else is left out of the view; the
// payload itself is never rewritten from it. Anything other than an array
// yields nil.
func DecodeReports(data []byte) []Report {
	var entries []any
	if err := json.Unmarshal(data, &entries); err != nil {
		return nil
	}
	reports := make([]Report, 0, len(entries))
	for _, entry := range entries {
		if m := asMap(entry); m != nil {
			reports = append(reports, reportFromObject(m))
		}
	}
	return reports
}
