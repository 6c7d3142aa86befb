package api

import (
	"fmt"
	"math"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/opensource-finance/explorer/internal/domain"
	"github.com/opensource-finance/explorer/internal/enrich"
)

// Snapshot listing bounds.
const (
	DefaultSnapshotLimit = 100
	MaxSnapshotLimit     = 1000
)

// queryError is a rejected query parameter.
type queryError struct {
	param  string
	reason string
}

func (e *queryError) Error() string {
	return fmt.Sprintf("invalid query parameter %s: %s", e.param, e.reason)
}

// parseGroupFilters reads the group filters shared by the listing and the
// network view.
func parseGroupFilters(q url.Values) (domain.GroupFilters, error) {
	f := domain.DefaultGroupFilters()
	var err error

	if f.MinRisk, err = intParam(q, "min_risk", 0, 0, 100); err != nil {
		return f, err
	}
	if f.MinTotal, err = floatParam(q, "min_total", 0); err != nil {
		return f, err
	}
	if f.MaxTotal, err = floatParam(q, "max_total", math.Inf(1)); err != nil {
		return f, err
	}
	if f.StartDate, err = dateParam(q, "start_date"); err != nil {
		return f, err
	}
	if f.EndDate, err = dateParam(q, "end_date"); err != nil {
		return f, err
	}
	if f.ReportedOnly, err = boolParam(q, "reported_only", false); err != nil {
		return f, err
	}
	f.Expression = strings.TrimSpace(q.Get("expr"))
	return f, nil
}

// parseTransactionFilters reads the detail view filters.
func parseTransactionFilters(q url.Values) (domain.TransactionFilters, error) {
	f := domain.DefaultTransactionFilters()
	var err error

	if f.MinAmount, err = floatParam(q, "min_amount", 0); err != nil {
		return f, err
	}
	if f.MaxAmount, err = floatParam(q, "max_amount", math.Inf(1)); err != nil {
		return f, err
	}
	if f.StartDate, err = dateParam(q, "start_date"); err != nil {
		return f, err
	}
	if f.EndDate, err = dateParam(q, "end_date"); err != nil {
		return f, err
	}
	return f, nil
}

func intParam(q url.Values, name string, def, lo, hi int) (int, error) {
	raw := strings.TrimSpace(q.Get(name))
	if raw == "" {
		return def, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return def, &queryError{name, "not an integer"}
	}
	if v < lo || v > hi {
		return def, &queryError{name, fmt.Sprintf("must be between %d and %d", lo, hi)}
	}
	return v, nil
}

// floatParam reads a non-negative number. "inf" is accepted.
func floatParam(q url.Values, name string, def float64) (float64, error) {
	raw := strings.TrimSpace(q.Get(name))
	if raw == "" {
		return def, nil
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil || math.IsNaN(v) {
		return def, &queryError{name, "not a number"}
	}
	if v < 0 {
		return def, &queryError{name, "must not be negative"}
	}
	return v, nil
}

func dateParam(q url.Values, name string) (*time.Time, error) {
	raw := strings.TrimSpace(q.Get(name))
	if raw == "" {
		return nil, nil
	}
	ts := enrich.ParseTimestamp(raw)
	if ts == nil {
		return nil, &queryError{name, "not an ISO-8601 date"}
	}
	return ts, nil
}

func boolParam(q url.Values, name string, def bool) (bool, error) {
	switch strings.ToLower(strings.TrimSpace(q.Get(name))) {
	case "":
		return def, nil
	case "1", "t", "true", "y", "yes", "on":
		return true, nil
	case "0", "f", "false", "n", "no", "off":
		return false, nil
	default:
		return def, &queryError{name, "not a boolean"}
	}
}
