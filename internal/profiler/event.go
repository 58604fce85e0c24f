// Package profiler maintains in-memory SQL Server trace sessions: a
// bounded event buffer per session, a registry routing peer
// notifications into the right buffer, and a query engine over buffer
// snapshots.
package profiler

import (
	"strings"
	"time"
)

// EventRow is one captured trace event. Fixed columns cover the
// standard profiler template; event classes with extension columns
// carry them in AdditionalData.
type EventRow struct {
	// ID is assigned by the owning session on ingest. Strictly
	// increasing for the session's lifetime, never reused even after
	// the row itself is evicted from the buffer.
	ID             int64          `json:"id"`
	EventNumber    int64          `json:"eventNumber"`
	Timestamp      string         `json:"timestamp"`
	EventClass     string         `json:"eventClass"`
	DatabaseName   string         `json:"databaseName"`
	TextData       string         `json:"textData"`
	Duration       *int64         `json:"duration,omitempty"`
	CPU            *int64         `json:"cpu,omitempty"`
	Reads          *int64         `json:"reads,omitempty"`
	Writes         *int64         `json:"writes,omitempty"`
	SPID           int            `json:"spid"`
	AdditionalData map[string]any `json:"additionalData,omitempty"`
}

// Wire timestamp layouts emitted by the tools service, most specific
// first.
var wireTimeLayouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02 15:04:05.9999999",
	"2006-01-02 15:04:05",
	"2006-01-02T15:04:05.9999999",
}

// ParseWireTimestamp converts a wire-format datetime string to an
// absolute instant. The second return is false when no known layout
// matches.
func ParseWireTimestamp(s string) (time.Time, bool) {
	for _, layout := range wireTimeLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

// FieldValue resolves a filterable field name against a row. Known
// columns are checked first; anything else falls through to an
// AdditionalData lookup. Numeric columns come back as float64 so the
// matcher has a single numeric representation; absent optional
// numerics resolve to (nil, false).
func (r *EventRow) FieldValue(field string) (any, bool) {
	switch strings.ToLower(field) {
	case "id":
		return float64(r.ID), true
	case "eventnumber":
		return float64(r.EventNumber), true
	case "timestamp":
		return r.Timestamp, true
	case "eventclass":
		return r.EventClass, true
	case "databasename":
		return r.DatabaseName, true
	case "textdata":
		return r.TextData, true
	case "duration":
		return optionalNumber(r.Duration)
	case "cpu":
		return optionalNumber(r.CPU)
	case "reads":
		return optionalNumber(r.Reads)
	case "writes":
		return optionalNumber(r.Writes)
	case "spid":
		return float64(r.SPID), true
	}
	v, ok := r.AdditionalData[field]
	return v, ok
}

// DurationOrZero returns the row duration, defaulting missing values
// to 0 for sorting.
func (r *EventRow) DurationOrZero() int64 {
	if r.Duration == nil {
		return 0
	}
	return *r.Duration
}

func optionalNumber(v *int64) (any, bool) {
	if v == nil {
		return nil, false
	}
	return float64(*v), true
}
