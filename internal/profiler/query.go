package profiler

import (
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/remora-db/remora/internal/constants"
)

// FilterOperator is the operator of one filter clause. This is the
// tool-layer operator set; it is the query contract.
type FilterOperator string

const (
	OpEquals             FilterOperator = "Equals"
	OpNotEquals          FilterOperator = "NotEquals"
	OpContains           FilterOperator = "Contains"
	OpGreaterThan        FilterOperator = "GreaterThan"
	OpLessThan           FilterOperator = "LessThan"
	OpGreaterThanOrEqual FilterOperator = "GreaterThanOrEqual"
	OpLessThanOrEqual    FilterOperator = "LessThanOrEqual"
)

// normalizeOperator maps a wire operator string onto the canonical
// set, case-insensitively. Unknown operators come back as "" and
// never match.
func normalizeOperator(op string) FilterOperator {
	for _, known := range []FilterOperator{
		OpEquals, OpNotEquals, OpContains,
		OpGreaterThan, OpLessThan,
		OpGreaterThanOrEqual, OpLessThanOrEqual,
	} {
		if strings.EqualFold(op, string(known)) {
			return known
		}
	}
	return ""
}

// FilterClause narrows a query to rows whose field satisfies the
// operator against the value. Field names resolve against fixed
// EventRow columns first and AdditionalData keys second.
type FilterClause struct {
	Field    string `json:"field"`
	Operator string `json:"operator"`
	Value    any    `json:"value"`
	TypeHint string `json:"typeHint,omitempty"`
}

// QueryRequest is the input of an event query. Absent filters mean no
// filtering; absent limit defaults to constants.DefaultQueryLimit and
// is silently clamped at constants.MaxQueryLimit.
type QueryRequest struct {
	SessionID string         `json:"sessionId"`
	Filters   []FilterClause `json:"filters,omitempty"`
	Limit     *int           `json:"limit,omitempty"`
	SortBy    string         `json:"sortBy,omitempty"`
	SortOrder string         `json:"sortOrder,omitempty"`
}

// EventSummary is a bounded row projection: TextData is capped at the
// summary display budget so tool-call payloads stay small regardless
// of the underlying event's size.
type EventSummary struct {
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

// QueryMetadata describes the shape of a query result.
type QueryMetadata struct {
	TotalMatching       int  `json:"totalMatching"`
	Returned            int  `json:"returned"`
	Truncated           bool `json:"truncated"`
	TextTruncationLimit int  `json:"textTruncationLimit"`
}

// QueryResult is the JSON result of an event query.
type QueryResult struct {
	Success  bool           `json:"success"`
	Events   []EventSummary `json:"events"`
	Metadata *QueryMetadata `json:"metadata,omitempty"`
	Message  string         `json:"message,omitempty"`
}

// DetailResult is the JSON result of a single-event lookup. The event
// text is capped at the detail budget rather than the summary budget.
type DetailResult struct {
	Success bool          `json:"success"`
	Event   *EventSummary `json:"event,omitempty"`
	Message string        `json:"message,omitempty"`
}

// QueryEvents runs the filter/sort/paginate/summarize pipeline over a
// point-in-time snapshot of the session's buffer. Events appended
// after the snapshot is taken are not visible to the query.
func (m *SessionManager) QueryEvents(req QueryRequest) QueryResult {
	session := m.GetSession(req.SessionID)
	if session == nil {
		return QueryResult{Success: false, Message: "session not found"}
	}

	rows := session.Snapshot()

	// Filter: clauses are AND-combined; an empty list is a no-op.
	filtered := rows[:0:0]
	for _, row := range rows {
		if matchesAll(&row, req.Filters) {
			filtered = append(filtered, row)
		}
	}
	totalMatching := len(filtered)

	sortRows(filtered, req.SortBy, req.SortOrder)

	limit := constants.DefaultQueryLimit
	if req.Limit != nil && *req.Limit > 0 {
		limit = *req.Limit
	}
	if limit > constants.MaxQueryLimit {
		limit = constants.MaxQueryLimit
	}

	truncated := len(filtered) > limit
	if truncated {
		filtered = filtered[:limit]
	}

	summaries := make([]EventSummary, len(filtered))
	for i, row := range filtered {
		summaries[i] = summarize(&row, constants.SummaryTextLimit)
	}

	result := QueryResult{
		Success: true,
		Events:  summaries,
		Metadata: &QueryMetadata{
			TotalMatching:       totalMatching,
			Returned:            len(summaries),
			Truncated:           truncated,
			TextTruncationLimit: constants.SummaryTextLimit,
		},
	}
	if len(summaries) == 0 {
		result.Message = "no events matched the query"
	}
	return result
}

// EventDetail looks up a single retained event by id and returns it
// with the larger detail text budget.
func (m *SessionManager) EventDetail(sessionID string, eventID int64) DetailResult {
	session := m.GetSession(sessionID)
	if session == nil {
		return DetailResult{Success: false, Message: "session not found"}
	}

	for _, row := range session.Snapshot() {
		if row.ID == eventID {
			detail := summarize(&row, constants.DetailTextLimit)
			return DetailResult{Success: true, Event: &detail}
		}
	}
	return DetailResult{Success: false, Message: "event not found"}
}

func matchesAll(row *EventRow, filters []FilterClause) bool {
	for i := range filters {
		if !matchClause(row, &filters[i]) {
			return false
		}
	}
	return true
}

// matchClause evaluates one clause against one row. Type mismatches
// between the operand and the operator's expectation mean "does not
// match", never an error.
func matchClause(row *EventRow, clause *FilterClause) bool {
	fieldVal, ok := row.FieldValue(clause.Field)
	if !ok {
		return false
	}

	op := normalizeOperator(clause.Operator)
	if op == "" {
		return false
	}

	operand := coerceOperand(clause.Value, clause.TypeHint)

	switch fv := fieldVal.(type) {
	case string:
		sv, ok := operand.(string)
		if !ok {
			return false
		}
		switch op {
		case OpEquals:
			return fv == sv
		case OpNotEquals:
			return fv != sv
		case OpContains:
			return strings.Contains(strings.ToLower(fv), strings.ToLower(sv))
		default:
			// Relational operators are numeric-only.
			return false
		}
	case float64:
		nv, ok := toFloat(operand)
		if !ok {
			return false
		}
		switch op {
		case OpEquals:
			return fv == nv
		case OpNotEquals:
			return fv != nv
		case OpGreaterThan:
			return fv > nv
		case OpLessThan:
			return fv < nv
		case OpGreaterThanOrEqual:
			return fv >= nv
		case OpLessThanOrEqual:
			return fv <= nv
		default:
			return false
		}
	default:
		return false
	}
}

// coerceOperand applies the clause's type hint: a "number" hint parses
// string operands into float64 so numeric comparisons against quoted
// JSON values still work.
func coerceOperand(v any, hint string) any {
	if strings.EqualFold(hint, "number") {
		if s, ok := v.(string); ok {
			if f, err := strconv.ParseFloat(s, 64); err == nil {
				return f
			}
		}
	}
	return v
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	default:
		return 0, false
	}
}

// sortRows orders the filtered set with a stable comparator.
// Defaults: duration, descending.
func sortRows(rows []EventRow, sortBy, sortOrder string) {
	desc := !strings.EqualFold(sortOrder, "asc")

	if strings.EqualFold(sortBy, "timestamp") {
		// Parse instants once; unparsable timestamps sort as the zero
		// instant.
		type keyed struct {
			row EventRow
			at  time.Time
		}
		paired := make([]keyed, len(rows))
		for i := range rows {
			at, _ := ParseWireTimestamp(rows[i].Timestamp)
			paired[i] = keyed{row: rows[i], at: at}
		}
		sort.SliceStable(paired, func(i, j int) bool {
			if desc {
				return paired[j].at.Before(paired[i].at)
			}
			return paired[i].at.Before(paired[j].at)
		})
		for i := range paired {
			rows[i] = paired[i].row
		}
		return
	}

	// Default key: duration, missing values sort as 0.
	sort.SliceStable(rows, func(i, j int) bool {
		if desc {
			return rows[i].DurationOrZero() > rows[j].DurationOrZero()
		}
		return rows[i].DurationOrZero() < rows[j].DurationOrZero()
	})
}

func summarize(row *EventRow, textLimit int) EventSummary {
	return EventSummary{
		ID:             row.ID,
		EventNumber:    row.EventNumber,
		Timestamp:      row.Timestamp,
		EventClass:     row.EventClass,
		DatabaseName:   row.DatabaseName,
		TextData:       truncateText(row.TextData, textLimit),
		Duration:       row.Duration,
		CPU:            row.CPU,
		Reads:          row.Reads,
		Writes:         row.Writes,
		SPID:           row.SPID,
		AdditionalData: row.AdditionalData,
	}
}

// truncateText caps a string at limit runes, appending an ellipsis
// when anything was cut.
func truncateText(s string, limit int) string {
	if len(s) <= limit {
		return s
	}
	runes := []rune(s)
	if len(runes) <= limit {
		return s
	}
	return string(runes[:limit]) + "..."
}
