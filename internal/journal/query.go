package journal

import "strings"

// Filter narrows trace reads. Zero values match everything; ToSeq of zero
// leaves the upper bound open.
type Filter struct {
	Kind      string // event kind, e.g. "mirror_spawned"
	Direction string // "traffic_to_driving" or "driving_to_traffic"
	Actor     string // matches either the source or the mirror id
	FromSeq   int64
	ToSeq     int64
}

// compile builds a parameterized WHERE fragment for the events table.
// Values are never interpolated into the SQL text. The caller appends the
// mandatory ORDER BY; every read in this package orders deterministically.
func (f Filter) compile(runID string) (string, []any) {
	clauses := []string{"run_id = ?"}
	params := []any{runID}

	if f.Kind != "" {
		clauses = append(clauses, "kind = ?")
		params = append(params, f.Kind)
	}
	if f.Direction != "" {
		clauses = append(clauses, "direction = ?")
		params = append(params, f.Direction)
	}
	if f.Actor != "" {
		clauses = append(clauses, "(source = ? OR mirror = ?)")
		params = append(params, f.Actor, f.Actor)
	}
	if f.FromSeq > 0 {
		clauses = append(clauses, "seq >= ?")
		params = append(params, f.FromSeq)
	}
	if f.ToSeq > 0 {
		clauses = append(clauses, "seq <= ?")
		params = append(params, f.ToSeq)
	}

	return "WHERE " + strings.Join(clauses, " AND "), params
}

// compileTicks builds the WHERE fragment for the ticks table, which only
// supports the sequence bounds.
func (f Filter) compileTicks(runID string) (string, []any) {
	return Filter{FromSeq: f.FromSeq, ToSeq: f.ToSeq}.compile(runID)
}
