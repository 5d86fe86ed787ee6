// Package filter implements the Filter / FilterPart literal shared by the
// façade's full-scan matcher and the indexer's index-accelerated resolver:
// a single AND-clause (a mapping of column to scalar-or-list), or an
// OR-list of AND-clauses.
package filter

import "encoding/json"

// FilterPart is a single AND-clause: each value is either a scalar
// (equality) or a list (membership).
type FilterPart map[string]any

// Filter is an OR-list of FilterPart AND-clauses. The JSON literal form
// may be a single object (one implicit part) or an array of objects.
type Filter struct {
	parts []FilterPart
}

// New builds a Filter from explicit parts (OR'd together).
func New(parts ...FilterPart) Filter {
	return Filter{parts: parts}
}

// Empty reports whether the filter matches every row unconditionally.
func (f Filter) Empty() bool {
	return len(f.parts) == 0
}

// Parts returns the OR'd AND-clauses that make up the filter.
func (f Filter) Parts() []FilterPart {
	return f.parts
}

// UnmarshalJSON accepts either a single `{...}` object (one AND-part) or
// an array `[{...}, ...]` (OR of AND-parts), matching the CLI's filter
// literal syntax.
func (f *Filter) UnmarshalJSON(data []byte) error {
	var asArray []FilterPart
	if err := json.Unmarshal(data, &asArray); err == nil {
		f.parts = asArray
		return nil
	}
	var asObject FilterPart
	if err := json.Unmarshal(data, &asObject); err != nil {
		return err
	}
	if len(asObject) == 0 {
		f.parts = nil
		return nil
	}
	f.parts = []FilterPart{asObject}
	return nil
}

// MarshalJSON emits the canonical array-of-parts form.
func (f Filter) MarshalJSON() ([]byte, error) {
	if f.parts == nil {
		return json.Marshal([]FilterPart{})
	}
	return json.Marshal(f.parts)
}

// MatchesValue reports whether rowVal satisfies the filter value val: an
// equality check for a scalar, membership for a list.
func MatchesValue(rowVal, val any) bool {
	if list, ok := val.([]any); ok {
		for _, v := range list {
			if rowVal == v {
				return true
			}
		}
		return false
	}
	return rowVal == val
}

// MatchesPart reports whether row satisfies every (key, value) pair of
// part (AND semantics).
func MatchesPart(row map[string]any, part FilterPart) bool {
	for key, val := range part {
		if !MatchesValue(row[key], val) {
			return false
		}
	}
	return true
}

// Matches reports whether row satisfies f: true unconditionally when f is
// empty, otherwise true iff at least one AND-part matches (OR-of-ANDs).
func (f Filter) Matches(row map[string]any) bool {
	if f.Empty() {
		return true
	}
	for _, part := range f.parts {
		if MatchesPart(row, part) {
			return true
		}
	}
	return false
}
