package sheetstore

import (
	"fmt"
	"slices"
	"sort"
	"strings"
	"time"
)

// Condition represents a single query condition on a field
type Condition struct {
	Column   string // field name
	Operator string // ==, !=, >, >=, <, <=, in, between
	Value    any    // []any for in, [2]any or []any of two for between
}

// Query represents a query with multiple conditions, combined with AND
type Query struct {
	Conditions []Condition
	Limit      int
	Offset     int
}

var validOperators = []string{"==", "!=", ">", ">=", "<", "<=", "in", "between"}

// evalCondition evaluates a single condition against a record. Unknown
// fields evaluate as null.
func evalCondition(record *Record, condition Condition) bool {
	value := record.Get(condition.Column)

	switch condition.Operator {
	case "==":
		return compareEqual(value, condition.Value)
	case "!=":
		return !compareEqual(value, condition.Value)
	case ">":
		c, ok := compareOrdered(value, condition.Value)
		return ok && c > 0
	case ">=":
		c, ok := compareOrdered(value, condition.Value)
		return ok && c >= 0
	case "<":
		c, ok := compareOrdered(value, condition.Value)
		return ok && c < 0
	case "<=":
		c, ok := compareOrdered(value, condition.Value)
		return ok && c <= 0
	case "in":
		return compareIn(value, condition.Value)
	case "between":
		return compareBetween(value, condition.Value)
	default:
		return false
	}
}

// MatchesQuery checks if a record matches all conditions in the query
func (r *Record) MatchesQuery(query Query) bool {
	for _, condition := range query.Conditions {
		if !evalCondition(r, condition) {
			return false
		}
	}
	return true
}

// compareEqual compares two values for equality
func compareEqual(a, b any) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	if c, ok := compareOrdered(a, b); ok {
		return c == 0
	}
	if ra, ok := a.(*Record); ok {
		rb, ok := b.(*Record)
		return ok && ra == rb
	}
	return fmt.Sprintf("%v", a) == fmt.Sprintf("%v", b)
}

// compareOrdered compares numbers, strings, times and bools. ok is false
// when the values are not comparable with each other.
func compareOrdered(a, b any) (int, bool) {
	if fa, ok := numberOf(a); ok {
		fb, ok := numberOf(b)
		if !ok {
			return 0, false
		}
		switch {
		case fa < fb:
			return -1, true
		case fa > fb:
			return 1, true
		}
		return 0, true
	}
	switch va := a.(type) {
	case string:
		vb, ok := b.(string)
		if !ok {
			return 0, false
		}
		return strings.Compare(va, vb), true
	case time.Time:
		vb, ok := b.(time.Time)
		if !ok {
			return 0, false
		}
		return va.Compare(vb), true
	case bool:
		vb, ok := b.(bool)
		if !ok {
			return 0, false
		}
		switch {
		case va == vb:
			return 0, true
		case !va:
			return -1, true
		}
		return 1, true
	}
	return 0, false
}

// compareIn checks if a is in the list b
func compareIn(a, b any) bool {
	list, ok := b.([]any)
	if !ok {
		return false
	}
	return slices.ContainsFunc(list, func(item any) bool {
		return compareEqual(a, item)
	})
}

// compareBetween checks if b[0] <= a <= b[1]
func compareBetween(a, b any) bool {
	var lo, hi any
	switch v := b.(type) {
	case [2]any:
		lo, hi = v[0], v[1]
	case []any:
		if len(v) != 2 {
			return false
		}
		lo, hi = v[0], v[1]
	default:
		return false
	}

	cl, ok := compareOrdered(a, lo)
	if !ok || cl < 0 {
		return false
	}
	ch, ok := compareOrdered(a, hi)
	return ok && ch <= 0
}

// isNumeric checks if a value is a Go numeric type
func isNumeric(v any) bool {
	switch v.(type) {
	case int, int8, int16, int32, int64,
		uint, uint8, uint16, uint32, uint64,
		float32, float64:
		return true
	default:
		return false
	}
}

// toFloat64 converts a numeric value to float64
func toFloat64(v any) float64 {
	switch val := v.(type) {
	case int:
		return float64(val)
	case int8:
		return float64(val)
	case int16:
		return float64(val)
	case int32:
		return float64(val)
	case int64:
		return float64(val)
	case uint:
		return float64(val)
	case uint8:
		return float64(val)
	case uint16:
		return float64(val)
	case uint32:
		return float64(val)
	case uint64:
		return float64(val)
	case float32:
		return float64(val)
	case float64:
		return val
	default:
		return 0
	}
}

// ApplyQuery filters records based on query conditions, keeping their order
func ApplyQuery(records []*Record, query Query) []*Record {
	results := make([]*Record, 0, len(records))
	for _, record := range records {
		if record.MatchesQuery(query) {
			results = append(results, record)
		}
	}

	if query.Offset > 0 {
		if query.Offset >= len(results) {
			return []*Record{}
		}
		results = results[query.Offset:]
	}
	if query.Limit > 0 && query.Limit < len(results) {
		results = results[:query.Limit]
	}
	return results
}

// ValidateQuery validates query structure
func ValidateQuery(query Query) error {
	for i, cond := range query.Conditions {
		if cond.Column == "" {
			return fmt.Errorf("empty column name in condition %d", i)
		}
		if !slices.Contains(validOperators, cond.Operator) {
			return fmt.Errorf("invalid operator '%s' in condition %d", cond.Operator, i)
		}

		switch cond.Operator {
		case "in":
			if _, ok := cond.Value.([]any); !ok {
				return fmt.Errorf("operator 'in' requires []any value in condition %d", i)
			}
		case "between":
			valid := false
			switch v := cond.Value.(type) {
			case [2]any:
				valid = true
			case []any:
				valid = len(v) == 2
			}
			if !valid {
				return fmt.Errorf("operator 'between' requires [2]any or []any with 2 elements in condition %d", i)
			}
		}
	}

	if query.Limit < 0 {
		return fmt.Errorf("limit must be non-negative")
	}
	if query.Offset < 0 {
		return fmt.Errorf("offset must be non-negative")
	}
	return nil
}

type orderKey struct {
	field string
	desc  bool
}

// parseOrdering parses "field [ASC|DESC], ..." clauses
func parseOrdering(ordering string) ([]orderKey, error) {
	var keys []orderKey
	for _, clause := range strings.Split(ordering, ",") {
		parts := strings.Fields(clause)
		switch len(parts) {
		case 0:
			continue
		case 1:
			keys = append(keys, orderKey{field: parts[0]})
		case 2:
			switch strings.ToUpper(parts[1]) {
			case "ASC", "ASCENDING":
				keys = append(keys, orderKey{field: parts[0]})
			case "DESC", "DESCENDING":
				keys = append(keys, orderKey{field: parts[0], desc: true})
			default:
				return nil, fmt.Errorf("invalid ordering direction %q", parts[1])
			}
		default:
			return nil, fmt.Errorf("invalid ordering clause %q", clause)
		}
	}
	if len(keys) == 0 {
		return nil, fmt.Errorf("empty ordering %q", ordering)
	}
	return keys, nil
}

// orderElements sorts related objects in place by the ordering clause.
// Nulls sort first. Elements that are not objects keep their place
// relative to each other.
func orderElements(elems []any, ordering string) error {
	keys, err := parseOrdering(ordering)
	if err != nil {
		return err
	}
	value := func(e any, field string) any {
		sm, ok := e.(StateManager)
		if !ok {
			return nil
		}
		n := sm.ClassMeta().FieldNumber(field)
		if n < 0 {
			return nil
		}
		return sm.ProvideField(n)
	}
	sort.SliceStable(elems, func(i, j int) bool {
		for _, k := range keys {
			a, b := value(elems[i], k.field), value(elems[j], k.field)
			var c int
			switch {
			case a == nil && b == nil:
				c = 0
			case a == nil:
				c = -1
			case b == nil:
				c = 1
			default:
				c, _ = compareOrdered(a, b)
			}
			if k.desc {
				c = -c
			}
			if c != 0 {
				return c < 0
			}
		}
		return false
	})
	return nil
}
