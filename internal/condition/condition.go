package condition

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"reflect"
	"strings"
)

// Policy faults. Both fail closed.
var (
	ErrUnknownOperator = errors.New("unknown condition operator")
	ErrMalformed       = errors.New("malformed condition")
)

// Operator is a comparison operator.
type Operator string

const (
	OpEquals         Operator = "equals"
	OpNotEquals      Operator = "not_equals"
	OpGreaterThan    Operator = "greater_than"
	OpLessThan       Operator = "less_than"
	OpGreaterOrEqual Operator = "greater_or_equal"
	OpLessOrEqual    Operator = "less_or_equal"
	OpIn             Operator = "in"
	OpContains       Operator = "contains"
	OpFieldAbsent    Operator = "field_absent"
)

// Operators lists every supported operator.
func Operators() []Operator {
	return []Operator{
		OpEquals, OpNotEquals,
		OpGreaterThan, OpLessThan, OpGreaterOrEqual, OpLessOrEqual,
		OpIn, OpContains, OpFieldAbsent,
	}
}

// Valid reports whether op is a supported operator.
func (op Operator) Valid() bool {
	for _, known := range Operators() {
		if op == known {
			return true
		}
	}
	return false
}

func (op Operator) numeric() bool {
	switch op {
	case OpGreaterThan, OpLessThan, OpGreaterOrEqual, OpLessOrEqual:
		return true
	}
	return false
}

// Condition compares one snapshot field against a value.
//
// Field may be a dotted path ("lane.origin") addressing nested objects; an
// exact top-level key always wins over path traversal.
type Condition struct {
	Field    string   `json:"field" yaml:"field" toml:"field"`
	Operator Operator `json:"operator" yaml:"operator" toml:"operator"`
	Value    any      `json:"value,omitempty" yaml:"value,omitempty" toml:"value,omitempty"`
}

// Snapshot is the point-in-time state of the entity an action targets.
type Snapshot map[string]any

// Validate checks the condition is well formed without evaluating it.
func (c Condition) Validate() error {
	if strings.TrimSpace(c.Field) == "" {
		return fmt.Errorf("%w: field is required", ErrMalformed)
	}
	if !c.Operator.Valid() {
		return fmt.Errorf("%w: %q", ErrUnknownOperator, c.Operator)
	}
	switch {
	case c.Operator.numeric():
		if _, ok := toFloat(c.Value); !ok {
			return fmt.Errorf("%w: %s requires a numeric value", ErrMalformed, c.Operator)
		}
	case c.Operator == OpIn:
		if _, ok := asList(c.Value); !ok {
			return fmt.Errorf("%w: in requires a list value", ErrMalformed)
		}
	case c.Operator == OpContains:
		if c.Value == nil {
			return fmt.Errorf("%w: contains requires a value", ErrMalformed)
		}
	}
	return nil
}

// String renders the condition for logs.
func (c Condition) String() string {
	if c.Operator == OpFieldAbsent {
		return fmt.Sprintf("%s %s", c.Field, c.Operator)
	}
	return fmt.Sprintf("%s %s %v", c.Field, c.Operator, c.Value)
}

// Evaluate reports whether snapshot satisfies c. Faults evaluate to false.
func Evaluate(c Condition, snapshot Snapshot) bool {
	ok, _ := Check(c, snapshot)
	return ok
}

// Check evaluates c against snapshot and returns any policy fault.
// The boolean is always false when err is non-nil.
func Check(c Condition, snapshot Snapshot) (bool, error) {
	if err := c.Validate(); err != nil {
		return false, err
	}

	field, present := lookup(snapshot, c.Field)
	if c.Operator == OpFieldAbsent {
		return !present, nil
	}
	if !present {
		return false, nil
	}

	switch c.Operator {
	case OpEquals:
		return equal(field, c.Value), nil
	case OpNotEquals:
		return !equal(field, c.Value), nil
	case OpGreaterThan:
		return compareNumeric(field, c.Value, func(a, b float64) bool { return a > b }), nil
	case OpLessThan:
		return compareNumeric(field, c.Value, func(a, b float64) bool { return a < b }), nil
	case OpGreaterOrEqual:
		return compareNumeric(field, c.Value, func(a, b float64) bool { return a >= b }), nil
	case OpLessOrEqual:
		return compareNumeric(field, c.Value, func(a, b float64) bool { return a <= b }), nil
	case OpIn:
		return in(field, c.Value), nil
	case OpContains:
		return contains(field, c.Value), nil
	default:
		return false, fmt.Errorf("%w: %q", ErrUnknownOperator, c.Operator)
	}
}

func lookup(snapshot Snapshot, field string) (any, bool) {
	if snapshot == nil {
		return nil, false
	}
	if v, ok := snapshot[field]; ok {
		return v, true
	}
	if !strings.Contains(field, ".") {
		return nil, false
	}
	var cur any = map[string]any(snapshot)
	for _, part := range strings.Split(field, ".") {
		m, ok := cur.(map[string]any)
		if !ok {
			return nil, false
		}
		cur, ok = m[part]
		if !ok {
			return nil, false
		}
	}
	return cur, true
}

func compareNumeric(field, value any, cmp func(a, b float64) bool) bool {
	a, ok := toFloat(field)
	if !ok {
		return false
	}
	b, ok := toFloat(value)
	if !ok {
		return false
	}
	return cmp(a, b)
}

// toFloat accepts Go numeric kinds and json.Number. Strings and booleans
// are not numbers, even when they look like one.
func toFloat(v any) (float64, bool) {
	var f float64
	switch n := v.(type) {
	case int:
		f = float64(n)
	case int8:
		f = float64(n)
	case int16:
		f = float64(n)
	case int32:
		f = float64(n)
	case int64:
		f = float64(n)
	case uint:
		f = float64(n)
	case uint8:
		f = float64(n)
	case uint16:
		f = float64(n)
	case uint32:
		f = float64(n)
	case uint64:
		f = float64(n)
	case float32:
		f = float64(n)
	case float64:
		f = n
	case json.Number:
		parsed, err := n.Float64()
		if err != nil {
			return 0, false
		}
		f = parsed
	default:
		return 0, false
	}
	if math.IsNaN(f) {
		return 0, false
	}
	return f, true
}

func equal(a, b any) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	if fa, ok := toFloat(a); ok {
		fb, ok := toFloat(b)
		return ok && fa == fb
	}
	switch av := a.(type) {
	case string:
		bv, ok := b.(string)
		return ok && av == bv
	case bool:
		bv, ok := b.(bool)
		return ok && av == bv
	}
	if al, ok := asList(a); ok {
		bl, ok := asList(b)
		if !ok || len(al) != len(bl) {
			return false
		}
		for i := range al {
			if !equal(al[i], bl[i]) {
				return false
			}
		}
		return true
	}
	return reflect.DeepEqual(a, b)
}

func in(field, value any) bool {
	set, ok := asList(value)
	if !ok {
		return false
	}
	if items, ok := asList(field); ok {
		for _, item := range items {
			if member(item, set) {
				return true
			}
		}
		return false
	}
	return member(field, set)
}

func member(v any, set []any) bool {
	for _, s := range set {
		if equal(v, s) {
			return true
		}
	}
	return false
}

func contains(field, value any) bool {
	if s, ok := field.(string); ok {
		sub, ok := value.(string)
		return ok && strings.Contains(s, sub)
	}
	if items, ok := asList(field); ok {
		return member(value, items)
	}
	return false
}

// asList converts any slice or array into []any.
func asList(v any) ([]any, bool) {
	if v == nil {
		return nil, false
	}
	if l, ok := v.([]any); ok {
		return l, true
	}
	rv := reflect.ValueOf(v)
	if rv.Kind() != reflect.Slice && rv.Kind() != reflect.Array {
		return nil, false
	}
	// []byte is a string in disguise, not a set.
	if rv.Type().Elem().Kind() == reflect.Uint8 {
		return nil, false
	}
	out := make([]any, rv.Len())
	for i := range out {
		out[i] = rv.Index(i).Interface()
	}
	return out, true
}
