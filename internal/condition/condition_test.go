package condition

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEvaluate_Operators(t *testing.T) {
	snapshot := Snapshot{
		"amount":    3000,
		"rate":      2.75,
		"carrier":   "Swift Freight",
		"state":     "TX",
		"equipment": []any{"reefer", "dry_van"},
		"hazmat":    false,
		"weight":    json.Number("42000"),
		"lane": map[string]any{
			"origin": "ATL",
			"miles":  640,
		},
	}

	tests := []struct {
		name string
		cond Condition
		want bool
	}{
		{"equals number", Condition{"amount", OpEquals, 3000.0}, true},
		{"equals int vs float", Condition{"amount", OpEquals, 3000}, true},
		{"equals string", Condition{"state", OpEquals, "TX"}, true},
		{"equals is case-sensitive", Condition{"state", OpEquals, "tx"}, false},
		{"equals mixed types", Condition{"amount", OpEquals, "3000"}, false},
		{"equals bool", Condition{"hazmat", OpEquals, false}, true},
		{"not equals", Condition{"state", OpNotEquals, "CA"}, true},
		{"not equals same", Condition{"state", OpNotEquals, "TX"}, false},
		{"greater than false", Condition{"amount", OpGreaterThan, 5000}, false},
		{"greater than true", Condition{"amount", OpGreaterThan, 2999.5}, true},
		{"less than", Condition{"rate", OpLessThan, 3}, true},
		{"greater or equal boundary", Condition{"amount", OpGreaterOrEqual, 3000}, true},
		{"less or equal boundary", Condition{"amount", OpLessOrEqual, 3000}, true},
		{"less or equal below", Condition{"amount", OpLessOrEqual, 2999}, false},
		{"json number field", Condition{"weight", OpGreaterThan, 40000}, true},
		{"numeric on string fails closed", Condition{"carrier", OpGreaterThan, 10}, false},
		{"in set", Condition{"state", OpIn, []any{"TX", "OK"}}, true},
		{"in typed set", Condition{"state", OpIn, []string{"CA", "NV"}}, false},
		{"in with list field", Condition{"equipment", OpIn, []string{"flatbed", "reefer"}}, true},
		{"contains substring", Condition{"carrier", OpContains, "Swift"}, true},
		{"contains is case-sensitive", Condition{"carrier", OpContains, "swift"}, false},
		{"contains list element", Condition{"equipment", OpContains, "dry_van"}, true},
		{"contains on number", Condition{"amount", OpContains, "30"}, false},
		{"dotted path", Condition{"lane.origin", OpEquals, "ATL"}, true},
		{"dotted path numeric", Condition{"lane.miles", OpLessThan, 1000}, true},
		{"dotted path through scalar", Condition{"state.code", OpEquals, "TX"}, false},
		{"missing field", Condition{"mc_number", OpEquals, "123"}, false},
		{"missing field not equals", Condition{"mc_number", OpNotEquals, "123"}, false},
		{"field absent on missing", Condition{"mc_number", OpFieldAbsent, nil}, true},
		{"field absent on present", Condition{"state", OpFieldAbsent, nil}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Evaluate(tt.cond, snapshot))
		})
	}
}

func TestEvaluate_FailsClosedOnNonNumeric(t *testing.T) {
	cond := Condition{Field: "amount", Operator: OpGreaterThan, Value: 5000}

	assert.False(t, Evaluate(cond, Snapshot{"amount": 3000}))
	assert.False(t, Evaluate(cond, Snapshot{"amount": "not-a-number"}))
	assert.False(t, Evaluate(cond, Snapshot{"amount": "9000"}), "numeric-looking strings are not numbers")
	assert.False(t, Evaluate(cond, Snapshot{"amount": nil}))
	assert.True(t, Evaluate(cond, Snapshot{"amount": int64(9000)}))
}

func TestCheck_ReportsFaults(t *testing.T) {
	_, err := Check(Condition{Field: "amount", Operator: "approximately", Value: 1}, Snapshot{"amount": 1})
	assert.ErrorIs(t, err, ErrUnknownOperator)

	_, err = Check(Condition{Field: "", Operator: OpEquals, Value: 1}, Snapshot{})
	assert.ErrorIs(t, err, ErrMalformed)

	_, err = Check(Condition{Field: "amount", Operator: OpLessThan, Value: "ten"}, Snapshot{"amount": 1})
	assert.ErrorIs(t, err, ErrMalformed)

	_, err = Check(Condition{Field: "state", Operator: OpIn, Value: "TX"}, Snapshot{"state": "TX"})
	assert.ErrorIs(t, err, ErrMalformed)

	ok, err := Check(Condition{Field: "state", Operator: OpIn, Value: []any{"TX"}}, Snapshot{"state": "TX"})
	require.NoError(t, err)
	assert.True(t, ok)

	// Faults never panic and never match.
	assert.False(t, Evaluate(Condition{Field: "x", Operator: "regex", Value: ".*"}, Snapshot{"x": "y"}))
}

func TestEvaluate_NilSnapshot(t *testing.T) {
	assert.False(t, Evaluate(Condition{Field: "amount", Operator: OpEquals, Value: 1}, nil))
	assert.True(t, Evaluate(Condition{Field: "amount", Operator: OpFieldAbsent}, nil))
}

func TestCondition_String(t *testing.T) {
	assert.Equal(t, "amount greater_than 5000", Condition{"amount", OpGreaterThan, 5000}.String())
	assert.Equal(t, "mc field_absent", Condition{"mc", OpFieldAbsent, nil}.String())
}
