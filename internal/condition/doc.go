// Package condition evaluates autonomy-rule conditions against an entity
// snapshot.
//
// Operators form a closed set dispatched through one switch. Evaluation is
// total: numeric comparisons against non-numeric operands, missing fields and
// malformed conditions all produce false. Check exposes the fault for callers
// that want to log it; Evaluate swallows it.
//
// String comparisons are case-sensitive.
package condition
