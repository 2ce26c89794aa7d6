// Package action defines the action proposal model: the closed sets of
// action types, risk levels and statuses, the review decisions that drive a
// proposal out of pending, and the transition table that keeps terminal
// states terminal.
package action
