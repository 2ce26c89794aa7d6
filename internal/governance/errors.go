package governance

import (
	"errors"
	"fmt"
)

// ErrValidation is the class of request errors that are rejected before any
// state changes.
var ErrValidation = errors.New("validation failed")

// Validation errors.
var (
	ErrReasonRequired   = fmt.Errorf("%w: rejection reason is required", ErrValidation)
	ErrEditRequired     = fmt.Errorf("%w: edited content is required", ErrValidation)
	ErrActionIDRequired = fmt.Errorf("%w: action id is required", ErrValidation)
	ErrRuleIDRequired   = fmt.Errorf("%w: rule id is required", ErrValidation)
	ErrReviewerRequired = fmt.Errorf("%w: reviewer is required", ErrValidation)
	ErrExpiryInPast     = fmt.Errorf("%w: expires_at must be in the future", ErrValidation)
	ErrScopeImmutable   = fmt.Errorf("%w: rule scope cannot change; declare a new rule id", ErrValidation)
)

// ErrNotPending is returned when a transition targets an action that has
// already left pending. It also matches store.ErrConflict.
var ErrNotPending = errors.New("action is no longer pending")

func invalid(err error) error {
	if errors.Is(err, ErrValidation) {
		return err
	}
	return fmt.Errorf("%w: %w", ErrValidation, err)
}
