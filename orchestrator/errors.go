package orchestrator

import (
	"errors"
	"fmt"

	"github.com/randalmurphal/council/cost"
)

// ErrBudgetRejected is returned when no tier fits the budget.
var ErrBudgetRejected = errors.New("budget rejected")

// BudgetError carries the estimate that was rejected. It matches
// ErrBudgetRejected with errors.Is.
type BudgetError struct {
	Estimate cost.Estimate
}

// Error implements the error interface.
func (e *BudgetError) Error() string {
	return fmt.Sprintf("%s: %s", ErrBudgetRejected, e.Estimate.Reason)
}

// Unwrap returns ErrBudgetRejected.
func (e *BudgetError) Unwrap() error {
	return ErrBudgetRejected
}

// Reason returns the human-readable rejection reason.
func (e *BudgetError) Reason() string {
	return e.Estimate.Reason
}
