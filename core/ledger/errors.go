package ledger

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
)

var (
	// errors
	ErrNotFound             = errors.New("record not found")
	ErrHasPayments          = errors.New("fee has payments and cannot be deleted")
	ErrConcurrentAssignment = errors.New("student already has an active payment plan, retry")
	ErrFeeNotOwned          = errors.New("fee does not belong to this student")
	ErrInvalidDiscount      = errors.New("discount must be between 0 and 100")
)

// ExceedsBalanceError is returned when a payment is larger than the outstanding balance of its fee.
type ExceedsBalanceError struct {
	Balance decimal.Decimal
}

func (e *ExceedsBalanceError) Error() string {
	return fmt.Sprintf("payment exceeds the outstanding balance of %s", e.Balance.StringFixed(2))
}

// InUseError is returned when deleting a payment plan that active assignments still reference.
type InUseError struct {
	Count int
}

func (e *InUseError) Error() string {
	return fmt.Sprintf("payment plan is assigned to %d active student(s)", e.Count)
}

var ErrFeeTypeExists = errors.New("a fee type with this name already exists")
