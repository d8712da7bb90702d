package ledger

import (
	"context"
	"time"

	"github.com/pkg/errors"

	"github.com/trezcool/colegio/core"
)

// Reconcile applies a payment to its fee. It must run inside a transaction: the fee row stays locked
// from the balance check until the status update, so the payments of a fee never exceed its amount.
func Reconcile(ctx context.Context, repo Repository, rp RecordPayment, now time.Time) (Receipt, error) {
	if !rp.Amount.IsPositive() {
		return Receipt{}, core.NewValidationError(
			errors.New("payment amount must be positive"),
			core.FieldError{Field: "amount", Error: "payment amount must be positive"},
		)
	}

	fee, err := repo.LockFee(ctx, rp.FeeID)
	if err != nil {
		return Receipt{}, errors.Wrap(err, "locking fee")
	}
	if fee.StudentID != rp.StudentID {
		return Receipt{}, core.NewValidationError(
			ErrFeeNotOwned,
			core.FieldError{Field: "student_id", Error: ErrFeeNotOwned.Error()},
		)
	}

	payments, err := repo.QueryPayments(ctx, fee.ID)
	if err != nil {
		return Receipt{}, errors.Wrap(err, "loading payments")
	}
	balance := fee.Amount.Sub(SumPayments(payments))
	if rp.Amount.GreaterThan(balance) {
		return Receipt{}, &ExceedsBalanceError{Balance: balance}
	}

	pmt, err := repo.CreatePayment(ctx, Payment{
		FeeID:     fee.ID,
		StudentID: rp.StudentID,
		Amount:    rp.Amount,
		Method:    rp.Method,
		Reference: rp.Reference,
		PaidAt:    now,
		CreatedAt: now,
	})
	if err != nil {
		return Receipt{}, errors.Wrap(err, "inserting payment")
	}

	balance = balance.Sub(pmt.Amount)
	status := DeriveStatus(fee.Amount, fee.Amount.Sub(balance))
	if err := repo.UpdateFeeStatus(ctx, fee.ID, status); err != nil {
		return Receipt{}, errors.Wrap(err, "updating fee status")
	}
	fee.Status = status

	return Receipt{Payment: pmt, Fee: fee, Status: status, Balance: balance}, nil
}
