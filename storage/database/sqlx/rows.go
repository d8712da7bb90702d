package sqlxrepos

import (
	"database/sql"
	"time"

	"github.com/lib/pq"
	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"github.com/volatiletech/null/v8"

	"github.com/trezcool/colegio/core/finance"
	"github.com/trezcool/colegio/core/ledger"
)

// postgres error codes
const (
	uniqueViolation     = "23505"
	foreignKeyViolation = "23503"
)

const (
	planColumns = `id, name, description, enrollment_fee, tuition_amount, frequency, installments,
		materials_charge, uniform_charge, transport_charge, discount_percent, created_at, updated_at`
	assignmentColumns = `id, student_id, payment_plan_id, custom_tuition, custom_discount, start_date,
		is_active, end_date, created_at`
	feeTypeColumns = `id, name, description, created_at`
	feeColumns     = `id, student_id, fee_type_id, student_payment_plan_id, installment_number, description,
		amount, due_date, status, created_at`
	paymentColumns     = `id, fee_id, student_id, amount, method, reference, paid_at, created_at`
	transactionColumns = `id, type, category, amount, currency, description, reference, payment_id, date, created_at`
)

type (
	studentRow struct {
		ID   int    `db:"id"`
		Name string `db:"name"`
	}

	planRow struct {
		ID              int             `db:"id"`
		Name            string          `db:"name"`
		Description     string          `db:"description"`
		EnrollmentFee   decimal.Decimal `db:"enrollment_fee"`
		TuitionAmount   decimal.Decimal `db:"tuition_amount"`
		Frequency       string          `db:"frequency"`
		Installments    int             `db:"installments"`
		MaterialsCharge decimal.Decimal `db:"materials_charge"`
		UniformCharge   decimal.Decimal `db:"uniform_charge"`
		TransportCharge decimal.Decimal `db:"transport_charge"`
		DiscountPercent decimal.Decimal `db:"discount_percent"`
		CreatedAt       time.Time       `db:"created_at"`
		UpdatedAt       time.Time       `db:"updated_at"`
	}

	assignmentRow struct {
		ID             int                 `db:"id"`
		StudentID      int                 `db:"student_id"`
		PaymentPlanID  int                 `db:"payment_plan_id"`
		CustomTuition  decimal.NullDecimal `db:"custom_tuition"`
		CustomDiscount decimal.NullDecimal `db:"custom_discount"`
		StartDate      time.Time           `db:"start_date"`
		IsActive       bool                `db:"is_active"`
		EndDate        null.Time           `db:"end_date"`
		CreatedAt      time.Time           `db:"created_at"`
	}

	feeTypeRow struct {
		ID          int       `db:"id"`
		Name        string    `db:"name"`
		Description string    `db:"description"`
		CreatedAt   time.Time `db:"created_at"`
	}

	feeRow struct {
		ID                   int             `db:"id"`
		StudentID            int             `db:"student_id"`
		FeeTypeID            int             `db:"fee_type_id"`
		StudentPaymentPlanID null.Int        `db:"student_payment_plan_id"`
		InstallmentNumber    int             `db:"installment_number"`
		Description          string          `db:"description"`
		Amount               decimal.Decimal `db:"amount"`
		DueDate              time.Time       `db:"due_date"`
		Status               string          `db:"status"`
		CreatedAt            time.Time       `db:"created_at"`
	}

	paymentRow struct {
		ID        int             `db:"id"`
		FeeID     int             `db:"fee_id"`
		StudentID int             `db:"student_id"`
		Amount    decimal.Decimal `db:"amount"`
		Method    string          `db:"method"`
		Reference string          `db:"reference"`
		PaidAt    time.Time       `db:"paid_at"`
		CreatedAt time.Time       `db:"created_at"`
	}

	transactionRow struct {
		ID          int             `db:"id"`
		Type        string          `db:"type"`
		Category    string          `db:"category"`
		Amount      decimal.Decimal `db:"amount"`
		Currency    string          `db:"currency"`
		Description string          `db:"description"`
		Reference   string          `db:"reference"`
		PaymentID   null.Int        `db:"payment_id"`
		Date        time.Time       `db:"date"`
		CreatedAt   time.Time       `db:"created_at"`
	}
)

func (r planRow) unboil() ledger.PaymentPlan {
	return ledger.PaymentPlan{
		ID:              r.ID,
		Name:            r.Name,
		Description:     r.Description,
		EnrollmentFee:   r.EnrollmentFee,
		TuitionAmount:   r.TuitionAmount,
		Frequency:       ledger.Frequency(r.Frequency),
		Installments:    r.Installments,
		MaterialsCharge: r.MaterialsCharge,
		UniformCharge:   r.UniformCharge,
		TransportCharge: r.TransportCharge,
		DiscountPercent: r.DiscountPercent,
		CreatedAt:       r.CreatedAt.UTC(),
		UpdatedAt:       r.UpdatedAt.UTC(),
	}
}

func (r assignmentRow) unboil() ledger.StudentPaymentPlan {
	spp := ledger.StudentPaymentPlan{
		ID:             r.ID,
		StudentID:      r.StudentID,
		PaymentPlanID:  r.PaymentPlanID,
		CustomTuition:  r.CustomTuition,
		CustomDiscount: r.CustomDiscount,
		StartDate:      ledger.DateOf(r.StartDate),
		IsActive:       r.IsActive,
		EndDate:        r.EndDate,
		CreatedAt:      r.CreatedAt.UTC(),
	}
	if spp.EndDate.Valid {
		spp.EndDate.Time = spp.EndDate.Time.UTC()
	}
	return spp
}

func (r feeTypeRow) unboil() ledger.FeeType {
	return ledger.FeeType{ID: r.ID, Name: r.Name, Description: r.Description, CreatedAt: r.CreatedAt.UTC()}
}

func (r feeRow) unboil() ledger.Fee {
	return ledger.Fee{
		ID:                   r.ID,
		StudentID:            r.StudentID,
		FeeTypeID:            r.FeeTypeID,
		StudentPaymentPlanID: r.StudentPaymentPlanID,
		InstallmentNumber:    r.InstallmentNumber,
		Description:          r.Description,
		Amount:               r.Amount,
		DueDate:              ledger.DateOf(r.DueDate),
		Status:               ledger.FeeStatus(r.Status),
		CreatedAt:            r.CreatedAt.UTC(),
	}
}

func (r paymentRow) unboil() ledger.Payment {
	return ledger.Payment{
		ID:        r.ID,
		FeeID:     r.FeeID,
		StudentID: r.StudentID,
		Amount:    r.Amount,
		Method:    ledger.PaymentMethod(r.Method),
		Reference: r.Reference,
		PaidAt:    r.PaidAt.UTC(),
		CreatedAt: r.CreatedAt.UTC(),
	}
}

func (r transactionRow) unboil() finance.Transaction {
	return finance.Transaction{
		ID:          r.ID,
		Type:        finance.TransactionType(r.Type),
		Category:    r.Category,
		Amount:      r.Amount,
		Currency:    r.Currency,
		Description: r.Description,
		Reference:   r.Reference,
		PaymentID:   r.PaymentID,
		Date:        r.Date.UTC(),
		CreatedAt:   r.CreatedAt.UTC(),
	}
}

// trapNoRowsErr maps psql "no rows" err to ledger.ErrNotFound
func trapNoRowsErr(err error, msg string) error {
	if err == sql.ErrNoRows {
		return ledger.ErrNotFound
	}
	return errors.Wrap(err, msg)
}

// pqCode returns the postgres error code of err, if any.
func pqCode(err error) pq.ErrorCode {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return pqErr.Code
	}
	return ""
}

// trapConstraintErr maps unique and foreign key violations to domain errors.
func trapConstraintErr(err error, msg string, onUnique, onForeignKey error) error {
	switch pqCode(err) {
	case uniqueViolation:
		if onUnique != nil {
			return onUnique
		}
	case foreignKeyViolation:
		if onForeignKey != nil {
			return onForeignKey
		}
	}
	return errors.Wrap(err, msg)
}

func rowsAffected(res sql.Result, msg string) (int, error) {
	n, err := res.RowsAffected()
	if err != nil {
		return 0, errors.Wrap(err, msg)
	}
	return int(n), nil
}
