package finance

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/volatiletech/null/v8"
)

// Transaction types
const (
	TypeIncome  TransactionType = "INCOME"
	TypeExpense TransactionType = "EXPENSE"
)

// CategoryStudentFees files the income generated by fee payments.
const CategoryStudentFees = "Student Fees"

type TransactionType string

// Transaction is an entry of the school's finance ledger.
type Transaction struct {
	ID          int             `json:"id"`
	Type        TransactionType `json:"type"`
	Category    string          `json:"category"`
	Amount      decimal.Decimal `json:"amount"`
	Currency    string          `json:"currency"`
	Description string          `json:"description"`
	Reference   string          `json:"reference"`
	PaymentID   null.Int        `json:"payment_id"`
	Date        time.Time       `json:"date"`
	CreatedAt   time.Time       `json:"created_at"`
}

// NewIncome returns the INCOME Transaction mirroring a fee payment.
func NewIncome(paymentID int, amount decimal.Decimal, currency, description string, date time.Time) Transaction {
	return Transaction{
		Type:        TypeIncome,
		Category:    CategoryStudentFees,
		Amount:      amount,
		Currency:    currency,
		Description: description,
		Reference:   uuid.NewString(),
		PaymentID:   null.IntFrom(paymentID),
		Date:        date,
		CreatedAt:   date,
	}
}

// QueryFilter narrows down transaction queries; zero fields are ignored.
type QueryFilter struct {
	Type      TransactionType
	PaymentID int
	From      time.Time
	To        time.Time
}

type Repository interface {
	CreateTransaction(ctx context.Context, txn Transaction) (Transaction, error)
	QueryTransactions(ctx context.Context, filter QueryFilter) ([]Transaction, error)
}
