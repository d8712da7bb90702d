package sqlxrepos

import (
	"context"
	"fmt"
	"strings"

	"github.com/pkg/errors"

	"github.com/trezcool/colegio/core"
	"github.com/trezcool/colegio/core/finance"
)

type financeRepository struct {
	exec core.DBExecutor
}

var _ finance.Repository = (*financeRepository)(nil)

func NewFinanceRepository(exec core.DBExecutor) finance.Repository {
	return &financeRepository{exec: exec}
}

func (repo *financeRepository) CreateTransaction(ctx context.Context, txn finance.Transaction) (finance.Transaction, error) {
	var row transactionRow
	err := repo.exec.GetContext(ctx, &row, `
		INSERT INTO transactions (type, category, amount, currency, description, reference, payment_id, date, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING `+transactionColumns,
		string(txn.Type), txn.Category, txn.Amount, txn.Currency, txn.Description, txn.Reference, txn.PaymentID,
		txn.Date.UTC(), txn.CreatedAt.UTC(),
	)
	if err != nil {
		return finance.Transaction{}, errors.Wrap(err, "inserting transaction")
	}
	return row.unboil(), nil
}

func (repo *financeRepository) QueryTransactions(ctx context.Context, filter finance.QueryFilter) ([]finance.Transaction, error) {
	var (
		conds []string
		args  []interface{}
	)
	where := func(cond string, arg interface{}) {
		args = append(args, arg)
		conds = append(conds, fmt.Sprintf(cond, len(args)))
	}
	if filter.Type != "" {
		where("type = $%d", string(filter.Type))
	}
	if filter.PaymentID != 0 {
		where("payment_id = $%d", filter.PaymentID)
	}
	if !filter.From.IsZero() {
		where("date >= $%d", filter.From.UTC())
	}
	if !filter.To.IsZero() {
		where("date <= $%d", filter.To.UTC())
	}

	q := "SELECT " + transactionColumns + " FROM transactions"
	if len(conds) > 0 {
		q += " WHERE " + strings.Join(conds, " AND ")
	}
	q += " ORDER BY id"

	var rows []transactionRow
	if err := repo.exec.SelectContext(ctx, &rows, q, args...); err != nil {
		return nil, errors.Wrap(err, "selecting transactions")
	}
	txns := make([]finance.Transaction, 0, len(rows))
	for _, r := range rows {
		txns = append(txns, r.unboil())
	}
	return txns, nil
}
