package inmemdb

import (
	"context"
	"sort"

	"github.com/trezcool/colegio/core/finance"
)

type financeRepository struct {
	table
}

var _ finance.Repository = (*financeRepository)(nil)

func NewFinanceRepository(db *DB) finance.Repository {
	return &financeRepository{table{db: db}}
}

func (repo *financeRepository) CreateTransaction(_ context.Context, txn finance.Transaction) (finance.Transaction, error) {
	err := repo.write(func(d *dataset) error {
		txn.ID = d.nextID("transactions")
		d.transactions[txn.ID] = txn
		return nil
	})
	return txn, err
}

func (repo *financeRepository) QueryTransactions(_ context.Context, filter finance.QueryFilter) (txns []finance.Transaction, err error) {
	err = repo.read(func(d *dataset) error {
		txns = make([]finance.Transaction, 0)
		for _, t := range d.transactions {
			switch {
			case filter.Type != "" && t.Type != filter.Type:
			case filter.PaymentID != 0 && (!t.PaymentID.Valid || t.PaymentID.Int != filter.PaymentID):
			case !filter.From.IsZero() && t.Date.Before(filter.From):
			case !filter.To.IsZero() && t.Date.After(filter.To):
			default:
				txns = append(txns, t)
			}
		}
		return nil
	})
	sort.Slice(txns, func(i, j int) bool { return txns[i].ID < txns[j].ID })
	return
}
