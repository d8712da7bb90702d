package inmemdb

import (
	"context"
	"sync"
	"time"

	"github.com/trezcool/colegio/core/finance"
	"github.com/trezcool/colegio/core/ledger"
)

type (
	// DB is an in-memory stand-in for the ledger database.
	// Units of work are serialised by txMu and hide their changes from outside readers until they end;
	// every table access goes through mu.
	DB struct {
		txMu sync.RWMutex
		mu   sync.RWMutex
		data *dataset
	}

	dataset struct {
		seq          map[string]int
		students     map[int]ledger.Student
		plans        map[int]ledger.PaymentPlan
		deletedPlans map[int]time.Time
		assignments  map[int]ledger.StudentPaymentPlan
		feeTypes     map[int]ledger.FeeType
		fees         map[int]ledger.Fee
		payments     map[int]ledger.Payment
		transactions map[int]finance.Transaction
	}
)

func Open() (*DB, error) {
	db := &DB{
		data: &dataset{
			seq:          make(map[string]int),
			students:     make(map[int]ledger.Student),
			plans:        make(map[int]ledger.PaymentPlan),
			deletedPlans: make(map[int]time.Time),
			assignments:  make(map[int]ledger.StudentPaymentPlan),
			feeTypes:     make(map[int]ledger.FeeType),
			fees:         make(map[int]ledger.Fee),
			payments:     make(map[int]ledger.Payment),
			transactions: make(map[int]finance.Transaction),
		},
	}
	return db, nil
}

func (d *dataset) nextID(table string) int {
	d.seq[table]++
	return d.seq[table]
}

// plan returns a plan that has not been deleted.
func (d *dataset) plan(id int) (ledger.PaymentPlan, bool) {
	if _, deleted := d.deletedPlans[id]; deleted {
		return ledger.PaymentPlan{}, false
	}
	plan, ok := d.plans[id]
	return plan, ok
}

func (d *dataset) clone() *dataset {
	return &dataset{
		seq:          cloneMap(d.seq),
		students:     cloneMap(d.students),
		plans:        cloneMap(d.plans),
		deletedPlans: cloneMap(d.deletedPlans),
		assignments:  cloneMap(d.assignments),
		feeTypes:     cloneMap(d.feeTypes),
		fees:         cloneMap(d.fees),
		payments:     cloneMap(d.payments),
		transactions: cloneMap(d.transactions),
	}
}

func cloneMap[K comparable, V any](m map[K]V) map[K]V {
	c := make(map[K]V, len(m))
	for k, v := range m {
		c[k] = v
	}
	return c
}

// CreateStudent registers a student. Students are owned by the academic records, outside of the ledger.
func (db *DB) CreateStudent(name string) ledger.Student {
	db.txMu.Lock()
	defer db.txMu.Unlock()
	db.mu.Lock()
	defer db.mu.Unlock()

	s := ledger.Student{ID: db.data.nextID("students"), Name: name}
	db.data.students[s.ID] = s
	return s
}

// runInTx runs fn as a unit of work: tables are restored to their prior state if fn fails or panics.
func (db *DB) runInTx(ctx context.Context, fn func() error) (err error) {
	db.txMu.Lock()
	defer db.txMu.Unlock()

	if err = ctx.Err(); err != nil {
		return err
	}

	db.mu.RLock()
	snapshot := db.data.clone()
	db.mu.RUnlock()

	rollback := func() {
		db.mu.Lock()
		db.data = snapshot
		db.mu.Unlock()
	}
	defer func() {
		if p := recover(); p != nil {
			rollback()
			panic(p)
		}
		if err != nil {
			rollback()
		}
	}()

	return fn()
}

// table gives repositories access to the dataset, inside or outside of a unit of work.
type table struct {
	db   *DB
	inTx bool
}

// read runs fn with shared access. Outside of a unit of work it waits for running ones to finish.
func (t table) read(fn func(d *dataset) error) error {
	if !t.inTx {
		t.db.txMu.RLock()
		defer t.db.txMu.RUnlock()
	}
	t.db.mu.RLock()
	defer t.db.mu.RUnlock()
	return fn(t.db.data)
}

// write runs fn with exclusive access. Outside of a unit of work it waits for running ones to finish.
func (t table) write(fn func(d *dataset) error) error {
	if !t.inTx {
		t.db.txMu.Lock()
		defer t.db.txMu.Unlock()
	}
	t.db.mu.Lock()
	defer t.db.mu.Unlock()
	return fn(t.db.data)
}

func dateOnly(t time.Time) time.Time { return ledger.DateOf(t) }
