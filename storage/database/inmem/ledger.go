package inmemdb

import (
	"context"
	"sort"
	"time"

	"github.com/trezcool/colegio/core/ledger"
)

type ledgerRepository struct {
	table
}

var (
	_ ledger.Store      = (*ledgerStore)(nil)
	_ ledger.Repository = (*ledgerRepository)(nil)
)

type ledgerStore struct {
	ledgerRepository
}

func NewLedgerStore(db *DB) ledger.Store {
	return &ledgerStore{ledgerRepository{table{db: db}}}
}

func (s *ledgerStore) RunInTx(ctx context.Context, fn func(repo ledger.Repository) error) error {
	return s.db.runInTx(ctx, func() error {
		return fn(&ledgerRepository{table{db: s.db, inTx: true}})
	})
}

// Students

func (repo *ledgerRepository) GetStudent(_ context.Context, id int) (student ledger.Student, err error) {
	err = repo.read(func(d *dataset) error {
		var ok bool
		if student, ok = d.students[id]; !ok {
			return ledger.ErrNotFound
		}
		return nil
	})
	return
}

// LockStudent is GetStudent: units of work already run one at a time.
func (repo *ledgerRepository) LockStudent(ctx context.Context, id int) (ledger.Student, error) {
	return repo.GetStudent(ctx, id)
}

// Payment plans

func (repo *ledgerRepository) CreatePlan(_ context.Context, plan ledger.PaymentPlan) (ledger.PaymentPlan, error) {
	err := repo.write(func(d *dataset) error {
		plan.ID = d.nextID("payment_plans")
		d.plans[plan.ID] = plan
		return nil
	})
	return plan, err
}

func (repo *ledgerRepository) GetPlan(_ context.Context, id int) (plan ledger.PaymentPlan, err error) {
	err = repo.read(func(d *dataset) error {
		var ok bool
		if plan, ok = d.plan(id); !ok {
			return ledger.ErrNotFound
		}
		return nil
	})
	return
}

// LockPlan is GetPlan: units of work already run one at a time.
func (repo *ledgerRepository) LockPlan(ctx context.Context, id int) (ledger.PaymentPlan, error) {
	return repo.GetPlan(ctx, id)
}

// SharePlan is GetPlan: units of work already run one at a time.
func (repo *ledgerRepository) SharePlan(ctx context.Context, id int) (ledger.PaymentPlan, error) {
	return repo.GetPlan(ctx, id)
}

func (repo *ledgerRepository) QueryPlans(_ context.Context) (plans []ledger.PaymentPlan, err error) {
	err = repo.read(func(d *dataset) error {
		plans = make([]ledger.PaymentPlan, 0, len(d.plans))
		for id, p := range d.plans {
			if _, deleted := d.deletedPlans[id]; !deleted {
				plans = append(plans, p)
			}
		}
		return nil
	})
	sort.Slice(plans, func(i, j int) bool { return plans[i].ID < plans[j].ID })
	return
}

func (repo *ledgerRepository) UpdatePlan(_ context.Context, plan ledger.PaymentPlan) (ledger.PaymentPlan, error) {
	err := repo.write(func(d *dataset) error {
		orig, ok := d.plan(plan.ID)
		if !ok {
			return ledger.ErrNotFound
		}
		plan.CreatedAt = orig.CreatedAt
		d.plans[plan.ID] = plan
		return nil
	})
	return plan, err
}

func (repo *ledgerRepository) DeletePlan(_ context.Context, id int, deletedAt time.Time) error {
	return repo.write(func(d *dataset) error {
		if _, ok := d.plan(id); !ok {
			return ledger.ErrNotFound
		}
		d.deletedPlans[id] = deletedAt
		return nil
	})
}

func (repo *ledgerRepository) CountActiveAssignments(_ context.Context, planID int) (count int, err error) {
	err = repo.read(func(d *dataset) error {
		for _, spp := range d.assignments {
			if spp.PaymentPlanID == planID && spp.IsActive {
				count++
			}
		}
		return nil
	})
	return
}

// Assignments

func (repo *ledgerRepository) CreateAssignment(_ context.Context, spp ledger.StudentPaymentPlan) (ledger.StudentPaymentPlan, error) {
	err := repo.write(func(d *dataset) error {
		if _, ok := d.students[spp.StudentID]; !ok {
			return ledger.ErrNotFound
		}
		if _, ok := d.plan(spp.PaymentPlanID); !ok {
			return ledger.ErrNotFound
		}
		if spp.IsActive {
			for _, other := range d.assignments {
				if other.StudentID == spp.StudentID && other.IsActive {
					return ledger.ErrConcurrentAssignment
				}
			}
		}
		spp.ID = d.nextID("student_payment_plans")
		spp.StartDate = dateOnly(spp.StartDate)
		d.assignments[spp.ID] = spp
		return nil
	})
	return spp, err
}

func (repo *ledgerRepository) GetAssignment(_ context.Context, id int) (spp ledger.StudentPaymentPlan, err error) {
	err = repo.read(func(d *dataset) error {
		var ok bool
		if spp, ok = d.assignments[id]; !ok {
			return ledger.ErrNotFound
		}
		return nil
	})
	return
}

func (repo *ledgerRepository) GetActiveAssignment(_ context.Context, studentID int) (spp ledger.StudentPaymentPlan, err error) {
	err = repo.read(func(d *dataset) error {
		for _, a := range d.assignments {
			if a.StudentID == studentID && a.IsActive {
				spp = a
				return nil
			}
		}
		return ledger.ErrNotFound
	})
	return
}

func (repo *ledgerRepository) QueryAssignments(_ context.Context, studentID int) (spps []ledger.StudentPaymentPlan, err error) {
	err = repo.read(func(d *dataset) error {
		spps = make([]ledger.StudentPaymentPlan, 0)
		for _, a := range d.assignments {
			if a.StudentID == studentID {
				spps = append(spps, a)
			}
		}
		return nil
	})
	sort.Slice(spps, func(i, j int) bool { return spps[i].ID > spps[j].ID })
	return
}

func (repo *ledgerRepository) DeactivateAssignments(_ context.Context, studentID int, endDate time.Time) (count int, err error) {
	err = repo.write(func(d *dataset) error {
		for id, a := range d.assignments {
			if a.StudentID == studentID && a.IsActive {
				a.IsActive = false
				a.EndDate.SetValid(endDate)
				d.assignments[id] = a
				count++
			}
		}
		return nil
	})
	return
}

// Fee types

func (repo *ledgerRepository) CreateFeeType(_ context.Context, ft ledger.FeeType) (ledger.FeeType, error) {
	err := repo.write(func(d *dataset) error {
		for _, other := range d.feeTypes {
			if other.Name == ft.Name {
				return ledger.ErrFeeTypeExists
			}
		}
		ft.ID = d.nextID("fee_types")
		d.feeTypes[ft.ID] = ft
		return nil
	})
	return ft, err
}

func (repo *ledgerRepository) GetFeeType(_ context.Context, id int) (ft ledger.FeeType, err error) {
	err = repo.read(func(d *dataset) error {
		var ok bool
		if ft, ok = d.feeTypes[id]; !ok {
			return ledger.ErrNotFound
		}
		return nil
	})
	return
}

func (repo *ledgerRepository) QueryFeeTypes(_ context.Context) (types []ledger.FeeType, err error) {
	err = repo.read(func(d *dataset) error {
		types = make([]ledger.FeeType, 0, len(d.feeTypes))
		for _, ft := range d.feeTypes {
			types = append(types, ft)
		}
		return nil
	})
	sort.Slice(types, func(i, j int) bool { return types[i].Name < types[j].Name })
	return
}

func (repo *ledgerRepository) GetFeeTypesByName(_ context.Context, names ...string) (types map[string]ledger.FeeType, err error) {
	err = repo.read(func(d *dataset) error {
		types = make(map[string]ledger.FeeType, len(names))
		for _, ft := range d.feeTypes {
			for _, name := range names {
				if ft.Name == name {
					types[name] = ft
				}
			}
		}
		return nil
	})
	return
}

// Fees

func (repo *ledgerRepository) CreateFees(_ context.Context, fees []ledger.Fee) ([]ledger.Fee, error) {
	created := make([]ledger.Fee, 0, len(fees))
	err := repo.write(func(d *dataset) error {
		for _, fee := range fees {
			if _, ok := d.students[fee.StudentID]; !ok {
				return ledger.ErrNotFound
			}
			if _, ok := d.feeTypes[fee.FeeTypeID]; !ok {
				return ledger.ErrNotFound
			}
			if fee.StudentPaymentPlanID.Valid {
				if _, ok := d.assignments[fee.StudentPaymentPlanID.Int]; !ok {
					return ledger.ErrNotFound
				}
			}
		}
		for _, fee := range fees {
			fee.ID = d.nextID("fees")
			fee.DueDate = dateOnly(fee.DueDate)
			d.fees[fee.ID] = fee
			created = append(created, fee)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return created, nil
}

func (repo *ledgerRepository) GetFee(_ context.Context, id int) (fee ledger.Fee, err error) {
	err = repo.read(func(d *dataset) error {
		var ok bool
		if fee, ok = d.fees[id]; !ok {
			return ledger.ErrNotFound
		}
		return nil
	})
	return
}

// LockFee is GetFee: units of work already run one at a time.
func (repo *ledgerRepository) LockFee(ctx context.Context, id int) (ledger.Fee, error) {
	return repo.GetFee(ctx, id)
}

func (repo *ledgerRepository) QueryFees(_ context.Context, filter ledger.FeeFilter) (fees []ledger.Fee, err error) {
	err = repo.read(func(d *dataset) error {
		fees = make([]ledger.Fee, 0)
		for _, fee := range d.fees {
			if matchFee(fee, filter) {
				fees = append(fees, fee)
			}
		}
		return nil
	})
	sort.Slice(fees, func(i, j int) bool {
		if !fees[i].DueDate.Equal(fees[j].DueDate) {
			return fees[i].DueDate.Before(fees[j].DueDate)
		}
		return fees[i].ID < fees[j].ID
	})
	return
}

func matchFee(fee ledger.Fee, filter ledger.FeeFilter) bool {
	if filter.StudentID != 0 && fee.StudentID != filter.StudentID {
		return false
	}
	if filter.AssignmentID != 0 && (!fee.StudentPaymentPlanID.Valid || fee.StudentPaymentPlanID.Int != filter.AssignmentID) {
		return false
	}
	if len(filter.Statuses) > 0 {
		var found bool
		for _, s := range filter.Statuses {
			if fee.Status == s {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	if !filter.DueFrom.IsZero() && fee.DueDate.Before(dateOnly(filter.DueFrom)) {
		return false
	}
	if !filter.DueTo.IsZero() && fee.DueDate.After(dateOnly(filter.DueTo)) {
		return false
	}
	return true
}

func (repo *ledgerRepository) UpdateFeeStatus(_ context.Context, id int, status ledger.FeeStatus) error {
	return repo.write(func(d *dataset) error {
		fee, ok := d.fees[id]
		if !ok {
			return ledger.ErrNotFound
		}
		fee.Status = status
		d.fees[id] = fee
		return nil
	})
}

func (repo *ledgerRepository) DeleteFee(_ context.Context, id int) error {
	return repo.write(func(d *dataset) error {
		if _, ok := d.fees[id]; !ok {
			return ledger.ErrNotFound
		}
		for _, p := range d.payments {
			if p.FeeID == id {
				return ledger.ErrHasPayments
			}
		}
		delete(d.fees, id)
		return nil
	})
}

func (repo *ledgerRepository) MarkOverdueFees(_ context.Context, asOf time.Time) (count int, err error) {
	err = repo.write(func(d *dataset) error {
		for id, fee := range d.fees {
			if (fee.Status == ledger.StatusPending || fee.Status == ledger.StatusPartial) && fee.DueDate.Before(asOf) {
				fee.Status = ledger.StatusOverdue
				d.fees[id] = fee
				count++
			}
		}
		return nil
	})
	return
}

// Payments

func (repo *ledgerRepository) CreatePayment(_ context.Context, pmt ledger.Payment) (ledger.Payment, error) {
	err := repo.write(func(d *dataset) error {
		if _, ok := d.fees[pmt.FeeID]; !ok {
			return ledger.ErrNotFound
		}
		pmt.ID = d.nextID("payments")
		d.payments[pmt.ID] = pmt
		return nil
	})
	return pmt, err
}

func (repo *ledgerRepository) QueryPayments(_ context.Context, feeID int) ([]ledger.Payment, error) {
	return repo.queryPayments(func(p ledger.Payment) bool { return p.FeeID == feeID })
}

func (repo *ledgerRepository) QueryPaymentsByStudent(_ context.Context, studentID int) ([]ledger.Payment, error) {
	return repo.queryPayments(func(p ledger.Payment) bool { return p.StudentID == studentID })
}

func (repo *ledgerRepository) queryPayments(match func(p ledger.Payment) bool) (payments []ledger.Payment, err error) {
	err = repo.read(func(d *dataset) error {
		payments = make([]ledger.Payment, 0)
		for _, p := range d.payments {
			if match(p) {
				payments = append(payments, p)
			}
		}
		return nil
	})
	sort.Slice(payments, func(i, j int) bool { return payments[i].ID < payments[j].ID })
	return
}

func (repo *ledgerRepository) CountPayments(_ context.Context, feeID int) (count int, err error) {
	err = repo.read(func(d *dataset) error {
		for _, p := range d.payments {
			if p.FeeID == feeID {
				count++
			}
		}
		return nil
	})
	return
}
