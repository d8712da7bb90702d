package ledger

import (
	"context"
	"fmt"
	"time"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"github.com/volatiletech/null/v8"

	"github.com/trezcool/colegio/core"
	"github.com/trezcool/colegio/core/finance"
)

var nowFunc = time.Now

type (
	Repository interface {
		GetStudent(ctx context.Context, id int) (Student, error)
		// LockStudent loads a student and holds its row lock until the end of the transaction.
		LockStudent(ctx context.Context, id int) (Student, error)

		CreatePlan(ctx context.Context, plan PaymentPlan) (PaymentPlan, error)
		GetPlan(ctx context.Context, id int) (PaymentPlan, error)
		// LockPlan loads a plan and holds an exclusive row lock until the end of the transaction.
		LockPlan(ctx context.Context, id int) (PaymentPlan, error)
		// SharePlan loads a plan and keeps it from being locked exclusively until the end of the transaction.
		SharePlan(ctx context.Context, id int) (PaymentPlan, error)
		QueryPlans(ctx context.Context) ([]PaymentPlan, error)
		UpdatePlan(ctx context.Context, plan PaymentPlan) (PaymentPlan, error)
		// DeletePlan retires a plan. Its assignments and their fees are kept.
		DeletePlan(ctx context.Context, id int, deletedAt time.Time) error
		CountActiveAssignments(ctx context.Context, planID int) (int, error)

		CreateAssignment(ctx context.Context, spp StudentPaymentPlan) (StudentPaymentPlan, error)
		GetAssignment(ctx context.Context, id int) (StudentPaymentPlan, error)
		GetActiveAssignment(ctx context.Context, studentID int) (StudentPaymentPlan, error)
		QueryAssignments(ctx context.Context, studentID int) ([]StudentPaymentPlan, error)
		// DeactivateAssignments ends every active assignment of a student and returns how many were ended.
		DeactivateAssignments(ctx context.Context, studentID int, endDate time.Time) (int, error)

		CreateFeeType(ctx context.Context, ft FeeType) (FeeType, error)
		GetFeeType(ctx context.Context, id int) (FeeType, error)
		QueryFeeTypes(ctx context.Context) ([]FeeType, error)
		// GetFeeTypesByName returns the fee types found, keyed by name. Unknown names are skipped.
		GetFeeTypesByName(ctx context.Context, names ...string) (map[string]FeeType, error)

		CreateFees(ctx context.Context, fees []Fee) ([]Fee, error)
		GetFee(ctx context.Context, id int) (Fee, error)
		// LockFee loads a fee and holds its row lock until the end of the transaction.
		LockFee(ctx context.Context, id int) (Fee, error)
		QueryFees(ctx context.Context, filter FeeFilter) ([]Fee, error)
		UpdateFeeStatus(ctx context.Context, id int, status FeeStatus) error
		DeleteFee(ctx context.Context, id int) error
		// MarkOverdueFees flags PENDING and PARTIAL fees due before asOf as OVERDUE.
		MarkOverdueFees(ctx context.Context, asOf time.Time) (int, error)

		CreatePayment(ctx context.Context, pmt Payment) (Payment, error)
		QueryPayments(ctx context.Context, feeID int) ([]Payment, error)
		QueryPaymentsByStudent(ctx context.Context, studentID int) ([]Payment, error)
		CountPayments(ctx context.Context, feeID int) (int, error)
	}

	// Store is a Repository able to run units of work atomically.
	Store interface {
		Repository

		// RunInTx runs fn in a transaction: every change made through repo is rolled back if fn fails.
		RunInTx(ctx context.Context, fn func(repo Repository) error) error
	}

	// TransactionRecorder files payments in the finance ledger.
	TransactionRecorder interface {
		CreateTransaction(ctx context.Context, txn finance.Transaction) (finance.Transaction, error)
	}

	Service struct {
		store    Store
		recorder TransactionRecorder
		gen      *Generator
		catalog  Catalog
		currency string
		log      core.Logger
	}
)

func NewService(store Store, recorder TransactionRecorder, log core.Logger, conf *core.Config) *Service {
	catalog := CatalogFromConfig(conf.Ledger.FeeTypes)
	return &Service{
		store:    store,
		recorder: recorder,
		gen:      NewGenerator(catalog, log),
		catalog:  catalog,
		currency: conf.Ledger.Currency,
		log:      log,
	}
}

// Payment plans

func (svc *Service) CreatePlan(ctx context.Context, np NewPaymentPlan) (PaymentPlan, error) {
	now := nowFunc().UTC()
	plan := PaymentPlan{CreatedAt: now, UpdatedAt: now}
	np.apply(&plan)
	return svc.store.CreatePlan(ctx, plan)
}

func (svc *Service) GetPlan(ctx context.Context, id int) (PaymentPlan, error) {
	return svc.store.GetPlan(ctx, id)
}

func (svc *Service) QueryPlans(ctx context.Context) ([]PaymentPlan, error) {
	return svc.store.QueryPlans(ctx)
}

// UpdatePlan overwrites a plan. Fees already generated from it keep their amounts and due dates.
func (svc *Service) UpdatePlan(ctx context.Context, id int, up UpdatePaymentPlan) (PaymentPlan, error) {
	var plan PaymentPlan
	err := svc.store.RunInTx(ctx, func(repo Repository) (err error) {
		if plan, err = repo.LockPlan(ctx, id); err != nil {
			return err
		}
		up.apply(&plan)
		plan.UpdatedAt = nowFunc().UTC()
		plan, err = repo.UpdatePlan(ctx, plan)
		return err
	})
	return plan, err
}

// DeletePlan retires a plan unless an active assignment references it.
// Superseded assignments of the plan stay in the history of their students.
func (svc *Service) DeletePlan(ctx context.Context, id int) error {
	return svc.store.RunInTx(ctx, func(repo Repository) error {
		if _, err := repo.LockPlan(ctx, id); err != nil {
			return err
		}
		count, err := repo.CountActiveAssignments(ctx, id)
		if err != nil {
			return errors.Wrap(err, "counting active assignments")
		}
		if count > 0 {
			return &InUseError{Count: count}
		}
		return repo.DeletePlan(ctx, id, nowFunc().UTC())
	})
}

// Assignments

// AssignPlan makes a plan the only active plan of a student and generates its fees, all in one transaction.
func (svc *Service) AssignPlan(ctx context.Context, ap AssignPlan) (Assignment, error) {
	if err := checkAssignment(ap); err != nil {
		return Assignment{}, err
	}

	now := nowFunc().UTC()
	start := DateOf(now)
	if ap.StartDate.Valid {
		start = DateOf(ap.StartDate.Time)
	}

	var asg Assignment
	err := svc.store.RunInTx(ctx, func(repo Repository) error {
		if _, err := repo.LockStudent(ctx, ap.StudentID); err != nil {
			return errors.Wrap(err, "locking student")
		}
		if _, err := repo.SharePlan(ctx, ap.PaymentPlanID); err != nil {
			return errors.Wrap(err, "loading payment plan")
		}
		if _, err := repo.DeactivateAssignments(ctx, ap.StudentID, now); err != nil {
			return errors.Wrap(err, "deactivating assignments")
		}

		spp, err := repo.CreateAssignment(ctx, StudentPaymentPlan{
			StudentID:      ap.StudentID,
			PaymentPlanID:  ap.PaymentPlanID,
			CustomTuition:  ap.CustomTuition,
			CustomDiscount: ap.CustomDiscount,
			StartDate:      start,
			IsActive:       true,
			CreatedAt:      now,
		})
		if err != nil {
			return errors.Wrap(err, "inserting assignment")
		}

		res, err := svc.gen.Generate(ctx, repo, ap.StudentID, spp.ID, start)
		if err != nil {
			return err
		}
		asg = Assignment{StudentPaymentPlan: spp, FeesGenerated: res.Count, Fees: res.Fees, Omissions: res.Omissions}
		return nil
	})
	if err != nil {
		return Assignment{}, err
	}

	svc.log.Info("payment plan assigned", map[string]interface{}{
		"student_id":      asg.StudentID,
		"payment_plan_id": asg.PaymentPlanID,
		"assignment_id":   asg.ID,
		"fees_generated":  asg.FeesGenerated,
	})
	return asg, nil
}

func checkAssignment(ap AssignPlan) error {
	if ap.CustomTuition.Valid && !ap.CustomTuition.Decimal.IsPositive() {
		err := errors.New("custom tuition must be positive")
		return core.NewValidationError(err, core.FieldError{Field: "custom_tuition", Error: err.Error()})
	}
	if d := ap.CustomDiscount; d.Valid && (d.Decimal.IsNegative() || d.Decimal.GreaterThan(hundred)) {
		return core.NewValidationError(
			ErrInvalidDiscount,
			core.FieldError{Field: "custom_discount", Error: ErrInvalidDiscount.Error()},
		)
	}
	return nil
}

func (svc *Service) GetActiveAssignment(ctx context.Context, studentID int) (StudentPaymentPlan, error) {
	return svc.store.GetActiveAssignment(ctx, studentID)
}

// QueryAssignments returns the assignment history of a student, most recent first.
func (svc *Service) QueryAssignments(ctx context.Context, studentID int) ([]StudentPaymentPlan, error) {
	if _, err := svc.store.GetStudent(ctx, studentID); err != nil {
		return nil, err
	}
	return svc.store.QueryAssignments(ctx, studentID)
}

// Payments

// RecordPayment applies a payment to a fee, then files it as INCOME in the finance ledger.
// Failing to file it is logged and does not undo the payment.
func (svc *Service) RecordPayment(ctx context.Context, rp RecordPayment) (Receipt, error) {
	now := nowFunc().UTC()

	var rcpt Receipt
	err := svc.store.RunInTx(ctx, func(repo Repository) (err error) {
		rcpt, err = Reconcile(ctx, repo, rp, now)
		return err
	})
	if err != nil {
		return Receipt{}, err
	}

	svc.log.Info("payment recorded", map[string]interface{}{
		"payment_id": rcpt.Payment.ID,
		"fee_id":     rcpt.Fee.ID,
		"student_id": rcpt.Payment.StudentID,
		"amount":     rcpt.Payment.Amount.StringFixed(2),
		"status":     rcpt.Status,
	})

	if txn, err := svc.recordIncome(ctx, rcpt); err != nil {
		svc.log.Error("recording payment transaction: manual reconciliation required", err, map[string]interface{}{
			"payment_id": rcpt.Payment.ID,
			"amount":     rcpt.Payment.Amount.StringFixed(2),
		})
	} else {
		rcpt.TransactionID = null.IntFrom(txn.ID)
	}
	return rcpt, nil
}

func (svc *Service) recordIncome(ctx context.Context, rcpt Receipt) (finance.Transaction, error) {
	if svc.recorder == nil {
		return finance.Transaction{}, errors.New("no transaction recorder configured")
	}
	name := fmt.Sprintf("student #%d", rcpt.Payment.StudentID)
	if student, err := svc.store.GetStudent(ctx, rcpt.Payment.StudentID); err == nil {
		name = student.Name
	}
	desc := fmt.Sprintf("Payment from %s for %s", name, rcpt.Fee.Description)
	txn := finance.NewIncome(rcpt.Payment.ID, rcpt.Payment.Amount, svc.currency, desc, rcpt.Payment.PaidAt)
	return svc.recorder.CreateTransaction(ctx, txn)
}

// QueryPayments returns the payments of a fee, oldest first.
func (svc *Service) QueryPayments(ctx context.Context, feeID int) ([]Payment, error) {
	if _, err := svc.store.GetFee(ctx, feeID); err != nil {
		return nil, err
	}
	return svc.store.QueryPayments(ctx, feeID)
}

// Fee types

func (svc *Service) CreateFeeType(ctx context.Context, nft NewFeeType) (FeeType, error) {
	ft, err := svc.store.CreateFeeType(ctx, FeeType{
		Name:        nft.Name,
		Description: nft.Description,
		CreatedAt:   nowFunc().UTC(),
	})
	if errors.Cause(err) == ErrFeeTypeExists {
		return FeeType{}, core.NewValidationError(err, core.FieldError{Field: "name", Error: ErrFeeTypeExists.Error()})
	}
	return ft, err
}

func (svc *Service) QueryFeeTypes(ctx context.Context) ([]FeeType, error) {
	return svc.store.QueryFeeTypes(ctx)
}

// EnsureFeeTypes creates the catalog fee types that do not exist yet and returns the ones it created.
func (svc *Service) EnsureFeeTypes(ctx context.Context) ([]FeeType, error) {
	var created []FeeType
	err := svc.store.RunInTx(ctx, func(repo Repository) error {
		existing, err := repo.GetFeeTypesByName(ctx, svc.catalog.Names()...)
		if err != nil {
			return errors.Wrap(err, "loading fee types")
		}
		now := nowFunc().UTC()
		for _, kind := range ChargeKinds {
			name := svc.catalog[kind]
			if _, ok := existing[name]; ok {
				continue
			}
			ft, err := repo.CreateFeeType(ctx, FeeType{Name: name, Description: kind.String() + " charges", CreatedAt: now})
			if err != nil {
				return errors.Wrapf(err, "inserting fee type %q", name)
			}
			existing[name] = ft
			created = append(created, ft)
		}
		return nil
	})
	return created, err
}

// Fees

// CreateFee adds a one-off fee that belongs to no payment plan.
func (svc *Service) CreateFee(ctx context.Context, nf NewFee) (Fee, error) {
	var fee Fee
	err := svc.store.RunInTx(ctx, func(repo Repository) error {
		if _, err := repo.GetStudent(ctx, nf.StudentID); err != nil {
			return errors.Wrap(err, "loading student")
		}
		ft, err := repo.GetFeeType(ctx, nf.FeeTypeID)
		if err != nil {
			return errors.Wrap(err, "loading fee type")
		}

		desc := nf.Description
		if desc == "" {
			desc = ft.Name
		}
		fees, err := repo.CreateFees(ctx, []Fee{{
			StudentID:   nf.StudentID,
			FeeTypeID:   ft.ID,
			Description: desc,
			Amount:      nf.Amount,
			DueDate:     DateOf(nf.DueDate),
			Status:      StatusPending,
			CreatedAt:   nowFunc().UTC(),
		}})
		if err != nil {
			return errors.Wrap(err, "inserting fee")
		}
		fee = fees[0]
		return nil
	})
	return fee, err
}

// GetFee returns a fee along with its payments and balance.
func (svc *Service) GetFee(ctx context.Context, id int) (FeeStatement, error) {
	fee, err := svc.store.GetFee(ctx, id)
	if err != nil {
		return FeeStatement{}, err
	}
	payments, err := svc.store.QueryPayments(ctx, id)
	if err != nil {
		return FeeStatement{}, errors.Wrap(err, "loading payments")
	}
	return NewFeeStatement(fee, payments), nil
}

func (svc *Service) QueryFees(ctx context.Context, filter FeeFilter) ([]Fee, error) {
	return svc.store.QueryFees(ctx, filter)
}

// DeleteFee deletes a fee that has not received any payment.
func (svc *Service) DeleteFee(ctx context.Context, id int) error {
	return svc.store.RunInTx(ctx, func(repo Repository) error {
		if _, err := repo.LockFee(ctx, id); err != nil {
			return err
		}
		count, err := repo.CountPayments(ctx, id)
		if err != nil {
			return errors.Wrap(err, "counting payments")
		}
		if count > 0 {
			return ErrHasPayments
		}
		return repo.DeleteFee(ctx, id)
	})
}

// StudentBalance sums up the fees and payments of a student.
func (svc *Service) StudentBalance(ctx context.Context, studentID int) (Balance, error) {
	if _, err := svc.store.GetStudent(ctx, studentID); err != nil {
		return Balance{}, err
	}
	fees, err := svc.store.QueryFees(ctx, FeeFilter{StudentID: studentID})
	if err != nil {
		return Balance{}, errors.Wrap(err, "loading fees")
	}
	payments, err := svc.store.QueryPaymentsByStudent(ctx, studentID)
	if err != nil {
		return Balance{}, errors.Wrap(err, "loading payments")
	}

	paid := make(map[int]decimal.Decimal, len(fees))
	for _, p := range payments {
		paid[p.FeeID] = paid[p.FeeID].Add(p.Amount)
	}

	bal := Balance{
		StudentID:    studentID,
		Fees:         len(fees),
		TotalAmount:  decimal.Zero,
		TotalPaid:    decimal.Zero,
		Outstanding:  decimal.Zero,
		OverdueTotal: decimal.Zero,
	}
	for _, fee := range fees {
		feePaid := paid[fee.ID]
		due := fee.Amount.Sub(feePaid)
		bal.TotalAmount = bal.TotalAmount.Add(fee.Amount)
		bal.TotalPaid = bal.TotalPaid.Add(feePaid)
		bal.Outstanding = bal.Outstanding.Add(due)
		if fee.Status == StatusOverdue {
			bal.OverdueFees++
			bal.OverdueTotal = bal.OverdueTotal.Add(due)
		}
	}
	return bal, nil
}

// MarkOverdue flags as OVERDUE the unpaid fees due before asOf.
func (svc *Service) MarkOverdue(ctx context.Context, asOf time.Time) (int, error) {
	count, err := svc.store.MarkOverdueFees(ctx, DateOf(asOf))
	if err != nil {
		return 0, errors.Wrap(err, "marking overdue fees")
	}
	svc.log.Info("overdue fees marked", map[string]interface{}{"as_of": DateOf(asOf).Format("2006-01-02"), "count": count})
	return count, nil
}
