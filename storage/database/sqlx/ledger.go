package sqlxrepos

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/lib/pq"
	"github.com/pkg/errors"

	"github.com/trezcool/colegio/core"
	"github.com/trezcool/colegio/core/ledger"
)

type ledgerRepository struct {
	exec core.DBExecutor
}

type ledgerStore struct {
	*ledgerRepository
	db core.DB
}

var (
	_ ledger.Repository = (*ledgerRepository)(nil) // interface compliance check
	_ ledger.Store      = (*ledgerStore)(nil)
)

func NewLedgerStore(db core.DB) ledger.Store {
	return &ledgerStore{ledgerRepository: &ledgerRepository{exec: db}, db: db}
}

// RunInTx runs fn in a READ COMMITTED transaction; fee, student and plan row locks serialise competing writers.
func (s *ledgerStore) RunInTx(ctx context.Context, fn func(repo ledger.Repository) error) error {
	return core.RunInTx(ctx, s.db, nil, func(exec core.DBExecutor) error {
		return fn(&ledgerRepository{exec: exec})
	})
}

// Students

func (repo *ledgerRepository) getStudent(ctx context.Context, id int, lock bool) (ledger.Student, error) {
	q := "SELECT id, name FROM students WHERE id = $1"
	if lock {
		q += " FOR UPDATE"
	}
	var row studentRow
	if err := repo.exec.GetContext(ctx, &row, q, id); err != nil {
		return ledger.Student{}, trapNoRowsErr(err, "selecting student")
	}
	return ledger.Student{ID: row.ID, Name: row.Name}, nil
}

func (repo *ledgerRepository) GetStudent(ctx context.Context, id int) (ledger.Student, error) {
	return repo.getStudent(ctx, id, false)
}

func (repo *ledgerRepository) LockStudent(ctx context.Context, id int) (ledger.Student, error) {
	return repo.getStudent(ctx, id, true)
}

// Payment plans

func (repo *ledgerRepository) CreatePlan(ctx context.Context, plan ledger.PaymentPlan) (ledger.PaymentPlan, error) {
	var row planRow
	err := repo.exec.GetContext(ctx, &row, `
		INSERT INTO payment_plans (name, description, enrollment_fee, tuition_amount, frequency, installments,
			materials_charge, uniform_charge, transport_charge, discount_percent, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		RETURNING `+planColumns,
		plan.Name, plan.Description, plan.EnrollmentFee, plan.TuitionAmount, string(plan.Frequency), plan.Installments,
		plan.MaterialsCharge, plan.UniformCharge, plan.TransportCharge, plan.DiscountPercent,
		plan.CreatedAt.UTC(), plan.UpdatedAt.UTC(),
	)
	if err != nil {
		return ledger.PaymentPlan{}, errors.Wrap(err, "inserting payment plan")
	}
	return row.unboil(), nil
}

// getPlan loads a plan that has not been deleted. lock is appended to the query, eg. "FOR UPDATE".
func (repo *ledgerRepository) getPlan(ctx context.Context, id int, lock string) (ledger.PaymentPlan, error) {
	q := "SELECT " + planColumns + " FROM payment_plans WHERE id = $1 AND deleted_at IS NULL"
	if lock != "" {
		q += " " + lock
	}
	var row planRow
	if err := repo.exec.GetContext(ctx, &row, q, id); err != nil {
		return ledger.PaymentPlan{}, trapNoRowsErr(err, "selecting payment plan")
	}
	return row.unboil(), nil
}

func (repo *ledgerRepository) GetPlan(ctx context.Context, id int) (ledger.PaymentPlan, error) {
	return repo.getPlan(ctx, id, "")
}

func (repo *ledgerRepository) LockPlan(ctx context.Context, id int) (ledger.PaymentPlan, error) {
	return repo.getPlan(ctx, id, "FOR UPDATE")
}

func (repo *ledgerRepository) SharePlan(ctx context.Context, id int) (ledger.PaymentPlan, error) {
	return repo.getPlan(ctx, id, "FOR SHARE")
}

func (repo *ledgerRepository) QueryPlans(ctx context.Context) ([]ledger.PaymentPlan, error) {
	var rows []planRow
	if err := repo.exec.SelectContext(ctx, &rows, "SELECT "+planColumns+" FROM payment_plans WHERE deleted_at IS NULL ORDER BY id"); err != nil {
		return nil, errors.Wrap(err, "selecting payment plans")
	}
	plans := make([]ledger.PaymentPlan, 0, len(rows))
	for _, r := range rows {
		plans = append(plans, r.unboil())
	}
	return plans, nil
}

func (repo *ledgerRepository) UpdatePlan(ctx context.Context, plan ledger.PaymentPlan) (ledger.PaymentPlan, error) {
	var row planRow
	err := repo.exec.GetContext(ctx, &row, `
		UPDATE payment_plans SET name = $2, description = $3, enrollment_fee = $4, tuition_amount = $5,
			frequency = $6, installments = $7, materials_charge = $8, uniform_charge = $9, transport_charge = $10,
			discount_percent = $11, updated_at = $12
		WHERE id = $1 AND deleted_at IS NULL
		RETURNING `+planColumns,
		plan.ID, plan.Name, plan.Description, plan.EnrollmentFee, plan.TuitionAmount, string(plan.Frequency),
		plan.Installments, plan.MaterialsCharge, plan.UniformCharge, plan.TransportCharge, plan.DiscountPercent,
		plan.UpdatedAt.UTC(),
	)
	if err != nil {
		return ledger.PaymentPlan{}, trapNoRowsErr(err, "updating payment plan")
	}
	return row.unboil(), nil
}

func (repo *ledgerRepository) DeletePlan(ctx context.Context, id int, deletedAt time.Time) error {
	res, err := repo.exec.ExecContext(ctx,
		"UPDATE payment_plans SET deleted_at = $2 WHERE id = $1 AND deleted_at IS NULL", id, deletedAt.UTC())
	if err != nil {
		return errors.Wrap(err, "deleting payment plan")
	}
	n, err := rowsAffected(res, "deleting payment plan")
	if err != nil {
		return err
	}
	if n == 0 {
		return ledger.ErrNotFound
	}
	return nil
}

func (repo *ledgerRepository) CountActiveAssignments(ctx context.Context, planID int) (int, error) {
	var count int
	err := repo.exec.GetContext(ctx, &count,
		"SELECT COUNT(*) FROM student_payment_plans WHERE payment_plan_id = $1 AND is_active", planID)
	if err != nil {
		return 0, errors.Wrap(err, "counting active assignments")
	}
	return count, nil
}

// Assignments

// CreateAssignment maps a violation of the one-active-assignment-per-student index to ledger.ErrConcurrentAssignment.
func (repo *ledgerRepository) CreateAssignment(ctx context.Context, spp ledger.StudentPaymentPlan) (ledger.StudentPaymentPlan, error) {
	var row assignmentRow
	err := repo.exec.GetContext(ctx, &row, `
		INSERT INTO student_payment_plans (student_id, payment_plan_id, custom_tuition, custom_discount, start_date,
			is_active, end_date, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING `+assignmentColumns,
		spp.StudentID, spp.PaymentPlanID, spp.CustomTuition, spp.CustomDiscount, ledger.DateOf(spp.StartDate),
		spp.IsActive, spp.EndDate, spp.CreatedAt.UTC(),
	)
	if err != nil {
		return ledger.StudentPaymentPlan{}, trapConstraintErr(
			err, "inserting assignment", ledger.ErrConcurrentAssignment, ledger.ErrNotFound,
		)
	}
	return row.unboil(), nil
}

func (repo *ledgerRepository) GetAssignment(ctx context.Context, id int) (ledger.StudentPaymentPlan, error) {
	var row assignmentRow
	err := repo.exec.GetContext(ctx, &row, "SELECT "+assignmentColumns+" FROM student_payment_plans WHERE id = $1", id)
	if err != nil {
		return ledger.StudentPaymentPlan{}, trapNoRowsErr(err, "selecting assignment")
	}
	return row.unboil(), nil
}

func (repo *ledgerRepository) GetActiveAssignment(ctx context.Context, studentID int) (ledger.StudentPaymentPlan, error) {
	var row assignmentRow
	err := repo.exec.GetContext(ctx, &row,
		"SELECT "+assignmentColumns+" FROM student_payment_plans WHERE student_id = $1 AND is_active", studentID)
	if err != nil {
		return ledger.StudentPaymentPlan{}, trapNoRowsErr(err, "selecting active assignment")
	}
	return row.unboil(), nil
}

func (repo *ledgerRepository) QueryAssignments(ctx context.Context, studentID int) ([]ledger.StudentPaymentPlan, error) {
	var rows []assignmentRow
	err := repo.exec.SelectContext(ctx, &rows,
		"SELECT "+assignmentColumns+" FROM student_payment_plans WHERE student_id = $1 ORDER BY id DESC", studentID)
	if err != nil {
		return nil, errors.Wrap(err, "selecting assignments")
	}
	spps := make([]ledger.StudentPaymentPlan, 0, len(rows))
	for _, r := range rows {
		spps = append(spps, r.unboil())
	}
	return spps, nil
}

func (repo *ledgerRepository) DeactivateAssignments(ctx context.Context, studentID int, endDate time.Time) (int, error) {
	res, err := repo.exec.ExecContext(ctx,
		"UPDATE student_payment_plans SET is_active = FALSE, end_date = $2 WHERE student_id = $1 AND is_active",
		studentID, endDate.UTC())
	if err != nil {
		return 0, errors.Wrap(err, "deactivating assignments")
	}
	return rowsAffected(res, "deactivating assignments")
}

// Fee types

func (repo *ledgerRepository) CreateFeeType(ctx context.Context, ft ledger.FeeType) (ledger.FeeType, error) {
	var row feeTypeRow
	err := repo.exec.GetContext(ctx, &row,
		"INSERT INTO fee_types (name, description, created_at) VALUES ($1, $2, $3) RETURNING "+feeTypeColumns,
		ft.Name, ft.Description, ft.CreatedAt.UTC())
	if err != nil {
		return ledger.FeeType{}, trapConstraintErr(err, "inserting fee type", ledger.ErrFeeTypeExists, nil)
	}
	return row.unboil(), nil
}

func (repo *ledgerRepository) GetFeeType(ctx context.Context, id int) (ledger.FeeType, error) {
	var row feeTypeRow
	if err := repo.exec.GetContext(ctx, &row, "SELECT "+feeTypeColumns+" FROM fee_types WHERE id = $1", id); err != nil {
		return ledger.FeeType{}, trapNoRowsErr(err, "selecting fee type")
	}
	return row.unboil(), nil
}

func (repo *ledgerRepository) QueryFeeTypes(ctx context.Context) ([]ledger.FeeType, error) {
	var rows []feeTypeRow
	if err := repo.exec.SelectContext(ctx, &rows, "SELECT "+feeTypeColumns+" FROM fee_types ORDER BY name"); err != nil {
		return nil, errors.Wrap(err, "selecting fee types")
	}
	types := make([]ledger.FeeType, 0, len(rows))
	for _, r := range rows {
		types = append(types, r.unboil())
	}
	return types, nil
}

func (repo *ledgerRepository) GetFeeTypesByName(ctx context.Context, names ...string) (map[string]ledger.FeeType, error) {
	types := make(map[string]ledger.FeeType, len(names))
	if len(names) == 0 {
		return types, nil
	}
	var rows []feeTypeRow
	err := repo.exec.SelectContext(ctx, &rows,
		"SELECT "+feeTypeColumns+" FROM fee_types WHERE name = ANY($1)", pq.Array(names))
	if err != nil {
		return nil, errors.Wrap(err, "selecting fee types by name")
	}
	for _, r := range rows {
		types[r.Name] = r.unboil()
	}
	return types, nil
}

// Fees

// CreateFees inserts fees with a single statement.
func (repo *ledgerRepository) CreateFees(ctx context.Context, fees []ledger.Fee) ([]ledger.Fee, error) {
	if len(fees) == 0 {
		return []ledger.Fee{}, nil
	}

	const cols = 9
	values := make([]string, 0, len(fees))
	args := make([]interface{}, 0, len(fees)*cols)
	for i, fee := range fees {
		ph := make([]string, cols)
		for j := range ph {
			ph[j] = fmt.Sprintf("$%d", i*cols+j+1)
		}
		values = append(values, "("+strings.Join(ph, ", ")+")")
		args = append(args,
			fee.StudentID, fee.FeeTypeID, fee.StudentPaymentPlanID, fee.InstallmentNumber, fee.Description,
			fee.Amount, ledger.DateOf(fee.DueDate), string(fee.Status), fee.CreatedAt.UTC(),
		)
	}

	var rows []feeRow
	err := repo.exec.SelectContext(ctx, &rows, `
		INSERT INTO fees (student_id, fee_type_id, student_payment_plan_id, installment_number, description,
			amount, due_date, status, created_at)
		VALUES `+strings.Join(values, ", ")+`
		RETURNING `+feeColumns,
		args...,
	)
	if err != nil {
		return nil, trapConstraintErr(err, "inserting fees", nil, ledger.ErrNotFound)
	}

	sort.Slice(rows, func(i, j int) bool { return rows[i].ID < rows[j].ID })
	created := make([]ledger.Fee, 0, len(rows))
	for _, r := range rows {
		created = append(created, r.unboil())
	}
	return created, nil
}

func (repo *ledgerRepository) getFee(ctx context.Context, id int, lock bool) (ledger.Fee, error) {
	q := "SELECT " + feeColumns + " FROM fees WHERE id = $1"
	if lock {
		q += " FOR UPDATE"
	}
	var row feeRow
	if err := repo.exec.GetContext(ctx, &row, q, id); err != nil {
		return ledger.Fee{}, trapNoRowsErr(err, "selecting fee")
	}
	return row.unboil(), nil
}

func (repo *ledgerRepository) GetFee(ctx context.Context, id int) (ledger.Fee, error) {
	return repo.getFee(ctx, id, false)
}

func (repo *ledgerRepository) LockFee(ctx context.Context, id int) (ledger.Fee, error) {
	return repo.getFee(ctx, id, true)
}

func (repo *ledgerRepository) QueryFees(ctx context.Context, filter ledger.FeeFilter) ([]ledger.Fee, error) {
	var (
		conds []string
		args  []interface{}
	)
	where := func(cond string, arg interface{}) {
		args = append(args, arg)
		conds = append(conds, fmt.Sprintf(cond, len(args)))
	}
	if filter.StudentID != 0 {
		where("student_id = $%d", filter.StudentID)
	}
	if filter.AssignmentID != 0 {
		where("student_payment_plan_id = $%d", filter.AssignmentID)
	}
	if len(filter.Statuses) > 0 {
		statuses := make([]string, 0, len(filter.Statuses))
		for _, s := range filter.Statuses {
			statuses = append(statuses, string(s))
		}
		where("status = ANY($%d)", pq.Array(statuses))
	}
	if !filter.DueFrom.IsZero() {
		where("due_date >= $%d", ledger.DateOf(filter.DueFrom))
	}
	if !filter.DueTo.IsZero() {
		where("due_date <= $%d", ledger.DateOf(filter.DueTo))
	}

	q := "SELECT " + feeColumns + " FROM fees"
	if len(conds) > 0 {
		q += " WHERE " + strings.Join(conds, " AND ")
	}
	q += " ORDER BY due_date, id"

	var rows []feeRow
	if err := repo.exec.SelectContext(ctx, &rows, q, args...); err != nil {
		return nil, errors.Wrap(err, "selecting fees")
	}
	fees := make([]ledger.Fee, 0, len(rows))
	for _, r := range rows {
		fees = append(fees, r.unboil())
	}
	return fees, nil
}

func (repo *ledgerRepository) UpdateFeeStatus(ctx context.Context, id int, status ledger.FeeStatus) error {
	res, err := repo.exec.ExecContext(ctx, "UPDATE fees SET status = $2 WHERE id = $1", id, string(status))
	if err != nil {
		return errors.Wrap(err, "updating fee status")
	}
	n, err := rowsAffected(res, "updating fee status")
	if err != nil {
		return err
	}
	if n == 0 {
		return ledger.ErrNotFound
	}
	return nil
}

func (repo *ledgerRepository) DeleteFee(ctx context.Context, id int) error {
	res, err := repo.exec.ExecContext(ctx, "DELETE FROM fees WHERE id = $1", id)
	if err != nil {
		return trapConstraintErr(err, "deleting fee", nil, ledger.ErrHasPayments)
	}
	n, err := rowsAffected(res, "deleting fee")
	if err != nil {
		return err
	}
	if n == 0 {
		return ledger.ErrNotFound
	}
	return nil
}

func (repo *ledgerRepository) MarkOverdueFees(ctx context.Context, asOf time.Time) (int, error) {
	res, err := repo.exec.ExecContext(ctx,
		"UPDATE fees SET status = $1 WHERE status = ANY($2) AND due_date < $3",
		string(ledger.StatusOverdue),
		pq.Array([]string{string(ledger.StatusPending), string(ledger.StatusPartial)}),
		ledger.DateOf(asOf),
	)
	if err != nil {
		return 0, errors.Wrap(err, "marking overdue fees")
	}
	return rowsAffected(res, "marking overdue fees")
}

// Payments

func (repo *ledgerRepository) CreatePayment(ctx context.Context, pmt ledger.Payment) (ledger.Payment, error) {
	var row paymentRow
	err := repo.exec.GetContext(ctx, &row, `
		INSERT INTO payments (fee_id, student_id, amount, method, reference, paid_at, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING `+paymentColumns,
		pmt.FeeID, pmt.StudentID, pmt.Amount, string(pmt.Method), pmt.Reference, pmt.PaidAt.UTC(), pmt.CreatedAt.UTC(),
	)
	if err != nil {
		return ledger.Payment{}, trapConstraintErr(err, "inserting payment", nil, ledger.ErrNotFound)
	}
	return row.unboil(), nil
}

func (repo *ledgerRepository) queryPayments(ctx context.Context, column string, id int) ([]ledger.Payment, error) {
	var rows []paymentRow
	err := repo.exec.SelectContext(ctx, &rows,
		"SELECT "+paymentColumns+" FROM payments WHERE "+column+" = $1 ORDER BY id", id)
	if err != nil {
		return nil, errors.Wrap(err, "selecting payments")
	}
	payments := make([]ledger.Payment, 0, len(rows))
	for _, r := range rows {
		payments = append(payments, r.unboil())
	}
	return payments, nil
}

func (repo *ledgerRepository) QueryPayments(ctx context.Context, feeID int) ([]ledger.Payment, error) {
	return repo.queryPayments(ctx, "fee_id", feeID)
}

func (repo *ledgerRepository) QueryPaymentsByStudent(ctx context.Context, studentID int) ([]ledger.Payment, error) {
	return repo.queryPayments(ctx, "student_id", studentID)
}

func (repo *ledgerRepository) CountPayments(ctx context.Context, feeID int) (int, error) {
	var count int
	if err := repo.exec.GetContext(ctx, &count, "SELECT COUNT(*) FROM payments WHERE fee_id = $1", feeID); err != nil {
		return 0, errors.Wrap(err, "counting payments")
	}
	return count, nil
}

// CreateStudent registers a student row. The ledger never writes students; seeding and tests do.
func CreateStudent(ctx context.Context, exec core.DBExecutor, name string) (ledger.Student, error) {
	var row studentRow
	err := exec.GetContext(ctx, &row, "INSERT INTO students (name) VALUES ($1) RETURNING id, name", name)
	if err != nil {
		return ledger.Student{}, errors.Wrap(err, "inserting student")
	}
	return ledger.Student{ID: row.ID, Name: row.Name}, nil
}
