package sqlxrepos_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/volatiletech/null/v8"

	"github.com/trezcool/colegio/core/finance"
	"github.com/trezcool/colegio/core/ledger"
	logsvc "github.com/trezcool/colegio/services/logger"
	sqlxrepos "github.com/trezcool/colegio/storage/database/sqlx"
	testutil "github.com/trezcool/colegio/tests"
)

type pgFixture struct {
	db      *sqlx.DB
	store   ledger.Store
	finance finance.Repository
	svc     *ledger.Service
	types   map[ledger.ChargeKind]ledger.FeeType
	student ledger.Student
	plan    ledger.PaymentPlan
}

func setup(t *testing.T) *pgFixture {
	db := testutil.OpenDB(t)
	store := sqlxrepos.NewLedgerStore(db)
	fin := sqlxrepos.NewFinanceRepository(db)

	student, err := sqlxrepos.CreateStudent(context.Background(), db, "Luis Pérez")
	require.NoError(t, err)

	return &pgFixture{
		db:      db,
		store:   store,
		finance: fin,
		svc:     ledger.NewService(store, fin, logsvc.NopLogger{}, testutil.NewConfig()),
		types:   testutil.SeedFeeTypes(t, store, ledger.DefaultCatalog()),
		student: student,
		plan:    testutil.CreatePlan(t, store, testutil.StandardPlan()),
	}
}

func TestLedgerStore_AssignPlan(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	asg, err := f.svc.AssignPlan(ctx, ledger.AssignPlan{
		StudentID:     f.student.ID,
		PaymentPlanID: f.plan.ID,
		StartDate:     nullDate(2025, 1, 15),
	})
	require.NoError(t, err)
	assert.Equal(t, 14, asg.FeesGenerated)

	fees, err := f.store.QueryFees(ctx, ledger.FeeFilter{AssignmentID: asg.ID})
	require.NoError(t, err)
	require.Len(t, fees, 14)
	for _, fee := range fees {
		assert.Equal(t, ledger.StatusPending, fee.Status)
		assert.True(t, fee.StudentPaymentPlanID.Valid)
	}

	// reassigning supersedes the active assignment
	again, err := f.svc.AssignPlan(ctx, ledger.AssignPlan{StudentID: f.student.ID, PaymentPlanID: f.plan.ID})
	require.NoError(t, err)
	active, err := f.store.GetActiveAssignment(ctx, f.student.ID)
	require.NoError(t, err)
	assert.Equal(t, again.ID, active.ID)

	history, err := f.store.QueryAssignments(ctx, f.student.ID)
	require.NoError(t, err)
	require.Len(t, history, 2)
	assert.False(t, history[1].IsActive)
	assert.True(t, history[1].EndDate.Valid)
}

func TestLedgerStore_CreateAssignment_oneActive(t *testing.T) {
	f := setup(t)

	spp := ledger.StudentPaymentPlan{
		StudentID:     f.student.ID,
		PaymentPlanID: f.plan.ID,
		StartDate:     testutil.Date(2025, 1, 1),
		IsActive:      true,
		CreatedAt:     time.Now().UTC(),
	}
	_, err := f.store.CreateAssignment(context.Background(), spp)
	require.NoError(t, err)

	_, err = f.store.CreateAssignment(context.Background(), spp)
	assert.True(t, errors.Is(err, ledger.ErrConcurrentAssignment), "error = %v", err)
}

func TestLedgerStore_RecordPayment_concurrent(t *testing.T) {
	f := setup(t)
	fee := testutil.CreateFee(t, f.store, f.student.ID, f.types[ledger.ChargeMaterials].ID,
		decimal.NewFromInt(100000), testutil.Date(2025, 2, 1))

	const writers = 20
	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		accepted int
	)
	wg.Add(writers)
	for i := 0; i < writers; i++ {
		go func() {
			defer wg.Done()
			_, err := f.svc.RecordPayment(context.Background(), ledger.RecordPayment{
				FeeID:     fee.ID,
				StudentID: f.student.ID,
				Amount:    decimal.NewFromInt(10000),
				Method:    ledger.MethodTransfer,
			})
			var exceeds *ledger.ExceedsBalanceError
			if err != nil && !errors.As(err, &exceeds) {
				t.Errorf("RecordPayment() unexpected error = %v", err)
				return
			}
			if err == nil {
				mu.Lock()
				accepted++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 10, accepted)
	stmt, err := f.svc.GetFee(context.Background(), fee.ID)
	require.NoError(t, err)
	assert.Equal(t, ledger.StatusPaid, stmt.Status)
	assert.True(t, stmt.TotalPaid.Equal(fee.Amount), "total paid = %s", stmt.TotalPaid)

	txns, err := f.finance.QueryTransactions(context.Background(), finance.QueryFilter{Type: finance.TypeIncome})
	require.NoError(t, err)
	assert.Len(t, txns, 10)
}

func TestLedgerStore_AssignPlan_concurrent(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	const writers = 10
	var wg sync.WaitGroup
	wg.Add(writers)
	for i := 0; i < writers; i++ {
		go func() {
			defer wg.Done()
			_, err := f.svc.AssignPlan(ctx, ledger.AssignPlan{StudentID: f.student.ID, PaymentPlanID: f.plan.ID})
			if err != nil {
				t.Errorf("AssignPlan() unexpected error = %v", err)
			}
		}()
	}
	wg.Wait()

	history, err := f.store.QueryAssignments(ctx, f.student.ID)
	require.NoError(t, err)
	require.Len(t, history, writers)
	var active int
	for _, spp := range history {
		if spp.IsActive {
			active++
		}
	}
	assert.Equal(t, 1, active)
	assert.True(t, history[0].IsActive, "the latest assignment must be the active one")

	fees, err := f.store.QueryFees(ctx, ledger.FeeFilter{StudentID: f.student.ID})
	require.NoError(t, err)
	assert.Len(t, fees, writers*14)
}

func TestLedgerStore_DeletePlan(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	first, err := f.svc.AssignPlan(ctx, ledger.AssignPlan{StudentID: f.student.ID, PaymentPlanID: f.plan.ID})
	require.NoError(t, err)
	other := testutil.CreatePlan(t, f.store, testutil.StandardPlan())
	_, err = f.svc.AssignPlan(ctx, ledger.AssignPlan{StudentID: f.student.ID, PaymentPlanID: other.ID})
	require.NoError(t, err)

	require.NoError(t, f.svc.DeletePlan(ctx, f.plan.ID))

	_, err = f.store.GetPlan(ctx, f.plan.ID)
	assert.True(t, errors.Is(err, ledger.ErrNotFound), "GetPlan() error = %v", err)
	history, err := f.store.QueryAssignments(ctx, f.student.ID)
	require.NoError(t, err)
	require.Len(t, history, 2)
	assert.Equal(t, first.ID, history[1].ID)
	fees, err := f.store.QueryFees(ctx, ledger.FeeFilter{AssignmentID: first.ID})
	require.NoError(t, err)
	assert.Len(t, fees, first.FeesGenerated)

	err = f.svc.DeletePlan(ctx, f.plan.ID)
	assert.True(t, errors.Is(err, ledger.ErrNotFound), "DeletePlan() error = %v", err)
}

func TestLedgerStore_DeletePlan_concurrentAssign(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	for round := 0; round < 10; round++ {
		plan := testutil.CreatePlan(t, f.store, testutil.StandardPlan())
		student, err := sqlxrepos.CreateStudent(ctx, f.db, "Ana Torres")
		require.NoError(t, err)

		var (
			wg                   sync.WaitGroup
			deleteErr, assignErr error
		)
		wg.Add(2)
		go func() {
			defer wg.Done()
			deleteErr = f.svc.DeletePlan(ctx, plan.ID)
		}()
		go func() {
			defer wg.Done()
			_, assignErr = f.svc.AssignPlan(ctx, ledger.AssignPlan{StudentID: student.ID, PaymentPlanID: plan.ID})
		}()
		wg.Wait()

		active, activeErr := f.store.GetActiveAssignment(ctx, student.ID)
		if deleteErr == nil {
			assert.True(t, errors.Is(assignErr, ledger.ErrNotFound), "round %d: AssignPlan() error = %v", round, assignErr)
			assert.True(t, errors.Is(activeErr, ledger.ErrNotFound), "round %d: active assignment of a deleted plan", round)
			continue
		}

		var inUse *ledger.InUseError
		require.True(t, errors.As(deleteErr, &inUse), "round %d: DeletePlan() error = %v", round, deleteErr)
		require.NoError(t, assignErr, "round %d", round)
		require.NoError(t, activeErr, "round %d", round)
		assert.Equal(t, plan.ID, active.PaymentPlanID)
		_, err = f.store.GetPlan(ctx, plan.ID)
		assert.NoError(t, err, "round %d: plan in use must survive", round)
	}
}

func TestLedgerStore_DeleteFee(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	fee := testutil.CreateFee(t, f.store, f.student.ID, f.types[ledger.ChargeUniform].ID,
		decimal.NewFromInt(30000), testutil.Date(2025, 2, 1))

	_, err := f.svc.RecordPayment(ctx, ledger.RecordPayment{
		FeeID: fee.ID, StudentID: f.student.ID, Amount: decimal.NewFromInt(100), Method: ledger.MethodCash,
	})
	require.NoError(t, err)

	err = f.store.DeleteFee(ctx, fee.ID)
	assert.True(t, errors.Is(err, ledger.ErrHasPayments), "error = %v", err)

	err = f.store.DeleteFee(ctx, fee.ID+1000)
	assert.True(t, errors.Is(err, ledger.ErrNotFound), "error = %v", err)
}

func TestLedgerStore_MarkOverdueFees(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	typeID := f.types[ledger.ChargeTransport].ID
	past := testutil.CreateFee(t, f.store, f.student.ID, typeID, decimal.NewFromInt(15000), testutil.Date(2025, 1, 1))
	testutil.CreateFee(t, f.store, f.student.ID, typeID, decimal.NewFromInt(15000), testutil.Date(2025, 3, 1))

	n, err := f.store.MarkOverdueFees(ctx, testutil.Date(2025, 2, 1))
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	overdue, err := f.store.QueryFees(ctx, ledger.FeeFilter{Statuses: []ledger.FeeStatus{ledger.StatusOverdue}})
	require.NoError(t, err)
	require.Len(t, overdue, 1)
	assert.Equal(t, past.ID, overdue[0].ID)
}

func TestLedgerStore_CreateFeeType_duplicate(t *testing.T) {
	f := setup(t)
	_, err := f.store.CreateFeeType(context.Background(), ledger.FeeType{
		Name:      f.types[ledger.ChargeTuition].Name,
		CreatedAt: time.Now().UTC(),
	})
	assert.True(t, errors.Is(err, ledger.ErrFeeTypeExists), "error = %v", err)
}

func nullDate(year int, month time.Month, day int) null.Time {
	return null.TimeFrom(testutil.Date(year, month, day))
}
