package inmemdb_test

import (
	"context"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trezcool/colegio/core/ledger"
	testutil "github.com/trezcool/colegio/tests"
)

func TestLedgerStore_RunInTx_rollback(t *testing.T) {
	_, store, _ := testutil.NewStore(t)
	ctx := context.Background()
	errBoom := errors.New("boom")

	err := store.RunInTx(ctx, func(repo ledger.Repository) error {
		if _, err := repo.CreatePlan(ctx, testutil.StandardPlan()); err != nil {
			return err
		}
		return errBoom
	})
	assert.Equal(t, errBoom, err)

	plans, err := store.QueryPlans(ctx)
	require.NoError(t, err)
	assert.Empty(t, plans)
}

func TestLedgerStore_readsWaitForUnitOfWork(t *testing.T) {
	_, store, _ := testutil.NewStore(t)
	ctx := context.Background()

	var (
		started = make(chan struct{})
		release = make(chan struct{})
		txErr   = make(chan error, 1)
		read    = make(chan []ledger.PaymentPlan, 1)
	)
	go func() {
		txErr <- store.RunInTx(ctx, func(repo ledger.Repository) error {
			if _, err := repo.CreatePlan(ctx, testutil.StandardPlan()); err != nil {
				return err
			}
			close(started)
			<-release
			return errors.New("rolled back")
		})
	}()

	<-started
	go func() {
		plans, err := store.QueryPlans(ctx)
		assert.NoError(t, err)
		read <- plans
	}()

	select {
	case plans := <-read:
		t.Fatalf("QueryPlans() returned %d plan(s) while a unit of work was running", len(plans))
	case <-time.After(50 * time.Millisecond):
	}

	close(release)
	assert.Error(t, <-txErr)
	assert.Empty(t, <-read, "rolled back plan must never be visible")
}

func TestLedgerStore_DeletePlan(t *testing.T) {
	db, store, _ := testutil.NewStore(t)
	ctx := context.Background()
	student := db.CreateStudent("Ana Torres")
	plan := testutil.CreatePlan(t, store, testutil.StandardPlan())

	spp, err := store.CreateAssignment(ctx, ledger.StudentPaymentPlan{
		StudentID: student.ID, PaymentPlanID: plan.ID, StartDate: testutil.Date(2025, 1, 1),
	})
	require.NoError(t, err)

	require.NoError(t, store.DeletePlan(ctx, plan.ID, time.Now()))

	_, err = store.GetPlan(ctx, plan.ID)
	assert.True(t, errors.Is(err, ledger.ErrNotFound))
	_, err = store.LockPlan(ctx, plan.ID)
	assert.True(t, errors.Is(err, ledger.ErrNotFound))
	history, err := store.QueryAssignments(ctx, student.ID)
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.Equal(t, spp.ID, history[0].ID)

	_, err = store.CreateAssignment(ctx, ledger.StudentPaymentPlan{
		StudentID: student.ID, PaymentPlanID: plan.ID, StartDate: testutil.Date(2025, 2, 1), IsActive: true,
	})
	assert.True(t, errors.Is(err, ledger.ErrNotFound), "assigning a deleted plan: %v", err)
	assert.True(t, errors.Is(store.DeletePlan(ctx, plan.ID, time.Now()), ledger.ErrNotFound))
}
