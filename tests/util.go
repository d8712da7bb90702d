package testutil

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/shopspring/decimal"

	"github.com/trezcool/colegio/core"
	"github.com/trezcool/colegio/core/finance"
	"github.com/trezcool/colegio/core/ledger"
	"github.com/trezcool/colegio/storage/database"
	inmemdb "github.com/trezcool/colegio/storage/database/inmem"
)

// Money parses a decimal amount, failing the test on bad input.
func Money(t *testing.T, s string) decimal.Decimal {
	t.Helper()
	d, err := decimal.NewFromString(s)
	if err != nil {
		t.Fatalf("Money(%q) failed: %v", s, err)
	}
	return d
}

func Date(year int, month time.Month, day int) time.Time {
	return time.Date(year, month, day, 0, 0, 0, 0, time.UTC)
}

func NewConfig() *core.Config {
	return core.LoadConfig("TEST")
}

// NewStore opens an empty in-memory database and returns its ledger store and finance repository.
func NewStore(t *testing.T) (*inmemdb.DB, ledger.Store, finance.Repository) {
	t.Helper()
	db, err := inmemdb.Open()
	if err != nil {
		t.Fatalf("inmemdb.Open() failed: %v", err)
	}
	return db, inmemdb.NewLedgerStore(db), inmemdb.NewFinanceRepository(db)
}

// OpenDB opens and migrates the TEST postgres database.
// The test is skipped unless TEST_DATABASE_HOST is set.
func OpenDB(t *testing.T) *sqlx.DB {
	t.Helper()
	if os.Getenv("TEST_DATABASE_HOST") == "" {
		t.Skip("TEST_DATABASE_HOST not set")
	}
	conf := NewConfig()
	if err := database.CreateIfNotExist(conf); err != nil {
		t.Fatalf("database.CreateIfNotExist() failed: %v", err)
	}
	db, err := database.Open(conf)
	if err != nil {
		t.Fatalf("database.Open() failed: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	if err = database.Migrate(context.Background(), db); err != nil {
		t.Fatalf("database.Migrate() failed: %v", err)
	}
	ResetDB(t, db)
	return db
}

// ResetDB empties every ledger table.
func ResetDB(t *testing.T, db *sqlx.DB) {
	t.Helper()
	_, err := db.Exec(`TRUNCATE transactions, payments, fees, fee_types, student_payment_plans, payment_plans, students
		RESTART IDENTITY CASCADE`)
	if err != nil {
		t.Fatalf("ResetDB() failed: %v", err)
	}
}

// StandardPlan returns a monthly plan of 10 installments of 100000 plus every one-off charge.
func StandardPlan() ledger.PaymentPlan {
	return ledger.PaymentPlan{
		Name:            "Primaria 2025",
		Description:     "Plan anual de primaria",
		EnrollmentFee:   decimal.NewFromInt(50000),
		TuitionAmount:   decimal.NewFromInt(100000),
		Frequency:       ledger.FrequencyMonthly,
		Installments:    10,
		MaterialsCharge: decimal.NewFromInt(20000),
		UniformCharge:   decimal.NewFromInt(30000),
		TransportCharge: decimal.NewFromInt(15000),
		DiscountPercent: decimal.Zero,
	}
}

func CreatePlan(t *testing.T, repo ledger.Repository, plan ledger.PaymentPlan) ledger.PaymentPlan {
	t.Helper()
	now := time.Now().UTC()
	plan.CreatedAt, plan.UpdatedAt = now, now
	plan, err := repo.CreatePlan(context.Background(), plan)
	if err != nil {
		t.Fatalf("CreatePlan() failed: %v", err)
	}
	return plan
}

// SeedFeeTypes creates the fee types of the given kinds (all of them when none is given).
func SeedFeeTypes(t *testing.T, repo ledger.Repository, catalog ledger.Catalog, kinds ...ledger.ChargeKind) map[ledger.ChargeKind]ledger.FeeType {
	t.Helper()
	if len(kinds) == 0 {
		kinds = ledger.ChargeKinds
	}
	types := make(map[ledger.ChargeKind]ledger.FeeType, len(kinds))
	for _, kind := range kinds {
		ft, err := repo.CreateFeeType(context.Background(), ledger.FeeType{Name: catalog[kind], CreatedAt: time.Now().UTC()})
		if err != nil {
			t.Fatalf("CreateFeeType(%s) failed: %v", kind, err)
		}
		types[kind] = ft
	}
	return types
}

// CreateFee creates a PENDING one-off fee.
func CreateFee(t *testing.T, repo ledger.Repository, studentID, feeTypeID int, amount decimal.Decimal, due time.Time) ledger.Fee {
	t.Helper()
	fees, err := repo.CreateFees(context.Background(), []ledger.Fee{{
		StudentID:   studentID,
		FeeTypeID:   feeTypeID,
		Description: "test fee",
		Amount:      amount,
		DueDate:     due,
		Status:      ledger.StatusPending,
		CreatedAt:   time.Now().UTC(),
	}})
	if err != nil {
		t.Fatalf("CreateFees() failed: %v", err)
	}
	return fees[0]
}
