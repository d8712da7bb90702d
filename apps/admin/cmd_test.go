package main

import (
	"bytes"
	"context"
	"database/sql"
	"fmt"
	"strconv"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trezcool/colegio/core/ledger"
	logsvc "github.com/trezcool/colegio/services/logger"
	inmemdb "github.com/trezcool/colegio/storage/database/inmem"
	testutil "github.com/trezcool/colegio/tests"
)

type fixture struct {
	cli   *commandLine
	db    *inmemdb.DB
	store ledger.Store
	out   *bytes.Buffer
}

func setup(t *testing.T) *fixture {
	db, store, fin := testutil.NewStore(t)
	out := new(bytes.Buffer)
	return &fixture{
		cli: &commandLine{
			ledgerSvc: ledger.NewService(store, fin, logsvc.NopLogger{}, testutil.NewConfig()),
			addStudent: func(_ context.Context, name string) (ledger.Student, error) {
				return db.CreateStudent(name), nil
			},
			out: out,
		},
		db:    db,
		store: store,
		out:   out,
	}
}

type cliTest struct {
	name       string
	args       []string // without program name
	wantErr    error
	wantErrStr string
}

func (tt cliTest) check(t *testing.T, err error) {
	t.Helper()
	if err == nil {
		if tt.wantErr != nil || tt.wantErrStr != "" {
			t.Errorf("cli.run() error = nil, wantErr %v %s", tt.wantErr, tt.wantErrStr)
		}
		return
	}
	switch {
	case tt.wantErr != nil:
		if err != tt.wantErr {
			t.Errorf("cli.run() error = %v, wantErr %v", err, tt.wantErr)
		}
	case tt.wantErrStr != "":
		if err.Error() != tt.wantErrStr {
			t.Errorf("cli.run() error.Error() = %s, wantErrStr %s", err.Error(), tt.wantErrStr)
		}
	default:
		t.Errorf("cli.run() unexpected error = %v", err)
	}
}

func Test_commandLine_usage(t *testing.T) {
	f := setup(t)
	tests := []cliTest{
		{name: "no command", wantErr: errHelp},
		{name: "unknown command", args: []string{"lol"}, wantErr: errHelp},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tt.check(t, f.cli.run(append([]string{"admin"}, tt.args...)))
		})
	}
	assert.Contains(t, f.out.String(), "Usage:")
}

func Test_commandLine_migrate(t *testing.T) {
	f := setup(t)

	orig := runMigrationsFunc
	t.Cleanup(func() { runMigrationsFunc = orig })
	runMigrationsFunc = func(_ context.Context, _ *sql.DB, command string, args ...string) error {
		switch command {
		case "up", "up-by-one", "down", "fix", "redo", "reset", "status", "version": // pass
		case "up-to", "down-to":
			if len(args) == 0 {
				return fmt.Errorf("%s must be of form: goose [OPTIONS] DRIVER DBSTRING %s VERSION", command, command)
			}
			if _, err := strconv.ParseInt(args[0], 10, 64); err != nil {
				return fmt.Errorf("version must be a number (got '%s')", args[0])
			}
		default:
			return fmt.Errorf("%q: no such command", command)
		}
		return nil
	}

	tests := []cliTest{
		{name: "no subcommand", args: []string{"migrate"}, wantErr: errHelp},
		{name: "unknown subcommand", args: []string{"migrate", "lol"}, wantErrStr: "\"lol\": no such command"},
		{name: "up-to: no args", args: []string{"migrate", "up-to"}, wantErrStr: "up-to must be of form: goose [OPTIONS] DRIVER DBSTRING up-to VERSION"},
		{name: "up-to: non-int arg", args: []string{"migrate", "up-to", "lol"}, wantErrStr: "version must be a number (got 'lol')"},
		{name: "down-to: no args", args: []string{"migrate", "down-to"}, wantErrStr: "down-to must be of form: goose [OPTIONS] DRIVER DBSTRING down-to VERSION"},
		{name: "up", args: []string{"migrate", "up"}},
		{name: "up-by-one", args: []string{"migrate", "up-by-one"}},
		{name: "up-to", args: []string{"migrate", "up-to", "1"}},
		{name: "down", args: []string{"migrate", "down"}},
		{name: "down-to", args: []string{"migrate", "down-to", "0"}},
		{name: "redo", args: []string{"migrate", "redo"}},
		{name: "reset", args: []string{"migrate", "reset"}},
		{name: "status", args: []string{"migrate", "status"}},
		{name: "version", args: []string{"migrate", "version"}},
		{name: "fix", args: []string{"migrate", "fix"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tt.check(t, f.cli.run(append([]string{"admin"}, tt.args...)))
		})
	}
}

func Test_commandLine_seedFeeTypes(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	require.NoError(t, f.cli.run([]string{"admin", "seedfeetypes"}))
	types, err := f.store.QueryFeeTypes(ctx)
	require.NoError(t, err)
	assert.Len(t, types, len(ledger.ChargeKinds))
	assert.Contains(t, f.out.String(), "5 fee type(s) created")

	// idempotent
	f.out.Reset()
	require.NoError(t, f.cli.run([]string{"admin", "seedfeetypes"}))
	types, err = f.store.QueryFeeTypes(ctx)
	require.NoError(t, err)
	assert.Len(t, types, len(ledger.ChargeKinds))
	assert.Contains(t, f.out.String(), "0 fee type(s) created")
}

func Test_commandLine_markOverdue(t *testing.T) {
	f := setup(t)
	student := f.db.CreateStudent("Ana Torres")
	types := testutil.SeedFeeTypes(t, f.store, ledger.DefaultCatalog(), ledger.ChargeTransport)
	typeID := types[ledger.ChargeTransport].ID
	jan := testutil.CreateFee(t, f.store, student.ID, typeID, decimal.NewFromInt(15000), testutil.Date(2025, 1, 1))
	mar := testutil.CreateFee(t, f.store, student.ID, typeID, decimal.NewFromInt(15000), testutil.Date(2025, 3, 1))

	orig := nowFunc
	t.Cleanup(func() { nowFunc = orig })
	nowFunc = func() time.Time { return time.Date(2025, 2, 1, 9, 0, 0, 0, time.UTC) }

	tests := []cliTest{
		{name: "bad date", args: []string{"markoverdue", "-asof", "01/02/2025"}, wantErr: errHelp},
		{name: "unknown flag", args: []string{"markoverdue", "-lol"}, wantErr: errHelp},
		{name: "default to today", args: []string{"markoverdue"}},
		{name: "explicit date", args: []string{"markoverdue", "-asof", "2025-04-01"}},
	}
	want := []map[int]ledger.FeeStatus{
		{jan.ID: ledger.StatusPending, mar.ID: ledger.StatusPending},
		{jan.ID: ledger.StatusPending, mar.ID: ledger.StatusPending},
		{jan.ID: ledger.StatusOverdue, mar.ID: ledger.StatusPending},
		{jan.ID: ledger.StatusOverdue, mar.ID: ledger.StatusOverdue},
	}
	for i, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tt.check(t, f.cli.run(append([]string{"admin"}, tt.args...)))
			for id, status := range want[i] {
				fee, err := f.store.GetFee(context.Background(), id)
				require.NoError(t, err)
				assert.Equal(t, status, fee.Status, "fee #%d", id)
			}
		})
	}
}

func Test_commandLine_addStudent(t *testing.T) {
	f := setup(t)
	tests := []cliTest{
		{name: "no name", args: []string{"addstudent"}, wantErr: errHelp},
		{name: "blank name", args: []string{"addstudent", "-name", "  "}, wantErr: errHelp},
		{name: "register", args: []string{"addstudent", "-name", " Luis Pérez "}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tt.check(t, f.cli.run(append([]string{"admin"}, tt.args...)))
		})
	}
	assert.Contains(t, f.out.String(), `student "Luis Pérez" registered`)

	_, err := f.store.GetStudent(context.Background(), 1)
	assert.NoError(t, err)
}
