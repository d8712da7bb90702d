package main

import (
	"context"
	"fmt"
	"os"

	"github.com/trezcool/colegio/core"
	"github.com/trezcool/colegio/core/ledger"
	logsvc "github.com/trezcool/colegio/services/logger"
	"github.com/trezcool/colegio/storage/database"
	sqlxrepos "github.com/trezcool/colegio/storage/database/sqlx"
)

func main() {
	conf := core.NewConfig()

	logger, err := logsvc.New(conf, "ADMIN")
	if err != nil {
		fmt.Fprintf(os.Stderr, "setting up logger: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = logsvc.Sync(logger) }()

	// set up DB
	if err = database.CreateIfNotExist(conf); err != nil {
		logger.Fatal(fmt.Sprintf("setting up database: %v", err), err)
	}
	db, err := database.Open(conf)
	if err != nil {
		logger.Fatal(fmt.Sprintf("opening database: %v", err), err)
	}
	defer func() { _ = db.Close() }()

	// start CLI
	cli := commandLine{
		db: db.DB,
		ledgerSvc: ledger.NewService(
			sqlxrepos.NewLedgerStore(db),
			sqlxrepos.NewFinanceRepository(db),
			logger,
			conf,
		),
		addStudent: func(ctx context.Context, name string) (ledger.Student, error) {
			return sqlxrepos.CreateStudent(ctx, db, name)
		},
		out: os.Stdout,
	}
	if err = cli.run(os.Args); err != nil {
		if err != errHelp {
			logger.Error(fmt.Sprintf("%s failed", os.Args[1]), err)
		}
		_ = db.Close()
		_ = logsvc.Sync(logger)
		os.Exit(1)
	}
}
