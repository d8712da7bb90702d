package main

import (
	"context"
	"database/sql"
	"errors"
	"flag"
	"fmt"
	"io"
	"time"

	"github.com/trezcool/colegio/core/ledger"
)

const dateLayout = "2006-01-02"

var (
	nowFunc = time.Now // mockable

	errHelp = errors.New("help provided")
)

type commandLine struct {
	db         *sql.DB
	ledgerSvc  *ledger.Service
	addStudent func(ctx context.Context, name string) (ledger.Student, error)
	out        io.Writer
}

func (cli *commandLine) printUsage() {
	fmt.Fprintln(cli.out, "Usage:")
	fmt.Fprintln(cli.out, "  migrate COMMAND [ARGS...]  - run a goose command: up, up-by-one, up-to, down, down-to, redo, reset, status, version, fix")
	fmt.Fprintln(cli.out, "  seedfeetypes               - create the missing fee types of the charge catalog")
	fmt.Fprintln(cli.out, "  markoverdue [-asof DATE]   - flag unpaid fees due before DATE (YYYY-MM-DD, default today) as OVERDUE")
	fmt.Fprintln(cli.out, "  addstudent -name NAME      - register a student")
}

func (cli *commandLine) run(args []string) error {
	if len(args) < 2 {
		cli.printUsage()
		return errHelp
	}

	markOverdueCmd := flag.NewFlagSet("markoverdue", flag.ContinueOnError)
	markOverdueCmd.SetOutput(cli.out)
	markOverdueAsOf := markOverdueCmd.String("asof", "", "Fees due before this date (YYYY-MM-DD) are overdue. Defaults to today.")

	addStudentCmd := flag.NewFlagSet("addstudent", flag.ContinueOnError)
	addStudentCmd.SetOutput(cli.out)
	addStudentName := addStudentCmd.String("name", "", "The student's full name.")

	ctx := context.Background()

	switch args[1] {
	case "migrate":
		if len(args) < 3 {
			cli.printUsage()
			return errHelp
		}
		return cli.migrate(ctx, args[2:])
	case "seedfeetypes":
		return cli.seedFeeTypes(ctx)
	case "markoverdue":
		if err := markOverdueCmd.Parse(args[2:]); err != nil {
			return errHelp
		}
		asOf := nowFunc()
		if *markOverdueAsOf != "" {
			t, err := time.Parse(dateLayout, *markOverdueAsOf)
			if err != nil {
				markOverdueCmd.Usage()
				return errHelp
			}
			asOf = t
		}
		return cli.markOverdue(ctx, asOf)
	case "addstudent":
		if err := addStudentCmd.Parse(args[2:]); err != nil {
			return errHelp
		}
		if *addStudentName == "" {
			addStudentCmd.Usage()
			return errHelp
		}
		return cli.registerStudent(ctx, *addStudentName)
	default:
		cli.printUsage()
		return errHelp
	}
}
