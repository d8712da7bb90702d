package main

import (
	"context"
	"fmt"
	"time"

	"github.com/pkg/errors"

	"github.com/trezcool/colegio/core"
)

// seedFeeTypes creates the catalog fee types that do not exist yet.
func (cli *commandLine) seedFeeTypes(ctx context.Context) error {
	created, err := cli.ledgerSvc.EnsureFeeTypes(ctx)
	if err != nil {
		return errors.Wrap(err, "seeding fee types")
	}
	for _, ft := range created {
		fmt.Fprintf(cli.out, "created fee type %q (#%d)\n", ft.Name, ft.ID)
	}
	fmt.Fprintf(cli.out, "%d fee type(s) created\n", len(created))
	return nil
}

func (cli *commandLine) markOverdue(ctx context.Context, asOf time.Time) error {
	count, err := cli.ledgerSvc.MarkOverdue(ctx, asOf)
	if err != nil {
		return err
	}
	fmt.Fprintf(cli.out, "%d fee(s) marked overdue as of %s\n", count, asOf.Format(dateLayout))
	return nil
}

func (cli *commandLine) registerStudent(ctx context.Context, name string) error {
	name = core.CleanString(name)
	if name == "" {
		return errHelp
	}
	s, err := cli.addStudent(ctx, name)
	if err != nil {
		return errors.Wrap(err, "adding student")
	}
	fmt.Fprintf(cli.out, "student %q registered (#%d)\n", s.Name, s.ID)
	return nil
}
