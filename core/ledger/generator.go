package ledger

import (
	"context"
	"fmt"
	"time"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"github.com/volatiletech/null/v8"

	"github.com/trezcool/colegio/core"
)

const (
	reasonMissingFeeType = "fee type %q not found"
	reasonFullDiscount   = "tuition is fully discounted"
)

// Generator expands an assignment into its fee schedule.
type Generator struct {
	catalog Catalog
	log     core.Logger
}

func NewGenerator(catalog Catalog, log core.Logger) *Generator {
	return &Generator{catalog: catalog, log: log}
}

// GenerateResult holds the persisted fees and the charges left out.
type GenerateResult struct {
	Fees      []Fee
	Count     int
	Omissions []Omission
}

// Generate builds and persists the fees of an assignment in one batch.
// It is not idempotent: every call creates a new set of fees.
func (g *Generator) Generate(ctx context.Context, repo Repository, studentID, assignmentID int, start time.Time) (GenerateResult, error) {
	spp, err := repo.GetAssignment(ctx, assignmentID)
	if err != nil {
		return GenerateResult{}, errors.Wrap(err, "loading assignment")
	}
	if spp.StudentID != studentID {
		return GenerateResult{}, errors.Wrapf(ErrNotFound, "assignment #%d of student #%d", assignmentID, studentID)
	}
	plan, err := repo.GetPlan(ctx, spp.PaymentPlanID)
	if err != nil {
		return GenerateResult{}, errors.Wrap(err, "loading payment plan")
	}
	types, err := repo.GetFeeTypesByName(ctx, g.catalog.Names()...)
	if err != nil {
		return GenerateResult{}, errors.Wrap(err, "loading fee types")
	}

	fees, omissions := BuildFees(plan, spp, g.catalog, types, start)
	for _, o := range omissions {
		g.log.Warn("fee generation: "+o.String(), map[string]interface{}{
			"student_id":    studentID,
			"assignment_id": assignmentID,
			"fee_type":      o.FeeTypeName,
		})
	}

	if len(fees) > 0 {
		now := nowFunc().UTC()
		for i := range fees {
			fees[i].CreatedAt = now
		}
		if fees, err = repo.CreateFees(ctx, fees); err != nil {
			return GenerateResult{}, errors.Wrap(err, "inserting fees")
		}
	}
	return GenerateResult{Fees: fees, Count: len(fees), Omissions: omissions}, nil
}

// BuildFees computes the fees owed under an assignment, in order: enrollment, tuition installments, then
// the one-off materials, uniform and transport charges. It does no I/O.
func BuildFees(plan PaymentPlan, spp StudentPaymentPlan, catalog Catalog, types map[string]FeeType, start time.Time) ([]Fee, []Omission) {
	var (
		fees      = make([]Fee, 0, plan.Installments+4)
		omissions []Omission
		resolved  = catalog.Resolve(types)
	)

	newFee := func(ft FeeType, number int, desc string, amount decimal.Decimal, due time.Time) Fee {
		return Fee{
			StudentID:            spp.StudentID,
			FeeTypeID:            ft.ID,
			StudentPaymentPlanID: null.IntFrom(spp.ID),
			InstallmentNumber:    number,
			Description:          desc,
			Amount:               amount,
			DueDate:              due,
			Status:               StatusPending,
		}
	}
	omit := func(kind ChargeKind, amount decimal.Decimal, reason string) {
		omissions = append(omissions, Omission{Kind: kind, FeeTypeName: catalog[kind], Amount: amount, Reason: reason})
	}
	oneOff := func(kind ChargeKind, amount decimal.Decimal) {
		if !amount.IsPositive() {
			return
		}
		ft, ok := resolved[kind]
		if !ok {
			omit(kind, amount, fmt.Sprintf(reasonMissingFeeType, catalog[kind]))
			return
		}
		fees = append(fees, newFee(ft, 0, fmt.Sprintf("%s - %s", ft.Name, plan.Name), amount, start))
	}

	oneOff(ChargeEnrollment, plan.EnrollmentFee)

	if plan.Installments > 0 {
		amount := spp.InstallmentAmount(plan)
		ft, ok := resolved[ChargeTuition]
		switch {
		case !ok:
			omit(ChargeTuition, amount, fmt.Sprintf(reasonMissingFeeType, catalog[ChargeTuition]))
		case !amount.IsPositive():
			omit(ChargeTuition, amount, reasonFullDiscount)
		default:
			for i := 1; i <= plan.Installments; i++ {
				desc := fmt.Sprintf("%s %d/%d - %s", ft.Name, i, plan.Installments, plan.Name)
				fees = append(fees, newFee(ft, i, desc, amount, DueDate(start, i, plan.Frequency)))
			}
		}
	}

	oneOff(ChargeMaterials, plan.MaterialsCharge)
	oneOff(ChargeUniform, plan.UniformCharge)
	oneOff(ChargeTransport, plan.TransportCharge)

	return fees, omissions
}
