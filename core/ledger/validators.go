package ledger

import (
	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"

	"github.com/trezcool/colegio/core"
)

var (
	centsTag  = "cents"
	centsText = "amount cannot have more than 2 decimal places"

	customTuitionTag  = "custom_tuition"
	customTuitionText = "custom tuition must be greater than 0"

	customDiscountTag  = "custom_discount"
	customDiscountText = ErrInvalidDiscount.Error()
)

func InitValidators(validate *validator.Validate, translator ut.Translator) {
	validate.RegisterStructValidation(ledgerStructValidation, NewPaymentPlan{}, AssignPlan{}, RecordPayment{}, NewFee{})
	core.RegisterCustomTranslation(validate, translator, centsTag, centsText)
	core.RegisterCustomTranslation(validate, translator, customTuitionTag, customTuitionText)
	core.RegisterCustomTranslation(validate, translator, customDiscountTag, customDiscountText)
}

// ledgerStructValidation does struct level validation on the money fields of the ledger inputs.
func ledgerStructValidation(sl validator.StructLevel) {
	switch in := sl.Current().Interface().(type) {
	case NewPaymentPlan:
		for _, amt := range []struct {
			name, field string
			value       decimal.Decimal
		}{
			{"enrollment_fee", "EnrollmentFee", in.EnrollmentFee},
			{"tuition_amount", "TuitionAmount", in.TuitionAmount},
			{"materials_charge", "MaterialsCharge", in.MaterialsCharge},
			{"uniform_charge", "UniformCharge", in.UniformCharge},
			{"transport_charge", "TransportCharge", in.TransportCharge},
			{"discount_percent", "DiscountPercent", in.DiscountPercent},
		} {
			validateCents(sl, amt.value, amt.name, amt.field)
		}
	case AssignPlan:
		if in.CustomTuition.Valid {
			if !in.CustomTuition.Decimal.IsPositive() {
				sl.ReportError(in.CustomTuition, "custom_tuition", "CustomTuition", customTuitionTag, "")
			} else {
				validateCents(sl, in.CustomTuition.Decimal, "custom_tuition", "CustomTuition")
			}
		}
		if d := in.CustomDiscount; d.Valid && (d.Decimal.IsNegative() || d.Decimal.GreaterThan(hundred)) {
			sl.ReportError(in.CustomDiscount, "custom_discount", "CustomDiscount", customDiscountTag, "")
		}
	case RecordPayment:
		validateCents(sl, in.Amount, "amount", "Amount")
	case NewFee:
		validateCents(sl, in.Amount, "amount", "Amount")
	}
}

// validateCents reports amounts that NUMERIC(12,2) columns cannot hold exactly.
func validateCents(sl validator.StructLevel, d decimal.Decimal, name, field string) {
	if !d.Equal(d.Round(2)) {
		sl.ReportError(d, name, field, centsTag, "")
	}
}
