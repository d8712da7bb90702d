package ledger

import (
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"
	"github.com/volatiletech/null/v8"

	"github.com/trezcool/colegio/core"
)

// Frequencies
const (
	FrequencyWeekly    Frequency = "WEEKLY"
	FrequencyBiweekly  Frequency = "BIWEEKLY"
	FrequencyMonthly   Frequency = "MONTHLY"
	FrequencyQuarterly Frequency = "QUARTERLY"
	FrequencyYearly    Frequency = "YEARLY"
	FrequencyCustom    Frequency = "CUSTOM"
)

// Fee statuses
const (
	StatusPending FeeStatus = "PENDING"
	StatusPartial FeeStatus = "PARTIAL"
	StatusPaid    FeeStatus = "PAID"
	StatusOverdue FeeStatus = "OVERDUE"
)

// Payment methods
const (
	MethodCash     PaymentMethod = "CASH"
	MethodTransfer PaymentMethod = "TRANSFER"
	MethodCheck    PaymentMethod = "CHECK"
)

var (
	Frequencies    = []Frequency{FrequencyWeekly, FrequencyBiweekly, FrequencyMonthly, FrequencyQuarterly, FrequencyYearly, FrequencyCustom}
	FeeStatuses    = []FeeStatus{StatusPending, StatusPartial, StatusPaid, StatusOverdue}
	PaymentMethods = []PaymentMethod{MethodCash, MethodTransfer, MethodCheck}

	hundred = decimal.NewFromInt(100)
)

type (
	Frequency     string
	FeeStatus     string
	PaymentMethod string
)

// Student is the ledger's read-only view of a student owned by the academic records.
type Student struct {
	ID   int    `json:"id"`
	Name string `json:"name"`
}

// PaymentPlan is a reusable template of the charges owed by the students it is assigned to.
type PaymentPlan struct {
	ID              int             `json:"id"`
	Name            string          `json:"name"`
	Description     string          `json:"description"`
	EnrollmentFee   decimal.Decimal `json:"enrollment_fee"`
	TuitionAmount   decimal.Decimal `json:"tuition_amount"`
	Frequency       Frequency       `json:"frequency"`
	Installments    int             `json:"installments"`
	MaterialsCharge decimal.Decimal `json:"materials_charge"`
	UniformCharge   decimal.Decimal `json:"uniform_charge"`
	TransportCharge decimal.Decimal `json:"transport_charge"`
	DiscountPercent decimal.Decimal `json:"discount_percent"`
	CreatedAt       time.Time       `json:"created_at"` // UTC
	UpdatedAt       time.Time       `json:"updated_at"` // UTC
}

// StudentPaymentPlan binds a Student to a PaymentPlan. A student has at most one active assignment.
type StudentPaymentPlan struct {
	ID             int                 `json:"id"`
	StudentID      int                 `json:"student_id"`
	PaymentPlanID  int                 `json:"payment_plan_id"`
	CustomTuition  decimal.NullDecimal `json:"custom_tuition"`
	CustomDiscount decimal.NullDecimal `json:"custom_discount"`
	StartDate      time.Time           `json:"start_date"`
	IsActive       bool                `json:"is_active"`
	EndDate        null.Time           `json:"end_date"` // set when superseded
	CreatedAt      time.Time           `json:"created_at"`
}

// Tuition returns the tuition owed per installment before discount.
func (spp StudentPaymentPlan) Tuition(plan PaymentPlan) decimal.Decimal {
	if spp.CustomTuition.Valid {
		return spp.CustomTuition.Decimal
	}
	return plan.TuitionAmount
}

// Discount returns the discount percentage applied to every installment.
func (spp StudentPaymentPlan) Discount(plan PaymentPlan) decimal.Decimal {
	if spp.CustomDiscount.Valid {
		return spp.CustomDiscount.Decimal
	}
	return plan.DiscountPercent
}

// InstallmentAmount returns the discounted tuition, rounded to cents.
func (spp StudentPaymentPlan) InstallmentAmount(plan PaymentPlan) decimal.Decimal {
	factor := decimal.NewFromInt(1).Sub(spp.Discount(plan).Div(hundred))
	return spp.Tuition(plan).Mul(factor).Round(2)
}

type FeeType struct {
	ID          int       `json:"id"`
	Name        string    `json:"name"`
	Description string    `json:"description"`
	CreatedAt   time.Time `json:"created_at"`
}

// Fee is one monetary obligation of a student. Its amount never changes once created.
type Fee struct {
	ID                   int             `json:"id"`
	StudentID            int             `json:"student_id"`
	FeeTypeID            int             `json:"fee_type_id"`
	StudentPaymentPlanID null.Int        `json:"student_payment_plan_id"`
	InstallmentNumber    int             `json:"installment_number"` // 0 for one-off charges
	Description          string          `json:"description"`
	Amount               decimal.Decimal `json:"amount"`
	DueDate              time.Time       `json:"due_date"`
	Status               FeeStatus       `json:"status"`
	CreatedAt            time.Time       `json:"created_at"`
}

// Payment is an append-only remittance applied against a Fee.
type Payment struct {
	ID        int             `json:"id"`
	FeeID     int             `json:"fee_id"`
	StudentID int             `json:"student_id"`
	Amount    decimal.Decimal `json:"amount"`
	Method    PaymentMethod   `json:"method"`
	Reference string          `json:"reference"`
	PaidAt    time.Time       `json:"paid_at"`
	CreatedAt time.Time       `json:"created_at"`
}

// DeriveStatus computes a Fee's status from its amount and the sum of its payments.
// OVERDUE is never derived here; it is assigned by the overdue batch.
func DeriveStatus(amount, totalPaid decimal.Decimal) FeeStatus {
	switch {
	case totalPaid.GreaterThanOrEqual(amount):
		return StatusPaid
	case totalPaid.IsPositive():
		return StatusPartial
	default:
		return StatusPending
	}
}

func SumPayments(payments []Payment) decimal.Decimal {
	total := decimal.Zero
	for _, p := range payments {
		total = total.Add(p.Amount)
	}
	return total
}

// FeeStatement is a Fee together with its payments and the balance they leave.
type FeeStatement struct {
	Fee
	Payments  []Payment       `json:"payments"`
	TotalPaid decimal.Decimal `json:"total_paid"`
	Balance   decimal.Decimal `json:"balance"`
}

func NewFeeStatement(fee Fee, payments []Payment) FeeStatement {
	if payments == nil {
		payments = []Payment{}
	}
	paid := SumPayments(payments)
	return FeeStatement{
		Fee:       fee,
		Payments:  payments,
		TotalPaid: paid,
		Balance:   fee.Amount.Sub(paid),
	}
}

// Balance sums up every fee of a student.
type Balance struct {
	StudentID    int             `json:"student_id"`
	Fees         int             `json:"fees"`
	TotalAmount  decimal.Decimal `json:"total_amount"`
	TotalPaid    decimal.Decimal `json:"total_paid"`
	Outstanding  decimal.Decimal `json:"outstanding"`
	OverdueFees  int             `json:"overdue_fees"`
	OverdueTotal decimal.Decimal `json:"overdue_total"`
}

// Assignment is the outcome of assigning a payment plan to a student.
type Assignment struct {
	StudentPaymentPlan
	FeesGenerated int        `json:"fees_generated"`
	Fees          []Fee      `json:"fees"`
	Omissions     []Omission `json:"omissions"`
}

// Receipt is the outcome of recording a payment.
type Receipt struct {
	Payment       Payment         `json:"payment"`
	Fee           Fee             `json:"fee"`
	Status        FeeStatus       `json:"status"`
	Balance       decimal.Decimal `json:"balance"`
	TransactionID null.Int        `json:"transaction_id"`
}

// NewPaymentPlan contains information needed to create a new PaymentPlan.
type NewPaymentPlan struct {
	Name            string          `json:"name" validate:"required,notblank"`
	Description     string          `json:"description"`
	EnrollmentFee   decimal.Decimal `json:"enrollment_fee" validate:"gte=0"`
	TuitionAmount   decimal.Decimal `json:"tuition_amount" validate:"gt=0"`
	Frequency       Frequency       `json:"frequency" validate:"required,oneof=WEEKLY BIWEEKLY MONTHLY QUARTERLY YEARLY CUSTOM"`
	Installments    int             `json:"installments" validate:"gte=0,lte=520"`
	MaterialsCharge decimal.Decimal `json:"materials_charge" validate:"gte=0"`
	UniformCharge   decimal.Decimal `json:"uniform_charge" validate:"gte=0"`
	TransportCharge decimal.Decimal `json:"transport_charge" validate:"gte=0"`
	DiscountPercent decimal.Decimal `json:"discount_percent" validate:"gte=0,lte=100"`
}

func (np *NewPaymentPlan) Validate(validate *validator.Validate) error {
	np.Name = core.CleanString(np.Name)
	np.Description = core.CleanString(np.Description)
	np.Frequency = Frequency(strings.ToUpper(core.CleanString(string(np.Frequency))))
	return validate.Struct(np)
}

func (np NewPaymentPlan) apply(plan *PaymentPlan) {
	plan.Name = np.Name
	plan.Description = np.Description
	plan.EnrollmentFee = np.EnrollmentFee
	plan.TuitionAmount = np.TuitionAmount
	plan.Frequency = np.Frequency
	plan.Installments = np.Installments
	plan.MaterialsCharge = np.MaterialsCharge
	plan.UniformCharge = np.UniformCharge
	plan.TransportCharge = np.TransportCharge
	plan.DiscountPercent = np.DiscountPercent
}

// UpdatePaymentPlan replaces every editable field of a PaymentPlan.
// Fees already generated from the plan are left untouched.
type UpdatePaymentPlan struct {
	NewPaymentPlan
}

// AssignPlan contains information needed to assign a PaymentPlan to a Student.
type AssignPlan struct {
	StudentID      int                 `json:"student_id" validate:"required,gt=0"`
	PaymentPlanID  int                 `json:"payment_plan_id" validate:"required,gt=0"`
	CustomTuition  decimal.NullDecimal `json:"custom_tuition"`
	CustomDiscount decimal.NullDecimal `json:"custom_discount"`
	StartDate      null.Time           `json:"start_date"` // defaults to today
}

func (ap *AssignPlan) Validate(validate *validator.Validate) error { return validate.Struct(ap) }

// RecordPayment contains information needed to apply a Payment against a Fee.
type RecordPayment struct {
	FeeID     int             `json:"fee_id" validate:"required,gt=0"`
	StudentID int             `json:"student_id" validate:"required,gt=0"`
	Amount    decimal.Decimal `json:"amount" validate:"gt=0"`
	Method    PaymentMethod   `json:"method" validate:"required,oneof=CASH TRANSFER CHECK"`
	Reference string          `json:"reference" validate:"max=100"`
}

func (rp *RecordPayment) Validate(validate *validator.Validate) error {
	rp.Method = PaymentMethod(strings.ToUpper(core.CleanString(string(rp.Method))))
	rp.Reference = core.CleanString(rp.Reference)
	return validate.Struct(rp)
}

// NewFee contains information needed to create a one-off Fee outside of any payment plan.
type NewFee struct {
	StudentID   int             `json:"student_id" validate:"required,gt=0"`
	FeeTypeID   int             `json:"fee_type_id" validate:"required,gt=0"`
	Amount      decimal.Decimal `json:"amount" validate:"gt=0"`
	DueDate     time.Time       `json:"due_date" validate:"required"`
	Description string          `json:"description" validate:"max=255"`
}

func (nf *NewFee) Validate(validate *validator.Validate) error {
	nf.Description = core.CleanString(nf.Description)
	return validate.Struct(nf)
}

type NewFeeType struct {
	Name        string `json:"name" validate:"required,notblank,max=100"`
	Description string `json:"description"`
}

func (nft *NewFeeType) Validate(validate *validator.Validate) error {
	nft.Name = core.CleanString(nft.Name)
	nft.Description = core.CleanString(nft.Description)
	return validate.Struct(nft)
}

// FeeFilter narrows down fee queries; zero fields are ignored and set fields are ANDed.
type FeeFilter struct {
	StudentID    int
	AssignmentID int
	Statuses     []FeeStatus
	DueFrom      time.Time
	DueTo        time.Time
}
