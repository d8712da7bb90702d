package tests

import (
	"context"
	"fmt"
	"net/http"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trezcool/colegio/core/finance"
	"github.com/trezcool/colegio/core/ledger"
	testutil "github.com/trezcool/colegio/tests"
)

func planBody(name string) map[string]interface{} {
	return map[string]interface{}{
		"name":             name,
		"enrollment_fee":   "50000",
		"tuition_amount":   "100000",
		"frequency":        "monthly",
		"installments":     10,
		"materials_charge": "20000",
		"uniform_charge":   "30000",
		"transport_charge": "15000",
		"discount_percent": "0",
	}
}

func Test_ledgerApi_plans(t *testing.T) {
	env := setup(t)

	rec := env.do(t, http.MethodPost, "/v1/plans", planBody("Primaria 2025"))
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var plan ledger.PaymentPlan
	decode(t, rec, &plan)
	assert.Equal(t, ledger.FrequencyMonthly, plan.Frequency)
	assert.True(t, plan.TuitionAmount.Equal(decimal.NewFromInt(100000)))

	t.Run("invalid input", func(t *testing.T) {
		body := planBody(" ")
		body["tuition_amount"] = "0"
		rec := env.do(t, http.MethodPost, "/v1/plans", body)
		require.Equal(t, http.StatusBadRequest, rec.Code)
		var fields map[string]string
		decode(t, rec, &fields)
		assert.Contains(t, fields, "name")
		assert.Contains(t, fields, "tuition_amount")
	})

	t.Run("update", func(t *testing.T) {
		body := planBody("Primaria 2025 (rev)")
		body["discount_percent"] = "10"
		rec := env.do(t, http.MethodPut, fmt.Sprintf("/v1/plans/%d", plan.ID), body)
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
		var updated ledger.PaymentPlan
		decode(t, rec, &updated)
		assert.Equal(t, "Primaria 2025 (rev)", updated.Name)
		assert.True(t, updated.DiscountPercent.Equal(decimal.NewFromInt(10)))
	})

	t.Run("list", func(t *testing.T) {
		rec := env.do(t, http.MethodGet, "/v1/plans", nil)
		require.Equal(t, http.StatusOK, rec.Code)
		var plans []ledger.PaymentPlan
		decode(t, rec, &plans)
		assert.Len(t, plans, 1)
	})

	tests := []httpTest{
		{name: "retrieve", method: http.MethodGet, path: fmt.Sprintf("/v1/plans/%d", plan.ID), wantCode: http.StatusOK},
		{name: "retrieve unknown", method: http.MethodGet, path: "/v1/plans/999", wantCode: http.StatusNotFound},
		{name: "malformed id", method: http.MethodGet, path: "/v1/plans/abc", wantCode: http.StatusNotFound},
		{name: "update unknown", method: http.MethodPut, path: "/v1/plans/999", body: planBody("x"), wantCode: http.StatusNotFound},
		{name: "delete", method: http.MethodDelete, path: fmt.Sprintf("/v1/plans/%d", plan.ID), wantCode: http.StatusNoContent},
		{name: "delete again", method: http.MethodDelete, path: fmt.Sprintf("/v1/plans/%d", plan.ID), wantCode: http.StatusNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			checkCode(t, tt, env.do(t, tt.method, tt.path, tt.body))
		})
	}
}

func Test_ledgerApi_assignPlan(t *testing.T) {
	env := setup(t)
	plan := testutil.CreatePlan(t, env.store, testutil.StandardPlan())
	path := fmt.Sprintf("/v1/students/%d/plan", env.student.ID)

	rec := env.do(t, http.MethodPost, path, map[string]interface{}{
		"payment_plan_id": plan.ID,
		"start_date":      "2025-01-15T00:00:00Z",
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var asg struct {
		ID            int          `json:"id"`
		StudentID     int          `json:"student_id"`
		IsActive      bool         `json:"is_active"`
		FeesGenerated int          `json:"fees_generated"`
		Fees          []ledger.Fee `json:"fees"`
	}
	decode(t, rec, &asg)
	assert.Equal(t, env.student.ID, asg.StudentID)
	assert.True(t, asg.IsActive)
	assert.Equal(t, 14, asg.FeesGenerated)
	require.Len(t, asg.Fees, 14)
	assert.Equal(t, testutil.Date(2025, 1, 15), asg.Fees[0].DueDate)

	rec = env.do(t, http.MethodGet, path, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var active ledger.StudentPaymentPlan
	decode(t, rec, &active)
	assert.Equal(t, asg.ID, active.ID)

	rec = env.do(t, http.MethodGet, fmt.Sprintf("/v1/students/%d/plans", env.student.ID), nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var history []ledger.StudentPaymentPlan
	decode(t, rec, &history)
	assert.Len(t, history, 1)

	tests := []httpTest{
		{
			name: "unknown student", method: http.MethodPost, path: "/v1/students/999/plan",
			body: map[string]interface{}{"payment_plan_id": plan.ID}, wantCode: http.StatusNotFound,
		},
		{
			name: "unknown plan", method: http.MethodPost, path: path,
			body: map[string]interface{}{"payment_plan_id": 999}, wantCode: http.StatusNotFound,
		},
		{
			name: "missing plan", method: http.MethodPost, path: path,
			body: map[string]interface{}{}, wantCode: http.StatusBadRequest,
		},
		{
			name: "discount out of range", method: http.MethodPost, path: path,
			body: map[string]interface{}{"payment_plan_id": plan.ID, "custom_discount": "120"}, wantCode: http.StatusBadRequest,
		},
		{name: "no active plan", method: http.MethodGet, path: "/v1/students/999/plan", wantCode: http.StatusNotFound},
		{name: "delete plan in use", method: http.MethodDelete, path: fmt.Sprintf("/v1/plans/%d", plan.ID), wantCode: http.StatusConflict},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			checkCode(t, tt, env.do(t, tt.method, tt.path, tt.body))
		})
	}

	t.Run("plan in use reports its active assignments", func(t *testing.T) {
		rec := env.do(t, http.MethodDelete, fmt.Sprintf("/v1/plans/%d", plan.ID), nil)
		require.Equal(t, http.StatusConflict, rec.Code)
		var body struct {
			Error string `json:"error"`
			Count int    `json:"count"`
		}
		decode(t, rec, &body)
		assert.Equal(t, 1, body.Count)
		assert.NotEmpty(t, body.Error)
	})
}

func Test_ledgerApi_payments(t *testing.T) {
	env := setup(t)

	rec := env.do(t, http.MethodPost, "/v1/fees", map[string]interface{}{
		"student_id":  env.student.ID,
		"fee_type_id": env.types[ledger.ChargeMaterials].ID,
		"amount":      "100000",
		"due_date":    "2025-03-01T00:00:00Z",
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var fee ledger.Fee
	decode(t, rec, &fee)
	assert.Equal(t, ledger.StatusPending, fee.Status)
	assert.Equal(t, env.types[ledger.ChargeMaterials].Name, fee.Description)
	paymentsPath := fmt.Sprintf("/v1/fees/%d/payments", fee.ID)

	// partial payment
	rec = env.do(t, http.MethodPost, paymentsPath, map[string]interface{}{
		"student_id": env.student.ID,
		"amount":     "60000",
		"method":     "cash",
		"reference":  "REC-001",
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var rcpt ledger.Receipt
	decode(t, rec, &rcpt)
	assert.Equal(t, ledger.StatusPartial, rcpt.Status)
	assert.True(t, rcpt.Balance.Equal(decimal.NewFromInt(40000)), "balance = %s", rcpt.Balance)
	assert.True(t, rcpt.TransactionID.Valid)

	// overpayment
	rec = env.do(t, http.MethodPost, paymentsPath, map[string]interface{}{
		"student_id": env.student.ID,
		"amount":     "50000",
		"method":     "TRANSFER",
	})
	require.Equal(t, http.StatusBadRequest, rec.Code, rec.Body.String())
	var exceeds struct {
		Error   string `json:"error"`
		Balance string `json:"balance"`
	}
	decode(t, rec, &exceeds)
	assert.Equal(t, "40000.00", exceeds.Balance)
	assert.NotEmpty(t, exceeds.Error)

	// another student's fee
	rec = env.do(t, http.MethodPost, paymentsPath, map[string]interface{}{
		"student_id": env.student.ID + 1,
		"amount":     "10",
		"method":     "CASH",
	})
	require.Equal(t, http.StatusBadRequest, rec.Code, rec.Body.String())
	var fields map[string]string
	decode(t, rec, &fields)
	assert.Equal(t, ledger.ErrFeeNotOwned.Error(), fields["student_id"])

	rec = env.do(t, http.MethodGet, fmt.Sprintf("/v1/fees/%d", fee.ID), nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var stmt ledger.FeeStatement
	decode(t, rec, &stmt)
	assert.Len(t, stmt.Payments, 1)
	assert.True(t, stmt.TotalPaid.Equal(decimal.NewFromInt(60000)))
	assert.True(t, stmt.Balance.Equal(decimal.NewFromInt(40000)))

	rec = env.do(t, http.MethodGet, paymentsPath, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var payments []ledger.Payment
	decode(t, rec, &payments)
	require.Len(t, payments, 1)
	assert.Equal(t, ledger.MethodCash, payments[0].Method)

	txns, err := env.finance.QueryTransactions(context.Background(), finance.QueryFilter{PaymentID: payments[0].ID})
	require.NoError(t, err)
	require.Len(t, txns, 1)
	assert.Equal(t, finance.TypeIncome, txns[0].Type)

	tests := []httpTest{
		{name: "delete paid fee", method: http.MethodDelete, path: fmt.Sprintf("/v1/fees/%d", fee.ID), wantCode: http.StatusConflict},
		{name: "retrieve unknown fee", method: http.MethodGet, path: "/v1/fees/999", wantCode: http.StatusNotFound},
		{name: "payments of unknown fee", method: http.MethodGet, path: "/v1/fees/999/payments", wantCode: http.StatusNotFound},
		{
			name: "pay unknown fee", method: http.MethodPost, path: "/v1/fees/999/payments",
			body:     map[string]interface{}{"student_id": env.student.ID, "amount": "10", "method": "CASH"},
			wantCode: http.StatusNotFound,
		},
		{
			name: "unknown method", method: http.MethodPost, path: paymentsPath,
			body:     map[string]interface{}{"student_id": env.student.ID, "amount": "10", "method": "CARD"},
			wantCode: http.StatusBadRequest,
		},
		{
			name: "fee for unknown student", method: http.MethodPost, path: "/v1/fees",
			body: map[string]interface{}{
				"student_id": 999, "fee_type_id": env.types[ledger.ChargeMaterials].ID,
				"amount": "10", "due_date": "2025-03-01T00:00:00Z",
			},
			wantCode: http.StatusNotFound,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			checkCode(t, tt, env.do(t, tt.method, tt.path, tt.body))
		})
	}
}

func Test_ledgerApi_studentFees(t *testing.T) {
	env := setup(t)
	typeID := env.types[ledger.ChargeTransport].ID
	early := testutil.CreateFee(t, env.store, env.student.ID, typeID, decimal.NewFromInt(15000), testutil.Date(2025, 1, 1))
	late := testutil.CreateFee(t, env.store, env.student.ID, typeID, decimal.NewFromInt(15000), testutil.Date(2025, 3, 1))
	base := fmt.Sprintf("/v1/students/%d/fees", env.student.ID)

	tests := []struct {
		name    string
		query   string
		wantIDs []int
	}{
		{"all", "", []int{early.ID, late.ID}},
		{"due from", "?due_from=2025-02-01", []int{late.ID}},
		{"due to", "?due_to=2025-02-01", []int{early.ID}},
		{"pending", "?status=pending", []int{early.ID, late.ID}},
		{"paid", "?status=PAID", []int{}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := env.do(t, http.MethodGet, base+tt.query, nil)
			require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
			var fees []ledger.Fee
			decode(t, rec, &fees)
			ids := make([]int, 0, len(fees))
			for _, f := range fees {
				ids = append(ids, f.ID)
			}
			assert.Equal(t, tt.wantIDs, ids)
		})
	}

	t.Run("bad date", func(t *testing.T) {
		rec := env.do(t, http.MethodGet, base+"?due_from=01/02/2025", nil)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("balance", func(t *testing.T) {
		rec := env.do(t, http.MethodGet, fmt.Sprintf("/v1/students/%d/balance", env.student.ID), nil)
		require.Equal(t, http.StatusOK, rec.Code)
		var bal ledger.Balance
		decode(t, rec, &bal)
		assert.Equal(t, 2, bal.Fees)
		assert.True(t, bal.Outstanding.Equal(decimal.NewFromInt(30000)), "outstanding = %s", bal.Outstanding)

		rec = env.do(t, http.MethodGet, "/v1/students/999/balance", nil)
		assert.Equal(t, http.StatusNotFound, rec.Code)
	})
}

func Test_ledgerApi_feeTypes(t *testing.T) {
	env := setup(t)

	rec := env.do(t, http.MethodPost, "/v1/fee-types", map[string]interface{}{"name": " Excursiones "})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var ft ledger.FeeType
	decode(t, rec, &ft)
	assert.Equal(t, "Excursiones", ft.Name)

	rec = env.do(t, http.MethodPost, "/v1/fee-types", map[string]interface{}{"name": env.types[ledger.ChargeTuition].Name})
	require.Equal(t, http.StatusBadRequest, rec.Code)
	var fields map[string]string
	decode(t, rec, &fields)
	assert.Equal(t, ledger.ErrFeeTypeExists.Error(), fields["name"])

	rec = env.do(t, http.MethodGet, "/v1/fee-types", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var types []ledger.FeeType
	decode(t, rec, &types)
	assert.Len(t, types, len(ledger.ChargeKinds)+1)
}
