package echoapi

import (
	"net/http"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/trezcool/colegio/core/ledger"
)

type ledgerApi struct {
	svc      *ledger.Service
	validate *validator.Validate
}

func registerLedgerAPI(g *echo.Group, svc *ledger.Service, validate *validator.Validate) {
	api := ledgerApi{
		svc:      svc,
		validate: validate,
	}

	pg := g.Group("/plans")
	pg.GET("", api.queryPlans)
	pg.POST("", api.createPlan)
	pg.GET("/:id", api.retrievePlan)
	pg.PUT("/:id", api.updatePlan)
	pg.DELETE("/:id", api.destroyPlan)

	tg := g.Group("/fee-types")
	tg.GET("", api.queryFeeTypes)
	tg.POST("", api.createFeeType)

	sg := g.Group("/students/:id")
	sg.POST("/plan", api.assignPlan)
	sg.GET("/plan", api.retrieveActivePlan)
	sg.GET("/plans", api.queryAssignments)
	sg.GET("/fees", api.queryStudentFees)
	sg.GET("/balance", api.retrieveBalance)

	fg := g.Group("/fees")
	fg.POST("", api.createFee)
	fg.GET("/:id", api.retrieveFee)
	fg.DELETE("/:id", api.destroyFee)
	fg.POST("/:id/payments", api.recordPayment)
	fg.GET("/:id/payments", api.queryPayments)
}

// Payment plans

func (api *ledgerApi) queryPlans(ctx echo.Context) error {
	plans, err := api.svc.QueryPlans(ctx.Request().Context())
	if err != nil {
		return errors.Wrap(err, "querying payment plans")
	}
	return ctx.JSON(http.StatusOK, plans)
}

func (api *ledgerApi) createPlan(ctx echo.Context) error {
	var data ledger.NewPaymentPlan
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to NewPaymentPlan")
	}
	if err := data.Validate(api.validate); err != nil {
		return err
	}

	plan, err := api.svc.CreatePlan(ctx.Request().Context(), data)
	if err != nil {
		return errors.Wrap(err, "creating payment plan")
	}
	return ctx.JSON(http.StatusCreated, plan)
}

func (api *ledgerApi) retrievePlan(ctx echo.Context) error {
	id, err := idParam(ctx)
	if err != nil {
		return err
	}
	plan, err := api.svc.GetPlan(ctx.Request().Context(), id)
	if err != nil {
		return errors.Wrap(err, "getting payment plan")
	}
	return ctx.JSON(http.StatusOK, plan)
}

func (api *ledgerApi) updatePlan(ctx echo.Context) error {
	id, err := idParam(ctx)
	if err != nil {
		return err
	}
	var data ledger.UpdatePaymentPlan
	if err = ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to UpdatePaymentPlan")
	}
	if err = data.Validate(api.validate); err != nil {
		return err
	}

	plan, err := api.svc.UpdatePlan(ctx.Request().Context(), id, data)
	if err != nil {
		return errors.Wrap(err, "updating payment plan")
	}
	return ctx.JSON(http.StatusOK, plan)
}

func (api *ledgerApi) destroyPlan(ctx echo.Context) error {
	id, err := idParam(ctx)
	if err != nil {
		return err
	}
	if err = api.svc.DeletePlan(ctx.Request().Context(), id); err != nil {
		return errors.Wrap(err, "deleting payment plan")
	}
	return ctx.NoContent(http.StatusNoContent)
}

// Fee types

func (api *ledgerApi) queryFeeTypes(ctx echo.Context) error {
	types, err := api.svc.QueryFeeTypes(ctx.Request().Context())
	if err != nil {
		return errors.Wrap(err, "querying fee types")
	}
	return ctx.JSON(http.StatusOK, types)
}

func (api *ledgerApi) createFeeType(ctx echo.Context) error {
	var data ledger.NewFeeType
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to NewFeeType")
	}
	if err := data.Validate(api.validate); err != nil {
		return err
	}

	ft, err := api.svc.CreateFeeType(ctx.Request().Context(), data)
	if err != nil {
		return errors.Wrap(err, "creating fee type")
	}
	return ctx.JSON(http.StatusCreated, ft)
}

// Students

func (api *ledgerApi) assignPlan(ctx echo.Context) error {
	studentID, err := idParam(ctx)
	if err != nil {
		return err
	}
	var data ledger.AssignPlan
	if err = ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to AssignPlan")
	}
	data.StudentID = studentID
	if err = data.Validate(api.validate); err != nil {
		return err
	}

	asg, err := api.svc.AssignPlan(ctx.Request().Context(), data)
	if err != nil {
		return errors.Wrap(err, "assigning payment plan")
	}
	return ctx.JSON(http.StatusCreated, asg)
}

func (api *ledgerApi) retrieveActivePlan(ctx echo.Context) error {
	studentID, err := idParam(ctx)
	if err != nil {
		return err
	}
	spp, err := api.svc.GetActiveAssignment(ctx.Request().Context(), studentID)
	if err != nil {
		return errors.Wrap(err, "getting active assignment")
	}
	return ctx.JSON(http.StatusOK, spp)
}

func (api *ledgerApi) queryAssignments(ctx echo.Context) error {
	studentID, err := idParam(ctx)
	if err != nil {
		return err
	}
	spps, err := api.svc.QueryAssignments(ctx.Request().Context(), studentID)
	if err != nil {
		return errors.Wrap(err, "querying assignments")
	}
	return ctx.JSON(http.StatusOK, spps)
}

func (api *ledgerApi) queryStudentFees(ctx echo.Context) error {
	studentID, err := idParam(ctx)
	if err != nil {
		return err
	}
	filter, err := bindFeeFilter(ctx)
	if err != nil {
		return err
	}
	filter.StudentID = studentID

	fees, err := api.svc.QueryFees(ctx.Request().Context(), filter)
	if err != nil {
		return errors.Wrap(err, "querying fees")
	}
	return ctx.JSON(http.StatusOK, fees)
}

func (api *ledgerApi) retrieveBalance(ctx echo.Context) error {
	studentID, err := idParam(ctx)
	if err != nil {
		return err
	}
	bal, err := api.svc.StudentBalance(ctx.Request().Context(), studentID)
	if err != nil {
		return errors.Wrap(err, "computing balance")
	}
	return ctx.JSON(http.StatusOK, bal)
}

// Fees

func (api *ledgerApi) createFee(ctx echo.Context) error {
	var data ledger.NewFee
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to NewFee")
	}
	if err := data.Validate(api.validate); err != nil {
		return err
	}

	fee, err := api.svc.CreateFee(ctx.Request().Context(), data)
	if err != nil {
		return errors.Wrap(err, "creating fee")
	}
	return ctx.JSON(http.StatusCreated, fee)
}

func (api *ledgerApi) retrieveFee(ctx echo.Context) error {
	id, err := idParam(ctx)
	if err != nil {
		return err
	}
	stmt, err := api.svc.GetFee(ctx.Request().Context(), id)
	if err != nil {
		return errors.Wrap(err, "getting fee")
	}
	return ctx.JSON(http.StatusOK, stmt)
}

func (api *ledgerApi) destroyFee(ctx echo.Context) error {
	id, err := idParam(ctx)
	if err != nil {
		return err
	}
	if err = api.svc.DeleteFee(ctx.Request().Context(), id); err != nil {
		return errors.Wrap(err, "deleting fee")
	}
	return ctx.NoContent(http.StatusNoContent)
}

// Payments

func (api *ledgerApi) recordPayment(ctx echo.Context) error {
	feeID, err := idParam(ctx)
	if err != nil {
		return err
	}
	var data ledger.RecordPayment
	if err = ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to RecordPayment")
	}
	data.FeeID = feeID
	if err = data.Validate(api.validate); err != nil {
		return err
	}

	rcpt, err := api.svc.RecordPayment(ctx.Request().Context(), data)
	if err != nil {
		return errors.Wrap(err, "recording payment")
	}
	return ctx.JSON(http.StatusCreated, rcpt)
}

func (api *ledgerApi) queryPayments(ctx echo.Context) error {
	feeID, err := idParam(ctx)
	if err != nil {
		return err
	}
	payments, err := api.svc.QueryPayments(ctx.Request().Context(), feeID)
	if err != nil {
		return errors.Wrap(err, "querying payments")
	}
	return ctx.JSON(http.StatusOK, payments)
}
