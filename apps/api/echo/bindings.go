package echoapi

import (
	"strconv"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/trezcool/colegio/core"
	"github.com/trezcool/colegio/core/ledger"
)

const dateLayout = "2006-01-02"

// idParam parses the `:id` path parameter. Malformed IDs cannot match any object.
func idParam(ctx echo.Context) (int, error) {
	id, err := strconv.Atoi(ctx.Param("id"))
	if err != nil || id <= 0 {
		return 0, errHttpNotFound
	}
	return id, nil
}

// bindFeeFilter reads `status` (repeatable), `assignment_id`, `due_from` and `due_to` (YYYY-MM-DD).
func bindFeeFilter(ctx echo.Context) (ledger.FeeFilter, error) {
	var (
		filter   ledger.FeeFilter
		statuses []string
	)
	err := echo.QueryParamsBinder(ctx).
		Int("assignment_id", &filter.AssignmentID).
		Strings("status", &statuses).
		Time("due_from", &filter.DueFrom, dateLayout).
		Time("due_to", &filter.DueTo, dateLayout).
		BindError()
	if err != nil {
		var field string
		if berr, ok := err.(*echo.BindingError); ok {
			field = berr.Field
		}
		return filter, core.NewValidationError(err, core.FieldError{Field: field, Error: "invalid value"})
	}

	for _, s := range statuses {
		filter.Statuses = append(filter.Statuses, ledger.FeeStatus(strings.ToUpper(core.CleanString(s))))
	}
	return filter, nil
}
