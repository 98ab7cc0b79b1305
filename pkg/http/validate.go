package http

import (
	"Aegis/pkg/validation"

	"github.com/labstack/echo/v4"
)

// ReadAndValidateRequest strictly decodes the JSON body into req, applies
// defaults and validates it. Unknown fields are rejected.
func ReadAndValidateRequest(c echo.Context, req interface{}) validation.Errors {
	if err := validation.DecodeStrict(c.Request().Body, req); err != nil {
		return validation.FromError(err)
	}
	if err := validation.Struct(c.Request().Context(), req); err != nil {
		return validation.FromError(err)
	}
	return nil
}

// ValidateQuery binds query/path params into req and validates it.
func ValidateQuery(c echo.Context, req interface{}) validation.Errors {
	if err := (&echo.DefaultBinder{}).BindQueryParams(c, req); err != nil {
		return validation.Errors{{Code: "ERR_BAD_QUERY", Message: err.Error()}}
	}
	if err := validation.Struct(c.Request().Context(), req); err != nil {
		return validation.FromError(err)
	}
	return nil
}
