// Package httpx maps core errors onto HTTP responses so every handler
// package reports business-rule failures the same way.
package httpx

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"

	"skinmarket/internal/escrow"
)

// Error writes the JSON error response for err. Business-rule failures get
// their taxonomy status; anything else is an internal error and the generic
// message hides the details from the client.
func Error(c echo.Context, err error) error {
	switch {
	case errors.Is(err, escrow.ErrNotFound):
		return c.JSON(http.StatusNotFound, echo.Map{"error": err.Error()})
	case errors.Is(err, escrow.ErrUnauthorized):
		return c.JSON(http.StatusForbidden, echo.Map{"error": "you are not allowed to perform this action"})
	case errors.Is(err, escrow.ErrInvalidState), errors.Is(err, escrow.ErrDeadlinePassed):
		return c.JSON(http.StatusConflict, echo.Map{"error": err.Error()})
	case errors.Is(err, escrow.ErrPreconditionFailed):
		return c.JSON(http.StatusBadRequest, echo.Map{"error": err.Error()})
	case errors.Is(err, escrow.ErrExternalDependency):
		return c.JSON(http.StatusBadGateway, echo.Map{"error": "an external service is unavailable, please retry"})
	default:
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "internal error"})
	}
}
