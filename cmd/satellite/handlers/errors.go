package handlers

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/junobuild/satellite/common/faults"
)

// httpError maps the engine's error taxonomy to HTTP status codes
func httpError(err error) *echo.HTTPError {
	switch {
	case errors.Is(err, faults.ErrNotFound):
		return echo.NewHTTPError(http.StatusNotFound, err.Error())
	case errors.Is(err, faults.ErrPermissionDenied):
		return echo.NewHTTPError(http.StatusForbidden, err.Error())
	case errors.Is(err, faults.ErrInvalidState):
		return echo.NewHTTPError(http.StatusConflict, err.Error())
	case errors.Is(err, faults.ErrIntegrityMismatch):
		return echo.NewHTTPError(http.StatusConflict, err.Error())
	case errors.Is(err, faults.ErrValidation):
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	case errors.Is(err, faults.ErrCertification):
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	default:
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
}
