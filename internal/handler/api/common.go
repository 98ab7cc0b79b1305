package api

import (
	"errors"
	"net/http"

	"Aegis/internal/domain/models"
	"Aegis/pkg/auth"
	xhttp "Aegis/pkg/http"
	xlogger "Aegis/pkg/logger"

	"github.com/labstack/echo/v4"
)

// RouteGuards are the middlewares handlers attach to their routes.
// OptionalAuth guards the websocket upgrade and may read ?token=.
type RouteGuards struct {
	RequireAuth  echo.MiddlewareFunc
	OptionalAuth echo.MiddlewareFunc
	RateLimit    echo.MiddlewareFunc
}

func passthrough(next echo.HandlerFunc) echo.HandlerFunc { return next }

func (g RouteGuards) orPass(m echo.MiddlewareFunc) echo.MiddlewareFunc {
	if m == nil {
		return passthrough
	}
	return m
}

// identity returns the caller established by the auth middleware.
func identity(c echo.Context) *models.Identity {
	cl := auth.ClaimsFrom(c)
	if cl == nil {
		return &models.Identity{}
	}
	return &models.Identity{UserID: cl.UserID(), Email: cl.Email, Role: cl.Role}
}

// toAppError maps domain errors to HTTP errors.
func toAppError(err error) *xhttp.AppError {
	var verr *models.ValidationError
	switch {
	case errors.As(err, &verr):
		return xhttp.ValidationFailedError(verr.Fields).WithError(err)
	case errors.Is(err, models.ErrUnauthenticated):
		return xhttp.UnauthorizedError("authentication required").WithError(err)
	case errors.Is(err, models.ErrNotFound):
		return xhttp.NotFoundError("not found").WithError(err)
	case errors.Is(err, models.ErrInvalidTransition):
		return xhttp.NewAppError("ERR_INVALID_TRANSITION", "nextAction", err.Error(), http.StatusBadRequest).WithError(err)
	case errors.Is(err, models.ErrQueueFailure):
		return xhttp.ServiceUnavailableError("queue unavailable, retry later").WithError(err)
	default:
		return xhttp.InternalError("internal error").WithError(err)
	}
}

func errorResponse(c echo.Context, lgr *xlogger.Logger, op string, err error) error {
	appErr := toAppError(err)
	if appErr.Status >= http.StatusInternalServerError {
		lgr.Error(op+" failed",
			xlogger.String("request_id", c.Response().Header().Get(echo.HeaderXRequestID)),
			xlogger.Error(err))
	}
	return xhttp.AppErrorResponse(c, appErr)
}
