package api

import (
	"Aegis/internal/domain/models"
	"Aegis/internal/usecase"
	xhttp "Aegis/pkg/http"
	xlogger "Aegis/pkg/logger"

	"github.com/labstack/echo/v4"
)

// SignalsEchoHandler serves owner-scoped signal reads and decisions.
type SignalsEchoHandler struct {
	logger  *xlogger.Logger
	signals *usecase.SignalsUsecase
	guards  RouteGuards
}

func NewSignalsEchoHandler(logger *xlogger.Logger, signals *usecase.SignalsUsecase, guards RouteGuards) *SignalsEchoHandler {
	return &SignalsEchoHandler{logger: logger, signals: signals, guards: guards}
}

func (h *SignalsEchoHandler) RegisterRoutes(e *echo.Echo) {
	g := e.Group("/api", h.guards.orPass(h.guards.RequireAuth))
	g.GET("/signals", h.List)
	g.GET("/signals/:id", h.Get)
	g.POST("/signals/:id/decisions", h.AppendDecision)
}

func (h *SignalsEchoHandler) List(c echo.Context) error {
	q := &models.SignalQuery{}
	if verr := xhttp.ValidateQuery(c, q); verr != nil {
		return xhttp.AppErrorResponse(c, xhttp.ValidationFailedError(verr))
	}

	rows, err := h.signals.List(c.Request().Context(), identity(c), *q)
	if err != nil {
		return errorResponse(c, h.logger, "list signals", err)
	}
	return xhttp.ListResponse(c, rows, int64(len(rows)))
}

func (h *SignalsEchoHandler) Get(c echo.Context) error {
	sig, err := h.signals.Get(c.Request().Context(), identity(c), c.Param("id"))
	if err != nil {
		return errorResponse(c, h.logger, "get signal", err)
	}
	return xhttp.SuccessResponse(c, map[string]interface{}{"signal": sig})
}

func (h *SignalsEchoHandler) AppendDecision(c echo.Context) error {
	req := &models.DecisionRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.AppErrorResponse(c, xhttp.ValidationFailedError(verr))
	}

	d, sig, err := h.signals.AppendDecision(c.Request().Context(), identity(c), c.Param("id"), *req)
	if err != nil {
		return errorResponse(c, h.logger, "append decision", err)
	}
	return xhttp.SuccessResponse(c, map[string]interface{}{"decision": d, "signal": sig})
}
