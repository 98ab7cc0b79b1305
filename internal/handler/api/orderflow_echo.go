package api

import (
	"Aegis/internal/domain/models"
	"Aegis/internal/usecase"
	xhttp "Aegis/pkg/http"
	xlogger "Aegis/pkg/logger"

	"github.com/labstack/echo/v4"
)

// OrderFlowEchoHandler serves the ingestion endpoint.
type OrderFlowEchoHandler struct {
	logger  *xlogger.Logger
	gateway *usecase.OrderFlowGateway
	guards  RouteGuards
}

func NewOrderFlowEchoHandler(logger *xlogger.Logger, gateway *usecase.OrderFlowGateway, guards RouteGuards) *OrderFlowEchoHandler {
	return &OrderFlowEchoHandler{logger: logger, gateway: gateway, guards: guards}
}

func (h *OrderFlowEchoHandler) RegisterRoutes(e *echo.Echo) {
	e.POST("/orderflow", h.Submit, h.guards.orPass(h.guards.RequireAuth), h.guards.orPass(h.guards.RateLimit))
}

func (h *OrderFlowEchoHandler) Submit(c echo.Context) error {
	req := &models.OrderFlowRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.AppErrorResponse(c, xhttp.ValidationFailedError(verr))
	}

	eventID, err := h.gateway.Submit(c.Request().Context(), identity(c), req.AccountID, req.Payload)
	if err != nil {
		return errorResponse(c, h.logger, "orderflow submit", err)
	}
	return xhttp.SuccessResponse(c, models.OrderFlowResponse{EventID: eventID})
}
