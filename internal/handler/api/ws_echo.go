package api

import (
	"context"
	"net/http"

	drepo "Aegis/internal/domain/repository"
	"Aegis/internal/realtime"
	xlogger "Aegis/pkg/logger"

	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"
)

// WSEchoHandler upgrades /ws and runs one realtime.Conn per client.
type WSEchoHandler struct {
	logger   *xlogger.Logger
	hub      *realtime.Hub
	cfg      realtime.Config
	metrics  drepo.Metrics
	guards   RouteGuards
	upgrader websocket.Upgrader
	baseCtx  context.Context
}

func NewWSEchoHandler(logger *xlogger.Logger, hub *realtime.Hub, cfg realtime.Config, metrics drepo.Metrics, guards RouteGuards) *WSEchoHandler {
	return &WSEchoHandler{
		logger:  logger,
		hub:     hub,
		cfg:     cfg,
		metrics: metrics,
		guards:  guards,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
		baseCtx: context.Background(),
	}
}

func (h *WSEchoHandler) RegisterRoutes(e *echo.Echo) {
	e.GET("/ws", h.Serve, h.guards.orPass(h.guards.OptionalAuth))
}

// Serve blocks for the lifetime of the connection.
func (h *WSEchoHandler) Serve(c echo.Context) error {
	ws, err := h.upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		h.logger.Warn("websocket upgrade failed", xlogger.Error(err))
		return nil
	}

	conn := realtime.NewConn(ws, identity(c).UserID, h.cfg, h.logger, h.metrics)
	h.hub.Register(conn)
	defer h.hub.Unregister(conn)

	conn.Run(h.baseCtx)
	return nil
}
