package api

import (
	"net/http"

	"github.com/labstack/echo/v4"

	applogger "SignalGrid/pkg/logger"
)

// Upgrader turns an HTTP request into a live viewer connection.
type Upgrader interface {
	ServeWS(w http.ResponseWriter, r *http.Request) error
}

// WSHandler serves the viewer websocket.
type WSHandler struct {
	hub Upgrader
	log *applogger.Logger
}

func NewWSHandler(hub Upgrader, log *applogger.Logger) *WSHandler {
	if log == nil {
		log = applogger.Nop()
	}
	return &WSHandler{hub: hub, log: log}
}

func (h *WSHandler) RegisterRoutes(e *echo.Echo) {
	e.GET("/ws", h.Serve)
}

// Serve handles GET /ws. The upgrader writes its own error response.
func (h *WSHandler) Serve(c echo.Context) error {
	if err := h.hub.ServeWS(c.Response(), c.Request()); err != nil {
		h.log.Debug("websocket upgrade failed", applogger.String("remote", c.RealIP()), applogger.Error(err))
	}
	return nil
}
