package api

import (
	"context"
	"time"

	"github.com/labstack/echo/v4"

	xhttp "SignalGrid/pkg/http"
)

// HealthChecker reports whether a dependency is reachable.
type HealthChecker interface {
	Health(ctx context.Context) error
}

// HealthHandler reports store reachability and live counters.
type HealthHandler struct {
	store   HealthChecker
	viewers func() int
	session func() string
	timeout time.Duration
}

func NewHealthHandler(store HealthChecker, viewers func() int, session func() string) *HealthHandler {
	return &HealthHandler{store: store, viewers: viewers, session: session, timeout: 2 * time.Second}
}

func (h *HealthHandler) RegisterRoutes(e *echo.Echo) {
	e.GET("/healthz", h.Check)
}

type healthResponse struct {
	Store   string `json:"store"`
	Viewers int    `json:"viewers"`
	Session string `json:"session,omitempty"`
	Error   string `json:"error,omitempty"`
}

// Check handles GET /healthz. The service keeps serving from memory when the
// store is down, so an unreachable store reports 503 but is not fatal.
func (h *HealthHandler) Check(c echo.Context) error {
	resp := healthResponse{Store: "ok"}
	if h.viewers != nil {
		resp.Viewers = h.viewers()
	}
	if h.session != nil {
		resp.Session = h.session()
	}
	if h.store != nil {
		ctx, cancel := context.WithTimeout(c.Request().Context(), h.timeout)
		defer cancel()
		if err := h.store.Health(ctx); err != nil {
			resp.Store = "unavailable"
			resp.Error = err.Error()
			return xhttp.ServiceUnavailableResponse(c, resp)
		}
	}
	return xhttp.SuccessResponse(c, resp)
}
