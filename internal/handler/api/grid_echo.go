package api

import (
	"github.com/labstack/echo/v4"

	"SignalGrid/internal/domain/models"
	xhttp "SignalGrid/pkg/http"
)

// GridReader is the read side of the grid engine.
type GridReader interface {
	Snapshot() models.GridSnapshot
	Record(key string) (*models.GridRecord, bool)
}

// GridHandler exposes the grid for debugging and non-streaming clients.
type GridHandler struct {
	grid GridReader
}

func NewGridHandler(grid GridReader) *GridHandler {
	return &GridHandler{grid: grid}
}

func (h *GridHandler) RegisterRoutes(e *echo.Echo) {
	g := e.Group("/api/grid")
	g.GET("", h.Snapshot)
	g.GET("/:key", h.Record)
}

// Snapshot handles GET /api/grid. ?limit=N keeps the N most recent rows.
func (h *GridHandler) Snapshot(c echo.Context) error {
	snap := h.grid.Snapshot()
	limit := xhttp.ParseIntDefault(c.QueryParam("limit"), 0)
	if limit > 0 && limit < len(snap.SymbolOrder) {
		for _, k := range snap.SymbolOrder[limit:] {
			delete(snap.State, k)
		}
		snap.SymbolOrder = snap.SymbolOrder[:limit]
	}
	c.Response().Header().Set(echo.HeaderCacheControl, "no-store")
	return xhttp.SuccessResponse(c, snap)
}

type recordResponse struct {
	Key         string       `json:"symbolDate"`
	Slots       models.Slots `json:"stateData"`
	LastUpdated string       `json:"lastUpdated"`
}

// Record handles GET /api/grid/:key.
func (h *GridHandler) Record(c echo.Context) error {
	key := c.Param("key")
	rec, ok := h.grid.Record(key)
	if !ok {
		return xhttp.AppErrorResponse(c, xhttp.NotFoundErrorf("grid row %q not found", key))
	}
	return xhttp.SuccessResponse(c, recordResponse{
		Key:         rec.Key.String(),
		Slots:       rec.Slots,
		LastUpdated: rec.LastUpdated.UTC().Format("2006-01-02T15:04:05.000Z07:00"),
	})
}
