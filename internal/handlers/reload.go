package handlers

import (
	"context"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/Andromedov/DiscordVerificator/internal/messages"
)

// Reloader re-reads runtime configuration and restarts the notification
// session.
type Reloader interface {
	Reload(ctx context.Context) error
}

// ReloadHandler exposes the operator reload command over HTTP.
type ReloadHandler struct {
	reloader Reloader
	catalog  *messages.Catalog
}

// NewReloadHandler creates the reload handler.
func NewReloadHandler(reloader Reloader, catalog *messages.Catalog) *ReloadHandler {
	return &ReloadHandler{reloader: reloader, catalog: catalog}
}

// Register registers the reload route.
func (h *ReloadHandler) Register(e *echo.Echo) {
	e.POST("/v1/reload", h.Reload)
}

// Reload applies the current config file and restarts the session. The
// response carries a generic success or failure message only.
func (h *ReloadHandler) Reload(c echo.Context) error {
	if err := h.reloader.Reload(c.Request().Context()); err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, h.catalog.Get(messages.KeyActionFailed))
	}
	return c.JSON(http.StatusOK, messageResponse{Message: h.catalog.Get(messages.KeyActionSuccess)})
}
