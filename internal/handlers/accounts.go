package handlers

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/Andromedov/DiscordVerificator/internal/accounts"
	"github.com/Andromedov/DiscordVerificator/internal/messages"
)

// AccountStore is the subset of the account store the operator endpoints
// need.
type AccountStore interface {
	Link(ctx context.Context, externalID, player string) error
	Unlink(ctx context.Context, player string) error
	Info(ctx context.Context, player string) (accounts.PlayerInfo, error)
	SetBlocked(ctx context.Context, externalID string, blocked bool) error
	SetSharedAddressAllowed(ctx context.Context, externalID string, allowed bool) error
}

// AccountsHandler exposes operator commands: link, unlink, player info, and
// the allow/block decisions mirrored from the alert buttons.
type AccountsHandler struct {
	store   AccountStore
	catalog *messages.Catalog
}

// NewAccountsHandler creates the accounts handler.
func NewAccountsHandler(store AccountStore, catalog *messages.Catalog) *AccountsHandler {
	return &AccountsHandler{store: store, catalog: catalog}
}

// Register registers the operator routes.
func (h *AccountsHandler) Register(e *echo.Echo) {
	e.POST("/v1/links", h.Link)
	e.DELETE("/v1/links/:player", h.Unlink)
	e.GET("/v1/players/:player", h.Info)
	e.POST("/v1/decisions", h.Decide)
}

type linkRequest struct {
	ExternalID string `json:"external_id"`
	Player     string `json:"player"`
}

type messageResponse struct {
	Message string `json:"message"`
}

// Link binds a player name to an external account.
func (h *AccountsHandler) Link(c echo.Context) error {
	var req linkRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	req.ExternalID = strings.TrimSpace(req.ExternalID)
	req.Player = strings.TrimSpace(req.Player)
	if req.ExternalID == "" || req.Player == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "external_id and player are required")
	}

	err := h.store.Link(c.Request().Context(), req.ExternalID, req.Player)
	if errors.Is(err, accounts.ErrAlreadyLinked) {
		return echo.NewHTTPError(http.StatusConflict, h.catalog.Get(messages.KeyAlreadyLinked))
	}
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, h.catalog.Get(messages.KeyGenericFailure))
	}
	return c.JSON(http.StatusOK, messageResponse{Message: h.catalog.Get(messages.KeyLinked)})
}

// Unlink removes a player link.
func (h *AccountsHandler) Unlink(c echo.Context) error {
	player := strings.TrimSpace(c.Param("player"))
	if player == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "player is required")
	}

	err := h.store.Unlink(c.Request().Context(), player)
	if errors.Is(err, accounts.ErrNotFound) {
		return echo.NewHTTPError(http.StatusNotFound, h.catalog.Get(messages.KeyPlayerNotLinked))
	}
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, h.catalog.Get(messages.KeyGenericFailure))
	}
	return c.JSON(http.StatusOK, messageResponse{Message: h.catalog.Get(messages.KeyUnlinked)})
}

// Info returns the operator-facing view of one linked player.
func (h *AccountsHandler) Info(c echo.Context) error {
	player := strings.TrimSpace(c.Param("player"))
	if player == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "player is required")
	}

	info, err := h.store.Info(c.Request().Context(), player)
	if errors.Is(err, accounts.ErrNotFound) {
		return echo.NewHTTPError(http.StatusNotFound, h.catalog.Get(messages.KeyPlayerNotLinked))
	}
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, h.catalog.Get(messages.KeyGenericFailure))
	}
	return c.JSON(http.StatusOK, info)
}

type decisionRequest struct {
	Action     string `json:"action"`
	ExternalID string `json:"external_id"`
}

// Decide applies an operator allow/block decision. The response carries a
// generic success or failure message only.
func (h *AccountsHandler) Decide(c echo.Context) error {
	var req decisionRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	req.ExternalID = strings.TrimSpace(req.ExternalID)
	if req.ExternalID == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "external_id is required")
	}

	var err error
	switch strings.ToLower(strings.TrimSpace(req.Action)) {
	case "allow":
		err = h.store.SetSharedAddressAllowed(c.Request().Context(), req.ExternalID, true)
	case "block":
		err = h.store.SetBlocked(c.Request().Context(), req.ExternalID, true)
	default:
		return echo.NewHTTPError(http.StatusBadRequest, "action must be allow or block")
	}

	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, h.catalog.Get(messages.KeyActionFailed))
	}
	return c.JSON(http.StatusOK, messageResponse{Message: h.catalog.Get(messages.KeyActionSuccess)})
}
