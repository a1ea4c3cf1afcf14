package handlers

import (
	"context"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/Andromedov/DiscordVerificator/internal/authorize"
	"github.com/Andromedov/DiscordVerificator/internal/messages"
)

// Authorizer evaluates connection attempts.
type Authorizer interface {
	Authorize(ctx context.Context, req authorize.Request) (authorize.Decision, error)
}

// AuthorizeHandler exposes the decision engine to the game server's
// pre-login hook.
type AuthorizeHandler struct {
	engine  Authorizer
	catalog *messages.Catalog
}

// NewAuthorizeHandler creates the authorize handler.
func NewAuthorizeHandler(engine Authorizer, catalog *messages.Catalog) *AuthorizeHandler {
	return &AuthorizeHandler{engine: engine, catalog: catalog}
}

// Register registers the authorize route.
func (h *AuthorizeHandler) Register(e *echo.Echo) {
	e.POST("/v1/authorize", h.Authorize)
}

type authorizeRequest struct {
	Player  string `json:"player"`
	Address string `json:"address"`
}

type authorizeResponse struct {
	Allow       bool   `json:"allow"`
	Reason      string `json:"reason"`
	Message     string `json:"message,omitempty"`
	WaitSeconds int64  `json:"wait_seconds,omitempty"`
	Code        string `json:"code,omitempty"`
}

// Authorize evaluates one connection attempt. Storage failures map to 502
// with a generic message; the game server denies on any non-200.
func (h *AuthorizeHandler) Authorize(c echo.Context) error {
	var req authorizeRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	req.Player = strings.TrimSpace(req.Player)
	req.Address = strings.TrimSpace(req.Address)
	if req.Player == "" || req.Address == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "player and address are required")
	}

	decision, err := h.engine.Authorize(c.Request().Context(), authorize.Request{
		Player:  req.Player,
		Address: req.Address,
	})
	if err != nil {
		return echo.NewHTTPError(http.StatusBadGateway, h.catalog.Get(messages.KeyGenericFailure))
	}

	return c.JSON(http.StatusOK, authorizeResponse{
		Allow:       decision.Allow,
		Reason:      string(decision.Reason),
		Message:     h.decisionMessage(decision),
		WaitSeconds: decision.WaitSeconds,
		Code:        decision.Code,
	})
}

func (h *AuthorizeHandler) decisionMessage(d authorize.Decision) string {
	switch d.Reason {
	case authorize.ReasonAllowed:
		return ""
	case authorize.ReasonNotLinked:
		return h.catalog.Get(messages.KeyNotLinked)
	case authorize.ReasonBlocked:
		return h.catalog.Get(messages.KeyBlocked)
	case authorize.ReasonChannelUnavailable:
		return h.catalog.Get(messages.KeyChannelDown)
	case authorize.ReasonSecurityCheck:
		return h.catalog.Get(messages.KeySecurityCheck)
	case authorize.ReasonThrottled:
		return h.catalog.Format(messages.KeyWaitBeforeRetry, d.WaitSeconds)
	case authorize.ReasonVerificationRequired:
		return h.catalog.Format(messages.KeyConfirmWithCode, d.Code)
	default:
		return h.catalog.Get(messages.KeyGenericFailure)
	}
}
