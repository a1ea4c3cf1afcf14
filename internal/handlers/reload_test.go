package handlers

import (
	"context"
	"errors"
	"net/http"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"

	"github.com/Andromedov/DiscordVerificator/internal/messages"
)

type fakeReloader struct {
	calls int
	err   error
}

func (f *fakeReloader) Reload(context.Context) error {
	f.calls++
	return f.err
}

func TestReloadEndpoint(t *testing.T) {
	rl := &fakeReloader{}
	e := echo.New()
	NewReloadHandler(rl, messages.NewCatalog(nil)).Register(e)

	rec := postJSON(t, e, "/v1/reload", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 1, rl.calls)
}

func TestReloadEndpointFailure(t *testing.T) {
	rl := &fakeReloader{err: errors.New("session start failed")}
	e := echo.New()
	NewReloadHandler(rl, messages.NewCatalog(nil)).Register(e)

	rec := postJSON(t, e, "/v1/reload", "")
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.NotContains(t, rec.Body.String(), "session start failed")
}
