package handlers

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/sheetdrop/sheetdrop/internal/version"
)

// PingHandler serves the landing and health pages.
type PingHandler struct{}

// NewPingHandler builds the ping handler.
func NewPingHandler() *PingHandler {
	return &PingHandler{}
}

// Register registers routes on the Echo instance.
func (h *PingHandler) Register(e *echo.Echo) {
	e.GET("/", h.Landing)
	e.GET("/health", h.Health)
}

// Landing serves a minimal landing page.
func (h *PingHandler) Landing(c echo.Context) error {
	return c.HTML(http.StatusOK,
		`<!DOCTYPE html><html><body><h3>sheetdrop</h3><p>WhatsApp contacts to spreadsheets. Message the bot to get started.</p></body></html>`)
}

// Health reports service liveness and version.
func (h *PingHandler) Health(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]string{
		"status":  "ok",
		"version": version.GetInfo(),
	})
}
