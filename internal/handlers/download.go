package handlers

import (
	"crypto/subtle"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"

	"github.com/sheetdrop/sheetdrop/internal/artifact"
)

// DownloadHandler serves stored artifacts by opaque identifier.
// /download is the human-facing link; /files is the media URL the
// provider pre-fetches with HEAD before GET.
type DownloadHandler struct {
	artifacts *artifact.Service
	logger    *slog.Logger
}

// NewDownloadHandler builds the download handler.
func NewDownloadHandler(log *slog.Logger, artifacts *artifact.Service) *DownloadHandler {
	if log == nil {
		log = slog.Default()
	}
	return &DownloadHandler{
		artifacts: artifacts,
		logger:    log.With(slog.String("handler", "download")),
	}
}

// Register registers routes on the Echo instance.
func (h *DownloadHandler) Register(e *echo.Echo) {
	e.GET("/download/:id", h.Get)
	e.GET("/files/:id", h.Get)
	e.HEAD("/files/:id", h.Head)
}

// Get serves the artifact bytes with attachment headers, or the
// password page when one is required and the query parameter is
// missing or wrong. Missing and expired artifacts are
// indistinguishable 404s.
func (h *DownloadHandler) Get(c echo.Context) error {
	art, err := h.fetch(c)
	if err != nil || art == nil {
		return notFound(c)
	}
	if !passwordOK(art, c.QueryParam("p")) {
		return passwordPage(c)
	}

	writeFileHeaders(c, art)
	return c.Blob(http.StatusOK, art.ContentType, art.Content)
}

// Head answers the provider's pre-fetch: same headers as Get with the
// correct length and no body. Unlike Get, a missing or wrong password
// is a bare 401 here: the prefetch client cannot render the password
// form, and passworded artifacts are only ever delivered in link mode.
func (h *DownloadHandler) Head(c echo.Context) error {
	art, err := h.fetch(c)
	if err != nil || art == nil {
		return c.NoContent(http.StatusNotFound)
	}
	if !passwordOK(art, c.QueryParam("p")) {
		return c.NoContent(http.StatusUnauthorized)
	}

	writeFileHeaders(c, art)
	c.Response().Header().Set(echo.HeaderContentType, art.ContentType)
	return c.NoContent(http.StatusOK)
}

func (h *DownloadHandler) fetch(c echo.Context) (*artifact.Artifact, error) {
	id := c.Param("id")
	art, err := h.artifacts.Get(c.Request().Context(), id)
	if err != nil {
		h.logger.Error("artifact lookup failed",
			slog.String("id", id), slog.Any("error", err))
	}
	return art, err
}

func passwordOK(art *artifact.Artifact, supplied string) bool {
	if art.Password == "" {
		return true
	}
	return subtle.ConstantTimeCompare([]byte(art.Password), []byte(supplied)) == 1
}

func writeFileHeaders(c echo.Context, art *artifact.Artifact) {
	header := c.Response().Header()
	header.Set(echo.HeaderContentDisposition,
		fmt.Sprintf(`attachment; filename=%q`, art.Filename))
	header.Set("Cache-Control", "no-store, no-cache, must-revalidate")
	header.Set("Pragma", "no-cache")
	header.Set(echo.HeaderContentLength, strconv.Itoa(len(art.Content)))
}

func notFound(c echo.Context) error {
	return c.HTML(http.StatusNotFound,
		`<!DOCTYPE html><html><body><h3>File not found</h3><p>This download link is invalid or has expired.</p></body></html>`)
}

// passwordPage is served for both a missing and a wrong password so
// the two cases cannot be told apart.
func passwordPage(c echo.Context) error {
	return c.HTML(http.StatusOK,
		`<!DOCTYPE html><html><body><h3>Protected download</h3>`+
			`<form method="get"><input type="text" name="p" placeholder="6-digit password" maxlength="6">`+
			`<button type="submit">Download</button></form></body></html>`)
}
