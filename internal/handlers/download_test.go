package handlers

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sheetdrop/sheetdrop/internal/artifact"
	"github.com/sheetdrop/sheetdrop/internal/contact"
	"github.com/sheetdrop/sheetdrop/internal/store"
	"github.com/sheetdrop/sheetdrop/internal/tabular"
)

func newDownloadEnv(t *testing.T, passwords bool) (*echo.Echo, *artifact.Service, artifact.Stored) {
	t.Helper()
	artifacts := artifact.NewService(nil, store.NewMemory(),
		"https://sheets.example.com", 30*time.Minute, passwords)

	stored, err := artifacts.Emit(context.Background(), "u",
		[]contact.Contact{{Name: "John Doe", Mobile: "+2348123456789", Passes: 1}},
		tabular.FormatCSV)
	require.NoError(t, err)

	e := echo.New()
	NewDownloadHandler(nil, artifacts).Register(e)
	return e, artifacts, stored
}

func get(e *echo.Echo, path string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, path, nil)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	return rec
}

func TestDownloadServesAttachment(t *testing.T) {
	e, artifacts, stored := newDownloadEnv(t, false)

	rec := get(e, "/download/"+stored.ID)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Header().Get(echo.HeaderContentType), "text/csv")
	assert.Contains(t, rec.Header().Get(echo.HeaderContentDisposition), `attachment; filename="contacts-`)
	assert.Equal(t, "no-store, no-cache, must-revalidate", rec.Header().Get("Cache-Control"))
	assert.Contains(t, rec.Body.String(), "John Doe,+2348123456789")

	art, err := artifacts.Get(context.Background(), stored.ID)
	require.NoError(t, err)
	assert.Equal(t, strconv.Itoa(len(art.Content)), rec.Header().Get(echo.HeaderContentLength))
}

func TestDownloadUnknownIDIs404(t *testing.T) {
	e, _, _ := newDownloadEnv(t, false)

	for _, id := range []string{uuid.NewString(), "not-a-uuid"} {
		rec := get(e, "/download/"+id)
		require.Equal(t, http.StatusNotFound, rec.Code, "id %s", id)
		assert.Contains(t, rec.Body.String(), "invalid or has expired")
	}
}

func TestDownloadPasswordFlow(t *testing.T) {
	e, _, stored := newDownloadEnv(t, true)
	require.Len(t, stored.Password, 6)

	wrong := "000000"
	if stored.Password == wrong {
		wrong = "111111"
	}

	// No password and a wrong password both get the same form.
	for _, path := range []string{
		"/download/" + stored.ID,
		"/download/" + stored.ID + "?p=" + wrong,
	} {
		rec := get(e, path)
		require.Equal(t, http.StatusOK, rec.Code)
		assert.Contains(t, rec.Body.String(), "Protected download", "path %s", path)
	}

	rec := get(e, "/download/"+stored.ID+"?p="+stored.Password)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "John Doe")
}

func TestFilesHeadPrefetch(t *testing.T) {
	e, artifacts, stored := newDownloadEnv(t, false)

	req := httptest.NewRequest(http.MethodHead, "/files/"+stored.ID, nil)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, rec.Body.Bytes())

	art, err := artifacts.Get(context.Background(), stored.ID)
	require.NoError(t, err)
	assert.Equal(t, strconv.Itoa(len(art.Content)), rec.Header().Get(echo.HeaderContentLength))
	assert.Equal(t, art.ContentType, rec.Header().Get(echo.HeaderContentType))
}

func TestFilesHeadWrongPassword(t *testing.T) {
	e, _, stored := newDownloadEnv(t, true)

	req := httptest.NewRequest(http.MethodHead, "/files/"+stored.ID+"?p=000000", nil)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)

	require.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestFilesGetServesMedia(t *testing.T) {
	e, _, stored := newDownloadEnv(t, false)

	rec := get(e, "/files/"+stored.ID)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "John Doe")
}
