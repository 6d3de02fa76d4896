package handlers

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sheetdrop/sheetdrop/internal/artifact"
	"github.com/sheetdrop/sheetdrop/internal/convo"
	"github.com/sheetdrop/sheetdrop/internal/session"
	"github.com/sheetdrop/sheetdrop/internal/store"
	"github.com/sheetdrop/sheetdrop/internal/tabular"
	"github.com/sheetdrop/sheetdrop/internal/whatsapp"
)

type stubSender struct{}

func (stubSender) SendText(context.Context, string, string) error                        { return nil }
func (stubSender) SendMedia(context.Context, string, string, string) error               { return nil }
func (stubSender) SendTemplate(context.Context, string, string, map[string]string) error { return nil }

type stubFetcher struct {
	media map[string]whatsapp.Media
}

func (s stubFetcher) FetchMedia(_ context.Context, url string) (whatsapp.Media, error) {
	m, ok := s.media[url]
	if !ok {
		return whatsapp.Media{}, errors.New("no such media")
	}
	return m, nil
}

func newWebhookEnv(media map[string]whatsapp.Media) (*echo.Echo, *artifact.Service) {
	mem := store.NewMemory()
	artifacts := artifact.NewService(nil, mem, "https://sheets.example.com", 30*time.Minute, false)
	svc := convo.NewService(nil, session.NewService(mem), artifacts,
		stubSender{}, stubFetcher{media: media}, nil, "", tabular.FormatCSV)

	e := echo.New()
	NewWebhookHandler(nil, svc).Register(e)
	return e, artifacts
}

func postWebhook(e *echo.Echo, form url.Values) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/webhook",
		strings.NewReader(form.Encode()))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationForm)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	return rec
}

func TestWebhookTextReply(t *testing.T) {
	e, _ := newWebhookEnv(nil)

	rec := postWebhook(e, url.Values{
		"From": {"whatsapp:+2348000000000"},
		"Body": {"help"},
	})

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Header().Get(echo.HeaderContentType), "text/xml")
	body := rec.Body.String()
	assert.True(t, strings.HasPrefix(body, "<?xml"))
	assert.Contains(t, body, "<Response><Message><Body>")
	assert.Contains(t, body, "Send contact attachments")
}

func TestWebhookMediaDelivery(t *testing.T) {
	card := "BEGIN:VCARD\nVERSION:3.0\nFN:John Doe\nTEL:08123456789\nEND:VCARD"
	e, _ := newWebhookEnv(map[string]whatsapp.Media{
		"https://api.twilio.com/m/0": {Data: []byte(card), ContentType: "text/vcard"},
	})

	rec := postWebhook(e, url.Values{
		"From":              {"whatsapp:+2348000000000"},
		"NumMedia":          {"1"},
		"MediaUrl0":         {"https://api.twilio.com/m/0"},
		"MediaContentType0": {"text/vcard"},
	})

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "Saved 1 contact(s) so far.")
}

func TestWebhookMissingFromGetsEmptyEnvelope(t *testing.T) {
	e, _ := newWebhookEnv(nil)

	rec := postWebhook(e, url.Values{"Body": {"hello"}})

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "<Response></Response>")
}

func TestWebhookSilentDropRendersEmptyEnvelope(t *testing.T) {
	mem := store.NewMemory()
	artifacts := artifact.NewService(nil, mem, "https://sheets.example.com", 30*time.Minute, false)
	svc := convo.NewService(nil, session.NewService(mem), artifacts,
		stubSender{}, stubFetcher{}, []string{"+2349999999999"}, "", tabular.FormatCSV)
	e := echo.New()
	NewWebhookHandler(nil, svc).Register(e)

	rec := postWebhook(e, url.Values{
		"From": {"whatsapp:+2348000000000"},
		"Body": {"hello"},
	})

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "<Response></Response>")
}

func TestWebhookEscapesReplyBody(t *testing.T) {
	e, _ := newWebhookEnv(nil)

	// The staged reminder embeds no markup, but the envelope itself must
	// stay well-formed XML whatever the reply contains.
	rec := postWebhook(e, url.Values{
		"From": {"whatsapp:+2348000000000"},
		"Body": {"<script>alert(1)</script>"},
	})

	require.Equal(t, http.StatusOK, rec.Code)
	assert.NotContains(t, rec.Body.String(), "<script>")
}

func TestWebhookButtonPayload(t *testing.T) {
	e, _ := newWebhookEnv(nil)

	rec := postWebhook(e, url.Values{
		"From":          {"whatsapp:+2348000000000"},
		"ButtonPayload": {"help"},
	})

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "Send contact attachments")
}
