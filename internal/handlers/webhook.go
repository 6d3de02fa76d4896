// Package handlers registers the HTTP surface: the provider webhook,
// the artifact download endpoints, and the health pages.
package handlers

import (
	"encoding/xml"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/sheetdrop/sheetdrop/internal/convo"
)

// twimlResponse is the provider's reply dialect: a Response element
// wrapping zero or more Message elements.
type twimlResponse struct {
	XMLName  xml.Name       `xml:"Response"`
	Messages []twimlMessage `xml:"Message,omitempty"`
}

type twimlMessage struct {
	Body  string `xml:"Body,omitempty"`
	Media string `xml:"Media,omitempty"`
}

// WebhookHandler receives inbound message deliveries from the
// messaging provider.
type WebhookHandler struct {
	service *convo.Service
	logger  *slog.Logger
}

// NewWebhookHandler builds the webhook handler.
func NewWebhookHandler(log *slog.Logger, service *convo.Service) *WebhookHandler {
	if log == nil {
		log = slog.Default()
	}
	return &WebhookHandler{
		service: service,
		logger:  log.With(slog.String("handler", "webhook")),
	}
}

// Register registers routes on the Echo instance.
func (h *WebhookHandler) Register(e *echo.Echo) {
	e.POST("/webhook", h.Receive)
}

// Receive decodes the form-encoded delivery, advances the conversation,
// and renders the synchronous TwiML reply. The response is always 200
// with a valid envelope: a broken payload gets an empty Response and a
// log line, never an error page the provider would retry.
func (h *WebhookHandler) Receive(c echo.Context) error {
	ev, err := decodeEvent(c)
	if err != nil {
		h.logger.Error("malformed webhook payload", slog.Any("error", err))
		return respondTwiML(c, convo.Reply{})
	}

	reply, err := h.service.HandleInbound(c.Request().Context(), ev)
	if err != nil {
		h.logger.Error("inbound handling failed",
			slog.String("from", ev.From), slog.Any("error", err))
		return respondTwiML(c, convo.Reply{
			Body: "Something went wrong on my end. Please try that again.",
		})
	}
	return respondTwiML(c, reply)
}

func decodeEvent(c echo.Context) (convo.Event, error) {
	from := strings.TrimSpace(c.FormValue("From"))
	if from == "" {
		return convo.Event{}, fmt.Errorf("missing From field")
	}

	ev := convo.Event{
		From:   from,
		Body:   c.FormValue("Body"),
		Button: c.FormValue("ButtonPayload"),
	}
	if ev.Button == "" {
		ev.Button = c.FormValue("ButtonText")
	}

	numMedia, err := strconv.Atoi(strings.TrimSpace(c.FormValue("NumMedia")))
	if err != nil || numMedia < 0 {
		numMedia = 0
	}
	for i := 0; i < numMedia; i++ {
		url := strings.TrimSpace(c.FormValue(fmt.Sprintf("MediaUrl%d", i)))
		if url == "" {
			continue
		}
		ev.Media = append(ev.Media, convo.MediaItem{
			URL:         url,
			ContentType: c.FormValue(fmt.Sprintf("MediaContentType%d", i)),
		})
	}
	return ev, nil
}

func respondTwiML(c echo.Context, reply convo.Reply) error {
	resp := twimlResponse{}
	if !reply.Empty() {
		resp.Messages = []twimlMessage{{
			Body:  reply.Body,
			Media: reply.MediaURL,
		}}
	}

	out, err := xml.Marshal(resp)
	if err != nil {
		return err
	}
	return c.Blob(http.StatusOK, "text/xml; charset=utf-8",
		append([]byte(xml.Header), out...))
}
