// Package whatsapp is the Twilio WhatsApp messaging adapter: outbound
// freeform, media and template messages, and authenticated inbound
// media fetching.
//
// The conversation layer answers inside the webhook response and only
// reaches for SendTemplate when delivering out of band; SendText and
// SendMedia complete the Sender surface for deployments that push
// results as separate messages instead of webhook replies.
package whatsapp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/twilio/twilio-go"
	openapi "github.com/twilio/twilio-go/rest/api/v2010"
	"golang.org/x/time/rate"
)

// Limits on inbound media fetches.
const (
	MaxMediaBytes = 20 << 20
	FetchTimeout  = 15 * time.Second
)

// ChannelPrefix marks WhatsApp identities in Twilio's address format.
const ChannelPrefix = "whatsapp:"

var (
	// ErrMediaTooLarge is returned when an attachment exceeds MaxMediaBytes.
	ErrMediaTooLarge = errors.New("media exceeds size limit")
	// ErrForbiddenHost is returned when a media URL points outside the
	// provider's domains. Webhook payloads are attacker-influencable,
	// so fetches are pinned to Twilio hosts.
	ErrForbiddenHost = errors.New("media url host not allowed")
)

// Sender is the outbound surface the conversation layer depends on.
type Sender interface {
	SendText(ctx context.Context, to, body string) error
	SendMedia(ctx context.Context, to, body, mediaURL string) error
	SendTemplate(ctx context.Context, to, templateSID string, variables map[string]string) error
}

// MediaFetcher fetches inbound attachment bytes from the provider.
type MediaFetcher interface {
	FetchMedia(ctx context.Context, mediaURL string) (Media, error)
}

// Media is one fetched inbound attachment.
type Media struct {
	Data        []byte
	ContentType string
	Filename    string
}

// Client talks to the Twilio REST API. Outbound sends are paced with a
// small rate limiter so burst replies stay inside the account limit.
type Client struct {
	rest       *twilio.RestClient
	http       *http.Client
	accountSID string
	authToken  string
	from       string
	limiter    *rate.Limiter
	logger     *slog.Logger
}

// NewClient builds the adapter. from is the WhatsApp sender identity
// (with or without the channel prefix).
func NewClient(log *slog.Logger, accountSID, authToken, from string) *Client {
	if log == nil {
		log = slog.Default()
	}
	return &Client{
		rest: twilio.NewRestClientWithParams(twilio.ClientParams{
			Username: accountSID,
			Password: authToken,
		}),
		http: &http.Client{
			Timeout: FetchTimeout,
			CheckRedirect: func(req *http.Request, _ []*http.Request) error {
				if !allowedHost(req.URL) {
					return ErrForbiddenHost
				}
				return nil
			},
		},
		accountSID: accountSID,
		authToken:  authToken,
		from:       EnsurePrefix(from),
		limiter:    rate.NewLimiter(rate.Limit(1), 3),
		logger:     log.With(slog.String("adapter", "whatsapp")),
	}
}

// SendText sends a freeform text message.
func (c *Client) SendText(ctx context.Context, to, body string) error {
	params := &openapi.CreateMessageParams{}
	params.SetFrom(c.from)
	params.SetTo(EnsurePrefix(to))
	params.SetBody(body)
	return c.create(ctx, params)
}

// SendMedia sends a message carrying a media URL the provider will
// fetch with HEAD then GET.
func (c *Client) SendMedia(ctx context.Context, to, body, mediaURL string) error {
	params := &openapi.CreateMessageParams{}
	params.SetFrom(c.from)
	params.SetTo(EnsurePrefix(to))
	if body != "" {
		params.SetBody(body)
	}
	params.SetMediaUrl([]string{mediaURL})
	return c.create(ctx, params)
}

// SendTemplate sends a pre-registered content template with positional
// variables.
func (c *Client) SendTemplate(ctx context.Context, to, templateSID string, variables map[string]string) error {
	raw, err := json.Marshal(variables)
	if err != nil {
		return fmt.Errorf("encode template variables: %w", err)
	}
	params := &openapi.CreateMessageParams{}
	params.SetFrom(c.from)
	params.SetTo(EnsurePrefix(to))
	params.SetContentSid(templateSID)
	params.SetContentVariables(string(raw))
	return c.create(ctx, params)
}

func (c *Client) create(ctx context.Context, params *openapi.CreateMessageParams) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return err
	}
	if _, err := c.rest.Api.CreateMessage(params); err != nil {
		return fmt.Errorf("create message: %w", err)
	}
	return nil
}

// FetchMedia downloads one inbound attachment. The URL must point at a
// Twilio host; the request is authenticated with the account
// credentials and the body capped at MaxMediaBytes.
func (c *Client) FetchMedia(ctx context.Context, mediaURL string) (Media, error) {
	parsed, err := url.Parse(mediaURL)
	if err != nil {
		return Media{}, fmt.Errorf("parse media url: %w", err)
	}
	if parsed.Scheme != "https" || !allowedHost(parsed) {
		return Media{}, ErrForbiddenHost
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, mediaURL, nil)
	if err != nil {
		return Media{}, err
	}
	req.SetBasicAuth(c.accountSID, c.authToken)

	resp, err := c.http.Do(req)
	if err != nil {
		return Media{}, fmt.Errorf("fetch media: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return Media{}, fmt.Errorf("fetch media: status %d", resp.StatusCode)
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, MaxMediaBytes+1))
	if err != nil {
		return Media{}, fmt.Errorf("read media body: %w", err)
	}
	if len(data) > MaxMediaBytes {
		return Media{}, ErrMediaTooLarge
	}

	media := Media{
		Data:        data,
		ContentType: resp.Header.Get("Content-Type"),
		Filename:    dispositionFilename(resp.Header.Get("Content-Disposition")),
	}
	c.logger.Debug("media fetched",
		slog.String("content_type", media.ContentType),
		slog.Int("bytes", len(media.Data)),
	)
	return media, nil
}

// EnsurePrefix adds the whatsapp: channel marker when absent.
func EnsurePrefix(addr string) string {
	if strings.HasPrefix(addr, ChannelPrefix) {
		return addr
	}
	return ChannelPrefix + addr
}

// StripPrefix removes the channel marker for allow-list comparison.
func StripPrefix(addr string) string {
	return strings.TrimPrefix(addr, ChannelPrefix)
}

func allowedHost(u *url.URL) bool {
	host := strings.ToLower(u.Hostname())
	if host == "api.twilio.com" {
		return true
	}
	return strings.HasSuffix(host, ".twilio.com") || strings.HasSuffix(host, ".twiliocdn.com")
}

func dispositionFilename(header string) string {
	if header == "" {
		return ""
	}
	if _, params, err := mime.ParseMediaType(header); err == nil {
		return params["filename"]
	}
	return ""
}
