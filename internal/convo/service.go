// Package convo is the top-level conversation controller: it routes
// each inbound webhook event through the per-user state machine
// (idle, staging, resolving) and composes the synchronous reply.
//
// Every handler invocation reconstructs the user's state from the
// store, advances it, and commits before the reply is returned,
// because the reply is the only acknowledgement the user gets.
package convo

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/sheetdrop/sheetdrop/internal/artifact"
	"github.com/sheetdrop/sheetdrop/internal/contact"
	"github.com/sheetdrop/sheetdrop/internal/parse"
	"github.com/sheetdrop/sheetdrop/internal/resolve"
	"github.com/sheetdrop/sheetdrop/internal/session"
	"github.com/sheetdrop/sheetdrop/internal/tabular"
	"github.com/sheetdrop/sheetdrop/internal/whatsapp"
)

// ParseTimeout bounds one attachment's fetch+parse. Kept under the
// provider's webhook deadline so a slow PDF cannot time out the whole
// delivery.
const ParseTimeout = 25 * time.Second

const (
	maxParallelParses   = 4
	maxReportedFailures = 3
)

// MediaItem is one inbound attachment reference from the webhook.
type MediaItem struct {
	URL         string
	ContentType string
}

// Event is a decoded inbound webhook delivery.
type Event struct {
	From   string
	Body   string
	Button string
	Media  []MediaItem
}

// Reply is the synchronous answer rendered into the webhook response.
// A zero Reply produces an empty response envelope (silent drop).
type Reply struct {
	Body     string
	MediaURL string
}

// Empty reports whether the reply carries nothing.
func (r Reply) Empty() bool {
	return r.Body == "" && r.MediaURL == ""
}

// Service drives the conversation state machine.
type Service struct {
	sessions    *session.Service
	artifacts   *artifact.Service
	sender      whatsapp.Sender
	fetcher     whatsapp.MediaFetcher
	allowed     map[string]struct{}
	templateSID string
	format      tabular.Format
	logger      *slog.Logger
}

// NewService wires the controller. allowed is the user allow-list (an
// empty list admits everyone); templateSID enables template-mode
// replies when set; format selects the emitted spreadsheet encoding.
func NewService(
	log *slog.Logger,
	sessions *session.Service,
	artifacts *artifact.Service,
	sender whatsapp.Sender,
	fetcher whatsapp.MediaFetcher,
	allowed []string,
	templateSID string,
	format tabular.Format,
) *Service {
	if log == nil {
		log = slog.Default()
	}
	if format != tabular.FormatXLSX {
		format = tabular.FormatCSV
	}
	allowSet := make(map[string]struct{}, len(allowed))
	for _, a := range allowed {
		if a = whatsapp.StripPrefix(strings.TrimSpace(a)); a != "" {
			allowSet[a] = struct{}{}
		}
	}
	return &Service{
		sessions:    sessions,
		artifacts:   artifacts,
		sender:      sender,
		fetcher:     fetcher,
		allowed:     allowSet,
		templateSID: templateSID,
		format:      format,
		logger:      log.With(slog.String("service", "convo")),
	}
}

// HandleInbound advances the user's state machine for one event and
// returns the reply to render. Unauthorised users get a silent
// acknowledgement.
func (s *Service) HandleInbound(ctx context.Context, ev Event) (Reply, error) {
	user := whatsapp.StripPrefix(strings.TrimSpace(ev.From))
	if user == "" {
		return Reply{}, fmt.Errorf("event has no sender")
	}
	if !s.authorized(user) {
		s.logger.Info("unauthorised sender dropped", slog.String("user", user))
		return Reply{}, nil
	}

	// A live resolution state owns the conversation regardless of what
	// the user sent.
	state, err := s.sessions.DupState(ctx, user)
	if err != nil {
		return Reply{}, fmt.Errorf("load dup state: %w", err)
	}
	if state != nil {
		return s.handleResolving(ctx, user, state, ev)
	}

	if len(ev.Media) > 0 {
		return s.handleMedia(ctx, user, ev.Media)
	}
	return s.handleText(ctx, user, ev)
}

func (s *Service) authorized(user string) bool {
	if len(s.allowed) == 0 {
		return true
	}
	_, ok := s.allowed[user]
	return ok
}

// handleMedia fetches and parses every attachment concurrently, stages
// the usable contacts, and reports the running total. Individual
// failures are reported compactly without aborting the rest.
func (s *Service) handleMedia(ctx context.Context, user string, media []MediaItem) (Reply, error) {
	parsed := make([][]contact.Contact, len(media))
	failures := make([]string, len(media))

	g, groupCtx := errgroup.WithContext(ctx)
	g.SetLimit(maxParallelParses)
	for i, item := range media {
		g.Go(func() error {
			itemCtx, cancel := context.WithTimeout(groupCtx, ParseTimeout)
			defer cancel()

			contacts, err := s.parseAttachment(itemCtx, item)
			if err != nil {
				failures[i] = compactReason(err)
				s.logger.Warn("attachment failed",
					slog.String("user", user),
					slog.Int("index", i),
					slog.Any("error", err),
				)
				return nil
			}
			parsed[i] = contacts
			return nil
		})
	}
	_ = g.Wait()

	// Merge in attachment order so the staging sequence is
	// deterministic per delivery.
	var incoming []contact.Contact
	for _, chunk := range parsed {
		incoming = append(incoming, chunk...)
	}
	incoming = contact.FilterUsable(incoming)

	var failed []string
	for _, reason := range failures {
		if reason != "" {
			failed = append(failed, reason)
		}
	}

	if len(incoming) == 0 {
		body := "I couldn't find any contacts in that. Send a contact card, a CSV or Excel file, a PDF, or plain text with names and numbers."
		if len(failed) > 0 {
			body += "\n" + failureNote(failed)
		}
		return Reply{Body: body}, nil
	}

	total, err := s.sessions.AppendContacts(ctx, user, incoming)
	if err != nil {
		return Reply{}, fmt.Errorf("stage contacts: %w", err)
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Saved %d contact(s) so far.", total)
	if total >= contact.MaxStaged {
		fmt.Fprintf(&b, " That's the %d-contact limit; extra entries were dropped.", contact.MaxStaged)
	}
	if len(failed) > 0 {
		b.WriteString("\n" + failureNote(failed))
	}
	b.WriteString("\n\n1 = convert to spreadsheet\n2 = add more contacts")
	return Reply{Body: b.String()}, nil
}

func (s *Service) parseAttachment(ctx context.Context, item MediaItem) ([]contact.Contact, error) {
	fetched, err := s.fetcher.FetchMedia(ctx, item.URL)
	if err != nil {
		return nil, fmt.Errorf("fetch: %w", err)
	}
	if len(fetched.Data) == 0 {
		return nil, fmt.Errorf("attachment is empty")
	}
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("attachment timed out: %w", err)
	}

	contentType := fetched.ContentType
	if contentType == "" {
		contentType = item.ContentType
	}

	// The decoders take no context, so a pathological workbook or PDF
	// must not hold the webhook reply past the parse deadline. The
	// goroutine is abandoned on timeout and finishes into the buffered
	// channel.
	type parsed struct {
		contacts []contact.Contact
		err      error
	}
	done := make(chan parsed, 1)
	go func() {
		format, contacts, err := parse.Parse(fetched.Data, contentType, fetched.Filename)
		if err != nil {
			err = fmt.Errorf("parse as %s: %w", format, err)
		}
		done <- parsed{contacts: contacts, err: err}
	}()

	select {
	case res := <-done:
		return res.contacts, res.err
	case <-ctx.Done():
		return nil, fmt.Errorf("attachment timed out: %w", ctx.Err())
	}
}

// handleText routes commands in the staging and idle states.
func (s *Service) handleText(ctx context.Context, user string, ev Event) (Reply, error) {
	cmd := strings.ToLower(strings.TrimSpace(ev.Body))
	if b := strings.ToLower(strings.TrimSpace(ev.Button)); b != "" {
		cmd = b
	}

	staged, err := s.sessions.StagedContacts(ctx, user)
	if err != nil {
		return Reply{}, fmt.Errorf("load staging list: %w", err)
	}

	switch cmd {
	case "1", "export", "convert":
		return s.startConversion(ctx, user)
	case "2", "more", "add more":
		if len(staged) > 0 {
			return Reply{Body: "Okay, send the next batch of contacts."}, nil
		}
		return Reply{Body: welcomeText}, nil
	case "help":
		return Reply{Body: helpText}, nil
	default:
		// Plain text might itself carry contacts, in either state.
		if found, ferr := parse.FreeText(ev.Body); ferr == nil && len(found) > 0 {
			total, aerr := s.sessions.AppendContacts(ctx, user, contact.FilterUsable(found))
			if aerr != nil {
				return Reply{}, fmt.Errorf("stage contacts: %w", aerr)
			}
			return Reply{Body: fmt.Sprintf(
				"Saved %d contact(s) so far.\n\n1 = convert to spreadsheet\n2 = add more contacts",
				total)}, nil
		}
		if len(staged) > 0 {
			return Reply{Body: fmt.Sprintf(
				"You have %d contact(s) staged.\n\n1 = convert to spreadsheet\n2 = add more contacts",
				len(staged))}, nil
		}
		return Reply{Body: welcomeText}, nil
	}
}

// startConversion drains staging and either enters duplicate
// resolution or emits the artifact directly.
func (s *Service) startConversion(ctx context.Context, user string) (Reply, error) {
	staged, err := s.sessions.PopContacts(ctx, user)
	if err != nil {
		return Reply{}, fmt.Errorf("drain staging list: %w", err)
	}
	if len(staged) == 0 {
		return Reply{Body: "Nothing staged yet. " + welcomeText}, nil
	}

	uniques, duplicates := resolve.Partition(staged)
	if len(duplicates) == 0 {
		return s.emit(ctx, user, uniques)
	}

	state := resolve.NewState(uniques, duplicates)
	if err := s.sessions.SetDupState(ctx, user, state); err != nil {
		return Reply{}, fmt.Errorf("store dup state: %w", err)
	}
	return Reply{Body: fmt.Sprintf("Found %d duplicate number(s).\n\n%s",
		len(duplicates), state.Prompt())}, nil
}

// handleResolving advances the duplicate-choice sub-protocol. Any reply
// other than 1 or 2 replays the current prompt; every transition
// refreshes the short state TTL.
func (s *Service) handleResolving(ctx context.Context, user string, state *resolve.State, ev Event) (Reply, error) {
	if err := state.Choose(ev.Body); err != nil {
		if err := s.sessions.SetDupState(ctx, user, state); err != nil {
			return Reply{}, fmt.Errorf("refresh dup state: %w", err)
		}
		return Reply{Body: state.Prompt()}, nil
	}

	if !state.Done() {
		if err := s.sessions.SetDupState(ctx, user, state); err != nil {
			return Reply{}, fmt.Errorf("store dup state: %w", err)
		}
		return Reply{Body: state.Prompt()}, nil
	}

	// State is deleted before the artifact exists so a crash between
	// the two leaves the user idle, never wedged in resolution.
	if err := s.sessions.ClearDupState(ctx, user); err != nil {
		return Reply{}, fmt.Errorf("clear dup state: %w", err)
	}
	return s.emit(ctx, user, state.Final())
}

// emit stores the artifact and composes the reply in the configured
// delivery mode: template if one is registered, media for XLSX, link
// otherwise. A failed template send falls back to a link in the same
// response cycle.
func (s *Service) emit(ctx context.Context, user string, contacts []contact.Contact) (Reply, error) {
	if len(contacts) == 0 {
		return Reply{Body: "No usable contacts were left to convert."}, nil
	}

	stored, err := s.artifacts.Emit(ctx, user, contacts, s.format)
	if err != nil {
		return Reply{}, fmt.Errorf("emit artifact: %w", err)
	}

	if s.templateSID != "" {
		sendErr := s.sender.SendTemplate(ctx, user, s.templateSID, map[string]string{
			"1": fmt.Sprintf("%d", stored.Count),
			"2": stored.ID,
		})
		if sendErr == nil {
			return Reply{}, nil
		}
		s.logger.Warn("template send failed, falling back to link",
			slog.String("user", user), slog.Any("error", sendErr))
	}

	if stored.Format == tabular.FormatXLSX {
		return Reply{
			Body:     fmt.Sprintf("Here is your spreadsheet with %d contact(s).", stored.Count),
			MediaURL: s.artifacts.FileURL(stored.ID, stored.Password),
		}, nil
	}

	body := fmt.Sprintf("Done! %d contact(s) ready:\n%s", stored.Count, stored.URL)
	if stored.Password != "" {
		body += fmt.Sprintf("\nPassword: %s", stored.Password)
	}
	body += fmt.Sprintf("\nThe link expires in %d minutes.", int(s.artifacts.TTL().Minutes()))
	return Reply{Body: body}, nil
}

func failureNote(failed []string) string {
	shown := failed
	if len(shown) > maxReportedFailures {
		shown = shown[:maxReportedFailures]
	}
	note := fmt.Sprintf("%d attachment(s) could not be read (%s)",
		len(failed), strings.Join(shown, "; "))
	return note
}

// compactReason trims an error chain to something fit for a chat
// message; internals stay in the logs.
func compactReason(err error) string {
	msg := err.Error()
	if idx := strings.LastIndex(msg, ": "); idx >= 0 {
		msg = msg[idx+2:]
	}
	if len(msg) > 60 {
		msg = msg[:60]
	}
	return msg
}

const welcomeText = "Hi! I turn WhatsApp contacts into a spreadsheet. " +
	"Send me contact cards, a CSV or Excel file, a PDF, or plain text " +
	"with names and numbers, then reply 1 to convert."

const helpText = "Send contact attachments or text in any mix; I stage " +
	"them until you reply 1 (convert) or 2 (add more).\n" +
	"If the same number appears twice you'll pick which entry to keep. " +
	"When a number has more than two entries only the first two are " +
	"offered and the rest are dropped.\n" +
	"Download links expire, so fetch your file promptly."
