// Package artifact stores emitted spreadsheet files under fresh opaque
// identifiers and hands out short-lived download links.
package artifact

import (
	"context"
	"crypto/rand"
	"encoding/json"
	"fmt"
	"log/slog"
	"math/big"
	"time"

	"github.com/google/uuid"

	"github.com/sheetdrop/sheetdrop/internal/contact"
	"github.com/sheetdrop/sheetdrop/internal/store"
	"github.com/sheetdrop/sheetdrop/internal/tabular"
)

// Artifact is a stored output file. Immutable once stored; the key is
// never reused because identifiers are fresh UUIDs.
type Artifact struct {
	Content      []byte    `json:"content"`
	Filename     string    `json:"filename"`
	ContentType  string    `json:"content_type"`
	Password     string    `json:"password,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
	Owner        string    `json:"owner"`
	ContactCount int       `json:"contact_count"`
}

// Stored describes a freshly emitted artifact for reply composition.
type Stored struct {
	ID       string
	URL      string
	Password string
	Format   tabular.Format
	Count    int
}

// Service emits and retrieves artifacts.
type Service struct {
	store     store.Store
	baseURL   string
	ttl       time.Duration
	passwords bool
	logger    *slog.Logger
}

// NewService builds the artifact service. baseURL is the public origin
// download links are built on; ttl must cover the messaging provider's
// fetch window.
func NewService(log *slog.Logger, s store.Store, baseURL string, ttl time.Duration, passwords bool) *Service {
	if log == nil {
		log = slog.Default()
	}
	return &Service{
		store:     s,
		baseURL:   baseURL,
		ttl:       ttl,
		passwords: passwords,
		logger:    log.With(slog.String("service", "artifact")),
	}
}

// Emit serialises contacts in the requested format, stores the result
// under a fresh UUID, and returns the download handle.
func (s *Service) Emit(ctx context.Context, owner string, contacts []contact.Contact, format tabular.Format) (Stored, error) {
	content, err := tabular.Emit(contacts, format, format == tabular.FormatCSV)
	if err != nil {
		return Stored{}, fmt.Errorf("emit %s: %w", format, err)
	}

	id := uuid.NewString()
	art := Artifact{
		Content:      content,
		Filename:     fmt.Sprintf("contacts-%s.%s", time.Now().Format("20060102-150405"), format.Extension()),
		ContentType:  format.ContentType(),
		CreatedAt:    time.Now().UTC(),
		Owner:        owner,
		ContactCount: len(contacts),
	}
	if s.passwords {
		art.Password, err = sixDigitPassword()
		if err != nil {
			return Stored{}, fmt.Errorf("generate password: %w", err)
		}
	}

	raw, err := json.Marshal(art)
	if err != nil {
		return Stored{}, err
	}
	if err := s.store.Set(ctx, fileKey(id), raw, s.ttl); err != nil {
		return Stored{}, fmt.Errorf("store artifact: %w", err)
	}

	s.logger.Info("artifact stored",
		slog.String("id", id),
		slog.Int("contacts", len(contacts)),
		slog.String("format", string(format)),
		slog.Int("bytes", len(content)),
	)

	return Stored{
		ID:       id,
		URL:      s.DownloadURL(id, art.Password),
		Password: art.Password,
		Format:   format,
		Count:    len(contacts),
	}, nil
}

// Get returns the artifact for id, or nil when missing or expired.
func (s *Service) Get(ctx context.Context, id string) (*Artifact, error) {
	if _, err := uuid.Parse(id); err != nil {
		return nil, nil
	}
	raw, err := s.store.Get(ctx, fileKey(id))
	if err != nil || raw == nil {
		return nil, err
	}
	var art Artifact
	if err := json.Unmarshal(raw, &art); err != nil {
		return nil, fmt.Errorf("decode artifact: %w", err)
	}
	return &art, nil
}

// DownloadURL builds the public link for id, appending the password
// parameter when one is set.
func (s *Service) DownloadURL(id, password string) string {
	url := fmt.Sprintf("%s/download/%s", s.baseURL, id)
	if password != "" {
		url += "?p=" + password
	}
	return url
}

// FileURL builds the media-fetch link the provider requests with HEAD
// then GET.
func (s *Service) FileURL(id, password string) string {
	url := fmt.Sprintf("%s/files/%s", s.baseURL, id)
	if password != "" {
		url += "?p=" + password
	}
	return url
}

// TTL reports the configured artifact lifetime.
func (s *Service) TTL() time.Duration {
	return s.ttl
}

func sixDigitPassword() (string, error) {
	n, err := rand.Int(rand.Reader, big.NewInt(1000000))
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%06d", n.Int64()), nil
}

func fileKey(id string) string { return "file:" + id }
