// Package session keeps the per-user conversation state: the staging
// list of uploaded contacts and the active duplicate-resolution record.
//
// The messaging provider delivers a given user's webhooks sequentially
// (a user cannot send faster than replies arrive), so operations here
// are not locked per user; inter-user isolation comes from key
// prefixing alone. Deployments that cannot rely on ordered delivery
// would need an external per-user lock in front of this service.
package session

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/sheetdrop/sheetdrop/internal/contact"
	"github.com/sheetdrop/sheetdrop/internal/resolve"
	"github.com/sheetdrop/sheetdrop/internal/store"
)

// TTLs. Staging survives a coffee break; a pending duplicate choice
// does not, so an abandoned flow resets to a fresh welcome.
const (
	StagingTTL  = 2 * time.Hour
	DupStateTTL = 60 * time.Second
)

// Service persists per-user state in the shared store.
type Service struct {
	store store.Store
}

// NewService builds a session service over the given store.
func NewService(s store.Store) *Service {
	return &Service{store: s}
}

// AppendContacts adds list to the user's staging list, refreshes its
// TTL, and returns the new total.
func (s *Service) AppendContacts(ctx context.Context, user string, list []contact.Contact) (int, error) {
	staged, err := s.StagedContacts(ctx, user)
	if err != nil {
		return 0, err
	}
	staged = append(staged, list...)
	staged = contact.Truncate(staged, contact.MaxStaged)

	if err := s.writeJSON(ctx, stagingKey(user), staged, StagingTTL); err != nil {
		return 0, fmt.Errorf("store staging list: %w", err)
	}
	return len(staged), nil
}

// StagedContacts returns the user's staging list without mutating it.
func (s *Service) StagedContacts(ctx context.Context, user string) ([]contact.Contact, error) {
	var staged []contact.Contact
	if err := s.readJSON(ctx, stagingKey(user), &staged); err != nil {
		return nil, err
	}
	return staged, nil
}

// PopContacts returns the staging list and deletes it. An immediate
// second pop yields an empty list.
func (s *Service) PopContacts(ctx context.Context, user string) ([]contact.Contact, error) {
	staged, err := s.StagedContacts(ctx, user)
	if err != nil {
		return nil, err
	}
	if err := s.store.Delete(ctx, stagingKey(user)); err != nil {
		return nil, fmt.Errorf("drain staging list: %w", err)
	}
	return staged, nil
}

// SetDupState stores the user's duplicate-resolution state, refreshing
// its short TTL.
func (s *Service) SetDupState(ctx context.Context, user string, state *resolve.State) error {
	if err := s.writeJSON(ctx, dupKey(user), state, DupStateTTL); err != nil {
		return fmt.Errorf("store dup state: %w", err)
	}
	return nil
}

// DupState returns the live resolution state, or nil when none exists
// or it has expired.
func (s *Service) DupState(ctx context.Context, user string) (*resolve.State, error) {
	raw, err := s.store.Get(ctx, dupKey(user))
	if err != nil || raw == nil {
		return nil, err
	}
	var state resolve.State
	if err := json.Unmarshal(raw, &state); err != nil {
		return nil, fmt.Errorf("decode dup state: %w", err)
	}
	return &state, nil
}

// ClearDupState deletes the resolution state; clearing an absent state
// is a no-op.
func (s *Service) ClearDupState(ctx context.Context, user string) error {
	return s.store.Delete(ctx, dupKey(user))
}

func (s *Service) writeJSON(ctx context.Context, key string, v any, ttl time.Duration) error {
	raw, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return s.store.Set(ctx, key, raw, ttl)
}

func (s *Service) readJSON(ctx context.Context, key string, v any) error {
	raw, err := s.store.Get(ctx, key)
	if err != nil || raw == nil {
		return err
	}
	return json.Unmarshal(raw, v)
}

func stagingKey(user string) string { return "contacts:" + user }
func dupKey(user string) string     { return "dup:" + user }
