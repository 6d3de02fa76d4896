// Package contact defines the canonical contact record shared by the
// parsers, the staging session, the duplicate resolver and the emitters.
package contact

import (
	"strings"

	"github.com/sheetdrop/sheetdrop/internal/phone"
)

// MaxStaged is the hard cap on a user's staging list. WhatsApp contact
// broadcasts top out around this size; over-cap uploads keep the head.
const MaxStaged = 250

// Contact is the uniform record every parser produces. Name and Mobile
// may each be empty, but a usable contact has at least one of them.
type Contact struct {
	Name    string `json:"name"`
	Mobile  string `json:"mobile"`
	Email   string `json:"email"`
	Company string `json:"company,omitempty"`
	Notes   string `json:"notes,omitempty"`
	Passes  int    `json:"passes"`
}

// New builds a contact with the mobile canonicalised and Passes
// defaulted to 1.
func New(name, mobile, email string) Contact {
	return Contact{
		Name:   strings.TrimSpace(name),
		Mobile: phone.Normalize(mobile),
		Email:  strings.TrimSpace(email),
		Passes: 1,
	}
}

// Usable reports whether the contact carries enough identity to be
// staged: a non-empty name or a non-empty canonical mobile.
func (c Contact) Usable() bool {
	return c.Name != "" || c.Mobile != ""
}

// Key is the identity used for parser-level deduplication: the first
// non-empty of mobile, email, name.
func (c Contact) Key() string {
	if c.Mobile != "" {
		return c.Mobile
	}
	if c.Email != "" {
		return strings.ToLower(c.Email)
	}
	return strings.ToLower(c.Name)
}

// Normalize re-canonicalises the mobile and defaults Passes. Parsers
// that build contacts field by field call this before returning.
func (c Contact) Normalize() Contact {
	c.Name = strings.TrimSpace(c.Name)
	c.Mobile = phone.Normalize(c.Mobile)
	c.Email = strings.TrimSpace(c.Email)
	if c.Passes < 1 {
		c.Passes = 1
	}
	return c
}

// FilterUsable normalises every contact and drops the unusable ones.
func FilterUsable(list []Contact) []Contact {
	out := make([]Contact, 0, len(list))
	for _, c := range list {
		c = c.Normalize()
		if c.Usable() {
			out = append(out, c)
		}
	}
	return out
}

// Dedupe removes contacts whose Key was already seen, preserving order.
func Dedupe(list []Contact) []Contact {
	seen := make(map[string]struct{}, len(list))
	out := make([]Contact, 0, len(list))
	for _, c := range list {
		key := c.Key()
		if key == "" {
			continue
		}
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, c)
	}
	return out
}

// Truncate caps list at n entries, keeping the head.
func Truncate(list []Contact, n int) []Contact {
	if n >= 0 && len(list) > n {
		return list[:n]
	}
	return list
}
