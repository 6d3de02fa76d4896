// Package resolve partitions staged contacts by phone number and
// drives the one-at-a-time duplicate choice sub-protocol.
package resolve

import (
	"errors"
	"fmt"
	"strings"

	"github.com/sheetdrop/sheetdrop/internal/contact"
)

// ErrBadChoice is returned for any reply other than "1" or "2"; the
// caller replays the current prompt without advancing.
var ErrBadChoice = errors.New("choice must be 1 or 2")

// State is the per-user duplicate-resolution record. Invariants:
// 0 <= Cursor <= len(Duplicates) and len(Chosen) == Cursor. The state
// is terminal when Cursor == len(Duplicates).
type State struct {
	Uniques    []contact.Contact   `json:"uniques"`
	Duplicates [][]contact.Contact `json:"duplicates"`
	Cursor     int                 `json:"cursor"`
	Chosen     []contact.Contact   `json:"chosen"`
}

// Partition splits list into contacts whose number is unique and
// groups of two or more contacts sharing a number. Contacts with no
// mobile are always unique. Group order follows first discovery.
func Partition(list []contact.Contact) (uniques []contact.Contact, duplicates [][]contact.Contact) {
	groups := make(map[string][]contact.Contact)
	var order []string

	for _, c := range list {
		if c.Mobile == "" {
			uniques = append(uniques, c)
			continue
		}
		if _, seen := groups[c.Mobile]; !seen {
			order = append(order, c.Mobile)
		}
		groups[c.Mobile] = append(groups[c.Mobile], c)
	}

	for _, mobile := range order {
		group := groups[mobile]
		if len(group) == 1 {
			uniques = append(uniques, group[0])
			continue
		}
		duplicates = append(duplicates, group)
	}
	return uniques, duplicates
}

// NewState starts resolution over the given partition.
func NewState(uniques []contact.Contact, duplicates [][]contact.Contact) *State {
	return &State{
		Uniques:    uniques,
		Duplicates: duplicates,
		Chosen:     []contact.Contact{},
	}
}

// Done reports whether every group has been resolved.
func (s *State) Done() bool {
	return s.Cursor >= len(s.Duplicates)
}

// Current returns the group under the cursor.
func (s *State) Current() []contact.Contact {
	if s.Done() {
		return nil
	}
	return s.Duplicates[s.Cursor]
}

// Choose records the user's pick for the current group and advances
// the cursor. Only picks 1 and 2 are valid: groups larger than two
// expose their first two entries and drop the rest.
func (s *State) Choose(reply string) error {
	if s.Done() {
		return errors.New("no group left to resolve")
	}
	group := s.Current()

	switch strings.TrimSpace(reply) {
	case "1":
		s.Chosen = append(s.Chosen, group[0])
	case "2":
		if len(group) < 2 {
			return ErrBadChoice
		}
		s.Chosen = append(s.Chosen, group[1])
	default:
		return ErrBadChoice
	}
	s.Cursor++
	return nil
}

// Final returns uniques followed by the chosen contacts. Valid only
// once Done.
func (s *State) Final() []contact.Contact {
	out := make([]contact.Contact, 0, len(s.Uniques)+len(s.Chosen))
	out = append(out, s.Uniques...)
	out = append(out, s.Chosen...)
	return out
}

// Prompt renders the user-facing question for the current group,
// labelling the first two members 1 and 2.
func (s *State) Prompt() string {
	group := s.Current()
	if group == nil {
		return ""
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Duplicate number %s (%d of %d). Keep which one?\n",
		group[0].Mobile, s.Cursor+1, len(s.Duplicates))
	fmt.Fprintf(&b, "1) %s\n", displayName(group[0]))
	if len(group) > 1 {
		fmt.Fprintf(&b, "2) %s\n", displayName(group[1]))
	}
	b.WriteString("Reply 1 or 2.")
	return b.String()
}

func displayName(c contact.Contact) string {
	if c.Name != "" {
		return c.Name
	}
	return "(no name)"
}
