// Package parse extracts contact records from the formats users attach
// on WhatsApp: vCard, CSV, spreadsheets, PDF, and free-form text.
//
// Every parser returns the uniform contact.Contact record with the
// mobile already canonicalised; callers filter unusable entries before
// staging. Router (router.go) picks the parser from the declared media
// type, the filename, and content sniffing.
package parse

import (
	"errors"
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"

	"github.com/sheetdrop/sheetdrop/internal/contact"
)

// ErrNoContacts is returned when a parser ran cleanly but found nothing.
var ErrNoContacts = errors.New("no contacts found")

// fieldSynonyms maps each canonical contact field to the header tokens
// that identify it, matched by case-insensitive containment.
var fieldSynonyms = map[string][]string{
	"name":    {"name", "full name", "fullname", "contact person", "customer", "client"},
	"mobile":  {"phone", "mobile", "cell", "tel", "number", "whatsapp", "msisdn", "gsm"},
	"email":   {"email", "e-mail", "mail"},
	"company": {"company", "organization", "organisation", "org", "employer", "business"},
	"notes":   {"notes", "note", "comment", "remark", "description"},
	"passes":  {"passes", "pass"},
}

// columnMap locates each canonical field's column index in a header
// row, or -1 when absent. First matching column wins per field.
type columnMap struct {
	name, mobile, email, company, notes, passes int
}

func detectColumns(header []string) columnMap {
	cols := columnMap{name: -1, mobile: -1, email: -1, company: -1, notes: -1, passes: -1}
	assign := func(dst *int, idx int) {
		if *dst < 0 {
			*dst = idx
		}
	}
	for idx, cell := range header {
		cell = strings.ToLower(strings.TrimSpace(cell))
		if cell == "" {
			continue
		}
		for field, synonyms := range fieldSynonyms {
			for _, syn := range synonyms {
				if !strings.Contains(cell, syn) {
					continue
				}
				switch field {
				case "name":
					assign(&cols.name, idx)
				case "mobile":
					assign(&cols.mobile, idx)
				case "email":
					assign(&cols.email, idx)
				case "company":
					assign(&cols.company, idx)
				case "notes":
					assign(&cols.notes, idx)
				case "passes":
					assign(&cols.passes, idx)
				}
				break
			}
		}
	}
	return cols
}

// usable reports whether the header matched at least one identity column.
func (m columnMap) usable() bool {
	return m.name >= 0 || m.mobile >= 0 || m.email >= 0
}

// contactsFromTable converts header+rows tabular data into contacts.
// Shared by the CSV and spreadsheet parsers.
func contactsFromTable(rows [][]string) []contact.Contact {
	if len(rows) < 2 {
		return nil
	}
	cols := detectColumns(rows[0])
	body := rows[1:]
	if !cols.usable() {
		// No recognisable header: assume name in the first column and
		// phone in the second, the most common headerless layout, and
		// treat the first row as data.
		cols = columnMap{name: 0, mobile: 1, email: -1, company: -1, notes: -1, passes: -1}
		body = rows
	}

	cell := func(row []string, idx int) string {
		if idx < 0 || idx >= len(row) {
			return ""
		}
		return strings.TrimSpace(row[idx])
	}

	out := make([]contact.Contact, 0, len(body))
	for _, row := range body {
		c := contact.Contact{
			Name:    CleanName(cell(row, cols.name)),
			Mobile:  cell(row, cols.mobile),
			Email:   cell(row, cols.email),
			Company: cell(row, cols.company),
			Notes:   cell(row, cols.notes),
		}
		if p := cell(row, cols.passes); p != "" {
			c.Passes = parsePasses(p)
		}
		c = c.Normalize()
		if c.Usable() {
			out = append(out, c)
		}
	}
	return out
}

func parsePasses(s string) int {
	n := 0
	for _, r := range s {
		if r < '0' || r > '9' {
			return 1
		}
		n = n*10 + int(r-'0')
		if n > 1<<20 {
			return 1
		}
	}
	if n < 1 {
		return 1
	}
	return n
}

// pictographs strips emoji and other symbol runes that WhatsApp users
// decorate contact names with.
var pictographs = transform.Chain(
	norm.NFC,
	runes.Remove(runes.In(unicode.So)),
	runes.Remove(runes.In(unicode.Sk)),
	runes.Remove(runes.In(unicode.Cs)),
	runes.Remove(runes.In(unicode.Co)),
	// Variation selectors and joiners are left dangling once their
	// base emoji is gone.
	runes.Remove(runes.In(unicode.Variation_Selector)),
	runes.Remove(runes.In(unicode.Cf)),
)

// CleanName normalises a display name: strips pictographic runes,
// collapses interior whitespace, trims the result.
func CleanName(raw string) string {
	cleaned, _, err := transform.String(pictographs, raw)
	if err != nil {
		cleaned = raw
	}
	return strings.Join(strings.Fields(cleaned), " ")
}
