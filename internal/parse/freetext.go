package parse

import (
	"regexp"
	"strings"

	"github.com/sheetdrop/sheetdrop/internal/contact"
	"github.com/sheetdrop/sheetdrop/internal/phone"
)

// Free-text extraction is a cascade: each method runs only when the
// previous one produced nothing, from the most structured layout down
// to a last-resort positional pairing.
var (
	emailRe = regexp.MustCompile(`[A-Za-z0-9._%+\-]+@[A-Za-z0-9.\-]+\.[A-Za-z]{2,}`)
	phoneRe = regexp.MustCompile(`\+?\d[\d\s\-().]{6,}\d`)

	labelRe     = regexp.MustCompile(`(?i)^\s*(name|phone|mobile|tel|email|mail)\s*[:\-]\s*(.+)$`)
	namePhoneRe = regexp.MustCompile(`([A-Za-z][A-Za-z.'\-]*(?:[ \t]+[A-Za-z][A-Za-z.'\-]*){0,3})[ \t]+(\+234\d{10})`)
	nameWordRe  = regexp.MustCompile(`^[A-Za-z][A-Za-z.'\-]*$`)
)

var honorifics = map[string]struct{}{
	"mr": {}, "mrs": {}, "ms": {}, "miss": {}, "dr": {}, "prof": {},
	"engr": {}, "chief": {}, "alhaji": {}, "alhaja": {}, "pastor": {},
	"rev": {}, "sir": {}, "mallam": {}, "barr": {},
}

var nameStopWords = map[string]struct{}{
	"phone": {}, "email": {}, "contact": {}, "mobile": {}, "tel": {},
	"call": {}, "mail": {},
}

// FreeText extracts contacts from unstructured message text.
func FreeText(text string) ([]contact.Contact, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, ErrNoContacts
	}

	for _, method := range []func(string) []contact.Contact{
		labelledBlocks,
		namePhonePairs,
		lineScan,
		positionalPairs,
	} {
		if found := contact.Dedupe(contact.FilterUsable(method(text))); len(found) > 0 {
			return found, nil
		}
	}
	return nil, ErrNoContacts
}

// labelledBlocks handles "name: X / phone: Y / email: Z" tuples; each
// new name label starts a fresh record.
func labelledBlocks(text string) []contact.Contact {
	var out []contact.Contact
	var current *contact.Contact

	flush := func() {
		if current != nil {
			out = append(out, *current)
			current = nil
		}
	}

	for _, line := range strings.Split(text, "\n") {
		m := labelRe.FindStringSubmatch(line)
		if m == nil {
			continue
		}
		label, value := strings.ToLower(m[1]), strings.TrimSpace(m[2])
		switch label {
		case "name":
			flush()
			current = &contact.Contact{Name: CleanName(value)}
		case "phone", "mobile", "tel":
			if current == nil {
				current = &contact.Contact{}
			}
			if current.Mobile == "" {
				current.Mobile = value
			}
		case "email", "mail":
			if current == nil {
				current = &contact.Contact{}
			}
			if current.Email == "" {
				current.Email = value
			}
		}
	}
	flush()
	return out
}

// namePhonePairs carves the message into adjacent name/number pairs,
// dropping honorific prefixes from the captured name.
func namePhonePairs(text string) []contact.Contact {
	var out []contact.Contact
	for _, m := range namePhoneRe.FindAllStringSubmatch(text, -1) {
		name := stripHonorifics(CleanName(m[1]))
		out = append(out, contact.New(name, m[2], ""))
	}
	return out
}

// lineScan treats every line containing a phone or email as one
// contact; the surviving alphabetic tokens become the name.
func lineScan(text string) []contact.Contact {
	var out []contact.Contact
	for _, line := range strings.Split(text, "\n") {
		email := emailRe.FindString(line)
		number := firstPhone(line)
		if email == "" && number == "" {
			continue
		}

		remainder := line
		if email != "" {
			remainder = strings.ReplaceAll(remainder, email, " ")
		}
		if number != "" {
			remainder = strings.ReplaceAll(remainder, number, " ")
		}
		out = append(out, contact.New(nameFromTokens(remainder), number, email))
	}
	return out
}

// positionalPairs is the last resort: pair the i-th email with the
// i-th phone and the i-th name-like token across the whole message.
func positionalPairs(text string) []contact.Contact {
	emails := emailRe.FindAllString(text, -1)
	var phones []string
	for _, raw := range phoneRe.FindAllString(text, -1) {
		if p := phone.Normalize(raw); p != "" {
			phones = append(phones, p)
		}
	}

	stripped := emailRe.ReplaceAllString(text, " ")
	stripped = phoneRe.ReplaceAllString(stripped, " ")
	var names []string
	for _, token := range strings.Fields(stripped) {
		if isNameToken(token) {
			names = append(names, token)
		}
	}

	count := max(len(emails), len(phones))
	out := make([]contact.Contact, 0, count)
	for i := 0; i < count; i++ {
		c := contact.Contact{}
		if i < len(names) {
			c.Name = CleanName(names[i])
		}
		if i < len(phones) {
			c.Mobile = phones[i]
		}
		if i < len(emails) {
			c.Email = emails[i]
		}
		out = append(out, c)
	}
	return out
}

// firstPhone returns the first substring of line that normalises to a
// canonical number, in its raw form.
func firstPhone(line string) string {
	for _, raw := range phoneRe.FindAllString(line, -1) {
		if phone.Normalize(raw) != "" {
			return raw
		}
	}
	return ""
}

// nameFromTokens keeps the first three alphabetic tokens that are not
// contact-field stop words.
func nameFromTokens(s string) string {
	var tokens []string
	for _, token := range strings.Fields(s) {
		if !isNameToken(token) {
			continue
		}
		tokens = append(tokens, token)
		if len(tokens) == 3 {
			break
		}
	}
	return stripHonorifics(CleanName(strings.Join(tokens, " ")))
}

func isNameToken(token string) bool {
	if !nameWordRe.MatchString(token) {
		return false
	}
	_, stop := nameStopWords[strings.ToLower(strings.Trim(token, ".:,"))]
	return !stop
}

func stripHonorifics(name string) string {
	tokens := strings.Fields(name)
	for len(tokens) > 1 {
		if _, ok := honorifics[strings.ToLower(strings.Trim(tokens[0], "."))]; !ok {
			break
		}
		tokens = tokens[1:]
	}
	return strings.Join(tokens, " ")
}
