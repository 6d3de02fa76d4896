package parse

import (
	"io"
	"mime/quotedprintable"
	"strings"

	"github.com/sheetdrop/sheetdrop/internal/contact"
)

// VCard extracts one contact per BEGIN:VCARD/END:VCARD block. WhatsApp
// forwards cards in vCard 2.1 and 3.0 dialects, frequently with
// quoted-printable encoded names and grouped item1.TEL lines, so the
// parser is deliberately tolerant: a malformed card yields nothing
// instead of failing the whole attachment.
func VCard(data []byte) ([]contact.Contact, error) {
	text := strings.ReplaceAll(string(data), "\r\n", "\n")
	var out []contact.Contact

	for _, block := range strings.Split(text, "BEGIN:VCARD") {
		if !strings.Contains(block, "END:VCARD") {
			continue
		}
		block = block[:strings.Index(block, "END:VCARD")]
		if c, ok := parseCard(block); ok {
			out = append(out, c)
		}
	}

	if len(out) == 0 {
		return nil, ErrNoContacts
	}
	return out, nil
}

func parseCard(block string) (contact.Contact, bool) {
	var fn, n, tel, email string

	for _, line := range unfold(block) {
		prop, params, value := splitProperty(line)
		if value == "" {
			continue
		}
		switch prop {
		case "FN":
			if fn == "" {
				fn = decodeValue(value, params)
			}
		case "N":
			if n == "" {
				n = decodeValue(value, params)
			}
		case "TEL":
			if tel == "" {
				tel = value
			}
		case "EMAIL":
			if email == "" {
				email = value
			}
		}
	}

	name := CleanName(fn)
	if name == "" {
		name = CleanName(reorderN(n))
	}

	c := contact.New(name, tel, email)
	return c, c.Usable()
}

// unfold joins continuation lines into logical ones: RFC 6350 folding
// (continuations start with space or tab) and vCard 2.1 quoted-printable
// soft breaks, where a QP-encoded property ending in "=" continues on
// the next line with no leading marker.
func unfold(block string) []string {
	raw := strings.Split(block, "\n")
	lines := make([]string, 0, len(raw))
	for _, line := range raw {
		line = strings.TrimRight(line, "\r")
		if line == "" {
			continue
		}
		if len(lines) > 0 {
			prev := lines[len(lines)-1]
			switch {
			case strings.HasSuffix(prev, "=") && isQuotedPrintable(prev):
				lines[len(lines)-1] = prev[:len(prev)-1] + line
				continue
			case strings.HasPrefix(line, " ") || strings.HasPrefix(line, "\t"):
				lines[len(lines)-1] = prev + strings.TrimLeft(line, " \t")
				continue
			}
		}
		lines = append(lines, line)
	}
	return lines
}

// isQuotedPrintable reports whether the property part of a logical line
// declares quoted-printable encoding.
func isQuotedPrintable(line string) bool {
	colon := strings.Index(line, ":")
	if colon < 0 {
		return false
	}
	return strings.Contains(strings.ToUpper(line[:colon]), "QUOTED-PRINTABLE")
}

// splitProperty breaks "item1.TEL;TYPE=CELL:+123" into the bare
// property name ("TEL"), its parameters, and the value.
func splitProperty(line string) (prop string, params []string, value string) {
	colon := strings.Index(line, ":")
	if colon < 0 {
		return "", nil, ""
	}
	lhs, value := line[:colon], strings.TrimSpace(line[colon+1:])

	parts := strings.Split(lhs, ";")
	prop = strings.ToUpper(strings.TrimSpace(parts[0]))
	if dot := strings.LastIndex(prop, "."); dot >= 0 {
		// Grouped form: item1.TEL, item2.EMAIL.
		prop = prop[dot+1:]
	}
	for _, p := range parts[1:] {
		params = append(params, strings.ToUpper(strings.TrimSpace(p)))
	}
	return prop, params, value
}

// decodeValue applies quoted-printable decoding when the property
// parameters ask for it. vCard 2.1 QP uses trailing '=' soft breaks
// which the unfolding above has already joined.
func decodeValue(value string, params []string) string {
	for _, p := range params {
		if p == "ENCODING=QUOTED-PRINTABLE" || p == "QUOTED-PRINTABLE" {
			decoded, err := io.ReadAll(quotedprintable.NewReader(strings.NewReader(value)))
			if err != nil && len(decoded) == 0 {
				return value
			}
			return string(decoded)
		}
	}
	return value
}

// reorderN converts the structured N value (family;given;additional;...)
// into a display name of given-name followed by family-name.
func reorderN(n string) string {
	if n == "" {
		return ""
	}
	parts := strings.Split(n, ";")
	family := strings.TrimSpace(parts[0])
	given := ""
	if len(parts) > 1 {
		given = strings.TrimSpace(parts[1])
	}
	return strings.TrimSpace(given + " " + family)
}
