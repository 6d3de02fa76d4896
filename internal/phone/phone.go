// Package phone canonicalises phone number strings.
//
// The rule set targets the Nigerian numbering plan first (local 0-prefixed
// mobiles become +234) and falls back to a generic international form.
// The precedence of the rules is load-bearing: staged contacts, duplicate
// grouping and the emitted spreadsheets all depend on it.
package phone

import (
	"regexp"
	"strings"
)

var (
	localMobile    = regexp.MustCompile(`^0[789]\d{9}$`)
	countryMobile  = regexp.MustCompile(`^234[789]\d{9}$`)
	bareMobile     = regexp.MustCompile(`^[789]\d{9}$`)
	canonicalShape = regexp.MustCompile(`^\+?\d{8,15}$`)
)

// Normalize canonicalises raw into an E.164-style string, or returns ""
// when the input cannot be a phone number. Normalize is idempotent.
func Normalize(raw string) string {
	s := strip(raw)

	digits := strings.TrimPrefix(s, "+")
	if len(digits) < 8 || len(digits) > 15 {
		return ""
	}

	switch {
	case localMobile.MatchString(s):
		return "+234" + s[1:]
	case countryMobile.MatchString(s):
		return "+" + s
	case bareMobile.MatchString(s):
		return "+234" + s
	case len(digits) >= 10 && !strings.HasPrefix(s, "+"):
		return "+" + s
	}
	return s
}

// IsCanonical reports whether s is already in the shape Normalize emits.
func IsCanonical(s string) bool {
	return s == "" || canonicalShape.MatchString(s)
}

// strip removes everything except digits and a leading plus sign.
func strip(raw string) string {
	var b strings.Builder
	b.Grow(len(raw))
	for i, r := range raw {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
			continue
		}
		if r == '+' && i == 0 {
			b.WriteRune(r)
		}
	}
	return b.String()
}
