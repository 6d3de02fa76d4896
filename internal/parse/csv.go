package parse

import (
	"bytes"
	"encoding/csv"
	"strings"

	"github.com/sheetdrop/sheetdrop/internal/contact"
)

var delimiters = []rune{',', '\t', '|', ';'}

// CSV parses delimiter-separated text. The delimiter is guessed from
// the first line, the first row is treated as headers, and columns are
// matched against the field synonym table. Quoted fields with doubled
// quotes are handled by the reader.
func CSV(data []byte) ([]contact.Contact, error) {
	data = bytes.TrimPrefix(data, []byte{0xEF, 0xBB, 0xBF})
	text := strings.TrimSpace(string(data))
	if text == "" {
		return nil, ErrNoContacts
	}

	reader := csv.NewReader(strings.NewReader(text))
	reader.Comma = guessDelimiter(text)
	reader.LazyQuotes = true
	reader.FieldsPerRecord = -1
	reader.TrimLeadingSpace = true

	rows, err := reader.ReadAll()
	if err != nil {
		return nil, err
	}

	out := contactsFromTable(rows)
	if len(out) == 0 {
		return nil, ErrNoContacts
	}
	return out, nil
}

// guessDelimiter picks the candidate occurring most often in the first
// line, defaulting to comma.
func guessDelimiter(text string) rune {
	line := text
	if idx := strings.IndexByte(line, '\n'); idx >= 0 {
		line = line[:idx]
	}

	best, bestCount := ',', 0
	for _, d := range delimiters {
		if count := strings.Count(line, string(d)); count > bestCount {
			best, bestCount = d, count
		}
	}
	return best
}
