package parse

import (
	"bytes"
	"strings"

	"github.com/gabriel-vasile/mimetype"

	"github.com/sheetdrop/sheetdrop/internal/contact"
)

// Format identifies which parser handled an attachment.
type Format string

const (
	FormatVCard Format = "vcard"
	FormatCSV   Format = "csv"
	FormatSheet Format = "sheet"
	FormatPDF   Format = "pdf"
	FormatText  Format = "text"
)

// Detect picks a parser from the payload, the declared content type,
// and the filename, in that precedence. A BEGIN:VCARD marker near the
// start of the payload always wins, because providers routinely label
// forwarded cards as text/plain or octet-stream.
func Detect(data []byte, contentType, filename string) Format {
	head := data
	if len(head) > 1024 {
		head = head[:1024]
	}
	if bytes.Contains(head, []byte("BEGIN:VCARD")) {
		return FormatVCard
	}

	if f, ok := byContentType(contentType); ok {
		return f
	}
	if f, ok := byExtension(filename); ok {
		return f
	}
	return bySniff(data)
}

// Parse routes data to the detected parser. A parser failure falls back
// to free text once; if that also fails the attachment yields nothing.
func Parse(data []byte, contentType, filename string) (Format, []contact.Contact, error) {
	format := Detect(data, contentType, filename)

	contacts, err := parseAs(format, data)
	if err != nil && format != FormatText {
		if fallback, fbErr := FreeText(string(data)); fbErr == nil {
			return FormatText, fallback, nil
		}
		return format, nil, err
	}
	return format, contacts, err
}

func parseAs(format Format, data []byte) ([]contact.Contact, error) {
	switch format {
	case FormatVCard:
		return VCard(data)
	case FormatCSV:
		return CSV(data)
	case FormatSheet:
		return Sheet(data)
	case FormatPDF:
		return PDF(data)
	default:
		return FreeText(string(data))
	}
}

func byContentType(contentType string) (Format, bool) {
	ct := strings.ToLower(strings.TrimSpace(contentType))
	switch {
	case ct == "":
		return "", false
	case strings.Contains(ct, "vcard") || strings.Contains(ct, "x-vcard") || strings.Contains(ct, "directory"):
		return FormatVCard, true
	case strings.Contains(ct, "csv"):
		return FormatCSV, true
	case strings.Contains(ct, "excel") || strings.Contains(ct, "spreadsheet"):
		return FormatSheet, true
	case strings.Contains(ct, "pdf"):
		return FormatPDF, true
	case strings.Contains(ct, "text/plain"):
		return FormatText, true
	}
	return "", false
}

func byExtension(filename string) (Format, bool) {
	name := strings.ToLower(strings.TrimSpace(filename))
	switch {
	case name == "":
		return "", false
	case strings.HasSuffix(name, ".vcf") || strings.HasSuffix(name, ".vcard"):
		return FormatVCard, true
	case strings.HasSuffix(name, ".csv") || strings.HasSuffix(name, ".tsv"):
		return FormatCSV, true
	case strings.HasSuffix(name, ".xlsx") || strings.HasSuffix(name, ".xls"):
		return FormatSheet, true
	case strings.HasSuffix(name, ".pdf"):
		return FormatPDF, true
	case strings.HasSuffix(name, ".txt"):
		return FormatText, true
	}
	return "", false
}

// bySniff inspects the payload itself: magic bytes first, then a
// library detection pass, then a cheap comma heuristic.
func bySniff(data []byte) Format {
	switch {
	case bytes.HasPrefix(data, []byte("%PDF")):
		return FormatPDF
	case bytes.HasPrefix(data, []byte("PK\x03\x04")):
		// Both XLSX and DOCX are OOXML zips; word documents are routed
		// to the free-text parser after extraction fails.
		if bytes.Contains(data, []byte("[Content_Types]")) {
			return FormatSheet
		}
		return FormatText
	}

	detected := mimetype.Detect(data)
	switch {
	case detected.Is("text/csv") || detected.Is("text/tab-separated-values"):
		return FormatCSV
	case detected.Is("application/pdf"):
		return FormatPDF
	case detected.Is("application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"):
		return FormatSheet
	}

	if looksLikeCSV(data) {
		return FormatCSV
	}
	return FormatText
}

// looksLikeCSV checks for a comma-delimited first line mentioning a
// known header keyword.
func looksLikeCSV(data []byte) bool {
	line := string(data)
	if idx := strings.IndexByte(line, '\n'); idx >= 0 {
		line = line[:idx]
	}
	if !strings.Contains(line, ",") {
		return false
	}
	lower := strings.ToLower(line)
	for _, synonyms := range fieldSynonyms {
		for _, syn := range synonyms {
			if strings.Contains(lower, syn) {
				return true
			}
		}
	}
	return false
}
