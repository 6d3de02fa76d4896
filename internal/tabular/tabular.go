// Package tabular renders contact lists as CSV or XLSX bytes.
// Emitters are pure functions of their input.
package tabular

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"strconv"

	"github.com/xuri/excelize/v2"

	"github.com/sheetdrop/sheetdrop/internal/contact"
)

// Format selects the output encoding of an emitted artifact.
type Format string

const (
	FormatCSV  Format = "csv"
	FormatXLSX Format = "xlsx"
)

// MIME types served by the download endpoint.
const (
	MIMECSV  = "text/csv; charset=utf-8"
	MIMEXLSX = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
)

// SheetName is the single worksheet in emitted XLSX workbooks.
const SheetName = "Contacts"

var header = []string{"name", "mobile", "email", "passes"}

// utf8BOM makes spreadsheet applications decode the CSV as UTF-8.
var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

// ContentType returns the MIME type for f.
func (f Format) ContentType() string {
	if f == FormatXLSX {
		return MIMEXLSX
	}
	return MIMECSV
}

// Extension returns the filename extension for f, without the dot.
func (f Format) Extension() string {
	if f == FormatXLSX {
		return "xlsx"
	}
	return "csv"
}

// EmitCSV renders contacts as UTF-8 CSV with the fixed header row.
// When withBOM is set, the output is prefixed with a UTF-8 BOM.
func EmitCSV(contacts []contact.Contact, withBOM bool) ([]byte, error) {
	var buf bytes.Buffer
	if withBOM {
		buf.Write(utf8BOM)
	}

	w := csv.NewWriter(&buf)
	if err := w.Write(header); err != nil {
		return nil, fmt.Errorf("write header: %w", err)
	}
	for _, c := range contacts {
		row := []string{c.Name, c.Mobile, c.Email, strconv.Itoa(passes(c))}
		if err := w.Write(row); err != nil {
			return nil, fmt.Errorf("write row: %w", err)
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// EmitXLSX renders contacts as a single-sheet XLSX workbook.
func EmitXLSX(contacts []contact.Contact) ([]byte, error) {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", SheetName); err != nil {
		return nil, fmt.Errorf("rename sheet: %w", err)
	}

	headerRow := make([]any, len(header))
	for i, h := range header {
		headerRow[i] = h
	}
	if err := f.SetSheetRow(SheetName, "A1", &headerRow); err != nil {
		return nil, fmt.Errorf("write header: %w", err)
	}

	for i, c := range contacts {
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return nil, err
		}
		row := []any{c.Name, c.Mobile, c.Email, passes(c)}
		if err := f.SetSheetRow(SheetName, cell, &row); err != nil {
			return nil, fmt.Errorf("write row %d: %w", i+2, err)
		}
	}

	var buf bytes.Buffer
	if err := f.Write(&buf); err != nil {
		return nil, fmt.Errorf("serialize workbook: %w", err)
	}
	return buf.Bytes(), nil
}

// Emit renders contacts in the requested format.
func Emit(contacts []contact.Contact, format Format, withBOM bool) ([]byte, error) {
	if format == FormatXLSX {
		return EmitXLSX(contacts)
	}
	return EmitCSV(contacts, withBOM)
}

func passes(c contact.Contact) int {
	if c.Passes < 1 {
		return 1
	}
	return c.Passes
}
