package parse

import (
	"bytes"
	"fmt"

	"github.com/xuri/excelize/v2"

	"github.com/sheetdrop/sheetdrop/internal/contact"
)

// Spreadsheet ingestion limits. Workbooks beyond these bounds are
// rejected outright rather than partially parsed.
const (
	MaxSheetBytes = 20 << 20
	MaxWorksheets = 5
	MaxSheetRows  = 1000
)

// Sheet parses the first worksheet of an XLSX workbook. Formula
// evaluation is bypassed by reading raw cell values, and header
// detection matches the CSV parser.
func Sheet(data []byte) ([]contact.Contact, error) {
	if len(data) > MaxSheetBytes {
		return nil, fmt.Errorf("workbook too large: %d bytes", len(data))
	}

	f, err := excelize.OpenReader(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("open workbook: %w", err)
	}
	defer f.Close()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return nil, ErrNoContacts
	}
	if len(sheets) > MaxWorksheets {
		return nil, fmt.Errorf("workbook has %d worksheets, max %d", len(sheets), MaxWorksheets)
	}

	rows, err := f.GetRows(sheets[0], excelize.Options{RawCellValue: true})
	if err != nil {
		return nil, fmt.Errorf("read rows: %w", err)
	}
	if len(rows) > MaxSheetRows {
		rows = rows[:MaxSheetRows]
	}

	out := contactsFromTable(rows)
	if len(out) == 0 {
		return nil, ErrNoContacts
	}
	return out, nil
}
