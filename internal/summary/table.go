package summary

import (
	"encoding/csv"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/xuri/excelize/v2"
)

const sheetName = "Summary"

// Table is the server's CSV summary split into a header and rows.
type Table struct {
	Header []string
	Rows   [][]string
}

// Empty reports whether the table has nothing to show.
func (t Table) Empty() bool { return len(t.Header) == 0 && len(t.Rows) == 0 }

// ParseCSV reads the summary CSV. The first record is the header; ragged
// rows are accepted as-is.
func ParseCSV(text string) (Table, error) {
	r := csv.NewReader(strings.NewReader(text))
	r.FieldsPerRecord = -1
	r.LazyQuotes = true
	records, err := r.ReadAll()
	if err != nil {
		return Table{}, fmt.Errorf("summary: parse csv: %w", err)
	}
	if len(records) == 0 {
		return Table{}, nil
	}
	return Table{Header: records[0], Rows: records[1:]}, nil
}

// WriteXLSX writes the table as a single-sheet workbook. Numeric cells are
// stored as numbers so spreadsheets can sort and chart them.
func WriteXLSX(t Table, w io.Writer) error {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", sheetName); err != nil {
		return fmt.Errorf("summary: rename sheet: %w", err)
	}
	rows := append([][]string{t.Header}, t.Rows...)
	for i, rec := range rows {
		cell, err := excelize.CoordinatesToCellName(1, i+1)
		if err != nil {
			return err
		}
		vals := make([]any, len(rec))
		for j, v := range rec {
			vals[j] = cellValue(v, i == 0)
		}
		if err := f.SetSheetRow(sheetName, cell, &vals); err != nil {
			return fmt.Errorf("summary: write row %d: %w", i+1, err)
		}
	}
	if _, err := f.WriteTo(w); err != nil {
		return fmt.Errorf("summary: write workbook: %w", err)
	}
	return nil
}

func cellValue(v string, header bool) any {
	if header {
		return v
	}
	if n, err := strconv.ParseFloat(strings.TrimSpace(v), 64); err == nil {
		return n
	}
	return v
}
