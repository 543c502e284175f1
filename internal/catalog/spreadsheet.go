package catalog

import (
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/xuri/excelize/v2"
)

// spreadsheetColumns are the recognised header names; matching is
// case-insensitive and column order is free.
var spreadsheetColumns = map[string]string{
	"item_id":     "item_id",
	"id":          "item_id",
	"concept_id":  "concept_id",
	"concept":     "concept_id",
	"difficulty":  "difficulty",
	"kind":        "kind",
	"type":        "kind",
	"payload_ref": "payload_ref",
	"payload":     "payload_ref",
}

// ImportSpreadsheet reads ingestion records from an .xlsx file. The first
// row is a header. An empty sheet name selects the first sheet.
func ImportSpreadsheet(path, sheet string) ([]Record, error) {
	f, err := excelize.OpenFile(path)
	if err != nil {
		return nil, fmt.Errorf("open spreadsheet: %w", err)
	}
	defer f.Close()
	return readWorkbook(f, sheet)
}

// ReadSpreadsheet is ImportSpreadsheet over an in-memory workbook.
func ReadSpreadsheet(r io.Reader, sheet string) ([]Record, error) {
	f, err := excelize.OpenReader(r)
	if err != nil {
		return nil, fmt.Errorf("open spreadsheet: %w", err)
	}
	defer f.Close()
	return readWorkbook(f, sheet)
}

func readWorkbook(f *excelize.File, sheet string) ([]Record, error) {
	if sheet == "" {
		sheets := f.GetSheetList()
		if len(sheets) == 0 {
			return nil, fmt.Errorf("spreadsheet has no sheets")
		}
		sheet = sheets[0]
	}

	rows, err := f.GetRows(sheet)
	if err != nil {
		return nil, fmt.Errorf("read sheet %q: %w", sheet, err)
	}
	if len(rows) == 0 {
		return nil, nil
	}

	index := make(map[string]int)
	for i, h := range rows[0] {
		if col, ok := spreadsheetColumns[strings.ToLower(strings.TrimSpace(h))]; ok {
			index[col] = i
		}
	}
	for _, required := range []string{"item_id", "concept_id", "difficulty"} {
		if _, ok := index[required]; !ok {
			return nil, fmt.Errorf("%w: spreadsheet missing %s column", ErrInvalidItem, required)
		}
	}

	cell := func(row []string, col string) string {
		i, ok := index[col]
		if !ok || i >= len(row) {
			return ""
		}
		return strings.TrimSpace(row[i])
	}

	records := make([]Record, 0, len(rows)-1)
	for n, row := range rows[1:] {
		id := cell(row, "item_id")
		if id == "" {
			continue // blank line
		}
		diff, err := strconv.ParseFloat(cell(row, "difficulty"), 64)
		if err != nil {
			return nil, fmt.Errorf("%w: row %d: difficulty: %v", ErrInvalidItem, n+2, err)
		}
		records = append(records, Record{
			ItemID:              id,
			ConceptID:           cell(row, "concept_id"),
			IntrinsicDifficulty: diff,
			Kind:                cell(row, "kind"),
			PayloadRef:          cell(row, "payload_ref"),
		})
	}
	return records, nil
}
