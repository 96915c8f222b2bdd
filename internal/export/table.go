// Package export renders claim data as CSV, XLSX and PDF files.
package export

import (
	"encoding/csv"
	"io"
	"strings"

	"github.com/pkg/errors"
	"github.com/xuri/excelize/v2"
)

// Format is an export file format
type Format string

// Supported tabular formats
const (
	FormatCSV  Format = "csv"
	FormatXLSX Format = "xlsx"
)

// DefaultSheet is the worksheet name used for XLSX exports
const DefaultSheet = "Reclamos"

// ParseFormat maps a query or flag value to a Format
func ParseFormat(s string) (Format, error) {
	switch Format(strings.ToLower(strings.TrimSpace(s))) {
	case FormatCSV, "":
		return FormatCSV, nil
	case FormatXLSX:
		return FormatXLSX, nil
	}
	return "", errors.Errorf("unsupported export format %q", s)
}

// ContentType is the MIME type of the format
func (f Format) ContentType() string {
	if f == FormatXLSX {
		return "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
	}
	return "text/csv; charset=utf-8"
}

// Extension is the file extension of the format, without the dot
func (f Format) Extension() string {
	return string(f)
}

// Table is a header plus rows of cell values
type Table struct {
	Header []string
	Rows   [][]string
}

// Write encodes t in format f
func Write(w io.Writer, f Format, t Table) error {
	switch f {
	case FormatCSV:
		return WriteCSV(w, t)
	case FormatXLSX:
		return WriteXLSX(w, t, DefaultSheet)
	}
	return errors.Errorf("unsupported export format %q", f)
}

// Read decodes a table written by Write
func Read(r io.Reader, f Format) (Table, error) {
	switch f {
	case FormatCSV:
		return ReadCSV(r)
	case FormatXLSX:
		return ReadXLSX(r)
	}
	return Table{}, errors.Errorf("unsupported export format %q", f)
}

// WriteCSV writes the header and rows as CSV
func WriteCSV(w io.Writer, t Table) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(t.Header); err != nil {
		return errors.Wrap(err, "failed to write csv header")
	}
	if err := cw.WriteAll(t.Rows); err != nil {
		return errors.Wrap(err, "failed to write csv rows")
	}
	return nil
}

// ReadCSV reads a CSV file whose first record is the header
func ReadCSV(r io.Reader) (Table, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1

	records, err := cr.ReadAll()
	if err != nil {
		return Table{}, errors.Wrap(err, "failed to read csv")
	}
	if len(records) == 0 {
		return Table{}, nil
	}
	return Table{Header: records[0], Rows: records[1:]}, nil
}

// WriteXLSX writes the table to a single worksheet
func WriteXLSX(w io.Writer, t Table, sheet string) error {
	f := excelize.NewFile()
	defer f.Close()

	if sheet == "" {
		sheet = DefaultSheet
	}
	if err := f.SetSheetName(f.GetSheetName(0), sheet); err != nil {
		return errors.Wrap(err, "failed to name worksheet")
	}

	sw, err := f.NewStreamWriter(sheet)
	if err != nil {
		return errors.Wrap(err, "failed to open worksheet stream")
	}

	if err := writeXLSXRow(sw, 1, t.Header); err != nil {
		return err
	}
	for i, row := range t.Rows {
		if err := writeXLSXRow(sw, i+2, row); err != nil {
			return err
		}
	}
	if err := sw.Flush(); err != nil {
		return errors.Wrap(err, "failed to flush worksheet")
	}

	if _, err := f.WriteTo(w); err != nil {
		return errors.Wrap(err, "failed to write xlsx")
	}
	return nil
}

func writeXLSXRow(sw *excelize.StreamWriter, n int, values []string) error {
	cell, err := excelize.CoordinatesToCellName(1, n)
	if err != nil {
		return errors.Wrap(err, "invalid row")
	}
	row := make([]interface{}, len(values))
	for i, v := range values {
		row[i] = v
	}
	if err := sw.SetRow(cell, row); err != nil {
		return errors.Wrapf(err, "failed to write row %d", n)
	}
	return nil
}

// ReadXLSX reads the first worksheet. Rows are padded to the header width
// since trailing empty cells are not stored.
func ReadXLSX(r io.Reader) (Table, error) {
	f, err := excelize.OpenReader(r)
	if err != nil {
		return Table{}, errors.Wrap(err, "failed to open xlsx")
	}
	defer f.Close()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return Table{}, nil
	}
	rows, err := f.GetRows(sheets[0])
	if err != nil {
		return Table{}, errors.Wrap(err, "failed to read worksheet")
	}
	if len(rows) == 0 {
		return Table{}, nil
	}

	t := Table{Header: rows[0], Rows: make([][]string, 0, len(rows)-1)}
	width := len(t.Header)
	for _, row := range rows[1:] {
		for len(row) < width {
			row = append(row, "")
		}
		t.Rows = append(t.Rows, row)
	}
	return t, nil
}
