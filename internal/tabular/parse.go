// Package tabular decodes reference files into a header and an ordered
// sequence of rows. Every cell is returned as a string; no type inference
// happens here.
package tabular

import (
	"bytes"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strings"
	"unicode/utf8"

	"github.com/xuri/excelize/v2"
	"golang.org/x/text/encoding/charmap"
	"golang.org/x/text/encoding/unicode"
	"golang.org/x/text/transform"
)

var (
	bomUTF8    = []byte{0xEF, 0xBB, 0xBF}
	bomUTF16LE = []byte{0xFF, 0xFE}
	bomUTF16BE = []byte{0xFE, 0xFF}
)

// Options tunes decoding. The zero value parses comma separated text and
// the first worksheet of a workbook.
type Options struct {
	// Delimiter separates fields in delimited text. Zero means comma.
	Delimiter rune

	// Sheet selects a worksheet by name. Empty means the first sheet.
	Sheet string
}

// Row is one data line after the header.
type Row struct {
	// Index is 1-based and excludes the header.
	Index int

	// Values maps trimmed header text to the raw cell value. When two
	// columns share a header, the first column's value is kept.
	Values map[string]string
}

// Value returns the raw cell for a column, or "" when absent.
func (r Row) Value(column string) string {
	return r.Values[column]
}

// Table is a decoded reference file.
type Table struct {
	Header []string
	Rows   []Row
}

// Parse decodes data using the given format and default options.
func Parse(data []byte, format Format) (*Table, error) {
	return ParseWithOptions(data, format, Options{})
}

// ParseWithOptions decodes data using the given format.
//
// A file with a header and no data rows is valid and yields no rows. A file
// with no header at all is a MalformedFileError.
func ParseWithOptions(data []byte, format Format, opts Options) (*Table, error) {
	if len(data) == 0 {
		return nil, malformed("file is empty", nil)
	}

	var (
		records [][]string
		err     error
	)
	switch format {
	case FormatDelimited:
		records, err = readDelimited(data, opts.Delimiter)
	case FormatSpreadsheet:
		records, err = readSpreadsheet(data, opts.Sheet)
	default:
		return nil, &UnsupportedFormatError{Value: string(format), Supported: []string{string(FormatDelimited), string(FormatSpreadsheet)}}
	}
	if err != nil {
		return nil, err
	}

	return buildTable(records)
}

// buildTable turns raw records into a Table. Leading blank records are
// skipped so the first non-blank record becomes the header.
func buildTable(records [][]string) (*Table, error) {
	start := 0
	for start < len(records) && isBlank(records[start]) {
		start++
	}
	if start == len(records) {
		return nil, malformed("no header row found", nil)
	}

	header := make([]string, len(records[start]))
	for i, h := range records[start] {
		header[i] = strings.TrimSpace(h)
	}

	body := records[start+1:]
	rows := make([]Row, 0, len(body))
	for i, rec := range body {
		values := make(map[string]string, len(header))
		for col, h := range header {
			if _, seen := values[h]; seen {
				continue
			}
			// Short rows are padded; cells beyond the header are dropped.
			if col < len(rec) {
				values[h] = rec[col]
			} else {
				values[h] = ""
			}
		}
		rows = append(rows, Row{Index: i + 1, Values: values})
	}

	return &Table{Header: header, Rows: rows}, nil
}

func isBlank(record []string) bool {
	for _, cell := range record {
		if strings.TrimSpace(cell) != "" {
			return false
		}
	}
	return true
}

// readDelimited parses comma or tab separated text.
func readDelimited(data []byte, delim rune) ([][]string, error) {
	text, err := decodeText(data)
	if err != nil {
		return nil, malformed("cannot decode text", err)
	}

	r := csv.NewReader(bytes.NewReader(text))
	if delim != 0 {
		r.Comma = delim
	}
	r.FieldsPerRecord = -1
	r.LazyQuotes = true

	var records [][]string
	for {
		rec, err := r.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			if len(records) == 0 {
				return nil, malformed("cannot read header row", err)
			}
			return nil, malformed(fmt.Sprintf("cannot read record %d", len(records)+1), err)
		}
		records = append(records, rec)
	}
	return records, nil
}

// decodeText converts delimited text to UTF-8. A byte order mark selects
// UTF-8 or UTF-16 and is stripped. Without one, valid UTF-8 is used as is
// and anything else is read as ISO-8859-1.
func decodeText(data []byte) ([]byte, error) {
	if bytes.HasPrefix(data, bomUTF8) || bytes.HasPrefix(data, bomUTF16LE) || bytes.HasPrefix(data, bomUTF16BE) {
		out, _, err := transform.Bytes(unicode.BOMOverride(transform.Nop), data)
		return out, err
	}
	if utf8.Valid(data) {
		return data, nil
	}
	return charmap.ISO8859_1.NewDecoder().Bytes(data)
}

// readSpreadsheet returns the formatted cell text of one worksheet.
func readSpreadsheet(data []byte, sheet string) ([][]string, error) {
	f, err := excelize.OpenReader(bytes.NewReader(data))
	if err != nil {
		return nil, malformed("cannot open workbook", err)
	}
	defer f.Close()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return nil, malformed("workbook has no worksheets", nil)
	}
	if sheet == "" {
		sheet = sheets[0]
	} else if idx, err := f.GetSheetIndex(sheet); err != nil || idx < 0 {
		return nil, malformed(fmt.Sprintf("worksheet %q not found (available: %s)", sheet, strings.Join(sheets, ", ")), nil)
	}

	rows, err := f.GetRows(sheet)
	if err != nil {
		return nil, malformed(fmt.Sprintf("cannot read worksheet %q", sheet), err)
	}
	return rows, nil
}
