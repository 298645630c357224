package tabular

import (
	"errors"
	"testing"

	"github.com/xuri/excelize/v2"
)

func TestParse_Delimited(t *testing.T) {
	data := []byte("name, description ,certificate\ncustomer_id,Customer identifier,verified\norders,,\n")

	table, err := Parse(data, FormatDelimited)
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}

	wantHeader := []string{"name", "description", "certificate"}
	if len(table.Header) != len(wantHeader) {
		t.Fatalf("Header = %v, want %v", table.Header, wantHeader)
	}
	for i, h := range wantHeader {
		if table.Header[i] != h {
			t.Errorf("Header[%d] = %q, want %q", i, table.Header[i], h)
		}
	}

	if len(table.Rows) != 2 {
		t.Fatalf("len(Rows) = %d, want 2", len(table.Rows))
	}
	first := table.Rows[0]
	if first.Index != 1 {
		t.Errorf("Rows[0].Index = %d, want 1", first.Index)
	}
	if got := first.Value("description"); got != "Customer identifier" {
		t.Errorf("description = %q, want %q", got, "Customer identifier")
	}
	if got := table.Rows[1].Value("certificate"); got != "" {
		t.Errorf("certificate = %q, want empty", got)
	}
	if table.Rows[1].Index != 2 {
		t.Errorf("Rows[1].Index = %d, want 2", table.Rows[1].Index)
	}
}

func TestParse_HeaderOnly(t *testing.T) {
	table, err := Parse([]byte("name,description\n"), FormatDelimited)
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	if len(table.Rows) != 0 {
		t.Errorf("len(Rows) = %d, want 0", len(table.Rows))
	}
	if len(table.Header) != 2 {
		t.Errorf("len(Header) = %d, want 2", len(table.Header))
	}
}

func TestParse_Malformed(t *testing.T) {
	tests := []struct {
		name   string
		data   []byte
		format Format
	}{
		{"empty file", nil, FormatDelimited},
		{"only blank lines", []byte("\n\n"), FormatDelimited},
		{"only separators", []byte(",,\n"), FormatDelimited},
		{"not a workbook", []byte("name,description\n"), FormatSpreadsheet},
		{"legacy xls bytes", []byte{0xD0, 0xCF, 0x11, 0xE0, 0xA1, 0xB1, 0x1A, 0xE1}, FormatSpreadsheet},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse(tt.data, tt.format)
			var mf *MalformedFileError
			if !errors.As(err, &mf) {
				t.Fatalf("Parse() error = %v, want MalformedFileError", err)
			}
		})
	}
}

func TestParse_PadsAndTruncates(t *testing.T) {
	data := []byte("name,description,certificate\nshort\nlong,d,VERIFIED,extra,cells\n")

	table, err := Parse(data, FormatDelimited)
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}

	short := table.Rows[0]
	if len(short.Values) != 3 {
		t.Errorf("short row has %d values, want 3", len(short.Values))
	}
	if v, ok := short.Values["certificate"]; !ok || v != "" {
		t.Errorf("short row certificate = %q (present=%v), want empty and present", v, ok)
	}

	long := table.Rows[1]
	if len(long.Values) != 3 {
		t.Errorf("long row has %d values, want 3", len(long.Values))
	}
	if long.Value("certificate") != "VERIFIED" {
		t.Errorf("long row certificate = %q, want VERIFIED", long.Value("certificate"))
	}
}

func TestParse_DuplicateHeaderKeepsFirst(t *testing.T) {
	table, err := Parse([]byte("name,Description,Description\nx,first,second\n"), FormatDelimited)
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	if got := table.Rows[0].Value("Description"); got != "first" {
		t.Errorf("Description = %q, want %q", got, "first")
	}
}

func TestParse_TabDelimited(t *testing.T) {
	data := []byte("name\tdescription\nx\ta, b and c\n")

	table, err := ParseWithOptions(data, FormatDelimited, Options{Delimiter: '\t'})
	if err != nil {
		t.Fatalf("ParseWithOptions() error = %v", err)
	}
	if got := table.Rows[0].Value("description"); got != "a, b and c" {
		t.Errorf("description = %q, want %q", got, "a, b and c")
	}
}

func TestParse_Encodings(t *testing.T) {
	utf16le := []byte{0xFF, 0xFE}
	for _, r := range "name\nx\n" {
		utf16le = append(utf16le, byte(r), 0x00)
	}

	tests := []struct {
		name      string
		data      []byte
		wantName  string
		wantValue string
	}{
		{"utf8 bom", append([]byte{0xEF, 0xBB, 0xBF}, []byte("name\nx\n")...), "name", "x"},
		{"utf16 le bom", utf16le, "name", "x"},
		{"latin1 fallback", []byte("name\ncaf\xe9\n"), "name", "café"},
		{"plain utf8", []byte("name\nnaïve\n"), "name", "naïve"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			table, err := Parse(tt.data, FormatDelimited)
			if err != nil {
				t.Fatalf("Parse() error = %v", err)
			}
			if table.Header[0] != tt.wantName {
				t.Errorf("Header[0] = %q, want %q", table.Header[0], tt.wantName)
			}
			if got := table.Rows[0].Value(tt.wantName); got != tt.wantValue {
				t.Errorf("value = %q, want %q", got, tt.wantValue)
			}
		})
	}
}

func newWorkbook(t *testing.T, sheet string, rows [][]any) []byte {
	t.Helper()
	f := excelize.NewFile()
	defer f.Close()

	if sheet != "Sheet1" {
		if _, err := f.NewSheet(sheet); err != nil {
			t.Fatalf("NewSheet() error = %v", err)
		}
	}
	for i, row := range rows {
		cell, err := excelize.CoordinatesToCellName(1, i+1)
		if err != nil {
			t.Fatalf("CoordinatesToCellName() error = %v", err)
		}
		r := row
		if err := f.SetSheetRow(sheet, cell, &r); err != nil {
			t.Fatalf("SetSheetRow() error = %v", err)
		}
	}
	buf, err := f.WriteToBuffer()
	if err != nil {
		t.Fatalf("WriteToBuffer() error = %v", err)
	}
	return buf.Bytes()
}

func TestParse_Spreadsheet(t *testing.T) {
	data := newWorkbook(t, "Sheet1", [][]any{
		{"Name", "Data Governance::Business Owner", "Rows"},
		{"customer_id", "Jane Smith", 42},
	})

	table, err := Parse(data, FormatSpreadsheet)
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	if len(table.Rows) != 1 {
		t.Fatalf("len(Rows) = %d, want 1", len(table.Rows))
	}
	row := table.Rows[0]
	if got := row.Value("Name"); got != "customer_id" {
		t.Errorf("Name = %q, want %q", got, "customer_id")
	}
	if got := row.Value("Data Governance::Business Owner"); got != "Jane Smith" {
		t.Errorf("custom value = %q, want %q", got, "Jane Smith")
	}
	if got := row.Value("Rows"); got != "42" {
		t.Errorf("numeric cell = %q, want %q", got, "42")
	}
}

func TestParse_SpreadsheetSheetSelection(t *testing.T) {
	data := newWorkbook(t, "Metadata", [][]any{
		{"name", "description"},
		{"orders", "All orders"},
	})

	table, err := ParseWithOptions(data, FormatSpreadsheet, Options{Sheet: "Metadata"})
	if err != nil {
		t.Fatalf("ParseWithOptions() error = %v", err)
	}
	if got := table.Rows[0].Value("description"); got != "All orders" {
		t.Errorf("description = %q, want %q", got, "All orders")
	}

	_, err = ParseWithOptions(data, FormatSpreadsheet, Options{Sheet: "Missing"})
	var mf *MalformedFileError
	if !errors.As(err, &mf) {
		t.Errorf("missing sheet error = %v, want MalformedFileError", err)
	}
}

func TestParse_EmptyWorksheet(t *testing.T) {
	data := newWorkbook(t, "Sheet1", nil)

	_, err := Parse(data, FormatSpreadsheet)
	var mf *MalformedFileError
	if !errors.As(err, &mf) {
		t.Errorf("Parse() error = %v, want MalformedFileError", err)
	}
}
