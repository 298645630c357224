package tabular

import (
	"errors"
	"testing"
)

func TestParseFormat(t *testing.T) {
	tests := []struct {
		hint    string
		want    Format
		wantErr bool
	}{
		{"csv", FormatDelimited, false},
		{"CSV", FormatDelimited, false},
		{" text ", FormatDelimited, false},
		{"tsv", FormatDelimited, false},
		{"xlsx", FormatSpreadsheet, false},
		{"Excel", FormatSpreadsheet, false},
		{"spreadsheet", FormatSpreadsheet, false},
		{"parquet", "", true},
		{"", "", true},
	}

	for _, tt := range tests {
		got, err := ParseFormat(tt.hint)
		if (err != nil) != tt.wantErr {
			t.Errorf("ParseFormat(%q) error = %v, wantErr %v", tt.hint, err, tt.wantErr)
			continue
		}
		if got != tt.want {
			t.Errorf("ParseFormat(%q) = %q, want %q", tt.hint, got, tt.want)
		}
	}
}

func TestFormatFromFileName(t *testing.T) {
	tests := []struct {
		name    string
		want    Format
		wantErr bool
	}{
		{"reference.csv", FormatDelimited, false},
		{"REFERENCE.CSV", FormatDelimited, false},
		{"notes.txt", FormatDelimited, false},
		{"export.tsv", FormatDelimited, false},
		{"book.xlsx", FormatSpreadsheet, false},
		{"macro.xlsm", FormatSpreadsheet, false},
		{"legacy.xls", FormatSpreadsheet, false},
		{"data.json", "", true},
		{"noext", "", true},
	}

	for _, tt := range tests {
		got, err := FormatFromFileName(tt.name)
		if (err != nil) != tt.wantErr {
			t.Errorf("FormatFromFileName(%q) error = %v, wantErr %v", tt.name, err, tt.wantErr)
			continue
		}
		if got != tt.want {
			t.Errorf("FormatFromFileName(%q) = %q, want %q", tt.name, got, tt.want)
		}
	}
}

func TestDetect(t *testing.T) {
	tests := []struct {
		hint      string
		fileName  string
		want      Format
		wantDelim rune
	}{
		{"", "ref.csv", FormatDelimited, 0},
		{"", "ref.tsv", FormatDelimited, '\t'},
		{"tsv", "upload.bin", FormatDelimited, '\t'},
		{"xlsx", "ref.csv", FormatSpreadsheet, 0},
		{"csv", "ref.tsv", FormatDelimited, 0},
	}

	for _, tt := range tests {
		got, opts, err := Detect(tt.hint, tt.fileName)
		if err != nil {
			t.Errorf("Detect(%q, %q) error = %v", tt.hint, tt.fileName, err)
			continue
		}
		if got != tt.want {
			t.Errorf("Detect(%q, %q) = %q, want %q", tt.hint, tt.fileName, got, tt.want)
		}
		if opts.Delimiter != tt.wantDelim {
			t.Errorf("Detect(%q, %q) delimiter = %q, want %q", tt.hint, tt.fileName, opts.Delimiter, tt.wantDelim)
		}
	}
}

func TestDetect_Unsupported(t *testing.T) {
	_, _, err := Detect("", "reference.pdf")
	var ufe *UnsupportedFormatError
	if !errors.As(err, &ufe) {
		t.Fatalf("Detect() error = %v, want UnsupportedFormatError", err)
	}
	if len(ufe.Supported) == 0 {
		t.Error("UnsupportedFormatError.Supported should list extensions")
	}
}
