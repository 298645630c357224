package tabular

import (
	"path/filepath"
	"sort"
	"strings"
)

// Format identifies how reference file bytes are decoded.
type Format string

const (
	// FormatDelimited covers comma and tab separated text files.
	FormatDelimited Format = "delimited"
	// FormatSpreadsheet covers Office Open XML workbooks.
	FormatSpreadsheet Format = "spreadsheet"
)

// formatHints maps caller-supplied hints to formats.
var formatHints = map[string]Format{
	"csv":         FormatDelimited,
	"text":        FormatDelimited,
	"delimited":   FormatDelimited,
	"tsv":         FormatDelimited,
	"xlsx":        FormatSpreadsheet,
	"spreadsheet": FormatSpreadsheet,
	"excel":       FormatSpreadsheet,
}

// formatExtensions maps file extensions to formats.
var formatExtensions = map[string]Format{
	".csv":  FormatDelimited,
	".txt":  FormatDelimited,
	".tsv":  FormatDelimited,
	".xlsx": FormatSpreadsheet,
	".xlsm": FormatSpreadsheet,
	".xls":  FormatSpreadsheet,
}

// ParseFormat converts a hint such as "csv" or "xlsx" to a Format.
// Matching is case-insensitive.
func ParseFormat(hint string) (Format, error) {
	if f, ok := formatHints[strings.ToLower(strings.TrimSpace(hint))]; ok {
		return f, nil
	}
	return "", &UnsupportedFormatError{Value: hint, Supported: SupportedHints()}
}

// FormatFromFileName derives the format from a file name's extension.
func FormatFromFileName(name string) (Format, error) {
	ext := strings.ToLower(filepath.Ext(name))
	if f, ok := formatExtensions[ext]; ok {
		return f, nil
	}
	return "", &UnsupportedFormatError{Value: name, Supported: SupportedExtensions()}
}

// Detect resolves the format of an upload. A non-empty hint wins over the
// file name; file content is never inspected. The returned Options carry the
// delimiter implied by a "tsv" hint or a .tsv file name.
func Detect(hint, fileName string) (Format, Options, error) {
	var opts Options

	hint = strings.ToLower(strings.TrimSpace(hint))
	if hint == "tsv" || (hint == "" && strings.EqualFold(filepath.Ext(fileName), ".tsv")) {
		opts.Delimiter = '\t'
	}

	if hint != "" {
		f, err := ParseFormat(hint)
		return f, opts, err
	}
	f, err := FormatFromFileName(fileName)
	return f, opts, err
}

// SupportedHints lists the accepted format hints in sorted order.
func SupportedHints() []string {
	return sortedKeys(formatHints)
}

// SupportedExtensions lists the accepted file extensions in sorted order.
func SupportedExtensions() []string {
	return sortedKeys(formatExtensions)
}

func sortedKeys(m map[string]Format) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
