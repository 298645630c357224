package core

import (
	"github.com/JonMunkholm/metascaler/internal/tabular"
)

// FormatGuide describes the reference file grammar for operators.
type FormatGuide struct {
	IdentityColumn    string   `json:"identity_column" yaml:"identity_column"`
	StandardColumns   []string `json:"standard_columns" yaml:"standard_columns"`
	CustomSeparator   string   `json:"custom_separator" yaml:"custom_separator"`
	CustomExample     string   `json:"custom_example" yaml:"custom_example"`
	CertificateValues []string `json:"certificate_values" yaml:"certificate_values"`
	FileExtensions    []string `json:"file_extensions" yaml:"file_extensions"`
	FormatHints       []string `json:"format_hints" yaml:"format_hints"`
	AssetTypes        []string `json:"asset_types" yaml:"asset_types"`
	Rules             []string `json:"rules" yaml:"rules"`
}

var formatRules = []string{
	"The name column is required and matched case-sensitively against active assets.",
	"Standard column headers are matched case-insensitively.",
	"Custom metadata columns use exactly one separator between set and field.",
	"Owner columns hold comma-separated identifiers without spaces.",
	"Empty cells leave the attribute unchanged; values are never cleared.",
	"Unrecognized columns are ignored and reported.",
	"Rows matching zero or several assets are skipped.",
}

// NewFormatGuide builds the guide for the given allowed asset types.
func NewFormatGuide(assetTypes []string) FormatGuide {
	std := make([]string, len(StandardAttributes))
	for i, a := range StandardAttributes {
		std[i] = string(a)
	}
	types := append([]string(nil), assetTypes...)
	if types == nil {
		types = []string{}
	}
	return FormatGuide{
		IdentityColumn:    IdentityColumn,
		StandardColumns:   std,
		CustomSeparator:   CustomSeparator,
		CustomExample:     "Data Governance" + CustomSeparator + "Business Owner",
		CertificateValues: certificateNames(),
		FileExtensions:    tabular.SupportedExtensions(),
		FormatHints:       tabular.SupportedHints(),
		AssetTypes:        types,
		Rules:             formatRules,
	}
}

// FormatGuide returns the guide for the configured asset types.
func (s *Service) FormatGuide() FormatGuide {
	return NewFormatGuide(s.cfg.Catalog.AssetTypes)
}
