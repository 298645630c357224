package core

import (
	"strings"
)

// IdentityColumn is the header, matched case-insensitively, whose values
// name the assets to update.
const IdentityColumn = "name"

// CustomSeparator splits a custom-metadata header into set and field names.
const CustomSeparator = "::"

// ColumnKind tags how a header is used.
type ColumnKind int

const (
	KindIgnored ColumnKind = iota
	KindIdentity
	KindStandard
	KindCustom
)

func (k ColumnKind) String() string {
	switch k {
	case KindIdentity:
		return "identity"
	case KindStandard:
		return "standard"
	case KindCustom:
		return "custom"
	default:
		return "ignored"
	}
}

// Attribute is a standard asset attribute a column can update.
type Attribute string

const (
	AttrDescription Attribute = "description"
	AttrUserOwners  Attribute = "user_owners"
	AttrGroupOwners Attribute = "group_owners"
	AttrCertificate Attribute = "certificate"
)

// StandardAttributes lists the recognized attribute keys in registry order.
var StandardAttributes = []Attribute{
	AttrDescription,
	AttrUserOwners,
	AttrGroupOwners,
	AttrCertificate,
}

// lookupAttribute matches a header against the attribute registry.
func lookupAttribute(header string) (Attribute, bool) {
	for _, a := range StandardAttributes {
		if strings.EqualFold(header, string(a)) {
			return a, true
		}
	}
	return "", false
}

// Reasons recorded for ignored columns.
const (
	ReasonUnrecognized       = "unrecognized"
	ReasonMultipleSeparators = "multiple separators"
	ReasonEmptyPath          = "empty set or field name"
	ReasonDuplicate          = "duplicate column"
)

// Column is the classification of one header cell.
type Column struct {
	Index     int        `json:"index"`
	Header    string     `json:"header"`
	Kind      ColumnKind `json:"-"`
	KindName  string     `json:"kind"`
	Attribute Attribute  `json:"attribute,omitempty"`
	Set       string     `json:"set,omitempty"`
	Field     string     `json:"field,omitempty"`
	Reason    string     `json:"reason,omitempty"`
}

// StandardField maps a column to a standard attribute.
type StandardField struct {
	Column    string
	Attribute Attribute
}

// CustomField maps a column to a custom-metadata set and field.
type CustomField struct {
	Column string
	Set    string
	Field  string
}

// IgnoredColumn is a header that updates nothing.
type IgnoredColumn struct {
	Column string
	Reason string
}

// ColumnPlan is built once per file from its header and never changes.
// Standard and Custom keep header order.
type ColumnPlan struct {
	Identity string
	Standard []StandardField
	Custom   []CustomField
	Ignored  []IgnoredColumn

	// Columns holds every header cell in order, for display.
	Columns []Column
}

// HasUpdates reports whether any column can produce an update.
func (p *ColumnPlan) HasUpdates() bool {
	return len(p.Standard) > 0 || len(p.Custom) > 0
}

// Classify derives the column plan from a header row. It fails only when
// the header has no identity column or more than one.
func Classify(header []string) (*ColumnPlan, error) {
	plan := &ColumnPlan{
		Columns: make([]Column, 0, len(header)),
	}

	var identities []string
	seenAttr := make(map[Attribute]bool)
	seenPath := make(map[[2]string]bool)
	seenHeader := make(map[string]bool)

	for i, raw := range header {
		col := Column{Index: i, Header: raw}
		h := strings.TrimSpace(raw)

		switch {
		case strings.EqualFold(h, IdentityColumn):
			col.Kind = KindIdentity
			identities = append(identities, raw)

		case seenHeader[raw]:
			// Rows keep only the first value for a repeated header.
			col.Reason = ReasonDuplicate

		case strings.Contains(h, CustomSeparator):
			col.Kind, col.Set, col.Field, col.Reason = classifyCustom(h)
			if col.Kind == KindCustom {
				key := [2]string{col.Set, col.Field}
				if seenPath[key] {
					col.Kind, col.Set, col.Field, col.Reason = KindIgnored, "", "", ReasonDuplicate
				} else {
					seenPath[key] = true
				}
			}

		default:
			attr, ok := lookupAttribute(h)
			switch {
			case !ok:
				col.Reason = ReasonUnrecognized
			case seenAttr[attr]:
				col.Reason = ReasonDuplicate
			default:
				seenAttr[attr] = true
				col.Kind = KindStandard
				col.Attribute = attr
			}
		}

		seenHeader[raw] = true
		col.KindName = col.Kind.String()
		plan.Columns = append(plan.Columns, col)

		switch col.Kind {
		case KindStandard:
			plan.Standard = append(plan.Standard, StandardField{Column: raw, Attribute: col.Attribute})
		case KindCustom:
			plan.Custom = append(plan.Custom, CustomField{Column: raw, Set: col.Set, Field: col.Field})
		case KindIgnored:
			plan.Ignored = append(plan.Ignored, IgnoredColumn{Column: raw, Reason: col.Reason})
		}
	}

	switch len(identities) {
	case 0:
		return nil, &MissingIdentityColumnError{Header: header}
	case 1:
		plan.Identity = identities[0]
	default:
		return nil, &DuplicateIdentityColumnError{Columns: identities}
	}

	return plan, nil
}

// classifyCustom parses a "Set::Field" header.
func classifyCustom(h string) (kind ColumnKind, set, field, reason string) {
	if strings.Count(h, CustomSeparator) > 1 {
		return KindIgnored, "", "", ReasonMultipleSeparators
	}
	set, field, _ = strings.Cut(h, CustomSeparator)
	set = strings.TrimSpace(set)
	field = strings.TrimSpace(field)
	if set == "" || field == "" {
		return KindIgnored, "", "", ReasonEmptyPath
	}
	return KindCustom, set, field, ""
}
