package core

import (
	"strings"
	"unicode"

	"github.com/JonMunkholm/metascaler/internal/tabular"
)

// CertificateStatus is the fixed certificate enum of the catalog.
type CertificateStatus string

const (
	CertificateVerified   CertificateStatus = "VERIFIED"
	CertificateDraft      CertificateStatus = "DRAFT"
	CertificateDeprecated CertificateStatus = "DEPRECATED"
)

// CertificateStatuses lists the allowed values in display order.
var CertificateStatuses = []CertificateStatus{
	CertificateVerified,
	CertificateDraft,
	CertificateDeprecated,
}

// ParseCertificateStatus matches s case-insensitively against the enum.
func ParseCertificateStatus(s string) (CertificateStatus, bool) {
	s = strings.TrimSpace(s)
	for _, c := range CertificateStatuses {
		if strings.EqualFold(s, string(c)) {
			return c, true
		}
	}
	return "", false
}

func certificateNames() []string {
	names := make([]string, len(CertificateStatuses))
	for i, c := range CertificateStatuses {
		names[i] = string(c)
	}
	return names
}

// StandardUpdates holds normalized values for standard attributes. Zero
// values are omitted from the update; nothing here ever clears a value.
type StandardUpdates struct {
	Description string            `json:"description,omitempty" yaml:"description,omitempty"`
	UserOwners  []string          `json:"user_owners,omitempty" yaml:"user_owners,omitempty"`
	GroupOwners []string          `json:"group_owners,omitempty" yaml:"group_owners,omitempty"`
	Certificate CertificateStatus `json:"certificate,omitempty" yaml:"certificate,omitempty"`
}

// IsEmpty reports whether no standard attribute is set.
func (u StandardUpdates) IsEmpty() bool {
	return u.Description == "" && len(u.UserOwners) == 0 && len(u.GroupOwners) == 0 && u.Certificate == ""
}

// ChangeSet is the partial update computed for one asset from one row.
type ChangeSet struct {
	AssetID  string                       `json:"asset_id" yaml:"asset_id"`
	Standard StandardUpdates              `json:"standard_updates" yaml:"standard_updates"`
	Custom   map[string]map[string]string `json:"custom_metadata_updates,omitempty" yaml:"custom_metadata_updates,omitempty"`
}

// IsEmpty reports whether the change-set would update nothing. Empty
// change-sets are never submitted.
func (c *ChangeSet) IsEmpty() bool {
	return c.Standard.IsEmpty() && len(c.Custom) == 0
}

// Build combines a resolved asset with a row's non-identity values.
//
// Empty or whitespace-only cells are skipped. Every normalization failure is
// collected, in header order, into a single NormalizationError.
func Build(row tabular.Row, plan *ColumnPlan, assetID string) (*ChangeSet, error) {
	cs := &ChangeSet{AssetID: assetID}
	var errs []error

	for _, f := range plan.Standard {
		raw := row.Value(f.Column)
		if strings.TrimSpace(raw) == "" {
			continue
		}

		switch f.Attribute {
		case AttrDescription:
			cs.Standard.Description = raw

		case AttrUserOwners, AttrGroupOwners:
			owners, err := normalizeOwners(f.Column, raw)
			if err != nil {
				errs = append(errs, err)
				continue
			}
			if f.Attribute == AttrUserOwners {
				cs.Standard.UserOwners = owners
			} else {
				cs.Standard.GroupOwners = owners
			}

		case AttrCertificate:
			status, ok := ParseCertificateStatus(raw)
			if !ok {
				errs = append(errs, &InvalidEnumValueError{
					Column:  f.Column,
					Value:   raw,
					Allowed: certificateNames(),
				})
				continue
			}
			cs.Standard.Certificate = status
		}
	}

	for _, f := range plan.Custom {
		raw := row.Value(f.Column)
		if strings.TrimSpace(raw) == "" {
			continue
		}
		if cs.Custom == nil {
			cs.Custom = make(map[string]map[string]string)
		}
		fields, ok := cs.Custom[f.Set]
		if !ok {
			fields = make(map[string]string)
			cs.Custom[f.Set] = fields
		}
		fields[f.Field] = raw
	}

	if len(errs) > 0 {
		return nil, &NormalizationError{RowIndex: row.Index, Errs: errs}
	}
	return cs, nil
}

// normalizeOwners splits a comma-separated owner list, trims each entry,
// drops empties and removes duplicates keeping first-seen order.
func normalizeOwners(column, raw string) ([]string, error) {
	parts := strings.Split(raw, ",")
	owners := make([]string, 0, len(parts))
	seen := make(map[string]bool, len(parts))

	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p == "" || seen[p] {
			continue
		}
		if strings.IndexFunc(p, invalidOwnerRune) >= 0 {
			return nil, &InvalidOwnerError{Column: column, Value: p}
		}
		seen[p] = true
		owners = append(owners, p)
	}
	return owners, nil
}

// invalidOwnerRune rejects control characters; inner spaces are valid.
func invalidOwnerRune(r rune) bool {
	return unicode.IsControl(r)
}
