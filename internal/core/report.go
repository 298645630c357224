package core

import "time"

// Status is the terminal state of one row.
type Status string

const (
	StatusApplied          Status = "applied"
	StatusWouldApply       Status = "would_apply"
	StatusSkippedNoMatch   Status = "skipped_no_match"
	StatusSkippedAmbiguous Status = "skipped_ambiguous"
	StatusSkippedEmpty     Status = "skipped_empty"
	StatusFailed           Status = "failed"
)

// Statuses lists every status in report order.
var Statuses = []Status{
	StatusApplied,
	StatusWouldApply,
	StatusSkippedNoMatch,
	StatusSkippedAmbiguous,
	StatusSkippedEmpty,
	StatusFailed,
}

// Details recorded for non-error outcomes.
const (
	DetailEmptyIdentity = "identity value is empty"
	DetailNoUpdates     = "row has no values to update"
)

// RowOutcome is the terminal record of one row.
type RowOutcome struct {
	RowIndex        int        `json:"row_index" yaml:"row_index"`
	IdentityValue   string     `json:"identity_value" yaml:"identity_value"`
	Status          Status     `json:"status" yaml:"status"`
	MatchedAssetIDs []string   `json:"matched_asset_ids" yaml:"matched_asset_ids"`
	ErrorDetail     string     `json:"error_detail,omitempty" yaml:"error_detail,omitempty"`
	ErrorCode       string     `json:"error_code,omitempty" yaml:"error_code,omitempty"`
	ChangeSet       *ChangeSet `json:"change_set,omitempty" yaml:"change_set,omitempty"`
}

// Counts tallies outcomes per status.
type Counts struct {
	Applied          int `json:"applied" yaml:"applied"`
	WouldApply       int `json:"would_apply" yaml:"would_apply"`
	SkippedNoMatch   int `json:"skipped_no_match" yaml:"skipped_no_match"`
	SkippedAmbiguous int `json:"skipped_ambiguous" yaml:"skipped_ambiguous"`
	SkippedEmpty     int `json:"skipped_empty" yaml:"skipped_empty"`
	Failed           int `json:"failed" yaml:"failed"`
}

// Add increments the counter for s.
func (c *Counts) Add(s Status) {
	switch s {
	case StatusApplied:
		c.Applied++
	case StatusWouldApply:
		c.WouldApply++
	case StatusSkippedNoMatch:
		c.SkippedNoMatch++
	case StatusSkippedAmbiguous:
		c.SkippedAmbiguous++
	case StatusSkippedEmpty:
		c.SkippedEmpty++
	case StatusFailed:
		c.Failed++
	}
}

// Get returns the counter for s.
func (c Counts) Get(s Status) int {
	switch s {
	case StatusApplied:
		return c.Applied
	case StatusWouldApply:
		return c.WouldApply
	case StatusSkippedNoMatch:
		return c.SkippedNoMatch
	case StatusSkippedAmbiguous:
		return c.SkippedAmbiguous
	case StatusSkippedEmpty:
		return c.SkippedEmpty
	case StatusFailed:
		return c.Failed
	}
	return 0
}

// Total returns the sum of all counters.
func (c Counts) Total() int {
	return c.Applied + c.WouldApply + c.SkippedNoMatch + c.SkippedAmbiguous + c.SkippedEmpty + c.Failed
}

// BatchReport is the only artifact a run hands back. Outcomes follow input
// row order.
type BatchReport struct {
	RunID         string       `json:"run_id,omitempty" yaml:"run_id,omitempty"`
	FileName      string       `json:"file_name,omitempty" yaml:"file_name,omitempty"`
	AssetTypes    []string     `json:"asset_types" yaml:"asset_types"`
	TotalRows     int          `json:"total_rows" yaml:"total_rows"`
	DryRun        bool         `json:"dry_run" yaml:"dry_run"`
	Counts        Counts       `json:"counts" yaml:"counts"`
	Outcomes      []RowOutcome `json:"outcomes" yaml:"outcomes"`
	ProcessedRows int          `json:"processed_rows" yaml:"processed_rows"`
	Cancelled     bool         `json:"cancelled" yaml:"cancelled"`
	StartedAt     time.Time    `json:"started_at" yaml:"started_at"`
	FinishedAt    time.Time    `json:"finished_at" yaml:"finished_at"`
}

// newBatchReport tallies outcomes into a report.
func newBatchReport(totalRows int, dryRun bool, outcomes []RowOutcome) *BatchReport {
	r := &BatchReport{
		TotalRows:     totalRows,
		DryRun:        dryRun,
		Outcomes:      outcomes,
		ProcessedRows: len(outcomes),
	}
	if r.Outcomes == nil {
		r.Outcomes = []RowOutcome{}
	}
	for _, o := range outcomes {
		r.Counts.Add(o.Status)
	}
	return r
}

// Duration returns the wall time of the run.
func (r *BatchReport) Duration() time.Duration {
	if r.FinishedAt.IsZero() {
		return 0
	}
	return r.FinishedAt.Sub(r.StartedAt)
}
