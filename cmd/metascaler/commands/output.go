package commands

import (
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/olekukonko/tablewriter"
	"gopkg.in/yaml.v3"

	"github.com/JonMunkholm/metascaler/internal/core"
)

const (
	outputTable = "table"
	outputJSON  = "json"
	outputYAML  = "yaml"
)

func checkOutput(format string) error {
	switch format {
	case outputTable, outputJSON, outputYAML:
		return nil
	}
	return fmt.Errorf("unknown output format %q: use table, json or yaml", format)
}

// writeStructured encodes v as JSON or YAML.
func writeStructured(w io.Writer, format string, v any) error {
	switch format {
	case outputJSON:
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(v)
	case outputYAML:
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(v); err != nil {
			return err
		}
		return enc.Close()
	}
	return checkOutput(format)
}

func renderTable(w io.Writer, headers []string, rows [][]string) {
	table := tablewriter.NewWriter(w)
	table.SetAutoWrapText(false)
	table.SetHeader(headers)
	table.AppendBulk(rows)
	table.Render()
}

// writeReport prints a batch report: the per-row outcomes followed by the
// counts per status.
func writeReport(w io.Writer, format string, report *core.BatchReport) error {
	if format != outputTable {
		return writeStructured(w, format, report)
	}

	rows := make([][]string, 0, len(report.Outcomes))
	for _, o := range report.Outcomes {
		detail := o.ErrorDetail
		if o.ErrorCode != "" {
			detail = o.ErrorCode + ": " + detail
		}
		rows = append(rows, []string{
			strconv.Itoa(o.RowIndex),
			o.IdentityValue,
			string(o.Status),
			strings.Join(o.MatchedAssetIDs, ", "),
			detail,
		})
	}
	renderTable(w, []string{"Row", "Name", "Status", "Matched", "Detail"}, rows)

	counts := make([][]string, 0, len(core.Statuses))
	for _, s := range core.Statuses {
		if n := report.Counts.Get(s); n > 0 {
			counts = append(counts, []string{string(s), strconv.Itoa(n)})
		}
	}
	counts = append(counts, []string{"total", strconv.Itoa(report.Counts.Total())})
	renderTable(w, []string{"Status", "Rows"}, counts)

	mode := "live run"
	if report.DryRun {
		mode = "dry run, nothing was changed"
	}
	fmt.Fprintf(w, "%d of %d rows processed (%s)\n", report.ProcessedRows, report.TotalRows, mode)
	if report.Cancelled {
		fmt.Fprintln(w, "The run was cancelled before every row was processed.")
	}
	return nil
}

// writePlan prints the column plan of a file.
func writePlan(w io.Writer, format string, plan *core.ColumnPlan, rows int) error {
	if format != outputTable {
		return writeStructured(w, format, map[string]any{
			"rows":        rows,
			"has_updates": plan.HasUpdates(),
			"columns":     plan.Columns,
		})
	}

	out := make([][]string, 0, len(plan.Columns))
	for _, c := range plan.Columns {
		target := string(c.Attribute)
		if c.Set != "" {
			target = c.Set + core.CustomSeparator + c.Field
		}
		out = append(out, []string{
			strconv.Itoa(c.Index + 1),
			c.Header,
			c.KindName,
			target,
			c.Reason,
		})
	}
	renderTable(w, []string{"#", "Header", "Kind", "Updates", "Ignored Because"}, out)

	fmt.Fprintf(w, "%d data rows\n", rows)
	if !plan.HasUpdates() {
		fmt.Fprintln(w, "No column updates anything; every row would be skipped.")
	}
	return nil
}
