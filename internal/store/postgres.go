package store

import (
	"context"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/JonMunkholm/metascaler/internal/core"
)

//go:embed migrations/001_metadata_runs.sql
var schemaSQL string

const upsertRunSQL = `
INSERT INTO metadata_runs (
    id, file_name, asset_types, dry_run, total_rows, processed_rows, cancelled,
    applied, would_apply, skipped_no_match, skipped_ambiguous, skipped_empty, failed,
    started_at, finished_at, report
) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16)
ON CONFLICT (id) DO UPDATE SET
    file_name = EXCLUDED.file_name,
    asset_types = EXCLUDED.asset_types,
    dry_run = EXCLUDED.dry_run,
    total_rows = EXCLUDED.total_rows,
    processed_rows = EXCLUDED.processed_rows,
    cancelled = EXCLUDED.cancelled,
    applied = EXCLUDED.applied,
    would_apply = EXCLUDED.would_apply,
    skipped_no_match = EXCLUDED.skipped_no_match,
    skipped_ambiguous = EXCLUDED.skipped_ambiguous,
    skipped_empty = EXCLUDED.skipped_empty,
    failed = EXCLUDED.failed,
    started_at = EXCLUDED.started_at,
    finished_at = EXCLUDED.finished_at,
    report = EXCLUDED.report`

const listRunsSQL = `
SELECT id, file_name, asset_types, dry_run, total_rows, processed_rows, cancelled,
       applied, would_apply, skipped_no_match, skipped_ambiguous, skipped_empty, failed,
       started_at, finished_at
FROM metadata_runs
ORDER BY started_at DESC
LIMIT $1`

// defaultListLimit caps history queries that ask for everything.
const defaultListLimit = 1000

var outcomeColumns = []string{
	"run_id", "row_index", "identity_value", "status",
	"matched_asset_ids", "error_detail", "error_code", "change_set",
}

// Postgres stores reports in PostgreSQL. Each report is kept whole as JSONB
// alongside one row per outcome.
type Postgres struct {
	pool *pgxpool.Pool
}

var _ core.ReportStore = (*Postgres)(nil)

// NewPostgres creates a store over an open pool. Call Migrate before use.
func NewPostgres(pool *pgxpool.Pool) *Postgres {
	return &Postgres{pool: pool}
}

// Migrate creates the report tables if they do not exist.
func (p *Postgres) Migrate(ctx context.Context) error {
	if _, err := p.pool.Exec(ctx, schemaSQL); err != nil {
		return fmt.Errorf("apply report schema: %w", err)
	}
	return nil
}

// Save writes the run and replaces its outcomes in one transaction.
func (p *Postgres) Save(ctx context.Context, report *core.BatchReport) error {
	if report == nil || report.RunID == "" {
		return errNoRunID
	}

	doc, err := json.Marshal(report)
	if err != nil {
		return fmt.Errorf("encode report %s: %w", report.RunID, err)
	}

	rows, err := outcomeRows(report)
	if err != nil {
		return err
	}

	tx, err := p.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx) // No-op if already committed

	assetTypes := report.AssetTypes
	if assetTypes == nil {
		assetTypes = []string{}
	}
	c := report.Counts
	if _, err := tx.Exec(ctx, upsertRunSQL,
		report.RunID, report.FileName, assetTypes, report.DryRun,
		report.TotalRows, report.ProcessedRows, report.Cancelled,
		c.Applied, c.WouldApply, c.SkippedNoMatch, c.SkippedAmbiguous, c.SkippedEmpty, c.Failed,
		report.StartedAt, report.FinishedAt, doc,
	); err != nil {
		return describe("save run "+report.RunID, err)
	}

	if _, err := tx.Exec(ctx, `DELETE FROM metadata_run_outcomes WHERE run_id = $1`, report.RunID); err != nil {
		return describe("clear outcomes", err)
	}

	if len(rows) > 0 {
		if _, err := tx.CopyFrom(ctx, pgx.Identifier{"metadata_run_outcomes"}, outcomeColumns, pgx.CopyFromRows(rows)); err != nil {
			return describe("save outcomes", err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// outcomeRows maps the outcomes of a report onto outcomeColumns. A row
// without a change-set stores NULL.
func outcomeRows(report *core.BatchReport) ([][]any, error) {
	rows := make([][]any, 0, len(report.Outcomes))
	for _, o := range report.Outcomes {
		var cs any
		if o.ChangeSet != nil {
			doc, err := json.Marshal(o.ChangeSet)
			if err != nil {
				return nil, fmt.Errorf("encode change-set for row %d: %w", o.RowIndex, err)
			}
			cs = doc
		}
		matched := o.MatchedAssetIDs
		if matched == nil {
			matched = []string{}
		}
		rows = append(rows, []any{
			report.RunID, o.RowIndex, o.IdentityValue, string(o.Status),
			matched, o.ErrorDetail, o.ErrorCode, cs,
		})
	}
	return rows, nil
}

func (p *Postgres) Get(ctx context.Context, runID string) (*core.BatchReport, error) {
	var doc []byte
	err := p.pool.QueryRow(ctx, `SELECT report FROM metadata_runs WHERE id = $1`, runID).Scan(&doc)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", core.ErrRunNotFound, runID)
	}
	if err != nil {
		return nil, describe("load run "+runID, err)
	}

	var report core.BatchReport
	if err := json.Unmarshal(doc, &report); err != nil {
		return nil, fmt.Errorf("decode report %s: %w", runID, err)
	}
	return &report, nil
}

// List returns run summaries, newest first.
func (p *Postgres) List(ctx context.Context, limit int) ([]core.RunSummary, error) {
	if limit <= 0 {
		limit = defaultListLimit
	}

	rows, err := p.pool.Query(ctx, listRunsSQL, limit)
	if err != nil {
		return nil, describe("list runs", err)
	}
	defer rows.Close()

	out := []core.RunSummary{}
	for rows.Next() {
		var (
			s core.RunSummary
			c = &s.Counts
		)
		if err := rows.Scan(
			&s.RunID, &s.FileName, &s.AssetTypes, &s.DryRun, &s.TotalRows, &s.ProcessedRows, &s.Cancelled,
			&c.Applied, &c.WouldApply, &c.SkippedNoMatch, &c.SkippedAmbiguous, &c.SkippedEmpty, &c.Failed,
			&s.StartedAt, &s.FinishedAt,
		); err != nil {
			return nil, fmt.Errorf("scan run: %w", err)
		}
		out = append(out, s)
	}
	if err := rows.Err(); err != nil {
		return nil, describe("list runs", err)
	}
	return out, nil
}

// describe adds the Postgres error code to a failed statement.
func describe(op string, err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return fmt.Errorf("%s: %s (SQLSTATE %s): %w", op, pgErr.Message, pgErr.Code, err)
	}
	return fmt.Errorf("%s: %w", op, err)
}
