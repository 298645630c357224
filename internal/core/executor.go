package core

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/JonMunkholm/metascaler/internal/logging"
	"github.com/JonMunkholm/metascaler/internal/tabular"
)

// DefaultMutateTimeout bounds one change-set submission when no timeout is
// configured.
const DefaultMutateTimeout = 30 * time.Second

// Options tunes the executor.
type Options struct {
	// Workers is the number of rows in flight. Values below 1 mean 1.
	Workers int

	// SearchTimeout bounds each catalog lookup.
	SearchTimeout time.Duration

	// MutateTimeout bounds each change-set submission.
	MutateTimeout time.Duration

	// OnOutcome is called once per finished row. With more than one worker
	// it is called concurrently and in completion order.
	OnOutcome func(RowOutcome)
}

// Executor runs the resolve, build and apply steps for every row.
type Executor struct {
	resolver *Resolver
	mutator  Mutator
	opts     Options
}

// NewExecutor creates an executor over a catalog's search and mutation
// interfaces.
func NewExecutor(search Searcher, mutate Mutator, opts Options) *Executor {
	if opts.Workers < 1 {
		opts.Workers = 1
	}
	if opts.MutateTimeout <= 0 {
		opts.MutateTimeout = DefaultMutateTimeout
	}
	return &Executor{
		resolver: NewResolver(search, opts.SearchTimeout),
		mutator:  mutate,
		opts:     opts,
	}
}

// Run processes rows and returns the batch report. A row failure never
// stops the batch.
//
// Cancelling ctx stops new rows from starting. Rows already in flight
// finish their catalog calls, and the report then covers only the rows that
// were processed, with Cancelled set.
func (e *Executor) Run(ctx context.Context, rows []tabular.Row, plan *ColumnPlan, filter []string, dryRun bool) *BatchReport {
	results := make([]RowOutcome, len(rows))
	processed := make([]bool, len(rows))

	var g errgroup.Group
	g.SetLimit(e.opts.Workers)

	for i := range rows {
		if ctx.Err() != nil {
			break
		}
		g.Go(func() error {
			// The slot may have been granted after cancellation.
			if ctx.Err() != nil {
				return nil
			}
			out := e.processRow(ctx, rows[i], plan, filter, dryRun)
			results[i] = out
			processed[i] = true
			if e.opts.OnOutcome != nil {
				e.opts.OnOutcome(out)
			}
			return nil
		})
	}
	_ = g.Wait()

	outcomes := make([]RowOutcome, 0, len(rows))
	for i, ok := range processed {
		if ok {
			outcomes = append(outcomes, results[i])
		}
	}

	report := newBatchReport(len(rows), dryRun, outcomes)
	report.Cancelled = len(outcomes) < len(rows)
	return report
}

// processRow takes one row to its terminal status. Catalog calls run on a
// context detached from cancellation so an in-flight row always finishes.
func (e *Executor) processRow(ctx context.Context, row tabular.Row, plan *ColumnPlan, filter []string, dryRun bool) RowOutcome {
	callCtx := context.WithoutCancel(ctx)
	logger := logging.WithFields(ctx, "row", row.Index)

	out := RowOutcome{RowIndex: row.Index, MatchedAssetIDs: []string{}}

	target, err := e.resolver.Resolve(callCtx, row, plan, filter)
	out.IdentityValue = target.IdentityValue
	out.MatchedAssetIDs = target.MatchedAssetIDs
	if err != nil {
		return fail(logger, out, err)
	}

	switch {
	case target.IdentityValue == "":
		out.Status = StatusSkippedEmpty
		out.ErrorDetail = DetailEmptyIdentity
		return done(logger, out)
	case len(target.MatchedAssetIDs) == 0:
		out.Status = StatusSkippedNoMatch
		return done(logger, out)
	case len(target.MatchedAssetIDs) > 1:
		out.Status = StatusSkippedAmbiguous
		return done(logger, out)
	}

	cs, err := Build(row, plan, target.MatchedAssetIDs[0])
	if err != nil {
		return fail(logger, out, err)
	}
	if cs.IsEmpty() {
		out.Status = StatusSkippedEmpty
		out.ErrorDetail = DetailNoUpdates
		return done(logger, out)
	}
	out.ChangeSet = cs

	if dryRun {
		out.Status = StatusWouldApply
		return done(logger, out)
	}

	if err := e.apply(callCtx, cs); err != nil {
		return fail(logger, out, err)
	}
	out.Status = StatusApplied
	return done(logger, out)
}

// apply submits a change-set under the mutation timeout and classifies any
// failure that the mutator did not already classify.
func (e *Executor) apply(ctx context.Context, cs *ChangeSet) error {
	callCtx, cancel := context.WithTimeout(ctx, e.opts.MutateTimeout)
	defer cancel()

	err := e.mutator.ApplyChangeSet(callCtx, cs)
	if err == nil {
		return nil
	}

	var me *MutationError
	if errors.As(err, &me) {
		return err
	}
	kind := MutationTransient
	if errors.Is(err, context.DeadlineExceeded) {
		kind = MutationTimeout
	}
	return &MutationError{AssetID: cs.AssetID, Kind: kind, Err: err}
}

func fail(logger *slog.Logger, out RowOutcome, err error) RowOutcome {
	out.Status = StatusFailed
	out.ErrorDetail = err.Error()
	out.ErrorCode = MapError(err).Code
	logger.Warn("row failed", "identity", out.IdentityValue, "code", out.ErrorCode, "error", err)
	return out
}

func done(logger *slog.Logger, out RowOutcome) RowOutcome {
	logger.Debug("row processed", "identity", out.IdentityValue, "status", out.Status, "matches", len(out.MatchedAssetIDs))
	return out
}
