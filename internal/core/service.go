package core

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/JonMunkholm/metascaler/internal/config"
	"github.com/JonMunkholm/metascaler/internal/logging"
	"github.com/JonMunkholm/metascaler/internal/tabular"
)

// saveTimeout bounds persisting a finished report.
const saveTimeout = 10 * time.Second

// DefaultRunTimeout bounds a background batch when no timeout is configured.
const DefaultRunTimeout = 30 * time.Minute

// ReportStore persists finished batch reports.
type ReportStore interface {
	Save(ctx context.Context, report *BatchReport) error
	Get(ctx context.Context, runID string) (*BatchReport, error)
	List(ctx context.Context, limit int) ([]RunSummary, error)
}

// RunSummary is a report without its outcomes, for history listings.
type RunSummary struct {
	RunID         string    `json:"run_id"`
	FileName      string    `json:"file_name"`
	AssetTypes    []string  `json:"asset_types"`
	DryRun        bool      `json:"dry_run"`
	TotalRows     int       `json:"total_rows"`
	ProcessedRows int       `json:"processed_rows"`
	Cancelled     bool      `json:"cancelled"`
	Counts        Counts    `json:"counts"`
	StartedAt     time.Time `json:"started_at"`
	FinishedAt    time.Time `json:"finished_at"`
}

// Summary drops the outcomes from a report.
func (r *BatchReport) Summary() RunSummary {
	return RunSummary{
		RunID:         r.RunID,
		FileName:      r.FileName,
		AssetTypes:    r.AssetTypes,
		DryRun:        r.DryRun,
		TotalRows:     r.TotalRows,
		ProcessedRows: r.ProcessedRows,
		Cancelled:     r.Cancelled,
		Counts:        r.Counts,
		StartedAt:     r.StartedAt,
		FinishedAt:    r.FinishedAt,
	}
}

// RunRequest is one batch as supplied by a front end.
type RunRequest struct {
	FileName   string
	Data       []byte
	Format     string // optional hint; the file extension is used when empty
	Sheet      string // optional worksheet name for spreadsheets
	AssetTypes []string
	DryRun     bool
}

// RunPhase indicates the current stage of a batch.
type RunPhase string

const (
	PhaseStarting  RunPhase = "starting"
	PhaseRunning   RunPhase = "running"
	PhaseComplete  RunPhase = "complete"
	PhaseCancelled RunPhase = "cancelled"
	PhaseFailed    RunPhase = "failed"
)

// RunProgress is a snapshot of a batch in flight.
type RunProgress struct {
	RunID         string   `json:"run_id"`
	FileName      string   `json:"file_name"`
	Phase         RunPhase `json:"phase"`
	DryRun        bool     `json:"dry_run"`
	TotalRows     int      `json:"total_rows"`
	ProcessedRows int      `json:"processed_rows"`
	Counts        Counts   `json:"counts"`
	Error         string   `json:"error,omitempty"`
}

// Percent returns the progress as a percentage (0-100).
func (p RunProgress) Percent() int {
	if p.TotalRows <= 0 {
		if p.Finished() {
			return 100
		}
		return 0
	}
	return p.ProcessedRows * 100 / p.TotalRows
}

// Finished reports whether the batch has reached a terminal phase.
func (p RunProgress) Finished() bool {
	return p.Phase == PhaseComplete || p.Phase == PhaseCancelled || p.Phase == PhaseFailed
}

// Service runs batches and tracks the ones in flight.
type Service struct {
	catalog Catalog
	reports ReportStore
	limiter *RunLimiter
	cfg     *config.Config

	mu   sync.RWMutex
	runs map[string]*activeRun
}

type activeRun struct {
	ID       string
	FileName string
	Cancel   context.CancelFunc
	Done     chan struct{}

	mu        sync.Mutex
	progress  RunProgress
	report    *BatchReport
	listeners []chan RunProgress
}

// preparedRun is a request that passed every batch-level check.
type preparedRun struct {
	req    RunRequest
	table  *tabular.Table
	plan   *ColumnPlan
	filter []string
}

// NewService creates a Service over a catalog and a report store.
func NewService(cat Catalog, reports ReportStore, cfg *config.Config) *Service {
	return &Service{
		catalog: cat,
		reports: reports,
		limiter: NewRunLimiter(cfg.Run.MaxConcurrent, cfg.Run.MaxWaitTime),
		cfg:     cfg,
		runs:    make(map[string]*activeRun),
	}
}

func (s *Service) runTimeout() time.Duration {
	if s.cfg.Run.Timeout > 0 {
		return s.cfg.Run.Timeout
	}
	return DefaultRunTimeout
}

// AllowedAssetTypes returns the configured asset types.
func (s *Service) AllowedAssetTypes() []string {
	return s.cfg.Catalog.AssetTypes
}

// Prepare parses and classifies a request without running it. Fatal file
// and column errors surface here.
func (s *Service) Prepare(req RunRequest) (*ColumnPlan, *tabular.Table, error) {
	p, err := s.prepare(req)
	if err != nil {
		return nil, nil, err
	}
	return p.plan, p.table, nil
}

func (s *Service) prepare(req RunRequest) (*preparedRun, error) {
	if len(req.Data) == 0 {
		return nil, ErrNoFile
	}
	if limit := s.cfg.Run.MaxFileSize; limit > 0 && int64(len(req.Data)) > limit {
		return nil, fmt.Errorf("file too large: %d bytes exceeds limit of %d", len(req.Data), limit)
	}

	filter, err := s.checkAssetTypes(req.AssetTypes)
	if err != nil {
		return nil, err
	}

	format, opts, err := tabular.Detect(req.Format, req.FileName)
	if err != nil {
		return nil, fmt.Errorf("detect format: %w", err)
	}
	opts.Sheet = req.Sheet

	table, err := tabular.ParseWithOptions(req.Data, format, opts)
	if err != nil {
		return nil, fmt.Errorf("parse %s: %w", req.FileName, err)
	}

	plan, err := Classify(table.Header)
	if err != nil {
		return nil, fmt.Errorf("classify %s: %w", req.FileName, err)
	}

	return &preparedRun{req: req, table: table, plan: plan, filter: filter}, nil
}

// checkAssetTypes validates a filter against the configured asset types,
// case-insensitively, and returns it in the configured spelling.
func (s *Service) checkAssetTypes(types []string) ([]string, error) {
	allowed := s.cfg.Catalog.AssetTypes
	var (
		out     []string
		unknown []string
	)
	for _, t := range NormalizeTypeFilter(types) {
		match := ""
		for _, a := range allowed {
			if strings.EqualFold(t, a) {
				match = a
				break
			}
		}
		if match == "" {
			unknown = append(unknown, t)
			continue
		}
		out = append(out, match)
	}
	if len(unknown) > 0 {
		return nil, &UnknownAssetTypeError{Types: unknown, Allowed: allowed}
	}
	return NormalizeTypeFilter(out), nil
}

func (s *Service) executor(onOutcome func(RowOutcome)) *Executor {
	return NewExecutor(s.catalog, s.catalog, Options{
		Workers:       s.cfg.Run.Workers,
		SearchTimeout: s.cfg.Catalog.SearchTimeout,
		MutateTimeout: s.cfg.Catalog.MutateTimeout,
		OnOutcome:     onOutcome,
	})
}

// Run executes a batch synchronously and stores its report.
func (s *Service) Run(ctx context.Context, req RunRequest) (*BatchReport, error) {
	p, err := s.prepare(req)
	if err != nil {
		return nil, err
	}

	runID := uuid.New().String()
	ctx = logging.WithRunID(ctx, runID)
	s.logPlan(ctx, p)

	report := s.execute(ctx, runID, p, nil)
	s.save(ctx, report)
	return report, nil
}

// StartRun validates a batch, waits for a run slot, and executes it in the
// background. It returns the run ID immediately. Use SubscribeProgress to
// follow it and GetResult to wait for the report.
func (s *Service) StartRun(ctx context.Context, req RunRequest) (string, error) {
	p, err := s.prepare(req)
	if err != nil {
		return "", err
	}

	if err := s.limiter.Acquire(ctx); err != nil {
		return "", err
	}

	runID := uuid.New().String()
	runCtx, cancel := context.WithTimeout(context.Background(), s.runTimeout())
	runCtx = logging.WithRunID(runCtx, runID)

	run := &activeRun{
		ID:       runID,
		FileName: req.FileName,
		Cancel:   cancel,
		Done:     make(chan struct{}),
		progress: RunProgress{
			RunID:     runID,
			FileName:  req.FileName,
			Phase:     PhaseStarting,
			DryRun:    req.DryRun,
			TotalRows: len(p.table.Rows),
		},
	}

	s.mu.Lock()
	s.runs[runID] = run
	s.mu.Unlock()

	s.logPlan(runCtx, p)

	go func() {
		defer s.limiter.Release()
		defer cancel()
		defer func() {
			if r := recover(); r != nil {
				slog.Error("panic in run", "run_id", runID, "panic", r)
				run.finish(nil, PhaseFailed, fmt.Sprintf("internal error: %v", r))
			}
			close(run.Done)
			s.cleanup(runID, s.cfg.Run.Retention)
		}()

		run.update(func(p *RunProgress) { p.Phase = PhaseRunning })

		report := s.execute(runCtx, runID, p, func(o RowOutcome) {
			run.update(func(p *RunProgress) {
				p.ProcessedRows++
				p.Counts.Add(o.Status)
			})
		})
		s.save(runCtx, report)

		phase := PhaseComplete
		if report.Cancelled {
			phase = PhaseCancelled
		}
		run.finish(report, phase, "")
	}()

	return runID, nil
}

// execute runs a prepared batch and fills the report's run metadata.
func (s *Service) execute(ctx context.Context, runID string, p *preparedRun, onOutcome func(RowOutcome)) *BatchReport {
	logger := logging.FromContext(ctx)
	logger.Info("run started",
		"file", p.req.FileName,
		"rows", len(p.table.Rows),
		"dry_run", p.req.DryRun,
		"asset_types", p.filter,
	)

	started := time.Now().UTC()
	report := s.executor(onOutcome).Run(ctx, p.table.Rows, p.plan, p.filter, p.req.DryRun)
	report.RunID = runID
	report.FileName = p.req.FileName
	report.AssetTypes = p.filter
	if report.AssetTypes == nil {
		report.AssetTypes = []string{}
	}
	report.StartedAt = started
	report.FinishedAt = time.Now().UTC()

	logger.Info("run finished",
		"processed", report.ProcessedRows,
		"total", report.TotalRows,
		"cancelled", report.Cancelled,
		"applied", report.Counts.Applied,
		"would_apply", report.Counts.WouldApply,
		"skipped_no_match", report.Counts.SkippedNoMatch,
		"skipped_ambiguous", report.Counts.SkippedAmbiguous,
		"skipped_empty", report.Counts.SkippedEmpty,
		"failed", report.Counts.Failed,
		"duration", report.Duration(),
	)
	return report
}

func (s *Service) logPlan(ctx context.Context, p *preparedRun) {
	logger := logging.FromContext(ctx)
	for _, ic := range p.plan.Ignored {
		logger.Info("column ignored", "column", ic.Column, "reason", ic.Reason)
	}
	if !p.plan.HasUpdates() {
		logger.Warn("file has no updatable columns", "file", p.req.FileName)
	}
}

// save persists a report. Failures are logged; the report is still returned
// to the caller.
func (s *Service) save(ctx context.Context, report *BatchReport) {
	if s.reports == nil {
		return
	}
	saveCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), saveTimeout)
	defer cancel()
	if err := s.reports.Save(saveCtx, report); err != nil {
		logging.FromContext(ctx).Error("failed to save report", "error", err)
	}
}

func (s *Service) lookup(runID string) (*activeRun, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	run, ok := s.runs[runID]
	return run, ok
}

// SubscribeProgress returns a channel that receives progress updates.
// The channel is closed when the run finishes.
func (s *Service) SubscribeProgress(runID string) (<-chan RunProgress, error) {
	run, ok := s.lookup(runID)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrRunNotFound, runID)
	}

	ch := make(chan RunProgress, 10)

	run.mu.Lock()
	defer run.mu.Unlock()

	// Send current progress immediately
	ch <- run.progress
	if run.progress.Finished() {
		close(ch)
		return ch, nil
	}
	run.listeners = append(run.listeners, ch)
	return ch, nil
}

// CancelRun stops a batch from starting new rows. Rows already in flight
// finish, and the report covers only the processed rows.
func (s *Service) CancelRun(runID string) error {
	run, ok := s.lookup(runID)
	if !ok {
		return fmt.Errorf("%w: %s", ErrRunNotFound, runID)
	}
	run.Cancel()
	return nil
}

// GetProgress returns the current progress without blocking.
func (s *Service) GetProgress(runID string) (RunProgress, error) {
	run, ok := s.lookup(runID)
	if !ok {
		return RunProgress{}, fmt.Errorf("%w: %s", ErrRunNotFound, runID)
	}
	run.mu.Lock()
	defer run.mu.Unlock()
	return run.progress, nil
}

// GetResult blocks until the run finishes and returns its report.
func (s *Service) GetResult(ctx context.Context, runID string) (*BatchReport, error) {
	run, ok := s.lookup(runID)
	if !ok {
		return s.GetReport(ctx, runID)
	}

	select {
	case <-run.Done:
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	run.mu.Lock()
	defer run.mu.Unlock()
	if run.report == nil {
		return nil, fmt.Errorf("run %s failed: %s", runID, run.progress.Error)
	}
	return run.report, nil
}

// GetReport returns a finished report from memory or the report store
// without blocking.
func (s *Service) GetReport(ctx context.Context, runID string) (*BatchReport, error) {
	if run, ok := s.lookup(runID); ok {
		run.mu.Lock()
		report := run.report
		run.mu.Unlock()
		if report != nil {
			return report, nil
		}
	}
	if s.reports == nil {
		return nil, fmt.Errorf("%w: %s", ErrRunNotFound, runID)
	}
	report, err := s.reports.Get(ctx, runID)
	if err != nil {
		return nil, fmt.Errorf("get report %s: %w", runID, err)
	}
	return report, nil
}

// History lists stored runs, newest first.
func (s *Service) History(ctx context.Context, limit int) ([]RunSummary, error) {
	if s.reports == nil {
		return []RunSummary{}, nil
	}
	return s.reports.List(ctx, limit)
}

// LimiterStatus returns run slot usage.
func (s *Service) LimiterStatus() RunLimiterStatus {
	return s.limiter.Status()
}

// WaitForRuns blocks until every background run finishes or ctx is done.
func (s *Service) WaitForRuns(ctx context.Context) error {
	return s.limiter.WaitForDrain(ctx)
}

// cleanup removes the run from tracking after a delay.
func (s *Service) cleanup(runID string, delay time.Duration) {
	time.AfterFunc(delay, func() {
		s.mu.Lock()
		delete(s.runs, runID)
		s.mu.Unlock()
	})
}

// update mutates progress and notifies listeners.
func (run *activeRun) update(fn func(*RunProgress)) {
	run.mu.Lock()
	defer run.mu.Unlock()

	fn(&run.progress)
	for _, ch := range run.listeners {
		select {
		case ch <- run.progress:
		default:
			// Listener is slow, skip this update
		}
	}
}

// finish records the terminal state and closes all listener channels.
func (run *activeRun) finish(report *BatchReport, phase RunPhase, errMsg string) {
	run.mu.Lock()
	defer run.mu.Unlock()

	if run.progress.Finished() {
		return
	}
	run.report = report
	run.progress.Phase = phase
	run.progress.Error = errMsg
	if report != nil {
		run.progress.ProcessedRows = report.ProcessedRows
		run.progress.Counts = report.Counts
	}

	for _, ch := range run.listeners {
		select {
		case ch <- run.progress:
		default:
		}
		close(ch)
	}
	run.listeners = nil
}

// IsNotFound reports whether err means an unknown run.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrRunNotFound)
}
