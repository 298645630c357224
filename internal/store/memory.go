// Package store persists finished batch reports.
package store

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/JonMunkholm/metascaler/internal/core"
)

var errNoRunID = errors.New("report has no run id")

// Memory keeps reports in process memory. Saving a report with an existing
// run ID replaces it.
type Memory struct {
	mu      sync.RWMutex
	reports map[string]*core.BatchReport
	order   []string
}

var _ core.ReportStore = (*Memory)(nil)

// NewMemory creates an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{reports: make(map[string]*core.BatchReport)}
}

func (m *Memory) Save(ctx context.Context, report *core.BatchReport) error {
	if report == nil || report.RunID == "" {
		return errNoRunID
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.reports[report.RunID]; !ok {
		m.order = append(m.order, report.RunID)
	}
	m.reports[report.RunID] = report
	return nil
}

func (m *Memory) Get(ctx context.Context, runID string) (*core.BatchReport, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	report, ok := m.reports[runID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", core.ErrRunNotFound, runID)
	}
	return report, nil
}

// List returns run summaries, most recently saved first. A limit of zero or
// less returns every run.
func (m *Memory) List(ctx context.Context, limit int) ([]core.RunSummary, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]core.RunSummary, 0, len(m.order))
	for i := len(m.order) - 1; i >= 0; i-- {
		if limit > 0 && len(out) == limit {
			break
		}
		out = append(out, m.reports[m.order[i]].Summary())
	}
	return out, nil
}

// Len returns the number of stored reports.
func (m *Memory) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.reports)
}
