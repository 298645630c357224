package core

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/JonMunkholm/metascaler/internal/config"
	"github.com/JonMunkholm/metascaler/internal/tabular"
)

type fakeAsset struct {
	ID   string
	Type string
}

// fakeCatalog is an in-memory Catalog that records every call.
type fakeCatalog struct {
	mu        sync.Mutex
	assets    map[string][]fakeAsset
	searchErr map[string]error
	mutateErr map[string]error
	delay     time.Duration
	delays    map[string]time.Duration
	searches  []string
	applied   []*ChangeSet
	inFlight  int
	maxFlight int
}

func newFakeCatalog() *fakeCatalog {
	return &fakeCatalog{
		assets:    make(map[string][]fakeAsset),
		searchErr: make(map[string]error),
		mutateErr: make(map[string]error),
		delays:    make(map[string]time.Duration),
	}
}

func (f *fakeCatalog) add(name, id, assetType string) *fakeCatalog {
	f.assets[name] = append(f.assets[name], fakeAsset{ID: id, Type: assetType})
	return f
}

func (f *fakeCatalog) FindByExactName(ctx context.Context, name string, types []string) ([]string, error) {
	f.mu.Lock()
	f.searches = append(f.searches, name)
	f.inFlight++
	if f.inFlight > f.maxFlight {
		f.maxFlight = f.inFlight
	}
	err := f.searchErr[name]
	assets := f.assets[name]
	delay := f.delay
	if d, ok := f.delays[name]; ok {
		delay = d
	}
	f.mu.Unlock()

	defer func() {
		f.mu.Lock()
		f.inFlight--
		f.mu.Unlock()
	}()

	if delay > 0 {
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if err != nil {
		return nil, err
	}

	var ids []string
	for _, a := range assets {
		if len(types) == 0 || contains(types, a.Type) {
			ids = append(ids, a.ID)
		}
	}
	return ids, nil
}

func (f *fakeCatalog) ApplyChangeSet(ctx context.Context, cs *ChangeSet) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err, ok := f.mutateErr[cs.AssetID]; ok {
		return err
	}
	f.applied = append(f.applied, cs)
	return nil
}

func (f *fakeCatalog) searchCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.searches)
}

func (f *fakeCatalog) appliedIDs() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	ids := make([]string, len(f.applied))
	for i, cs := range f.applied {
		ids[i] = cs.AssetID
	}
	sort.Strings(ids)
	return ids
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}

// fakeReports is an in-memory ReportStore.
type fakeReports struct {
	mu      sync.Mutex
	reports map[string]*BatchReport
	order   []string
}

func newFakeReports() *fakeReports {
	return &fakeReports{reports: make(map[string]*BatchReport)}
}

func (f *fakeReports) Save(ctx context.Context, report *BatchReport) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.reports[report.RunID] = report
	f.order = append(f.order, report.RunID)
	return nil
}

func (f *fakeReports) Get(ctx context.Context, runID string) (*BatchReport, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	r, ok := f.reports[runID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrRunNotFound, runID)
	}
	return r, nil
}

func (f *fakeReports) List(ctx context.Context, limit int) ([]RunSummary, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]RunSummary, 0, len(f.order))
	for i := len(f.order) - 1; i >= 0; i-- {
		if limit > 0 && len(out) == limit {
			break
		}
		out = append(out, f.reports[f.order[i]].Summary())
	}
	return out, nil
}

// testConfig returns a config suitable for service tests.
func testConfig() *config.Config {
	cfg := &config.Config{}
	cfg.Catalog.AssetTypes = []string{"Column", "Table", "View"}
	cfg.Catalog.SearchTimeout = time.Second
	cfg.Catalog.MutateTimeout = time.Second
	cfg.Run.MaxFileSize = 1 << 20
	cfg.Run.MaxConcurrent = 2
	cfg.Run.MaxWaitTime = 100 * time.Millisecond
	cfg.Run.Workers = 1
	cfg.Run.Timeout = time.Minute
	cfg.Run.Retention = time.Minute
	return cfg
}

// tableRows builds rows from a header and records, numbering them from 1.
func tableRows(header []string, records ...[]string) []tabular.Row {
	rows := make([]tabular.Row, len(records))
	for i, rec := range records {
		rows[i] = makeRow(i+1, header, rec...)
	}
	return rows
}
