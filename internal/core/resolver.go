package core

import (
	"context"
	"errors"
	"sort"
	"strings"
	"time"

	"github.com/JonMunkholm/metascaler/internal/tabular"
)

// Searcher looks up assets by exact, case-sensitive name. It must be a pure
// read. An empty type filter means any asset type.
type Searcher interface {
	FindByExactName(ctx context.Context, name string, types []string) ([]string, error)
}

// Mutator submits a change-set to the catalog. Failures should be returned
// as *MutationError so rejections can be told apart from transient errors.
type Mutator interface {
	ApplyChangeSet(ctx context.Context, cs *ChangeSet) error
}

// Catalog is the remote service the pipeline reads from and writes to.
type Catalog interface {
	Searcher
	Mutator
}

// DefaultSearchTimeout bounds one lookup when no timeout is configured.
const DefaultSearchTimeout = 10 * time.Second

// ResolvedTarget is the outcome of resolving one row's identity value.
type ResolvedTarget struct {
	IdentityValue   string
	MatchedAssetIDs []string
	AssetTypeFilter []string
}

// Resolver maps a row's identity value to catalog asset IDs.
type Resolver struct {
	searcher Searcher
	timeout  time.Duration
}

// NewResolver creates a resolver whose lookups are bounded by timeout.
func NewResolver(s Searcher, timeout time.Duration) *Resolver {
	if timeout <= 0 {
		timeout = DefaultSearchTimeout
	}
	return &Resolver{searcher: s, timeout: timeout}
}

// Resolve looks up the row's identity value. An empty or whitespace-only
// value yields an empty target without contacting the catalog. Matched IDs
// are de-duplicated and sorted.
func (r *Resolver) Resolve(ctx context.Context, row tabular.Row, plan *ColumnPlan, filter []string) (ResolvedTarget, error) {
	name := strings.TrimSpace(row.Value(plan.Identity))
	target := ResolvedTarget{
		IdentityValue:   name,
		MatchedAssetIDs: []string{},
		AssetTypeFilter: filter,
	}
	if name == "" {
		return target, nil
	}

	callCtx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	ids, err := r.searcher.FindByExactName(callCtx, name, filter)
	if err != nil {
		return target, &SearchError{
			Name:    name,
			Timeout: errors.Is(err, context.DeadlineExceeded),
			Err:     err,
		}
	}

	target.MatchedAssetIDs = uniqueSorted(ids)
	return target, nil
}

// NormalizeTypeFilter trims, de-duplicates and sorts an asset-type filter.
func NormalizeTypeFilter(types []string) []string {
	trimmed := make([]string, 0, len(types))
	for _, t := range types {
		if t = strings.TrimSpace(t); t != "" {
			trimmed = append(trimmed, t)
		}
	}
	return uniqueSorted(trimmed)
}

func uniqueSorted(in []string) []string {
	out := make([]string, 0, len(in))
	seen := make(map[string]bool, len(in))
	for _, s := range in {
		if seen[s] {
			continue
		}
		seen[s] = true
		out = append(out, s)
	}
	sort.Strings(out)
	return out
}
