// Package diagnose explains an empty result by measuring how many products
// come back when each constraint is dropped in turn.
package diagnose

import (
	"context"
	"sort"
	"sync"

	"github.com/ChamsBouzaiene/jewelbot/internal/catalog"
	"github.com/ChamsBouzaiene/jewelbot/internal/engine"
	"golang.org/x/sync/errgroup"
)

// AllKey reports the catalog size when the filter is empty.
const AllKey = "*"

// Report maps a relaxed key to the match count with that key dropped.
// Keys whose relaxation still yields nothing are omitted.
type Report map[string]int

// Suggestion is one entry of a report.
type Suggestion struct {
	Key   string
	Count int
}

// Suggestions returns the report ordered by descending count, then key.
func (r Report) Suggestions() []Suggestion {
	out := make([]Suggestion, 0, len(r))
	for k, n := range r {
		out = append(out, Suggestion{Key: k, Count: n})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Count != out[j].Count {
			return out[i].Count > out[j].Count
		}
		return out[i].Key < out[j].Key
	})
	return out
}

// Relaxer computes diagnostic reports.
type Relaxer struct {
	oracle catalog.Oracle
	limit  int
}

// NewRelaxer creates a relaxer that runs at most limit counts at once.
func NewRelaxer(oracle catalog.Oracle, limit int) *Relaxer {
	if limit <= 0 {
		limit = 4
	}
	return &Relaxer{oracle: oracle, limit: limit}
}

// Diagnose reports, for each key of an unsatisfiable filter, how many products
// match once that key is dropped. It is an invariant violation to call it with
// a filter that already matches something.
func (r *Relaxer) Diagnose(ctx context.Context, f catalog.Filter) (Report, error) {
	total, err := r.oracle.Count(ctx, f)
	if err != nil {
		return nil, engine.External("catalog.count", err)
	}

	if f.IsEmpty() {
		report := Report{}
		if total > 0 {
			report[AllKey] = total
		}
		return report, nil
	}
	if total != 0 {
		return nil, engine.Violation("diagnose", "filter %s matches %d products; diagnostics need an empty result", f, total)
	}

	var mu sync.Mutex
	report := Report{}
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(r.limit)
	for _, key := range f.Keys() {
		g.Go(func() error {
			n, err := r.oracle.Count(gctx, f.Without(key))
			if err != nil {
				return err
			}
			if n > 0 {
				mu.Lock()
				report[key] = n
				mu.Unlock()
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, engine.External("catalog.count", err)
	}
	return report, nil
}
