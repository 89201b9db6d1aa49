package catalog

import (
	"context"
	"fmt"
	"math/rand/v2"
	"sort"
	"sync"
)

// sampleWindow is how many matching products a sample is drawn from.
const sampleWindow = 5

// MemoryCatalog is an in-process Catalog over a fixed product list.
// It backs offline mode demos and tests.
type MemoryCatalog struct {
	products []Product
	byID     map[string]Product
	index    *productIndex

	mu  sync.Mutex
	rng *rand.Rand
}

// NewMemoryCatalog builds a catalog over products. A nil rng uses a random seed.
func NewMemoryCatalog(products []Product, rng *rand.Rand) (*MemoryCatalog, error) {
	if rng == nil {
		rng = rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64()))
	}
	index, err := newProductIndex()
	if err != nil {
		return nil, err
	}
	if err := index.Replace(products); err != nil {
		return nil, err
	}

	byID := make(map[string]Product, len(products))
	for _, p := range products {
		if _, dup := byID[p.ID]; dup {
			return nil, fmt.Errorf("duplicate product id %q", p.ID)
		}
		byID[p.ID] = p
	}

	return &MemoryCatalog{
		products: append([]Product(nil), products...),
		byID:     byID,
		index:    index,
		rng:      rng,
	}, nil
}

func (c *MemoryCatalog) match(f Filter) []Product {
	var out []Product
	for _, p := range c.products {
		if f.Matches(p) {
			out = append(out, p)
		}
	}
	return out
}

// Exists implements Oracle.
func (c *MemoryCatalog) Exists(ctx context.Context, f Filter) (Availability, error) {
	n, err := c.Count(ctx, f)
	if err != nil {
		return Availability{}, err
	}
	return Availability{Exists: n > 0, Count: n}, nil
}

// Count implements Oracle.
func (c *MemoryCatalog) Count(ctx context.Context, f Filter) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	return len(c.match(f)), nil
}

// SampleOne implements Oracle.
func (c *MemoryCatalog) SampleOne(ctx context.Context, f Filter) (*Product, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	matches := c.match(f)
	if len(matches) == 0 {
		return nil, nil
	}
	if len(matches) > sampleWindow {
		matches = matches[:sampleWindow]
	}

	c.mu.Lock()
	pick := matches[c.rng.IntN(len(matches))]
	c.mu.Unlock()
	return &pick, nil
}

// Options implements Catalog.
func (c *MemoryCatalog) Options(ctx context.Context, attribute string) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	set := make(map[string]bool)
	for _, p := range c.products {
		if v := p.Attr(attribute); v != "" && v != UnknownValue {
			set[v] = true
		}
	}
	out := make([]string, 0, len(set))
	for v := range set {
		out = append(out, v)
	}
	sort.Strings(out)
	return out, nil
}

// Search implements Catalog.
func (c *MemoryCatalog) Search(ctx context.Context, f Filter, query string, limit int) ([]Product, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	matches := c.match(f)
	ids := make([]string, len(matches))
	for i, p := range matches {
		ids[i] = p.ID
	}

	ranked, err := c.index.Rank(query, ids, limit)
	if err != nil {
		return nil, err
	}
	out := make([]Product, 0, len(ranked))
	for _, id := range ranked {
		out = append(out, c.byID[id])
	}
	return out, nil
}

// Close releases the search index.
func (c *MemoryCatalog) Close() error {
	return c.index.Close()
}
