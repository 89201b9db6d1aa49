// Package gallery picks a few representative products to show a user who has
// not yet expressed a preference for an attribute.
package gallery

import (
	"context"
	"fmt"
	"math/rand/v2"
	"slices"
	"sync"

	"github.com/ChamsBouzaiene/jewelbot/internal/catalog"
)

// DefaultLimit is the gallery size used in replies.
const DefaultLimit = 3

// Item is one product shown for one attribute value.
type Item struct {
	Attribute string  `json:"attribute"`
	Value     string  `json:"value"`
	ProductID string  `json:"product_id"`
	Name      string  `json:"name"`
	Price     float64 `json:"price"`
	ImageURL  string  `json:"image_url,omitempty"`
}

// Bucket is a labelled price band.
type Bucket struct {
	Label string
	Range catalog.PriceRange
}

// PriceBuckets are the fixed bands sampled for price, in order.
var PriceBuckets = []Bucket{
	{Label: "Under $1k", Range: catalog.HalfOpen(0, 1000)},
	{Label: "$1k - $2k", Range: catalog.HalfOpen(1000, 2000)},
	{Label: "$2k - $4k", Range: catalog.HalfOpen(2000, 4000)},
	{Label: "$4k - $8k", Range: catalog.HalfOpen(4000, 8000)},
	{Label: "$8k+", Range: catalog.AtLeast(8000)},
}

// Sampler draws galleries from a catalog oracle.
type Sampler struct {
	oracle catalog.Oracle

	mu  sync.Mutex
	rng *rand.Rand
}

// NewSampler creates a sampler. A nil rng uses a random seed.
func NewSampler(oracle catalog.Oracle, rng *rand.Rand) *Sampler {
	if rng == nil {
		rng = rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64()))
	}
	return &Sampler{oracle: oracle, rng: rng}
}

type candidate struct {
	value string
	pred  catalog.Predicate
}

// Sample returns up to limit items for attribute, one per option, never
// repeating a product. Categorical options are visited in random order;
// price buckets in ascending order. Fewer items than limit is not an error.
func (s *Sampler) Sample(ctx context.Context, attribute string, options []string, upstream catalog.Filter, limit int) ([]Item, error) {
	if limit <= 0 {
		return nil, nil
	}

	var candidates []candidate
	if attribute == catalog.AttrPrice {
		for _, b := range PriceBuckets {
			candidates = append(candidates, candidate{value: b.Label, pred: catalog.Price(b.Range)})
		}
	} else {
		shuffled := slices.Clone(options)
		s.mu.Lock()
		s.rng.Shuffle(len(shuffled), func(i, j int) { shuffled[i], shuffled[j] = shuffled[j], shuffled[i] })
		s.mu.Unlock()
		for _, opt := range shuffled {
			candidates = append(candidates, candidate{value: opt, pred: catalog.Eq(attribute, opt)})
		}
	}

	items := make([]Item, 0, limit)
	chosen := make(map[string]bool, limit)
	for _, c := range candidates {
		if len(items) >= limit {
			break
		}
		p, err := s.oracle.SampleOne(ctx, upstream.With(c.pred))
		if err != nil {
			return nil, fmt.Errorf("failed to sample %s=%s: %w", attribute, c.value, err)
		}
		if p == nil || chosen[p.ID] {
			continue
		}
		chosen[p.ID] = true
		items = append(items, Item{
			Attribute: attribute,
			Value:     c.value,
			ProductID: p.ID,
			Name:      p.Name,
			Price:     p.Price,
			ImageURL:  p.ImageURL,
		})
	}
	return items, nil
}

// Images returns the image references of items that have one.
func Images(items []Item) []string {
	out := make([]string, 0, len(items))
	for _, it := range items {
		if it.ImageURL != "" {
			out = append(out, it.ImageURL)
		}
	}
	return out
}
