package gallery

import (
	"context"
	"errors"
	"math/rand/v2"
	"testing"

	"github.com/ChamsBouzaiene/jewelbot/internal/catalog"
)

var products = []catalog.Product{
	{ID: "s1", Name: "Solitaire A", Price: 800, Style: "Solitaire", Material: "Platinum", ImageURL: "http://img/s1"},
	{ID: "h1", Name: "Halo A", Price: 1500, Style: "Halo", Material: "Platinum", ImageURL: "http://img/h1"},
	{ID: "h2", Name: "Halo B", Price: 4500, Style: "Halo", Material: "Rose Gold", ImageURL: "http://img/h2"},
	{ID: "v1", Name: "Vintage A", Price: 2500, Style: "Vintage", Material: "Yellow Gold"},
	{ID: "b1", Name: "Bezel A", Price: 9000, Style: "Bezel", Material: "Platinum", ImageURL: "http://img/b1"},
	{ID: "e1", Name: "Edge", Price: 1000, Style: "Twist", Material: "Platinum", ImageURL: "http://img/e1"},
}

func newCatalog(t *testing.T) *catalog.MemoryCatalog {
	t.Helper()
	c, err := catalog.NewMemoryCatalog(products, rand.New(rand.NewPCG(7, 7)))
	if err != nil {
		t.Fatalf("NewMemoryCatalog() error = %v", err)
	}
	t.Cleanup(func() { c.Close() })
	return c
}

func TestSampleCategoricalRespectsLimitAndDedup(t *testing.T) {
	ctx := context.Background()
	s := NewSampler(newCatalog(t), rand.New(rand.NewPCG(1, 1)))

	options := []string{"Solitaire", "Halo", "Vintage", "Bezel", "Twist", "Pave"}
	for seed := 0; seed < 20; seed++ {
		items, err := s.Sample(ctx, catalog.AttrStyle, options, catalog.Filter{}, DefaultLimit)
		if err != nil {
			t.Fatalf("Sample() error = %v", err)
		}
		if len(items) != DefaultLimit {
			t.Fatalf("Sample() returned %d items, want %d", len(items), DefaultLimit)
		}
		seenProduct := map[string]bool{}
		seenValue := map[string]bool{}
		for _, it := range items {
			if seenProduct[it.ProductID] || seenValue[it.Value] {
				t.Fatalf("duplicate item %+v in %+v", it, items)
			}
			seenProduct[it.ProductID] = true
			seenValue[it.Value] = true
			if it.Attribute != catalog.AttrStyle {
				t.Errorf("item attribute = %q", it.Attribute)
			}
		}
	}
}

func TestSampleHonoursUpstreamFilter(t *testing.T) {
	ctx := context.Background()
	s := NewSampler(newCatalog(t), nil)

	upstream := catalog.NewFilter(catalog.Eq(catalog.AttrStyle, "Halo"))
	items, err := s.Sample(ctx, catalog.AttrMaterial, []string{"Platinum", "Rose Gold", "Yellow Gold"}, upstream, 5)
	if err != nil {
		t.Fatalf("Sample() error = %v", err)
	}
	// Yellow Gold has no halo, so only two items come back.
	if len(items) != 2 {
		t.Fatalf("Sample() returned %d items, want 2: %+v", len(items), items)
	}
	for _, it := range items {
		if it.ProductID != "h1" && it.ProductID != "h2" {
			t.Errorf("item %s is not a halo", it.ProductID)
		}
	}
}

func TestSamplePriceBucketsUseOwnBounds(t *testing.T) {
	ctx := context.Background()
	s := NewSampler(newCatalog(t), nil)

	items, err := s.Sample(ctx, catalog.AttrPrice, nil, catalog.Filter{}, 5)
	if err != nil {
		t.Fatalf("Sample() error = %v", err)
	}
	byLabel := map[string]Item{}
	for _, it := range items {
		byLabel[it.Value] = it
	}
	if it, ok := byLabel["Under $1k"]; !ok || it.ProductID != "s1" {
		t.Errorf("Under $1k = %+v, want s1 (the 1000 ring belongs to the next bucket)", it)
	}
	if it, ok := byLabel["$8k+"]; !ok || it.ProductID != "b1" {
		t.Errorf("$8k+ = %+v, want b1", it)
	}
	for _, it := range items {
		var bucket Bucket
		for _, b := range PriceBuckets {
			if b.Label == it.Value {
				bucket = b
			}
		}
		if !bucket.Range.Contains(it.Price) {
			t.Errorf("item %s at %v is outside bucket %s", it.ProductID, it.Price, it.Value)
		}
	}
	if len(items) != 5 {
		t.Errorf("Sample(price) returned %d items, want one per bucket", len(items))
	}
}

func TestSampleZeroLimit(t *testing.T) {
	items, err := NewSampler(newCatalog(t), nil).Sample(context.Background(), catalog.AttrStyle, []string{"Halo"}, catalog.Filter{}, 0)
	if err != nil || len(items) != 0 {
		t.Errorf("Sample(limit 0) = %v, %v", items, err)
	}
}

type failingOracle struct{ catalog.Oracle }

func (failingOracle) SampleOne(ctx context.Context, f catalog.Filter) (*catalog.Product, error) {
	return nil, errors.New("db down")
}

func TestSamplePropagatesErrors(t *testing.T) {
	_, err := NewSampler(failingOracle{}, nil).Sample(context.Background(), catalog.AttrStyle, []string{"Halo"}, catalog.Filter{}, 3)
	if err == nil {
		t.Fatal("expected error")
	}
}

func TestImagesSkipsMissing(t *testing.T) {
	got := Images([]Item{{ImageURL: "a"}, {}, {ImageURL: "b"}})
	if len(got) != 2 || got[0] != "a" || got[1] != "b" {
		t.Errorf("Images() = %v", got)
	}
}
