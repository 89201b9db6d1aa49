package catalog

import (
	"context"
	"math/rand/v2"
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"
)

var testProducts = []Product{
	{ID: "p1", Name: "Classic Solitaire Ring", Price: 900, Style: "Solitaire", Material: "Platinum", Gemstone: "Diamond", ImageURL: "http://img/p1.jpg"},
	{ID: "p2", Name: "Halo Sapphire Ring", Price: 1800, Style: "Halo", Material: "White Gold", Gemstone: "Sapphire", ImageURL: "http://img/p2.jpg"},
	{ID: "p3", Name: "Vintage Filigree Band", Price: 3200, Style: "Vintage", Material: "Yellow Gold", Gemstone: "Unknown", ImageURL: "http://img/p3.jpg"},
	{ID: "p4", Name: "Halo Diamond Ring", Price: 6500, Style: "Halo", Material: "Platinum", Gemstone: "Diamond", ImageURL: "http://img/p4.jpg"},
	{ID: "p5", Name: "Rose Twist Ring", Price: 1200, Style: "Twist", Material: "Rose Gold", Gemstone: "Morganite", ImageURL: "http://img/p5.jpg"},
	{ID: "p6", Name: "Mystery Ring", Price: 12000, Style: "Unknown", Material: "Platinum", Gemstone: "Emerald"},
}

// catalogsUnderTest opens every Catalog implementation over the same fixture.
func catalogsUnderTest(t *testing.T) map[string]Catalog {
	t.Helper()
	ctx := context.Background()

	mem, err := NewMemoryCatalog(testProducts, rand.New(rand.NewPCG(1, 2)))
	if err != nil {
		t.Fatalf("NewMemoryCatalog() error = %v", err)
	}
	t.Cleanup(func() { mem.Close() })

	store, err := Open(ctx, filepath.Join(t.TempDir(), "catalog.db"))
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	t.Cleanup(func() { store.Close() })
	if err := store.Upsert(ctx, testProducts); err != nil {
		t.Fatalf("Upsert() error = %v", err)
	}

	return map[string]Catalog{"memory": mem, "sqlite": store}
}

func TestCatalogCountAndExists(t *testing.T) {
	ctx := context.Background()
	tests := []struct {
		name   string
		filter Filter
		want   int
	}{
		{name: "all", filter: Filter{}, want: 6},
		{name: "style", filter: NewFilter(Eq(AttrStyle, "Halo")), want: 2},
		{name: "membership", filter: NewFilter(In(AttrMaterial, "Platinum", "Rose Gold")), want: 4},
		{name: "style and price", filter: NewFilter(Eq(AttrStyle, "Halo"), Price(Between(0, 2000))), want: 1},
		{name: "open range", filter: NewFilter(Price(AtLeast(5000))), want: 2},
		{name: "none", filter: NewFilter(Eq(AttrStyle, "Bezel")), want: 0},
	}

	for name, c := range catalogsUnderTest(t) {
		for _, tt := range tests {
			t.Run(name+"/"+tt.name, func(t *testing.T) {
				got, err := c.Count(ctx, tt.filter)
				if err != nil {
					t.Fatalf("Count() error = %v", err)
				}
				if got != tt.want {
					t.Errorf("Count(%s) = %d, want %d", tt.filter, got, tt.want)
				}
				avail, err := c.Exists(ctx, tt.filter)
				if err != nil {
					t.Fatalf("Exists() error = %v", err)
				}
				if avail.Exists != (tt.want > 0) || avail.Count != tt.want {
					t.Errorf("Exists(%s) = %+v, want count %d", tt.filter, avail, tt.want)
				}
			})
		}
	}
}

func TestCatalogOptionsExcludeUnknown(t *testing.T) {
	ctx := context.Background()
	for name, c := range catalogsUnderTest(t) {
		t.Run(name, func(t *testing.T) {
			got, err := c.Options(ctx, AttrStyle)
			if err != nil {
				t.Fatalf("Options() error = %v", err)
			}
			want := []string{"Halo", "Solitaire", "Twist", "Vintage"}
			if diff := cmp.Diff(want, got); diff != "" {
				t.Errorf("Options(style) mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestCatalogSampleOne(t *testing.T) {
	ctx := context.Background()
	for name, c := range catalogsUnderTest(t) {
		t.Run(name, func(t *testing.T) {
			f := NewFilter(Eq(AttrMaterial, "Platinum"))
			for i := 0; i < 10; i++ {
				p, err := c.SampleOne(ctx, f)
				if err != nil {
					t.Fatalf("SampleOne() error = %v", err)
				}
				if p == nil || !f.Matches(*p) {
					t.Fatalf("SampleOne() = %+v, want a platinum product", p)
				}
			}

			p, err := c.SampleOne(ctx, NewFilter(Eq(AttrStyle, "Bezel")))
			if err != nil {
				t.Fatalf("SampleOne() error = %v", err)
			}
			if p != nil {
				t.Errorf("SampleOne(no match) = %+v, want nil", p)
			}
		})
	}
}

func TestCatalogSearch(t *testing.T) {
	ctx := context.Background()
	for name, c := range catalogsUnderTest(t) {
		t.Run(name, func(t *testing.T) {
			got, err := c.Search(ctx, NewFilter(Eq(AttrStyle, "Halo")), "sapphire", 5)
			if err != nil {
				t.Fatalf("Search() error = %v", err)
			}
			if len(got) != 2 {
				t.Fatalf("Search() returned %d products, want 2", len(got))
			}
			if got[0].ID != "p2" {
				t.Errorf("top result = %s, want p2 (sapphire)", got[0].ID)
			}

			limited, err := c.Search(ctx, Filter{}, "", 3)
			if err != nil {
				t.Fatalf("Search() error = %v", err)
			}
			if len(limited) != 3 {
				t.Errorf("Search(limit 3) returned %d products", len(limited))
			}
			seen := map[string]bool{}
			for _, p := range limited {
				if seen[p.ID] {
					t.Errorf("duplicate product %s in results", p.ID)
				}
				seen[p.ID] = true
			}
		})
	}
}

func TestNewMemoryCatalogRejectsDuplicates(t *testing.T) {
	_, err := NewMemoryCatalog([]Product{{ID: "a"}, {ID: "a"}}, nil)
	if err == nil {
		t.Fatal("expected duplicate id error")
	}
}

func TestStoreUpsertUpdatesExisting(t *testing.T) {
	ctx := context.Background()
	store, err := Open(ctx, filepath.Join(t.TempDir(), "nested", "catalog.db"))
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	defer store.Close()

	if err := store.Upsert(ctx, []Product{{ID: "x", Name: "Ring", Price: 100}}); err != nil {
		t.Fatalf("Upsert() error = %v", err)
	}
	if err := store.Upsert(ctx, []Product{{ID: "x", Name: "Ring", Price: 250, Style: "Bezel"}}); err != nil {
		t.Fatalf("Upsert() error = %v", err)
	}

	n, err := store.Count(ctx, NewFilter(Eq(AttrStyle, "Bezel"), Price(AtLeast(200))))
	if err != nil {
		t.Fatalf("Count() error = %v", err)
	}
	if n != 1 {
		t.Errorf("Count() = %d, want 1 after update", n)
	}
	opts, err := store.Options(ctx, AttrMaterial)
	if err != nil {
		t.Fatalf("Options() error = %v", err)
	}
	if len(opts) != 0 {
		t.Errorf("Options(material) = %v, want none (blank stored as Unknown)", opts)
	}
}

func TestStoreRejectsUnknownAttribute(t *testing.T) {
	_, _, err := buildWhere(NewFilter(Eq("colour; DROP TABLE products", "x")))
	if err == nil {
		t.Fatal("expected error for unknown attribute key")
	}
}
