package diagnose

import (
	"context"
	"errors"
	"math/rand/v2"
	"testing"

	"github.com/ChamsBouzaiene/jewelbot/internal/catalog"
	"github.com/ChamsBouzaiene/jewelbot/internal/engine"
	"github.com/google/go-cmp/cmp"
)

func newCatalog(t *testing.T) *catalog.MemoryCatalog {
	t.Helper()
	c, err := catalog.NewMemoryCatalog([]catalog.Product{
		{ID: "1", Style: "Halo", Material: "Platinum", Price: 3000},
		{ID: "2", Style: "Halo", Material: "Platinum", Price: 6000},
		{ID: "3", Style: "Vintage", Material: "Yellow Gold", Price: 800},
		{ID: "4", Style: "Bezel", Material: "Platinum", Price: 500},
	}, rand.New(rand.NewPCG(1, 1)))
	if err != nil {
		t.Fatalf("NewMemoryCatalog() error = %v", err)
	}
	t.Cleanup(func() { c.Close() })
	return c
}

func TestDiagnose(t *testing.T) {
	ctx := context.Background()
	r := NewRelaxer(newCatalog(t), 2)

	tests := []struct {
		name   string
		filter catalog.Filter
		want   Report
	}{
		{
			name: "each key relaxable",
			filter: catalog.NewFilter(
				catalog.Eq(catalog.AttrStyle, "Halo"),
				catalog.Price(catalog.Between(0, 1000)),
			),
			want: Report{catalog.AttrStyle: 2, catalog.AttrPrice: 2},
		},
		{
			name: "zero counts omitted",
			filter: catalog.NewFilter(
				catalog.Eq(catalog.AttrStyle, "Vintage"),
				catalog.Eq(catalog.AttrMaterial, "Rose Gold"),
				catalog.Price(catalog.AtLeast(5000)),
			),
			// No single relaxation brings anything back.
			want: Report{},
		},
		{
			name: "three keys, one dominant",
			filter: catalog.NewFilter(
				catalog.Eq(catalog.AttrStyle, "Halo"),
				catalog.Eq(catalog.AttrMaterial, "Platinum"),
				catalog.Price(catalog.Between(0, 1000)),
			),
			want: Report{catalog.AttrStyle: 1, catalog.AttrPrice: 2},
		},
		{
			name:   "empty filter reports total",
			filter: catalog.Filter{},
			want:   Report{AllKey: 4},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := r.Diagnose(ctx, tt.filter)
			if err != nil {
				t.Fatalf("Diagnose() error = %v", err)
			}
			if diff := cmp.Diff(tt.want, got); diff != "" {
				t.Errorf("Diagnose() mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestDiagnoseRejectsSatisfiableFilter(t *testing.T) {
	r := NewRelaxer(newCatalog(t), 2)
	_, err := r.Diagnose(context.Background(), catalog.NewFilter(catalog.Eq(catalog.AttrStyle, "Halo")))
	if !engine.IsInvariantViolation(err) {
		t.Fatalf("Diagnose(satisfiable) error = %v, want InvariantViolation", err)
	}
}

type flakyOracle struct {
	catalog.Oracle
	failAfter int
	calls     int
}

func (f *flakyOracle) Count(ctx context.Context, filter catalog.Filter) (int, error) {
	f.calls++
	if f.calls > f.failAfter {
		return 0, errors.New("connection reset")
	}
	return 0, nil
}

func TestDiagnoseWrapsOracleErrors(t *testing.T) {
	r := NewRelaxer(&flakyOracle{failAfter: 1}, 1)
	f := catalog.NewFilter(catalog.Eq(catalog.AttrStyle, "Halo"), catalog.Eq(catalog.AttrMaterial, "Platinum"))
	_, err := r.Diagnose(context.Background(), f)
	if !engine.IsExternal(err) {
		t.Fatalf("Diagnose() error = %v, want ExternalServiceError", err)
	}
}

func TestSuggestionsOrder(t *testing.T) {
	got := Report{"style": 2, "price": 5, "material": 2}.Suggestions()
	want := []Suggestion{{"price", 5}, {"material", 2}, {"style", 2}}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("Suggestions() mismatch (-want +got):\n%s", diff)
	}
}
