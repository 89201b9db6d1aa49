package catalog

import (
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestFilterWithReplacesKeyAndKeepsOrder(t *testing.T) {
	f := NewFilter(
		Price(Between(0, 1000)),
		Eq(AttrStyle, "Halo"),
		In(AttrMaterial, "Platinum", "Rose Gold"),
	)
	f = f.With(Eq(AttrStyle, "Solitaire"))

	if diff := cmp.Diff([]string{AttrMaterial, AttrPrice, AttrStyle}, f.Keys()); diff != "" {
		t.Errorf("Keys() mismatch (-want +got):\n%s", diff)
	}
	p, ok := f.Get(AttrStyle)
	if !ok || p.Values[0] != "Solitaire" {
		t.Errorf("style predicate = %+v, want Solitaire", p)
	}
}

func TestInCollapsesSingleValue(t *testing.T) {
	p := In(AttrStyle, "Halo")
	if p.Op != OpEq {
		t.Errorf("In with one value: Op = %s, want %s", p.Op, OpEq)
	}
}

func TestFilterMatches(t *testing.T) {
	ring := Product{ID: "1", Style: "Halo", Material: "Platinum", Price: 1500}

	tests := []struct {
		name   string
		filter Filter
		want   bool
	}{
		{name: "empty matches everything", filter: Filter{}, want: true},
		{name: "eq match", filter: NewFilter(Eq(AttrStyle, "Halo")), want: true},
		{name: "eq miss", filter: NewFilter(Eq(AttrStyle, "Vintage")), want: false},
		{name: "in match", filter: NewFilter(In(AttrMaterial, "Yellow Gold", "Platinum")), want: true},
		{name: "closed range inclusive", filter: NewFilter(Price(Between(1000, 1500))), want: true},
		{name: "closed range miss", filter: NewFilter(Price(Between(0, 1000))), want: false},
		{name: "open range", filter: NewFilter(Price(AtLeast(1200))), want: true},
		{name: "conjunction miss", filter: NewFilter(Eq(AttrStyle, "Halo"), Price(AtLeast(2000))), want: false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.filter.Matches(ring); got != tt.want {
				t.Errorf("Matches() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestFilterWithoutAndOnly(t *testing.T) {
	f := NewFilter(Eq(AttrStyle, "Halo"), Eq(AttrMaterial, "Platinum"), Price(AtLeast(100)))

	if diff := cmp.Diff([]string{AttrMaterial, AttrStyle}, f.Without(AttrPrice).Keys()); diff != "" {
		t.Errorf("Without() keys mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]string{AttrStyle}, f.Only(AttrStyle, AttrGemstone).Keys()); diff != "" {
		t.Errorf("Only() keys mismatch (-want +got):\n%s", diff)
	}
	if len(f.Keys()) != 3 {
		t.Errorf("original filter mutated: %v", f.Keys())
	}
}

func TestPriceRangeValid(t *testing.T) {
	tests := []struct {
		r    PriceRange
		want bool
	}{
		{Between(0, 1000), true},
		{AtLeast(5000), true},
		{Between(2000, 1000), false},
		{PriceRange{Min: -1}, false},
	}
	for _, tt := range tests {
		if got := tt.r.Valid(); got != tt.want {
			t.Errorf("%s.Valid() = %v, want %v", tt.r, got, tt.want)
		}
	}
}
