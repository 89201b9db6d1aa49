package catalog

import (
	"fmt"
	"math"
	"slices"
	"sort"
	"strings"
)

// Attribute keys understood by the catalog.
const (
	AttrStyle    = "style"
	AttrMaterial = "material"
	AttrPrice    = "price"
	AttrGemstone = "gemstone"
)

// Op is the comparison a predicate applies.
type Op string

const (
	OpEq    Op = "eq"    // attribute == Values[0]
	OpIn    Op = "in"    // attribute in Values
	OpRange Op = "range" // Range.Min <= price (<= Range.Max)
)

// PriceRange is an inclusive price interval. A nil Max means unbounded.
type PriceRange struct {
	Min float64  `json:"min"`
	Max *float64 `json:"max,omitempty"`
}

// Between returns the closed range [lo, hi].
func Between(lo, hi float64) PriceRange {
	return PriceRange{Min: lo, Max: &hi}
}

// AtLeast returns the half-open range [lo, ∞).
func AtLeast(lo float64) PriceRange {
	return PriceRange{Min: lo}
}

// HalfOpen returns [lo, hi): the upper bound is the largest float below hi.
func HalfOpen(lo, hi float64) PriceRange {
	return Between(lo, math.Nextafter(hi, lo))
}

// Bounded reports whether the range has an upper bound.
func (r PriceRange) Bounded() bool { return r.Max != nil }

// Contains reports whether price falls inside the range.
func (r PriceRange) Contains(price float64) bool {
	if price < r.Min {
		return false
	}
	return r.Max == nil || price <= *r.Max
}

// Valid reports whether the range is well formed.
func (r PriceRange) Valid() bool {
	if r.Min < 0 {
		return false
	}
	return r.Max == nil || *r.Max >= r.Min
}

func (r PriceRange) String() string {
	if r.Max == nil {
		return fmt.Sprintf("%g+", r.Min)
	}
	return fmt.Sprintf("%g-%g", r.Min, *r.Max)
}

// Predicate constrains a single attribute.
type Predicate struct {
	Key    string
	Op     Op
	Values []string
	Range  PriceRange
}

// Eq builds an equality predicate.
func Eq(key, value string) Predicate {
	return Predicate{Key: key, Op: OpEq, Values: []string{value}}
}

// In builds a membership predicate. A single value collapses to Eq.
func In(key string, values ...string) Predicate {
	if len(values) == 1 {
		return Eq(key, values[0])
	}
	return Predicate{Key: key, Op: OpIn, Values: slices.Clone(values)}
}

// Price builds a price range predicate.
func Price(r PriceRange) Predicate {
	return Predicate{Key: AttrPrice, Op: OpRange, Range: r}
}

// Matches reports whether the product satisfies the predicate.
func (p Predicate) Matches(prod Product) bool {
	switch p.Op {
	case OpRange:
		return p.Range.Contains(prod.Price)
	case OpEq, OpIn:
		return slices.Contains(p.Values, prod.Attr(p.Key))
	}
	return false
}

func (p Predicate) String() string {
	switch p.Op {
	case OpRange:
		return fmt.Sprintf("%s in [%s]", p.Key, p.Range)
	case OpEq:
		return fmt.Sprintf("%s=%s", p.Key, p.Values[0])
	default:
		return fmt.Sprintf("%s in {%s}", p.Key, strings.Join(p.Values, ", "))
	}
}

// Filter is a conjunction of predicates, at most one per key, kept sorted by key.
type Filter struct {
	preds []Predicate
}

// NewFilter builds a filter from predicates. A later predicate for the same key replaces an earlier one.
func NewFilter(preds ...Predicate) Filter {
	var f Filter
	for _, p := range preds {
		f = f.With(p)
	}
	return f
}

// With returns a copy of the filter with p set for its key.
func (f Filter) With(p Predicate) Filter {
	out := make([]Predicate, 0, len(f.preds)+1)
	for _, existing := range f.preds {
		if existing.Key != p.Key {
			out = append(out, existing)
		}
	}
	out = append(out, p)
	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	return Filter{preds: out}
}

// Without returns a copy of the filter with key dropped.
func (f Filter) Without(key string) Filter {
	out := make([]Predicate, 0, len(f.preds))
	for _, p := range f.preds {
		if p.Key != key {
			out = append(out, p)
		}
	}
	return Filter{preds: out}
}

// Only returns a copy of the filter restricted to keys.
func (f Filter) Only(keys ...string) Filter {
	out := make([]Predicate, 0, len(keys))
	for _, p := range f.preds {
		if slices.Contains(keys, p.Key) {
			out = append(out, p)
		}
	}
	return Filter{preds: out}
}

// Predicates returns the predicates in key order.
func (f Filter) Predicates() []Predicate {
	return slices.Clone(f.preds)
}

// Get returns the predicate for key.
func (f Filter) Get(key string) (Predicate, bool) {
	for _, p := range f.preds {
		if p.Key == key {
			return p, true
		}
	}
	return Predicate{}, false
}

// Keys returns the active keys in sorted order.
func (f Filter) Keys() []string {
	keys := make([]string, len(f.preds))
	for i, p := range f.preds {
		keys[i] = p.Key
	}
	return keys
}

// IsEmpty reports whether the filter has no predicates.
func (f Filter) IsEmpty() bool { return len(f.preds) == 0 }

// Matches reports whether the product satisfies every predicate.
func (f Filter) Matches(prod Product) bool {
	for _, p := range f.preds {
		if !p.Matches(prod) {
			return false
		}
	}
	return true
}

func (f Filter) String() string {
	if f.IsEmpty() {
		return "{}"
	}
	parts := make([]string, len(f.preds))
	for i, p := range f.preds {
		parts[i] = p.String()
	}
	return "{" + strings.Join(parts, " AND ") + "}"
}
