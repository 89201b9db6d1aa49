package session

import (
	"bytes"
	"encoding/json"
	"fmt"
	"slices"
	"strings"

	"github.com/ChamsBouzaiene/jewelbot/internal/catalog"
)

// ConstraintKind tags the variant held by a Constraint.
type ConstraintKind int

const (
	KindUnresolved ConstraintKind = iota
	KindNoRequirement
	KindValues
	KindRange
)

func (k ConstraintKind) String() string {
	switch k {
	case KindUnresolved:
		return "unresolved"
	case KindNoRequirement:
		return "no_requirement"
	case KindValues:
		return "values"
	case KindRange:
		return "range"
	}
	return fmt.Sprintf("ConstraintKind(%d)", int(k))
}

// Constraint is the resolved requirement for one attribute.
// Values is set only for KindValues and Range only for KindRange.
type Constraint struct {
	Kind   ConstraintKind
	Values []string
	Range  catalog.PriceRange
}

// Unresolved is the zero constraint.
func Unresolved() Constraint { return Constraint{} }

// NoRequirement records that the user accepts any value.
func NoRequirement() Constraint { return Constraint{Kind: KindNoRequirement} }

// ValuesOf restricts an attribute to a set of values.
func ValuesOf(values ...string) Constraint {
	return Constraint{Kind: KindValues, Values: slices.Clone(values)}
}

// RangeOf restricts price to r.
func RangeOf(r catalog.PriceRange) Constraint {
	return Constraint{Kind: KindRange, Range: r}
}

// Resolved reports whether the attribute has been settled in any way.
func (c Constraint) Resolved() bool { return c.Kind != KindUnresolved }

// Predicate returns the catalog predicate for the constraint, if it filters anything.
func (c Constraint) Predicate(key string) (catalog.Predicate, bool) {
	switch c.Kind {
	case KindValues:
		if len(c.Values) == 0 {
			return catalog.Predicate{}, false
		}
		return catalog.In(key, c.Values...), true
	case KindRange:
		return catalog.Price(c.Range), true
	}
	return catalog.Predicate{}, false
}

func (c Constraint) String() string {
	switch c.Kind {
	case KindNoRequirement:
		return "any"
	case KindValues:
		return strings.Join(c.Values, ", ")
	case KindRange:
		return c.Range.String()
	}
	return "unresolved"
}

// MarshalJSON encodes Unresolved as null, NoRequirement as "any",
// Values as an array and Range as {"min","max"}.
func (c Constraint) MarshalJSON() ([]byte, error) {
	switch c.Kind {
	case KindUnresolved:
		return []byte("null"), nil
	case KindNoRequirement:
		return []byte(`"any"`), nil
	case KindValues:
		return json.Marshal(c.Values)
	case KindRange:
		return json.Marshal(c.Range)
	}
	return nil, fmt.Errorf("unknown constraint kind %d", c.Kind)
}

// UnmarshalJSON decodes the forms written by MarshalJSON.
func (c *Constraint) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	switch {
	case bytes.Equal(data, []byte("null")):
		*c = Unresolved()
		return nil
	case len(data) > 0 && data[0] == '"':
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		if s != "any" {
			return fmt.Errorf("invalid constraint string %q", s)
		}
		*c = NoRequirement()
		return nil
	case len(data) > 0 && data[0] == '[':
		var values []string
		if err := json.Unmarshal(data, &values); err != nil {
			return err
		}
		*c = ValuesOf(values...)
		return nil
	case len(data) > 0 && data[0] == '{':
		var r catalog.PriceRange
		if err := json.Unmarshal(data, &r); err != nil {
			return err
		}
		if !r.Valid() {
			return fmt.Errorf("invalid price range %s", r)
		}
		*c = RangeOf(r)
		return nil
	}
	return fmt.Errorf("invalid constraint %s", data)
}

// Constraints maps attribute names to their constraint. Missing keys are Unresolved.
type Constraints map[string]Constraint

// Get returns the constraint for key.
func (cs Constraints) Get(key string) Constraint {
	return cs[key]
}

// Resolved reports whether key has been settled.
func (cs Constraints) Resolved(key string) bool {
	return cs[key].Resolved()
}

// Clone returns a deep copy.
func (cs Constraints) Clone() Constraints {
	out := make(Constraints, len(cs))
	for k, c := range cs {
		c.Values = slices.Clone(c.Values)
		if c.Range.Max != nil {
			hi := *c.Range.Max
			c.Range.Max = &hi
		}
		out[k] = c
	}
	return out
}

// Filter encodes the constraints as a catalog filter. NoRequirement and
// Unresolved attributes contribute no predicate.
func (cs Constraints) Filter() catalog.Filter {
	var preds []catalog.Predicate
	for key, c := range cs {
		if p, ok := c.Predicate(key); ok {
			preds = append(preds, p)
		}
	}
	return catalog.NewFilter(preds...)
}

// FilterOf encodes only the given keys.
func (cs Constraints) FilterOf(keys ...string) catalog.Filter {
	return cs.Filter().Only(keys...)
}

// ActiveKeys decodes the attribute keys a filter constrains.
func ActiveKeys(f catalog.Filter) []string {
	return f.Keys()
}
