package session

import (
	"encoding/json"
	"testing"

	"github.com/ChamsBouzaiene/jewelbot/internal/catalog"
	"github.com/google/go-cmp/cmp"
)

func TestConstraintJSON(t *testing.T) {
	tests := []struct {
		name string
		c    Constraint
		want string
	}{
		{name: "unresolved", c: Unresolved(), want: `null`},
		{name: "no requirement", c: NoRequirement(), want: `"any"`},
		{name: "values", c: ValuesOf("Halo", "Vintage"), want: `["Halo","Vintage"]`},
		{name: "closed range", c: RangeOf(catalog.Between(0, 1000)), want: `{"min":0,"max":1000}`},
		{name: "open range", c: RangeOf(catalog.AtLeast(5000)), want: `{"min":5000}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			data, err := json.Marshal(tt.c)
			if err != nil {
				t.Fatalf("Marshal error = %v", err)
			}
			if string(data) != tt.want {
				t.Errorf("Marshal = %s, want %s", data, tt.want)
			}
			var back Constraint
			if err := json.Unmarshal(data, &back); err != nil {
				t.Fatalf("Unmarshal error = %v", err)
			}
			if diff := cmp.Diff(tt.c, back); diff != "" {
				t.Errorf("round trip mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestConstraintJSONRejectsGarbage(t *testing.T) {
	for _, raw := range []string{`"some"`, `{"min":10,"max":5}`, `42`} {
		var c Constraint
		if err := json.Unmarshal([]byte(raw), &c); err == nil {
			t.Errorf("Unmarshal(%s) succeeded, want error", raw)
		}
	}
}

func TestSessionJSONLayout(t *testing.T) {
	s := sampleSession()
	data, err := json.Marshal(s)
	if err != nil {
		t.Fatalf("Marshal error = %v", err)
	}
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		t.Fatalf("Unmarshal error = %v", err)
	}
	for _, key := range []string{"sessionId", "turns", "summary", "constraints", "inferenceStatus", "nodeName"} {
		if _, ok := raw[key]; !ok {
			t.Errorf("persisted session is missing %q", key)
		}
	}
}

func TestFilterActiveKeysRoundTrip(t *testing.T) {
	tests := []struct {
		name string
		cs   Constraints
		want []string
	}{
		{name: "empty", cs: Constraints{}, want: []string{}},
		{name: "no requirement is not a predicate", cs: Constraints{"style": NoRequirement()}, want: []string{}},
		{
			name: "values and range",
			cs: Constraints{
				"style":    ValuesOf("Halo"),
				"material": ValuesOf("Platinum", "White Gold"),
				"price":    RangeOf(catalog.AtLeast(100)),
			},
			want: []string{"material", "price", "style"},
		},
		{
			name: "mixed",
			cs:   Constraints{"style": ValuesOf("Halo"), "material": NoRequirement(), "price": Unresolved()},
			want: []string{"style"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ActiveKeys(tt.cs.Filter())
			if diff := cmp.Diff(tt.want, got); diff != "" {
				t.Errorf("ActiveKeys(Filter()) mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestFilterMatchesConstraints(t *testing.T) {
	cs := Constraints{
		"style":    ValuesOf("Halo", "Vintage"),
		"material": NoRequirement(),
		"price":    RangeOf(catalog.Between(1000, 2000)),
	}
	f := cs.Filter()

	if !f.Matches(catalog.Product{Style: "Vintage", Material: "Anything", Price: 1500}) {
		t.Error("expected vintage ring in range to match")
	}
	if f.Matches(catalog.Product{Style: "Bezel", Price: 1500}) {
		t.Error("expected bezel ring to be excluded")
	}
	if f.Matches(catalog.Product{Style: "Halo", Price: 2500}) {
		t.Error("expected out-of-range ring to be excluded")
	}
}
