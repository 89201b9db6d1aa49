// Package inference resolves attribute constraints from the conversation,
// one attribute at a time, in dependency order.
package inference

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/ChamsBouzaiene/jewelbot/internal/catalog"
	"github.com/ChamsBouzaiene/jewelbot/internal/engine"
	"github.com/ChamsBouzaiene/jewelbot/internal/oracle"
	"github.com/ChamsBouzaiene/jewelbot/internal/session"
)

// Kind tags an Outcome.
type Kind int

const (
	Success Kind = iota
	NoPreference
	Conflict
)

func (k Kind) String() string {
	switch k {
	case Success:
		return "success"
	case NoPreference:
		return "no_preference"
	case Conflict:
		return "conflict"
	}
	return fmt.Sprintf("Kind(%d)", int(k))
}

// Outcome is the result of inferring one attribute.
//
// For Success, Constraint is the value to commit. For Conflict, Constraint
// holds the rejected candidate so callers can rebuild the failing filter.
type Outcome struct {
	Kind       Kind
	Attribute  string
	Constraint session.Constraint
	Reasoning  string
}

// Rejected returns the candidate values a Conflict was raised for.
func (o Outcome) Rejected() []string {
	switch o.Constraint.Kind {
	case session.KindValues:
		return o.Constraint.Values
	case session.KindRange:
		return []string{o.Constraint.Range.String()}
	}
	return nil
}

// Step infers a single attribute. It has no side effects.
type Step struct {
	extractor oracle.Extractor
	catalog   catalog.Oracle
	timeout   time.Duration
}

// NewStep creates a step. A positive timeout bounds every oracle call.
func NewStep(extractor oracle.Extractor, cat catalog.Oracle, timeout time.Duration) *Step {
	return &Step{extractor: extractor, catalog: cat, timeout: timeout}
}

func (s *Step) bounded(ctx context.Context) (context.Context, context.CancelFunc) {
	if s.timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, s.timeout)
}

// Infer evaluates d against the conversation in c, using the resolved
// constraints of d's dependencies as the upstream filter.
func (s *Step) Infer(ctx context.Context, c oracle.Context, d oracle.Domain) (Outcome, error) {
	if d.Continuous {
		return s.inferPrice(ctx, c, d)
	}
	return s.inferCategorical(ctx, c, d)
}

func (s *Step) inferCategorical(ctx context.Context, c oracle.Context, d oracle.Domain) (Outcome, error) {
	callCtx, cancel := s.bounded(ctx)
	ex, err := s.extractor.ExtractAttribute(callCtx, c, d)
	cancel()
	if err != nil {
		return Outcome{}, engine.External("extract_"+d.Name, err)
	}

	values := inDomain(ex.Values, d.Options)
	if len(values) == 0 {
		return noPreference(d.Name, ex.Reasoning, "no %s preference expressed", d.Name), nil
	}

	candidate := session.ValuesOf(values...)
	if len(values) == len(d.Options) {
		candidate = session.NoRequirement()
	}
	return s.check(ctx, c, d, candidate, ex.Reasoning)
}

func (s *Step) inferPrice(ctx context.Context, c oracle.Context, d oracle.Domain) (Outcome, error) {
	callCtx, cancel := s.bounded(ctx)
	ex, err := s.extractor.ExtractPrice(callCtx, c)
	cancel()
	if err != nil {
		return Outcome{}, engine.External("extract_price", err)
	}

	r, ok := priceRange(ex)
	if !ok {
		return noPreference(d.Name, ex.Reasoning, "no usable budget expressed"), nil
	}
	return s.check(ctx, c, d, session.RangeOf(r), ex.Reasoning)
}

// check runs the exists query for candidate on top of the upstream constraints.
func (s *Step) check(ctx context.Context, c oracle.Context, d oracle.Domain, candidate session.Constraint, reasoning string) (Outcome, error) {
	f := c.Constraints.FilterOf(d.DependsOn...)
	if p, ok := candidate.Predicate(d.Name); ok {
		f = f.With(p)
	}

	callCtx, cancel := s.bounded(ctx)
	avail, err := s.catalog.Exists(callCtx, f)
	cancel()
	if err != nil {
		return Outcome{}, engine.External("catalog_exists", err)
	}

	out := Outcome{Attribute: d.Name, Constraint: candidate, Reasoning: reasoning}
	if !avail.Exists {
		out.Kind = Conflict
		if out.Reasoning == "" {
			out.Reasoning = fmt.Sprintf("no products match %s", f)
		}
		return out, nil
	}
	out.Kind = Success
	return out, nil
}

func noPreference(attribute, reasoning, fallback string, args ...any) Outcome {
	if reasoning == "" {
		reasoning = fmt.Sprintf(fallback, args...)
	}
	return Outcome{Kind: NoPreference, Attribute: attribute, Reasoning: reasoning}
}

// inDomain keeps the values that name a valid option, in the option's own
// spelling, without duplicates.
func inDomain(values, options []string) []string {
	var out []string
	seen := make(map[string]bool, len(values))
	for _, v := range values {
		v = strings.TrimSpace(v)
		for _, opt := range options {
			if strings.EqualFold(v, opt) && !seen[opt] {
				seen[opt] = true
				out = append(out, opt)
				break
			}
		}
	}
	return out
}

// priceRange turns a price extraction into a range. A missing lower bound is
// zero and a missing upper bound is open. Extractions that are unmentioned,
// negative, inverted or mentioned without bounds are not usable.
func priceRange(ex oracle.PriceExtraction) (catalog.PriceRange, bool) {
	if !ex.IsMentioned || (ex.Min == nil && ex.Max == nil) {
		return catalog.PriceRange{}, false
	}
	r := catalog.PriceRange{}
	if ex.Min != nil {
		r.Min = *ex.Min
	}
	if ex.Max != nil {
		hi := *ex.Max
		if hi < 0 {
			return catalog.PriceRange{}, false
		}
		r.Max = &hi
	}
	return r, r.Valid()
}
