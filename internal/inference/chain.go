package inference

import (
	"context"
	"fmt"
	"slices"

	"github.com/ChamsBouzaiene/jewelbot/internal/catalog"
	"github.com/ChamsBouzaiene/jewelbot/internal/config"
	"github.com/ChamsBouzaiene/jewelbot/internal/engine"
	"github.com/ChamsBouzaiene/jewelbot/internal/oracle"
	"github.com/ChamsBouzaiene/jewelbot/internal/session"
)

// Result is where a chain run stopped.
type Result struct {
	// Status is one of the session.Status constants.
	Status string
	// Halted is the outcome the chain stopped on; zero when Status is resolved.
	Halted Outcome
	// Steps lists every outcome evaluated during the run, in order.
	Steps []Outcome
}

// Observer follows a chain run. Enter is called as the chain reaches each
// domain, resolved ones included, and an error from it aborts the run.
// Outcome receives every evaluated outcome. Either func may be nil.
type Observer struct {
	Enter   func(ctx context.Context, attribute string) error
	Outcome func(ctx context.Context, out Outcome)
}

func (o Observer) enter(ctx context.Context, attribute string) error {
	if o.Enter == nil {
		return nil
	}
	return o.Enter(ctx, attribute)
}

func (o Observer) outcome(ctx context.Context, out Outcome) {
	if o.Outcome != nil {
		o.Outcome(ctx, out)
	}
}

// Chain runs steps over the domains in dependency order.
type Chain struct {
	step *Step
}

// NewChain creates a chain around step.
func NewChain(step *Step) *Chain {
	return &Chain{step: step}
}

// Run evaluates every unresolved domain in order, committing each Success to
// s.Constraints so later steps see it upstream. It stops at the first
// NoPreference or Conflict. s must be a clone owned by the caller.
func (ch *Chain) Run(ctx context.Context, s *session.Session, c oracle.Context, domains []oracle.Domain, obs Observer) (Result, error) {
	if s.Constraints == nil {
		s.Constraints = session.Constraints{}
	}
	var res Result

	for _, d := range domains {
		if err := obs.enter(ctx, d.Name); err != nil {
			return res, err
		}
		if s.Constraints.Resolved(d.Name) {
			continue
		}
		for _, dep := range d.DependsOn {
			if !s.Constraints.Resolved(dep) {
				return res, engine.Violation("inference.Chain", "%s evaluated before its dependency %s is resolved", d.Name, dep)
			}
		}
		if err := ctx.Err(); err != nil {
			return res, err
		}

		c.Constraints = s.Constraints
		out, err := ch.step.Infer(ctx, c, d)
		if err != nil {
			return res, err
		}
		res.Steps = append(res.Steps, out)
		obs.outcome(ctx, out)

		switch out.Kind {
		case Success:
			s.Constraints[d.Name] = out.Constraint
		case NoPreference:
			res.Status, res.Halted = session.StatusNoPreference, out
			return res, nil
		case Conflict:
			res.Status, res.Halted = session.StatusConflict, out
			return res, nil
		default:
			return res, engine.Violation("inference.Chain", "unknown outcome %s for %s", out.Kind, d.Name)
		}
	}

	res.Status = session.StatusResolved
	return res, nil
}

// BuildDomains assembles the attribute domains from the knowledge file, with
// categorical options taken from the catalog's distinct values.
func BuildDomains(ctx context.Context, k *config.Knowledge, cat catalog.Catalog) ([]oracle.Domain, error) {
	domains := make([]oracle.Domain, 0, len(k.Attributes))
	for _, spec := range k.Attributes {
		d := oracle.Domain{
			Name:         spec.Name,
			Continuous:   spec.Continuous,
			DependsOn:    slices.Clone(spec.DependsOn),
			Instructions: spec.Instructions,
		}
		if !spec.Continuous {
			options, err := cat.Options(ctx, spec.Name)
			if err != nil {
				return nil, fmt.Errorf("failed to load %s options: %w", spec.Name, err)
			}
			d.Options = options
			d.Knowledge = spec.Describe(options)
		}
		domains = append(domains, d)
	}
	return domains, nil
}

// Domain returns the domain called name.
func Domain(domains []oracle.Domain, name string) (oracle.Domain, bool) {
	for _, d := range domains {
		if d.Name == name {
			return d, true
		}
	}
	return oracle.Domain{}, false
}
