package controller

import (
	"context"
	"slices"

	"github.com/ChamsBouzaiene/jewelbot/internal/catalog"
	"github.com/ChamsBouzaiene/jewelbot/internal/engine"
)

// State is a node of the per-turn conversation graph.
type State string

const (
	StateStart                State = "start"
	StateRelevanceCheck       State = "relevance_check"
	StateGreeting             State = "greeting"
	StateRefusal              State = "refusal"
	StateKnowledgeDecision    State = "knowledge_decision"
	StateRetrieve             State = "retrieve"
	StateInfer                State = "infer"
	StateInferStyle           State = "infer_style"
	StateInferMaterial        State = "infer_material"
	StateInferPrice           State = "infer_price"
	StateNoPreferenceResponse State = "no_preference_response"
	StateConflictResponse     State = "conflict_response"
	StateFinalResponse        State = "final_response"
	StateCompact              State = "compact"
	StateEnd                  State = "end"
)

// InferState is the sub-state of Infer that evaluates one attribute.
func InferState(attribute string) State {
	return State("infer_" + attribute)
}

// DefaultAttributes is the attribute order of the bundled domain knowledge.
var DefaultAttributes = []string{catalog.AttrStyle, catalog.AttrMaterial, catalog.AttrPrice}

// baseTransitions holds every edge outside the Infer sub-graph.
var baseTransitions = map[State][]State{
	StateStart:                {StateRelevanceCheck},
	StateRelevanceCheck:       {StateGreeting, StateRefusal, StateKnowledgeDecision},
	StateKnowledgeDecision:    {StateRetrieve, StateInfer},
	StateRetrieve:             {StateInfer},
	StateGreeting:             {StateCompact},
	StateRefusal:              {StateCompact},
	StateNoPreferenceResponse: {StateCompact},
	StateConflictResponse:     {StateCompact},
	StateFinalResponse:        {StateCompact},
	StateCompact:              {StateEnd},
}

// Transitions returns the complete table of legal moves for a chain over
// attributes: Infer enters the first attribute state, each attribute state
// moves to the next one or exits to NoPreferenceResponse or
// ConflictResponse, and only the last one reaches FinalResponse. A state
// missing from the table has no successors.
func Transitions(attributes []string) map[State][]State {
	table := make(map[State][]State, len(baseTransitions)+len(attributes)+1)
	for from, tos := range baseTransitions {
		table[from] = slices.Clone(tos)
	}
	prev := StateInfer
	for _, a := range attributes {
		next := InferState(a)
		table[prev] = append(table[prev], next)
		table[next] = []State{StateNoPreferenceResponse, StateConflictResponse}
		prev = next
	}
	table[prev] = append(table[prev], StateFinalResponse)
	return table
}

var transitions = Transitions(DefaultAttributes)

// CanTransition reports whether the default graph has an edge from -> to.
func CanTransition(from, to State) bool {
	return slices.Contains(transitions[from], to)
}

// machine tracks the current state of one turn.
type machine struct {
	sessionID string
	state     State
	path      []State
	table     map[State][]State
	hook      Hook
}

func newMachine(sessionID string, hook Hook) *machine {
	return &machine{sessionID: sessionID, state: StateStart, path: []State{StateStart}, table: transitions, hook: hook}
}

// plan replaces the Infer sub-graph with one for attributes.
func (m *machine) plan(attributes []string) {
	if slices.Equal(attributes, DefaultAttributes) {
		m.table = transitions
		return
	}
	m.table = Transitions(attributes)
}

// advance moves to next, failing loudly on an edge the graph does not have.
func (m *machine) advance(ctx context.Context, next State) error {
	if !slices.Contains(m.table[m.state], next) {
		return engine.Violation("controller", "illegal transition %s -> %s", m.state, next)
	}
	prev := m.state
	m.state = next
	m.path = append(m.path, next)
	m.hook.OnTransition(ctx, m.sessionID, prev, next)
	return nil
}

