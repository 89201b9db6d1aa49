// Package oracle holds the language collaborators of the conversation engine:
// extraction and classification, captioning, summarization and reply writing.
// Each has an LLM-backed implementation and a deterministic rule-based one.
package oracle

import (
	"context"
	"fmt"
	"strings"

	"github.com/ChamsBouzaiene/jewelbot/internal/catalog"
	"github.com/ChamsBouzaiene/jewelbot/internal/diagnose"
	"github.com/ChamsBouzaiene/jewelbot/internal/gallery"
	"github.com/ChamsBouzaiene/jewelbot/internal/session"
)

// NoneValue is the extraction sentinel for "no preference expressed".
const NoneValue = "None"

// Relevance is the guardrail category of a user message.
type Relevance string

const (
	Greeting   Relevance = "greeting"
	Related    Relevance = "related"
	NotRelated Relevance = "not_related"
)

// Valid reports whether r is one of the known categories.
func (r Relevance) Valid() bool {
	return r == Greeting || r == Related || r == NotRelated
}

// Domain is an attribute as presented to the extractor.
type Domain struct {
	Name       string
	Options    []string // valid options; empty for continuous attributes
	Continuous bool
	DependsOn  []string
	// Instructions and Knowledge are prompt material from the domain knowledge file.
	Instructions string
	Knowledge    string
}

// Context is everything an oracle may read about the conversation.
type Context struct {
	Summary     string
	Turns       []session.Turn
	Query       string
	Pages       []string // retrieved document pages, if any
	Constraints session.Constraints
	// Pending is the attribute the previous reply asked the user about, if any.
	Pending string
}

// ContextFrom builds an oracle context from a session whose last turn is the user's query.
func ContextFrom(s *session.Session, pages []string) Context {
	ctx := Context{
		Summary:     s.Summary,
		Turns:       s.Turns,
		Pages:       pages,
		Constraints: s.Constraints,
	}
	if s.InferenceStatus == session.StatusNoPreference {
		ctx.Pending = s.NodeName
	}
	if last, ok := s.LastTurn(); ok && last.Role == session.RoleUser {
		ctx.Query = last.Content
	}
	return ctx
}

// UserTexts returns the content of every user turn, oldest first.
func (c Context) UserTexts() []string {
	var out []string
	for _, t := range c.Turns {
		if t.Role == session.RoleUser {
			out = append(out, t.Content)
		}
	}
	return out
}

// AttributeExtraction is the extractor's answer for a categorical attribute.
type AttributeExtraction struct {
	Values    []string `json:"identified_values"`
	Reasoning string   `json:"reasoning"`
}

// PriceExtraction is the extractor's answer for the budget.
type PriceExtraction struct {
	Min         *float64 `json:"min_price"`
	Max         *float64 `json:"max_price"`
	IsMentioned bool     `json:"is_mentioned"`
	Reasoning   string   `json:"reasoning"`
}

// ConflictBrief describes an unsatisfiable inference for the writer.
type ConflictBrief struct {
	Attribute   string
	Values      []string
	Reasoning   string
	Constraints session.Constraints
	Suggestions []diagnose.Suggestion
}

// Extractor turns conversation into structured decisions.
type Extractor interface {
	ExtractAttribute(ctx context.Context, c Context, d Domain) (AttributeExtraction, error)
	ExtractPrice(ctx context.Context, c Context) (PriceExtraction, error)
	ClassifyRelevance(ctx context.Context, c Context) (Relevance, error)
	DecideRetrieval(ctx context.Context, c Context) (bool, error)
}

// Captioner describes images in one short sentence.
type Captioner interface {
	Caption(ctx context.Context, images []string) (string, error)
}

// Summarizer folds turns into a running summary.
type Summarizer interface {
	Summarize(ctx context.Context, summary string, turns []session.Turn) (string, error)
}

// Writer produces the user-facing text of each reply kind, and the search queries behind them.
type Writer interface {
	KnowledgeQuery(ctx context.Context, c Context) (string, error)
	CatalogQuery(ctx context.Context, c Context) (string, error)
	NoPreference(ctx context.Context, c Context, attribute string, items []gallery.Item) (string, error)
	Conflict(ctx context.Context, c Context, brief ConflictBrief) (string, error)
	Final(ctx context.Context, c Context, products []catalog.Product) (string, error)
}

// Suite bundles every collaborator the controller needs.
type Suite struct {
	Extractor  Extractor
	Captioner  Captioner
	Summarizer Summarizer
	Writer     Writer
}

// RenderConversation renders turns as "role: content" lines.
func RenderConversation(turns []session.Turn) string {
	var b strings.Builder
	for _, t := range turns {
		fmt.Fprintf(&b, "%s: %s\n", t.Role, t.Content)
	}
	return strings.TrimRight(b.String(), "\n")
}

// DescribeConstraints renders resolved constraints as "key: value" pairs in attribute order.
func DescribeConstraints(cs session.Constraints, order []string) string {
	var parts []string
	for _, key := range order {
		c := cs.Get(key)
		if c.Resolved() {
			parts = append(parts, fmt.Sprintf("%s: %s", key, c))
		}
	}
	if len(parts) == 0 {
		return "none yet"
	}
	return strings.Join(parts, ", ")
}

// attributeOrder is the display order used when the caller has no knowledge file at hand.
var attributeOrder = []string{catalog.AttrStyle, catalog.AttrMaterial, catalog.AttrPrice}
