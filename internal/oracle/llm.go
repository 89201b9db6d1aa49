package oracle

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/ChamsBouzaiene/jewelbot/internal/catalog"
	"github.com/ChamsBouzaiene/jewelbot/internal/config"
	"github.com/ChamsBouzaiene/jewelbot/internal/engine"
	"github.com/ChamsBouzaiene/jewelbot/internal/gallery"
	"github.com/ChamsBouzaiene/jewelbot/internal/prompts"
	"github.com/ChamsBouzaiene/jewelbot/internal/session"
	"go.uber.org/zap"
)

// ErrNoToolCall is returned when the model answers in prose instead of calling the forced tool.
var ErrNoToolCall = errors.New("model did not return the requested tool call")

// LLM implements every oracle interface on top of an engine.LLMClient.
type LLM struct {
	client    engine.LLMClient
	model     string
	knowledge *config.Knowledge
	logger    *zap.Logger
}

// NewLLM creates an LLM-backed oracle suite member.
func NewLLM(client engine.LLMClient, model string, knowledge *config.Knowledge, logger *zap.Logger) *LLM {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LLM{client: client, model: model, knowledge: knowledge, logger: logger}
}

// Suite returns the LLM as a full oracle suite.
func (l *LLM) Suite() Suite {
	return Suite{Extractor: l, Captioner: l, Summarizer: l, Writer: l}
}

func (l *LLM) render(id string, vars map[string]string) (string, error) {
	text, err := prompts.Render(id, vars)
	if err != nil {
		return "", engine.Violation("oracle", "%v", err)
	}
	return text, nil
}

// structured runs a forced tool call and decodes its validated arguments into out.
func (l *LLM) structured(ctx context.Context, op string, msgs []engine.ChatMessage, tool engine.ToolSchema, out any) error {
	resp, err := l.client.Chat(ctx, l.model, msgs, []engine.ToolSchema{tool}, engine.ChatOptions{
		Temperature: 0,
		ForceTool:   tool.Name,
	})
	if err != nil {
		return engine.External(op, err)
	}
	call, ok := resp.FirstToolCall(tool.Name)
	if !ok {
		return engine.External(op, ErrNoToolCall)
	}
	if err := tool.DecodeArgs(call.Args, out); err != nil {
		return engine.External(op, err)
	}
	return nil
}

// text runs a plain completion and returns its trimmed content.
func (l *LLM) text(ctx context.Context, op string, msgs []engine.ChatMessage, maxTokens int) (string, error) {
	resp, err := l.client.Chat(ctx, l.model, msgs, nil, engine.ChatOptions{
		Temperature:     0,
		MaxOutputTokens: maxTokens,
	})
	if err != nil {
		return "", engine.External(op, err)
	}
	out := strings.TrimSpace(resp.Assistant.Content)
	if out == "" {
		return "", engine.External(op, errors.New("empty completion"))
	}
	return out, nil
}

func externalKnowledge(pages []string) string {
	if len(pages) == 0 {
		return "no external knowledge"
	}
	return strings.Join(pages, "\n\n")
}

func orNone(s string) string {
	if strings.TrimSpace(s) == "" {
		return "none"
	}
	return s
}

func (l *LLM) order() []string {
	if l.knowledge != nil {
		return l.knowledge.AttributeNames()
	}
	return attributeOrder
}

// ClassifyRelevance implements Extractor.
func (l *LLM) ClassifyRelevance(ctx context.Context, c Context) (Relevance, error) {
	guide := config.RelevanceGuide{}
	if l.knowledge != nil {
		guide = l.knowledge.Relevance
	}
	system, err := l.render(prompts.Relevance, map[string]string{
		"greeting":    guide.Greeting,
		"related":     guide.Related,
		"not_related": guide.NotRelated,
		"summary":     orNone(c.Summary),
	})
	if err != nil {
		return "", err
	}

	var out struct {
		Category Relevance `json:"category"`
	}
	err = l.structured(ctx, "classify_relevance", []engine.ChatMessage{
		{Role: engine.RoleSystem, Content: system},
		{Role: engine.RoleUser, Content: c.Query},
	}, classifyTool, &out)
	if err != nil {
		return "", err
	}
	l.logger.Debug("relevance classified", zap.String("category", string(out.Category)))
	return out.Category, nil
}

// DecideRetrieval implements Extractor.
func (l *LLM) DecideRetrieval(ctx context.Context, c Context) (bool, error) {
	var topics []string
	if l.knowledge != nil {
		topics = l.knowledge.KnowledgeTopics
	}
	prompt, err := l.render(prompts.KnowledgeRouter, map[string]string{
		"topics":       "- " + strings.Join(topics, "\n- "),
		"summary":      orNone(c.Summary),
		"conversation": RenderConversation(c.Turns),
		"query":        c.Query,
	})
	if err != nil {
		return false, err
	}

	var out struct {
		Need      bool   `json:"need_external_knowledge"`
		Reasoning string `json:"reasoning"`
	}
	if err := l.structured(ctx, "decide_retrieval", []engine.ChatMessage{
		{Role: engine.RoleUser, Content: prompt},
	}, retrievalTool, &out); err != nil {
		return false, err
	}
	l.logger.Debug("knowledge check", zap.Bool("retrieve", out.Need), zap.String("reasoning", out.Reasoning))
	return out.Need, nil
}

// ExtractAttribute implements Extractor.
func (l *LLM) ExtractAttribute(ctx context.Context, c Context, d Domain) (AttributeExtraction, error) {
	prompt, err := l.render(prompts.AttributeExtraction, map[string]string{
		"attribute":          d.Name,
		"options":            strings.Join(d.Options, ", "),
		"knowledge_base":     orNone(d.Knowledge),
		"instructions":       orNone(d.Instructions),
		"decided":            DescribeConstraints(c.Constraints, l.order()),
		"external_knowledge": externalKnowledge(c.Pages),
		"summary":            c.Summary,
		"conversation":       RenderConversation(c.Turns),
		"query":              c.Query,
	})
	if err != nil {
		return AttributeExtraction{}, err
	}

	var out AttributeExtraction
	if err := l.structured(ctx, "extract_"+d.Name, []engine.ChatMessage{
		{Role: engine.RoleUser, Content: prompt},
	}, attributeTool(d), &out); err != nil {
		return AttributeExtraction{}, err
	}
	return out, nil
}

// ExtractPrice implements Extractor.
func (l *LLM) ExtractPrice(ctx context.Context, c Context) (PriceExtraction, error) {
	rules := config.PriceRules{CheapMax: 1000, LuxuryMin: 5000, AroundTolerance: 0.2}
	if l.knowledge != nil {
		rules = l.knowledge.PriceRules
	}
	prompt, err := l.render(prompts.PriceExtraction, map[string]string{
		"around_percent":     fmt.Sprintf("%g", rules.AroundTolerance*100),
		"cheap_max":          fmt.Sprintf("%g", rules.CheapMax),
		"luxury_min":         fmt.Sprintf("%g", rules.LuxuryMin),
		"external_knowledge": externalKnowledge(c.Pages),
		"summary":            c.Summary,
		"conversation":       RenderConversation(c.Turns),
		"query":              c.Query,
	})
	if err != nil {
		return PriceExtraction{}, err
	}

	var out PriceExtraction
	if err := l.structured(ctx, "extract_price", []engine.ChatMessage{
		{Role: engine.RoleUser, Content: prompt},
	}, priceTool, &out); err != nil {
		return PriceExtraction{}, err
	}
	return out, nil
}

// Caption implements Captioner.
func (l *LLM) Caption(ctx context.Context, images []string) (string, error) {
	instruction, err := l.render(prompts.Caption, nil)
	if err != nil {
		return "", err
	}
	return l.text(ctx, "caption", []engine.ChatMessage{
		{Role: engine.RoleUser, Content: instruction, Images: images},
	}, 100)
}

// Summarize implements Summarizer.
func (l *LLM) Summarize(ctx context.Context, summary string, turns []session.Turn) (string, error) {
	prompt, err := l.render(prompts.Summarize, map[string]string{
		"summary": orNone(summary),
		"lines":   RenderConversation(turns),
	})
	if err != nil {
		return "", err
	}
	return l.text(ctx, "summarize", []engine.ChatMessage{
		{Role: engine.RoleUser, Content: prompt},
	}, 500)
}

// KnowledgeQuery implements Writer.
func (l *LLM) KnowledgeQuery(ctx context.Context, c Context) (string, error) {
	prompt, err := l.render(prompts.KnowledgeQuery, map[string]string{
		"summary":      orNone(c.Summary),
		"conversation": RenderConversation(c.Turns),
		"query":        c.Query,
	})
	if err != nil {
		return "", err
	}
	q, err := l.text(ctx, "knowledge_query", []engine.ChatMessage{{Role: engine.RoleUser, Content: prompt}}, 60)
	return strings.Trim(q, `"`), err
}

// CatalogQuery implements Writer.
func (l *LLM) CatalogQuery(ctx context.Context, c Context) (string, error) {
	prompt, err := l.render(prompts.CatalogQuery, map[string]string{
		"summary":      orNone(c.Summary),
		"conversation": RenderConversation(c.Turns),
		"query":        c.Query,
		"attributes":   DescribeConstraints(c.Constraints, l.order()),
	})
	if err != nil {
		return "", err
	}
	q, err := l.text(ctx, "catalog_query", []engine.ChatMessage{{Role: engine.RoleUser, Content: prompt}}, 60)
	return strings.Trim(q, `"`), err
}

// NoPreference implements Writer.
func (l *LLM) NoPreference(ctx context.Context, c Context, attribute string, items []gallery.Item) (string, error) {
	goal := fmt.Sprintf("The user is undecided on %s. Ask them to pick a preference.", attribute)
	if attribute == catalog.AttrPrice {
		goal = "The user is undecided on budget. Ask for a range."
	}
	var listing strings.Builder
	for i, it := range items {
		fmt.Fprintf(&listing, "%d. %s (%s: %s, $%.0f)\n", i+1, it.Name, it.Attribute, it.Value, it.Price)
	}
	if len(items) == 0 {
		listing.WriteString("(no examples available)")
	}

	prompt, err := l.render(prompts.NoPreference, map[string]string{
		"attribute": attribute,
		"items":     listing.String(),
		"goal":      goal,
	})
	if err != nil {
		return "", err
	}
	return l.text(ctx, "write_no_preference", []engine.ChatMessage{{Role: engine.RoleUser, Content: prompt}}, 400)
}

// Conflict implements Writer.
func (l *LLM) Conflict(ctx context.Context, c Context, brief ConflictBrief) (string, error) {
	prompt, err := l.render(prompts.Conflict, map[string]string{
		"attribute":   brief.Attribute,
		"values":      strings.Join(brief.Values, ", "),
		"reasoning":   orNone(brief.Reasoning),
		"constraints": DescribeConstraints(brief.Constraints, l.order()),
		"suggestions": describeSuggestions(brief),
	})
	if err != nil {
		return "", err
	}
	return l.text(ctx, "write_conflict", []engine.ChatMessage{{Role: engine.RoleUser, Content: prompt}}, 400)
}

// Final implements Writer.
func (l *LLM) Final(ctx context.Context, c Context, products []catalog.Product) (string, error) {
	var listing strings.Builder
	for i, p := range products {
		fmt.Fprintf(&listing, "%d. %s, %s %s, $%.0f\n", i+1, p.Name, p.Material, p.Style, p.Price)
	}
	if len(products) == 0 {
		listing.WriteString("(no products matched)")
	}
	prompt, err := l.render(prompts.Final, map[string]string{
		"constraints":  DescribeConstraints(c.Constraints, l.order()),
		"products":     listing.String(),
		"summary":      orNone(c.Summary),
		"conversation": RenderConversation(c.Turns),
	})
	if err != nil {
		return "", err
	}
	return l.text(ctx, "write_final", []engine.ChatMessage{{Role: engine.RoleUser, Content: prompt}}, 500)
}

// Enrich implements catalog.Enricher.
func (l *LLM) Enrich(ctx context.Context, p catalog.Product) (catalog.Metadata, error) {
	var styles, materials []string
	if l.knowledge != nil {
		styles = optionNames(l.knowledge, catalog.AttrStyle)
		materials = optionNames(l.knowledge, catalog.AttrMaterial)
	}
	prompt, err := l.render(prompts.Enrich, map[string]string{
		"styles":      strings.Join(styles, ", "),
		"materials":   strings.Join(materials, ", "),
		"name":        p.Name,
		"description": orNone(p.Description),
	})
	if err != nil {
		return catalog.Metadata{}, err
	}

	var out catalog.Metadata
	// Errors stay unwrapped here so the ingest retry policy can classify them.
	resp, err := l.client.Chat(ctx, l.model, []engine.ChatMessage{{Role: engine.RoleUser, Content: prompt}},
		[]engine.ToolSchema{labelTool(styles, materials)}, engine.ChatOptions{ForceTool: "label"})
	if err != nil {
		return out, err
	}
	call, ok := resp.FirstToolCall("label")
	if !ok {
		return out, ErrNoToolCall
	}
	if err := labelTool(styles, materials).DecodeArgs(call.Args, &out); err != nil {
		return out, err
	}
	return out, nil
}

func describeSuggestions(brief ConflictBrief) string {
	if len(brief.Suggestions) == 0 {
		return "none (no single change brings results back)"
	}
	var b strings.Builder
	for _, s := range brief.Suggestions {
		fmt.Fprintf(&b, "- relax %s to see %d items\n", s.Key, s.Count)
	}
	return b.String()
}

func optionNames(k *config.Knowledge, attr string) []string {
	spec, ok := k.Attribute(attr)
	if !ok {
		return nil
	}
	names := make([]string, 0, len(spec.Options))
	for name := range spec.Options {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
