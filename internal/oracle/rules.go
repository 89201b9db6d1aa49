package oracle

import (
	"context"
	"fmt"
	"regexp"
	"slices"
	"sort"
	"strconv"
	"strings"
	"unicode"

	"github.com/ChamsBouzaiene/jewelbot/internal/catalog"
	"github.com/ChamsBouzaiene/jewelbot/internal/config"
	"github.com/ChamsBouzaiene/jewelbot/internal/diagnose"
	"github.com/ChamsBouzaiene/jewelbot/internal/gallery"
	"github.com/ChamsBouzaiene/jewelbot/internal/session"
)

// Rules is a deterministic oracle driven by the vocabulary of the knowledge file.
// It backs offline mode and needs no network access.
type Rules struct {
	knowledge *config.Knowledge
}

// NewRules creates a rule-based oracle over k.
func NewRules(k *config.Knowledge) *Rules {
	return &Rules{knowledge: k}
}

// Suite returns the rules as a full oracle suite.
func (r *Rules) Suite() Suite {
	return Suite{Extractor: r, Captioner: r, Summarizer: r, Writer: r}
}

var (
	anythingPhrases  = []string{"any", "anything", "don t mind", "dont mind", "whatever", "all of them", "doesn t matter", "either is fine", "show me everything"}
	unlimitedPhrases = []string{"no budget", "no limit", "money is no object", "any budget", "any price"}
	budgetWords      = []string{"budget", "price", "cost", "spend", "afford"}

	attributeWords = map[string][]string{
		catalog.AttrStyle:    {"style", "styles", "design", "setting"},
		catalog.AttrMaterial: {"material", "materials", "metal", "metals"},
		catalog.AttrPrice:    {"price", "budget"},
	}
)

var (
	thousandsRe = regexp.MustCompile(`(\d),(\d{3})`)

	amountPattern = `\$?\s?(\d+(?:\.\d+)?)\s?(k)?\b`
	betweenRe     = regexp.MustCompile(`(?:between|from)\s+` + amountPattern + `\s*(?:and|to|-)\s*` + amountPattern)
	dollarRangeRe = regexp.MustCompile(`\$(\d+(?:\.\d+)?)\s?(k)?\s*(?:-|to)\s*` + amountPattern)
	aroundRe      = regexp.MustCompile(`(?:around|about|approximately|roughly|close to|~)\s*` + amountPattern)
	underRe       = regexp.MustCompile(`(?:under|below|less than|up to|at most|no more than|maximum of|max of|max|within|budget is|budget of)\s*` + amountPattern)
	overRe        = regexp.MustCompile(`(?:over|above|more than|at least|minimum of|starting at)\s*` + amountPattern)
)

// normalize lowercases s and reduces it to space-separated words with a space
// on either side, so phrases can be matched on word boundaries.
func normalize(s string) string {
	var b strings.Builder
	b.WriteByte(' ')
	space := true
	for _, r := range strings.ToLower(s) {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			b.WriteRune(r)
			space = false
		} else if !space {
			b.WriteByte(' ')
			space = true
		}
	}
	if !space {
		b.WriteByte(' ')
	}
	return b.String()
}

type phrase struct {
	text  string // normalized, padded
	value string
}

func newPhrases(value string, words ...string) []phrase {
	out := make([]phrase, 0, len(words))
	for _, w := range words {
		if n := normalize(w); n != " " {
			out = append(out, phrase{text: n, value: value})
		}
	}
	return out
}

// matchPhrases finds phrases in the normalized text, longest first. A matched
// span is blanked so a shorter phrase inside it cannot match again.
// Values are returned in the order they were found.
func matchPhrases(text string, phrases []phrase) []string {
	sorted := slices.Clone(phrases)
	sort.SliceStable(sorted, func(i, j int) bool { return len(sorted[i].text) > len(sorted[j].text) })

	buf := []byte(text)
	var found []string
	for _, p := range sorted {
		for {
			idx := strings.Index(string(buf), p.text)
			if idx < 0 {
				break
			}
			for i := idx + 1; i < idx+len(p.text)-1; i++ {
				buf[i] = ' '
			}
			if !slices.Contains(found, p.value) {
				found = append(found, p.value)
			}
		}
	}
	return found
}

func containsAny(text string, words []string) bool {
	return len(matchPhrases(text, newPhrases("x", words...))) > 0
}

// userTexts returns the user's messages newest first, including the query.
func userTexts(c Context) []string {
	texts := c.UserTexts()
	if c.Query != "" && (len(texts) == 0 || texts[len(texts)-1] != c.Query) {
		texts = append(texts, c.Query)
	}
	slices.Reverse(texts)
	return texts
}

func (r *Rules) phrasesFor(d Domain) []phrase {
	spec, _ := r.knowledge.Attribute(d.Name)
	var out []phrase
	for _, opt := range d.Options {
		out = append(out, newPhrases(opt, opt)...)
		if info, ok := spec.Options[opt]; ok {
			out = append(out, newPhrases(opt, info.Keywords...)...)
		}
	}
	return out
}

// wantsAnything reports whether the query waives a preference for attribute.
func wantsAnything(query, attribute, pending string) bool {
	if !containsAny(query, anythingPhrases) {
		return false
	}
	return pending == attribute || containsAny(query, attributeWords[attribute])
}

// ExtractAttribute implements Extractor by matching option vocabulary, newest
// message first. Waiving the preference only counts in the latest message.
func (r *Rules) ExtractAttribute(_ context.Context, c Context, d Domain) (AttributeExtraction, error) {
	phrases := r.phrasesFor(d)
	for i, text := range userTexts(c) {
		found := matchPhrases(normalize(text), phrases)
		if len(found) == 0 {
			if i == 0 && wantsAnything(normalize(text), d.Name, c.Pending) {
				return AttributeExtraction{
					Values:    slices.Clone(d.Options),
					Reasoning: fmt.Sprintf("the user is happy with any %s", d.Name),
				}, nil
			}
			continue
		}
		values := make([]string, 0, len(found))
		for _, opt := range d.Options {
			if slices.Contains(found, opt) {
				values = append(values, opt)
			}
		}
		return AttributeExtraction{
			Values:    values,
			Reasoning: fmt.Sprintf("matched %s vocabulary in %q", d.Name, text),
		}, nil
	}
	return AttributeExtraction{
		Values:    []string{NoneValue},
		Reasoning: fmt.Sprintf("no %s preference mentioned yet", d.Name),
	}, nil
}

// ExtractPrice implements Extractor. Explicit amounts win over vague budget words.
func (r *Rules) ExtractPrice(_ context.Context, c Context) (PriceExtraction, error) {
	if c.Pending == catalog.AttrPrice && wantsAnything(normalize(c.Query), catalog.AttrPrice, c.Pending) {
		return unbounded("the user has no budget limit"), nil
	}
	for i, text := range userTexts(c) {
		if out, ok := r.parsePrice(text, i == 0); ok {
			return out, nil
		}
	}
	return PriceExtraction{Reasoning: "no budget mentioned"}, nil
}

func unbounded(reason string) PriceExtraction {
	zero := 0.0
	return PriceExtraction{Min: &zero, IsMentioned: true, Reasoning: reason}
}

func parseAmount(num, suffix string) float64 {
	v, _ := strconv.ParseFloat(num, 64)
	if suffix == "k" {
		v *= 1000
	}
	return v
}

// parsePrice reads budget language from one message. A bare mention of a
// budget without an amount only counts for the latest message.
func (r *Rules) parsePrice(text string, latest bool) (PriceExtraction, bool) {
	rules := r.knowledge.PriceRules
	lower := thousandsRe.ReplaceAllString(strings.ToLower(text), "$1$2")

	for _, re := range []*regexp.Regexp{betweenRe, dollarRangeRe} {
		if m := re.FindStringSubmatch(lower); m != nil {
			lo, hi := parseAmount(m[1], m[2]), parseAmount(m[3], m[4])
			return PriceExtraction{Min: &lo, Max: &hi, IsMentioned: true, Reasoning: "explicit price range"}, true
		}
	}
	if m := aroundRe.FindStringSubmatch(lower); m != nil {
		x := parseAmount(m[1], m[2])
		lo, hi := x*(1-rules.AroundTolerance), x*(1+rules.AroundTolerance)
		return PriceExtraction{Min: &lo, Max: &hi, IsMentioned: true, Reasoning: "approximate budget"}, true
	}
	if m := underRe.FindStringSubmatch(lower); m != nil {
		lo, hi := 0.0, parseAmount(m[1], m[2])
		return PriceExtraction{Min: &lo, Max: &hi, IsMentioned: true, Reasoning: "upper budget limit"}, true
	}
	if m := overRe.FindStringSubmatch(lower); m != nil {
		lo := parseAmount(m[1], m[2])
		return PriceExtraction{Min: &lo, IsMentioned: true, Reasoning: "lower budget limit"}, true
	}

	norm := normalize(text)
	var phrases []phrase
	phrases = append(phrases, newPhrases("cheap", rules.CheapWords...)...)
	phrases = append(phrases, newPhrases("luxury", rules.LuxuryWords...)...)
	phrases = append(phrases, newPhrases("unlimited", unlimitedPhrases...)...)
	if found := matchPhrases(norm, phrases); len(found) > 0 {
		switch found[0] {
		case "cheap":
			lo, hi := 0.0, rules.CheapMax
			return PriceExtraction{Min: &lo, Max: &hi, IsMentioned: true, Reasoning: "asked for something affordable"}, true
		case "luxury":
			lo := rules.LuxuryMin
			return PriceExtraction{Min: &lo, IsMentioned: true, Reasoning: "asked for something luxurious"}, true
		default:
			return unbounded("the user has no budget limit"), true
		}
	}
	if latest && containsAny(norm, budgetWords) {
		return PriceExtraction{IsMentioned: true, Reasoning: "budget mentioned without an amount"}, true
	}
	return PriceExtraction{}, false
}

// ClassifyRelevance implements Extractor.
func (r *Rules) ClassifyRelevance(_ context.Context, c Context) (Relevance, error) {
	q := normalize(c.Query)
	related := slices.Clone(r.knowledge.Relevance.RelatedWords)
	for _, a := range r.knowledge.Attributes {
		for name := range a.Options {
			related = append(related, name)
		}
	}

	switch {
	case containsAny(q, related):
		return Related, nil
	case containsAny(q, r.knowledge.Relevance.GreetingWords):
		return Greeting, nil
	}
	if last, ok := lastTurn(c); ok && last.Role == session.RoleUser && last.HasImages() {
		return Related, nil
	}
	// A reply inside an ongoing conversation usually answers the agent's question.
	if len(c.Turns) > 1 {
		return Related, nil
	}
	return NotRelated, nil
}

func lastTurn(c Context) (session.Turn, bool) {
	if len(c.Turns) == 0 {
		return session.Turn{}, false
	}
	return c.Turns[len(c.Turns)-1], true
}

// DecideRetrieval implements Extractor.
func (r *Rules) DecideRetrieval(_ context.Context, c Context) (bool, error) {
	return containsAny(normalize(c.Query), r.knowledge.RetrievalWords), nil
}

// Caption implements Captioner.
func (r *Rules) Caption(_ context.Context, images []string) (string, error) {
	if len(images) == 1 {
		return "1 jewelry image", nil
	}
	return fmt.Sprintf("%d jewelry images", len(images)), nil
}

const maxSummaryLine = 120

// Summarize implements Summarizer by appending the first sentence of each turn.
func (r *Rules) Summarize(_ context.Context, summary string, turns []session.Turn) (string, error) {
	parts := []string{}
	if s := strings.TrimSpace(summary); s != "" {
		parts = append(parts, s)
	}
	for _, t := range turns {
		parts = append(parts, fmt.Sprintf("%s: %s", t.Role, firstSentence(t.Content)))
	}
	return strings.Join(parts, " | "), nil
}

func firstSentence(s string) string {
	s = strings.TrimSpace(s)
	if i := strings.IndexAny(s, ".!?\n"); i >= 0 {
		s = s[:i+1]
	}
	s = strings.TrimSpace(s)
	if runes := []rune(s); len(runes) > maxSummaryLine {
		s = string(runes[:maxSummaryLine]) + "..."
	}
	return s
}

// KnowledgeQuery implements Writer.
func (r *Rules) KnowledgeQuery(_ context.Context, c Context) (string, error) {
	return strings.TrimSpace(c.Query), nil
}

// CatalogQuery implements Writer. It combines the chosen values with the latest message.
func (r *Rules) CatalogQuery(_ context.Context, c Context) (string, error) {
	var words []string
	for _, key := range r.knowledge.AttributeNames() {
		if con := c.Constraints.Get(key); con.Kind == session.KindValues {
			words = append(words, con.Values...)
		}
	}
	if q := strings.TrimSpace(c.Query); q != "" {
		words = append(words, q)
	}
	return strings.Join(words, " "), nil
}

// NoPreference implements Writer.
func (r *Rules) NoPreference(_ context.Context, _ Context, attribute string, items []gallery.Item) (string, error) {
	var b strings.Builder
	switch {
	case attribute == catalog.AttrPrice && len(items) > 0:
		b.WriteString("What budget do you have in mind? Here are a few pieces across our price ranges:")
	case attribute == catalog.AttrPrice:
		b.WriteString("What budget do you have in mind?")
	case len(items) > 0:
		fmt.Fprintf(&b, "Which %s speaks to you? Here are a few options from our collection:", attribute)
	default:
		fmt.Fprintf(&b, "Do you have a %s preference in mind?", attribute)
	}
	for _, it := range items {
		fmt.Fprintf(&b, "\n- %s: %s (%s)", it.Value, it.Name, formatPrice(it.Price))
	}
	return b.String(), nil
}

// Conflict implements Writer.
func (r *Rules) Conflict(_ context.Context, _ Context, brief ConflictBrief) (string, error) {
	var b strings.Builder
	fmt.Fprintf(&b, "I couldn't find any pieces with %s %s", brief.Attribute, strings.Join(brief.Values, " or "))
	if others := DescribeConstraints(brief.Constraints, r.knowledge.AttributeNames()); others != "none yet" {
		fmt.Fprintf(&b, " alongside your other choices (%s)", others)
	}
	b.WriteString(".")

	switch {
	case len(brief.Suggestions) == 0:
		b.WriteString(" Would you like to try a different combination?")
	case brief.Suggestions[0].Key == diagnose.AllKey:
		fmt.Fprintf(&b, " We have %d pieces in the collection. Could you tell me a bit more about what you like?", brief.Suggestions[0].Count)
	default:
		for i, s := range brief.Suggestions {
			if i == 2 {
				break
			}
			fmt.Fprintf(&b, " If you are flexible on %s, there are %d pieces to explore.", s.Key, s.Count)
		}
	}
	return b.String(), nil
}

// Final implements Writer.
func (r *Rules) Final(_ context.Context, c Context, products []catalog.Product) (string, error) {
	if len(products) == 0 {
		return "I couldn't find a piece that matches everything you asked for. Would you like to adjust one of your choices?", nil
	}
	var b strings.Builder
	fmt.Fprintf(&b, "Here are my picks for you (%s):", DescribeConstraints(c.Constraints, r.knowledge.AttributeNames()))
	for i, p := range products {
		fmt.Fprintf(&b, "\n%d. %s, %s %s, %s", i+1, p.Name, p.Material, p.Style, formatPrice(p.Price))
	}
	return b.String(), nil
}

// Enrich implements catalog.Enricher with vocabulary matching on name and description.
func (r *Rules) Enrich(_ context.Context, p catalog.Product) (catalog.Metadata, error) {
	text := normalize(p.Name + " " + p.Description)
	label := func(attr string) string {
		spec, ok := r.knowledge.Attribute(attr)
		if !ok {
			return catalog.UnknownValue
		}
		names := make([]string, 0, len(spec.Options))
		for name := range spec.Options {
			names = append(names, name)
		}
		sort.Strings(names)
		var phrases []phrase
		for _, name := range names {
			phrases = append(phrases, newPhrases(name, name)...)
			phrases = append(phrases, newPhrases(name, spec.Options[name].Keywords...)...)
		}
		if found := matchPhrases(text, phrases); len(found) > 0 {
			return found[0]
		}
		return catalog.UnknownValue
	}

	meta := catalog.Metadata{
		Style:    label(catalog.AttrStyle),
		Material: label(catalog.AttrMaterial),
		Gemstone: catalog.UnknownValue,
	}
	var stones []phrase
	for _, g := range r.knowledge.Gemstones {
		stones = append(stones, newPhrases(g, g)...)
	}
	if found := matchPhrases(text, stones); len(found) > 0 {
		meta.Gemstone = found[0]
	}
	return meta, nil
}

// formatPrice renders v as whole dollars with thousands separators.
func formatPrice(v float64) string {
	s := strconv.FormatInt(int64(v+0.5), 10)
	var b strings.Builder
	for i, r := range s {
		if i > 0 && (len(s)-i)%3 == 0 {
			b.WriteByte(',')
		}
		b.WriteRune(r)
	}
	return "$" + b.String()
}
