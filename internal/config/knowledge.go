package config

import (
	_ "embed"
	"fmt"
	"os"
	"slices"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

//go:embed knowledge.yaml
var defaultKnowledge []byte

// OptionInfo describes one value of a categorical attribute.
type OptionInfo struct {
	Vibe      string   `yaml:"vibe"`
	Personas  []string `yaml:"personas"`
	Occasions []string `yaml:"occasions,omitempty"`
	Pros      string   `yaml:"pros,omitempty"`
	// Keywords drive the offline extractor.
	Keywords []string `yaml:"keywords,omitempty"`
}

// AttributeSpec declares one negotiable attribute.
type AttributeSpec struct {
	Name         string                `yaml:"name"`
	DependsOn    []string              `yaml:"depends_on"`
	Continuous   bool                  `yaml:"continuous,omitempty"`
	Instructions string                `yaml:"instructions,omitempty"`
	Options      map[string]OptionInfo `yaml:"options,omitempty"`
}

// PriceRules are the soft limits applied to vague budget language.
type PriceRules struct {
	CheapMax        float64  `yaml:"cheap_max"`
	LuxuryMin       float64  `yaml:"luxury_min"`
	AroundTolerance float64  `yaml:"around_tolerance"`
	CheapWords      []string `yaml:"cheap_words"`
	LuxuryWords     []string `yaml:"luxury_words"`
}

// RelevanceGuide describes the guardrail categories.
type RelevanceGuide struct {
	Greeting      string   `yaml:"greeting"`
	Related       string   `yaml:"related"`
	NotRelated    string   `yaml:"not_related"`
	GreetingWords []string `yaml:"greeting_words"`
	RelatedWords  []string `yaml:"related_words"`
}

// Knowledge is the domain knowledge file.
type Knowledge struct {
	Attributes      []AttributeSpec `yaml:"attributes"`
	PriceRules      PriceRules      `yaml:"price_rules"`
	Relevance       RelevanceGuide  `yaml:"relevance"`
	KnowledgeTopics []string        `yaml:"knowledge_topics"`
	RetrievalWords  []string        `yaml:"retrieval_words"`
	Gemstones       []string        `yaml:"gemstones"`
}

// LoadKnowledge reads the knowledge file at path, or the embedded default when path is empty.
func LoadKnowledge(path string) (*Knowledge, error) {
	data := defaultKnowledge
	if path != "" {
		var err error
		data, err = os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read knowledge file: %w", err)
		}
	}
	return ParseKnowledge(data)
}

// ParseKnowledge decodes and validates a knowledge document.
func ParseKnowledge(data []byte) (*Knowledge, error) {
	var k Knowledge
	if err := yaml.Unmarshal(data, &k); err != nil {
		return nil, fmt.Errorf("failed to parse knowledge yaml: %w", err)
	}
	if err := k.Validate(); err != nil {
		return nil, err
	}
	return &k, nil
}

// Validate checks that attribute dependencies only point backwards.
func (k *Knowledge) Validate() error {
	if len(k.Attributes) == 0 {
		return fmt.Errorf("knowledge declares no attributes")
	}
	seen := make(map[string]bool, len(k.Attributes))
	for _, a := range k.Attributes {
		if a.Name == "" {
			return fmt.Errorf("knowledge attribute with empty name")
		}
		if seen[a.Name] {
			return fmt.Errorf("attribute %q declared twice", a.Name)
		}
		for _, dep := range a.DependsOn {
			if !seen[dep] {
				return fmt.Errorf("attribute %q depends on %q, which is not declared before it", a.Name, dep)
			}
		}
		seen[a.Name] = true
	}
	if k.PriceRules.AroundTolerance < 0 || k.PriceRules.AroundTolerance >= 1 {
		return fmt.Errorf("price_rules.around_tolerance must be in [0, 1)")
	}
	return nil
}

// Attribute returns the spec for name.
func (k *Knowledge) Attribute(name string) (AttributeSpec, bool) {
	for _, a := range k.Attributes {
		if a.Name == name {
			return a, true
		}
	}
	return AttributeSpec{}, false
}

// AttributeNames returns attribute names in inference order.
func (k *Knowledge) AttributeNames() []string {
	names := make([]string, len(k.Attributes))
	for i, a := range k.Attributes {
		names[i] = a.Name
	}
	return names
}

// Dependencies returns the upstream attributes of name.
func (k *Knowledge) Dependencies(name string) []string {
	a, _ := k.Attribute(name)
	return slices.Clone(a.DependsOn)
}

// Describe renders the knowledge base for an attribute as prompt text,
// limited to options the catalog actually carries when options is non-nil.
func (a AttributeSpec) Describe(options []string) string {
	names := make([]string, 0, len(a.Options))
	for name := range a.Options {
		if options == nil || slices.Contains(options, name) {
			names = append(names, name)
		}
	}
	sort.Strings(names)

	var b strings.Builder
	for _, name := range names {
		info := a.Options[name]
		fmt.Fprintf(&b, "- %s: %s", name, info.Vibe)
		if len(info.Personas) > 0 {
			fmt.Fprintf(&b, " Personas: %s.", strings.Join(info.Personas, ", "))
		}
		if len(info.Occasions) > 0 {
			fmt.Fprintf(&b, " Occasions: %s.", strings.Join(info.Occasions, ", "))
		}
		if info.Pros != "" {
			fmt.Fprintf(&b, " Pros: %s", info.Pros)
		}
		b.WriteByte('\n')
	}
	return b.String()
}
