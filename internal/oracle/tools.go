package oracle

import (
	"encoding/json"
	"slices"
	"strings"

	"github.com/ChamsBouzaiene/jewelbot/internal/engine"
)

// Structured outputs are requested as forced tool calls; each schema below is
// validated against the model's arguments before they are used.

var classifyTool = engine.ToolSchema{
	Name:        "classify",
	Description: "Report the category of the user's latest message.",
	JSONSchema: `{
		"type": "object",
		"properties": {
			"category": {"type": "string", "enum": ["greeting", "related", "not_related"]}
		},
		"required": ["category"]
	}`,
}

var retrievalTool = engine.ToolSchema{
	Name:        "decide_retrieval",
	Description: "Decide whether the technical knowledge base must be consulted.",
	JSONSchema: `{
		"type": "object",
		"properties": {
			"need_external_knowledge": {"type": "boolean", "description": "True if the query needs expert advice, comparisons or technical details not yet discussed."},
			"reasoning": {"type": "string", "description": "Brief explanation of the decision."}
		},
		"required": ["need_external_knowledge", "reasoning"]
	}`,
}

var priceTool = engine.ToolSchema{
	Name:        "extract_price",
	Description: "Report the user's budget.",
	JSONSchema: `{
		"type": "object",
		"properties": {
			"min_price": {"type": ["number", "null"], "description": "Minimum budget, 0 if not specified."},
			"max_price": {"type": ["number", "null"], "description": "Maximum budget, null if there is no limit."},
			"is_mentioned": {"type": "boolean", "description": "True if the user explicitly mentioned a price or budget."},
			"reasoning": {"type": "string", "description": "How the budget was inferred."}
		},
		"required": ["is_mentioned", "reasoning"]
	}`,
}

// attributeTool builds the extraction schema for a domain. The options are
// listed in the description only: values outside the domain are dropped by
// the inference step rather than failing validation.
func attributeTool(d Domain) engine.ToolSchema {
	options := strings.Join(append(slices.Clone(d.Options), NoneValue), ", ")
	schema := map[string]any{
		"type": "object",
		"properties": map[string]any{
			"identified_values": map[string]any{
				"type":        "array",
				"items":       map[string]any{"type": "string"},
				"description": `The identified preferences, spelled exactly as one of: ` + options + `. ["None"] if undecided.`,
			},
			"reasoning": map[string]any{
				"type":        "string",
				"description": "Explain how the preference was inferred from the conversation and knowledge.",
			},
		},
		"required": []string{"identified_values", "reasoning"},
	}
	raw, _ := json.Marshal(schema)
	return engine.ToolSchema{
		Name:        "extract_" + d.Name,
		Description: "Report the user's " + d.Name + " preference.",
		JSONSchema:  string(raw),
	}
}

// labelTool builds the enrichment schema for catalog ingest.
func labelTool(styles, materials []string) engine.ToolSchema {
	withUnknown := func(vs []string) []string { return append(slices.Clone(vs), "Unknown") }
	schema := map[string]any{
		"type": "object",
		"properties": map[string]any{
			"style":    map[string]any{"type": "string", "enum": withUnknown(styles)},
			"material": map[string]any{"type": "string", "enum": withUnknown(materials)},
			"gemstone": map[string]any{"type": "string"},
		},
		"required": []string{"style", "material", "gemstone"},
	}
	raw, _ := json.Marshal(schema)
	return engine.ToolSchema{
		Name:        "label",
		Description: "Label a catalog product.",
		JSONSchema:  string(raw),
	}
}
