package prompts

// Prompt ids used by the oracles.
const (
	Relevance           = "relevance"
	KnowledgeRouter     = "knowledge_router"
	KnowledgeQuery      = "knowledge_query"
	AttributeExtraction = "attribute_extraction"
	PriceExtraction     = "price_extraction"
	CatalogQuery        = "catalog_query"
	NoPreference        = "no_preference"
	Conflict            = "conflict"
	Final               = "final"
	Caption             = "caption"
	Summarize           = "summarize"
	Enrich              = "enrich"
)

var builtin = []*Prompt{
	{
		ID:      Relevance,
		Version: PromptV1,
		Content: `You are the Guardrail for a Jewelry Assistant. Classify the user's latest message.

1. 'greeting': {{greeting}}
2. 'related': {{related}}
3. 'not_related': {{not_related}}

Current Summary Context: {{summary}}

Call the classify tool with exactly one category.`,
		Description: "Three-way relevance guardrail",
		Tags:        []string{"guardrail", "classification"},
	},
	{
		ID:      KnowledgeRouter,
		Version: PromptV1,
		Content: `You are a Senior Jewelry Expert. Decide whether you need to consult the Technical Knowledge Base to reason about the user's requirements.

THE KNOWLEDGE BASE (reference only):
{{topics}}

MEMORY CHECK (do this first):
- If the conversation summary shows the relevant topic was already retrieved and discussed, answer false.
- If the user asks a follow-up on the same topic ("ok, show me examples of that"), answer false.
- Only answer true for a NEW concept or when the previous explanation was insufficient.

Answer true for: a new reasoning path, specific trade-off questions not yet covered, undefined visual terms ("ice", "fire").
Answer false for: topics already in the summary or history, pure metal choices, decided preferences ("I want a 1ct G VS1"), small talk.

--- CONVERSATION SUMMARY ---
{{summary}}

--- RECENT CONVERSATION ---
{{conversation}}

--- CURRENT QUERY ---
{{query}}`,
		Description: "Knowledge retrieval routing with memory check",
		Tags:        []string{"routing"},
	},
	{
		ID:      KnowledgeQuery,
		Version: PromptV1,
		Content: `CONTEXT: {{summary}}
RECENT CONVERSATION: {{conversation}}
USER QUERY: {{query}}

Task: Write a concise search query to find relevant pages in a Jewelry Technical Manual.
Example: "Diamond cut grading chart" or "Pricing strategy for 0.90 carat".
Reply with the query only.`,
		Description: "Rewrites the conversation into a document search query",
		Tags:        []string{"rewrite"},
	},
	{
		ID:      AttributeExtraction,
		Version: PromptV1,
		Content: `You are a Jewellery Inventory Matcher.
Analyze the conversation for the user's preference regarding: **{{attribute}}**.

### VALID OPTIONS:
{{options}}

### KNOWLEDGE BASE:
{{knowledge_base}}

### INSTRUCTIONS:
{{instructions}}

ALREADY DECIDED:
{{decided}}

EXTERNAL KNOWLEDGE:
{{external_knowledge}}

CONTEXT:
{{summary}}
{{conversation}}

CURRENT QUERY:
{{query}}

Return the EXACT values from the list. If undecided, return ["None"].
Explain in 'reasoning' how you inferred the preference.`,
		Description: "Categorical attribute extraction restricted to valid options",
		Tags:        []string{"extraction"},
	},
	{
		ID:      PriceExtraction,
		Version: PromptV1,
		Content: `You are a Jewelry Sales Expert.
Analyze the conversation to detect the user's **Budget/Price Range**.

RULES:
- "Under X" -> min: 0, max: X
- "Over X" -> min: X, no max
- "Between X and Y" -> min: X, max: Y
- "Around X" -> +/- {{around_percent}}% of X
- "Cheap / Affordable" -> max: {{cheap_max}} (soft limit)
- "Luxury / Expensive" -> min: {{luxury_min}} (soft limit)
- If no budget is mentioned, set is_mentioned to false.

EXTERNAL KNOWLEDGE:
{{external_knowledge}}

CONTEXT:
{{summary}}
{{conversation}}

CURRENT QUERY:
{{query}}`,
		Description: "Budget extraction",
		Tags:        []string{"extraction"},
	},
	{
		ID:      CatalogQuery,
		Version: PromptV1,
		Content: `You are an expert Search Query Optimizer for a Jewelry Database.

CONTEXT:
User Summary: {{summary}}
Conversation history: {{conversation}}
Current Request: {{query}}
Inferred Attributes: {{attributes}}

TASK:
Write a concise, descriptive search query to find the best matching jewelry.
Focus on visual keywords (e.g., "Vintage Halo Ring Rose Gold", "Solitaire Diamond Platinum").
Do not include explanations, just the query string.`,
		Description: "Rewrites the conversation into a catalog search query",
		Tags:        []string{"rewrite"},
	},
	{
		ID:      NoPreference,
		Version: PromptV1,
		Content: `You are a helpful Jewelry Assistant.
The user is looking for a ring but is undecided about **{{attribute}}**.

Here are visual examples from our inventory:
{{items}}

INSTRUCTIONS:
1. Write a natural, engaging response guiding them to choose a {{attribute}}.
2. {{goal}}
3. When you mention an item, refer to it by name and its position in the gallery (first, second, third).
4. Keep it short: a few sentences.`,
		Description: "Guides an undecided user with a small gallery",
		Tags:        []string{"writer"},
	},
	{
		ID:      Conflict,
		Version: PromptV1,
		Content: `You are a helpful Jewelry Assistant.
You inferred the user wanted **{{attribute}}: {{values}}** based on this reasoning: "{{reasoning}}".

However, we DO NOT have any matching items in stock together with their other choices ({{constraints}}).

Options that would bring results back:
{{suggestions}}

Task: Write a message that:
1. Acknowledges their context (e.g. "Since your friend is a designer...").
2. Explains you thought {{attribute}}: {{values}} would be perfect.
3. Apologizes that it is out of stock.
4. Offers the alternatives above and asks whether you got it wrong.`,
		Description: "Explains an out-of-stock combination with alternatives",
		Tags:        []string{"writer"},
	},
	{
		ID:      Final,
		Version: PromptV1,
		Content: `You are a helpful Jewelry Assistant. The user's requirements are settled: {{constraints}}.

These products match, best first:
{{products}}

CONTEXT:
{{summary}}
{{conversation}}

Write a warm, concise reply presenting the products by name and price, and invite the user to refine further.`,
		Description: "Presents the final recommendations",
		Tags:        []string{"writer"},
	},
	{
		ID:          Caption,
		Version:     PromptV1,
		Content:     `Describe the jewelry in these images in 1 short sentence, or say the image is irrelevant.`,
		Description: "Image captioning for memory",
		Tags:        []string{"memory", "vision"},
	},
	{
		ID:      Summarize,
		Version: PromptV1,
		Content: `Current Summary: {{summary}}

New Lines:
{{lines}}

Update the summary with the new lines. Keep it concise and keep every stated preference (style, material, budget, persona, occasion).`,
		Description: "Folds old turns into the running summary",
		Tags:        []string{"memory"},
	},
	{
		ID:      Enrich,
		Version: PromptV1,
		Content: `You label jewelry catalog items.

Allowed styles: {{styles}}
Allowed materials: {{materials}}

Product:
Name: {{name}}
Description: {{description}}

Call the label tool. Use only allowed values for style and material, or "Unknown" when the product does not say.
For gemstone, name the main stone (e.g. Diamond, Sapphire) or "Unknown".`,
		Description: "Catalog metadata enrichment at ingest time",
		Tags:        []string{"ingest", "extraction"},
	},
}
