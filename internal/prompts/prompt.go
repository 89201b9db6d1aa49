package prompts

// PromptVersion represents a version identifier for prompts.
type PromptVersion string

const (
	// PromptV1 is the first version of prompts.
	PromptV1 PromptVersion = "1.0.0"
)

// Prompt represents a versioned prompt template with metadata.
// Content uses {{name}} placeholders filled by a PromptBuilder.
type Prompt struct {
	ID          string        // Unique identifier (e.g., "relevance", "price_extraction")
	Version     PromptVersion // Version of this prompt
	Content     string        // The template text
	Description string        // Human-readable description
	Tags        []string      // Tags for categorization (e.g., ["guardrail", "extraction"])
	Deprecated  bool          // True if this version is deprecated
}
