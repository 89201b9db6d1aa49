package providers

import (
	"context"
	"fmt"
	"os"
	"sort"
	"strings"

	"github.com/ChamsBouzaiene/jewelbot/internal/engine"
)

// compatible describes an OpenAI-compatible endpoint.
type compatible struct {
	keyEnv, modelEnv, baseURLEnv string
	defaultModel, defaultBaseURL string
	// placeholderKey is used by local servers that accept any key.
	placeholderKey string
}

var compatibleProviders = map[string]compatible{
	"openai": {
		keyEnv: "OPENAI_API_KEY", modelEnv: "OPENAI_MODEL", baseURLEnv: "OPENAI_BASE_URL",
		defaultModel: "gpt-4o-mini",
	},
	// Kimi via BytePlus ModelArk.
	"kimi": {
		keyEnv: "KIMI_API_KEY", modelEnv: "KIMI_MODEL", baseURLEnv: "KIMI_BASE_URL",
		defaultModel: "kimi-k2-250711", defaultBaseURL: "https://ark.ap-southeast.bytepluses.com/api/v3",
	},
	"deepseek": {
		keyEnv: "DEEPSEEK_API_KEY", modelEnv: "DEEPSEEK_MODEL",
		defaultModel: "deepseek-chat", defaultBaseURL: "https://api.deepseek.com/v1",
	},
	"groq": {
		keyEnv: "GROQ_API_KEY", modelEnv: "GROQ_MODEL",
		defaultModel: "llama-3.1-70b-versatile", defaultBaseURL: "https://api.groq.com/openai/v1",
	},
	"lmstudio": {
		keyEnv: "LMSTUDIO_API_KEY", modelEnv: "LMSTUDIO_MODEL", baseURLEnv: "LMSTUDIO_BASE_URL",
		defaultModel: "local-model", defaultBaseURL: "http://localhost:1234/v1", placeholderKey: "lm-studio",
	},
	"ollama": {
		keyEnv: "OLLAMA_API_KEY", modelEnv: "OLLAMA_MODEL", baseURLEnv: "OLLAMA_BASE_URL",
		defaultModel: "llama3.1", defaultBaseURL: "http://localhost:11434/v1", placeholderKey: "ollama",
	},
}

// SupportedProviders lists every LLM_PROVIDER value the factory accepts.
func SupportedProviders() []string {
	names := []string{"anthropic", "gemini"}
	for name := range compatibleProviders {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func envOr(key, fallback string) string {
	if key == "" {
		return fallback
	}
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

// NewLLMClientFromEnv creates an engine.LLMClient from LLM_PROVIDER and the
// provider's key and model variables. It returns the client and the model name.
func NewLLMClientFromEnv(ctx context.Context) (engine.LLMClient, string, error) {
	provider := os.Getenv("LLM_PROVIDER")
	if provider == "" {
		provider = "openai"
	}

	switch provider {
	case "anthropic":
		apiKey := os.Getenv("ANTHROPIC_API_KEY")
		if apiKey == "" {
			return nil, "", fmt.Errorf("ANTHROPIC_API_KEY not set")
		}
		modelName := envOr("ANTHROPIC_MODEL", "claude-3-5-haiku-latest")
		client, err := NewAnthropicClient(apiKey, modelName)
		if err != nil {
			return nil, "", fmt.Errorf("failed to create Anthropic client: %w", err)
		}
		return client, modelName, nil

	case "gemini":
		apiKey := os.Getenv("GEMINI_API_KEY")
		if apiKey == "" {
			return nil, "", fmt.Errorf("GEMINI_API_KEY not set")
		}
		modelName := envOr("GEMINI_MODEL", "gemini-2.5-flash")
		client, err := NewGeminiClient(ctx, apiKey, modelName)
		if err != nil {
			return nil, "", fmt.Errorf("failed to create Gemini client: %w", err)
		}
		return client, modelName, nil
	}

	p, ok := compatibleProviders[provider]
	if !ok {
		return nil, "", fmt.Errorf("unknown LLM_PROVIDER: %s (supported: %s)", provider, strings.Join(SupportedProviders(), ", "))
	}
	apiKey := envOr(p.keyEnv, p.placeholderKey)
	if apiKey == "" {
		return nil, "", fmt.Errorf("%s not set", p.keyEnv)
	}
	modelName := envOr(p.modelEnv, p.defaultModel)
	client, err := NewOpenAIClient(apiKey, modelName, envOr(p.baseURLEnv, p.defaultBaseURL))
	if err != nil {
		return nil, "", fmt.Errorf("failed to create %s client: %w", provider, err)
	}
	return client, modelName, nil
}
