package providers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/ChamsBouzaiene/jewelbot/internal/engine"

	"google.golang.org/genai"
)

// GeminiClient implements engine.LLMClient on the native Gemini API.
type GeminiClient struct {
	client *genai.Client
	model  string
}

// NewGeminiClient creates a new Gemini client for the engine.
func NewGeminiClient(ctx context.Context, apiKey, modelName string) (*GeminiClient, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("Gemini API key is required")
	}
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create GenAI client: %w", err)
	}
	return &GeminiClient{client: client, model: modelName}, nil
}

func toGeminiContents(messages []engine.ChatMessage) (*genai.Content, []*genai.Content) {
	var system *genai.Content
	var out []*genai.Content
	// Function responses are keyed by name; remember which name each call id had.
	callNames := make(map[string]string)

	for _, msg := range messages {
		switch msg.Role {
		case engine.RoleSystem:
			system = genai.NewContentFromText(msg.Content, genai.RoleUser)
		case engine.RoleUser:
			parts := []*genai.Part{genai.NewPartFromText(msg.Content)}
			for _, img := range msg.Images {
				if mediaType, raw, ok := decodeDataURI(img); ok {
					parts = append(parts, genai.NewPartFromBytes(raw, mediaType))
				} else {
					parts = append(parts, genai.NewPartFromURI(img, imageMIME(img)))
				}
			}
			out = append(out, genai.NewContentFromParts(parts, genai.RoleUser))
		case engine.RoleAssistant:
			var parts []*genai.Part
			if strings.TrimSpace(msg.Content) != "" {
				parts = append(parts, genai.NewPartFromText(msg.Content))
			}
			for _, tc := range msg.ToolCalls {
				callNames[tc.ID] = tc.Name
				parts = append(parts, genai.NewPartFromFunctionCall(tc.Name, tc.Args))
			}
			if len(parts) > 0 {
				out = append(out, genai.NewContentFromParts(parts, genai.RoleModel))
			}
		case engine.RoleTool:
			name := callNames[msg.Name]
			if name == "" {
				name = msg.Name
			}
			response := map[string]any{"output": msg.Content}
			out = append(out, genai.NewContentFromParts(
				[]*genai.Part{genai.NewPartFromFunctionResponse(name, response)},
				genai.RoleUser,
			))
		}
	}
	return system, out
}

// imageMIME guesses the media type of a remote image from its extension.
func imageMIME(ref string) string {
	lower := strings.ToLower(ref)
	switch {
	case strings.HasSuffix(lower, ".png"):
		return "image/png"
	case strings.HasSuffix(lower, ".webp"):
		return "image/webp"
	case strings.HasSuffix(lower, ".gif"):
		return "image/gif"
	}
	return "image/jpeg"
}

// Chat implements engine.LLMClient.Chat.
func (c *GeminiClient) Chat(ctx context.Context, modelName string, messages []engine.ChatMessage, toolSchemas []engine.ToolSchema, opts engine.ChatOptions) (engine.LLMResponse, error) {
	if modelName == "" {
		modelName = c.model
	}
	system, contents := toGeminiContents(messages)

	temperature := opts.Temperature
	config := &genai.GenerateContentConfig{
		SystemInstruction: system,
		Temperature:       &temperature,
	}
	if opts.MaxOutputTokens > 0 {
		config.MaxOutputTokens = int32(opts.MaxOutputTokens)
	}

	if len(toolSchemas) > 0 {
		decls := make([]*genai.FunctionDeclaration, 0, len(toolSchemas))
		for _, ts := range toolSchemas {
			var schemaObj map[string]any
			if err := json.Unmarshal([]byte(ts.JSONSchema), &schemaObj); err != nil {
				return engine.LLMResponse{}, fmt.Errorf("invalid tool schema JSON for %s: %w", ts.Name, err)
			}
			decls = append(decls, &genai.FunctionDeclaration{
				Name:                 ts.Name,
				Description:          ts.Description,
				ParametersJsonSchema: schemaObj,
			})
		}
		config.Tools = []*genai.Tool{{FunctionDeclarations: decls}}
		if opts.ForceTool != "" {
			config.ToolConfig = &genai.ToolConfig{
				FunctionCallingConfig: &genai.FunctionCallingConfig{
					Mode:                 genai.FunctionCallingConfigModeAny,
					AllowedFunctionNames: []string{opts.ForceTool},
				},
			}
		}
	}

	resp, err := c.client.Models.GenerateContent(ctx, modelName, contents, config)
	if err != nil {
		var apiErr genai.APIError
		if errors.As(err, &apiErr) {
			return engine.LLMResponse{}, engine.WrapLLMError(err, apiErr.Code, "")
		}
		httpStatus, retryAfter := extractErrorMetadata(err)
		return engine.LLMResponse{}, engine.WrapLLMError(err, httpStatus, retryAfter)
	}
	if len(resp.Candidates) == 0 {
		return engine.LLMResponse{}, fmt.Errorf("empty response from Gemini")
	}

	var toolCalls []engine.ToolCall
	for i, fc := range resp.FunctionCalls() {
		id := fc.ID
		if id == "" {
			id = "call_" + strconv.Itoa(i)
		}
		args := fc.Args
		if args == nil {
			args = make(map[string]any)
		}
		toolCalls = append(toolCalls, engine.ToolCall{ID: id, Name: fc.Name, Args: args})
	}

	finishReason := "stop"
	switch {
	case len(toolCalls) > 0:
		finishReason = "tool_calls"
	case resp.Candidates[0].FinishReason == genai.FinishReasonMaxTokens:
		finishReason = "length"
	case resp.Candidates[0].FinishReason == genai.FinishReasonSafety:
		finishReason = "content_filter"
	}

	var usage engine.Usage
	if u := resp.UsageMetadata; u != nil {
		usage = engine.Usage{
			Prompt:     int(u.PromptTokenCount),
			Completion: int(u.CandidatesTokenCount),
			Total:      int(u.TotalTokenCount),
		}
	}

	return engine.LLMResponse{
		Assistant: engine.ChatMessage{
			Role:      engine.RoleAssistant,
			Content:   resp.Text(),
			ToolCalls: toolCalls,
		},
		ToolCalls:    toolCalls,
		Usage:        usage,
		FinishReason: finishReason,
	}, nil
}
