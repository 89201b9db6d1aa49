package engine

import (
	"encoding/json"
	"fmt"

	"github.com/xeipuuv/gojsonschema"
)

// ValidateArgs validates tool-call arguments against a tool's JSON schema.
func (s ToolSchema) ValidateArgs(args map[string]any) error {
	schemaLoader := gojsonschema.NewStringLoader(s.JSONSchema)
	documentLoader := gojsonschema.NewGoLoader(args)

	result, err := gojsonschema.Validate(schemaLoader, documentLoader)
	if err != nil {
		return fmt.Errorf("schema validation failed: %w", err)
	}

	if !result.Valid() {
		var errorMsgs []string
		for _, err := range result.Errors() {
			errorMsgs = append(errorMsgs, err.String())
		}
		return &SchemaValidationError{
			Schema: s.Name,
			Errors: errorMsgs,
		}
	}

	return nil
}

// DecodeArgs validates args against the schema and decodes them into out.
func (s ToolSchema) DecodeArgs(args map[string]any, out any) error {
	if err := s.ValidateArgs(args); err != nil {
		return err
	}
	raw, err := json.Marshal(args)
	if err != nil {
		return fmt.Errorf("failed to marshal %s arguments: %w", s.Name, err)
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("failed to decode %s arguments: %w", s.Name, err)
	}
	return nil
}
