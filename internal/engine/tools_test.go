package engine

import (
	"errors"
	"testing"
)

const priceSchema = `{
	"type": "object",
	"properties": {
		"min_price": {"type": ["number", "null"]},
		"is_mentioned": {"type": "boolean"}
	},
	"required": ["is_mentioned"]
}`

func TestToolSchemaDecodeArgs(t *testing.T) {
	schema := ToolSchema{Name: "record_budget", JSONSchema: priceSchema}

	var out struct {
		MinPrice    *float64 `json:"min_price"`
		IsMentioned bool     `json:"is_mentioned"`
	}
	if err := schema.DecodeArgs(map[string]any{"min_price": 500.0, "is_mentioned": true}, &out); err != nil {
		t.Fatalf("DecodeArgs() error = %v", err)
	}
	if !out.IsMentioned || out.MinPrice == nil || *out.MinPrice != 500 {
		t.Errorf("decoded = %+v", out)
	}

	err := schema.DecodeArgs(map[string]any{"min_price": "cheap"}, &out)
	var verr *SchemaValidationError
	if !errors.As(err, &verr) {
		t.Fatalf("expected SchemaValidationError, got %v", err)
	}
	if verr.Schema != "record_budget" || len(verr.Errors) == 0 {
		t.Errorf("unexpected validation error: %+v", verr)
	}
}
