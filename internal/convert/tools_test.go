package convert

import (
	"errors"
	"reflect"
	"strings"
	"testing"
)

func TestSanitizeSchema_RemovesAdditionalProperties(t *testing.T) {
	schema := map[string]any{
		"type":                 "object",
		"additionalProperties": false,
		"properties": map[string]any{
			"nested": map[string]any{
				"type":                 "object",
				"additionalProperties": true,
			},
		},
	}
	out := SanitizeSchema(schema)
	if _, ok := out["additionalProperties"]; ok {
		t.Fatal("top-level additionalProperties survived")
	}
	nested := out["properties"].(map[string]any)["nested"].(map[string]any)
	if _, ok := nested["additionalProperties"]; ok {
		t.Fatal("nested additionalProperties survived")
	}
}

func TestSanitizeSchema_DropsEmptyRequired(t *testing.T) {
	out := SanitizeSchema(map[string]any{
		"type":     "object",
		"required": []any{},
	})
	if _, ok := out["required"]; ok {
		t.Fatal("empty required array survived")
	}
}

func TestSanitizeSchema_KeepsNonEmptyRequired(t *testing.T) {
	out := SanitizeSchema(map[string]any{
		"type":     "object",
		"required": []any{"name"},
	})
	if _, ok := out["required"]; !ok {
		t.Fatal("non-empty required array dropped")
	}
}

func TestSanitizeSchema_DescendsIntoArrays(t *testing.T) {
	out := SanitizeSchema(map[string]any{
		"oneOf": []any{
			map[string]any{"type": "string", "additionalProperties": false},
			"literal",
		},
	})
	items := out["oneOf"].([]any)
	if _, ok := items[0].(map[string]any)["additionalProperties"]; ok {
		t.Fatal("additionalProperties inside array survived")
	}
	if items[1] != "literal" {
		t.Fatal("non-object array item mutated")
	}
}

func TestSanitizeSchema_DoesNotMutateInput(t *testing.T) {
	schema := map[string]any{"type": "object", "additionalProperties": false}
	SanitizeSchema(schema)
	if _, ok := schema["additionalProperties"]; !ok {
		t.Fatal("input schema mutated")
	}
}

func TestSanitizeSchema_Idempotent(t *testing.T) {
	schema := map[string]any{
		"type":                 "object",
		"additionalProperties": false,
		"required":             []any{},
	}
	once := SanitizeSchema(schema)
	twice := SanitizeSchema(once)
	if !reflect.DeepEqual(once, twice) {
		t.Fatalf("sanitize not idempotent: %v vs %v", once, twice)
	}
}

func TestProcessLongDescriptions_MovesLongDescription(t *testing.T) {
	long := strings.Repeat("d", 100)
	tools := []ToolInput{
		{Name: "short_tool", Description: "brief"},
		{Name: "long_tool", Description: long},
	}
	processed, doc := ProcessLongDescriptions(tools, 50)
	if processed[0].Description != "brief" {
		t.Fatal("short description should be untouched")
	}
	if !strings.Contains(processed[1].Description, "## Tool: long_tool") {
		t.Fatalf("expected reference description: %q", processed[1].Description)
	}
	if !strings.Contains(doc, "## Tool: long_tool") || !strings.Contains(doc, long) {
		t.Fatal("documentation block missing the moved description")
	}
}

func TestProcessLongDescriptions_DisabledByZeroLimit(t *testing.T) {
	tools := []ToolInput{{Name: "t", Description: strings.Repeat("d", 100)}}
	processed, doc := ProcessLongDescriptions(tools, 0)
	if doc != "" {
		t.Fatal("zero limit should disable the move")
	}
	if processed[0].Description != tools[0].Description {
		t.Fatal("description changed with move disabled")
	}
}

func TestValidateToolNames(t *testing.T) {
	if err := ValidateToolNames([]ToolInput{{Name: "fine"}}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	long := strings.Repeat("x", 70)
	err := ValidateToolNames([]ToolInput{{Name: long}, {Name: "fine"}, {Name: long + "y"}})
	if err == nil {
		t.Fatal("expected error")
	}
	var nameErr *ToolNameError
	if !errors.As(err, &nameErr) {
		t.Fatalf("expected ToolNameError, got %T", err)
	}
	if len(nameErr.Violations) != 2 {
		t.Fatalf("expected 2 violations, got %d", len(nameErr.Violations))
	}
	if !strings.Contains(err.Error(), "64 characters") {
		t.Fatalf("unexpected message: %q", err.Error())
	}
}

func TestConvertTools_BackfillsEmptyDescription(t *testing.T) {
	out := ConvertTools([]ToolInput{{Name: "probe", Description: "  "}})
	if len(out) != 1 {
		t.Fatalf("expected 1 tool, got %d", len(out))
	}
	if out[0].ToolSpecification.Description != "Tool: probe" {
		t.Fatalf("unexpected description: %q", out[0].ToolSpecification.Description)
	}
}

func TestConvertImages_StripsDataURL(t *testing.T) {
	out := ConvertImages([]ImageInput{{
		Data: "data:image/png;base64,iVBORw0KGgo=",
	}})
	if len(out) != 1 {
		t.Fatalf("expected 1 image, got %d", len(out))
	}
	if out[0].Format != "png" {
		t.Errorf("unexpected format: %q", out[0].Format)
	}
	if out[0].Source.Bytes != "iVBORw0KGgo=" {
		t.Errorf("data-URL prefix not stripped: %q", out[0].Source.Bytes)
	}
}

func TestConvertImages_DefaultsMediaType(t *testing.T) {
	out := ConvertImages([]ImageInput{{Data: "abcd"}})
	if len(out) != 1 || out[0].Format != "jpeg" {
		t.Fatalf("expected jpeg default, got %+v", out)
	}
}

func TestConvertImages_SkipsEmptyData(t *testing.T) {
	out := ConvertImages([]ImageInput{{MediaType: "image/png"}})
	if len(out) != 0 {
		t.Fatalf("expected empty data skipped, got %+v", out)
	}
}

func TestConvertToolResults_EmptyContentPlaceholder(t *testing.T) {
	out := ConvertToolResults([]ToolResultInput{{ToolUseID: "t1"}})
	if len(out) != 1 {
		t.Fatalf("expected 1 result, got %d", len(out))
	}
	if out[0].Content[0].Text != "(empty result)" {
		t.Fatalf("unexpected text: %q", out[0].Content[0].Text)
	}
	if out[0].Status != "success" || out[0].ToolUseID != "t1" {
		t.Fatalf("unexpected result: %+v", out[0])
	}
}

func TestExtractToolUses_BadArgumentsDegradeToEmpty(t *testing.T) {
	out := extractToolUses([]ToolCall{{ID: "t1", Name: "f", Arguments: "{not json"}})
	if len(out) != 1 {
		t.Fatalf("expected 1 use, got %d", len(out))
	}
	if len(out[0].Input) != 0 {
		t.Fatalf("expected empty input map, got %+v", out[0].Input)
	}
}
