package schema

import (
	"encoding/json"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/yourorg/ramldoc/internal/payload"
	"github.com/yourorg/ramldoc/pkg/types"
)

func validated(t *testing.T, body string, fields ...types.FieldDescriptor) []payload.Field {
	t.Helper()
	vf, err := payload.Validate("op", []byte(body), fields, payload.Options{})
	if err != nil {
		t.Fatalf("validate: %v", err)
	}
	return vf.Fields
}

func TestDeriveRequiredFields(t *testing.T) {
	fields := validated(t, `{"comment":"some","flag":true,"count":1}`,
		types.Field("comment", "the comment").AsOptional(),
		types.Field("flag", "the flag"),
		types.Field("count", "the count"),
	)
	doc, err := Derive(fields)
	if err != nil {
		t.Fatalf("derive: %v", err)
	}
	if diff := cmp.Diff([]string{"flag", "count"}, doc["required"]); diff != "" {
		t.Fatalf("required (-want +got):\n%s", diff)
	}
	props := doc["properties"].(map[string]any)
	if got := props["flag"].(map[string]any)["type"]; got != "boolean" {
		t.Fatalf("flag type = %v", got)
	}
	if got := props["comment"].(map[string]any)["description"]; got != "the comment" {
		t.Fatalf("comment description = %v", got)
	}
	if doc["$schema"] != draft04 {
		t.Fatalf("missing $schema")
	}
}

func TestDeriveNestedStructure(t *testing.T) {
	fields := validated(t, `{"order":{"items":[{"sku":"a","qty":1}]},"note":null}`,
		types.Field("order.items[].sku", "sku"),
		types.Field("order.items[].qty", "qty").AsOptional(),
		types.Field("note", "note").Typed(types.TypeString),
	)
	doc, err := Derive(fields)
	if err != nil {
		t.Fatalf("derive: %v", err)
	}
	order := doc["properties"].(map[string]any)["order"].(map[string]any)
	if order["type"] != "object" {
		t.Fatalf("order should be an implicit object, got %v", order["type"])
	}
	items := order["properties"].(map[string]any)["items"].(map[string]any)
	if items["type"] != "array" {
		t.Fatalf("items should be an array, got %v", items["type"])
	}
	elem := items["items"].(map[string]any)
	if diff := cmp.Diff([]string{"sku"}, elem["required"]); diff != "" {
		t.Fatalf("element required (-want +got):\n%s", diff)
	}
	note := doc["properties"].(map[string]any)["note"].(map[string]any)
	if diff := cmp.Diff([]string{"string", "null"}, note["type"]); diff != "" {
		t.Fatalf("nullable note type (-want +got):\n%s", diff)
	}
}

func TestSchemaRoundTrip(t *testing.T) {
	body := `{"comment":"some","flag":true,"count":1,"items":[{"sku":"a"}]}`
	fields := validated(t, body,
		types.Field("comment", "the comment").AsOptional(),
		types.Field("flag", "the flag"),
		types.Field("count", "the count"),
		types.Field("items[].sku", "sku"),
	)
	doc, err := Marshal(fields)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if !json.Valid(doc) {
		t.Fatalf("schema is not valid json:\n%s", doc)
	}
	if err := Validate(doc, []byte(body)); err != nil {
		t.Fatalf("example should conform to derived schema: %v", err)
	}
	if err := Validate(doc, []byte(`{"flag":"yes","count":1,"items":[]}`)); err == nil {
		t.Fatalf("expected wrong flag type to be rejected")
	}
	if err := Validate(doc, []byte(`{"comment":"c","items":[]}`)); err == nil {
		t.Fatalf("expected missing required fields to be rejected")
	}
}

func TestMarshalDeterministic(t *testing.T) {
	fields := validated(t, `{"b":1,"a":"x"}`, types.Field("b", "b"), types.Field("a", "a"))
	first, err := Marshal(fields)
	if err != nil {
		t.Fatal(err)
	}
	second, err := Marshal(fields)
	if err != nil {
		t.Fatal(err)
	}
	if string(first) != string(second) {
		t.Fatalf("schema output not stable:\n%s\n%s", first, second)
	}
}

func TestValidateAcceptsNull(t *testing.T) {
	body := `{"flag":null,"count":null}`
	fields := validated(t, body,
		types.Field("flag", "the flag"),
		types.Field("count", "the count").Typed(types.TypeInteger),
	)
	doc, err := Marshal(fields)
	if err != nil {
		t.Fatal(err)
	}
	if err := Validate(doc, []byte(body)); err != nil {
		t.Fatalf("null values should validate: %v", err)
	}
	if err := Validate(doc, []byte(`{"flag":true,"count":"x"}`)); err == nil {
		t.Fatalf("expected non-integer count to be rejected")
	}
}
