package catalog

import (
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/yourorg/ramldoc/internal/config"
	"github.com/yourorg/ramldoc/internal/har"
	"github.com/yourorg/ramldoc/pkg/types"
)

func loadSample(t *testing.T) *Catalog {
	t.Helper()
	c, err := Load(filepath.Join("..", "..", "testdata", "catalog.yaml"))
	if err != nil {
		t.Fatalf("load catalog: %v", err)
	}
	return c
}

func TestLoad(t *testing.T) {
	c := loadSample(t)
	if c.Title != "Items API" || len(c.Operations) != 4 {
		t.Fatalf("unexpected catalog %+v", c)
	}
	create := c.Operations[0]
	if create.Method != "POST" {
		t.Fatalf("method should be upper-cased, got %s", create.Method)
	}
	if create.RequestFields[1].Type != types.TypeNumber {
		t.Fatalf("expected NUMBER to parse as number, got %q", create.RequestFields[1].Type)
	}
	if create.RequestFields[0].Type != "" {
		t.Fatalf("undeclared type must stay empty")
	}
}

func TestParseRejectsBadCatalogs(t *testing.T) {
	cases := map[string]string{
		"unknown key":  "operations:\n  - {name: a, method: GET, path: /a, colour: red}\n",
		"unknown type": "operations:\n  - name: a\n    method: GET\n    path: /a\n    response_fields:\n      - {path: x, description: x, type: date}\n",
		"no name":      "operations:\n  - {method: GET, path: /a}\n",
		"no method":    "operations:\n  - {name: a, path: /a}\n",
		"bad path":     "operations:\n  - {name: a, method: GET, path: a}\n",
		"duplicate":    "operations:\n  - {name: a, method: GET, path: /a}\n  - {name: a, method: PUT, path: /a}\n",
	}
	for name, doc := range cases {
		t.Run(name, func(t *testing.T) {
			if _, err := Parse([]byte(doc)); err == nil {
				t.Fatalf("expected error")
			}
		})
	}
	if c, err := Parse(nil); err != nil || len(c.Operations) != 0 {
		t.Fatalf("empty catalog should load, got %v", err)
	}
}

func TestBindAgainstRecording(t *testing.T) {
	c := loadSample(t)
	exs, err := har.Parse(filepath.Join("..", "..", "testdata", "sample.har"))
	if err != nil {
		t.Fatal(err)
	}
	b := c.Bind(exs, config.ValidationConfig{RelaxedRequest: true})

	var names []string
	for _, e := range b.Entries {
		names = append(names, e.Operation.Name)
	}
	if diff := cmp.Diff([]string{"create-item", "list-items", "get-item"}, names); diff != "" {
		t.Fatalf("bound entries (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]string{"delete-item"}, b.Missing); diff != "" {
		t.Fatalf("missing (-want +got):\n%s", diff)
	}
	if len(b.Unmatched) != 0 {
		t.Fatalf("expected every recording claimed, got %+v", b.Unmatched)
	}

	get := b.Entries[2]
	if get.Operation.PathTemplate != "/v1/items/{itemId}" {
		t.Fatalf("bound operation must take the template, got %s", get.Operation.PathTemplate)
	}
	if !get.Parameters.RelaxedResponse || !get.Parameters.RelaxedRequest {
		t.Fatalf("expected catalog and default relaxed flags, got %+v", get.Parameters)
	}
	if b.Entries[0].Parameters.RelaxedResponse {
		t.Fatalf("create-item should stay strict on responses")
	}
}

func TestBindStatusMustMatch(t *testing.T) {
	c := &Catalog{Operations: []Entry{{Name: "created", Method: "POST", Path: "/a", Status: 201}}}
	exs := []types.Exchange{{Operation: types.Operation{Method: "POST", PathTemplate: "/a", StatusCode: 400}}}
	b := c.Bind(exs, config.ValidationConfig{})
	if len(b.Entries) != 0 || len(b.Unmatched) != 1 || len(b.Missing) != 1 {
		t.Fatalf("status mismatch should not bind: %+v", b)
	}
}
