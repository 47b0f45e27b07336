package har

import (
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/yourorg/ramldoc/pkg/types"
)

func TestParseNormalHAR(t *testing.T) {
	exs, err := Parse(filepath.Join("..", "..", "testdata", "sample.har"))
	if err != nil {
		t.Fatal(err)
	}
	if len(exs) != 3 {
		t.Fatalf("expected 3 exchanges, got %d", len(exs))
	}
	for i, ex := range exs {
		if ex.Seq != i+1 {
			t.Fatalf("seq not assigned in time order: %+v", ex)
		}
	}
	first := exs[0].Operation
	if first.Method != "POST" || first.PathTemplate != "/v1/items" || first.StatusCode != 201 {
		t.Fatalf("expected POST first after sorting, got %+v", first)
	}
	if first.ResponseContentType() != "application/json" {
		t.Fatalf("mime type should fill missing content type, got %s", first.ResponseContentType())
	}
	list := exs[1]
	if list.Operation.Method != "GET" || len(list.Query["id"]) != 2 {
		t.Fatalf("expected multi-value query params, got %+v", list)
	}
	if list.Host != "api.example.com" {
		t.Fatalf("unexpected host %s", list.Host)
	}
}

func TestParseBase64Body(t *testing.T) {
	exs, err := Parse(filepath.Join("..", "..", "testdata", "base64-body.har"))
	if err != nil {
		t.Fatal(err)
	}
	if len(exs) != 1 {
		t.Fatalf("expected 1 exchange")
	}
	if exs[0].Operation.RequestBody != nil {
		t.Fatalf("binary request body should be dropped")
	}
	if string(exs[0].Operation.ResponseBody) != `{"ok":true}` {
		t.Fatalf("unexpected decoded response body: %s", exs[0].Operation.ResponseBody)
	}
}

func TestParseEmptyHAR(t *testing.T) {
	exs, err := Parse(filepath.Join("..", "..", "testdata", "empty.har"))
	if err != nil {
		t.Fatal(err)
	}
	if len(exs) != 0 {
		t.Fatalf("expected no exchanges")
	}
}

func TestParseErrors(t *testing.T) {
	if _, err := Parse(filepath.Join("..", "..", "testdata", "not-exist.har")); err == nil {
		t.Fatalf("expected error for missing file")
	}
	if _, err := Parse(filepath.Join("..", "..", "testdata", "malformed.har")); err == nil {
		t.Fatalf("expected error for malformed json")
	}
}

func TestAssignNames(t *testing.T) {
	exs := []types.Exchange{
		{Operation: types.Operation{Method: "GET", PathTemplate: "/v1/items"}},
		{Operation: types.Operation{Method: "GET", PathTemplate: "/v1/items/"}},
		{Operation: types.Operation{Name: "create", Method: "POST", PathTemplate: "/v1/items"}},
		{Operation: types.Operation{Method: "GET", PathTemplate: "/v1/items"}},
	}
	AssignNames(exs)
	var got []string
	for _, ex := range exs {
		got = append(got, ex.Operation.Name)
	}
	want := []string{"get-v1-items", "get-v1-items-2", "create", "get-v1-items-3"}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("names (-want +got):\n%s", diff)
	}
}
