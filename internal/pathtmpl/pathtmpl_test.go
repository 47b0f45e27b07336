package pathtmpl

import (
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/yourorg/ramldoc/pkg/types"
)

func TestConvertMatchingParameters(t *testing.T) {
	rp, err := Convert("op", "/some/{someId}/other/{otherId}", []types.ParameterDescriptor{
		types.Param("someId", "some id", types.TypeString),
		types.Param("otherId", "other id", types.TypeInteger),
	})
	if err != nil {
		t.Fatalf("convert: %v", err)
	}
	want := []string{"some", "{someId}", "other", "{otherId}"}
	if diff := cmp.Diff(want, rp.Segments); diff != "" {
		t.Fatalf("segments (-want +got):\n%s", diff)
	}
	if rp.Path != "/some/{someId}/other/{otherId}" {
		t.Fatalf("unexpected path %s", rp.Path)
	}
}

func TestConvertUnmatchedParameters(t *testing.T) {
	_, err := Convert("op", "/some/{someId}/other/{otherId}", []types.ParameterDescriptor{
		types.Param("someId", "some id", types.TypeString),
	})
	var unmatched *UnmatchedPathParameterError
	if !errors.As(err, &unmatched) {
		t.Fatalf("expected UnmatchedPathParameterError, got %v", err)
	}
	if diff := cmp.Diff([]string{"otherId"}, unmatched.Names); diff != "" {
		t.Fatalf("names (-want +got):\n%s", diff)
	}

	_, err = Convert("op", "/some", []types.ParameterDescriptor{types.Param("ghost", "", "")})
	if !errors.As(err, &unmatched) || unmatched.Names[0] != "ghost" {
		t.Fatalf("expected ghost reported, got %v", err)
	}
}

func TestNormalize(t *testing.T) {
	rp := Normalize("//items//{id}/?page=1")
	if rp.Path != "/items/{id}" {
		t.Fatalf("unexpected path %s", rp.Path)
	}
	if rp := Normalize("/"); rp.Path != "/" || len(rp.Segments) != 0 {
		t.Fatalf("unexpected root %+v", rp)
	}
}

func TestMatch(t *testing.T) {
	cases := []struct {
		tmpl, path string
		want       bool
	}{
		{"/some/{someId}/other/{otherId}", "/some/id/other/1", true},
		{"/some/{someId}", "/some/id/other", false},
		{"/files/{name}.json", "/files/report.json", true},
		{"/files/{name}.json", "/files/report.xml", false},
		{"/users", "/users?page=2", true},
	}
	for _, tc := range cases {
		if got := Match(tc.tmpl, tc.path); got != tc.want {
			t.Fatalf("Match(%q, %q) = %v", tc.tmpl, tc.path, got)
		}
	}
}
