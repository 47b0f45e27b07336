// Package pathtmpl turns URI templates into RAML resource paths.
package pathtmpl

import (
	"fmt"
	"regexp"
	"sort"
	"strings"

	"github.com/yourorg/ramldoc/pkg/types"
)

var tokenRe = regexp.MustCompile(`\{([^{}/]+)\}`)

// ResourcePath is a normalized template split into resource segments.
type ResourcePath struct {
	Path     string
	Segments []string
}

// UnmatchedPathParameterError lists template tokens without descriptors and
// descriptors without tokens.
type UnmatchedPathParameterError struct {
	Operation string
	Names     []string
}

func (e *UnmatchedPathParameterError) Error() string {
	return fmt.Sprintf("operation %s: path parameters not matching the template: %s", e.Operation, strings.Join(e.Names, ", "))
}

// Convert normalizes template and checks it against the path parameter
// descriptors. Parameters are only checked when descriptors were given or the
// template has tokens.
func Convert(operation, template string, params []types.ParameterDescriptor) (ResourcePath, error) {
	rp := Normalize(template)

	tokens := make(map[string]struct{})
	for _, seg := range rp.Segments {
		for _, m := range tokenRe.FindAllStringSubmatch(seg, -1) {
			tokens[tokenName(m[1])] = struct{}{}
		}
	}
	described := make(map[string]struct{}, len(params))
	for _, p := range params {
		described[p.Name] = struct{}{}
	}

	var unmatched []string
	for name := range tokens {
		if _, ok := described[name]; !ok {
			unmatched = append(unmatched, name)
		}
	}
	for name := range described {
		if _, ok := tokens[name]; !ok {
			unmatched = append(unmatched, name)
		}
	}
	if len(unmatched) > 0 {
		sort.Strings(unmatched)
		return rp, &UnmatchedPathParameterError{Operation: operation, Names: unmatched}
	}
	return rp, nil
}

// Normalize strips the query string and redundant slashes.
func Normalize(template string) ResourcePath {
	if i := strings.IndexByte(template, '?'); i >= 0 {
		template = template[:i]
	}
	var segs []string
	for _, s := range strings.Split(template, "/") {
		if s != "" {
			segs = append(segs, s)
		}
	}
	return ResourcePath{Path: "/" + strings.Join(segs, "/"), Segments: segs}
}

// Tokens returns the parameter names used in one segment.
func Tokens(segment string) []string {
	var out []string
	for _, m := range tokenRe.FindAllStringSubmatch(segment, -1) {
		out = append(out, tokenName(m[1]))
	}
	return out
}

// Match reports whether a concrete request path fits template.
func Match(template, concrete string) bool {
	tmpl := Normalize(template).Segments
	got := Normalize(concrete).Segments
	if len(tmpl) != len(got) {
		return false
	}
	for i, seg := range tmpl {
		if !segmentRegexp(seg).MatchString(got[i]) {
			return false
		}
	}
	return true
}

func segmentRegexp(seg string) *regexp.Regexp {
	var b strings.Builder
	b.WriteString("^")
	last := 0
	for _, loc := range tokenRe.FindAllStringIndex(seg, -1) {
		b.WriteString(regexp.QuoteMeta(seg[last:loc[0]]))
		b.WriteString("[^/]+")
		last = loc[1]
	}
	b.WriteString(regexp.QuoteMeta(seg[last:]))
	b.WriteString("$")
	return regexp.MustCompile(b.String())
}

// tokenName drops a "name:regex" constraint suffix.
func tokenName(tok string) string {
	if i := strings.IndexByte(tok, ':'); i >= 0 {
		return tok[:i]
	}
	return tok
}
