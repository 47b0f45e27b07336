// Package fragment assembles RAML resource fragments, example bodies and
// schemas from documented operations.
package fragment

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/tidwall/pretty"

	"github.com/yourorg/ramldoc/internal/pathtmpl"
	"github.com/yourorg/ramldoc/internal/payload"
	"github.com/yourorg/ramldoc/internal/schema"
	"github.com/yourorg/ramldoc/pkg/types"
)

// ResourceFile is the fragment file name inside an operation directory.
const ResourceFile = "resource.raml"

// Fragments accumulates resource fragments keyed by normalized path.
type Fragments map[string]*types.ResourceFragment

// File is one output file relative to the operation directory.
type File struct {
	Name string
	Data []byte
}

// Built is the per-operation result before merging. It holds no shared state.
type Built struct {
	Operation string
	Path      pathtmpl.ResourcePath
	Method    *types.MethodFragment
	Files     []File
}

// Output is what one operation contributes to a documentation run.
type Output struct {
	Operation string
	Path      string
	Method    *types.MethodFragment
	Files     []File
}

// Assemble documents op on top of acc. acc is not modified; the returned
// Fragments holds the merged state.
func Assemble(acc Fragments, op *types.Operation, params types.Parameters) (Fragments, *Output, error) {
	b, err := Build(op, params)
	if err != nil {
		return acc, nil, err
	}
	next := Merge(acc, b.Path, b.Method)
	out, err := Finish(next, b)
	if err != nil {
		return acc, nil, err
	}
	return next, out, nil
}

// Build validates op and produces its method fragment, examples and schemas.
func Build(op *types.Operation, params types.Parameters) (*Built, error) {
	if op == nil {
		return nil, errors.New("operation is nil")
	}
	if strings.TrimSpace(op.Name) == "" {
		return nil, errors.New("operation name is empty")
	}
	method := strings.ToUpper(strings.TrimSpace(op.Method))
	if method == "" {
		return nil, fmt.Errorf("operation %s: method is empty", op.Name)
	}

	rp, err := pathtmpl.Convert(op.Name, op.PathTemplate, params.PathParameters)
	if err != nil {
		return nil, err
	}
	if err := uniqueParams(op.Name, params.PathParameters); err != nil {
		return nil, err
	}
	if err := uniqueParams(op.Name, params.QueryParameters); err != nil {
		return nil, err
	}

	status := op.StatusCode
	if status == 0 {
		status = 200
	}
	mf := &types.MethodFragment{
		Method:          method,
		Operation:       op.Name,
		Description:     params.Description,
		Traits:          append([]string(nil), params.Traits...),
		PathParameters:  withDefaultType(params.PathParameters),
		QueryParameters: withDefaultType(params.QueryParameters),
		StatusCode:      status,
		Links:           append([]types.LinkDescriptor(nil), params.Links...),
	}
	b := &Built{Operation: op.Name, Path: rp, Method: mf}

	req, files, err := documentBody(op.Name, "request", op.RequestBody, op.RequestContentType(), params.RequestFields, payload.Options{
		Direction: "request",
		Relaxed:   params.RelaxedRequest,
	})
	if err != nil {
		return nil, err
	}
	mf.Request = req
	b.Files = append(b.Files, files...)

	resp, files, err := documentBody(op.Name, "response", op.ResponseBody, op.ResponseContentType(), params.ResponseFields, payload.Options{
		Direction: "response",
		Relaxed:   params.RelaxedResponse,
		Links:     params.Links,
	})
	if err != nil {
		return nil, err
	}
	mf.Response = resp
	b.Files = append(b.Files, files...)
	return b, nil
}

func documentBody(operation, direction string, body []byte, contentType string, fields []types.FieldDescriptor, opts payload.Options) (*types.BodyRef, []File, error) {
	if len(bytes.TrimSpace(body)) == 0 {
		if len(fields) > 0 {
			return nil, nil, &payload.InvalidBodyError{Operation: operation, Direction: direction, Err: errors.New("body is empty")}
		}
		for _, l := range opts.Links {
			if !l.Optional {
				return nil, nil, &payload.MissingFieldError{Operation: operation, Path: "_links." + l.Rel}
			}
		}
		return nil, nil, nil
	}

	ref := &types.BodyRef{ContentType: contentType, Example: fmt.Sprintf("%s-%s.json", operation, direction)}
	files := []File{{Name: ref.Example, Data: exampleBytes(body)}}

	if len(fields) == 0 {
		if len(opts.Links) > 0 && json.Valid(body) {
			opts.Relaxed = true
			if _, err := payload.Validate(operation, body, nil, opts); err != nil {
				return nil, nil, err
			}
		}
		return ref, files, nil
	}

	vf, err := payload.Validate(operation, body, fields, opts)
	if err != nil {
		return nil, nil, err
	}
	doc, err := schema.Marshal(vf.Fields)
	if err != nil {
		return nil, nil, err
	}
	ref.Schema = fmt.Sprintf("%s-%s-schema.json", operation, direction)
	files = append(files, File{Name: ref.Schema, Data: doc})
	return ref, files, nil
}

// exampleBytes pretty prints JSON keeping the original key order. Other
// payloads are written verbatim.
func exampleBytes(body []byte) []byte {
	if !json.Valid(body) {
		return append([]byte(nil), body...)
	}
	return pretty.Pretty(body)
}

func uniqueParams(operation string, params []types.ParameterDescriptor) error {
	seen := make(map[string]struct{}, len(params))
	for _, p := range params {
		if _, ok := seen[p.Name]; ok {
			return &payload.DuplicateDescriptorError{Operation: operation, Name: p.Name}
		}
		seen[p.Name] = struct{}{}
	}
	return nil
}

func withDefaultType(params []types.ParameterDescriptor) []types.ParameterDescriptor {
	if len(params) == 0 {
		return nil
	}
	out := make([]types.ParameterDescriptor, len(params))
	for i, p := range params {
		if p.Type == "" {
			p.Type = types.TypeString
		}
		out[i] = p
	}
	return out
}

// Merge returns a copy of acc with mf set on its path. A method documented
// twice keeps the later fragment.
func Merge(acc Fragments, rp pathtmpl.ResourcePath, mf *types.MethodFragment) Fragments {
	next := make(Fragments, len(acc)+1)
	for k, v := range acc {
		next[k] = v
	}
	res := &types.ResourceFragment{
		Path:     rp.Path,
		Segments: append([]string(nil), rp.Segments...),
		Methods:  make(map[string]*types.MethodFragment),
	}
	if prev, ok := acc[rp.Path]; ok {
		for m, f := range prev.Methods {
			res.Methods[m] = f
		}
	}
	res.Methods[mf.Method] = mf
	next[rp.Path] = res
	return next
}

// Finish renders the merged fragment of b's path and returns the complete
// file set for b's operation directory.
func Finish(acc Fragments, b *Built) (*Output, error) {
	res, ok := acc[b.Path.Path]
	if !ok {
		return nil, fmt.Errorf("operation %s: no fragment for %s", b.Operation, b.Path.Path)
	}
	raml, err := Render(res, b.Operation)
	if err != nil {
		return nil, fmt.Errorf("operation %s: render fragment: %w", b.Operation, err)
	}
	files := append(append([]File(nil), b.Files...), File{Name: ResourceFile, Data: raml})
	return &Output{Operation: b.Operation, Path: b.Path.Path, Method: b.Method, Files: files}, nil
}

var methodOrder = map[string]int{"GET": 0, "HEAD": 1, "POST": 2, "PUT": 3, "PATCH": 4, "DELETE": 5, "OPTIONS": 6}

// SortedMethods lists the methods of res in canonical order.
func SortedMethods(res *types.ResourceFragment) []string {
	out := make([]string, 0, len(res.Methods))
	for m := range res.Methods {
		out = append(out, m)
	}
	sort.Slice(out, func(i, j int) bool {
		oi, iok := methodOrder[out[i]]
		oj, jok := methodOrder[out[j]]
		switch {
		case iok && jok:
			return oi < oj
		case iok != jok:
			return iok
		}
		return out[i] < out[j]
	})
	return out
}
