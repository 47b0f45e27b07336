package fragment

import (
	"bytes"
	"path"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/yourorg/ramldoc/internal/pathtmpl"
	"github.com/yourorg/ramldoc/pkg/types"
)

// LinksAnnotation carries link relations, which RAML has no native field for.
const LinksAnnotation = "(links)"

// Render emits the RAML text of res as seen from operation's directory.
// Files of other operations are referenced through their sibling directory.
func Render(res *types.ResourceFragment, operation string) ([]byte, error) {
	methods := SortedMethods(res)

	root := mapping()
	parent := root
	segments := res.Segments
	if len(segments) == 0 {
		segments = []string{""}
	}
	for i, seg := range segments {
		node := mapping()
		appendPair(parent, "/"+seg, node)
		if params := uriParameters(res, methods, seg); params != nil {
			appendPair(node, "uriParameters", params)
		}
		if i == len(segments)-1 {
			for _, m := range methods {
				appendPair(node, strings.ToLower(m), methodNode(res.Methods[m], operation))
			}
		}
		parent = node
	}

	var buf bytes.Buffer
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(root); err != nil {
		return nil, err
	}
	if err := enc.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func methodNode(mf *types.MethodFragment, operation string) *yaml.Node {
	n := mapping()
	desc := mf.Description
	if desc == "" {
		desc = mf.Operation
	}
	appendPair(n, "description", str(desc))
	if len(mf.Traits) > 0 {
		seq := &yaml.Node{Kind: yaml.SequenceNode, Style: yaml.FlowStyle}
		for _, t := range mf.Traits {
			seq.Content = append(seq.Content, str(t))
		}
		appendPair(n, "is", seq)
	}
	if len(mf.QueryParameters) > 0 {
		qp := mapping()
		for _, p := range mf.QueryParameters {
			appendPair(qp, p.Name, parameterNode(p))
		}
		appendPair(n, "queryParameters", qp)
	}
	if len(mf.Links) > 0 {
		links := mapping()
		for _, l := range mf.Links {
			ln := mapping()
			appendPair(ln, "description", str(l.Description))
			if l.Optional {
				appendPair(ln, "optional", &yaml.Node{Kind: yaml.ScalarNode, Tag: "!!bool", Value: "true"})
			}
			appendPair(links, l.Rel, ln)
		}
		appendPair(n, LinksAnnotation, links)
	}
	if mf.Request != nil {
		appendPair(n, "body", bodyNode(mf.Request, mf.Operation, operation))
	}
	resp := mapping()
	if mf.Response != nil {
		appendPair(resp, "body", bodyNode(mf.Response, mf.Operation, operation))
	}
	responses := mapping()
	appendPair(responses, strconv.Itoa(mf.StatusCode), resp)
	appendPair(n, "responses", responses)
	return n
}

func bodyNode(ref *types.BodyRef, owner, operation string) *yaml.Node {
	media := mapping()
	if ref.Schema != "" {
		appendPair(media, "type", include(fileRef(ref.Schema, owner, operation)))
	}
	appendPair(media, "example", include(fileRef(ref.Example, owner, operation)))
	body := mapping()
	appendPair(body, ref.ContentType, media)
	return body
}

func fileRef(name, owner, operation string) string {
	if owner == operation {
		return name
	}
	return path.Join("..", owner, name)
}

// uriParameters documents the tokens of seg. Descriptors come from the first
// method, in canonical order, that declares them.
func uriParameters(res *types.ResourceFragment, methods []string, seg string) *yaml.Node {
	tokens := pathtmpl.Tokens(seg)
	if len(tokens) == 0 {
		return nil
	}
	n := mapping()
	for _, tok := range tokens {
		p := types.ParameterDescriptor{Name: tok, Type: types.TypeString}
		for _, m := range methods {
			if d, ok := findParam(res.Methods[m].PathParameters, tok); ok {
				p = d
				break
			}
		}
		appendPair(n, tok, parameterNode(p))
	}
	return n
}

func findParam(params []types.ParameterDescriptor, name string) (types.ParameterDescriptor, bool) {
	for _, p := range params {
		if p.Name == name {
			return p, true
		}
	}
	return types.ParameterDescriptor{}, false
}

func parameterNode(p types.ParameterDescriptor) *yaml.Node {
	n := mapping()
	if p.Description != "" {
		appendPair(n, "description", str(p.Description))
	}
	t := p.Type
	if t == "" {
		t = types.TypeString
	}
	appendPair(n, "type", str(string(t)))
	return n
}

func mapping() *yaml.Node {
	return &yaml.Node{Kind: yaml.MappingNode}
}

func str(v string) *yaml.Node {
	return &yaml.Node{Kind: yaml.ScalarNode, Tag: "!!str", Value: v}
}

func include(file string) *yaml.Node {
	return &yaml.Node{Kind: yaml.ScalarNode, Tag: "!include", Value: file}
}

func appendPair(m *yaml.Node, key string, value *yaml.Node) {
	k := str(key)
	if _, err := strconv.Atoi(key); err == nil {
		k = &yaml.Node{Kind: yaml.ScalarNode, Tag: "!!int", Value: key}
	}
	m.Content = append(m.Content, k, value)
}
