// Package schema derives JSON-Schema documents from checked field descriptors.
package schema

import (
	"encoding/json"
	"fmt"

	"github.com/getkin/kin-openapi/openapi3"
	"github.com/tidwall/pretty"

	"github.com/yourorg/ramldoc/internal/payload"
	"github.com/yourorg/ramldoc/pkg/types"
)

const draft04 = "http://json-schema.org/draft-04/schema#"

type node struct {
	typ         types.RAMLType
	description string
	nullable    bool
	explicit    bool
	optional    bool
	keys        []string
	props       map[string]*node
	items       *node
}

func (n *node) child(key string) *node {
	if n.props == nil {
		n.props = make(map[string]*node)
	}
	c, ok := n.props[key]
	if !ok {
		c = &node{}
		n.props[key] = c
		n.keys = append(n.keys, key)
	}
	return c
}

// Derive builds the schema tree of one body from its fields. Nested paths
// create intermediate objects and arrays.
func Derive(fields []payload.Field) (map[string]any, error) {
	root := &node{explicit: true}
	for _, f := range fields {
		segs, err := payload.ParsePath(f.Path)
		if err != nil {
			return nil, fmt.Errorf("derive schema for %q: %w", f.Path, err)
		}
		cur := root
		for _, s := range segs {
			if s.Array {
				if cur.typ == "" {
					cur.typ = types.TypeArray
				}
				if cur.items == nil {
					cur.items = &node{}
				}
				cur = cur.items
				continue
			}
			if cur.typ == "" {
				cur.typ = types.TypeObject
			}
			cur = cur.child(s.Key)
		}
		if f.Type != "" {
			cur.typ = f.Type
		}
		cur.description = f.Descriptor.Description
		cur.nullable = cur.nullable || f.Nullable
		cur.optional = f.Descriptor.Optional
		cur.explicit = true
	}
	if root.typ == "" {
		root.typ = types.TypeObject
	}
	out := root.emit()
	out["$schema"] = draft04
	return out, nil
}

// Marshal derives and pretty prints a schema document.
func Marshal(fields []payload.Field) ([]byte, error) {
	doc, err := Derive(fields)
	if err != nil {
		return nil, err
	}
	raw, err := json.Marshal(doc)
	if err != nil {
		return nil, err
	}
	return pretty.Pretty(raw), nil
}

func (n *node) required() bool {
	if n.explicit {
		return !n.optional
	}
	for _, c := range n.props {
		if c.required() {
			return true
		}
	}
	return n.items != nil && n.items.required()
}

func (n *node) emit() map[string]any {
	out := map[string]any{}
	switch {
	case n.typ != "" && n.nullable:
		out["type"] = []string{string(n.typ), "null"}
	case n.typ != "":
		out["type"] = string(n.typ)
	}
	if n.description != "" {
		out["description"] = n.description
	}
	if len(n.keys) > 0 {
		props := make(map[string]any, len(n.keys))
		var required []string
		for _, k := range n.keys {
			c := n.props[k]
			props[k] = c.emit()
			if c.required() {
				required = append(required, k)
			}
		}
		out["properties"] = props
		if len(required) > 0 {
			out["required"] = required
		}
	}
	if n.items != nil {
		out["items"] = n.items.emit()
	}
	return out
}

// Validate checks a JSON document against a schema produced by Marshal.
func Validate(schemaDoc, body []byte) error {
	var raw map[string]any
	if err := json.Unmarshal(schemaDoc, &raw); err != nil {
		return fmt.Errorf("decode schema: %w", err)
	}
	delete(raw, "$schema")
	b, err := json.Marshal(toOpenAPI(raw))
	if err != nil {
		return err
	}
	var s openapi3.Schema
	if err := json.Unmarshal(b, &s); err != nil {
		return fmt.Errorf("load schema: %w", err)
	}
	var v any
	if err := json.Unmarshal(body, &v); err != nil {
		return fmt.Errorf("decode example: %w", err)
	}
	return s.VisitJSON(v)
}

// toOpenAPI rewrites draft-04 null handling into the nullable flag the
// openapi3 validator understands. An untyped schema accepts null.
func toOpenAPI(s map[string]any) map[string]any {
	switch t := s["type"].(type) {
	case nil:
		s["nullable"] = true
	case []any:
		var rest []any
		for _, v := range t {
			if v == "null" {
				s["nullable"] = true
				continue
			}
			rest = append(rest, v)
		}
		if len(rest) == 1 {
			s["type"] = rest[0]
		} else {
			s["type"] = rest
		}
	}
	if props, ok := s["properties"].(map[string]any); ok {
		for k, p := range props {
			if m, ok := p.(map[string]any); ok {
				props[k] = toOpenAPI(m)
			}
		}
	}
	if items, ok := s["items"].(map[string]any); ok {
		s["items"] = toOpenAPI(items)
	}
	return s
}
