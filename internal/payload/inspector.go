package payload

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"math/big"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/yourorg/ramldoc/pkg/types"
)

const linksKey = "_links"

// Options tunes validation of one body.
type Options struct {
	// Direction names the body in errors, "request" or "response".
	Direction string
	// Relaxed disables the undocumented-field check.
	Relaxed bool
	// Links, when set, are checked against a HAL "_links" object.
	Links []types.LinkDescriptor
}

// Field is a descriptor after it was checked against the payload.
type Field struct {
	Descriptor types.FieldDescriptor
	// Path is the canonical form of Descriptor.Path.
	Path string
	// Type is the declared type, else the inferred one. Empty when every
	// observed value was null or the field was absent.
	Type     types.RAMLType
	Nullable bool
	Present  bool
}

// ValidatedFields holds checked descriptors in declaration order.
// Ignored descriptors are left out.
type ValidatedFields struct {
	Fields []Field
}

// Validate checks descriptors against a JSON body.
func Validate(operation string, body []byte, descriptors []types.FieldDescriptor, opts Options) (*ValidatedFields, error) {
	if opts.Direction == "" {
		opts.Direction = "response"
	}
	root, err := Decode(body)
	if err != nil {
		return nil, &InvalidBodyError{Operation: operation, Direction: opts.Direction, Err: err}
	}

	canonical := make([]string, len(descriptors))
	seen := make(map[string]struct{}, len(descriptors))
	for i, d := range descriptors {
		p, err := CanonicalPath(d.Path)
		if err != nil {
			return nil, &PathSyntaxError{Operation: operation, Path: d.Path, Reason: err.Error()}
		}
		if _, dup := seen[p]; dup {
			return nil, &DuplicateDescriptorError{Operation: operation, Name: p}
		}
		seen[p] = struct{}{}
		canonical[i] = p
	}

	out := &ValidatedFields{}
	for i, d := range descriptors {
		if d.Ignored {
			continue
		}
		segs, _ := ParsePath(canonical[i])
		matches, missing := resolve(root, segs)
		if missing && !d.Optional {
			return nil, &MissingFieldError{Operation: operation, Path: canonical[i]}
		}
		f := Field{Descriptor: d, Path: canonical[i], Type: d.Type, Present: len(matches) > 0}
		inferred := types.RAMLType("")
		for _, n := range matches {
			t, isNull := typeOf(n)
			if isNull {
				f.Nullable = true
				continue
			}
			if d.Type != "" {
				if !compatible(d.Type, t) {
					return nil, &TypeMismatchError{Operation: operation, Path: canonical[i], Declared: d.Type, Inferred: t}
				}
				continue
			}
			switch {
			case inferred == "":
				inferred = t
			case inferred == t:
			case isNumeric(inferred) && isNumeric(t):
				inferred = types.TypeNumber
			default:
				return nil, &TypeMismatchError{Operation: operation, Path: canonical[i], Declared: inferred, Inferred: t}
			}
		}
		if f.Type == "" {
			f.Type = inferred
		}
		out.Fields = append(out.Fields, f)
	}

	covered := opaquePaths(descriptors, canonical)
	if len(opts.Links) > 0 {
		if err := validateLinks(operation, root, opts); err != nil {
			return nil, err
		}
		if root.Kind == yaml.MappingNode {
			covered[keyChild("", linksKey)] = struct{}{}
		}
	}
	if !opts.Relaxed {
		if p, ok := firstUndocumented(root, "", seen, covered); ok {
			return nil, &UndocumentedFieldError{Operation: operation, Path: p}
		}
	}
	return out, nil
}

// Decode parses a JSON document into an order-preserving node tree. Scalars
// carry the tag typeOf reads: numbers with an integral value are !!int.
func Decode(body []byte) (*yaml.Node, error) {
	if !json.Valid(body) {
		return nil, errors.New("malformed json")
	}
	dec := json.NewDecoder(bytes.NewReader(body))
	dec.UseNumber()
	return decodeValue(dec)
}

func decodeValue(dec *json.Decoder) (*yaml.Node, error) {
	tok, err := dec.Token()
	if err != nil {
		return nil, err
	}
	switch v := tok.(type) {
	case json.Delim:
		n := &yaml.Node{Kind: yaml.MappingNode, Tag: "!!map"}
		if v == '[' {
			n = &yaml.Node{Kind: yaml.SequenceNode, Tag: "!!seq"}
		}
		for dec.More() {
			if n.Kind == yaml.MappingNode {
				key, err := dec.Token()
				if err != nil {
					return nil, err
				}
				n.Content = append(n.Content, scalar("!!str", key.(string)))
			}
			child, err := decodeValue(dec)
			if err != nil {
				return nil, err
			}
			n.Content = append(n.Content, child)
		}
		// closing delimiter
		if _, err := dec.Token(); err != nil {
			return nil, err
		}
		return n, nil
	case string:
		return scalar("!!str", v), nil
	case json.Number:
		if integral(v) {
			return scalar("!!int", v.String()), nil
		}
		return scalar("!!float", v.String()), nil
	case bool:
		return scalar("!!bool", strconv.FormatBool(v)), nil
	case nil:
		return scalar("!!null", "null"), nil
	}
	return nil, fmt.Errorf("unexpected json token %v", tok)
}

func scalar(tag, value string) *yaml.Node {
	return &yaml.Node{Kind: yaml.ScalarNode, Tag: tag, Value: value}
}

// integral reports whether a JSON number has no fractional part, whatever
// its size or notation (1e3, 2.0).
func integral(num json.Number) bool {
	r, ok := new(big.Rat).SetString(num.String())
	return ok && r.IsInt()
}

// resolve returns the nodes a path selects. missing is set when any branch
// lacks the path, including empty arrays.
func resolve(root *yaml.Node, segs []Segment) (matches []*yaml.Node, missing bool) {
	current := []*yaml.Node{root}
	for _, s := range segs {
		var next []*yaml.Node
		for _, n := range current {
			if s.Array {
				if n.Kind != yaml.SequenceNode || len(n.Content) == 0 {
					missing = true
					continue
				}
				next = append(next, n.Content...)
				continue
			}
			child := lookup(n, s.Key)
			if child == nil {
				missing = true
				continue
			}
			next = append(next, child)
		}
		current = next
	}
	return current, missing
}

func lookup(n *yaml.Node, key string) *yaml.Node {
	if n.Kind != yaml.MappingNode {
		return nil
	}
	for i := 0; i+1 < len(n.Content); i += 2 {
		if n.Content[i].Value == key {
			return n.Content[i+1]
		}
	}
	return nil
}

func typeOf(n *yaml.Node) (t types.RAMLType, isNull bool) {
	switch n.Kind {
	case yaml.MappingNode:
		return types.TypeObject, false
	case yaml.SequenceNode:
		return types.TypeArray, false
	}
	switch n.ShortTag() {
	case "!!null":
		return "", true
	case "!!bool":
		return types.TypeBoolean, false
	case "!!int":
		return types.TypeInteger, false
	case "!!float":
		return types.TypeNumber, false
	}
	return types.TypeString, false
}

func isNumeric(t types.RAMLType) bool {
	return t == types.TypeInteger || t == types.TypeNumber
}

// compatible allows integral values for fields declared as number.
func compatible(declared, inferred types.RAMLType) bool {
	return declared == inferred || (declared == types.TypeNumber && inferred == types.TypeInteger)
}

// opaquePaths returns paths whose whole subtree counts as documented:
// ignored descriptors and descriptors without described descendants.
func opaquePaths(descriptors []types.FieldDescriptor, canonical []string) map[string]struct{} {
	out := make(map[string]struct{})
	for i, d := range descriptors {
		if d.Ignored {
			out[canonical[i]] = struct{}{}
			continue
		}
		leaf := true
		for j := range canonical {
			if j != i && isDescendant(canonical[j], canonical[i]) {
				leaf = false
				break
			}
		}
		if leaf {
			out[canonical[i]] = struct{}{}
		}
	}
	return out
}

func firstUndocumented(n *yaml.Node, path string, documented, covered map[string]struct{}) (string, bool) {
	if _, ok := covered[path]; ok && path != "" {
		return "", false
	}
	if path != "" {
		if _, ok := documented[path]; !ok && !hasDescendant(documented, path) {
			return path, true
		}
	}
	switch n.Kind {
	case yaml.MappingNode:
		for i := 0; i+1 < len(n.Content); i += 2 {
			if p, ok := firstUndocumented(n.Content[i+1], keyChild(path, n.Content[i].Value), documented, covered); ok {
				return p, true
			}
		}
	case yaml.SequenceNode:
		for _, el := range n.Content {
			if p, ok := firstUndocumented(el, arrayChild(path), documented, covered); ok {
				return p, true
			}
		}
	}
	return "", false
}

func hasDescendant(documented map[string]struct{}, path string) bool {
	for p := range documented {
		if isDescendant(p, path) {
			return true
		}
	}
	return false
}

func validateLinks(operation string, root *yaml.Node, opts Options) error {
	links := lookup(root, linksKey)
	described := make(map[string]struct{}, len(opts.Links))
	for _, l := range opts.Links {
		if _, dup := described[l.Rel]; dup {
			return &DuplicateDescriptorError{Operation: operation, Name: l.Rel}
		}
		described[l.Rel] = struct{}{}
		if l.Optional {
			continue
		}
		if links == nil || lookup(links, l.Rel) == nil {
			return &MissingFieldError{Operation: operation, Path: keyChild(linksKey, l.Rel)}
		}
	}
	if links == nil || links.Kind != yaml.MappingNode || opts.Relaxed {
		return nil
	}
	for i := 0; i+1 < len(links.Content); i += 2 {
		rel := links.Content[i].Value
		if _, ok := described[rel]; !ok && !strings.HasPrefix(rel, "curies") {
			return &UndocumentedFieldError{Operation: operation, Path: keyChild(linksKey, rel)}
		}
	}
	return nil
}
