// Package catalog reads descriptor catalogs and binds their operations to
// recorded traffic.
package catalog

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/yourorg/ramldoc/internal/config"
	"github.com/yourorg/ramldoc/internal/generator"
	"github.com/yourorg/ramldoc/internal/pathtmpl"
	"github.com/yourorg/ramldoc/pkg/types"
)

// Entry describes one operation. Status 0 matches any recorded status.
type Entry struct {
	Name            string                      `yaml:"name"`
	Method          string                      `yaml:"method"`
	Path            string                      `yaml:"path"`
	Status          int                         `yaml:"status"`
	Description     string                      `yaml:"description"`
	Traits          []string                    `yaml:"traits"`
	RequestFields   []types.FieldDescriptor     `yaml:"request_fields"`
	ResponseFields  []types.FieldDescriptor     `yaml:"response_fields"`
	PathParameters  []types.ParameterDescriptor `yaml:"path_parameters"`
	QueryParameters []types.ParameterDescriptor `yaml:"query_parameters"`
	Links           []types.LinkDescriptor      `yaml:"links"`
	RelaxedRequest  *bool                       `yaml:"relaxed_request"`
	RelaxedResponse *bool                       `yaml:"relaxed_response"`
}

// Parameters resolves the entry's descriptors; unset relaxed flags fall back
// to defaults.
func (e Entry) Parameters(defaults config.ValidationConfig) types.Parameters {
	p := types.Parameters{
		Description:     e.Description,
		Traits:          e.Traits,
		RequestFields:   e.RequestFields,
		ResponseFields:  e.ResponseFields,
		PathParameters:  e.PathParameters,
		QueryParameters: e.QueryParameters,
		Links:           e.Links,
		RelaxedRequest:  defaults.RelaxedRequest,
		RelaxedResponse: defaults.RelaxedResponse,
	}
	if e.RelaxedRequest != nil {
		p.RelaxedRequest = *e.RelaxedRequest
	}
	if e.RelaxedResponse != nil {
		p.RelaxedResponse = *e.RelaxedResponse
	}
	return p
}

type Catalog struct {
	Title      string  `yaml:"title"`
	Operations []Entry `yaml:"operations"`
}

// Load reads a catalog file. Unknown keys are rejected.
func Load(path string) (*Catalog, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return Parse(data)
}

func Parse(data []byte) (*Catalog, error) {
	var c Catalog
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&c); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("parse catalog: %w", err)
	}
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return &c, nil
}

func (c *Catalog) Validate() error {
	seen := make(map[string]struct{}, len(c.Operations))
	for i := range c.Operations {
		e := &c.Operations[i]
		e.Method = strings.ToUpper(strings.TrimSpace(e.Method))
		switch {
		case strings.TrimSpace(e.Name) == "":
			return fmt.Errorf("catalog operation %d: name is empty", i+1)
		case e.Method == "":
			return fmt.Errorf("catalog operation %s: method is empty", e.Name)
		case !strings.HasPrefix(e.Path, "/"):
			return fmt.Errorf("catalog operation %s: path must start with /", e.Name)
		}
		if _, dup := seen[e.Name]; dup {
			return fmt.Errorf("catalog operation %s: duplicate name", e.Name)
		}
		seen[e.Name] = struct{}{}
	}
	return nil
}

// Binding is the outcome of matching a catalog against recorded traffic.
type Binding struct {
	Entries []generator.Entry
	// Missing lists catalog operations without a recording.
	Missing []string
	// Unmatched holds recordings no catalog operation claimed.
	Unmatched []types.Exchange
}

// Bind gives each catalog operation the first unclaimed recording with the
// same method, a path fitting its template and, when set, the same status.
// The bound operation takes the catalog name and path template.
func (c *Catalog) Bind(exs []types.Exchange, defaults config.ValidationConfig) *Binding {
	b := &Binding{}
	claimed := make([]bool, len(exs))
	for _, e := range c.Operations {
		found := -1
		for i, ex := range exs {
			if claimed[i] || !matches(e, ex.Operation) {
				continue
			}
			found = i
			break
		}
		if found < 0 {
			b.Missing = append(b.Missing, e.Name)
			continue
		}
		claimed[found] = true
		op := exs[found].Operation
		op.Name = e.Name
		op.PathTemplate = e.Path
		b.Entries = append(b.Entries, generator.Entry{Operation: op, Parameters: e.Parameters(defaults)})
	}
	for i, ex := range exs {
		if !claimed[i] {
			b.Unmatched = append(b.Unmatched, ex)
		}
	}
	return b
}

func matches(e Entry, op types.Operation) bool {
	if !strings.EqualFold(e.Method, op.Method) {
		return false
	}
	if e.Status != 0 && e.Status != op.StatusCode {
		return false
	}
	return pathtmpl.Match(e.Path, op.PathTemplate)
}
