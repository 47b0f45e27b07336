package types

import "strings"

// RAMLType is a RAML scalar or structural type. The zero value means the
// type was not declared and is inferred from the payload.
type RAMLType string

const (
	TypeString  RAMLType = "string"
	TypeInteger RAMLType = "integer"
	TypeNumber  RAMLType = "number"
	TypeBoolean RAMLType = "boolean"
	TypeObject  RAMLType = "object"
	TypeArray   RAMLType = "array"
)

// ParseRAMLType accepts case-insensitive type names. Unknown names return false.
func ParseRAMLType(s string) (RAMLType, bool) {
	switch t := RAMLType(strings.ToLower(strings.TrimSpace(s))); t {
	case "":
		return "", true
	case TypeString, TypeInteger, TypeNumber, TypeBoolean, TypeObject, TypeArray:
		return t, true
	}
	return "", false
}

// UnmarshalYAML lets descriptor catalogs spell types as STRING or string.
func (t *RAMLType) UnmarshalYAML(unmarshal func(any) error) error {
	var s string
	if err := unmarshal(&s); err != nil {
		return err
	}
	parsed, ok := ParseRAMLType(s)
	if !ok {
		return &UnknownTypeError{Name: s}
	}
	*t = parsed
	return nil
}

// UnmarshalText is used by encoding/json.
func (t *RAMLType) UnmarshalText(b []byte) error {
	parsed, ok := ParseRAMLType(string(b))
	if !ok {
		return &UnknownTypeError{Name: string(b)}
	}
	*t = parsed
	return nil
}

type UnknownTypeError struct {
	Name string
}

func (e *UnknownTypeError) Error() string {
	return "unknown raml type " + e.Name
}

// Operation is one recorded request/response exchange.
type Operation struct {
	Name            string            `json:"name"`
	Method          string            `json:"method"`
	PathTemplate    string            `json:"path"`
	RequestHeaders  map[string]string `json:"request_headers,omitempty"`
	RequestBody     []byte            `json:"request_body,omitempty"`
	StatusCode      int               `json:"status_code"`
	ResponseHeaders map[string]string `json:"response_headers,omitempty"`
	ResponseBody    []byte            `json:"response_body,omitempty"`
}

// RequestContentType returns the request media type without parameters.
func (o *Operation) RequestContentType() string {
	return mediaType(o.RequestHeaders)
}

// ResponseContentType returns the response media type without parameters.
func (o *Operation) ResponseContentType() string {
	return mediaType(o.ResponseHeaders)
}

func mediaType(headers map[string]string) string {
	for k, v := range headers {
		if strings.EqualFold(k, "Content-Type") {
			mt := strings.TrimSpace(strings.Split(v, ";")[0])
			if mt != "" {
				return strings.ToLower(mt)
			}
		}
	}
	return "application/json"
}

// FieldDescriptor documents one JSON field addressed by Path.
type FieldDescriptor struct {
	Path        string   `json:"path" yaml:"path"`
	Description string   `json:"description" yaml:"description"`
	Type        RAMLType `json:"type,omitempty" yaml:"type"`
	Optional    bool     `json:"optional,omitempty" yaml:"optional"`
	Ignored     bool     `json:"ignored,omitempty" yaml:"ignored"`
}

// Field starts a field descriptor.
func Field(path, description string) FieldDescriptor {
	return FieldDescriptor{Path: path, Description: description}
}

func (f FieldDescriptor) AsOptional() FieldDescriptor {
	f.Optional = true
	return f
}

func (f FieldDescriptor) AsIgnored() FieldDescriptor {
	f.Ignored = true
	return f
}

func (f FieldDescriptor) Typed(t RAMLType) FieldDescriptor {
	f.Type = t
	return f
}

// ParameterDescriptor documents a path or query parameter.
type ParameterDescriptor struct {
	Name        string   `json:"name" yaml:"name"`
	Description string   `json:"description" yaml:"description"`
	Type        RAMLType `json:"type,omitempty" yaml:"type"`
}

func Param(name, description string, t RAMLType) ParameterDescriptor {
	return ParameterDescriptor{Name: name, Description: description, Type: t}
}

// LinkDescriptor documents a hypermedia link relation.
type LinkDescriptor struct {
	Rel         string `json:"rel" yaml:"rel"`
	Description string `json:"description" yaml:"description"`
	Optional    bool   `json:"optional,omitempty" yaml:"optional"`
}

func Link(rel, description string) LinkDescriptor {
	return LinkDescriptor{Rel: rel, Description: description}
}

func (l LinkDescriptor) AsOptional() LinkDescriptor {
	l.Optional = true
	return l
}

// Parameters configures documentation of one operation.
type Parameters struct {
	Description     string                `json:"description,omitempty" yaml:"description"`
	Traits          []string              `json:"traits,omitempty" yaml:"traits"`
	RequestFields   []FieldDescriptor     `json:"request_fields,omitempty" yaml:"request_fields"`
	ResponseFields  []FieldDescriptor     `json:"response_fields,omitempty" yaml:"response_fields"`
	PathParameters  []ParameterDescriptor `json:"path_parameters,omitempty" yaml:"path_parameters"`
	QueryParameters []ParameterDescriptor `json:"query_parameters,omitempty" yaml:"query_parameters"`
	Links           []LinkDescriptor      `json:"links,omitempty" yaml:"links"`
	RelaxedRequest  bool                  `json:"relaxed_request,omitempty" yaml:"relaxed_request"`
	RelaxedResponse bool                  `json:"relaxed_response,omitempty" yaml:"relaxed_response"`
}
