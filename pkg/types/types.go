package types

import "time"

// ResourceFragment is every documented method of one normalized path.
type ResourceFragment struct {
	Path     string                     `json:"path"`
	Segments []string                   `json:"segments"`
	Methods  map[string]*MethodFragment `json:"methods"`
}

// MethodFragment documents one HTTP method of a resource.
type MethodFragment struct {
	Method          string                `json:"method"`
	Operation       string                `json:"operation"`
	Description     string                `json:"description,omitempty"`
	Traits          []string              `json:"traits,omitempty"`
	PathParameters  []ParameterDescriptor `json:"path_parameters,omitempty"`
	QueryParameters []ParameterDescriptor `json:"query_parameters,omitempty"`
	Request         *BodyRef              `json:"request,omitempty"`
	StatusCode      int                   `json:"status_code"`
	Response        *BodyRef              `json:"response,omitempty"`
	Links           []LinkDescriptor      `json:"links,omitempty"`
}

// BodyRef points at the example and, when fields were documented, the schema
// file of one body direction. Paths are relative to the fragment file.
type BodyRef struct {
	ContentType string `json:"content_type"`
	Example     string `json:"example"`
	Schema      string `json:"schema,omitempty"`
}

// Run records one documentation run.
type Run struct {
	ID            string    `json:"id"`
	Source        string    `json:"source"`
	Title         string    `json:"title"`
	OutputDir     string    `json:"output_dir"`
	FragmentCount int       `json:"fragment_count"`
	Status        string    `json:"status"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}

// Exchange is an operation captured in a traffic recording.
type Exchange struct {
	Seq       int                 `json:"seq"`
	Timestamp time.Time           `json:"timestamp"`
	Host      string              `json:"host"`
	Query     map[string][]string `json:"query,omitempty"`
	LatencyMs int64               `json:"latency_ms"`
	CallCount int                 `json:"call_count"`
	Operation Operation           `json:"operation"`
}
