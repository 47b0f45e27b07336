package har

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/url"
	"os"
	"regexp"
	"sort"
	"strings"
	"time"

	"github.com/yourorg/ramldoc/pkg/types"
)

type HARFile struct {
	Log struct {
		Entries []Entry `json:"entries"`
	} `json:"log"`
}

type header struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

type Entry struct {
	StartedDateTime string  `json:"startedDateTime"`
	Time            float64 `json:"time"`
	Request         struct {
		Method   string   `json:"method"`
		URL      string   `json:"url"`
		Headers  []header `json:"headers"`
		PostData struct {
			MimeType string `json:"mimeType"`
			Text     string `json:"text"`
			Encoding string `json:"encoding"`
		} `json:"postData"`
	} `json:"request"`
	Response struct {
		Status  int      `json:"status"`
		Headers []header `json:"headers"`
		Content struct {
			MimeType string `json:"mimeType"`
			Text     string `json:"text"`
			Encoding string `json:"encoding"`
		} `json:"content"`
	} `json:"response"`
}

// Parse reads a HAR file into exchanges ordered by start time. Operations
// carry the concrete request path and no name.
func Parse(filePath string) ([]types.Exchange, error) {
	data, err := os.ReadFile(filePath)
	if err != nil {
		return nil, err
	}
	var hf HARFile
	if err := json.Unmarshal(data, &hf); err != nil {
		return nil, fmt.Errorf("decode har: %w", err)
	}
	out := make([]types.Exchange, 0, len(hf.Log.Entries))
	for _, e := range hf.Log.Entries {
		ts, err := time.Parse(time.RFC3339Nano, e.StartedDateTime)
		if err != nil {
			return nil, fmt.Errorf("parse startedDateTime: %w", err)
		}
		u, err := url.Parse(e.Request.URL)
		if err != nil {
			return nil, fmt.Errorf("parse request url: %w", err)
		}
		reqHeaders := headerMap(e.Request.Headers, e.Request.PostData.MimeType)
		respHeaders := headerMap(e.Response.Headers, e.Response.Content.MimeType)

		path := u.Path
		if path == "" {
			path = "/"
		}
		out = append(out, types.Exchange{
			Timestamp: ts,
			Host:      u.Host,
			Query:     u.Query(),
			LatencyMs: int64(e.Time),
			CallCount: 1,
			Operation: types.Operation{
				Method:          strings.ToUpper(e.Request.Method),
				PathTemplate:    path,
				RequestHeaders:  reqHeaders,
				RequestBody:     decodeBody(e.Request.PostData.Text, e.Request.PostData.Encoding, e.Request.PostData.MimeType),
				StatusCode:      e.Response.Status,
				ResponseHeaders: respHeaders,
				ResponseBody:    decodeBody(e.Response.Content.Text, e.Response.Content.Encoding, e.Response.Content.MimeType),
			},
		})
	}

	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Timestamp.Before(out[j].Timestamp)
	})
	for i := range out {
		out[i].Seq = i + 1
	}
	return out, nil
}

// headerMap flattens HAR headers; the body mime type fills in a missing
// Content-Type.
func headerMap(hs []header, mimeType string) map[string]string {
	m := make(map[string]string, len(hs)+1)
	hasType := false
	for _, h := range hs {
		m[h.Name] = h.Value
		if strings.EqualFold(h.Name, "Content-Type") {
			hasType = true
		}
	}
	if !hasType && mimeType != "" {
		m["Content-Type"] = mimeType
	}
	return m
}

func decodeBody(text, encoding, mimeType string) []byte {
	if text == "" || isBinaryContentType(mimeType) {
		return nil
	}
	if strings.EqualFold(encoding, "base64") {
		decoded, err := base64.StdEncoding.DecodeString(text)
		if err != nil {
			return nil
		}
		return decoded
	}
	return []byte(text)
}

func isBinaryContentType(mimeType string) bool {
	mt := strings.ToLower(mimeType)
	return strings.HasPrefix(mt, "image/") || strings.HasPrefix(mt, "audio/") || strings.HasPrefix(mt, "video/") || mt == "application/octet-stream"
}

var nonSlug = regexp.MustCompile(`[^a-z0-9]+`)

// AssignNames names unnamed operations after method and path. Repeated names
// get a numeric suffix.
func AssignNames(exchanges []types.Exchange) {
	used := make(map[string]int)
	for i := range exchanges {
		if exchanges[i].Operation.Name != "" {
			used[exchanges[i].Operation.Name]++
		}
	}
	for i := range exchanges {
		op := &exchanges[i].Operation
		if op.Name != "" {
			continue
		}
		base := strings.Trim(nonSlug.ReplaceAllString(strings.ToLower(op.Method+" "+op.PathTemplate), "-"), "-")
		name := base
		for n := 2; used[name] > 0; n++ {
			name = fmt.Sprintf("%s-%d", base, n)
		}
		used[name]++
		op.Name = name
	}
}
