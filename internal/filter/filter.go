// Package filter narrows a recording down to the exchanges worth documenting.
package filter

import (
	"mime"
	"net/url"
	"path"
	"sort"
	"strconv"
	"strings"

	"github.com/yourorg/ramldoc/internal/config"
	"github.com/yourorg/ramldoc/internal/pathtmpl"
	"github.com/yourorg/ramldoc/pkg/types"
)

// FilterConfig is an alias of config.FilterConfig.
type FilterConfig = config.FilterConfig

// Apply drops exchanges that are not API calls and reduces repeated calls
// to one sample each. A server error is only kept when its request never
// got another answer.
func Apply(exs []types.Exchange, cfg FilterConfig) []types.Exchange {
	r := compile(cfg)
	kept := make([]types.Exchange, 0, len(exs))
	for _, ex := range exs {
		if !r.skip(&ex.Operation) {
			kept = append(kept, ex)
		}
	}
	return samples(dropServerErrors(kept))
}

type rules struct {
	exts         map[string]struct{}
	contentTypes []string
	prefixes     []string
}

func compile(cfg FilterConfig) *rules {
	r := &rules{exts: make(map[string]struct{}, len(cfg.IgnoreExtensions))}
	for _, e := range cfg.IgnoreExtensions {
		if e = strings.ToLower(strings.TrimSpace(e)); e != "" {
			r.exts[e] = struct{}{}
		}
	}
	for _, ct := range cfg.IgnoreContentTypes {
		if ct = strings.ToLower(strings.TrimSpace(ct)); ct != "" {
			r.contentTypes = append(r.contentTypes, ct)
		}
	}
	for _, p := range cfg.IgnorePaths {
		if p = strings.TrimSpace(p); p != "" {
			r.prefixes = append(r.prefixes, p)
		}
	}
	return r
}

func (r *rules) skip(op *types.Operation) bool {
	if strings.EqualFold(op.Method, "OPTIONS") {
		return true
	}
	// Normalize drops trailing slashes; "/static/" must still match "/static".
	p := pathtmpl.Normalize(op.PathTemplate).Path
	if _, ok := r.exts[strings.ToLower(path.Ext(p))]; ok {
		return true
	}
	for _, pref := range r.prefixes {
		if strings.HasPrefix(p+"/", pref) || strings.HasPrefix(p, pref) {
			return true
		}
	}
	return r.ignoredType(responseType(op))
}

// ignoredType matches the media type against patterns such as "image/*".
func (r *rules) ignoredType(ct string) bool {
	if strings.TrimSpace(ct) == "" {
		return false
	}
	base, _, err := mime.ParseMediaType(ct)
	if err != nil {
		base = strings.ToLower(strings.TrimSpace(strings.Split(ct, ";")[0]))
	}
	for _, pattern := range r.contentTypes {
		if ok, _ := path.Match(pattern, base); ok {
			return true
		}
	}
	return false
}

// responseType is the raw Content-Type; an absent header matches nothing.
func responseType(op *types.Operation) string {
	for k, v := range op.ResponseHeaders {
		if strings.EqualFold(k, "Content-Type") {
			return v
		}
	}
	return ""
}

// dropServerErrors removes 5xx exchanges of requests that also have a
// non-5xx answer in the recording.
func dropServerErrors(exs []types.Exchange) []types.Exchange {
	answered := make(map[string]bool)
	for _, ex := range exs {
		if !is5xx(ex.Operation.StatusCode) {
			answered[requestKey(ex)] = true
		}
	}
	out := make([]types.Exchange, 0, len(exs))
	for _, ex := range exs {
		if is5xx(ex.Operation.StatusCode) && answered[requestKey(ex)] {
			continue
		}
		out = append(out, ex)
	}
	return out
}

// samples keeps one exchange per request and status class, summing call
// counts. The first exchange with a response body wins over earlier empty
// ones, since only a body yields an example.
func samples(exs []types.Exchange) []types.Exchange {
	out := make([]types.Exchange, 0, len(exs))
	index := make(map[string]int, len(exs))
	for _, ex := range exs {
		calls := max(ex.CallCount, 1)
		key := requestKey(ex) + " " + statusClass(ex.Operation.StatusCode)
		idx, ok := index[key]
		if !ok {
			ex.CallCount = calls
			index[key] = len(out)
			out = append(out, ex)
			continue
		}
		calls += out[idx].CallCount
		if len(out[idx].Operation.ResponseBody) == 0 && len(ex.Operation.ResponseBody) > 0 {
			out[idx] = ex
		}
		out[idx].CallCount = calls
	}
	return out
}

func is5xx(code int) bool {
	return code >= 500 && code <= 599
}

func statusClass(code int) string {
	if code == 0 {
		return "2xx"
	}
	return strconv.Itoa(code/100) + "xx"
}

// requestKey identifies a request by method, normalized path and query.
func requestKey(ex types.Exchange) string {
	return strings.ToUpper(ex.Operation.Method) + " " + pathtmpl.Normalize(ex.Operation.PathTemplate).Path + "?" + canonicalQuery(ex.Query)
}

// canonicalQuery encodes the query with keys and values sorted.
func canonicalQuery(q map[string][]string) string {
	vals := make(url.Values, len(q))
	for k, v := range q {
		sorted := append([]string(nil), v...)
		sort.Strings(sorted)
		vals[k] = sorted
	}
	return vals.Encode()
}
