package payload

import (
	"errors"
	"strings"
)

// Segment is one step of a field path: a mapping key or "every element".
type Segment struct {
	Key   string
	Array bool
}

// ParsePath splits "a.b", "a[].b", "a[]" and "['dotted.key']" paths.
func ParsePath(p string) ([]Segment, error) {
	if strings.TrimSpace(p) == "" {
		return nil, errors.New("empty path")
	}
	var segs []Segment
	var key strings.Builder
	flush := func() {
		if key.Len() > 0 {
			segs = append(segs, Segment{Key: key.String()})
			key.Reset()
		}
	}
	for i := 0; i < len(p); i++ {
		switch c := p[i]; c {
		case '.':
			if i == 0 || i == len(p)-1 || p[i-1] == '.' {
				return nil, errors.New("empty segment")
			}
			flush()
		case '[':
			flush()
			switch {
			case strings.HasPrefix(p[i:], "[]"):
				segs = append(segs, Segment{Array: true})
				i++
			case strings.HasPrefix(p[i:], "['"):
				end := strings.Index(p[i+2:], "']")
				if end < 0 {
					return nil, errors.New("unterminated bracket key")
				}
				segs = append(segs, Segment{Key: p[i+2 : i+2+end]})
				i += end + 3
			default:
				return nil, errors.New("unsupported bracket expression")
			}
		default:
			key.WriteByte(c)
		}
	}
	flush()
	return segs, nil
}

// FormatPath renders segments in canonical form.
func FormatPath(segs []Segment) string {
	p := ""
	for _, s := range segs {
		if s.Array {
			p = arrayChild(p)
			continue
		}
		p = keyChild(p, s.Key)
	}
	return p
}

// CanonicalPath normalizes a descriptor path, e.g. "a['b']" becomes "a.b".
func CanonicalPath(p string) (string, error) {
	segs, err := ParsePath(p)
	if err != nil {
		return "", err
	}
	return FormatPath(segs), nil
}

func keyChild(parent, key string) string {
	if strings.ContainsAny(key, ".[]'") || key == "" {
		return parent + "['" + key + "']"
	}
	if parent == "" {
		return key
	}
	return parent + "." + key
}

func arrayChild(parent string) string {
	return parent + "[]"
}

// isDescendant reports whether child lies strictly below parent.
func isDescendant(child, parent string) bool {
	if parent == "" {
		return child != ""
	}
	if !strings.HasPrefix(child, parent) || len(child) == len(parent) {
		return false
	}
	next := child[len(parent)]
	return next == '.' || next == '['
}
