package generator

import (
	"github.com/yourorg/ramldoc/internal/fragment"
)

// PathGroup holds the built operations of one resource path.
type PathGroup struct {
	Path  string
	Built []*fragment.Built
}

// GroupByPath groups built operations by normalized resource path, keeping
// the order in which paths first appear.
func GroupByPath(built []*fragment.Built) []PathGroup {
	if len(built) == 0 {
		return nil
	}
	idx := make(map[string]int)
	var out []PathGroup
	for _, b := range built {
		if b == nil {
			continue
		}
		i, ok := idx[b.Path.Path]
		if !ok {
			i = len(out)
			idx[b.Path.Path] = i
			out = append(out, PathGroup{Path: b.Path.Path})
		}
		out[i].Built = append(out[i].Built, b)
	}
	return out
}
