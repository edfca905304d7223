package templaterender

import (
	"fmt"
	"regexp"
	"strings"
)

var placeholder = regexp.MustCompile(`\{\{\s*([A-Za-z0-9_.\-]+)\s*\}\}`)

// RenderString substitutes {{name}} placeholders from data. Unknown names render as "".
// Dotted names walk nested maps.
func RenderString(src string, data map[string]any) string {
	if src == "" {
		return ""
	}
	return placeholder.ReplaceAllStringFunc(src, func(m string) string {
		name := placeholder.FindStringSubmatch(m)[1]
		v, ok := lookup(data, name)
		if !ok || v == nil {
			return ""
		}
		return fmt.Sprint(v)
	})
}

func lookup(data map[string]any, name string) (any, bool) {
	if v, ok := data[name]; ok {
		return v, true
	}
	parts := strings.Split(name, ".")
	var cur any = data
	for _, p := range parts {
		m, ok := cur.(map[string]any)
		if !ok {
			return nil, false
		}
		cur, ok = m[p]
		if !ok {
			return nil, false
		}
	}
	return cur, true
}
