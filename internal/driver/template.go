package driver

import (
	"fmt"
	"strings"
)

// renderTemplate substitutes every ${name} occurrence in text with the
// stringified value of vars[name]. Unknown names are left as-is; there is no
// escaping and no expression evaluation inside the braces.
func renderTemplate(text string, vars map[string]any) string {
	if !strings.Contains(text, "${") {
		return text
	}
	var b strings.Builder
	for {
		start := strings.Index(text, "${")
		if start == -1 {
			b.WriteString(text)
			break
		}
		end := strings.Index(text[start:], "}")
		if end == -1 {
			b.WriteString(text)
			break
		}
		end += start
		b.WriteString(text[:start])
		name := text[start+2 : end]
		if v, ok := vars[name]; ok {
			b.WriteString(stringify(v))
		} else {
			b.WriteString(text[start : end+1])
		}
		text = text[end+1:]
	}
	return b.String()
}

func stringify(v any) string {
	switch t := v.(type) {
	case string:
		return t
	case fmt.Stringer:
		return t.String()
	default:
		return fmt.Sprintf("%v", t)
	}
}
