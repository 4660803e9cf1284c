package output

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"
)

// ToSexp converts any JSON-serializable value to an s-expression
// suitable for editor ingestion: objects become alists with kebab-case
// keys, arrays become lists, booleans become t/nil.
func ToSexp(v any) (string, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return "", fmt.Errorf("failed to encode result: %w", err)
	}
	var decoded any
	if err := json.Unmarshal(raw, &decoded); err != nil {
		return "", fmt.Errorf("failed to decode result: %w", err)
	}
	return jsonToSexp(decoded), nil
}

func jsonToSexp(v any) string {
	switch val := v.(type) {
	case nil:
		return "nil"
	case bool:
		if val {
			return "t"
		}
		return "nil"
	case json.Number:
		return val.String()
	case float64:
		if val == float64(int64(val)) {
			return fmt.Sprintf("%d", int64(val))
		}
		return fmt.Sprintf("%g", val)
	case string:
		return `"` + escapeSexpString(val) + `"`
	case []any:
		items := make([]string, len(val))
		for i, item := range val {
			items[i] = jsonToSexp(item)
		}
		return "(" + strings.Join(items, " ") + ")"
	case map[string]any:
		keys := make([]string, 0, len(val))
		for k := range val {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		var b strings.Builder
		b.WriteByte('(')
		for i, k := range keys {
			if i > 0 {
				b.WriteString("\n ")
			}
			// snake_case to kebab-case, per elisp convention
			fmt.Fprintf(&b, "(%s . %s)", strings.ReplaceAll(k, "_", "-"), jsonToSexp(val[k]))
		}
		b.WriteByte(')')
		return b.String()
	}
	return "nil"
}

func escapeSexpString(s string) string {
	r := strings.NewReplacer(
		`\`, `\\`,
		`"`, `\"`,
		"\n", `\n`,
		"\r", `\r`,
		"\t", `\t`,
	)
	return r.Replace(s)
}
