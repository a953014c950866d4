// Package template implements the {{dotted.path}} substitution mini-language
// used for receipt descriptions, relay payload transforms and field-path
// extraction from webhook payloads.
package template

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strings"
)

var variablePattern = regexp.MustCompile(`\{\{\s*([a-zA-Z0-9_.]+)\s*\}\}`)

// Lookup walks a dotted path through nested maps. Missing intermediate keys
// return def instead of failing.
func Lookup(payload map[string]any, path string, def any) any {
	var current any = payload
	for _, part := range strings.Split(path, ".") {
		node, ok := current.(map[string]any)
		if !ok {
			return def
		}
		value, ok := node[part]
		if !ok {
			return def
		}
		current = value
	}
	return current
}

// BuildContext assembles the rendering context for a payment event from the
// store's configured field paths. The full payload stays reachable under
// "payload" so templates can address arbitrary fields.
func BuildContext(payload map[string]any, paymentIDPath, amountPath, customerNamePath string) map[string]any {
	event, _ := payload["event"].(string)
	return map[string]any{
		"payment_id":    Lookup(payload, paymentIDPath, ""),
		"amount":        Lookup(payload, amountPath, nil),
		"customer_name": Lookup(payload, customerNamePath, ""),
		"event":         event,
		"payload":       payload,
	}
}

// Render substitutes {{dotted.path}} tokens against ctx. Unresolved paths
// render as empty string; structured values render as compact JSON.
func Render(source string, ctx map[string]any) string {
	return variablePattern.ReplaceAllStringFunc(source, func(token string) string {
		path := variablePattern.FindStringSubmatch(token)[1]

		var current any = ctx
		for _, part := range strings.Split(path, ".") {
			node, ok := current.(map[string]any)
			if !ok {
				return ""
			}
			value, ok := node[part]
			if !ok {
				return ""
			}
			current = value
		}
		return stringify(current)
	})
}

func stringify(value any) string {
	switch v := value.(type) {
	case nil:
		return ""
	case string:
		return v
	case map[string]any, []any:
		encoded, err := json.Marshal(v)
		if err != nil {
			return ""
		}
		return string(encoded)
	case float64:
		// json numbers decode as float64; render integers without a fraction
		if v == float64(int64(v)) {
			return fmt.Sprintf("%d", int64(v))
		}
		return fmt.Sprintf("%v", v)
	default:
		return fmt.Sprintf("%v", v)
	}
}
