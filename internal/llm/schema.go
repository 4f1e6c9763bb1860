package llm

import (
	"fmt"
)

// Schema is a JSON-Schema subset: object/array/string/number/boolean/null
// types, "required", "properties", "items", "maxItems", and "uniqueItems".
// It exists because every schema in this system is small and fixed at
// compile time — a full JSON-Schema library would buy generality this
// system never uses.
type Schema map[string]any

// Validate checks data (already json.Unmarshal'd into map[string]any /
// []any / primitives) against schema. It catches the sizing hints
// (maxItems, uniqueItems) and required-key gaps that a typed
// json.Unmarshal into a Go struct wouldn't enforce on its own.
func Validate(schema Schema, data any) error {
	return validateNode(schema, data, "$")
}

func validateNode(schema Schema, data any, path string) error {
	if schema == nil {
		return nil
	}

	if typ, ok := schema["type"].(string); ok {
		if err := checkType(typ, data, path); err != nil {
			return err
		}
	}

	switch typ, _ := schema["type"].(string); typ {
	case "object":
		obj, ok := data.(map[string]any)
		if !ok {
			if data == nil {
				return nil
			}
			return fmt.Errorf("%s: expected object", path)
		}
		if required, ok := schema["required"].([]any); ok {
			for _, r := range required {
				key, _ := r.(string)
				if _, present := obj[key]; !present {
					return fmt.Errorf("%s: missing required field %q", path, key)
				}
			}
		}
		if props, ok := schema["properties"].(map[string]any); ok {
			for key, sub := range props {
				subSchema, _ := sub.(Schema)
				if subSchema == nil {
					if m, ok := sub.(map[string]any); ok {
						subSchema = Schema(m)
					}
				}
				if subSchema == nil {
					continue
				}
				if val, present := obj[key]; present {
					if err := validateNode(subSchema, val, path+"."+key); err != nil {
						return err
					}
				}
			}
		}
	case "array":
		arr, ok := data.([]any)
		if !ok {
			if data == nil {
				return nil
			}
			return fmt.Errorf("%s: expected array", path)
		}
		if maxItems, ok := numeric(schema["maxItems"]); ok && len(arr) > int(maxItems) {
			return fmt.Errorf("%s: %d items exceeds maxItems %d", path, len(arr), int(maxItems))
		}
		if unique, ok := schema["uniqueItems"].(bool); ok && unique {
			seen := make(map[string]bool, len(arr))
			for _, item := range arr {
				key := fmt.Sprintf("%v", item)
				if seen[key] {
					return fmt.Errorf("%s: duplicate item %v violates uniqueItems", path, item)
				}
				seen[key] = true
			}
		}
		if itemsRaw, ok := schema["items"]; ok {
			var itemSchema Schema
			if s, ok := itemsRaw.(Schema); ok {
				itemSchema = s
			} else if m, ok := itemsRaw.(map[string]any); ok {
				itemSchema = Schema(m)
			}
			if itemSchema != nil {
				for i, item := range arr {
					if err := validateNode(itemSchema, item, fmt.Sprintf("%s[%d]", path, i)); err != nil {
						return err
					}
				}
			}
		}
	}

	return nil
}

func checkType(typ string, data any, path string) error {
	if data == nil {
		return nil
	}
	ok := true
	switch typ {
	case "object":
		_, ok = data.(map[string]any)
	case "array":
		_, ok = data.([]any)
	case "string":
		_, ok = data.(string)
	case "number", "integer":
		_, ok = numeric(data)
	case "boolean":
		_, ok = data.(bool)
	}
	if !ok {
		return fmt.Errorf("%s: expected type %s", path, typ)
	}
	return nil
}

func numeric(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	}
	return 0, false
}
