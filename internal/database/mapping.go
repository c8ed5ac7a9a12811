package database

import (
	"bytes"
	"encoding/json"
	"strings"
	"unicode"
)

// SnakeCase converts a camelCase key to snake_case: "stressLabel" becomes
// "stress_label".
func SnakeCase(s string) string {
	var sb strings.Builder
	sb.Grow(len(s) + 4)
	for i, r := range s {
		if unicode.IsUpper(r) {
			if i > 0 {
				sb.WriteByte('_')
			}
			sb.WriteRune(unicode.ToLower(r))
			continue
		}
		sb.WriteRune(r)
	}
	return sb.String()
}

// CamelCase converts a snake_case key to camelCase. It is the inverse of
// SnakeCase for keys that start with a lower-case letter.
func CamelCase(s string) string {
	var sb strings.Builder
	sb.Grow(len(s))
	upper := false
	for _, r := range s {
		if r == '_' {
			upper = true
			continue
		}
		if upper {
			sb.WriteRune(unicode.ToUpper(r))
			upper = false
			continue
		}
		sb.WriteRune(r)
	}
	return sb.String()
}

// encodeDocument marshals v and rewrites every object key with SnakeCase.
func encodeDocument(v any) (string, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return "", err
	}
	out, err := rewriteKeys(data, SnakeCase)
	if err != nil {
		return "", err
	}
	return string(out), nil
}

// decodeDocument rewrites every object key with CamelCase and unmarshals the
// result into v.
func decodeDocument(doc string, v any) error {
	if strings.TrimSpace(doc) == "" {
		return nil
	}
	data, err := rewriteKeys([]byte(doc), CamelCase)
	if err != nil {
		return err
	}
	return json.Unmarshal(data, v)
}

func rewriteKeys(data []byte, conv func(string) string) ([]byte, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	// numbers stay json.Number so bound literals survive unchanged
	dec.UseNumber()
	var doc any
	if err := dec.Decode(&doc); err != nil {
		return nil, err
	}
	return json.Marshal(convertKeys(doc, conv))
}

func convertKeys(v any, conv func(string) string) any {
	switch t := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(t))
		for k, val := range t {
			out[conv(k)] = convertKeys(val, conv)
		}
		return out
	case []any:
		for i := range t {
			t[i] = convertKeys(t[i], conv)
		}
		return t
	default:
		return v
	}
}
