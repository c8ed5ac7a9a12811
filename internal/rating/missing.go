package rating

import "strings"

// MissingParameters returns the expected codes that have no value in values,
// in expected order. Blank values count as missing. The result is never nil.
func MissingParameters(expected []string, values map[string]string) []string {
	missing := []string{}
	for _, code := range expected {
		if strings.TrimSpace(values[code]) == "" {
			missing = append(missing, code)
		}
	}
	return missing
}
