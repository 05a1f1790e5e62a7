package provider

import "strings"

// Uncategorized is the fallback category name for unknown codes.
const Uncategorized = "Uncategorized"

// CategoryMapping maps a provider's category vocabulary to internal
// category names. Lookup is case-insensitive on the code.
type CategoryMapping map[string]string

// Map returns the internal category name for a provider code. Unknown or
// empty codes map to Uncategorized.
func (m CategoryMapping) Map(code string) string {
	code = strings.ToLower(strings.TrimSpace(code))
	if code == "" {
		return Uncategorized
	}
	if name, ok := m[code]; ok {
		return name
	}
	return Uncategorized
}
