package subjects

import "strings"

// NormalizeTargets splits entries on commas and newlines, trims them and drops
// empty and case-insensitive duplicate names. First spelling wins.
func NormalizeTargets(raw []string) []string {
	out := make([]string, 0, len(raw))
	seen := make(map[string]struct{}, len(raw))
	for _, entry := range raw {
		parts := strings.FieldsFunc(entry, func(r rune) bool {
			return r == ',' || r == '\n' || r == '\r'
		})
		for _, part := range parts {
			name := strings.Join(strings.Fields(part), " ")
			if name == "" {
				continue
			}
			key := strings.ToLower(name)
			if _, ok := seen[key]; ok {
				continue
			}
			seen[key] = struct{}{}
			out = append(out, name)
		}
	}
	return out
}
