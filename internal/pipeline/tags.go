package pipeline

import "strings"

// NormalizeTags lowercases tags, replaces whitespace with hyphens, trims
// empty entries and deduplicates while preserving first-seen order. The
// "::" hierarchy separator is kept intact.
func NormalizeTags(groups ...[]string) []string {
	seen := make(map[string]struct{})
	var out []string
	for _, group := range groups {
		for _, tag := range group {
			normalized := normalizeTag(tag)
			if normalized == "" {
				continue
			}
			if _, ok := seen[normalized]; ok {
				continue
			}
			seen[normalized] = struct{}{}
			out = append(out, normalized)
		}
	}
	return out
}

func normalizeTag(tag string) string {
	tag = strings.ToLower(strings.TrimSpace(tag))
	// Normalize each hierarchy level independently so "A B::C D" becomes
	// "a-b::c-d" rather than hyphenating the separator.
	levels := strings.Split(tag, "::")
	for i, level := range levels {
		levels[i] = strings.Join(strings.Fields(level), "-")
	}
	tag = strings.Join(levels, "::")
	return strings.Trim(tag, ":-")
}
