package domain

import "strings"

// foldReplacer maps Turkish and Latin-Extended letters to their closest ASCII
// letter. Uppercase İ must be handled before lowercasing: strings.ToLower
// turns it into "i̇" (with a combining dot).
var foldReplacer = strings.NewReplacer(
	"İ", "i", "I", "i", "ı", "i",
	"Ş", "s", "ş", "s",
	"Ğ", "g", "ğ", "g",
	"Ü", "u", "ü", "u",
	"Ö", "o", "ö", "o",
	"Ç", "c", "ç", "c",
)

// NormalizeText returns the canonical matching form of s: folded to ASCII
// letters, lowercased and trimmed. It is idempotent.
func NormalizeText(s string) string {
	if s == "" {
		return ""
	}
	return strings.TrimSpace(strings.ToLower(foldReplacer.Replace(s)))
}

// NormalizeAll normalizes each value and drops empty results and duplicates,
// keeping first-seen order.
func NormalizeAll(values ...string) []string {
	out := make([]string, 0, len(values))
	seen := make(map[string]struct{}, len(values))
	for _, v := range values {
		n := NormalizeText(v)
		if n == "" {
			continue
		}
		if _, ok := seen[n]; ok {
			continue
		}
		seen[n] = struct{}{}
		out = append(out, n)
	}
	return out
}
