package normalize

import (
	"strings"
	"unicode"
)

// trademark and copyright marks stripped from business names
var markStripper = strings.NewReplacer(
	"™", "", // ™
	"®", "", // ®
	"©", "", // ©
	"℠", "", // ℠
)

// NormalizeBusinessName canonicalizes a business name for matching:
// lowercase, trademark marks and punctuation stripped, whitespace
// collapsed. Letters, combining marks, digits, spaces, hyphens, and
// apostrophes from any script are preserved.
func NormalizeBusinessName(name string) (string, bool) {
	s := markStripper.Replace(name)
	s = strings.ToLower(s)

	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		switch {
		case unicode.IsLetter(r) || unicode.IsMark(r) || unicode.IsDigit(r):
			b.WriteRune(r)
		case r == ' ' || r == '\t' || r == '\n':
			b.WriteRune(' ')
		case r == '-' || r == '\'':
			b.WriteRune(r)
		}
	}

	out := strings.Join(strings.Fields(b.String()), " ")
	if out == "" {
		return "", false
	}
	return out, true
}
