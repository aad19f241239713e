package textutil

import (
	"strings"
	"unicode"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// foldReplacer covers letters that do not decompose into an ASCII base.
var foldReplacer = strings.NewReplacer(
	"ß", "ss",
	"Æ", "AE", "æ", "ae",
	"Ø", "O", "ø", "o",
	"Œ", "OE", "œ", "oe",
	"Đ", "D", "đ", "d",
	"Ł", "L", "ł", "l",
	"Þ", "Th", "þ", "th",
	"‘", "'", "’", "'",
	"“", "\"", "”", "\"",
	"–", "-", "—", "-",
	"…", "...",
)

// ToASCII folds s to printable ASCII: accents are stripped, a few ligatures
// are spelled out and anything else outside ASCII is dropped.
func ToASCII(s string) string {
	if isASCII(s) {
		return s
	}
	s = foldReplacer.Replace(s)
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	folded, _, err := transform.String(t, s)
	if err != nil {
		folded = s
	}
	return strings.Map(func(r rune) rune {
		if r > unicode.MaxASCII {
			return -1
		}
		return r
	}, folded)
}

// FoldIf applies ToASCII when enabled.
func FoldIf(enabled bool, s string) string {
	if !enabled {
		return s
	}
	return ToASCII(s)
}

func isASCII(s string) bool {
	for i := 0; i < len(s); i++ {
		if s[i] > unicode.MaxASCII {
			return false
		}
	}
	return true
}

// Title returns s in title case ("SUCCEEDED" -> "Succeeded").
func Title(s string) string {
	return cases.Title(language.English).String(strings.ToLower(s))
}
