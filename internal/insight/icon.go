package insight

import (
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

var iconKeywords = []struct {
	icon     string
	keywords []string
}{
	{IconPrayer, []string{"oracion", "orar"}},
	{IconFasting, []string{"ayuno"}},
	{IconBible, []string{"capitulo", "biblia", "bible"}},
	{IconOffering, []string{"ofrenda"}},
}

// Icon picks an icon by keyword match on a field's label and key.
func Icon(kind Kind, label, key string) string {
	haystack := Fold(label) + " " + Fold(key)
	for _, k := range iconKeywords {
		for _, w := range k.keywords {
			if strings.Contains(haystack, w) {
				return k.icon
			}
		}
	}
	if kind == Min {
		return IconWarning
	}
	return IconTrophy
}

// Fold lower-cases s and strips combining marks ("Oración" becomes "oracion").
func Fold(s string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	out, _, err := transform.String(t, s)
	if err != nil {
		return strings.ToLower(s)
	}
	return strings.ToLower(out)
}
