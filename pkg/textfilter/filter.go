// Package textfilter softens generated narration for tales that carry a
// family content rating. Model output is filtered after generation; the
// rating guidance is also injected into prompts, but models drift.
package textfilter

import (
	"regexp"
	"strings"
	"unicode"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// Common US English swear words that should be filtered for PG13 and lower content
var swearWords = []string{
	"fuck", "shit", "damn", "hell", "ass", "bitch", "bastard", "crap",
	"piss", "cock", "dick", "pussy", "tits", "boobs", "whore", "slut",
	"fag", "retard", "nigger", "nigga", "spic", "chink", "kike",
	"motherfucker", "goddamn", "jesus christ", "christ", "asshole",
	"dumbass", "jackass", "smartass", "badass", "bullshit", "horseshit",
	"dipshit", "shithead", "dickhead", "prick", "douche", "douchebag",
}

// replacements maps each swear word to a family-friendly alternative.
var replacements = map[string]string{
	"fuck":         "fudge",
	"shit":         "shoot",
	"damn":         "dang",
	"hell":         "heck",
	"ass":          "butt",
	"bitch":        "jerk",
	"bastard":      "jerk",
	"crap":         "crud",
	"piss":         "ticked",
	"cock":         "[censored]",
	"dick":         "jerk",
	"pussy":        "[censored]",
	"tits":         "[censored]",
	"boobs":        "[censored]",
	"whore":        "[censored]",
	"slut":         "[censored]",
	"fag":          "[censored]",
	"retard":       "[censored]",
	"nigger":       "[censored]",
	"nigga":        "[censored]",
	"spic":         "[censored]",
	"chink":        "[censored]",
	"kike":         "[censored]",
	"motherfucker": "mother-trucker",
	"goddamn":      "gosh-dang",
	"jesus christ": "jeez",
	"christ":       "crikey",
	"asshole":      "jerk",
	"dumbass":      "dummy",
	"jackass":      "jerk",
	"smartass":     "smarty",
	"badass":       "tough",
	"bullshit":     "baloney",
	"horseshit":    "nonsense",
	"dipshit":      "dummy",
	"shithead":     "jerk",
	"dickhead":     "jerk",
	"prick":        "jerk",
	"douche":       "jerk",
	"douchebag":    "jerk",
}

// Filter replaces profanity in narration text with softer alternatives.
// Matching is case-insensitive, respects word boundaries and covers
// simple plurals.
type Filter struct {
	regexes map[string]*regexp.Regexp
}

// NewFilter compiles the word patterns once.
func NewFilter() *Filter {
	f := &Filter{
		regexes: make(map[string]*regexp.Regexp, len(swearWords)),
	}
	for _, word := range swearWords {
		pattern := `(?i)\b` + regexp.QuoteMeta(word) + `s?\b`
		f.regexes[word] = regexp.MustCompile(pattern)
	}
	return f
}

// Clean returns text with every listed word replaced, keeping the case
// pattern and plural form of the original.
func (f *Filter) Clean(text string) string {
	result := text
	for _, word := range swearWords {
		replacement, ok := replacements[word]
		if !ok {
			continue
		}
		result = f.regexes[word].ReplaceAllStringFunc(result, func(match string) string {
			rep := replacement
			if len(match) > len(word) && !strings.HasSuffix(word, "s") {
				rep += "s"
			}
			return matchCase(match, rep)
		})
	}
	return result
}

// Flagged reports whether the text contains any listed word.
func (f *Filter) Flagged(text string) bool {
	for _, word := range swearWords {
		if f.regexes[word].MatchString(text) {
			return true
		}
	}
	return false
}

// ShouldFilter reports whether a content rating requires filtering.
// Unknown or empty ratings are left unfiltered.
func ShouldFilter(rating string) bool {
	switch strings.ToUpper(strings.TrimSpace(rating)) {
	case "G", "PG", "PG13", "PG-13":
		return true
	default:
		return false
	}
}

const (
	guidanceG    = `Write content suitable for young children. Avoid violence, romance and scary elements. Use simple language and positive messages.`
	guidancePG   = `Write content suitable for children and families. Mild peril or tension is okay, but avoid strong language, explicit violence, or dark themes.`
	guidancePG13 = `Write content appropriate for teenagers. You may include mild swearing, romantic tension, action scenes, and complex emotional themes, but avoid explicit adult situations, graphic violence, or drug use.`
	guidanceR    = `Write with full freedom for adult audiences. All content should progress the story.`
)

// Guidance returns the writing instruction for a content rating.
// Unknown ratings default to the PG-13 guidance.
func Guidance(rating string) string {
	switch strings.ToUpper(strings.TrimSpace(rating)) {
	case "G":
		return guidanceG
	case "PG":
		return guidancePG
	case "PG13", "PG-13":
		return guidancePG13
	case "R":
		return guidanceR
	default:
		return guidancePG13
	}
}

// matchCase applies the case pattern of the original word to the
// replacement.
func matchCase(original, replacement string) string {
	if len(original) == 0 {
		return replacement
	}

	if strings.ToUpper(original) == original {
		return strings.ToUpper(replacement)
	}
	if strings.ToLower(original) == original {
		return strings.ToLower(replacement)
	}

	titleCaser := cases.Title(language.English)
	if titleCaser.String(strings.ToLower(original)) == original {
		return titleCaser.String(replacement)
	}

	// Mixed case, carry the pattern over character by character
	originalRunes := []rune(original)
	result := make([]rune, 0, len(replacement))
	for i, r := range replacement {
		if i < len(originalRunes) && unicode.IsUpper(originalRunes[i]) {
			result = append(result, unicode.ToUpper(r))
		} else {
			result = append(result, unicode.ToLower(r))
		}
	}
	return string(result)
}
