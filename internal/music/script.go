package music

import (
	"strings"
	"unicode"
)

// Script is a coarse Unicode script label used to bias genre seeds and ranking.
type Script string

const (
	Latin      Script = "latin"
	Devanagari Script = "devanagari"
	Tamil      Script = "tamil"
	Telugu     Script = "telugu"
	Kannada    Script = "kannada"
	Malayalam  Script = "malayalam"
	Bengali    Script = "bengali"
	Gurmukhi   Script = "gurmukhi"
	Gujarati   Script = "gujarati"
	Hangul     Script = "hangul"
	Kana       Script = "kana"
	Han        Script = "han"
	Arabic     Script = "arabic"
	Cyrillic   Script = "cyrillic"
)

// scriptTables is ordered; on equal counts the earlier script wins.
var scriptTables = []struct {
	script Script
	tables []*unicode.RangeTable
}{
	{Devanagari, []*unicode.RangeTable{unicode.Devanagari}},
	{Tamil, []*unicode.RangeTable{unicode.Tamil}},
	{Telugu, []*unicode.RangeTable{unicode.Telugu}},
	{Kannada, []*unicode.RangeTable{unicode.Kannada}},
	{Malayalam, []*unicode.RangeTable{unicode.Malayalam}},
	{Bengali, []*unicode.RangeTable{unicode.Bengali}},
	{Gurmukhi, []*unicode.RangeTable{unicode.Gurmukhi}},
	{Gujarati, []*unicode.RangeTable{unicode.Gujarati}},
	{Hangul, []*unicode.RangeTable{unicode.Hangul}},
	{Kana, []*unicode.RangeTable{unicode.Hiragana, unicode.Katakana}},
	{Han, []*unicode.RangeTable{unicode.Han}},
	{Arabic, []*unicode.RangeTable{unicode.Arabic}},
	{Cyrillic, []*unicode.RangeTable{unicode.Cyrillic}},
	{Latin, []*unicode.RangeTable{unicode.Latin}},
}

// genrePools lists preferred Spotify genre seeds per script, most specific first.
// Seeds the catalogue does not offer are dropped at request time.
var genrePools = map[Script][]string{
	Latin:      {"pop", "indie", "rock", "electronic", "dance"},
	Devanagari: {"bollywood", "hindi", "indian", "desi", "romance"},
	Tamil:      {"tamil", "kollywood", "indian", "world-music"},
	Telugu:     {"telugu", "tollywood", "indian", "world-music"},
	Kannada:    {"kannada", "sandalwood", "indian", "world-music"},
	Malayalam:  {"malayalam", "mollywood", "indian", "world-music"},
	Bengali:    {"bengali", "indian", "folk", "world-music"},
	Gurmukhi:   {"punjabi", "bhangra", "indian", "dance"},
	Gujarati:   {"gujarati", "garba", "indian", "folk"},
	Hangul:     {"k-pop", "korean", "k-indie"},
	Kana:       {"j-pop", "anime", "j-rock", "j-idol"},
	Han:        {"mandopop", "cantopop", "c-pop"},
	Arabic:     {"arabic", "iranian", "turkish", "world-music"},
	Cyrillic:   {"russian", "pop", "electronic"},
}

// hintScripts maps Latin hint words (a language name or scene) to the script
// whose pool they should select.
var hintScripts = map[string]Script{
	"hindi":     Devanagari,
	"bollywood": Devanagari,
	"marathi":   Devanagari,
	"bhojpuri":  Devanagari,
	"tamil":     Tamil,
	"kollywood": Tamil,
	"telugu":    Telugu,
	"tollywood": Telugu,
	"kannada":   Kannada,
	"malayalam": Malayalam,
	"bengali":   Bengali,
	"bangla":    Bengali,
	"punjabi":   Gurmukhi,
	"bhangra":   Gurmukhi,
	"gujarati":  Gujarati,
	"garba":     Gujarati,
	"korean":    Hangul,
	"k-pop":     Hangul,
	"kpop":      Hangul,
	"japanese":  Kana,
	"j-pop":     Kana,
	"jpop":      Kana,
	"anime":     Kana,
	"chinese":   Han,
	"mandarin":  Han,
	"cantonese": Han,
	"arabic":    Arabic,
	"russian":   Cyrillic,
}

// DominantScript returns the script with the most letters in text, Latin when
// text has no recognised letters.
func DominantScript(text string) Script {
	counts := make(map[Script]int)
	for _, r := range text {
		if !unicode.IsLetter(r) {
			continue
		}
		if s, ok := scriptOf(r); ok {
			counts[s]++
		}
	}
	best, bestN := Latin, 0
	for _, st := range scriptTables {
		if n := counts[st.script]; n > bestN {
			best, bestN = st.script, n
		}
	}
	return best
}

// Detect picks the script for a request: the dominant script of userText, then
// of language, then the first recognised hint word in language or userText.
func Detect(userText, language string) Script {
	if s := DominantScript(userText); s != Latin {
		return s
	}
	if s := DominantScript(language); s != Latin {
		return s
	}
	for _, src := range []string{language, userText} {
		for _, w := range Words(src) {
			if s, ok := hintScripts[w]; ok {
				return s
			}
		}
	}
	return Latin
}

// GenrePool returns the seed genre preferences for s.
func GenrePool(s Script) []string {
	if pool, ok := genrePools[s]; ok {
		return pool
	}
	return genrePools[Latin]
}

// Matches reports whether text contains at least one letter of script s.
func (s Script) Matches(text string) bool {
	for _, r := range text {
		if unicode.IsLetter(r) {
			if got, ok := scriptOf(r); ok && got == s {
				return true
			}
		}
	}
	return false
}

// Words returns the lowercased Latin words of text, keeping inner '+' and '-'
// (so "k-pop" survives).
func Words(text string) []string {
	var words []string
	for _, f := range strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !(r >= 'a' && r <= 'z' || r == '+' || r == '-')
	}) {
		f = strings.Trim(f, "+-")
		if f != "" {
			words = append(words, f)
		}
	}
	return words
}

func scriptOf(r rune) (Script, bool) {
	for _, st := range scriptTables {
		for _, t := range st.tables {
			if unicode.Is(t, r) {
				return st.script, true
			}
		}
	}
	return "", false
}
