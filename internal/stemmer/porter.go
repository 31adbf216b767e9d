// Package stemmer implements the classic Porter stemming algorithm
// for English. It exists because full-text search needs stems to
// match "running" against a search for "run", and no third-party
// stemming library is available anywhere in this project's
// dependency lineage - this is domain algorithmic code in the same
// vein as a tokenizer or a codec, not an ambient concern.
package stemmer

import "strings"

var step2Suffixes = []struct{ suffix, repl string }{
	{"ational", "ate"}, {"tional", "tion"}, {"enci", "ence"}, {"anci", "ance"},
	{"izer", "ize"}, {"abli", "able"}, {"alli", "al"}, {"entli", "ent"},
	{"eli", "e"}, {"ousli", "ous"}, {"ization", "ize"}, {"ation", "ate"},
	{"ator", "ate"}, {"alism", "al"}, {"iveness", "ive"}, {"fulness", "ful"},
	{"ousness", "ous"}, {"aliti", "al"}, {"iviti", "ive"}, {"biliti", "ble"},
}

var step3Suffixes = []struct{ suffix, repl string }{
	{"icate", "ic"}, {"ative", ""}, {"alize", "al"}, {"iciti", "ic"},
	{"ical", "ic"}, {"ful", ""}, {"ness", ""},
}

var step4Suffixes = []string{
	"al", "ance", "ence", "er", "ic", "able", "ible", "ant", "ement",
	"ment", "ent", "ou", "ism", "ate", "iti", "ous", "ive", "ize",
}

func isVowel(b byte) bool {
	switch b {
	case 'a', 'e', 'i', 'o', 'u':
		return true
	default:
		return false
	}
}

// measure counts vowel-consonant sequences (the Porter algorithm's "m").
func measure(word string) int {
	cv := make([]byte, 0, len(word))
	for i := 0; i < len(word); i++ {
		if isVowel(word[i]) {
			cv = append(cv, 'v')
		} else if word[i] == 'y' && i > 0 && !isVowel(word[i-1]) {
			cv = append(cv, 'v')
		} else {
			cv = append(cv, 'c')
		}
	}
	m := 0
	for i := 1; i < len(cv); i++ {
		if cv[i-1] == 'v' && cv[i] == 'c' {
			m++
		}
	}
	return m
}

func containsVowel(word string) bool {
	for i := 0; i < len(word); i++ {
		if isVowel(word[i]) {
			return true
		}
		if word[i] == 'y' && i > 0 && !isVowel(word[i-1]) {
			return true
		}
	}
	return false
}

func endsWithDoubleConsonant(word string) bool {
	n := len(word)
	if n < 2 {
		return false
	}
	return word[n-1] == word[n-2] && !isVowel(word[n-1])
}

func endsCVC(word string) bool {
	n := len(word)
	if n < 3 {
		return false
	}
	if isVowel(word[n-3]) || !isVowel(word[n-2]) || isVowel(word[n-1]) {
		return false
	}
	switch word[n-1] {
	case 'w', 'x', 'y':
		return false
	}
	return true
}

// Stem reduces a single lowercase alphabetic token to its stem using
// the Porter algorithm's five steps.
func Stem(word string) string {
	if len(word) <= 2 {
		return word
	}
	word = step1a(word)
	word = step1b(word)
	word = step1c(word)
	word = step2(word)
	word = step3(word)
	word = step4(word)
	word = step5a(word)
	word = step5b(word)
	return word
}

func step1a(w string) string {
	switch {
	case strings.HasSuffix(w, "sses"):
		return w[:len(w)-2]
	case strings.HasSuffix(w, "ies"):
		return w[:len(w)-2]
	case strings.HasSuffix(w, "ss"):
		return w
	case strings.HasSuffix(w, "s") && len(w) > 1:
		return w[:len(w)-1]
	}
	return w
}

func step1b(w string) string {
	switch {
	case strings.HasSuffix(w, "eed"):
		stem := w[:len(w)-3]
		if measure(stem) > 0 {
			return stem + "ee"
		}
		return w
	case strings.HasSuffix(w, "ed"):
		stem := w[:len(w)-2]
		if containsVowel(stem) {
			return step1bCleanup(stem)
		}
	case strings.HasSuffix(w, "ing"):
		stem := w[:len(w)-3]
		if containsVowel(stem) {
			return step1bCleanup(stem)
		}
	}
	return w
}

func step1bCleanup(stem string) string {
	switch {
	case strings.HasSuffix(stem, "at"), strings.HasSuffix(stem, "bl"), strings.HasSuffix(stem, "iz"):
		return stem + "e"
	case endsWithDoubleConsonant(stem) && !strings.HasSuffix(stem, "l") && !strings.HasSuffix(stem, "s") && !strings.HasSuffix(stem, "z"):
		return stem[:len(stem)-1]
	case measure(stem) == 1 && endsCVC(stem):
		return stem + "e"
	}
	return stem
}

func step1c(w string) string {
	if strings.HasSuffix(w, "y") && len(w) > 1 && containsVowel(w[:len(w)-1]) {
		return w[:len(w)-1] + "i"
	}
	return w
}

func step2(w string) string {
	for _, s := range step2Suffixes {
		if strings.HasSuffix(w, s.suffix) {
			stem := w[:len(w)-len(s.suffix)]
			if measure(stem) > 0 {
				return stem + s.repl
			}
			return w
		}
	}
	return w
}

func step3(w string) string {
	for _, s := range step3Suffixes {
		if strings.HasSuffix(w, s.suffix) {
			stem := w[:len(w)-len(s.suffix)]
			if measure(stem) > 0 {
				return stem + s.repl
			}
			return w
		}
	}
	return w
}

func step4(w string) string {
	for _, suf := range step4Suffixes {
		if strings.HasSuffix(w, suf) {
			stem := w[:len(w)-len(suf)]
			if suf == "ion" {
				if len(stem) == 0 || (stem[len(stem)-1] != 's' && stem[len(stem)-1] != 't') {
					continue
				}
			}
			if measure(stem) > 1 {
				return stem
			}
			return w
		}
	}
	if strings.HasSuffix(w, "ion") {
		stem := w[:len(w)-3]
		if len(stem) > 0 && (stem[len(stem)-1] == 's' || stem[len(stem)-1] == 't') && measure(stem) > 1 {
			return stem
		}
	}
	return w
}

func step5a(w string) string {
	if strings.HasSuffix(w, "e") {
		stem := w[:len(w)-1]
		m := measure(stem)
		if m > 1 || (m == 1 && !endsCVC(stem)) {
			return stem
		}
	}
	return w
}

func step5b(w string) string {
	if measure(w) > 1 && endsWithDoubleConsonant(w) && strings.HasSuffix(w, "l") {
		return w[:len(w)-1]
	}
	return w
}

// StemMessage lowercases, strips punctuation, stems every word, and
// rejoins with single spaces - the shadow text stored in the
// stemmed_message column. The search query side does not call it: it
// applies Stem to each whitespace-separated query word, without
// stripping punctuation.
func StemMessage(text string) string {
	var b strings.Builder
	words := make([]string, 0, 8)
	var cur strings.Builder
	flush := func() {
		if cur.Len() > 0 {
			words = append(words, cur.String())
			cur.Reset()
		}
	}
	for _, r := range strings.ToLower(text) {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') {
			cur.WriteRune(r)
		} else {
			flush()
		}
	}
	flush()
	for i, w := range words {
		if i > 0 {
			b.WriteByte(' ')
		}
		b.WriteString(Stem(w))
	}
	return b.String()
}
