package moderation

import (
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// Normalizer canonicalizes raw user text into a signal-detection-ready form:
// lower-case, diacritics stripped, leet substitutions folded, emoji removed,
// character runs collapsed. Total, side-effect-free and idempotent.
type Normalizer struct {
	fold transform.Transformer
}

// NewNormalizer builds the shared diacritics-stripping transformer chain.
// A Normalizer is safe for concurrent use.
func NewNormalizer() *Normalizer {
	return &Normalizer{
		// NFD decomposition followed by removal of combining marks collapses
		// "chết", accent-stripped "chet" and visually-corrupted variants onto
		// the same bytes. NFC at the end re-composes anything that survived.
		fold: transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC),
	}
}

// Leet substitutions are folded only inside tokens that also contain letters,
// so "mu0n" becomes "muon" while a bare number like "112" stays a number.
var leetMap = map[rune]rune{
	'0': 'o',
	'1': 'i',
	'3': 'e',
	'4': 'a',
	'5': 's',
	'7': 't',
	'@': 'a',
	'$': 's',
}

// Normalize canonicalizes raw text. Normalize(Normalize(x)) == Normalize(x).
func (n *Normalizer) Normalize(raw string) string {
	s := strings.ToLower(raw)

	// 1. Strip combining diacritics; Vietnamese đ is not a combining form and
	// is folded explicitly.
	if folded, _, err := transform.String(n.fold, s); err == nil {
		s = folded
	}
	s = strings.Map(func(r rune) rune {
		if r == 'đ' {
			return 'd'
		}
		return r
	}, s)

	// 2. Fold leet substitutions per token.
	fields := strings.Fields(s)
	for i, tok := range fields {
		fields[i] = foldLeet(tok)
	}
	s = strings.Join(fields, " ")

	// 3. Drop emoji and non-linguistic symbols, keeping letters, digits,
	// spaces and sentence punctuation.
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		switch {
		case unicode.IsLetter(r), unicode.IsDigit(r), r == ' ':
			b.WriteRune(r)
		case r == '.' || r == ',' || r == '!' || r == '?' || r == '\'' || r == '-':
			b.WriteRune(r)
		}
	}
	s = b.String()

	// 4. Collapse runs of 3+ repeated characters ("chetttt" -> "chet").
	s = collapseRepeats(s)

	// 5. Collapse whitespace.
	return strings.Join(strings.Fields(s), " ")
}

func foldLeet(token string) string {
	hasLetter := false
	hasSub := false
	for _, r := range token {
		if unicode.IsLetter(r) {
			hasLetter = true
		}
		if _, ok := leetMap[r]; ok {
			hasSub = true
		}
	}
	if !hasLetter || !hasSub {
		return token
	}
	return strings.Map(func(r rune) rune {
		if sub, ok := leetMap[r]; ok {
			return sub
		}
		return r
	}, token)
}

func collapseRepeats(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	runes := []rune(s)
	for i := 0; i < len(runes); {
		j := i
		for j < len(runes) && runes[j] == runes[i] {
			j++
		}
		run := j - i
		if run >= 3 {
			b.WriteRune(runes[i])
		} else {
			for k := 0; k < run; k++ {
				b.WriteRune(runes[i])
			}
		}
		i = j
	}
	return b.String()
}
