package moderation

import (
	"log/slog"
	"unicode"

	goahocorasick "github.com/anknown/ahocorasick"
)

type Moderator struct {
	matcher      *goahocorasick.Machine
	censoredChar rune
}

type TextMapping struct {
	Normalized []rune
	OrigIdx    []int
}

// span locates a dictionary match in the original text, end excluded.
type span struct {
	start, end int
	word       string
}

// NewModerator initializes the Aho-Corasick automaton with a normalized version of the provided censored words list.
// Words made only of noise normalize to nothing and are skipped.
func NewModerator(censoredWords []string, censoredChar rune, log *slog.Logger) (Moderator, error) {
	patterns := make([][]rune, 0, len(censoredWords))
	seen := make(map[string]struct{}, len(censoredWords))
	for _, word := range censoredWords {
		pattern := normalizeRunes([]rune(word))
		if len(pattern) == 0 {
			log.Debug("Skipping censored word without letters", "word", word)
			continue
		}
		// The automaton rejects duplicated keys
		if _, ok := seen[string(pattern)]; ok {
			continue
		}
		seen[string(pattern)] = struct{}{}
		patterns = append(patterns, pattern)
	}

	m := new(goahocorasick.Machine)
	if len(patterns) > 0 {
		if err := m.Build(patterns); err != nil {
			return Moderator{}, err
		}
	} else {
		m = nil
	}
	return Moderator{matcher: m, censoredChar: censoredChar}, nil
}

// Censor identifies forbidden patterns and replaces the original characters with stars while preserving spacing.
// The matched dictionary words are returned in order of appearance.
func (m *Moderator) Censor(original string) (string, []string) {
	origRunes := []rune(original)
	spans := m.find(origRunes)
	if len(spans) == 0 {
		return original, nil
	}

	words := make([]string, 0, len(spans))
	for _, s := range spans {
		for i := s.start; i < s.end; i++ {
			origRunes[i] = m.censoredChar
		}
		words = append(words, s.word)
	}
	return string(origRunes), words
}

// Find returns the matched dictionary words without touching the text.
func (m *Moderator) Find(original string) []string {
	spans := m.find([]rune(original))
	if len(spans) == 0 {
		return nil
	}
	words := make([]string, len(spans))
	for i, s := range spans {
		words[i] = s.word
	}
	return words
}

// find keeps only matches standing on word boundaries of the original text, so "ass" never hits "class".
func (m *Moderator) find(origRunes []rune) []span {
	if m.matcher == nil {
		return nil
	}
	mapping := normalize(origRunes)
	if len(mapping.Normalized) == 0 {
		return nil
	}

	var spans []span
	for _, term := range m.matcher.MultiPatternSearch(mapping.Normalized, false) {
		normStart := term.Pos
		normEnd := normStart + len(term.Word)
		if normStart < 0 || normEnd > len(mapping.OrigIdx) {
			continue
		}
		origStart := mapping.OrigIdx[normStart]
		origEnd := mapping.OrigIdx[normEnd-1] + 1
		if isWordRune(origRunes, origStart-1) || isWordRune(origRunes, origEnd) {
			continue
		}
		spans = append(spans, span{start: origStart, end: origEnd, word: string(term.Word)})
	}
	return spans
}

func isWordRune(runes []rune, i int) bool {
	if i < 0 || i >= len(runes) {
		return false
	}
	return unicode.IsLetter(runes[i]) || unicode.IsDigit(runes[i])
}

// normalize transforms the input into a searchable format and tracks original rune positions.
func normalize(origRunes []rune) TextMapping {
	norm := make([]rune, 0, len(origRunes))
	origIdx := make([]int, 0, len(origRunes))

	for i, r := range origRunes {
		clean := simplifyRune(r)
		if isNoise(clean) {
			continue
		}
		norm = append(norm, unicode.ToLower(clean))
		origIdx = append(origIdx, i)
	}
	return TextMapping{Normalized: norm, OrigIdx: origIdx}
}

// normalizeRunes applies simplification and noise removal to a slice of runes.
func normalizeRunes(input []rune) []rune {
	return normalize(input).Normalized
}

// simplifyRune maps common Leet speak characters back to their standard alphabet counterparts.
func simplifyRune(r rune) rune {
	switch r {
	case '4', '@':
		return 'a'
	case '3', '€':
		return 'e'
	case '1', '!', '|':
		return 'i'
	case '0':
		return 'o'
	case '5', '$':
		return 's'
	default:
		return r
	}
}

// isNoise identifies characters that should be ignored during the pattern matching phase.
func isNoise(r rune) bool {
	return unicode.IsPunct(r) || unicode.IsSpace(r) || unicode.IsSymbol(r)
}
