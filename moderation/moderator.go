package moderation

import (
	"log/slog"
	"unicode"

	goahocorasick "github.com/anknown/ahocorasick"
)

// Moderator masks banned words in message text before it is stored.
// Matching ignores case, punctuation, spacing and common leet substitutions,
// while the masked output keeps the original layout of the text.
type Moderator struct {
	matcher      *goahocorasick.Machine
	censoredChar rune
	log          *slog.Logger
}

// textIndex maps each kept rune of a normalized text back to its position in the original.
type textIndex struct {
	normalized []rune
	original   []int
}

// NewModerator builds the automaton for bannedWords.
// With no banned words the moderator returns every text unchanged.
func NewModerator(bannedWords []string, censoredChar rune, log *slog.Logger) (*Moderator, error) {
	m := &Moderator{censoredChar: censoredChar, log: log}
	var patterns [][]rune
	for _, word := range bannedWords {
		if pattern := normalizeRunes([]rune(word)); len(pattern) > 0 {
			patterns = append(patterns, pattern)
		}
	}
	if len(patterns) == 0 {
		return m, nil
	}
	machine := new(goahocorasick.Machine)
	if err := machine.Build(patterns); err != nil {
		return nil, err
	}
	m.matcher = machine
	return m, nil
}

// Censor replaces every rune spanned by a banned word with the censored character.
func (m *Moderator) Censor(text string) string {
	if m == nil || m.matcher == nil {
		return text
	}
	index := buildIndex(text)
	if len(index.normalized) == 0 {
		return text
	}
	terms := m.matcher.MultiPatternSearch(index.normalized, false)
	if len(terms) == 0 {
		return text
	}

	runes := []rune(text)
	for _, term := range terms {
		start, end := term.Pos, term.Pos+len(term.Word)
		if start < 0 || end > len(index.original) {
			continue
		}
		for i := index.original[start]; i <= index.original[end-1]; i++ {
			runes[i] = m.censoredChar
		}
	}
	m.log.Debug("Message text censored", "matches", len(terms))
	return string(runes)
}

func buildIndex(text string) textIndex {
	runes := []rune(text)
	index := textIndex{
		normalized: make([]rune, 0, len(runes)),
		original:   make([]int, 0, len(runes)),
	}
	for i, r := range runes {
		if clean, ok := normalizeRune(r); ok {
			index.normalized = append(index.normalized, clean)
			index.original = append(index.original, i)
		}
	}
	return index
}

func normalizeRunes(input []rune) []rune {
	out := make([]rune, 0, len(input))
	for _, r := range input {
		if clean, ok := normalizeRune(r); ok {
			out = append(out, clean)
		}
	}
	return out
}

// normalizeRune lowercases r after undoing leet substitutions; ok is false for noise.
func normalizeRune(r rune) (rune, bool) {
	switch r {
	case '4', '@':
		r = 'a'
	case '3', '€':
		r = 'e'
	case '1', '!', '|':
		r = 'i'
	case '0':
		r = 'o'
	case '5', '$':
		r = 's'
	}
	if unicode.IsPunct(r) || unicode.IsSpace(r) || unicode.IsSymbol(r) {
		return 0, false
	}
	return unicode.ToLower(r), true
}
