package trigger

import (
	"regexp"
	"sort"
	"strings"
	"unicode"
)

const (
	// MaxPhrases caps the extracted list; beyond this the tail is noise.
	MaxPhrases = 15

	minTokenLength   = 3
	minContentLength = 30
	// minFrequency is the floor below which an n-gram is not trigger-worthy;
	// a phrase seen once is incidental.
	minFrequency = 2
	maxNGram     = 3
)

var (
	fencedCodeRe = regexp.MustCompile("(?s)```.*?```")
	inlineCodeRe = regexp.MustCompile("`([^`]*)`")
	headingRe    = regexp.MustCompile(`(?m)^#{1,6}\s+`)
	emphasisRe   = regexp.MustCompile(`[*_]{1,3}([^*_]+)[*_]{1,3}`)
	linkRe       = regexp.MustCompile(`\[([^\]]*)\]\([^)]*\)`)
)

// ExtractPhrases derives up to MaxPhrases salient lowercase phrases from
// raw (possibly markdown) text, ordered most relevant first. It is
// deterministic and needs no embeddings. Trivial input yields an empty
// list, not an error.
func ExtractPhrases(text string) []string {
	plain := stripMarkdown(text)
	if len(strings.TrimSpace(plain)) < minContentLength {
		return []string{}
	}

	tokens := tokenize(plain)
	if len(tokens) == 0 {
		return []string{}
	}

	counts := countNGrams(tokens)
	scored := scoreNGrams(counts)
	deduped := dedupeByContainment(scored)

	if len(deduped) > MaxPhrases {
		deduped = deduped[:MaxPhrases]
	}
	phrases := make([]string, len(deduped))
	for i, s := range deduped {
		phrases[i] = s.phrase
	}
	return phrases
}

// stripMarkdown removes markdown syntax while keeping the readable text
// inside emphasis, inline code, and link constructs. Fenced code block
// bodies are dropped entirely.
func stripMarkdown(text string) string {
	text = fencedCodeRe.ReplaceAllString(text, " ")
	text = inlineCodeRe.ReplaceAllString(text, "$1")
	text = headingRe.ReplaceAllString(text, "")
	text = emphasisRe.ReplaceAllString(text, "$1")
	text = linkRe.ReplaceAllString(text, "$1")
	return text
}

func tokenize(text string) []string {
	fields := strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})

	tokens := make([]string, 0, len(fields))
	for _, tok := range fields {
		if len(tok) < minTokenLength {
			continue
		}
		if isNumeric(tok) {
			continue
		}
		if isStopword(tok) {
			continue
		}
		tokens = append(tokens, tok)
	}
	return tokens
}

func isNumeric(s string) bool {
	for _, r := range s {
		if !unicode.IsDigit(r) {
			return false
		}
	}
	return true
}

// countNGrams slides 1..3-gram windows over the filtered token stream and
// keeps phrases meeting the frequency floor.
func countNGrams(tokens []string) map[string]int {
	raw := make(map[string]int)
	for n := 1; n <= maxNGram; n++ {
		for i := 0; i+n <= len(tokens); i++ {
			phrase := strings.Join(tokens[i:i+n], " ")
			raw[phrase]++
		}
	}

	counts := make(map[string]int, len(raw))
	for phrase, count := range raw {
		if count >= minFrequency {
			counts[phrase] = count
		}
	}
	return counts
}

type scoredPhrase struct {
	phrase string
	score  float64
}

// lengthBonus rewards longer n-grams so a frequent bigram can outrank a
// merely more-frequent unigram.
func lengthBonus(words int) float64 {
	switch words {
	case 2:
		return 1.5
	case 3:
		return 2.0
	default:
		return 1.0
	}
}

func scoreNGrams(counts map[string]int) []scoredPhrase {
	maxCount := 0
	for _, c := range counts {
		if c > maxCount {
			maxCount = c
		}
	}
	if maxCount == 0 {
		return nil
	}

	scored := make([]scoredPhrase, 0, len(counts))
	for phrase, count := range counts {
		words := strings.Count(phrase, " ") + 1
		score := float64(count) / float64(maxCount) * lengthBonus(words)
		scored = append(scored, scoredPhrase{phrase: phrase, score: score})
	}

	sort.Slice(scored, func(i, j int) bool {
		if scored[i].score != scored[j].score {
			return scored[i].score > scored[j].score
		}
		if len(scored[i].phrase) != len(scored[j].phrase) {
			return len(scored[i].phrase) > len(scored[j].phrase)
		}
		return scored[i].phrase < scored[j].phrase
	})
	return scored
}

// dedupeByContainment drops any phrase that is a substring of an equal- or
// higher-scoring phrase already kept: the longer, more specific phrase wins.
func dedupeByContainment(scored []scoredPhrase) []scoredPhrase {
	kept := make([]scoredPhrase, 0, len(scored))
	for _, s := range scored {
		contained := false
		for _, k := range kept {
			if strings.Contains(k.phrase, s.phrase) {
				contained = true
				break
			}
		}
		if !contained {
			kept = append(kept, s)
		}
	}
	return kept
}
