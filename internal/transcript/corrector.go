// Package transcript corrects speech-to-text output against a tenant's
// vocabulary using Double Metaphone phonetic encoding combined with
// Jaro-Winkler similarity.
//
// Whisper-class models reliably garble tenant-specific proper nouns
// ("tiriac" for "Tiryaq", "elastic search" for "Elasticsearch"). The
// corrector slides n-gram windows over the transcript and replaces windows
// that phonetically align with a known keyword:
//
//  1. Phonetic candidate filtering: a keyword whose Double Metaphone codes
//     overlap the window's codes becomes a candidate.
//  2. Jaro-Winkler ranking: the candidate with the highest similarity wins,
//     provided it clears the phonetic threshold. Without phonetic overlap a
//     stricter fuzzy threshold applies.
//
// A Corrector is read-only after construction and safe for concurrent use.
package transcript

import (
	"strings"

	"github.com/antzucaro/matchr"
)

const (
	defaultPhoneticThreshold = 0.70
	defaultFuzzyThreshold    = 0.85
)

// Correction records one replacement made in a transcript.
type Correction struct {
	// Original is the window of transcript text that was replaced.
	Original string
	// Corrected is the keyword it was replaced with.
	Corrected string
	// Confidence is the Jaro-Winkler score of the accepted match.
	Confidence float64
}

// Option is a functional option for configuring a [Corrector].
type Option func(*Corrector)

// WithPhoneticThreshold sets the minimum Jaro-Winkler score required for a
// phonetically-matched keyword to be accepted. Default: 0.70.
func WithPhoneticThreshold(threshold float64) Option {
	return func(c *Corrector) { c.phoneticThreshold = threshold }
}

// WithFuzzyThreshold sets the minimum Jaro-Winkler score required when no
// phonetic overlap exists. Default: 0.85.
func WithFuzzyThreshold(threshold float64) Option {
	return func(c *Corrector) { c.fuzzyThreshold = threshold }
}

// Corrector aligns transcript words with a keyword vocabulary.
type Corrector struct {
	phoneticThreshold float64
	fuzzyThreshold    float64
}

// New returns a Corrector with the supplied options applied.
func New(opts ...Option) *Corrector {
	c := &Corrector{
		phoneticThreshold: defaultPhoneticThreshold,
		fuzzyThreshold:    defaultFuzzyThreshold,
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

// Correct rewrites text against keywords and returns the corrected text plus
// the corrections applied. With no keywords (or no words) the text passes
// through unchanged.
//
// At each token position, windows from the widest keyword length down to one
// token are tested; the longest matching window wins, so multi-word keywords
// take precedence over partial single-word matches.
func (c *Corrector) Correct(text string, keywords []string) (string, []Correction) {
	tokens := strings.Fields(text)
	if len(tokens) == 0 || len(keywords) == 0 {
		return text, nil
	}

	maxKeywordWords := 1
	for _, k := range keywords {
		if n := len(strings.Fields(k)); n > maxKeywordWords {
			maxKeywordWords = n
		}
	}

	var output []string
	var corrections []Correction

	i := 0
	for i < len(tokens) {
		maxN := maxKeywordWords
		if i+maxN > len(tokens) {
			maxN = len(tokens) - i
		}

		matched := false
		for n := maxN; n >= 1; n-- {
			window := strings.Join(tokens[i:i+n], " ")
			keyword, conf, ok := c.match(window, keywords)
			if !ok || strings.EqualFold(window, keyword) {
				continue
			}
			output = append(output, strings.Fields(keyword)...)
			corrections = append(corrections, Correction{
				Original:   window,
				Corrected:  keyword,
				Confidence: conf,
			})
			i += n
			matched = true
			break
		}
		if !matched {
			output = append(output, tokens[i])
			i++
		}
	}

	return strings.Join(output, " "), corrections
}

// match finds the keyword most phonetically similar to word, which may be a
// space-separated n-gram. When matched is false, corrected equals word and
// confidence is 0.
func (c *Corrector) match(word string, keywords []string) (corrected string, confidence float64, matched bool) {
	wordLower := strings.ToLower(strings.TrimSpace(word))
	if wordLower == "" {
		return word, 0, false
	}
	wordTokens := strings.Fields(wordLower)
	inputCodes := codesForTokens(wordTokens)

	type candidate struct {
		keyword  string
		score    float64
		phonetic bool
	}
	var best candidate

	for _, keyword := range keywords {
		keywordLower := strings.ToLower(strings.TrimSpace(keyword))
		if keywordLower == "" {
			continue
		}
		keywordTokens := strings.Fields(keywordLower)

		phoneticMatch := codesOverlap(inputCodes, codesForTokens(keywordTokens))
		jwScore := bestJWScore(wordTokens, keywordTokens, wordLower, keywordLower)

		if phoneticMatch {
			if jwScore >= c.phoneticThreshold {
				if !best.phonetic || jwScore > best.score {
					best = candidate{keyword: keyword, score: jwScore, phonetic: true}
				}
			}
		} else if !best.phonetic {
			if jwScore >= c.fuzzyThreshold && jwScore > best.score {
				best = candidate{keyword: keyword, score: jwScore, phonetic: false}
			}
		}
	}

	if best.keyword != "" {
		return best.keyword, best.score, true
	}
	return word, 0, false
}

// codesForTokens returns the union of all Double Metaphone codes for the
// tokens. Empty codes are excluded.
func codesForTokens(tokens []string) map[string]struct{} {
	codes := make(map[string]struct{}, len(tokens)*2)
	for _, t := range tokens {
		p, s := matchr.DoubleMetaphone(t)
		if p != "" {
			codes[p] = struct{}{}
		}
		if s != "" {
			codes[s] = struct{}{}
		}
	}
	return codes
}

// codesOverlap reports whether the two code sets share at least one code.
func codesOverlap(a, b map[string]struct{}) bool {
	if len(a) > len(b) {
		a, b = b, a
	}
	for code := range a {
		if _, ok := b[code]; ok {
			return true
		}
	}
	return false
}

// bestJWScore computes the highest Jaro-Winkler similarity between input and
// keyword across three strategies: full strings, space-stripped strings, and
// the best pairwise token score.
func bestJWScore(inputTokens, keywordTokens []string, inputFull, keywordFull string) float64 {
	score := matchr.JaroWinkler(inputFull, keywordFull, false)

	if len(inputTokens) > 1 || len(keywordTokens) > 1 {
		concat1 := strings.Join(inputTokens, "")
		concat2 := strings.Join(keywordTokens, "")
		if s := matchr.JaroWinkler(concat1, concat2, false); s > score {
			score = s
		}
	}

	for _, it := range inputTokens {
		for _, kt := range keywordTokens {
			if s := matchr.JaroWinkler(it, kt, false); s > score {
				score = s
			}
		}
	}
	return score
}
