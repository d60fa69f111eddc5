// Package suggest finds the closest known name to a mistyped one, so command
// line and API errors can say "did you mean".
//
// A name is a candidate when it sounds like the input (a shared Double
// Metaphone code on any word) and its Jaro-Winkler similarity reaches the
// phonetic threshold. Jaro-Winkler undervalues short names, so a sounding-alike
// name at most one edit away from a short input is accepted regardless of its
// score. Without a sounding-alike candidate, any name whose similarity reaches
// the higher fuzzy threshold is accepted instead.
package suggest

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/antzucaro/matchr"
)

const (
	defaultPhoneticThreshold = 0.70
	defaultFuzzyThreshold    = 0.80

	// shortName is the longest input, in runes, for which a single edit
	// counts as a phonetic match.
	shortName = 4
)

// Option configures a [Matcher].
type Option func(*Matcher)

// WithPhoneticThreshold sets the minimum similarity of a sounding-alike
// name. Default: 0.70.
func WithPhoneticThreshold(threshold float64) Option {
	return func(m *Matcher) { m.phoneticThreshold = threshold }
}

// WithFuzzyThreshold sets the minimum similarity of a name that does not
// sound alike. Default: 0.80.
func WithFuzzyThreshold(threshold float64) Option {
	return func(m *Matcher) { m.fuzzyThreshold = threshold }
}

// Matcher ranks names against an input. It is read-only after New and safe
// for concurrent use.
type Matcher struct {
	phoneticThreshold float64
	fuzzyThreshold    float64
}

// New returns a matcher with the given options applied.
func New(opts ...Option) *Matcher {
	m := &Matcher{
		phoneticThreshold: defaultPhoneticThreshold,
		fuzzyThreshold:    defaultFuzzyThreshold,
	}
	for _, o := range opts {
		o(m)
	}
	return m
}

// Closest returns the known name most similar to input and its score. ok is
// false when no name passes the thresholds; an exact case-insensitive match
// always wins.
func (m *Matcher) Closest(input string, names []string) (name string, score float64, ok bool) {
	in := strings.ToLower(strings.TrimSpace(input))
	if in == "" {
		return "", 0, false
	}
	inTokens := strings.Fields(in)
	inCodes := codes(inTokens)
	short := utf8.RuneCountInString(in) <= shortName

	var (
		best         string
		bestScore    float64
		bestPhonetic bool
	)
	for _, n := range names {
		cand := strings.ToLower(strings.TrimSpace(n))
		if cand == "" {
			continue
		}
		if cand == in {
			return n, 1, true
		}
		candTokens := strings.Fields(cand)
		s := similarity(inTokens, candTokens, in, cand)
		if overlap(inCodes, codes(candTokens)) {
			near := short && matchr.Levenshtein(in, cand) == 1
			if (near || s >= m.phoneticThreshold) && (!bestPhonetic || s > bestScore) {
				best, bestScore, bestPhonetic = n, s, true
			}
			continue
		}
		if !bestPhonetic && s >= m.fuzzyThreshold && s > bestScore {
			best, bestScore = n, s
		}
	}
	if best == "" {
		return "", 0, false
	}
	return best, bestScore, true
}

// Unknown builds the error for an unrecognised name of the given kind,
// naming the closest known name when there is one.
func (m *Matcher) Unknown(kind, input string, names []string) error {
	if name, _, ok := m.Closest(input, names); ok {
		return fmt.Errorf("unknown %s %q (did you mean %q?)", kind, input, name)
	}
	if len(names) == 0 {
		return fmt.Errorf("unknown %s %q", kind, input)
	}
	return fmt.Errorf("unknown %s %q; known: %s", kind, input, strings.Join(names, ", "))
}

// codes returns the union of the Double Metaphone codes of tokens.
func codes(tokens []string) map[string]struct{} {
	out := make(map[string]struct{}, len(tokens)*2)
	for _, t := range tokens {
		p, s := matchr.DoubleMetaphone(t)
		if p != "" {
			out[p] = struct{}{}
		}
		if s != "" {
			out[s] = struct{}{}
		}
	}
	return out
}

func overlap(a, b map[string]struct{}) bool {
	if len(a) > len(b) {
		a, b = b, a
	}
	for c := range a {
		if _, ok := b[c]; ok {
			return true
		}
	}
	return false
}

// similarity is the best Jaro-Winkler score of the full strings, the strings
// with spaces removed, and any pair of words.
func similarity(inTokens, candTokens []string, in, cand string) float64 {
	score := matchr.JaroWinkler(in, cand, false)
	if len(inTokens) > 1 || len(candTokens) > 1 {
		score = max(score, matchr.JaroWinkler(strings.Join(inTokens, ""), strings.Join(candTokens, ""), false))
	}
	for _, a := range inTokens {
		for _, b := range candTokens {
			score = max(score, matchr.JaroWinkler(a, b, false))
		}
	}
	return score
}
