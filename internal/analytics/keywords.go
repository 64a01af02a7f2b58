// Package analytics derives summaries and aggregate statistics from a slice
// of the conversation ledger.
package analytics

import (
	"sort"
	"strings"
	"unicode"
)

// stopWords are excluded from keyword extraction.
var stopWords = map[string]bool{
	"about": true, "after": true, "again": true, "also": true, "because": true,
	"been": true, "before": true, "being": true, "between": true, "but": true,
	"could": true, "does": true, "doing": true, "down": true, "each": true,
	"from": true, "have": true, "having": true, "here": true, "into": true,
	"just": true, "like": true, "more": true, "most": true, "much": true,
	"only": true, "other": true, "over": true, "really": true, "same": true,
	"should": true, "some": true, "something": true, "such": true, "than": true,
	"that": true, "their": true, "them": true, "then": true, "there": true,
	"these": true, "they": true, "think": true, "this": true, "those": true,
	"through": true, "very": true, "well": true, "were": true, "what": true,
	"when": true, "where": true, "which": true, "while": true, "will": true,
	"with": true, "would": true, "your": true,
}

// tokenize lowercases text, strips punctuation and returns tokens longer than
// three characters that are not stop words.
func tokenize(text string) []string {
	var tokens []string
	var b strings.Builder
	runes := 0
	flush := func() {
		if runes > 3 {
			word := b.String()
			if !stopWords[word] {
				tokens = append(tokens, word)
			}
		}
		b.Reset()
		runes = 0
	}
	for _, r := range strings.ToLower(text) {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			b.WriteRune(r)
			runes++
		} else {
			flush()
		}
	}
	flush()
	return tokens
}

// topKeywords returns the n most frequent tokens across texts, frequency ties
// broken by first-occurrence order.
func topKeywords(texts []string, n int) []string {
	counts := make(map[string]int)
	firstSeen := make(map[string]int)
	order := 0
	for _, text := range texts {
		for _, tok := range tokenize(text) {
			if _, seen := counts[tok]; !seen {
				firstSeen[tok] = order
				order++
			}
			counts[tok]++
		}
	}

	words := make([]string, 0, len(counts))
	for w := range counts {
		words = append(words, w)
	}
	sort.Slice(words, func(i, j int) bool {
		a, b := words[i], words[j]
		if counts[a] != counts[b] {
			return counts[a] > counts[b]
		}
		return firstSeen[a] < firstSeen[b]
	})

	if n > len(words) {
		n = len(words)
	}
	return words[:n]
}

// keywordSet returns the distinct tokens of texts.
func keywordSet(texts []string) map[string]bool {
	set := make(map[string]bool)
	for _, text := range texts {
		for _, tok := range tokenize(text) {
			set[tok] = true
		}
	}
	return set
}

// overlapRatio measures shared keywords relative to the smaller set. Two
// empty sets overlap fully.
func overlapRatio(a, b map[string]bool) float64 {
	smaller := len(a)
	if len(b) < smaller {
		smaller = len(b)
	}
	if smaller == 0 {
		return 1.0
	}
	shared := 0
	for w := range a {
		if b[w] {
			shared++
		}
	}
	return float64(shared) / float64(smaller)
}
