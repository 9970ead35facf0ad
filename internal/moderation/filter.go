// Package moderation holds the content filter and the per-author escalation
// state machine that disciplines repeat offenders.
package moderation

import (
	"strings"

	"golang.org/x/text/cases"
)

// defaultTerms is the built-in blocklist used when no terms are configured.
// Deployments are expected to supply their own list; these defaults only
// cover the spam patterns every community we host has asked to drop.
var defaultTerms = []string{
	"free nitro",
	"free robux",
	"steam gift",
	"crypto giveaway",
	"onlyfans.com",
	"discord.gg/",
}

var fold = cases.Fold()

// Filter scans text for disallowed terms. Matching is case-folded substring
// matching: crude, but predictable, and identical on both the incoming
// pre-check and the generated-reply post-check.
type Filter struct {
	terms []string
}

// NewFilter builds a Filter over the given terms, falling back to the
// built-in list when none are provided. Terms are folded once up front.
func NewFilter(terms ...string) *Filter {
	if len(terms) == 0 {
		terms = defaultTerms
	}
	folded := make([]string, 0, len(terms))
	for _, t := range terms {
		t = fold.String(strings.TrimSpace(t))
		if t != "" {
			folded = append(folded, t)
		}
	}
	return &Filter{terms: folded}
}

// Scan returns the disallowed terms present in text, in blocklist order.
// An empty result means the text is clean.
func (f *Filter) Scan(text string) []string {
	if text == "" {
		return nil
	}
	haystack := fold.String(text)

	var hits []string
	for _, t := range f.terms {
		if strings.Contains(haystack, t) {
			hits = append(hits, t)
		}
	}
	return hits
}
