// Package filter normalizes scraped rows into items and applies the
// keyword-specific title rules.
package filter

import (
	"strings"

	"onbid_bot/internal/model"
)

// Rule narrows the results of one search keyword by title substrings.
// Include uses OR logic (at least one must match when any are listed).
// Exclude uses AND logic (none must match).
type Rule struct {
	Include []string `yaml:"include"`
	Exclude []string `yaml:"exclude"`
}

// Match checks whether a title passes the rule. Only the title is lowered;
// the substrings are compared as written.
func (r Rule) Match(title string) bool {
	lower := strings.ToLower(title)

	for _, s := range r.Exclude {
		if strings.Contains(lower, s) {
			return false
		}
	}

	if len(r.Include) == 0 {
		return true
	}
	for _, s := range r.Include {
		if strings.Contains(lower, s) {
			return true
		}
	}
	return false
}

// Rules maps a search keyword to its rule. Keywords without an entry are
// not filtered.
type Rules map[string]Rule

// DefaultRules returns the built-in keyword rules. The site search for
// these keywords returns broader results than intended.
func DefaultRules() Rules {
	return Rules{
		"사물함": {Include: []string{"도서관", "교육연구시설"}},
		"보관함": {Include: []string{"보관함"}},
	}
}

// FilterAndDedupe drops repeated rows, keeping the first occurrence of each
// (title, bidDate) pair, then applies the rule for keyword. The relative
// order of first occurrences is preserved.
func (r Rules) FilterAndDedupe(raw []model.RawRecord, keyword string) []model.Item {
	rule, hasRule := r[keyword]

	seen := make(map[model.Key]struct{}, len(raw))
	items := make([]model.Item, 0, len(raw))
	for _, rec := range raw {
		it := model.Item{Title: rec.Title, BidDate: rec.BidDate, Link: rec.Link}
		k := it.Key()
		if _, dup := seen[k]; dup {
			continue
		}
		seen[k] = struct{}{}

		if hasRule && !rule.Match(it.Title) {
			continue
		}
		items = append(items, it)
	}
	return items
}
