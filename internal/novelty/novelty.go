// Package novelty decides which scraped items have not been seen before.
package novelty

import "onbid_bot/internal/model"

// DetectNew returns the items of current whose identity key is absent from
// previous, in the order of current. A nil previous means there is no
// prior state for the keyword and every item is new.
func DetectNew(current []model.Item, previous *model.SearchState) []model.Item {
	if previous == nil {
		return append([]model.Item{}, current...)
	}

	known := make(map[model.Key]struct{}, len(previous.Items))
	for _, it := range previous.Items {
		known[it.Key()] = struct{}{}
	}

	fresh := []model.Item{}
	for _, it := range current {
		if _, ok := known[it.Key()]; !ok {
			fresh = append(fresh, it)
		}
	}
	return fresh
}
