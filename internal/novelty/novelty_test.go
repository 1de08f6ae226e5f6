package novelty

import (
	"testing"

	"github.com/google/go-cmp/cmp"

	"onbid_bot/internal/model"
)

func TestDetectNew(t *testing.T) {
	item1 := model.Item{Title: "물건1", BidDate: "2024-01-01~2024-01-10", Link: "L1"}
	item2 := model.Item{Title: "물건2", BidDate: "2024-02-01~2024-02-10", Link: "L2"}

	tests := []struct {
		name     string
		current  []model.Item
		previous *model.SearchState
		want     []model.Item
	}{
		{
			name:     "absent previous reports everything",
			current:  []model.Item{item2, item1},
			previous: nil,
			want:     []model.Item{item2, item1},
		},
		{
			name:     "absent previous with empty scrape",
			current:  nil,
			previous: nil,
			want:     []model.Item{},
		},
		{
			name:     "empty previous state reports everything",
			current:  []model.Item{item1},
			previous: &model.SearchState{Keyword: "기타"},
			want:     []model.Item{item1},
		},
		{
			name:    "known item is filtered",
			current: []model.Item{item1, item2},
			previous: &model.SearchState{
				Keyword: "기타",
				Items:   []model.Item{{Title: "물건1", BidDate: "2024-01-01~2024-01-10"}},
			},
			want: []model.Item{item2},
		},
		{
			name:    "changed link does not make an item new",
			current: []model.Item{{Title: "물건1", BidDate: "2024-01-01~2024-01-10", Link: "moved"}},
			previous: &model.SearchState{
				Items: []model.Item{item1},
			},
			want: []model.Item{},
		},
		{
			name:    "new bid period makes an item new",
			current: []model.Item{{Title: "물건1", BidDate: "2024-03-01~2024-03-10"}},
			previous: &model.SearchState{
				Items: []model.Item{item1},
			},
			want: []model.Item{{Title: "물건1", BidDate: "2024-03-01~2024-03-10"}},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := DetectNew(tt.current, tt.previous)
			if diff := cmp.Diff(tt.want, got); diff != "" {
				t.Errorf("DetectNew mismatch (-want +got):\n%s", diff)
			}
			for _, it := range got {
				if tt.previous.Contains(it.Key()) {
					t.Errorf("reported known item %+v as new", it)
				}
			}
		})
	}
}

func TestDetectNewDoesNotMutate(t *testing.T) {
	current := []model.Item{{Title: "a", BidDate: "1"}, {Title: "b", BidDate: "2"}}
	previous := &model.SearchState{Items: []model.Item{{Title: "a", BidDate: "1"}}}

	currentCopy := append([]model.Item{}, current...)
	prevCopy := append([]model.Item{}, previous.Items...)

	got := DetectNew(current, previous)
	got = append(got, model.Item{Title: "z"})
	_ = got

	if diff := cmp.Diff(currentCopy, current); diff != "" {
		t.Errorf("current mutated (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff(prevCopy, previous.Items); diff != "" {
		t.Errorf("previous mutated (-want +got):\n%s", diff)
	}

	all := DetectNew(current, nil)
	all[0].Title = "changed"
	if current[0].Title != "a" {
		t.Error("absent-state result aliases the input slice")
	}
}
