// Package storage defines the persistence interface and its implementations.
package storage

import (
	"context"
	"fmt"

	"onbid_bot/internal/model"
)

// Storage is the interface for all persistence operations.
//
// Load returns (nil, nil) when no state exists for the keyword, and a
// *CorruptError when a state exists but cannot be read back. Merge unions
// items into the keyword's state by identity key, refreshes LastChecked and
// commits the whole state atomically; concurrent Merge calls are
// serialized. A failed commit is reported as a *WriteError.
type Storage interface {
	Load(ctx context.Context, keyword string) (*model.SearchState, error)
	Merge(ctx context.Context, keyword string, items []model.Item) (*model.SearchState, error)

	GetSettings(ctx context.Context) (*model.Settings, error)
	SaveSettings(ctx context.Context, s *model.Settings) error

	Close() error
}

// CorruptError reports persisted state that exists but cannot be parsed.
type CorruptError struct {
	Keyword string
	Err     error
}

func (e *CorruptError) Error() string {
	return fmt.Sprintf("state for %q is corrupt: %v", e.Keyword, e.Err)
}

func (e *CorruptError) Unwrap() error {
	return e.Err
}

// WriteError reports a merge that could not be committed. Nothing from the
// failed merge is visible afterwards.
type WriteError struct {
	Keyword string
	Err     error
}

func (e *WriteError) Error() string {
	return fmt.Sprintf("write state for %q: %v", e.Keyword, e.Err)
}

func (e *WriteError) Unwrap() error {
	return e.Err
}

// union appends the items of add whose key is not yet in base. The link of
// an existing item is kept.
func union(base, add []model.Item) []model.Item {
	out := make([]model.Item, 0, len(base)+len(add))
	seen := make(map[model.Key]struct{}, len(base)+len(add))
	for _, list := range [][]model.Item{base, add} {
		for _, it := range list {
			if _, ok := seen[it.Key()]; ok {
				continue
			}
			seen[it.Key()] = struct{}{}
			out = append(out, it)
		}
	}
	return out
}
