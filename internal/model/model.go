// Package model defines the domain types used across the application.
package model

import "time"

// RawRecord is one listing row as scraped from the auction site.
// It is untrusted: titles may be blank and rows may repeat.
type RawRecord struct {
	Title   string
	BidDate string
	Link    string
}

// Item is one auction listing.
type Item struct {
	Title   string `json:"title"`
	BidDate string `json:"bidDate"`
	Link    string `json:"link"`
}

// Key identifies a listing. Link is not part of identity.
type Key struct {
	Title   string
	BidDate string
}

// Key returns the identity key of the item.
func (i Item) Key() Key {
	return Key{Title: i.Title, BidDate: i.BidDate}
}

// SearchState is the persisted ledger of every item seen for a keyword.
// Items keep first-seen order and never share a Key.
type SearchState struct {
	Keyword     string
	Items       []Item
	LastChecked time.Time
}

// Contains reports whether an item with key k is in the state.
func (s *SearchState) Contains(k Key) bool {
	if s == nil {
		return false
	}
	for _, it := range s.Items {
		if it.Key() == k {
			return true
		}
	}
	return false
}

// Stage is a step of a check cycle.
type Stage string

// Cycle stages in execution order, plus the terminal failure stage.
const (
	StageIdle             Stage = "idle"
	StageScraping         Stage = "scraping"
	StageFiltering        Stage = "filtering"
	StageDetectingNovelty Stage = "detecting_novelty"
	StagePersisting       Stage = "persisting"
	StageNotifying        Stage = "notifying"
	StageDone             Stage = "done"
	StageFailed           Stage = "failed"
)

// RunResult describes the outcome of one check cycle. It is not persisted.
type RunResult struct {
	Keyword        string
	StartedAt      time.Time
	FinishedAt     time.Time
	Stage          Stage
	FailedAt       Stage
	TotalItemsSeen []Item
	NewItems       []Item
	Notified       bool
	NotifyError    string
	Screenshot     []byte
	ScreenshotFile string
}

// Settings is the operator-facing configuration record shared with the
// control panel. The checker treats it as opaque input.
type Settings struct {
	Keyword         string     `json:"keyword"`
	IntervalMinutes int        `json:"interval"`
	IsRunning       bool       `json:"isRunning"`
	LastCheck       *time.Time `json:"lastCheck"`
	NextCheck       *time.Time `json:"nextCheck"`
}

// DefaultSettings returns the settings used before any are saved.
func DefaultSettings() *Settings {
	return &Settings{IntervalMinutes: 60}
}
