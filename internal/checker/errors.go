package checker

import (
	"errors"
	"fmt"

	"onbid_bot/internal/metrics"
	"onbid_bot/internal/model"
	"onbid_bot/internal/storage"
)

// ScrapeError reports a failed or timed out scrape.
type ScrapeError struct {
	Keyword string
	Err     error
}

func (e *ScrapeError) Error() string {
	return fmt.Sprintf("scrape %q: %v", e.Keyword, e.Err)
}

func (e *ScrapeError) Unwrap() error {
	return e.Err
}

// NotifyError reports a failed or timed out notification. It is recorded
// on the result and never fails the cycle.
type NotifyError struct {
	Err error
}

func (e *NotifyError) Error() string {
	return fmt.Sprintf("notify: %v", e.Err)
}

func (e *NotifyError) Unwrap() error {
	return e.Err
}

// Kind names the failure class of a cycle error for logs and replies.
func Kind(err error) string {
	if err == nil {
		return ""
	}
	var scrapeErr *ScrapeError
	if errors.As(err, &scrapeErr) {
		return "scrape_failure"
	}
	var corrupt *storage.CorruptError
	if errors.As(err, &corrupt) {
		return "storage_corrupt"
	}
	var write *storage.WriteError
	if errors.As(err, &write) {
		return "storage_write_failure"
	}
	var notifyErr *NotifyError
	if errors.As(err, &notifyErr) {
		return "notify_failure"
	}
	return "other"
}

// Outcome classifies a finished result for metrics and summaries.
func Outcome(res *model.RunResult) string {
	switch {
	case res == nil || res.Stage == model.StageFailed:
		return metrics.OutcomeFailed
	case !res.Notified:
		return metrics.OutcomeNotifyFailed
	default:
		return metrics.OutcomeDone
	}
}
