package bot

import (
	"fmt"
	"strings"
	"time"

	"onbid_bot/internal/checker"
	"onbid_bot/internal/model"
)

const timeFormat = "2006-01-02 15:04 MST"

// StatusInfo is everything /status reports.
type StatusInfo struct {
	Keyword  string
	Schedule string
	NextRun  time.Time
	Settings *model.Settings
	Last     *model.RunResult
}

// FormatRunSummary formats the outcome of a check cycle for a reply.
func FormatRunSummary(res *model.RunResult, err error) string {
	if res == nil {
		return fmt.Sprintf("Check failed: %v", err)
	}
	if err != nil {
		return fmt.Sprintf("Check for %q failed while %s: %v", res.Keyword, stageLabel(res.FailedAt), err)
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Check for %q finished: %d listed, %d new.", res.Keyword, len(res.TotalItemsSeen), len(res.NewItems))
	if !res.Notified {
		fmt.Fprintf(&b, "\nNotification was not delivered: %s", res.NotifyError)
	}
	return b.String()
}

// FormatStatus formats the schedule, polling settings and last cycle.
func FormatStatus(s StatusInfo) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Keyword: %s\n", s.Keyword)
	fmt.Fprintf(&b, "Schedule: %s", s.Schedule)
	if !s.NextRun.IsZero() {
		fmt.Fprintf(&b, " (next %s)", s.NextRun.Format(timeFormat))
	}
	b.WriteString("\n")

	if st := s.Settings; st != nil {
		if st.IsRunning {
			kw := st.Keyword
			if kw == "" {
				kw = s.Keyword
			}
			fmt.Fprintf(&b, "Polling: every %d min for %q", st.IntervalMinutes, kw)
			if st.NextCheck != nil {
				fmt.Fprintf(&b, " (next %s)", st.NextCheck.Format(timeFormat))
			}
			b.WriteString("\n")
		} else {
			b.WriteString("Polling: stopped\n")
		}
	}

	if r := s.Last; r != nil {
		fmt.Fprintf(&b, "Last check: %s for %q, %s", r.FinishedAt.Format(timeFormat), r.Keyword, checker.Outcome(r))
		if r.Stage != model.StageFailed {
			fmt.Fprintf(&b, ", %d listed, %d new", len(r.TotalItemsSeen), len(r.NewItems))
		}
	} else {
		b.WriteString("Last check: none since start")
	}
	return b.String()
}

// FormatItems lists the most recently recorded items of a keyword, newest
// first.
func FormatItems(keyword string, state *model.SearchState, limit int) string {
	if state == nil || len(state.Items) == 0 {
		return fmt.Sprintf("No items stored for %q.", keyword)
	}

	var b strings.Builder
	fmt.Fprintf(&b, "%q: %d items stored, last checked %s.\n", keyword, len(state.Items), state.LastChecked.Format(timeFormat))
	for i, n := len(state.Items)-1, 1; i >= 0 && n <= limit; i, n = i-1, n+1 {
		it := state.Items[i]
		fmt.Fprintf(&b, "\n%d. %s\n   %s\n", n, it.Title, it.BidDate)
		if it.Link != "" {
			fmt.Fprintf(&b, "   %s\n", it.Link)
		}
	}
	return strings.TrimRight(b.String(), "\n")
}

func stageLabel(s model.Stage) string {
	switch s {
	case model.StageScraping:
		return "scraping"
	case model.StageDetectingNovelty:
		return "reading stored items"
	case model.StagePersisting:
		return "saving new items"
	default:
		return string(s)
	}
}
