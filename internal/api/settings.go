package api

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"
	"unicode"

	"onbid_bot/internal/model"
	"onbid_bot/internal/scheduler"
)

const defaultIntervalMinutes = 60

type badRequestError struct {
	msg string
}

func (e *badRequestError) Error() string {
	return e.msg
}

// updateSettings applies fn to the stored settings and saves the result.
func (s *Server) updateSettings(ctx context.Context, fn func(st *model.Settings) error) (*model.Settings, error) {
	s.settingsMu.Lock()
	defer s.settingsMu.Unlock()

	st, err := s.store.GetSettings(ctx)
	if err != nil {
		return nil, err
	}
	if err := fn(st); err != nil {
		return nil, err
	}
	if err := s.store.SaveSettings(ctx, st); err != nil {
		return nil, err
	}
	return st, nil
}

// mergeSettings overlays the fields present in body onto st. An interval
// that does not start with an integer falls back to 60 minutes and a
// timestamp that does not parse clears the field.
func mergeSettings(st *model.Settings, body map[string]json.RawMessage) error {
	if raw, ok := body["keyword"]; ok {
		var kw string
		if err := json.Unmarshal(raw, &kw); err != nil {
			return &badRequestError{msg: "keyword must be a string"}
		}
		st.Keyword = strings.TrimSpace(kw)
	}
	if raw, ok := body["isRunning"]; ok {
		var running bool
		if err := json.Unmarshal(raw, &running); err != nil {
			return &badRequestError{msg: "isRunning must be a boolean"}
		}
		st.IsRunning = running
	}
	if raw, ok := body["interval"]; ok {
		st.IntervalMinutes = parseInterval(raw)
	}
	if raw, ok := body["lastCheck"]; ok {
		st.LastCheck = parseTimestamp(raw)
	}
	if raw, ok := body["nextCheck"]; ok {
		st.NextCheck = parseTimestamp(raw)
	}
	return nil
}

// parseInterval accepts a JSON number or a string with a leading integer
// ("90", "90m", " 15"). Anything else, and non-positive values, yield the
// default.
func parseInterval(raw json.RawMessage) int {
	var v any
	if err := json.Unmarshal(raw, &v); err != nil {
		return defaultIntervalMinutes
	}

	n := 0
	switch x := v.(type) {
	case float64:
		if math.IsNaN(x) || math.IsInf(x, 0) || x > math.MaxInt32 || x < math.MinInt32 {
			return defaultIntervalMinutes
		}
		n = int(x)
	case string:
		s := strings.TrimLeftFunc(x, unicode.IsSpace)
		end := 0
		for end < len(s) && (s[end] >= '0' && s[end] <= '9' || end == 0 && (s[0] == '-' || s[0] == '+')) {
			end++
		}
		parsed, err := strconv.Atoi(s[:end])
		if err != nil {
			return defaultIntervalMinutes
		}
		n = parsed
	default:
		return defaultIntervalMinutes
	}

	if n <= 0 {
		return defaultIntervalMinutes
	}
	return n
}

// parseTimestamp accepts an RFC 3339 string or epoch milliseconds.
func parseTimestamp(raw json.RawMessage) *time.Time {
	var v any
	if err := json.Unmarshal(raw, &v); err != nil {
		return nil
	}

	var t time.Time
	switch x := v.(type) {
	case string:
		parsed, err := time.Parse(time.RFC3339Nano, strings.TrimSpace(x))
		if err != nil {
			return nil
		}
		t = parsed
	case float64:
		if x == 0 || math.IsNaN(x) || math.IsInf(x, 0) {
			return nil
		}
		t = time.UnixMilli(int64(x))
	default:
		return nil
	}
	t = t.UTC()
	return &t
}

// startPolling (re)starts interval polling with the saved interval and
// keyword, replacing any running schedule.
func (s *Server) startPolling(ctx context.Context) (*model.Settings, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	st, err := s.store.GetSettings(ctx)
	if err != nil {
		return nil, err
	}
	interval := time.Duration(st.IntervalMinutes) * time.Minute
	if interval <= 0 {
		interval = defaultIntervalMinutes * time.Minute
	}
	keyword := strings.TrimSpace(st.Keyword)
	if keyword == "" {
		keyword = s.opts.Keyword
	}

	if s.polling != nil {
		s.polling.Stop()
		s.polling = nil
	}

	h, err := scheduler.StartEvery(s.base, interval, func(ctx context.Context) {
		s.pollOnce(ctx, keyword, interval)
	}, s.log)
	if err != nil {
		return nil, fmt.Errorf("start polling: %w", err)
	}
	s.polling = h
	s.log.Info("polling started", "keyword", keyword, "interval", interval)

	return s.updateSettings(ctx, func(st *model.Settings) error {
		st.IsRunning = true
		next := s.now().Add(interval).UTC()
		st.NextCheck = &next
		return nil
	})
}

func (s *Server) stopPolling(ctx context.Context) (*model.Settings, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.polling != nil {
		s.polling.Stop()
		s.polling = nil
		s.log.Info("polling stopped")
	}

	return s.updateSettings(ctx, func(st *model.Settings) error {
		st.IsRunning = false
		st.NextCheck = nil
		return nil
	})
}

func (s *Server) pollOnce(ctx context.Context, keyword string, interval time.Duration) {
	if _, err := s.runner.Run(ctx, keyword); err != nil {
		s.log.Error("polling check failed", "keyword", keyword, "error", err)
	}

	_, err := s.updateSettings(ctx, func(st *model.Settings) error {
		now := s.now().UTC()
		st.LastCheck = &now
		if st.IsRunning {
			next := now.Add(interval)
			st.NextCheck = &next
		}
		return nil
	})
	if err != nil {
		s.log.Error("failed to record polling check", "error", err)
	}
}
