package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"onbid_bot/internal/checker"
	"onbid_bot/internal/metrics"
	"onbid_bot/internal/model"
	"onbid_bot/internal/storage"
)

type mockRunner struct {
	mu       sync.Mutex
	keywords []string
	res      *model.RunResult
	err      error
	last     *model.RunResult
}

func (m *mockRunner) Run(_ context.Context, keyword string) (*model.RunResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.keywords = append(m.keywords, keyword)
	res := *m.res
	res.Keyword = keyword
	m.last = &res
	return &res, m.err
}

func (m *mockRunner) Last() *model.RunResult {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.last
}

func (m *mockRunner) getKeywords() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]string, len(m.keywords))
	copy(out, m.keywords)
	return out
}

var testItems = []model.Item{
	{Title: "사물함 10개", BidDate: "2025-03-01 10:00 ~ 2025-03-05 17:00", Link: "https://www.onbid.co.kr/a"},
	{Title: "사물함 20개", BidDate: "2025-03-02 10:00 ~ 2025-03-06 17:00", Link: "https://www.onbid.co.kr/b"},
}

func newTestServer(t *testing.T) (*Server, *mockRunner, *storage.SQLite, *metrics.Metrics) {
	t.Helper()
	store, err := storage.NewSQLite(":memory:")
	if err != nil {
		t.Fatalf("new sqlite: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })

	runner := &mockRunner{res: &model.RunResult{
		Stage:          model.StageDone,
		TotalItemsSeen: testItems,
		NewItems:       testItems[:1],
		Notified:       true,
	}}
	m := metrics.New()
	s := NewServer(runner, store, m, slog.New(slog.NewTextHandler(io.Discard, nil)), Options{Keyword: "사물함"})
	t.Cleanup(func() { _ = s.Shutdown(context.Background()) })
	return s, runner, store, m
}

func do(t *testing.T, s *Server, method, target, body string) *httptest.ResponseRecorder {
	t.Helper()
	var r io.Reader
	if body != "" {
		r = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, target, r)
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	if err := json.Unmarshal(rec.Body.Bytes(), &out); err != nil {
		t.Fatalf("decode %q: %v", rec.Body.String(), err)
	}
	return out
}

func TestHealth(t *testing.T) {
	s, _, _, _ := newTestServer(t)
	rec := do(t, s, http.MethodGet, "/api/health", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if diff := cmp.Diff(map[string]string{"storage": "healthy"}, decode[map[string]string](t, rec)); diff != "" {
		t.Errorf("health (-want +got):\n%s", diff)
	}
}

func TestCheck(t *testing.T) {
	s, runner, _, _ := newTestServer(t)
	runner.res.Screenshot = []byte("png")

	rec := do(t, s, http.MethodPost, "/api/check?keyword=%EC%9D%98%EC%9E%90", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200: %s", rec.Code, rec.Body.String())
	}

	shot := screenshotPath
	want := checkResponse{
		Title:         "온비드 '의자' 검색 결과",
		Keyword:       "의자",
		Results:       testItems,
		NewItemsCount: 1,
		NewItems:      testItems[:1],
		Notified:      true,
		Stage:         model.StageDone,
		Screenshot:    &shot,
	}
	if diff := cmp.Diff(want, decode[checkResponse](t, rec)); diff != "" {
		t.Errorf("response (-want +got):\n%s", diff)
	}
}

func TestCheckKeywordFallback(t *testing.T) {
	s, runner, store, _ := newTestServer(t)
	ctx := context.Background()

	do(t, s, http.MethodPost, "/api/check", "")

	st := model.DefaultSettings()
	st.Keyword = "책상"
	if err := store.SaveSettings(ctx, st); err != nil {
		t.Fatalf("save settings: %v", err)
	}
	do(t, s, http.MethodPost, "/api/check?keyword=+", "")

	if diff := cmp.Diff([]string{"사물함", "책상"}, runner.getKeywords()); diff != "" {
		t.Errorf("keywords (-want +got):\n%s", diff)
	}
}

func TestCheckFailure(t *testing.T) {
	s, runner, _, _ := newTestServer(t)
	runner.res = &model.RunResult{
		Stage:          model.StageFailed,
		FailedAt:       model.StageScraping,
		TotalItemsSeen: []model.Item{},
		NewItems:       []model.Item{},
	}
	runner.err = &checker.ScrapeError{Keyword: "사물함", Err: errors.New("timeout")}

	rec := do(t, s, http.MethodPost, "/api/check", "")
	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("status = %d, want 500", rec.Code)
	}
	got := decode[checkResponse](t, rec)
	if got.ErrorKind != "scrape_failure" || got.Stage != model.StageScraping {
		t.Errorf("errorKind = %q, stage = %q", got.ErrorKind, got.Stage)
	}
	if got.Error != `scrape "사물함": timeout` {
		t.Errorf("error = %q", got.Error)
	}
	if got.Screenshot != nil {
		t.Errorf("screenshot = %q, want null", *got.Screenshot)
	}
}

func TestMethodNotAllowed(t *testing.T) {
	s, runner, _, _ := newTestServer(t)
	rec := do(t, s, http.MethodGet, "/api/check", "")
	if rec.Code != http.StatusMethodNotAllowed {
		t.Fatalf("status = %d, want 405", rec.Code)
	}
	if diff := cmp.Diff(map[string]string{"error": "Method not allowed"}, decode[map[string]string](t, rec)); diff != "" {
		t.Errorf("body (-want +got):\n%s", diff)
	}
	if len(runner.getKeywords()) != 0 {
		t.Error("runner called on GET")
	}
}

func TestSettings(t *testing.T) {
	s, _, _, _ := newTestServer(t)

	rec := do(t, s, http.MethodGet, "/api/settings", "")
	if diff := cmp.Diff(`{"keyword":"","interval":60,"isRunning":false,"lastCheck":null,"nextCheck":null}`, rec.Body.String()); diff != "" {
		t.Errorf("defaults (-want +got):\n%s", diff)
	}

	rec = do(t, s, http.MethodPost, "/api/settings", `{"keyword":" 사물함 ","interval":"15","lastCheck":"2025-03-01T09:00:00Z"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d: %s", rec.Code, rec.Body.String())
	}

	last := time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)
	want := &model.Settings{Keyword: "사물함", IntervalMinutes: 15, LastCheck: &last}
	if diff := cmp.Diff(want, decode[*model.Settings](t, rec)); diff != "" {
		t.Errorf("saved (-want +got):\n%s", diff)
	}

	rec = do(t, s, http.MethodPost, "/api/settings", `{"interval":"soon"}`)
	want.IntervalMinutes = 60
	if diff := cmp.Diff(want, decode[*model.Settings](t, do(t, s, http.MethodGet, "/api/settings", ""))); diff != "" {
		t.Errorf("after bad interval (-want +got):\n%s", diff)
	}
	if rec.Code != http.StatusOK {
		t.Errorf("status = %d, want 200", rec.Code)
	}
}

func TestSettingsRejectsBadBody(t *testing.T) {
	s, _, _, _ := newTestServer(t)
	for _, body := range []string{`not json`, `{"keyword":5}`, `{"isRunning":"yes"}`} {
		rec := do(t, s, http.MethodPost, "/api/settings", body)
		if rec.Code != http.StatusBadRequest {
			t.Errorf("body %s: status = %d, want 400", body, rec.Code)
		}
	}
}

func TestParseInterval(t *testing.T) {
	tests := []struct {
		raw  string
		want int
	}{
		{`30`, 30},
		{`45.7`, 45},
		{`"90"`, 90},
		{`" 15 minutes"`, 15},
		{`"abc"`, 60},
		{`""`, 60},
		{`null`, 60},
		{`true`, 60},
		{`0`, 60},
		{`"-5"`, 60},
		{`1e12`, 60},
	}
	for _, tt := range tests {
		t.Run(tt.raw, func(t *testing.T) {
			if got := parseInterval(json.RawMessage(tt.raw)); got != tt.want {
				t.Errorf("parseInterval(%s) = %d, want %d", tt.raw, got, tt.want)
			}
		})
	}
}

func TestParseTimestamp(t *testing.T) {
	at := time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC)
	tests := []struct {
		raw  string
		want *time.Time
	}{
		{`"2025-03-01T09:00:00+09:00"`, &at},
		{`1740787200000`, &at},
		{`"yesterday"`, nil},
		{`null`, nil},
		{`0`, nil},
		{`{}`, nil},
	}
	for _, tt := range tests {
		t.Run(tt.raw, func(t *testing.T) {
			if diff := cmp.Diff(tt.want, parseTimestamp(json.RawMessage(tt.raw))); diff != "" {
				t.Errorf("parseTimestamp(%s) (-want +got):\n%s", tt.raw, diff)
			}
		})
	}
}

func TestPolling(t *testing.T) {
	s, runner, store, _ := newTestServer(t)
	ctx := context.Background()

	do(t, s, http.MethodPost, "/api/settings", `{"keyword":"책상","interval":5}`)

	rec := do(t, s, http.MethodPost, "/api/polling/start", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("start status = %d: %s", rec.Code, rec.Body.String())
	}
	started := decode[*model.Settings](t, rec)
	if !started.IsRunning || started.NextCheck == nil {
		t.Errorf("after start: isRunning = %v, nextCheck = %v", started.IsRunning, started.NextCheck)
	}

	deadline := time.Now().Add(2 * time.Second)
	for {
		st, err := store.GetSettings(ctx)
		if err != nil {
			t.Fatalf("get settings: %v", err)
		}
		if st.LastCheck != nil {
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("polling cycle did not record lastCheck")
		}
		time.Sleep(10 * time.Millisecond)
	}
	if diff := cmp.Diff([]string{"책상"}, runner.getKeywords()); diff != "" {
		t.Errorf("keywords (-want +got):\n%s", diff)
	}

	rec = do(t, s, http.MethodPost, "/api/polling/stop", "")
	stopped := decode[*model.Settings](t, rec)
	if stopped.IsRunning || stopped.NextCheck != nil {
		t.Errorf("after stop: isRunning = %v, nextCheck = %v", stopped.IsRunning, stopped.NextCheck)
	}
	if stopped.LastCheck == nil {
		t.Error("stop cleared lastCheck")
	}
}

func TestResumePolling(t *testing.T) {
	s, runner, store, _ := newTestServer(t)
	ctx := context.Background()

	if err := s.ResumePolling(ctx); err != nil {
		t.Fatalf("resume idle: %v", err)
	}
	if len(runner.getKeywords()) != 0 {
		t.Fatal("resume started polling while stopped")
	}

	st := model.DefaultSettings()
	st.IsRunning = true
	if err := store.SaveSettings(ctx, st); err != nil {
		t.Fatalf("save settings: %v", err)
	}
	if err := s.ResumePolling(ctx); err != nil {
		t.Fatalf("resume: %v", err)
	}

	deadline := time.Now().Add(2 * time.Second)
	for len(runner.getKeywords()) == 0 {
		if time.Now().After(deadline) {
			t.Fatal("resumed polling never ran")
		}
		time.Sleep(10 * time.Millisecond)
	}
	if diff := cmp.Diff("사물함", runner.getKeywords()[0]); diff != "" {
		t.Errorf("keyword (-want +got):\n%s", diff)
	}
}

func TestState(t *testing.T) {
	s, _, store, _ := newTestServer(t)

	rec := do(t, s, http.MethodGet, "/api/state?keyword=%EC%82%AC%EB%AC%BC%ED%95%A8", "")
	if rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", rec.Code)
	}

	if _, err := store.Merge(context.Background(), "사물함", testItems); err != nil {
		t.Fatalf("merge: %v", err)
	}
	rec = do(t, s, http.MethodGet, "/api/state", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	got := decode[stateResponse](t, rec)
	if got.Keyword != "사물함" || got.LastChecked.IsZero() {
		t.Errorf("keyword = %q, lastChecked = %v", got.Keyword, got.LastChecked)
	}
	if diff := cmp.Diff(testItems, got.Items); diff != "" {
		t.Errorf("items (-want +got):\n%s", diff)
	}
}

func TestScreenshot(t *testing.T) {
	s, runner, _, _ := newTestServer(t)

	if rec := do(t, s, http.MethodGet, "/api/screenshot", ""); rec.Code != http.StatusNotFound {
		t.Fatalf("before any check: status = %d, want 404", rec.Code)
	}

	runner.res.Screenshot = []byte("\x89PNG")
	do(t, s, http.MethodPost, "/api/check", "")

	rec := do(t, s, http.MethodGet, "/api/screenshot", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if ct := rec.Header().Get("Content-Type"); ct != "image/png" {
		t.Errorf("content type = %q", ct)
	}
	if diff := cmp.Diff("\x89PNG", rec.Body.String()); diff != "" {
		t.Errorf("body (-want +got):\n%s", diff)
	}
}

func TestMetricsEndpoint(t *testing.T) {
	s, _, _, m := newTestServer(t)
	m.IncCycle(metrics.OutcomeDone)

	rec := do(t, s, http.MethodGet, "/metrics", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), `checker_cycles_total{outcome="done"} 1`) {
		t.Errorf("metrics output missing cycle counter:\n%s", rec.Body.String())
	}
}
