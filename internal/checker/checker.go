// Package checker runs one search cycle: scrape, filter, detect new items,
// persist them and notify.
package checker

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"onbid_bot/internal/filter"
	"onbid_bot/internal/metrics"
	"onbid_bot/internal/model"
	"onbid_bot/internal/novelty"
	"onbid_bot/internal/scraper"
	"onbid_bot/internal/storage"
)

// Scraper fetches the current listing for a keyword.
type Scraper interface {
	Scrape(ctx context.Context, keyword string) (*scraper.Result, error)
}

// Notifier delivers the new items of a cycle.
type Notifier interface {
	Notify(ctx context.Context, items []model.Item, screenshot []byte) error
}

// Options bounds the external calls of a cycle. A zero timeout leaves the
// call bounded only by the caller's context.
type Options struct {
	ScrapeTimeout time.Duration
	NotifyTimeout time.Duration
	// ScreenshotDir receives <unix-millis>.png for every cycle that captured
	// one. Empty disables saving.
	ScreenshotDir string
}

// Checker runs check cycles. It is safe for concurrent use; cycles for the
// same keyword serialize only around load, detect and merge.
type Checker struct {
	scraper  Scraper
	store    storage.Storage
	notifier Notifier
	rules    filter.Rules
	metrics  *metrics.Metrics
	log      *slog.Logger
	opts     Options
	now      func() time.Time

	locks keyLocks

	mu   sync.Mutex
	last *model.RunResult
}

// New creates a Checker. A nil rules table filters nothing.
func New(s Scraper, store storage.Storage, n Notifier, rules filter.Rules, m *metrics.Metrics, log *slog.Logger, opts Options) *Checker {
	return &Checker{
		scraper:  s,
		store:    store,
		notifier: n,
		rules:    rules,
		metrics:  m,
		log:      log,
		opts:     opts,
		now:      time.Now,
		locks:    keyLocks{m: make(map[string]*sync.Mutex)},
	}
}

// Run executes one cycle for keyword. The returned result is never nil.
// The error is a *ScrapeError, *storage.CorruptError or *storage.WriteError
// when the cycle failed; a notification failure is reported on the result.
func (c *Checker) Run(ctx context.Context, keyword string) (*model.RunResult, error) {
	res := &model.RunResult{
		Keyword:        keyword,
		StartedAt:      c.now(),
		Stage:          model.StageIdle,
		TotalItemsSeen: []model.Item{},
		NewItems:       []model.Item{},
	}
	log := c.log.With("keyword", keyword)
	log.Info("check started")

	res.Stage = model.StageScraping
	scraped, err := c.scrape(ctx, keyword)
	if err != nil {
		return c.fail(log, res, &ScrapeError{Keyword: keyword, Err: err})
	}
	res.Screenshot = scraped.Screenshot

	res.Stage = model.StageFiltering
	res.TotalItemsSeen = c.rules.FilterAndDedupe(scraped.Items, keyword)
	log.Debug("filtered results", "raw", len(scraped.Items), "kept", len(res.TotalItemsSeen))

	fresh, err := c.commit(ctx, res, keyword, res.TotalItemsSeen)
	if err != nil {
		return c.fail(log, res, err)
	}
	res.NewItems = fresh

	c.saveScreenshot(log, res)

	res.Stage = model.StageNotifying
	if err := c.notify(ctx, fresh, res.Screenshot); err != nil {
		nerr := &NotifyError{Err: err}
		res.NotifyError = nerr.Error()
		log.Warn("notification failed", "error", nerr)
	} else {
		res.Notified = true
	}

	res.Stage = model.StageDone
	c.finish(res)
	log.Info("check finished",
		"seen", len(res.TotalItemsSeen),
		"new_count", len(res.NewItems),
		"notified", res.Notified,
	)
	return res, nil
}

// Last returns the most recent finished result, or nil before the first.
func (c *Checker) Last() *model.RunResult {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.last
}

func (c *Checker) scrape(ctx context.Context, keyword string) (*scraper.Result, error) {
	if c.opts.ScrapeTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.opts.ScrapeTimeout)
		defer cancel()
	}

	start := time.Now()
	out, err := c.scraper.Scrape(ctx, keyword)
	c.metrics.ObserveScrape(time.Since(start))
	if err == nil && ctx.Err() != nil {
		err = ctx.Err()
	}
	if err != nil {
		return nil, err
	}
	if out == nil {
		out = &scraper.Result{}
	}
	return out, nil
}

// commit detects the new items against the stored state and merges them,
// holding the keyword lock for the whole read-modify-write.
func (c *Checker) commit(ctx context.Context, res *model.RunResult, keyword string, items []model.Item) ([]model.Item, error) {
	unlock := c.locks.lock(keyword)
	defer unlock()

	res.Stage = model.StageDetectingNovelty
	prev, err := c.store.Load(ctx, keyword)
	if err != nil {
		return nil, err
	}
	fresh := novelty.DetectNew(items, prev)

	res.Stage = model.StagePersisting
	if len(fresh) == 0 {
		return fresh, nil
	}
	if _, err := c.store.Merge(ctx, keyword, fresh); err != nil {
		return nil, err
	}
	return fresh, nil
}

func (c *Checker) notify(ctx context.Context, items []model.Item, screenshot []byte) error {
	if c.opts.NotifyTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.opts.NotifyTimeout)
		defer cancel()
	}
	return c.notifier.Notify(ctx, items, screenshot)
}

func (c *Checker) saveScreenshot(log *slog.Logger, res *model.RunResult) {
	if c.opts.ScreenshotDir == "" || len(res.Screenshot) == 0 {
		return
	}
	name := fmt.Sprintf("%d.png", c.now().UnixMilli())
	if err := os.MkdirAll(c.opts.ScreenshotDir, 0o750); err != nil {
		log.Warn("create screenshot directory", "error", err)
		return
	}
	if err := os.WriteFile(filepath.Join(c.opts.ScreenshotDir, name), res.Screenshot, 0o640); err != nil {
		log.Warn("save screenshot", "error", err)
		return
	}
	res.ScreenshotFile = name
}

func (c *Checker) fail(log *slog.Logger, res *model.RunResult, err error) (*model.RunResult, error) {
	res.FailedAt = res.Stage
	res.Stage = model.StageFailed
	c.metrics.IncStageError(string(res.FailedAt))
	c.finish(res)
	log.Error("check failed", "stage", res.FailedAt, "kind", Kind(err), "error", err)
	return res, err
}

func (c *Checker) finish(res *model.RunResult) {
	res.FinishedAt = c.now()
	c.metrics.IncCycle(Outcome(res))
	if res.Stage != model.StageFailed {
		c.metrics.AddItems(len(res.TotalItemsSeen), len(res.NewItems))
	}

	c.mu.Lock()
	c.last = res
	c.mu.Unlock()
}

// keyLocks hands out one mutex per keyword.
type keyLocks struct {
	mu sync.Mutex
	m  map[string]*sync.Mutex
}

func (k *keyLocks) lock(key string) func() {
	k.mu.Lock()
	l, ok := k.m[key]
	if !ok {
		l = &sync.Mutex{}
		k.m[key] = l
	}
	k.mu.Unlock()

	l.Lock()
	return l.Unlock
}
