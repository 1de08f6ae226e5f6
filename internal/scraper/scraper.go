// Package scraper drives a headless browser through the onbid search flow
// and extracts the listed bid records.
package scraper

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"time"

	"github.com/chromedp/cdproto/cdp"
	"github.com/chromedp/chromedp"

	"onbid_bot/internal/model"
)

// DefaultBaseURL is the public onbid site.
const DefaultBaseURL = "https://www.onbid.co.kr"

const (
	searchInput    = "#query"
	tabXPath       = `//*[@id="_searchTap"]/li[3]/a`
	tabTextXPath   = `//a[contains(text(), "입찰물건")]`
	directPath     = "/op/ppa/selectPublicSaleList.do"
	directInput    = "#searchword"
	directButton   = `//*[@id="frm"]/div[2]/div/a[1]`
	listBody       = "#_list_body"
	resultXPath    = `//*[@id="tab-1"]/div[2]/div[2]/div[1]`
	viewportWidth  = 1920
	viewportHeight = 1080
)

const submitScript = `(function() {
	var btn = document.querySelector('a.sch_btn, button.sch_btn');
	if (btn) { btn.click(); return true; }
	var form = document.querySelector('form');
	if (form) { form.submit(); return true; }
	return false;
})()`

// Result is the outcome of one scrape.
type Result struct {
	Items      []model.RawRecord
	Screenshot []byte
	PageURL    string
}

// Options configures the browser scraper.
type Options struct {
	BaseURL   string
	ExecPath  string
	UserAgent string
	// Settle is how long to wait after each navigation step for the page
	// scripts to render.
	Settle time.Duration
}

// Chrome scrapes onbid with a headless Chrome driven over CDP.
type Chrome struct {
	base      *url.URL
	allocOpts []chromedp.ExecAllocatorOption
	settle    time.Duration
	log       *slog.Logger
}

// NewChrome returns a scraper for the site at opts.BaseURL.
func NewChrome(opts Options, log *slog.Logger) (*Chrome, error) {
	raw := opts.BaseURL
	if raw == "" {
		raw = DefaultBaseURL
	}
	base, err := url.Parse(raw)
	if err != nil || base.Scheme == "" || base.Host == "" {
		return nil, fmt.Errorf("invalid base URL %q", raw)
	}

	ua := opts.UserAgent
	if ua == "" {
		ua = `Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0.0.0 Safari/537.36`
	}
	allocOpts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", true),
		chromedp.Flag("disable-gpu", true),
		chromedp.Flag("no-sandbox", true),
		chromedp.Flag("disable-dev-shm-usage", true),
		chromedp.WindowSize(viewportWidth, viewportHeight),
		chromedp.UserAgent(ua),
	)
	if opts.ExecPath != "" {
		allocOpts = append(allocOpts, chromedp.ExecPath(opts.ExecPath))
	}

	settle := opts.Settle
	if settle <= 0 {
		settle = 2 * time.Second
	}

	return &Chrome{base: base, allocOpts: allocOpts, settle: settle, log: log}, nil
}

// Scrape searches for keyword and returns every listed record. A failed
// screenshot is logged and leaves Result.Screenshot empty.
func (c *Chrome) Scrape(ctx context.Context, keyword string) (*Result, error) {
	allocCtx, cancelAlloc := chromedp.NewExecAllocator(ctx, c.allocOpts...)
	defer cancelAlloc()

	taskCtx, cancelTask := chromedp.NewContext(allocCtx,
		chromedp.WithLogf(c.debugf),
		chromedp.WithErrorf(c.debugf),
	)
	defer cancelTask()

	if err := c.search(taskCtx, keyword); err != nil {
		return nil, err
	}
	if err := c.openListTab(taskCtx, keyword); err != nil {
		return nil, err
	}

	var (
		html     string
		location string
	)
	if err := chromedp.Run(taskCtx,
		chromedp.WaitReady(listBody, chromedp.ByQuery),
		chromedp.OuterHTML(listBody, &html, chromedp.ByQuery),
		chromedp.Location(&location),
	); err != nil {
		return nil, fmt.Errorf("read result list: %w", err)
	}

	base := c.base
	if u, err := url.Parse(location); err == nil && u.Host != "" {
		base = u
	}
	items, err := ParseListing(html, base)
	if err != nil {
		return nil, err
	}
	c.log.Info("scraped result list", "keyword", keyword, "rows", len(items), "url", location)

	shot, err := c.screenshot(taskCtx)
	if err != nil {
		c.log.Warn("capture screenshot", "keyword", keyword, "error", err)
	}

	return &Result{Items: items, Screenshot: shot, PageURL: location}, nil
}

func (c *Chrome) search(ctx context.Context, keyword string) error {
	var submitted bool
	err := chromedp.Run(ctx,
		chromedp.Navigate(c.base.String()),
		chromedp.WaitReady(searchInput, chromedp.ByQuery),
		chromedp.SetValue(searchInput, keyword, chromedp.ByQuery),
		chromedp.Evaluate(submitScript, &submitted),
		chromedp.Sleep(c.settle),
	)
	if err != nil {
		return fmt.Errorf("submit search: %w", err)
	}
	if !submitted {
		return errors.New("submit search: no search button or form on page")
	}
	return nil
}

// openListTab switches to the bid item tab, falling back to the standalone
// list page when the tab is not rendered.
func (c *Chrome) openListTab(ctx context.Context, keyword string) error {
	for _, xpath := range []string{tabXPath, tabTextXPath} {
		ok, err := exists(ctx, xpath)
		if err != nil {
			return fmt.Errorf("find list tab: %w", err)
		}
		if !ok {
			continue
		}
		if err := chromedp.Run(ctx, clickXPath(xpath), chromedp.Sleep(c.settle)); err != nil {
			return fmt.Errorf("open list tab: %w", err)
		}
		return nil
	}

	c.log.Info("list tab not found, opening list page directly", "keyword", keyword)
	direct := c.base.ResolveReference(&url.URL{Path: directPath})
	err := chromedp.Run(ctx,
		chromedp.Navigate(direct.String()),
		chromedp.WaitReady(directInput, chromedp.ByQuery),
		chromedp.SetValue(directInput, keyword, chromedp.ByQuery),
		clickXPath(directButton),
		chromedp.Sleep(c.settle),
	)
	if err != nil {
		return fmt.Errorf("search list page: %w", err)
	}
	return nil
}

func (c *Chrome) screenshot(ctx context.Context) ([]byte, error) {
	ok, err := exists(ctx, resultXPath)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, errors.New("result table not found")
	}
	var buf []byte
	if err := chromedp.Run(ctx,
		chromedp.EmulateViewport(viewportWidth, viewportHeight, chromedp.EmulateScale(2)),
		chromedp.Screenshot(resultXPath, &buf, chromedp.BySearch),
	); err != nil {
		return nil, err
	}
	return buf, nil
}

func (c *Chrome) debugf(format string, args ...any) {
	c.log.Debug(fmt.Sprintf(format, args...))
}

func exists(ctx context.Context, sel string) (bool, error) {
	var nodes []*cdp.Node
	if err := chromedp.Run(ctx, chromedp.Nodes(sel, &nodes, chromedp.BySearch, chromedp.AtLeast(0))); err != nil {
		return false, err
	}
	return len(nodes) > 0, nil
}

// clickXPath clicks through the DOM so hidden or overlaid elements still
// receive the event.
func clickXPath(xpath string) chromedp.Action {
	lit, _ := json.Marshal(xpath)
	script := fmt.Sprintf(`(function() {
	var el = document.evaluate(%s, document, null, XPathResult.FIRST_ORDERED_NODE_TYPE, null).singleNodeValue;
	if (!el) { return false; }
	el.click();
	return true;
})()`, lit)
	return chromedp.ActionFunc(func(ctx context.Context) error {
		var clicked bool
		if err := chromedp.Evaluate(script, &clicked).Do(ctx); err != nil {
			return err
		}
		if !clicked {
			return fmt.Errorf("element %s not found", xpath)
		}
		return nil
	})
}
