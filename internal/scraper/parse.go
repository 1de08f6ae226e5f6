package scraper

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"onbid_bot/internal/model"
)

// ParseListing extracts bid records from the HTML of the result list.
//
// Each row holds the title in the second span of the first cell, the link
// in the first, and the bid period in the third cell. Parsing stops at the
// first row missing any of them, which is how the site renders an empty
// result. Relative links are resolved against base.
func ParseListing(html string, base *url.URL) ([]model.RawRecord, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return nil, fmt.Errorf("parse listing: %w", err)
	}

	records := []model.RawRecord{}
	doc.Find("table > tbody > tr").EachWithBreak(func(_ int, row *goquery.Selection) bool {
		rec, ok := parseRow(row, base)
		if !ok {
			return false
		}
		records = append(records, rec)
		return true
	})
	return records, nil
}

func parseRow(row *goquery.Selection, base *url.URL) (model.RawRecord, bool) {
	cells := row.ChildrenFiltered("td")
	if cells.Length() < 3 {
		return model.RawRecord{}, false
	}

	spans := cells.Eq(0).ChildrenFiltered("span").First().ChildrenFiltered("span")
	title := spans.Eq(1)
	anchor := spans.Eq(0).ChildrenFiltered("a").First()
	if title.Length() == 0 || anchor.Length() == 0 {
		return model.RawRecord{}, false
	}

	href, _ := anchor.Attr("href")
	return model.RawRecord{
		Title:   cleanText(title.Text()),
		BidDate: cleanText(cells.Eq(2).Text()),
		Link:    resolveLink(base, strings.TrimSpace(href)),
	}, true
}

// cleanText collapses runs of whitespace the way rendered text reads.
func cleanText(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

func resolveLink(base *url.URL, href string) string {
	if base == nil || href == "" {
		return href
	}
	ref, err := url.Parse(href)
	if err != nil {
		return href
	}
	return base.ResolveReference(ref).String()
}
