/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

// Package feeds pulls new entries from the configured blog feed and
// normalizes them for extraction.
package feeds

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/mmcdole/gofeed"
	"github.com/rs/zerolog"
)

// DefaultLimit bounds how many of the newest feed items one fetch
// run considers.
const DefaultLimit = 5

// Entry is a normalized feed item.
type Entry struct {
	URL         string
	Title       string
	Content     string
	PublishedAt time.Time
}

// Fetcher reads RSS/Atom feeds.
type Fetcher struct {
	parser *gofeed.Parser
	logger zerolog.Logger
}

// NewFetcher creates a feed fetcher.
func NewFetcher(logger zerolog.Logger) *Fetcher {
	parser := gofeed.NewParser()
	parser.UserAgent = "muninpost"
	return &Fetcher{
		parser: parser,
		logger: logger.With().Str("component", "feeds").Logger(),
	}
}

// Fetch returns up to limit of the newest entries, skipping anything
// published before minDate. Items whose publish date cannot be
// determined are skipped rather than guessed at, since an unknown
// date could be older than the cutoff.
func (f *Fetcher) Fetch(ctx context.Context, feedURL string, limit int, minDate time.Time) ([]Entry, error) {
	if limit <= 0 {
		limit = DefaultLimit
	}

	feed, err := f.parser.ParseURLWithContext(feedURL, ctx)
	if err != nil {
		return nil, fmt.Errorf("parse feed %s: %w", feedURL, err)
	}

	entries := make([]Entry, 0, limit)
	for _, item := range feed.Items {
		if len(entries) >= limit {
			break
		}
		if item.Link == "" {
			f.logger.Warn().Str("title", item.Title).Msg("skipping feed item without link")
			continue
		}

		published := item.PublishedParsed
		if published == nil {
			published = item.UpdatedParsed
		}
		if published == nil {
			f.logger.Warn().Str("url", item.Link).Msg("skipping feed item with unparseable date")
			continue
		}
		if !minDate.IsZero() && published.Before(minDate) {
			f.logger.Debug().Str("url", item.Link).Time("published", *published).Msg("skipping feed item older than minimum date")
			continue
		}

		entries = append(entries, Entry{
			URL:         item.Link,
			Title:       strings.TrimSpace(item.Title),
			Content:     extractText(item),
			PublishedAt: published.UTC(),
		})
	}

	f.logger.Info().Str("feed", feedURL).Int("total_items", len(feed.Items)).Int("accepted", len(entries)).Msg("feed fetched")
	return entries, nil
}

// extractText prefers full content over the summary and strips HTML
// down to readable text for the extraction prompt.
func extractText(item *gofeed.Item) string {
	raw := item.Content
	if strings.TrimSpace(raw) == "" {
		raw = item.Description
	}
	return CleanHTML(raw)
}

// CleanHTML reduces an HTML fragment to plain text with collapsed
// whitespace.
func CleanHTML(raw string) string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return ""
	}

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(raw))
	if err != nil {
		return raw
	}
	doc.Find("script, style").Remove()

	return strings.Join(strings.Fields(doc.Text()), " ")
}
