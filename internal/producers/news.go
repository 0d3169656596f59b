/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package producers

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/mmcdole/gofeed"
	"github.com/rs/zerolog"

	"github.com/friendsincode/navo_radio/internal/version"
)

const (
	newsItems      = 5
	newsSummaryMax = 500
)

// RSSNews reads headlines from an RSS or Atom feed.
type RSSNews struct {
	URL string

	parser *gofeed.Parser
	logger zerolog.Logger
}

// NewRSSNews creates a headline source for feedURL.
func NewRSSNews(feedURL string, logger zerolog.Logger) *RSSNews {
	parser := gofeed.NewParser()
	parser.Client = newHTTPClient(15 * time.Second)
	parser.UserAgent = version.UserAgent()
	return &RSSNews{
		URL:    feedURL,
		parser: parser,
		logger: logger.With().Str("component", "news").Logger(),
	}
}

// Headlines returns "title. summary" paragraphs for the first few items.
func (n *RSSNews) Headlines(ctx context.Context) (string, error) {
	if n.URL == "" {
		return "", fmt.Errorf("news: %w: feed url is empty", ErrNotConfigured)
	}

	feed, err := n.parser.ParseURLWithContext(n.URL, ctx)
	if err != nil {
		var httpErr gofeed.HTTPError
		if errors.As(err, &httpErr) {
			return "", &StatusError{Service: "news", Code: httpErr.StatusCode, Body: httpErr.Status}
		}
		return "", fmt.Errorf("news: parse feed: %w", err)
	}

	paragraphs := make([]string, 0, newsItems)
	for i, item := range feed.Items {
		if i == newsItems {
			break
		}
		title := strings.TrimSpace(item.Title)
		summary := truncateRunes(plainText(item.Description), newsSummaryMax)
		if title == "" && summary == "" {
			continue
		}
		paragraphs = append(paragraphs, strings.TrimSpace(fmt.Sprintf("%s. %s", title, summary)))
	}

	n.logger.Debug().Int("items", len(paragraphs)).Str("feed", feed.Title).Msg("headlines fetched")
	return strings.Join(paragraphs, "\n\n"), nil
}

// plainText drops markup from feed summaries.
func plainText(html string) string {
	html = strings.TrimSpace(html)
	if html == "" || !strings.Contains(html, "<") {
		return html
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return html
	}
	return strings.Join(strings.Fields(doc.Text()), " ")
}
