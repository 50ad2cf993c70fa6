/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

// Package migration imports the predecessor's sqlite database. The
// legacy schema stores every timestamp as an ISO-8601 string; records
// with unparseable dates are skipped and counted, never guessed at.
package migration

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/rs/zerolog"

	"github.com/friendsincode/munin_post/internal/models"
	"github.com/friendsincode/munin_post/internal/store"
)

// Report tallies one import run.
type Report struct {
	Posts           int
	Messages        int
	KnownPosts      int
	SkippedPosts    int
	SkippedMessages int
}

// Importer copies legacy rows into the store.
type Importer struct {
	store  *store.Store
	loc    *time.Location
	logger zerolog.Logger
}

// NewImporter creates an importer. Naive legacy timestamps are
// interpreted in loc, the schedule plan's timezone.
func NewImporter(st *store.Store, loc *time.Location, logger zerolog.Logger) *Importer {
	return &Importer{
		store:  st,
		loc:    loc,
		logger: logger.With().Str("component", "migration").Logger(),
	}
}

type legacyMessage struct {
	index        int
	text         string
	linkedinDone bool
	xDone        bool
	postedAt     sql.NullString
	scheduledFor sql.NullString
	imageURL     sql.NullString
}

// ImportLegacy reads the predecessor database at path and inserts its
// posts and messages. Posts whose URL is already stored are skipped,
// so repeated runs are safe.
func (i *Importer) ImportLegacy(ctx context.Context, path string) (*Report, error) {
	legacy, err := sql.Open("sqlite3", fmt.Sprintf("file:%s?mode=ro", path))
	if err != nil {
		return nil, fmt.Errorf("open legacy database: %w", err)
	}
	defer legacy.Close()

	if err := legacy.PingContext(ctx); err != nil {
		return nil, fmt.Errorf("open legacy database: %w", err)
	}

	hasScheduledFor, err := columnExists(ctx, legacy, "posted_messages", "scheduled_for")
	if err != nil {
		return nil, err
	}
	hasImageURL, err := columnExists(ctx, legacy, "posted_messages", "image_url")
	if err != nil {
		return nil, err
	}

	rows, err := legacy.QueryContext(ctx,
		`SELECT id, post_url, title, content, published_date, fetched_at FROM blog_posts ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("read legacy posts: %w", err)
	}
	defer rows.Close()

	report := &Report{}
	for rows.Next() {
		var legacyID int64
		var url, title, content, publishedStr, fetchedStr string
		if err := rows.Scan(&legacyID, &url, &title, &content, &publishedStr, &fetchedStr); err != nil {
			return report, fmt.Errorf("scan legacy post: %w", err)
		}

		published, err := i.parseTimestamp(publishedStr)
		if err != nil {
			report.SkippedPosts++
			i.logger.Warn().Str("url", url).Str("published_date", publishedStr).Msg("skipping post with unparseable published date")
			continue
		}
		fetched, err := i.parseTimestamp(fetchedStr)
		if err != nil {
			fetched = published
		}

		msgs, skipped, err := i.loadMessages(ctx, legacy, legacyID, hasScheduledFor, hasImageURL)
		if err != nil {
			return report, err
		}
		report.SkippedMessages += skipped

		post := &models.BlogPost{
			URL:         url,
			Title:       title,
			Content:     content,
			PublishedAt: published,
			FetchedAt:   fetched,
			Messages:    msgs,
		}
		_, created, err := i.store.SavePost(ctx, post)
		if err != nil {
			return report, fmt.Errorf("import post %s: %w", url, err)
		}
		if !created {
			report.KnownPosts++
			continue
		}
		report.Posts++
		report.Messages += len(msgs)
	}
	if err := rows.Err(); err != nil {
		return report, fmt.Errorf("read legacy posts: %w", err)
	}

	i.logger.Info().
		Int("posts", report.Posts).
		Int("messages", report.Messages).
		Int("known", report.KnownPosts).
		Int("skipped_posts", report.SkippedPosts).
		Int("skipped_messages", report.SkippedMessages).
		Msg("legacy import complete")
	return report, nil
}

func (i *Importer) loadMessages(ctx context.Context, legacy *sql.DB, legacyPostID int64, hasScheduledFor, hasImageURL bool) ([]models.Message, int, error) {
	cols := "message_index, message_text, posted_to_linkedin, posted_to_x, posted_at"
	if hasScheduledFor {
		cols += ", scheduled_for"
	}
	if hasImageURL {
		cols += ", image_url"
	}

	rows, err := legacy.QueryContext(ctx,
		fmt.Sprintf("SELECT %s FROM posted_messages WHERE blog_post_id = ? ORDER BY message_index", cols),
		legacyPostID)
	if err != nil {
		return nil, 0, fmt.Errorf("read legacy messages: %w", err)
	}
	defer rows.Close()

	var out []models.Message
	skipped := 0
	for rows.Next() {
		var m legacyMessage
		dest := []any{&m.index, &m.text, &m.linkedinDone, &m.xDone, &m.postedAt}
		if hasScheduledFor {
			dest = append(dest, &m.scheduledFor)
		}
		if hasImageURL {
			dest = append(dest, &m.imageURL)
		}
		if err := rows.Scan(dest...); err != nil {
			return nil, skipped, fmt.Errorf("scan legacy message: %w", err)
		}

		msg := models.Message{
			Ordinal:          m.index,
			Text:             m.text,
			PostedToLinkedIn: m.linkedinDone,
			PostedToX:        m.xDone,
			ImageURL:         m.imageURL.String,
		}

		if m.scheduledFor.Valid && m.scheduledFor.String != "" {
			at, err := i.parseTimestamp(m.scheduledFor.String)
			if err != nil {
				skipped++
				i.logger.Warn().Int64("legacy_post", legacyPostID).Int("index", m.index).Str("scheduled_for", m.scheduledFor.String).Msg("skipping message with unparseable schedule")
				continue
			}
			msg.ScheduledFor = &at
		}
		if m.postedAt.Valid && m.postedAt.String != "" {
			at, err := i.parseTimestamp(m.postedAt.String)
			if err != nil {
				skipped++
				i.logger.Warn().Int64("legacy_post", legacyPostID).Int("index", m.index).Str("posted_at", m.postedAt.String).Msg("skipping message with unparseable posted_at")
				continue
			}
			msg.PostedAt = &at
		}

		out = append(out, msg)
	}
	return out, skipped, rows.Err()
}

// parseTimestamp accepts the ISO-8601 shapes the predecessor wrote:
// RFC3339 with offset, or a naive local timestamp with optional
// fractional seconds.
func (i *Importer) parseTimestamp(s string) (time.Time, error) {
	for _, layout := range []string{time.RFC3339Nano, time.RFC3339} {
		if t, err := time.Parse(layout, s); err == nil {
			return t, nil
		}
	}
	for _, layout := range []string{"2006-01-02T15:04:05.999999", "2006-01-02T15:04:05", "2006-01-02 15:04:05", "2006-01-02"} {
		if t, err := time.ParseInLocation(layout, s, i.loc); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("unparseable timestamp %q", s)
}

func columnExists(ctx context.Context, db *sql.DB, table, column string) (bool, error) {
	rows, err := db.QueryContext(ctx, fmt.Sprintf("PRAGMA table_info(%s)", table))
	if err != nil {
		return false, fmt.Errorf("inspect %s: %w", table, err)
	}
	defer rows.Close()

	for rows.Next() {
		var cid int
		var name, typ string
		var notNull int
		var dflt sql.NullString
		var pk int
		if err := rows.Scan(&cid, &name, &typ, &notNull, &dflt, &pk); err != nil {
			return false, err
		}
		if name == column {
			return true, nil
		}
	}
	return false, rows.Err()
}
