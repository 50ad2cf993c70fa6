/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

// Package store is the durable record of blog posts, messages, and
// delivery attempts. It implements the scheduling engine's persistence
// surface and the maintenance operations the CLI exposes.
package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"gorm.io/gorm"

	"github.com/friendsincode/munin_post/internal/models"
	"github.com/friendsincode/munin_post/internal/scheduler"
)

// ErrNotFound reports a missing record.
var ErrNotFound = errors.New("store: record not found")

// Store wraps the gorm handle. It is passed explicitly to every
// component that needs persistence; there is no package-level instance.
type Store struct {
	db     *gorm.DB
	logger zerolog.Logger
}

// New wraps an open gorm connection and migrates the schema.
func New(db *gorm.DB, logger zerolog.Logger) (*Store, error) {
	if err := db.AutoMigrate(models.All()...); err != nil {
		return nil, fmt.Errorf("migrate schema: %w", err)
	}
	return &Store{
		db:     db,
		logger: logger.With().Str("component", "store").Logger(),
	}, nil
}

// DB exposes the underlying handle for migration tooling.
func (s *Store) DB() *gorm.DB { return s.db }

// CommittedSlots returns every assigned posting instant, scheduled and
// already-posted alike; a past slot still occupies its (date, time)
// pair.
func (s *Store) CommittedSlots(ctx context.Context) ([]time.Time, error) {
	var rows []time.Time
	err := s.db.WithContext(ctx).
		Model(&models.Message{}).
		Where("scheduled_for IS NOT NULL").
		Pluck("scheduled_for", &rows).Error
	if err != nil {
		return nil, fmt.Errorf("load committed slots: %w", err)
	}
	return rows, nil
}

// NextEligible returns the record with the minimum scheduled_for, id
// ascending on ties, among records with a schedule and at least one
// unposted destination. Nil when none exists.
func (s *Store) NextEligible(ctx context.Context) (*models.Message, error) {
	var msg models.Message
	err := s.db.WithContext(ctx).
		Where("scheduled_for IS NOT NULL").
		Where("posted_to_linked_in = ? OR posted_to_x = ?", false, false).
		Order("scheduled_for ASC, id ASC").
		Preload("BlogPost").
		First(&msg).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("query next eligible: %w", err)
	}
	return &msg, nil
}

// ScheduleBatch persists a batch of assignments in one transaction.
// Either every sibling receives its timestamp or none do.
func (s *Store) ScheduleBatch(ctx context.Context, assignments []scheduler.Assignment) error {
	if len(assignments) == 0 {
		return nil
	}
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for _, a := range assignments {
			at := a.At
			res := tx.Model(&models.Message{}).
				Where("id = ? AND scheduled_for IS NULL", a.MessageID).
				Update("scheduled_for", &at)
			if res.Error != nil {
				return fmt.Errorf("assign slot to %s: %w", a.MessageID, res.Error)
			}
			// A zero row count means the record is missing or already
			// scheduled; either way the batch must not half-commit.
			if res.RowsAffected == 0 {
				return fmt.Errorf("assign slot to %s: %w", a.MessageID, ErrNotFound)
			}
		}
		return nil
	})
}

// MarkPosted sets one destination flag and posted_at after a
// successful publish.
func (s *Store) MarkPosted(ctx context.Context, messageID string, dest models.Destination, at time.Time) error {
	var column string
	switch dest {
	case models.DestinationLinkedIn:
		column = "posted_to_linked_in"
	case models.DestinationX:
		column = "posted_to_x"
	default:
		return fmt.Errorf("unknown destination %q", dest)
	}
	res := s.db.WithContext(ctx).Model(&models.Message{}).
		Where("id = ?", messageID).
		Updates(map[string]any{column: true, "posted_at": &at})
	if res.Error != nil {
		return fmt.Errorf("mark posted %s/%s: %w", messageID, dest, res.Error)
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("mark posted %s/%s: %w", messageID, dest, ErrNotFound)
	}
	return nil
}

// SavePost stores a fetched blog post with its extracted messages in
// one transaction. Returns the existing record when the URL is already
// known.
func (s *Store) SavePost(ctx context.Context, post *models.BlogPost) (*models.BlogPost, bool, error) {
	existing, err := s.PostByURL(ctx, post.URL)
	if err != nil && !errors.Is(err, ErrNotFound) {
		return nil, false, err
	}
	if existing != nil {
		return existing, false, nil
	}
	if err := s.db.WithContext(ctx).Create(post).Error; err != nil {
		return nil, false, fmt.Errorf("save post %s: %w", post.URL, err)
	}
	return post, true, nil
}

// PostByURL fetches a blog post with its messages, or ErrNotFound.
func (s *Store) PostByURL(ctx context.Context, url string) (*models.BlogPost, error) {
	var post models.BlogPost
	err := s.db.WithContext(ctx).
		Where("url = ?", url).
		Preload("Messages", func(db *gorm.DB) *gorm.DB {
			return db.Order("ordinal ASC")
		}).
		First(&post).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("load post by url: %w", err)
	}
	return &post, nil
}

// KnownURL reports whether a post with this URL is already stored.
func (s *Store) KnownURL(ctx context.Context, url string) (bool, error) {
	var n int64
	err := s.db.WithContext(ctx).Model(&models.BlogPost{}).
		Where("url = ?", url).Count(&n).Error
	if err != nil {
		return false, fmt.Errorf("check known url: %w", err)
	}
	return n > 0, nil
}

// SetImage records the generated image reference on a message.
func (s *Store) SetImage(ctx context.Context, messageID, key, url string) error {
	res := s.db.WithContext(ctx).Model(&models.Message{}).
		Where("id = ?", messageID).
		Updates(map[string]any{"image_key": key, "image_url": url})
	if res.Error != nil {
		return fmt.Errorf("set image on %s: %w", messageID, res.Error)
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("set image on %s: %w", messageID, ErrNotFound)
	}
	return nil
}

// LogDelivery records one publish attempt.
func (s *Store) LogDelivery(ctx context.Context, entry *models.DeliveryLog) error {
	if err := s.db.WithContext(ctx).Create(entry).Error; err != nil {
		return fmt.Errorf("log delivery: %w", err)
	}
	return nil
}

// Counts summarizes store contents for the status command.
type Counts struct {
	Posts         int64
	Messages      int64
	FullyPosted   int64
	PartiallyDone int64
	Unscheduled   int64
}

// Count tallies posts and message states.
func (s *Store) Count(ctx context.Context) (Counts, error) {
	var c Counts
	db := s.db.WithContext(ctx)
	if err := db.Model(&models.BlogPost{}).Count(&c.Posts).Error; err != nil {
		return c, fmt.Errorf("count posts: %w", err)
	}
	if err := db.Model(&models.Message{}).Count(&c.Messages).Error; err != nil {
		return c, fmt.Errorf("count messages: %w", err)
	}
	if err := db.Model(&models.Message{}).
		Where("posted_to_linked_in = ? AND posted_to_x = ?", true, true).
		Count(&c.FullyPosted).Error; err != nil {
		return c, fmt.Errorf("count fully posted: %w", err)
	}
	if err := db.Model(&models.Message{}).
		Where("(posted_to_linked_in = ? OR posted_to_x = ?)", true, true).
		Where("NOT (posted_to_linked_in = ? AND posted_to_x = ?)", true, true).
		Count(&c.PartiallyDone).Error; err != nil {
		return c, fmt.Errorf("count partially posted: %w", err)
	}
	if err := db.Model(&models.Message{}).
		Where("scheduled_for IS NULL").
		Count(&c.Unscheduled).Error; err != nil {
		return c, fmt.Errorf("count unscheduled: %w", err)
	}
	return c, nil
}

// Upcoming returns the next scheduled-but-unfinished messages by
// scheduled_for ascending.
func (s *Store) Upcoming(ctx context.Context, limit int) ([]models.Message, error) {
	var msgs []models.Message
	err := s.db.WithContext(ctx).
		Where("scheduled_for IS NOT NULL").
		Where("posted_to_linked_in = ? OR posted_to_x = ?", false, false).
		Order("scheduled_for ASC, id ASC").
		Limit(limit).
		Preload("BlogPost").
		Find(&msgs).Error
	if err != nil {
		return nil, fmt.Errorf("load upcoming: %w", err)
	}
	return msgs, nil
}

// StaleUnposted returns unfinished messages whose scheduled_for lies in
// the past, for rescheduling onto fresh slots.
func (s *Store) StaleUnposted(ctx context.Context, now time.Time) ([]models.Message, error) {
	var msgs []models.Message
	err := s.db.WithContext(ctx).
		Where("scheduled_for IS NOT NULL AND scheduled_for < ?", now).
		Where("posted_to_linked_in = ? AND posted_to_x = ?", false, false).
		Order("scheduled_for ASC, id ASC").
		Find(&msgs).Error
	if err != nil {
		return nil, fmt.Errorf("load stale unposted: %w", err)
	}
	return msgs, nil
}

// Reschedule moves a message onto a new slot regardless of its current
// assignment. Used by the reschedule maintenance command only; the
// scheduler itself assigns each record exactly once.
func (s *Store) Reschedule(ctx context.Context, messageID string, at time.Time) error {
	res := s.db.WithContext(ctx).Model(&models.Message{}).
		Where("id = ?", messageID).
		Update("scheduled_for", &at)
	if res.Error != nil {
		return fmt.Errorf("reschedule %s: %w", messageID, res.Error)
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("reschedule %s: %w", messageID, ErrNotFound)
	}
	return nil
}

// DeleteUnposted removes messages with no completed destination,
// optionally restricted to one post URL. Returns the number removed.
// This is the external maintenance deletion; the publishing path never
// deletes records.
func (s *Store) DeleteUnposted(ctx context.Context, postURL string) (int64, error) {
	db := s.db.WithContext(ctx).
		Where("posted_to_linked_in = ? AND posted_to_x = ?", false, false)
	if postURL != "" {
		post, err := s.PostByURL(ctx, postURL)
		if err != nil {
			return 0, err
		}
		db = db.Where("blog_post_id = ?", post.ID)
	}
	res := db.Delete(&models.Message{})
	if res.Error != nil {
		return 0, fmt.Errorf("delete unposted: %w", res.Error)
	}
	s.logger.Info().Int64("deleted", res.RowsAffected).Str("post_url", postURL).Msg("unposted messages cleared")
	return res.RowsAffected, nil
}
