/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

// Package syndication orchestrates the two workflows: ingesting blog
// posts into scheduled messages, and publishing the single due message
// to its destinations.
package syndication

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/friendsincode/munin_post/internal/destinations"
	"github.com/friendsincode/munin_post/internal/events"
	"github.com/friendsincode/munin_post/internal/extractor"
	"github.com/friendsincode/munin_post/internal/feeds"
	"github.com/friendsincode/munin_post/internal/imagegen"
	"github.com/friendsincode/munin_post/internal/models"
	"github.com/friendsincode/munin_post/internal/runlock"
	"github.com/friendsincode/munin_post/internal/scheduler"
	"github.com/friendsincode/munin_post/internal/slots"
	"github.com/friendsincode/munin_post/internal/storage"
	"github.com/friendsincode/munin_post/internal/telemetry"
)

// Hashtags appended per destination, matching the house style the
// rendered posts have always used.
var (
	linkedInHashtags = []string{"blog", "insights"}
	xHashtags        = []string{"blog", "tech"}
)

// FeedFetcher pulls normalized entries from the blog feed.
type FeedFetcher interface {
	Fetch(ctx context.Context, feedURL string, limit int, minDate time.Time) ([]feeds.Entry, error)
}

// MessageExtractor turns a post into standalone messages.
type MessageExtractor interface {
	ExtractMessages(ctx context.Context, title, content string, n int) ([]string, error)
}

// ImageGenerator produces and stores one image per message batch.
type ImageGenerator interface {
	GenerateForMessage(ctx context.Context, title, messageText, messageID string) (*imagegen.Result, error)
}

// Store is the persistence surface the orchestrator needs beyond the
// scheduling engine's.
type Store interface {
	scheduler.Store
	KnownURL(ctx context.Context, url string) (bool, error)
	SavePost(ctx context.Context, post *models.BlogPost) (*models.BlogPost, bool, error)
	SetImage(ctx context.Context, messageID, key, url string) error
	LogDelivery(ctx context.Context, entry *models.DeliveryLog) error
}

// Config carries the orchestration knobs.
type Config struct {
	FeedURL         string
	FeedLimit       int
	PostsPerBlog    int
	MinimumPostDate time.Time
	MaxScheduleDays int
	GenerateImages  bool
}

// Service wires the pipeline together.
type Service struct {
	cfg      Config
	store    Store
	planner  *scheduler.Planner
	selector *scheduler.Selector
	fetcher  FeedFetcher
	extract  MessageExtractor
	images   ImageGenerator
	objects  storage.ObjectStore
	dests    []destinations.Destination
	locker   runlock.Locker
	bus      *events.Bus
	logger   zerolog.Logger
	now      func() time.Time
}

// NewService creates the orchestrator. images may be nil when image
// generation is disabled; dests may be empty (publish becomes a no-op
// with a warning).
func NewService(
	cfg Config,
	store Store,
	planner *scheduler.Planner,
	fetcher FeedFetcher,
	extract MessageExtractor,
	images ImageGenerator,
	objects storage.ObjectStore,
	dests []destinations.Destination,
	locker runlock.Locker,
	bus *events.Bus,
	logger zerolog.Logger,
) *Service {
	if locker == nil {
		locker = runlock.Noop{}
	}
	if bus == nil {
		bus = events.NewBus()
	}
	log := logger.With().Str("component", "syndication").Logger()
	return &Service{
		cfg:      cfg,
		store:    store,
		planner:  planner,
		selector: scheduler.NewSelector(store, logger),
		fetcher:  fetcher,
		extract:  extract,
		images:   images,
		objects:  objects,
		dests:    dests,
		locker:   locker,
		bus:      bus,
		logger:   log,
		now:      time.Now,
	}
}

// FetchReport summarizes one RunFetch.
type FetchReport struct {
	Fetched   int
	Known     int
	Scheduled int
	Deferred  int
	Failed    int
}

// RunFetch ingests new blog posts: fetch the feed, skip known URLs,
// extract messages, optionally generate an image, gate on the
// scheduling horizon, and persist the batch atomically. A deferred
// post is not stored; the next run retries it from the feed.
func (s *Service) RunFetch(ctx context.Context) (*FetchReport, error) {
	ctx, span := telemetry.StartSpan(ctx, "syndication", "RunFetch")
	defer span.End()

	release, err := s.locker.Acquire(ctx, "fetch")
	if err != nil {
		if errors.Is(err, runlock.ErrLockHeld) {
			s.logger.Info().Msg("fetch already running elsewhere, skipping")
			return &FetchReport{}, nil
		}
		return nil, err
	}
	defer release()

	report := &FetchReport{}
	entries, err := s.fetcher.Fetch(ctx, s.cfg.FeedURL, s.cfg.FeedLimit, s.cfg.MinimumPostDate)
	if err != nil {
		telemetry.FetchRunsTotal.WithLabelValues("error").Inc()
		telemetry.RecordError(span, err)
		return nil, fmt.Errorf("fetch feed: %w", err)
	}
	report.Fetched = len(entries)
	telemetry.PostsFetchedTotal.Add(float64(len(entries)))

	for _, entry := range entries {
		known, err := s.store.KnownURL(ctx, entry.URL)
		if err != nil {
			return report, err
		}
		if known {
			report.Known++
			continue
		}

		switch err := s.ingest(ctx, entry); {
		case err == nil:
			report.Scheduled++
		case errors.Is(err, errDeferred):
			report.Deferred++
		default:
			report.Failed++
			s.logger.Error().Err(err).Str("url", entry.URL).Msg("post ingestion failed")
		}
	}

	outcome := "ok"
	if report.Failed > 0 {
		outcome = "partial"
	}
	telemetry.FetchRunsTotal.WithLabelValues(outcome).Inc()
	telemetry.AddSpanAttributes(span, map[string]any{
		"fetch.entries":   report.Fetched,
		"fetch.scheduled": report.Scheduled,
		"fetch.deferred":  report.Deferred,
		"fetch.failed":    report.Failed,
	})

	s.logger.Info().
		Int("fetched", report.Fetched).
		Int("known", report.Known).
		Int("scheduled", report.Scheduled).
		Int("deferred", report.Deferred).
		Int("failed", report.Failed).
		Msg("fetch run complete")
	return report, nil
}

// errDeferred marks a batch pushed to the next run by the horizon gate.
var errDeferred = errors.New("batch deferred")

// ingest processes one new feed entry end to end.
func (s *Service) ingest(ctx context.Context, entry feeds.Entry) error {
	texts, err := s.extract.ExtractMessages(ctx, entry.Title, entry.Content, s.cfg.PostsPerBlog)
	if err != nil {
		return fmt.Errorf("extract messages: %w", err)
	}
	if len(texts) == 0 {
		return fmt.Errorf("no messages extracted for %s", entry.URL)
	}
	telemetry.MessagesExtractedTotal.Add(float64(len(texts)))

	committed, err := s.committedSet(ctx)
	if err != nil {
		return err
	}

	// Horizon gate: the whole batch waits when its first message
	// cannot start within the configured window.
	ok, err := s.planner.CanScheduleWithinDays(len(texts), committed, s.cfg.MaxScheduleDays, time.Time{})
	if err != nil {
		return fmt.Errorf("feasibility check: %w", err)
	}
	if !ok {
		telemetry.BatchesDeferredTotal.Inc()
		s.bus.Publish(events.EventBatchDeferred, events.Payload{
			"url":      entry.URL,
			"messages": len(texts),
			"horizon":  s.cfg.MaxScheduleDays,
		})
		s.logger.Warn().Str("url", entry.URL).Int("horizon_days", s.cfg.MaxScheduleDays).Msg("schedule full, batch deferred to next run")
		return errDeferred
	}

	times, err := s.planner.ScheduleMessages(len(texts), committed, time.Time{})
	if err != nil {
		telemetry.CalendarExhaustedTotal.Inc()
		return fmt.Errorf("plan batch: %w", err)
	}

	post := &models.BlogPost{
		URL:         entry.URL,
		Title:       entry.Title,
		Content:     entry.Content,
		PublishedAt: entry.PublishedAt,
		FetchedAt:   s.now().UTC(),
	}
	for i, text := range texts {
		post.Messages = append(post.Messages, models.Message{Ordinal: i, Text: text})
	}

	saved, created, err := s.store.SavePost(ctx, post)
	if err != nil {
		return err
	}
	if !created {
		return nil
	}
	s.bus.Publish(events.EventPostFetched, events.Payload{"url": entry.URL, "title": entry.Title})

	assignments := make([]scheduler.Assignment, len(saved.Messages))
	for i := range saved.Messages {
		assignments[i] = scheduler.Assignment{MessageID: saved.Messages[i].ID, At: times[i]}
	}
	if err := s.store.ScheduleBatch(ctx, assignments); err != nil {
		return fmt.Errorf("persist batch: %w", err)
	}
	telemetry.MessagesScheduledTotal.Add(float64(len(assignments)))
	s.bus.Publish(events.EventMessagesScheduled, events.Payload{
		"url":   entry.URL,
		"count": len(assignments),
		"first": times[0].Format(time.RFC3339),
	})

	if s.cfg.GenerateImages && s.images != nil {
		s.generateImage(ctx, entry.Title, saved.Messages[0])
	}

	s.logger.Info().Str("url", entry.URL).Int("messages", len(assignments)).Time("first_slot", times[0]).Msg("post ingested and scheduled")
	return nil
}

// generateImage attaches an illustration to the batch's first message.
// Failures are logged and swallowed; publishing proceeds text-only.
func (s *Service) generateImage(ctx context.Context, title string, msg models.Message) {
	res, err := s.images.GenerateForMessage(ctx, title, msg.Text, msg.ID)
	if err != nil {
		s.logger.Warn().Err(err).Str("message_id", msg.ID).Msg("image generation failed, continuing text-only")
		return
	}
	if err := s.store.SetImage(ctx, msg.ID, res.Key, res.URL); err != nil {
		s.logger.Warn().Err(err).Str("message_id", msg.ID).Msg("failed to record image reference")
		return
	}
	s.bus.Publish(events.EventImageGenerated, events.Payload{"message_id": msg.ID, "key": res.Key})
}

func (s *Service) committedSet(ctx context.Context) (*slots.Committed, error) {
	instants, err := s.store.CommittedSlots(ctx)
	if err != nil {
		return nil, fmt.Errorf("load committed slots: %w", err)
	}
	committed := s.planner.Plan().NewCommitted()
	for _, at := range instants {
		committed.Add(at)
	}
	return committed, nil
}

// PublishReport summarizes one RunPublish.
type PublishReport struct {
	MessageID string
	Published []models.Destination
	Failed    []models.Destination
	Skipped   bool
}

// RunPublish delivers at most one due message. Each destination with
// an unposted flag is attempted independently; a partial failure
// leaves the record eligible for the next run.
func (s *Service) RunPublish(ctx context.Context) (*PublishReport, error) {
	ctx, span := telemetry.StartSpan(ctx, "syndication", "RunPublish")
	defer span.End()

	release, err := s.locker.Acquire(ctx, "publish")
	if err != nil {
		if errors.Is(err, runlock.ErrLockHeld) {
			s.logger.Info().Msg("publish already running elsewhere, skipping")
			return &PublishReport{Skipped: true}, nil
		}
		return nil, err
	}
	defer release()

	msg, err := s.selector.NextDue(ctx)
	if err != nil {
		telemetry.DueChecksTotal.WithLabelValues("error").Inc()
		return nil, err
	}
	if msg == nil {
		telemetry.DueChecksTotal.WithLabelValues("none_due").Inc()
		s.logger.Debug().Msg("no message due")
		return &PublishReport{Skipped: true}, nil
	}
	telemetry.DueChecksTotal.WithLabelValues("due").Inc()
	telemetry.AddSpanAttributes(span, map[string]any{"message.id": msg.ID})

	report := &PublishReport{MessageID: msg.ID}
	blogURL := ""
	blogTitle := ""
	if msg.BlogPost != nil {
		blogURL = msg.BlogPost.URL
		blogTitle = msg.BlogPost.Title
	}

	var image []byte
	if msg.ImageKey != "" && s.objects != nil {
		image, err = s.objects.Get(ctx, msg.ImageKey)
		if err != nil {
			s.logger.Warn().Err(err).Str("key", msg.ImageKey).Msg("stored image unavailable, posting text-only")
			image = nil
		}
	}

	for _, dest := range s.dests {
		name := dest.Name()
		if msg.PostedTo(name) {
			continue
		}

		text := extractor.EnhanceForPlatform(msg.Text, name, blogURL, hashtagsFor(name))
		start := s.now()
		result, err := dest.Publish(ctx, destinations.PublishRequest{
			Text:     text,
			Image:    image,
			ImageAlt: blogTitle,
		})
		telemetry.PublishDuration.WithLabelValues(string(name)).Observe(s.now().Sub(start).Seconds())

		entry := &models.DeliveryLog{MessageID: msg.ID, Destination: name}
		if err != nil {
			telemetry.PublishesTotal.WithLabelValues(string(name), "error").Inc()
			entry.Success = false
			entry.Detail = err.Error()
			report.Failed = append(report.Failed, name)
			s.bus.Publish(events.EventPublishFailed, events.Payload{
				"message_id":  msg.ID,
				"destination": string(name),
				"error":       err.Error(),
			})
			s.logger.Error().Err(err).Str("message_id", msg.ID).Str("destination", string(name)).Msg("publish failed")
		} else {
			telemetry.PublishesTotal.WithLabelValues(string(name), "ok").Inc()
			entry.Success = true
			entry.Detail = result.ExternalID
			report.Published = append(report.Published, name)

			if err := s.store.MarkPosted(ctx, msg.ID, name, s.now().UTC()); err != nil {
				// The remote post exists but the flag write failed; the
				// next run may repost. Surface loudly.
				s.logger.Error().Err(err).Str("message_id", msg.ID).Str("destination", string(name)).Msg("publish succeeded but flag write failed")
			}
			s.bus.Publish(events.EventMessagePublished, events.Payload{
				"message_id":  msg.ID,
				"destination": string(name),
				"external_id": result.ExternalID,
			})
			s.logger.Info().Str("message_id", msg.ID).Str("destination", string(name)).Str("external_id", result.ExternalID).Msg("message published")
		}
		if err := s.store.LogDelivery(ctx, entry); err != nil {
			s.logger.Warn().Err(err).Msg("failed to record delivery log")
		}
	}

	if len(s.dests) == 0 {
		s.logger.Warn().Msg("no destinations configured, due message left untouched")
		report.Skipped = true
	}
	return report, nil
}

// Selector exposes due-selection for the status surfaces.
func (s *Service) Selector() *scheduler.Selector { return s.selector }

func hashtagsFor(dest models.Destination) []string {
	switch dest {
	case models.DestinationLinkedIn:
		return linkedInHashtags
	case models.DestinationX:
		return xHashtags
	}
	return nil
}
