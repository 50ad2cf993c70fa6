/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"gorm.io/gorm"

	"github.com/friendsincode/munin_post/internal/calendar"
	"github.com/friendsincode/munin_post/internal/config"
	"github.com/friendsincode/munin_post/internal/db"
	"github.com/friendsincode/munin_post/internal/destinations"
	"github.com/friendsincode/munin_post/internal/eventbus"
	"github.com/friendsincode/munin_post/internal/events"
	"github.com/friendsincode/munin_post/internal/extractor"
	"github.com/friendsincode/munin_post/internal/feeds"
	"github.com/friendsincode/munin_post/internal/imagegen"
	"github.com/friendsincode/munin_post/internal/logging"
	"github.com/friendsincode/munin_post/internal/runlock"
	"github.com/friendsincode/munin_post/internal/scheduler"
	"github.com/friendsincode/munin_post/internal/storage"
	"github.com/friendsincode/munin_post/internal/store"
	"github.com/friendsincode/munin_post/internal/syndication"
	"github.com/friendsincode/munin_post/internal/version"
)

var (
	logger zerolog.Logger
	cfg    *config.Config
)

var rootCmd = &cobra.Command{
	Use:   "muninpost",
	Short: "Munin Post - Blog to social media distribution",
	Long:  "Munin Post fetches blog posts from an RSS feed, extracts social media messages, and publishes them to configured destinations on a business-day schedule.",
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the Munin Post version",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("muninpost %s\n", version.Version)
	},
}

func init() {
	rootCmd.AddCommand(versionCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

// loadConfig loads configuration (called by commands that need it)
func loadConfig() error {
	var err error
	cfg, err = config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	logger = logging.Setup(cfg.Environment)
	for _, w := range cfg.LegacyEnvWarnings {
		logger.Warn().Msg(w)
	}
	return nil
}

// app holds everything a command needs after wiring.
type app struct {
	db      *gorm.DB
	store   *store.Store
	planner *scheduler.Planner
	service *syndication.Service
	bus     *events.Bus
	dests   []destinations.Destination
	extract *extractor.Client
	fetcher *feeds.Fetcher

	natsBus *eventbus.NATSBus
	locker  *runlock.RedisLocker
}

// Close releases database, lock, and event bus resources.
func (a *app) Close() {
	if a.natsBus != nil {
		if err := a.natsBus.Close(); err != nil {
			logger.Warn().Err(err).Msg("close nats bus")
		}
	}
	if a.locker != nil {
		if err := a.locker.Close(); err != nil {
			logger.Warn().Err(err).Msg("close run lock")
		}
	}
	if a.db != nil {
		if err := db.Close(a.db); err != nil {
			logger.Warn().Err(err).Msg("close database")
		}
	}
}

// buildApp wires the full pipeline from configuration. Optional
// components (image generation, destinations, redis, NATS) are only
// constructed when configured.
func buildApp(ctx context.Context) (*app, error) {
	a := &app{}

	database, err := db.Connect(cfg)
	if err != nil {
		return nil, fmt.Errorf("connect to database: %w", err)
	}
	a.db = database

	st, err := store.New(database, logger)
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("initialize store: %w", err)
	}
	a.store = st

	plan, err := cfg.SlotPlan()
	if err != nil {
		a.Close()
		return nil, err
	}
	a.planner = scheduler.NewPlanner(calendar.New(), plan)

	a.fetcher = feeds.NewFetcher(logger)
	a.extract = extractor.NewClient(cfg.AnthropicAPIKey, cfg.AnthropicModel, logger)

	objects, err := buildObjectStore(ctx)
	if err != nil {
		a.Close()
		return nil, err
	}

	var images syndication.ImageGenerator
	if cfg.GenerateImages && cfg.XAIAPIKey != "" {
		images = imagegen.New(cfg.XAIAPIKey, a.extract, objects, logger)
	}

	a.dests, err = buildDestinations()
	if err != nil {
		a.Close()
		return nil, err
	}

	var locker runlock.Locker = runlock.Noop{}
	if cfg.RedisAddr != "" {
		rl, err := runlock.New(runlock.Config{
			RedisAddr:     cfg.RedisAddr,
			RedisPassword: cfg.RedisPassword,
			RedisDB:       cfg.RedisDB,
			InstanceID:    cfg.InstanceID,
		}, logger)
		if err != nil {
			a.Close()
			return nil, fmt.Errorf("connect to redis: %w", err)
		}
		a.locker = rl
		locker = rl
	}

	a.bus = events.NewBus()
	if cfg.NATSURL != "" {
		nb, err := eventbus.NewNATSBus(eventbus.DefaultNATSConfig(cfg.NATSURL), a.bus, logger)
		if err != nil {
			a.Close()
			return nil, fmt.Errorf("connect to nats: %w", err)
		}
		a.natsBus = nb
	}

	minDate, err := cfg.MinimumPublishedAt()
	if err != nil {
		a.Close()
		return nil, err
	}

	a.service = syndication.NewService(
		syndication.Config{
			FeedURL:         cfg.FeedURL,
			FeedLimit:       cfg.FeedLimit,
			PostsPerBlog:    cfg.PostsPerBlog,
			MinimumPostDate: minDate,
			MaxScheduleDays: cfg.MaxScheduleDays,
			GenerateImages:  images != nil,
		},
		st, a.planner, a.fetcher, a.extract, images, objects, a.dests, locker, a.bus, logger,
	)
	return a, nil
}

// buildObjectStore prefers S3 when a bucket is configured, otherwise
// stores artifacts under the local media root.
func buildObjectStore(ctx context.Context) (storage.ObjectStore, error) {
	if cfg.S3Bucket != "" {
		return storage.NewS3Store(ctx, storage.S3Config{
			AccessKeyID:     cfg.S3AccessKeyID,
			SecretAccessKey: cfg.S3SecretAccessKey,
			Region:          cfg.S3Region,
			Bucket:          cfg.S3Bucket,
			Endpoint:        cfg.S3Endpoint,
			PublicBaseURL:   cfg.S3PublicBaseURL,
			UsePathStyle:    cfg.S3UsePathStyle,
		}, logger)
	}
	return storage.NewLocalStore(cfg.MediaRoot, logger)
}

// buildDestinations constructs every enabled destination. A destination
// that is enabled but missing credentials is a configuration error.
func buildDestinations() ([]destinations.Destination, error) {
	var dests []destinations.Destination

	if cfg.LinkedInEnabled {
		li, err := destinations.NewLinkedIn(destinations.LinkedInConfig{
			AccessToken: cfg.LinkedInAccessToken,
			UserID:      cfg.LinkedInUserID,
			OrgID:       cfg.LinkedInOrgID,
			PostAsOrg:   cfg.LinkedInPostAsOrg,
		}, logger)
		if err != nil {
			return nil, fmt.Errorf("linkedin: %w", err)
		}
		dests = append(dests, li)
	}

	if cfg.XEnabled {
		x, err := destinations.NewX(destinations.XConfig{
			APIKey:            cfg.XAPIKey,
			APISecret:         cfg.XAPISecret,
			AccessToken:       cfg.XAccessToken,
			AccessTokenSecret: cfg.XAccessTokenSecret,
		}, logger)
		if err != nil {
			return nil, fmt.Errorf("x: %w", err)
		}
		dests = append(dests, x)
	}

	return dests, nil
}

// commandContext returns a context for one-shot commands with a
// generous ceiling so a stuck remote call cannot hang the process.
func commandContext() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), 10*time.Minute)
}
