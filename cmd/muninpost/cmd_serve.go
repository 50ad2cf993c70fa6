/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/spf13/cobra"

	"github.com/friendsincode/munin_post/internal/server"
	"github.com/friendsincode/munin_post/internal/telemetry"
	"github.com/friendsincode/munin_post/internal/version"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the Munin Post daemon",
	Long:  "Run the HTTP admin API and the cron triggers that fetch the feed and publish due messages.",
	RunE:  runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	if err := loadConfig(); err != nil {
		return err
	}

	logger.Info().Str("version", version.Version).Msg("Munin Post starting")

	tracerProvider, err := telemetry.InitTracer(context.Background(), telemetry.TracerConfig{
		ServiceName:    "munin-post",
		ServiceVersion: version.Version,
		OTLPEndpoint:   cfg.OTLPEndpoint,
		Enabled:        cfg.TracingEnabled,
		SampleRate:     cfg.TracingSampleRate,
	}, logger)
	if err != nil {
		return fmt.Errorf("initialize tracer: %w", err)
	}
	defer func() {
		if err := tracerProvider.Shutdown(context.Background()); err != nil {
			logger.Error().Err(err).Msg("failed to shutdown tracer provider")
		}
	}()

	a, err := buildApp(context.Background())
	if err != nil {
		return err
	}
	defer a.Close()

	checker := version.NewChecker(logger)
	checker.Start(context.Background())
	defer checker.Stop()

	srv := server.New(cfg, a.store, a.service, checker, logger)
	go func() {
		if err := srv.Start(); err != nil {
			logger.Fatal().Err(err).Msg("http server error")
		}
	}()

	plan, err := cfg.SlotPlan()
	if err != nil {
		return err
	}

	// Cron specs are evaluated in the plan timezone. A tick that fires
	// while the previous run of the same job is still going is skipped;
	// the run lock covers overlap across processes. A panicking job
	// must not take the daemon down with it.
	cronLog := cron.PrintfLogger(&logger)
	c := cron.New(
		cron.WithLocation(plan.Location()),
		cron.WithChain(cron.Recover(cronLog), cron.SkipIfStillRunning(cronLog)),
	)

	if _, err := c.AddFunc(cfg.FetchCron, func() {
		telemetry.CronTicksTotal.WithLabelValues("fetch").Inc()
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Minute)
		defer cancel()
		if _, err := a.service.RunFetch(ctx); err != nil {
			logger.Error().Err(err).Msg("scheduled fetch failed")
		}
	}); err != nil {
		return fmt.Errorf("fetch cron %q: %w", cfg.FetchCron, err)
	}

	if _, err := c.AddFunc(cfg.PublishCron, func() {
		telemetry.CronTicksTotal.WithLabelValues("publish").Inc()
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
		defer cancel()
		if _, err := a.service.RunPublish(ctx); err != nil {
			logger.Error().Err(err).Msg("scheduled publish failed")
		}
	}); err != nil {
		return fmt.Errorf("publish cron %q: %w", cfg.PublishCron, err)
	}

	c.Start()
	logger.Info().
		Str("fetch_cron", cfg.FetchCron).
		Str("publish_cron", cfg.PublishCron).
		Str("timezone", plan.Location().String()).
		Msg("cron triggers armed")

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info().Msg("shutting down gracefully...")

	// Stop taking new cron ticks, then wait for in-flight jobs.
	<-c.Stop().Done()

	timeoutCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Close(timeoutCtx); err != nil {
		logger.Error().Err(err).Msg("graceful shutdown failed")
	}

	logger.Info().Msg("Munin Post stopped")
	return nil
}
