/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package main

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"
)

var verifyCmd = &cobra.Command{
	Use:   "verify",
	Short: "Verify configuration and remote credentials",
	Long:  "Check the feed URL, the extraction API key, and each enabled destination's credentials. Every check runs; failures are reported together.",
	RunE:  runVerify,
}

func init() {
	rootCmd.AddCommand(verifyCmd)
}

func runVerify(cmd *cobra.Command, args []string) error {
	if err := loadConfig(); err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	a, err := buildApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	failures := 0
	check := func(name string, err error) {
		if err != nil {
			failures++
			fmt.Printf("FAIL  %-12s %v\n", name, err)
			return
		}
		fmt.Printf("ok    %s\n", name)
	}

	if cfg.FeedURL == "" {
		check("feed", fmt.Errorf("MUNIN_FEED_URL is not set"))
	} else {
		minDate, err := cfg.MinimumPublishedAt()
		if err == nil {
			_, err = a.fetcher.Fetch(ctx, cfg.FeedURL, 1, minDate)
		}
		check("feed", err)
	}

	if cfg.AnthropicAPIKey == "" {
		check("anthropic", fmt.Errorf("MUNIN_ANTHROPIC_API_KEY is not set"))
	} else {
		check("anthropic", a.extract.Verify(ctx))
	}

	if cfg.GenerateImages && cfg.XAIAPIKey == "" {
		check("imagegen", fmt.Errorf("image generation enabled but MUNIN_XAI_API_KEY is not set"))
	}

	if len(a.dests) == 0 {
		fmt.Println("note  no destinations enabled")
	}
	for _, d := range a.dests {
		check(string(d.Name()), d.Verify(ctx))
	}

	if failures > 0 {
		return fmt.Errorf("%d check(s) failed", failures)
	}
	fmt.Println("all checks passed")
	return nil
}
