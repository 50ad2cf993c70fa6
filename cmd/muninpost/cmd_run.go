/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"
)

var fetchCmd = &cobra.Command{
	Use:   "fetch",
	Short: "Fetch the blog feed and schedule messages for new posts",
	RunE:  runFetch,
}

var postCmd = &cobra.Command{
	Use:   "post",
	Short: "Publish the due message, if any",
	Long:  "Publish at most one message whose scheduled time has passed. Destinations already marked posted are skipped.",
	RunE:  runPost,
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show post and message counts plus the upcoming schedule",
	RunE:  runStatus,
}

func init() {
	rootCmd.AddCommand(fetchCmd)
	rootCmd.AddCommand(postCmd)
	rootCmd.AddCommand(statusCmd)
}

func runFetch(cmd *cobra.Command, args []string) error {
	if err := loadConfig(); err != nil {
		return err
	}
	ctx, cancel := commandContext()
	defer cancel()

	a, err := buildApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	report, err := a.service.RunFetch(ctx)
	if err != nil {
		return err
	}

	fmt.Printf("fetched %d entries: %d scheduled, %d already known, %d deferred, %d failed\n",
		report.Fetched, report.Scheduled, report.Known, report.Deferred, report.Failed)
	if report.Failed > 0 {
		return fmt.Errorf("%d entries failed; see log", report.Failed)
	}
	return nil
}

func runPost(cmd *cobra.Command, args []string) error {
	if err := loadConfig(); err != nil {
		return err
	}
	ctx, cancel := commandContext()
	defer cancel()

	a, err := buildApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	report, err := a.service.RunPublish(ctx)
	if err != nil {
		return err
	}

	if report.Skipped {
		fmt.Println("nothing due")
		return nil
	}
	fmt.Printf("message %s: published to %d destination(s), %d failed\n",
		report.MessageID, len(report.Published), len(report.Failed))
	if len(report.Failed) > 0 {
		return fmt.Errorf("publish to %v failed; message stays eligible", report.Failed)
	}
	return nil
}

func runStatus(cmd *cobra.Command, args []string) error {
	if err := loadConfig(); err != nil {
		return err
	}
	ctx, cancel := commandContext()
	defer cancel()

	a, err := buildApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	counts, err := a.store.Count(ctx)
	if err != nil {
		return err
	}
	fmt.Printf("posts: %d\n", counts.Posts)
	fmt.Printf("messages: %d (%d fully posted, %d partially posted, %d unscheduled)\n",
		counts.Messages, counts.FullyPosted, counts.PartiallyDone, counts.Unscheduled)

	due, err := a.service.Selector().NextDue(ctx)
	if err != nil {
		return err
	}
	if due != nil {
		fmt.Printf("due now: message %s (scheduled %s)\n",
			due.ID, due.ScheduledFor.Format(time.RFC3339))
	}

	upcoming, err := a.store.Upcoming(ctx, 5)
	if err != nil {
		return err
	}
	if len(upcoming) == 0 {
		fmt.Println("no upcoming messages")
		return nil
	}

	plan, err := cfg.SlotPlan()
	if err != nil {
		return err
	}
	fmt.Println("upcoming:")
	for _, m := range upcoming {
		when := "unscheduled"
		if m.ScheduledFor != nil {
			when = m.ScheduledFor.In(plan.Location()).Format("2006-01-02 15:04 MST")
		}
		url := ""
		if m.BlogPost != nil {
			url = m.BlogPost.URL
		}
		fmt.Printf("  %s  #%d  %s\n", when, m.Ordinal+1, url)
	}
	return nil
}
