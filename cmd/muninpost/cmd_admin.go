/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/friendsincode/munin_post/internal/auth"
	"github.com/friendsincode/munin_post/internal/events"
)

var (
	tokenSubject string
	tokenRoles   []string
	tokenTTL     time.Duration

	clearUnposted bool
	clearPostURL  string
)

var tokenCmd = &cobra.Command{
	Use:   "token",
	Short: "Manage API tokens",
}

var tokenCreateCmd = &cobra.Command{
	Use:   "create",
	Short: "Issue a signed API token",
	Long:  "Issue an HS256 token signed with MUNIN_API_SECRET for use against the admin API.",
	RunE:  runTokenCreate,
}

var clearCmd = &cobra.Command{
	Use:   "clear",
	Short: "Delete unposted messages",
	Long: `Delete scheduled messages that have not been posted anywhere yet.
Messages with at least one completed destination are never touched.

Examples:
  # Clear every unposted message
  muninpost clear --unposted

  # Clear unposted messages for one blog post
  muninpost clear --unposted --post-url https://blog.example.com/my-post
`,
	RunE: runClear,
}

var rescheduleCmd = &cobra.Command{
	Use:   "reschedule",
	Short: "Move overdue unposted messages onto fresh slots",
	Long:  "Find unposted messages whose scheduled time has passed and assign them new slots starting tomorrow, keeping one message per post per day.",
	RunE:  runReschedule,
}

func init() {
	tokenCreateCmd.Flags().StringVar(&tokenSubject, "subject", "admin", "Token subject name")
	tokenCreateCmd.Flags().StringSliceVar(&tokenRoles, "role", []string{"admin"}, "Roles to embed in the token")
	tokenCreateCmd.Flags().DurationVar(&tokenTTL, "ttl", 24*time.Hour, "Token lifetime")
	tokenCmd.AddCommand(tokenCreateCmd)
	rootCmd.AddCommand(tokenCmd)

	clearCmd.Flags().BoolVar(&clearUnposted, "unposted", false, "Confirm deletion of unposted messages")
	clearCmd.Flags().StringVar(&clearPostURL, "post-url", "", "Restrict to messages of one blog post URL")
	rootCmd.AddCommand(clearCmd)

	rootCmd.AddCommand(rescheduleCmd)
}

func runTokenCreate(cmd *cobra.Command, args []string) error {
	if err := loadConfig(); err != nil {
		return err
	}
	if cfg.APISecret == "" {
		return fmt.Errorf("MUNIN_API_SECRET must be set to issue tokens")
	}

	token, err := auth.Issue([]byte(cfg.APISecret), auth.Claims{
		Subject: tokenSubject,
		Roles:   tokenRoles,
	}, tokenTTL)
	if err != nil {
		return fmt.Errorf("issue token: %w", err)
	}

	fmt.Println(token)
	return nil
}

func runClear(cmd *cobra.Command, args []string) error {
	if err := loadConfig(); err != nil {
		return err
	}
	if !clearUnposted {
		return fmt.Errorf("refusing to delete without --unposted")
	}

	ctx, cancel := commandContext()
	defer cancel()

	a, err := buildApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	removed, err := a.store.DeleteUnposted(ctx, clearPostURL)
	if err != nil {
		return err
	}

	if removed > 0 {
		a.bus.Publish(events.EventMessagesCleared, events.Payload{
			"count":    removed,
			"post_url": clearPostURL,
		})
	}

	logger.Info().Int64("removed", removed).Str("post_url", clearPostURL).Msg("cleared unposted messages")
	fmt.Printf("removed %d unposted message(s)\n", removed)
	return nil
}

func runReschedule(cmd *cobra.Command, args []string) error {
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

	stale, err := a.store.StaleUnposted(ctx, time.Now())
	if err != nil {
		return err
	}
	if len(stale) == 0 {
		fmt.Println("nothing to reschedule")
		return nil
	}

	committed, err := a.store.CommittedSlots(ctx)
	if err != nil {
		return err
	}
	plan := a.planner.Plan()
	occupied := plan.NewCommitted(committed...)

	// Batch the overdue messages per post so the one-message-per-post
	// -per-day rule keeps holding after the move.
	byPost := make(map[string][]int)
	order := make([]string, 0)
	for i, m := range stale {
		if _, seen := byPost[m.BlogPostID]; !seen {
			order = append(order, m.BlogPostID)
		}
		byPost[m.BlogPostID] = append(byPost[m.BlogPostID], i)
	}

	moved := 0
	for _, postID := range order {
		idxs := byPost[postID]
		assigned, err := a.planner.ScheduleMessages(len(idxs), occupied, time.Time{})
		if err != nil {
			return fmt.Errorf("reschedule post %s: %w", postID, err)
		}
		for j, idx := range idxs {
			msg := stale[idx]
			if err := a.store.Reschedule(ctx, msg.ID, assigned[j]); err != nil {
				return err
			}
			occupied.Add(assigned[j])
			logger.Info().
				Str("message_id", msg.ID).
				Time("from", *msg.ScheduledFor).
				Time("to", assigned[j]).
				Msg("rescheduled")
			moved++
		}
	}

	fmt.Printf("rescheduled %d message(s)\n", moved)
	return nil
}
