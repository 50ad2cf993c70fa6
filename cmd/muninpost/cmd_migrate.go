/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/friendsincode/munin_post/internal/migration"
)

var migrateFrom string

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Import data from other systems",
}

var migrateLegacyCmd = &cobra.Command{
	Use:   "legacy",
	Short: "Import posts and messages from a legacy sqlite database",
	Long: `Import blog posts and their messages from the legacy blog-poster
sqlite database. The import is idempotent: posts whose URL already
exists are skipped, so it is safe to re-run.

Rows with timestamps that cannot be parsed are skipped and logged, not
guessed at.

Example:
  muninpost migrate legacy --from /srv/blog-poster/blog_posts.db
`,
	RunE: runMigrateLegacy,
}

func init() {
	migrateLegacyCmd.Flags().StringVar(&migrateFrom, "from", "", "Path to the legacy sqlite database (required)")
	migrateLegacyCmd.MarkFlagRequired("from")
	migrateCmd.AddCommand(migrateLegacyCmd)
	rootCmd.AddCommand(migrateCmd)
}

func runMigrateLegacy(cmd *cobra.Command, args []string) error {
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

	plan, err := cfg.SlotPlan()
	if err != nil {
		return err
	}

	importer := migration.NewImporter(a.store, plan.Location(), logger)
	report, err := importer.ImportLegacy(ctx, migrateFrom)
	if err != nil {
		return err
	}

	fmt.Printf("imported %d posts with %d messages (%d already present, %d posts skipped, %d messages skipped)\n",
		report.Posts, report.Messages, report.KnownPosts, report.SkippedPosts, report.SkippedMessages)
	return nil
}
