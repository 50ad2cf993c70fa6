/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/friendsincode/munin_post/internal/slots"
)

// Database backend selection.
type DatabaseBackend string

const (
	DatabasePostgres DatabaseBackend = "postgres"
	DatabaseMySQL    DatabaseBackend = "mysql"
	DatabaseSQLite   DatabaseBackend = "sqlite"
)

// Config covers process level configuration read from environment variables.
type Config struct {
	Environment string
	HTTPBind    string
	HTTPPort    int
	DBBackend   DatabaseBackend
	DBDSN       string

	// Feed ingestion
	FeedURL         string
	FeedLimit       int
	PostsPerBlog    int
	MinimumPostDate string // YYYY-MM-DD; older feed items are skipped

	// Schedule plan
	Timezone        string
	SlotTimes       []string // "HH:MM" in declared order
	MaxScheduleDays int      // horizon for accepting a new batch
	PlanFile        string   // optional YAML plan override

	// Cron triggers (serve mode)
	FetchCron   string
	PublishCron string

	// AI extraction
	AnthropicAPIKey string
	AnthropicModel  string

	// Image generation
	GenerateImages bool
	XAIAPIKey      string

	// LinkedIn destination
	LinkedInEnabled     bool
	LinkedInAccessToken string
	LinkedInUserID      string
	LinkedInOrgID       string
	LinkedInPostAsOrg   bool

	// X destination
	XEnabled           bool
	XAPIKey            string
	XAPISecret         string
	XAccessToken       string
	XAccessTokenSecret string

	// Artifact storage
	MediaRoot         string
	S3AccessKeyID     string
	S3SecretAccessKey string
	S3Region          string
	S3Bucket          string
	S3Endpoint        string // For S3-compatible services (MinIO, Spaces, etc.)
	S3PublicBaseURL   string // Optional CDN URL
	S3UsePathStyle    bool   // Required for MinIO

	// Admin API
	APISecret string

	// Run lock (cross-process overlap exclusion)
	RedisAddr     string
	RedisPassword string
	RedisDB       int
	InstanceID    string

	// Event mirroring
	NATSURL string

	// Tracing configuration
	TracingEnabled    bool
	OTLPEndpoint      string
	TracingSampleRate float64

	LegacyEnvWarnings []string
}

// PlanFileSchema is the optional YAML schedule plan:
//
//	timezone: America/New_York
//	slots: ["09:00", "13:00", "11:00", "15:00"]
//	max_schedule_days: 14
type PlanFileSchema struct {
	Timezone        string   `yaml:"timezone"`
	Slots           []string `yaml:"slots"`
	MaxScheduleDays int      `yaml:"max_schedule_days"`
}

// Load reads environment variables, applies defaults, merges the
// optional plan file, and validates the result.
func Load() (*Config, error) {
	cfg := &Config{
		Environment: getEnvAny([]string{"MUNIN_ENV", "ENVIRONMENT"}, "development"),
		HTTPBind:    getEnvAny([]string{"MUNIN_HTTP_BIND"}, "0.0.0.0"),
		HTTPPort:    getEnvIntAny([]string{"MUNIN_HTTP_PORT"}, 8080),
		DBBackend:   DatabaseBackend(getEnvAny([]string{"MUNIN_DB_BACKEND"}, string(DatabaseSQLite))),
		DBDSN:       getEnvAny([]string{"MUNIN_DB_DSN", "DATABASE_PATH"}, "./data/munin.db"),

		FeedURL:         getEnvAny([]string{"MUNIN_FEED_URL", "BLOG_RSS_FEED_URL"}, ""),
		FeedLimit:       getEnvIntAny([]string{"MUNIN_FEED_LIMIT"}, 5),
		PostsPerBlog:    getEnvIntAny([]string{"MUNIN_POSTS_PER_BLOG", "POSTS_PER_BLOG"}, 5),
		MinimumPostDate: getEnvAny([]string{"MUNIN_MINIMUM_POST_DATE", "MINIMUM_POST_DATE"}, ""),

		Timezone:        getEnvAny([]string{"MUNIN_TIMEZONE"}, slots.DefaultTimezone),
		MaxScheduleDays: getEnvIntAny([]string{"MUNIN_MAX_SCHEDULE_DAYS"}, 14),
		PlanFile:        getEnvAny([]string{"MUNIN_PLAN_FILE"}, ""),

		FetchCron:   getEnvAny([]string{"MUNIN_FETCH_CRON"}, "0 8 * * *"),
		PublishCron: getEnvAny([]string{"MUNIN_PUBLISH_CRON"}, "*/10 * * * *"),

		AnthropicAPIKey: getEnvAny([]string{"MUNIN_ANTHROPIC_API_KEY", "ANTHROPIC_API_KEY"}, ""),
		AnthropicModel:  getEnvAny([]string{"MUNIN_ANTHROPIC_MODEL"}, "claude-sonnet-4-20250514"),

		GenerateImages: getEnvBoolAny([]string{"MUNIN_GENERATE_IMAGES", "GENERATE_IMAGES"}, true),
		XAIAPIKey:      getEnvAny([]string{"MUNIN_XAI_API_KEY", "XAI_API_KEY"}, ""),

		LinkedInEnabled:     getEnvBoolAny([]string{"MUNIN_LINKEDIN_ENABLED", "LINKEDIN_ENABLED"}, false),
		LinkedInAccessToken: getEnvAny([]string{"MUNIN_LINKEDIN_ACCESS_TOKEN", "LINKEDIN_ACCESS_TOKEN"}, ""),
		LinkedInUserID:      getEnvAny([]string{"MUNIN_LINKEDIN_USER_ID", "LINKEDIN_USER_ID"}, ""),
		LinkedInOrgID:       getEnvAny([]string{"MUNIN_LINKEDIN_ORG_ID", "LINKEDIN_ORG_ID"}, ""),
		LinkedInPostAsOrg:   getEnvBoolAny([]string{"MUNIN_LINKEDIN_POST_AS_ORG", "LINKEDIN_POST_AS_ORG"}, true),

		XEnabled:           getEnvBoolAny([]string{"MUNIN_X_ENABLED", "X_ENABLED"}, false),
		XAPIKey:            getEnvAny([]string{"MUNIN_X_API_KEY", "X_API_KEY"}, ""),
		XAPISecret:         getEnvAny([]string{"MUNIN_X_API_SECRET", "X_API_SECRET"}, ""),
		XAccessToken:       getEnvAny([]string{"MUNIN_X_ACCESS_TOKEN", "X_ACCESS_TOKEN"}, ""),
		XAccessTokenSecret: getEnvAny([]string{"MUNIN_X_ACCESS_TOKEN_SECRET", "X_ACCESS_TOKEN_SECRET"}, ""),

		MediaRoot:         getEnvAny([]string{"MUNIN_MEDIA_ROOT"}, "./media"),
		S3AccessKeyID:     getEnvAny([]string{"MUNIN_S3_ACCESS_KEY_ID", "AWS_ACCESS_KEY_ID"}, ""),
		S3SecretAccessKey: getEnvAny([]string{"MUNIN_S3_SECRET_ACCESS_KEY", "AWS_SECRET_ACCESS_KEY"}, ""),
		S3Region:          getEnvAny([]string{"MUNIN_S3_REGION", "AWS_REGION"}, "us-east-1"),
		S3Bucket:          getEnvAny([]string{"MUNIN_S3_BUCKET", "S3_BUCKET"}, ""),
		S3Endpoint:        getEnvAny([]string{"MUNIN_S3_ENDPOINT", "S3_ENDPOINT"}, ""),
		S3PublicBaseURL:   getEnvAny([]string{"MUNIN_S3_PUBLIC_BASE_URL", "S3_PUBLIC_BASE_URL"}, ""),
		S3UsePathStyle:    getEnvBoolAny([]string{"MUNIN_S3_USE_PATH_STYLE", "S3_USE_PATH_STYLE"}, false),

		APISecret: getEnvAny([]string{"MUNIN_API_SECRET"}, ""),

		RedisAddr:     getEnvAny([]string{"MUNIN_REDIS_ADDR"}, ""),
		RedisPassword: getEnvAny([]string{"MUNIN_REDIS_PASSWORD"}, ""),
		RedisDB:       getEnvIntAny([]string{"MUNIN_REDIS_DB"}, 0),
		InstanceID:    getEnvAny([]string{"MUNIN_INSTANCE_ID"}, ""),

		NATSURL: getEnvAny([]string{"MUNIN_NATS_URL"}, ""),

		TracingEnabled:    getEnvBoolAny([]string{"MUNIN_TRACING_ENABLED"}, false),
		OTLPEndpoint:      getEnvAny([]string{"MUNIN_OTLP_ENDPOINT"}, "localhost:4317"),
		TracingSampleRate: getEnvFloatAny([]string{"MUNIN_TRACING_SAMPLE_RATE"}, 1.0),
	}

	cfg.SlotTimes = splitList(getEnvAny([]string{"MUNIN_SLOT_TIMES"}, ""))

	if cfg.PlanFile != "" {
		if err := cfg.applyPlanFile(cfg.PlanFile); err != nil {
			return nil, err
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	cfg.LegacyEnvWarnings = detectLegacyEnvWarnings()

	return cfg, nil
}

// applyPlanFile merges the YAML schedule plan over env settings. Plan
// file values win.
func (c *Config) applyPlanFile(path string) error {
	raw, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read plan file: %w", err)
	}
	var plan PlanFileSchema
	if err := yaml.Unmarshal(raw, &plan); err != nil {
		return fmt.Errorf("parse plan file %s: %w", path, err)
	}
	if plan.Timezone != "" {
		c.Timezone = plan.Timezone
	}
	if len(plan.Slots) > 0 {
		c.SlotTimes = plan.Slots
	}
	if plan.MaxScheduleDays > 0 {
		c.MaxScheduleDays = plan.MaxScheduleDays
	}
	return nil
}

// Validate checks settings that would otherwise fail deep inside a run.
func (c *Config) Validate() error {
	if c.DBBackend != DatabasePostgres && c.DBBackend != DatabaseMySQL && c.DBBackend != DatabaseSQLite {
		return fmt.Errorf("unsupported database backend %q", c.DBBackend)
	}
	if c.DBDSN == "" {
		return fmt.Errorf("MUNIN_DB_DSN must be provided")
	}
	if c.PostsPerBlog < 1 {
		return fmt.Errorf("MUNIN_POSTS_PER_BLOG must be at least 1, got %d", c.PostsPerBlog)
	}
	if c.MaxScheduleDays < 1 {
		return fmt.Errorf("MUNIN_MAX_SCHEDULE_DAYS must be at least 1, got %d", c.MaxScheduleDays)
	}
	for _, s := range c.SlotTimes {
		if _, err := slots.ParseTimeOfDay(s); err != nil {
			return fmt.Errorf("MUNIN_SLOT_TIMES: %w", err)
		}
	}
	if c.MinimumPostDate != "" {
		if _, err := time.Parse("2006-01-02", c.MinimumPostDate); err != nil {
			return fmt.Errorf("MUNIN_MINIMUM_POST_DATE must be YYYY-MM-DD: %w", err)
		}
	}
	if strings.EqualFold(c.Environment, "production") && c.APISecret == "" {
		return fmt.Errorf("MUNIN_API_SECRET must be set in production")
	}
	return nil
}

// SlotPlan builds the slot plan from the configured timezone and slot
// times, falling back to the reference defaults.
func (c *Config) SlotPlan() (*slots.Plan, error) {
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return nil, fmt.Errorf("load timezone %q: %w", c.Timezone, err)
	}
	times := slots.DefaultTimes
	if len(c.SlotTimes) > 0 {
		times = make([]slots.TimeOfDay, 0, len(c.SlotTimes))
		for _, s := range c.SlotTimes {
			tod, err := slots.ParseTimeOfDay(s)
			if err != nil {
				return nil, err
			}
			times = append(times, tod)
		}
	}
	return slots.NewPlan(times, loc)
}

// MinimumPublishedAt parses the minimum post date in the plan timezone.
// Zero time when unset.
func (c *Config) MinimumPublishedAt() (time.Time, error) {
	if c.MinimumPostDate == "" {
		return time.Time{}, nil
	}
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return time.Time{}, fmt.Errorf("load timezone %q: %w", c.Timezone, err)
	}
	t, err := time.ParseInLocation("2006-01-02", c.MinimumPostDate, loc)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse minimum post date: %w", err)
	}
	return t, nil
}

func detectLegacyEnvWarnings() []string {
	legacy := map[string]string{
		"BLOG_RSS_FEED_URL":     "use MUNIN_FEED_URL",
		"DATABASE_PATH":         "use MUNIN_DB_DSN",
		"ANTHROPIC_API_KEY":     "use MUNIN_ANTHROPIC_API_KEY",
		"XAI_API_KEY":           "use MUNIN_XAI_API_KEY",
		"GENERATE_IMAGES":       "use MUNIN_GENERATE_IMAGES",
		"POSTS_PER_BLOG":        "use MUNIN_POSTS_PER_BLOG",
		"MINIMUM_POST_DATE":     "use MUNIN_MINIMUM_POST_DATE",
		"LINKEDIN_ACCESS_TOKEN": "use MUNIN_LINKEDIN_ACCESS_TOKEN",
		"X_API_KEY":             "use MUNIN_X_API_KEY",
	}

	warnings := make([]string, 0, len(legacy))
	for key, recommendation := range legacy {
		if os.Getenv(key) != "" {
			warnings = append(warnings, fmt.Sprintf("legacy env key %s is set; %s", key, recommendation))
		}
	}
	return warnings
}

func splitList(s string) []string {
	if strings.TrimSpace(s) == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// getEnvAny returns the first non-empty environment variable value from keys, or def if none set.
func getEnvAny(keys []string, def string) string {
	for _, k := range keys {
		if v := os.Getenv(k); v != "" {
			return v
		}
	}
	return def
}

// getEnvIntAny returns the first set integer environment variable value from keys, or def.
func getEnvIntAny(keys []string, def int) int {
	for _, k := range keys {
		if v := os.Getenv(k); v != "" {
			if parsed, err := strconv.Atoi(v); err == nil {
				return parsed
			}
		}
	}
	return def
}

// getEnvBoolAny returns the first set boolean environment variable value from keys, or def.
func getEnvBoolAny(keys []string, def bool) bool {
	for _, k := range keys {
		if v := os.Getenv(k); v != "" {
			v = strings.ToLower(strings.TrimSpace(v))
			if v == "true" || v == "1" || v == "yes" {
				return true
			}
			if v == "false" || v == "0" || v == "no" {
				return false
			}
		}
	}
	return def
}

// getEnvFloatAny returns the first set float environment variable value from keys, or def.
func getEnvFloatAny(keys []string, def float64) float64 {
	for _, k := range keys {
		if v := os.Getenv(k); v != "" {
			if parsed, err := strconv.ParseFloat(v, 64); err == nil {
				return parsed
			}
		}
	}
	return def
}
