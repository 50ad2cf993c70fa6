/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

// Package extractor turns blog posts into standalone social media
// messages via the Anthropic Messages API.
package extractor

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
	"unicode"
	"unicode/utf8"

	"github.com/rs/zerolog"
)

const (
	defaultBaseURL   = "https://api.anthropic.com/v1"
	anthropicVersion = "2023-06-01"

	// DefaultModel is used when MUNIN_ANTHROPIC_MODEL is unset.
	DefaultModel = "claude-sonnet-4-20250514"

	// maxContentChars bounds how much post body goes into the prompt.
	maxContentChars = 3000
)

// ErrNoMessages is returned when the model reply contains nothing
// parseable as a numbered list.
var ErrNoMessages = errors.New("extractor: no messages in model reply")

// Client calls the Anthropic Messages API.
type Client struct {
	httpClient *http.Client
	baseURL    string
	apiKey     string
	model      string
	logger     zerolog.Logger
}

// Option adjusts client construction.
type Option func(*Client)

// WithBaseURL overrides the API endpoint, mainly for tests.
func WithBaseURL(u string) Option {
	return func(c *Client) { c.baseURL = strings.TrimRight(u, "/") }
}

// WithHTTPClient overrides the HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// NewClient creates an extraction client.
func NewClient(apiKey, model string, logger zerolog.Logger, opts ...Option) *Client {
	if model == "" {
		model = DefaultModel
	}
	c := &Client{
		httpClient: &http.Client{Timeout: 60 * time.Second},
		baseURL:    defaultBaseURL,
		apiKey:     apiKey,
		model:      model,
		logger:     logger.With().Str("component", "extractor").Logger(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

type apiRequest struct {
	Model       string       `json:"model"`
	MaxTokens   int          `json:"max_tokens"`
	Temperature float64      `json:"temperature"`
	Messages    []apiMessage `json:"messages"`
}

type apiMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type apiResponse struct {
	Content []struct {
		Type string `json:"type"`
		Text string `json:"text"`
	} `json:"content"`
	Error *struct {
		Type    string `json:"type"`
		Message string `json:"message"`
	} `json:"error"`
}

// complete sends one user prompt and returns the text reply.
func (c *Client) complete(ctx context.Context, prompt string, maxTokens int) (string, error) {
	body, err := json.Marshal(apiRequest{
		Model:       c.model,
		MaxTokens:   maxTokens,
		Temperature: 0.7,
		Messages:    []apiMessage{{Role: "user", Content: prompt}},
	})
	if err != nil {
		return "", fmt.Errorf("encode request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/messages", bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("x-api-key", c.apiKey)
	req.Header.Set("anthropic-version", anthropicVersion)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("call messages api: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return "", fmt.Errorf("read response: %w", err)
	}

	var parsed apiResponse
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return "", fmt.Errorf("decode response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		if parsed.Error != nil {
			return "", fmt.Errorf("messages api %d: %s", resp.StatusCode, parsed.Error.Message)
		}
		return "", fmt.Errorf("messages api status %d", resp.StatusCode)
	}
	if len(parsed.Content) == 0 {
		return "", errors.New("empty messages api response")
	}
	return parsed.Content[0].Text, nil
}

// ExtractMessages asks the model for n standalone promotional messages
// for a blog post and parses them out of the numbered-list reply. It
// returns fewer than n when the model under-delivers.
func (c *Client) ExtractMessages(ctx context.Context, title, content string, n int) ([]string, error) {
	if utf8.RuneCountInString(content) > maxContentChars {
		content = string([]rune(content)[:maxContentChars])
	}

	reply, err := c.complete(ctx, extractionPrompt(title, content, n), 2000)
	if err != nil {
		return nil, err
	}

	messages := ParseNumberedList(reply)
	if len(messages) == 0 {
		return nil, ErrNoMessages
	}
	if len(messages) < n {
		c.logger.Warn().Int("extracted", len(messages)).Int("requested", n).Str("title", title).Msg("model returned fewer messages than requested")
	}
	if len(messages) > n {
		messages = messages[:n]
	}
	return messages, nil
}

// ImagePrompt asks the model for a short image-generation prompt for
// a message. Falls back to a plain description when the call fails,
// so image generation never blocks on prompt crafting.
func (c *Client) ImagePrompt(ctx context.Context, title, message string) string {
	reply, err := c.complete(ctx, imagePromptPrompt(title, message), 200)
	if err != nil {
		c.logger.Warn().Err(err).Msg("image prompt generation failed, using fallback")
		return "Professional illustration representing: " + title
	}
	return strings.TrimSpace(reply)
}

// Verify performs a minimal API call to check the credential.
func (c *Client) Verify(ctx context.Context) error {
	_, err := c.complete(ctx, "Reply with the single word: ok", 10)
	return err
}

func extractionPrompt(title, content string, n int) string {
	return fmt.Sprintf(`You are a social media content strategist. I have a blog post that I want to promote on LinkedIn and X (Twitter) over the course of a week with daily posts.

Blog Title: %s

Blog Content:
%s

Please extract %d distinct, engaging messaging points from this blog post. Each message should:
1. Be standalone and make sense without context
2. Be suitable for both LinkedIn and X (Twitter)
3. Be between 150-250 characters for maximum engagement
4. Highlight a key insight, statistic, or takeaway from the post
5. Be written in an engaging, professional tone
6. Include a call-to-action or thought-provoking element where appropriate

Format your response as a numbered list (1. 2. 3. etc.) with one message per line.
Do not include hashtags or emojis - I will add those when posting.
Do not include the link to the blog post - I will add that separately.

Messages:`, title, content, n)
}

func imagePromptPrompt(title, message string) string {
	return fmt.Sprintf(`You are an expert at creating prompts for AI image generation.

Blog Post Title: %s
Social Media Message: %s

Create a concise, visual image generation prompt (max 100 words) that:
1. Captures the core concept from the message
2. Is professional and business-appropriate
3. Works well for social media (LinkedIn/Twitter)
4. Avoids text/words in the image
5. Uses metaphors or visual concepts
6. Specifies professional, modern style

Return ONLY the image prompt, nothing else.`, title, message)
}

// ParseNumberedList pulls messages out of a "1. ... 2. ..." reply.
// Continuation lines are folded into the current message.
func ParseNumberedList(reply string) []string {
	var messages []string
	var current string

	for _, line := range strings.Split(strings.TrimSpace(reply), "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}

		if isNumberedLine(line) {
			if current != "" {
				messages = append(messages, strings.TrimSpace(current))
			}
			_, rest, found := strings.Cut(line, ".")
			if found {
				current = strings.TrimSpace(rest)
			} else {
				current = line
			}
		} else if current != "" {
			current += " " + line
		}
	}

	if current != "" {
		messages = append(messages, strings.TrimSpace(current))
	}
	return messages
}

// isNumberedLine reports whether a line starts with "N." within the
// first few characters, the shape the extraction prompt asks for.
func isNumberedLine(line string) bool {
	if line == "" || !unicode.IsDigit(rune(line[0])) {
		return false
	}
	end := 4
	if len(line) < end {
		end = len(line)
	}
	return strings.Contains(line[:end], ".")
}
