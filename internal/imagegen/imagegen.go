/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

// Package imagegen produces an illustration for a scheduled message
// via the xAI image API and persists it in object storage. Callers
// treat failures as non-fatal; a post without an image still goes out.
package imagegen

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/friendsincode/munin_post/internal/storage"
	"github.com/friendsincode/munin_post/internal/telemetry"
)

const (
	defaultBaseURL = "https://api.x.ai/v1"
	imageModel     = "grok-2-image"
)

// ErrNoImageData is returned when the API reply carries no image.
var ErrNoImageData = errors.New("imagegen: no image data in response")

// PromptCrafter turns a message into an image-generation prompt.
// The extractor client satisfies this.
type PromptCrafter interface {
	ImagePrompt(ctx context.Context, title, message string) string
}

// Result identifies a stored artifact.
type Result struct {
	Key string
	URL string
}

// Generator drives prompt crafting, generation, and persistence.
type Generator struct {
	httpClient *http.Client
	baseURL    string
	apiKey     string
	crafter    PromptCrafter
	store      storage.ObjectStore
	logger     zerolog.Logger
}

// Option adjusts generator construction.
type Option func(*Generator)

// WithBaseURL overrides the API endpoint, mainly for tests.
func WithBaseURL(u string) Option {
	return func(g *Generator) { g.baseURL = strings.TrimRight(u, "/") }
}

// New creates an image generator.
func New(apiKey string, crafter PromptCrafter, store storage.ObjectStore, logger zerolog.Logger, opts ...Option) *Generator {
	g := &Generator{
		httpClient: &http.Client{Timeout: 60 * time.Second},
		baseURL:    defaultBaseURL,
		apiKey:     apiKey,
		crafter:    crafter,
		store:      store,
		logger:     logger.With().Str("component", "imagegen").Logger(),
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

type generationRequest struct {
	Model          string `json:"model"`
	Prompt         string `json:"prompt"`
	N              int    `json:"n"`
	ResponseFormat string `json:"response_format"`
}

type generationResponse struct {
	Data []struct {
		B64JSON string `json:"b64_json"`
	} `json:"data"`
}

// GenerateForMessage crafts a prompt from the post title and message
// text, generates one image, and stores it under a key derived from
// the message id.
func (g *Generator) GenerateForMessage(ctx context.Context, title, messageText, messageID string) (*Result, error) {
	prompt := g.crafter.ImagePrompt(ctx, title, messageText)

	img, err := g.generate(ctx, prompt)
	if err != nil {
		telemetry.ImagesGeneratedTotal.WithLabelValues("error").Inc()
		return nil, err
	}

	key := "images/" + messageID + ".jpg"
	if err := g.store.Put(ctx, key, img, "image/jpeg"); err != nil {
		telemetry.ImagesGeneratedTotal.WithLabelValues("error").Inc()
		return nil, fmt.Errorf("store image: %w", err)
	}
	telemetry.ImagesGeneratedTotal.WithLabelValues("ok").Inc()

	url := g.store.URL(key)
	g.logger.Info().Str("message_id", messageID).Str("key", key).Int("bytes", len(img)).Msg("image generated")
	return &Result{Key: key, URL: url}, nil
}

// generate calls the images endpoint and decodes the base64 reply.
func (g *Generator) generate(ctx context.Context, prompt string) ([]byte, error) {
	body, err := json.Marshal(generationRequest{
		Model:          imageModel,
		Prompt:         prompt,
		N:              1,
		ResponseFormat: "b64_json",
	})
	if err != nil {
		return nil, fmt.Errorf("encode request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, g.baseURL+"/images/generations", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+g.apiKey)

	resp, err := g.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("call image api: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 32<<20))
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("image api status %d: %s", resp.StatusCode, truncate(string(raw), 200))
	}

	var parsed generationResponse
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	if len(parsed.Data) == 0 || parsed.Data[0].B64JSON == "" {
		return nil, ErrNoImageData
	}

	img, err := base64.StdEncoding.DecodeString(parsed.Data[0].B64JSON)
	if err != nil {
		return nil, fmt.Errorf("decode image data: %w", err)
	}
	return img, nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
