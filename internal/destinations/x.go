/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package destinations

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"
	"unicode/utf8"

	"github.com/dghubble/oauth1"
	"github.com/rs/zerolog"

	"github.com/friendsincode/munin_post/internal/models"
)

const (
	xAPIBase    = "https://api.twitter.com"
	xUploadBase = "https://upload.twitter.com"

	// xCharLimit is enforced again here as a backstop; the renderer
	// already targets it.
	xCharLimit = 280
)

// XConfig holds the OAuth1.0a user-context credentials.
type XConfig struct {
	APIKey            string
	APISecret         string
	AccessToken       string
	AccessTokenSecret string
}

// X publishes via POST /2/tweets with OAuth1.0a request signing.
type X struct {
	httpClient *http.Client
	baseURL    string
	uploadURL  string
	logger     zerolog.Logger
}

// NewX creates the X destination.
func NewX(cfg XConfig, logger zerolog.Logger) (*X, error) {
	if cfg.APIKey == "" || cfg.APISecret == "" || cfg.AccessToken == "" || cfg.AccessTokenSecret == "" {
		return nil, ErrNotConfigured
	}

	oauthCfg := oauth1.NewConfig(cfg.APIKey, cfg.APISecret)
	token := oauth1.NewToken(cfg.AccessToken, cfg.AccessTokenSecret)
	client := oauthCfg.Client(oauth1.NoContext, token)
	client.Timeout = 30 * time.Second

	return &X{
		httpClient: client,
		baseURL:    xAPIBase,
		uploadURL:  xUploadBase,
		logger:     logger.With().Str("component", "x").Logger(),
	}, nil
}

// Name implements Destination.
func (x *X) Name() models.Destination { return models.DestinationX }

type tweetRequest struct {
	Text  string      `json:"text"`
	Media *tweetMedia `json:"media,omitempty"`
}

type tweetMedia struct {
	MediaIDs []string `json:"media_ids"`
}

type tweetResponse struct {
	Data struct {
		ID   string `json:"id"`
		Text string `json:"text"`
	} `json:"data"`
	Detail string `json:"detail"`
}

// Publish posts one tweet. Text over the cap is truncated rather than
// rejected. A failed media upload degrades to text only.
func (x *X) Publish(ctx context.Context, req PublishRequest) (*PublishResult, error) {
	text := req.Text
	if utf8.RuneCountInString(text) > xCharLimit {
		runes := []rune(text)
		text = string(runes[:xCharLimit-3]) + "..."
	}

	tweet := tweetRequest{Text: text}
	if len(req.Image) > 0 {
		mediaID, err := x.uploadMedia(ctx, req.Image)
		if err != nil {
			x.logger.Warn().Err(err).Msg("media upload failed, posting text only")
		} else {
			tweet.Media = &tweetMedia{MediaIDs: []string{mediaID}}
		}
	}

	body, err := json.Marshal(tweet)
	if err != nil {
		return nil, fmt.Errorf("encode tweet: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, x.baseURL+"/2/tweets", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := x.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("call tweets api: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	var parsed tweetResponse
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	if resp.StatusCode != http.StatusCreated && resp.StatusCode != http.StatusOK {
		if parsed.Detail != "" {
			return nil, fmt.Errorf("tweets api %d: %s", resp.StatusCode, parsed.Detail)
		}
		return nil, fmt.Errorf("tweets api status %d", resp.StatusCode)
	}

	x.logger.Info().Str("tweet_id", parsed.Data.ID).Msg("published to x")
	return &PublishResult{ExternalID: parsed.Data.ID}, nil
}

// Verify calls the v1.1 credential check.
func (x *X) Verify(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, x.baseURL+"/1.1/account/verify_credentials.json", nil)
	if err != nil {
		return err
	}

	resp, err := x.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("x verify: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("x verify: status %d", resp.StatusCode)
	}
	return nil
}

// uploadMedia pushes the image through the v1.1 media endpoint, the
// only upload path usable with user-context OAuth1.
func (x *X) uploadMedia(ctx context.Context, image []byte) (string, error) {
	form := url.Values{}
	form.Set("media_data", base64.StdEncoding.EncodeToString(image))

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, x.uploadURL+"/1.1/media/upload.json", bytes.NewBufferString(form.Encode()))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := x.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("call media upload: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return "", fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", fmt.Errorf("media upload status %d", resp.StatusCode)
	}

	var parsed struct {
		MediaIDString string `json:"media_id_string"`
	}
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return "", fmt.Errorf("decode response: %w", err)
	}
	if parsed.MediaIDString == "" {
		return "", fmt.Errorf("media upload: empty media id")
	}
	return parsed.MediaIDString, nil
}
