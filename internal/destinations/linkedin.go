/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package destinations

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/friendsincode/munin_post/internal/models"
)

const linkedInAPIBase = "https://api.linkedin.com/v2"

// LinkedInConfig configures the LinkedIn destination. Posts go out as
// the organization when PostAsOrg is set, otherwise as the person.
type LinkedInConfig struct {
	AccessToken string
	UserID      string
	OrgID       string
	PostAsOrg   bool
}

// LinkedIn publishes via the ugcPosts v2 API.
type LinkedIn struct {
	httpClient *http.Client
	baseURL    string
	cfg        LinkedInConfig
	logger     zerolog.Logger
}

// NewLinkedIn creates the LinkedIn destination.
func NewLinkedIn(cfg LinkedInConfig, logger zerolog.Logger) (*LinkedIn, error) {
	if cfg.AccessToken == "" {
		return nil, ErrNotConfigured
	}
	if cfg.PostAsOrg && cfg.OrgID == "" {
		return nil, fmt.Errorf("%w: posting as organization requires an org id", ErrNotConfigured)
	}
	if !cfg.PostAsOrg && cfg.UserID == "" {
		return nil, fmt.Errorf("%w: posting as person requires a user id", ErrNotConfigured)
	}
	return &LinkedIn{
		httpClient: &http.Client{Timeout: 30 * time.Second},
		baseURL:    linkedInAPIBase,
		cfg:        cfg,
		logger:     logger.With().Str("component", "linkedin").Logger(),
	}, nil
}

// Name implements Destination.
func (l *LinkedIn) Name() models.Destination { return models.DestinationLinkedIn }

func (l *LinkedIn) author() string {
	if l.cfg.PostAsOrg {
		return "urn:li:organization:" + l.cfg.OrgID
	}
	return "urn:li:person:" + l.cfg.UserID
}

// Publish creates a ugcPost, uploading the image as a digital media
// asset first when one is attached. An image upload failure degrades
// to a text-only post rather than failing the publish.
func (l *LinkedIn) Publish(ctx context.Context, req PublishRequest) (*PublishResult, error) {
	shareContent := map[string]any{
		"shareCommentary":    map[string]string{"text": req.Text},
		"shareMediaCategory": "NONE",
	}

	if len(req.Image) > 0 {
		assetURN, err := l.uploadImage(ctx, req.Image)
		if err != nil {
			l.logger.Warn().Err(err).Msg("image upload failed, posting text only")
		} else {
			shareContent["shareMediaCategory"] = "IMAGE"
			shareContent["media"] = []map[string]any{{
				"status": "READY",
				"media":  assetURN,
				"description": map[string]string{
					"text": req.ImageAlt,
				},
			}}
		}
	}

	payload := map[string]any{
		"author":         l.author(),
		"lifecycleState": "PUBLISHED",
		"specificContent": map[string]any{
			"com.linkedin.ugc.ShareContent": shareContent,
		},
		"visibility": map[string]string{
			"com.linkedin.ugc.MemberNetworkVisibility": "PUBLIC",
		},
	}

	var created struct {
		ID string `json:"id"`
	}
	if err := l.doJSON(ctx, http.MethodPost, l.baseURL+"/ugcPosts", payload, &created); err != nil {
		return nil, err
	}

	l.logger.Info().Str("post_urn", created.ID).Msg("published to linkedin")
	return &PublishResult{ExternalID: created.ID}, nil
}

// Verify calls /v2/me with the stored token.
func (l *LinkedIn) Verify(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, l.baseURL+"/me", nil)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+l.cfg.AccessToken)

	resp, err := l.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("linkedin verify: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("linkedin verify: status %d", resp.StatusCode)
	}
	return nil
}

// uploadImage runs the registerUpload flow and returns the asset urn.
func (l *LinkedIn) uploadImage(ctx context.Context, image []byte) (string, error) {
	register := map[string]any{
		"registerUploadRequest": map[string]any{
			"recipes": []string{"urn:li:digitalmediaRecipe:feedshare-image"},
			"owner":   l.author(),
			"serviceRelationships": []map[string]string{{
				"relationshipType": "OWNER",
				"identifier":       "urn:li:userGeneratedContent",
			}},
		},
	}

	var registered struct {
		Value struct {
			Asset           string `json:"asset"`
			UploadMechanism map[string]struct {
				UploadURL string `json:"uploadUrl"`
			} `json:"uploadMechanism"`
		} `json:"value"`
	}
	if err := l.doJSON(ctx, http.MethodPost, l.baseURL+"/assets?action=registerUpload", register, &registered); err != nil {
		return "", fmt.Errorf("register upload: %w", err)
	}

	var uploadURL string
	for _, mech := range registered.Value.UploadMechanism {
		if mech.UploadURL != "" {
			uploadURL = mech.UploadURL
			break
		}
	}
	if uploadURL == "" || registered.Value.Asset == "" {
		return "", fmt.Errorf("register upload: missing upload url or asset urn")
	}

	up, err := http.NewRequestWithContext(ctx, http.MethodPut, uploadURL, bytes.NewReader(image))
	if err != nil {
		return "", err
	}
	up.Header.Set("Authorization", "Bearer "+l.cfg.AccessToken)

	resp, err := l.httpClient.Do(up)
	if err != nil {
		return "", fmt.Errorf("upload image bytes: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", fmt.Errorf("upload image bytes: status %d", resp.StatusCode)
	}

	return registered.Value.Asset, nil
}

func (l *LinkedIn) doJSON(ctx context.Context, method, url string, payload, out any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("encode payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, method, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+l.cfg.AccessToken)
	req.Header.Set("X-Restli-Protocol-Version", "2.0.0")

	resp, err := l.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("call linkedin api: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("linkedin api status %d: %s", resp.StatusCode, firstLine(string(raw)))
	}
	if out != nil && len(raw) > 0 {
		if err := json.Unmarshal(raw, out); err != nil {
			return fmt.Errorf("decode response: %w", err)
		}
	}
	return nil
}

func firstLine(s string) string {
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		s = s[:i]
	}
	if len(s) > 200 {
		s = s[:200]
	}
	return s
}
