/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

// Package destinations delivers rendered messages to social networks.
// Each destination owns its API shape and credential handling; the
// publish loop only sees the Destination interface.
package destinations

import (
	"context"
	"errors"

	"github.com/friendsincode/munin_post/internal/models"
)

// ErrNotConfigured is returned by constructors when required
// credentials are missing.
var ErrNotConfigured = errors.New("destinations: credentials not configured")

// PublishRequest carries one rendered message. Image is optional;
// destinations that cannot attach it fall back to text only.
type PublishRequest struct {
	Text     string
	Image    []byte
	ImageAlt string
}

// PublishResult reports a successful delivery.
type PublishResult struct {
	ExternalID string
}

// Destination posts messages to one network.
type Destination interface {
	Name() models.Destination
	Publish(ctx context.Context, req PublishRequest) (*PublishResult, error)
	// Verify checks the stored credentials against the live API.
	Verify(ctx context.Context) error
}
