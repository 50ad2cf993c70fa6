/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package scheduler

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/friendsincode/munin_post/internal/models"
)

// Assignment pairs a message with its computed posting instant.
type Assignment struct {
	MessageID string
	At        time.Time
}

// Store is the persistence surface the scheduling engine depends on.
// It is always passed in explicitly; the engine keeps no global state,
// so tests can substitute an in-memory implementation.
type Store interface {
	// CommittedSlots returns every assigned posting instant.
	CommittedSlots(ctx context.Context) ([]time.Time, error)
	// NextEligible returns the record with the minimum scheduled_for,
	// id ascending on ties, among records that have a schedule and at
	// least one unposted destination. Nil when no such record exists.
	NextEligible(ctx context.Context) (*models.Message, error)
	// ScheduleBatch persists a batch of assignments in one
	// transaction; a batch is written whole or not at all.
	ScheduleBatch(ctx context.Context, assignments []Assignment) error
	// MarkPosted sets one destination flag and posted_at after a
	// successful publish.
	MarkPosted(ctx context.Context, messageID string, dest models.Destination, at time.Time) error
}

// Selector picks the single next message due for publishing. Selection
// is read-only: repeated calls without intervening writes return the
// same record, and never more than one per call, which throttles
// catch-up to one publish per trigger cycle.
type Selector struct {
	store  Store
	logger zerolog.Logger
	now    func() time.Time
}

// NewSelector builds a selector over the store.
func NewSelector(store Store, logger zerolog.Logger) *Selector {
	return &Selector{
		store:  store,
		logger: logger.With().Str("component", "selector").Logger(),
		now:    time.Now,
	}
}

// NextDue returns the earliest eligible message if it is due, else nil.
// A record with every destination flag set is never returned.
func (s *Selector) NextDue(ctx context.Context) (*models.Message, error) {
	msg, err := s.store.NextEligible(ctx)
	if err != nil {
		return nil, fmt.Errorf("next eligible: %w", err)
	}
	if msg == nil || msg.ScheduledFor == nil {
		return nil, nil
	}
	if !IsTimeToPost(*msg.ScheduledFor, s.now()) {
		s.logger.Debug().
			Str("message_id", msg.ID).
			Time("scheduled_for", *msg.ScheduledFor).
			Msg("earliest unposted message not due yet")
		return nil, nil
	}
	return msg, nil
}
