/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

// Package models defines the persisted records: blog posts, their
// extracted messages, and per-attempt delivery logs.
package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Destination names one publishing target tracked by its own
// completion flag per message.
type Destination string

const (
	DestinationLinkedIn Destination = "linkedin"
	DestinationX        Destination = "x"
)

// Destinations lists every publishing target in a fixed order.
func Destinations() []Destination {
	return []Destination{DestinationLinkedIn, DestinationX}
}

// BlogPost is one source item fetched from the feed. Its extracted
// messages are scheduled and published independently.
type BlogPost struct {
	ID          string `gorm:"type:uuid;primaryKey"`
	URL         string `gorm:"uniqueIndex"`
	Title       string
	Content     string `gorm:"type:text"`
	PublishedAt time.Time
	FetchedAt   time.Time
	Messages    []Message
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// BeforeCreate assigns a uuid primary key.
func (p *BlogPost) BeforeCreate(tx *gorm.DB) error {
	if p.ID == "" {
		p.ID = uuid.NewString()
	}
	return nil
}

// Message is the unit of scheduling and publishing: one extracted
// social media message belonging to a blog post.
type Message struct {
	ID         string `gorm:"type:uuid;primaryKey"`
	BlogPostID string `gorm:"type:uuid;index;uniqueIndex:idx_post_ordinal"`
	Ordinal    int    `gorm:"uniqueIndex:idx_post_ordinal"`
	Text       string `gorm:"type:text"`

	// ImageKey and ImageURL reference an optional generated image in
	// the object store. Opaque to scheduling.
	ImageKey string
	ImageURL string

	// ScheduledFor is the posting instant, nil until the scheduler
	// assigns one. Stored as an absolute instant; the civil slot
	// identity lives in the plan timezone.
	ScheduledFor *time.Time `gorm:"index"`

	PostedToLinkedIn bool
	PostedToX        bool
	PostedAt         *time.Time

	BlogPost  *BlogPost `gorm:"constraint:OnDelete:CASCADE"`
	CreatedAt time.Time
	UpdatedAt time.Time
}

// BeforeCreate assigns a uuid primary key.
func (m *Message) BeforeCreate(tx *gorm.DB) error {
	if m.ID == "" {
		m.ID = uuid.NewString()
	}
	return nil
}

// FullyPosted reports whether every destination flag is set. A fully
// posted message is permanently excluded from selection.
func (m *Message) FullyPosted() bool {
	return m.PostedToLinkedIn && m.PostedToX
}

// PostedTo reports the completion flag for one destination.
func (m *Message) PostedTo(dest Destination) bool {
	switch dest {
	case DestinationLinkedIn:
		return m.PostedToLinkedIn
	case DestinationX:
		return m.PostedToX
	}
	return false
}

// SetPosted sets the destination flag and records the publish instant.
func (m *Message) SetPosted(dest Destination, at time.Time) {
	switch dest {
	case DestinationLinkedIn:
		m.PostedToLinkedIn = true
	case DestinationX:
		m.PostedToX = true
	}
	m.PostedAt = &at
}

// DeliveryLog records one publish attempt against one destination.
// Logs support status display and debugging; selection never consults
// them.
type DeliveryLog struct {
	ID          string      `gorm:"type:uuid;primaryKey"`
	MessageID   string      `gorm:"type:uuid;index"`
	Destination Destination `gorm:"type:varchar(16)"`
	Success     bool
	// Detail carries the remote id on success or the error text on
	// failure.
	Detail    string `gorm:"type:text"`
	CreatedAt time.Time
}

// BeforeCreate assigns a uuid primary key.
func (d *DeliveryLog) BeforeCreate(tx *gorm.DB) error {
	if d.ID == "" {
		d.ID = uuid.NewString()
	}
	return nil
}

// All lists every model for migration.
func All() []any {
	return []any{&BlogPost{}, &Message{}, &DeliveryLog{}}
}
