/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

// Package eventbus mirrors the in-process event bus onto NATS
// JetStream so external consumers can observe fetch/publish activity.
package eventbus

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go"
	"github.com/rs/zerolog"

	"github.com/friendsincode/munin_post/internal/events"
)

// NATSConfig contains NATS connection configuration.
type NATSConfig struct {
	URL        string
	StreamName string
	// Connection options
	MaxReconnects int
	ReconnectWait time.Duration
	Timeout       time.Duration
}

// DefaultNATSConfig returns default NATS configuration.
func DefaultNATSConfig(url string) NATSConfig {
	return NATSConfig{
		URL:           url,
		StreamName:    "MUNIN_EVENTS",
		MaxReconnects: -1,
		ReconnectWait: 2 * time.Second,
		Timeout:       5 * time.Second,
	}
}

// NATSBus wraps the local bus and republishes every event onto
// munin.events.<type> subjects. Local delivery never depends on the
// NATS connection; a failed remote publish is logged and dropped.
type NATSBus struct {
	local  *events.Bus
	conn   *nats.Conn
	js     nats.JetStreamContext
	logger zerolog.Logger
	nodeID string
	stop   chan struct{}
}

// natsMessage is the wire envelope for mirrored events.
type natsMessage struct {
	EventType events.EventType `json:"event_type"`
	Payload   events.Payload   `json:"payload"`
	Timestamp time.Time        `json:"timestamp"`
	NodeID    string           `json:"node_id"`
	MessageID string           `json:"message_id"`
}

// NewNATSBus connects to NATS, ensures the event stream exists, and
// starts mirroring the local bus.
func NewNATSBus(cfg NATSConfig, local *events.Bus, logger zerolog.Logger) (*NATSBus, error) {
	log := logger.With().Str("component", "eventbus").Logger()

	conn, err := nats.Connect(cfg.URL,
		nats.Name("munin-post"),
		nats.Timeout(cfg.Timeout),
		nats.MaxReconnects(cfg.MaxReconnects),
		nats.ReconnectWait(cfg.ReconnectWait),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			log.Warn().Err(err).Msg("NATS disconnected")
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			log.Info().Str("url", nc.ConnectedUrl()).Msg("NATS reconnected")
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("connect to NATS: %w", err)
	}

	js, err := conn.JetStream()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("create JetStream context: %w", err)
	}

	// Idempotent: AddStream on an existing identical stream is a no-op.
	if _, err := js.AddStream(&nats.StreamConfig{
		Name:     cfg.StreamName,
		Subjects: []string{"munin.events.>"},
		Storage:  nats.FileStorage,
		MaxAge:   7 * 24 * time.Hour,
	}); err != nil {
		conn.Close()
		return nil, fmt.Errorf("ensure stream %s: %w", cfg.StreamName, err)
	}

	bus := &NATSBus{
		local:  local,
		conn:   conn,
		js:     js,
		logger: log,
		nodeID: nodeID(),
		stop:   make(chan struct{}),
	}
	bus.mirror()

	log.Info().Str("url", cfg.URL).Str("stream", cfg.StreamName).Msg("event mirroring to NATS started")
	return bus, nil
}

// mirror subscribes to every local event type and fans each event out
// to its NATS subject.
func (nb *NATSBus) mirror() {
	for _, et := range events.All() {
		et := et
		sub := nb.local.Subscribe(et)
		go func() {
			for {
				select {
				case <-nb.stop:
					return
				case payload, ok := <-sub:
					if !ok {
						return
					}
					nb.publishRemote(et, payload)
				}
			}
		}()
	}
}

func (nb *NATSBus) publishRemote(eventType events.EventType, payload events.Payload) {
	data, err := json.Marshal(natsMessage{
		EventType: eventType,
		Payload:   payload,
		Timestamp: time.Now(),
		NodeID:    nb.nodeID,
		MessageID: uuid.NewString(),
	})
	if err != nil {
		nb.logger.Error().Err(err).Str("event", string(eventType)).Msg("marshal event for NATS")
		return
	}

	subject := fmt.Sprintf("munin.events.%s", eventType)
	if _, err := nb.js.Publish(subject, data); err != nil {
		nb.logger.Warn().Err(err).Str("subject", subject).Msg("publish event to NATS")
	}
}

// Close stops mirroring and drains the connection.
func (nb *NATSBus) Close() error {
	close(nb.stop)
	if nb.conn != nil && !nb.conn.IsClosed() {
		if err := nb.conn.Drain(); err != nil {
			nb.conn.Close()
			return err
		}
	}
	return nil
}

func nodeID() string {
	host, err := os.Hostname()
	if err != nil {
		host = "munin"
	}
	return fmt.Sprintf("%s-%s", host, uuid.NewString()[:8])
}
