// Backhaul - Backup Import, Restore and Cloud Sync
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/backhaul

package events

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	wmNats "github.com/ThreeDotsLabs/watermill-nats/v2/pkg/nats"
	"github.com/ThreeDotsLabs/watermill/message"
	natsgo "github.com/nats-io/nats.go"
	gobreaker "github.com/sony/gobreaker/v2"

	"github.com/tomtom215/backhaul/internal/logging"
)

// ErrForwarderClosed is returned when forwarding after Close.
var ErrForwarderClosed = errors.New("forwarder is closed")

// ForwarderConfig configures NATS forwarding.
type ForwarderConfig struct {
	URL           string
	SubjectPrefix string

	// FailureThreshold consecutive failures open the circuit for Timeout.
	FailureThreshold uint32
	Timeout          time.Duration

	MaxReconnects int
	ReconnectWait time.Duration
}

func (c ForwarderConfig) withDefaults() ForwarderConfig {
	if c.SubjectPrefix == "" {
		c.SubjectPrefix = "backhaul"
	}
	if c.FailureThreshold == 0 {
		c.FailureThreshold = 5
	}
	if c.Timeout <= 0 {
		c.Timeout = 30 * time.Second
	}
	if c.MaxReconnects == 0 {
		c.MaxReconnects = -1
	}
	if c.ReconnectWait <= 0 {
		c.ReconnectWait = 2 * time.Second
	}
	return c
}

// NATSForwarder publishes bus messages to core NATS subjects.
type NATSForwarder struct {
	publisher message.Publisher
	breaker   *gobreaker.CircuitBreaker[interface{}]
	prefix    string

	mu     sync.RWMutex
	closed bool
}

// NewNATSForwarder connects a Watermill NATS publisher to cfg.URL.
// JetStream is not used: events are notifications, not a durable log.
func NewNATSForwarder(cfg ForwarderConfig, logger watermill.LoggerAdapter) (*NATSForwarder, error) {
	cfg = cfg.withDefaults()
	if cfg.URL == "" {
		return nil, errors.New("NATS URL is required")
	}
	if logger == nil {
		logger = logging.NewWatermillLogger()
	}

	natsOpts := []natsgo.Option{
		natsgo.Name("backhaul-events"),
		natsgo.RetryOnFailedConnect(true),
		natsgo.MaxReconnects(cfg.MaxReconnects),
		natsgo.ReconnectWait(cfg.ReconnectWait),
		natsgo.DisconnectErrHandler(func(_ *natsgo.Conn, err error) {
			if err != nil {
				logger.Error("NATS disconnected", err, nil)
			}
		}),
		natsgo.ReconnectHandler(func(nc *natsgo.Conn) {
			logger.Info("NATS reconnected", watermill.LogFields{"url": nc.ConnectedUrl()})
		}),
	}

	pub, err := wmNats.NewPublisher(wmNats.PublisherConfig{
		URL:         cfg.URL,
		NatsOptions: natsOpts,
		Marshaler:   &wmNats.NATSMarshaler{},
		JetStream: wmNats.JetStreamConfig{
			Disabled: true,
		},
	}, logger)
	if err != nil {
		return nil, fmt.Errorf("create NATS publisher: %w", err)
	}

	return newForwarder(pub, cfg), nil
}

func newForwarder(pub message.Publisher, cfg ForwarderConfig) *NATSForwarder {
	cfg = cfg.withDefaults()
	return &NATSForwarder{
		publisher: pub,
		breaker:   newBreaker("nats-forwarder", cfg.FailureThreshold, cfg.Timeout),
		prefix:    cfg.SubjectPrefix,
	}
}

// newBreaker opens after threshold consecutive failures.
func newBreaker(name string, threshold uint32, timeout time.Duration) *gobreaker.CircuitBreaker[interface{}] {
	return gobreaker.NewCircuitBreaker[interface{}](gobreaker.Settings{
		Name:        name,
		MaxRequests: 1,
		Timeout:     timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= threshold
		},
	})
}

// Subject returns the NATS subject used for topic.
func (f *NATSForwarder) Subject(topic string) string {
	return f.prefix + "." + topic
}

// Forward publishes msg on the subject for topic. While the circuit is open
// calls fail immediately with gobreaker.ErrOpenState.
func (f *NATSForwarder) Forward(topic string, msg *message.Message) error {
	f.mu.RLock()
	defer f.mu.RUnlock()

	if f.closed {
		return ErrForwarderClosed
	}
	if msg.Metadata.Get(natsgo.MsgIdHdr) == "" {
		msg.Metadata.Set(natsgo.MsgIdHdr, msg.UUID)
	}

	_, err := f.breaker.Execute(func() (interface{}, error) {
		return nil, f.publisher.Publish(f.Subject(topic), msg)
	})
	return err
}

// State returns the circuit breaker state ("closed", "open", "half-open").
func (f *NATSForwarder) State() string {
	return f.breaker.State().String()
}

// Close closes the underlying publisher.
func (f *NATSForwarder) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.closed {
		return nil
	}
	f.closed = true
	return f.publisher.Close()
}
