// Backhaul - Backup Import, Restore and Cloud Sync
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/backhaul

package events

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
	"github.com/goccy/go-json"
	"github.com/google/uuid"

	"github.com/tomtom215/backhaul/internal/logging"
	"github.com/tomtom215/backhaul/internal/metrics"
)

// ErrBusClosed is returned when publishing on a closed bus.
var ErrBusClosed = errors.New("event bus is closed")

// Forwarder relays bus messages to an external broker.
type Forwarder interface {
	Forward(topic string, msg *message.Message) error
	Close() error
}

// subscriber is the subscribe half of the pubsub.
type subscriber interface {
	Subscribe(ctx context.Context, topic string) (<-chan *message.Message, error)
}

// Bus is the in-process event bus.
type Bus struct {
	pubsub    *gochannel.GoChannel
	sub       subscriber
	forwarder Forwarder
	logger    watermill.LoggerAdapter

	mu     sync.RWMutex
	closed bool
}

// NewBus creates a bus. bufferSize is the per-subscriber channel buffer.
func NewBus(bufferSize int64, logger watermill.LoggerAdapter) *Bus {
	if logger == nil {
		logger = logging.NewWatermillLogger()
	}
	if bufferSize <= 0 {
		bufferSize = 256
	}

	pubsub := gochannel.NewGoChannel(gochannel.Config{
		OutputChannelBuffer:            bufferSize,
		Persistent:                     false,
		BlockPublishUntilSubscriberAck: false,
	}, logger)

	return &Bus{
		pubsub: pubsub,
		sub:    pubsub,
		logger: logger,
	}
}

// SetForwarder attaches an external forwarder. Call before publishing.
func (b *Bus) SetForwarder(f Forwarder) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.forwarder = f
}

// Publish wraps payload in an Envelope and publishes it on topic.
// Forwarding failures are logged and do not fail the publish.
func (b *Bus) Publish(ctx context.Context, topic string, payload interface{}) error {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if b.closed {
		return ErrBusClosed
	}

	raw, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("encode %s payload: %w", topic, err)
	}

	env := Envelope{
		ID:        uuid.NewString(),
		Topic:     topic,
		Timestamp: time.Now().UTC(),
		RequestID: logging.RequestIDFromContext(ctx),
		Payload:   raw,
	}
	data, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("encode %s envelope: %w", topic, err)
	}

	msg := message.NewMessage(env.ID, data)
	msg.Metadata.Set("topic", topic)
	if env.RequestID != "" {
		msg.Metadata.Set("request_id", env.RequestID)
	}

	err = b.pubsub.Publish(topic, msg)
	metrics.RecordEventPublished(topic, err)
	if err != nil {
		return fmt.Errorf("publish %s: %w", topic, err)
	}

	if b.forwarder != nil {
		if fwdErr := b.forwarder.Forward(topic, msg.Copy()); fwdErr != nil {
			logging.Ctx(ctx).Warn().Err(fwdErr).Str("topic", topic).Msg("Event forwarding failed")
		}
	}
	return nil
}

// Subscribe returns the raw message stream of one topic. Consumers must Ack
// every message.
func (b *Bus) Subscribe(ctx context.Context, topic string) (<-chan *message.Message, error) {
	return b.sub.Subscribe(ctx, topic)
}

// Stream delivers decoded envelopes from every topic in AllTopics until ctx
// ends. Messages are acknowledged on receipt. If any topic fails to
// subscribe, the topics already subscribed are released before returning.
func (b *Bus) Stream(ctx context.Context) (<-chan Envelope, error) {
	ctx, cancel := context.WithCancel(ctx)
	out := make(chan Envelope, 64)

	var wg sync.WaitGroup
	for _, topic := range AllTopics {
		msgs, err := b.sub.Subscribe(ctx, topic)
		if err != nil {
			cancel()
			return nil, fmt.Errorf("subscribe %s: %w", topic, err)
		}

		wg.Add(1)
		go func(msgs <-chan *message.Message) {
			defer wg.Done()
			for msg := range msgs {
				msg.Ack()
				env, err := DecodeEnvelope(msg.Payload)
				if err != nil {
					b.logger.Error("Dropping undecodable event", err, watermill.LogFields{"uuid": msg.UUID})
					continue
				}
				select {
				case out <- env:
				case <-ctx.Done():
					return
				}
			}
		}(msgs)
	}

	go func() {
		wg.Wait()
		cancel()
		close(out)
	}()

	return out, nil
}

// Close shuts down the bus and the forwarder.
func (b *Bus) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return nil
	}
	b.closed = true

	err := b.pubsub.Close()
	if b.forwarder != nil {
		if fwdErr := b.forwarder.Close(); fwdErr != nil && err == nil {
			err = fwdErr
		}
	}
	return err
}
