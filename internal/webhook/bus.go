// CloudSync - PMS Cloud Synchronization Engine
// Copyright 2026 Stayware
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/stayware/cloudsync

package webhook

import (
	"context"
	"fmt"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
	"github.com/goccy/go-json"
	"github.com/google/uuid"

	"github.com/stayware/cloudsync/internal/models"
)

// EventsTopic is the in-process topic validated webhook events are
// published on. Subscribers (the sync orchestrator, future extensions)
// consume deliveries without coupling to the HTTP ingress.
const EventsTopic = "webhook.events"

// Bus is the in-process pub/sub fabric for validated webhook events.
type Bus struct {
	pubsub *gochannel.GoChannel
}

// NewBus creates an in-memory bus. Output channels are buffered so a slow
// subscriber does not stall webhook ingress.
func NewBus() *Bus {
	return &Bus{
		pubsub: gochannel.NewGoChannel(
			gochannel.Config{
				OutputChannelBuffer: 256,
			},
			watermill.NopLogger{},
		),
	}
}

// Publish emits a validated event on EventsTopic. The message carries the
// event type, property, and account in metadata so subscribers can filter
// without unmarshaling.
func (b *Bus) Publish(accountID string, event *models.WebhookEvent, body []byte) error {
	msg := message.NewMessage(uuid.New().String(), body)
	msg.Metadata.Set("account_id", accountID)
	msg.Metadata.Set("event_type", event.EventType())
	msg.Metadata.Set("property_id", event.PropertyID)
	if id := event.ObjectID(); id != "" {
		msg.Metadata.Set("object_id", id)
	}

	if err := b.pubsub.Publish(EventsTopic, msg); err != nil {
		return fmt.Errorf("publish webhook event: %w", err)
	}
	return nil
}

// Subscribe returns a channel of events on EventsTopic. The subscription
// lives until the context passed here is canceled.
func (b *Bus) Subscribe(ctx context.Context) (<-chan *message.Message, error) {
	return b.pubsub.Subscribe(ctx, EventsTopic)
}

// DecodeEvent unmarshals a bus message back into a WebhookEvent.
func DecodeEvent(msg *message.Message) (*models.WebhookEvent, error) {
	var event models.WebhookEvent
	if err := json.Unmarshal(msg.Payload, &event); err != nil {
		return nil, fmt.Errorf("decode webhook event message: %w", err)
	}
	event.Payload = json.RawMessage(msg.Payload)
	return &event, nil
}

// Close shuts the bus down, closing all subscriber channels.
func (b *Bus) Close() error {
	return b.pubsub.Close()
}
