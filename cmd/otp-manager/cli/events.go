// Package cli holds operator helpers run from the otp-manager binary.
package cli

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/otp-manager/otp-manager/internal/sockets"
)

// EventsCLI publishes events on the relay channel, mostly to check a
// deployment end to end.
type EventsCLI struct {
	client  *redis.Client
	channel string
}

// NewEventsCLI wraps an open Redis client.
func NewEventsCLI(client *redis.Client, channel string) *EventsCLI {
	return &EventsCLI{client: client, channel: channel}
}

// Emit publishes one event for uid and returns how many relays received it.
// data must be valid JSON, empty means null.
func (c *EventsCLI) Emit(ctx context.Context, uid, event, data string) (int64, error) {
	if c == nil || c.client == nil {
		return 0, errors.New("events cli: client not configured")
	}
	if uid == "" || event == "" {
		return 0, errors.New("events cli: uid and event are required")
	}
	raw := json.RawMessage("null")
	if data != "" {
		if !json.Valid([]byte(data)) {
			return 0, fmt.Errorf("events cli: data is not valid JSON: %s", data)
		}
		raw = json.RawMessage(data)
	}
	payload, err := json.Marshal(sockets.Event{UID: uid, Event: event, Data: raw})
	if err != nil {
		return 0, fmt.Errorf("events cli: encode: %w", err)
	}
	receivers, err := c.client.Publish(ctx, c.channel, payload).Result()
	if err != nil {
		return 0, fmt.Errorf("events cli: publish: %w", err)
	}
	return receivers, nil
}
